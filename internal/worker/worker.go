package worker

import (
	"context"
	"database/sql"

	"benchsuite/api/benchdriverapi"
	"benchsuite/pkg/suitedb"
)

type Config struct {
	// Target is the database the benchmark queries run against.
	Target suitedb.Config

	// Suites is the store holding suite and query definitions. The target
	// database is used when no store is configured.
	Suites suitedb.Config
}

func (cfg Config) SuiteStore() suitedb.Config {
	if cfg.Suites.DSN == "" && cfg.Suites.Host == "" && cfg.Suites.Database == "" {
		return cfg.Target
	}
	return cfg.Suites
}

func OpenDB(cfg Config) (*sql.DB, suitedb.Dialect, error) {
	return suitedb.Open(cfg.Target)
}

func OpenSuiteStore(cfg Config) (*sql.DB, suitedb.Dialect, error) {
	return suitedb.Open(cfg.SuiteStore())
}

type Task struct {
	Name benchdriverapi.TaskName
	Task func(context.Context) (any, error)
}

type TaskFactory[Config any] interface {
	Prepare(config Config) (Task, error)
	Cleanup(config Config) (Task, error)
	Run(config Config) (Task, error)
}
