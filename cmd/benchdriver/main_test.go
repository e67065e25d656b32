package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benchsuite/internal/worker"
	"benchsuite/pkg/suitedb"
)

func clearEnv(t *testing.T) {
	for _, name := range []string{
		"PGHOST", "PGPORT", "PGUSER", "PGPASS", "PGDATABASE", "PGSSLMODE",
		"BENCHDRIVER_DRIVER", "BENCHDRIVER_DSN", "BENCHDRIVER_LISTEN",
		"BENCHDRIVER_SUITES_DRIVER", "BENCHDRIVER_SUITES_DSN",
	} {
		t.Setenv(name, "")
	}
}

func TestReadWorkerConfigDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("PGHOST", "db")

	env := newEnv()
	cfg, err := readWorkerConfig(env)
	require.NoError(t, err)

	assert.Equal(t, suitedb.Config{
		Driver:   "postgres",
		Host:     "db",
		User:     "postgres",
		Password: "postgres",
		Database: "postgres",
		SSLMode:  "disable",
	}, cfg.Target)
	assert.Equal(t, cfg.Target, cfg.SuiteStore())
	assert.Equal(t, ":8080", env.GetString("listen"))
}

func TestReadWorkerConfigSeparateStore(t *testing.T) {
	clearEnv(t)
	t.Setenv("BENCHDRIVER_DRIVER", "mysql")
	t.Setenv("BENCHDRIVER_DSN", "root@tcp(db:3306)/bench")
	t.Setenv("BENCHDRIVER_SUITES_DRIVER", "sqlite3")
	t.Setenv("BENCHDRIVER_SUITES_DSN", "/data/suites.db")
	t.Setenv("BENCHDRIVER_LISTEN", ":9090")

	env := newEnv()
	cfg, err := readWorkerConfig(env)
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Target.Driver)
	assert.Equal(t, "root@tcp(db:3306)/bench", cfg.Target.ConnString())
	assert.Equal(t, suitedb.Config{Driver: "sqlite3", DSN: "/data/suites.db"}, cfg.SuiteStore())
	assert.Equal(t, ":9090", env.GetString("listen"))
}

func TestReadWorkerConfigUnknownDriver(t *testing.T) {
	clearEnv(t)
	t.Setenv("BENCHDRIVER_DRIVER", "oracle")

	_, err := readWorkerConfig(newEnv())
	assert.Error(t, err)
}

func TestReadWorkerConfigUnknownStoreDriver(t *testing.T) {
	clearEnv(t)
	t.Setenv("PGHOST", "db")
	t.Setenv("BENCHDRIVER_SUITES_DRIVER", "oracle")
	t.Setenv("BENCHDRIVER_SUITES_DSN", "suites")

	_, err := readWorkerConfig(newEnv())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "suite store")

	dialect, err := worker.Config{Target: suitedb.Config{Driver: "mysql"}}.SuiteStore().Dialect()
	require.NoError(t, err)
	assert.Equal(t, "mysql", dialect.Driver)
}

func TestAwaitDatabase(t *testing.T) {
	cfg := worker.Config{Target: suitedb.Config{Driver: "sqlite3", DSN: "file::memory:"}}
	assert.NoError(t, awaitDatabase(context.Background(), cfg, time.Second))
	assert.Error(t, awaitDatabase(context.Background(), worker.Config{}, time.Second))
}
