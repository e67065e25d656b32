// Package suiterun loads benchmark suites from the suite store and runs their
// phases against the target database.
package suiterun

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"benchsuite/api/benchdriverapi"
	"benchsuite/internal/worker"
	"benchsuite/pkg/benchmark"
	"benchsuite/pkg/suitedb"
)

type RunOptions struct {
	Count           int
	MaxConcurrency  int
	ContinueOnError bool
	Isolation       sql.IsolationLevel

	// Transaction wraps every query in a read-only transaction using
	// Isolation.
	Transaction bool
}

type Tester struct {
	db      *sql.DB
	dialect suitedb.Dialect
	dao     *suitedb.Dao
	tables  suitedb.Tables

	metrics   *runMetrics
	completed atomic.Int64
	closers   []io.Closer
}

// NewTester creates a tester on existing handles. The handles are not closed
// by Close.
func NewTester(target *sql.DB, dialect suitedb.Dialect, store *suitedb.Dao, tables suitedb.Tables) *Tester {
	return &Tester{
		db:      target,
		dialect: dialect,
		dao:     store,
		tables:  tables.WithDefaults(),
	}
}

// Open connects to the target database and the suite store configured for the
// worker. Both share one handle when no separate store is configured.
func Open(cfg worker.Config, tables suitedb.Tables) (*Tester, error) {
	db, dialect, err := worker.OpenDB(cfg)
	if err != nil {
		return nil, err
	}
	closers := []io.Closer{db}

	store, storeDialect := db, dialect
	if cfg.SuiteStore() != cfg.Target {
		store, storeDialect, err = worker.OpenSuiteStore(cfg)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("open suite store: %w", err)
		}
		closers = append(closers, store)
	}

	t := NewTester(db, dialect, suitedb.NewDao(store, storeDialect), tables)
	t.closers = closers
	return t, nil
}

func (t *Tester) Close() error {
	var errs []error
	for _, c := range t.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func (t *Tester) Ping(ctx context.Context) (bool, error) {
	if err := t.db.PingContext(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Completed returns the number of queries finished by the current run.
func (t *Tester) Completed() int64 {
	return t.completed.Load()
}

// Prepare creates the suite tables. With drop set, existing tables and their
// contents are removed first.
func (t *Tester) Prepare(ctx context.Context, drop bool) error {
	if drop {
		if err := t.dao.DropTables(ctx, t.tables); err != nil {
			return err
		}
	}
	return t.dao.EnsureTables(ctx, t.tables)
}

func (t *Tester) Cleanup(ctx context.Context) error {
	return t.dao.DropTables(ctx, t.tables)
}

// Load reads a suite from the store and checks that all phase references
// resolve.
func (t *Tester) Load(ctx context.Context, name string) (benchmark.BenchmarkSuite, error) {
	suite, err := suitedb.NewSupplier(t.dao, t.tables).Load(ctx, name)
	if err != nil {
		return suite, fmt.Errorf("load suite %s: %w", name, err)
	}
	if err := suite.Validate(); err != nil {
		return suite, err
	}
	return suite, nil
}

func (t *Tester) Run(ctx context.Context, name string, opts RunOptions) (stats benchdriverapi.SuiteRunStats, err error) {
	suite, err := t.Load(ctx, name)
	if err != nil {
		return stats, err
	}
	return t.RunSuite(ctx, &suite, opts)
}

// RunSuite executes all phases of the suite in order, opts.Count times.
func (t *Tester) RunSuite(ctx context.Context, suite *benchmark.BenchmarkSuite, opts RunOptions) (stats benchdriverapi.SuiteRunStats, err error) {
	count := max(opts.Count, 1)
	t.completed.Store(0)

	stats = benchdriverapi.SuiteRunStats{
		RunID:    xid.New().String(),
		Suite:    suite.Info.Suite,
		QuerySet: suite.Info.QuerySet,
		Started:  time.Now().UTC(),
	}
	logger := log.With().Str("run_id", stats.RunID).Str("suite", stats.Suite).Logger()
	logger.Info().Int("count", count).Int("phases", len(suite.Info.Phases)).Msg("starting suite run")

	defer func() {
		stats.Duration = benchdriverapi.Duration{Duration: time.Since(stats.Started)}
		if t.metrics != nil {
			t.metrics.observeRun(stats.Suite, err)
		}
		logger.Info().Err(err).Dur("duration", stats.Duration.Duration).Msg("suite run finished")
	}()

	queries := suite.QueryMap()
	for i := range count {
		for _, phase := range suite.Info.Phases {
			phaseStats, err := t.runPhase(ctx, suite, queries, phase, opts)
			phaseStats.Iteration = i
			stats.Phases = append(stats.Phases, phaseStats)
			if err != nil {
				return stats, fmt.Errorf("phase %s: %w", phase.PhaseName(), err)
			}
			logger.Debug().
				Str("phase", phase.PhaseName()).
				Int("iteration", i).
				Dur("duration", phaseStats.Duration.Duration).
				Msg("phase finished")
		}
	}
	return stats, nil
}

func (t *Tester) runPhase(
	ctx context.Context,
	suite *benchmark.BenchmarkSuite,
	queries map[string]benchmark.BenchmarkQuery,
	phase benchmark.PhaseSpecification,
	opts RunOptions,
) (stats benchdriverapi.PhaseRunStats, err error) {
	stats.Name = phase.PhaseName()
	stats.Strategy = string(phase.ExecutionStrategy())

	start := time.Now()
	switch p := phase.(type) {
	case benchmark.StreamExecutionPhase:
		stats.Queries, err = t.runStreams(ctx, suite.Info.SessionProperties, queries, p, opts)
	case benchmark.ConcurrentExecutionPhase:
		stats.Queries, err = t.runConcurrent(ctx, suite.Info.SessionProperties, queries, p, opts)
	default:
		err = fmt.Errorf("unsupported phase type %T", phase)
	}
	stats.Duration = benchdriverapi.Duration{Duration: time.Since(start)}

	if t.metrics != nil {
		t.metrics.observePhase(suite.Info.Suite, stats)
	}
	return stats, err
}

// runStreams runs all streams in parallel, each on its own connection. The
// queries of a stream run in order.
func (t *Tester) runStreams(
	ctx context.Context,
	props benchmark.SessionProperties,
	queries map[string]benchmark.BenchmarkQuery,
	phase benchmark.StreamExecutionPhase,
	opts RunOptions,
) ([]benchdriverapi.QueryRunStats, error) {
	results := make([][]benchdriverapi.QueryRunStats, len(phase.Streams))

	eg, ctx := errgroup.WithContext(ctx)
	for i, stream := range phase.Streams {
		eg.Go(func() error {
			return t.withSession(ctx, props, func(conn *sql.Conn) error {
				for _, name := range stream {
					qs, err := t.runQuery(ctx, conn, phase.Name, queries[name], opts)
					qs.Stream = i
					results[i] = append(results[i], qs)
					if err != nil {
						return err
					}
				}
				return nil
			})
		})
	}
	err := eg.Wait()

	var all []benchdriverapi.QueryRunStats
	for _, r := range results {
		all = append(all, r...)
	}
	return all, err
}

// runConcurrent runs every query of the phase on its own connection, with at
// most opts.MaxConcurrency queries in flight.
func (t *Tester) runConcurrent(
	ctx context.Context,
	props benchmark.SessionProperties,
	queries map[string]benchmark.BenchmarkQuery,
	phase benchmark.ConcurrentExecutionPhase,
	opts RunOptions,
) ([]benchdriverapi.QueryRunStats, error) {
	results := make([]benchdriverapi.QueryRunStats, len(phase.Queries))
	started := make([]bool, len(phase.Queries))

	eg, ctx := errgroup.WithContext(ctx)
	if opts.MaxConcurrency > 0 {
		eg.SetLimit(opts.MaxConcurrency)
	}
	for i, name := range phase.Queries {
		eg.Go(func() error {
			return t.withSession(ctx, props, func(conn *sql.Conn) error {
				qs, err := t.runQuery(ctx, conn, phase.Name, queries[name], opts)
				qs.Stream = -1
				results[i] = qs
				started[i] = true
				return err
			})
		})
	}
	err := eg.Wait()

	all := make([]benchdriverapi.QueryRunStats, 0, len(results))
	for i, r := range results {
		if started[i] {
			all = append(all, r)
		}
	}
	return all, err
}

// withSession acquires a dedicated connection and applies the suite session
// properties before calling fn.
func (t *Tester) withSession(ctx context.Context, props benchmark.SessionProperties, fn func(*sql.Conn) error) error {
	conn, err := t.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	for name, value := range props.All() {
		stmt, args, err := t.dialect.SessionStatement(name, value)
		if err != nil {
			return err
		}
		if stmt == "" {
			continue
		}
		if _, err := conn.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("set session property %s: %w", name, err)
		}
	}
	return fn(conn)
}

func (t *Tester) runQuery(
	ctx context.Context,
	conn *sql.Conn,
	phase string,
	query benchmark.BenchmarkQuery,
	opts RunOptions,
) (stats benchdriverapi.QueryRunStats, err error) {
	stats.Name = query.Name

	start := time.Now()
	stats.Rows, err = execQuery(ctx, conn, query.Query, opts)
	stats.Duration = benchdriverapi.Duration{Duration: time.Since(start)}
	t.completed.Add(1)

	if t.metrics != nil {
		t.metrics.observeQuery(query.QuerySet, phase, stats, err)
	}

	if err != nil {
		stats.Error = err.Error()
		if opts.ContinueOnError && ctx.Err() == nil {
			log.Warn().Err(err).Str("phase", phase).Str("query", query.Name).Msg("query failed")
			return stats, nil
		}
		return stats, fmt.Errorf("query %s: %w", query.Name, err)
	}
	return stats, nil
}

func execQuery(ctx context.Context, conn *sql.Conn, query string, opts RunOptions) (int64, error) {
	if !opts.Transaction {
		return countRows(conn.QueryContext(ctx, query))
	}

	tx, err := conn.BeginTx(ctx, &sql.TxOptions{Isolation: opts.Isolation, ReadOnly: true})
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	n, err := countRows(tx.QueryContext(ctx, query))
	if err != nil {
		return n, err
	}
	return n, tx.Commit()
}

func countRows(rows *sql.Rows, err error) (n int64, _ error) {
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	for rows.Next() {
		n++
	}
	return n, rows.Err()
}
