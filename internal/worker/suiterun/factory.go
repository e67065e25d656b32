package suiterun

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"benchsuite/api/benchdriverapi"
	"benchsuite/internal/worker"
	"benchsuite/pkg/suitedb"
	"benchsuite/pkg/timeutil"
)

const liveStatsPeriod = 5 * time.Second

type Factory struct {
	open    func(suitedb.Tables) (*Tester, error)
	metrics *worker.Lazy[*suiteMetrics]
}

func NewFactory(cfg worker.Config) *Factory {
	return NewFactoryWith(func(tables suitedb.Tables) (*Tester, error) {
		return Open(cfg, tables)
	})
}

// NewFactoryWith creates a factory opening testers through open.
func NewFactoryWith(open func(suitedb.Tables) (*Tester, error)) *Factory {
	return &Factory{open: open}
}

func (f *Factory) WithMetrics(r prometheus.Registerer) *Factory {
	f.metrics = worker.NewLazy(newSuiteMetrics(), r)
	return f
}

func (f *Factory) Prepare(req benchdriverapi.BenchmarkSuiteConfig) (cmd worker.Task, err error) {
	dropTables := benchdriverapi.GetOptValue(req.DropTables, false)

	return worker.Task{
		Name: benchdriverapi.TaskSuitePrepare,
		Task: f.benchSuiteTask(&req, func(ctx context.Context, bench *Tester) (any, error) {
			return nil, f.storeOps().Observe("prepare", func() error {
				return bench.Prepare(ctx, dropTables)
			})
		}),
	}, nil
}

func (f *Factory) Cleanup(req benchdriverapi.BenchmarkSuiteConfig) (cmd worker.Task, err error) {
	return worker.Task{
		Name: benchdriverapi.TaskSuiteCleanup,
		Task: f.benchSuiteTask(&req, func(ctx context.Context, bench *Tester) (any, error) {
			return nil, f.storeOps().Observe("cleanup", func() error {
				return bench.Cleanup(ctx)
			})
		}),
	}, nil
}

func (f *Factory) Run(req benchdriverapi.BenchmarkSuiteConfig) (cmd worker.Task, err error) {
	opts, err := RunOptionsFromAPI(&req)
	if err != nil {
		return cmd, benchdriverapi.ErrorBadRequest(err)
	}

	return worker.Task{
		Name: benchdriverapi.TaskSuiteRun,
		Task: f.benchSuiteTask(&req, func(ctx context.Context, bench *Tester) (any, error) {
			if f.metrics == nil {
				return bench.Run(ctx, req.Suite, opts)
			}
			bench.metrics = &f.metrics.Get().Run

			var summary benchdriverapi.SuiteRunStats
			live := bench.metrics.Completed

			eg, ctx := errgroup.WithContext(ctx)
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			eg.Go(func() error {
				live.Set(0)
				for range timeutil.IterTick(ctx, liveStatsPeriod) {
					live.Set(float64(bench.Completed()))
				}
				return nil
			})
			eg.Go(func() error {
				defer cancel() // stops the live stats loop
				var err error
				summary, err = bench.Run(ctx, req.Suite, opts)
				live.Set(float64(bench.Completed()))
				return err
			})

			if err := eg.Wait(); err != nil {
				return summary, err
			}
			return summary, nil
		}),
	}, nil
}

func (f *Factory) benchSuiteTask(
	req *benchdriverapi.BenchmarkSuiteConfig,
	fn func(context.Context, *Tester) (any, error),
) func(context.Context) (any, error) {
	tables := tablesFromAPI(req)
	return func(ctx context.Context) (any, error) {
		bench, err := f.open(tables)
		if err != nil {
			return nil, err
		}
		defer bench.Close()
		return fn(ctx, bench)
	}
}

func (f *Factory) storeOps() *worker.OpMetrics {
	if f.metrics == nil {
		return nil
	}
	return f.metrics.Get().Store
}

func tablesFromAPI(req *benchdriverapi.BenchmarkSuiteConfig) suitedb.Tables {
	return suitedb.Tables{
		Suites:  benchdriverapi.GetOptValue(req.SuitesTable, suitedb.DefaultSuitesTable),
		Queries: benchdriverapi.GetOptValue(req.QueriesTable, suitedb.DefaultQueriesTable),
	}.WithDefaults()
}

func RunOptionsFromAPI(req *benchdriverapi.BenchmarkSuiteConfig) (opts RunOptions, err error) {
	if req.Suite == "" {
		return opts, errors.New("suite name is required")
	}

	opts.Count = benchdriverapi.GetOptValue(req.Count, 1)
	if opts.Count < 1 {
		return opts, fmt.Errorf("count must be positive, got %d", opts.Count)
	}

	opts.MaxConcurrency = benchdriverapi.GetOptValue(req.MaxConcurrency, 0)
	if opts.MaxConcurrency < 0 {
		return opts, fmt.Errorf("max_concurrency must not be negative, got %d", opts.MaxConcurrency)
	}

	opts.ContinueOnError = benchdriverapi.GetOptValue(req.ContinueOnError, false)

	level := benchdriverapi.GetOptValue(req.IsolationLevel, benchdriverapi.IsolationLevelDefault)
	opts.Isolation, err = level.SQLLevel()
	if err != nil {
		return opts, err
	}
	opts.Transaction = level != "" && level != benchdriverapi.IsolationLevelDefault
	return opts, nil
}
