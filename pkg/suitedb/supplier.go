package suitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"benchsuite/pkg/benchmark"
)

// Supplier loads complete suites from the store.
type Supplier struct {
	dao    *Dao
	tables Tables
}

func NewSupplier(dao *Dao, tables Tables) *Supplier {
	return &Supplier{dao: dao, tables: tables.WithDefaults()}
}

// Load reads the suite definition and all queries of its query set.
func (s *Supplier) Load(ctx context.Context, suite string) (benchmark.BenchmarkSuite, error) {
	info, err := s.dao.GetBenchmarkSuiteInfo(ctx, s.tables.Suites, suite)
	if err != nil {
		return benchmark.BenchmarkSuite{}, err
	}

	queries, err := s.dao.GetBenchmarkQueries(ctx, s.tables.Queries, info.QuerySet)
	if err != nil {
		return benchmark.BenchmarkSuite{}, err
	}
	return benchmark.NewBenchmarkSuite(info, queries), nil
}

var ErrQueryConflict = errors.New("query differs from stored query")

// Import stores a suite and its queries. Queries already stored in the query
// set are kept when identical and rejected with ErrQueryConflict otherwise.
// When the Dao is backed by a *sql.DB all rows are written in a single
// transaction.
func Import(ctx context.Context, dao *Dao, tables Tables, suite benchmark.BenchmarkSuite, createdBy string) (err error) {
	tables = tables.WithDefaults()

	target := dao
	if db, ok := dao.DB().(*sql.DB); ok {
		var tx *sql.Tx
		tx, err = db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer func() {
			if err != nil {
				tx.Rollback()
				return
			}
			err = tx.Commit()
		}()
		target = dao.WithDB(tx)
	}

	if err := target.InsertBenchmarkSuite(ctx, tables.Suites, suite.Info, createdBy); err != nil {
		return fmt.Errorf("insert suite %s: %w", suite.Info.Suite, err)
	}

	stored, err := target.GetBenchmarkQueries(ctx, tables.Queries, suite.Info.QuerySet)
	if err != nil {
		return err
	}
	existing := make(map[string]benchmark.BenchmarkQuery, len(stored))
	for _, q := range stored {
		existing[q.Name] = q
	}

	for _, q := range suite.Queries {
		if prev, ok := existing[q.Name]; ok && q.QuerySet == prev.QuerySet {
			if prev != q {
				return fmt.Errorf("%w: %s/%s", ErrQueryConflict, q.QuerySet, q.Name)
			}
			continue
		}
		if err := target.InsertBenchmarkQuery(ctx, tables.Queries, q); err != nil {
			return fmt.Errorf("insert query %s/%s: %w", q.QuerySet, q.Name, err)
		}
	}
	return nil
}
