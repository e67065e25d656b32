// Package benchtest provides canonical benchmark suite fixtures and an
// ephemeral suite store for tests.
//
// The store helpers write rows directly and return driver errors unchanged,
// so a failing setup fails the calling test with the original cause.
package benchtest

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/rs/xid"

	"benchsuite/pkg/benchmark"
	"benchsuite/pkg/suitedb"
)

const (
	Catalog   = "benchmark"
	Schema    = "default"
	CreatedBy = "benchmark"
)

// SetupStorage creates the suites and queries tables under their default
// names. It fails if either table exists already.
func SetupStorage(ctx context.Context, dao *suitedb.Dao) error {
	if err := dao.CreateBenchmarkSuitesTable(ctx, suitedb.DefaultSuitesTable); err != nil {
		return err
	}
	return dao.CreateBenchmarkQueriesTable(ctx, suitedb.DefaultQueriesTable)
}

func InsertBenchmarkQuery(ctx context.Context, dao *suitedb.Dao, querySet, name, query string) error {
	stmt := dao.InsertStatement(suitedb.DefaultQueriesTable,
		[]string{"query_set", "name", "query"},
		suitedb.Fixed{Column: "catalog", Value: Catalog},
		suitedb.Fixed{Column: "schema", Value: Schema},
	)
	return dao.Exec(ctx, stmt, querySet, name, query)
}

// InsertBenchmarkSuite inserts a suite row. phases and sessionProperties are
// the serialized column payloads.
func InsertBenchmarkSuite(ctx context.Context, dao *suitedb.Dao, suite, querySet, phases, sessionProperties string) error {
	stmt := dao.InsertStatement(suitedb.DefaultSuitesTable,
		[]string{"suite", "query_set", "phases", "session_properties"},
		suitedb.Fixed{Column: "created_by", Value: CreatedBy},
	)
	return dao.Exec(ctx, stmt, suite, querySet, phases, sessionProperties)
}

func BenchmarkSuitePhases() []benchmark.PhaseSpecification {
	streams := [][]string{{"Q1", "Q2"}, {"Q2", "Q3"}}
	streamExecutionPhase := benchmark.NewStreamExecutionPhase("Phase-1", streams)

	queries := []string{"Q1", "Q2", "Q3"}
	concurrentExecutionPhase := benchmark.NewConcurrentExecutionPhase("Phase-2", queries)

	return []benchmark.PhaseSpecification{streamExecutionPhase, concurrentExecutionPhase}
}

func BenchmarkSuiteSessionProperties() benchmark.SessionProperties {
	return benchmark.SessionPropertiesOf("max", "5")
}

func BenchmarkSuiteObject(suite, querySet string) benchmark.BenchmarkSuite {
	queries := []benchmark.BenchmarkQuery{
		benchmark.NewBenchmarkQuery(querySet, "Q1", "SELECT 1", Catalog, Schema),
		benchmark.NewBenchmarkQuery(querySet, "Q2", "SELECT 2", Catalog, Schema),
		benchmark.NewBenchmarkQuery(querySet, "Q3", "SELECT 3", Catalog, Schema),
	}

	info := benchmark.NewBenchmarkSuiteInfo(suite, querySet, BenchmarkSuitePhases(), BenchmarkSuiteSessionProperties())
	return benchmark.NewBenchmarkSuite(info, queries)
}

// SuitePhasesJSON returns the serialized fixture phases.
func SuitePhasesJSON() string {
	b, err := benchmark.MarshalPhases(BenchmarkSuitePhases())
	if err != nil {
		panic(err)
	}
	return string(b)
}

func SuiteSessionPropertiesJSON() string {
	b, err := BenchmarkSuiteSessionProperties().MarshalJSON()
	if err != nil {
		panic(err)
	}
	return string(b)
}

// NewTestStore opens an empty in-memory SQLite database private to the test.
// The database lives as long as its single connection and is closed when the
// test finishes.
func NewTestStore(t testing.TB) (*sql.DB, *suitedb.Dao) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", xid.New())
	db, err := sql.Open(suitedb.SQLite.Driver, dsn)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)
	t.Cleanup(func() { db.Close() })

	if err := db.Ping(); err != nil {
		t.Fatalf("ping test store: %v", err)
	}
	return db, suitedb.NewDao(db, suitedb.SQLite)
}

// NewProvisionedStore returns a test store with both tables created and the
// fixture suite stored under the given names.
func NewProvisionedStore(t testing.TB, suite, querySet string) (*sql.DB, *suitedb.Dao) {
	t.Helper()

	db, dao := NewTestStore(t)
	ctx := context.Background()
	if err := SetupStorage(ctx, dao); err != nil {
		t.Fatalf("setup storage: %v", err)
	}
	for _, q := range BenchmarkSuiteObject(suite, querySet).Queries {
		if err := InsertBenchmarkQuery(ctx, dao, q.QuerySet, q.Name, q.Query); err != nil {
			t.Fatalf("insert query %s: %v", q.Name, err)
		}
	}
	if err := InsertBenchmarkSuite(ctx, dao, suite, querySet, SuitePhasesJSON(), SuiteSessionPropertiesJSON()); err != nil {
		t.Fatalf("insert suite: %v", err)
	}
	return db, dao
}
