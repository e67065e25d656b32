package benchtest

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benchsuite/pkg/benchmark"
	"benchsuite/pkg/suitedb"
)

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+suitedb.SQLite.Quote(table)).Scan(&n))
	return n
}

func TestBenchmarkSuitePhasesDeterministic(t *testing.T) {
	assert.Equal(t, BenchmarkSuitePhases(), BenchmarkSuitePhases())
}

func TestBenchmarkSuitePhases(t *testing.T) {
	phases := BenchmarkSuitePhases()
	require.Len(t, phases, 2)

	stream, ok := phases[0].(benchmark.StreamExecutionPhase)
	require.True(t, ok, "first phase is %T", phases[0])
	assert.Equal(t, "Phase-1", stream.PhaseName())
	assert.Equal(t, benchmark.StrategyStream, stream.ExecutionStrategy())
	assert.Equal(t, [][]string{{"Q1", "Q2"}, {"Q2", "Q3"}}, stream.Streams)

	concurrent, ok := phases[1].(benchmark.ConcurrentExecutionPhase)
	require.True(t, ok, "second phase is %T", phases[1])
	assert.Equal(t, "Phase-2", concurrent.PhaseName())
	assert.Equal(t, benchmark.StrategyConcurrent, concurrent.ExecutionStrategy())
	assert.ElementsMatch(t, []string{"Q3", "Q2", "Q1"}, concurrent.Queries)
}

func TestBenchmarkSuiteSessionProperties(t *testing.T) {
	props := BenchmarkSuiteSessionProperties()
	assert.Equal(t, map[string]string{"max": "5"}, props.Map())
}

func TestBenchmarkSuiteObject(t *testing.T) {
	suite := BenchmarkSuiteObject("S", "QS")
	assert.Equal(t, "S", suite.Info.Suite)
	assert.Equal(t, "QS", suite.Info.QuerySet)
	assert.Equal(t, BenchmarkSuitePhases(), suite.Info.Phases)
	assert.True(t, suite.Info.SessionProperties.Equal(BenchmarkSuiteSessionProperties()))

	require.Len(t, suite.Queries, 3)
	for i, name := range []string{"Q1", "Q2", "Q3"} {
		q := suite.Queries[i]
		assert.Equal(t, name, q.Name)
		assert.Equal(t, "QS", q.QuerySet)
		assert.Equal(t, "benchmark", q.Catalog)
		assert.Equal(t, "default", q.Schema)
	}
	assert.Equal(t, "SELECT 2", suite.Queries[1].Query)

	assert.Equal(t, suite, BenchmarkSuiteObject("S", "QS"))
	assert.NoError(t, suite.Validate())
}

func TestSetupStorage(t *testing.T) {
	ctx := context.Background()
	db, dao := NewTestStore(t)
	require.NoError(t, SetupStorage(ctx, dao))

	require.NoError(t, InsertBenchmarkQuery(ctx, dao, "QS", "Q1", "SELECT 1"))
	require.NoError(t, InsertBenchmarkSuite(ctx, dao, "S", "QS", SuitePhasesJSON(), SuiteSessionPropertiesJSON()))

	assert.Equal(t, 1, countRows(t, db, suitedb.DefaultQueriesTable))
	assert.Equal(t, 1, countRows(t, db, suitedb.DefaultSuitesTable))

	var catalog, schema string
	require.NoError(t, db.QueryRow(`SELECT "catalog", "schema" FROM benchmark_queries WHERE name = 'Q1'`).Scan(&catalog, &schema))
	assert.Equal(t, Catalog, catalog)
	assert.Equal(t, Schema, schema)

	var createdBy string
	require.NoError(t, db.QueryRow(`SELECT created_by FROM benchmark_suites WHERE suite = 'S'`).Scan(&createdBy))
	assert.Equal(t, CreatedBy, createdBy)
}

func TestSetupStorageTwiceFails(t *testing.T) {
	ctx := context.Background()
	_, dao := NewTestStore(t)
	require.NoError(t, SetupStorage(ctx, dao))
	assert.Error(t, SetupStorage(ctx, dao))
}

func TestSetupStorageClosedConnection(t *testing.T) {
	db, dao := NewTestStore(t)
	require.NoError(t, db.Close())
	assert.Error(t, SetupStorage(context.Background(), dao))
}

func TestInsertBenchmarkQueryDuplicate(t *testing.T) {
	ctx := context.Background()
	db, dao := NewTestStore(t)
	require.NoError(t, SetupStorage(ctx, dao))

	require.NoError(t, InsertBenchmarkQuery(ctx, dao, "QS", "Q1", "SELECT 1"))
	require.Equal(t, 1, countRows(t, db, suitedb.DefaultQueriesTable))

	err := InsertBenchmarkQuery(ctx, dao, "QS", "Q1", "SELECT 42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UNIQUE")
	assert.Equal(t, 1, countRows(t, db, suitedb.DefaultQueriesTable))

	// same name in another query set is fine
	require.NoError(t, InsertBenchmarkQuery(ctx, dao, "other", "Q1", "SELECT 1"))
	assert.Equal(t, 2, countRows(t, db, suitedb.DefaultQueriesTable))
}

func TestInsertBenchmarkSuiteDuplicate(t *testing.T) {
	ctx := context.Background()
	db, dao := NewTestStore(t)
	require.NoError(t, SetupStorage(ctx, dao))

	require.NoError(t, InsertBenchmarkSuite(ctx, dao, "S", "QS", SuitePhasesJSON(), SuiteSessionPropertiesJSON()))
	assert.Error(t, InsertBenchmarkSuite(ctx, dao, "S", "QS2", SuitePhasesJSON(), SuiteSessionPropertiesJSON()))
	assert.Equal(t, 1, countRows(t, db, suitedb.DefaultSuitesTable))
}

func TestInsertWithoutTables(t *testing.T) {
	_, dao := NewTestStore(t)
	assert.Error(t, InsertBenchmarkQuery(context.Background(), dao, "QS", "Q1", "SELECT 1"))
}

func TestProvisionedStoreLoadsFixture(t *testing.T) {
	_, dao := NewProvisionedStore(t, "S", "QS")

	suite, err := suitedb.NewSupplier(dao, suitedb.DefaultTables).Load(context.Background(), "S")
	require.NoError(t, err)
	assert.Equal(t, BenchmarkSuiteObject("S", "QS"), suite)
}

func TestFixturePayloads(t *testing.T) {
	assert.JSONEq(t, `{"max":"5"}`, SuiteSessionPropertiesJSON())

	phases, err := benchmark.UnmarshalPhases([]byte(SuitePhasesJSON()))
	require.NoError(t, err)
	assert.Equal(t, BenchmarkSuitePhases(), phases)
}
