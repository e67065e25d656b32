package suiterun

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benchsuite/api/benchdriverapi"
	"benchsuite/pkg/benchmark"
	"benchsuite/pkg/benchtest"
	"benchsuite/pkg/suitedb"
)

// inflight counts the `SELECT hold()` calls running at the same time.
type inflight struct {
	hold time.Duration

	mu      sync.Mutex
	current int
	peak    int
}

func (f *inflight) run() int64 {
	f.mu.Lock()
	f.current++
	f.peak = max(f.peak, f.current)
	f.mu.Unlock()

	time.Sleep(f.hold)

	f.mu.Lock()
	f.current--
	f.mu.Unlock()
	return 1
}

func (f *inflight) Peak() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}

const inflightDriver = "sqlite3_inflight"

var (
	registerInflight sync.Once
	activeMu         sync.Mutex
	active           *inflight
)

// openInflightTarget opens a SQLite target without a connection limit. Every
// connection gets its own in-memory database and a hold() function that
// blocks for the given duration.
func openInflightTarget(t *testing.T, hold time.Duration) (*sql.DB, *inflight) {
	t.Helper()
	registerInflight.Do(func() {
		sql.Register(inflightDriver, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return conn.RegisterFunc("hold", func() int64 {
					activeMu.Lock()
					f := active
					activeMu.Unlock()
					return f.run()
				}, false)
			},
		})
	})

	f := &inflight{hold: hold}
	activeMu.Lock()
	active = f
	activeMu.Unlock()

	db, err := sql.Open(inflightDriver, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, f
}

func holdSuite(n int, phases ...benchmark.PhaseSpecification) benchmark.BenchmarkSuite {
	queries := make([]benchmark.BenchmarkQuery, n)
	for i := range queries {
		queries[i] = benchmark.NewBenchmarkQuery("QS", fmt.Sprintf("Q%d", i+1), "SELECT hold()", benchtest.Catalog, benchtest.Schema)
	}
	info := benchmark.NewBenchmarkSuiteInfo("S", "QS", phases, benchmark.SessionPropertiesOf("benchsuite.max", "5"))
	return benchmark.NewBenchmarkSuite(info, queries)
}

func runHoldSuite(t *testing.T, db *sql.DB, suite benchmark.BenchmarkSuite, opts RunOptions) benchdriverapi.SuiteRunStats {
	t.Helper()
	require.NoError(t, suite.Validate())
	tester := NewTester(db, suitedb.SQLite, nil, suitedb.Tables{})
	stats, err := tester.RunSuite(context.Background(), &suite, opts)
	require.NoError(t, err)
	return stats
}

func TestConcurrentPhaseRespectsMaxConcurrency(t *testing.T) {
	db, f := openInflightTarget(t, 30*time.Millisecond)
	suite := holdSuite(6, benchmark.NewConcurrentExecutionPhase("P", []string{"Q1", "Q2", "Q3", "Q4", "Q5", "Q6"}))

	stats := runHoldSuite(t, db, suite, RunOptions{MaxConcurrency: 2})

	require.Len(t, stats.Phases, 1)
	assert.Len(t, stats.Phases[0].Queries, 6)
	assert.LessOrEqual(t, f.Peak(), 2)
	assert.Equal(t, 2, f.Peak())
}

func TestConcurrentPhaseUnbounded(t *testing.T) {
	db, f := openInflightTarget(t, 50*time.Millisecond)
	suite := holdSuite(4, benchmark.NewConcurrentExecutionPhase("P", []string{"Q1", "Q2", "Q3", "Q4"}))

	stats := runHoldSuite(t, db, suite, RunOptions{})

	assert.Len(t, stats.Phases[0].Queries, 4)
	assert.Greater(t, f.Peak(), 1)
	assert.LessOrEqual(t, f.Peak(), 4)
}

func TestStreamsRunInParallel(t *testing.T) {
	db, f := openInflightTarget(t, 30*time.Millisecond)
	suite := holdSuite(6, benchmark.NewStreamExecutionPhase("P", [][]string{
		{"Q1", "Q2"},
		{"Q3", "Q4"},
		{"Q5", "Q6"},
	}))

	stats := runHoldSuite(t, db, suite, RunOptions{MaxConcurrency: 1})

	assert.Greater(t, f.Peak(), 1, "streams overlap")
	assert.LessOrEqual(t, f.Peak(), 3, "queries of one stream run in order")

	byStream := map[int][]string{}
	for _, q := range stats.Phases[0].Queries {
		byStream[q.Stream] = append(byStream[q.Stream], q.Name)
	}
	assert.Equal(t, map[int][]string{
		0: {"Q1", "Q2"},
		1: {"Q3", "Q4"},
		2: {"Q5", "Q6"},
	}, byStream)
}

func TestPhasesDoNotOverlap(t *testing.T) {
	db, f := openInflightTarget(t, 30*time.Millisecond)
	suite := holdSuite(4,
		benchmark.NewConcurrentExecutionPhase("P1", []string{"Q1", "Q2"}),
		benchmark.NewConcurrentExecutionPhase("P2", []string{"Q3", "Q4"}),
	)

	stats := runHoldSuite(t, db, suite, RunOptions{})

	require.Len(t, stats.Phases, 2)
	assert.LessOrEqual(t, f.Peak(), 2)
}
