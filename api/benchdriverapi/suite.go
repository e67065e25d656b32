package benchdriverapi

import "time"

type SuiteWorkerStatus = WorkerStatus[Result[SuiteRunStats]]

const (
	TaskSuitePrepare TaskName = "suite/prepare"
	TaskSuiteRun     TaskName = "suite/run"
	TaskSuiteCleanup TaskName = "suite/cleanup"
)

type BenchmarkSuiteConfig struct {
	// Name of the suite to run. Required for run.
	Suite string `json:"suite"`

	// Table holding suite definitions. Default: benchmark_suites.
	SuitesTable *string `json:"suites_table"`

	// Table holding query definitions. Default: benchmark_queries.
	QueriesTable *string `json:"queries_table"`

	// Number of times all phases are executed. Default: 1.
	Count *int `json:"count"`

	// Upper bound of connections used by a concurrent phase. Default: 0 (one
	// connection per query).
	MaxConcurrency *int `json:"max_concurrency"`

	// Record query errors and keep going instead of aborting the run.
	// Default: false.
	ContinueOnError *bool `json:"continue_on_error"`

	// Transaction isolation level. Default: default (no explicit transaction).
	IsolationLevel *IsolationLevel `json:"isolation_level"`

	// Recreate the suite tables when preparing. Default: false.
	DropTables *bool `json:"drop_tables"`
}

type SuiteRunStats struct {
	RunID    string          `json:"run_id"`
	Suite    string          `json:"suite"`
	QuerySet string          `json:"query_set"`
	Started  time.Time       `json:"started"`
	Duration Duration        `json:"duration"`
	Phases   []PhaseRunStats `json:"phases"`
}

type PhaseRunStats struct {
	Name      string          `json:"name"`
	Strategy  string          `json:"strategy"`
	Iteration int             `json:"iteration"`
	Duration  Duration        `json:"duration"`
	Queries   []QueryRunStats `json:"queries"`
}

type QueryRunStats struct {
	Name string `json:"name"`

	// Stream index for stream phases, -1 for concurrent phases.
	Stream   int      `json:"stream"`
	Duration Duration `json:"duration"`
	Rows     int64    `json:"rows"`
	Error    string   `json:"error,omitempty"`
}

// Failed reports whether any query in the run recorded an error.
func (s *SuiteRunStats) Failed() bool {
	for _, phase := range s.Phases {
		for _, q := range phase.Queries {
			if q.Error != "" {
				return true
			}
		}
	}
	return false
}

// SuiteDescription is a stored suite as seen by a worker.
type SuiteDescription struct {
	Suite             string             `json:"suite"`
	QuerySet          string             `json:"query_set"`
	SessionProperties map[string]string  `json:"session_properties,omitempty"`
	Phases            []PhaseDescription `json:"phases"`
	Queries           []string           `json:"queries"`
}

type PhaseDescription struct {
	Name     string   `json:"name"`
	Strategy string   `json:"strategy"`
	Queries  []string `json:"queries"`
}
