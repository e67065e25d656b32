package client

import (
	"cmp"
	"context"
	"errors"
	"iter"
	"maps"
	"net/url"
	"slices"
	"time"

	"benchsuite/api/benchdriverapi"
	"benchsuite/pkg/stats"
)

type SuiteReport struct {
	Suite         string             `json:"suite"`
	Runners       []SuiteRunnerStats `json:"runners"`
	Failed        int                `json:"failed"`
	QuerySetTotal stats.DistMetrics  `json:"query_set_total"`
	GeometricMean stats.DistMetrics  `json:"geometric_mean"`
}

type SuiteRunnerStats struct {
	RunID         string                     `json:"run_id"`
	Started       time.Time                  `json:"started"`
	Duration      Duration                   `json:"duration"`
	Phases        map[string]SuitePhaseStats `json:"phases"`
	Queries       map[string]QueryOpStats    `json:"queries"`
	Errors        int                        `json:"errors"`
	Total         Duration                   `json:"total"`           // total time of all queries
	QuerySetTotal Duration                   `json:"query_set_total"` // sum of average time of all queries
	GeometricMean float64                    `json:"geometric_mean"`  // geometric mean of average query times in ms
}

type SuitePhaseStats struct {
	Strategy     string     `json:"strategy"`
	Measurements []Duration `json:"measurements"`
	Avg          float64    `json:"avg"`
}

type QueryOpStats struct {
	Measurements []Duration `json:"measurements"`
	Errors       int        `json:"errors"`
	Min          Duration   `json:"min"`
	Max          Duration   `json:"max"`
	Avg          float64    `json:"avg"`
	Median       Duration   `json:"median"`
	Stddev       float64    `json:"stddev"`
}

type Duration = benchdriverapi.Duration

type BenchmarkSuiteInstance BenchmarkInstance

func (inst *BenchmarkInstance) Suite() *BenchmarkSuiteInstance {
	return (*BenchmarkSuiteInstance)(inst)
}

func (s *BenchmarkSuiteInstance) access() *BenchmarkInstance {
	return (*BenchmarkInstance)(s)
}

// Result collects the last run of every worker. With allowErr set, failed
// runs are counted but not reported.
func (s *BenchmarkSuiteInstance) Result(ctx context.Context, wait bool, allowErr bool) (report SuiteReport, err error) {
	inst := s.access()
	sc := collector[benchdriverapi.SuiteWorkerStatus]{
		client:   inst.parent.http,
		path:     "status",
		validate: ValidateStatus[benchdriverapi.SuiteRunStats](benchdriverapi.TaskSuiteRun, allowErr),
		interval: inst.interval,
	}
	results, err := sc.collect(ctx, inst.WorkerURLs(), wait)
	if err != nil {
		return report, err
	}

	failed := len(results)
	runs := benchdriverapi.CollectValues(results)
	failed -= len(runs)

	report = ComputeSuiteReport(runs)
	report.Failed += failed
	return report, nil
}

// Describe reads the configured suite from the store of every worker group.
// The descriptions are returned in group order.
func (s *BenchmarkSuiteInstance) Describe(ctx context.Context) ([]benchdriverapi.SuiteDescription, error) {
	inst := s.access()
	name, _ := inst.config.Config["suite"].(string)
	if name == "" {
		return nil, errors.New("no suite configured")
	}

	query := url.Values{}
	for _, key := range []string{"suites_table", "queries_table"} {
		if table, ok := inst.config.Config[key].(string); ok && table != "" {
			query.Set(key, table)
		}
	}

	dc := collector[benchdriverapi.SuiteDescription]{
		client: inst.parent.http,
		path:   "suites/" + name,
		query:  query,
	}
	return dc.collect(ctx, inst.GroupURLs(), false)
}

func ComputeSuiteReport(runs []benchdriverapi.SuiteRunStats) SuiteReport {
	var report SuiteReport
	runnerStats := make([]SuiteRunnerStats, 0, len(runs))
	for _, r := range runs {
		if report.Suite == "" {
			report.Suite = r.Suite
		}
		if r.Failed() {
			report.Failed++
		}
		runnerStats = append(runnerStats, computeSuiteRunnerStats(r))
	}

	report.Runners = runnerStats
	report.QuerySetTotal = stats.Summarize(runnerStats, func(r SuiteRunnerStats) float64 {
		return r.QuerySetTotal.Seconds() * 1000
	})
	report.GeometricMean = stats.Summarize(runnerStats, func(r SuiteRunnerStats) float64 {
		return r.GeometricMean
	})
	return report
}

func asMillis(d Duration) float64 { return d.Seconds() * 1000 }

func computeSuiteRunnerStats(r benchdriverapi.SuiteRunStats) SuiteRunnerStats {
	phases := make(map[string]SuitePhaseStats)
	ops := make(map[string]QueryOpStats)
	errs := 0

	for _, phase := range r.Phases {
		ps := phases[phase.Name]
		ps.Strategy = phase.Strategy
		ps.Measurements = append(ps.Measurements, phase.Duration)
		phases[phase.Name] = ps

		for _, q := range phase.Queries {
			op := ops[q.Name]
			if q.Error != "" {
				op.Errors++
				errs++
			} else {
				op.Measurements = append(op.Measurements, q.Duration)
			}
			ops[q.Name] = op
		}
	}

	for k, ps := range phases {
		ps.Avg = stats.MeanOf(ps.Measurements, asMillis)
		phases[k] = ps
	}

	for k, op := range ops {
		if len(op.Measurements) == 0 {
			continue
		}

		slices.SortFunc(op.Measurements, func(a, b Duration) int {
			return cmp.Compare(a.Duration, b.Duration)
		})
		op.Min = op.Measurements[0]
		op.Max = op.Measurements[len(op.Measurements)-1]
		op.Median = Duration{Duration: time.Duration(stats.MedianOf(op.Measurements, func(d Duration) float64 {
			return float64(d.Duration)
		}))}
		op.Avg = stats.MeanOf(op.Measurements, asMillis)
		op.Stddev = stats.StddevOf(op.Measurements, asMillis)
		ops[k] = op
	}

	var total Duration
	var querySetTotal Duration
	for _, op := range ops {
		for _, m := range op.Measurements {
			total.Duration += m.Duration
		}
		querySetTotal.Duration += time.Duration(op.Avg * float64(time.Millisecond))
	}

	var measured iter.Seq[QueryOpStats] = func(yield func(QueryOpStats) bool) {
		for op := range maps.Values(ops) {
			if op.Avg > 0 && !yield(op) {
				return
			}
		}
	}
	geom := stats.GeoMeanOf(measured, func(op QueryOpStats) float64 { return op.Avg })

	return SuiteRunnerStats{
		RunID:         r.RunID,
		Started:       r.Started,
		Duration:      r.Duration,
		Phases:        phases,
		Queries:       ops,
		Errors:        errs,
		Total:         total,
		QuerySetTotal: querySetTotal,
		GeometricMean: geom,
	}
}
