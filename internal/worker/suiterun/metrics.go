package suiterun

import (
	"github.com/prometheus/client_golang/prometheus"

	"benchsuite/api/benchdriverapi"
	"benchsuite/internal/worker"
	"benchsuite/pkg/stats"
)

type suiteMetrics struct {
	Store *worker.OpMetrics
	Run   runMetrics
}

func newSuiteMetrics() *suiteMetrics {
	return &suiteMetrics{Store: worker.NewOpMetrics("suite_store")}
}

func (m *suiteMetrics) RegisterMetrics(r prometheus.Registerer) {
	m.Store.RegisterMetrics(r)
	m.Run.Register(r)
}

type runMetrics struct {
	Runs          *prometheus.CounterVec
	PhaseDuration *prometheus.HistogramVec
	QueryDuration *prometheus.HistogramVec
	QueryRows     *prometheus.CounterVec
	QueryErrors   *prometheus.CounterVec
	Completed     prometheus.Gauge
}

func (m *runMetrics) Register(r prometheus.Registerer) {
	name := func(n string) string { return "suite_run_" + n }
	durationBuckets := stats.ExpBuckets(0.001, 2, 3600)

	m.Runs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name("total"),
		Help: "Number of suite runs by outcome",
	}, []string{"suite", "status"})
	r.MustRegister(m.Runs)

	m.PhaseDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name("phase_duration_seconds"),
		Help:    "Duration of suite phases",
		Buckets: durationBuckets,
	}, []string{"suite", "phase", "strategy"})
	r.MustRegister(m.PhaseDuration)

	queryLabels := []string{"query_set", "phase", "query"}

	m.QueryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name("query_duration_seconds"),
		Help:    "Duration of successful benchmark queries",
		Buckets: durationBuckets,
	}, queryLabels)
	r.MustRegister(m.QueryDuration)

	m.QueryRows = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name("query_rows_total"),
		Help: "Rows returned by benchmark queries",
	}, queryLabels)
	r.MustRegister(m.QueryRows)

	m.QueryErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name("query_errors_total"),
		Help: "Number of failed benchmark queries",
	}, queryLabels)
	r.MustRegister(m.QueryErrors)

	m.Completed = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: name("completed_queries"),
		Help: "Queries completed by the active run",
	})
	r.MustRegister(m.Completed)
}

func (m *runMetrics) observeRun(suite string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Runs.WithLabelValues(suite, status).Inc()
}

func (m *runMetrics) observePhase(suite string, phase benchdriverapi.PhaseRunStats) {
	m.PhaseDuration.WithLabelValues(suite, phase.Name, phase.Strategy).Observe(phase.Duration.Seconds())
}

func (m *runMetrics) observeQuery(querySet, phase string, q benchdriverapi.QueryRunStats, err error) {
	labels := []string{querySet, phase, q.Name}
	if err != nil {
		m.QueryErrors.WithLabelValues(labels...).Inc()
		return
	}
	m.QueryDuration.WithLabelValues(labels...).Observe(q.Duration.Seconds())
	m.QueryRows.WithLabelValues(labels...).Add(float64(q.Rows))
}
