package commands

import (
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportMetric(t *testing.T) {
	reg := prometheus.NewRegistry()
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "suite_run_total", Help: "runs"}, []string{"status"})
	durations := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "suite_run_query_duration_seconds",
		Help:    "durations",
		Buckets: []float64{1, 2, 4},
	})
	reg.MustRegister(runs, durations)
	runs.WithLabelValues("ok").Add(2)
	durations.Observe(0.5)
	durations.Observe(3)

	families, err := reg.Gather()
	require.NoError(t, err)

	var out bytes.Buffer
	for _, mf := range families {
		reportMetric(&out, mf, "  ")
	}
	assert.Equal(t, `suite_run_query_duration_seconds
  {}: samples=2 sum=3.5 avg=1.75
    (0, 1]: 1
    (2, 4]: 1
suite_run_total
  {status=ok}: 2
`, out.String())
}
