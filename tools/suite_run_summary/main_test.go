package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benchsuite/pkg/client"
	"benchsuite/pkg/stats"
)

func ms(n int) client.Duration {
	return client.Duration{Duration: time.Duration(n) * time.Millisecond}
}

func runner(geom float64, q1, q2 float64) client.SuiteRunnerStats {
	return client.SuiteRunnerStats{
		GeometricMean: geom,
		Queries: map[string]client.QueryOpStats{
			"Q1": {Measurements: []client.Duration{ms(int(q1))}, Avg: q1},
			"Q2": {Measurements: []client.Duration{ms(int(q2))}, Avg: q2},
			"Q3": {Errors: 1},
		},
	}
}

func TestSummarize(t *testing.T) {
	report := client.SuiteReport{
		Suite:         "S",
		Runners:       []client.SuiteRunnerStats{runner(10, 10, 20), runner(30, 30, 40)},
		Failed:        1,
		QuerySetTotal: stats.DistMetrics{Avg: 50},
		GeometricMean: stats.DistMetrics{Avg: 20},
	}

	s := summarize("run1.json", report)
	assert.Equal(t, "S", s.Suite)
	assert.Equal(t, 2, s.Runners)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, map[string]float64{"Q1": 20, "Q2": 30}, s.Queries)
	assert.InDelta(t, 50.0, s.QuerySetTotal, 1e-9)
	assert.InDelta(t, 20.0, s.GeometricMean, 1e-9)
	assert.InDelta(t, 20.0, s.GeometricMeanMedian, 1e-9)
}

func TestSummarizeWithoutRunners(t *testing.T) {
	s := summarize("empty.json", client.SuiteReport{Suite: "S", Failed: 2})
	assert.Zero(t, s.Runners)
	assert.Empty(t, s.Queries)
	assert.Zero(t, s.GeometricMeanMedian)
}

func TestFileSummaryAndPrint(t *testing.T) {
	report := client.SuiteReport{Suite: "S", Runners: []client.SuiteRunnerStats{runner(15, 10, 20)}}
	raw, err := json.Marshal(report)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "a.json")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	s, err := fileSummary(path)
	require.NoError(t, err)
	assert.Equal(t, "a.json", s.Name)
	assert.InDelta(t, 10.0, s.Queries["Q1"], 1e-9)

	other := s
	other.Name = "b.json"
	other.Queries = map[string]float64{"Q1": 12, "Q4": 1}

	var buf bytes.Buffer
	printSummary(&buf, []FileSummary{s, other})
	out := buf.String()
	assert.Contains(t, out, "a.json")
	assert.Contains(t, out, "b.json")
	assert.Contains(t, out, "Q4")
	assert.Contains(t, out, "12.00")

	_, err = fileSummary(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
