package stats

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	type run struct{ ms float64 }
	runs := []run{{40}, {10}, {30}, {20}}

	m := Summarize(runs, func(r run) float64 { return r.ms })
	assert.Equal(t, 100.0, m.Sum)
	assert.Equal(t, 10.0, m.Min)
	assert.Equal(t, 40.0, m.Max)
	assert.Equal(t, 25.0, m.Avg)
	assert.Equal(t, 25.0, m.Median)
	assert.InDelta(t, 12.9099, m.Stddev, 1e-4)
	assert.Len(t, m.Histogram.Counts, 10)
	assert.Equal(t, 4, sum(m.Histogram.Counts))

	assert.Equal(t, DistMetrics{}, Summarize([]run(nil), func(r run) float64 { return r.ms }))
}

func sum(counts []int) (n int) {
	for _, c := range counts {
		n += c
	}
	return n
}

func TestNewHistogram(t *testing.T) {
	h := NewHistogram([]float64{-1, 0, 1, 5, 9.9, 10, 11}, 0, 10, 5)
	assert.Equal(t, []float64{1, 3, 5, 7, 9}, h.Buckets)
	assert.Equal(t, []int{3, 0, 1, 0, 3}, h.Counts)

	same := NewHistogram([]float64{3, 3, 3}, 3, 3, 2)
	assert.Equal(t, []int{0, 3}, same.Counts)
}

func TestMedianAndMean(t *testing.T) {
	assert.Equal(t, 2.0, MedianOf([]float64{3, 1, 2}, self))
	assert.Equal(t, 2.5, MedianOf([]float64{4, 1, 3, 2}, self))
	assert.Zero(t, MedianOf(nil, self))

	assert.Equal(t, 2.0, Mean([]float64{1, 2, 3}))
	assert.Zero(t, Mean(nil))
	assert.Zero(t, Stddev([]float64{5}))
	assert.InDelta(t, 1.0, Stddev([]float64{1, 2, 3}), 1e-12)
}

func TestGeoMean(t *testing.T) {
	assert.InDelta(t, 4.0, GeoMeanOf(slices.Values([]float64{2, 8}), self), 1e-9)
	assert.Zero(t, GeoMeanOf(slices.Values([]float64{}), self))
	assert.Panics(t, func() { GeoMeanOf(slices.Values([]float64{1, 0}), self) })
}

func TestSumIsCompensated(t *testing.T) {
	values := make([]float64, 10)
	for i := range values {
		values[i] = 0.1
	}
	assert.InDelta(t, 1.0, Sum(values), 1e-15)
}

func TestExpBuckets(t *testing.T) {
	assert.Equal(t, []float64{1, 2, 4, 8}, ExpBuckets(1, 2, 10))
	assert.Equal(t, []float64{0.5}, ExpBuckets(0.5, 4, 1))
}
