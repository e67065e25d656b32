// Package stats computes the distribution metrics used in benchmark reports.
//
// Functions taking a selector apply it to every item first. Empty inputs
// yield zero values.
package stats

import (
	"fmt"
	"iter"
	"math"
	"slices"
)

type Histogram struct {
	Buckets []float64 `json:"buckets"` // bucket centers
	Counts  []int     `json:"counts"`
}

type DistMetrics struct {
	Sum       float64   `json:"sum"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	Avg       float64   `json:"avg"`
	Median    float64   `json:"median"`
	Stddev    float64   `json:"stddev"`
	Histogram Histogram `json:"histogram"`
}

const histogramBuckets = 10

// Summarize computes the distribution of fn over items.
func Summarize[T any](items []T, fn func(T) float64) DistMetrics {
	if len(items) == 0 {
		return DistMetrics{}
	}

	values := sortedValues(items, fn)
	lo, hi := values[0], values[len(values)-1]
	return DistMetrics{
		Sum:       Sum(values),
		Min:       lo,
		Max:       hi,
		Avg:       Mean(values),
		Median:    median(values),
		Stddev:    Stddev(values),
		Histogram: NewHistogram(values, lo, hi, histogramBuckets),
	}
}

func sortedValues[T any](items []T, fn func(T) float64) []float64 {
	values := make([]float64, len(items))
	for i, item := range items {
		values[i] = fn(item)
	}
	slices.Sort(values)
	return values
}

func self(v float64) float64 { return v }

// kahan is a compensated float64 accumulator.
type kahan struct {
	sum, c float64
}

func (k *kahan) add(v float64) {
	y := v - k.c
	t := k.sum + y
	k.c = (t - k.sum) - y
	k.sum = t
}

func SumOf[T any](items iter.Seq[T], fn func(T) float64) float64 {
	var k kahan
	for item := range items {
		k.add(fn(item))
	}
	return k.sum
}

func Sum(values []float64) float64 {
	return SumOf(slices.Values(values), self)
}

func MeanOf[T any](items []T, fn func(T) float64) float64 {
	if len(items) == 0 {
		return 0
	}
	return SumOf(slices.Values(items), fn) / float64(len(items))
}

func Mean(values []float64) float64 {
	return MeanOf(values, self)
}

// MedianOf averages the two middle values of even sized inputs.
func MedianOf[T any](items []T, fn func(T) float64) float64 {
	return median(sortedValues(items, fn))
}

func median(sorted []float64) float64 {
	n := len(sorted)
	switch {
	case n == 0:
		return 0
	case n%2 == 0:
		return (sorted[n/2-1] + sorted[n/2]) / 2
	default:
		return sorted[n/2]
	}
}

// StddevOf returns the sample standard deviation.
func StddevOf[T any](items []T, fn func(T) float64) float64 {
	n := len(items)
	if n < 2 {
		return 0
	}

	mean := MeanOf(items, fn)
	squares := SumOf(slices.Values(items), func(item T) float64 {
		d := fn(item) - mean
		return d * d
	})
	return math.Sqrt(squares / float64(n-1))
}

func Stddev(values []float64) float64 {
	return StddevOf(values, self)
}

// GeoMeanOf returns the geometric mean. It panics if fn yields a value that
// is not positive.
func GeoMeanOf[T any](items iter.Seq[T], fn func(T) float64) float64 {
	n := 0
	logs := SumOf(items, func(item T) float64 {
		v := fn(item)
		if v <= 0 {
			panic(fmt.Sprintf("geometric mean of non-positive value %v", v))
		}
		n++
		return math.Log(v)
	})
	if n == 0 {
		return 0
	}
	return math.Exp(logs / float64(n))
}

// NewHistogram distributes values over n equal width buckets spanning
// [lo, hi]. Values outside the range count into the first or last bucket.
func NewHistogram(values []float64, lo, hi float64, n int) Histogram {
	if n <= 0 {
		n = histogramBuckets
	}

	h := Histogram{
		Buckets: make([]float64, n),
		Counts:  make([]int, n),
	}
	width := (hi - lo) / float64(n)
	for i := range h.Buckets {
		h.Buckets[i] = lo + width*(float64(i)+0.5)
	}

	for _, v := range values {
		var i int
		switch {
		case v < lo:
			i = 0
		case v >= hi || width == 0:
			i = n - 1
		default:
			i = min(int((v-lo)/width), n-1)
		}
		h.Counts[i]++
	}
	return h
}

// ExpBuckets returns start, start*factor, ... up to and including limit.
func ExpBuckets(start, factor, limit float64) []float64 {
	var buckets []float64
	for b := start; b <= limit; b *= factor {
		buckets = append(buckets, b)
	}
	return buckets
}
