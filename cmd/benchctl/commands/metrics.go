package commands

import (
	"fmt"
	"io"
	"strings"

	dto "github.com/prometheus/client_model/go"
)

// reportMetric prints one line per series of mf. Histograms list their
// non-empty buckets below the series line.
func reportMetric(w io.Writer, mf *dto.MetricFamily, indent string) {
	series := mf.GetMetric()
	if len(series) == 0 {
		return
	}

	header := mf.GetName()
	if unit := mf.GetUnit(); unit != "" {
		header += " (" + unit + ")"
	}
	fmt.Fprintln(w, header)

	for _, m := range series {
		fmt.Fprintf(w, "%s%s: %s\n", indent, formatLabels(m.GetLabel()), formatValue(mf.GetType(), m))
		if mf.GetType() == dto.MetricType_HISTOGRAM {
			reportBuckets(w, m.GetHistogram(), indent+indent)
		}
	}
}

func formatLabels(labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return "{}"
	}
	pairs := make([]string, len(labels))
	for i, l := range labels {
		pairs[i] = l.GetName() + "=" + l.GetValue()
	}
	return "{" + strings.Join(pairs, ", ") + "}"
}

func formatValue(typ dto.MetricType, m *dto.Metric) string {
	switch typ {
	case dto.MetricType_COUNTER:
		return fmt.Sprint(m.GetCounter().GetValue())
	case dto.MetricType_GAUGE:
		return fmt.Sprint(m.GetGauge().GetValue())
	case dto.MetricType_HISTOGRAM:
		h := m.GetHistogram()
		n, sum := h.GetSampleCount(), h.GetSampleSum()
		if n == 0 {
			return "samples=0"
		}
		return fmt.Sprintf("samples=%d sum=%g avg=%g", n, sum, sum/float64(n))
	default:
		return fmt.Sprint(m.GetUntyped().GetValue())
	}
}

func reportBuckets(w io.Writer, h *dto.Histogram, indent string) {
	var lower float64
	var seen uint64
	for _, b := range h.GetBucket() {
		if n := b.GetCumulativeCount() - seen; n > 0 {
			fmt.Fprintf(w, "%s(%g, %g]: %d\n", indent, lower, b.GetUpperBound(), n)
		}
		lower = b.GetUpperBound()
		seen = b.GetCumulativeCount()
	}
}
