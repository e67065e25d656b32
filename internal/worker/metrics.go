package worker

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type MetricsGroup interface {
	RegisterMetrics(reg prometheus.Registerer)
}

// Lazy registers its group the first time a task asks for it. Workers that
// never run a task export no series for it.
type Lazy[T MetricsGroup] struct {
	once  sync.Once
	group T
	reg   prometheus.Registerer
}

func NewLazy[T MetricsGroup](group T, reg prometheus.Registerer) *Lazy[T] {
	return &Lazy[T]{group: group, reg: reg}
}

func (l *Lazy[T]) Get() T {
	l.once.Do(func() {
		if l.reg != nil {
			l.group.RegisterMetrics(l.reg)
		}
	})
	return l.group
}

// OpMetrics counts and times suite store maintenance operations by name.
type OpMetrics struct {
	Total    *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

func NewOpMetrics(namespace string) *OpMetrics {
	return &OpMetrics{
		Total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ops_total",
			Help:      "Number of store operations by outcome",
		}, []string{"op", "status"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "op_duration_seconds",
			Help:      "Duration of successful store operations",
		}, []string{"op"}),
	}
}

func (m *OpMetrics) RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(m.Total, m.Duration)
}

// Observe runs fn and records it as operation op. On a nil receiver it only
// runs fn.
func (m *OpMetrics) Observe(op string, fn func() error) error {
	if m == nil {
		return fn()
	}

	start := time.Now()
	if err := fn(); err != nil {
		m.Total.WithLabelValues(op, "error").Inc()
		return err
	}
	m.Total.WithLabelValues(op, "ok").Inc()
	m.Duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	return nil
}
