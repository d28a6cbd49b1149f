package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink mirrors exported telemetry into a Prometheus registry so
// the runtime binary can serve it over /metrics. It is a sink like any
// other: the pipeline stays bounded and non-blocking in front of it.
type PrometheusSink struct {
	events     *prometheus.CounterVec
	ticks      *prometheus.HistogramVec
	latency    *prometheus.HistogramVec
	violations *prometheus.CounterVec
	receipts   prometheus.Counter
}

// NewPrometheusSink builds a sink registered against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		return nil, fmt.Errorf("prometheus registerer is required")
	}
	s := &PrometheusSink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "twr",
			Name:      "telemetry_events_total",
			Help:      "Telemetry events exported, by kind.",
		}, []string{"kind"}),
		ticks: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "twr",
			Name:      "execution_ticks",
			Help:      "Ticks consumed per execution, by runtime class.",
			Buckets:   []float64{1, 2, 4, 8, 16, 64, 256, 1024},
		}, []string{"class"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "twr",
			Name:      "execution_latency_ns",
			Help:      "Wall latency per execution in nanoseconds, by runtime class.",
			Buckets:   prometheus.ExponentialBuckets(1, 10, 10),
		}, []string{"class"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "twr",
			Name:      "slo_violations_total",
			Help:      "SLO violations observed, by runtime class.",
		}, []string{"class"}),
		receipts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "twr",
			Name:      "receipts_total",
			Help:      "Execution receipts generated.",
		}),
	}
	for _, c := range []prometheus.Collector{s.events, s.ticks, s.latency, s.violations, s.receipts} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return s, nil
}

// Export records one telemetry event into the registry.
func (s *PrometheusSink) Export(_ context.Context, event Event) error {
	s.events.WithLabelValues(string(event.Kind)).Inc()
	if event.Kind != EventKindMetric || event.Metric == nil {
		return nil
	}
	class := event.Correlation.Class
	if class == "" {
		class = "unknown"
	}
	switch event.Metric.Name {
	case MetricTicksUsed:
		s.ticks.WithLabelValues(class).Observe(event.Metric.Value)
	case MetricLatencyNS:
		s.latency.WithLabelValues(class).Observe(event.Metric.Value)
	case MetricSLOViolations:
		s.violations.WithLabelValues(class).Add(event.Metric.Value)
	case MetricReceiptsTotal:
		s.receipts.Add(event.Metric.Value)
	}
	return nil
}
