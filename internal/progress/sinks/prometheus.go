package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/ned-harvester/internal/progress"
)

// PrometheusSink exports per-pool item counters, an in-flight gauge, and an
// item duration histogram.
type PrometheusSink struct {
	started  *prometheus.CounterVec
	settled  *prometheus.CounterVec
	inFlight *prometheus.GaugeVec
	duration *prometheus.HistogramVec
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_items_started_total",
			Help: "Work items started, by pool.",
		}, []string{"pool"}),
		settled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_items_settled_total",
			Help: "Work items settled, by pool and result.",
		}, []string{"pool", "result"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "harvester_items_in_flight",
			Help: "Work items started but not yet settled, by pool.",
		}, []string{"pool"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvester_item_duration_seconds",
			Help:    "Wall time per settled work item.",
			Buckets: []float64{0.01, 0.1, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"pool", "result"}),
	}
	for _, collector := range []prometheus.Collector{s.started, s.settled, s.inFlight, s.duration} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		if evt.Stage == progress.StageItemStart {
			s.started.WithLabelValues(evt.Pool).Inc()
			s.inFlight.WithLabelValues(evt.Pool).Inc()
			continue
		}
		result := resultLabel(evt.Stage)
		if result == "" {
			continue
		}
		s.settled.WithLabelValues(evt.Pool, result).Inc()
		s.inFlight.WithLabelValues(evt.Pool).Dec()
		if evt.Dur > 0 {
			s.duration.WithLabelValues(evt.Pool, result).Observe(evt.Dur.Seconds())
		}
	}
	return nil
}

func resultLabel(stage progress.Stage) string {
	switch stage {
	case progress.StageItemDone:
		return "completed"
	case progress.StageItemSkipped:
		return "skipped"
	case progress.StageItemError:
		return "failed"
	default:
		return ""
	}
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
