package infra

import (
	"context"

	"viewing-slots/booking/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusStats exporta as decisões do allocator.
//
// Só o resultado vira label; resource id e holder ficam de fora por cardinalidade.
type PrometheusStats struct {
	outcomes *prometheus.CounterVec
	wait     prometheus.Histogram
	took     prometheus.Histogram
}

func NewPrometheusStats(reg prometheus.Registerer) *PrometheusStats {
	s := &PrometheusStats{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_reserve_total",
			Help: "Number of reserve decisions by outcome",
		}, []string{"outcome"}),
		wait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "booking_lock_wait_seconds",
			Help:    "Histogram of time spent waiting for resource exclusivity",
			Buckets: prometheus.ExponentialBuckets(1e-4, 4, 9),
		}),
		took: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "booking_reserve_seconds",
			Help:    "Histogram of reserve call durations",
			Buckets: prometheus.ExponentialBuckets(1e-4, 4, 9),
		}),
	}
	reg.MustRegister(s.outcomes, s.wait, s.took)
	return s
}

func (s *PrometheusStats) Record(_ context.Context, ev domain.AdmissionEvent) error {
	s.outcomes.WithLabelValues(string(ev.Outcome)).Inc()
	s.wait.Observe(ev.Wait.Seconds())
	s.took.Observe(ev.Took.Seconds())
	return nil
}
