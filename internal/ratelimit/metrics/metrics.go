package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions   *prometheus.CounterVec
	StoreErrors prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_ratelimit_decisions_total",
			Help: "Rate limit decisions on public intake endpoints",
		}, []string{"decision"}),
		StoreErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_ratelimit_store_errors_total",
			Help: "Limit checks that failed open because the counter store errored",
		}),
	}
}

func (m *Metrics) IncrementAllowed() {
	m.Decisions.WithLabelValues("allowed").Inc()
}

func (m *Metrics) IncrementDenied() {
	m.Decisions.WithLabelValues("denied").Inc()
}

func (m *Metrics) IncrementStoreErrors() {
	m.StoreErrors.Inc()
}
