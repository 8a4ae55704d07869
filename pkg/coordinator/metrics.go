package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "wabisabi"
	metricsSubsystem = "coordinator"
)

type metrics struct {
	// request: input_registration/connection_confirmation/..., code: ok or the error code
	requestsTotal    *prometheus.CounterVec
	registeredInputs *prometheus.GaugeVec
	roundPhase       *prometheus.GaugeVec
	roundsEndedTotal *prometheus.CounterVec
}

// newMetrics registers the coordinator metrics on reg. A nil reg leaves them
// unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "requests_total",
				Help:      "Total number of handled requests",
			},
			[]string{"request", "code"},
		),
		registeredInputs: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "registered_inputs",
				Help:      "Number of inputs registered in a round",
			},
			[]string{"round"},
		),
		roundPhase: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "round_phase",
				Help:      "Current phase of a round",
			},
			[]string{"round"},
		),
		roundsEndedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "rounds_ended_total",
				Help:      "Total number of ended rounds",
			},
			[]string{"end_state"},
		),
	}
}

// forgetRound deletes the per-round series of the round with the given id.
func (m *metrics) forgetRound(id string) {
	m.registeredInputs.DeleteLabelValues(id)
	m.roundPhase.DeleteLabelValues(id)
}
