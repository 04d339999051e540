// Package metrics holds the Prometheus collectors shared across the service.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "plantops"

// Delivery outcomes recorded by the masters projection.
const (
	OutcomeApplied   = "applied"
	OutcomeDiscarded = "discarded"
	OutcomeError     = "error"
)

var (
	// MastersDeliveries counts vocabulary document deliveries by outcome.
	MastersDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "masters_deliveries_total",
			Help:      "Vocabulary document deliveries seen by master projections",
		},
		[]string{"vocabulary", "outcome"},
	)

	// ActiveProjections is the number of started master projections.
	ActiveProjections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "masters_active_projections",
			Help:      "Number of running master projections",
		},
	)

	// ItemsCreated counts catalog items created, by path (single or bulk).
	ItemsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_created_total",
			Help:      "Catalog items created",
		},
		[]string{"mode"},
	)

	// SignIns counts sign-in attempts by result.
	SignIns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_sign_ins_total",
			Help:      "Sign-in attempts by result",
		},
		[]string{"result"},
	)
)

// ActiveSessions is the number of live sign-in sessions.
var ActiveSessions = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "auth_active_sessions",
		Help:      "Number of live sign-in sessions",
	},
)

func init() {
	prometheus.MustRegister(MastersDeliveries)
	prometheus.MustRegister(ActiveProjections)
	prometheus.MustRegister(ItemsCreated)
	prometheus.MustRegister(SignIns)
	prometheus.MustRegister(ActiveSessions)
}
