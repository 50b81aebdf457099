package coalescer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels used on the mutation counter, in addition to the Status values.
const (
	outcomeRejected = "rejected"
)

var (
	// MutationsTotal counts finished cart mutations by kind and outcome.
	MutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cart_mutations_total",
			Help: "Total number of cart mutations by kind and outcome (applied, superseded, failed, rejected)",
		},
		[]string{"kind", "outcome"},
	)

	// MutationsInFlight is the number of mutations awaiting a remote response.
	MutationsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_cart_mutations_in_flight",
			Help: "Number of cart mutations awaiting a response from the commerce API",
		},
	)

	// MutationDuration observes how long the commerce API took to answer a mutation.
	MutationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_cart_mutation_duration_seconds",
			Help:    "Duration of cart mutation round trips in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// SessionsActive is the number of sessions held by the registry.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_sessions_active",
			Help: "Number of storefront sessions with coalescer state in memory",
		},
	)

	// SessionsDraining is the number of evicted sessions with remote calls
	// still in flight.
	SessionsDraining = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_sessions_draining",
			Help: "Number of evicted storefront sessions waiting on in-flight cart mutations",
		},
	)
)
