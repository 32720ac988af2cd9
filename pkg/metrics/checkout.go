package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Checkout outcomes.
const (
	OutcomeSuccess        = "success"
	OutcomeEmptyCart      = "empty_cart"
	OutcomeInProgress     = "in_progress"
	OutcomeNetworkError   = "network_error"
	OutcomePartialFailure = "partial_failure"
	OutcomeValidation     = "validation_error"
)

// CheckoutMetrics records checkout attempts and favorites compensation.
type CheckoutMetrics struct {
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
	reverts  prometheus.Counter
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_checkout_duration_seconds",
		Help:    "Duration of checkout calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_checkout_total",
		Help: "Checkout attempts by outcome.",
	}, []string{"outcome"})
	reverts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storefront_favorites_reverted_total",
		Help: "Optimistic favorite toggles rolled back after a backend failure.",
	})
	reg.MustRegister(duration, outcomes, reverts)
	return &CheckoutMetrics{
		duration: duration,
		outcomes: outcomes,
		reverts:  reverts,
	}
}

// Observe records one checkout attempt.
func (c *CheckoutMetrics) Observe(outcome string, duration time.Duration) {
	if c == nil || c.outcomes == nil {
		return
	}
	label := normalizeLabel(outcome)
	c.outcomes.WithLabelValues(label).Inc()
	c.duration.WithLabelValues(label).Observe(duration.Seconds())
}

// IncFavoriteRevert counts a compensated favorite toggle.
func (c *CheckoutMetrics) IncFavoriteRevert() {
	if c == nil || c.reverts == nil {
		return
	}
	c.reverts.Inc()
}
