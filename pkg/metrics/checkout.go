package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CheckoutMetrics counts checkout session outcomes. A nil *CheckoutMetrics records nothing.
type CheckoutMetrics struct {
	created     *prometheus.CounterVec
	rateLimited *prometheus.CounterVec
}

func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	factory := promauto.With(reg)
	return &CheckoutMetrics{
		created: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_sessions_created_total",
			Help:      "Checkout sessions created with the payment provider.",
		}, []string{"mode"}),
		rateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_rate_limited_total",
			Help:      "Checkout attempts rejected by the per-user rate limit.",
		}, []string{"flow"}),
	}
}

// IncSessionCreated counts a session for mode "payment" or "subscription".
func (c *CheckoutMetrics) IncSessionCreated(mode string) {
	if c == nil {
		return
	}
	c.created.WithLabelValues(normalizeLabel(mode)).Inc()
}

func (c *CheckoutMetrics) IncRateLimited(flow string) {
	if c == nil {
		return
	}
	c.rateLimited.WithLabelValues(normalizeLabel(flow)).Inc()
}
