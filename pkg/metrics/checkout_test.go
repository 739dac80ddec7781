package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCheckoutMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCheckoutMetrics(reg)
	metrics.IncSessionCreated("payment")
	metrics.IncSessionCreated("payment")
	metrics.IncSessionCreated("subscription")
	metrics.IncRateLimited("course")
	metrics.IncRateLimited("")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "learnpay_checkout_sessions_created_total", "mode", "payment"); err != nil {
		t.Fatalf("fetch created: %v", err)
	} else if got != 2 {
		t.Fatalf("expected payment=2, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "learnpay_checkout_sessions_created_total", "mode", "subscription"); err != nil {
		t.Fatalf("fetch created: %v", err)
	} else if got != 1 {
		t.Fatalf("expected subscription=1, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "learnpay_checkout_rate_limited_total", "flow", "unknown"); err != nil {
		t.Fatalf("fetch rate limited: %v", err)
	} else if got != 1 {
		t.Fatalf("expected unknown=1, got %f", got)
	}
}
