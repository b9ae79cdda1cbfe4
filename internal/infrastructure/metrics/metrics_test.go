package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.GuardRejected("brute_force")
	m.GuardRejected("brute_force")
	m.PaymentOutcome("settled")
	m.CodeIssued("/v1/signup/send-code", "sent")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.guardRejections.WithLabelValues("brute_force")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.paymentOutcomes.WithLabelValues("settled")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.GuardRejected("x")
		m.ObserveRequest("GET", "/", "200", 0.1)
		m.CodeIssued("r", "sent")
		m.PaymentOutcome("failed")
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveRequest("GET", "/v1/health-check/ping", "200", 0.01)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "shop_http_request_duration_seconds")
}
