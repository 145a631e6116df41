package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/masomo-fees/core/fee"
)

func TestRecorder(t *testing.T) {
	r := New()

	r.PaymentRecorded(fee.MethodCash, decimal.RequireFromString("2000"))
	r.PaymentRecorded(fee.MethodCash, decimal.RequireFromString("3000.50"))
	r.PaymentRecorded(fee.MethodUPI, decimal.RequireFromString("10"))
	r.PaymentRejected("invalid")
	r.GatewayNotification("confirmed")
	r.FeesAssigned(3)
	r.FeesAssigned(0)

	assert.Equal(t, float64(2), testutil.ToFloat64(r.paymentsTotal.WithLabelValues("cash")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.paymentsTotal.WithLabelValues("upi")))
	assert.Equal(t, 5000.5, testutil.ToFloat64(r.paymentsAmount.WithLabelValues("cash")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.paymentRejections.WithLabelValues("invalid")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.gatewayNotifications.WithLabelValues("confirmed")))
	assert.Equal(t, float64(3), testutil.ToFloat64(r.feesAssigned))
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.PaymentRejected("not_found")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `masomo_fees_payment_rejections_total{reason="not_found"} 1`))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
