// Package metrics exposes the fee ledger counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/trezcool/masomo-fees/core/fee"
)

const metricPrefix = "masomo_fees_"

type Recorder struct {
	registry *prometheus.Registry

	paymentsTotal        *prometheus.CounterVec
	paymentsAmount       *prometheus.CounterVec
	paymentRejections    *prometheus.CounterVec
	gatewayNotifications *prometheus.CounterVec
	feesAssigned         prometheus.Counter
}

var _ fee.Recorder = (*Recorder)(nil) // interface compliance check

// New registers the ledger metrics, along with the Go runtime & process collectors, on a dedicated registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		paymentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "payments_total",
				Help: "Total recorded payments by method",
			},
			[]string{"method"},
		),
		paymentsAmount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "payments_amount_total",
				Help: "Sum of recorded payment amounts by method",
			},
			[]string{"method"},
		),
		paymentRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "payment_rejections_total",
				Help: "Total rejected payments by reason",
			},
			[]string{"reason"},
		),
		gatewayNotifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "gateway_notifications_total",
				Help: "Total payment gateway notifications by outcome",
			},
			[]string{"outcome"},
		),
		feesAssigned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "student_fees_assigned_total",
				Help: "Total student fees created by fee assignment",
			},
		),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.paymentsTotal,
		r.paymentsAmount,
		r.paymentRejections,
		r.gatewayNotifications,
		r.feesAssigned,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) PaymentRecorded(method fee.PaymentMethod, amount decimal.Decimal) {
	r.paymentsTotal.WithLabelValues(string(method)).Inc()
	r.paymentsAmount.WithLabelValues(string(method)).Add(amount.InexactFloat64())
}

func (r *Recorder) PaymentRejected(reason string) {
	r.paymentRejections.WithLabelValues(reason).Inc()
}

func (r *Recorder) GatewayNotification(outcome string) {
	r.gatewayNotifications.WithLabelValues(outcome).Inc()
}

func (r *Recorder) FeesAssigned(count int) {
	r.feesAssigned.Add(float64(count))
}
