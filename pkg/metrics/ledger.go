package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

const (
	OutcomeApplied      = "applied"
	OutcomeInsufficient = "insufficient_funds"
	OutcomeRejected     = "rejected"
	OutcomeError        = "error"
)

// LedgerMetrics counts balance mutations and their magnitude.
type LedgerMetrics struct {
	mutations *prometheus.CounterVec
	amount    *prometheus.HistogramVec
	lowAlerts prometheus.Counter
}

// NewLedgerMetrics registers ledger metrics on reg. A nil registerer yields a no-op recorder.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orderportal_ledger_mutations_total",
		Help: "Ledger mutation attempts by transaction type and outcome.",
	}, []string{"type", "outcome"})
	amount := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orderportal_ledger_mutation_amount",
		Help:    "Absolute amount of applied ledger mutations.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 10000},
	}, []string{"type"})
	lowAlerts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orderportal_ledger_low_balance_total",
		Help: "Applied mutations that left a balance under the low-balance threshold.",
	})
	reg.MustRegister(mutations, amount, lowAlerts)
	return &LedgerMetrics{mutations: mutations, amount: amount, lowAlerts: lowAlerts}
}

// Observe records one mutation attempt. amount is only recorded for applied mutations.
func (l *LedgerMetrics) Observe(txType, outcome string, amount decimal.Decimal) {
	if l == nil || l.mutations == nil {
		return
	}
	l.mutations.WithLabelValues(normalizeLabel(txType), outcome).Inc()
	if outcome == OutcomeApplied {
		l.amount.WithLabelValues(normalizeLabel(txType)).Observe(amount.Abs().InexactFloat64())
	}
}

// IncLowBalance counts a low-balance crossing.
func (l *LedgerMetrics) IncLowBalance() {
	if l == nil || l.lowAlerts == nil {
		return
	}
	l.lowAlerts.Inc()
}

// CheckoutMetrics tracks order creation results.
type CheckoutMetrics struct {
	created  *prometheus.CounterVec
	failures *prometheus.CounterVec
}

// NewCheckoutMetrics registers checkout metrics on reg.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orderportal_orders_created_total",
		Help: "Orders created by payment method.",
	}, []string{"payment_method"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orderportal_checkout_failures_total",
		Help: "Checkout attempts rejected or failed, by error code.",
	}, []string{"code"})
	reg.MustRegister(created, failures)
	return &CheckoutMetrics{created: created, failures: failures}
}

func (c *CheckoutMetrics) IncCreated(paymentMethod string) {
	if c == nil || c.created == nil {
		return
	}
	c.created.WithLabelValues(normalizeLabel(paymentMethod)).Inc()
}

func (c *CheckoutMetrics) IncFailure(code string) {
	if c == nil || c.failures == nil {
		return
	}
	c.failures.WithLabelValues(normalizeLabel(code)).Inc()
}
