package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	DeliveryPublished    = "published"
	DeliveryRetried      = "retried"
	DeliveryDeadLettered = "dead_lettered"
)

// OutboxMetrics tracks domain event delivery from the outbox table to Pub/Sub.
type OutboxMetrics struct {
	deliveries *prometheus.CounterVec
	pending    prometheus.Gauge
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orderportal_outbox_deliveries_total",
		Help: "Outbox delivery attempts by event type and result.",
	}, []string{"event_type", "result"})
	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orderportal_outbox_pending",
		Help: "Outbox rows still waiting to be published.",
	})
	reg.MustRegister(deliveries, pending)
	return &OutboxMetrics{deliveries: deliveries, pending: pending}
}

func (o *OutboxMetrics) ObserveDelivery(eventType, result string) {
	if o == nil || o.deliveries == nil {
		return
	}
	o.deliveries.WithLabelValues(normalizeLabel(eventType), result).Inc()
}

func (o *OutboxMetrics) SetPending(n int64) {
	if o == nil || o.pending == nil {
		return
	}
	o.pending.Set(float64(n))
}
