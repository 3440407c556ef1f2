package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	WebhookDeliveries *prometheus.CounterVec
	InboundMessages   *prometheus.CounterVec
	OutboundMessages  *prometheus.CounterVec
	StatusUpdates     *prometheus.CounterVec
	RealtimeEvents    *prometheus.CounterVec
	WASendLatency     *prometheus.HistogramVec
	Errors            *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			WebhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_deliveries_total",
				Help:      "Total webhook deliveries received, by classified kind.",
			}, []string{"kind"}),
			InboundMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "wa_inbound_messages_total",
				Help:      "Total inbound WhatsApp messages processed.",
			}, []string{"type"}),
			OutboundMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "wa_outbound_messages_total",
				Help:      "Total outbound WhatsApp messages, by send outcome.",
			}, []string{"status"}),
			StatusUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "wa_status_updates_total",
				Help:      "Total delivery status callbacks applied, by status.",
			}, []string{"status"}),
			RealtimeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "realtime_events_total",
				Help:      "Total realtime events broadcast to dashboard sessions.",
			}, []string{"event"}),
			WASendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "wa_send_duration_seconds",
				Help:      "Latency distribution for WhatsApp Cloud API sends.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"status"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.WebhookDeliveries,
			metricsInstance.InboundMessages,
			metricsInstance.OutboundMessages,
			metricsInstance.StatusUpdates,
			metricsInstance.RealtimeEvents,
			metricsInstance.WASendLatency,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
