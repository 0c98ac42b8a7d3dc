package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Suppression reasons used as the label on AlertsSuppressed.
const (
	ReasonDedup    = "dedup"
	ReasonNoConfig = "no_config"
)

var (
	// AlertsReceived counts every canonical alert entering the processor.
	AlertsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alertdeck_alerts_received_total",
		Help: "Canonical alerts entering the pipeline.",
	})

	// AlertsSent counts alerts that produced a chat emission.
	AlertsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alertdeck_alerts_sent_total",
		Help: "Alerts delivered to chat.",
	})

	// AlertsSuppressed counts alerts dropped before emission, by reason.
	AlertsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alertdeck_alerts_suppressed_total",
		Help: "Alerts suppressed before chat emission.",
	}, []string{"reason"})

	// ChatErrors counts failed chat API calls.
	ChatErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alertdeck_chat_errors_total",
		Help: "Chat API call failures.",
	})

	// ChatRateLimited counts chat API rate-limit responses.
	ChatRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alertdeck_chat_rate_limited_total",
		Help: "Chat API rate-limit responses.",
	})

	// QueueProcessed counts queue messages handled by the poller.
	QueueProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alertdeck_queue_processed_total",
		Help: "Queue messages processed by the poller.",
	})

	// IngestDropped counts webhook batches dropped because the worker
	// pool queue was full.
	IngestDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alertdeck_ingest_dropped_total",
		Help: "Ingestion tasks dropped due to a full worker queue.",
	})
)

// Handler serves the Prometheus text-format exposition.
func Handler() http.Handler {
	return promhttp.Handler()
}
