package handlers

import (
	"context"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/alertdeck/alertdeck/internal/alerts"
	"github.com/alertdeck/alertdeck/internal/alerts/adapters"
	"github.com/alertdeck/alertdeck/internal/api"
	"github.com/alertdeck/alertdeck/internal/workers"
)

// Sink consumes canonical alerts. Satisfied by *processor.Processor.
type Sink interface {
	Process(ctx context.Context, alert alerts.CanonicalAlert) error
}

// AlertHandler receives webhook batches and hands them to the worker
// pool. The webhook response never depends on delivery: senders retry on
// non-2xx, and a retried batch would just be deduplicated anyway.
type AlertHandler struct {
	pool *workers.Pool
	sink Sink

	// Registered adapters by source type.
	adapters map[string]adapters.Adapter
	fallback string
}

// NewAlertHandler creates an alert handler. fallback names the adapter
// used when the request does not select a source.
func NewAlertHandler(pool *workers.Pool, sink Sink, fallback string) *AlertHandler {
	return &AlertHandler{
		pool:     pool,
		sink:     sink,
		adapters: make(map[string]adapters.Adapter),
		fallback: fallback,
	}
}

// RegisterAdapter registers an adapter for its source type.
func (h *AlertHandler) RegisterAdapter(adapter adapters.Adapter) {
	h.adapters[adapter.SourceType()] = adapter
	log.Printf("Registered alert adapter: %s", adapter.SourceType())
}

// SetupRoutes configures the ingestion routes.
// Route: POST /alerts and POST /alerts/{source}.
func (h *AlertHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/alerts", h.HandleWebhook)
	mux.HandleFunc("/alerts/", h.HandleWebhook)
}

// HandleWebhook processes an incoming webhook batch.
func (h *AlertHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	source := strings.Trim(strings.TrimPrefix(r.URL.Path, "/alerts"), "/")
	if source == "" {
		source = h.fallback
	}
	adapter, ok := h.adapters[source]
	if !ok {
		log.Printf("alerts: no adapter for source '%s'", source)
		api.RespondError(w, http.StatusNotFound, "Unknown alert source")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, api.MaxBodySize))
	if err != nil {
		log.Printf("alerts: read webhook body: %v", err)
		api.RespondError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	// Submit failure means the pool is saturated; the pool logs and
	// counts the drop. Senders still get a 200 so they do not retry
	// into the dedup window.
	h.pool.Submit(func(ctx context.Context) {
		parsed, err := adapter.Parse(body)
		if err != nil {
			log.Printf("alerts: parse %s payload: %v", adapter.SourceType(), err)
			return
		}
		for _, alert := range parsed {
			if err := h.sink.Process(ctx, alert); err != nil {
				log.Printf("alerts: process %s: %v", alert.IncidentKey(), err)
			}
		}
	})

	api.RespondJSON(w, http.StatusOK, map[string]bool{"received": true})
}
