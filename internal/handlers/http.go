package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/alertdeck/alertdeck/internal/metrics"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// HTTPHandler ties the endpoint groups together.
type HTTPHandler struct {
	alertHandler  *AlertHandler
	configHandler *ConfigHandler
	guideHandler  *GuideHandler
	authHandler   *AuthHandler
}

// NewHTTPHandler creates the top-level handler. Any group may be nil,
// its routes are then not registered.
func NewHTTPHandler(alert *AlertHandler, config *ConfigHandler, guides *GuideHandler, auth *AuthHandler) *HTTPHandler {
	return &HTTPHandler{
		alertHandler:  alert,
		configHandler: config,
		guideHandler:  guides,
		authHandler:   auth,
	}
}

// SetupRoutes configures all HTTP routes.
func (h *HTTPHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	if h.alertHandler != nil {
		h.alertHandler.SetupRoutes(mux)
	}
	if h.configHandler != nil {
		h.configHandler.SetupRoutes(mux)
	}
	if h.guideHandler != nil {
		h.guideHandler.SetupRoutes(mux)
	}
	if h.authHandler != nil {
		h.authHandler.SetupRoutes(mux)
	}
}

// handleHealth returns a simple health check response.
func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	response := map[string]string{
		"status":  "ok",
		"version": Version,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Error encoding health response: %v", err)
	}
}
