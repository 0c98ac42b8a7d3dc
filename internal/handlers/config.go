package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/alertdeck/alertdeck/internal/api"
	"github.com/alertdeck/alertdeck/internal/rules"
)

// CacheClearer invalidates derived caches after a config change.
// Satisfied by *slack.ChannelResolver.
type CacheClearer interface {
	ClearCache()
}

// ConfigHandler exposes the rule configuration endpoints.
type ConfigHandler struct {
	service *rules.Service
	caches  []CacheClearer
}

// NewConfigHandler creates a config handler over the rules service.
func NewConfigHandler(service *rules.Service, caches ...CacheClearer) *ConfigHandler {
	return &ConfigHandler{service: service, caches: caches}
}

// SetupRoutes configures the configuration routes.
func (h *ConfigHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/reload", h.handleReload)
	mux.HandleFunc("/get-config", h.handleGetConfig)
	mux.HandleFunc("/push-config", h.handlePushConfig)
}

// handleReload handles GET|POST /reload: re-reads the rules file.
func (h *ConfigHandler) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	count, err := h.service.ReloadFromFile()
	if err != nil {
		// The previous config stays active; tell the operator why.
		log.Printf("ConfigHandler: reload failed: %v", err)
		api.RespondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"ok":    false,
			"error": err.Error(),
		})
		return
	}
	h.clearCaches()

	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"entries": count,
	})
}

// handleGetConfig handles GET /get-config: returns the active rule set.
func (h *ConfigHandler) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"config": h.service.Snapshot(),
	})
}

// handlePushConfig handles POST /push-config: validates and applies a
// full replacement rule set.
func (h *ConfigHandler) handlePushConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var raw map[string]interface{}
	if err := api.DecodeJSON(r, &raw); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.Push(raw); err != nil {
		var verr *rules.ValidationError
		if errors.As(err, &verr) {
			api.RespondError(w, http.StatusBadRequest, verr.Error())
			return
		}
		log.Printf("ConfigHandler: push failed: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to persist configuration")
		return
	}
	h.clearCaches()

	api.RespondJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

func (h *ConfigHandler) clearCaches() {
	for _, c := range h.caches {
		c.ClearCache()
	}
}
