package handlers

import (
	"log"
	"net/http"

	"github.com/alertdeck/alertdeck/internal/api"
	"github.com/alertdeck/alertdeck/internal/database"
)

// GuideHandler exposes the troubleshooting guide endpoints. Guides live
// in the database, so everything here answers 503 without one.
type GuideHandler struct{}

// NewGuideHandler creates a guide handler.
func NewGuideHandler() *GuideHandler {
	return &GuideHandler{}
}

// GuideRequest is the upsert request body.
type GuideRequest struct {
	AlertType string `json:"alertType"`
	Content   string `json:"content"`
}

// SetupRoutes configures the guide routes.
// Route: GET/POST /troubleshooting-guide
func (h *GuideHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/troubleshooting-guide", h.handleGuide)
}

func (h *GuideHandler) handleGuide(w http.ResponseWriter, r *http.Request) {
	if !database.Connected() {
		api.RespondError(w, http.StatusServiceUnavailable, "No database configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.handleGet(w, r)
	case http.MethodPost:
		h.handleUpsert(w, r)
	default:
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleGet returns one guide when alertType is given, all guides
// otherwise.
func (h *GuideHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	alertType := r.URL.Query().Get("alertType")
	if alertType == "" {
		guides, err := database.ListGuides()
		if err != nil {
			log.Printf("GuideHandler: list: %v", err)
			api.RespondError(w, http.StatusInternalServerError, "Failed to list guides")
			return
		}
		api.RespondJSON(w, http.StatusOK, guides)
		return
	}

	guide, err := database.GetGuide(alertType)
	if err != nil {
		log.Printf("GuideHandler: get %s: %v", alertType, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to load guide")
		return
	}
	if guide == nil {
		api.RespondError(w, http.StatusNotFound, "No guide for this alert type")
		return
	}
	api.RespondJSON(w, http.StatusOK, guide)
}

func (h *GuideHandler) handleUpsert(w http.ResponseWriter, r *http.Request) {
	var req GuideRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.AlertType == "" || req.Content == "" {
		api.RespondError(w, http.StatusBadRequest, "alertType and content are required")
		return
	}

	if err := database.UpsertGuide(req.AlertType, req.Content); err != nil {
		log.Printf("GuideHandler: upsert %s: %v", req.AlertType, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to save guide")
		return
	}
	api.RespondJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}
