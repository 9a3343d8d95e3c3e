package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/MHMDHIDR/expenses-tracker/internal/models"
	"github.com/MHMDHIDR/expenses-tracker/internal/observability"
)

// Handler serves the REST API consumed by the sync engine
type Handler struct {
	repo   *Repo
	hub    *ChangeHub
	images *ImageService
	logger *observability.Logger
}

// NewHandler creates a Handler. hub and images may be nil; the matching
// features are then disabled.
func NewHandler(repo *Repo, hub *ChangeHub, images *ImageService) *Handler {
	return &Handler{
		repo:   repo,
		hub:    hub,
		images: images,
		logger: observability.GetLogger().WithField("component", "api"),
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, msg string) {
	h.respondJSON(w, status, models.ErrorResponse{Error: msg})
}

func (h *Handler) notify(entity, action, id string) {
	if h.hub != nil {
		h.hub.NotifyChange(entity, action, id)
	}
}

// Health returns the server health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, models.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
	})
}
