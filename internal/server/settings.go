package server

import (
	"encoding/json"
	"net/http"

	"github.com/MHMDHIDR/expenses-tracker/internal/models"
)

// GetSettings handles GET /settings; a default row is created when absent
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.repo.GetSettings(r.Context())
	if err != nil {
		h.logger.Errorf("fetching settings: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Database error.")
		return
	}
	h.respondJSON(w, http.StatusOK, settings)
}

// PutSettings handles PUT /settings (idempotent upsert)
func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var settings models.RemoteSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if settings.WeeklyBudgetCents < 0 {
		h.respondError(w, http.StatusBadRequest, models.ErrNegativeAmount.Error())
		return
	}

	saved, err := h.repo.PutSettings(r.Context(), settings)
	if err != nil {
		h.logger.Errorf("saving settings: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Database error.")
		return
	}
	h.notify("settings", "update", saved.ID)
	h.respondJSON(w, http.StatusOK, saved)
}
