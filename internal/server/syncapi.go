package server

import (
	"encoding/json"
	"net/http"

	"github.com/MHMDHIDR/expenses-tracker/internal/models"
)

// FetchAll handles GET /sync/all, the full reconciliation pull
func (h *Handler) FetchAll(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.repo.Snapshot(r.Context())
	if err != nil {
		h.logger.Errorf("building snapshot: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Database error.")
		return
	}
	h.respondJSON(w, http.StatusOK, snapshot)
}

// BulkPush handles POST /sync: batch create with a local-id to server-id
// mapping in the response.
func (h *Handler) BulkPush(w http.ResponseWriter, r *http.Request) {
	var req models.BulkPushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	resp, err := h.repo.BulkPush(r.Context(), req)
	if err != nil {
		h.logger.Errorf("bulk push: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Database error.")
		return
	}
	for _, id := range resp.ReceiptIDs {
		h.notify("receipt", "create", id)
	}
	for _, id := range resp.ItemIDs {
		h.notify("item", "create", id)
	}
	h.respondJSON(w, http.StatusOK, resp)
}
