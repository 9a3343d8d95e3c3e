package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MHMDHIDR/expenses-tracker/internal/models"
)

// ListReceipts handles GET /receipts
func (h *Handler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := h.repo.ListReceipts(r.Context())
	if err != nil {
		h.logger.Errorf("listing receipts: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Database error.")
		return
	}
	h.respondJSON(w, http.StatusOK, receipts)
}

// GetReceipt handles GET /receipts/{id}
func (h *Handler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	receipt, err := h.repo.GetReceipt(r.Context(), id)
	if err != nil {
		var nf models.NotFoundError
		if errors.As(err, &nf) {
			h.respondError(w, http.StatusNotFound, "Receipt not found.")
			return
		}
		h.logger.Errorf("fetching receipt %s: %v", id, err)
		h.respondError(w, http.StatusInternalServerError, "Database error.")
		return
	}
	h.respondJSON(w, http.StatusOK, receipt)
}

// CreateReceipt handles POST /receipts
func (h *Handler) CreateReceipt(w http.ResponseWriter, r *http.Request) {
	var receipt models.RemoteReceipt
	if err := json.NewDecoder(r.Body).Decode(&receipt); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if receipt.TotalCents < 0 {
		h.respondError(w, http.StatusBadRequest, models.ErrNegativeAmount.Error())
		return
	}

	created, err := h.repo.CreateReceipt(r.Context(), receipt)
	if err != nil {
		h.logger.Errorf("creating receipt: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Database error.")
		return
	}
	h.notify("receipt", "create", created.ID)
	h.respondJSON(w, http.StatusCreated, created)
}

// UpdateReceipt handles PATCH /receipts/{id}
func (h *Handler) UpdateReceipt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var patch models.ReceiptPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if patch.TotalCents != nil && *patch.TotalCents < 0 {
		h.respondError(w, http.StatusBadRequest, models.ErrNegativeAmount.Error())
		return
	}

	updated, err := h.repo.UpdateReceipt(r.Context(), id, patch)
	if err != nil {
		var nf models.NotFoundError
		if errors.As(err, &nf) {
			h.respondError(w, http.StatusNotFound, "Receipt not found.")
			return
		}
		h.logger.Errorf("updating receipt %s: %v", id, err)
		h.respondError(w, http.StatusInternalServerError, "Database error.")
		return
	}
	h.notify("receipt", "update", id)
	h.respondJSON(w, http.StatusOK, updated)
}

// DeleteReceipt handles DELETE /receipts/{id}. Deletes are idempotent: an
// absent id still answers 204.
func (h *Handler) DeleteReceipt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.repo.DeleteReceipt(r.Context(), id); err != nil {
		h.logger.Errorf("deleting receipt %s: %v", id, err)
		h.respondError(w, http.StatusInternalServerError, "Database error.")
		return
	}
	h.notify("receipt", "delete", id)
	w.WriteHeader(http.StatusNoContent)
}
