package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MHMDHIDR/expenses-tracker/internal/models"
)

func validateItem(it models.RemoteItem) error {
	if strings.TrimSpace(it.Name) == "" {
		return models.ErrEmptyItemName
	}
	if it.Quantity < 0 {
		return models.ErrInvalidQuantity
	}
	if it.UnitPriceCents < 0 {
		return models.ErrNegativeAmount
	}
	return nil
}

// ListItems handles GET /items
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.repo.ListItems(r.Context())
	if err != nil {
		h.logger.Errorf("listing items: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Database error.")
		return
	}
	h.respondJSON(w, http.StatusOK, items)
}

// GetItem handles GET /items/{id}
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	item, err := h.repo.GetItem(r.Context(), id)
	if err != nil {
		var nf models.NotFoundError
		if errors.As(err, &nf) {
			h.respondError(w, http.StatusNotFound, "Item not found.")
			return
		}
		h.logger.Errorf("fetching item %s: %v", id, err)
		h.respondError(w, http.StatusInternalServerError, "Database error.")
		return
	}
	h.respondJSON(w, http.StatusOK, item)
}

// CreateItem handles POST /items
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var item models.RemoteItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if err := validateItem(item); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.repo.CreateItem(r.Context(), item)
	if err != nil {
		h.logger.Errorf("creating item: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Database error.")
		return
	}
	h.notify("item", "create", created.ID)
	h.respondJSON(w, http.StatusCreated, created)
}

// BulkCreateItems handles POST /items/bulk; responds in input order
func (h *Handler) BulkCreateItems(w http.ResponseWriter, r *http.Request) {
	var req models.BulkCreateItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	for _, it := range req.Items {
		if err := validateItem(it); err != nil {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	created, err := h.repo.CreateItems(r.Context(), req.Items)
	if err != nil {
		h.logger.Errorf("bulk creating items: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Database error.")
		return
	}
	for _, it := range created {
		h.notify("item", "create", it.ID)
	}
	h.respondJSON(w, http.StatusCreated, created)
}

// UpdateItem handles PATCH /items/{id}
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var patch models.ItemPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	updated, err := h.repo.UpdateItem(r.Context(), id, patch)
	if err != nil {
		var nf models.NotFoundError
		if errors.As(err, &nf) {
			h.respondError(w, http.StatusNotFound, "Item not found.")
			return
		}
		h.logger.Errorf("updating item %s: %v", id, err)
		h.respondError(w, http.StatusInternalServerError, "Database error.")
		return
	}
	h.notify("item", "update", id)
	h.respondJSON(w, http.StatusOK, updated)
}

// DeleteItem handles DELETE /items/{id}; idempotent like receipt deletes
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.repo.DeleteItem(r.Context(), id); err != nil {
		h.logger.Errorf("deleting item %s: %v", id, err)
		h.respondError(w, http.StatusInternalServerError, "Database error.")
		return
	}
	h.notify("item", "delete", id)
	w.WriteHeader(http.StatusNoContent)
}
