package models

import (
	"strings"
	"time"
)

// Item is a line item, optionally associated with a receipt. ReceiptLocalID
// is nil for unassociated items.
type Item struct {
	LocalID        int64        `json:"localId"`
	ReceiptLocalID *int64       `json:"receiptLocalId,omitempty"`
	Name           string       `json:"name"`
	Quantity       int          `json:"quantity"`
	UnitPriceCents int64        `json:"unitPriceCents"`
	Date           time.Time    `json:"date"`
	Sync           SyncMetadata `json:"sync"`
}

// NewItem creates an item with fresh sync metadata. Quantity defaults to 1.
func NewItem(name string, quantity int, unitPriceCents int64, date time.Time, receiptLocalID *int64) (*Item, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyItemName
	}
	if quantity < 0 {
		return nil, ErrInvalidQuantity
	}
	if quantity == 0 {
		quantity = 1
	}
	if unitPriceCents < 0 {
		return nil, ErrNegativeAmount
	}
	return &Item{
		ReceiptLocalID: receiptLocalID,
		Name:           strings.TrimSpace(name),
		Quantity:       quantity,
		UnitPriceCents: unitPriceCents,
		Date:           date.UTC(),
		Sync:           NewSyncMetadata(),
	}, nil
}

// Remote maps the item to its wire representation. receiptID is the parent's
// cloud id; pass "" when the parent is unsynced or the item is unassociated.
func (i *Item) Remote(receiptID string) RemoteItem {
	var parent *string
	if receiptID != "" {
		parent = &receiptID
	}
	return RemoteItem{
		ID:             i.Sync.CloudIDString(),
		ReceiptID:      parent,
		Name:           i.Name,
		Quantity:       i.Quantity,
		UnitPriceCents: i.UnitPriceCents,
		Date:           i.Date,
	}
}
