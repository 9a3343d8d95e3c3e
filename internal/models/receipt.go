package models

import (
	"strings"
	"time"
)

// Receipt represents a purchase receipt stored in the local durable store.
// Monetary amounts are integer cents. LocalID is assigned by the local store.
type Receipt struct {
	LocalID    int64        `json:"localId"`
	Date       time.Time    `json:"date"`
	TotalCents int64        `json:"totalCents"`
	ImagePath  *string      `json:"imagePath,omitempty"`
	Merchant   *string      `json:"merchant,omitempty"`
	Processed  bool         `json:"processed"`
	Sync       SyncMetadata `json:"sync"`
}

// NewReceipt creates a receipt with fresh sync metadata, validating input.
func NewReceipt(date time.Time, totalCents int64, merchant *string) (*Receipt, error) {
	if totalCents < 0 {
		return nil, ErrNegativeAmount
	}
	if merchant != nil && strings.TrimSpace(*merchant) == "" {
		merchant = nil
	}
	return &Receipt{
		Date:       date.UTC(),
		TotalCents: totalCents,
		Merchant:   merchant,
		Sync:       NewSyncMetadata(),
	}, nil
}

// Remote maps the receipt to its wire representation. The id is the cloud id,
// empty until the record has been accepted remotely.
func (r *Receipt) Remote() RemoteReceipt {
	return RemoteReceipt{
		ID:         r.Sync.CloudIDString(),
		Date:       r.Date,
		TotalCents: r.TotalCents,
		ImagePath:  r.ImagePath,
		Merchant:   r.Merchant,
		Processed:  r.Processed,
	}
}
