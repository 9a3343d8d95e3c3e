package models

import "time"

// RemoteReceipt is the wire representation of a receipt. ID is the
// server-assigned identifier (the client's cloud id).
type RemoteReceipt struct {
	ID         string    `json:"id,omitempty"`
	Date       time.Time `json:"date"`
	TotalCents int64     `json:"totalCents"`
	ImagePath  *string   `json:"imagePath,omitempty"`
	Merchant   *string   `json:"merchant,omitempty"`
	Processed  bool      `json:"processed"`
}

// RemoteItem is the wire representation of an item. ReceiptID references the
// parent receipt's server-assigned id, nil for unassociated items.
type RemoteItem struct {
	ID             string    `json:"id,omitempty"`
	ReceiptID      *string   `json:"receiptId,omitempty"`
	Name           string    `json:"name"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unitPriceCents"`
	Date           time.Time `json:"date"`
}

// RemoteSettings is the wire representation of the settings singleton.
type RemoteSettings struct {
	ID                string `json:"id,omitempty"`
	WeeklyBudgetCents int64  `json:"weeklyBudgetCents"`
}

// ReceiptPatch is a partial receipt update; nil fields are left unchanged.
type ReceiptPatch struct {
	Date       *time.Time `json:"date,omitempty"`
	TotalCents *int64     `json:"totalCents,omitempty"`
	ImagePath  *string    `json:"imagePath,omitempty"`
	Merchant   *string    `json:"merchant,omitempty"`
	Processed  *bool      `json:"processed,omitempty"`
}

// ItemPatch is a partial item update; nil fields are left unchanged.
type ItemPatch struct {
	ReceiptID      *string    `json:"receiptId,omitempty"`
	Name           *string    `json:"name,omitempty"`
	Quantity       *int       `json:"quantity,omitempty"`
	UnitPriceCents *int64     `json:"unitPriceCents,omitempty"`
	Date           *time.Time `json:"date,omitempty"`
}

// SyncSnapshot is the complete remote state returned by GET /sync/all.
type SyncSnapshot struct {
	Receipts []RemoteReceipt `json:"receipts"`
	Items    []RemoteItem    `json:"items"`
	Settings *RemoteSettings `json:"settings,omitempty"`
}

// BulkPushReceipt carries a client-local id alongside the record so the
// server can return a local-id-to-server-id mapping.
type BulkPushReceipt struct {
	LocalID string `json:"localId"`
	RemoteReceipt
}

// BulkPushItem mirrors BulkPushReceipt for items.
type BulkPushItem struct {
	LocalID string `json:"localId"`
	RemoteItem
}

// BulkPushRequest is the body of POST /sync.
type BulkPushRequest struct {
	Receipts []BulkPushReceipt `json:"receipts,omitempty"`
	Items    []BulkPushItem    `json:"items,omitempty"`
	Settings *RemoteSettings   `json:"settings,omitempty"`
}

// BulkPushResponse maps client-local ids to server-assigned ids.
type BulkPushResponse struct {
	ReceiptIDs map[string]string `json:"receiptIds"`
	ItemIDs    map[string]string `json:"itemIds"`
	SettingsID string            `json:"settingsId,omitempty"`
}

// BulkCreateItemsRequest is the body of POST /items/bulk. Created records are
// returned in input order.
type BulkCreateItemsRequest struct {
	Items []RemoteItem `json:"items"`
}

// ImageUploadResult is returned after uploading a receipt image.
// SuggestedDate is the EXIF capture date when the image carries one.
type ImageUploadResult struct {
	ReceiptID     string     `json:"receiptId"`
	ImagePath     string     `json:"imagePath"`
	ThumbnailPath string     `json:"thumbnailPath,omitempty"`
	SuggestedDate *time.Time `json:"suggestedDate,omitempty"`
}

// ErrorResponse is the uniform error body for non-2xx responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
