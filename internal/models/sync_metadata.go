package models

import (
	"time"

	"github.com/google/uuid"
)

// SyncMetadata tracks the remote-store lifecycle of a local record.
// A record with a non-nil CloudID has been accepted remotely at least once;
// a record with Pending=true has local changes not yet confirmed remote.
type SyncMetadata struct {
	SyncID       string     `json:"syncId"`
	CloudID      *string    `json:"cloudId,omitempty"`
	Pending      bool       `json:"pending"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
}

// NewSyncMetadata returns metadata for a freshly created local record.
func NewSyncMetadata() SyncMetadata {
	return SyncMetadata{
		SyncID:  uuid.New().String(),
		Pending: true,
	}
}

// Synced reports whether the record has a cloud id.
func (m SyncMetadata) Synced() bool {
	return m.CloudID != nil && *m.CloudID != ""
}

// CloudIDString returns the cloud id or "" when absent.
func (m SyncMetadata) CloudIDString() string {
	if m.CloudID == nil {
		return ""
	}
	return *m.CloudID
}
