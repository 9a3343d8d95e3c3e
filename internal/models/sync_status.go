package models

import "time"

// SyncStatus is the status record the sync engine broadcasts to subscribers.
// Subscribers always receive a copy, never a reference to engine state.
type SyncStatus struct {
	Online       bool       `json:"online"`
	Syncing      bool       `json:"syncing"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
	PendingCount int        `json:"pendingCount"`
	LastError    string     `json:"lastError,omitempty"`
}
