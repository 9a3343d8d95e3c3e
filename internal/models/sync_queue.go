package models

import (
	"encoding/json"
	"time"
)

// EntityType identifies which collection a sync queue entry belongs to.
type EntityType string

const (
	EntityReceipt  EntityType = "receipt"
	EntityItem     EntityType = "item"
	EntitySettings EntityType = "settings"
)

// SyncAction is the kind of change a queue entry replays against the remote.
type SyncAction string

const (
	ActionCreate SyncAction = "create"
	ActionUpdate SyncAction = "update"
	ActionDelete SyncAction = "delete"
)

// SyncQueueItem is one queued local change awaiting replay. Queue order is
// creation order and is the replay order. Entries are removed only after a
// confirmed success or after exceeding the retry ceiling.
type SyncQueueItem struct {
	ID         int64           `json:"id"`
	EntityType EntityType      `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Action     SyncAction      `json:"action"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	RetryCount int             `json:"retryCount"`
}

// DeletePayload is the payload snapshot carried by delete entries, preserving
// the cloud id known at deletion time so the remote delete needs no lookup.
type DeletePayload struct {
	CloudID string `json:"cloudId,omitempty"`
}

// DeleteCloudID decodes the cloud id from a delete entry's payload. Returns
// "" for records that were never accepted remotely.
func (q SyncQueueItem) DeleteCloudID() string {
	if len(q.Payload) == 0 {
		return ""
	}
	var p DeletePayload
	if err := json.Unmarshal(q.Payload, &p); err != nil {
		return ""
	}
	return p.CloudID
}
