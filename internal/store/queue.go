package store

import (
	"context"
	"database/sql"

	"github.com/MHMDHIDR/expenses-tracker/internal/models"
)

// PendingSyncItems returns the sync queue ordered by creation time, earliest
// first. This is the replay order.
func (s *Store) PendingSyncItems(ctx context.Context) ([]models.SyncQueueItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_type, entity_id, action, payload, created_at, retry_count
		FROM sync_queue ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.SyncQueueItem
	for rows.Next() {
		var (
			q       models.SyncQueueItem
			payload sql.NullString
		)
		if err := rows.Scan(&q.ID, &q.EntityType, &q.EntityID, &q.Action, &payload, &q.CreatedAt, &q.RetryCount); err != nil {
			return nil, err
		}
		q.CreatedAt = q.CreatedAt.UTC()
		if payload.Valid {
			q.Payload = []byte(payload.String)
		}
		items = append(items, q)
	}
	return items, rows.Err()
}

// PendingCount returns the number of queued local changes.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&n)
	return n, err
}

// RemoveSyncItem deletes a queue entry after a confirmed success, or when the
// entry has exceeded the retry ceiling.
func (s *Store) RemoveSyncItem(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = $1`, id)
	return err
}

// IncrementSyncItemRetry bumps a queue entry's retry count in place, leaving
// it queued for the next cycle.
func (s *Store) IncrementSyncItemRetry(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sync_queue SET retry_count = retry_count + 1 WHERE id = $1`, id)
	return err
}
