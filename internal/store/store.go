// Package store is the local storage gateway: the only component permitted to
// mutate the local durable store. Every mutating operation writes the business
// record and enqueues a corresponding sync queue entry in the same
// transaction, then raises a data-changed notification.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/MHMDHIDR/expenses-tracker/internal/models"
)

// Store wraps the local SQLite database. Storage failures propagate to the
// caller; the gateway performs no retry. Queue replay retry belongs to the
// sync engine.
type Store struct {
	db *sql.DB

	mu       sync.RWMutex
	onChange func()
}

// New creates a gateway over an initialized local database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for lifecycle management (Close).
func (s *Store) DB() *sql.DB {
	return s.db
}

// SetOnChange registers the data-changed callback. The callback fires after
// every committed mutating operation, outside the transaction.
func (s *Store) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Store) notifyChanged() {
	s.mu.RLock()
	fn := s.onChange
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// enqueue appends a sync queue entry inside the caller's transaction.
func (s *Store) enqueue(ctx context.Context, tx *sql.Tx, entity models.EntityType, entityID string, action models.SyncAction, payload any) error {
	var raw []byte
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal queue payload: %w", err)
		}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO sync_queue (entity_type, entity_id, action, payload, created_at, retry_count)
		VALUES ($1, $2, $3, $4, $5, 0)`,
		string(entity), entityID, string(action), raw, time.Now().UTC(),
	)
	return err
}

// ClearAll wipes receipts, items, and the sync queue. Settings survive the
// wipe; restore-from-cloud re-pulls business records only.
func (s *Store) ClearAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM items`,
		`DELETE FROM receipts`,
		`DELETE FROM sync_queue`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.notifyChanged()
	return nil
}

// nullString maps an optional string column.
func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func fromNullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func fromNullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func fromNullInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
