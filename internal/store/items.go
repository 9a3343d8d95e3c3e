package store

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/MHMDHIDR/expenses-tracker/internal/models"
)

const itemColumns = `id, receipt_id, name, quantity, unit_price_cents, purchase_date, sync_id, cloud_id, pending, last_synced_at`

func scanItem(row interface{ Scan(...any) error }) (*models.Item, error) {
	var (
		it        models.Item
		receiptID sql.NullInt64
		cloudID   sql.NullString
		lastSync  sql.NullTime
	)
	err := row.Scan(
		&it.LocalID,
		&receiptID,
		&it.Name,
		&it.Quantity,
		&it.UnitPriceCents,
		&it.Date,
		&it.Sync.SyncID,
		&cloudID,
		&it.Sync.Pending,
		&lastSync,
	)
	if err != nil {
		return nil, err
	}
	it.Date = it.Date.UTC()
	it.ReceiptLocalID = fromNullInt64(receiptID)
	it.Sync.CloudID = fromNullString(cloudID)
	it.Sync.LastSyncedAt = fromNullTime(lastSync)
	return &it, nil
}

// AddItem inserts an item with fresh sync metadata and enqueues its create
// entry.
func (s *Store) AddItem(ctx context.Context, it *models.Item) (int64, error) {
	ids, err := s.AddItems(ctx, []*models.Item{it})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// AddItems inserts a batch of items in one transaction; each item is
// individually enqueued.
func (s *Store) AddItems(ctx context.Context, items []*models.Item) ([]int64, error) {
	if len(items) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ids := make([]int64, 0, len(items))
	for _, it := range items {
		it.Sync = models.NewSyncMetadata()

		var receiptID sql.NullInt64
		if it.ReceiptLocalID != nil {
			receiptID = sql.NullInt64{Int64: *it.ReceiptLocalID, Valid: true}
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO items (receipt_id, name, quantity, unit_price_cents, purchase_date, sync_id, cloud_id, pending, last_synced_at)
			VALUES ($1, $2, $3, $4, $5, $6, NULL, 1, NULL)`,
			receiptID, it.Name, it.Quantity, it.UnitPriceCents, it.Date.UTC(), it.Sync.SyncID,
		)
		if err != nil {
			return nil, err
		}

		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		it.LocalID = id
		ids = append(ids, id)

		if err := s.enqueue(ctx, tx, models.EntityItem, strconv.FormatInt(id, 10), models.ActionCreate, it); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.notifyChanged()
	return ids, nil
}

// GetItem fetches one item by local id.
func (s *Store) GetItem(ctx context.Context, localID int64) (*models.Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, localID)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrItemNotFound
	}
	return it, err
}

// ListItems returns all items ordered by purchase date, newest first.
func (s *Store) ListItems(ctx context.Context) ([]*models.Item, error) {
	return s.queryItems(ctx, `SELECT `+itemColumns+` FROM items ORDER BY purchase_date DESC, id DESC`)
}

// ItemsByReceipt returns the items associated with a receipt.
func (s *Store) ItemsByReceipt(ctx context.Context, receiptLocalID int64) ([]*models.Item, error) {
	return s.queryItems(ctx, `SELECT `+itemColumns+` FROM items WHERE receipt_id = $1 ORDER BY id`, receiptLocalID)
}

// UnsyncedItems returns items that have not been accepted remotely.
func (s *Store) UnsyncedItems(ctx context.Context) ([]*models.Item, error) {
	return s.queryItems(ctx, `SELECT `+itemColumns+` FROM items WHERE cloud_id IS NULL ORDER BY id`)
}

// SyncedItems returns items that carry a cloud id.
func (s *Store) SyncedItems(ctx context.Context) ([]*models.Item, error) {
	return s.queryItems(ctx, `SELECT `+itemColumns+` FROM items WHERE cloud_id IS NOT NULL ORDER BY id`)
}

func (s *Store) queryItems(ctx context.Context, query string, args ...any) ([]*models.Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// DeleteItem deletes an item and enqueues its delete entry with the
// previously known cloud id.
func (s *Store) DeleteItem(ctx context.Context, localID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var cloudID sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT cloud_id FROM items WHERE id = $1`, localID).Scan(&cloudID)
	if err == sql.ErrNoRows {
		return models.ErrItemNotFound
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, localID); err != nil {
		return err
	}

	payload := models.DeletePayload{CloudID: cloudID.String}
	if err := s.enqueue(ctx, tx, models.EntityItem, strconv.FormatInt(localID, 10), models.ActionDelete, payload); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.notifyChanged()
	return nil
}

// MarkItemSynced stamps sync metadata after remote confirmation.
func (s *Store) MarkItemSynced(ctx context.Context, localID int64, cloudID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE items SET cloud_id = $1, pending = 0, last_synced_at = $2 WHERE id = $3`,
		cloudID, time.Now().UTC(), localID,
	)
	if err != nil {
		return err
	}
	s.notifyChanged()
	return nil
}

// BulkUpsertItems merges pulled remote items into the local store, keyed by
// cloud id. The parent association is resolved through the parent receipt's
// cloud id; items whose parent is unknown locally are stored unassociated.
func (s *Store) BulkUpsertItems(ctx context.Context, remote []models.RemoteItem) error {
	if len(remote) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, ri := range remote {
		var receiptID sql.NullInt64
		if ri.ReceiptID != nil && *ri.ReceiptID != "" {
			var parentLocal int64
			err := tx.QueryRowContext(ctx, `SELECT id FROM receipts WHERE cloud_id = $1`, *ri.ReceiptID).Scan(&parentLocal)
			if err == nil {
				receiptID = sql.NullInt64{Int64: parentLocal, Valid: true}
			} else if err != sql.ErrNoRows {
				return err
			}
		}

		var localID int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM items WHERE cloud_id = $1`, ri.ID).Scan(&localID)
		switch {
		case err == sql.ErrNoRows:
			meta := models.NewSyncMetadata()
			_, err = tx.ExecContext(ctx, `
				INSERT INTO items (receipt_id, name, quantity, unit_price_cents, purchase_date, sync_id, cloud_id, pending, last_synced_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8)`,
				receiptID, ri.Name, ri.Quantity, ri.UnitPriceCents, ri.Date.UTC(), meta.SyncID, ri.ID, now,
			)
		case err == nil:
			_, err = tx.ExecContext(ctx, `
				UPDATE items SET receipt_id = $1, name = $2, quantity = $3, unit_price_cents = $4, purchase_date = $5, pending = 0, last_synced_at = $6
				WHERE id = $7`,
				receiptID, ri.Name, ri.Quantity, ri.UnitPriceCents, ri.Date.UTC(), now, localID,
			)
		}
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.notifyChanged()
	return nil
}

// DeleteItemsByCloudIDs prunes local items whose cloud ids are no longer
// present remotely. No-op on empty input.
func (s *Store) DeleteItemsByCloudIDs(ctx context.Context, cloudIDs []string) error {
	return s.deleteByCloudIDs(ctx, "items", cloudIDs)
}
