package store

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/MHMDHIDR/expenses-tracker/internal/models"
)

const receiptColumns = `id, purchase_date, total_cents, image_path, merchant, processed, sync_id, cloud_id, pending, last_synced_at`

func scanReceipt(row interface{ Scan(...any) error }) (*models.Receipt, error) {
	var (
		r         models.Receipt
		imagePath sql.NullString
		merchant  sql.NullString
		cloudID   sql.NullString
		lastSync  sql.NullTime
	)
	err := row.Scan(
		&r.LocalID,
		&r.Date,
		&r.TotalCents,
		&imagePath,
		&merchant,
		&r.Processed,
		&r.Sync.SyncID,
		&cloudID,
		&r.Sync.Pending,
		&lastSync,
	)
	if err != nil {
		return nil, err
	}
	r.Date = r.Date.UTC()
	r.ImagePath = fromNullString(imagePath)
	r.Merchant = fromNullString(merchant)
	r.Sync.CloudID = fromNullString(cloudID)
	r.Sync.LastSyncedAt = fromNullTime(lastSync)
	return &r, nil
}

// AddReceipt inserts a receipt with fresh sync metadata and enqueues its
// create entry. The receipt's LocalID and Sync fields are filled in.
func (s *Store) AddReceipt(ctx context.Context, r *models.Receipt) (int64, error) {
	r.Sync = models.NewSyncMetadata()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO receipts (purchase_date, total_cents, image_path, merchant, processed, sync_id, cloud_id, pending, last_synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULL, 1, NULL)`,
		r.Date.UTC(), r.TotalCents, nullString(r.ImagePath), nullString(r.Merchant), r.Processed, r.Sync.SyncID,
	)
	if err != nil {
		return 0, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	r.LocalID = id

	if err := s.enqueue(ctx, tx, models.EntityReceipt, strconv.FormatInt(id, 10), models.ActionCreate, r); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	s.notifyChanged()
	return id, nil
}

// GetReceipt fetches one receipt by local id.
func (s *Store) GetReceipt(ctx context.Context, localID int64) (*models.Receipt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE id = $1`, localID)
	r, err := scanReceipt(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrReceiptNotFound
	}
	return r, err
}

// ListReceipts returns all receipts ordered by purchase date, newest first.
func (s *Store) ListReceipts(ctx context.Context) ([]*models.Receipt, error) {
	return s.queryReceipts(ctx, `SELECT `+receiptColumns+` FROM receipts ORDER BY purchase_date DESC, id DESC`)
}

// UnsyncedReceipts returns receipts that have not been accepted remotely.
func (s *Store) UnsyncedReceipts(ctx context.Context) ([]*models.Receipt, error) {
	return s.queryReceipts(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE cloud_id IS NULL ORDER BY id`)
}

// SyncedReceipts returns receipts that carry a cloud id.
func (s *Store) SyncedReceipts(ctx context.Context) ([]*models.Receipt, error) {
	return s.queryReceipts(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE cloud_id IS NOT NULL ORDER BY id`)
}

func (s *Store) queryReceipts(ctx context.Context, query string, args ...any) ([]*models.Receipt, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var receipts []*models.Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}

// DeleteReceipt deletes a receipt and cascades to its items. Only the parent
// receipt's delete is queued; the entry carries the previously known cloud id
// so the remote delete resolves without a second lookup.
func (s *Store) DeleteReceipt(ctx context.Context, localID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var cloudID sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT cloud_id FROM receipts WHERE id = $1`, localID).Scan(&cloudID)
	if err == sql.ErrNoRows {
		return models.ErrReceiptNotFound
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE receipt_id = $1`, localID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM receipts WHERE id = $1`, localID); err != nil {
		return err
	}

	payload := models.DeletePayload{CloudID: cloudID.String}
	if err := s.enqueue(ctx, tx, models.EntityReceipt, strconv.FormatInt(localID, 10), models.ActionDelete, payload); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.notifyChanged()
	return nil
}

// MarkReceiptSynced stamps sync metadata after remote confirmation. Called
// only by the sync engine.
func (s *Store) MarkReceiptSynced(ctx context.Context, localID int64, cloudID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE receipts SET cloud_id = $1, pending = 0, last_synced_at = $2 WHERE id = $3`,
		cloudID, time.Now().UTC(), localID,
	)
	if err != nil {
		return err
	}
	s.notifyChanged()
	return nil
}

// BulkUpsertReceipts merges pulled remote receipts into the local store,
// keyed by cloud id. Server fields win on conflict; the local opaque sync id
// is preserved for existing rows.
func (s *Store) BulkUpsertReceipts(ctx context.Context, remote []models.RemoteReceipt) error {
	if len(remote) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, rr := range remote {
		var localID int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM receipts WHERE cloud_id = $1`, rr.ID).Scan(&localID)
		switch {
		case err == sql.ErrNoRows:
			meta := models.NewSyncMetadata()
			_, err = tx.ExecContext(ctx, `
				INSERT INTO receipts (purchase_date, total_cents, image_path, merchant, processed, sync_id, cloud_id, pending, last_synced_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8)`,
				rr.Date.UTC(), rr.TotalCents, nullString(rr.ImagePath), nullString(rr.Merchant), rr.Processed, meta.SyncID, rr.ID, now,
			)
		case err == nil:
			_, err = tx.ExecContext(ctx, `
				UPDATE receipts SET purchase_date = $1, total_cents = $2, image_path = $3, merchant = $4, processed = $5, pending = 0, last_synced_at = $6
				WHERE id = $7`,
				rr.Date.UTC(), rr.TotalCents, nullString(rr.ImagePath), nullString(rr.Merchant), rr.Processed, now, localID,
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

// DeleteReceiptsByCloudIDs prunes local receipts whose cloud ids are no
// longer present remotely. No-op on empty input.
func (s *Store) DeleteReceiptsByCloudIDs(ctx context.Context, cloudIDs []string) error {
	return s.deleteByCloudIDs(ctx, "receipts", cloudIDs)
}

func (s *Store) deleteByCloudIDs(ctx context.Context, table string, cloudIDs []string) error {
	if len(cloudIDs) == 0 {
		return nil
	}

	placeholders := make([]byte, 0, len(cloudIDs)*3)
	args := make([]any, 0, len(cloudIDs))
	for i, id := range cloudIDs {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '$')
		placeholders = strconv.AppendInt(placeholders, int64(i+1), 10)
		args = append(args, id)
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE cloud_id IN (`+string(placeholders)+`)`, args...)
	if err != nil {
		return err
	}
	s.notifyChanged()
	return nil
}
