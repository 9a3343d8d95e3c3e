package server

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/MHMDHIDR/expenses-tracker/internal/models"
)

// Repo provides CRUD over the server-side store. All queries use $N
// placeholders, which both drivers accept.
type Repo struct {
	db *sql.DB
}

// NewRepo creates a Repo over an initialized database
func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

const receiptCols = "id, purchase_date, total_cents, image_path, merchant, processed"

func scanRemoteReceipt(row interface{ Scan(...any) error }) (models.RemoteReceipt, error) {
	var r models.RemoteReceipt
	var imagePath, merchant sql.NullString
	if err := row.Scan(&r.ID, &r.Date, &r.TotalCents, &imagePath, &merchant, &r.Processed); err != nil {
		return r, err
	}
	if imagePath.Valid {
		r.ImagePath = &imagePath.String
	}
	if merchant.Valid {
		r.Merchant = &merchant.String
	}
	return r, nil
}

// ListReceipts returns all receipts ordered by purchase date descending
func (p *Repo) ListReceipts(ctx context.Context) ([]models.RemoteReceipt, error) {
	rows, err := p.db.QueryContext(ctx,
		"SELECT "+receiptCols+" FROM receipts ORDER BY purchase_date DESC, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	receipts := []models.RemoteReceipt{}
	for rows.Next() {
		r, err := scanRemoteReceipt(rows)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}

// GetReceipt fetches one receipt by id
func (p *Repo) GetReceipt(ctx context.Context, id string) (models.RemoteReceipt, error) {
	row := p.db.QueryRowContext(ctx,
		"SELECT "+receiptCols+" FROM receipts WHERE id = $1", id)
	r, err := scanRemoteReceipt(row)
	if err == sql.ErrNoRows {
		return r, models.ErrReceiptNotFound
	}
	return r, err
}

// CreateReceipt inserts a receipt, assigning a server id
func (p *Repo) CreateReceipt(ctx context.Context, r models.RemoteReceipt) (models.RemoteReceipt, error) {
	r.ID = uuid.New().String()
	now := time.Now().UTC()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO receipts (id, purchase_date, total_cents, image_path, merchant, processed, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.Date.UTC(), r.TotalCents, nullable(r.ImagePath), nullable(r.Merchant), r.Processed, now, now)
	return r, err
}

// UpdateReceipt applies a partial update and returns the updated record
func (p *Repo) UpdateReceipt(ctx context.Context, id string, patch models.ReceiptPatch) (models.RemoteReceipt, error) {
	r, err := p.GetReceipt(ctx, id)
	if err != nil {
		return r, err
	}
	if patch.Date != nil {
		r.Date = patch.Date.UTC()
	}
	if patch.TotalCents != nil {
		r.TotalCents = *patch.TotalCents
	}
	if patch.ImagePath != nil {
		r.ImagePath = patch.ImagePath
	}
	if patch.Merchant != nil {
		r.Merchant = patch.Merchant
	}
	if patch.Processed != nil {
		r.Processed = *patch.Processed
	}
	_, err = p.db.ExecContext(ctx,
		`UPDATE receipts SET purchase_date = $1, total_cents = $2, image_path = $3, merchant = $4, processed = $5, updated_at = $6
		 WHERE id = $7`,
		r.Date, r.TotalCents, nullable(r.ImagePath), nullable(r.Merchant), r.Processed, time.Now().UTC(), id)
	return r, err
}

// DeleteReceipt removes a receipt and its items. Deleting an absent id is
// not an error. The item delete is explicit, not left to the foreign key,
// so databases created before the cascade constraint behave the same.
func (p *Repo) DeleteReceipt(ctx context.Context, id string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "DELETE FROM items WHERE receipt_id = $1", id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM receipts WHERE id = $1", id); err != nil {
		return err
	}
	return tx.Commit()
}

const itemCols = "id, receipt_id, name, quantity, unit_price_cents, item_date"

func scanRemoteItem(row interface{ Scan(...any) error }) (models.RemoteItem, error) {
	var it models.RemoteItem
	var receiptID sql.NullString
	if err := row.Scan(&it.ID, &receiptID, &it.Name, &it.Quantity, &it.UnitPriceCents, &it.Date); err != nil {
		return it, err
	}
	if receiptID.Valid {
		it.ReceiptID = &receiptID.String
	}
	return it, nil
}

// ListItems returns all items ordered by date descending
func (p *Repo) ListItems(ctx context.Context) ([]models.RemoteItem, error) {
	rows, err := p.db.QueryContext(ctx,
		"SELECT "+itemCols+" FROM items ORDER BY item_date DESC, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.RemoteItem{}
	for rows.Next() {
		it, err := scanRemoteItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetItem fetches one item by id
func (p *Repo) GetItem(ctx context.Context, id string) (models.RemoteItem, error) {
	row := p.db.QueryRowContext(ctx,
		"SELECT "+itemCols+" FROM items WHERE id = $1", id)
	it, err := scanRemoteItem(row)
	if err == sql.ErrNoRows {
		return it, models.ErrItemNotFound
	}
	return it, err
}

// CreateItem inserts an item, assigning a server id
func (p *Repo) CreateItem(ctx context.Context, it models.RemoteItem) (models.RemoteItem, error) {
	it.ID = uuid.New().String()
	now := time.Now().UTC()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO items (id, receipt_id, name, quantity, unit_price_cents, item_date, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		it.ID, nullable(it.ReceiptID), it.Name, it.Quantity, it.UnitPriceCents, it.Date.UTC(), now, now)
	return it, err
}

// CreateItems batch-creates items, returning them in input order
func (p *Repo) CreateItems(ctx context.Context, items []models.RemoteItem) ([]models.RemoteItem, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	created := make([]models.RemoteItem, 0, len(items))
	for _, it := range items {
		it.ID = uuid.New().String()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO items (id, receipt_id, name, quantity, unit_price_cents, item_date, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			it.ID, nullable(it.ReceiptID), it.Name, it.Quantity, it.UnitPriceCents, it.Date.UTC(), now, now); err != nil {
			return nil, err
		}
		created = append(created, it)
	}
	return created, tx.Commit()
}

// UpdateItem applies a partial update and returns the updated record
func (p *Repo) UpdateItem(ctx context.Context, id string, patch models.ItemPatch) (models.RemoteItem, error) {
	it, err := p.GetItem(ctx, id)
	if err != nil {
		return it, err
	}
	if patch.ReceiptID != nil {
		it.ReceiptID = patch.ReceiptID
	}
	if patch.Name != nil {
		it.Name = *patch.Name
	}
	if patch.Quantity != nil {
		it.Quantity = *patch.Quantity
	}
	if patch.UnitPriceCents != nil {
		it.UnitPriceCents = *patch.UnitPriceCents
	}
	if patch.Date != nil {
		it.Date = patch.Date.UTC()
	}
	_, err = p.db.ExecContext(ctx,
		`UPDATE items SET receipt_id = $1, name = $2, quantity = $3, unit_price_cents = $4, item_date = $5, updated_at = $6
		 WHERE id = $7`,
		nullable(it.ReceiptID), it.Name, it.Quantity, it.UnitPriceCents, it.Date, time.Now().UTC(), id)
	return it, err
}

// DeleteItem removes an item. Deleting an absent id is not an error.
func (p *Repo) DeleteItem(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, "DELETE FROM items WHERE id = $1", id)
	return err
}

// GetSettings returns the settings singleton, creating defaults if absent
func (p *Repo) GetSettings(ctx context.Context) (models.RemoteSettings, error) {
	var s models.RemoteSettings
	row := p.db.QueryRowContext(ctx,
		"SELECT id, weekly_budget_cents FROM settings LIMIT 1")
	err := row.Scan(&s.ID, &s.WeeklyBudgetCents)
	if err == sql.ErrNoRows {
		s = models.RemoteSettings{
			ID:                uuid.New().String(),
			WeeklyBudgetCents: models.DefaultWeeklyBudgetCents,
		}
		_, err = p.db.ExecContext(ctx,
			"INSERT INTO settings (id, weekly_budget_cents, updated_at) VALUES ($1, $2, $3)",
			s.ID, s.WeeklyBudgetCents, time.Now().UTC())
		return s, err
	}
	return s, err
}

// PutSettings upserts the settings singleton and returns the stored record
func (p *Repo) PutSettings(ctx context.Context, s models.RemoteSettings) (models.RemoteSettings, error) {
	existing, err := p.GetSettings(ctx)
	if err != nil {
		return s, err
	}
	existing.WeeklyBudgetCents = s.WeeklyBudgetCents
	_, err = p.db.ExecContext(ctx,
		"UPDATE settings SET weekly_budget_cents = $1, updated_at = $2 WHERE id = $3",
		existing.WeeklyBudgetCents, time.Now().UTC(), existing.ID)
	return existing, err
}

// Snapshot returns the complete server state for full reconciliation pulls
func (p *Repo) Snapshot(ctx context.Context) (*models.SyncSnapshot, error) {
	receipts, err := p.ListReceipts(ctx)
	if err != nil {
		return nil, err
	}
	items, err := p.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	settings, err := p.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	return &models.SyncSnapshot{
		Receipts: receipts,
		Items:    items,
		Settings: &settings,
	}, nil
}

// BulkPush creates all pushed records, mapping client-local ids to server
// ids. Item receipt references given as client-local receipt ids are
// rewritten to the freshly assigned server ids.
func (p *Repo) BulkPush(ctx context.Context, req models.BulkPushRequest) (*models.BulkPushResponse, error) {
	resp := &models.BulkPushResponse{
		ReceiptIDs: make(map[string]string, len(req.Receipts)),
		ItemIDs:    make(map[string]string, len(req.Items)),
	}

	for _, r := range req.Receipts {
		created, err := p.CreateReceipt(ctx, r.RemoteReceipt)
		if err != nil {
			return nil, err
		}
		resp.ReceiptIDs[r.LocalID] = created.ID
	}

	for _, it := range req.Items {
		record := it.RemoteItem
		if record.ReceiptID != nil {
			if serverID, ok := resp.ReceiptIDs[*record.ReceiptID]; ok {
				record.ReceiptID = &serverID
			}
		}
		created, err := p.CreateItem(ctx, record)
		if err != nil {
			return nil, err
		}
		resp.ItemIDs[it.LocalID] = created.ID
	}

	if req.Settings != nil {
		saved, err := p.PutSettings(ctx, *req.Settings)
		if err != nil {
			return nil, err
		}
		resp.SettingsID = saved.ID
	}

	return resp, nil
}

func nullable(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
