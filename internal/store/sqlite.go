package store

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// NewSQLiteDB creates and initializes the local durable store.
func NewSQLiteDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}

	// Create tables
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	schema := `
	-- Receipts
	CREATE TABLE IF NOT EXISTS receipts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		purchase_date DATETIME NOT NULL,
		total_cents INTEGER NOT NULL DEFAULT 0,
		image_path TEXT,
		merchant TEXT,
		processed INTEGER NOT NULL DEFAULT 0,
		sync_id TEXT NOT NULL,
		cloud_id TEXT,
		pending INTEGER NOT NULL DEFAULT 1,
		last_synced_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_receipts_purchase_date ON receipts(purchase_date);
	CREATE INDEX IF NOT EXISTS idx_receipts_cloud_id ON receipts(cloud_id);

	-- Line items (receipt_id is nullable; items may be unassociated)
	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		receipt_id INTEGER REFERENCES receipts(id) ON DELETE SET NULL,
		name TEXT NOT NULL,
		quantity INTEGER NOT NULL DEFAULT 1,
		unit_price_cents INTEGER NOT NULL DEFAULT 0,
		purchase_date DATETIME NOT NULL,
		sync_id TEXT NOT NULL,
		cloud_id TEXT,
		pending INTEGER NOT NULL DEFAULT 1,
		last_synced_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_items_receipt_id ON items(receipt_id);
	CREATE INDEX IF NOT EXISTS idx_items_purchase_date ON items(purchase_date);
	CREATE INDEX IF NOT EXISTS idx_items_cloud_id ON items(cloud_id);

	-- Settings singleton
	CREATE TABLE IF NOT EXISTS user_settings (
		id TEXT PRIMARY KEY,
		weekly_budget_cents INTEGER NOT NULL DEFAULT 0,
		sync_id TEXT NOT NULL,
		cloud_id TEXT,
		pending INTEGER NOT NULL DEFAULT 1,
		last_synced_at DATETIME
	);

	-- Sync queue; creation order is replay order
	CREATE TABLE IF NOT EXISTS sync_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		action TEXT NOT NULL,
		payload TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		retry_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_sync_queue_created_at ON sync_queue(created_at);
	`

	_, err := db.Exec(schema)
	return err
}
