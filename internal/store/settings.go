package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/MHMDHIDR/expenses-tracker/internal/models"
)

const settingsColumns = `id, weekly_budget_cents, sync_id, cloud_id, pending, last_synced_at`

func scanSettings(row interface{ Scan(...any) error }) (*models.UserSettings, error) {
	var (
		st       models.UserSettings
		cloudID  sql.NullString
		lastSync sql.NullTime
	)
	err := row.Scan(
		&st.ID,
		&st.WeeklyBudgetCents,
		&st.Sync.SyncID,
		&cloudID,
		&st.Sync.Pending,
		&lastSync,
	)
	if err != nil {
		return nil, err
	}
	st.Sync.CloudID = fromNullString(cloudID)
	st.Sync.LastSyncedAt = fromNullTime(lastSync)
	return &st, nil
}

// GetSettings returns the settings singleton, creating it lazily with the
// default budget if absent. Lazy creation queues a create entry like any
// other local mutation.
func (s *Store) GetSettings(ctx context.Context) (*models.UserSettings, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+settingsColumns+` FROM user_settings WHERE id = $1`, models.UserSettingsID)
	st, err := scanSettings(row)
	if err == nil {
		return st, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}
	return s.UpdateSettings(ctx, models.SettingsUpdate{})
}

// UpdateSettings applies a partial update with upsert semantics: an existing
// row is merged and marked pending; an absent row is created from defaults
// merged with the update. The matching create/update queue entry is appended
// in the same transaction.
func (s *Store) UpdateSettings(ctx context.Context, upd models.SettingsUpdate) (*models.UserSettings, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+settingsColumns+` FROM user_settings WHERE id = $1`, models.UserSettingsID)
	st, err := scanSettings(row)
	switch {
	case err == sql.ErrNoRows:
		st = models.DefaultSettings()
		upd.Apply(st)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO user_settings (id, weekly_budget_cents, sync_id, cloud_id, pending, last_synced_at)
			VALUES ($1, $2, $3, NULL, 1, NULL)`,
			st.ID, st.WeeklyBudgetCents, st.Sync.SyncID,
		)
		if err != nil {
			return nil, err
		}
		if err := s.enqueue(ctx, tx, models.EntitySettings, st.ID, models.ActionCreate, st); err != nil {
			return nil, err
		}
	case err == nil:
		upd.Apply(st)
		st.Sync.Pending = true
		_, err = tx.ExecContext(ctx, `
			UPDATE user_settings SET weekly_budget_cents = $1, pending = 1 WHERE id = $2`,
			st.WeeklyBudgetCents, st.ID,
		)
		if err != nil {
			return nil, err
		}
		if err := s.enqueue(ctx, tx, models.EntitySettings, st.ID, models.ActionUpdate, st); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.notifyChanged()
	return st, nil
}

// MarkSettingsSynced stamps sync metadata after remote confirmation.
func (s *Store) MarkSettingsSynced(ctx context.Context, cloudID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE user_settings SET cloud_id = $1, pending = 0, last_synced_at = $2 WHERE id = $3`,
		cloudID, time.Now().UTC(), models.UserSettingsID,
	)
	if err != nil {
		return err
	}
	s.notifyChanged()
	return nil
}

// UpsertSettingsRemote merges the pulled remote settings into the local row,
// server fields winning, keyed by the singleton id.
func (s *Store) UpsertSettingsRemote(ctx context.Context, remote models.RemoteSettings) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var existing string
	err = tx.QueryRowContext(ctx, `SELECT id FROM user_settings WHERE id = $1`, models.UserSettingsID).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		meta := models.NewSyncMetadata()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO user_settings (id, weekly_budget_cents, sync_id, cloud_id, pending, last_synced_at)
			VALUES ($1, $2, $3, $4, 0, $5)`,
			models.UserSettingsID, remote.WeeklyBudgetCents, meta.SyncID, remote.ID, now,
		)
	case err == nil:
		_, err = tx.ExecContext(ctx, `
			UPDATE user_settings SET weekly_budget_cents = $1, cloud_id = $2, pending = 0, last_synced_at = $3 WHERE id = $4`,
			remote.WeeklyBudgetCents, remote.ID, now, models.UserSettingsID,
		)
	}
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.notifyChanged()
	return nil
}
