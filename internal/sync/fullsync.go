package sync

import (
	"context"
	"time"

	"github.com/MHMDHIDR/expenses-tracker/internal/models"
	"github.com/MHMDHIDR/expenses-tracker/internal/remote"
)

// FullSync runs the authoritative three-phase reconciliation: push local
// changes, pull the complete remote snapshot, then merge with server-wins
// semantics and prune locally whatever the remote no longer has. Phase 1 is
// best effort and is not rolled back when a later phase aborts. Being
// user- or reconnect-initiated, it skips the min-spacing and pause guards
// that apply to incremental Sync.
func (e *Engine) FullSync(ctx context.Context) bool {
	e.mu.Lock()
	if e.syncing || !e.status.Online {
		e.mu.Unlock()
		return false
	}
	e.syncing = true
	e.lastAttempt = time.Now()
	e.status.Syncing = true
	e.status.LastError = ""
	e.mu.Unlock()
	e.broadcast(EventSyncStart)

	start := time.Now()
	e.pushLocal(ctx)

	snap, err := e.remote.FetchAll(ctx)
	if err != nil {
		msg := err.Error()
		if remote.IsNetworkError(err) {
			msg = "connection failed"
		}
		e.logger.Errorf("full sync pull failed: %v", err)
		e.metrics.RecordCycle(ctx, float64(time.Since(start).Milliseconds()), true, false)
		e.finishFailure(ctx, msg)
		return false
	}

	if err := e.merge(ctx, snap); err != nil {
		e.logger.Errorf("full sync merge failed: %v", err)
		e.metrics.RecordCycle(ctx, float64(time.Since(start).Milliseconds()), true, false)
		e.finishFailure(ctx, err.Error())
		return false
	}

	now := time.Now().UTC()
	e.mu.Lock()
	e.status.LastSyncedAt = &now
	e.status.Syncing = false
	e.syncing = false
	e.failures = 0
	e.refreshPendingLocked(ctx)
	e.mu.Unlock()

	e.metrics.RecordCycle(ctx, float64(time.Since(start).Milliseconds()), true, true)
	e.broadcast(EventSyncComplete)
	return true
}

// SyncAllLocal pushes every record lacking a cloud id.
//
// Deprecated: FullSync supersedes this simpler push-only pass and should be
// used instead.
func (e *Engine) SyncAllLocal(ctx context.Context) bool {
	return e.FullSync(ctx)
}

// pushLocal is phase 1: create every unsynced receipt, item, and settings
// row remotely, stamping returned cloud ids, then drain the remaining queue
// entries unconditionally. Individual failures are logged and skipped.
func (e *Engine) pushLocal(ctx context.Context) {
	receipts, err := e.store.UnsyncedReceipts(ctx)
	if err != nil {
		e.logger.Errorf("full sync: listing unsynced receipts: %v", err)
	}
	for _, r := range receipts {
		created, err := e.remote.CreateReceipt(ctx, r.Remote())
		if err != nil {
			e.logger.Warnf("full sync: pushing receipt %d: %v", r.LocalID, err)
			continue
		}
		if err := e.store.MarkReceiptSynced(ctx, r.LocalID, created.ID); err != nil {
			e.logger.Errorf("full sync: marking receipt %d synced: %v", r.LocalID, err)
		}
	}

	items, err := e.store.UnsyncedItems(ctx)
	if err != nil {
		e.logger.Errorf("full sync: listing unsynced items: %v", err)
	}
	for _, it := range items {
		receiptID, err := e.parentCloudID(ctx, it)
		if err != nil {
			e.logger.Warnf("full sync: pushing item %d: %v", it.LocalID, err)
			continue
		}
		created, err := e.remote.CreateItem(ctx, it.Remote(receiptID))
		if err != nil {
			e.logger.Warnf("full sync: pushing item %d: %v", it.LocalID, err)
			continue
		}
		if err := e.store.MarkItemSynced(ctx, it.LocalID, created.ID); err != nil {
			e.logger.Errorf("full sync: marking item %d synced: %v", it.LocalID, err)
		}
	}

	if st, err := e.store.GetSettings(ctx); err != nil {
		e.logger.Errorf("full sync: loading settings: %v", err)
	} else if !st.Sync.Synced() {
		saved, err := e.remote.PutSettings(ctx, st.Remote())
		if err != nil {
			e.logger.Warnf("full sync: pushing settings: %v", err)
		} else if err := e.store.MarkSettingsSynced(ctx, saved.ID); err != nil {
			e.logger.Errorf("full sync: marking settings synced: %v", err)
		}
	}

	// Remaining queue entries cover updates and deletes on records that
	// already carry a cloud id. Each is removed regardless of outcome; a
	// failure here does not retry within this call.
	queue, err := e.store.PendingSyncItems(ctx)
	if err != nil {
		e.logger.Errorf("full sync: loading queue: %v", err)
		return
	}
	for _, q := range queue {
		if err := e.apply(ctx, q); err != nil {
			e.logger.Warnf("full sync: draining %s %s %s: %v", q.EntityType, q.Action, q.EntityID, err)
		} else {
			e.metrics.RecordReplayed(ctx, string(q.EntityType), string(q.Action))
		}
		if err := e.store.RemoveSyncItem(ctx, q.ID); err != nil {
			e.logger.Errorf("full sync: removing queue item %d: %v", q.ID, err)
		}
	}
}

// merge is phase 3: bulk-upsert the pulled snapshot keyed by cloud id
// (server fields win) and prune local records whose cloud id has vanished
// remotely. Records never pushed (no cloud id) survive untouched.
func (e *Engine) merge(ctx context.Context, snap *models.SyncSnapshot) error {
	if err := e.store.BulkUpsertReceipts(ctx, snap.Receipts); err != nil {
		return err
	}
	if err := e.store.BulkUpsertItems(ctx, snap.Items); err != nil {
		return err
	}
	if snap.Settings != nil {
		if err := e.store.UpsertSettingsRemote(ctx, *snap.Settings); err != nil {
			return err
		}
	}

	remoteReceipts := make(map[string]bool, len(snap.Receipts))
	for _, r := range snap.Receipts {
		remoteReceipts[r.ID] = true
	}
	synced, err := e.store.SyncedReceipts(ctx)
	if err != nil {
		return err
	}
	var staleReceipts []string
	for _, r := range synced {
		if !remoteReceipts[r.Sync.CloudIDString()] {
			staleReceipts = append(staleReceipts, r.Sync.CloudIDString())
		}
	}
	if err := e.store.DeleteReceiptsByCloudIDs(ctx, staleReceipts); err != nil {
		return err
	}

	remoteItems := make(map[string]bool, len(snap.Items))
	for _, it := range snap.Items {
		remoteItems[it.ID] = true
	}
	syncedItems, err := e.store.SyncedItems(ctx)
	if err != nil {
		return err
	}
	var staleItems []string
	for _, it := range syncedItems {
		if !remoteItems[it.Sync.CloudIDString()] {
			staleItems = append(staleItems, it.Sync.CloudIDString())
		}
	}
	return e.store.DeleteItemsByCloudIDs(ctx, staleItems)
}
