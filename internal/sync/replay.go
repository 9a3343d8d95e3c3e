package sync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MHMDHIDR/expenses-tracker/internal/models"
	"github.com/MHMDHIDR/expenses-tracker/internal/observability"
)

// Sync drains the queue incrementally. It returns true only for a fully
// clean cycle. Preconditions (already syncing, offline, attempted too soon,
// paused after repeated failures) make it a silent no-op returning false.
// It never re-invokes itself on completion; a failing queue is retried only
// by the next periodic tick or an explicit trigger.
func (e *Engine) Sync(ctx context.Context) bool {
	e.mu.Lock()
	if e.syncing || !e.status.Online {
		e.mu.Unlock()
		return false
	}
	if !e.lastAttempt.IsZero() && time.Since(e.lastAttempt) < e.opts.MinSyncInterval {
		e.mu.Unlock()
		return false
	}
	if e.failures >= e.opts.MaxConsecutiveFailures {
		e.status.LastError = "sync paused after repeated failures"
		e.mu.Unlock()
		e.broadcast(EventStatusChange)
		return false
	}
	e.syncing = true
	e.lastAttempt = time.Now()
	e.status.Syncing = true
	e.status.LastError = ""
	e.mu.Unlock()
	e.broadcast(EventSyncStart)

	start := time.Now()
	successes, failed, err := e.replayQueue(ctx)
	if err != nil {
		e.logger.Errorf("sync cycle aborted: %v", err)
		e.metrics.RecordCycle(ctx, float64(time.Since(start).Milliseconds()), false, false)
		e.finishFailure(ctx, err.Error())
		return false
	}

	now := time.Now().UTC()
	e.mu.Lock()
	e.status.LastSyncedAt = &now
	e.status.Syncing = false
	e.syncing = false
	e.refreshPendingLocked(ctx)
	if failed > 0 && successes == 0 {
		e.failures++
	} else {
		e.failures = 0
	}
	e.mu.Unlock()

	clean := failed == 0
	e.metrics.RecordCycle(ctx, float64(time.Since(start).Milliseconds()), false, clean)
	e.broadcast(EventSyncComplete)
	return clean
}

// finishFailure records an aborting error, clears the syncing flag, and
// bumps the consecutive-failure counter.
func (e *Engine) finishFailure(ctx context.Context, msg string) {
	e.mu.Lock()
	e.status.LastError = msg
	e.status.Syncing = false
	e.syncing = false
	e.failures++
	e.refreshPendingLocked(ctx)
	e.mu.Unlock()
	e.broadcast(EventSyncError)
}

// replayQueue applies the current queue snapshot in FIFO order. Entries are
// removed on success, or dropped once their retry count reaches the ceiling
// so a poison item cannot block the queue forever.
func (e *Engine) replayQueue(ctx context.Context) (successes, failed int, err error) {
	queue, err := e.store.PendingSyncItems(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, q := range queue {
		if applyErr := e.apply(ctx, q); applyErr != nil {
			failed++
			if q.RetryCount+1 >= e.opts.MaxRetryCount {
				e.logger.WithFields(map[string]interface{}{
					"entity": q.EntityType, "action": q.Action, "entityId": q.EntityID,
				}).Warnf("dropping queue item after %d failures: %v", q.RetryCount+1, applyErr)
				e.metrics.RecordDropped(ctx, string(q.EntityType), string(q.Action))
				if err := e.store.RemoveSyncItem(ctx, q.ID); err != nil {
					return successes, failed, err
				}
				continue
			}
			if err := e.store.IncrementSyncItemRetry(ctx, q.ID); err != nil {
				return successes, failed, err
			}
			continue
		}
		successes++
		e.metrics.RecordReplayed(ctx, string(q.EntityType), string(q.Action))
		if err := e.store.RemoveSyncItem(ctx, q.ID); err != nil {
			return successes, failed, err
		}
	}
	return successes, failed, nil
}

// apply dispatches one queue entry to the matching remote operation.
func (e *Engine) apply(ctx context.Context, q models.SyncQueueItem) error {
	ctx, span := observability.StartServiceSpan(ctx, "sync", "apply")
	defer span.End()
	span.SetAttributes(
		observability.EntityType(string(q.EntityType)),
		observability.Operation(string(q.Action)),
	)

	var err error
	switch q.EntityType {
	case models.EntityReceipt:
		err = e.applyReceipt(ctx, q)
	case models.EntityItem:
		err = e.applyItem(ctx, q)
	case models.EntitySettings:
		err = e.applySettings(ctx, q)
	default:
		err = fmt.Errorf("unknown entity type %q", q.EntityType)
	}
	if err != nil {
		observability.RecordError(span, err)
	} else {
		observability.SetSuccess(span)
	}
	return err
}

func (e *Engine) applyReceipt(ctx context.Context, q models.SyncQueueItem) error {
	if q.Action == models.ActionDelete {
		cloudID := q.DeleteCloudID()
		if cloudID == "" {
			// Never reached the remote store; nothing to delete there.
			return nil
		}
		return e.remote.DeleteReceipt(ctx, cloudID)
	}

	localID, err := strconv.ParseInt(q.EntityID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad receipt entity id %q: %w", q.EntityID, err)
	}
	r, err := e.store.GetReceipt(ctx, localID)
	if err != nil {
		var nf models.NotFoundError
		if errors.As(err, &nf) {
			// Deleted locally before it was ever pushed; the delete entry
			// later in the queue resolves to a no-op.
			return nil
		}
		return err
	}

	switch q.Action {
	case models.ActionCreate:
		if r.Sync.Synced() {
			return nil
		}
		created, err := e.remote.CreateReceipt(ctx, r.Remote())
		if err != nil {
			return err
		}
		return e.store.MarkReceiptSynced(ctx, r.LocalID, created.ID)
	case models.ActionUpdate:
		if !r.Sync.Synced() {
			return fmt.Errorf("receipt %d has no cloud id, nothing to update remotely", r.LocalID)
		}
		_, err := e.remote.UpdateReceipt(ctx, r.Sync.CloudIDString(), receiptPatch(r))
		return err
	}
	return fmt.Errorf("unknown action %q for receipt", q.Action)
}

func (e *Engine) applyItem(ctx context.Context, q models.SyncQueueItem) error {
	if q.Action == models.ActionDelete {
		cloudID := q.DeleteCloudID()
		if cloudID == "" {
			return nil
		}
		return e.remote.DeleteItem(ctx, cloudID)
	}

	localID, err := strconv.ParseInt(q.EntityID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad item entity id %q: %w", q.EntityID, err)
	}
	it, err := e.store.GetItem(ctx, localID)
	if err != nil {
		var nf models.NotFoundError
		if errors.As(err, &nf) {
			return nil
		}
		return err
	}

	receiptID, err := e.parentCloudID(ctx, it)
	if err != nil {
		return err
	}

	switch q.Action {
	case models.ActionCreate:
		if it.Sync.Synced() {
			return nil
		}
		created, err := e.remote.CreateItem(ctx, it.Remote(receiptID))
		if err != nil {
			return err
		}
		return e.store.MarkItemSynced(ctx, it.LocalID, created.ID)
	case models.ActionUpdate:
		if !it.Sync.Synced() {
			return fmt.Errorf("item %d has no cloud id, nothing to update remotely", it.LocalID)
		}
		_, err := e.remote.UpdateItem(ctx, it.Sync.CloudIDString(), itemPatch(it, receiptID))
		return err
	}
	return fmt.Errorf("unknown action %q for item", q.Action)
}

// parentCloudID resolves the item's parent receipt cloud id at replay time.
// The queue payload snapshot is taken before the parent is pushed, so the
// live record is the only trustworthy source. A still-unsynced parent fails
// the entry; FIFO order means the parent's own create runs first, so the
// retry normally succeeds within the same cycle's successor.
func (e *Engine) parentCloudID(ctx context.Context, it *models.Item) (string, error) {
	if it.ReceiptLocalID == nil {
		return "", nil
	}
	parent, err := e.store.GetReceipt(ctx, *it.ReceiptLocalID)
	if err != nil {
		var nf models.NotFoundError
		if errors.As(err, &nf) {
			return "", nil
		}
		return "", err
	}
	if !parent.Sync.Synced() {
		return "", fmt.Errorf("parent receipt %d not yet synced", parent.LocalID)
	}
	return parent.Sync.CloudIDString(), nil
}

func (e *Engine) applySettings(ctx context.Context, q models.SyncQueueItem) error {
	switch q.Action {
	case models.ActionCreate, models.ActionUpdate:
		st, err := e.store.GetSettings(ctx)
		if err != nil {
			return err
		}
		saved, err := e.remote.PutSettings(ctx, st.Remote())
		if err != nil {
			return err
		}
		return e.store.MarkSettingsSynced(ctx, saved.ID)
	case models.ActionDelete:
		// Settings are never deleted remotely.
		return nil
	}
	return fmt.Errorf("unknown action %q for settings", q.Action)
}

func receiptPatch(r *models.Receipt) models.ReceiptPatch {
	date := r.Date
	total := r.TotalCents
	processed := r.Processed
	return models.ReceiptPatch{
		Date:       &date,
		TotalCents: &total,
		ImagePath:  r.ImagePath,
		Merchant:   r.Merchant,
		Processed:  &processed,
	}
}

func itemPatch(it *models.Item, receiptID string) models.ItemPatch {
	name := it.Name
	qty := it.Quantity
	price := it.UnitPriceCents
	date := it.Date
	p := models.ItemPatch{
		Name:           &name,
		Quantity:       &qty,
		UnitPriceCents: &price,
		Date:           &date,
	}
	if receiptID != "" {
		p.ReceiptID = &receiptID
	}
	return p
}
