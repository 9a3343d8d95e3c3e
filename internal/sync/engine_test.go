package sync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MHMDHIDR/expenses-tracker/internal/models"
	"github.com/MHMDHIDR/expenses-tracker/internal/remote"
	"github.com/MHMDHIDR/expenses-tracker/internal/store"
)

// fakeRemote is an in-memory RemoteAPI with programmable failures.
type fakeRemote struct {
	mu       stdsync.Mutex
	receipts map[string]models.RemoteReceipt
	items    map[string]models.RemoteItem
	settings *models.RemoteSettings
	nextID   int
	calls    []string

	err       error // every operation fails with this when set
	createErr error // creates only
	fetchErr  error // FetchAll only

	gate    chan struct{} // CreateReceipt blocks on this when non-nil
	entered chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		receipts: make(map[string]models.RemoteReceipt),
		items:    make(map[string]models.RemoteItem),
		entered:  make(chan struct{}, 8),
	}
}

func (f *fakeRemote) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeRemote) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeRemote) callList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRemote) newID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeRemote) Health(ctx context.Context) error {
	f.record("Health")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeRemote) CreateReceipt(ctx context.Context, r models.RemoteReceipt) (models.RemoteReceipt, error) {
	f.record("CreateReceipt")
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		f.entered <- struct{}{}
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return models.RemoteReceipt{}, f.err
	}
	if f.createErr != nil {
		return models.RemoteReceipt{}, f.createErr
	}
	r.ID = f.newID("rc")
	f.receipts[r.ID] = r
	return r, nil
}

func (f *fakeRemote) UpdateReceipt(ctx context.Context, id string, p models.ReceiptPatch) (models.RemoteReceipt, error) {
	f.record("UpdateReceipt")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return models.RemoteReceipt{}, f.err
	}
	r, ok := f.receipts[id]
	if !ok {
		return models.RemoteReceipt{}, &remote.APIError{StatusCode: 404, Message: "Receipt not found."}
	}
	if p.Date != nil {
		r.Date = *p.Date
	}
	if p.TotalCents != nil {
		r.TotalCents = *p.TotalCents
	}
	if p.ImagePath != nil {
		r.ImagePath = p.ImagePath
	}
	if p.Merchant != nil {
		r.Merchant = p.Merchant
	}
	if p.Processed != nil {
		r.Processed = *p.Processed
	}
	f.receipts[id] = r
	return r, nil
}

func (f *fakeRemote) DeleteReceipt(ctx context.Context, id string) error {
	f.record("DeleteReceipt")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	delete(f.receipts, id)
	// The facade cascades a receipt delete to its items.
	for itemID, it := range f.items {
		if it.ReceiptID != nil && *it.ReceiptID == id {
			delete(f.items, itemID)
		}
	}
	return nil
}

func (f *fakeRemote) CreateItem(ctx context.Context, it models.RemoteItem) (models.RemoteItem, error) {
	f.record("CreateItem")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return models.RemoteItem{}, f.err
	}
	if f.createErr != nil {
		return models.RemoteItem{}, f.createErr
	}
	it.ID = f.newID("it")
	f.items[it.ID] = it
	return it, nil
}

func (f *fakeRemote) UpdateItem(ctx context.Context, id string, p models.ItemPatch) (models.RemoteItem, error) {
	f.record("UpdateItem")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return models.RemoteItem{}, f.err
	}
	it, ok := f.items[id]
	if !ok {
		return models.RemoteItem{}, &remote.APIError{StatusCode: 404, Message: "Item not found."}
	}
	if p.ReceiptID != nil {
		it.ReceiptID = p.ReceiptID
	}
	if p.Name != nil {
		it.Name = *p.Name
	}
	if p.Quantity != nil {
		it.Quantity = *p.Quantity
	}
	if p.UnitPriceCents != nil {
		it.UnitPriceCents = *p.UnitPriceCents
	}
	if p.Date != nil {
		it.Date = *p.Date
	}
	f.items[id] = it
	return it, nil
}

func (f *fakeRemote) DeleteItem(ctx context.Context, id string) error {
	f.record("DeleteItem")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	delete(f.items, id)
	return nil
}

func (f *fakeRemote) PutSettings(ctx context.Context, s models.RemoteSettings) (models.RemoteSettings, error) {
	f.record("PutSettings")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return models.RemoteSettings{}, f.err
	}
	if s.ID == "" {
		if f.settings != nil {
			s.ID = f.settings.ID
		} else {
			s.ID = f.newID("st")
		}
	}
	f.settings = &s
	return s, nil
}

func (f *fakeRemote) FetchAll(ctx context.Context) (*models.SyncSnapshot, error) {
	f.record("FetchAll")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.err != nil {
		return nil, f.err
	}
	snap := &models.SyncSnapshot{Settings: f.settings}
	for _, r := range f.receipts {
		snap.Receipts = append(snap.Receipts, r)
	}
	for _, it := range f.items {
		snap.Items = append(snap.Items, it)
	}
	return snap, nil
}

// eventLog records broadcast deliveries for assertions.
type eventLog struct {
	mu     stdsync.Mutex
	events []Event
}

func (l *eventLog) listener(ev Event, _ models.SyncStatus) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) count(ev Event) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e == ev {
			n++
		}
	}
	return n
}

func (l *eventLog) all() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func testOptions() Options {
	return Options{
		PeriodicInterval:       time.Hour,
		DebounceWindow:         30 * time.Millisecond,
		MinSyncInterval:        0,
		MaxRetryCount:          3,
		MaxConsecutiveFailures: 5,
	}
}

func newTestEngine(t *testing.T, online bool) (*Engine, *store.Store, *fakeRemote, *ManualConnectivity) {
	t.Helper()
	db, err := store.NewSQLiteDB(filepath.Join(t.TempDir(), "sync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	st := store.New(db)
	f := newFakeRemote()
	conn := NewManualConnectivity(online)
	return New(st, f, conn, testOptions()), st, f, conn
}

func addReceipt(t *testing.T, st *store.Store, totalCents int64) int64 {
	t.Helper()
	r, err := models.NewReceipt(time.Now().UTC(), totalCents, nil)
	require.NoError(t, err)
	id, err := st.AddReceipt(context.Background(), r)
	require.NoError(t, err)
	return id
}

func addItem(t *testing.T, st *store.Store, name string, receiptID *int64) int64 {
	t.Helper()
	it, err := models.NewItem(name, 1, 100, time.Now().UTC(), receiptID)
	require.NoError(t, err)
	id, err := st.AddItem(context.Background(), it)
	require.NoError(t, err)
	return id
}

func TestEngine_Sync_ReplaysQueueInOrder(t *testing.T) {
	ctx := context.Background()
	e, st, f, _ := newTestEngine(t, true)

	receiptID := addReceipt(t, st, 1200)
	addItem(t, st, "Milk", &receiptID)

	assert.True(t, e.Sync(ctx))

	// The parent receipt's create must run before the item's so the item
	// can resolve its parent cloud id.
	assert.Equal(t, []string{"CreateReceipt", "CreateItem"}, f.callList())

	count, err := st.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	got, err := st.GetReceipt(ctx, receiptID)
	require.NoError(t, err)
	assert.True(t, got.Sync.Synced())

	status := e.Status()
	assert.Equal(t, 0, status.PendingCount)
	assert.NotNil(t, status.LastSyncedAt)
	assert.Empty(t, status.LastError)
}

func TestEngine_Sync_UnsyncedDeleteNeverReachesRemote(t *testing.T) {
	ctx := context.Background()
	e, st, f, _ := newTestEngine(t, true)

	receiptID := addReceipt(t, st, 500)
	require.NoError(t, st.DeleteReceipt(ctx, receiptID))

	// Created and deleted entirely offline: both entries resolve locally.
	assert.True(t, e.Sync(ctx))
	assert.Empty(t, f.callList())

	count, err := st.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestEngine_Sync_DeleteUsesRecordedCloudID(t *testing.T) {
	ctx := context.Background()
	e, st, f, _ := newTestEngine(t, true)

	receiptID := addReceipt(t, st, 500)
	require.True(t, e.Sync(ctx))
	require.Equal(t, 1, f.callCount("CreateReceipt"))

	require.NoError(t, st.DeleteReceipt(ctx, receiptID))
	assert.True(t, e.Sync(ctx))
	assert.Equal(t, 1, f.callCount("DeleteReceipt"))
	assert.Empty(t, f.receipts)
}

func TestEngine_Sync_RetryCeiling(t *testing.T) {
	ctx := context.Background()
	e, st, f, _ := newTestEngine(t, true)

	f.createErr = errors.New("server rejects creates")
	addReceipt(t, st, 100)

	// First two failures leave the entry queued with a bumped retry count.
	for attempt, wantRetry := range []int{1, 2} {
		assert.False(t, e.Sync(ctx), "attempt %d", attempt)
		queue, err := st.PendingSyncItems(ctx)
		require.NoError(t, err)
		require.Len(t, queue, 1)
		assert.Equal(t, wantRetry, queue[0].RetryCount)
	}

	// The third failure drops the entry so it cannot wedge the queue.
	assert.False(t, e.Sync(ctx))
	count, err := st.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, 3, f.callCount("CreateReceipt"))

	// The record itself survives, still unsynced.
	receipts, err := st.UnsyncedReceipts(ctx)
	require.NoError(t, err)
	assert.Len(t, receipts, 1)
}

func TestEngine_Sync_AutoPauseAfterRepeatedFailures(t *testing.T) {
	ctx := context.Background()
	e, st, f, _ := newTestEngine(t, true)
	f.createErr = errors.New("remote down")

	var log eventLog
	defer e.Subscribe(log.listener)()

	for i := 0; i < 5; i++ {
		addReceipt(t, st, int64(100+i))
		assert.False(t, e.Sync(ctx))
	}
	startsBefore := log.count(EventSyncStart)

	// Paused: the next attempt is refused before any remote traffic.
	callsBefore := f.callCount("CreateReceipt")
	assert.False(t, e.Sync(ctx))
	assert.Equal(t, callsBefore, f.callCount("CreateReceipt"))
	assert.Equal(t, startsBefore, log.count(EventSyncStart))
	assert.Equal(t, "sync paused after repeated failures", e.Status().LastError)

	// ResetFailures lifts the pause.
	f.mu.Lock()
	f.createErr = nil
	f.mu.Unlock()
	e.ResetFailures()
	assert.Empty(t, e.Status().LastError)
	assert.True(t, e.Sync(ctx))
}

func TestEngine_Sync_SilentWhenOffline(t *testing.T) {
	ctx := context.Background()
	e, st, f, _ := newTestEngine(t, false)

	addReceipt(t, st, 900)

	var log eventLog
	defer e.Subscribe(log.listener)()

	assert.False(t, e.Sync(ctx))
	assert.Empty(t, f.callList())
	assert.Empty(t, log.all())

	count, err := st.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEngine_OfflineChangeUpdatesPendingStatus(t *testing.T) {
	ctx := context.Background()
	e, st, f, _ := newTestEngine(t, false)

	e.Start(ctx)
	t.Cleanup(e.Stop)

	var log eventLog
	defer e.Subscribe(log.listener)()

	addReceipt(t, st, 700)

	// The status record reflects the queued change immediately, with no
	// sync attempt and no remote traffic while offline.
	status := e.Status()
	assert.Equal(t, 1, status.PendingCount)
	assert.False(t, status.Online)
	assert.Empty(t, f.callList())
	assert.GreaterOrEqual(t, log.count(EventStatusChange), 1)
	assert.Zero(t, log.count(EventSyncStart))

	addReceipt(t, st, 800)
	assert.Equal(t, 2, e.Status().PendingCount)
}

func TestEngine_Sync_MinSpacing(t *testing.T) {
	ctx := context.Background()
	e, _, _, _ := newTestEngine(t, true)
	e.opts.MinSyncInterval = time.Hour

	var log eventLog
	defer e.Subscribe(log.listener)()

	assert.True(t, e.Sync(ctx))
	assert.False(t, e.Sync(ctx))
	assert.Equal(t, 1, log.count(EventSyncStart))
}

func TestEngine_AtMostOneSyncAtATime(t *testing.T) {
	ctx := context.Background()
	e, st, f, _ := newTestEngine(t, true)

	addReceipt(t, st, 100)
	f.gate = make(chan struct{})

	first := make(chan bool, 1)
	go func() { first <- e.Sync(ctx) }()
	<-f.entered

	// A second trigger of either kind is refused while one body runs.
	assert.False(t, e.Sync(ctx))
	assert.False(t, e.FullSync(ctx))

	close(f.gate)
	assert.True(t, <-first)
}

func TestEngine_BroadcastEchoesStatusChange(t *testing.T) {
	ctx := context.Background()
	e, _, _, _ := newTestEngine(t, true)

	var log eventLog
	defer e.Subscribe(log.listener)()

	require.True(t, e.Sync(ctx))
	assert.Equal(t, []Event{
		EventSyncStart, EventStatusChange,
		EventSyncComplete, EventStatusChange,
	}, log.all())
}

func TestEngine_DebounceCollapsesBursts(t *testing.T) {
	e, _, _, _ := newTestEngine(t, true)
	e.mu.Lock()
	e.started = true
	e.mu.Unlock()

	var log eventLog
	defer e.Subscribe(log.listener)()

	for i := 0; i < 5; i++ {
		e.scheduleDebounced()
	}

	assert.Eventually(t, func() bool {
		return log.count(EventSyncStart) >= 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(3 * e.opts.DebounceWindow)
	assert.Equal(t, 1, log.count(EventSyncStart))
}

func TestEngine_FullSync_MirrorsRemoteIntoEmptyStore(t *testing.T) {
	ctx := context.Background()
	e, st, f, _ := newTestEngine(t, true)

	rc1, rc2 := "rc-100", "rc-200"
	f.receipts[rc1] = models.RemoteReceipt{ID: rc1, Date: time.Now().UTC(), TotalCents: 1500}
	f.receipts[rc2] = models.RemoteReceipt{ID: rc2, Date: time.Now().UTC(), TotalCents: 2500}
	for i, parent := range []string{rc1, rc1, rc1, rc2, rc2} {
		p := parent
		id := fmt.Sprintf("it-%d", i)
		f.items[id] = models.RemoteItem{ID: id, ReceiptID: &p, Name: fmt.Sprintf("item %d", i), Quantity: 1, UnitPriceCents: 100, Date: time.Now().UTC()}
	}

	require.True(t, e.FullSync(ctx))

	receipts, err := st.ListReceipts(ctx)
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	perReceipt := map[string]int64{}
	for _, r := range receipts {
		require.True(t, r.Sync.Synced())
		perReceipt[r.Sync.CloudIDString()] = r.LocalID
	}

	items, err := st.ListItems(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 5)

	attached, err := st.ItemsByReceipt(ctx, perReceipt[rc1])
	require.NoError(t, err)
	assert.Len(t, attached, 3)

	count, err := st.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	settings, err := st.GetSettings(ctx)
	require.NoError(t, err)
	assert.True(t, settings.Sync.Synced())
}

func TestEngine_FullSync_ServerWins(t *testing.T) {
	ctx := context.Background()
	e, st, f, _ := newTestEngine(t, true)

	receiptID := addReceipt(t, st, 100)
	require.True(t, e.Sync(ctx))
	got, err := st.GetReceipt(ctx, receiptID)
	require.NoError(t, err)
	cloudID := got.Sync.CloudIDString()

	// Another client bumps the total on the server.
	f.mu.Lock()
	r := f.receipts[cloudID]
	r.TotalCents = 9900
	f.receipts[cloudID] = r
	f.mu.Unlock()

	require.True(t, e.FullSync(ctx))

	got, err = st.GetReceipt(ctx, receiptID)
	require.NoError(t, err)
	assert.Equal(t, int64(9900), got.TotalCents)
}

func TestEngine_FullSync_PropagatesRemoteDeletions(t *testing.T) {
	ctx := context.Background()
	e, st, f, _ := newTestEngine(t, true)

	syncedID := addReceipt(t, st, 100)
	require.True(t, e.Sync(ctx))
	got, err := st.GetReceipt(ctx, syncedID)
	require.NoError(t, err)
	cloudID := got.Sync.CloudIDString()

	// The server loses the record; a never-pushed local one must survive
	// the prune even though its own push fails this cycle.
	f.mu.Lock()
	delete(f.receipts, cloudID)
	f.createErr = errors.New("quota exceeded")
	f.mu.Unlock()
	survivorID := addReceipt(t, st, 200)

	// Phase 1 failures are best effort; the pull and merge still complete.
	require.True(t, e.FullSync(ctx))

	_, err = st.GetReceipt(ctx, syncedID)
	assert.ErrorIs(t, err, models.ErrReceiptNotFound)

	survivor, err := st.GetReceipt(ctx, survivorID)
	require.NoError(t, err)
	assert.False(t, survivor.Sync.Synced())
}

func TestEngine_FullSync_NetworkErrorMessage(t *testing.T) {
	ctx := context.Background()
	e, _, f, _ := newTestEngine(t, true)
	f.fetchErr = &remote.NetworkError{Err: errors.New("dial tcp: connection refused")}

	var log eventLog
	defer e.Subscribe(log.listener)()

	assert.False(t, e.FullSync(ctx))
	assert.Equal(t, "connection failed", e.Status().LastError)
	assert.Equal(t, 1, log.count(EventSyncError))
}

func TestEngine_OfflineQueueDrainsOnReconnect(t *testing.T) {
	ctx := context.Background()
	e, st, f, conn := newTestEngine(t, false)

	e.Start(ctx)
	t.Cleanup(e.Stop)

	addReceipt(t, st, 1200)
	assert.False(t, e.Sync(ctx))
	assert.Empty(t, f.callList())

	count, err := st.PendingCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Equal(t, 1, e.Status().PendingCount)

	conn.SetOnline(true)

	require.Eventually(t, func() bool {
		n, err := st.PendingCount(ctx)
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, f.callCount("CreateReceipt"))
	assert.True(t, e.Status().Online)
}

func TestEngine_StartStop(t *testing.T) {
	ctx := context.Background()
	e, st, f, _ := newTestEngine(t, true)

	e.Start(ctx)
	e.Start(ctx) // idempotent

	require.Eventually(t, func() bool {
		return f.callCount("FetchAll") == 1
	}, 2*time.Second, 10*time.Millisecond)

	e.Stop()
	e.Stop() // idempotent

	// After Stop, local changes no longer schedule syncs.
	addReceipt(t, st, 300)
	time.Sleep(3 * e.opts.DebounceWindow)
	count, err := st.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEngine_SubscribeUnsubscribe(t *testing.T) {
	ctx := context.Background()
	e, _, _, _ := newTestEngine(t, true)

	var log eventLog
	unsub := e.Subscribe(log.listener)
	require.True(t, e.Sync(ctx))
	assert.NotEmpty(t, log.all())

	unsub()
	before := len(log.all())
	require.True(t, e.Sync(ctx))
	assert.Len(t, log.all(), before)
}
