// Package sync implements the offline-first sync engine: it replays the
// local sync queue against the remote store, runs full bidirectional
// reconciliation, and exposes a subscribable status record.
package sync

import (
	"context"
	stdsync "sync"
	"time"

	"github.com/MHMDHIDR/expenses-tracker/internal/models"
	"github.com/MHMDHIDR/expenses-tracker/internal/observability"
	"github.com/MHMDHIDR/expenses-tracker/internal/store"
)

// Event identifies a sync engine notification.
type Event string

const (
	EventSyncStart    Event = "sync-start"
	EventSyncComplete Event = "sync-complete"
	EventSyncError    Event = "sync-error"
	EventStatusChange Event = "status-change"
)

// Listener receives engine events along with a copy of the current status.
type Listener func(Event, models.SyncStatus)

// RemoteAPI is the subset of the remote client the engine depends on.
type RemoteAPI interface {
	Health(ctx context.Context) error
	CreateReceipt(ctx context.Context, r models.RemoteReceipt) (models.RemoteReceipt, error)
	UpdateReceipt(ctx context.Context, id string, p models.ReceiptPatch) (models.RemoteReceipt, error)
	DeleteReceipt(ctx context.Context, id string) error
	CreateItem(ctx context.Context, it models.RemoteItem) (models.RemoteItem, error)
	UpdateItem(ctx context.Context, id string, p models.ItemPatch) (models.RemoteItem, error)
	DeleteItem(ctx context.Context, id string) error
	PutSettings(ctx context.Context, s models.RemoteSettings) (models.RemoteSettings, error)
	FetchAll(ctx context.Context) (*models.SyncSnapshot, error)
}

// Options holds the engine's timing and retry tuning.
type Options struct {
	PeriodicInterval       time.Duration
	DebounceWindow         time.Duration
	MinSyncInterval        time.Duration
	MaxRetryCount          int
	MaxConsecutiveFailures int
}

// DefaultOptions returns the standard tuning.
func DefaultOptions() Options {
	return Options{
		PeriodicInterval:       30 * time.Second,
		DebounceWindow:         2 * time.Second,
		MinSyncInterval:        5 * time.Second,
		MaxRetryCount:          3,
		MaxConsecutiveFailures: 5,
	}
}

// Engine coordinates queue replay and full reconciliation between the local
// store and the remote API. At most one sync body runs at a time.
type Engine struct {
	store  *store.Store
	remote RemoteAPI
	conn   Connectivity
	opts   Options
	logger *observability.Logger

	metrics *observability.SyncMetrics

	mu           stdsync.Mutex
	status       models.SyncStatus
	syncing      bool
	started      bool
	lastAttempt  time.Time
	failures     int
	listeners    map[int]Listener
	nextListener int
	debounce     *time.Timer
	stopPeriodic chan struct{}
	unsubscribe  func()
}

// New creates an engine. Start must be called before it does any work.
func New(st *store.Store, remote RemoteAPI, conn Connectivity, opts Options) *Engine {
	if opts.PeriodicInterval <= 0 {
		opts = DefaultOptions()
	}
	e := &Engine{
		store:     st,
		remote:    remote,
		conn:      conn,
		opts:      opts,
		logger:    observability.GetLogger().WithField("component", "sync-engine"),
		listeners: make(map[int]Listener),
	}
	e.status.Online = conn.Online()
	return e
}

// SetMetrics attaches optional metric instruments. Safe to leave unset.
func (e *Engine) SetMetrics(m *observability.SyncMetrics) {
	e.metrics = m
}

// Start wires the engine into the store's change notifications and the
// connectivity signal, begins the periodic timer, and kicks an initial full
// reconciliation when online. Calling Start twice is a no-op.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	online := e.conn.Online()
	e.status.Online = online
	e.refreshPendingLocked(ctx)
	e.mu.Unlock()

	e.store.SetOnChange(e.onDataChange)
	e.unsubscribe = e.conn.Subscribe(e.onConnectivity)

	if online {
		e.startPeriodic()
		go e.FullSync(context.Background())
	}
	e.broadcast(EventStatusChange)
}

// Stop tears the engine down: cancels timers and removes all external
// listeners. An in-flight sync is left to run to completion.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	if e.debounce != nil {
		e.debounce.Stop()
		e.debounce = nil
	}
	stop := e.stopPeriodic
	e.stopPeriodic = nil
	unsub := e.unsubscribe
	e.unsubscribe = nil
	e.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if unsub != nil {
		unsub()
	}
	e.store.SetOnChange(nil)
}

// Subscribe registers a listener and returns its removal function.
func (e *Engine) Subscribe(l Listener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextListener
	e.nextListener++
	e.listeners[id] = l
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.listeners, id)
	}
}

// Status returns a copy of the current status record.
func (e *Engine) Status() models.SyncStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusCopyLocked()
}

// ResetFailures clears the consecutive-failure counter, lifting an
// auto-pause.
func (e *Engine) ResetFailures() {
	e.mu.Lock()
	e.failures = 0
	e.status.LastError = ""
	e.mu.Unlock()
	e.broadcast(EventStatusChange)
}

// statusCopyLocked deep-copies the status so subscribers cannot alias
// engine state. Caller holds e.mu.
func (e *Engine) statusCopyLocked() models.SyncStatus {
	st := e.status
	if st.LastSyncedAt != nil {
		t := *st.LastSyncedAt
		st.LastSyncedAt = &t
	}
	return st
}

func (e *Engine) refreshPendingLocked(ctx context.Context) {
	if n, err := e.store.PendingCount(ctx); err == nil {
		e.metrics.AddPending(ctx, int64(n-e.status.PendingCount))
		e.status.PendingCount = n
	}
}

// broadcast delivers an event with a status copy to every listener. Every
// event other than status-change is followed by a status-change delivery, so
// a presentation layer can subscribe to that one kind alone. Listeners run
// outside the engine lock.
func (e *Engine) broadcast(ev Event) {
	e.mu.Lock()
	st := e.statusCopyLocked()
	ls := make([]Listener, 0, len(e.listeners))
	for _, l := range e.listeners {
		ls = append(ls, l)
	}
	e.mu.Unlock()
	for _, l := range ls {
		l(ev, st)
	}
	if ev != EventStatusChange {
		for _, l := range ls {
			l(EventStatusChange, st)
		}
	}
}

// onDataChange handles a gateway data-changed notification. The pending
// count is refreshed and broadcast whatever the connectivity state, so an
// offline queue build-up is visible immediately; the debounced sync is
// armed only when online.
func (e *Engine) onDataChange() {
	ctx := context.Background()
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.refreshPendingLocked(ctx)
	online := e.status.Online
	e.mu.Unlock()

	e.broadcast(EventStatusChange)
	if online {
		e.scheduleDebounced()
	}
}

// scheduleDebounced (re)arms the debounce timer after a local data change.
// Repeated changes inside the window collapse into a single sync attempt.
func (e *Engine) scheduleDebounced() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started || !e.status.Online {
		return
	}
	if e.debounce != nil {
		e.debounce.Reset(e.opts.DebounceWindow)
		return
	}
	e.debounce = time.AfterFunc(e.opts.DebounceWindow, func() {
		e.mu.Lock()
		e.debounce = nil
		e.mu.Unlock()
		e.Sync(context.Background())
	})
}

// startPeriodic launches the periodic sync loop. Guarded so repeated online
// transitions never accumulate duplicate timers.
func (e *Engine) startPeriodic() {
	e.mu.Lock()
	if e.stopPeriodic != nil {
		e.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	e.stopPeriodic = stop
	interval := e.opts.PeriodicInterval
	e.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.Sync(context.Background())
			case <-stop:
				return
			}
		}
	}()
}

func (e *Engine) stopPeriodicTimer() {
	e.mu.Lock()
	stop := e.stopPeriodic
	e.stopPeriodic = nil
	e.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}

// onConnectivity handles online/offline transitions. Going online resets the
// failure counter and schedules a full reconciliation; going offline halts
// the timers but leaves any in-flight sync to finish on its own.
func (e *Engine) onConnectivity(online bool) {
	e.mu.Lock()
	if !e.started || e.status.Online == online {
		e.mu.Unlock()
		return
	}
	e.status.Online = online
	if online {
		e.failures = 0
		e.status.LastError = ""
	} else if e.debounce != nil {
		e.debounce.Stop()
		e.debounce = nil
	}
	e.mu.Unlock()

	if online {
		e.logger.Info("network online, scheduling full sync")
		e.startPeriodic()
		go e.FullSync(context.Background())
	} else {
		e.logger.Info("network offline, pausing timers")
		e.stopPeriodicTimer()
	}
	e.broadcast(EventStatusChange)
}
