package sync

import (
	"context"
	stdsync "sync"
	"time"
)

// Connectivity reports whether the remote store is reachable and signals
// transitions. Implementations must deliver Subscribe callbacks only on
// actual state changes.
type Connectivity interface {
	Online() bool
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// ManualConnectivity is a Connectivity whose state is set by the caller.
// Used by the CLI (always online) and by tests.
type ManualConnectivity struct {
	mu     stdsync.Mutex
	online bool
	subs   map[int]func(bool)
	nextID int
}

// NewManualConnectivity creates a ManualConnectivity in the given state.
func NewManualConnectivity(online bool) *ManualConnectivity {
	return &ManualConnectivity{
		online: online,
		subs:   make(map[int]func(bool)),
	}
}

func (c *ManualConnectivity) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

func (c *ManualConnectivity) Subscribe(fn func(bool)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// SetOnline updates the state, notifying subscribers on a change.
func (c *ManualConnectivity) SetOnline(online bool) {
	c.mu.Lock()
	if c.online == online {
		c.mu.Unlock()
		return
	}
	c.online = online
	fns := make([]func(bool), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(online)
	}
}

// ProbeConnectivity derives connectivity by polling the remote health
// endpoint on a fixed interval.
type ProbeConnectivity struct {
	*ManualConnectivity
	remote   RemoteAPI
	interval time.Duration
	stop     chan struct{}
	stopOnce stdsync.Once
}

// NewProbeConnectivity creates a probe that starts offline until the first
// successful health check. Start must be called to begin polling.
func NewProbeConnectivity(remote RemoteAPI, interval time.Duration) *ProbeConnectivity {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &ProbeConnectivity{
		ManualConnectivity: NewManualConnectivity(false),
		remote:             remote,
		interval:           interval,
		stop:               make(chan struct{}),
	}
}

// Start probes once immediately, then keeps polling until Stop is called.
func (c *ProbeConnectivity) Start(ctx context.Context) {
	c.probe(ctx)
	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.probe(ctx)
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop halts polling. The last known state is retained.
func (c *ProbeConnectivity) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *ProbeConnectivity) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	c.SetOnline(c.remote.Health(probeCtx) == nil)
}
