// Package coordinator implements the per-session serialization
// primitive (spec.md §4.3): every mutation to a given session id runs
// under mutual exclusion with that session's other operations, while
// different sessions' operations run fully in parallel. A singleton
// create-lock additionally serializes session-id allocation so two
// concurrent `create` commands never race on the same freshly minted
// id.
package coordinator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mtgturn/turnserver/internal/apperr"
)

const (
	// DefaultWaitTimeout is the per-key lock-acquire timeout from
	// spec.md §4.3.
	DefaultWaitTimeout = 5 * time.Second
	// DefaultPendingCap is the per-key pending-operation cap.
	DefaultPendingCap = 100
)

// Op is a unit of work the coordinator runs under exclusive access to
// one session id. It may return an error, which propagates to the
// caller of Run unchanged.
type Op func(ctx context.Context) (interface{}, error)

// keyState is the per-session-id queueing primitive: a buffered
// channel used as a counting semaphore of size 1 (a "task queue" in
// the spec's own words — a worker pulls and executes one op at a
// time) plus a pending counter guarded by its own mutex.
type keyState struct {
	mu      sync.Mutex
	pending int
	sem     chan struct{} // capacity 1
}

func newKeyState() *keyState {
	ks := &keyState{sem: make(chan struct{}, 1)}
	ks.sem <- struct{}{}
	return ks
}

// Coordinator owns the per-session lock table.
type Coordinator struct {
	mu   sync.Mutex
	keys map[string]*keyState

	createMu sync.Mutex // the singleton create-lock from spec.md §4.3

	waitTimeout time.Duration
	pendingCap  int

	logger *zap.Logger

	onBusyTimeout func(sessionID string, busy bool)
}

// Option configures a Coordinator at construction.
type Option func(*Coordinator)

func WithWaitTimeout(d time.Duration) Option { return func(c *Coordinator) { c.waitTimeout = d } }
func WithPendingCap(n int) Option            { return func(c *Coordinator) { c.pendingCap = n } }
func WithLogger(l *zap.Logger) Option        { return func(c *Coordinator) { c.logger = l } }

// WithBusyTimeoutObserver registers a callback invoked whenever an op
// is rejected for being busy (true) or having timed out waiting
// (false) — metrics wiring hangs off this.
func WithBusyTimeoutObserver(fn func(sessionID string, busy bool)) Option {
	return func(c *Coordinator) { c.onBusyTimeout = fn }
}

// New builds a Coordinator with the given options.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		keys:        map[string]*keyState{},
		waitTimeout: DefaultWaitTimeout,
		pendingCap:  DefaultPendingCap,
		logger:      zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Coordinator) keyFor(sessionID string) *keyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	ks, ok := c.keys[sessionID]
	if !ok {
		ks = newKeyState()
		c.keys[sessionID] = ks
	}
	return ks
}

// Forget drops the lock-table entry for a session id once it's reaped
// or closed, so the map doesn't grow unboundedly. Safe to call even
// if an op is mid-flight; the entry is simply recreated on next use.
func (c *Coordinator) Forget(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.keys, sessionID)
}

// Run executes op with exclusive access to sessionID, subject to the
// pending-operation cap and wait timeout from spec.md §4.3.
// Operations for different session ids run in parallel; ordering for
// a single id is the order the coordinator grants the section.
func (c *Coordinator) Run(ctx context.Context, sessionID string, op Op) (interface{}, error) {
	ks := c.keyFor(sessionID)

	ks.mu.Lock()
	if ks.pending >= c.pendingCap {
		ks.mu.Unlock()
		c.reportBusy(sessionID, true)
		return nil, apperr.Busy(apperr.MsgTooBusy)
	}
	ks.pending++
	ks.mu.Unlock()

	defer func() {
		ks.mu.Lock()
		ks.pending--
		ks.mu.Unlock()
	}()

	waitCtx, cancel := context.WithTimeout(ctx, c.waitTimeout)
	defer cancel()

	acquireStart := time.Now()
	select {
	case <-ks.sem:
		// acquired
	case <-waitCtx.Done():
		c.reportBusy(sessionID, false)
		return nil, apperr.Timeout(apperr.MsgTimedOut)
	}
	acquireLatency := time.Since(acquireStart)
	if acquireLatency > 100*time.Millisecond {
		c.logger.Warn("slow coordinator acquire",
			zap.String("session_id", sessionID),
			zap.Duration("latency", acquireLatency))
	}

	defer func() { ks.sem <- struct{}{} }()

	// Cancellation at the transport layer is distinct from op
	// cancellation: once granted the section, the op runs to
	// completion against a background context so a transport
	// disconnect mid-op can never abort a partially mutated session.
	result, err := op(context.Background())
	return result, err
}

func (c *Coordinator) reportBusy(sessionID string, busy bool) {
	if c.onBusyTimeout != nil {
		c.onBusyTimeout(sessionID, busy)
	}
}

// RunCreate executes fn under the singleton create-lock, eliminating
// the create/create collision window during id allocation (spec.md
// §4.3, §4.5).
func (c *Coordinator) RunCreate(fn func() (interface{}, error)) (interface{}, error) {
	c.createMu.Lock()
	defer c.createMu.Unlock()
	return fn()
}
