// Package lifecycle runs the background tasks that own a session's
// existence independent of any single client request: the periodic
// reaper, the shared-store heartbeat, the periodic persistence flush,
// and graceful drain on shutdown (spec.md §4.6).
package lifecycle

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mtgturn/turnserver/internal/coordinator"
	"github.com/mtgturn/turnserver/internal/registry"
	"github.com/mtgturn/turnserver/internal/store"
)

const (
	ReapPeriod        = 5 * time.Minute
	EmptyThreshold    = 5 * time.Minute
	InactiveThreshold = 24 * time.Hour

	FlushPeriod = 5 * time.Second

	HeartbeatPeriod = 30 * time.Second
	HeartbeatTTL    = 60 * time.Second

	DrainWarningTimeout = 30 * time.Second
)

// Broadcaster is the narrow slice of the transport layer drain needs:
// warn every connected client, then force everyone off.
type Broadcaster interface {
	BroadcastAll(evt interface{})
	ConnectionCount() int
	CloseAll()

	// Unsubscribe tears down this instance's shared-store relay
	// subscription for a session, if any (a no-op in local-durable
	// mode). Called once a session is removed from the registry so a
	// reaped session doesn't leak its pub/sub subscription.
	Unsubscribe(sessionID string)
}

// Manager owns the background task set for one server instance.
type Manager struct {
	Registry    *registry.Registry
	Coordinator *coordinator.Coordinator
	Store       store.Store
	Broadcaster Broadcaster
	Logger      *zap.Logger

	// InstanceID identifies this process in the shared instance set;
	// empty in local-durable mode (no heartbeat runs).
	InstanceID string

	// Operational cadences, overridable from CLI/config; each
	// defaults to its package constant when left zero.
	ReapPeriod        time.Duration
	FlushPeriod       time.Duration
	HeartbeatPeriod   time.Duration
	DrainTimeout      time.Duration

	// OnPersistenceError, if set, is notified whenever a reap or flush
	// sweep fails to write/delete a session's persisted state.
	OnPersistenceError func()

	// heartbeatRegistry is non-nil only for the shared backend.
	heartbeatRegistry store.HeartbeatRegistry
}

func New(reg *registry.Registry, coord *coordinator.Coordinator, backend store.Store, bc Broadcaster, instanceID string, logger *zap.Logger) *Manager {
	m := &Manager{
		Registry:     reg,
		Coordinator:  coord,
		Store:        backend,
		Broadcaster:  bc,
		InstanceID:   instanceID,
		Logger:       logger,
		ReapPeriod:   ReapPeriod,
		FlushPeriod:  FlushPeriod,
		HeartbeatPeriod: HeartbeatPeriod,
		DrainTimeout: DrainWarningTimeout,
	}
	if hr, ok := backend.(store.HeartbeatRegistry); ok {
		m.heartbeatRegistry = hr
	}
	if m.Logger == nil {
		m.Logger = zap.NewNop()
	}
	return m
}

// Run starts the reaper, flush, and (if applicable) heartbeat loops,
// blocking until ctx is cancelled or one loop returns a fatal error.
// It wires golang.org/x/sync/errgroup the way the group of independent
// periodic tasks is meant to be supervised together.
func (m *Manager) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return m.reapLoop(ctx) })
	g.Go(func() error { return m.flushLoop(ctx) })
	if m.heartbeatRegistry != nil {
		g.Go(func() error { return m.heartbeatLoop(ctx) })
	}

	return g.Wait()
}

func (m *Manager) reapLoop(ctx context.Context) error {
	ticker := time.NewTicker(m.reapPeriod())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.reapOnce(ctx, time.Now())
		}
	}
}

func (m *Manager) reapOnce(ctx context.Context, now time.Time) {
	for _, s := range m.Registry.All() {
		idle := now.Sub(s.LastActivity)
		empty := s.ConnectedClientCount() == 0 && idle > EmptyThreshold
		stale := idle > InactiveThreshold
		if !empty && !stale {
			continue
		}
		id := s.ID
		_, err := m.Coordinator.Run(ctx, id, func(ctx context.Context) (interface{}, error) {
			s.Close(time.Now())
			m.Registry.Delete(id)
			return nil, nil
		})
		if err != nil {
			m.Logger.Warn("reap: coordinator run failed", zap.String("session_id", id), zap.Error(err))
			continue
		}
		m.Coordinator.Forget(id)
		m.Broadcaster.Unsubscribe(id)
		if err := m.Store.Delete(ctx, id); err != nil {
			m.Logger.Warn("reap: store delete failed", zap.String("session_id", id), zap.Error(err))
			m.reportPersistenceError()
		}
		m.Logger.Info("reaped session", zap.String("session_id", id), zap.Bool("empty", empty), zap.Bool("stale", stale))
	}
}

func (m *Manager) flushLoop(ctx context.Context) error {
	ticker := time.NewTicker(m.flushPeriod())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.flushOnce(ctx)
		}
	}
}

// flushOnce batch-persists every in-memory session. Per-session
// serialization is skipped here deliberately: a snapshot read races
// benignly with an in-flight coordinator op (the op's own
// write-through, if any, always wins because it runs later), and
// taking every session's lock on a 5 s cadence would starve real
// traffic.
func (m *Manager) flushOnce(ctx context.Context) {
	sessions := m.Registry.All()
	batch := make(map[string][]byte, len(sessions))
	for _, s := range sessions {
		persisted, err := s.ToPersisted()
		if err != nil {
			m.Logger.Warn("flush: serialize failed", zap.String("session_id", s.ID), zap.Error(err))
			continue
		}
		blob, err := json.Marshal(persisted)
		if err != nil {
			m.Logger.Warn("flush: marshal failed", zap.String("session_id", s.ID), zap.Error(err))
			continue
		}
		batch[s.ID] = blob
	}
	if len(batch) == 0 {
		return
	}
	if err := m.Store.BatchSave(ctx, batch); err != nil {
		m.Logger.Warn("flush: batch save failed", zap.Error(err))
		m.reportPersistenceError()
	}
}

func (m *Manager) reportPersistenceError() {
	if m.OnPersistenceError != nil {
		m.OnPersistenceError()
	}
}

func (m *Manager) heartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(m.heartbeatPeriod())
	defer ticker.Stop()
	m.beat(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.beat(ctx)
		}
	}
}

func (m *Manager) reapPeriod() time.Duration {
	if m.ReapPeriod > 0 {
		return m.ReapPeriod
	}
	return ReapPeriod
}

func (m *Manager) flushPeriod() time.Duration {
	if m.FlushPeriod > 0 {
		return m.FlushPeriod
	}
	return FlushPeriod
}

func (m *Manager) heartbeatPeriod() time.Duration {
	if m.HeartbeatPeriod > 0 {
		return m.HeartbeatPeriod
	}
	return HeartbeatPeriod
}

func (m *Manager) drainTimeout() time.Duration {
	if m.DrainTimeout > 0 {
		return m.DrainTimeout
	}
	return DrainWarningTimeout
}

func (m *Manager) beat(ctx context.Context) {
	if err := m.heartbeatRegistry.Beat(ctx, m.InstanceID, HeartbeatTTL); err != nil {
		m.Logger.Warn("heartbeat failed", zap.Error(err))
	}
}

// Drain runs the graceful-shutdown sequence from spec.md §4.6. It
// does not stop the Run loops itself — cancel the context passed to
// Run first, then call Drain.
func (m *Manager) Drain(ctx context.Context) {
	timeout := m.drainTimeout()
	m.Broadcaster.BroadcastAll(map[string]interface{}{
		"type": "shutdown_warning",
		"data": map[string]interface{}{
			"message": "server is shutting down",
			"timeout": int64(timeout / time.Millisecond),
		},
	})

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
drain:
	for time.Now().Before(deadline) {
		if m.Broadcaster.ConnectionCount() == 0 {
			break
		}
		select {
		case <-ctx.Done():
			break drain
		case <-ticker.C:
		}
	}

	m.Broadcaster.CloseAll()
	m.flushOnce(context.Background())
	if err := m.Store.Close(); err != nil {
		m.Logger.Warn("store close failed during drain", zap.Error(err))
	}
}
