// Package registry implements the in-memory session map and the
// collision-free session ID allocator (spec.md §4.5). Hydration from
// the shared store is collapsed across concurrent callers with
// singleflight so a burst of requests for the same not-yet-loaded
// session id only triggers one fetch.
package registry

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mtgturn/turnserver/internal/apperr"
	"github.com/mtgturn/turnserver/internal/session"
	"github.com/mtgturn/turnserver/internal/store"
)

const maxIDAttempts = 10

// ErrIDExhausted is returned when maxIDAttempts collide.
var ErrIDExhausted = apperr.Storage("could not allocate a session id", nil)

// Registry is the process-wide session map. It is one of the two
// pieces of deliberately global mutable state named in spec.md §9;
// inserts of newly created sessions happen under the coordinator's
// create-lock, while lazy hydration (EnsureLoaded) and startup restore
// (RestoreAll) insert under the registry's own mutex only; deletes
// happen only under the target session's own lock.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session

	backend store.Store
	// reserver is non-nil only for the shared/networked backend,
	// where id allocation must also reserve cluster-wide.
	reserver store.IDReserver
	// sharedMode gates lazy per-access hydration: local backends load
	// everything once at startup instead.
	sharedMode bool

	group  singleflight.Group
	logger *zap.Logger
}

type Option func(*Registry)

func WithLogger(l *zap.Logger) Option { return func(r *Registry) { r.logger = l } }

// New builds a Registry backed by the given store. If backend also
// implements store.IDReserver, shared mode is enabled automatically.
func New(backend store.Store, opts ...Option) *Registry {
	r := &Registry{
		sessions: map[string]*session.Session{},
		backend:  backend,
		logger:   zap.NewNop(),
	}
	if reserver, ok := backend.(store.IDReserver); ok {
		r.reserver = reserver
		r.sharedMode = true
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// NewID allocates a fresh, collision-free 6-character session id.
func (r *Registry) NewID(ctx context.Context) (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id, err := randomID()
		if err != nil {
			return "", apperr.Storage("failed to generate id", err)
		}

		r.mu.RLock()
		_, localCollision := r.sessions[id]
		r.mu.RUnlock()
		if localCollision {
			continue
		}

		if r.reserver != nil {
			ok, err := r.reserver.Reserve(ctx, id, store.DefaultTTL)
			if err != nil {
				return "", apperr.Storage("failed to reserve id", err)
			}
			if !ok {
				continue
			}
		}
		return id, nil
	}
	return "", ErrIDExhausted
}

func randomID() (string, error) {
	buf := make([]byte, session.IDLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, session.IDLength)
	n := len(session.IDAlphabet)
	for i, b := range buf {
		out[i] = session.IDAlphabet[int(b)%n]
	}
	return string(out), nil
}

// Insert adds a session to the registry. The create path calls it
// under the coordinator's create-lock; EnsureLoaded and RestoreAll call
// it without that lock.
func (r *Registry) Insert(s *session.Session) {
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
}

// Get returns the in-memory session if present, without hydrating.
func (r *Registry) Get(id string) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// EnsureLoaded returns the session, lazily hydrating from the shared
// store on first access per instance if it isn't already in memory.
// Concurrent callers for the same id share one hydration via
// singleflight.
func (r *Registry) EnsureLoaded(ctx context.Context, id string) (*session.Session, error) {
	if s, ok := r.Get(id); ok {
		return s, nil
	}
	if !r.sharedMode {
		return nil, apperr.NotFound(apperr.MsgGameNotFound)
	}

	v, err, _ := r.group.Do(id, func() (interface{}, error) {
		if s, ok := r.Get(id); ok {
			return s, nil
		}
		raw, err := r.backend.Load(ctx, id)
		if err == store.ErrNotFound {
			return nil, apperr.NotFound(apperr.MsgGameNotFound)
		}
		if err != nil {
			return nil, apperr.Storage("failed to load session", err)
		}
		var persisted session.PersistedState
		if err := json.Unmarshal(raw, &persisted); err != nil {
			return nil, apperr.Storage("corrupt session state", err)
		}
		s, err := session.FromPersisted(persisted)
		if err != nil {
			return nil, apperr.Storage("failed to restore session", err)
		}
		r.Insert(s)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*session.Session), nil
}

// Delete removes a session from the registry. Callers must hold the
// target session's own coordinator lock.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// All returns a snapshot slice of every in-memory session, for the
// periodic flush and the reaper to iterate without holding the
// registry lock during their (potentially slow) per-session work.
func (r *Registry) All() []*session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Count returns the number of in-memory sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// RestoreAll loads every persisted session at startup (non-shared
// mode) and hydrates the in-memory map, applying the hydrate defaults
// from spec.md §4.5. Closed sessions are not restored.
func (r *Registry) RestoreAll(ctx context.Context) (int, error) {
	blobs, err := r.backend.LoadAll(ctx)
	if err != nil {
		return 0, apperr.Storage("failed to load sessions at startup", err)
	}
	restored := 0
	for id, raw := range blobs {
		var persisted session.PersistedState
		if err := json.Unmarshal(raw, &persisted); err != nil {
			r.logger.Warn("skipping corrupt persisted session", zap.String("session_id", id), zap.Error(err))
			continue
		}
		if persisted.IsClosed {
			continue
		}
		s, err := session.FromPersisted(persisted)
		if err != nil {
			r.logger.Warn("skipping unrestorable session", zap.String("session_id", id), zap.Error(err))
			continue
		}
		r.Insert(s)
		restored++
	}
	return restored, nil
}
