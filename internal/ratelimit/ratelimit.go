// Package ratelimit implements the message and connection limiters
// from spec.md §6: per transport connection, and per source address,
// both for inbound messages and for new connections. Each limit is a
// token-bucket rate.Limiter keyed by connection id or source address,
// the same idiom the pack uses for connection-rate capping.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Window is a keyed set of token-bucket limiters, one per key
// (connection id or source address), all sharing the same rate and
// burst. A key's limiter is created lazily on first use.
type Window struct {
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	window   time.Duration // retained for Cleanup's idle-eviction check
	limiters map[string]*keyedLimiter
}

type keyedLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewWindow builds a limiter allowing up to limit events per window
// for each distinct key, refilling continuously rather than in fixed
// buckets (a token-bucket's burst equal to limit reproduces the
// "limit events per window" ceiling while smoothing refill between
// windows instead of resetting sharply at a boundary).
func NewWindow(limit int, window time.Duration) *Window {
	return &Window{
		rate:     rate.Limit(float64(limit) / window.Seconds()),
		burst:    limit,
		window:   window,
		limiters: map[string]*keyedLimiter{},
	}
}

// Allow records one event for key at now and reports whether it's
// within the limit. A false return means the caller should reject the
// request. A rejected attempt consumes no token; it only refreshes the
// key's lastSeen time, so the key is not pruned by Cleanup.
func (w *Window) Allow(key string, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	kl, ok := w.limiters[key]
	if !ok {
		kl = &keyedLimiter{limiter: rate.NewLimiter(w.rate, w.burst)}
		w.limiters[key] = kl
	}
	kl.lastSeen = now
	return kl.limiter.AllowN(now, 1)
}

// Forget drops a key's limiter entirely (on disconnect).
func (w *Window) Forget(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.limiters, key)
}

// Cleanup prunes keys idle longer than the window, so idle
// connections/addresses don't grow the map forever. It runs only when
// called: no timer in the server calls Limiter.Cleanup.
func (w *Window) Cleanup(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for key, kl := range w.limiters {
		if now.Sub(kl.lastSeen) > w.window {
			delete(w.limiters, key)
		}
	}
}

const (
	PerConnectionMessageLimit  = 20
	PerConnectionMessageWindow = 1 * time.Second

	PerAddressMessageLimit  = 30
	PerAddressMessageWindow = 1 * time.Second

	PerAddressConnectionLimit  = 20
	PerAddressConnectionWindow = 1 * time.Minute
)

// Limiter bundles the three rate windows the transport layer checks:
// per-connection message rate, per-address message rate, and
// per-address new-connection rate.
type Limiter struct {
	connMessages *Window
	addrMessages *Window
	addrConns    *Window
}

func New() *Limiter {
	return &Limiter{
		connMessages: NewWindow(PerConnectionMessageLimit, PerConnectionMessageWindow),
		addrMessages: NewWindow(PerAddressMessageLimit, PerAddressMessageWindow),
		addrConns:    NewWindow(PerAddressConnectionLimit, PerAddressConnectionWindow),
	}
}

// AllowConnection checks (and records) a new connection attempt from
// addr.
func (l *Limiter) AllowConnection(addr string, now time.Time) bool {
	return l.addrConns.Allow(addr, now)
}

// AllowMessage checks (and records) one inbound message on
// connID from addr. Both limits must pass.
func (l *Limiter) AllowMessage(connID, addr string, now time.Time) bool {
	connOK := l.connMessages.Allow(connID, now)
	addrOK := l.addrMessages.Allow(addr, now)
	return connOK && addrOK
}

// Forget drops a closed connection's message-window history.
func (l *Limiter) Forget(connID string) {
	l.connMessages.Forget(connID)
}

// Cleanup prunes stale entries across all three windows.
func (l *Limiter) Cleanup(now time.Time) {
	l.connMessages.Cleanup(now)
	l.addrMessages.Cleanup(now)
	l.addrConns.Cleanup(now)
}
