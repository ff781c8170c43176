package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/mtgturn/turnserver/internal/coordinator"
	"github.com/mtgturn/turnserver/internal/registry"
	"github.com/mtgturn/turnserver/internal/session"
	"github.com/mtgturn/turnserver/internal/store"
)

type noopBroadcaster struct{ closed bool }

func (n *noopBroadcaster) BroadcastAll(interface{})  {}
func (n *noopBroadcaster) ConnectionCount() int      { return 0 }
func (n *noopBroadcaster) CloseAll()                 { n.closed = true }
func (n *noopBroadcaster) Unsubscribe(string)         {}

func TestReapOnceRemovesEmptyIdleSession(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemStore()
	reg := registry.New(backend)
	coord := coordinator.New()
	m := New(reg, coord, backend, &noopBroadcaster{}, "", nil)

	old := session.New("AAAAAA", session.DefaultSettings(), time.Now().Add(-1*time.Hour))
	old.LastActivity = time.Now().Add(-10 * time.Minute)
	reg.Insert(old)

	fresh := session.New("BBBBBB", session.DefaultSettings(), time.Now())
	fresh.MarkConnected("client1", time.Now())
	reg.Insert(fresh)

	m.reapOnce(ctx, time.Now())

	if _, ok := reg.Get("AAAAAA"); ok {
		t.Fatalf("idle empty session should have been reaped")
	}
	if _, ok := reg.Get("BBBBBB"); !ok {
		t.Fatalf("active session should not have been reaped")
	}
}

func TestFlushOnceSavesAllSessions(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemStore()
	reg := registry.New(backend)
	coord := coordinator.New()
	m := New(reg, coord, backend, &noopBroadcaster{}, "", nil)

	reg.Insert(session.New("CCCCCC", session.DefaultSettings(), time.Now()))
	reg.Insert(session.New("DDDDDD", session.DefaultSettings(), time.Now()))

	m.flushOnce(ctx)

	all, err := backend.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d persisted sessions, want 2", len(all))
	}
}

func TestDrainClosesConnections(t *testing.T) {
	backend := store.NewMemStore()
	reg := registry.New(backend)
	coord := coordinator.New()
	bc := &noopBroadcaster{}
	m := New(reg, coord, backend, bc, "", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m.Drain(ctx)

	if !bc.closed {
		t.Fatalf("drain should have closed all connections")
	}
}
