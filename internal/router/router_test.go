package router

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/mtgturn/turnserver/internal/coordinator"
	"github.com/mtgturn/turnserver/internal/registry"
	"github.com/mtgturn/turnserver/internal/store"
)

// fakeBroadcaster records every event delivered, keyed by
// session-broadcast or per-client send, for assertions.
type fakeBroadcaster struct {
	mu        sync.Mutex
	broadcast map[string][]Event
	private   map[string][]Event
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{broadcast: map[string][]Event{}, private: map[string][]Event{}}
}

func (f *fakeBroadcaster) Broadcast(sessionID string, evt Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcast[sessionID] = append(f.broadcast[sessionID], evt)
}

func (f *fakeBroadcaster) Send(clientID string, evt Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.private[clientID] = append(f.private[clientID], evt)
}

func (f *fakeBroadcaster) last(clientID string) (Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	evts := f.private[clientID]
	if len(evts) == 0 {
		return Event{}, false
	}
	return evts[len(evts)-1], true
}

func newTestRouter() (*Router, *fakeBroadcaster) {
	backend := store.NewMemStore()
	reg := registry.New(backend)
	coord := coordinator.New()
	bc := newFakeBroadcaster()
	return New(reg, coord, backend, bc, WithWriteThrough(true)), bc
}

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestCreateJoinClaimStart(t *testing.T) {
	ctx := context.Background()
	r, bc := newTestRouter()

	sessionID, err := r.Dispatch(ctx, "owner", "", Command{Type: "create", Data: mustJSON(t, map[string]interface{}{
		"settings": map[string]interface{}{"playerCount": 2, "initialTime": 60000, "warningThresholds": []int64{10000}},
	})})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(sessionID) != 6 {
		t.Fatalf("sessionID = %q, want length 6", sessionID)
	}

	if _, ok := bc.last("owner"); !ok {
		t.Fatalf("owner did not receive a state event on create")
	}

	joinerID, err := r.Dispatch(ctx, "joiner", "", Command{Type: "join", Data: mustJSON(t, map[string]string{"gameId": sessionID})})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if joinerID != sessionID {
		t.Fatalf("join resolved to %q, want %q", joinerID, sessionID)
	}

	if _, err := r.Dispatch(ctx, "joiner", sessionID, Command{Type: "claim", Data: mustJSON(t, playerIDData{PlayerID: 1})}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	claimedEvt, ok := bc.last("joiner")
	if !ok || claimedEvt.Type != "claimed" {
		t.Fatalf("expected a claimed event, got %+v (ok=%v)", claimedEvt, ok)
	}

	if _, err := r.Dispatch(ctx, "someoneElse", sessionID, Command{Type: "start"}); err == nil {
		t.Fatalf("expected non-owner/non-claimant start to be rejected")
	}

	if _, err := r.Dispatch(ctx, "owner", sessionID, Command{Type: "start"}); err != nil {
		t.Fatalf("owner start: %v", err)
	}
}

func TestSwitchPlayerUnauthorizedDuringRunning(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRouter()

	sessionID, err := r.Dispatch(ctx, "owner", "", Command{Type: "create", Data: mustJSON(t, map[string]interface{}{
		"settings": map[string]interface{}{"playerCount": 2, "initialTime": 60000, "warningThresholds": []int64{10000}},
	})})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := r.Dispatch(ctx, "owner", sessionID, Command{Type: "start"}); err != nil {
		t.Fatalf("start: %v", err)
	}

	_, err = r.Dispatch(ctx, "rando", sessionID, Command{Type: "switch", Data: mustJSON(t, playerIDData{PlayerID: 2})})
	if err == nil {
		t.Fatalf("expected switch by an unrelated client to be rejected while running")
	}
}

func TestRenameGameOwnerOnly(t *testing.T) {
	ctx := context.Background()
	r, bc := newTestRouter()

	sessionID, err := r.Dispatch(ctx, "owner", "", Command{Type: "create"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := r.Dispatch(ctx, "rando", sessionID, Command{Type: "renameGame", Data: mustJSON(t, renameData{Name: "nope"})}); err == nil {
		t.Fatalf("expected non-owner rename to be rejected")
	}

	if _, err := r.Dispatch(ctx, "owner", sessionID, Command{Type: "renameGame", Data: mustJSON(t, renameData{Name: "Table 3"})}); err != nil {
		t.Fatalf("owner rename: %v", err)
	}
	evts := bc.broadcast[sessionID]
	found := false
	for _, e := range evts {
		if e.Type == "gameRenamed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a gameRenamed broadcast, got %+v", evts)
	}
}
