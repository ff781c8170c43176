package transport

import (
	"context"
	"sync"
	"testing"

	"github.com/mtgturn/turnserver/internal/store"
)

// fakePubSub is a minimal in-process store.Store + store.PubSub used
// to exercise the relay subscribe/unsubscribe lifecycle without a
// real Redis backend.
type fakePubSub struct {
	store.Store
	mu   sync.Mutex
	subs map[string]*fakeSubscription
}

type fakeSubscription struct {
	ch     chan []byte
	closed bool
}

func (s *fakeSubscription) Messages() <-chan []byte { return s.ch }
func (s *fakeSubscription) Close() error {
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

func newFakePubSub() *fakePubSub {
	return &fakePubSub{Store: store.NewMemStore(), subs: map[string]*fakeSubscription{}}
}

func (f *fakePubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	return nil
}

func (f *fakePubSub) Subscribe(ctx context.Context, channel string) (store.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &fakeSubscription{ch: make(chan []byte, 4)}
	f.subs[channel] = sub
	return sub, nil
}

func TestUnsubscribeClosesAndAllowsResubscribe(t *testing.T) {
	h := newTestHub(t)
	backend := newFakePubSub()
	h.EnableRelay("inst-1", backend)

	h.ensureSubscribed("SESS01")

	h.subMu.Lock()
	sub, ok := h.subscribed["SESS01"]
	h.subMu.Unlock()
	if !ok {
		t.Fatalf("expected a subscription to be recorded for SESS01")
	}
	fake := sub.(*fakeSubscription)

	h.Unsubscribe("SESS01")

	if !fake.closed {
		t.Fatalf("Unsubscribe should close the underlying subscription")
	}
	h.subMu.Lock()
	_, stillTracked := h.subscribed["SESS01"]
	h.subMu.Unlock()
	if stillTracked {
		t.Fatalf("Unsubscribe should remove the session from the subscribed set")
	}

	// A reaped session can be subscribed to again later (e.g. a client
	// rejoins and recreates it under the same id).
	h.ensureSubscribed("SESS01")
	h.subMu.Lock()
	_, resubscribed := h.subscribed["SESS01"]
	h.subMu.Unlock()
	if !resubscribed {
		t.Fatalf("expected ensureSubscribed to resubscribe after Unsubscribe")
	}
}
