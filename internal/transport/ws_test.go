package transport

import (
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/mtgturn/turnserver/internal/coordinator"
	"github.com/mtgturn/turnserver/internal/registry"
	"github.com/mtgturn/turnserver/internal/router"
	"github.com/mtgturn/turnserver/internal/store"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	backend := store.NewMemStore()
	reg := registry.New(backend)
	coord := coordinator.New()
	return NewHub(nil, reg, coord, nil, zap.NewNop())
}

func TestClientEnqueueWarnsAndCeilsBackpressure(t *testing.T) {
	c := &client{send: make(chan router.Event, 4096)}

	var warned, overflowed bool
	c.onWarn = func() { warned = true }

	big := strings.Repeat("a", BufferWarnBytes+1)
	c.enqueue(router.Event{Type: "state", Data: big}, func() { overflowed = true })
	if !warned {
		t.Fatalf("crossing the warn threshold should invoke onWarn")
	}
	if overflowed {
		t.Fatalf("a single warn-sized payload should not overflow the hard ceiling")
	}

	huge := strings.Repeat("a", BufferHardCeiling)
	c.enqueue(router.Event{Type: "state", Data: huge}, func() { overflowed = true })
	if !overflowed {
		t.Fatalf("exceeding the hard ceiling should invoke onOverflow and close the client")
	}
	if !c.closed {
		t.Fatalf("client should be marked closed after overflow")
	}
}

func TestHubBroadcastOnlyReachesBoundClients(t *testing.T) {
	h := newTestHub(t)

	a := &client{id: "a", send: make(chan router.Event, 8)}
	b := &client{id: "b", send: make(chan router.Event, 8)}
	h.clients["a"] = a
	h.clients["b"] = b
	h.bindings["a"] = "SESS01"
	h.bindings["b"] = "SESS02"

	h.broadcastLocal("SESS01", router.Event{Type: "state", Data: "x"})

	select {
	case <-a.send:
	default:
		t.Fatalf("client bound to SESS01 should have received the broadcast")
	}
	select {
	case <-b.send:
		t.Fatalf("client bound to a different session should not receive the broadcast")
	default:
	}
}

func TestHubSendTargetsExactlyOneClient(t *testing.T) {
	h := newTestHub(t)
	a := &client{id: "a", send: make(chan router.Event, 8)}
	h.clients["a"] = a

	h.Send("a", router.Event{Type: "clientId", Data: map[string]string{"clientId": "a"}})

	select {
	case evt := <-a.send:
		if evt.Type != "clientId" {
			t.Fatalf("got event type %q, want clientId", evt.Type)
		}
	default:
		t.Fatalf("targeted client should have received the event")
	}

	h.Send("missing", router.Event{Type: "clientId"})
}

func TestHubBroadcastAllReachesEveryClient(t *testing.T) {
	h := newTestHub(t)
	a := &client{id: "a", send: make(chan router.Event, 8)}
	b := &client{id: "b", send: make(chan router.Event, 8)}
	h.clients["a"] = a
	h.clients["b"] = b

	h.BroadcastAll(router.Event{Type: "shutdown_warning"})

	for _, c := range []*client{a, b} {
		select {
		case <-c.send:
		default:
			t.Fatalf("BroadcastAll should reach every client")
		}
	}
}

func TestHubCloseAllClosesEverySendChannel(t *testing.T) {
	h := newTestHub(t)
	a := &client{id: "a", send: make(chan router.Event, 8)}
	h.clients["a"] = a

	h.CloseAll()

	if _, ok := <-a.send; ok {
		t.Fatalf("CloseAll should close every client's send channel")
	}
}

func TestRelayEnvelopeRoundTrips(t *testing.T) {
	env := relayEnvelope{InstanceID: "inst-1", SessionID: "SESS01", Event: router.Event{Type: "tick"}}
	blob, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded relayEnvelope
	if err := json.Unmarshal(blob, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.InstanceID != env.InstanceID || decoded.SessionID != env.SessionID || decoded.Event.Type != env.Event.Type {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
}
