package transport

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/mtgturn/turnserver/internal/router"
	"github.com/mtgturn/turnserver/internal/store"
)

// relayEnvelope is the wire format published to a session's pub/sub
// channel in shared-store mode (spec.md §4.4): every instance relays
// its own local broadcasts to every other instance, tagged with the
// originating instance so a relayed message is never re-broadcast
// back to the instance that produced it.
type relayEnvelope struct {
	InstanceID string       `json:"instanceId"`
	SessionID  string       `json:"sessionId"`
	Event      router.Event `json:"event"`
}

// EnableRelay wires cross-instance broadcast relay: it requires the
// backing store to implement store.PubSub (the shared/networked
// backend only). Call once at startup after NewHub.
func (h *Hub) EnableRelay(instanceID string, backend store.Store) {
	ps, ok := backend.(store.PubSub)
	if !ok {
		return
	}
	h.instanceID = instanceID
	h.pubsub = ps
	h.subscribed = map[string]store.Subscription{}
}

func (h *Hub) publishRelay(sessionID string, evt router.Event) {
	if h.pubsub == nil {
		return
	}
	payload, err := json.Marshal(relayEnvelope{InstanceID: h.instanceID, SessionID: sessionID, Event: evt})
	if err != nil {
		return
	}
	_ = h.pubsub.Publish(context.Background(), store.ChannelForSession(sessionID), payload)
}

// ensureSubscribed starts a relay-consumer goroutine for sessionID the
// first time this instance broadcasts to, or binds a client to, that
// session. Idempotent and safe to call repeatedly.
func (h *Hub) ensureSubscribed(sessionID string) {
	if h.pubsub == nil {
		return
	}
	h.subMu.Lock()
	if _, ok := h.subscribed[sessionID]; ok {
		h.subMu.Unlock()
		return
	}
	h.subMu.Unlock()

	sub, err := h.pubsub.Subscribe(context.Background(), store.ChannelForSession(sessionID))
	if err != nil {
		h.logger.Warn("relay subscribe failed", zap.String("session", sessionID), zap.Error(err))
		return
	}

	h.subMu.Lock()
	if _, ok := h.subscribed[sessionID]; ok {
		// Lost the race to another ensureSubscribed call; drop ours.
		h.subMu.Unlock()
		_ = sub.Close()
		return
	}
	h.subscribed[sessionID] = sub
	h.subMu.Unlock()

	go func() {
		for payload := range sub.Messages() {
			var env relayEnvelope
			if err := json.Unmarshal(payload, &env); err != nil {
				continue
			}
			if env.InstanceID == h.instanceID {
				continue
			}
			h.broadcastLocal(env.SessionID, env.Event)
		}
	}()
}

// Unsubscribe tears down this instance's relay subscription for
// sessionID, if any. Called by the reaper (spec.md §4.6) once a
// session is deleted from the registry, so a reaped session doesn't
// leak its pub/sub subscription and consumer goroutine forever.
func (h *Hub) Unsubscribe(sessionID string) {
	if h.pubsub == nil {
		return
	}
	h.subMu.Lock()
	sub, ok := h.subscribed[sessionID]
	delete(h.subscribed, sessionID)
	h.subMu.Unlock()
	if ok {
		_ = sub.Close()
	}
}

// broadcastLocal delivers evt only to this instance's own connections
// for sessionID, without re-publishing it (used both for relayed
// remote events and as the shared implementation behind Broadcast).
func (h *Hub) broadcastLocal(sessionID string, evt router.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, sess := range h.bindings {
		if sess != sessionID {
			continue
		}
		if c, ok := h.clients[id]; ok {
			c.enqueue(evt, func() { h.reportOverflow(id) })
		}
	}
}
