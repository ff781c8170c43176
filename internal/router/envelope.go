package router

import "encoding/json"

// Command is the inbound envelope from a transport connection
// (spec.md §6): at most one payload object per command.
type Command struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Event is the outbound envelope, either broadcast to a whole session
// or sent privately to one client.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Broadcaster is the narrow interface the transport layer implements
// so the router never has to know about connections or sockets.
type Broadcaster interface {
	// Broadcast delivers an event to every client attached to a
	// session, including ones on other instances (shared-store mode,
	// via the store's pub/sub relay — that fan-out lives in the
	// transport/lifecycle layer, not here).
	Broadcast(sessionID string, evt Event)
	// Send delivers an event to exactly one client.
	Send(clientID string, evt Event)
}

func errorEvent(msg string) Event {
	return Event{Type: "error", Data: map[string]string{"message": msg}}
}

func stateEvent(data interface{}) Event {
	return Event{Type: "state", Data: data}
}
