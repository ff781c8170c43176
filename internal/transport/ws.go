// Package transport implements the WebSocket connection hub: client
// registration, the per-client write pump with backpressure handling,
// and the session tick loop. Grounded on the teacher's
// server/websocket.go hub/register/unregister/broadcast pattern,
// generalized from one shared game loop to per-session routed
// commands and a per-session tick.
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mtgturn/turnserver/internal/apperr"
	"github.com/mtgturn/turnserver/internal/coordinator"
	"github.com/mtgturn/turnserver/internal/ratelimit"
	"github.com/mtgturn/turnserver/internal/registry"
	"github.com/mtgturn/turnserver/internal/router"
	"github.com/mtgturn/turnserver/internal/session"
	"github.com/mtgturn/turnserver/internal/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256

	// BufferWarnBytes and BufferHardCeiling are the per-client
	// backpressure thresholds from spec.md §5.
	BufferWarnBytes   = 512 * 1024
	BufferHardCeiling = 1024 * 1024

	tickInterval = 100 * time.Millisecond
)

func isValidOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if r.Host == originURL.Host {
		return true
	}
	host := originURL.Hostname()
	return host == "localhost" || host == "127.0.0.1"
}

var upgrader = websocket.Upgrader{
	CheckOrigin:       isValidOrigin,
	EnableCompression: true,
}

// client represents one open connection.
type client struct {
	id   string
	conn *websocket.Conn
	send chan router.Event

	mu           sync.Mutex
	pendingBytes int
	closed       bool
	onWarn       func()
}

func (c *client) enqueue(evt router.Event, onOverflow func()) {
	blob, err := json.Marshal(evt)
	if err != nil {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.pendingBytes+len(blob) > BufferHardCeiling {
		c.closed = true
		c.mu.Unlock()
		if onOverflow != nil {
			onOverflow()
		}
		close(c.send)
		return
	}
	crossedWarn := c.pendingBytes <= BufferWarnBytes && c.pendingBytes+len(blob) > BufferWarnBytes
	c.pendingBytes += len(blob)
	c.mu.Unlock()

	if crossedWarn && c.onWarn != nil {
		c.onWarn()
	}

	select {
	case c.send <- evt:
	default:
		// Channel full despite the byte budget allowing it (many tiny
		// messages): drop, the session continues per spec.md §5.
		c.mu.Lock()
		c.pendingBytes -= len(blob)
		c.mu.Unlock()
	}
}

func (c *client) released(n int) {
	c.mu.Lock()
	c.pendingBytes -= n
	if c.pendingBytes < 0 {
		c.pendingBytes = 0
	}
	c.mu.Unlock()
}

// Hub manages every open connection on this instance and implements
// router.Broadcaster plus lifecycle.Broadcaster.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*client
	bindings map[string]string // clientID -> bound session id

	router   *router.Router
	registry *registry.Registry
	coord    *coordinator.Coordinator
	limiter  *ratelimit.Limiter
	logger   *zap.Logger

	// OnBackpressure, if set, is notified whenever a client crosses
	// the warn threshold (warn=true) or is force-closed for
	// overflowing the hard ceiling (warn=false).
	OnBackpressure func(clientID string, warn bool)

	// metrics, if set, is notified of rate-limit rejections by scope
	// ("message" for an inbound message rejected by the per-connection
	// or per-address window, "address_connections" for a new connection).
	metrics func(scope string)

	// Cross-instance relay state (shared-store mode only); see relay.go.
	instanceID string
	pubsub     store.PubSub
	subMu      sync.Mutex
	subscribed map[string]store.Subscription
}

// WithMetrics wires a rate-limit-rejection observer (metricsobs.RateLimitRejected).
func (h *Hub) WithMetrics(fn func(scope string)) *Hub {
	h.metrics = fn
	return h
}

// SetRouter completes construction for the router-hub cycle: the
// router needs a Broadcaster (the hub) and the hub needs a router to
// dispatch inbound commands to, so the hub is built first with a nil
// router and wired here once the router exists.
func (h *Hub) SetRouter(r *router.Router) {
	h.router = r
}

func NewHub(r *router.Router, reg *registry.Registry, coord *coordinator.Coordinator, limiter *ratelimit.Limiter, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:  map[string]*client{},
		bindings: map[string]string{},
		router:   r,
		registry: reg,
		coord:    coord,
		limiter:  limiter,
		logger:   logger,
	}
}

func (h *Hub) newClientID() string {
	return uuid.NewString()
}

// HandleWebSocket upgrades the connection and spawns its read/write pumps.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	addr := r.RemoteAddr
	if h.limiter != nil && !h.limiter.AllowConnection(addr, time.Now()) {
		if h.metrics != nil {
			h.metrics("address_connections")
		}
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	id := h.newClientID()
	c := &client{id: id, conn: conn, send: make(chan router.Event, sendBufferSize)}
	c.onWarn = func() { h.reportWarn(id) }

	h.mu.Lock()
	h.clients[id] = c
	h.mu.Unlock()

	c.enqueue(router.Event{Type: "clientId", Data: map[string]string{"clientId": id}}, nil)

	go h.writePump(c)
	go h.readPump(c, addr)
}

func (h *Hub) readPump(c *client, addr string) {
	defer h.unregister(c)

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var cmd router.Command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket read error", zap.String("client", c.id), zap.Error(err))
			}
			break
		}

		if h.limiter != nil && !h.limiter.AllowMessage(c.id, addr, time.Now()) {
			if h.metrics != nil {
				h.metrics("message")
			}
			c.enqueue(router.Event{Type: "error", Data: map[string]string{"message": apperr.MsgRateLimitExceeded}}, nil)
			continue
		}

		h.mu.RLock()
		bound := h.bindings[c.id]
		h.mu.RUnlock()

		resolved := h.dispatch(c, bound, cmd)
		if resolved != bound {
			h.mu.Lock()
			h.bindings[c.id] = resolved
			h.mu.Unlock()
			if resolved != "" {
				h.ensureSubscribed(resolved)
			}
		}
	}
}

func (h *Hub) dispatch(c *client, bound string, cmd router.Command) (resolved string) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic routing command", zap.String("client", c.id), zap.String("type", cmd.Type), zap.Any("recover", r))
			resolved = bound
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	resolved, _ = h.router.Dispatch(ctx, c.id, bound, cmd)
	return resolved
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case evt, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			blob, _ := json.Marshal(evt)
			c.released(len(blob))
			if err := c.conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	sessionID := h.bindings[c.id]
	delete(h.clients, c.id)
	delete(h.bindings, c.id)
	h.mu.Unlock()

	if h.limiter != nil {
		h.limiter.Forget(c.id)
	}
	c.conn.Close()

	if sessionID == "" {
		return
	}
	s, ok := h.registry.Get(sessionID)
	if !ok {
		return
	}
	clientID := c.id
	_, _ = h.coord.Run(context.Background(), sessionID, func(ctx context.Context) (interface{}, error) {
		s.HandleClientDisconnect(clientID, time.Now())
		return nil, nil
	})
	h.Broadcast(sessionID, router.Event{Type: "state", Data: s.ToPublicState()})
}

// Broadcast implements router.Broadcaster:
// deliver evt to every client currently bound to sessionID on this
// instance, and relay it to any other instances in shared-store mode.
func (h *Hub) Broadcast(sessionID string, evt router.Event) {
	h.ensureSubscribed(sessionID)
	h.broadcastLocal(sessionID, evt)
	h.publishRelay(sessionID, evt)
}

// Send implements router.Broadcaster: deliver evt to exactly one
// client, regardless of session binding.
func (h *Hub) Send(clientID string, evt router.Event) {
	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	c.enqueue(evt, func() { h.reportOverflow(clientID) })
}

func (h *Hub) reportOverflow(clientID string) {
	if h.OnBackpressure != nil {
		h.OnBackpressure(clientID, false)
	}
}

func (h *Hub) reportWarn(clientID string) {
	if h.OnBackpressure != nil {
		h.OnBackpressure(clientID, true)
	}
}

// BroadcastAll implements lifecycle.Broadcaster.
func (h *Hub) BroadcastAll(evt interface{}) {
	e, ok := evt.(router.Event)
	if !ok {
		if m, ok := evt.(map[string]interface{}); ok {
			e = router.Event{Type: m["type"].(string), Data: m["data"]}
		} else {
			return
		}
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.enqueue(e, nil)
	}
}

// ConnectionCount implements lifecycle.Broadcaster.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll implements lifecycle.Broadcaster: force-close every
// remaining connection during drain.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.mu.Lock()
		if !c.closed {
			c.closed = true
			close(c.send)
		}
		c.mu.Unlock()
	}
}

// RunTickLoop submits a tick op to every running session roughly every
// 100ms (spec.md §5): the tick loop is itself an op submitted to the
// coordinator, so a slow prior op simply delays that session's tick
// rather than blocking the others.
func (h *Hub) RunTickLoop(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tickAll(ctx)
		}
	}
}

func (h *Hub) tickAll(ctx context.Context) {
	for _, s := range h.registry.All() {
		if s.Status != session.StatusRunning {
			continue
		}
		sess := s
		id := sess.ID
		result, err := h.coord.Run(ctx, id, func(ctx context.Context) (interface{}, error) {
			return sess.Tick(time.Now()), nil
		})
		if err != nil {
			continue
		}
		tr, ok := result.(session.TickResult)
		if !ok {
			continue
		}
		h.emitTickEvents(id, tr)
	}
}

// emitTickEvents translates one session's TickResult into the
// "tick"/"warning"/"timeout"/"timeoutChoice" outbound events from
// spec.md's external interfaces table, followed by a "state" event
// when a player timed out or auto-died.
func (h *Hub) emitTickEvents(sessionID string, tr session.TickResult) {
	if len(tr.Times) > 0 {
		h.Broadcast(sessionID, router.Event{Type: "tick", Data: map[string]interface{}{"times": tr.Times}})
	}
	for _, w := range tr.Warnings {
		h.Broadcast(sessionID, router.Event{Type: "warning", Data: map[string]interface{}{
			"playerId":  w.PlayerID,
			"threshold": w.Threshold,
		}})
	}
	for _, pid := range tr.Timeouts {
		h.Broadcast(sessionID, router.Event{Type: "timeout", Data: map[string]interface{}{"playerId": pid}})
	}
	for _, tc := range tr.TimeoutPending {
		h.Broadcast(sessionID, router.Event{Type: "timeoutChoice", Data: map[string]interface{}{
			"playerId": tc.PlayerID,
			"options": map[string]interface{}{
				"livesLoss": tc.Options.LivesLoss,
				"drunkGain": tc.Options.DrunkGain,
			},
			"deadline": tc.Deadline,
		}})
	}
	if len(tr.AutoDied) > 0 || len(tr.Timeouts) > 0 {
		s, ok := h.registry.Get(sessionID)
		if ok {
			h.Broadcast(sessionID, router.Event{Type: "state", Data: s.ToPublicState()})
		}
	}
}
