package websocket

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/s00d/rnode-server/internal/logger"
	"github.com/s00d/rnode-server/internal/metrics"
)

const (
	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 10 * time.Second
	closeGrace          = 5 * time.Second
)

// Callback function shapes, one per event kind in the bitset. A nil field
// means "no callback registered" and clears that event's bit.
type (
	ConnectFunc       func(conn *Connection) CallbackResult
	MessageFunc       func(conn *Connection, data json.RawMessage) CallbackResult
	CloseFunc         func(conn *Connection, reason string)
	ErrorFunc         func(conn *Connection, err error)
	JoinRoomFunc      func(conn *Connection, roomID string) CallbackResult
	LeaveRoomFunc     func(conn *Connection, roomID string) CallbackResult
	PingFunc          func(conn *Connection)
	PongFunc          func(conn *Connection)
	BinaryMessageFunc func(conn *Connection, data []byte) CallbackResult
	WelcomeFunc       func(conn *Connection)
	MessageAckFunc    func(conn *Connection, data json.RawMessage)
	RoomMessageFunc   func(conn *Connection, roomID string, data json.RawMessage) CallbackResult
	DirectMessageFunc func(conn *Connection, targetClientID string, data json.RawMessage) CallbackResult
	ServerErrorFunc   func(conn *Connection, err error)
)

// Callbacks is the set of event handlers a route may register.
type Callbacks struct {
	OnConnect       ConnectFunc
	OnMessage       MessageFunc
	OnClose         CloseFunc
	OnError         ErrorFunc
	OnJoinRoom      JoinRoomFunc
	OnLeaveRoom     LeaveRoomFunc
	OnPing          PingFunc
	OnPong          PongFunc
	OnBinaryMessage BinaryMessageFunc
	OnWelcome       WelcomeFunc
	OnMessageAck    MessageAckFunc
	OnRoomMessage   RoomMessageFunc
	OnDirectMessage DirectMessageFunc
	OnServerError   ServerErrorFunc
}

func bitsetFor(cb Callbacks) EventKind {
	var bits EventKind
	set := func(cond bool, bit EventKind) {
		if cond {
			bits |= bit
		}
	}
	set(cb.OnConnect != nil, EventConnect)
	set(cb.OnMessage != nil, EventMessage)
	set(cb.OnClose != nil, EventClose)
	set(cb.OnError != nil, EventErr)
	set(cb.OnJoinRoom != nil, EventJoinRoom)
	set(cb.OnLeaveRoom != nil, EventLeaveRoom)
	set(cb.OnPing != nil, EventPing)
	set(cb.OnPong != nil, EventPong)
	set(cb.OnBinaryMessage != nil, EventBinaryMessage)
	set(cb.OnWelcome != nil, EventWelcome)
	set(cb.OnMessageAck != nil, EventMessageAck)
	set(cb.OnRoomMessage != nil, EventRoomMessage)
	set(cb.OnDirectMessage != nil, EventDirectMessage)
	set(cb.OnServerError != nil, EventServerError)
	return bits
}

// Route is a registered WebSocket endpoint.
type Route struct {
	path      string
	callbacks Callbacks
	enabled   EventKind
}

// Manager is the WebSocketManager. It owns every Connection and Room;
// cross-references between them are ids, never pointers (arena model).
type Manager struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	clientIndex map[string]string
	rooms       map[string]*Room
	routes      map[string]*Route

	pingInterval time.Duration
	pongTimeout  time.Duration
	upgrader     websocket.Upgrader

	metrics   *metrics.Metrics
	monotonic uint64
}

// New creates a Manager. pingInterval/pongTimeout of zero fall back to
// the usual defaults (30s / 10s).
func New(pingInterval, pongTimeout time.Duration, m *metrics.Metrics) *Manager {
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	if pongTimeout <= 0 {
		pongTimeout = defaultPongTimeout
	}
	return &Manager{
		connections: make(map[string]*Connection),
		clientIndex: make(map[string]string),
		rooms:       make(map[string]*Room),
		routes:      make(map[string]*Route),
		pingInterval: pingInterval,
		pongTimeout:  pongTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		metrics: m,
	}
}

// RegisterRoute records callbacks for path and computes its enabled-event
// bitset. It returns an http.HandlerFunc suitable for mounting directly
// (the WebSocket upgrade handshake needs raw ResponseWriter access the
// Dispatcher's Response builder deliberately does not expose — see
// DESIGN.md for why upgrade paths bypass the Router/Dispatcher).
func (m *Manager) RegisterRoute(path string, cb Callbacks) http.HandlerFunc {
	route := &Route{path: path, callbacks: cb, enabled: bitsetFor(cb)}
	m.mu.Lock()
	m.routes[path] = route
	m.mu.Unlock()
	return func(w http.ResponseWriter, r *http.Request) {
		m.handleUpgrade(w, r, route)
	}
}

func (m *Manager) handleUpgrade(w http.ResponseWriter, r *http.Request, route *Route) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WebSocket().Warn().Err(err).Msg("upgrade failed")
		return
	}

	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		clientID = m.generateClientID()
	}

	c := newConnection(uuid.NewString(), clientID, r.URL.Path, conn, route, m)
	c.setState(Open)

	m.mu.Lock()
	m.connections[c.ID] = c
	m.clientIndex[c.ClientID] = c.ID
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.WSConnectionsTotal.Inc()
		m.metrics.WSConnectionsActive.Inc()
		m.metrics.TotalConnections.Inc()
	}

	c.enqueue(outboundFrame(typeWelcome, map[string]any{
		"connection_id": c.ID,
		"client_id":     c.ClientID,
		"path":          c.Path,
	}))
	if route.enabled&EventWelcome != 0 && route.callbacks.OnWelcome != nil {
		route.callbacks.OnWelcome(c)
	}
	if route.enabled&EventConnect != 0 && route.callbacks.OnConnect != nil {
		route.callbacks.OnConnect(c)
	}

	c.startPumps()
}

func (m *Manager) generateClientID() string {
	n := atomic.AddUint64(&m.monotonic, 1)
	return fmt.Sprintf("c_%d_%06d", n, rand.Intn(1_000_000))
}

// closeConnection transitions a connection through Closing → Closed,
// removing its membership from every room it joined before the
// connection resource itself is released.
func (m *Manager) closeConnection(c *Connection, reason string) {
	if c.State() == Closed {
		return
	}
	c.setState(Closing)
	c.triggerClose()

	for _, roomID := range c.joinedRooms() {
		m.leaveRoom(c, roomID, false)
	}

	m.mu.Lock()
	delete(m.connections, c.ID)
	delete(m.clientIndex, c.ClientID)
	m.mu.Unlock()

	c.setState(Closed)

	if m.metrics != nil {
		m.metrics.WSDisconnections.Inc()
		m.metrics.WSConnectionsActive.Dec()
	}

	if c.route.enabled&EventClose != 0 && c.route.callbacks.OnClose != nil {
		c.route.callbacks.OnClose(c, reason)
	}
}

func (m *Manager) recordPingLatency(path string, d time.Duration) {
	if m.metrics == nil {
		return
	}
	m.metrics.WSConnectionDuration.WithLabelValues(path, "").Observe(d.Seconds())
}

// ackOrBlock implements the callback return contract for a generic
// message: Default emits message_ack; Cancel emits message_blocked
// instead; Replace is not meaningful for a non-broadcast generic message
// and is treated as Default with the replacement payload echoed back.
func (m *Manager) ackOrBlock(c *Connection, original json.RawMessage, result CallbackResult) {
	switch result.Kind {
	case Cancel:
		c.enqueue(outboundFrame(typeBlocked, map[string]any{
			"originalMessage": json.RawMessage(original),
			"reason":          result.Reason,
		}))
	case Replace:
		c.enqueue(outboundFrame(typeMessageAck, map[string]any{"message": result.Payload}))
	default:
		c.enqueue(outboundFrame(typeMessageAck, map[string]any{"message": json.RawMessage(original)}))
	}
	if c.route.enabled&EventMessageAck != 0 && c.route.callbacks.OnMessageAck != nil {
		c.route.callbacks.OnMessageAck(c, original)
	}
}

func (m *Manager) handleGenericMessage(c *Connection, data json.RawMessage) {
	var result CallbackResult
	if c.route.enabled&EventMessage != 0 && c.route.callbacks.OnMessage != nil {
		result = c.route.callbacks.OnMessage(c, data)
	}
	m.ackOrBlock(c, data, result)
}
