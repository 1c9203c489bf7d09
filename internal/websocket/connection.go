package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	sendQueue = 64
)

// Connection is one upgraded WebSocket connection's server-side state.
type Connection struct {
	ID       string
	ClientID string
	Path     string

	manager *Manager
	conn    *websocket.Conn
	route   *Route

	send    chan []byte
	closeCh chan struct{}
	pongCh  chan struct{}

	mu        sync.RWMutex
	state     State
	rooms     map[string]struct{}
	lastPing  time.Time
	lastPong  time.Time
	meta      map[string]any
	createdAt time.Time

	closeOnce sync.Once
}

func newConnection(id, clientID, path string, conn *websocket.Conn, route *Route, m *Manager) *Connection {
	return &Connection{
		ID:        id,
		ClientID:  clientID,
		Path:      path,
		manager:   m,
		conn:      conn,
		route:     route,
		send:      make(chan []byte, sendQueue),
		closeCh:   make(chan struct{}),
		pongCh:    make(chan struct{}, 1),
		state:     Connecting,
		rooms:     make(map[string]struct{}),
		meta:      make(map[string]any),
		createdAt: time.Now(),
	}
}

func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Connection) joinedRooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		ids = append(ids, id)
	}
	return ids
}

func (c *Connection) addRoom(id string)    { c.mu.Lock(); c.rooms[id] = struct{}{}; c.mu.Unlock() }
func (c *Connection) removeRoom(id string) { c.mu.Lock(); delete(c.rooms, id); c.mu.Unlock() }
func (c *Connection) inRoom(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.rooms[id]
	return ok
}

// enqueue places a frame on the connection's send queue. It never blocks
// the caller: a full queue counts as a send failure, per the "delivery is
// fire-and-forget per recipient" rule broadcasts follow.
func (c *Connection) enqueue(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// writePump drains the send queue onto the socket, batching whatever is
// queued at each wakeup into a single websocket message via NextWriter,
// under a 10s write deadline.
func (c *Connection) writePump() {
	defer c.conn.Close()
	for {
		select {
		case <-c.closeCh:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				_, _ = w.Write([]byte("\n"))
				_, _ = w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}
		}
	}
}

// pingLoop sends an application-level ping frame every interval and
// requires a pong within timeout, transitioning the connection to Closing
// on expiry.
func (c *Connection) pingLoop(interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.closeCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			c.lastPing = time.Now()
			c.mu.Unlock()
			if !c.enqueue(outboundFrame(typePing, nil)) {
				continue
			}
			select {
			case <-c.pongCh:
			case <-time.After(timeout):
				c.manager.closeConnection(c, "pong timeout")
				return
			case <-c.closeCh:
				return
			}
		}
	}
}

// readPump reads frames off the socket and routes them by type, the
// classic read-pump/write-pump split, generalised here to the JSON
// message taxonomy instead of raw control frames.
func (c *Connection) readPump() {
	defer func() {
		c.manager.closeConnection(c, "read loop ended")
	}()
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.handleFrame(raw)
	}
}

func (c *Connection) handleFrame(raw []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		if c.route.enabled&EventBinaryMessage != 0 && c.route.callbacks.OnBinaryMessage != nil {
			c.route.callbacks.OnBinaryMessage(c, raw)
		}
		return
	}

	switch frame.Type {
	case typePing:
		// Native auto-reply; onMessage is never invoked for this type.
		c.enqueue(outboundFrame(typePong, nil))
		if c.route.enabled&EventPing != 0 && c.route.callbacks.OnPing != nil {
			c.route.callbacks.OnPing(c)
		}
	case typePong:
		c.mu.Lock()
		latency := time.Since(c.lastPing)
		c.lastPong = time.Now()
		c.mu.Unlock()
		c.manager.recordPingLatency(c.Path, latency)
		select {
		case c.pongCh <- struct{}{}:
		default:
		}
		if c.route.enabled&EventPong != 0 && c.route.callbacks.OnPong != nil {
			c.route.callbacks.OnPong(c)
		}
	case typeJoinRoom:
		c.manager.handleJoinRoom(c, frame.RoomID)
	case typeLeaveRoom:
		c.manager.handleLeaveRoom(c, frame.RoomID)
	case typeRoomMessage:
		c.manager.handleRoomMessage(c, frame.RoomID, frame.Data)
	case typeDirectMsg:
		c.manager.handleDirectMessage(c, frame.TargetClientID, frame.Data)
	case typeMessage:
		c.manager.handleGenericMessage(c, frame.Data)
	default:
		if c.route.enabled&EventMessage != 0 && c.route.callbacks.OnMessage != nil {
			result := c.route.callbacks.OnMessage(c, raw)
			c.manager.ackOrBlock(c, raw, result)
		}
	}
}

func (c *Connection) startPumps() {
	go c.writePump()
	go c.pingLoop(c.manager.pingInterval, c.manager.pongTimeout)
	c.readPump()
}

func (c *Connection) triggerClose() {
	c.closeOnce.Do(func() { close(c.closeCh) })
}
