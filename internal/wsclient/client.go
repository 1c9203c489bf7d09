// Package wsclient is a concrete reference implementation of the
// server's WebSocket wire contract: useful both as documentation-by-code
// for anyone implementing an equivalent client in a different language,
// and as the integration-test harness for internal/websocket's server
// side.
package wsclient

import (
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/s00d/rnode-server/internal/logger"
)

// Callbacks mirrors the server-side event kinds the client may observe.
type Callbacks struct {
	OnWelcome      func(connectionID, clientID string)
	OnRoomJoined   func(roomID string)
	OnRoomLeft     func(roomID string)
	OnRoomMessage  func(roomID string, data json.RawMessage)
	OnDirectMsg    func(fromClientID string, data json.RawMessage)
	OnMessageAck   func(data json.RawMessage)
	OnError        func(errorType, message string)
	OnMessage      func(raw json.RawMessage)
	OnClose        func(reason string)
}

// Options configures reconnect behaviour.
type Options struct {
	ClientID           string
	BaseReconnectDelay time.Duration
	ReconnectAttempts  int
}

func (o Options) withDefaults() Options {
	if o.BaseReconnectDelay <= 0 {
		o.BaseReconnectDelay = time.Second
	}
	if o.ReconnectAttempts <= 0 {
		o.ReconnectAttempts = 5
	}
	return o
}

// Client is the scripting-side convenience client's wire-level behaviour,
// reimplemented here in Go. It never initiates pings: it only answers
// pings the server sends.
type Client struct {
	url       string
	opts      Options
	callbacks Callbacks

	mu        sync.Mutex
	conn      *websocket.Conn
	open      bool
	joinedRoom string
	welcomed  bool
	closedByUser bool
}

func New(rawURL string, cb Callbacks, opts Options) *Client {
	return &Client{
		url:       rawURL,
		opts:      opts.withDefaults(),
		callbacks: cb,
	}
}

func (c *Client) dialURL() string {
	u, err := url.Parse(c.url)
	if err != nil {
		return c.url
	}
	if c.opts.ClientID != "" {
		q := u.Query()
		q.Set("clientId", c.opts.ClientID)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// Connect dials the server and starts the read loop in a goroutine. It
// blocks until the initial handshake either succeeds or fails.
func (c *Client) Connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.dialURL(), nil)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.open = true
	c.welcomed = false
	c.closedByUser = false
	c.mu.Unlock()

	go c.readLoop(0)
	return nil
}

func (c *Client) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *Client) readLoop(attempt int) {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.open = false
			userClosed := c.closedByUser
			c.mu.Unlock()
			if c.callbacks.OnClose != nil {
				c.callbacks.OnClose(err.Error())
			}
			if !userClosed {
				c.reconnect(attempt + 1)
			}
			return
		}
		c.dispatch(raw)
	}
}

type frame struct {
	Type         string          `json:"type"`
	ConnectionID string          `json:"connection_id"`
	ClientID     string          `json:"client_id"`
	RoomID       string          `json:"room_id"`
	FromClientID string          `json:"from_client_id"`
	Data         json.RawMessage `json:"data"`
	Message      json.RawMessage `json:"message"`
	ErrorType    string          `json:"error_type"`
}

func (c *Client) dispatch(raw []byte) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		if c.callbacks.OnMessage != nil {
			c.callbacks.OnMessage(raw)
		}
		return
	}

	switch f.Type {
	case "welcome":
		c.mu.Lock()
		already := c.welcomed
		c.welcomed = true
		c.mu.Unlock()
		if !already && c.callbacks.OnWelcome != nil {
			c.callbacks.OnWelcome(f.ConnectionID, f.ClientID)
		}
	case "ping":
		c.sendFrame(map[string]any{"type": "pong"})
	case "room_joined":
		if c.callbacks.OnRoomJoined != nil {
			c.callbacks.OnRoomJoined(f.RoomID)
		}
	case "room_left":
		if c.callbacks.OnRoomLeft != nil {
			c.callbacks.OnRoomLeft(f.RoomID)
		}
	case "room_message":
		if c.callbacks.OnRoomMessage != nil {
			c.callbacks.OnRoomMessage(f.RoomID, f.Data)
		}
	case "direct_message":
		if c.callbacks.OnDirectMsg != nil {
			c.callbacks.OnDirectMsg(f.FromClientID, f.Data)
		}
	case "message_ack":
		if c.callbacks.OnMessageAck != nil {
			c.callbacks.OnMessageAck(f.Message)
		}
	case "error":
		if c.callbacks.OnError != nil {
			var msg string
			_ = json.Unmarshal(f.Message, &msg)
			c.callbacks.OnError(f.ErrorType, msg)
		}
	default:
		if c.callbacks.OnMessage != nil {
			c.callbacks.OnMessage(raw)
		}
	}
}

// reconnect saves the single currently joined room, then reconnects with
// exponential backoff baseDelay × 2^(attempt-1), bounded by
// opts.ReconnectAttempts, re-issuing join_room on success.
func (c *Client) reconnect(attempt int) {
	if attempt > c.opts.ReconnectAttempts {
		logger.WebSocket().Warn().Int("attempts", attempt-1).Msg("wsclient giving up reconnecting")
		return
	}
	c.mu.Lock()
	savedRoom := c.joinedRoom
	c.mu.Unlock()

	delay := time.Duration(1<<uint(attempt-1)) * c.opts.BaseReconnectDelay
	time.Sleep(delay)

	if err := c.Connect(); err != nil {
		c.reconnect(attempt + 1)
		return
	}
	if savedRoom != "" {
		_ = c.SendJoinRoom(savedRoom)
	}
}

func (c *Client) sendFrame(v map[string]any) bool {
	c.mu.Lock()
	conn := c.conn
	open := c.open
	c.mu.Unlock()
	if !open || conn == nil {
		return false
	}
	b, err := json.Marshal(v)
	if err != nil {
		return false
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return false
	}
	return true
}

// Send sends a generic "message" frame. Returns false without error if
// the connection is not currently open.
func (c *Client) Send(data any) bool {
	return c.sendFrame(map[string]any{"type": "message", "data": data})
}

// SendToRoom sends a "room_message" frame. It does not change the room
// remembered for reconnect; only SendJoinRoom and SendLeaveRoom do.
func (c *Client) SendToRoom(roomID string, data any) bool {
	return c.sendFrame(map[string]any{"type": "room_message", "room_id": roomID, "data": data})
}

// SendDirectMessage sends a "direct_message" frame.
func (c *Client) SendDirectMessage(targetClientID string, data any) bool {
	return c.sendFrame(map[string]any{"type": "direct_message", "target_client_id": targetClientID, "data": data})
}

// SendJoinRoom sends a "join_room" frame and, on success, remembers
// roomID so a future reconnect can rejoin it.
func (c *Client) SendJoinRoom(roomID string) bool {
	ok := c.sendFrame(map[string]any{"type": "join_room", "room_id": roomID})
	if ok {
		c.mu.Lock()
		c.joinedRoom = roomID
		c.mu.Unlock()
	}
	return ok
}

// SendLeaveRoom sends a "leave_room" frame and forgets the joined room.
func (c *Client) SendLeaveRoom(roomID string) bool {
	ok := c.sendFrame(map[string]any{"type": "leave_room", "room_id": roomID})
	if ok {
		c.mu.Lock()
		if c.joinedRoom == roomID {
			c.joinedRoom = ""
		}
		c.mu.Unlock()
	}
	return ok
}

// Close closes the connection and disables auto-reconnect.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closedByUser = true
	conn := c.conn
	c.open = false
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}
