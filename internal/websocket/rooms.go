package websocket

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/s00d/rnode-server/internal/apperrors"
)

// CreateRoom creates a room under a fresh id, as the POST /websocket/rooms
// control-plane handler does. Rooms auto-created by join_room are built in
// JoinRoom instead, keyed by the requested id.
func (m *Manager) CreateRoom(name, description string, maxConnections int) *Room {
	r := newRoom(uuid.NewString(), name, description, maxConnections)
	m.mu.Lock()
	m.rooms[r.ID] = r
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.WSRoomsTotal.Inc()
	}
	return r
}

func (m *Manager) Room(id string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	return r, ok
}

func (m *Manager) Rooms() []*Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r)
	}
	return out
}

func (m *Manager) Connection(id string) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.connections[id]
	return c, ok
}

// CloseAll triggers a close on every currently open connection, for use
// during server shutdown. It does not wait for the read pumps to observe
// the close; callers that need that should race it against a grace
// period timer of their own.
func (m *Manager) CloseAll() {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.connections))
	for _, c := range m.connections {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, c := range conns {
		c.triggerClose()
	}
}

func (m *Manager) connectionByClientID(clientID string) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.clientIndex[clientID]
	if !ok {
		return nil, false
	}
	c, ok := m.connections[id]
	return c, ok
}

// JoinRoom adds conn's membership to room id, creating the room if
// missing, subject to MaxConnections. It is the shared implementation
// behind both the join_room wire message and the REST control-plane
// mirror.
func (m *Manager) JoinRoom(conn *Connection, roomID string) error {
	m.mu.Lock()
	room, ok := m.rooms[roomID]
	if !ok {
		room = newRoom(roomID, roomID, "", 0)
		m.rooms[roomID] = room
		if m.metrics != nil {
			m.metrics.WSRoomsTotal.Inc()
		}
	}
	m.mu.Unlock()

	room.mu.Lock()
	if room.MaxConnections > 0 && len(room.members) >= room.MaxConnections {
		room.mu.Unlock()
		return apperrors.New(apperrors.RoomFull, "room has reached its connection limit")
	}
	room.members[conn.ID] = struct{}{}
	count := len(room.members)
	room.mu.Unlock()

	conn.addRoom(room.ID)
	if m.metrics != nil {
		m.metrics.WSRoomConnections.WithLabelValues(room.ID, room.Name).Set(float64(count))
	}
	return nil
}

// leaveRoom removes conn's membership in roomID. emit controls whether a
// room_left frame is sent to conn — false is used during connection
// teardown, where the connection is no longer reachable.
func (m *Manager) leaveRoom(conn *Connection, roomID string, emit bool) {
	m.mu.RLock()
	room, ok := m.rooms[roomID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	room.mu.Lock()
	delete(room.members, conn.ID)
	count := len(room.members)
	room.mu.Unlock()

	conn.removeRoom(roomID)
	if m.metrics != nil {
		m.metrics.WSRoomConnections.WithLabelValues(room.ID, room.Name).Set(float64(count))
	}
	if emit {
		conn.enqueue(outboundFrame(typeRoomLeft, map[string]any{"room_id": roomID}))
	}
}

func (m *Manager) handleJoinRoom(conn *Connection, roomID string) {
	var result CallbackResult
	if conn.route.enabled&EventJoinRoom != 0 && conn.route.callbacks.OnJoinRoom != nil {
		result = conn.route.callbacks.OnJoinRoom(conn, roomID)
	}
	if result.Kind == Cancel {
		conn.enqueue(outboundFrame(typeBlocked, map[string]any{
			"originalMessage": map[string]any{"type": typeJoinRoom, "room_id": roomID},
			"reason":          result.Reason,
		}))
		return
	}

	if err := m.JoinRoom(conn, roomID); err != nil {
		m.sendServerError(conn, err, roomID)
		return
	}
	conn.enqueue(outboundFrame(typeRoomJoined, map[string]any{"room_id": roomID}))
}

func (m *Manager) handleLeaveRoom(conn *Connection, roomID string) {
	var result CallbackResult
	if conn.route.enabled&EventLeaveRoom != 0 && conn.route.callbacks.OnLeaveRoom != nil {
		result = conn.route.callbacks.OnLeaveRoom(conn, roomID)
	}
	if result.Kind == Cancel {
		return
	}
	m.leaveRoom(conn, roomID, true)
}

// handleRoomMessage delivers a room_message, after callback filtering, to
// every other member of the room. Delivery per recipient is fire-and-
// forget; send failures are counted but never abort the broadcast.
func (m *Manager) handleRoomMessage(conn *Connection, roomID string, data json.RawMessage) {
	var result CallbackResult
	if conn.route.enabled&EventRoomMessage != 0 && conn.route.callbacks.OnRoomMessage != nil {
		result = conn.route.callbacks.OnRoomMessage(conn, roomID, data)
	}
	if result.Kind == Cancel {
		conn.enqueue(outboundFrame(typeBlocked, map[string]any{
			"originalMessage": map[string]any{"type": typeRoomMessage, "room_id": roomID, "data": data},
			"reason":          result.Reason,
		}))
		return
	}

	payload := data
	if result.Kind == Replace {
		payload = result.Payload
	}

	room, ok := m.Room(roomID)
	if !ok || !room.hasMember(conn.ID) {
		m.sendServerError(conn, apperrors.New(apperrors.UnknownRoom, "not a member of room or room does not exist"), roomID)
		return
	}

	frame := outboundFrame(typeRoomMessage, map[string]any{"room_id": roomID, "data": payload})
	for _, memberID := range room.memberIDs() {
		if memberID == conn.ID {
			continue
		}
		peer, ok := m.Connection(memberID)
		if !ok {
			continue
		}
		if !peer.enqueue(frame) {
			m.recordSendFailure(conn.Path, roomID)
		}
		if m.metrics != nil {
			m.metrics.WSMessagesSent.WithLabelValues(typeRoomMessage, roomID, peer.Path).Inc()
			m.metrics.WSMessageSize.WithLabelValues(typeRoomMessage, "out").Observe(float64(len(frame)))
		}
	}
	if m.metrics != nil {
		m.metrics.WSMessagesReceived.WithLabelValues(typeRoomMessage, roomID, conn.Path).Inc()
	}
}

// handleDirectMessage delivers to at most one peer identified by client
// id; an unknown id yields a serverError to the sender.
func (m *Manager) handleDirectMessage(conn *Connection, targetClientID string, data json.RawMessage) {
	var result CallbackResult
	if conn.route.enabled&EventDirectMessage != 0 && conn.route.callbacks.OnDirectMessage != nil {
		result = conn.route.callbacks.OnDirectMessage(conn, targetClientID, data)
	}
	if result.Kind == Cancel {
		conn.enqueue(outboundFrame(typeBlocked, map[string]any{
			"originalMessage": map[string]any{"type": typeDirectMsg, "target_client_id": targetClientID, "data": data},
			"reason":          result.Reason,
		}))
		return
	}
	payload := data
	if result.Kind == Replace {
		payload = result.Payload
	}

	peer, ok := m.connectionByClientID(targetClientID)
	if !ok {
		m.sendServerError(conn, apperrors.New(apperrors.UnknownClient, "unknown target client id"), "")
		return
	}
	frame := outboundFrame(typeDirectMsg, map[string]any{
		"from_client_id": conn.ClientID,
		"data":           payload,
	})
	if !peer.enqueue(frame) {
		m.recordSendFailure(conn.Path, "")
	}
	if m.metrics != nil {
		m.metrics.WSMessagesSent.WithLabelValues(typeDirectMsg, "", peer.Path).Inc()
		m.metrics.WSMessagesReceived.WithLabelValues(typeDirectMsg, "", conn.Path).Inc()
	}
}

func (m *Manager) sendServerError(conn *Connection, err error, roomID string) {
	ae, _ := apperrors.As(err)
	errType := "server_error"
	if ae != nil {
		errType = ae.Kind.String()
	}
	conn.enqueue(outboundFrame(typeError, map[string]any{
		"error_type": errType,
		"message":    err.Error(),
	}))
	if m.metrics != nil {
		m.metrics.WSErrorsTotal.WithLabelValues(errType, conn.Path, roomID).Inc()
	}
	if conn.route.enabled&EventServerError != 0 && conn.route.callbacks.OnServerError != nil {
		conn.route.callbacks.OnServerError(conn, err)
	}
}

func (m *Manager) recordSendFailure(path, roomID string) {
	if m.metrics != nil {
		m.metrics.WSErrorsTotal.WithLabelValues("send_failed", path, roomID).Inc()
	}
}
