// control-plane HTTP handlers under /websocket/. These are ordinary
// HandlerFunc values registered with the Dispatcher, unlike the upgrade
// endpoints in manager.go which bypass it — see DESIGN.md.
package websocket

import (
	"encoding/json"

	"github.com/s00d/rnode-server/internal/router"
)

type roomView struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	MaxConnections int    `json:"maxConnections,omitempty"`
	MemberCount    int    `json:"memberCount"`
}

func toRoomView(r *Room) roomView {
	return roomView{
		ID:             r.ID,
		Name:           r.Name,
		Description:    r.Description,
		MaxConnections: r.MaxConnections,
		MemberCount:    r.memberCount(),
	}
}

// ListRooms implements GET /websocket/rooms.
func (m *Manager) ListRooms(req *router.Request, resp *router.Response) {
	rooms := m.Rooms()
	views := make([]roomView, 0, len(rooms))
	for _, r := range rooms {
		views = append(views, toRoomView(r))
	}
	resp.JSON(map[string]any{"success": true, "rooms": views, "count": len(views)})
}

// GetRoom implements GET /websocket/rooms/{roomId}.
func (m *Manager) GetRoom(req *router.Request, resp *router.Response) {
	room, ok := m.Room(req.Param("roomId"))
	if !ok {
		resp.Status(404).JSON(map[string]any{"success": false, "error": "room not found"})
		return
	}
	resp.JSON(map[string]any{"success": true, "room": toRoomView(room)})
}

type createRoomBody struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	MaxConnections int    `json:"maxConnections"`
}

// CreateRoomHandler implements POST /websocket/rooms.
func (m *Manager) CreateRoomHandler(req *router.Request, resp *router.Response) {
	raw, _ := req.Body()
	var body createRoomBody
	_ = json.Unmarshal(raw, &body)
	if body.Name == "" {
		resp.Status(400).JSON(map[string]any{"success": false, "error": "name is required"})
		return
	}
	room := m.CreateRoom(body.Name, body.Description, body.MaxConnections)
	resp.JSON(map[string]any{"success": true, "roomId": room.ID})
}

type roomMessageBody struct {
	Message json.RawMessage `json:"message"`
}

// PostRoomMessage implements POST /websocket/rooms/{roomId}/message,
// broadcasting directly from the control plane (no originating
// connection, so callback filtering does not apply).
func (m *Manager) PostRoomMessage(req *router.Request, resp *router.Response) {
	roomID := req.Param("roomId")
	room, ok := m.Room(roomID)
	if !ok {
		resp.Status(404).JSON(map[string]any{"success": false, "error": "room not found"})
		return
	}
	raw, _ := req.Body()
	var body roomMessageBody
	_ = json.Unmarshal(raw, &body)

	frame := outboundFrame(typeRoomMessage, map[string]any{"room_id": roomID, "data": body.Message})
	for _, memberID := range room.memberIDs() {
		if peer, ok := m.Connection(memberID); ok {
			if !peer.enqueue(frame) {
				m.recordSendFailure(peer.Path, roomID)
			}
		}
	}
	resp.JSON(map[string]any{"success": true})
}

type connectionIDBody struct {
	ConnectionID string `json:"connectionId"`
}

// JoinRoomHandler implements POST /websocket/rooms/{roomId}/join.
func (m *Manager) JoinRoomHandler(req *router.Request, resp *router.Response) {
	roomID := req.Param("roomId")
	raw, _ := req.Body()
	var body connectionIDBody
	_ = json.Unmarshal(raw, &body)

	conn, ok := m.Connection(body.ConnectionID)
	if !ok {
		resp.Status(404).JSON(map[string]any{"success": false, "error": "connection not found"})
		return
	}
	if err := m.JoinRoom(conn, roomID); err != nil {
		resp.Status(409).JSON(map[string]any{"success": false, "error": err.Error()})
		return
	}
	resp.JSON(map[string]any{"success": true})
}

// LeaveRoomHandler implements POST /websocket/rooms/{roomId}/leave.
func (m *Manager) LeaveRoomHandler(req *router.Request, resp *router.Response) {
	roomID := req.Param("roomId")
	raw, _ := req.Body()
	var body connectionIDBody
	_ = json.Unmarshal(raw, &body)

	conn, ok := m.Connection(body.ConnectionID)
	if !ok {
		resp.Status(404).JSON(map[string]any{"success": false, "error": "connection not found"})
		return
	}
	m.leaveRoom(conn, roomID, true)
	resp.JSON(map[string]any{"success": true})
}

type clientView struct {
	ConnectionID string `json:"connectionId"`
	ClientID     string `json:"clientId"`
	Path         string `json:"path"`
	State        string `json:"state"`
}

// GetClient implements GET /websocket/clients/{connectionId}.
func (m *Manager) GetClient(req *router.Request, resp *router.Response) {
	conn, ok := m.Connection(req.Param("connectionId"))
	if !ok {
		resp.Status(404).JSON(map[string]any{"success": false, "error": "client not found"})
		return
	}
	resp.JSON(map[string]any{"success": true, "client": clientView{
		ConnectionID: conn.ID,
		ClientID:     conn.ClientID,
		Path:         conn.Path,
		State:        conn.State().String(),
	}})
}

// GetClientRooms implements GET /websocket/clients/{connectionId}/rooms.
func (m *Manager) GetClientRooms(req *router.Request, resp *router.Response) {
	conn, ok := m.Connection(req.Param("connectionId"))
	if !ok {
		resp.Status(404).JSON(map[string]any{"success": false, "error": "client not found"})
		return
	}
	ids := conn.joinedRooms()
	resp.JSON(map[string]any{"success": true, "rooms": ids, "count": len(ids)})
}
