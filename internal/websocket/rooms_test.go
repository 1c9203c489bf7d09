package websocket

import (
	"encoding/json"
	"testing"

	"github.com/s00d/rnode-server/internal/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_JoinRoom_CreatesRoomOnFirstJoin(t *testing.T) {
	m := New(0, 0, nil)
	c := newTestConnection(&Route{})

	require.NoError(t, m.JoinRoom(c, "auto-room"))
	room, ok := m.Room("auto-room")
	require.True(t, ok)
	assert.True(t, room.hasMember(c.ID))
	assert.True(t, c.inRoom("auto-room"))
}

func TestManager_JoinRoom_RespectsMaxConnections(t *testing.T) {
	m := New(0, 0, nil)
	room := m.CreateRoom("small", "", 1)
	c1 := newNamedTestConnection("conn-1", "client-1", &Route{})
	c2 := newNamedTestConnection("conn-2", "client-2", &Route{})

	require.NoError(t, m.JoinRoom(c1, room.ID))
	err := m.JoinRoom(c2, room.ID)
	require.Error(t, err)
	ae, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.RoomFull, ae.Kind)
}

func TestManager_LeaveRoom_EmitsRoomLeftWhenRequested(t *testing.T) {
	m := New(0, 0, nil)
	room := m.CreateRoom("lobby", "", 0)
	c := newTestConnection(&Route{})
	require.NoError(t, m.JoinRoom(c, room.ID))

	m.leaveRoom(c, room.ID, true)
	assert.False(t, c.inRoom(room.ID))
	assert.False(t, room.hasMember(c.ID))

	frame := <-c.send
	assert.Contains(t, string(frame), "room_left")
}

func TestManager_LeaveRoom_SilentWhenNotRequested(t *testing.T) {
	m := New(0, 0, nil)
	room := m.CreateRoom("lobby", "", 0)
	c := newTestConnection(&Route{})
	require.NoError(t, m.JoinRoom(c, room.ID))

	m.leaveRoom(c, room.ID, false)
	select {
	case frame := <-c.send:
		t.Fatalf("expected no frame, got %s", frame)
	default:
	}
}

func TestManager_HandleJoinRoom_CallbackCancelBlocks(t *testing.T) {
	route := &Route{
		callbacks: Callbacks{OnJoinRoom: func(conn *Connection, roomID string) CallbackResult {
			return CallbackResult{Kind: Cancel, Reason: "not allowed"}
		}},
	}
	route.enabled = bitsetFor(route.callbacks)
	m := New(0, 0, nil)
	c := newTestConnection(route)

	m.handleJoinRoom(c, "r1")
	_, ok := m.Room("r1")
	assert.False(t, ok, "room must not be created when the callback cancels the join")

	frame := <-c.send
	assert.Contains(t, string(frame), "message_blocked")
}

func TestManager_HandleRoomMessage_DeliversToOtherMembersOnly(t *testing.T) {
	m := New(0, 0, nil)
	route := &Route{}
	sender := newNamedTestConnection("conn-sender", "client-sender", route)
	peer := newNamedTestConnection("conn-peer", "client-peer", route)
	m.mu.Lock()
	m.connections[sender.ID] = sender
	m.connections[peer.ID] = peer
	m.mu.Unlock()

	room := m.CreateRoom("lobby", "", 0)
	require.NoError(t, m.JoinRoom(sender, room.ID))
	require.NoError(t, m.JoinRoom(peer, room.ID))

	m.handleRoomMessage(sender, room.ID, json.RawMessage(`"hello"`))

	select {
	case frame := <-sender.send:
		t.Fatalf("sender must not receive its own broadcast, got %s", frame)
	default:
	}

	frame := <-peer.send
	assert.Contains(t, string(frame), "hello")
}

func TestManager_HandleRoomMessage_NonMemberGetsServerError(t *testing.T) {
	m := New(0, 0, nil)
	room := m.CreateRoom("lobby", "", 0)
	c := newTestConnection(&Route{})

	m.handleRoomMessage(c, room.ID, json.RawMessage(`"x"`))
	frame := <-c.send
	assert.Contains(t, string(frame), "unknown_room")
}

func TestManager_HandleDirectMessage_UnknownTargetGetsServerError(t *testing.T) {
	m := New(0, 0, nil)
	c := newTestConnection(&Route{})

	m.handleDirectMessage(c, "nobody", json.RawMessage(`"hi"`))
	frame := <-c.send
	assert.Contains(t, string(frame), "unknown_client")
}

func TestManager_HandleDirectMessage_DeliversToTarget(t *testing.T) {
	m := New(0, 0, nil)
	sender := newTestConnection(&Route{})
	target := newTestConnection(&Route{})
	target.ClientID = "target-client"
	m.mu.Lock()
	m.connections[target.ID] = target
	m.clientIndex[target.ClientID] = target.ID
	m.mu.Unlock()

	m.handleDirectMessage(sender, "target-client", json.RawMessage(`"secret"`))
	frame := <-target.send
	assert.Contains(t, string(frame), "secret")
	assert.Contains(t, string(frame), sender.ClientID)
}

func TestManager_CloseAll_TriggersCloseOnEveryConnection(t *testing.T) {
	m := New(0, 0, nil)
	c1 := newNamedTestConnection("conn-1", "client-1", &Route{})
	c2 := newNamedTestConnection("conn-2", "client-2", &Route{})
	m.mu.Lock()
	m.connections[c1.ID] = c1
	m.connections[c2.ID] = c2
	m.mu.Unlock()

	m.CloseAll()
	for _, c := range []*Connection{c1, c2} {
		select {
		case <-c.closeCh:
		default:
			t.Fatalf("connection %s was not closed", c.ID)
		}
	}
}
