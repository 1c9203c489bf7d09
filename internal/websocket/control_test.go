package websocket

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/s00d/rnode-server/internal/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newControlDispatcher(t *testing.T, m *Manager) *router.Dispatcher {
	t.Helper()
	d := router.New(nil, false)
	require.NoError(t, d.Register(http.MethodGet, "/websocket/rooms", m.ListRooms))
	require.NoError(t, d.Register(http.MethodGet, "/websocket/rooms/{roomId}", m.GetRoom))
	require.NoError(t, d.Register(http.MethodPost, "/websocket/rooms", m.CreateRoomHandler))
	require.NoError(t, d.Register(http.MethodPost, "/websocket/rooms/{roomId}/message", m.PostRoomMessage))
	require.NoError(t, d.Register(http.MethodPost, "/websocket/rooms/{roomId}/join", m.JoinRoomHandler))
	require.NoError(t, d.Register(http.MethodPost, "/websocket/rooms/{roomId}/leave", m.LeaveRoomHandler))
	require.NoError(t, d.Register(http.MethodGet, "/websocket/clients/{connectionId}", m.GetClient))
	require.NoError(t, d.Register(http.MethodGet, "/websocket/clients/{connectionId}/rooms", m.GetClientRooms))
	return d
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestControl_CreateAndListRooms(t *testing.T) {
	m := New(0, 0, nil)
	d := newControlDispatcher(t, m)

	req := httptest.NewRequest(http.MethodPost, "/websocket/rooms",
		bytes.NewBufferString(`{"name":"lobby","description":"general","maxConnections":2}`))
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	created := decodeJSON(t, rec)
	assert.True(t, created["success"].(bool))
	roomID := created["roomId"].(string)
	assert.NotEmpty(t, roomID)

	rec2 := httptest.NewRecorder()
	d.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/websocket/rooms", nil))
	list := decodeJSON(t, rec2)
	assert.Equal(t, float64(1), list["count"])
}

func TestControl_CreateRoomRequiresName(t *testing.T) {
	m := New(0, 0, nil)
	d := newControlDispatcher(t, m)

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/websocket/rooms", bytes.NewBufferString(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestControl_GetRoomNotFound(t *testing.T) {
	m := New(0, 0, nil)
	d := newControlDispatcher(t, m)

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/websocket/rooms/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestControl_GetRoomFound(t *testing.T) {
	m := New(0, 0, nil)
	room := m.CreateRoom("lobby", "", 0)
	d := newControlDispatcher(t, m)

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/websocket/rooms/"+room.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	got := body["room"].(map[string]any)
	assert.Equal(t, "lobby", got["name"])
}

func TestControl_ClientNotFound(t *testing.T) {
	m := New(0, 0, nil)
	d := newControlDispatcher(t, m)

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/websocket/clients/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestControl_JoinAndLeaveRoomByConnectionID(t *testing.T) {
	m := New(0, 0, nil)
	route := &Route{path: "/ws"}
	c := newTestConnection(route)
	m.mu.Lock()
	m.connections[c.ID] = c
	m.mu.Unlock()

	room := m.CreateRoom("lobby", "", 0)
	d := newControlDispatcher(t, m)

	joinBody := `{"connectionId":"` + c.ID + `"}`
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/websocket/rooms/"+room.ID+"/join", bytes.NewBufferString(joinBody)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, c.inRoom(room.ID))

	rec2 := httptest.NewRecorder()
	d.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/websocket/clients/"+c.ID+"/rooms", nil))
	body := decodeJSON(t, rec2)
	assert.Equal(t, float64(1), body["count"])

	rec3 := httptest.NewRecorder()
	d.ServeHTTP(rec3, httptest.NewRequest(http.MethodPost, "/websocket/rooms/"+room.ID+"/leave", bytes.NewBufferString(joinBody)))
	require.Equal(t, http.StatusOK, rec3.Code)
	assert.False(t, c.inRoom(room.ID))
}

func TestControl_JoinUnknownConnectionIs404(t *testing.T) {
	m := New(0, 0, nil)
	room := m.CreateRoom("lobby", "", 0)
	d := newControlDispatcher(t, m)

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/websocket/rooms/"+room.ID+"/join", bytes.NewBufferString(`{"connectionId":"nope"}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestControl_PostRoomMessageDeliversToMembers(t *testing.T) {
	m := New(0, 0, nil)
	route := &Route{path: "/ws"}
	c := newTestConnection(route)
	m.mu.Lock()
	m.connections[c.ID] = c
	m.mu.Unlock()
	room := m.CreateRoom("lobby", "", 0)
	require.NoError(t, m.JoinRoom(c, room.ID))

	d := newControlDispatcher(t, m)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/websocket/rooms/"+room.ID+"/message", bytes.NewBufferString(`{"message":"hi"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case frame := <-c.send:
		assert.Contains(t, string(frame), "room_message")
	default:
		t.Fatal("expected a room_message frame to be queued for the member")
	}
}
