// internal/handlers/room_ws_test.go
package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatwave/lowcard/internal/protocol"
	"github.com/chatwave/lowcard/internal/seats"
)

func newTestRoomServer() *RoomServer {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	rs := NewRoomServer(logger)
	// Countdowns never tick during tests.
	rs.Registry.Scheduler().Interval = time.Hour
	return rs
}

func roomConn(playerID, name, room string) *RoomConn {
	return &RoomConn{PlayerID: playerID, DisplayName: name, Room: room}
}

// decodeAndRoute runs a raw wire frame through the same decode step as the
// read loop before dispatching it.
func decodeAndRoute(t *testing.T, rs *RoomServer, rc *RoomConn, frame string) {
	t.Helper()
	ev, err := protocol.Decode([]byte(frame))
	require.NoError(t, err)
	rs.route(rc, ev)
}

func TestRouteStartAndJoinBuildRoster(t *testing.T) {
	rs := newTestRoomServer()
	host := roomConn("p1", "Hosty", "room1")
	guest := roomConn("p2", "Two", "room1")

	decodeAndRoute(t, rs, host, `["gameLowCardStart", 100]`)
	decodeAndRoute(t, rs, guest, `["gameLowCardJoin"]`)

	g, ok := rs.Registry.Get("room1")
	require.True(t, ok)
	assert.Equal(t, 100, g.Bet)
	assert.Equal(t, []string{"p1", "p2"}, g.Players())
}

func TestRouteIsRoomScoped(t *testing.T) {
	rs := newTestRoomServer()
	decodeAndRoute(t, rs, roomConn("p1", "One", "room1"), `["gameLowCardStart", 50]`)
	decodeAndRoute(t, rs, roomConn("p9", "Nine", "room2"), `["gameLowCardJoin"]`)

	g, ok := rs.Registry.Get("room1")
	require.True(t, ok)
	assert.Equal(t, []string{"p1"}, g.Players())
	_, ok = rs.Registry.Get("room2")
	assert.False(t, ok)
}

func TestRouteEndRemovesGame(t *testing.T) {
	rs := newTestRoomServer()
	host := roomConn("p1", "Hosty", "room1")
	decodeAndRoute(t, rs, host, `["gameLowCardStart", 100]`)
	decodeAndRoute(t, rs, host, `["gameLowCardEnd"]`)

	_, ok := rs.Registry.Get("room1")
	assert.False(t, ok)
}

func TestRouteNumberOutsideDrawIsNoOp(t *testing.T) {
	rs := newTestRoomServer()
	host := roomConn("p1", "Hosty", "room1")
	decodeAndRoute(t, rs, host, `["gameLowCardStart", 100]`)
	decodeAndRoute(t, rs, host, `["gameLowCardNumber", "5", "tag1"]`)

	g, ok := rs.Registry.Get("room1")
	require.True(t, ok)
	assert.Equal(t, 0, g.Round())
}

func TestRegisterUnregisterBookkeeping(t *testing.T) {
	rs := newTestRoomServer()
	rc := roomConn("p1", "Hosty", "room1")

	rs.register(rc)
	rs.mu.Lock()
	assert.Same(t, rc, rs.byPlayer["p1"])
	assert.Len(t, rs.rooms["room1"], 1)
	rs.mu.Unlock()

	rs.unregister(rc)
	rs.mu.Lock()
	assert.NotContains(t, rs.byPlayer, "p1")
	assert.NotContains(t, rs.rooms, "room1")
	rs.mu.Unlock()
}

func TestUnicastToUnknownPlayerIsNoOp(t *testing.T) {
	rs := newTestRoomServer()
	// Must not panic with nobody connected.
	rs.Unicast("ghost", protocol.NextRound{Round: 1})
	rs.Broadcast("empty-room", protocol.NextRound{Round: 1})
}

func postJSON(t *testing.T, h http.HandlerFunc, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(data))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestBadgeEndpoints(t *testing.T) {
	rs := newTestRoomServer()
	rs.Seats.Occupy("room1", 3, seats.Occupant{Username: "alice"})

	rec := postJSON(t, AssignBadgeHandler(rs), assignBadgeRequest{
		Room: "room1", Seat: 3, Count: 2, Color: "gold",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/?room=room1", nil)
	listRec := httptest.NewRecorder()
	ListBadgesHandler(rs)(listRec, req)
	require.Equal(t, http.StatusOK, listRec.Code)
	var entries []struct {
		Seat  int    `json:"seat"`
		Count int    `json:"count"`
		Color string `json:"color"`
	}
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, 3, entries[0].Seat)
	assert.Equal(t, "gold", entries[0].Color)

	rec = postJSON(t, RemoveBadgeHandler(rs), removeBadgeRequest{Room: "room1", Seat: 3})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rs.Badges.ListAll("room1"))
}

func TestBadgeEndpointFailureStatuses(t *testing.T) {
	rs := newTestRoomServer()
	rs.Seats.Occupy("room1", 2, seats.Occupant{Username: "bot", Placeholder: true})

	rec := postJSON(t, AssignBadgeHandler(rs), assignBadgeRequest{Room: "room1", Seat: 99, Count: 1, Color: "red"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, AssignBadgeHandler(rs), assignBadgeRequest{Room: "nowhere", Seat: 1, Count: 1, Color: "red"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = postJSON(t, AssignBadgeHandler(rs), assignBadgeRequest{Room: "room1", Seat: 5, Count: 1, Color: "red"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = postJSON(t, AssignBadgeHandler(rs), assignBadgeRequest{Room: "room1", Seat: 2, Count: 1, Color: "red"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}
