// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/chatwave/lowcard/internal/game"
	"github.com/chatwave/lowcard/internal/middleware"
	"github.com/chatwave/lowcard/internal/protocol"
	"github.com/chatwave/lowcard/internal/seats"
)

// RoomConn is one player's live connection to a room.
type RoomConn struct {
	PlayerID    string
	DisplayName string
	Room        string
	Seat        int
	Conn        *websocket.Conn
}

// RoomServer is the hub tying connections, seats, badges, and the game
// registry together. Its Broadcast and Unicast methods are the delivery
// ports the game engine calls synchronously; writes happen asynchronously
// so engine logic never blocks on a slow socket.
type RoomServer struct {
	mu       sync.Mutex
	rooms    map[string]map[*RoomConn]struct{}
	byPlayer map[string]*RoomConn

	Registry *game.Registry
	Seats    *seats.Table
	Badges   *seats.Badges

	logger *logrus.Logger
}

// NewRoomServer builds a hub with its own registry, seat table, and badge
// store wired to the hub's delivery methods.
func NewRoomServer(logger *logrus.Logger) *RoomServer {
	rs := &RoomServer{
		rooms:    make(map[string]map[*RoomConn]struct{}),
		byPlayer: make(map[string]*RoomConn),
		logger:   logger,
	}
	rs.Registry = game.NewRegistry(rs.Broadcast, rs.Unicast)
	rs.Seats = seats.NewTable()
	rs.Badges = seats.NewBadges(rs.Seats, rs.Broadcast)
	return rs
}

// Broadcast encodes msg once and fans it out to every connection in room.
// May be called while the game lock is held, so the actual socket writes
// happen on a separate goroutine with per-write timeouts.
func (rs *RoomServer) Broadcast(room string, msg protocol.Outbound) {
	data, err := protocol.Encode(msg)
	if err != nil {
		rs.logger.Errorf("failed to encode broadcast %s for room %s: %v", msg.Tag(), room, err)
		return
	}

	rs.mu.Lock()
	conns := make([]*RoomConn, 0, len(rs.rooms[room]))
	for rc := range rs.rooms[room] {
		conns = append(conns, rc)
	}
	rs.mu.Unlock()

	go func(targets []*RoomConn, payload []byte) {
		for _, rc := range targets {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := rc.Conn.Write(ctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				rs.logger.Warnf("failed to write broadcast to player %s in room %s: %v", rc.PlayerID, rc.Room, err)
			}
		}
	}(conns, data)
}

// Unicast sends msg to a single player's connection, if connected. Same
// locking contract as Broadcast.
func (rs *RoomServer) Unicast(playerID string, msg protocol.Outbound) {
	rs.mu.Lock()
	rc := rs.byPlayer[playerID]
	rs.mu.Unlock()
	if rc == nil {
		return
	}

	data, err := protocol.Encode(msg)
	if err != nil {
		rs.logger.Errorf("failed to encode unicast %s for player %s: %v", msg.Tag(), playerID, err)
		return
	}

	go func(conn *websocket.Conn, payload []byte, id string) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
			rs.logger.Warnf("failed to write unicast to player %s: %v", id, err)
		}
	}(rc.Conn, data, playerID)
}

func (rs *RoomServer) register(rc *RoomConn) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	roomConns, ok := rs.rooms[rc.Room]
	if !ok {
		roomConns = make(map[*RoomConn]struct{})
		rs.rooms[rc.Room] = roomConns
	}
	roomConns[rc] = struct{}{}
	rs.byPlayer[rc.PlayerID] = rc
}

func (rs *RoomServer) unregister(rc *RoomConn) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if roomConns, ok := rs.rooms[rc.Room]; ok {
		delete(roomConns, rc)
		if len(roomConns) == 0 {
			delete(rs.rooms, rc.Room)
		}
	}
	if rs.byPlayer[rc.PlayerID] == rc {
		delete(rs.byPlayer, rc.PlayerID)
	}
}

// RoomWSHandler upgrades the HTTP connection to WebSocket for a room:
// /room/ws/{room}. It authenticates the user (minting an ephemeral guest if
// needed), takes a seat, registers the connection, and runs the read loop
// until the client goes away.
func RoomWSHandler(logger *logrus.Logger, rs *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room := strings.Trim(strings.TrimPrefix(r.URL.Path, "/room/ws/"), "/")
		if room == "" {
			http.Error(w, "Missing room in path (/room/ws/{room})", http.StatusBadRequest)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"game"},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("WebSocket accept error for room %s: %v", room, err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "Internal server error during handler exit.")

		if c.Subprotocol() != "game" {
			logger.Warnf("Client for room %s connected with invalid subprotocol: %s", room, c.Subprotocol())
			c.Close(websocket.StatusCode(BadSubprotocolError), "Client must use the 'game' subprotocol.")
			return
		}
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		playerID, displayName, err := EnsureEphemeralUser(w, r)
		if err != nil {
			logger.Warnf("User authentication failed for room %s: %v", room, err)
			c.Close(websocket.StatusCode(InvalidAuthTokenError), "Authentication failed.")
			return
		}

		seat := rs.Seats.OccupyFirstFree(room, seats.Occupant{Username: displayName})
		if seat == 0 {
			logger.Warnf("Room %s is full, rejecting player %s", room, playerID)
			c.Close(websocket.StatusCode(RoomFullError), "Room is full.")
			return
		}

		rc := &RoomConn{
			PlayerID:    playerID,
			DisplayName: displayName,
			Room:        room,
			Seat:        seat,
			Conn:        c,
		}
		rs.register(rc)
		logger.Infof("Player %s (%s) joined room %s at seat %d", playerID, displayName, room, seat)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		readErr := rs.readRoomMessages(ctx, rc)

		// Leaving the room: free the seat, drop stale badges, and tell the
		// game this player is gone.
		rs.unregister(rc)
		rs.Seats.Vacate(room, seat)
		rs.Badges.CleanupForUser(displayName)
		rs.Registry.HandleDisconnect(room, playerID)
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, readErr)
	}
}

// readRoomMessages reads frames off the socket, decodes them, and routes
// them to the game registry until the connection drops.
func (rs *RoomServer) readRoomMessages(ctx context.Context, rc *RoomConn) error {
	for {
		msgType, data, err := rc.Conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return nil
			}
			if strings.Contains(err.Error(), "context canceled") {
				return nil
			}
			return err
		}

		if msgType != websocket.MessageText {
			rs.logger.Warnf("Received non-text message type %d from player %s. Ignoring.", msgType, rc.PlayerID)
			continue
		}

		ev, err := protocol.Decode(data)
		if err != nil {
			rs.logger.Warnf("Dropping bad frame from player %s in room %s: %v", rc.PlayerID, rc.Room, err)
			continue
		}

		rs.route(rc, ev)
	}
}

// route dispatches a decoded inbound event to the game registry on behalf
// of rc. Precondition checks (phase, duplicates, occupancy) belong to the
// engine, so every event is forwarded as-is.
func (rs *RoomServer) route(rc *RoomConn, ev protocol.Inbound) {
	switch m := ev.(type) {
	case protocol.StartRequest:
		rs.Registry.StartGame(rc.Room, game.PlayerInfo{ID: rc.PlayerID, Name: rc.DisplayName}, m.Bet)
	case protocol.JoinRequest:
		rs.Registry.JoinGame(rc.Room, game.PlayerInfo{ID: rc.PlayerID, Name: rc.DisplayName})
	case protocol.NumberRequest:
		rs.Registry.SubmitNumber(rc.Room, rc.PlayerID, m.Raw, m.CorrelationTag)
	case protocol.EndRequest:
		rs.Registry.EndGame(rc.Room)
	}
}
