// internal/game/game.go
package game

import (
	"context"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chatwave/lowcard/internal/cache"
	"github.com/chatwave/lowcard/internal/database"
	"github.com/chatwave/lowcard/internal/protocol"
)

// Phase is the lifecycle stage of a LowCard game. There is no terminal
// phase value: a finished game is simply removed from the registry.
type Phase int

const (
	// PhaseRegistration is the window in which players may join.
	PhaseRegistration Phase = iota
	// PhaseDraw is the window in which active players submit a number.
	PhaseDraw
)

// PlayerInfo identifies a registered player. IDs are opaque strings owned
// by the chat layer.
type PlayerInfo struct {
	ID   string
	Name string
}

// BroadcastFunc fans a message out to every connection in a room.
// Delivery is fire-and-forget: a failed write to one recipient must not
// abort the rest and is never surfaced to the engine.
type BroadcastFunc func(room string, msg protocol.Outbound)

// UnicastFunc sends a message to a single player's connection.
type UnicastFunc func(playerID string, msg protocol.Outbound)

// Broadcast error texts.
const (
	errNeedTwoPlayers = "Need at least two players to start the game."
	errNoNumbersDrawn = "No numbers were drawn this round."
	errInvalidNumber  = "Pick a number between 1 and 12."
)

// Game holds the entire state for one room's LowCard game. All state is
// guarded by mu; internal methods suffixed Locked assume the caller holds it.
type Game struct {
	// ID is the persistence identity used for action records and result rows.
	ID   uuid.UUID
	Room string
	Bet  int
	Host PlayerInfo

	phase       Phase
	destroyed   bool
	players     map[string]PlayerInfo
	order       []string // roster in join order, for deterministic id lists
	round       int
	submissions map[string]int
	eliminated  map[string]struct{}
	winner      string

	countdownRemaining int
	timerGen           uint64
	timerStop          chan struct{}

	mu sync.Mutex

	reg   *Registry
	sched *Scheduler

	broadcastFn BroadcastFunc
	unicastFn   UnicastFunc

	actionIndex int
}

func newGame(room string, host PlayerInfo, bet int, reg *Registry) *Game {
	id, _ := uuid.NewRandom()
	g := &Game{
		ID:          id,
		Room:        room,
		Bet:         bet,
		Host:        host,
		phase:       PhaseRegistration,
		players:     map[string]PlayerInfo{host.ID: host},
		order:       []string{host.ID},
		submissions: make(map[string]int),
		eliminated:  make(map[string]struct{}),
		reg:         reg,
		sched:       reg.sched,
		broadcastFn: reg.broadcast,
		unicastFn:   reg.unicast,
	}
	return g
}

// Phase returns the current phase.
func (g *Game) Phase() Phase {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phase
}

// Round returns the current round number (0 during registration).
func (g *Game) Round() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.round
}

// Winner returns the winning player id, or "" if no winner was decided.
func (g *Game) Winner() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.winner
}

// Players returns the roster ids in join order.
func (g *Game) Players() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.playerIDsLocked()
}

// Eliminated reports whether the player has been eliminated.
func (g *Game) Eliminated(playerID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, out := g.eliminated[playerID]
	return out
}

// join adds a player during registration. Duplicate joins and joins outside
// the registration window are expected client races and ignored silently.
func (g *Game) join(p PlayerInfo) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.destroyed || g.phase != PhaseRegistration {
		return
	}
	if _, exists := g.players[p.ID]; exists {
		return
	}
	g.players[p.ID] = p
	g.order = append(g.order, p.ID)
	g.broadcast(protocol.Join{DisplayName: p.Name, Bet: g.Bet})
	g.logAction(p.ID, "game_join", nil)
}

// submit validates and records a number submission for the current round.
// Precondition failures (wrong phase, non-player, eliminated, duplicate) are
// silent no-ops; an out-of-range or unparsable value is reported to the
// sender only and leaves the slot empty so a retry is allowed.
func (g *Game) submit(playerID, raw, corrTag string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.destroyed || g.phase != PhaseDraw {
		return
	}
	if _, ok := g.players[playerID]; !ok {
		return
	}
	if _, out := g.eliminated[playerID]; out {
		return
	}
	if _, dup := g.submissions[playerID]; dup {
		return
	}

	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 || n > 12 {
		g.unicast(playerID, protocol.Error{Message: errInvalidNumber})
		return
	}

	g.submissions[playerID] = n
	g.broadcast(protocol.PlayerDraw{PlayerID: playerID, Number: n, CorrelationTag: corrTag})
	g.logAction(playerID, "game_draw", map[string]interface{}{"number": n, "round": g.round})

	// Early completion: everyone still in has drawn, no need to wait for
	// the countdown.
	if len(g.submissions) == g.activeCountLocked() {
		g.evaluateRoundLocked()
	}
}

// end terminates the game unconditionally, broadcasting the full original
// roster, regardless of phase.
func (g *Game) end() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.destroyed {
		return
	}
	g.broadcast(protocol.End{PlayerIDs: g.playerIDsLocked()})
	g.destroyLocked("game_end")
}

// handleDisconnect is the explicit hook for the chat layer to report a
// player leaving mid-game. During registration the player is dropped from
// the roster; during a draw they are marked eliminated so the round no
// longer waits on them.
func (g *Game) handleDisconnect(playerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.destroyed {
		return
	}
	if _, ok := g.players[playerID]; !ok {
		return
	}

	switch g.phase {
	case PhaseRegistration:
		delete(g.players, playerID)
		for i, id := range g.order {
			if id == playerID {
				g.order = append(g.order[:i], g.order[i+1:]...)
				break
			}
		}
		if len(g.players) == 0 {
			g.destroyLocked("game_abandoned")
		}
	case PhaseDraw:
		if _, out := g.eliminated[playerID]; out {
			return
		}
		g.eliminated[playerID] = struct{}{}
		delete(g.submissions, playerID)
		g.logAction(playerID, "player_left", map[string]interface{}{"round": g.round})
		if g.activeCountLocked() == 0 {
			g.destroyLocked("game_abandoned")
			return
		}
		if len(g.submissions) == g.activeCountLocked() && len(g.submissions) > 0 {
			g.evaluateRoundLocked()
		}
	}
}

// closeRegistrationLocked freezes the roster when the registration countdown
// expires. With fewer than two players the game is aborted; otherwise the
// first draw round begins. Assumes lock is held.
func (g *Game) closeRegistrationLocked() {
	if g.destroyed || g.phase != PhaseRegistration {
		return
	}

	if len(g.players) < 2 {
		if len(g.players) == 1 {
			lone := g.order[0]
			g.unicast(g.Host.ID, protocol.NoJoin{HostName: g.Host.Name, Bet: g.Bet})
			g.broadcast(protocol.Error{Message: errNeedTwoPlayers, PlayerID: lone})
		} else {
			g.broadcast(protocol.Error{Message: errNeedTwoPlayers})
		}
		g.destroyLocked("registration_failed")
		return
	}

	ids := g.playerIDsLocked()
	g.broadcast(protocol.Closed{PlayerIDs: ids})
	g.broadcast(protocol.PlayersInGame{PlayerIDs: ids, Bet: g.Bet})

	g.phase = PhaseDraw
	g.round = 1
	g.broadcast(protocol.NextRound{Round: g.round})
	g.logAction("", "registration_closed", map[string]interface{}{"players": len(ids)})
	g.sched.scheduleLocked(g, g.reg.DrawSeconds, (*Game).evaluateRoundLocked)
}

// evaluateRoundLocked resolves the current round: zero submissions aborts
// the game, a single submission wins outright, otherwise everyone tied at
// the minimum value is eliminated together. Assumes lock is held.
func (g *Game) evaluateRoundLocked() {
	if g.destroyed || g.phase != PhaseDraw {
		return
	}
	g.cancelTimerLocked()

	switch len(g.submissions) {
	case 0:
		g.broadcast(protocol.Error{Message: errNoNumbersDrawn})
		g.destroyLocked("round_empty")
		return
	case 1:
		for id := range g.submissions {
			g.declareWinnerLocked(id)
		}
		return
	}

	out := Evaluate(g.submissions, g.activeIDsLocked())
	if !out.AllTied {
		for _, id := range out.Losers {
			g.eliminated[id] = struct{}{}
		}
		if len(out.Remaining) == 1 {
			g.declareWinnerLocked(out.Remaining[0])
			return
		}
	}

	g.broadcast(protocol.RoundResult{
		Round:     g.round,
		Draws:     g.drawPairsLocked(),
		Losers:    out.Losers,
		Remaining: out.Remaining,
	})
	g.logAction("", "round_result", map[string]interface{}{
		"round":  g.round,
		"losers": out.Losers,
	})

	g.submissions = make(map[string]int)
	g.round++
	g.broadcast(protocol.NextRound{Round: g.round})
	g.sched.scheduleLocked(g, g.reg.DrawSeconds, (*Game).evaluateRoundLocked)
}

// declareWinnerLocked ends the game with a winner. The payout is the bet
// times the original roster size, not the remaining count. Assumes lock is
// held.
func (g *Game) declareWinnerLocked(playerID string) {
	g.winner = playerID
	payout := g.Bet * len(g.players)
	g.broadcast(protocol.Winner{PlayerID: playerID, Payout: payout})
	g.logAction(playerID, "game_winner", map[string]interface{}{
		"payout": payout,
		"rounds": g.round,
	})

	// Persist the result off the hot path. Crediting the payout to an
	// account is the wallet service's job, not ours.
	result := database.GameResult{
		GameID:     g.ID,
		Room:       g.Room,
		WinnerID:   playerID,
		Bet:        g.Bet,
		Payout:     payout,
		RosterSize: len(g.players),
		Rounds:     g.round,
	}
	go func(res database.GameResult) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := database.RecordGameResult(ctx, res); err != nil {
			log.Printf("failed to record result for game %s: %v", res.GameID, err)
		}
	}(result)

	g.destroyLocked("game_winner")
}

// destroyLocked cancels any live countdown, removes the game from the
// registry, and marks it dead. The flag stops operations dispatched against
// a pointer copied out before removal, the inbound-event mirror of the
// timer generation guard. Assumes lock is held.
func (g *Game) destroyLocked(reason string) {
	g.destroyed = true
	g.cancelTimerLocked()
	g.reg.remove(g.Room, g)
	g.logAction("", "game_removed", map[string]interface{}{"reason": reason})
}

// cancelTimerLocked stops the live countdown, if any. Idempotent; bumping
// the generation invalidates ticks already in flight. Assumes lock is held.
func (g *Game) cancelTimerLocked() {
	g.timerGen++
	if g.timerStop != nil {
		close(g.timerStop)
		g.timerStop = nil
	}
}

// activeCountLocked counts players not yet eliminated. Assumes lock is held.
func (g *Game) activeCountLocked() int {
	return len(g.players) - len(g.eliminated)
}

// activeIDsLocked returns non-eliminated player ids in join order.
// Assumes lock is held.
func (g *Game) activeIDsLocked() []string {
	ids := make([]string, 0, g.activeCountLocked())
	for _, id := range g.order {
		if _, out := g.eliminated[id]; !out {
			ids = append(ids, id)
		}
	}
	return ids
}

// playerIDsLocked returns all roster ids in join order. Assumes lock is held.
func (g *Game) playerIDsLocked() []string {
	ids := make([]string, len(g.order))
	copy(ids, g.order)
	return ids
}

// drawPairsLocked renders this round's submissions as "playerId:value"
// pairs in join order. Assumes lock is held.
func (g *Game) drawPairsLocked() []string {
	pairs := make([]string, 0, len(g.submissions))
	for _, id := range g.order {
		if n, ok := g.submissions[id]; ok {
			pairs = append(pairs, id+":"+strconv.Itoa(n))
		}
	}
	return pairs
}

// broadcast fans a message out to the room. Assumes lock is held.
func (g *Game) broadcast(msg protocol.Outbound) {
	if g.broadcastFn != nil {
		g.broadcastFn(g.Room, msg)
	}
}

// unicast sends a message to one player. Assumes lock is held.
func (g *Game) unicast(playerID string, msg protocol.Outbound) {
	if g.unicastFn != nil {
		g.unicastFn(playerID, msg)
	}
}

// logAction publishes an action record to the history queue. Fire-and-forget
// and tolerant of a missing Redis client. Assumes lock is held.
func (g *Game) logAction(actorID, actionType string, payload map[string]interface{}) {
	g.actionIndex++
	if payload == nil {
		payload = make(map[string]interface{})
	}
	record := cache.GameActionRecord{
		GameID:      g.ID,
		Room:        g.Room,
		ActionIndex: g.actionIndex,
		ActorID:     actorID,
		ActionType:  actionType,
		Payload:     payload,
		Timestamp:   time.Now().UnixMilli(),
	}
	go func(rec cache.GameActionRecord) {
		if cache.Rdb == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := cache.PublishGameAction(ctx, rec); err != nil {
			log.Printf("failed to publish action %d for game %s: %v", rec.ActionIndex, rec.GameID, err)
		}
	}(record)
}
