// internal/game/registry.go
package game

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/chatwave/lowcard/internal/protocol"
)

// Default countdown lengths in seconds.
const (
	DefaultRegistrationSeconds = 30
	DefaultDrawSeconds         = 30
)

// Registry owns every live game, keyed by room. At most one game exists
// per room at a time; a room becomes available again the moment its game
// is destroyed.
//
// Lock order: Registry.mu is never held while acquiring a Game's lock.
// Lookups copy the pointer out under mu and release it before touching the
// game, so a game destroying itself (game lock → Registry.mu) cannot
// deadlock.
type Registry struct {
	mu    sync.Mutex
	games map[string]*Game

	sched     *Scheduler
	broadcast BroadcastFunc
	unicast   UnicastFunc

	// RegistrationSeconds and DrawSeconds are the countdown lengths armed
	// for new games. Mutated only before games exist (startup, tests).
	RegistrationSeconds int
	DrawSeconds         int
}

// NewRegistry builds a registry wired to the given delivery ports.
func NewRegistry(broadcast BroadcastFunc, unicast UnicastFunc) *Registry {
	r := &Registry{
		games:               make(map[string]*Game),
		broadcast:           broadcast,
		unicast:             unicast,
		RegistrationSeconds: DefaultRegistrationSeconds,
		DrawSeconds:         DefaultDrawSeconds,
	}
	r.sched = newScheduler(r)
	return r
}

// Scheduler exposes the registry's countdown driver, mainly so tests can
// shorten the tick interval.
func (r *Registry) Scheduler() *Scheduler {
	return r.sched
}

// Get returns the live game for room, if any.
func (r *Registry) Get(room string) (*Game, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.games[room]
	return g, ok
}

// StartGame opens a new game in room with the sender as host. Ignored when
// the room is unset or already has a live game; concurrent start requests
// are an expected client race, so the loser is dropped silently.
func (r *Registry) StartGame(room string, host PlayerInfo, bet int) {
	if room == "" {
		return
	}

	r.mu.Lock()
	if _, exists := r.games[room]; exists {
		r.mu.Unlock()
		return
	}
	g := newGame(room, host, bet, r)
	r.games[room] = g
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"room":    room,
		"game_id": g.ID,
		"host":    host.ID,
		"bet":     bet,
	}).Info("lowcard game started")

	g.mu.Lock()
	defer g.mu.Unlock()
	g.broadcast(protocol.Start{Bet: bet})
	g.unicast(host.ID, protocol.StartSuccess{HostName: host.Name, Bet: bet})
	g.logAction(host.ID, "game_start", map[string]interface{}{"bet": bet})
	r.sched.scheduleLocked(g, r.RegistrationSeconds, (*Game).closeRegistrationLocked)
}

// JoinGame registers a player in room's game. No-op when the room has no
// game; later preconditions (phase, duplicates) are checked by the game.
func (r *Registry) JoinGame(room string, p PlayerInfo) {
	if g, ok := r.Get(room); ok {
		g.join(p)
	}
}

// SubmitNumber forwards a number submission to room's game.
func (r *Registry) SubmitNumber(room, playerID, raw, corrTag string) {
	if g, ok := r.Get(room); ok {
		g.submit(playerID, raw, corrTag)
	}
}

// EndGame terminates room's game immediately, if one exists.
func (r *Registry) EndGame(room string) {
	if g, ok := r.Get(room); ok {
		g.end()
	}
}

// HandleDisconnect reports a player leaving the room to its game, if any.
func (r *Registry) HandleDisconnect(room, playerID string) {
	if g, ok := r.Get(room); ok {
		g.handleDisconnect(playerID)
	}
}

// remove deletes g from the registry if it is still the room's current
// entry. The compare guards against removing a successor game that reused
// the room after g was already gone.
func (r *Registry) remove(room string, g *Game) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.games[room]; ok && current == g {
		delete(r.games, room)
		logrus.WithFields(logrus.Fields{
			"room":    room,
			"game_id": g.ID,
		}).Info("lowcard game removed")
	}
}
