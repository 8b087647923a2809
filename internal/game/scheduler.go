// internal/game/scheduler.go
package game

import (
	"time"

	"github.com/chatwave/lowcard/internal/protocol"
)

// Scheduler drives the per-game one-second countdown. Each game holds at
// most one live countdown; arming a new one always cancels the previous.
// Ticks re-check that the game is still the registry's entry for its room
// before touching state, so a timer that raced a terminal transition dies
// silently instead of mutating a removed game.
type Scheduler struct {
	reg *Registry

	// Interval between ticks. One second in production; tests shorten it.
	Interval time.Duration
}

func newScheduler(reg *Registry) *Scheduler {
	return &Scheduler{reg: reg, Interval: time.Second}
}

// Schedule arms a countdown of the given number of seconds on g. When the
// countdown reaches zero, a time-up notice is broadcast and onExpire is
// invoked with the game lock held.
func (s *Scheduler) Schedule(g *Game, seconds int, onExpire func(*Game)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s.scheduleLocked(g, seconds, onExpire)
}

// scheduleLocked is Schedule for callers already holding the game lock.
func (s *Scheduler) scheduleLocked(g *Game, seconds int, onExpire func(*Game)) {
	g.cancelTimerLocked()
	g.countdownRemaining = seconds
	g.timerGen++
	gen := g.timerGen
	stop := make(chan struct{})
	g.timerStop = stop
	go s.run(g, gen, stop, onExpire)
}

// Cancel stops g's live countdown, if any. Idempotent.
func (s *Scheduler) Cancel(g *Game) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelTimerLocked()
}

func (s *Scheduler) run(g *Game, gen uint64, stop chan struct{}, onExpire func(*Game)) {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if s.tick(g, gen, onExpire) {
				return
			}
		}
	}
}

// tick handles one countdown step. Returns true when the countdown is done
// and the goroutine should exit.
func (s *Scheduler) tick(g *Game, gen uint64, onExpire func(*Game)) bool {
	// Stale-timer guard: the game may have been removed (or replaced) by a
	// concurrent terminal transition since this tick was scheduled.
	current, ok := s.reg.Get(g.Room)
	if !ok || current != g {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if gen != g.timerGen {
		return true
	}

	if g.countdownRemaining <= 0 {
		g.broadcast(protocol.TimeUp())
		g.cancelTimerLocked()
		onExpire(g)
		return true
	}

	g.broadcast(protocol.TimeLeftSeconds(g.countdownRemaining))
	g.countdownRemaining--
	return false
}
