// internal/game/game_test.go
package game

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatwave/lowcard/internal/protocol"
)

// mockDelivery captures engine broadcasts and unicasts for inspection.
type mockDelivery struct {
	mu         sync.Mutex
	broadcasts []protocol.Outbound
	unicasts   map[string][]protocol.Outbound
}

func newMockDelivery() *mockDelivery {
	return &mockDelivery{unicasts: make(map[string][]protocol.Outbound)}
}

func (m *mockDelivery) broadcast(room string, msg protocol.Outbound) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcasts = append(m.broadcasts, msg)
}

func (m *mockDelivery) unicast(playerID string, msg protocol.Outbound) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unicasts[playerID] = append(m.unicasts[playerID], msg)
}

func (m *mockDelivery) broadcastTags() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	tags := make([]string, len(m.broadcasts))
	for i, msg := range m.broadcasts {
		tags[i] = msg.Tag()
	}
	return tags
}

func (m *mockDelivery) lastBroadcast(tag string) (protocol.Outbound, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.broadcasts) - 1; i >= 0; i-- {
		if m.broadcasts[i].Tag() == tag {
			return m.broadcasts[i], true
		}
	}
	return nil, false
}

func (m *mockDelivery) unicastsTo(playerID string) []protocol.Outbound {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]protocol.Outbound(nil), m.unicasts[playerID]...)
}

// newTestRegistry builds a registry whose timers never tick, so tests drive
// countdown expiry explicitly.
func newTestRegistry() (*Registry, *mockDelivery) {
	md := newMockDelivery()
	reg := NewRegistry(md.broadcast, md.unicast)
	reg.sched.Interval = time.Hour
	return reg, md
}

func expireCountdown(g *Game) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelTimerLocked()
	switch g.phase {
	case PhaseRegistration:
		g.closeRegistrationLocked()
	case PhaseDraw:
		g.evaluateRoundLocked()
	}
}

func startGameWithPlayers(t *testing.T, reg *Registry, bet int, players ...PlayerInfo) *Game {
	t.Helper()
	require.NotEmpty(t, players)
	reg.StartGame("room1", players[0], bet)
	g, ok := reg.Get("room1")
	require.True(t, ok)
	for _, p := range players[1:] {
		reg.JoinGame("room1", p)
	}
	return g
}

func TestStartGameBroadcastsAndConfirms(t *testing.T) {
	reg, md := newTestRegistry()
	reg.StartGame("room1", PlayerInfo{ID: "host", Name: "Hosty"}, 100)

	g, ok := reg.Get("room1")
	require.True(t, ok)
	assert.Equal(t, PhaseRegistration, g.Phase())
	assert.Equal(t, []string{"host"}, g.Players())

	start, ok := md.lastBroadcast(protocol.TagStart)
	require.True(t, ok)
	assert.Equal(t, 100, start.(protocol.Start).Bet)

	hostMsgs := md.unicastsTo("host")
	require.Len(t, hostMsgs, 1)
	success := hostMsgs[0].(protocol.StartSuccess)
	assert.Equal(t, "Hosty", success.HostName)
	assert.Equal(t, 100, success.Bet)
}

func TestStartGameIgnoredWhenRoomOccupied(t *testing.T) {
	reg, _ := newTestRegistry()
	reg.StartGame("room1", PlayerInfo{ID: "host"}, 100)
	first, _ := reg.Get("room1")

	reg.StartGame("room1", PlayerInfo{ID: "rival"}, 500)
	second, _ := reg.Get("room1")
	assert.Same(t, first, second)
	assert.Equal(t, 100, second.Bet)
}

func TestStartGameIgnoredWithoutRoom(t *testing.T) {
	reg, _ := newTestRegistry()
	reg.StartGame("", PlayerInfo{ID: "host"}, 100)
	_, ok := reg.Get("")
	assert.False(t, ok)
}

func TestJoinDuringRegistration(t *testing.T) {
	reg, md := newTestRegistry()
	g := startGameWithPlayers(t, reg, 50,
		PlayerInfo{ID: "host", Name: "Hosty"},
		PlayerInfo{ID: "p2", Name: "Two"},
	)

	assert.Equal(t, []string{"host", "p2"}, g.Players())
	join, ok := md.lastBroadcast(protocol.TagJoin)
	require.True(t, ok)
	assert.Equal(t, "Two", join.(protocol.Join).DisplayName)
	assert.Equal(t, 50, join.(protocol.Join).Bet)
}

func TestDuplicateJoinIgnored(t *testing.T) {
	reg, _ := newTestRegistry()
	g := startGameWithPlayers(t, reg, 50,
		PlayerInfo{ID: "host"},
		PlayerInfo{ID: "p2"},
	)
	reg.JoinGame("room1", PlayerInfo{ID: "p2"})
	assert.Equal(t, []string{"host", "p2"}, g.Players())
}

func TestJoinAfterRegistrationIgnored(t *testing.T) {
	reg, _ := newTestRegistry()
	g := startGameWithPlayers(t, reg, 50,
		PlayerInfo{ID: "host"},
		PlayerInfo{ID: "p2"},
	)
	expireCountdown(g)
	require.Equal(t, PhaseDraw, g.Phase())

	reg.JoinGame("room1", PlayerInfo{ID: "late"})
	assert.Equal(t, []string{"host", "p2"}, g.Players())
}

// Scenario: host starts alone and the registration timer expires. The host
// gets a private no-join notice, the room gets an error naming the lone
// player, and the game is destroyed without entering a draw phase.
func TestRegistrationCloseWithLonePlayer(t *testing.T) {
	reg, md := newTestRegistry()
	g := startGameWithPlayers(t, reg, 100, PlayerInfo{ID: "host", Name: "Hosty"})

	expireCountdown(g)

	hostMsgs := md.unicastsTo("host")
	var sawNoJoin bool
	for _, msg := range hostMsgs {
		if nj, ok := msg.(protocol.NoJoin); ok {
			sawNoJoin = true
			assert.Equal(t, "Hosty", nj.HostName)
			assert.Equal(t, 100, nj.Bet)
		}
	}
	assert.True(t, sawNoJoin)

	errMsg, ok := md.lastBroadcast(protocol.TagError)
	require.True(t, ok)
	assert.Equal(t, "host", errMsg.(protocol.Error).PlayerID)

	_, ok = reg.Get("room1")
	assert.False(t, ok)
	assert.NotContains(t, md.broadcastTags(), protocol.TagNextRound)
}

func TestRegistrationCloseFreezesRoster(t *testing.T) {
	reg, md := newTestRegistry()
	g := startGameWithPlayers(t, reg, 100,
		PlayerInfo{ID: "a"}, PlayerInfo{ID: "b"}, PlayerInfo{ID: "c"},
	)

	expireCountdown(g)

	require.Equal(t, PhaseDraw, g.Phase())
	assert.Equal(t, 1, g.Round())

	closed, ok := md.lastBroadcast(protocol.TagClosed)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b", "c"}, closed.(protocol.Closed).PlayerIDs)

	pig, ok := md.lastBroadcast(protocol.TagPlayersInGame)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b", "c"}, pig.(protocol.PlayersInGame).PlayerIDs)
	assert.Equal(t, 100, pig.(protocol.PlayersInGame).Bet)

	next, ok := md.lastBroadcast(protocol.TagNextRound)
	require.True(t, ok)
	assert.Equal(t, 1, next.(protocol.NextRound).Round)
}

// Scenario: two players tie in round one, then the lower draw loses round
// two. Payout is the bet times the original roster size.
func TestFullTieThenElimination(t *testing.T) {
	reg, md := newTestRegistry()
	g := startGameWithPlayers(t, reg, 100,
		PlayerInfo{ID: "a"}, PlayerInfo{ID: "b"},
	)
	expireCountdown(g)

	reg.SubmitNumber("room1", "a", "5", "")
	reg.SubmitNumber("room1", "b", "5", "")

	// Full tie: nobody eliminated, round advances.
	assert.Equal(t, 2, g.Round())
	assert.False(t, g.Eliminated("a"))
	assert.False(t, g.Eliminated("b"))

	rr, ok := md.lastBroadcast(protocol.TagRoundResult)
	require.True(t, ok)
	assert.Empty(t, rr.(protocol.RoundResult).Losers)
	assert.Equal(t, []string{"a", "b"}, rr.(protocol.RoundResult).Remaining)

	reg.SubmitNumber("room1", "a", "3", "")
	reg.SubmitNumber("room1", "b", "7", "")

	winner, ok := md.lastBroadcast(protocol.TagWinner)
	require.True(t, ok)
	assert.Equal(t, "b", winner.(protocol.Winner).PlayerID)
	assert.Equal(t, 200, winner.(protocol.Winner).Payout)

	_, ok = reg.Get("room1")
	assert.False(t, ok)
}

// Scenario: only one player submits before the round timer expires. That
// player wins with the payout computed from the full roster.
func TestSingleSubmissionWinsAtTimeout(t *testing.T) {
	reg, md := newTestRegistry()
	g := startGameWithPlayers(t, reg, 100,
		PlayerInfo{ID: "a"}, PlayerInfo{ID: "b"}, PlayerInfo{ID: "c"},
	)
	expireCountdown(g)

	reg.SubmitNumber("room1", "a", "4", "")
	expireCountdown(g)

	winner, ok := md.lastBroadcast(protocol.TagWinner)
	require.True(t, ok)
	assert.Equal(t, "a", winner.(protocol.Winner).PlayerID)
	assert.Equal(t, 300, winner.(protocol.Winner).Payout)
	_, ok = reg.Get("room1")
	assert.False(t, ok)
}

func TestZeroSubmissionsDestroysGame(t *testing.T) {
	reg, md := newTestRegistry()
	g := startGameWithPlayers(t, reg, 100,
		PlayerInfo{ID: "a"}, PlayerInfo{ID: "b"},
	)
	expireCountdown(g)
	expireCountdown(g)

	errMsg, ok := md.lastBroadcast(protocol.TagError)
	require.True(t, ok)
	assert.Equal(t, errNoNumbersDrawn, errMsg.(protocol.Error).Message)
	_, ok = reg.Get("room1")
	assert.False(t, ok)
}

func TestSharedMinimumEliminatesAllHolders(t *testing.T) {
	reg, md := newTestRegistry()
	g := startGameWithPlayers(t, reg, 10,
		PlayerInfo{ID: "a"}, PlayerInfo{ID: "b"}, PlayerInfo{ID: "c"},
	)
	expireCountdown(g)

	reg.SubmitNumber("room1", "a", "2", "")
	reg.SubmitNumber("room1", "b", "2", "")
	reg.SubmitNumber("room1", "c", "9", "")

	// a and b eliminated together; c is the sole survivor and wins.
	winner, ok := md.lastBroadcast(protocol.TagWinner)
	require.True(t, ok)
	assert.Equal(t, "c", winner.(protocol.Winner).PlayerID)
	assert.Equal(t, 30, winner.(protocol.Winner).Payout)
}

func TestInvalidNumberReportedToSenderOnly(t *testing.T) {
	reg, md := newTestRegistry()
	g := startGameWithPlayers(t, reg, 100,
		PlayerInfo{ID: "a"}, PlayerInfo{ID: "b"},
	)
	expireCountdown(g)

	reg.SubmitNumber("room1", "a", "13", "")
	reg.SubmitNumber("room1", "a", "banana", "")

	msgs := md.unicastsTo("a")
	errCount := 0
	for _, msg := range msgs {
		if e, ok := msg.(protocol.Error); ok {
			errCount++
			assert.Equal(t, errInvalidNumber, e.Message)
		}
	}
	assert.Equal(t, 2, errCount)

	// Retry is allowed: the slot is still empty.
	reg.SubmitNumber("room1", "a", "6", "")
	draw, ok := md.lastBroadcast(protocol.TagPlayerDraw)
	require.True(t, ok)
	assert.Equal(t, "a", draw.(protocol.PlayerDraw).PlayerID)
	assert.Equal(t, 6, draw.(protocol.PlayerDraw).Number)
}

func TestDuplicateSubmissionIgnored(t *testing.T) {
	reg, md := newTestRegistry()
	g := startGameWithPlayers(t, reg, 100,
		PlayerInfo{ID: "a"}, PlayerInfo{ID: "b"},
	)
	expireCountdown(g)

	reg.SubmitNumber("room1", "a", "7", "first")
	reg.SubmitNumber("room1", "a", "3", "second")

	draw, ok := md.lastBroadcast(protocol.TagPlayerDraw)
	require.True(t, ok)
	assert.Equal(t, 7, draw.(protocol.PlayerDraw).Number)
	assert.Equal(t, "first", draw.(protocol.PlayerDraw).CorrelationTag)
}

func TestSubmissionOutsideDrawIgnored(t *testing.T) {
	reg, md := newTestRegistry()
	startGameWithPlayers(t, reg, 100,
		PlayerInfo{ID: "a"}, PlayerInfo{ID: "b"},
	)

	reg.SubmitNumber("room1", "a", "5", "")
	_, ok := md.lastBroadcast(protocol.TagPlayerDraw)
	assert.False(t, ok)
}

func TestCorrelationTagEchoedUntouched(t *testing.T) {
	reg, md := newTestRegistry()
	g := startGameWithPlayers(t, reg, 100,
		PlayerInfo{ID: "a"}, PlayerInfo{ID: "b"},
	)
	expireCountdown(g)

	reg.SubmitNumber("room1", "a", "5", "ui-slot-42")
	draw, ok := md.lastBroadcast(protocol.TagPlayerDraw)
	require.True(t, ok)
	assert.Equal(t, "ui-slot-42", draw.(protocol.PlayerDraw).CorrelationTag)
}

func TestEndGameBroadcastsFullRoster(t *testing.T) {
	reg, md := newTestRegistry()
	g := startGameWithPlayers(t, reg, 100,
		PlayerInfo{ID: "a"}, PlayerInfo{ID: "b"}, PlayerInfo{ID: "c"},
	)
	expireCountdown(g)
	reg.SubmitNumber("room1", "a", "1", "")
	reg.SubmitNumber("room1", "b", "2", "")

	reg.EndGame("room1")

	end, ok := md.lastBroadcast(protocol.TagEnd)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b", "c"}, end.(protocol.End).PlayerIDs)
	_, ok = reg.Get("room1")
	assert.False(t, ok)
}

func TestDisconnectDuringRegistrationDropsPlayer(t *testing.T) {
	reg, _ := newTestRegistry()
	g := startGameWithPlayers(t, reg, 100,
		PlayerInfo{ID: "a"}, PlayerInfo{ID: "b"},
	)

	reg.HandleDisconnect("room1", "b")
	assert.Equal(t, []string{"a"}, g.Players())

	// Everyone gone: the game dissolves.
	reg.HandleDisconnect("room1", "a")
	_, ok := reg.Get("room1")
	assert.False(t, ok)
}

func TestDisconnectDuringDrawEliminates(t *testing.T) {
	reg, md := newTestRegistry()
	g := startGameWithPlayers(t, reg, 100,
		PlayerInfo{ID: "a"}, PlayerInfo{ID: "b"}, PlayerInfo{ID: "c"},
	)
	expireCountdown(g)

	reg.SubmitNumber("room1", "a", "3", "")
	reg.SubmitNumber("room1", "b", "8", "")
	// c leaves; the round no longer waits on them and evaluates now.
	reg.HandleDisconnect("room1", "c")

	winner, ok := md.lastBroadcast(protocol.TagWinner)
	require.True(t, ok)
	assert.Equal(t, "b", winner.(protocol.Winner).PlayerID)
	assert.Equal(t, 300, winner.(protocol.Winner).Payout)
}

// A pointer to a destroyed game can still be held by a caller that looked
// it up before a concurrent terminal transition. Late operations through
// that pointer must be dead no-ops: no broadcasts, no state changes.
func TestDestroyedGameIgnoresLateOperations(t *testing.T) {
	reg, md := newTestRegistry()
	g := startGameWithPlayers(t, reg, 100,
		PlayerInfo{ID: "a"}, PlayerInfo{ID: "b"},
	)
	expireCountdown(g)
	require.Equal(t, PhaseDraw, g.Phase())

	reg.EndGame("room1")
	_, ok := reg.Get("room1")
	require.False(t, ok)

	md.mu.Lock()
	baseline := len(md.broadcasts)
	md.mu.Unlock()

	// Stale dispatches arriving after destruction.
	g.submit("b", "5", "")
	g.submit("a", "7", "")
	g.join(PlayerInfo{ID: "late"})
	g.end()
	g.handleDisconnect("a")

	md.mu.Lock()
	after := len(md.broadcasts)
	md.mu.Unlock()
	assert.Equal(t, baseline, after)
	assert.Equal(t, 1, g.Round())
	assert.Empty(t, g.Winner())
	assert.Equal(t, []string{"a", "b"}, g.Players())
}

// Same race during registration: a destroyed game must not accept joins or
// re-enter the lifecycle through its own countdown callback.
func TestDestroyedGameIgnoresLateRegistrationClose(t *testing.T) {
	reg, md := newTestRegistry()
	g := startGameWithPlayers(t, reg, 100,
		PlayerInfo{ID: "a"}, PlayerInfo{ID: "b"},
	)
	reg.EndGame("room1")

	md.mu.Lock()
	baseline := len(md.broadcasts)
	md.mu.Unlock()

	g.mu.Lock()
	g.closeRegistrationLocked()
	g.mu.Unlock()

	md.mu.Lock()
	after := len(md.broadcasts)
	md.mu.Unlock()
	assert.Equal(t, baseline, after)
	assert.Equal(t, PhaseRegistration, g.Phase())
}

func TestRoomReusableAfterGameEnds(t *testing.T) {
	reg, _ := newTestRegistry()
	g := startGameWithPlayers(t, reg, 100,
		PlayerInfo{ID: "a"}, PlayerInfo{ID: "b"},
	)
	expireCountdown(g)
	reg.EndGame("room1")

	reg.StartGame("room1", PlayerInfo{ID: "x"}, 25)
	fresh, ok := reg.Get("room1")
	require.True(t, ok)
	assert.Equal(t, 25, fresh.Bet)
	assert.NotEqual(t, g.ID, fresh.ID)
}

func TestRoundResultDrawPairsInRosterOrder(t *testing.T) {
	reg, md := newTestRegistry()
	g := startGameWithPlayers(t, reg, 10,
		PlayerInfo{ID: "a"}, PlayerInfo{ID: "b"}, PlayerInfo{ID: "c"},
	)
	expireCountdown(g)

	reg.SubmitNumber("room1", "c", "9", "")
	reg.SubmitNumber("room1", "a", "2", "")
	reg.SubmitNumber("room1", "b", "5", "")

	rr, ok := md.lastBroadcast(protocol.TagRoundResult)
	require.True(t, ok)
	res := rr.(protocol.RoundResult)
	assert.Equal(t, 1, res.Round)
	assert.Equal(t, []string{"a:2", "b:5", "c:9"}, res.Draws)
	assert.Equal(t, []string{"a"}, res.Losers)
	assert.Equal(t, []string{"b", "c"}, res.Remaining)
	assert.Equal(t, 2, g.Round())
}
