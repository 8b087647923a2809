// internal/protocol/messages.go
package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Wire frames are JSON arrays: the first element is the event tag, the rest
// are positional arguments. Lists of player ids travel as nested string
// arrays. Decoding happens here so the game engine only ever sees typed
// values, never raw frames.

// Event tags. Start and Join are used in both directions with different
// argument shapes.
const (
	TagStart         = "gameLowCardStart"
	TagStartSuccess  = "gameLowCardStartSuccess"
	TagJoin          = "gameLowCardJoin"
	TagNumber        = "gameLowCardNumber"
	TagEnd           = "gameLowCardEnd"
	TagTimeLeft      = "gameLowCardTimeLeft"
	TagNoJoin        = "gameLowCardNoJoin"
	TagError         = "gameLowCardError"
	TagClosed        = "gameLowCardClosed"
	TagPlayersInGame = "gameLowCardPlayersInGame"
	TagNextRound     = "gameLowCardNextRound"
	TagPlayerDraw    = "gameLowCardPlayerDraw"
	TagWinner        = "gameLowCardWinner"
	TagRoundResult   = "gameLowCardRoundResult"

	TagBadgeSet    = "vipBadgeSet"
	TagBadgeRemove = "vipBadgeRemove"
)

// TimeUpText is broadcast in place of a seconds value when a countdown expires.
const TimeUpText = "Time's up!"

// --- Inbound ---

// Inbound is a decoded client-to-server game event.
type Inbound interface{ inbound() }

// StartRequest asks to open a new game in the sender's room.
type StartRequest struct {
	Bet int
}

// JoinRequest asks to join the room's game during registration.
type JoinRequest struct{}

// NumberRequest submits a number for the current round. Raw is left
// unparsed: range and format validation (and the resulting error unicast)
// belong to the engine, not the transport. CorrelationTag is an opaque
// client string echoed back on the draw broadcast.
type NumberRequest struct {
	Raw            string
	CorrelationTag string
}

// EndRequest asks to end the room's game immediately.
type EndRequest struct{}

func (StartRequest) inbound()  {}
func (JoinRequest) inbound()   {}
func (NumberRequest) inbound() {}
func (EndRequest) inbound()    {}

// Decode parses a wire frame into one of the closed set of inbound events.
// Unknown tags and malformed frames are errors; the transport logs and drops
// them.
func Decode(data []byte) (Inbound, error) {
	var frame []json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if len(frame) == 0 {
		return nil, fmt.Errorf("empty frame")
	}
	var tag string
	if err := json.Unmarshal(frame[0], &tag); err != nil {
		return nil, fmt.Errorf("frame tag is not a string: %w", err)
	}

	args := frame[1:]
	switch tag {
	case TagStart:
		if len(args) < 1 {
			return nil, fmt.Errorf("%s: missing bet", tag)
		}
		bet, err := argInt(args[0])
		if err != nil {
			return nil, fmt.Errorf("%s: bad bet: %w", tag, err)
		}
		if bet < 0 {
			return nil, fmt.Errorf("%s: negative bet %d", tag, bet)
		}
		return StartRequest{Bet: bet}, nil
	case TagJoin:
		return JoinRequest{}, nil
	case TagNumber:
		if len(args) < 1 {
			return nil, fmt.Errorf("%s: missing number", tag)
		}
		raw, err := argString(args[0])
		if err != nil {
			return nil, fmt.Errorf("%s: bad number arg: %w", tag, err)
		}
		var corr string
		if len(args) >= 2 {
			corr, err = argString(args[1])
			if err != nil {
				return nil, fmt.Errorf("%s: bad correlation tag: %w", tag, err)
			}
		}
		return NumberRequest{Raw: raw, CorrelationTag: corr}, nil
	case TagEnd:
		return EndRequest{}, nil
	default:
		return nil, fmt.Errorf("unknown event tag %q", tag)
	}
}

// argString accepts either a JSON string or a JSON number argument.
func argString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("argument %s is neither string nor number", raw)
}

func argInt(raw json.RawMessage) (int, error) {
	s, err := argString(raw)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(s)
}

// --- Outbound ---

// Outbound is a server-to-client game event. Args returns the positional
// payload in wire order, ready for Encode.
type Outbound interface {
	Tag() string
	Args() []interface{}
}

// Encode renders an outbound event as a wire frame.
func Encode(msg Outbound) ([]byte, error) {
	frame := append([]interface{}{msg.Tag()}, msg.Args()...)
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Tag(), err)
	}
	return data, nil
}

// Start announces a newly opened game to the room.
type Start struct {
	Bet int
}

func (Start) Tag() string { return TagStart }
func (m Start) Args() []interface{} { return []interface{}{m.Bet} }

// StartSuccess confirms game creation to the starter only.
type StartSuccess struct {
	HostName string
	Bet      int
}

func (StartSuccess) Tag() string { return TagStartSuccess }
func (m StartSuccess) Args() []interface{} { return []interface{}{m.HostName, m.Bet} }

// Join announces a player joining during registration.
type Join struct {
	DisplayName string
	Bet         int
}

func (Join) Tag() string { return TagJoin }
func (m Join) Args() []interface{} { return []interface{}{m.DisplayName, m.Bet} }

// TimeLeft carries the remaining countdown seconds, or TimeUpText on expiry.
type TimeLeft struct {
	Seconds int
	Text    string
}

// TimeLeftSeconds builds a countdown tick message.
func TimeLeftSeconds(n int) TimeLeft { return TimeLeft{Seconds: n} }

// TimeUp builds the expiry message.
func TimeUp() TimeLeft { return TimeLeft{Text: TimeUpText} }

func (TimeLeft) Tag() string { return TagTimeLeft }
func (m TimeLeft) Args() []interface{} {
	if m.Text != "" {
		return []interface{}{m.Text}
	}
	return []interface{}{m.Seconds}
}

// NoJoin tells the host nobody else registered.
type NoJoin struct {
	HostName string
	Bet      int
}

func (NoJoin) Tag() string { return TagNoJoin }
func (m NoJoin) Args() []interface{} { return []interface{}{m.HostName, m.Bet} }

// Error reports a game error. PlayerID, when set, names the offending or
// affected player.
type Error struct {
	Message  string
	PlayerID string
}

func (Error) Tag() string { return TagError }
func (m Error) Args() []interface{} {
	if m.PlayerID != "" {
		return []interface{}{m.Message, m.PlayerID}
	}
	return []interface{}{m.Message}
}

// Closed carries the frozen roster at registration close.
type Closed struct {
	PlayerIDs []string
}

func (Closed) Tag() string { return TagClosed }
func (m Closed) Args() []interface{} { return []interface{}{m.PlayerIDs} }

// PlayersInGame repeats the frozen roster together with the bet amount.
type PlayersInGame struct {
	PlayerIDs []string
	Bet       int
}

func (PlayersInGame) Tag() string { return TagPlayersInGame }
func (m PlayersInGame) Args() []interface{} { return []interface{}{m.PlayerIDs, m.Bet} }

// NextRound announces the upcoming round number.
type NextRound struct {
	Round int
}

func (NextRound) Tag() string { return TagNextRound }
func (m NextRound) Args() []interface{} { return []interface{}{m.Round} }

// PlayerDraw announces a recorded submission, echoing the client's
// correlation tag untouched.
type PlayerDraw struct {
	PlayerID       string
	Number         int
	CorrelationTag string
}

func (PlayerDraw) Tag() string { return TagPlayerDraw }
func (m PlayerDraw) Args() []interface{} {
	return []interface{}{m.PlayerID, m.Number, m.CorrelationTag}
}

// Winner announces the sole remaining player and the total payout.
type Winner struct {
	PlayerID string
	Payout   int
}

func (Winner) Tag() string { return TagWinner }
func (m Winner) Args() []interface{} { return []interface{}{m.PlayerID, m.Payout} }

// RoundResult summarizes a completed round that did not end the game.
// Draws holds "playerId:value" pairs in roster order.
type RoundResult struct {
	Round     int
	Draws     []string
	Losers    []string
	Remaining []string
}

func (RoundResult) Tag() string { return TagRoundResult }
func (m RoundResult) Args() []interface{} {
	return []interface{}{m.Round, m.Draws, m.Losers, m.Remaining}
}

// End carries the full original roster when a game is ended explicitly.
type End struct {
	PlayerIDs []string
}

func (End) Tag() string { return TagEnd }
func (m End) Args() []interface{} { return []interface{}{m.PlayerIDs} }

// BadgeSet announces a VIP badge annotation on a seat.
type BadgeSet struct {
	Seat  int
	Count int
	Color string
}

func (BadgeSet) Tag() string { return TagBadgeSet }
func (m BadgeSet) Args() []interface{} { return []interface{}{m.Seat, m.Count, m.Color} }

// BadgeRemove announces a cleared badge annotation.
type BadgeRemove struct {
	Seat int
}

func (BadgeRemove) Tag() string { return TagBadgeRemove }
func (m BadgeRemove) Args() []interface{} { return []interface{}{m.Seat} }
