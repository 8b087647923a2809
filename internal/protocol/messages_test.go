// internal/protocol/messages_test.go
package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeStart(t *testing.T) {
	ev, err := Decode([]byte(`["gameLowCardStart", 100]`))
	require.NoError(t, err)
	assert.Equal(t, StartRequest{Bet: 100}, ev)
}

func TestDecodeStartStringBet(t *testing.T) {
	ev, err := Decode([]byte(`["gameLowCardStart", "250"]`))
	require.NoError(t, err)
	assert.Equal(t, StartRequest{Bet: 250}, ev)
}

func TestDecodeStartNegativeBet(t *testing.T) {
	_, err := Decode([]byte(`["gameLowCardStart", -5]`))
	assert.Error(t, err)
}

func TestDecodeJoin(t *testing.T) {
	ev, err := Decode([]byte(`["gameLowCardJoin"]`))
	require.NoError(t, err)
	assert.Equal(t, JoinRequest{}, ev)
}

func TestDecodeNumberLeavesRawUnparsed(t *testing.T) {
	ev, err := Decode([]byte(`["gameLowCardNumber", "banana", "tag7"]`))
	require.NoError(t, err)
	assert.Equal(t, NumberRequest{Raw: "banana", CorrelationTag: "tag7"}, ev)
}

func TestDecodeNumberNumericArg(t *testing.T) {
	ev, err := Decode([]byte(`["gameLowCardNumber", 7]`))
	require.NoError(t, err)
	assert.Equal(t, NumberRequest{Raw: "7"}, ev)
}

func TestDecodeEnd(t *testing.T) {
	ev, err := Decode([]byte(`["gameLowCardEnd"]`))
	require.NoError(t, err)
	assert.Equal(t, EndRequest{}, ev)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	cases := []string{
		`not json`,
		`{}`,
		`[]`,
		`[42]`,
		`["unknownTag"]`,
		`["gameLowCardStart"]`,
	}
	for _, c := range cases {
		_, err := Decode([]byte(c))
		assert.Error(t, err, "input: %s", c)
	}
}

func TestEncodeTimeLeft(t *testing.T) {
	data, err := Encode(TimeLeftSeconds(12))
	require.NoError(t, err)
	assert.JSONEq(t, `["gameLowCardTimeLeft", 12]`, string(data))

	data, err = Encode(TimeUp())
	require.NoError(t, err)
	assert.JSONEq(t, `["gameLowCardTimeLeft", "Time's up!"]`, string(data))
}

func TestEncodeErrorOptionalPlayer(t *testing.T) {
	data, err := Encode(Error{Message: "oops"})
	require.NoError(t, err)
	assert.JSONEq(t, `["gameLowCardError", "oops"]`, string(data))

	data, err = Encode(Error{Message: "oops", PlayerID: "p1"})
	require.NoError(t, err)
	assert.JSONEq(t, `["gameLowCardError", "oops", "p1"]`, string(data))
}

func TestEncodeRoundResult(t *testing.T) {
	data, err := Encode(RoundResult{
		Round:     2,
		Draws:     []string{"a:3", "b:7"},
		Losers:    []string{"a"},
		Remaining: []string{"b"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `["gameLowCardRoundResult", 2, ["a:3","b:7"], ["a"], ["b"]]`, string(data))
}

func TestEncodePlayersInGame(t *testing.T) {
	data, err := Encode(PlayersInGame{PlayerIDs: []string{"a", "b"}, Bet: 50})
	require.NoError(t, err)
	assert.JSONEq(t, `["gameLowCardPlayersInGame", ["a","b"], 50]`, string(data))
}

func TestEncodeBadgeFrames(t *testing.T) {
	data, err := Encode(BadgeSet{Seat: 4, Count: 2, Color: "gold"})
	require.NoError(t, err)
	assert.JSONEq(t, `["vipBadgeSet", 4, 2, "gold"]`, string(data))

	data, err = Encode(BadgeRemove{Seat: 4})
	require.NoError(t, err)
	assert.JSONEq(t, `["vipBadgeRemove", 4]`, string(data))
}
