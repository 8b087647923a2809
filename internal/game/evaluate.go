// internal/game/evaluate.go
package game

// Outcome is the result of evaluating one round of submissions.
type Outcome struct {
	// Losers holds every player whose submission equals the round minimum,
	// in the order they appear in eligible. Empty when AllTied.
	Losers []string
	// Remaining is eligible minus Losers, in eligible order. Players who
	// never submitted are not eliminated and stay in Remaining.
	Remaining []string
	// AllTied is true when every submitted value is equal; a full tie
	// protects everyone.
	AllTied bool
}

// Evaluate applies the LowCard elimination rule to one round. submissions
// maps player id to the drawn number; eligible lists the players still in
// the game, in roster order. Pure and deterministic: no state, no side
// effects.
func Evaluate(submissions map[string]int, eligible []string) Outcome {
	if len(submissions) == 0 {
		return Outcome{Remaining: append([]string(nil), eligible...)}
	}

	min := 0
	allTied := true
	first := true
	for _, n := range submissions {
		if first {
			min = n
			first = false
			continue
		}
		if n != min {
			allTied = false
			if n < min {
				min = n
			}
		}
	}

	if allTied {
		return Outcome{
			Remaining: append([]string(nil), eligible...),
			AllTied:   true,
		}
	}

	out := Outcome{
		Losers:    []string{},
		Remaining: []string{},
	}
	for _, id := range eligible {
		if n, ok := submissions[id]; ok && n == min {
			out.Losers = append(out.Losers, id)
		} else {
			out.Remaining = append(out.Remaining, id)
		}
	}
	return out
}
