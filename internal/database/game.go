// internal/database/game.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GameResult is the final outcome of one LowCard game.
type GameResult struct {
	GameID     uuid.UUID
	Room       string
	WinnerID   string
	Bet        int
	Payout     int
	RosterSize int
	Rounds     int
}

// RecordGameResult upserts the completed game row. A nil pool (DB disabled,
// e.g. in tests) is a no-op.
func RecordGameResult(ctx context.Context, res GameResult) error {
	if DB == nil {
		return nil
	}
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			INSERT INTO lowcard_games (id, room, winner_id, bet, payout, roster_size, rounds, status, finished_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 'completed', NOW())
			ON CONFLICT (id) DO UPDATE
			SET winner_id = EXCLUDED.winner_id,
			    payout = EXCLUDED.payout,
			    rounds = EXCLUDED.rounds,
			    status = 'completed',
			    finished_at = NOW()
		`
		_, e := tx.Exec(ctx, q, res.GameID, res.Room, res.WinnerID, res.Bet, res.Payout, res.RosterSize, res.Rounds)
		return e
	})
	if err != nil {
		return fmt.Errorf("tx upsert game result: %w", err)
	}
	return nil
}
