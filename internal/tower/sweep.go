package tower

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// SweepStaleGames resolves games left active past the TTL: accrued games are
// cashed out at the multiplier of the last cleared level, untouched games
// get the bet refunded. Each game goes through the same transactional path
// as a player-driven cash-out, so a player racing the sweeper loses nothing.
func (s *Service) SweepStaleGames(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	rows, err := s.db.Query(ctx, `
		SELECT id
		FROM tower.games
		WHERE status = 'active' AND updated_at < $1
		ORDER BY updated_at
		LIMIT 200
	`, cutoff)
	if err != nil {
		return 0, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	swept := 0
	for _, id := range ids {
		if err := s.sweepOne(ctx, id, cutoff); err != nil {
			if errors.Is(err, ErrGameNotActive) || errors.Is(err, ErrConcurrencyConflict) {
				continue // the player got there first
			}
			s.log.Error("stale game sweep failed", "game_id", id, "err", err)
			continue
		}
		swept++
	}
	return swept, nil
}

func (s *Service) sweepOne(ctx context.Context, gameID string, cutoff time.Time) error {
	return s.runSerializable(ctx, func(tx pgx.Tx) error {
		var g Game
		err := tx.QueryRow(ctx, `
			SELECT id, player_id, difficulty, bet_cents, current_level, status, current_multiplier, updated_at
			FROM tower.games
			WHERE id = $1
			FOR UPDATE
		`, gameID).Scan(&g.ID, &g.PlayerID, &g.Difficulty, &g.BetCents, &g.Level, &g.Status, &g.Multiplier, &g.UpdatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrGameNotFound
			}
			return err
		}
		if g.Status != StatusActive || g.UpdatedAt.After(cutoff) {
			return ErrGameNotActive
		}

		profile, ok := ProfileFor(g.Difficulty)
		if !ok {
			return ErrInvalidDifficulty
		}

		multiplier := 1.0
		payout := g.BetCents
		outcome := "voided"
		if g.Level > 0 {
			quote, err := resolveCashOut(g, profile)
			if err != nil {
				return err
			}
			multiplier = quote.Multiplier
			payout = quote.PayoutCents
			outcome = "cashedOut"
		}

		if err := casUpdateGame(ctx, tx, g.ID, g.Level, StatusCashedOut, multiplier, payout); err != nil {
			return err
		}
		action := "win"
		if outcome == "voided" {
			action = "refund"
		}
		if _, err := tx.Exec(ctx, `
			UPDATE tower.wallets
			SET balance_cents = balance_cents + $1,
			    total_won_cents = total_won_cents + CASE WHEN $3 THEN $1 ELSE 0 END,
			    updated_at = now()
			WHERE player_id = $2
		`, payout, g.PlayerID, action == "win"); err != nil {
			return err
		}
		if err := appendLedgerEntries(ctx, tx, g.PlayerID, action, payout); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO tower.history
			    (player_id, game_id, game_type, bet_cents, profit_cents, outcome, difficulty, level_reached, multiplier)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, g.PlayerID, g.ID, GameType, g.BetCents, payout-g.BetCents, outcome, g.Difficulty, g.Level, multiplier)
		return err
	})
}
