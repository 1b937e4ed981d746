package tower

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaDDL is idempotent; EnsureSchema runs at startup so a fresh database
// needs no out-of-band migration step.
var schemaDDL = []string{
	`CREATE SCHEMA IF NOT EXISTS tower`,
	`CREATE TABLE IF NOT EXISTS tower.players (
		player_id  text PRIMARY KEY,
		email      text NOT NULL DEFAULT '',
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS tower.wallets (
		player_id           text PRIMARY KEY REFERENCES tower.players(player_id),
		balance_cents       bigint NOT NULL DEFAULT 0 CHECK (balance_cents >= 0),
		total_wagered_cents bigint NOT NULL DEFAULT 0,
		total_won_cents     bigint NOT NULL DEFAULT 0,
		updated_at          timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS tower.games (
		id                 uuid PRIMARY KEY,
		player_id          text NOT NULL REFERENCES tower.players(player_id),
		difficulty         text NOT NULL,
		bet_cents          bigint NOT NULL CHECK (bet_cents > 0),
		current_level      int NOT NULL DEFAULT 0,
		status             text NOT NULL CHECK (status IN ('active','lost','cashedOut')),
		current_multiplier double precision NOT NULL DEFAULT 1.0,
		final_payout_cents bigint,
		hazard_map         jsonb NOT NULL,
		created_at         timestamptz NOT NULL DEFAULT now(),
		updated_at         timestamptz NOT NULL DEFAULT now()
	)`,
	// One active game per player, enforced by the store itself.
	`CREATE UNIQUE INDEX IF NOT EXISTS games_one_active_per_player
		ON tower.games (player_id) WHERE status = 'active'`,
	`CREATE TABLE IF NOT EXISTS tower.level_attempts (
		id                  bigserial PRIMARY KEY,
		game_id             uuid NOT NULL REFERENCES tower.games(id),
		level_number        int NOT NULL,
		tile_selected       int NOT NULL,
		was_safe            boolean NOT NULL,
		multiplier_at_level double precision NOT NULL,
		created_at          timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS tower.history (
		id            bigserial PRIMARY KEY,
		player_id     text NOT NULL,
		game_id       uuid NOT NULL,
		game_type     text NOT NULL DEFAULT 'tower',
		bet_cents     bigint NOT NULL,
		profit_cents  bigint NOT NULL,
		outcome       text NOT NULL,
		difficulty    text NOT NULL,
		level_reached int NOT NULL,
		multiplier    double precision NOT NULL,
		created_at    timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS tower.ledger_entries (
		id          bigserial PRIMARY KEY,
		tx_group_id uuid NOT NULL,
		player_id   text NOT NULL,
		account     text NOT NULL,
		delta_cents bigint NOT NULL,
		metadata    jsonb NOT NULL DEFAULT '{}'::jsonb,
		created_at  timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS tower.idempotency_keys (
		player_id  text NOT NULL,
		key        text NOT NULL,
		action     text NOT NULL,
		created_at timestamptz NOT NULL DEFAULT now(),
		PRIMARY KEY (player_id, key)
	)`,
}

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaDDL {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
