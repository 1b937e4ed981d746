package tower

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WinPublisher pushes notable-win summaries to the public feed. Publishing
// happens after the settlement transaction commits; failures are cosmetic.
type WinPublisher interface {
	PublishNotableWin(ctx context.Context, ev WinEvent) error
}

// RateLimiter bounds how often a player may open games.
type RateLimiter interface {
	Allow(ctx context.Context, playerID, action string, limit int, window time.Duration) (bool, error)
}

type Options struct {
	StarterBalanceCents  int64
	MaxBetCents          int64
	BetsPerMinute        int
	NotableWinMultiplier float64
}

type Service struct {
	db      *pgxpool.Pool
	log     *slog.Logger
	wins    WinPublisher
	limiter RateLimiter
	opts    Options
	mu      sync.Mutex
	rand    *mathrand.Rand
}

func NewService(db *pgxpool.Pool, logger *slog.Logger, wins WinPublisher, limiter RateLimiter, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:      db,
		log:     logger,
		wins:    wins,
		limiter: limiter,
		opts:    opts,
		rand:    mathrand.New(mathrand.NewSource(cryptoSeed())),
	}
}

func cryptoSeed() int64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}

func (s *Service) newHazardMap(p Profile) [][]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return generateHazardMap(p, s.rand)
}

// EnsurePlayer creates the profile and wallet rows on first contact. The
// starter balance is only applied on insert.
func (s *Service) EnsurePlayer(ctx context.Context, playerID, email string) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := ensurePlayerTx(ctx, tx, playerID, email, s.opts.StarterBalanceCents); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func ensurePlayerTx(ctx context.Context, tx pgx.Tx, playerID, email string, starterCents int64) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO tower.players (player_id, email)
		VALUES ($1, $2)
		ON CONFLICT (player_id) DO NOTHING
	`, playerID, email); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO tower.wallets (player_id, balance_cents)
		VALUES ($1, $2)
		ON CONFLICT (player_id) DO NOTHING
	`, playerID, starterCents)
	return err
}

// StartGame validates the bet, debits the wallet, fixes the hazard layout
// and inserts the game row as one atomic unit. Exactly one debit per
// successful call.
func (s *Service) StartGame(ctx context.Context, in StartGameInput) (StartGameResult, error) {
	var out StartGameResult

	profile, ok := ProfileFor(in.Difficulty)
	if !ok {
		return out, ErrInvalidDifficulty
	}
	if in.BetCents <= 0 {
		return out, ErrInvalidBet
	}
	if s.opts.MaxBetCents > 0 && in.BetCents > s.opts.MaxBetCents {
		return out, ErrInvalidBet
	}

	if s.limiter != nil && s.opts.BetsPerMinute > 0 {
		allowed, err := s.limiter.Allow(ctx, in.PlayerID, "start", s.opts.BetsPerMinute, time.Minute)
		if err != nil {
			return out, fmt.Errorf("rate limit check: %w", err)
		}
		if !allowed {
			return out, ErrRateLimited
		}
	}

	gameID := uuid.NewString()
	hazardMap := s.newHazardMap(profile)
	rawMap, err := json.Marshal(hazardMap)
	if err != nil {
		return out, fmt.Errorf("encode hazard map: %w", err)
	}

	err = s.runSerializable(ctx, func(tx pgx.Tx) error {
		if err := claimIdempotency(ctx, tx, in.PlayerID, in.IdempotencyKey, "start_game"); err != nil {
			return err
		}
		if err := ensurePlayerTx(ctx, tx, in.PlayerID, "", s.opts.StarterBalanceCents); err != nil {
			return err
		}

		var hasActive bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM tower.games
				WHERE player_id = $1 AND status = 'active'
			)
		`, in.PlayerID).Scan(&hasActive); err != nil {
			return err
		}
		if hasActive {
			return ErrGameAlreadyActive
		}

		var balance int64
		if err := tx.QueryRow(ctx, `
			SELECT balance_cents
			FROM tower.wallets
			WHERE player_id = $1
			FOR UPDATE
		`, in.PlayerID).Scan(&balance); err != nil {
			return err
		}
		if balance < in.BetCents {
			return ErrInsufficientFunds
		}

		if _, err := tx.Exec(ctx, `
			UPDATE tower.wallets
			SET balance_cents = balance_cents - $1,
			    total_wagered_cents = total_wagered_cents + $1,
			    updated_at = now()
			WHERE player_id = $2
		`, in.BetCents, in.PlayerID); err != nil {
			return err
		}
		if err := appendLedgerEntries(ctx, tx, in.PlayerID, "bet", in.BetCents); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO tower.games
			    (id, player_id, difficulty, bet_cents, current_level, status, current_multiplier, hazard_map)
			VALUES
			    ($1, $2, $3, $4, 0, 'active', 1.0, $5)
		`, gameID, in.PlayerID, in.Difficulty, in.BetCents, rawMap); err != nil {
			if isUniqueViolation(err) {
				return ErrGameAlreadyActive
			}
			return err
		}

		out = StartGameResult{
			GameID:       gameID,
			Difficulty:   in.Difficulty,
			BetCents:     in.BetCents,
			CurrentLevel: 0,
			Status:       StatusActive,
			TilesPerRow:  profile.TilesPerRow,
			MaxLevel:     profile.MaxLevel,
			BalanceCents: balance - in.BetCents,
		}
		return nil
	})
	if err != nil {
		return StartGameResult{}, err
	}
	return out, nil
}

// PickTile resolves one tile selection: hit or miss, attempt log, game row
// update and — on a terminal win — settlement, all in one transaction.
func (s *Service) PickTile(ctx context.Context, in PickTileInput) (PickTileResult, error) {
	var out PickTileResult
	var settled *WinEvent

	err := s.runSerializable(ctx, func(tx pgx.Tx) error {
		settled = nil
		if err := claimIdempotency(ctx, tx, in.PlayerID, in.IdempotencyKey, "pick_tile"); err != nil {
			return err
		}

		g, err := loadGameTx(ctx, tx, in.GameID, in.PlayerID)
		if err != nil {
			return err
		}
		profile, ok := ProfileFor(g.Difficulty)
		if !ok {
			return fmt.Errorf("game %s has unknown difficulty %q", g.ID, g.Difficulty)
		}

		outcome, err := resolvePick(g, profile, in.TileIndex)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO tower.level_attempts
			    (game_id, level_number, tile_selected, was_safe, multiplier_at_level)
			VALUES ($1, $2, $3, $4, $5)
		`, outcome.Attempt.GameID, outcome.Attempt.LevelNumber, outcome.Attempt.TileSelected,
			outcome.Attempt.WasSafe, outcome.Attempt.MultiplierAtLevel); err != nil {
			return err
		}

		if err := casUpdateGame(ctx, tx, g.ID, outcome.NewLevel, outcome.Status, outcome.Multiplier, outcome.PayoutCents); err != nil {
			return err
		}

		if outcome.Status == StatusCashedOut {
			ev, err := settleTx(ctx, tx, g, outcome.Multiplier, outcome.PayoutCents, "won", outcome.NewLevel)
			if err != nil {
				return err
			}
			settled = &ev
		}

		out = PickTileResult{
			IsHazard:        !outcome.WasSafe,
			NewLevel:        outcome.NewLevel,
			Multiplier:      outcome.Multiplier,
			Status:          outcome.Status,
			PayoutCents:     outcome.PayoutCents,
			WasLastLevel:    outcome.WasLastLevel,
			RevealedHazards: outcome.RevealedHazards,
		}
		return nil
	})
	if err != nil {
		return PickTileResult{}, err
	}

	if settled != nil {
		s.publishIfNotable(ctx, *settled)
	}
	return out, nil
}

// CashOut settles an in-flight game at the multiplier of the last cleared
// level.
func (s *Service) CashOut(ctx context.Context, in CashOutInput) (CashOutResult, error) {
	var out CashOutResult
	var settled *WinEvent

	err := s.runSerializable(ctx, func(tx pgx.Tx) error {
		settled = nil
		if err := claimIdempotency(ctx, tx, in.PlayerID, in.IdempotencyKey, "cash_out"); err != nil {
			return err
		}

		g, err := loadGameTx(ctx, tx, in.GameID, in.PlayerID)
		if err != nil {
			return err
		}
		profile, ok := ProfileFor(g.Difficulty)
		if !ok {
			return fmt.Errorf("game %s has unknown difficulty %q", g.ID, g.Difficulty)
		}

		quote, err := resolveCashOut(g, profile)
		if err != nil {
			return err
		}

		if err := casUpdateGame(ctx, tx, g.ID, g.Level, StatusCashedOut, quote.Multiplier, quote.PayoutCents); err != nil {
			return err
		}
		ev, err := settleTx(ctx, tx, g, quote.Multiplier, quote.PayoutCents, "cashedOut", g.Level)
		if err != nil {
			return err
		}
		settled = &ev

		out = CashOutResult{
			PayoutCents: quote.PayoutCents,
			Multiplier:  quote.Multiplier,
			Status:      StatusCashedOut,
		}
		return nil
	})
	if err != nil {
		return CashOutResult{}, err
	}

	if settled != nil {
		s.publishIfNotable(ctx, *settled)
	}
	return out, nil
}

// ActiveGame returns the player's in-flight game without hazard positions.
func (s *Service) ActiveGame(ctx context.Context, playerID string) (ActiveGameView, error) {
	var v ActiveGameView
	err := s.db.QueryRow(ctx, `
		SELECT id, difficulty, bet_cents, current_level, current_multiplier, status, created_at
		FROM tower.games
		WHERE player_id = $1 AND status = 'active'
	`, playerID).Scan(&v.GameID, &v.Difficulty, &v.BetCents, &v.CurrentLevel, &v.Multiplier, &v.Status, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return v, ErrGameNotFound
		}
		return v, err
	}
	if p, ok := ProfileFor(v.Difficulty); ok {
		v.TilesPerRow = p.TilesPerRow
		v.MaxLevel = p.MaxLevel
	}
	return v, nil
}

// History lists finished games, newest first. Hazard maps are included;
// these games are over, so the layout is no longer secret.
func (s *Service) History(ctx context.Context, playerID string, limit int) ([]FinishedGameView, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, difficulty, bet_cents, current_level, status, current_multiplier,
		       COALESCE(final_payout_cents, 0), hazard_map, created_at, updated_at
		FROM tower.games
		WHERE player_id = $1 AND status <> 'active'
		ORDER BY updated_at DESC
		LIMIT $2
	`, playerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FinishedGameView
	for rows.Next() {
		var v FinishedGameView
		var rawMap []byte
		if err := rows.Scan(&v.GameID, &v.Difficulty, &v.BetCents, &v.LevelReached, &v.Status,
			&v.Multiplier, &v.FinalPayoutCents, &rawMap, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(rawMap, &v.HazardMap); err != nil {
			return nil, fmt.Errorf("decode hazard map: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Wallet returns the balance snapshot, creating the wallet on first contact.
func (s *Service) Wallet(ctx context.Context, playerID string) (WalletView, error) {
	var v WalletView
	err := s.db.QueryRow(ctx, `
		SELECT balance_cents, total_wagered_cents, total_won_cents
		FROM tower.wallets
		WHERE player_id = $1
	`, playerID).Scan(&v.BalanceCents, &v.TotalWageredCents, &v.TotalWonCents)
	if errors.Is(err, pgx.ErrNoRows) {
		if err := s.EnsurePlayer(ctx, playerID, ""); err != nil {
			return v, err
		}
		err = s.db.QueryRow(ctx, `
			SELECT balance_cents, total_wagered_cents, total_won_cents
			FROM tower.wallets
			WHERE player_id = $1
		`, playerID).Scan(&v.BalanceCents, &v.TotalWageredCents, &v.TotalWonCents)
	}
	return v, err
}

func loadGameTx(ctx context.Context, tx pgx.Tx, gameID, playerID string) (Game, error) {
	var g Game
	if _, err := uuid.Parse(gameID); err != nil {
		return g, ErrGameNotFound
	}
	var rawMap []byte
	err := tx.QueryRow(ctx, `
		SELECT id, player_id, difficulty, bet_cents, current_level, status,
		       current_multiplier, COALESCE(final_payout_cents, 0), hazard_map, created_at, updated_at
		FROM tower.games
		WHERE id = $1 AND player_id = $2
		FOR UPDATE
	`, gameID, playerID).Scan(&g.ID, &g.PlayerID, &g.Difficulty, &g.BetCents, &g.Level, &g.Status,
		&g.Multiplier, &g.FinalPayoutCents, &rawMap, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return g, ErrGameNotFound
		}
		return g, err
	}
	if err := json.Unmarshal(rawMap, &g.HazardMap); err != nil {
		return g, fmt.Errorf("decode hazard map: %w", err)
	}
	return g, nil
}

// casUpdateGame applies a transition only if the row is still active. Zero
// rows affected means another request won the race; the caller rejects
// rather than silently retrying.
func casUpdateGame(ctx context.Context, tx pgx.Tx, gameID string, level int, status GameStatus, multiplier float64, payoutCents int64) error {
	var payout any
	if payoutCents > 0 {
		payout = payoutCents
	}
	cmd, err := tx.Exec(ctx, `
		UPDATE tower.games
		SET current_level = $1,
		    status = $2,
		    current_multiplier = $3,
		    final_payout_cents = $4,
		    updated_at = now()
		WHERE id = $5 AND status = 'active'
	`, level, string(status), multiplier, payout, gameID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrConcurrencyConflict
	}
	return nil
}

// settleTx credits the payout with an atomic increment and records the
// history row. The caller has already flipped the game row to a terminal
// status within the same transaction.
func settleTx(ctx context.Context, tx pgx.Tx, g Game, multiplier float64, payoutCents int64, outcome string, levelReached int) (WinEvent, error) {
	if _, err := tx.Exec(ctx, `
		UPDATE tower.wallets
		SET balance_cents = balance_cents + $1,
		    total_won_cents = total_won_cents + $1,
		    updated_at = now()
		WHERE player_id = $2
	`, payoutCents, g.PlayerID); err != nil {
		return WinEvent{}, err
	}
	if err := appendLedgerEntries(ctx, tx, g.PlayerID, "win", payoutCents); err != nil {
		return WinEvent{}, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO tower.history
		    (player_id, game_id, game_type, bet_cents, profit_cents, outcome, difficulty, level_reached, multiplier)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, g.PlayerID, g.ID, GameType, g.BetCents, payoutCents-g.BetCents, outcome, g.Difficulty, levelReached, multiplier); err != nil {
		return WinEvent{}, err
	}
	return WinEvent{
		PlayerID:     g.PlayerID,
		GameType:     GameType,
		Difficulty:   g.Difficulty,
		BetCents:     g.BetCents,
		PayoutCents:  payoutCents,
		ProfitCents:  payoutCents - g.BetCents,
		Multiplier:   multiplier,
		LevelReached: levelReached,
		At:           time.Now().UTC(),
	}, nil
}

// publishIfNotable pushes a feed event for big wins. The settlement has
// already committed; a publish failure must not surface to the player.
func (s *Service) publishIfNotable(ctx context.Context, ev WinEvent) {
	if s.wins == nil || ev.Multiplier < s.opts.NotableWinMultiplier {
		return
	}
	if err := s.wins.PublishNotableWin(ctx, ev); err != nil {
		s.log.Error("feed publish failed", "player_id", ev.PlayerID, "multiplier", ev.Multiplier, "err", err)
	}
}

func appendLedgerEntries(ctx context.Context, tx pgx.Tx, playerID, action string, amountCents int64) error {
	txID := uuid.NewString()
	walletDelta := -amountCents
	houseDelta := amountCents
	if action == "win" || action == "refund" {
		walletDelta, houseDelta = houseDelta, walletDelta
	}
	meta, _ := json.Marshal(map[string]any{"action": action, "game_type": GameType})
	_, err := tx.Exec(ctx, `
		INSERT INTO tower.ledger_entries (tx_group_id, player_id, account, delta_cents, metadata)
		VALUES
		($1, $2, 'wallet', $3, $5::jsonb),
		($1, $2, 'house', $4, $5::jsonb)
	`, txID, playerID, walletDelta, houseDelta, string(meta))
	return err
}

func claimIdempotency(ctx context.Context, tx pgx.Tx, playerID, key, action string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("idempotency key is required")
	}
	cmd, err := tx.Exec(ctx, `
		INSERT INTO tower.idempotency_keys (player_id, key, action, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (player_id, key) DO NOTHING
	`, playerID, key, action)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrDuplicateIdempotency
	}
	return nil
}

func (s *Service) runSerializable(ctx context.Context, fn func(pgx.Tx) error) error {
	const maxAttempts = 8
	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return err
		}
		err = func() error {
			defer tx.Rollback(ctx)
			if err := fn(tx); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}()
		if err == nil {
			return nil
		}
		if !isSerializationError(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			return ErrConcurrencyConflict
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return ErrConcurrencyConflict
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
