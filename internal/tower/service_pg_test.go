package tower

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// These tests need a real Postgres; point TOWERD_TEST_DATABASE_URL at a
// throwaway database to run them.
func setupTestService(t *testing.T) (*Service, context.Context) {
	t.Helper()
	dsn := os.Getenv("TOWERD_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skipf("TOWERD_TEST_DATABASE_URL not set; skipping store-backed tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	t.Cleanup(cancel)

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("schema: %v", err)
	}
	svc := NewService(pool, nil, nil, nil, Options{
		StarterBalanceCents: 100_000,
		MaxBetCents:         1_000_000,
	})
	return svc, ctx
}

func TestStartGameDebitsOnce(t *testing.T) {
	svc, ctx := setupTestService(t)
	playerID := uuid.NewString()

	res, err := svc.StartGame(ctx, StartGameInput{
		PlayerID:       playerID,
		Difficulty:     DifficultyEasy,
		BetCents:       1_000,
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res.Status != StatusActive || res.CurrentLevel != 0 {
		t.Fatalf("fresh game wrong: %+v", res)
	}
	if res.BalanceCents != 99_000 {
		t.Fatalf("balance after bet got %d want 99000", res.BalanceCents)
	}

	wallet, err := svc.Wallet(ctx, playerID)
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	if wallet.BalanceCents != 99_000 || wallet.TotalWageredCents != 1_000 {
		t.Fatalf("wallet after bet wrong: %+v", wallet)
	}
}

func TestStartGameRejectsSecondActive(t *testing.T) {
	svc, ctx := setupTestService(t)
	playerID := uuid.NewString()

	if _, err := svc.StartGame(ctx, StartGameInput{
		PlayerID: playerID, Difficulty: DifficultyMedium, BetCents: 500, IdempotencyKey: uuid.NewString(),
	}); err != nil {
		t.Fatalf("first start: %v", err)
	}
	_, err := svc.StartGame(ctx, StartGameInput{
		PlayerID: playerID, Difficulty: DifficultyMedium, BetCents: 500, IdempotencyKey: uuid.NewString(),
	})
	if !errors.Is(err, ErrGameAlreadyActive) {
		t.Fatalf("second start got %v want ErrGameAlreadyActive", err)
	}
}

func TestStartGameIdempotencyKeyReplay(t *testing.T) {
	svc, ctx := setupTestService(t)
	playerID := uuid.NewString()
	key := uuid.NewString()

	if _, err := svc.StartGame(ctx, StartGameInput{
		PlayerID: playerID, Difficulty: DifficultyEasy, BetCents: 100, IdempotencyKey: key,
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err := svc.StartGame(ctx, StartGameInput{
		PlayerID: playerID, Difficulty: DifficultyEasy, BetCents: 100, IdempotencyKey: key,
	})
	if !errors.Is(err, ErrDuplicateIdempotency) {
		t.Fatalf("replay got %v want ErrDuplicateIdempotency", err)
	}
}

func TestConcurrentStartGamesDebitOnce(t *testing.T) {
	svc, ctx := setupTestService(t)
	playerID := uuid.NewString()

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.StartGame(ctx, StartGameInput{
				PlayerID:       playerID,
				Difficulty:     DifficultyHard,
				BetCents:       2_000,
				IdempotencyKey: uuid.NewString(),
			})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrGameAlreadyActive), errors.Is(err, ErrConcurrencyConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("%d concurrent starts succeeded, want exactly 1", ok)
	}

	wallet, err := svc.Wallet(ctx, playerID)
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	if wallet.BalanceCents != 98_000 {
		t.Fatalf("balance got %d want 98000 (single debit)", wallet.BalanceCents)
	}
}

func TestCashOutBeforeAnyLevel(t *testing.T) {
	svc, ctx := setupTestService(t)
	playerID := uuid.NewString()

	res, err := svc.StartGame(ctx, StartGameInput{
		PlayerID: playerID, Difficulty: DifficultyEasy, BetCents: 300, IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err = svc.CashOut(ctx, CashOutInput{
		GameID: res.GameID, PlayerID: playerID, IdempotencyKey: uuid.NewString(),
	})
	if !errors.Is(err, ErrNothingToCashOut) {
		t.Fatalf("got %v want ErrNothingToCashOut", err)
	}
}

func TestPickTileOutcomeConsistency(t *testing.T) {
	svc, ctx := setupTestService(t)
	playerID := uuid.NewString()

	start, err := svc.StartGame(ctx, StartGameInput{
		PlayerID: playerID, Difficulty: DifficultyEasy, BetCents: 1_000, IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	pick, err := svc.PickTile(ctx, PickTileInput{
		GameID: start.GameID, PlayerID: playerID, TileIndex: 0, IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	if pick.IsHazard {
		if pick.Status != StatusLost || pick.PayoutCents != 0 {
			t.Fatalf("hazard outcome wrong: %+v", pick)
		}
		if len(pick.RevealedHazards) == 0 {
			t.Fatalf("loss should reveal the level's hazards")
		}
		// Terminal game rejects further picks.
		_, err := svc.PickTile(ctx, PickTileInput{
			GameID: start.GameID, PlayerID: playerID, TileIndex: 1, IdempotencyKey: uuid.NewString(),
		})
		if !errors.Is(err, ErrGameNotActive) {
			t.Fatalf("pick on lost game got %v want ErrGameNotActive", err)
		}
		return
	}

	if pick.Status != StatusActive || pick.NewLevel != 1 {
		t.Fatalf("safe outcome wrong: %+v", pick)
	}
	out, err := svc.CashOut(ctx, CashOutInput{
		GameID: start.GameID, PlayerID: playerID, IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("cashout: %v", err)
	}
	if out.Multiplier != 1.28 || out.PayoutCents != 1_280 {
		t.Fatalf("cashout after one easy level got %+v", out)
	}
}

func TestActiveGameHidesHazards(t *testing.T) {
	svc, ctx := setupTestService(t)
	playerID := uuid.NewString()

	if _, err := svc.StartGame(ctx, StartGameInput{
		PlayerID: playerID, Difficulty: DifficultyMedium, BetCents: 200, IdempotencyKey: uuid.NewString(),
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	view, err := svc.ActiveGame(ctx, playerID)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if view.TilesPerRow != 3 || view.MaxLevel != 9 {
		t.Fatalf("active view wrong: %+v", view)
	}
}

func TestActiveGameWhenNone(t *testing.T) {
	svc, ctx := setupTestService(t)
	_, err := svc.ActiveGame(ctx, uuid.NewString())
	if !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("got %v want ErrGameNotFound", err)
	}
}
