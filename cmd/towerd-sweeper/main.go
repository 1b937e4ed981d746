package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"towerd/internal/config"
	"towerd/internal/db"
	"towerd/internal/tower"
)

// The sweeper resolves games abandoned past the staleness TTL so bet money
// never stays locked in a forgotten game row.
func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		logger.Error("config load failed", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("database connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := tower.EnsureSchema(ctx, pool); err != nil {
		logger.Error("schema setup failed", "err", err)
		os.Exit(1)
	}

	svc := tower.NewService(pool, logger, nil, nil, tower.Options{
		StarterBalanceCents: cfg.StarterBalanceCents,
		MaxBetCents:         cfg.MaxBetCents,
	})

	sweep := func() {
		swept, err := svc.SweepStaleGames(ctx, cfg.StaleGameAfter)
		if err != nil {
			logger.Error("sweep failed", "err", err)
			return
		}
		if swept > 0 {
			logger.Info("swept stale games", "count", swept)
		}
	}

	sweep()
	if strings.EqualFold(os.Getenv("TOWERD_SWEEP_ONCE"), "true") {
		return
	}

	ticker := time.NewTicker(cfg.SweepEvery)
	defer ticker.Stop()
	logger.Info("sweeper running", "every", cfg.SweepEvery.String(), "stale_after", cfg.StaleGameAfter.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info("sweeper stopping")
			return
		case <-ticker.C:
			sweep()
		}
	}
}
