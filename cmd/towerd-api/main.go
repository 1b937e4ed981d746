package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"towerd/internal/api"
	"towerd/internal/auth"
	"towerd/internal/config"
	"towerd/internal/db"
	"towerd/internal/feed"
	"towerd/internal/tower"
)

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

	publisher, err := feed.NewPublisher(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.FeedChannel)
	if err != nil {
		logger.Error("redis connect failed", "err", err)
		os.Exit(1)
	}
	defer publisher.Close()

	svc := tower.NewService(pool, logger, publisher, publisher, tower.Options{
		StarterBalanceCents:  cfg.StarterBalanceCents,
		MaxBetCents:          cfg.MaxBetCents,
		BetsPerMinute:        cfg.BetsPerMinute,
		NotableWinMultiplier: cfg.NotableWinMultiplier,
	})

	hub := feed.NewHub(logger)
	go hub.Run(ctx, publisher)

	server := api.New(cfg, logger, auth.NewClient(cfg.AuthURL, cfg.AuthAnonKey), svc, hub)
	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websocket feed connections stay open
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", "addr", cfg.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "err", err)
	}
}
