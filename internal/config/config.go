package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type APIConfig struct {
	Addr                 string
	DatabaseURL          string
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	AuthURL              string
	AuthAnonKey          string
	FeedChannel          string
	NotableWinMultiplier float64
	StarterBalanceCents  int64
	MaxBetCents          int64
	BetsPerMinute        int
	SweepEvery           time.Duration
	StaleGameAfter       time.Duration
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("TOWERD_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:                 addr,
		DatabaseURL:          strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisAddr:            envDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:        strings.TrimSpace(os.Getenv("REDIS_PASSWORD")),
		RedisDB:              int(envIntDefault("REDIS_DB", 0)),
		AuthURL:              strings.TrimRight(strings.TrimSpace(os.Getenv("AUTH_URL")), "/"),
		AuthAnonKey:          strings.TrimSpace(os.Getenv("AUTH_ANON_KEY")),
		FeedChannel:          envDefault("TOWERD_FEED_CHANNEL", "tower:feed"),
		NotableWinMultiplier: envFloatDefault("TOWERD_NOTABLE_WIN_MULTIPLIER", 10.0),
		StarterBalanceCents:  envIntDefault("TOWERD_STARTER_BALANCE_CENTS", 100_000),
		MaxBetCents:          envIntDefault("TOWERD_MAX_BET_CENTS", 1_000_000),
		BetsPerMinute:        int(envIntDefault("TOWERD_BETS_PER_MINUTE", 30)),
		SweepEvery:           envDurationDefault("TOWERD_SWEEP_EVERY", 5*time.Minute),
		StaleGameAfter:       envDurationDefault("TOWERD_STALE_GAME_AFTER", 24*time.Hour),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.AuthURL == "" {
		return cfg, fmt.Errorf("AUTH_URL is required")
	}
	if cfg.AuthAnonKey == "" {
		return cfg, fmt.Errorf("AUTH_ANON_KEY is required")
	}
	return cfg, nil
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envFloatDefault(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envIntDefault(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
