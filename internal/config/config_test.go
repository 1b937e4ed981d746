package config

import (
	"testing"
	"time"
)

func TestLoadAPIFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/towerd")
	t.Setenv("AUTH_URL", "https://auth.example.com/")
	t.Setenv("AUTH_ANON_KEY", "anon-key")
	t.Setenv("PORT", "9090")
	t.Setenv("TOWERD_STALE_GAME_AFTER", "6h")

	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("addr got %q", cfg.Addr)
	}
	if cfg.AuthURL != "https://auth.example.com" {
		t.Fatalf("auth url should drop trailing slash, got %q", cfg.AuthURL)
	}
	if cfg.StaleGameAfter != 6*time.Hour {
		t.Fatalf("stale-after got %v", cfg.StaleGameAfter)
	}
	if cfg.StarterBalanceCents != 100_000 || cfg.BetsPerMinute != 30 {
		t.Fatalf("defaults wrong: %+v", cfg)
	}
}

func TestLoadAPIFromEnvRequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("AUTH_URL", "https://auth.example.com")
	t.Setenv("AUTH_ANON_KEY", "anon-key")
	if _, err := LoadAPIFromEnv(); err == nil {
		t.Fatalf("expected missing DATABASE_URL to fail")
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_STR", "  hello ")
	if got := envDefault("X_STR", "fallback"); got != "hello" {
		t.Fatalf("envDefault got %q", got)
	}
	if got := envDefault("X_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("envDefault fallback got %q", got)
	}
	t.Setenv("X_DUR", "90s")
	if got := envDurationDefault("X_DUR", time.Minute); got != 90*time.Second {
		t.Fatalf("envDurationDefault got %v", got)
	}
	t.Setenv("X_BAD_DUR", "soon")
	if got := envDurationDefault("X_BAD_DUR", time.Minute); got != time.Minute {
		t.Fatalf("bad duration should fall back, got %v", got)
	}
	t.Setenv("X_INT", "42")
	if got := envIntDefault("X_INT", 7); got != 42 {
		t.Fatalf("envIntDefault got %d", got)
	}
	t.Setenv("X_FLOAT", "2.5")
	if got := envFloatDefault("X_FLOAT", 1.0); got != 2.5 {
		t.Fatalf("envFloatDefault got %v", got)
	}
}
