package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GAME_ADDR", "")
	t.Setenv("GAME_ALLOWED_ORIGINS", "")
	t.Setenv("GAME_MAX_PAYLOAD_BYTES", "")
	t.Setenv("GAME_PING_INTERVAL", "")
	t.Setenv("GAME_MAX_CLIENTS", "")
	t.Setenv("GAME_TICK_RATE", "")
	t.Setenv("GAME_MATCH_WAIT_TIMEOUT", "")
	t.Setenv("GAME_FORFEIT_GRACE", "")
	t.Setenv("GAME_RESUME_POLICY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Address != DefaultAddr {
		t.Fatalf("expected default addr %q, got %q", DefaultAddr, cfg.Address)
	}
	if cfg.AllowedOrigins != nil {
		t.Fatalf("expected no allowed origins, got %#v", cfg.AllowedOrigins)
	}
	if cfg.TickRate != DefaultTickRate {
		t.Fatalf("expected default tick rate %v, got %v", DefaultTickRate, cfg.TickRate)
	}
	if cfg.MatchWaitTimeout != DefaultMatchWaitTimeout {
		t.Fatalf("expected default wait timeout %v, got %v", DefaultMatchWaitTimeout, cfg.MatchWaitTimeout)
	}
	if cfg.ForfeitGrace != DefaultForfeitGrace {
		t.Fatalf("expected default forfeit grace %v, got %v", DefaultForfeitGrace, cfg.ForfeitGrace)
	}
	if cfg.ResumePolicy != DefaultResumePolicy {
		t.Fatalf("expected default resume policy %q, got %q", DefaultResumePolicy, cfg.ResumePolicy)
	}
	if cfg.HistoryPath != DefaultHistoryPath {
		t.Fatalf("expected default history path %q, got %q", DefaultHistoryPath, cfg.HistoryPath)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GAME_ADDR", "127.0.0.1:9000")
	t.Setenv("GAME_ALLOWED_ORIGINS", "https://example.com, https://demo.local")
	t.Setenv("GAME_MAX_PAYLOAD_BYTES", "2048")
	t.Setenv("GAME_PING_INTERVAL", "45s")
	t.Setenv("GAME_MAX_CLIENTS", "12")
	t.Setenv("GAME_TICK_RATE", "120")
	t.Setenv("GAME_MATCH_WAIT_TIMEOUT", "8s")
	t.Setenv("GAME_FORFEIT_GRACE", "20s")
	t.Setenv("GAME_RESUME_POLICY", "holder")
	t.Setenv("GAME_TOURNAMENT_URL", "http://tournament:4000/results")
	t.Setenv("GAME_JWT_SECRET", "topsecret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Address != "127.0.0.1:9000" {
		t.Fatalf("unexpected address: %q", cfg.Address)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://demo.local" {
		t.Fatalf("unexpected allowed origins: %#v", cfg.AllowedOrigins)
	}
	if cfg.MaxPayloadBytes != 2048 || cfg.MaxClients != 12 {
		t.Fatalf("unexpected limits: payload=%d clients=%d", cfg.MaxPayloadBytes, cfg.MaxClients)
	}
	if cfg.PingInterval != 45*time.Second {
		t.Fatalf("unexpected ping interval: %v", cfg.PingInterval)
	}
	if cfg.TickRate != 120 {
		t.Fatalf("unexpected tick rate: %v", cfg.TickRate)
	}
	if cfg.MatchWaitTimeout != 8*time.Second || cfg.ForfeitGrace != 20*time.Second {
		t.Fatalf("unexpected timers: wait=%v grace=%v", cfg.MatchWaitTimeout, cfg.ForfeitGrace)
	}
	if cfg.ResumePolicy != "holder" {
		t.Fatalf("unexpected resume policy: %q", cfg.ResumePolicy)
	}
	if cfg.TournamentURL != "http://tournament:4000/results" || cfg.JWTSecret != "topsecret" {
		t.Fatalf("unexpected service wiring: url=%q secret set=%v", cfg.TournamentURL, cfg.JWTSecret != "")
	}
}

func TestLoadReturnsValidationErrors(t *testing.T) {
	t.Setenv("GAME_MAX_PAYLOAD_BYTES", "-5")
	t.Setenv("GAME_PING_INTERVAL", "abc")
	t.Setenv("GAME_TICK_RATE", "500")
	t.Setenv("GAME_FORFEIT_GRACE", "-1s")
	t.Setenv("GAME_RESUME_POLICY", "nobody")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error from invalid configuration, got nil")
	}
	for _, want := range []string{
		"GAME_MAX_PAYLOAD_BYTES",
		"GAME_PING_INTERVAL",
		"GAME_TICK_RATE",
		"GAME_FORFEIT_GRACE",
		"GAME_RESUME_POLICY",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error to mention %s, got %q", want, err.Error())
		}
	}
}

func TestLoadIgnoresEmptyAllowedOrigins(t *testing.T) {
	t.Setenv("GAME_ALLOWED_ORIGINS", " , ,https://ok.example, ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "https://ok.example" {
		t.Fatalf("expected single cleaned origin, got %#v", cfg.AllowedOrigins)
	}
}

func TestLoadAllowsDisablingBotFallback(t *testing.T) {
	t.Setenv("GAME_MATCH_WAIT_TIMEOUT", "0s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.MatchWaitTimeout != 0 {
		t.Fatalf("expected zero to disable the bot fallback, got %v", cfg.MatchWaitTimeout)
	}
}
