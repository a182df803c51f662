package main

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/saeid-a/SigmaChatSync/internal/config"
)

func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("JWT_SECRET", "secret")
	cfg, err := config.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	return cfg
}

func TestBootLoggerHonoursEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("LOG_LEVEL", "warn")

	log := bootLogger()
	if log.GetLevel() != zerolog.WarnLevel {
		t.Fatalf("expected warn level, got %s", log.GetLevel())
	}
	log.Warn().Msg("boot logger ready")
}

func TestRunRejectsMissingDatabaseURL(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.DBUrl = ""

	if err := run(cfg, zerolog.Nop()); err == nil {
		t.Fatal("expected error without DB_URL")
	}
}
