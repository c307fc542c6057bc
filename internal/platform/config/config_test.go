package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		DatabaseURL:          "postgres://localhost/payledger",
		Environment:          "development",
		Store:                StorePostgres,
		ChallengeTTL:         10 * time.Minute,
		MaxCodeAttempts:      5,
		MaxBodyBytes:         1 << 20,
		PendingSweepInterval: time.Minute,
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRequiresDatabaseForPostgres(t *testing.T) {
	cfg := validConfig()
	cfg.DatabaseURL = ""
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected DATABASE_URL error, got %v", err)
	}

	cfg.Store = StoreMemory
	if err := cfg.Validate(); err != nil {
		t.Fatalf("memory store must not need a database: %v", err)
	}
}

func TestValidateProductionRequirements(t *testing.T) {
	cfg := validConfig()
	cfg.Environment = "production"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Fatalf("expected JWT_SECRET error, got %v", err)
	}
	cfg.JWTSecret = "secret"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "DATA_ENCRYPTION_KEY") {
		t.Fatalf("expected DATA_ENCRYPTION_KEY error, got %v", err)
	}
	cfg.DataEncryptionKey = strings.Repeat("a", 64)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg.Store = StoreMemory
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected memory store to be rejected in production")
	}
}

func TestValidateRejectsBadWorkflowSettings(t *testing.T) {
	cfg := validConfig()
	cfg.MaxCodeAttempts = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected MAX_CODE_ATTEMPTS error")
	}
	cfg = validConfig()
	cfg.ChallengeTTL = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected CHALLENGE_TTL error")
	}
	cfg = validConfig()
	cfg.Store = "sqlite"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected STORE error")
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("STORE", "MEMORY")
	t.Setenv("CHALLENGE_TTL", "90s")
	t.Setenv("MAX_CODE_ATTEMPTS", "3")
	t.Setenv("PENDING_SWEEP_INTERVAL", "not-a-duration")

	cfg := Load()
	if cfg.Store != StoreMemory {
		t.Fatalf("expected memory store, got %s", cfg.Store)
	}
	if cfg.ChallengeTTL != 90*time.Second {
		t.Fatalf("expected 90s ttl, got %v", cfg.ChallengeTTL)
	}
	if cfg.MaxCodeAttempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", cfg.MaxCodeAttempts)
	}
	if cfg.PendingSweepInterval != 5*time.Minute {
		t.Fatalf("expected fallback sweep interval, got %v", cfg.PendingSweepInterval)
	}
}
