package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Addr                 string
	DatabaseURL          string
	JWTSecret            string
	DataEncryptionKey    string
	Environment          string
	Store                string
	ChallengeTTL         time.Duration
	MaxCodeAttempts      int
	EmailFrom            string
	EmailEnabled         bool
	SMTPHost             string
	SMTPPort             int
	SMTPUser             string
	SMTPPassword         string
	SMTPUseTLS           bool
	RunMigrations        bool
	MaxBodyBytes         int64
	PendingSweepInterval time.Duration
	MetricsEnabled       bool
}

// Load reads the environment. A .env file in the working directory, when
// present, fills variables that are not already set.
func Load() Config {
	_ = godotenv.Load()
	return Config{
		Addr:                 getEnv("APP_ADDR", ":8080"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		JWTSecret:            getEnv("JWT_SECRET", ""),
		DataEncryptionKey:    getEnv("DATA_ENCRYPTION_KEY", ""),
		Environment:          getEnv("APP_ENV", "development"),
		Store:                strings.ToLower(getEnv("STORE", StorePostgres)),
		ChallengeTTL:         getEnvDuration("CHALLENGE_TTL", 10*time.Minute),
		MaxCodeAttempts:      getEnvInt("MAX_CODE_ATTEMPTS", 5),
		EmailFrom:            getEnv("EMAIL_FROM", "no-reply@example.com"),
		EmailEnabled:         getEnvBool("EMAIL_ENABLED", false),
		SMTPHost:             getEnv("SMTP_HOST", ""),
		SMTPPort:             getEnvInt("SMTP_PORT", 587),
		SMTPUser:             getEnv("SMTP_USER", ""),
		SMTPPassword:         getEnv("SMTP_PASSWORD", ""),
		SMTPUseTLS:           getEnvBool("SMTP_USE_TLS", true),
		RunMigrations:        getEnvBool("RUN_MIGRATIONS", true),
		MaxBodyBytes:         int64(getEnvInt("MAX_BODY_BYTES", 1048576)),
		PendingSweepInterval: getEnvDuration("PENDING_SWEEP_INTERVAL", 5*time.Minute),
		MetricsEnabled:       getEnvBool("METRICS_ENABLED", true),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (c Config) Validate() error {
	switch c.Store {
	case StorePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE is postgres")
		}
	case StoreMemory:
		if c.Environment == "production" {
			return fmt.Errorf("STORE=memory is not allowed in production")
		}
	default:
		return fmt.Errorf("STORE must be postgres or memory, got %q", c.Store)
	}
	if c.Environment == "production" {
		if strings.TrimSpace(c.JWTSecret) == "" {
			return fmt.Errorf("JWT_SECRET must be set to a strong value in production")
		}
		if strings.TrimSpace(c.DataEncryptionKey) == "" {
			return fmt.Errorf("DATA_ENCRYPTION_KEY must be set in production for encryption at rest")
		}
	}
	if c.ChallengeTTL <= 0 {
		return fmt.Errorf("CHALLENGE_TTL must be positive")
	}
	if c.MaxCodeAttempts <= 0 {
		return fmt.Errorf("MAX_CODE_ATTEMPTS must be positive")
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.PendingSweepInterval < 0 {
		return fmt.Errorf("PENDING_SWEEP_INTERVAL must not be negative")
	}
	if c.EmailEnabled && c.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST must be set when EMAIL_ENABLED is true")
	}
	return nil
}
