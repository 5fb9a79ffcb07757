package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"

	"github.com/devaloi/courier/internal/store"
)

// Config holds server configuration loaded from environment variables.
type Config struct {
	Port          string        `env:"PORT,default=8080"`
	DBDriver      string        `env:"DB_DRIVER,default=sqlite"`
	DBDSN         string        `env:"DB_DSN,default=courier.db"`
	MaxRooms      int           `env:"MAX_ROOMS,default=10000"`
	SessionSecret string        `env:"SESSION_SECRET"`
	SessionIssuer string        `env:"SESSION_ISSUER,default=courier"`
	SessionTTL    time.Duration `env:"SESSION_TTL,default=24h"`
	StoreTimeout  time.Duration `env:"STORE_TIMEOUT,default=5s"`
	LogLevel      string        `env:"LOG_LEVEL,default=info"`
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisChannel  string        `env:"REDIS_CHANNEL,default=courier:rooms"`
	ServiceName   string        `env:"SERVICE_NAME,default=courier"`
	AllowedOrigin string        `env:"ALLOWED_ORIGIN,default=*"`
}

// Load reads an optional .env file, then the environment, and validates the result.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnviron()
}

// FromEnviron reads configuration from the process environment only.
func FromEnviron() (Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the server cannot start with.
func (c Config) Validate() error {
	if _, err := store.DialectFor(c.DBDriver); err != nil {
		return fmt.Errorf("config: DB_DRIVER: %w", err)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("config: DB_DSN is required")
	}
	if len(c.SessionSecret) < 16 {
		return fmt.Errorf("config: SESSION_SECRET must be at least 16 bytes")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("config: SESSION_TTL must be positive")
	}
	if c.StoreTimeout < 0 {
		return fmt.Errorf("config: STORE_TIMEOUT must not be negative")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: LOG_LEVEL: %w", err)
	}
	return nil
}

// Addr is the listen address.
func (c Config) Addr() string {
	return ":" + c.Port
}

// RelayEnabled reports whether room emissions go through Redis.
func (c Config) RelayEnabled() bool {
	return c.RedisAddr != ""
}
