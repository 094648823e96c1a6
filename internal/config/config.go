package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv  string `env:"APP_ENV" default:"development"`
	Port    string `env:"PORT" default:"8080"`
	LogMode string `env:"LOG_MODE" default:"development"`

	DBDriver       string `env:"DB_DRIVER" default:"pgx"`
	DatabaseURL    string `env:"DATABASE_URL"`
	DBHost         string `env:"DB_HOST" default:"localhost"`
	DBPort         string `env:"DB_PORT" default:"5432"`
	DBUser         string `env:"DB_USER" default:"postgres"`
	DBPassword     string `env:"DB_PASSWORD"`
	DBName         string `env:"DB_NAME" default:"voteledger"`
	DBSSLMode      string `env:"DB_SSLMODE" default:"disable"`
	DBMaxOpenConns int    `env:"DB_MAX_OPEN_CONNS" default:"100"`
	DBMaxIdleConns int    `env:"DB_MAX_IDLE_CONNS" default:"10"`
	TxIsolation    string `env:"DB_TX_ISOLATION" default:"read_committed"`

	JWTSecret          string   `env:"JWT_SECRET"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" default:"*"`

	RedisURL     string        `env:"REDIS_URL"`
	VoteCacheTTL time.Duration `env:"VOTE_CACHE_TTL" default:"1m"`

	VoteMaxAttempts         int           `env:"VOTE_MAX_ATTEMPTS" default:"5"`
	VoteRetryInitialBackoff time.Duration `env:"VOTE_RETRY_INITIAL_BACKOFF" default:"10ms"`
	VoteRetryMaxBackoff     time.Duration `env:"VOTE_RETRY_MAX_BACKOFF" default:"250ms"`
	VoteMaxBatch            int           `env:"VOTE_MAX_BATCH" default:"200"`

	OtelEnabled     bool    `env:"OTEL_ENABLED" default:"false"`
	OtelEndpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OtelSampleRatio float64 `env:"OTEL_SAMPLER_RATIO" default:"0.1"`
}

// Load reads configuration from the environment, after merging an optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if err := env.Load(&cfg, &env.Options{SliceSep: ","}); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	c.TxIsolation = strings.ToLower(strings.TrimSpace(c.TxIsolation))
	c.JWTSecret = strings.TrimSpace(c.JWTSecret)

	origins := c.CORSAllowedOrigins[:0]
	for _, o := range c.CORSAllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.CORSAllowedOrigins = origins

	if c.DatabaseURL == "" && c.DBDriver != "sqlite" {
		c.DatabaseURL = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
		)
	}
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case "pgx", "postgres":
	case "sqlite":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_DRIVER=sqlite")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be one of pgx, postgres, sqlite, got %q", c.DBDriver)
	}
	switch c.TxIsolation {
	case "default", "read_committed", "repeatable_read", "serializable":
	default:
		return fmt.Errorf("DB_TX_ISOLATION must be one of default, read_committed, repeatable_read, serializable, got %q", c.TxIsolation)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.CORSAllowedOrigins) == 0 {
		return fmt.Errorf("CORS_ALLOWED_ORIGINS must list at least one origin")
	}
	if c.VoteMaxAttempts < 1 {
		return fmt.Errorf("VOTE_MAX_ATTEMPTS must be >= 1")
	}
	if c.VoteMaxBatch < 1 {
		return fmt.Errorf("VOTE_MAX_BATCH must be >= 1")
	}
	if c.VoteCacheTTL <= 0 {
		return fmt.Errorf("VOTE_CACHE_TTL must be positive")
	}
	if c.VoteRetryMaxBackoff < c.VoteRetryInitialBackoff {
		return fmt.Errorf("VOTE_RETRY_MAX_BACKOFF must not be below VOTE_RETRY_INITIAL_BACKOFF")
	}
	if c.OtelSampleRatio < 0 || c.OtelSampleRatio > 1 {
		return fmt.Errorf("OTEL_SAMPLER_RATIO must be within [0, 1]")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}
