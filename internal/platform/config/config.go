// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"ONBOARD_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	MetricsToken    string        `env:"METRICS_TOKEN"`

	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Auth      AuthConfig
	Workflow  WorkflowConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// DatabaseConfig configures the postgres pool. An empty URL selects in-memory stores.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	TxTimeout       time.Duration `env:"TX_TIMEOUT" envDefault:"10s"`
	MaxTxRetries    int           `env:"TX_MAX_RETRIES" envDefault:"3"`
}

// RedisConfig configures the optional permission cache backend.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// KafkaConfig configures compliance audit fan-out. No brokers disables the relay.
type KafkaConfig struct {
	Brokers              []string      `env:"KAFKA_BROKERS" envSeparator:","`
	AuditTopic           string        `env:"AUDIT_TOPIC" envDefault:"onboarding.compliance"`
	BackgroundCheckTopic string        `env:"BACKGROUND_CHECK_TOPIC" envDefault:"onboarding.background_checks"`
	TopicPartitions      int32         `env:"AUDIT_TOPIC_PARTITIONS" envDefault:"3"`
	ReplicationFactor    int16         `env:"AUDIT_TOPIC_REPLICATION" envDefault:"1"`
	OutboxPollInterval   time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"2s"`
	OutboxBatchSize      int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
}

// AuthConfig configures bearer token validation.
type AuthConfig struct {
	JWTSigningKey      string        `env:"JWT_SIGNING_KEY"`
	JWTIssuer          string        `env:"JWT_ISSUER"`
	JWTAudience        string        `env:"JWT_AUDIENCE"`
	PermissionCacheTTL time.Duration `env:"PERMISSION_CACHE_TTL" envDefault:"30s"`

	// BootstrapAdmin is granted super_admin at startup when running in memory.
	BootstrapAdmin string `env:"BOOTSTRAP_ADMIN"`
}

// WorkflowConfig holds the onboarding defaults applied during activation.
type WorkflowConfig struct {
	ExternalSubjectType string `env:"EXTERNAL_SUBJECT_TYPE" envDefault:"cognito"`
	DefaultTimezone     string `env:"DEFAULT_TIMEZONE" envDefault:"America/New_York"`
	DefaultCountry      string `env:"DEFAULT_COUNTRY" envDefault:"US"`
}

// RateLimitConfig bounds public intake traffic per client IP.
type RateLimitConfig struct {
	Disabled     bool          `env:"INTAKE_RATE_LIMIT_DISABLED" envDefault:"false"`
	IntakeLimit  int           `env:"INTAKE_RATE_LIMIT" envDefault:"30"`
	IntakeWindow time.Duration `env:"INTAKE_RATE_WINDOW" envDefault:"1m"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// DevSigningKey is used when JWT_SIGNING_KEY is unset outside production.
const DevSigningKey = "dev-secret-key-change-in-production"

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	var cfg Server
	if err := ParseEnv(&cfg); err != nil {
		return Server{}, err
	}
	if cfg.Auth.JWTSigningKey == "" {
		cfg.Auth.JWTSigningKey = DevSigningKey
	}
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c Server) Validate() error {
	var errs []error
	if c.Database.TxTimeout <= 0 {
		errs = append(errs, errors.New("TX_TIMEOUT must be positive"))
	}
	if c.Auth.PermissionCacheTTL < 0 {
		errs = append(errs, errors.New("PERMISSION_CACHE_TTL must not be negative"))
	}
	if c.RateLimit.IntakeLimit <= 0 && !c.RateLimit.Disabled {
		errs = append(errs, errors.New("INTAKE_RATE_LIMIT must be positive"))
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q must be json or text", c.Log.Format))
	}
	if _, err := time.LoadLocation(c.Workflow.DefaultTimezone); err != nil {
		errs = append(errs, fmt.Errorf("DEFAULT_TIMEZONE: %w", err))
	}
	return errors.Join(errs...)
}

// InMemory reports whether the server should run without postgres.
func (c Server) InMemory() bool {
	return c.Database.URL == ""
}
