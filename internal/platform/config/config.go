// Package config loads process configuration from an optional YAML file and
// CDIGIT_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides: server.addr is CDIGIT_SERVER_ADDR.
const EnvPrefix = "CDIGIT"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

type Config struct {
	Server     ServerConfig    `mapstructure:"server"`
	Auth       AuthConfig      `mapstructure:"auth"`
	Log        LogConfig       `mapstructure:"log"`
	Store      StoreConfig     `mapstructure:"store"`
	Redis      RedisConfig     `mapstructure:"redis"`
	Postgres   PostgresConfig  `mapstructure:"postgres"`
	Audit      AuditConfig     `mapstructure:"audit"`
	Sync       SyncConfig      `mapstructure:"sync"`
	Kafka      KafkaConfig     `mapstructure:"kafka"`
	Signature  SignatureConfig `mapstructure:"signature"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
	PolicyFile string          `mapstructure:"policy_file"`
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type AuthConfig struct {
	SigningKey string        `mapstructure:"signing_key"`
	Issuer     string        `mapstructure:"issuer"`
	Audience   string        `mapstructure:"audience"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

type LogConfig struct {
	JSON  bool `mapstructure:"json"`
	Debug bool `mapstructure:"debug"`
}

// StoreConfig selects the durable KV backend behind the write-behind writer.
type StoreConfig struct {
	Driver       string        `mapstructure:"driver"`
	WriteRetries int           `mapstructure:"write_retries"`
	WriteBackoff time.Duration `mapstructure:"write_backoff"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type AuditConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// SyncConfig configures the backend outbox. An empty BackendURL disables sync.
type SyncConfig struct {
	BackendURL      string        `mapstructure:"backend_url"`
	Token           string        `mapstructure:"token"`
	QueueSize       int           `mapstructure:"queue_size"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialBackoff  time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff      time.Duration `mapstructure:"max_backoff"`
	AttemptTimeout  time.Duration `mapstructure:"attempt_timeout"`
	MaxDeadLetters  int           `mapstructure:"max_dead_letters"`
	BreakerFailures int           `mapstructure:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
}

// KafkaConfig enables the Kafka event publisher when Brokers is set.
type KafkaConfig struct {
	Brokers           []string `mapstructure:"brokers"`
	Topic             string   `mapstructure:"topic"`
	Partitions        int32    `mapstructure:"partitions"`
	ReplicationFactor int16    `mapstructure:"replication_factor"`
}

type SignatureConfig struct {
	Algorithm string `mapstructure:"algorithm"`
}

// RateLimitConfig sets per-caller budgets on the API. Buckets live in Redis
// when the store driver is redis and in process memory otherwise.
type RateLimitConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Window        time.Duration `mapstructure:"window"`
	ReadRequests  int           `mapstructure:"read_requests"`
	WriteRequests int           `mapstructure:"write_requests"`
}

// Load reads path when non-empty, then applies environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 20*time.Second)

	// Use a default for development - should be overridden in production
	v.SetDefault("auth.signing_key", "dev-secret-key-change-in-production")
	v.SetDefault("auth.issuer", "cdigit")
	v.SetDefault("auth.audience", "cdigit-branch")
	v.SetDefault("auth.token_ttl", 8*time.Hour)

	v.SetDefault("log.json", false)
	v.SetDefault("log.debug", false)

	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.write_retries", 3)
	v.SetDefault("store.write_backoff", 100*time.Millisecond)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.key_prefix", "cdigit:")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("audit.capacity", 1000)

	v.SetDefault("sync.backend_url", "")
	v.SetDefault("sync.token", "")
	v.SetDefault("sync.queue_size", 1024)
	v.SetDefault("sync.max_attempts", 5)
	v.SetDefault("sync.initial_backoff", 200*time.Millisecond)
	v.SetDefault("sync.max_backoff", 10*time.Second)
	v.SetDefault("sync.attempt_timeout", 10*time.Second)
	v.SetDefault("sync.max_dead_letters", 10_000)
	v.SetDefault("sync.breaker_failures", 5)
	v.SetDefault("sync.breaker_cooldown", 30*time.Second)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "cdigit.workflow-events")
	v.SetDefault("kafka.partitions", 3)
	v.SetDefault("kafka.replication_factor", 1)

	v.SetDefault("signature.algorithm", "SHA-256")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("rate_limit.read_requests", 600)
	v.SetDefault("rate_limit.write_requests", 120)
	v.SetDefault("policy_file", "")
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Auth.SigningKey == "" {
		return fmt.Errorf("auth.signing_key is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("redis.url is required for the redis store driver")
		}
	case DriverPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required for the postgres store driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.Audit.Capacity <= 0 {
		return fmt.Errorf("audit.capacity must be positive")
	}
	if c.Sync.MaxAttempts <= 0 {
		return fmt.Errorf("sync.max_attempts must be positive")
	}
	if c.RateLimit.Enabled && c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be positive")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic is required when brokers are set")
	}
	return nil
}
