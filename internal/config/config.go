package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full application configuration loaded from env / config file.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Data          DataConfig          `mapstructure:"data"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Storage       StorageConfig       `mapstructure:"storage"`
	S3            S3Config            `mapstructure:"s3"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	KMS           KMSConfig           `mapstructure:"kms"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	RateLimit     RateLimitConfig     `mapstructure:"ratelimit"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`  // development | production
	Port     int    `mapstructure:"port"` // HTTP API port
	Version  string `mapstructure:"version"`
	LogLevel string `mapstructure:"log_level"`
}

// DataConfig locates the flat JSON files the portal persists to.
type DataConfig struct {
	Dir string `mapstructure:"dir"`
}

type RedisConfig struct {
	// Addr empty disables background rebuilds from the API.
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type StorageConfig struct {
	Backend string `mapstructure:"backend"` // "fs", "s3", "multi"
	FSRoot  string `mapstructure:"fs_root"` // Root directory for filesystem archives
}

// S3Config holds credentials for an S3-compatible provider.
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	// ForcePathStyle must be true for Garage / MinIO
	ForcePathStyle bool   `mapstructure:"force_path_style"`
	StorageClass   string `mapstructure:"storage_class"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

type WorkerConfig struct {
	// How often the scheduler enqueues a full chain rebuild
	RebuildInterval time.Duration `mapstructure:"rebuild_interval"`
	Concurrency     int           `mapstructure:"concurrency"`
	// Delay applied to rebuilds triggered by submissions so bursts collapse
	// into a single task.
	RebuildDebounce time.Duration `mapstructure:"rebuild_debounce"`
	// Archives older than this many days are deleted from storage. 0 keeps them forever.
	ArchiveRetentionDays int `mapstructure:"archive_retention_days"`
	// MetricsAddr is where the worker exposes /metrics. Empty disables it.
	MetricsAddr string `mapstructure:"metrics_addr"`
}

type KMSConfig struct {
	// Key is a 64-char hex AES-256 key. Empty stores certificates as plain base64.
	Key string `mapstructure:"key"`
}

type NotificationsConfig struct {
	SlackWebhookURL string `mapstructure:"slack_webhook_url"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// Load reads configuration from environment variables and optional config file.
// Environment variable prefix: PORTAL_
// Example: PORTAL_APP_PORT=8080.
func Load() (*Config, error) {
	v := viper.New()

	// ---------- defaults ----------
	v.SetDefault("app.name", "smart-data-portal")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.log_level", "")

	v.SetDefault("data.dir", "./data")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")

	v.SetDefault("storage.backend", "fs")
	v.SetDefault("storage.fs_root", "./data/archive")

	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.force_path_style", true)
	v.SetDefault("s3.storage_class", "STANDARD")

	v.SetDefault("jwt.expiration", "8h")
	v.SetDefault("jwt.secret", "")

	v.SetDefault("kms.key", "")
	v.SetDefault("notifications.slack_webhook_url", "")

	v.SetDefault("worker.rebuild_interval", "1h")
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.rebuild_debounce", "30s")
	v.SetDefault("worker.archive_retention_days", 90)
	v.SetDefault("worker.metrics_addr", ":9091")

	v.SetDefault("ratelimit.rps", 10)
	v.SetDefault("ratelimit.burst", 20)

	// ---------- config file (optional) ----------
	v.SetConfigName("portal")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/portal")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	// ---------- env vars ----------
	v.SetEnvPrefix("PORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects combinations the services cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "fs", "s3", "multi":
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend != "fs" && c.S3.Bucket == "" {
		return fmt.Errorf("config: storage backend %q requires s3.bucket", c.Storage.Backend)
	}
	if c.App.Env == "production" && c.JWT.Secret == "" {
		return fmt.Errorf("config: jwt.secret is required in production")
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("config: ratelimit.rps and ratelimit.burst must be positive")
	}
	return nil
}
