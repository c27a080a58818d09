package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName          string `mapstructure:"app_name"`
	Env              string `mapstructure:"app_env"`
	LogLevel         string `mapstructure:"log_level"`
	DestinationsFile string `mapstructure:"destinations_file"`
	NotifiersFile    string `mapstructure:"notifiers_file"`
	MetricsAddr      string `mapstructure:"metrics_addr"`

	StorageType string `mapstructure:"storage_type"`
	BBoltPath   string `mapstructure:"bbolt_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`

	ContentAPIURL   string `mapstructure:"content_api_url"`
	ContentAPIToken string `mapstructure:"content_api_token"`

	DestinationTimeoutSeconds int64         `mapstructure:"destination_timeout_seconds"`
	DestinationTimeout        time.Duration `mapstructure:"-"`

	QueueEnabled                bool          `mapstructure:"queue_enabled"`
	QueuePollIntervalSeconds    int64         `mapstructure:"queue_poll_interval_seconds"`
	QueueBatchSize              int           `mapstructure:"queue_batch_size"`
	QueueConcurrency            int           `mapstructure:"queue_concurrency"`
	QueueMaxRetries             int           `mapstructure:"queue_max_retries"`
	QueueCleanupIntervalSeconds int64         `mapstructure:"queue_cleanup_interval_seconds"`
	QueueRetentionSeconds       int64         `mapstructure:"queue_retention_seconds"`
	QueueLeaseTimeoutSeconds    int64         `mapstructure:"queue_lease_timeout_seconds"`
	QueuePollInterval           time.Duration `mapstructure:"-"`
	QueueCleanupInterval        time.Duration `mapstructure:"-"`
	QueueRetention              time.Duration `mapstructure:"-"`
	QueueLeaseTimeout           time.Duration `mapstructure:"-"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()

	v.SetDefault("app_name", "samvad-publisher")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("destinations_file", "./configs/destinations.yaml")
	v.SetDefault("notifiers_file", "")
	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("storage_type", "bbolt")
	v.SetDefault("bbolt_path", "./data/publisher.db")
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("content_api_url", "http://localhost:8080/api")
	v.SetDefault("content_api_token", "")
	v.SetDefault("destination_timeout_seconds", 30)
	v.SetDefault("queue_enabled", true)
	v.SetDefault("queue_poll_interval_seconds", 30)
	v.SetDefault("queue_batch_size", 10)
	v.SetDefault("queue_concurrency", 4)
	v.SetDefault("queue_max_retries", 3)
	v.SetDefault("queue_cleanup_interval_seconds", int64(time.Hour/time.Second))
	v.SetDefault("queue_retention_seconds", int64((7*24*time.Hour)/time.Second))
	v.SetDefault("queue_lease_timeout_seconds", int64((10*time.Minute)/time.Second))

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) normalize() error {
	if cfg.DestinationTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid destination_timeout_seconds (must be positive seconds)")
	}
	if cfg.QueuePollIntervalSeconds <= 0 {
		return fmt.Errorf("invalid queue_poll_interval_seconds (must be positive seconds)")
	}
	if cfg.QueueCleanupIntervalSeconds <= 0 {
		return fmt.Errorf("invalid queue_cleanup_interval_seconds (must be positive seconds)")
	}
	if cfg.QueueRetentionSeconds <= 0 {
		return fmt.Errorf("invalid queue_retention_seconds (must be positive seconds)")
	}
	if cfg.QueueLeaseTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid queue_lease_timeout_seconds (must be positive seconds)")
	}
	if cfg.QueueBatchSize <= 0 {
		return fmt.Errorf("invalid queue_batch_size (must be positive)")
	}
	if cfg.QueueConcurrency <= 0 {
		return fmt.Errorf("invalid queue_concurrency (must be positive)")
	}
	if cfg.QueueMaxRetries < 0 {
		return fmt.Errorf("invalid queue_max_retries (must not be negative)")
	}

	cfg.DestinationTimeout = time.Duration(cfg.DestinationTimeoutSeconds) * time.Second
	cfg.QueuePollInterval = time.Duration(cfg.QueuePollIntervalSeconds) * time.Second
	cfg.QueueCleanupInterval = time.Duration(cfg.QueueCleanupIntervalSeconds) * time.Second
	cfg.QueueRetention = time.Duration(cfg.QueueRetentionSeconds) * time.Second
	cfg.QueueLeaseTimeout = time.Duration(cfg.QueueLeaseTimeoutSeconds) * time.Second
	return nil
}
