// Package config loads runtime configuration. Environment variables win
// over the optional config file; defaults cover local development.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	Env      string `mapstructure:"env"`
	HTTPAddr string `mapstructure:"http_addr"`

	DatabaseURL string `mapstructure:"database_url"`
	TablePrefix string `mapstructure:"table_prefix"`
	DBMaxConns  int32  `mapstructure:"db_max_conns"`

	RedisURL string        `mapstructure:"redis_url"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`

	KafkaBrokers []string `mapstructure:"kafka_brokers"`

	OutboxPollInterval  time.Duration `mapstructure:"outbox_poll_interval"`
	OutboxBatchSize     int           `mapstructure:"outbox_batch_size"`
	OutboxRetention     time.Duration `mapstructure:"outbox_retention"`
	OutboxSweepInterval time.Duration `mapstructure:"outbox_sweep_interval"`
	DeletedRetention    time.Duration `mapstructure:"deleted_retention"`
}

// Load reads configuration from the environment and, when present, a
// kernel.yaml in the working directory or /etc/kernel.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("env", "dev")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("database_url", "")
	v.SetDefault("table_prefix", "ggj")
	v.SetDefault("db_max_conns", 10)
	v.SetDefault("redis_url", "redis://localhost:6379/0")
	v.SetDefault("cache_ttl", time.Hour)
	v.SetDefault("kafka_brokers", []string{"localhost:9092"})
	v.SetDefault("outbox_poll_interval", 5*time.Second)
	v.SetDefault("outbox_batch_size", 100)
	v.SetDefault("outbox_retention", 7*24*time.Hour)
	v.SetDefault("outbox_sweep_interval", time.Hour)
	v.SetDefault("deleted_retention", 90*24*time.Hour)

	v.SetConfigName("kernel")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/kernel")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
