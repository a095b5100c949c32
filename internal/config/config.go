package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all energymon configuration.
type Config struct {
	Storage    StorageConfig  `mapstructure:"storage"`
	Server     ServerConfig   `mapstructure:"server"`
	Monitor    MonitorConfig  `mapstructure:"monitor"`
	Forecast   ForecastConfig `mapstructure:"forecast"`
	Dispatch   DispatchConfig `mapstructure:"dispatch"`
	Alerts     AlertsConfig   `mapstructure:"alerts"`
	LimitsFile string         `mapstructure:"limits_file"`
	Logging    LoggingConfig  `mapstructure:"logging"`
}

// StorageConfig defines database settings. Driver is "sqlite" or "postgres".
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

// ServerConfig defines the HTTP API settings.
type ServerConfig struct {
	Listen       string          `mapstructure:"listen"`
	ReadTimeout  time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout time.Duration   `mapstructure:"write_timeout"`
	Stream       bool            `mapstructure:"stream"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig limits requests per client IP. RPS 0 disables it.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// MonitorConfig tunes limit evaluation.
type MonitorConfig struct {
	BudgetWindow int    `mapstructure:"budget_window"`
	Timezone     string `mapstructure:"timezone"`
}

// ForecastConfig tunes the forecast engine and its schedule.
type ForecastConfig struct {
	Lookback time.Duration `mapstructure:"lookback"`
	Interval time.Duration `mapstructure:"interval"`
	Retain   int           `mapstructure:"retain"`
}

// DispatchConfig tunes alert delivery.
type DispatchConfig struct {
	Timeout            time.Duration `mapstructure:"timeout"`
	BreakerThreshold   int           `mapstructure:"breaker_threshold"`
	BreakerReset       time.Duration `mapstructure:"breaker_reset"`
	RedispatchInterval time.Duration `mapstructure:"redispatch_interval"`
}

// AlertsConfig defines alerting integrations.
type AlertsConfig struct {
	Slack   SlackConfig   `mapstructure:"slack"`
	Webhook WebhookConfig `mapstructure:"webhook"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
}

// SlackConfig defines Slack webhook settings.
type SlackConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
}

// WebhookConfig defines generic webhook settings.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Secret  string `mapstructure:"secret"`
}

// RedisConfig defines Redis pub/sub settings.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// KafkaConfig defines Kafka producer settings.
type KafkaConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	Topic       string   `mapstructure:"topic"`
	Compression string   `mapstructure:"compression"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Location resolves the monitor time zone. An empty zone is UTC.
func (c MonitorConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Load reads configuration from file and environment variables.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("find home directory: %w", err)
		}

		v.AddConfigPath(filepath.Join(home, ".energymon"))
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Defaults
	home, _ := os.UserHomeDir()
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", filepath.Join(home, ".energymon", "energymon.db"))
	v.SetDefault("storage.dsn", "")
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.stream", true)
	v.SetDefault("server.rate_limit.rps", 50)
	v.SetDefault("server.rate_limit.burst", 100)
	v.SetDefault("monitor.budget_window", 24)
	v.SetDefault("monitor.timezone", "UTC")
	v.SetDefault("forecast.lookback", "24h")
	v.SetDefault("forecast.interval", "1h")
	v.SetDefault("forecast.retain", 10)
	v.SetDefault("dispatch.timeout", "5s")
	v.SetDefault("dispatch.breaker_threshold", 3)
	v.SetDefault("dispatch.breaker_reset", "30s")
	v.SetDefault("dispatch.redispatch_interval", "5m")
	v.SetDefault("alerts.slack.channel", "#energy-alerts")
	v.SetDefault("alerts.redis.addr", "localhost:6379")
	v.SetDefault("alerts.redis.channel", "energymon:alerts")
	v.SetDefault("alerts.kafka.topic", "energy-alerts")
	v.SetDefault("alerts.kafka.compression", "snappy")
	v.SetDefault("limits_file", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Environment variables
	v.SetEnvPrefix("ENERGYMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Storage.Driver != "sqlite" && cfg.Storage.Driver != "postgres" {
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	return &cfg, nil
}
