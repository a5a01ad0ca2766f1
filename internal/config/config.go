// Package config loads and validates service configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Defaults applied to fields left unset in the configuration file.
const (
	DefaultQueueName      = "market-events"
	DefaultExchange       = "binance"
	DefaultWorkers        = 4
	DefaultRetention      = time.Hour
	DefaultReportInterval = 10 * time.Second
)

// Config is the root configuration shared by the ingestor and consumer
// binaries. Each binary only reads the sections it needs.
type Config struct {
	LogLevel string         `yaml:"log_level"`
	Exchange ExchangeConfig `yaml:"exchange"`
	Redis    RedisConfig    `yaml:"redis" validate:"required"`
	Queue    QueueConfig    `yaml:"queue"`
	Cache    CacheConfig    `yaml:"cache"`
	Influx   InfluxConfig   `yaml:"influx"`
	Stats    StatsConfig    `yaml:"stats"`
}

// ExchangeConfig selects the market data source and its subscriptions.
type ExchangeConfig struct {
	Name           string   `yaml:"name"`
	WebsocketURL   string   `yaml:"websocket_url"`
	Symbols        []string `yaml:"symbols" validate:"required,min=1,dive,required"`
	KlineIntervals []string `yaml:"kline_intervals"`
}

// RedisConfig holds connection parameters for the shared Redis instance
// backing both the queue and the sliding-window cache.
type RedisConfig struct {
	Addr     string `yaml:"addr" validate:"required,hostname_port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
}

// QueueConfig names the durable queue and sizes the consumer pool.
type QueueConfig struct {
	Name    string `yaml:"name"`
	Workers int    `yaml:"workers" validate:"gte=0"`
}

// CacheConfig controls the sliding-window retention of cached events.
type CacheConfig struct {
	Retention time.Duration `yaml:"retention" validate:"gte=0"`
}

// InfluxConfig holds connection parameters for the time-series store.
// Only the consumer binary requires it.
type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// StatsConfig controls periodic counter reporting.
type StatsConfig struct {
	ReportInterval time.Duration `yaml:"report_interval" validate:"gte=0"`
}

// Load reads, defaults and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
	}

	cfg.applyDefaults()

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Exchange.Name == "" {
		c.Exchange.Name = DefaultExchange
	}
	if c.Queue.Name == "" {
		c.Queue.Name = DefaultQueueName
	}
	if c.Queue.Workers == 0 {
		c.Queue.Workers = DefaultWorkers
	}
	if c.Cache.Retention == 0 {
		c.Cache.Retention = DefaultRetention
	}
	if c.Stats.ReportInterval == 0 {
		c.Stats.ReportInterval = DefaultReportInterval
	}
}
