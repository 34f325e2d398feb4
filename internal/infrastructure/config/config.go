package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backend names accepted by StoreConfig.Backend.
const (
	StoreBackendSQLite = "sqlite"
	StoreBackendRedis  = "redis"
)

// Config is the root configuration structure for AirRelay.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Store    StoreConfig    `yaml:"store"`
	Cache    CacheConfig    `yaml:"cache"`
	Telegram TelegramConfig `yaml:"telegram"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	// Interval is the fixed delay (seconds) between reconnect attempts.
	// Attempts continue until the client is closed.
	Interval int `yaml:"interval"`
}

// StoreConfig selects and configures the durable directory store.
type StoreConfig struct {
	// Backend is "sqlite" (local file) or "redis" (remote).
	Backend string `yaml:"backend"`

	// Namespace prefixes every key so several deployments can share one store.
	Namespace string `yaml:"namespace"`

	SQLite SQLiteConfig `yaml:"sqlite"`
	Redis  RedisConfig  `yaml:"redis"`
}

// SQLiteConfig contains SQLite database settings.
type SQLiteConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// RedisConfig contains remote Redis store settings.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Timeout  int    `yaml:"timeout"`
}

// CacheConfig contains directory cache settings.
type CacheConfig struct {
	// Size is the LRU capacity in entries. Fixed for the process lifetime.
	Size int `yaml:"size"`
}

// TelegramConfig contains chat platform credentials.
type TelegramConfig struct {
	Token string `yaml:"token"`
}

// APIConfig contains the operations HTTP server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`

	// Token guards mutating endpoints (cache clear). Empty disables them.
	Token string `yaml:"token"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: AIRRELAY_SECTION_KEY
// For example: AIRRELAY_MQTT_HOST, AIRRELAY_TELEGRAM_TOKEN
//
// A missing file is not an error when AIRRELAY_CONFIG_OPTIONAL is set, so
// container deployments can run from environment variables alone.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case os.IsNotExist(err) && os.Getenv("AIRRELAY_CONFIG_OPTIONAL") != "":
		// Environment-only configuration.
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "airrelay",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				Interval: 5,
			},
		},
		Store: StoreConfig{
			Backend: StoreBackendSQLite,
			SQLite: SQLiteConfig{
				Path:        "./data/airrelay.db",
				WALMode:     true,
				BusyTimeout: 5,
			},
			Redis: RedisConfig{
				Timeout: 5,
			},
		},
		Cache: CacheConfig{
			Size: 1024,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8080,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: AIRRELAY_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// MQTT
	if v := os.Getenv("AIRRELAY_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("AIRRELAY_MQTT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AIRRELAY_MQTT_PORT: %w", err)
		}
		cfg.MQTT.Broker.Port = port
	}
	if v := os.Getenv("AIRRELAY_MQTT_TLS"); v != "" {
		useTLS, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AIRRELAY_MQTT_TLS: %w", err)
		}
		cfg.MQTT.Broker.TLS = useTLS
	}
	if v := os.Getenv("AIRRELAY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("AIRRELAY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Store
	if v := os.Getenv("AIRRELAY_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("AIRRELAY_STORE_NAMESPACE"); v != "" {
		cfg.Store.Namespace = v
	}
	if v := os.Getenv("AIRRELAY_SQLITE_PATH"); v != "" {
		cfg.Store.SQLite.Path = v
	}
	if v := os.Getenv("AIRRELAY_REDIS_URL"); v != "" {
		cfg.Store.Redis.URL = v
	}
	if v := os.Getenv("AIRRELAY_REDIS_PASSWORD"); v != "" {
		cfg.Store.Redis.Password = v
	}

	// Telegram
	if v := os.Getenv("AIRRELAY_TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}

	// API
	if v := os.Getenv("AIRRELAY_API_TOKEN"); v != "" {
		cfg.API.Token = v
	}

	// InfluxDB
	if v := os.Getenv("AIRRELAY_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	return nil
}

// Validate checks the configuration for errors.
//
// All problems are collected so a single startup attempt reports everything
// that needs fixing.
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Reconnect.Interval < 1 {
		errs = append(errs, "mqtt.reconnect.interval must be at least 1 second")
	}

	// Store validation
	switch c.Store.Backend {
	case StoreBackendSQLite:
		if c.Store.SQLite.Path == "" {
			errs = append(errs, "store.sqlite.path is required for the sqlite backend")
		}
	case StoreBackendRedis:
		if c.Store.Redis.URL == "" {
			errs = append(errs, "store.redis.url is required for the redis backend (set AIRRELAY_REDIS_URL)")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.backend must be %q or %q", StoreBackendSQLite, StoreBackendRedis))
	}

	// Cache validation
	if c.Cache.Size < 1 {
		errs = append(errs, "cache.size must be at least 1")
	}

	// Telegram validation
	if c.Telegram.Token == "" {
		errs = append(errs, "telegram.token is required (set AIRRELAY_TELEGRAM_TOKEN environment variable)")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ReconnectInterval returns the MQTT reconnect interval as a Duration.
func (c MQTTConfig) ReconnectInterval() time.Duration {
	return time.Duration(c.Reconnect.Interval) * time.Second
}

// RedisTimeout returns the Redis dial/read/write timeout as a Duration.
func (c RedisConfig) RedisTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}
