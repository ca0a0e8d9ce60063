package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Scan interval bounds in seconds. Values outside this range are clamped
// rather than rejected so a misconfigured install still polls at a sane rate.
const (
	MinScanInterval = 10
	MaxScanInterval = 3600
)

// Config is the root configuration structure for the SensorThings bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	SensorThings SensorThingsConfig `yaml:"sensorthings"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	Database     DatabaseConfig     `yaml:"database"`
	API          APIConfig          `yaml:"api"`
	WebSocket    WebSocketConfig    `yaml:"websocket"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// SensorThingsConfig contains settings for the remote SensorThings API server.
type SensorThingsConfig struct {
	// BaseURL is the versioned root of the SensorThings API,
	// e.g. "http://192.168.1.100:8080/FROST-Server/v1.1".
	BaseURL string `yaml:"base_url"`

	// ScanInterval is the poll interval in seconds. Clamped to
	// [MinScanInterval, MaxScanInterval].
	ScanInterval int `yaml:"scan_interval"`

	// UpdateInterval is the entity update tick in seconds. Each tick asks
	// entities to re-evaluate whether a poll refresh is needed.
	UpdateInterval int `yaml:"update_interval"`

	// RequestTimeout is the HTTP request timeout in seconds.
	RequestTimeout int `yaml:"request_timeout"`
}

// MQTTConfig contains settings for the push channel to the server's
// built-in MQTT broker (FROST exposes one next to the HTTP API).
type MQTTConfig struct {
	// Enabled toggles the push channel. When false the bridge runs poll-only.
	Enabled bool `yaml:"enabled"`

	// Host overrides the broker hostname. When empty the hostname of
	// sensorthings.base_url is used, which matches FROST deployments.
	Host string `yaml:"host"`

	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
	QoS      int    `yaml:"qos"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
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
// Environment variables follow the pattern: STABRIDGE_SECTION_KEY
// For example: STABRIDGE_SENSORTHINGS_URL, STABRIDGE_DATABASE_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		SensorThings: SensorThingsConfig{
			ScanInterval:   60,
			UpdateInterval: 30,
			RequestTimeout: 10,
		},
		MQTT: MQTTConfig{
			Enabled:  true,
			Port:     1883,
			ClientID: "stabridge",
			QoS:      0,
		},
		Database: DatabaseConfig{
			Path:        "./data/stabridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: STABRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STABRIDGE_SENSORTHINGS_URL"); v != "" {
		cfg.SensorThings.BaseURL = v
	}
	if v := os.Getenv("STABRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("STABRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Host = v
	}
	if v := os.Getenv("STABRIDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.SensorThings.BaseURL == "" {
		errs = append(errs, "sensorthings.base_url is required")
	} else {
		u, err := url.Parse(c.SensorThings.BaseURL)
		if err != nil || u.Scheme == "" || u.Hostname() == "" {
			errs = append(errs, "sensorthings.base_url must be an absolute http(s) URL")
		}
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
		errs = append(errs, "mqtt.port must be between 1 and 65535")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// BrokerHost returns the MQTT broker hostname: the explicit mqtt.host
// override when set, otherwise the hostname of the SensorThings base URL.
func (c *Config) BrokerHost() string {
	if c.MQTT.Host != "" {
		return c.MQTT.Host
	}
	u, err := url.Parse(c.SensorThings.BaseURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// GetScanInterval returns the poll interval as a Duration, clamped to
// [MinScanInterval, MaxScanInterval] seconds.
func (c *Config) GetScanInterval() time.Duration {
	s := c.SensorThings.ScanInterval
	if s < MinScanInterval {
		s = MinScanInterval
	}
	if s > MaxScanInterval {
		s = MaxScanInterval
	}
	return time.Duration(s) * time.Second
}

// GetUpdateInterval returns the entity update tick as a Duration.
func (c *Config) GetUpdateInterval() time.Duration {
	return time.Duration(c.SensorThings.UpdateInterval) * time.Second
}

// GetRequestTimeout returns the HTTP request timeout as a Duration.
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.SensorThings.RequestTimeout) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
