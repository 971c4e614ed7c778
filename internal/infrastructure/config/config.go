package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Tapline.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device     DeviceConfig     `yaml:"device"`
	Session    SessionConfig    `yaml:"session"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Touch      TouchConfig      `yaml:"touch"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DeviceConfig selects the device and the adb binary used to reach it.
type DeviceConfig struct {
	// ADBPath is the adb executable. Default: "adb" (resolved via PATH).
	ADBPath string `yaml:"adb_path"`

	// Serial pins a specific device. Empty means the first online device.
	Serial string `yaml:"serial"`

	// DiscoverTimeout bounds one "adb devices" listing.
	DiscoverTimeout time.Duration `yaml:"discover_timeout"`

	// ConnectTimeout bounds the authentication handshake.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// SessionConfig holds per-command deadlines and the queue size.
type SessionConfig struct {
	TapTimeout           time.Duration `yaml:"tap_timeout"`
	SwipeTimeout         time.Duration `yaml:"swipe_timeout"`
	CaptureTimeout       time.Duration `yaml:"capture_timeout"`
	ShellTimeout         time.Duration `yaml:"shell_timeout"`
	QueueCapacity        int           `yaml:"queue_capacity"`
	SwipeDefaultDuration time.Duration `yaml:"swipe_default_duration"`
}

// SupervisorConfig holds reconnection pacing.
type SupervisorConfig struct {
	// Tick is the wait between a disconnect and the next discovery attempt.
	Tick time.Duration `yaml:"tick"`

	// Backoff is the delay schedule after consecutive failures.
	// The last entry is held once the schedule is exhausted.
	Backoff []time.Duration `yaml:"backoff"`
}

// TouchConfig controls human-interaction detection.
type TouchConfig struct {
	Enabled bool `yaml:"enabled"`

	// Timeout is how long automation stays suspended after the last touch.
	Timeout time.Duration `yaml:"timeout"`

	// Device forces a getevent input node (e.g. /dev/input/event2).
	// Empty means auto-detect via "getevent -p".
	Device string `yaml:"device"`

	// RestartDelay is the pause before the event stream is reopened.
	RestartDelay time.Duration `yaml:"restart_delay"`
}

// SchedulerConfig holds the automation tick and the initial timed events.
type SchedulerConfig struct {
	Tick      time.Duration      `yaml:"tick"`
	Autostart bool               `yaml:"autostart"`
	Events    []TimedEventConfig `yaml:"events"`
}

// TimedEventConfig declares a timed event created at startup.
type TimedEventConfig struct {
	ID       string        `yaml:"id"`
	Kind     string        `yaml:"kind"`
	Interval time.Duration `yaml:"interval"`
	Enabled  *bool         `yaml:"enabled"`
	X        int           `yaml:"x"`
	Y        int           `yaml:"y"`
	X2       int           `yaml:"x2"`
	Y2       int           `yaml:"y2"`
	Duration time.Duration `yaml:"duration"`
}

// IsEnabled reports whether the event starts enabled. Omitted means enabled.
func (e TimedEventConfig) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// DatabaseConfig contains SQLite command history settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
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
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
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
// Environment variables follow the pattern: TAPLINE_SECTION_KEY
// For example: TAPLINE_DEVICE_SERIAL, TAPLINE_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

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

// LoadOrDefault is Load, except a missing file yields the defaults with
// environment overrides applied.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		cfg := Default()
		applyEnvOverrides(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("validating config: %w", err)
		}
		return cfg, nil
	}
	return Load(path)
}

// Default returns a Config populated with the built-in defaults.
// It is also used when no configuration file exists.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			ADBPath:         "adb",
			DiscoverTimeout: 5 * time.Second,
			ConnectTimeout:  30 * time.Second,
		},
		Session: SessionConfig{
			TapTimeout:           5 * time.Second,
			SwipeTimeout:         5 * time.Second,
			CaptureTimeout:       10 * time.Second,
			ShellTimeout:         5 * time.Second,
			QueueCapacity:        100,
			SwipeDefaultDuration: 300 * time.Millisecond,
		},
		Supervisor: SupervisorConfig{
			Tick: time.Second,
			Backoff: []time.Duration{
				2 * time.Second,
				4 * time.Second,
				8 * time.Second,
				16 * time.Second,
				30 * time.Second,
			},
		},
		Touch: TouchConfig{
			Enabled:      true,
			Timeout:      30 * time.Second,
			RestartDelay: 2 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Tick: 100 * time.Millisecond,
		},
		Database: DatabaseConfig{
			Path:        "./data/tapline.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "tapline",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8080,
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
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: TAPLINE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Device
	if v := os.Getenv("TAPLINE_DEVICE_SERIAL"); v != "" {
		cfg.Device.Serial = v
	}
	if v := os.Getenv("TAPLINE_ADB_PATH"); v != "" {
		cfg.Device.ADBPath = v
	}

	// Touch
	if v := os.Getenv("TAPLINE_TOUCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Touch.Timeout = d
		}
	}

	// Database
	if v := os.Getenv("TAPLINE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("TAPLINE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("TAPLINE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("TAPLINE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("TAPLINE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("TAPLINE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("TAPLINE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("TAPLINE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Device.ADBPath == "" {
		errs = append(errs, "device.adb_path is required")
	}
	if c.Device.DiscoverTimeout <= 0 {
		errs = append(errs, "device.discover_timeout must be positive")
	}
	if c.Device.ConnectTimeout <= 0 {
		errs = append(errs, "device.connect_timeout must be positive")
	}

	// Every transport call must be bounded.
	if c.Session.TapTimeout <= 0 || c.Session.SwipeTimeout <= 0 ||
		c.Session.CaptureTimeout <= 0 || c.Session.ShellTimeout <= 0 {
		errs = append(errs, "session timeouts must all be positive")
	}
	if c.Session.QueueCapacity < 1 {
		errs = append(errs, "session.queue_capacity must be at least 1")
	}

	if c.Supervisor.Tick <= 0 {
		errs = append(errs, "supervisor.tick must be positive")
	}
	if len(c.Supervisor.Backoff) == 0 {
		errs = append(errs, "supervisor.backoff must list at least one delay")
	}
	for i, d := range c.Supervisor.Backoff {
		if d <= 0 {
			errs = append(errs, fmt.Sprintf("supervisor.backoff[%d] must be positive", i))
		}
	}

	if c.Touch.Enabled && c.Touch.Timeout <= 0 {
		errs = append(errs, "touch.timeout must be positive")
	}

	if c.Scheduler.Tick <= 0 {
		errs = append(errs, "scheduler.tick must be positive")
	}
	seen := make(map[string]bool, len(c.Scheduler.Events))
	for i, ev := range c.Scheduler.Events {
		if ev.ID == "" {
			errs = append(errs, fmt.Sprintf("scheduler.events[%d].id is required", i))
		} else if seen[ev.ID] {
			errs = append(errs, fmt.Sprintf("scheduler.events[%d].id %q is duplicated", i, ev.ID))
		}
		seen[ev.ID] = true
		switch ev.Kind {
		case "tap", "swipe", "capture", "countdown_tick":
		default:
			errs = append(errs, fmt.Sprintf("scheduler.events[%d].kind %q is unknown", i, ev.Kind))
		}
		if ev.Interval <= 0 {
			errs = append(errs, fmt.Sprintf("scheduler.events[%d].interval must be positive", i))
		}
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
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
