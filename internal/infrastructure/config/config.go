package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppName is the directory name used under the user's config directory.
const AppName = "bluetray"

// Gateway implementation names accepted by bluetooth.gateway.
const (
	GatewayWindows   = "windows"
	GatewaySimulated = "simulated"
)

// Config is the root configuration structure for Bluetray.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bluetooth BluetoothConfig `yaml:"bluetooth"`
	Tray      TrayConfig      `yaml:"tray"`
	Database  DatabaseConfig  `yaml:"database"`
	History   HistoryConfig   `yaml:"history"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BluetoothConfig contains OS gateway and connection coordinator settings.
type BluetoothConfig struct {
	// Gateway selects the OS gateway: "windows" or "simulated".
	// Default: "windows" on Windows, "simulated" elsewhere.
	Gateway string `yaml:"gateway"`

	// Cooldown is how long a device stays in Failed before reverting.
	// Hot-reloadable. Default: 5s
	Cooldown time.Duration `yaml:"cooldown"`

	// OperationTimeout bounds a single OS connect/disconnect call.
	// Default: 30s
	OperationTimeout time.Duration `yaml:"operation_timeout"`

	// PollInterval is how often the gateway re-reads the paired device list
	// to detect out-of-band changes. Default: 3s
	PollInterval time.Duration `yaml:"poll_interval"`

	// MaxConcurrentOperations caps in-flight OS operations across all
	// devices. 0 means unlimited. Default: 0
	MaxConcurrentOperations int `yaml:"max_concurrent_operations"`

	// Services lists the Bluetooth service class GUIDs toggled when
	// connecting or disconnecting a classic device. Empty uses the audio
	// sink and handsfree profiles.
	Services []string `yaml:"services"`

	// Simulated seeds the simulated gateway.
	Simulated SimulatedConfig `yaml:"simulated"`
}

// SimulatedConfig contains settings for the simulated gateway.
type SimulatedConfig struct {
	Latency  time.Duration     `yaml:"latency"`
	FailRate float64           `yaml:"fail_rate"`
	Devices  []SimulatedDevice `yaml:"devices"`
}

// SimulatedDevice is a paired device reported by the simulated gateway.
type SimulatedDevice struct {
	Address   string `yaml:"address"`
	Name      string `yaml:"name"`
	Connected bool   `yaml:"connected"`
}

// TrayConfig contains tray presenter settings.
type TrayConfig struct {
	// NotifyFailures shows a desktop notification when an operation fails.
	NotifyFailures bool `yaml:"notify_failures"`

	// MaxDevices is the number of pre-allocated device menu slots.
	MaxDevices int `yaml:"max_devices"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// HistoryConfig contains connection history settings.
type HistoryConfig struct {
	Enabled       bool `yaml:"enabled"`
	RetentionDays int  `yaml:"retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
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

// APIConfig contains local HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// Output is "stdout", "stderr" or "file". A tray process on Windows has
	// no console, so "file" is the usual choice there.
	Output string `yaml:"output"`
	File   string `yaml:"file"`
}

// DefaultPath returns the config file location used when none is given.
//
// Resolution order:
//  1. BLUETRAY_CONFIG environment variable
//  2. <user config dir>/bluetray/config.yaml (%APPDATA% on Windows)
//  3. ./config.yaml if the user config dir cannot be determined
func DefaultPath() string {
	if v := os.Getenv("BLUETRAY_CONFIG"); v != "" {
		return v
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, AppName, "config.yaml")
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped if the file does not exist
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: BLUETRAY_SECTION_KEY
// For example: BLUETRAY_BLUETOOTH_COOLDOWN, BLUETRAY_API_PORT
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
	switch {
	case errors.Is(err, os.ErrNotExist):
		// First run: a tray app must start without any config file.
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration without reading any file.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	dataDir := "."
	if dir, err := os.UserConfigDir(); err == nil {
		dataDir = filepath.Join(dir, AppName)
	}

	return &Config{
		Bluetooth: BluetoothConfig{
			Gateway:          defaultGateway(),
			Cooldown:         5 * time.Second,
			OperationTimeout: 30 * time.Second,
			PollInterval:     3 * time.Second,
			Simulated: SimulatedConfig{
				Latency: 500 * time.Millisecond,
			},
		},
		Tray: TrayConfig{
			NotifyFailures: true,
			MaxDevices:     16,
		},
		Database: DatabaseConfig{
			Path:        filepath.Join(dataDir, "bluetray.db"),
			WALMode:     true,
			BusyTimeout: 5,
		},
		History: HistoryConfig{
			Enabled:       true,
			RetentionDays: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "bluetray",
			},
			QoS:         1,
			TopicPrefix: "bluetray",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Bucket:        "bluetray",
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8731,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 40,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "file",
			File:   filepath.Join(dataDir, "bluetray.log"),
		},
	}
}

// defaultGateway picks the real OS gateway where one exists.
func defaultGateway() string {
	if runtime.GOOS == "windows" {
		return GatewayWindows
	}
	return GatewaySimulated
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: BLUETRAY_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// Bluetooth
	if v := os.Getenv("BLUETRAY_BLUETOOTH_GATEWAY"); v != "" {
		cfg.Bluetooth.Gateway = v
	}
	if v := os.Getenv("BLUETRAY_BLUETOOTH_COOLDOWN"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("BLUETRAY_BLUETOOTH_COOLDOWN: %w", err)
		}
		cfg.Bluetooth.Cooldown = d
	}

	// Database
	if v := os.Getenv("BLUETRAY_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("BLUETRAY_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("BLUETRAY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("BLUETRAY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("BLUETRAY_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BLUETRAY_API_PORT: %w", err)
		}
		cfg.API.Port = port
	}

	// InfluxDB
	if v := os.Getenv("BLUETRAY_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("BLUETRAY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Bluetooth validation
	switch c.Bluetooth.Gateway {
	case GatewayWindows, GatewaySimulated:
	default:
		errs = append(errs, fmt.Sprintf("bluetooth.gateway must be %q or %q", GatewayWindows, GatewaySimulated))
	}
	if c.Bluetooth.Cooldown < 0 {
		errs = append(errs, "bluetooth.cooldown must not be negative")
	}
	if c.Bluetooth.OperationTimeout <= 0 {
		errs = append(errs, "bluetooth.operation_timeout must be positive")
	}
	if c.Bluetooth.PollInterval <= 0 {
		errs = append(errs, "bluetooth.poll_interval must be positive")
	}
	if c.Bluetooth.MaxConcurrentOperations < 0 {
		errs = append(errs, "bluetooth.max_concurrent_operations must not be negative")
	}
	if c.Bluetooth.Simulated.FailRate < 0 || c.Bluetooth.Simulated.FailRate > 1 {
		errs = append(errs, "bluetooth.simulated.fail_rate must be between 0 and 1")
	}

	// Tray validation
	if c.Tray.MaxDevices < 1 {
		errs = append(errs, "tray.max_devices must be at least 1")
	}

	// Database validation
	if c.History.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when history is enabled")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Logging validation
	switch strings.ToLower(c.Logging.Output) {
	case "stdout", "stderr", "":
	case "file":
		if c.Logging.File == "" {
			errs = append(errs, "logging.file is required when logging.output is \"file\"")
		}
	default:
		errs = append(errs, "logging.output must be stdout, stderr or file")
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

// HistoryRetention returns the history retention window as a Duration.
func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.History.RetentionDays) * 24 * time.Hour
}
