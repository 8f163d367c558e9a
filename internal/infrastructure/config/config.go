package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for a Gray Logic node.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device      DeviceConfig      `yaml:"device"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Topics      TopicsConfig      `yaml:"topics"`
	Update      UpdateConfig      `yaml:"update"`
	Node        NodeConfig        `yaml:"node"`
	Database    DatabaseConfig    `yaml:"database"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// DeviceConfig identifies this node on the broker.
type DeviceConfig struct {
	ID string `yaml:"id"`

	// Version overrides the build version reported in status records.
	// Leave empty to report the version baked in at build time.
	Version string `yaml:"version"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker MQTTBrokerConfig `yaml:"broker"`
	Auth   MQTTAuthConfig   `yaml:"auth"`
	QoS    int              `yaml:"qos"`

	// InboxSize bounds the number of received messages queued between ticks.
	InboxSize int `yaml:"inbox_size"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	TLS  bool   `yaml:"tls"`

	// ClientIDPrefix is prepended to the device ID to form the MQTT client ID.
	ClientIDPrefix string `yaml:"client_id_prefix"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// TopicsConfig holds the per-channel topic prefixes. The device ID is
// appended to each prefix to form the full topic.
type TopicsConfig struct {
	Status  string `yaml:"status"`
	Command string `yaml:"command"`
	Info    string `yaml:"info"`
}

// UpdateConfig contains firmware update settings.
type UpdateConfig struct {
	// Server is the host[:port] of the update server used to build
	// download URLs from a version identifier.
	Server string `yaml:"server"`

	// Source selects how the download location is resolved: "version",
	// "url" or "auto" (url when present, version otherwise).
	Source string `yaml:"source"`

	// Mode is "disconnect" (close the session before flashing) or
	// "connected" (flash with the session open).
	Mode string `yaml:"mode"`

	// SettleDelayMS is the pause after closing the session in disconnect mode.
	SettleDelayMS int `yaml:"settle_delay_ms"`

	// RestartOnSuccess restarts the device after a successful update.
	RestartOnSuccess bool `yaml:"restart_on_success"`

	// Timeout bounds a single download (seconds).
	Timeout int `yaml:"timeout"`

	// ImagePath is where the downloaded image is installed.
	ImagePath string `yaml:"image_path"`

	// ApplyCommand runs after the image is installed, e.g. to flip a boot slot.
	ApplyCommand []string `yaml:"apply_command"`
}

// NodeConfig contains session loop settings.
type NodeConfig struct {
	TickIntervalMS      int `yaml:"tick_interval_ms"`
	ReconnectIntervalMS int `yaml:"reconnect_interval_ms"`
	MaxDrain            int `yaml:"max_drain"`
	EraseDelayMS        int `yaml:"erase_delay_ms"`

	// RestartMode is "exit" (leave restart to the supervisor) or "reboot".
	RestartMode string `yaml:"restart_mode"`

	// Interface is the network interface reported by the info command.
	Interface string `yaml:"interface"`

	// EraseCommand runs after persisted settings are wiped on a factory erase.
	EraseCommand []string `yaml:"erase_command"`
}

// DatabaseConfig contains SQLite settings for the persisted node settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
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

// DiagnosticsConfig contains the local diagnostics HTTP endpoint settings.
type DiagnosticsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Update source and mode values.
const (
	UpdateSourceAuto    = "auto"
	UpdateSourceVersion = "version"
	UpdateSourceURL     = "url"

	UpdateModeDisconnect = "disconnect"
	UpdateModeConnected  = "connected"

	RestartModeExit   = "exit"
	RestartModeReboot = "reboot"
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_NODE_SECTION_KEY
// For example: GRAYLOGIC_NODE_DEVICE_ID, GRAYLOGIC_NODE_MQTT_HOST
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
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:           "localhost",
				Port:           1883,
				ClientIDPrefix: "ESPClient-",
			},
			QoS:       1,
			InboxSize: 64,
		},
		Topics: TopicsConfig{
			Status:  "device/status",
			Command: "device/command",
			Info:    "device/info",
		},
		Update: UpdateConfig{
			Source:           UpdateSourceAuto,
			Mode:             UpdateModeDisconnect,
			SettleDelayMS:    100,
			RestartOnSuccess: true,
			Timeout:          300,
			ImagePath:        "./data/firmware.bin",
		},
		Node: NodeConfig{
			TickIntervalMS:      100,
			ReconnectIntervalMS: 5000,
			MaxDrain:            16,
			EraseDelayMS:        500,
			RestartMode:         RestartModeExit,
			Interface:           "wlan0",
		},
		Database: DatabaseConfig{
			Path:        "./data/node.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Diagnostics: DiagnosticsConfig{
			Host: "127.0.0.1",
			Port: 8081,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_NODE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Device
	if v := os.Getenv("GRAYLOGIC_NODE_DEVICE_ID"); v != "" {
		cfg.Device.ID = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_NODE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_NODE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("GRAYLOGIC_NODE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_NODE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Update
	if v := os.Getenv("GRAYLOGIC_NODE_UPDATE_SERVER"); v != "" {
		cfg.Update.Server = v
	}

	// Database
	if v := os.Getenv("GRAYLOGIC_NODE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_NODE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Device.ID == "" {
		errs = append(errs, "device.id is required (set GRAYLOGIC_NODE_DEVICE_ID environment variable)")
	} else if strings.ContainsAny(c.Device.ID, "/+#") {
		errs = append(errs, "device.id must not contain MQTT topic separators or wildcards")
	}

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.InboxSize < 1 {
		errs = append(errs, "mqtt.inbox_size must be positive")
	}

	if c.Topics.Status == "" || c.Topics.Command == "" || c.Topics.Info == "" {
		errs = append(errs, "topics.status, topics.command and topics.info are required")
	}

	switch c.Update.Source {
	case UpdateSourceAuto, UpdateSourceVersion, UpdateSourceURL:
	default:
		errs = append(errs, "update.source must be auto, version, or url")
	}
	switch c.Update.Mode {
	case UpdateModeDisconnect, UpdateModeConnected:
	default:
		errs = append(errs, "update.mode must be disconnect or connected")
	}
	if c.Update.Source == UpdateSourceVersion && c.Update.Server == "" {
		errs = append(errs, "update.server is required when update.source is version")
	}
	if c.Update.ImagePath == "" {
		errs = append(errs, "update.image_path is required")
	}

	if c.Node.TickIntervalMS < 1 {
		errs = append(errs, "node.tick_interval_ms must be positive")
	}
	if c.Node.ReconnectIntervalMS < 1 {
		errs = append(errs, "node.reconnect_interval_ms must be positive")
	}
	if c.Node.MaxDrain < 1 {
		errs = append(errs, "node.max_drain must be positive")
	}
	switch c.Node.RestartMode {
	case RestartModeExit, RestartModeReboot:
	default:
		errs = append(errs, "node.restart_mode must be exit or reboot")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.Diagnostics.Enabled && (c.Diagnostics.Port < 1 || c.Diagnostics.Port > 65535) {
		errs = append(errs, "diagnostics.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetTickInterval returns the session loop tick interval.
func (c *Config) GetTickInterval() time.Duration {
	return time.Duration(c.Node.TickIntervalMS) * time.Millisecond
}

// GetReconnectInterval returns the fixed reconnect interval.
func (c *Config) GetReconnectInterval() time.Duration {
	return time.Duration(c.Node.ReconnectIntervalMS) * time.Millisecond
}

// GetEraseDelay returns the pause between clearing the status record and disconnecting.
func (c *Config) GetEraseDelay() time.Duration {
	return time.Duration(c.Node.EraseDelayMS) * time.Millisecond
}

// GetSettleDelay returns the pause after closing the session before flashing.
func (c *Config) GetSettleDelay() time.Duration {
	return time.Duration(c.Update.SettleDelayMS) * time.Millisecond
}

// GetUpdateTimeout returns the download timeout for a single update.
func (c *Config) GetUpdateTimeout() time.Duration {
	return time.Duration(c.Update.Timeout) * time.Second
}
