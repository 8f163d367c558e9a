package node

import "time"

// Identity is the immutable per-boot identity of the device.
type Identity struct {
	DeviceID string
	Version  string
}

// Status is the presence value carried by a status record.
type Status string

// Presence values.
const (
	StatusOnline   Status = "online"
	StatusOffline  Status = "offline"
	StatusUpdating Status = "updating"
)

// StatusRecord is the retained record published on the status topic.
type StatusRecord struct {
	DeviceID string `json:"deviceId"`
	Status   Status `json:"status"`
	Version  string `json:"version"`
}

// InfoRecord is the telemetry snapshot published in reply to an info command.
type InfoRecord struct {
	DeviceID   string `json:"deviceId"`
	MAC        string `json:"mac"`
	Status     Status `json:"status"`
	Version    string `json:"version"`
	IP         string `json:"ip"`
	Uptime     uint64 `json:"uptime"`
	SSID       string `json:"ssid"`
	RSSI       int    `json:"rssi"`
	FreeMemory uint64 `json:"freeMemory"`
}

// UpdateSource selects how an update command's download location is resolved.
type UpdateSource string

// Update sources.
const (
	// UpdateSourceAuto uses the url field when present, the version otherwise.
	UpdateSourceAuto UpdateSource = "auto"

	// UpdateSourceVersion builds the URL from the version and the update server.
	UpdateSourceVersion UpdateSource = "version"

	// UpdateSourceURL requires an explicit url field.
	UpdateSourceURL UpdateSource = "url"
)

// UpdateMode selects whether the session stays open while flashing.
type UpdateMode string

// Update modes.
const (
	// UpdateModeDisconnect closes the session before invoking the updater.
	UpdateModeDisconnect UpdateMode = "disconnect"

	// UpdateModeConnected flashes with the session open.
	UpdateModeConnected UpdateMode = "connected"
)

// Default values used by DefaultConfig.
const (
	DefaultStatusPrefix      = "device/status"
	DefaultCommandPrefix     = "device/command"
	DefaultInfoPrefix        = "device/info"
	DefaultClientIDPrefix    = "ESPClient-"
	DefaultReconnectInterval = 5 * time.Second
	DefaultMaxDrain          = 16
	DefaultSettleDelay       = 100 * time.Millisecond
	DefaultEraseDelay        = 500 * time.Millisecond
	DefaultUpdateTimeout     = 5 * time.Minute
)

// Config is the immutable configuration of the session and processor.
type Config struct {
	StatusPrefix  string
	CommandPrefix string
	InfoPrefix    string

	// ClientIDPrefix is prepended to the device ID to form the MQTT client ID.
	ClientIDPrefix string
	Username       string
	Password       string

	// UpdateServer is the host[:port] used to build version download URLs.
	UpdateServer string
	UpdateSource UpdateSource
	UpdateMode   UpdateMode

	// SettleDelay is the pause after closing the session in disconnect mode.
	SettleDelay time.Duration

	// EraseDelay is the pause between clearing the status record and disconnecting.
	EraseDelay time.Duration

	// UpdateTimeout bounds a single Updater.Update call.
	UpdateTimeout time.Duration

	// RestartOnUpdate requests a restart after a successful update.
	RestartOnUpdate bool

	// ReconnectInterval is the minimum spacing between connect attempts.
	ReconnectInterval time.Duration

	// MaxDrain bounds the number of inbound messages handled per tick.
	MaxDrain int
}

// DefaultConfig returns a Config with the default topic prefixes and timings.
func DefaultConfig() Config {
	return Config{
		StatusPrefix:      DefaultStatusPrefix,
		CommandPrefix:     DefaultCommandPrefix,
		InfoPrefix:        DefaultInfoPrefix,
		ClientIDPrefix:    DefaultClientIDPrefix,
		UpdateSource:      UpdateSourceAuto,
		UpdateMode:        UpdateModeDisconnect,
		SettleDelay:       DefaultSettleDelay,
		EraseDelay:        DefaultEraseDelay,
		UpdateTimeout:     DefaultUpdateTimeout,
		ReconnectInterval: DefaultReconnectInterval,
		MaxDrain:          DefaultMaxDrain,
	}
}

// withDefaults fills zero-valued fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.StatusPrefix == "" {
		c.StatusPrefix = d.StatusPrefix
	}
	if c.CommandPrefix == "" {
		c.CommandPrefix = d.CommandPrefix
	}
	if c.InfoPrefix == "" {
		c.InfoPrefix = d.InfoPrefix
	}
	if c.ClientIDPrefix == "" {
		c.ClientIDPrefix = d.ClientIDPrefix
	}
	if c.UpdateSource == "" {
		c.UpdateSource = d.UpdateSource
	}
	if c.UpdateMode == "" {
		c.UpdateMode = d.UpdateMode
	}
	if c.UpdateTimeout <= 0 {
		c.UpdateTimeout = d.UpdateTimeout
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = d.ReconnectInterval
	}
	if c.MaxDrain <= 0 {
		c.MaxDrain = d.MaxDrain
	}
	return c
}
