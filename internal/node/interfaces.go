package node

import (
	"context"
	"time"
)

// Transport is the broker session the node drives.
// The infrastructure MQTT client satisfies it through a small adapter in main.
type Transport interface {
	// Connect performs the handshake, registering the last-will atomically.
	Connect(opts ConnectOptions) error

	// IsConnected reports whether the session is open. It must be safe to
	// call from any goroutine.
	IsConnected() bool

	// Publish sends payload to topic with the transport's default QoS.
	Publish(topic string, payload []byte, retained bool) error

	// Subscribe asks the broker to deliver messages for topic.
	Subscribe(topic string) error

	// Drain delivers up to max queued inbound messages without blocking
	// and returns how many were delivered. It stops as soon as deliver
	// returns false and leaves the rest queued.
	Drain(max int, deliver func(topic string, payload []byte) bool) int

	// Disconnect closes the session gracefully (no last-will).
	Disconnect()
}

// ConnectOptions are the handshake parameters.
type ConnectOptions struct {
	ClientID string
	Username string
	Password string
	Will     Will
}

// Will is the last-will message registered with a handshake.
type Will struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// ProgressFunc receives download progress in bytes. total is -1 when unknown.
type ProgressFunc func(current, total int64)

// Updater fetches and applies a firmware image. Update blocks until the
// image is applied or the attempt fails.
type Updater interface {
	Update(ctx context.Context, url string, progress ProgressFunc) Outcome
}

// SystemInfo answers the system queries behind the info command.
type SystemInfo interface {
	MAC() string
	IP() string
	Uptime() time.Duration
	SSID() string
	RSSI() int
	FreeMemory() uint64
}

// Restarter restarts the device. In production Restart does not return.
type Restarter interface {
	Restart()
}

// Logger defines the logging interface used by the node.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
