package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang for a node that owns its own session
// lifecycle.
//
// Unlike a long-running service client, Client never reconnects on its
// own: the caller decides when to Connect, and received messages are
// not dispatched on paho's goroutines but queued in a bounded inbox
// that the caller empties with Drain from its own loop.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Messages are only ever handed to the caller from within Drain.
type Client struct {
	cfg config.MQTTConfig

	// client is nil until the first Connect and replaced on every Connect.
	client   pahomqtt.Client
	clientMu sync.RWMutex

	// inbox buffers received messages between Drain calls.
	inbox   chan Message
	dropped atomic.Uint64

	// newClient builds the underlying paho client. Replaced in tests.
	newClient func(*pahomqtt.ClientOptions) pahomqtt.Client

	// logger for connection loss and inbox overflow (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Message is a received publish waiting in the inbox.
type Message struct {
	Topic   string
	Payload []byte
}

// Will describes the last-will message the broker publishes on the
// client's behalf if the connection drops without a clean disconnect.
type Will struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// ConnectOptions carries the per-handshake parameters.
type ConnectOptions struct {
	ClientID string
	Username string
	Password string

	// Will is registered atomically with the connection. Optional.
	Will *Will
}

// New creates a Client without connecting.
func New(cfg config.MQTTConfig) *Client {
	inboxSize := cfg.InboxSize
	if inboxSize <= 0 {
		inboxSize = defaultInboxSize
	}

	return &Client{
		cfg:       cfg,
		inbox:     make(chan Message, inboxSize),
		newClient: pahomqtt.NewClient,
	}
}

// Connect performs the MQTT handshake.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URL, TLS) and opts (client ID, auth)
//  2. Registers the last-will message, if any
//  3. Attempts the connection, bounded by defaultConnectTimeout
//
// Any previous session is closed first. Messages still in the inbox are
// kept. Connect blocks the caller for the duration of the handshake.
func (c *Client) Connect(opts ConnectOptions) error {
	if opts.ClientID == "" {
		return fmt.Errorf("%w: client ID is required", ErrConnectionFailed)
	}
	if opts.Will != nil {
		if err := validatePublishTopic(opts.Will.Topic); err != nil {
			return fmt.Errorf("%w: will: %w", ErrConnectionFailed, err)
		}
		if opts.Will.QoS > maxQoS {
			return fmt.Errorf("%w: will: %w", ErrConnectionFailed, ErrInvalidQoS)
		}
	}

	pahoOpts := buildClientOptions(c.cfg, opts)
	pahoOpts.SetDefaultPublishHandler(c.enqueue)
	pahoOpts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT connection lost", "error", err)
		}
	})

	c.clientMu.Lock()
	defer c.clientMu.Unlock()

	if c.client != nil && c.client.IsConnectionOpen() {
		c.client.Disconnect(defaultDisconnectQuiesce)
	}

	client := c.newClient(pahoOpts)
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.client = client
	return nil
}

// Disconnect gracefully closes the session. The broker does not publish
// the last-will for a graceful disconnect. Safe to call when not connected.
func (c *Client) Disconnect() {
	c.clientMu.RLock()
	client := c.client
	c.clientMu.RUnlock()

	if client == nil || !client.IsConnectionOpen() {
		return
	}
	client.Disconnect(defaultDisconnectQuiesce)
}

// IsConnected reports whether the session is currently open.
func (c *Client) IsConnected() bool {
	c.clientMu.RLock()
	defer c.clientMu.RUnlock()
	return c.client != nil && c.client.IsConnectionOpen()
}

// HealthCheck verifies the MQTT session is open.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// Drain hands up to max queued messages to deliver, in arrival order,
// without blocking. It returns the number of messages delivered.
//
// Drain stops early when deliver returns false; the remaining messages
// stay queued. The inbox belongs to the Client, not to a session:
// messages left behind when a session closes are delivered by the first
// Drain after the next Connect.
func (c *Client) Drain(max int, deliver func(topic string, payload []byte) bool) int {
	n := 0
	for n < max {
		select {
		case msg := <-c.inbox:
			n++
			if !deliver(msg.Topic, msg.Payload) {
				return n
			}
		default:
			return n
		}
	}
	return n
}

// Pending returns the number of messages waiting in the inbox.
func (c *Client) Pending() int {
	return len(c.inbox)
}

// Dropped returns how many messages were discarded because the inbox was full.
func (c *Client) Dropped() uint64 {
	return c.dropped.Load()
}

// SetLogger sets a logger for connection loss and overflow warnings.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// enqueue is the paho publish handler. It runs on paho's goroutine and
// must never block, so a full inbox drops the message.
func (c *Client) enqueue(_ pahomqtt.Client, msg pahomqtt.Message) {
	payload := append([]byte(nil), msg.Payload()...)

	select {
	case c.inbox <- Message{Topic: msg.Topic(), Payload: payload}:
	default:
		c.dropped.Add(1)
		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT inbox full, message dropped",
				"topic", msg.Topic(),
				"capacity", cap(c.inbox),
			)
		}
	}
}
