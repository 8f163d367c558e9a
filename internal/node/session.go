package node

import (
	"sync/atomic"
	"time"
)

// Session keeps the broker session alive and feeds inbound messages to
// the Processor. Tick is the only entry point that mutates state.
type Session struct {
	id        Identity
	cfg       Config
	topics    topics
	transport Transport
	hooks     Hooks
	logger    Logger
	processor *Processor

	attempted   bool
	lastAttempt time.Time

	// connected mirrors the last observed session state for readers on
	// other goroutines (diagnostics).
	connected atomic.Bool
}

// NewSession creates a Session driving processor over deps.Transport.
func NewSession(deps Deps, processor *Processor) (*Session, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if processor == nil {
		return nil, ErrMissingDependency
	}
	cfg := deps.Config.withDefaults()

	s := &Session{
		id:        deps.Identity,
		cfg:       cfg,
		topics:    newTopics(cfg, deps.Identity.DeviceID),
		transport: deps.Transport,
		hooks:     deps.Hooks,
		logger:    deps.Logger,
		processor: processor,
	}
	if s.hooks == nil {
		s.hooks = NopHooks{}
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	return s, nil
}

// New creates a Processor and the Session that drives it.
func New(deps Deps) (*Session, error) {
	p, err := NewProcessor(deps)
	if err != nil {
		return nil, err
	}
	return NewSession(deps, p)
}

// Processor returns the processor driven by this session.
func (s *Session) Processor() *Processor {
	return s.processor
}

// Connected reports whether the session is open. It turns false as soon
// as the transport closes, including the deliberate disconnect of an
// update or erase. Safe to call from any goroutine.
func (s *Session) Connected() bool {
	return s.connected.Load() && s.transport.IsConnected()
}

// Updating reports whether an update is in progress. Safe to call from
// any goroutine.
func (s *Session) Updating() bool {
	return s.processor.Updating()
}

// Halted reports whether a restart has been requested. Safe to call from
// any goroutine.
func (s *Session) Halted() bool {
	return s.processor.Halted()
}

// StatusTopic returns the retained status topic of this device.
func (s *Session) StatusTopic() string {
	return s.topics.status
}

// CommandTopic returns the command topic of this device.
func (s *Session) CommandTopic() string {
	return s.topics.command
}

// Tick advances the session by one step.
//
// Connected: drains up to MaxDrain queued messages into the processor,
// stopping early once a message closes the session.
// Disconnected: attempts the handshake if at least ReconnectInterval has
// passed since the previous attempt (the first attempt is immediate).
// Halted: does nothing.
func (s *Session) Tick(now time.Time) {
	if s.processor.Halted() {
		return
	}

	if s.transport.IsConnected() {
		s.connected.Store(true)
		s.transport.Drain(s.cfg.MaxDrain, s.deliver)
		return
	}

	if s.connected.Swap(false) {
		s.logger.Warn("broker session lost", "device_id", s.id.DeviceID)
	}

	if s.attempted && now.Sub(s.lastAttempt) < s.cfg.ReconnectInterval {
		return
	}
	s.attempted = true
	s.lastAttempt = now
	s.connect()
}

// deliver hands one message to the processor and reports whether the
// drain may continue. A command that closed the session or halted the
// node leaves the rest of the batch queued.
func (s *Session) deliver(topic string, payload []byte) bool {
	s.processor.HandleMessage(topic, payload)
	return s.transport.IsConnected() && !s.processor.Halted()
}

// connect performs the handshake: connect with the offline will, publish
// online (retained), subscribe to the command topic, fire OnConnect.
func (s *Session) connect() {
	opts := ConnectOptions{
		ClientID: s.cfg.ClientIDPrefix + s.id.DeviceID,
		Username: s.cfg.Username,
		Password: s.cfg.Password,
		Will: Will{
			Topic:    s.topics.status,
			Payload:  StatusPayload(s.id, StatusOffline),
			Retained: true,
		},
	}

	if err := s.transport.Connect(opts); err != nil {
		s.logger.Warn("broker connect failed",
			"client_id", opts.ClientID,
			"retry_in", s.cfg.ReconnectInterval,
			"error", err,
		)
		return
	}

	if err := s.transport.Publish(s.topics.status, StatusPayload(s.id, StatusOnline), true); err != nil {
		s.logger.Warn("publishing online status failed", "error", err)
	}
	if err := s.transport.Subscribe(s.topics.command); err != nil {
		s.logger.Warn("subscribing to command topic failed", "topic", s.topics.command, "error", err)
	}

	s.connected.Store(true)
	s.logger.Info("broker session established", "client_id", opts.ClientID, "command_topic", s.topics.command)
	s.hooks.OnConnect()
}
