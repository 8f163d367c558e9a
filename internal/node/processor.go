package node

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Deps are the collaborators shared by the Session and Processor.
type Deps struct {
	Identity  Identity
	Config    Config
	Transport Transport
	Updater   Updater
	System    SystemInfo
	Restarter Restarter

	// Hooks defaults to NopHooks.
	Hooks Hooks

	// Logger defaults to a no-op logger.
	Logger Logger

	// Sleep defaults to time.Sleep. Tests substitute a recorder.
	Sleep func(time.Duration)

	// Context is the parent of each update's download context.
	// Defaults to context.Background().
	Context context.Context
}

func (d Deps) validate() error {
	if d.Identity.DeviceID == "" {
		return fmt.Errorf("%w: device id is empty", ErrInvalidIdentity)
	}
	switch {
	case d.Transport == nil:
		return fmt.Errorf("%w: transport", ErrMissingDependency)
	case d.Updater == nil:
		return fmt.Errorf("%w: updater", ErrMissingDependency)
	case d.System == nil:
		return fmt.Errorf("%w: system info", ErrMissingDependency)
	case d.Restarter == nil:
		return fmt.Errorf("%w: restarter", ErrMissingDependency)
	}
	switch d.Config.UpdateSource {
	case "", UpdateSourceAuto, UpdateSourceVersion, UpdateSourceURL:
	default:
		return fmt.Errorf("%w: unknown update source %q", ErrInvalidConfig, d.Config.UpdateSource)
	}
	switch d.Config.UpdateMode {
	case "", UpdateModeDisconnect, UpdateModeConnected:
	default:
		return fmt.Errorf("%w: unknown update mode %q", ErrInvalidConfig, d.Config.UpdateMode)
	}
	return nil
}

// Processor interprets inbound messages and performs the resulting
// side effects. It is not safe for concurrent use; the Session calls it
// from the tick goroutine only.
type Processor struct {
	id        Identity
	cfg       Config
	topics    topics
	transport Transport
	updater   Updater
	system    SystemInfo
	restarter Restarter
	hooks     Hooks
	logger    Logger
	sleep     func(time.Duration)
	ctx       context.Context

	// Written only by the tick goroutine; atomic so diagnostics can read them.
	updating atomic.Bool
	halted   atomic.Bool
}

// NewProcessor creates a Processor from deps.
//
// Returns:
//   - *Processor: ready to handle messages
//   - error: ErrInvalidIdentity or ErrMissingDependency
func NewProcessor(deps Deps) (*Processor, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg := deps.Config.withDefaults()

	p := &Processor{
		id:        deps.Identity,
		cfg:       cfg,
		topics:    newTopics(cfg, deps.Identity.DeviceID),
		transport: deps.Transport,
		updater:   deps.Updater,
		system:    deps.System,
		restarter: deps.Restarter,
		hooks:     deps.Hooks,
		logger:    deps.Logger,
		sleep:     deps.Sleep,
		ctx:       deps.Context,
	}
	if p.hooks == nil {
		p.hooks = NopHooks{}
	}
	if p.logger == nil {
		p.logger = noopLogger{}
	}
	if p.sleep == nil {
		p.sleep = time.Sleep
	}
	if p.ctx == nil {
		p.ctx = context.Background()
	}
	return p, nil
}

// Halted reports whether a restart has been requested. Once halted the
// processor ignores every message.
func (p *Processor) Halted() bool {
	return p.halted.Load()
}

// Updating reports whether an update is in progress.
func (p *Processor) Updating() bool {
	return p.updating.Load()
}

// HandleMessage routes one inbound message. Command-topic messages are
// parsed and executed; every other topic goes to Hooks.OnMessage.
// Errors never escape: they are logged and the message is dropped.
func (p *Processor) HandleMessage(topic string, payload []byte) {
	if p.halted.Load() {
		return
	}
	if topic != p.topics.command {
		p.hooks.OnMessage(topic, payload)
		return
	}

	cmd, err := ParseCommand(payload)
	if err != nil {
		p.logger.Debug("dropping command", "topic", topic, "error", err)
		return
	}

	switch cmd.Action {
	case ActionUpdate:
		p.handleUpdate(cmd)
	case ActionDelete:
		p.handleDelete()
	case ActionInfo:
		p.handleInfo()
	default:
		p.logger.Debug("ignoring unknown action", "action", cmd.Raw)
	}
}

// handleDelete clears the retained status, disconnects, fires the erase
// hook and requests a restart. Nothing is processed afterwards.
func (p *Processor) handleDelete() {
	p.logger.Info("erase requested", "device_id", p.id.DeviceID)

	if err := p.transport.Publish(p.topics.status, ClearPayload(), true); err != nil {
		p.logger.Warn("clearing status record failed", "error", err)
	}
	p.sleep(p.cfg.EraseDelay)
	p.transport.Disconnect()
	p.hooks.OnErase()
	p.restart()
}

// handleInfo publishes a telemetry snapshot on the info topic.
func (p *Processor) handleInfo() {
	rec := BuildInfoRecord(p.id, p.system)
	if err := p.transport.Publish(p.topics.info, InfoPayload(rec), false); err != nil {
		p.logger.Warn("publishing info failed", "error", err)
		return
	}
	p.logger.Debug("info published", "topic", p.topics.info)
}

// restart halts the processor and asks the platform to restart.
func (p *Processor) restart() {
	p.halted.Store(true)
	p.logger.Info("restarting device")
	p.restarter.Restart()
}

func (p *Processor) publishStatus(status Status) {
	if err := p.transport.Publish(p.topics.status, StatusPayload(p.id, status), true); err != nil {
		p.logger.Warn("publishing status failed", "status", status, "error", err)
	}
}
