package agent

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-node/internal/node"
	"github.com/nerrad567/gray-logic-node/internal/process"
	"github.com/nerrad567/gray-logic-node/internal/settings"
)

const (
	// storeTimeout bounds each settings write made from a hook.
	storeTimeout = 2 * time.Second

	// eraseCommandTimeout bounds the erase command.
	eraseCommandTimeout = 30 * time.Second

	// progressLogStep is the percentage step between progress log lines.
	progressLogStep = 10
)

// Event names written to telemetry.
const (
	EventConnect        = "connect"
	EventErase          = "erase"
	EventUpdateBegin    = "update_begin"
	EventUpdateComplete = "update_complete"
	EventUpdateFailed   = "update_failed"
)

// EventRecorder receives telemetry. *influxdb.Client satisfies it.
type EventRecorder interface {
	WriteNodeEvent(deviceID, event string, fields map[string]any)
	WriteUpdateOutcome(deviceID, attemptID, result string, code int, duration time.Duration)
}

// CommandRunner runs the erase command. *process.Runner satisfies it.
type CommandRunner interface {
	Run(ctx context.Context, cfg process.Config) (process.Result, error)
}

// Logger defines the logging interface used by the agent.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures an Agent. Every collaborator is optional.
type Options struct {
	DeviceID string
	Version  string

	Logger Logger
	Store  settings.Store
	Events EventRecorder
	Runner CommandRunner

	// EraseCommand runs during OnErase when non-empty (argv form).
	EraseCommand []string
}

// Agent implements node.Hooks. Like the rest of the node core it is
// called from the tick goroutine only.
type Agent struct {
	deviceID     string
	version      string
	logger       Logger
	store        settings.Store
	events       EventRecorder
	runner       CommandRunner
	eraseCommand []string

	newID func() string
	now   func() time.Time

	attemptID       string
	attemptStart    time.Time
	attemptRecorded bool
	lastPercent     int
}

var _ node.Hooks = (*Agent)(nil)

// New creates an Agent.
func New(opts Options) *Agent {
	a := &Agent{
		deviceID:     opts.DeviceID,
		version:      opts.Version,
		logger:       opts.Logger,
		store:        opts.Store,
		events:       opts.Events,
		runner:       opts.Runner,
		eraseCommand: opts.EraseCommand,
		newID:        uuid.NewString,
		now:          time.Now,
	}
	if a.logger == nil {
		a.logger = noopLogger{}
	}
	if a.runner == nil {
		a.runner = process.NewRunner()
	}
	return a
}

// AttemptID returns the correlation id of the current or last update attempt.
func (a *Agent) AttemptID() string {
	return a.attemptID
}

// OnMessage logs an application message the node does not handle itself.
func (a *Agent) OnMessage(topic string, payload []byte) {
	a.logger.Debug("application message", "topic", topic, "bytes", len(payload))
}

// OnConnect records the session start.
func (a *Agent) OnConnect() {
	now := a.now()
	a.logger.Info("connected to broker", "device_id", a.deviceID, "version", a.version)
	a.record(EventConnect, map[string]any{"version": a.version})
	a.set(settings.KeyLastConnectAt, now.UTC().Format(time.RFC3339))
}

// OnErase wipes local state and runs the erase command.
func (a *Agent) OnErase() {
	a.logger.Warn("factory erase", "device_id", a.deviceID)
	a.record(EventErase, nil)

	if a.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		if err := a.store.Erase(ctx); err != nil {
			a.logger.Error("erasing settings failed", "error", err)
		}
		cancel()
	}

	if len(a.eraseCommand) == 0 {
		return
	}
	cfg := process.FromArgv("erase", a.eraseCommand)
	cfg.Timeout = eraseCommandTimeout
	cfg.Env = []string{"NODE_ID=" + a.deviceID}

	ctx, cancel := context.WithTimeout(context.Background(), eraseCommandTimeout)
	defer cancel()
	if _, err := a.runner.Run(ctx, cfg); err != nil {
		a.logger.Error("erase command failed", "error", err)
	}
}

// OnUpdateBegin opens a new update attempt.
func (a *Agent) OnUpdateBegin() {
	a.attemptID = a.newID()
	a.attemptStart = a.now()
	a.attemptRecorded = false
	a.lastPercent = -1

	a.logger.Info("update started", "attempt_id", a.attemptID)
	a.record(EventUpdateBegin, map[string]any{"attempt_id": a.attemptID})
}

// WrapUpdater returns an Updater that stores each attempt's URL under the
// correlation id created by OnUpdateBegin before delegating to u.
func (a *Agent) WrapUpdater(u node.Updater) node.Updater {
	return &trackingUpdater{agent: a, next: u}
}

type trackingUpdater struct {
	agent *Agent
	next  node.Updater
}

func (t *trackingUpdater) Update(ctx context.Context, url string, progress node.ProgressFunc) node.Outcome {
	t.agent.beginAttempt(ctx, url)
	return t.next.Update(ctx, url, progress)
}

func (a *Agent) beginAttempt(ctx context.Context, url string) {
	if a.store == nil || a.attemptID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := a.store.BeginAttempt(ctx, a.attemptID, url); err != nil {
		a.logger.Warn("recording update attempt failed", "error", err)
		return
	}
	a.attemptRecorded = true
}

// OnUpdateProgress logs download progress every ten percent, or every
// call when the total size is unknown.
func (a *Agent) OnUpdateProgress(current, total int64) {
	if total <= 0 {
		a.logger.Debug("update progress", "attempt_id", a.attemptID, "bytes", current)
		return
	}
	pct := int(current * 100 / total)
	if pct/progressLogStep == a.lastPercent/progressLogStep && a.lastPercent >= 0 {
		return
	}
	a.lastPercent = pct
	a.logger.Info("update progress", "attempt_id", a.attemptID, "percent", pct, "bytes", current, "total", total)
}

// OnUpdateComplete closes the attempt as successful.
func (a *Agent) OnUpdateComplete() {
	a.logger.Info("update complete", "attempt_id", a.attemptID)
	a.record(EventUpdateComplete, map[string]any{"attempt_id": a.attemptID})
	a.finish(node.ResultOK.String(), 0, "")
}

// OnUpdateFailed closes the attempt as failed or as "no updates".
func (a *Agent) OnUpdateFailed(code int, message string) {
	result := node.ResultFailed.String()
	if code == node.CodeNoUpdates {
		result = node.ResultNoUpdates.String()
		a.logger.Info("no updates available", "attempt_id", a.attemptID)
	} else {
		a.logger.Warn("update failed", "attempt_id", a.attemptID, "code", code, "message", message)
	}
	a.record(EventUpdateFailed, map[string]any{"attempt_id": a.attemptID, "code": code})
	a.finish(result, code, message)
}

func (a *Agent) finish(result string, code int, message string) {
	if a.events != nil {
		a.events.WriteUpdateOutcome(a.deviceID, a.attemptID, result, code, a.now().Sub(a.attemptStart))
	}
	if a.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if a.attemptRecorded {
		if err := a.store.FinishAttempt(ctx, a.attemptID, result, code, message); err != nil {
			a.logger.Warn("recording update outcome failed", "error", err)
		}
	}
	a.set(settings.KeyLastUpdateResult, result+" "+strconv.Itoa(code))
	a.set(settings.KeyLastUpdateAt, a.now().UTC().Format(time.RFC3339))
}

func (a *Agent) record(event string, fields map[string]any) {
	if a.events != nil {
		a.events.WriteNodeEvent(a.deviceID, event, fields)
	}
}

func (a *Agent) set(key, value string) {
	if a.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := a.store.Set(ctx, key, value); err != nil {
		a.logger.Warn("writing setting failed", "key", key, "error", err)
	}
}
