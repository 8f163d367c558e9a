package platform

import (
	"errors"
	"fmt"
	"os"
)

// ExitCodeRestart is the process exit status used to request a restart
// from the supervisor.
const ExitCodeRestart = 3

// Restart modes.
const (
	ModeExit   = "exit"
	ModeReboot = "reboot"
)

// ErrUnknownMode is returned by New for an unrecognised mode.
var ErrUnknownMode = errors.New("platform: unknown restart mode")

// Logger defines the logging interface used by the restarter.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Restarter implements node.Restarter.
type Restarter struct {
	mode   string
	logger Logger

	// beforeRestart runs first, e.g. to close the database.
	beforeRestart func()

	exit   func(code int)
	reboot func() error
}

// New creates a Restarter for mode ("exit" or "reboot").
func New(mode string) (*Restarter, error) {
	switch mode {
	case ModeExit, ModeReboot:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	return &Restarter{
		mode:   mode,
		logger: noopLogger{},
		exit:   os.Exit,
		reboot: reboot,
	}, nil
}

// SetLogger sets the logger for the restarter.
func (r *Restarter) SetLogger(logger Logger) {
	r.logger = logger
}

// OnRestart registers fn to run immediately before the restart.
func (r *Restarter) OnRestart(fn func()) {
	r.beforeRestart = fn
}

// Mode returns the configured restart mode.
func (r *Restarter) Mode() string {
	return r.mode
}

// Restart restarts the node. It does not return in production.
func (r *Restarter) Restart() {
	r.logger.Info("restart requested", "mode", r.mode)
	if r.beforeRestart != nil {
		r.beforeRestart()
	}

	if r.mode == ModeReboot {
		if err := r.reboot(); err != nil {
			r.logger.Error("reboot failed, exiting instead", "error", err)
		} else {
			return
		}
	}
	r.exit(ExitCodeRestart)
}
