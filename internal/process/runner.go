package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

const (
	// defaultTimeout bounds a command when Config.Timeout is zero.
	defaultTimeout = 2 * time.Minute

	// defaultGracefulTimeout is how long to wait after SIGTERM before SIGKILL.
	defaultGracefulTimeout = 5 * time.Second

	// maxOutput bounds captured stdout/stderr. Further output is discarded.
	maxOutput = 16 * 1024
)

// Config describes one command invocation.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Binary is the path to the executable.
	Binary string

	// Args are command-line arguments to pass to the binary.
	Args []string

	// Env are additional environment variables (key=value format).
	// If nil, inherits from parent process.
	Env []string

	// WorkDir is the working directory for the process.
	// If empty, inherits from parent process.
	WorkDir string

	// Timeout bounds the whole run. Defaults to 2 minutes.
	Timeout time.Duration

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration
}

// FromArgv builds a Config from an argv slice as found in configuration
// files: the first element is the binary, the rest are arguments.
func FromArgv(name string, argv []string) Config {
	cfg := Config{Name: name}
	if len(argv) > 0 {
		cfg.Binary = argv[0]
		cfg.Args = append([]string(nil), argv[1:]...)
	}
	return cfg
}

// Result describes a finished command.
type Result struct {
	ExitCode int
	Output   []byte
	Duration time.Duration

	// Truncated is set when output beyond the capture limit was discarded.
	Truncated bool
}

// Logger defines the logging interface for the runner.
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

// Runner executes commands one at a time to completion.
type Runner struct {
	logger Logger
}

// NewRunner creates a Runner with a no-op logger.
func NewRunner() *Runner {
	return &Runner{logger: noopLogger{}}
}

// SetLogger sets the logger for the runner.
func (r *Runner) SetLogger(logger Logger) {
	r.logger = logger
}

// Run starts the command and waits for it to exit.
//
// Parameters:
//   - ctx: Cancelling ctx terminates the command like a timeout
//   - cfg: Command description
//
// Returns:
//   - Result: exit code, captured output and duration (also on failure)
//   - error: ErrEmptyCommand, ErrStartFailed, ErrTimeout, *ExitError, or ctx.Err()
func (r *Runner) Run(ctx context.Context, cfg Config) (Result, error) {
	if cfg.Binary == "" {
		return Result{}, ErrEmptyCommand
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Binary
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}

	cmd := exec.Command(cfg.Binary, cfg.Args...) //nolint:gosec // binary comes from the operator's config file

	// Create a new process group so we can signal all children on timeout
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if cfg.Env != nil {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	if cfg.WorkDir != "" {
		cmd.Dir = cfg.WorkDir
	}

	out := &boundedBuffer{limit: maxOutput}
	cmd.Stdout = out
	cmd.Stderr = out

	r.logger.Info("running command",
		"name", cfg.Name,
		"binary", cfg.Binary,
		"args", cfg.Args,
	)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("%w: %s: %w", ErrStartFailed, cfg.Name, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	timer := time.NewTimer(cfg.Timeout)
	defer timer.Stop()

	var (
		waitErr  error
		abortErr error
	)
	select {
	case waitErr = <-done:
	case <-timer.C:
		abortErr = ErrTimeout
		waitErr = r.terminate(cmd.Process.Pid, cfg, done)
	case <-ctx.Done():
		abortErr = ctx.Err()
		waitErr = r.terminate(cmd.Process.Pid, cfg, done)
	}

	res := Result{
		ExitCode:  exitCode(cmd, waitErr),
		Output:    out.Bytes(),
		Duration:  time.Since(start),
		Truncated: out.Truncated(),
	}

	r.logger.Debug("command output",
		"name", cfg.Name,
		"output", string(res.Output),
		"truncated", res.Truncated,
	)

	if abortErr != nil {
		r.logger.Warn("command aborted",
			"name", cfg.Name,
			"duration", res.Duration,
			"error", abortErr,
		)
		if errors.Is(abortErr, ErrTimeout) {
			return res, fmt.Errorf("%w: %s after %s", ErrTimeout, cfg.Name, cfg.Timeout)
		}
		return res, abortErr
	}

	if res.ExitCode != 0 {
		r.logger.Warn("command failed",
			"name", cfg.Name,
			"exit_code", res.ExitCode,
			"duration", res.Duration,
		)
		return res, &ExitError{Name: cfg.Name, Code: res.ExitCode}
	}

	r.logger.Info("command finished",
		"name", cfg.Name,
		"duration", res.Duration,
	)
	return res, nil
}

// terminate sends SIGTERM to the process group, escalating to SIGKILL
// after the graceful timeout, and returns the Wait error.
func (r *Runner) terminate(pid int, cfg Config, done <-chan error) error {
	r.logger.Info("terminating command", "name", cfg.Name, "pid", pid)

	// Use negative PID to signal the process group (created via Setpgid)
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		r.logger.Warn("failed to send SIGTERM to process group", "name", cfg.Name, "error", err)
	}

	select {
	case err := <-done:
		return err
	case <-time.After(cfg.GracefulTimeout):
		r.logger.Warn("graceful shutdown timeout, sending SIGKILL",
			"name", cfg.Name,
			"timeout", cfg.GracefulTimeout,
		)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		r.logger.Error("failed to kill process group", "name", cfg.Name, "error", err)
	}
	return <-done
}

// exitCode extracts the exit status. -1 means killed by a signal.
func exitCode(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if waitErr != nil {
		return -1
	}
	return 0
}

// boundedBuffer is an io.Writer that keeps at most limit bytes.
// exec copies stdout and stderr from separate goroutines when they are
// not *os.File, so writes are serialised.
type boundedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	room := b.limit - b.buf.Len()
	if room <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *boundedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

func (b *boundedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}
