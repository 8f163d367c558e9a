package firmware

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/zeebo/blake3"

	"github.com/nerrad567/gray-logic-node/internal/node"
	"github.com/nerrad567/gray-logic-node/internal/process"
)

const (
	// progressStep is the minimum number of bytes between progress reports.
	progressStep = 64 * 1024

	// copyBufferSize is the read buffer used while streaming the image.
	copyBufferSize = 32 * 1024

	// defaultApplyTimeout bounds the apply command.
	defaultApplyTimeout = 2 * time.Minute
)

// Config holds updater settings.
type Config struct {
	// DeviceID and Version are sent with every request.
	DeviceID string
	Version  string

	// ImagePath is where the verified image is installed.
	ImagePath string

	// ApplyCommand is run after install when non-empty (argv form).
	ApplyCommand []string

	// ApplyTimeout bounds ApplyCommand. Defaults to 2 minutes.
	ApplyTimeout time.Duration
}

// CommandRunner runs the apply command. *process.Runner satisfies it.
type CommandRunner interface {
	Run(ctx context.Context, cfg process.Config) (process.Result, error)
}

// Logger defines the logging interface used by the updater.
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

// Updater downloads and installs firmware images. It implements node.Updater.
type Updater struct {
	cfg    Config
	client *http.Client
	runner CommandRunner
	logger Logger
}

// New creates an Updater using http.DefaultClient and a process.Runner.
func New(cfg Config) *Updater {
	if cfg.ApplyTimeout <= 0 {
		cfg.ApplyTimeout = defaultApplyTimeout
	}
	return &Updater{
		cfg:    cfg,
		client: http.DefaultClient,
		runner: process.NewRunner(),
		logger: noopLogger{},
	}
}

// SetHTTPClient replaces the HTTP client.
func (u *Updater) SetHTTPClient(c *http.Client) {
	u.client = c
}

// SetRunner replaces the apply command runner.
func (u *Updater) SetRunner(r CommandRunner) {
	u.runner = r
}

// SetLogger sets the logger for the updater.
func (u *Updater) SetLogger(logger Logger) {
	u.logger = logger
}

// Update fetches url, verifies and installs the image, then runs the
// apply command. It blocks until done or ctx expires.
func (u *Updater) Update(ctx context.Context, url string, progress node.ProgressFunc) node.Outcome {
	if progress == nil {
		progress = func(int64, int64) {}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return node.Failed(CodeConnectionFailed, fmt.Sprintf("building request: %v", err))
	}
	req.Header.Set(HeaderNodeID, u.cfg.DeviceID)
	req.Header.Set(HeaderNodeVersion, u.cfg.Version)
	req.Header.Set("User-Agent", "graylogic-node/"+u.cfg.Version)
	// Set explicitly so the transport leaves decoding to us.
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := u.client.Do(req)
	if err != nil {
		return u.transferFailure(ctx, err)
	}
	defer resp.Body.Close()

	if outcome, ok := classifyStatus(resp.StatusCode); !ok {
		u.logger.Info("update server declined", "url", url, "status", resp.StatusCode)
		return outcome
	}

	body := io.Reader(resp.Body)
	total := resp.ContentLength
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return node.Failed(CodeBadImage, fmt.Sprintf("gzip header: %v", err))
		}
		defer zr.Close()
		body = zr
		// Content-Length describes the compressed stream.
		total = -1
	}

	staged, digest, outcome, ok := u.stage(ctx, body, total, progress)
	if !ok {
		return outcome
	}

	if want := resp.Header.Get(HeaderImageDigest); want != "" {
		if !strings.EqualFold(strings.TrimSpace(want), digest) {
			os.Remove(staged)
			return node.Failed(CodeDigestMismatch, fmt.Sprintf("image digest %s does not match %s", digest, want))
		}
	}

	if err := os.Rename(staged, u.cfg.ImagePath); err != nil {
		os.Remove(staged)
		return node.Failed(CodeInstallFailed, fmt.Sprintf("installing image: %v", err))
	}
	u.logger.Info("firmware image installed", "path", u.cfg.ImagePath, "blake3", digest)

	if len(u.cfg.ApplyCommand) > 0 {
		if outcome, ok := u.apply(ctx, url); !ok {
			return outcome
		}
	}
	return node.OK()
}

// classifyStatus maps an HTTP status to an outcome. ok is true only for 200.
func classifyStatus(status int) (node.Outcome, bool) {
	switch status {
	case http.StatusOK:
		return node.Outcome{}, true
	case http.StatusNotModified:
		return node.NoUpdates(), false
	case http.StatusNotFound:
		return node.Failed(CodeFileNotFound, "Server file not found"), false
	case http.StatusUnauthorized, http.StatusForbidden:
		return node.Failed(CodeForbidden, "Server forbidden"), false
	default:
		return node.Failed(CodeWrongHTTPCode, fmt.Sprintf("Wrong HTTP code: %d", status)), false
	}
}

// stage streams body into a temporary file beside ImagePath and returns
// its path and hex blake3 digest.
func (u *Updater) stage(ctx context.Context, body io.Reader, total int64, progress node.ProgressFunc) (string, string, node.Outcome, bool) {
	dir := filepath.Dir(u.cfg.ImagePath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", "", node.Failed(CodeTooLessSpace, fmt.Sprintf("creating image directory: %v", err)), false
	}
	f, err := os.CreateTemp(dir, filepath.Base(u.cfg.ImagePath)+".*.part")
	if err != nil {
		return "", "", node.Failed(CodeTooLessSpace, fmt.Sprintf("creating staging file: %v", err)), false
	}
	staged := f.Name()
	fail := func(o node.Outcome) (string, string, node.Outcome, bool) {
		f.Close()
		os.Remove(staged)
		return "", "", o, false
	}

	hasher := blake3.New()
	w := &progressWriter{total: total, report: progress}
	n, err := copyImage(io.MultiWriter(f, hasher, w), body)
	if err != nil {
		var we *writeError
		if errors.As(err, &we) {
			return fail(node.Failed(CodeTooLessSpace, fmt.Sprintf("writing image: %v", we.err)))
		}
		if errors.Is(err, gzip.ErrChecksum) || errors.Is(err, gzip.ErrHeader) {
			return fail(node.Failed(CodeBadImage, fmt.Sprintf("decoding image: %v", err)))
		}
		return fail(u.transferFailure(ctx, err))
	}
	w.flush()

	switch {
	case n == 0:
		return fail(node.Failed(CodeBadImage, "empty image"))
	case total >= 0 && n != total:
		return fail(node.Failed(CodeBadImage, fmt.Sprintf("short image: got %d of %d bytes", n, total)))
	}

	if err := f.Sync(); err != nil {
		return fail(node.Failed(CodeTooLessSpace, fmt.Sprintf("syncing image: %v", err)))
	}
	if err := f.Close(); err != nil {
		os.Remove(staged)
		return "", "", node.Failed(CodeTooLessSpace, fmt.Sprintf("closing image: %v", err)), false
	}

	u.logger.Debug("firmware image staged", "path", staged, "bytes", n)
	return staged, hex.EncodeToString(hasher.Sum(nil)), node.Outcome{}, true
}

// apply runs the configured apply command against the installed image.
func (u *Updater) apply(ctx context.Context, url string) (node.Outcome, bool) {
	cfg := process.FromArgv("firmware-apply", u.cfg.ApplyCommand)
	cfg.Timeout = u.cfg.ApplyTimeout
	cfg.Env = []string{
		"NODE_IMAGE_PATH=" + u.cfg.ImagePath,
		"NODE_IMAGE_URL=" + url,
		"NODE_ID=" + u.cfg.DeviceID,
	}

	res, err := u.runner.Run(ctx, cfg)
	if err != nil {
		msg := err.Error()
		if out := strings.TrimSpace(string(res.Output)); out != "" {
			msg += ": " + lastLine(out)
		}
		return node.Failed(CodeApplyFailed, msg), false
	}
	return node.Outcome{}, true
}

// transferFailure classifies a network error.
func (u *Updater) transferFailure(ctx context.Context, err error) node.Outcome {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return node.Failed(CodeTimeout, "download timed out")
	}
	return node.Failed(CodeConnectionFailed, err.Error())
}

// writeError marks failures on the destination side of copyImage.
type writeError struct{ err error }

func (e *writeError) Error() string { return e.err.Error() }
func (e *writeError) Unwrap() error { return e.err }

// copyImage copies src to dst, tagging write-side errors so callers can
// tell a full disk from a broken download.
func copyImage(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, copyBufferSize)
	var n int64
	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			n += int64(nw)
			if werr != nil {
				return n, &writeError{err: werr}
			}
			if nw != nr {
				return n, &writeError{err: io.ErrShortWrite}
			}
		}
		if rerr == io.EOF {
			return n, nil
		}
		if rerr != nil {
			return n, rerr
		}
	}
}

// progressWriter counts bytes and reports every progressStep bytes.
type progressWriter struct {
	total    int64
	current  int64
	reported int64
	report   node.ProgressFunc
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.current += int64(len(p))
	if w.current-w.reported >= progressStep {
		w.flush()
	}
	return len(p), nil
}

// flush reports the current count if it has not been reported yet.
func (w *progressWriter) flush() {
	if w.current == w.reported {
		return
	}
	w.reported = w.current
	w.report(w.current, w.total)
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
