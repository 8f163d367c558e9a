package node

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Result classifies the outcome of an update attempt.
type Result int

// Update results.
const (
	ResultOK Result = iota
	ResultFailed
	ResultNoUpdates
)

// String returns the lowercase result name.
func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultFailed:
		return "failed"
	case ResultNoUpdates:
		return "no_updates"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// CodeNoUpdates is the code reported to OnUpdateFailed when the server
// has nothing newer to offer. Updater failure codes are negative.
const CodeNoUpdates = 0

// MessageNoUpdates is the message reported alongside CodeNoUpdates.
const MessageNoUpdates = "No updates available"

// Outcome is the result of one Updater.Update call.
type Outcome struct {
	Result  Result
	Code    int
	Message string
}

// OK returns a successful Outcome.
func OK() Outcome {
	return Outcome{Result: ResultOK}
}

// Failed returns a failed Outcome with the updater's error code and message.
func Failed(code int, message string) Outcome {
	return Outcome{Result: ResultFailed, Code: code, Message: message}
}

// NoUpdates returns the Outcome for "server has nothing newer".
func NoUpdates() Outcome {
	return Outcome{Result: ResultNoUpdates, Code: CodeNoUpdates, Message: MessageNoUpdates}
}

// VersionURL builds the download URL for a version on the update server.
//
// Example: VersionURL("updates.local:8080", "1.2.0") =
// "http://updates.local:8080/api/updates/1.2.0/download"
func VersionURL(server, version string) string {
	return "http://" + server + "/api/updates/" + url.PathEscape(version) + "/download"
}

// resolveUpdateURL picks the download location for cmd according to the
// configured update source.
func (p *Processor) resolveUpdateURL(cmd Command) (string, error) {
	byVersion := func() (string, error) {
		if cmd.Version == "" {
			return "", fmt.Errorf("%w: version is empty", ErrMissingUpdateTarget)
		}
		if p.cfg.UpdateServer == "" {
			return "", fmt.Errorf("%w: no update server configured", ErrMissingUpdateTarget)
		}
		return VersionURL(p.cfg.UpdateServer, cmd.Version), nil
	}
	byURL := func() (string, error) {
		if cmd.URL == "" {
			return "", fmt.Errorf("%w: url is empty", ErrMissingUpdateTarget)
		}
		u, err := url.Parse(cmd.URL)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrMissingUpdateTarget, err)
		}
		if scheme := strings.ToLower(u.Scheme); (scheme != "http" && scheme != "https") || u.Host == "" {
			return "", fmt.Errorf("%w: unsupported url %q", ErrMissingUpdateTarget, cmd.URL)
		}
		return cmd.URL, nil
	}

	switch p.cfg.UpdateSource {
	case UpdateSourceVersion:
		return byVersion()
	case UpdateSourceURL:
		return byURL()
	default:
		if cmd.URL != "" {
			return byURL()
		}
		return byVersion()
	}
}

// handleUpdate runs the update sequence: begin hook, "updating" status,
// optional disconnect, the blocking Updater call, then outcome dispatch.
func (p *Processor) handleUpdate(cmd Command) {
	target, err := p.resolveUpdateURL(cmd)
	if err != nil {
		p.logger.Debug("dropping update command", "error", err)
		return
	}
	if p.updating.Load() {
		p.logger.Warn("update already in progress, dropping command", "url", target)
		return
	}

	p.updating.Store(true)
	defer p.updating.Store(false)

	p.logger.Info("update starting", "url", target, "mode", p.cfg.UpdateMode)
	p.hooks.OnUpdateBegin()
	p.publishStatus(StatusUpdating)

	if p.cfg.UpdateMode == UpdateModeDisconnect {
		p.transport.Disconnect()
		p.sleep(p.cfg.SettleDelay)
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.UpdateTimeout)
	outcome := p.updater.Update(ctx, target, p.progress)
	cancel()

	switch outcome.Result {
	case ResultOK:
		p.logger.Info("update complete", "url", target)
		p.hooks.OnUpdateComplete()
		if p.cfg.RestartOnUpdate {
			p.restart()
			return
		}
	case ResultNoUpdates:
		p.logger.Info("no updates available", "url", target)
		p.hooks.OnUpdateFailed(CodeNoUpdates, MessageNoUpdates)
	default:
		p.logger.Warn("update failed", "url", target, "code", outcome.Code, "message", outcome.Message)
		p.hooks.OnUpdateFailed(outcome.Code, outcome.Message)
	}

	// Unless a restart was requested the retained record still says
	// "updating". Closing the session makes the next tick's handshake
	// republish "online".
	if p.cfg.UpdateMode == UpdateModeConnected {
		p.transport.Disconnect()
	}
}

// progress forwards download progress to the log and the progress hook.
func (p *Processor) progress(current, total int64) {
	p.logger.Debug("update progress", "current", current, "total", total)
	p.hooks.OnUpdateProgress(current, total)
}
