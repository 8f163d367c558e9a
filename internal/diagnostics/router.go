package diagnostics

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-node/internal/node"
	"github.com/nerrad567/gray-logic-node/internal/settings"
)

const (
	// checkTimeout bounds each dependency check on /healthz.
	checkTimeout = 2 * time.Second

	defaultAttemptLimit = 20
	maxAttemptLimit     = 200
)

// buildRouter creates the router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/info", s.handleInfo)
	r.Get("/settings", s.handleSettings)
	r.Get("/updates", s.handleUpdates)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "diagnostics endpoints are read-only")
	})

	return r
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status    string            `json:"status"`
	DeviceID  string            `json:"device_id"`
	Version   string            `json:"version"`
	Connected bool              `json:"connected"`
	Updating  bool              `json:"updating"`
	Halted    bool              `json:"halted"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// handleHealth reports "ok" when every dependency check passes, otherwise
// "degraded" with 503. A disconnected session alone is not degraded; the
// node reconnects on its own.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		DeviceID:  s.identity.DeviceID,
		Version:   s.identity.Version,
		Connected: s.session.Connected(),
		Updating:  s.session.Updating(),
		Halted:    s.session.Halted(),
	}

	if len(s.checks) > 0 {
		resp.Checks = make(map[string]string, len(s.checks))
		names := make([]string, 0, len(s.checks))
		for name := range s.checks {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			err := s.checks[name].HealthCheck(ctx)
			cancel()
			if err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// handleInfo returns the info record with the live session status.
func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	rec := node.BuildInfoRecord(s.identity, s.system)
	switch {
	case s.session.Updating():
		rec.Status = node.StatusUpdating
	case !s.session.Connected():
		rec.Status = node.StatusOffline
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeUnavailable(w, "settings store not configured")
		return
	}
	all, err := s.store.All(r.Context())
	if err != nil {
		s.logger.Error("listing settings failed", "error", err)
		writeInternalError(w, "failed to list settings")
		return
	}
	if all == nil {
		all = []settings.Setting{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"settings": all,
		"count":    len(all),
	})
}

func (s *Server) handleUpdates(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeUnavailable(w, "settings store not configured")
		return
	}

	limit := defaultAttemptLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxAttemptLimit {
			writeBadRequest(w, "limit must be between 1 and "+strconv.Itoa(maxAttemptLimit))
			return
		}
		limit = n
	}

	attempts, err := s.store.Attempts(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing update attempts failed", "error", err)
		writeInternalError(w, "failed to list update attempts")
		return
	}
	if attempts == nil {
		attempts = []settings.Attempt{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"attempts": attempts,
		"count":    len(attempts),
	})
}
