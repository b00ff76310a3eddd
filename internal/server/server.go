// Package server exposes the guard over a JSON HTTP API.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/0green7hand0/AI-PowerShell-sub002/internal/config"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/domain"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/guard"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/metrics"
	"github.com/0green7hand0/AI-PowerShell-sub002/internal/sandbox"
)

const maxBodySize = 1 << 20 // 1MB

// Trail is the part of the audit store the API reads from. Nil when
// auditing is disabled.
type Trail interface {
	Tail(ctx context.Context, limit int) ([]domain.AuditEvent, error)
	ByCorrelation(ctx context.Context, correlationID string) ([]domain.AuditEvent, error)
}

type Server struct {
	cfg     config.ServerConfig
	guard   *guard.Guard
	trail   Trail
	logger  *slog.Logger
	limiter *RateLimiter
	metrics bool
	version string
	server  *http.Server
}

type Options struct {
	Config  config.ServerConfig
	Guard   *guard.Guard
	Trail   Trail
	Logger  *slog.Logger
	Metrics bool
	Version string
}

func New(opts Options) *Server {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	return &Server{
		cfg:     opts.Config,
		guard:   opts.Guard,
		trail:   opts.Trail,
		logger:  opts.Logger,
		limiter: NewRateLimiter(opts.Config.ExecutePerMinute, float64(opts.Config.ExecutePerMinute)),
		metrics: opts.Metrics,
		version: opts.Version,
	}
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics {
		mux.HandleFunc("GET /metrics", metrics.Collector.Handler())
	}

	mux.HandleFunc("POST /v1/validate", s.requireKey(s.handleValidate))
	mux.HandleFunc("POST /v1/scan", s.requireKey(s.handleScan))
	mux.HandleFunc("POST /v1/execute", s.requireKey(s.handleExecute))
	mux.HandleFunc("POST /v1/confirm", s.requireKey(s.handleConfirm))
	mux.HandleFunc("POST /v1/deny", s.requireKey(s.handleDeny))
	mux.HandleFunc("GET /v1/executions/{id}", s.requireKey(s.handleExecutionStatus))
	mux.HandleFunc("POST /v1/executions/{id}/cancel", s.requireKey(s.handleExecutionCancel))
	mux.HandleFunc("GET /v1/executions/{id}/stream", s.requireKey(s.handleExecutionStream))
	mux.HandleFunc("GET /v1/rules", s.requireKey(s.handleRules))
	mux.HandleFunc("GET /v1/audit", s.requireKey(s.handleAudit))

	return mux
}

// Start serves until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("api server starting", "addr", "http://"+addr, "auth", s.cfg.APIKey != "")

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// requireKey guards a handler with the configured API key. Both the
// X-API-Key header and a bearer token are accepted.
func (s *Server) requireKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey == "" {
			next(w, r)
			return
		}
		key := r.Header.Get("X-API-Key")
		if key == "" {
			if auth := r.Header.Get("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
				key = auth[7:]
			}
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.APIKey)) != 1 {
			writeError(w, http.StatusUnauthorized, errors.New("invalid api key"))
			return
		}
		next(w, r)
	}
}

// --- Request shapes ---

type commandContext struct {
	UserRole         string    `json:"user_role,omitempty"`
	WorkingDirectory string    `json:"working_directory,omitempty"`
	Timestamp        time.Time `json:"timestamp,omitzero"`
}

func (c *commandContext) toDomain() *domain.CommandContext {
	if c == nil {
		return &domain.CommandContext{Timestamp: time.Now()}
	}
	ts := c.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return &domain.CommandContext{
		UserRole:         c.UserRole,
		WorkingDirectory: c.WorkingDirectory,
		Timestamp:        ts,
	}
}

type validateRequest struct {
	Command string          `json:"command"`
	Context *commandContext `json:"context,omitempty"`
}

type scanRequest struct {
	Script string `json:"script"`
}

type executeRequest struct {
	Command        string          `json:"command"`
	Context        *commandContext `json:"context,omitempty"`
	TimeoutSeconds int             `json:"timeout_seconds,omitempty"`
	NoWait         bool            `json:"no_wait,omitempty"`
}

type confirmRequest struct {
	Token string `json:"token"`
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   s.version,
		"sandboxed": s.guard.Sandboxed(),
	})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !decode(w, r, &req) {
		return
	}
	out, err := s.guard.Check(r.Context(), req.Command, req.Context.toDomain())
	if err != nil && out == nil {
		writeGuardError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if !decode(w, r, &req) {
		return
	}
	out, err := s.guard.Scan(r.Context(), req.Script)
	if err != nil {
		writeGuardError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, errors.New("execute rate limit exceeded"))
		return
	}
	var req executeRequest
	if !decode(w, r, &req) {
		return
	}
	out, err := s.guard.Execute(r.Context(), req.Command, req.Context.toDomain(), guard.ExecuteOptions{
		TimeoutSeconds: req.TimeoutSeconds,
		NoWait:         req.NoWait,
	})
	if err != nil {
		if out == nil {
			writeGuardError(w, err)
			return
		}
		// Validation succeeded but the sandbox could not take the command.
		s.logger.Error("execute failed", "error", err)
		writeJSON(w, guardErrorStatus(err), out)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if !decode(w, r, &req) {
		return
	}
	out, err := s.guard.Confirm(r.Context(), req.Token, guard.ExecuteOptions{})
	if err != nil {
		writeGuardError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeny(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.guard.Deny(r.Context(), req.Token); err != nil {
		writeGuardError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExecutionStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.guard.Status(r.PathValue("id"))
	if err != nil {
		writeGuardError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusPayload(st))
}

func (s *Server) handleExecutionCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.guard.Cancel(r.PathValue("id")); err != nil {
		writeGuardError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"rules": s.guard.Rules()})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.trail == nil {
		writeError(w, http.StatusNotFound, errors.New("auditing is disabled"))
		return
	}
	if corr := r.URL.Query().Get("correlation_id"); corr != "" {
		events, err := s.trail.ByCorrelation(r.Context(), corr)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": events})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := s.trail.Tail(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// statusPayload flattens an execution snapshot for the wire. The Err
// field does not marshal as an error value, so it becomes a string.
func statusPayload(st *sandbox.Status) map[string]any {
	payload := map[string]any{
		"execution_id": st.ID,
		"command":      st.Command,
		"state":        st.State,
		"stdout":       st.Stdout,
		"stderr":       st.Stderr,
	}
	if st.Result != nil {
		payload["result"] = st.Result
	}
	if st.Err != nil {
		payload["error"] = st.Err.Error()
	}
	return payload
}

// --- Helpers ---

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeGuardError(w http.ResponseWriter, err error) {
	writeError(w, guardErrorStatus(err), err)
}

func guardErrorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrEmptyCommand):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownExecution), errors.Is(err, domain.ErrUnknownConfirmation):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrExecutionFinished):
		return http.StatusConflict
	case errors.Is(err, domain.ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrSandboxUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
