// Package introspect exposes the orchestrator host's debug HTTP surface:
// liveness, Prometheus metrics, recent ledger state by intent kind, and a
// synchronous utterance-submission endpoint for manual testing and the
// monitor TUI.
package introspect

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/normanking/aura-orchestrator/internal/store"
	"github.com/normanking/aura-orchestrator/internal/types"
)

// Executor is the subset of orchestrator.Orchestrator the introspection
// surface depends on.
type Executor interface {
	Execute(ctx context.Context, u types.Utterance) types.HandlerResult
}

// LedgerReader is the subset of store.Ledger the /v1/state endpoint reads
// from.
type LedgerReader interface {
	RecentByIntent(ctx context.Context, kind string, limit int) ([]store.LedgerEntry, error)
}

// Server wraps an *http.Server and the dependencies its handlers need.
type Server struct {
	httpSrv *http.Server
	exec    Executor
	ledger  LedgerReader
	logger  *slog.Logger

	shutdownTimeout time.Duration
}

// Config configures the introspection surface's bind address and
// lifecycle timeouts.
type Config struct {
	Bind                   string
	Port                   int
	ShutdownTimeoutSeconds int
}

// New constructs a Server bound to cfg's address. The underlying
// http.Server is created but not started; call ListenAndServe.
func New(cfg Config, exec Executor, ledger LedgerReader, logger *slog.Logger) *Server {
	s := &Server{exec: exec, ledger: ledger, logger: logger}

	timeout := time.Duration(cfg.ShutdownTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	s.shutdownTimeout = timeout

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /v1/state", s.handleState)
	mux.HandleFunc("POST /v1/utterance", s.handleUtterance)

	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Bind, cfg.Port),
		Handler: loggingMiddleware(s.log(), mux),
	}

	return s
}

// ListenAndServe starts the HTTP server and blocks until it is shut down.
func (s *Server) ListenAndServe() error {
	s.log().Info("introspection server starting", "addr", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("introspect: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	s.log().Info("introspection server shutting down")
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("introspect: shutdown: %w", err)
	}
	return nil
}

// Addr returns the address the server is configured to listen on.
func (s *Server) Addr() string {
	return s.httpSrv.Addr
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleState returns the most recent ledger entries for the intent kind
// named by the "kind" query parameter, defaulting to GUI_INTERACTION and
// a limit of 20.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeError(w, http.StatusServiceUnavailable, "the audit ledger is not configured")
		return
	}

	kind := r.URL.Query().Get("kind")
	if kind == "" {
		kind = string(types.GUIInteraction)
	}
	limit := 20

	entries, err := s.ledger.RecentByIntent(r.Context(), kind, limit)
	if err != nil {
		s.log().Error("introspect: ledger query failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"kind": kind, "entries": entries})
}

type utteranceRequest struct {
	Text string `json:"text"`
}

type utteranceResponse struct {
	CorrelationID string `json:"correlation_id"`
	Status        string `json:"status"`
	Method        string `json:"method"`
	Payload       string `json:"payload,omitempty"`
	Error         string `json:"error,omitempty"`
}

// handleUtterance submits req.Text to the orchestrator as a fresh
// Utterance and waits synchronously for its HandlerResult, the same
// semantics a voice-pipeline caller would observe.
func (s *Server) handleUtterance(w http.ResponseWriter, r *http.Request) {
	var req utteranceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text must not be empty")
		return
	}

	u := types.NewUtterance(req.Text)
	result := s.exec.Execute(r.Context(), u)

	resp := utteranceResponse{
		CorrelationID: result.CorrelationID,
		Status:        string(result.Status),
		Method:        string(result.Method),
		Payload:       result.Payload,
	}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)
		logger.Info("http request",
			"method", r.Method, "path", r.URL.Path,
			"status", lrw.statusCode, "remote_addr", remoteAddr(r),
			"latency", time.Since(start),
		)
	})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func remoteAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
