// Package api exposes the turn handler over HTTP for an SMS gateway.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/errand/internal/buildinfo"
	"github.com/nugget/errand/internal/connwatch"
	"github.com/nugget/errand/internal/router"
)

// maxTurnBody bounds a turn request. SMS bodies are short; anything near
// this size is not a text message.
const maxTurnBody = 16 << 10

// TurnHandler answers one inbound message. agent.Loop implements it.
type TurnHandler interface {
	HandleTurn(ctx context.Context, userID, text string, now time.Time) string
}

// HealthSource reports dependency health. connwatch.Monitor implements it.
type HealthSource interface {
	Status() []connwatch.Status
	Healthy() bool
}

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	addr   string
	turns  TurnHandler
	router *router.Router
	health HealthSource
	logger *slog.Logger
	server *http.Server
	now    func() time.Time
}

// NewServer creates a server that listens on addr. rtr may be nil, in
// which case the router endpoints report 503.
func NewServer(addr string, turns TurnHandler, rtr *router.Router, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:   addr,
		turns:  turns,
		router: rtr,
		logger: logger.With("component", "api"),
		now:    time.Now,
	}
}

// SetHealth adds dependency status to /health.
func (s *Server) SetHealth(h HealthSource) {
	s.health = h
}

// Handler returns the routed handler with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/turns", s.handleTurn)

	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)

	// Router introspection
	mux.HandleFunc("GET /v1/router/stats", s.handleRouterStats)
	mux.HandleFunc("GET /v1/router/audit", s.handleRouterAudit)
	mux.HandleFunc("GET /v1/router/explain/{requestId}", s.handleRouterExplain)

	return s.withLogging(mux)
}

// Start serves until Shutdown is called. It returns nil after a clean
// shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // a turn may take several model rounds
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	s.logger.Info("starting API server", "address", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// TurnRequest is one inbound text message.
type TurnRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

// TurnResponse carries the text to send back.
type TurnResponse struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	Reply     string `json:"reply"`
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req TurnRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTurnBody))
	if err := dec.Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	switch {
	case req.UserID == "":
		s.errorResponse(w, http.StatusBadRequest, "user_id is required")
		return
	case strings.TrimSpace(req.Message) == "":
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}

	id := uuid.New().String()
	reply := s.turns.HandleTurn(r.Context(), req.UserID, req.Message, s.now().UTC())
	s.logger.Debug("turn answered", "request_id", id, "user", req.UserID, "reply_len", len(reply))

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, TurnResponse{RequestID: id, UserID: req.UserID, Reply: reply}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

// handleHealth always answers 200 while the process is up. An
// unreachable dependency degrades replies to the fallback text but does
// not stop turns from being answered.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.health == nil {
		writeJSON(w, map[string]any{"status": "healthy"}, s.logger)
		return
	}
	status := "healthy"
	if !s.health.Healthy() {
		status = "degraded"
	}
	writeJSON(w, map[string]any{
		"status":   status,
		"services": s.health.Status(),
	}, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}

func (s *Server) handleRouterStats(w http.ResponseWriter, _ *http.Request) {
	if s.router == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "router not configured")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.router.GetStats(), s.logger)
}

func (s *Server) handleRouterAudit(w http.ResponseWriter, r *http.Request) {
	if s.router == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "router not configured")
		return
	}

	decisions := s.router.GetAuditLog(parseIntParam(r, "limit", 20))
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"count":     len(decisions),
		"decisions": decisions,
	}, s.logger)
}

func (s *Server) handleRouterExplain(w http.ResponseWriter, r *http.Request) {
	if s.router == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "router not configured")
		return
	}

	decision := s.router.Explain(r.PathValue("requestId"))
	if decision == nil {
		s.errorResponse(w, http.StatusNotFound, "decision not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, decision, s.logger)
}

func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}
