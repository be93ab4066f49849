package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bdobrica/Neuro/common/trace"
	"github.com/bdobrica/Neuro/common/version"
)

// maxQueryBytes caps the body of POST /v1/query.
const maxQueryBytes = 64 << 10

// Handler answers utterances. *Assistant implements it.
type Handler interface {
	Handle(ctx context.Context, text string) (*Reply, error)
}

// StatusSource supplies the runtime figures reported by GET /status.
type StatusSource interface {
	Ping(ctx context.Context) error
	TurnCount(ctx context.Context) (int, error)
	BridgeConnected() bool
	BridgeTopic() string
	Devices() []string
	Verbs() []string
}

// Server exposes the assistant over HTTP:
//
//	POST /v1/query  {"text": "..."} → Reply
//	GET  /health
//	GET  /status
type Server struct {
	addr      string
	handler   Handler
	status    StatusSource
	limiter   *RateLimiter
	logger    *slog.Logger
	startedAt time.Time
	router    chi.Router
	server    *http.Server
}

type queryRequest struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// healthResponse is returned by GET /health.
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// statusResponse is returned by GET /status.
type statusResponse struct {
	Status          string    `json:"status"`
	Version         string    `json:"version"`
	Commit          string    `json:"commit"`
	BuildTime       string    `json:"build_time"`
	StartedAt       time.Time `json:"started_at"`
	UptimeSecs      float64   `json:"uptime_seconds"`
	Store           string    `json:"store"`
	TurnCount       int       `json:"turn_count"`
	BridgeConnected bool      `json:"bridge_connected"`
	BridgeTopic     string    `json:"bridge_topic,omitempty"`
	Devices         []string  `json:"devices"`
	Verbs           []string  `json:"verbs"`
	RateLimited     int       `json:"rate_limited_clients"`
}

// NewServer builds the router. limiter and status may be nil.
func NewServer(addr string, h Handler, status StatusSource, limiter *RateLimiter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:      addr,
		handler:   h,
		status:    status,
		limiter:   limiter,
		logger:    logger,
		startedAt: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Group(func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter.Middleware)
		}
		r.Post("/v1/query", s.handleQuery)
	})
	s.router = r
	return s
}

// ServeHTTP lets tests drive the router with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Serve listens on the configured address and blocks until ctx is done, then
// shuts the listener down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("http server: listen %s: %w", s.addr, err)
	}
	s.server = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Queries wait for the whole batch, which may include slow LLM calls.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", ln.Addr().String())
		errCh <- s.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http server shutdown error", "err", err)
	}
	return nil
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxQueryBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	if id := r.Header.Get("X-Trace-Id"); id != "" {
		ctx = trace.WithTraceID(ctx, id)
	}
	reply, err := s.handler.Handle(ctx, req.Text)
	switch {
	case errors.Is(err, ErrEmptyUtterance):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("query failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("X-Trace-Id", reply.TraceID)
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: version.Version,
		Commit:  version.GitCommit,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:     "ok",
		Version:    version.Version,
		Commit:     version.GitCommit,
		BuildTime:  version.BuildTime,
		StartedAt:  s.startedAt,
		UptimeSecs: time.Since(s.startedAt).Seconds(),
		Devices:    []string{},
		Verbs:      []string{},
	}
	if s.limiter != nil {
		resp.RateLimited = s.limiter.Len()
	}
	if s.status == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp.Store = "ok"
	if err := s.status.Ping(r.Context()); err != nil {
		s.logger.Warn("store ping failed", "err", err)
		resp.Status = "degraded"
		resp.Store = "unavailable"
	} else if n, err := s.status.TurnCount(r.Context()); err == nil {
		resp.TurnCount = n
	}
	resp.BridgeConnected = s.status.BridgeConnected()
	resp.BridgeTopic = s.status.BridgeTopic()
	if devices := s.status.Devices(); devices != nil {
		resp.Devices = devices
	}
	if verbs := s.status.Verbs(); verbs != nil {
		resp.Verbs = verbs
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeJSON serialises v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode JSON response", "err", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}
