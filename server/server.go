// Package server implements the bookstore reporting server: a JSON API over the
// running simulation, JWT auth for it, and an SSE stream of step snapshots.
package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/GoCodeAlone/bookstore/config"
	"github.com/GoCodeAlone/bookstore/scheduler"
	"github.com/GoCodeAlone/bookstore/server/api"
	"github.com/GoCodeAlone/bookstore/server/ws"
)

// Server is the bookstore HTTP server.
type Server struct {
	cfg     *config.Config
	mux     *http.ServeMux
	httpSrv *http.Server
	logger  *slog.Logger

	sim  api.Simulation
	runs api.RunStore
	hub  *ws.Hub

	routesOnce sync.Once

	// JWT secret caching
	secretOnce      sync.Once
	generatedSecret string

	version string
}

// New creates a Server over sim.
func New(cfg *config.Config, sim api.Simulation, ver string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		cfg:     cfg,
		mux:     http.NewServeMux(),
		logger:  logger,
		sim:     sim,
		hub:     ws.NewHub(logger),
		version: ver,
	}
}

// SetRunStore attaches a store of exported runs.
func (s *Server) SetRunStore(store api.RunStore) {
	s.runs = store
}

// OnStep streams a snapshot to SSE clients. Register it with Scheduler.OnStep.
func (s *Server) OnStep(snap scheduler.Snapshot) {
	s.hub.Step(snap)
}

// Finished tells SSE clients the run has ended.
func (s *Server) Finished() {
	s.hub.State(ws.StateChange{State: s.sim.State(), Step: s.sim.StepIndex()})
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	s.routesOnce.Do(s.registerRoutes)
	return s.mux
}

// Start begins listening and blocks until the server stops.
func (s *Server) Start() error {
	addr := s.cfg.Server.Addr
	if addr == "" {
		addr = ":8050"
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
	}
	s.logger.Info("server listening", slog.String("addr", addr))
	return s.httpSrv.ListenAndServe()
}

// Stop closes open event streams and gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.Close()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	h := &api.Handlers{
		Sim:     s.sim,
		Runs:    s.runs,
		Logger:  s.logger,
		Version: s.version,
	}

	// Public routes (no auth required)
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.HandleFunc("GET /api/status", h.StatusHandler())

	// SSE: auth via query param because EventSource can't set headers
	s.mux.HandleFunc("GET /events", s.handleSSE)

	// Protected API
	apiMux := http.NewServeMux()
	h.RegisterRoutes(apiMux)
	apiMux.HandleFunc("GET /api/auth/me", s.handleMe)

	s.mux.Handle("/api/", s.authMiddleware(apiMux))
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, err := verifyToken(s.jwtSecret(), r.URL.Query().Get("token")); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	s.hub.ServeSSE(w, r)
}
