// Pulse - Real-time Notification and Activity Pipeline Agent
// Copyright 2026 PropDesk Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/propdesk/pulse

// Package diag serves the agent's local diagnostics endpoints: liveness,
// a pipeline status snapshot, and Prometheus metrics. The listener binds
// loopback by default and carries no authentication.
package diag

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/propdesk/pulse/internal/config"
	"github.com/propdesk/pulse/internal/logging"
)

// StatusFunc returns a point-in-time view of the pipeline for /statusz.
type StatusFunc func() map[string]interface{}

// Server is the diagnostics HTTP listener.
type Server struct {
	cfg    config.DiagConfig
	status StatusFunc
	srv    *http.Server
}

// NewServer creates a diagnostics server. status may be nil, in which case
// /statusz reports only liveness.
func NewServer(cfg config.DiagConfig, status StatusFunc) *Server {
	return &Server{cfg: cfg, status: status}
}

// Start begins serving in the background. Listener errors other than
// graceful shutdown are logged, not returned: diagnostics failing must
// not take the pipeline down.
func (s *Server) Start(_ context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logging.Info().Str("addr", addr).Msg("diagnostics server listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error().Err(err).Msg("diagnostics server failed")
		}
	}()
	return nil
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/statusz", s.handleStatus)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	body := map[string]interface{}{"status": "ok"}
	if s.status != nil {
		for k, v := range s.status() {
			body[k] = v
		}
	}
	writeJSON(w, body)
}

func writeJSON(w http.ResponseWriter, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Warn().Err(err).Msg("diagnostics response write failed")
	}
}
