// Package server exposes a small read-only HTTP surface over a Dispatcher
// and a set of named Contexts: health, per-context queue status, per-node
// registration info, and (optionally) Prometheus metrics. It cannot mutate
// Dispatcher or Context state — it is diagnostic plumbing, not a wire
// protocol for the framework itself.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haldorn/relay/dispatch"
	"github.com/haldorn/relay/econtext"
)

// Server serves introspection endpoints over a Dispatcher and a fixed set
// of named Contexts.
type Server struct {
	dispatcher *dispatch.Dispatcher
	contexts   []*econtext.Context
	httpServer *http.Server
	port       int
}

// Config holds server configuration. Port defaults to 8080 if zero.
// Gatherer is optional; when nil, /metrics responds 404.
type Config struct {
	Dispatcher *dispatch.Dispatcher
	Contexts   []*econtext.Context
	Gatherer   prometheus.Gatherer
	Port       int
}

// New builds a Server from cfg. Dispatcher is required.
func New(cfg Config) (*Server, error) {
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("server: dispatcher is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}

	s := &Server{
		dispatcher: cfg.Dispatcher,
		contexts:   cfg.Contexts,
		port:       cfg.Port,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/contexts", s.handleContexts)
	mux.HandleFunc("/nodes", s.handleNodes)
	if cfg.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s, nil
}

// Start runs the HTTP server until it is stopped or fails.
func (s *Server) Start() error {
	log.Printf("[Server] listening on port %d", s.port)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	log.Printf("[Server] stopping")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type contextStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

func (s *Server) handleContexts(w http.ResponseWriter, r *http.Request) {
	statuses := make([]contextStatus, 0, len(s.contexts))
	for _, c := range s.contexts {
		statuses = append(statuses, contextStatus{Name: c.Name(), Status: c.String()})
	}
	s.sendJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, s.dispatcher.Snapshot())
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Server] failed to encode response: %v", err)
	}
}
