package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lmswatch/internal/core"
)

// SubscriberCounter exposes the registered subscriber count.
type SubscriberCounter interface {
	Count(ctx context.Context) (int, error)
}

// CycleReporter exposes the time of the last completed poll cycle.
type CycleReporter interface {
	LastCycle() time.Time
}

// Server is the ops HTTP server: health, metrics and a small status API.
type Server struct {
	addr    string
	store   SubscriberCounter
	poller  CycleReporter
	logger  *core.Logger
	started time.Time
	http    *http.Server
}

// StatusResponse is the /api/status payload
type StatusResponse struct {
	UptimeSeconds int64  `json:"uptime_seconds"`
	Subscribers   int    `json:"subscribers"`
	LastCycle     string `json:"last_cycle,omitempty"`
}

// New creates the ops server
func New(addr string, store SubscriberCounter, poller CycleReporter, logger *core.Logger) *Server {
	s := &Server{
		addr:    addr,
		store:   store,
		poller:  poller,
		logger:  logger,
		started: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/api/status", s.handleStatus)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// Start runs the server in a goroutine
func (s *Server) Start() {
	s.logger.Info("Starting ops server", "addr", s.addr)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Ops server failed", "error", err)
		}
	}()
}

// Stop shuts the server down gracefully
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.Count(r.Context())
	if err != nil {
		core.HandleError(w, core.NewDatabaseError("failed to count subscribers", err))
		return
	}

	resp := StatusResponse{
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Subscribers:   count,
	}
	if last := s.poller.LastCycle(); !last.IsZero() {
		resp.LastCycle = last.UTC().Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("Failed to encode status response", "error", err)
	}
}
