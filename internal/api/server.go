package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"hip3-taker/internal/config"
)

// Server runs the operator dashboard: a read-only HTTP surface (health,
// snapshot, Prometheus exposition) plus the live WebSocket push channel.
type Server struct {
	cfg      config.DashboardConfig
	provider MarketSnapshotProvider
	fullCfg  config.AppConfig
	hub      *Hub
	httpSrv  *http.Server
	logger   *slog.Logger

	stop chan struct{} // ends the push loop; Stop closes it
}

// NewServer wires the dashboard routes. metricsHandler, if non-nil, is
// mounted at /metrics (the process's Prometheus registry exposition).
func NewServer(
	cfg config.DashboardConfig,
	provider MarketSnapshotProvider,
	fullCfg config.AppConfig,
	metricsHandler http.Handler,
	logger *slog.Logger,
) *Server {
	hub := NewHub(logger)
	handlers := NewHandlers(provider, fullCfg, hub, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.HandleHealth)
	mux.HandleFunc("/api/snapshot", handlers.HandleSnapshot)
	mux.HandleFunc("/ws", handlers.HandleWebSocket)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}
	mux.Handle("/", http.FileServer(http.Dir("web")))

	return &Server{
		cfg:      cfg,
		provider: provider,
		fullCfg:  fullCfg,
		hub:      hub,
		httpSrv: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.With("component", "api-server"),
		stop:   make(chan struct{}),
	}
}

// Start launches the push loop and serves HTTP until Stop is called.
func (s *Server) Start() error {
	go s.run()

	s.logger.Info("dashboard server starting", "addr", s.httpSrv.Addr)

	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// Stop ends the push loop and drains the HTTP server.
func (s *Server) Stop() error {
	s.logger.Info("stopping dashboard server")
	close(s.stop)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

// run multiplexes the two push sources onto the hub: the engine's live
// event stream (signals, fills) and the periodic full-state snapshot.
// Folding both into one loop keeps the hard-stop edge detection next to the
// snapshot that carries the tripped flag: the "hard_stop" alert fires once,
// on the transition, not once per tick for as long as the process stays
// halted.
func (s *Server) run() {
	interval := s.cfg.UpdateInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var events <-chan DashboardEvent
	if src, ok := s.provider.(interface {
		DashboardEvents() <-chan DashboardEvent
	}); ok {
		events = src.DashboardEvents()
	}

	var wasTripped bool
	for {
		select {
		case <-s.stop:
			return
		case evt, ok := <-events:
			if !ok {
				events = nil // engine shut down; keep ticking snapshots
				continue
			}
			s.hub.Broadcast(evt)
		case <-ticker.C:
			snap := BuildSnapshot(s.provider, s.fullCfg)
			s.hub.Broadcast(DashboardEvent{Type: "snapshot", Timestamp: time.Now(), Data: snap})

			if snap.Risk.HardStopTripped && !wasTripped {
				s.hub.Broadcast(DashboardEvent{
					Type:      "hard_stop",
					Timestamp: time.Now(),
					Data:      NewHardStopEvent(snap.Risk.HardStopReason, snap.Risk.TrippedAt, ""),
				})
			}
			wasTripped = snap.Risk.HardStopTripped
		}
	}
}
