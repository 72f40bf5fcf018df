// hip3-taker - a latency-sensitive oracle-dislocation taker for HIP-3
// markets.
//
// Architecture:
//
//	main.go                    - entry point: loads config, starts engine, waits for SIGINT/SIGTERM
//	engine/engine.go           - orchestrator: wires feed, detector, gates, execution, position, exit
//	market/feed.go             - per-market snapshot aggregator fed by venue events
//	market/oracle.go           - oracle movement tracker (consecutive-direction streak, velocity)
//	market/registry.go         - periodic market-spec discovery/refresh
//	detector/detector.go       - fee/slippage-aware dislocation detector (pure function)
//	risk/gates.go              - ordered hard/soft risk gate chain
//	risk/hardstop.go           - one-way hard-stop latch
//	risk/monitor.go            - sliding-window reject/timeout/drawdown monitor
//	execution/signer.go        - EIP-712 phantom-agent order signing
//	execution/nonce.go         - monotonic nonce generation
//	execution/scheduler.go     - priority batch scheduler (cancels > reduce-only > new)
//	execution/tracker.go       - order lifecycle state machine
//	execution/session.go       - duplex request/reply session over the venue transport
//	transport/websocket.go     - reconnecting websocket transport
//	position/tracker.go        - authoritative position state + striped read cache
//	position/exit.go           - time-stop / mark-regression / oracle-reversal exit supervisor
//	store/store.go             - append-only JSONL signal archive
//	telemetry/metrics.go       - Prometheus metrics registry
//	api/server.go              - dashboard HTTP/WebSocket server
//
// How it makes money:
//
//	The taker watches the spread between each HIP-3 market's own order book
//	and its oracle price. When the book dislocates far enough from the
//	oracle to clear fees and slippage, it takes liquidity on the side that
//	captures the edge, then exits the position on a time stop, a mark
//	regression back toward the oracle, or a sustained oracle reversal.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"hip3-taker/internal/api"
	"hip3-taker/internal/config"
	"hip3-taker/internal/engine"
	"hip3-taker/internal/telemetry"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("HIP3_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(cfg.Logging)
	metrics := telemetry.NewMetrics()

	eng, err := engine.New(*cfg, logger, metrics)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	var apiServer *api.Server
	if cfg.Dashboard.Enabled {
		apiServer = api.NewServer(cfg.Dashboard, eng, *cfg, metrics.Handler(), logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("dashboard server failed", "error", err)
			}
		}()
		logger.Info("dashboard started", "url", fmt.Sprintf("http://localhost:%d", cfg.Dashboard.Port))
	}

	if err := eng.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE - no real orders will be placed")
	}

	logger.Info("hip3 taker started",
		"ws_url", cfg.API.WSURL,
		"max_position_total_usd", cfg.Risk.MaxPositionTotalUSD,
		"dry_run", cfg.DryRun,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	// Engine.Stop trips the hard stop and drains in-flight execution traffic
	// before cancelling workers; stop admitting dashboard connections first
	// so no new client latches onto a server about to go away.
	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error("failed to stop dashboard", "error", err)
		}
	}

	eng.Stop()
}
