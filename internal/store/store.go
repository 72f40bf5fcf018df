// Package store implements the signal archive: it accepts
// DislocationSignal records over a bounded channel and appends them to a
// newline-delimited JSON file, dropping with a counter on overflow rather
// than blocking the detector's hot path.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"hip3-taker/internal/config"
	"hip3-taker/pkg/types"
)

// Store archives every DislocationSignal the detector produces.
type Store struct {
	logger  *slog.Logger
	signals chan types.DislocationSignal
	dropped atomic.Int64
	onDrop  func() // optional metrics hook

	mu   sync.Mutex
	file *os.File
}

// SetDropHook registers a callback invoked once per dropped record. Must be
// set before Run.
func (s *Store) SetDropHook(fn func()) { s.onDrop = fn }

// Open creates a store backed by cfg.DataDir, appending to signals.jsonl.
func Open(cfg config.StoreConfig, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	path := filepath.Join(cfg.DataDir, "signals.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("store: open signal archive: %w", err)
	}

	depth := cfg.ChannelDepth
	if depth <= 0 {
		depth = 256
	}

	return &Store{
		logger:  logger.With("component", "store"),
		signals: make(chan types.DislocationSignal, depth),
		file:    f,
	}, nil
}

// Close flushes and closes the underlying file. It does not drain the
// channel; callers should stop producing before calling Close.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// Record submits a signal for archival without blocking the caller. Under
// backpressure the signal is dropped and the drop counter incremented -
// losing an audit record is preferable to stalling the detector.
func (s *Store) Record(sig types.DislocationSignal) {
	select {
	case s.signals <- sig:
	default:
		n := s.dropped.Add(1)
		if s.onDrop != nil {
			s.onDrop()
		}
		s.logger.Warn("store: signal channel full, dropping record", "signal_id", sig.SignalID, "total_dropped", n)
	}
}

// Dropped returns the total number of signals dropped due to backpressure.
func (s *Store) Dropped() int64 { return s.dropped.Load() }

// Run consumes the signal channel, appending one JSON line per record,
// until ctx is cancelled (at which point any signals still queued are
// discarded, per the "drop rather than block" design).
func (s *Store) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-s.signals:
			if err := s.appendLocked(sig); err != nil {
				s.logger.Error("store: failed to append signal", "error", err, "signal_id", sig.SignalID)
			}
		}
	}
}

func (s *Store) appendLocked(sig types.DislocationSignal) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.file.Write(data)
	return err
}
