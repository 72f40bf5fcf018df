package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"hip3-taker/internal/config"
	"hip3-taker/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStoreAppendsSignalsAsJSONLines(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(config.StoreConfig{DataDir: dir, ChannelDepth: 8}, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)

	sig := types.DislocationSignal{SignalID: "sig-1", Market: types.MarketKey{DexId: 1, AssetId: 2}}
	s.Record(sig)

	deadline := time.Now().Add(time.Second)
	var lines []string
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(filepath.Join(dir, "signals.jsonl"))
		if err == nil && len(data) > 0 {
			lines = splitNonEmptyLines(data)
			if len(lines) > 0 {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if len(lines) != 1 {
		t.Fatalf("expected exactly one archived line, got %d", len(lines))
	}
	var got types.DislocationSignal
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("unmarshal archived line: %v", err)
	}
	if got.SignalID != "sig-1" {
		t.Fatalf("expected signal_id sig-1, got %s", got.SignalID)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestStoreDropsUnderBackpressure(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(config.StoreConfig{DataDir: dir, ChannelDepth: 1}, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	// No Run consumer: fill the single-slot channel, then overflow it.
	s.Record(types.DislocationSignal{SignalID: "a"})
	s.Record(types.DislocationSignal{SignalID: "b"})
	s.Record(types.DislocationSignal{SignalID: "c"})

	if s.Dropped() == 0 {
		t.Fatal("expected at least one dropped record under backpressure")
	}
}

func splitNonEmptyLines(data []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			out = append(out, line)
		}
	}
	return out
}
