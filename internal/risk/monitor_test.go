package risk

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"hip3-taker/internal/config"
	"hip3-taker/pkg/types"
)

var mkt = types.MarketKey{DexId: types.DexDefault, AssetId: 1}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Five Rejected events inside the reject window with a threshold of three
// must trip the latch with reason ConsecutiveRejects.
func TestMonitorTripsOnConsecutiveRejects(t *testing.T) {
	cfg := config.RiskConfig{
		RejectWindow:            time.Minute,
		ConsecutiveRejectLimit:  3,
		TimeoutWindow:           time.Minute,
		ConsecutiveTimeoutLimit: 1000,
	}
	hs := NewHardStop(nil)
	m := NewMonitor(cfg, hs, testLogger(), 16)

	base := time.Now()
	for i := 0; i < 5; i++ {
		m.process(ExecutionEvent{Type: EventRejected, At: base.Add(time.Duration(i) * time.Second)})
	}

	if !hs.IsTripped() {
		t.Fatal("expected hard stop to be tripped")
	}
	_, reason, _ := hs.State()
	if reason != "ConsecutiveRejects" {
		t.Fatalf("reason = %q, want ConsecutiveRejects", reason)
	}
}

func TestMonitorDoesNotTripBelowThreshold(t *testing.T) {
	cfg := config.RiskConfig{
		RejectWindow:            time.Minute,
		ConsecutiveRejectLimit:  3,
		TimeoutWindow:           time.Minute,
		ConsecutiveTimeoutLimit: 1000,
	}
	hs := NewHardStop(nil)
	m := NewMonitor(cfg, hs, testLogger(), 16)

	base := time.Now()
	for i := 0; i < 2; i++ {
		m.process(ExecutionEvent{Type: EventRejected, At: base.Add(time.Duration(i) * time.Second)})
	}

	if hs.IsTripped() {
		t.Fatal("expected hard stop to remain untripped")
	}
}

func TestMonitorTripsOnMarkMidEmergencyDivergence(t *testing.T) {
	cfg := config.RiskConfig{
		RejectWindow:            time.Minute,
		ConsecutiveRejectLimit:  1000,
		TimeoutWindow:           time.Minute,
		ConsecutiveTimeoutLimit: 1000,
		MarkMidEmergencyBps:     100,
	}
	hs := NewHardStop(nil)
	m := NewMonitor(cfg, hs, testLogger(), 16)

	m.CheckMarkMidDivergence(mkt, 50, time.Now())
	if hs.IsTripped() {
		t.Fatal("expected hard stop to remain untripped below the emergency threshold")
	}

	m.CheckMarkMidDivergence(mkt, 150, time.Now())
	if !hs.IsTripped() {
		t.Fatal("expected hard stop to trip above the emergency threshold")
	}
	_, reason, _ := hs.State()
	if !strings.Contains(reason, "MarkMidEmergency") {
		t.Fatalf("reason = %q, want it to mention MarkMidEmergency", reason)
	}
}

func TestHardStopOneWay(t *testing.T) {
	now := time.Now()
	hs := NewHardStop(nil)
	hs.Trip("first", now)
	hs.Trip("second", now.Add(time.Second))

	_, reason, trippedAt := hs.State()
	if reason != "first" {
		t.Fatalf("reason = %q, want first (idempotent trip)", reason)
	}
	if !trippedAt.Equal(now) {
		t.Fatalf("trippedAt = %v, want %v", trippedAt, now)
	}
	if !hs.IsTripped() {
		t.Fatal("expected tripped")
	}
}
