package types

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestPriceRoundDownToTick(t *testing.T) {
	t.Parallel()

	p, err := NewPrice("100.237")
	if err != nil {
		t.Fatalf("NewPrice: %v", err)
	}
	tick := decimal.RequireFromString("0.01")

	got := p.RoundDownToTick(tick)
	if got.String() != "100.23" {
		t.Errorf("RoundDownToTick = %s, want 100.23", got.String())
	}
}

func TestSizeRoundDownToLot(t *testing.T) {
	t.Parallel()

	s, err := NewSize("1.27")
	if err != nil {
		t.Fatalf("NewSize: %v", err)
	}
	lot := decimal.RequireFromString("0.1")

	got := s.RoundDownToLot(lot)
	if got.String() != "1.2" {
		t.Errorf("RoundDownToLot = %s, want 1.2", got.String())
	}
}

func TestMarketKeyRoundTrip(t *testing.T) {
	t.Parallel()

	k := MarketKey{DexId: 2, AssetId: 7}
	s := k.String()
	if s != "2:7" {
		t.Fatalf("String() = %q, want 2:7", s)
	}

	parsed, err := ParseMarketKey(s)
	if err != nil {
		t.Fatalf("ParseMarketKey: %v", err)
	}
	if parsed != k {
		t.Errorf("ParseMarketKey = %+v, want %+v", parsed, k)
	}
}

func TestMarketKeyWireAssetID(t *testing.T) {
	t.Parallel()

	k := MarketKey{DexId: 3, AssetId: 42}
	got := k.WireAssetID()
	want := 100_000 + 3*10_000 + 42
	if got != want {
		t.Errorf("WireAssetID = %d, want %d", got, want)
	}
}

func TestMarketKeyLess(t *testing.T) {
	t.Parallel()

	a := MarketKey{DexId: 0, AssetId: 5}
	b := MarketKey{DexId: 0, AssetId: 9}
	c := MarketKey{DexId: 1, AssetId: 0}

	if !a.Less(b) {
		t.Error("expected a < b")
	}
	if !b.Less(c) {
		t.Error("expected b < c")
	}
	if c.Less(a) {
		t.Error("expected c not < a")
	}
}

func TestClassifyStrength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		excess decimal.Decimal
		want   Strength
	}{
		{decimal.NewFromInt(1), StrengthWeak},
		{decimal.NewFromInt(4), StrengthWeak},
		{decimal.NewFromInt(5), StrengthMedium},
		{decimal.NewFromInt(14), StrengthMedium},
		{decimal.NewFromInt(15), StrengthStrong},
		{decimal.NewFromInt(100), StrengthStrong},
	}

	for _, tt := range tests {
		if got := ClassifyStrength(tt.excess); got != tt.want {
			t.Errorf("ClassifyStrength(%s) = %s, want %s", tt.excess, got, tt.want)
		}
	}
}

func TestHardStopTripIsIdempotent(t *testing.T) {
	t.Parallel()

	var h HardStopState
	now := mustTime(t, "2026-01-01T00:00:00Z")
	h.Trip("first reason", now)

	later := mustTime(t, "2026-01-01T01:00:00Z")
	h.Trip("second reason", later)

	if h.Reason != "first reason" {
		t.Errorf("Reason = %q, want first reason to stick", h.Reason)
	}
	if !h.TrippedAt.Equal(now) {
		t.Errorf("TrippedAt should not move after first trip")
	}
}

func TestPositionSideAndFlat(t *testing.T) {
	t.Parallel()

	p := Position{NetSize: decimal.NewFromInt(5)}
	if p.Side() != Buy {
		t.Errorf("expected Buy side for positive NetSize")
	}
	if p.IsFlat() {
		t.Error("expected not flat")
	}

	flat := Position{NetSize: decimal.Zero}
	if !flat.IsFlat() {
		t.Error("expected flat position")
	}
	if flat.Side() != "" {
		t.Errorf("expected empty side for flat position, got %q", flat.Side())
	}
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	tt, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse time: %v", err)
	}
	return tt
}
