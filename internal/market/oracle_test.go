package market

import (
	"testing"

	"hip3-taker/pkg/types"
)

func TestOracleTrackerStreakAndReversal(t *testing.T) {
	tr := NewOracleTracker()
	market := types.MarketKey{DexId: 0, AssetId: 1}

	s := tr.Update(market, mustPrice(t, "100.00"), 1)
	if s.Direction != types.DirFlat || s.Count != 0 {
		t.Fatalf("first observation: %+v", s)
	}

	s = tr.Update(market, mustPrice(t, "100.20"), 2) // up
	if s.Direction != types.DirUp || s.Count != 1 {
		t.Fatalf("first up move: %+v", s)
	}

	s = tr.Update(market, mustPrice(t, "100.40"), 3) // up again
	if s.Direction != types.DirUp || s.Count != 2 {
		t.Fatalf("second up move: %+v", s)
	}

	s = tr.Update(market, mustPrice(t, "100.10"), 4) // reversal
	if s.Direction != types.DirDown || s.Count != 1 {
		t.Fatalf("reversal: %+v", s)
	}
}

func TestOracleTrackerDeadband(t *testing.T) {
	tr := NewOracleTracker()
	market := types.MarketKey{DexId: 0, AssetId: 2}

	tr.Update(market, mustPrice(t, "100.00"), 1)
	s := tr.Update(market, mustPrice(t, "100.001"), 2) // within deadband
	if s.Direction != types.DirFlat {
		t.Fatalf("expected flat within deadband, got %+v", s)
	}
}
