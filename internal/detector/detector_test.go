package detector

import (
	"testing"

	"github.com/shopspring/decimal"

	"hip3-taker/pkg/types"
)

func mustPrice(t *testing.T, s string) types.Price {
	t.Helper()
	p, err := types.NewPrice(s)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func mustSize(t *testing.T, s string) types.Size {
	t.Helper()
	sz, err := types.NewSize(s)
	if err != nil {
		t.Fatal(err)
	}
	return sz
}

func baseSpec() types.MarketSpec {
	return types.MarketSpec{
		Market:        types.MarketKey{DexId: 0, AssetId: 1},
		Tick:          decimal.NewFromFloat(0.01),
		Lot:           decimal.NewFromFloat(0.1),
		FeeMultiplier: decimal.NewFromInt(2),
		MinNotional:   decimal.NewFromInt(1),
	}
}

func baseFees() UserFees {
	return UserFees{
		TakerFeeBps: decimal.NewFromFloat(2),
		SlippageBps: decimal.NewFromFloat(1),
		MinEdgeBps:  decimal.NewFromFloat(2),
	}
}

// Oracle 100, ask 99.90 (10bps below), size at ask 10, total cost 7bps.
// Expected: BUY, raw edge 10, net edge 3, strength Weak.
func TestDetectTrivialBuySignal(t *testing.T) {
	d := New(func() string { return "sig-1" })

	snap := types.MarketSnapshot{
		Market:      types.MarketKey{DexId: 0, AssetId: 1},
		BestBid:     types.Timestamped[types.Price]{Value: mustPrice(t, "99.80")},
		BestAsk:     types.Timestamped[types.Price]{Value: mustPrice(t, "99.90")},
		BestAskSize: types.Timestamped[types.Size]{Value: mustSize(t, "10")},
		Oracle:      types.Timestamped[types.Price]{Value: mustPrice(t, "100.00")},
		Mark:        types.Timestamped[types.Price]{Value: mustPrice(t, "100.00")},
	}

	sig, err := d.Detect(snap, baseSpec(), baseFees(), types.OracleStreak{}, Params{
		SizingAlpha:    decimal.NewFromFloat(0.1),
		MaxNotionalUSD: decimal.NewFromInt(1_000_000),
	}, 1000)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if sig == nil {
		t.Fatal("expected a signal")
	}
	if sig.Side != types.Buy {
		t.Fatalf("side = %s, want BUY", sig.Side)
	}
	if !sig.RawEdgeBps.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("raw edge = %s, want 10", sig.RawEdgeBps)
	}
	if !sig.NetEdgeBps.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("net edge = %s, want 3", sig.NetEdgeBps)
	}
	if sig.Strength != types.StrengthWeak {
		t.Fatalf("strength = %s, want Weak", sig.Strength)
	}
	wantSize, _ := types.NewSize("1") // min(10*0.1, 1_000_000/100) = 1, rounded to 0.1 lot
	if sig.SuggestedSize.Cmp(wantSize) != 0 {
		t.Fatalf("size = %s, want %s", sig.SuggestedSize, wantSize)
	}
}

// Ask at 99.95 is only 5bps below oracle, under the 7bps cost: no signal.
func TestDetectBelowThresholdNoSignal(t *testing.T) {
	d := New(nil)
	snap := types.MarketSnapshot{
		Market:      types.MarketKey{DexId: 0, AssetId: 1},
		BestBid:     types.Timestamped[types.Price]{Value: mustPrice(t, "99.80")},
		BestAsk:     types.Timestamped[types.Price]{Value: mustPrice(t, "99.95")},
		BestAskSize: types.Timestamped[types.Size]{Value: mustSize(t, "10")},
		Oracle:      types.Timestamped[types.Price]{Value: mustPrice(t, "100.00")},
		Mark:        types.Timestamped[types.Price]{Value: mustPrice(t, "100.00")},
	}

	sig, err := d.Detect(snap, baseSpec(), baseFees(), types.OracleStreak{}, Params{
		SizingAlpha:    decimal.NewFromFloat(0.1),
		MaxNotionalUSD: decimal.NewFromInt(1_000_000),
	}, 1000)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if sig != nil {
		t.Fatalf("expected no signal, got %+v", sig)
	}
}

func TestDetectRejectsBelowMinNotional(t *testing.T) {
	d := New(nil)
	spec := baseSpec()
	spec.MinNotional = decimal.NewFromInt(10_000)

	snap := types.MarketSnapshot{
		Market:      types.MarketKey{DexId: 0, AssetId: 1},
		BestBid:     types.Timestamped[types.Price]{Value: mustPrice(t, "99.80")},
		BestAsk:     types.Timestamped[types.Price]{Value: mustPrice(t, "99.90")},
		BestAskSize: types.Timestamped[types.Size]{Value: mustSize(t, "10")},
		Oracle:      types.Timestamped[types.Price]{Value: mustPrice(t, "100.00")},
		Mark:        types.Timestamped[types.Price]{Value: mustPrice(t, "100.00")},
	}

	sig, err := d.Detect(snap, spec, baseFees(), types.OracleStreak{}, Params{
		SizingAlpha:    decimal.NewFromFloat(0.1),
		MaxNotionalUSD: decimal.NewFromInt(1_000_000),
	}, 1000)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if sig != nil {
		t.Fatalf("expected no signal below min notional, got %+v", sig)
	}
}
