package position

import (
	"testing"
	"time"

	"hip3-taker/internal/config"
	"hip3-taker/internal/execution"
	"hip3-taker/internal/market"
	"hip3-taker/pkg/types"
)

type fixtureEnqueuer struct {
	batches []execution.QueuedAction
}

func (f *fixtureEnqueuer) EnqueueReduceOnly(a execution.QueuedAction) {
	a.Kind = execution.ActionReduceOnly
	f.batches = append(f.batches, a)
}

func openLongPosition(t *testing.T, tr *Tracker, mkt types.MarketKey, openedAtMs int64) {
	t.Helper()
	order := types.PendingOrder{
		ClientOrderID: "entry-cloid",
		Market:        mkt,
		Side:          types.Buy,
		LimitPrice:    mustPrice(t, "100.00"),
		Size:          mustSize(t, "5.0"),
		EnqueuedAtMs:  openedAtMs,
	}
	if err := tr.RegisterOrder(order); err != nil {
		t.Fatalf("RegisterOrder: %v", err)
	}
	tr.OnFill("entry-cloid", mustPrice(t, "100.00"), mustSize(t, "5.0"))
	tr.OnTerminal("entry-cloid", types.OrderFilled)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if pos, ok := tr.Position(mkt); ok && !pos.IsFlat() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("position never opened")
}

// Open a long at t=0 with the mark drifting flat: one tick past the time
// stop there must be exactly one reduce-only IOC for the full size, with
// the flatten-in-flight flag set.
func TestExitSupervisorTimeStop(t *testing.T) {
	tr, cancel := runTracker(t)
	defer cancel()

	mkt := types.MarketKey{DexId: 1, AssetId: 4}
	openLongPosition(t, tr, mkt, 0)

	feed := market.NewFeed(16, testLogger())
	feed.IngestAssetCtx(types.AssetCtxUpdate{
		Market:   mkt,
		OraclePx: mustPrice(t, "100.00"),
		MarkPx:   mustPrice(t, "100.00"),
		OpenInt:  "0",
		TsMs:     0,
	})
	feed.IngestBbo(types.BboUpdate{
		Market: mkt,
		BidPx:  mustPrice(t, "100.00"),
		BidSz:  mustSize(t, "10"),
		AskPx:  mustPrice(t, "100.01"),
		AskSz:  mustSize(t, "10"),
		TsMs:   0,
	})

	oracles := market.NewOracleTracker()
	oracles.Update(mkt, mustPrice(t, "100.00"), 0)

	enqueuer := &fixtureEnqueuer{}
	cfg := config.ExitConfig{
		TimeStop:           30 * time.Second,
		MarkRegressionBps:  5,
		LossCutStreak:      10,
		ProfitTakeStreak:   10,
		FlattenSlippageBps: 5,
	}

	fixedNow := time.UnixMilli(30*1000 + 1)
	sup := NewExitSupervisor(cfg, tr, feed, oracles, enqueuer, testLogger(), func() time.Time { return fixedNow }, time.Hour)

	sup.sweepTimeStops()

	if len(enqueuer.batches) != 1 {
		t.Fatalf("expected exactly one reduce-only flatten order, got %d", len(enqueuer.batches))
	}
	order := enqueuer.batches[0].Order
	if !order.ReduceOnly {
		t.Fatal("expected flatten order to be reduce-only")
	}
	if order.Side != types.Sell {
		t.Fatalf("expected sell to close a long, got %s", order.Side)
	}
	if !order.Size.Decimal().Equal(mustSize(t, "5.0").Decimal()) {
		t.Fatalf("expected full position size 5.0, got %s", order.Size)
	}

	pos, ok := tr.Position(mkt)
	if !ok || !pos.FlattenInFlight {
		t.Fatal("expected flatten_in_flight to be true")
	}

	// A second sweep must not emit another flatten order (de-duplication).
	sup.sweepTimeStops()
	if len(enqueuer.batches) != 1 {
		t.Fatalf("expected de-duplication to suppress a second flatten, got %d batches", len(enqueuer.batches))
	}
}

// FlattenAll must emit one reduce-only order per open position and respect
// the flatten-in-flight de-duplication on a repeat call.
func TestExitSupervisorFlattenAll(t *testing.T) {
	tr, cancel := runTracker(t)
	defer cancel()

	mkt := types.MarketKey{DexId: 1, AssetId: 6}
	openLongPosition(t, tr, mkt, 0)

	feed := market.NewFeed(16, testLogger())
	feed.IngestAssetCtx(types.AssetCtxUpdate{
		Market:   mkt,
		OraclePx: mustPrice(t, "100.00"),
		MarkPx:   mustPrice(t, "100.00"),
		OpenInt:  "0",
		TsMs:     0,
	})

	enqueuer := &fixtureEnqueuer{}
	cfg := config.ExitConfig{
		TimeStop:           time.Hour,
		MarkRegressionBps:  5,
		LossCutStreak:      10,
		ProfitTakeStreak:   10,
		FlattenSlippageBps: 5,
	}
	sup := NewExitSupervisor(cfg, tr, feed, market.NewOracleTracker(), enqueuer, testLogger(), func() time.Time { return time.UnixMilli(1) }, time.Hour)

	sup.FlattenAll("Shutdown")
	if len(enqueuer.batches) != 1 {
		t.Fatalf("expected one flatten order, got %d", len(enqueuer.batches))
	}
	if !enqueuer.batches[0].Order.ReduceOnly {
		t.Fatal("expected the flatten order to be reduce-only")
	}

	sup.FlattenAll("Shutdown")
	if len(enqueuer.batches) != 1 {
		t.Fatalf("expected flatten-in-flight to suppress a second order, got %d", len(enqueuer.batches))
	}
}

func TestExitSupervisorMarkRegressionLong(t *testing.T) {
	tr, cancel := runTracker(t)
	defer cancel()

	mkt := types.MarketKey{DexId: 1, AssetId: 5}
	openLongPosition(t, tr, mkt, 0)

	feed := market.NewFeed(16, testLogger())
	feed.IngestAssetCtx(types.AssetCtxUpdate{
		Market:   mkt,
		OraclePx: mustPrice(t, "100.00"),
		MarkPx:   mustPrice(t, "100.00"),
		OpenInt:  "0",
		TsMs:     1,
	})
	// Best bid has regressed to within 5bps of oracle: 100 * (1 - 0.0005) = 99.95
	feed.IngestBbo(types.BboUpdate{
		Market: mkt,
		BidPx:  mustPrice(t, "99.96"),
		BidSz:  mustSize(t, "10"),
		AskPx:  mustPrice(t, "99.97"),
		AskSz:  mustSize(t, "10"),
		TsMs:   1,
	})

	oracles := market.NewOracleTracker()
	oracles.Update(mkt, mustPrice(t, "100.00"), 1)

	enqueuer := &fixtureEnqueuer{}
	cfg := config.ExitConfig{
		TimeStop:           time.Hour,
		MarkRegressionBps:  5,
		LossCutStreak:      10,
		ProfitTakeStreak:   10,
		FlattenSlippageBps: 5,
	}
	sup := NewExitSupervisor(cfg, tr, feed, oracles, enqueuer, testLogger(), func() time.Time { return time.UnixMilli(1) }, time.Hour)

	sup.OnUpdate(mkt)

	if len(enqueuer.batches) != 1 {
		t.Fatalf("expected mark-regression to trigger a flatten, got %d batches", len(enqueuer.batches))
	}
}
