package market

import (
	"io"
	"log/slog"
	"testing"

	"hip3-taker/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustPrice(t *testing.T, s string) types.Price {
	t.Helper()
	p, err := types.NewPrice(s)
	if err != nil {
		t.Fatalf("NewPrice(%q): %v", s, err)
	}
	return p
}

func mustSize(t *testing.T, s string) types.Size {
	t.Helper()
	sz, err := types.NewSize(s)
	if err != nil {
		t.Fatalf("NewSize(%q): %v", s, err)
	}
	return sz
}

func TestFeedIngestBboPublishesSnapshot(t *testing.T) {
	f := NewFeed(8, testLogger())
	market := types.MarketKey{DexId: 0, AssetId: 1}

	f.IngestBbo(types.BboUpdate{
		Market: market,
		BidPx:  mustPrice(t, "99.90"),
		BidSz:  mustSize(t, "10"),
		AskPx:  mustPrice(t, "100.00"),
		AskSz:  mustSize(t, "5"),
		TsMs:   1000,
	})

	select {
	case u := <-f.Updates():
		if u.Market != market {
			t.Fatalf("market = %v, want %v", u.Market, market)
		}
		if u.Snapshot.BestBid.Value.String() != "99.9" {
			t.Fatalf("best bid = %s, want 99.9", u.Snapshot.BestBid.Value)
		}
	default:
		t.Fatal("expected a published update")
	}

	snap, ok := f.Snapshot(market)
	if !ok {
		t.Fatal("expected snapshot to exist")
	}
	if snap.BestAsk.ReceiptMs != 1000 {
		t.Fatalf("ask receipt ms = %d, want 1000", snap.BestAsk.ReceiptMs)
	}
}

func TestFeedRejectsSpotMarket(t *testing.T) {
	f := NewFeed(8, testLogger())
	market := types.MarketKey{DexId: 0, AssetId: 2}

	err := f.IngestAssetCtx(types.AssetCtxUpdate{
		Market:   market,
		OraclePx: mustPrice(t, "100"),
		MarkPx:   mustPrice(t, "100"),
		OpenInt:  "0",
		TsMs:     1,
		IsSpot:   true,
	})
	if _, ok := err.(ErrSpotMarket); !ok {
		t.Fatalf("err = %v, want ErrSpotMarket", err)
	}

	if _, ok := f.Snapshot(market); ok {
		t.Fatal("spot market should never be recorded")
	}
}

func TestSnapshotIsFresh(t *testing.T) {
	f := NewFeed(8, testLogger())
	market := types.MarketKey{DexId: 0, AssetId: 3}

	f.IngestBbo(types.BboUpdate{Market: market, BidPx: mustPrice(t, "1"), BidSz: mustSize(t, "1"), AskPx: mustPrice(t, "1"), AskSz: mustSize(t, "1"), TsMs: 1000})
	if err := f.IngestAssetCtx(types.AssetCtxUpdate{Market: market, OraclePx: mustPrice(t, "1"), MarkPx: mustPrice(t, "1"), OpenInt: "0", TsMs: 1000}); err != nil {
		t.Fatal(err)
	}

	snap, _ := f.Snapshot(market)
	if !snap.IsFresh(1500, 1000, 1000, 1000) {
		t.Fatal("expected fresh at +500ms with 1000ms windows")
	}
	if snap.IsFresh(5000, 1000, 1000, 1000) {
		t.Fatal("expected stale at +4000ms with 1000ms windows")
	}
}
