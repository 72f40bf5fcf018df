// Package market implements the feed aggregator, the oracle movement
// tracker, and the market-spec registry. It coalesces the typed wire events
// an external parser hands it into a consistent per-market snapshot and
// publishes a change feed the detector consumes.
package market

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"hip3-taker/pkg/types"
)

// ErrSpotMarket is returned at ingress when a message names a spot market.
// The rejection happens before any spec-cache lookup so the error names the
// actual problem rather than a missing spec.
type ErrSpotMarket struct{ Market types.MarketKey }

func (e ErrSpotMarket) Error() string {
	return fmt.Sprintf("market %s: spot markets are not supported", e.Market)
}

// SnapshotUpdate is published on the broadcast channel whenever any
// sub-field of a market's snapshot changes.
type SnapshotUpdate struct {
	Market   types.MarketKey
	Snapshot types.MarketSnapshot
}

// Feed is the per-market aggregate maintained from the streaming wire
// events. It is the sole owner of market state; every mutation goes through
// its public ingest methods, which are safe for concurrent callers (one
// feed reader goroutine per connection) because they hold a single mutex
// rather than one per market - update volume at this layer never justifies
// striping, unlike the position tracker's read cache.
type Feed struct {
	mu        sync.RWMutex
	snapshots map[types.MarketKey]*types.MarketSnapshot

	updates chan SnapshotUpdate
	logger  *slog.Logger
}

// NewFeed creates an aggregator with the given broadcast buffer depth.
func NewFeed(updateBuffer int, logger *slog.Logger) *Feed {
	return &Feed{
		snapshots: make(map[types.MarketKey]*types.MarketSnapshot),
		updates:   make(chan SnapshotUpdate, updateBuffer),
		logger:    logger.With("component", "feed"),
	}
}

// Updates returns the broadcast channel of (market, snapshot) pairs.
func (f *Feed) Updates() <-chan SnapshotUpdate { return f.updates }

// Snapshot returns a copy of the current aggregate for a market, or false if
// nothing has arrived for it yet.
func (f *Feed) Snapshot(market types.MarketKey) (types.MarketSnapshot, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, ok := f.snapshots[market]
	if !ok {
		return types.MarketSnapshot{}, false
	}
	return *s, true
}

func (f *Feed) entryLocked(market types.MarketKey) *types.MarketSnapshot {
	s, ok := f.snapshots[market]
	if !ok {
		s = &types.MarketSnapshot{Market: market}
		f.snapshots[market] = s
	}
	return s
}

func (f *Feed) publish(market types.MarketKey) {
	f.mu.RLock()
	snap := *f.snapshots[market]
	f.mu.RUnlock()

	select {
	case f.updates <- SnapshotUpdate{Market: market, Snapshot: snap}:
	default:
		f.logger.Warn("snapshot update channel full, dropping publish", "market", market)
	}
}

// IngestBbo applies a top-of-book update.
func (f *Feed) IngestBbo(u types.BboUpdate) {
	f.mu.Lock()
	s := f.entryLocked(u.Market)
	s.BestBid = types.Timestamped[types.Price]{Value: u.BidPx, ReceiptMs: u.TsMs}
	s.BestBidSize = types.Timestamped[types.Size]{Value: u.BidSz, ReceiptMs: u.TsMs}
	s.BestAsk = types.Timestamped[types.Price]{Value: u.AskPx, ReceiptMs: u.TsMs}
	s.BestAskSize = types.Timestamped[types.Size]{Value: u.AskSz, ReceiptMs: u.TsMs}
	f.mu.Unlock()

	f.publish(u.Market)
}

// IngestAssetCtx applies an oracle/mark/open-interest update. Spot markets
// are rejected here, before any downstream spec lookup.
func (f *Feed) IngestAssetCtx(u types.AssetCtxUpdate) error {
	if u.IsSpot {
		return ErrSpotMarket{Market: u.Market}
	}

	oi, err := decimal.NewFromString(u.OpenInt)
	if err != nil {
		return fmt.Errorf("market %s: parse open interest %q: %w", u.Market, u.OpenInt, err)
	}

	f.mu.Lock()
	s := f.entryLocked(u.Market)
	s.Oracle = types.Timestamped[types.Price]{Value: u.OraclePx, ReceiptMs: u.TsMs}
	s.Mark = types.Timestamped[types.Price]{Value: u.MarkPx, ReceiptMs: u.TsMs}
	s.OI = types.Timestamped[decimal.Decimal]{Value: oi, ReceiptMs: u.TsMs}
	s.Halted = u.Halted
	f.mu.Unlock()

	f.publish(u.Market)
	return nil
}

// IngestBook records a book-update timestamp without changing top-of-book
// (top-of-book arrives via IngestBbo); the snapshot only needs to know a
// book event occurred.
func (f *Feed) IngestBook(u types.BookUpdate) {
	f.mu.Lock()
	s := f.entryLocked(u.Market)
	s.BookUpdatedAtMs = u.TsMs
	f.mu.Unlock()

	f.publish(u.Market)
}

// Markets returns every market the feed has seen at least one message for.
func (f *Feed) Markets() []types.MarketKey {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]types.MarketKey, 0, len(f.snapshots))
	for k := range f.snapshots {
		out = append(out, k)
	}
	return out
}
