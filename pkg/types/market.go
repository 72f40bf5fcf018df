package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketSpec is immutable after discovery: tick, lot, sig-fig cap, fee
// multiplier, minimum notional. Any change after discovery is a
// parameter-change event that must trip the hard stop.
type MarketSpec struct {
	Market        MarketKey
	Symbol        string          // human-readable ticker, e.g. "BTC"
	Tick          decimal.Decimal // minimum price increment
	Lot           decimal.Decimal // minimum size increment
	SigFigs       int             // HIP-3 significant-figure cap on limit_px
	FeeMultiplier decimal.Decimal // HIP-3 default 2x
	MinNotional   decimal.Decimal // minimum order notional in USD
	IsSpot        bool            // spot markets are rejected at ingress
	DiscoveredAt  time.Time
}

// Equal reports whether two specs are identical in every field that matters
// for the ParamChange gate (tick, lot, sig figs, fee multiplier, min notional).
func (s MarketSpec) Equal(o MarketSpec) bool {
	return s.Market == o.Market &&
		s.Tick.Equal(o.Tick) &&
		s.Lot.Equal(o.Lot) &&
		s.SigFigs == o.SigFigs &&
		s.FeeMultiplier.Equal(o.FeeMultiplier) &&
		s.MinNotional.Equal(o.MinNotional)
}

// Timestamped pairs a value with its wall-clock receipt time in
// milliseconds, so staleness can be judged per field.
type Timestamped[T any] struct {
	Value     T
	ReceiptMs int64
}

// AgeMs returns how old the value is relative to nowMs.
func (t Timestamped[T]) AgeMs(nowMs int64) int64 {
	if t.ReceiptMs == 0 {
		return 1<<62 - 1 // never-set fields are maximally stale
	}
	return nowMs - t.ReceiptMs
}

// MarketSnapshot is the per-market aggregate maintained by the feed
// aggregator. Every sub-field is independently timestamped so freshness can
// be evaluated per-field, not just for the struct as a whole.
type MarketSnapshot struct {
	Market MarketKey

	BestBid     Timestamped[Price]
	BestBidSize Timestamped[Size]
	BestAsk     Timestamped[Price]
	BestAskSize Timestamped[Size]

	Oracle Timestamped[Price]
	Mark   Timestamped[Price]
	OI     Timestamped[decimal.Decimal]

	BookUpdatedAtMs int64 // latest book update of any kind

	Halted bool // venue-reported halt state for this market
}

// Mid returns the book midpoint, or the zero value and false if either side
// is unset.
func (s MarketSnapshot) Mid() (Price, bool) {
	if s.BestBid.Value.IsZero() || s.BestAsk.Value.IsZero() {
		return Price{}, false
	}
	sum := s.BestBid.Value.Add(s.BestAsk.Value)
	half := decimal.NewFromFloat(0.5)
	return sum.MulDec(half), true
}

// SpreadBps returns (ask-bid)/mid * 10000.
func (s MarketSnapshot) SpreadBps() (decimal.Decimal, bool) {
	mid, ok := s.Mid()
	if !ok || mid.IsZero() {
		return decimal.Zero, false
	}
	spread := s.BestAsk.Value.Sub(s.BestBid.Value)
	bps := spread.Decimal().Div(mid.Decimal()).Mul(decimal.NewFromInt(10000))
	return bps, true
}

// IsFresh reports whether every field this snapshot depends on has a
// timestamp within its own staleness window. Windows are supplied in
// milliseconds per field.
func (s MarketSnapshot) IsFresh(nowMs int64, bboWindowMs, oracleWindowMs, markWindowMs int64) bool {
	if s.BestBid.AgeMs(nowMs) > bboWindowMs || s.BestAsk.AgeMs(nowMs) > bboWindowMs {
		return false
	}
	if s.Oracle.AgeMs(nowMs) > oracleWindowMs {
		return false
	}
	if s.Mark.AgeMs(nowMs) > markWindowMs {
		return false
	}
	return true
}

// Direction is the sign bucket of an oracle move.
type Direction string

const (
	DirUp   Direction = "up"
	DirDown Direction = "down"
	DirFlat Direction = "flat"
)

// OracleStreak is the per-market state maintained by the oracle movement
// tracker.
type OracleStreak struct {
	LastOracle  Price
	Direction   Direction
	Count       int             // consecutive same-direction moves
	VelocityBps decimal.Decimal // most recent per-tick absolute bps change
	UpdatedAtMs int64
}

// FeeMetadata is the audit trail carried on every DislocationSignal so a
// later reader can reconstruct exactly which costs and thresholds produced
// the decision.
type FeeMetadata struct {
	TakerFeeBps   decimal.Decimal
	FeeMultiplier decimal.Decimal
	SlippageBps   decimal.Decimal
	MinEdgeBps    decimal.Decimal
	TotalCostBps  decimal.Decimal
	BuyThreshold  decimal.Decimal
	SellThreshold decimal.Decimal
}

// DislocationSignal is the immutable record of a triggered opportunity.
type DislocationSignal struct {
	SignalID          string
	Market            MarketKey
	Side              Side
	RawEdgeBps        decimal.Decimal
	NetEdgeBps        decimal.Decimal
	Strength          Strength
	SuggestedSize     Size
	OracleAtDetect    Price
	BestAtDetect      Price
	BookSize          Size
	DetectedAtMs      int64
	Fees              FeeMetadata
	OracleVelocityBps decimal.Decimal
	Confidence        decimal.Decimal // optional, default zero; only feeds sizing when configured to
	BaselineAdj       decimal.Decimal // optional baseline adjustment, default zero
}
