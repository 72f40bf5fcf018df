// Package detector implements the dislocation detector: a pure function of
// a market snapshot, its pinned spec, the account's fee schedule, and the
// oracle streak, producing at most one typed signal. It performs no I/O and
// holds no state across calls.
package detector

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"hip3-taker/pkg/types"
)

var (
	ten000 = decimal.NewFromInt(10000)
	one    = decimal.NewFromInt(1)
)

// UserFees is the account-level fee schedule fed into the edge model.
type UserFees struct {
	TakerFeeBps decimal.Decimal
	SlippageBps decimal.Decimal
	MinEdgeBps  decimal.Decimal
}

// Params tunes the sizing side of the detector.
type Params struct {
	SizingAlpha    decimal.Decimal // fraction of book-top size to target
	MaxNotionalUSD decimal.Decimal
}

// IDGenerator returns a fresh unique signal id. Overridable in tests for
// deterministic output; production wiring uses uuid.NewString.
type IDGenerator func() string

// DefaultIDGenerator generates a UUIDv4 string, matching the cloid scheme
// used for client order ids elsewhere in the execution pipeline.
func DefaultIDGenerator() string { return uuid.NewString() }

// Detector is the stateless pure-function wrapper; it exists only to carry
// the id generator, which needs to be overridable in tests without a
// global.
type Detector struct {
	newID IDGenerator
}

// New builds a Detector. Pass nil to use DefaultIDGenerator.
func New(newID IDGenerator) *Detector {
	if newID == nil {
		newID = DefaultIDGenerator
	}
	return &Detector{newID: newID}
}

// Detect applies the fee/slippage-aware edge model to a fresh snapshot and
// emits a typed signal, or nil if no dislocation crosses the threshold.
func (d *Detector) Detect(
	snap types.MarketSnapshot,
	spec types.MarketSpec,
	fees UserFees,
	streak types.OracleStreak,
	params Params,
	nowMs int64,
) (*types.DislocationSignal, error) {
	if snap.Oracle.Value.IsZero() || snap.BestBid.Value.IsZero() || snap.BestAsk.Value.IsZero() {
		return nil, fmt.Errorf("detector: missing required snapshot field for %s", snap.Market)
	}

	totalCostBps := fees.TakerFeeBps.Mul(spec.FeeMultiplier).Add(fees.SlippageBps).Add(fees.MinEdgeBps)
	buyThreshold := one.Sub(totalCostBps.Div(ten000))
	sellThreshold := one.Add(totalCostBps.Div(ten000))

	oracle := snap.Oracle.Value

	buyTriggerPx := oracle.MulDec(buyThreshold)
	sellTriggerPx := oracle.MulDec(sellThreshold)

	var side types.Side
	var rawEdgeBps decimal.Decimal
	var bestPx types.Price
	var bookSize types.Size

	switch {
	case snap.BestAsk.Value.Cmp(buyTriggerPx) <= 0:
		side = types.Buy
		bestPx = snap.BestAsk.Value
		bookSize = snap.BestAskSize.Value
		rawEdgeBps = oracle.Decimal().Sub(bestPx.Decimal()).Div(oracle.Decimal()).Mul(ten000)
	case snap.BestBid.Value.Cmp(sellTriggerPx) >= 0:
		side = types.Sell
		bestPx = snap.BestBid.Value
		bookSize = snap.BestBidSize.Value
		rawEdgeBps = bestPx.Decimal().Sub(oracle.Decimal()).Div(oracle.Decimal()).Mul(ten000)
	default:
		return nil, nil
	}

	netEdgeBps := rawEdgeBps.Sub(totalCostBps)
	if !netEdgeBps.IsPositive() {
		return nil, nil
	}

	size := bookSize.Decimal().Mul(params.SizingAlpha)
	if !oracle.IsZero() {
		maxSize := params.MaxNotionalUSD.Div(oracle.Decimal())
		if maxSize.LessThan(size) {
			size = maxSize
		}
	}
	sizedSize := types.SizeFromDecimal(size).RoundDownToLot(spec.Lot)

	notional := sizedSize.Notional(oracle)
	if notional.LessThan(spec.MinNotional) {
		return nil, nil
	}

	strength := types.ClassifyStrength(netEdgeBps)

	sig := &types.DislocationSignal{
		SignalID:       d.newID(),
		Market:         snap.Market,
		Side:           side,
		RawEdgeBps:     rawEdgeBps,
		NetEdgeBps:     netEdgeBps,
		Strength:       strength,
		SuggestedSize:  sizedSize,
		OracleAtDetect: oracle,
		BestAtDetect:   bestPx,
		BookSize:       bookSize,
		DetectedAtMs:   nowMs,
		Fees: types.FeeMetadata{
			TakerFeeBps:   fees.TakerFeeBps,
			FeeMultiplier: spec.FeeMultiplier,
			SlippageBps:   fees.SlippageBps,
			MinEdgeBps:    fees.MinEdgeBps,
			TotalCostBps:  totalCostBps,
			BuyThreshold:  buyThreshold,
			SellThreshold: sellThreshold,
		},
		OracleVelocityBps: streak.VelocityBps,
	}
	return sig, nil
}
