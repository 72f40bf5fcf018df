package risk

import (
	"fmt"

	"hip3-taker/internal/config"
	"hip3-taker/pkg/types"
)

// GateBlockedError surfaces a hard gate failure as a per-signal outcome; it
// never kills the pipeline.
type GateBlockedError struct {
	Gate   string
	Reason string
}

func (e GateBlockedError) Error() string { return fmt.Sprintf("gate %s blocked: %s", e.Gate, e.Reason) }

// SkippedError surfaces a soft-gate skip: expected under normal operation,
// not counted against consecutive-error thresholds.
type SkippedError struct {
	Gate   string
	Reason string
}

func (e SkippedError) Error() string { return fmt.Sprintf("gate %s skipped: %s", e.Gate, e.Reason) }

// Gate names, in evaluation order. Cheaper gates and gates whose failure
// points at infrastructure problems run before gates that merely disqualify
// the one opportunity.
const (
	GateHardStop             = "HardStop"
	GateReadyTrading         = "ReadyTrading"
	GateOracleFresh          = "OracleFresh"
	GateParamChange          = "ParamChange"
	GateHalt                 = "Halt"
	GateMarkMidDivergence    = "MarkMidDivergence"
	GateSpreadShock          = "SpreadShock"
	GateOiCap                = "OiCap"
	GateBufferLow            = "BufferLow"
	GateMaxPositionPerMarket = "MaxPositionPerMarket"
	GateMaxPositionTotal     = "MaxPositionTotal"

	GateAlreadyHasPosition    = "AlreadyHasPosition"
	GatePendingOrderExists    = "PendingOrderExists"
	GateActionBudgetExhausted = "ActionBudgetExhausted"
)

// Inputs bundles everything the gate chain needs to evaluate one candidate
// signal. All price-derived quantities arrive pre-computed in bps/USD so the
// chain itself does no decimal arithmetic - that happens upstream in the
// feed/detector layer.
type Inputs struct {
	NowMs int64

	SessionReady bool

	OracleAgeMs int64

	PinnedSpec  types.MarketSpec
	CurrentSpec types.MarketSpec

	Halted bool

	MarkMidDivergenceBps float64
	SpreadBps            float64
	OpenInterestUSD      float64
	LiquidationBufferPct float64

	CurrentPositionUSD   float64 // signed
	ProposedDeltaUSD     float64 // signed notional the candidate order would add
	PortfolioNotionalUSD float64 // sum of absolute notionals across all markets, excluding this one

	HasPosition     bool
	HasPendingOrder bool

	// TakeActionBudget consumes one action-budget token and reports whether
	// one was available. The chain invokes it only after every earlier gate
	// has passed, so a signal blocked upstream never spends a token. Nil
	// means no budget applies.
	TakeActionBudget func() bool
}

// Chain runs the ordered precondition battery.
type Chain struct {
	cfg      config.RiskConfig
	hardStop *HardStop
}

// NewChain builds a gate chain bound to a hard-stop latch and threshold config.
func NewChain(cfg config.RiskConfig, hardStop *HardStop) *Chain {
	return &Chain{cfg: cfg, hardStop: hardStop}
}

// Evaluate runs every gate in order and short-circuits on the first hard
// block (gates 1-11). If all hard gates pass, it then checks the soft gates
// (AlreadyHasPosition, PendingOrderExists, ActionBudgetExhausted) in order
// and returns the first skip. A nil error means the signal is admitted.
func (c *Chain) Evaluate(in Inputs) error {
	if c.hardStop.IsTripped() {
		return GateBlockedError{Gate: GateHardStop, Reason: "latch is tripped"}
	}
	if !in.SessionReady {
		return GateBlockedError{Gate: GateReadyTrading, Reason: "transport or subscriptions not ready"}
	}
	if in.OracleAgeMs > c.cfg.OracleFreshWindowMs {
		return GateBlockedError{Gate: GateOracleFresh, Reason: fmt.Sprintf("oracle age %dms exceeds window %dms", in.OracleAgeMs, c.cfg.OracleFreshWindowMs)}
	}
	if !in.PinnedSpec.Equal(in.CurrentSpec) {
		return GateBlockedError{Gate: GateParamChange, Reason: "market spec changed since discovery"}
	}
	if in.Halted {
		return GateBlockedError{Gate: GateHalt, Reason: "venue reports market halted"}
	}
	if in.MarkMidDivergenceBps > c.cfg.MarkMidDivergenceBps {
		return GateBlockedError{Gate: GateMarkMidDivergence, Reason: fmt.Sprintf("divergence %.2fbps exceeds %.2fbps", in.MarkMidDivergenceBps, c.cfg.MarkMidDivergenceBps)}
	}
	if in.SpreadBps > c.cfg.SpreadShockCeilingBps {
		return GateBlockedError{Gate: GateSpreadShock, Reason: fmt.Sprintf("spread %.2fbps exceeds ceiling %.2fbps", in.SpreadBps, c.cfg.SpreadShockCeilingBps)}
	}
	if in.OpenInterestUSD > c.cfg.OiCapUSD {
		return GateBlockedError{Gate: GateOiCap, Reason: fmt.Sprintf("OI %.2f exceeds cap %.2f", in.OpenInterestUSD, c.cfg.OiCapUSD)}
	}
	if in.LiquidationBufferPct < c.cfg.LiquidationBufferFloorPct {
		return GateBlockedError{Gate: GateBufferLow, Reason: fmt.Sprintf("buffer %.4f below floor %.4f", in.LiquidationBufferPct, c.cfg.LiquidationBufferFloorPct)}
	}
	projected := abs(in.CurrentPositionUSD + in.ProposedDeltaUSD)
	if projected > c.cfg.MaxPositionPerMarketUSD {
		return GateBlockedError{Gate: GateMaxPositionPerMarket, Reason: fmt.Sprintf("projected %.2f exceeds per-market cap %.2f", projected, c.cfg.MaxPositionPerMarketUSD)}
	}
	totalProjected := in.PortfolioNotionalUSD + abs(in.ProposedDeltaUSD)
	if totalProjected > c.cfg.MaxPositionTotalUSD {
		return GateBlockedError{Gate: GateMaxPositionTotal, Reason: fmt.Sprintf("projected total %.2f exceeds portfolio cap %.2f", totalProjected, c.cfg.MaxPositionTotalUSD)}
	}

	if in.HasPosition {
		return SkippedError{Gate: GateAlreadyHasPosition, Reason: "market already has an open position"}
	}
	if in.HasPendingOrder {
		return SkippedError{Gate: GatePendingOrderExists, Reason: "a non-reduce-only order is already pending"}
	}
	// The budget token is spent here, as the last gate, and nowhere else: a
	// signal rejected by any earlier gate must leave the bucket untouched.
	if in.TakeActionBudget != nil && !in.TakeActionBudget() {
		return SkippedError{Gate: GateActionBudgetExhausted, Reason: "per-market action budget exhausted"}
	}

	return nil
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
