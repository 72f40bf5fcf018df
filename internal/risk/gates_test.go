package risk

import (
	"testing"
	"time"

	"hip3-taker/internal/config"
	"hip3-taker/pkg/types"
)

func baseChain() (*Chain, *HardStop) {
	cfg := config.RiskConfig{
		OracleFreshWindowMs:       1000,
		MarkMidDivergenceBps:      50,
		SpreadShockCeilingBps:     100,
		OiCapUSD:                  1_000_000,
		LiquidationBufferFloorPct: 0.1,
		MaxPositionPerMarketUSD:   10_000,
		MaxPositionTotalUSD:       50_000,
	}
	hs := NewHardStop(nil)
	return NewChain(cfg, hs), hs
}

func baseInputs() Inputs {
	spec := types.MarketSpec{Market: types.MarketKey{AssetId: 1}}
	return Inputs{
		SessionReady:         true,
		OracleAgeMs:          10,
		PinnedSpec:           spec,
		CurrentSpec:          spec,
		LiquidationBufferPct: 0.5,
	}
}

// A stale oracle (age = 2x window) must surface as an OracleFresh block;
// later gates are never evaluated.
func TestGateShortCircuitsOnOracleFresh(t *testing.T) {
	chain, _ := baseChain()
	in := baseInputs()
	in.OracleAgeMs = 2000 // 2x the 1000ms window

	err := chain.Evaluate(in)
	blocked, ok := err.(GateBlockedError)
	if !ok {
		t.Fatalf("err = %v (%T), want GateBlockedError", err, err)
	}
	if blocked.Gate != GateOracleFresh {
		t.Fatalf("gate = %s, want OracleFresh", blocked.Gate)
	}
}

func TestGateHardStopFirst(t *testing.T) {
	chain, hs := baseChain()
	hs.Trip("test", time.Now())

	err := chain.Evaluate(baseInputs())
	blocked, ok := err.(GateBlockedError)
	if !ok || blocked.Gate != GateHardStop {
		t.Fatalf("err = %v, want GateBlockedError{HardStop}", err)
	}
}

func TestGateAdmitsCleanSignal(t *testing.T) {
	chain, _ := baseChain()
	if err := chain.Evaluate(baseInputs()); err != nil {
		t.Fatalf("expected admission, got %v", err)
	}
}

func TestGateSoftSkipAfterHardGatesPass(t *testing.T) {
	chain, _ := baseChain()
	in := baseInputs()
	in.HasPosition = true

	err := chain.Evaluate(in)
	skip, ok := err.(SkippedError)
	if !ok || skip.Gate != GateAlreadyHasPosition {
		t.Fatalf("err = %v, want SkippedError{AlreadyHasPosition}", err)
	}
}

// The action-budget token is the last gate: any earlier block or skip must
// leave the bucket untouched, and an admitted signal spends exactly one.
func TestGateActionBudgetSpentOnlyAsLastGate(t *testing.T) {
	chain, hs := baseChain()

	var takes int
	take := func(ok bool) func() bool {
		return func() bool {
			takes++
			return ok
		}
	}

	hs.Trip("test", time.Now())
	in := baseInputs()
	in.TakeActionBudget = take(true)
	if _, ok := chain.Evaluate(in).(GateBlockedError); !ok {
		t.Fatal("expected a hard block with the latch tripped")
	}
	hs.Reset()

	in = baseInputs()
	in.HasPendingOrder = true
	in.TakeActionBudget = take(true)
	if _, ok := chain.Evaluate(in).(SkippedError); !ok {
		t.Fatal("expected a soft skip with an order pending")
	}
	if takes != 0 {
		t.Fatalf("budget consumed %d times on signals that never reached the budget gate", takes)
	}

	in = baseInputs()
	in.TakeActionBudget = take(false)
	err := chain.Evaluate(in)
	skip, ok := err.(SkippedError)
	if !ok || skip.Gate != GateActionBudgetExhausted {
		t.Fatalf("err = %v, want SkippedError{ActionBudgetExhausted}", err)
	}
	if takes != 1 {
		t.Fatalf("takes = %d, want exactly one on the budget gate itself", takes)
	}

	in = baseInputs()
	in.TakeActionBudget = take(true)
	if err := chain.Evaluate(in); err != nil {
		t.Fatalf("expected admission, got %v", err)
	}
	if takes != 2 {
		t.Fatalf("takes = %d, want one more for the admitted signal", takes)
	}
}
