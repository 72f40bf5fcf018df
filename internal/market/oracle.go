package market

import (
	"sync"

	"github.com/shopspring/decimal"

	"hip3-taker/pkg/types"
)

// deadbandBps is the minimum absolute bps change an oracle update must clear
// before it is bucketed as "up" or "down" rather than "flat". Below this, a
// streak neither extends nor resets - it is noise, not a move.
var deadbandBps = decimal.NewFromFloat(0.5)

// OracleTracker maintains the per-market consecutive-move streak and
// per-tick velocity. The detector records the velocity on each signal; the
// exit supervisor's oracle-reversal watcher reads the streak.
type OracleTracker struct {
	mu      sync.Mutex
	streaks map[types.MarketKey]types.OracleStreak
}

// NewOracleTracker creates an empty tracker.
func NewOracleTracker() *OracleTracker {
	return &OracleTracker{streaks: make(map[types.MarketKey]types.OracleStreak)}
}

// Update feeds a fresh oracle price for a market and returns the updated
// streak. The very first observation for a market seeds the streak at
// direction "flat", count 0, with no prior velocity.
func (t *OracleTracker) Update(market types.MarketKey, price types.Price, nowMs int64) types.OracleStreak {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.streaks[market]
	if !ok || prev.LastOracle.IsZero() {
		next := types.OracleStreak{
			LastOracle:  price,
			Direction:   types.DirFlat,
			Count:       0,
			VelocityBps: decimal.Zero,
			UpdatedAtMs: nowMs,
		}
		t.streaks[market] = next
		return next
	}

	bps := bpsChange(prev.LastOracle, price)
	absBps := bps.Abs()

	dir := types.DirFlat
	switch {
	case bps.GreaterThan(deadbandBps):
		dir = types.DirUp
	case bps.LessThan(deadbandBps.Neg()):
		dir = types.DirDown
	}

	direction := dir
	count := prev.Count
	switch {
	case dir == types.DirFlat:
		// A flat tick neither extends nor resets the streak; the prior
		// direction is preserved so the next real move can still extend it.
		direction = prev.Direction
	case dir == prev.Direction:
		count++
	default:
		count = 1
	}

	next := types.OracleStreak{
		LastOracle:  price,
		Direction:   direction,
		Count:       count,
		VelocityBps: absBps,
		UpdatedAtMs: nowMs,
	}
	t.streaks[market] = next
	return next
}

// Streak returns the current streak for a market, or the zero value and
// false if no observation has been recorded.
func (t *OracleTracker) Streak(market types.MarketKey) (types.OracleStreak, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.streaks[market]
	return s, ok
}

// bpsChange returns (to-from)/from * 10000, signed.
func bpsChange(from, to types.Price) decimal.Decimal {
	if from.IsZero() {
		return decimal.Zero
	}
	delta := to.Decimal().Sub(from.Decimal())
	return delta.Div(from.Decimal()).Mul(decimal.NewFromInt(10000))
}
