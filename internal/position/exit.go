package position

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"hip3-taker/internal/config"
	"hip3-taker/internal/execution"
	"hip3-taker/pkg/types"
)

// PriceProvider is the flatten builder's price source. *market.Feed
// satisfies it directly; tests substitute a fixture.
type PriceProvider interface {
	Snapshot(market types.MarketKey) (types.MarketSnapshot, bool)
}

// StreakProvider supplies the oracle movement streak the reversal/catch-up
// watcher consumes. *market.OracleTracker satisfies it directly.
type StreakProvider interface {
	Streak(market types.MarketKey) (types.OracleStreak, bool)
}

// orderEnqueuer is the narrow slice of *execution.Scheduler the exit
// supervisor needs.
type orderEnqueuer interface {
	EnqueueReduceOnly(a execution.QueuedAction)
}

// Clock abstracts wall-clock reads for deterministic tests, matching the
// pattern used by the nonce manager.
type Clock func() time.Time

var bps10000 = decimal.NewFromInt(10000)

// ExitSupervisor runs three additive exit triggers - time stop,
// mark-regression, and oracle-reversal/catch-up - the earliest of which
// wins. All three emit reduce-only orders through the scheduler's middle
// queue, with flatten-in-flight de-duplication so a position receives at
// most one outstanding exit attempt at a time.
type ExitSupervisor struct {
	cfg       config.ExitConfig
	tracker   *Tracker
	prices    PriceProvider
	streaks   StreakProvider
	scheduler orderEnqueuer
	logger    *slog.Logger
	clock     Clock

	timeStopTick time.Duration
}

// NewExitSupervisor builds an exit supervisor. timeStopTick sets how often
// the time-stop sweep runs over open positions (the mark-regression and
// oracle-reversal watchers instead react synchronously to feed updates).
func NewExitSupervisor(cfg config.ExitConfig, tracker *Tracker, prices PriceProvider, streaks StreakProvider, scheduler orderEnqueuer, logger *slog.Logger, clock Clock, timeStopTick time.Duration) *ExitSupervisor {
	if clock == nil {
		clock = time.Now
	}
	return &ExitSupervisor{
		cfg:          cfg,
		tracker:      tracker,
		prices:       prices,
		streaks:      streaks,
		scheduler:    scheduler,
		logger:       logger.With("component", "exit-supervisor"),
		clock:        clock,
		timeStopTick: timeStopTick,
	}
}

// Run drives the time-stop sweep on a ticker until ctx is cancelled. The
// mark-regression and oracle-reversal watchers are not polled here - the
// feed consumer calls OnUpdate synchronously for each market event, which
// keeps exit latency bounded by the event itself rather than a tick.
func (s *ExitSupervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.timeStopTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepTimeStops()
		}
	}
}

// FlattenAll emits a reduce-only flatten for every open position that does
// not already have one in flight. Used on the shutdown drain path; routine
// exits go through the per-trigger checks instead.
func (s *ExitSupervisor) FlattenAll(reason string) {
	now := s.clock()
	for _, pos := range s.tracker.OpenPositions() {
		if pos.FlattenInFlight {
			continue
		}
		s.trigger(pos, reason, now)
	}
}

// sweepTimeStops checks every open position for time-stop expiry.
func (s *ExitSupervisor) sweepTimeStops() {
	now := s.clock()
	for _, pos := range s.tracker.OpenPositions() {
		s.checkTimeStop(pos, now)
	}
}

// OnUpdate evaluates the mark-regression and oracle-reversal watchers for a
// single market synchronously, the hot path triggered by a BBO/oracle event.
func (s *ExitSupervisor) OnUpdate(mkt types.MarketKey) {
	pos, ok := s.tracker.Position(mkt)
	if !ok || pos.IsFlat() || pos.FlattenInFlight {
		return
	}
	now := s.clock()

	if s.checkTimeStop(pos, now) {
		return
	}
	if s.checkMarkRegression(pos, now) {
		return
	}
	s.checkOracleReversal(pos, now)
}

func (s *ExitSupervisor) checkTimeStop(pos types.Position, now time.Time) bool {
	if pos.IsFlat() || pos.FlattenInFlight {
		return false
	}
	elapsedMs := now.UnixMilli() - pos.OpenedAtMs
	if elapsedMs < s.cfg.TimeStop.Milliseconds() {
		return false
	}
	s.trigger(pos, "TimeStop", now)
	return true
}

func (s *ExitSupervisor) checkMarkRegression(pos types.Position, now time.Time) bool {
	snap, ok := s.prices.Snapshot(pos.Market)
	if !ok {
		return false
	}
	oracle := snap.Oracle.Value
	if oracle.IsZero() {
		return false
	}
	thresholdFrac := decimal.NewFromFloat(s.cfg.MarkRegressionBps).Div(bps10000)

	switch pos.Side() {
	case types.Buy:
		if snap.BestBid.Value.IsZero() {
			return false
		}
		threshold := oracle.MulDec(decimal.NewFromInt(1).Sub(thresholdFrac))
		if snap.BestBid.Value.Cmp(threshold) >= 0 {
			s.trigger(pos, "MarkRegression", now)
			return true
		}
	case types.Sell:
		if snap.BestAsk.Value.IsZero() {
			return false
		}
		threshold := oracle.MulDec(decimal.NewFromInt(1).Add(thresholdFrac))
		if snap.BestAsk.Value.Cmp(threshold) <= 0 {
			s.trigger(pos, "MarkRegression", now)
			return true
		}
	}
	return false
}

func (s *ExitSupervisor) checkOracleReversal(pos types.Position, now time.Time) bool {
	streak, ok := s.streaks.Streak(pos.Market)
	if !ok {
		return false
	}

	adverse, favorable := types.DirDown, types.DirUp
	if pos.Side() == types.Sell {
		adverse, favorable = types.DirUp, types.DirDown
	}

	switch {
	case streak.Direction == adverse && streak.Count >= s.cfg.LossCutStreak:
		s.trigger(pos, "OracleReversalLossCut", now)
		return true
	case streak.Direction == favorable && streak.Count >= s.cfg.ProfitTakeStreak:
		s.trigger(pos, "OracleReversalProfitTake", now)
		return true
	}
	return false
}

// trigger builds and enqueues the reduce-only flatten order, marking the
// position flatten-in-flight to de-duplicate further exit attempts.
func (s *ExitSupervisor) trigger(pos types.Position, reason string, now time.Time) {
	flattenPrice, ok := s.flattenPrice(pos)
	if !ok {
		s.logger.Warn("exit: no price available for flatten, skipping", "market", pos.Market, "reason", reason)
		return
	}

	s.tracker.MarkFlattenInFlight(pos.Market, true)

	side := types.Sell
	if pos.NetSize.IsNegative() {
		side = types.Buy
	}
	order := types.PendingOrder{
		ClientOrderID: execution.NewClientOrderID(),
		Market:        pos.Market,
		Side:          side,
		LimitPrice:    flattenPrice,
		Size:          sizeFromAbsDecimal(pos.NetSize),
		TIF:           types.TIFIoc,
		ReduceOnly:    true,
		EnqueuedAtMs:  now.UnixMilli(),
	}

	// Register before enqueueing so the eventual fill and terminal events
	// resolve against a known pending entry.
	if err := s.tracker.RegisterOrder(order); err != nil {
		s.logger.Warn("exit: tracker busy, retrying flatten on next trigger", "market", pos.Market, "error", err)
		s.tracker.MarkFlattenInFlight(pos.Market, false)
		return
	}

	s.logger.Info("exit: flattening position", "market", pos.Market, "reason", reason, "side", side)
	s.scheduler.EnqueueReduceOnly(execution.QueuedAction{Order: order})
}

// flattenPrice computes mark +/- slippage on the correct side so the
// reduce-only IOC crosses the book.
func (s *ExitSupervisor) flattenPrice(pos types.Position) (types.Price, bool) {
	snap, ok := s.prices.Snapshot(pos.Market)
	if !ok {
		return types.Price{}, false
	}
	mark := snap.Mark.Value
	if mark.IsZero() {
		if mid, ok := snap.Mid(); ok {
			mark = mid
		} else {
			return types.Price{}, false
		}
	}

	slip := decimal.NewFromFloat(s.cfg.FlattenSlippageBps).Div(bps10000)
	if pos.Side() == types.Buy {
		// Selling to close a long: price below mark to cross the bid.
		return mark.MulDec(decimal.NewFromInt(1).Sub(slip)), true
	}
	// Buying to close a short: price above mark to cross the ask.
	return mark.MulDec(decimal.NewFromInt(1).Add(slip)), true
}

func sizeFromAbsDecimal(signed decimal.Decimal) types.Size {
	return types.SizeFromDecimal(signed.Abs())
}
