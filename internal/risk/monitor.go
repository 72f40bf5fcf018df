package risk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"hip3-taker/internal/config"
	"hip3-taker/pkg/types"
)

// ExecutionEventType enumerates the outcomes the risk monitor consumes.
type ExecutionEventType string

const (
	EventRejected  ExecutionEventType = "Rejected"
	EventTimedOut  ExecutionEventType = "TimedOut"
	EventFilled    ExecutionEventType = "Filled"
	EventCancelled ExecutionEventType = "Cancelled"
	EventHeartbeat ExecutionEventType = "Heartbeat"
)

// ExecutionEvent is one notification from the execution pipeline.
type ExecutionEvent struct {
	Type   ExecutionEventType
	Market types.MarketKey
	At     time.Time

	// RealizedPnLUSD is set on Filled events and accumulates into the
	// drawdown tracker.
	RealizedPnLUSD float64
}

// Monitor runs as a dedicated worker consuming an ExecutionEvent stream and
// trips the hard-stop latch on threshold breach, parameter-change, or
// drawdown cap. It must never block the execution pipeline: Report is
// non-blocking and drops under backpressure.
type Monitor struct {
	cfg      config.RiskConfig
	hardStop *HardStop
	logger   *slog.Logger

	events chan ExecutionEvent

	rejects  *slidingWindow
	timeouts *slidingWindow

	cumulativePnLUSD float64
	peakPnLUSD       float64
}

// NewMonitor builds a risk monitor bound to a hard-stop latch.
func NewMonitor(cfg config.RiskConfig, hardStop *HardStop, logger *slog.Logger, bufferSize int) *Monitor {
	return &Monitor{
		cfg:      cfg,
		hardStop: hardStop,
		logger:   logger.With("component", "risk-monitor"),
		events:   make(chan ExecutionEvent, bufferSize),
		rejects:  newSlidingWindow(cfg.RejectWindow),
		timeouts: newSlidingWindow(cfg.TimeoutWindow),
	}
}

// Report submits an execution event without blocking the caller. Under
// backpressure the event is dropped and a warning logged; the monitor's
// sliding windows tolerate a missed sample far better than the execution
// pipeline tolerates a blocked send.
func (m *Monitor) Report(evt ExecutionEvent) {
	select {
	case m.events <- evt:
	default:
		m.logger.Warn("risk monitor event channel full, dropping event", "type", evt.Type, "market", evt.Market)
	}
}

// TripParameterChange trips the latch for an external parameter-change
// event: a market spec that changed shape after discovery.
func (m *Monitor) TripParameterChange(market types.MarketKey, now time.Time) {
	m.hardStop.Trip(fmt.Sprintf("ParameterChange: %s", market), now)
}

// CheckMarkMidDivergence trips the latch when divergenceBps exceeds the
// emergency threshold - the higher, trip-the-whole-process companion to the
// gate chain's per-signal MarkMidDivergence block.
func (m *Monitor) CheckMarkMidDivergence(market types.MarketKey, divergenceBps float64, now time.Time) {
	if divergenceBps <= m.cfg.MarkMidEmergencyBps {
		return
	}
	m.hardStop.Trip(fmt.Sprintf("MarkMidEmergency: %s divergence=%.2fbps", market, divergenceBps), now)
	m.logger.Error("hard stop: mark-mid emergency divergence breached", "market", market, "divergence_bps", divergenceBps, "threshold_bps", m.cfg.MarkMidEmergencyBps)
}

// Run consumes the event stream until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-m.events:
			m.process(evt)
		}
	}
}

func (m *Monitor) process(evt ExecutionEvent) {
	switch evt.Type {
	case EventRejected:
		m.rejects.Add(evt.At)
		if n := m.rejects.Count(evt.At); n >= m.cfg.ConsecutiveRejectLimit {
			m.hardStop.Trip("ConsecutiveRejects", evt.At)
			m.logger.Error("hard stop: consecutive reject threshold breached", "count", n, "limit", m.cfg.ConsecutiveRejectLimit)
		}
	case EventTimedOut:
		m.timeouts.Add(evt.At)
		if n := m.timeouts.Count(evt.At); n >= m.cfg.ConsecutiveTimeoutLimit {
			m.hardStop.Trip("ConsecutiveTimeouts", evt.At)
			m.logger.Error("hard stop: consecutive timeout threshold breached", "count", n, "limit", m.cfg.ConsecutiveTimeoutLimit)
		}
	case EventFilled:
		m.cumulativePnLUSD += evt.RealizedPnLUSD
		if m.cumulativePnLUSD > m.peakPnLUSD {
			m.peakPnLUSD = m.cumulativePnLUSD
		}
		drawdown := m.peakPnLUSD - m.cumulativePnLUSD
		if drawdown > m.cfg.MaxDrawdownUSD {
			m.hardStop.Trip("MaxDrawdown", evt.At)
			m.logger.Error("hard stop: drawdown cap breached", "drawdown_usd", drawdown, "cap_usd", m.cfg.MaxDrawdownUSD)
		}
	case EventCancelled:
		// No counters track cancellations; informational only.
	case EventHeartbeat:
		// Heartbeats exist to keep the sliding windows' clock moving even
		// when no orders are in flight; no action beyond window pruning,
		// which happens lazily on the next Count/Add call.
	}
}

// ConsecutiveRejects returns the current reject count for observability.
func (m *Monitor) ConsecutiveRejects(now time.Time) int { return m.rejects.Count(now) }

// ConsecutiveTimeouts returns the current timeout count for observability.
func (m *Monitor) ConsecutiveTimeouts(now time.Time) int { return m.timeouts.Count(now) }

// slidingWindow counts events within a trailing duration.
type slidingWindow struct {
	window time.Duration
	times  []time.Time
}

func newSlidingWindow(window time.Duration) *slidingWindow {
	return &slidingWindow{window: window}
}

func (w *slidingWindow) Add(at time.Time) {
	w.times = append(w.times, at)
	w.prune(at)
}

func (w *slidingWindow) Count(now time.Time) int {
	w.prune(now)
	return len(w.times)
}

func (w *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.times) && w.times[i].Before(cutoff) {
		i++
	}
	w.times = w.times[i:]
}
