package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderState is the order lifecycle state machine:
//
//	Queued -> Sent -> Acked -> {PartialFill -> (loop) / Cancelled}
//	Sent -> Rejected
//	(any non-terminal) -> TimedOut
//
// Terminal states: Filled, Cancelled, Rejected, TimedOut.
type OrderState string

const (
	OrderQueued      OrderState = "Queued"
	OrderSent        OrderState = "Sent"
	OrderAcked       OrderState = "Acked"
	OrderPartialFill OrderState = "PartialFill"
	OrderFilled      OrderState = "Filled"
	OrderCancelled   OrderState = "Cancelled"
	OrderRejected    OrderState = "Rejected"
	OrderTimedOut    OrderState = "TimedOut"
)

// IsTerminal reports whether the state removes the order from the pending map.
func (s OrderState) IsTerminal() bool {
	switch s {
	case OrderFilled, OrderCancelled, OrderRejected, OrderTimedOut:
		return true
	default:
		return false
	}
}

// PendingOrder is the caller-constructed description of an order to send.
// ClientOrderID is unique and idempotency-critical: a retransmission reuses
// the same id.
type PendingOrder struct {
	ClientOrderID string
	Market        MarketKey
	Side          Side
	LimitPrice    Price
	Size          Size
	TIF           TimeInForce
	ReduceOnly    bool
	EnqueuedAtMs  int64
	VenueOrderID  string // filled post-ack, empty until then
}

// TrackedOrder wraps a PendingOrder with its current state-machine position.
type TrackedOrder struct {
	Order         PendingOrder
	State         OrderState
	FilledSize    Size
	LastUpdatedMs int64
	RejectReason  string
}

// Position is the per-market net position.
type Position struct {
	Market            MarketKey
	NetSize           decimal.Decimal // signed: positive = long
	AvgEntryPrice     Price
	RealizedPnL       decimal.Decimal
	OpenedAtMs        int64
	OpenClientOrderID string
	StopLossRef       Price
	FlattenInFlight   bool
}

// IsFlat reports whether the position has zero net size.
func (p Position) IsFlat() bool { return p.NetSize.IsZero() }

// Side returns the position's directional side, or "" if flat.
func (p Position) Side() Side {
	if p.NetSize.IsPositive() {
		return Buy
	}
	if p.NetSize.IsNegative() {
		return Sell
	}
	return ""
}

// HardStopState is a one-way latch: once set, only operator intervention
// clears it, never software.
type HardStopState struct {
	Tripped   bool
	Reason    string
	TrippedAt time.Time
}

// Trip sets the latch. Idempotent: tripping an already-tripped latch keeps
// the original reason and timestamp.
func (h *HardStopState) Trip(reason string, now time.Time) {
	if h.Tripped {
		return
	}
	h.Tripped = true
	h.Reason = reason
	h.TrippedAt = now
}
