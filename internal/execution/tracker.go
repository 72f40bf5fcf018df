package execution

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"hip3-taker/pkg/types"
)

// NewClientOrderID generates a fresh random cloid.
func NewClientOrderID() string { return uuid.NewString() }

// OrderTracker tracks pending orders by client-id through the state machine
//
//	Queued -> Sent -> Acked -> {PartialFill -> (loop) / Cancelled}
//	Sent -> Rejected
//	(any non-terminal) -> TimedOut
//
// The Mark* methods do not check the edge: any non-terminal order may move
// to any state; only a move out of a terminal state is refused.
//
// A retransmission of the same client_order_id is idempotent: Register
// returns the existing TrackedOrder rather than creating a second one.
type OrderTracker struct {
	mu      sync.Mutex
	pending map[string]*types.TrackedOrder
	// newOrderMarkets holds the single in-flight non-reduce-only order slot
	// per market.
	newOrderMarkets map[types.MarketKey]string // market -> cloid holding the slot
}

// NewOrderTracker builds an empty tracker.
func NewOrderTracker() *OrderTracker {
	return &OrderTracker{
		pending:         make(map[string]*types.TrackedOrder),
		newOrderMarkets: make(map[types.MarketKey]string),
	}
}

// ErrNewOrderInFlight is returned by Register when the market already has a
// non-reduce-only order outstanding.
type ErrNewOrderInFlight struct {
	Market types.MarketKey
	Cloid  string
}

func (e ErrNewOrderInFlight) Error() string {
	return fmt.Sprintf("market %s already has in-flight new order %s", e.Market, e.Cloid)
}

// Register adds a PendingOrder to the tracker in the Queued state. A
// retransmission (same ClientOrderID) is a no-op that returns the existing
// tracked order rather than creating a duplicate.
func (t *OrderTracker) Register(order types.PendingOrder) (*types.TrackedOrder, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.pending[order.ClientOrderID]; ok {
		return existing, nil
	}

	if !order.ReduceOnly {
		if holder, busy := t.newOrderMarkets[order.Market]; busy {
			return nil, ErrNewOrderInFlight{Market: order.Market, Cloid: holder}
		}
		t.newOrderMarkets[order.Market] = order.ClientOrderID
	}

	tracked := &types.TrackedOrder{
		Order:         order,
		State:         types.OrderQueued,
		LastUpdatedMs: order.EnqueuedAtMs,
	}
	t.pending[order.ClientOrderID] = tracked
	return tracked, nil
}

// Get returns the tracked order for a cloid.
func (t *OrderTracker) Get(cloid string) (*types.TrackedOrder, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, ok := t.pending[cloid]
	return o, ok
}

// HasPendingNewOrder reports whether a market currently holds the
// single-in-flight-new-order slot.
func (t *OrderTracker) HasPendingNewOrder(market types.MarketKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.newOrderMarkets[market]
	return ok
}

// transition moves an order to a new state and, if terminal, removes it
// from the pending map (and releases its new-order-market slot, if held).
func (t *OrderTracker) transition(cloid string, to types.OrderState, mutate func(*types.TrackedOrder), nowMs int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tracked, ok := t.pending[cloid]
	if !ok {
		return fmt.Errorf("execution: unknown client order id %q", cloid)
	}
	if tracked.State.IsTerminal() {
		return fmt.Errorf("execution: order %q already in terminal state %s", cloid, tracked.State)
	}

	tracked.State = to
	tracked.LastUpdatedMs = nowMs
	if mutate != nil {
		mutate(tracked)
	}

	if to.IsTerminal() {
		delete(t.pending, cloid)
		if holder, ok := t.newOrderMarkets[tracked.Order.Market]; ok && holder == cloid {
			delete(t.newOrderMarkets, tracked.Order.Market)
		}
	}
	return nil
}

// MarkSent transitions Queued -> Sent.
func (t *OrderTracker) MarkSent(cloid string, nowMs int64) error {
	return t.transition(cloid, types.OrderSent, nil, nowMs)
}

// MarkAcked transitions Sent -> Acked, recording the venue order id.
func (t *OrderTracker) MarkAcked(cloid, venueOrderID string, nowMs int64) error {
	return t.transition(cloid, types.OrderAcked, func(o *types.TrackedOrder) {
		o.Order.VenueOrderID = venueOrderID
	}, nowMs)
}

// MarkPartialFill transitions Acked/PartialFill -> PartialFill, accumulating
// the filled size.
func (t *OrderTracker) MarkPartialFill(cloid string, filledDelta types.Size, nowMs int64) error {
	return t.transition(cloid, types.OrderPartialFill, func(o *types.TrackedOrder) {
		o.FilledSize = o.FilledSize.Add(filledDelta)
	}, nowMs)
}

// MarkFilled transitions to the terminal Filled state.
func (t *OrderTracker) MarkFilled(cloid string, finalFilledDelta types.Size, nowMs int64) error {
	return t.transition(cloid, types.OrderFilled, func(o *types.TrackedOrder) {
		o.FilledSize = o.FilledSize.Add(finalFilledDelta)
	}, nowMs)
}

// MarkCancelled transitions to the terminal Cancelled state.
func (t *OrderTracker) MarkCancelled(cloid string, nowMs int64) error {
	return t.transition(cloid, types.OrderCancelled, nil, nowMs)
}

// MarkRejected transitions to the terminal Rejected state, recording the
// reason. A reject increments the consecutive-reject counter monitored by
// the risk monitor - callers are responsible for reporting that event.
func (t *OrderTracker) MarkRejected(cloid, reason string, nowMs int64) error {
	return t.transition(cloid, types.OrderRejected, func(o *types.TrackedOrder) {
		o.RejectReason = reason
	}, nowMs)
}

// MarkTimedOut transitions any non-terminal state to the terminal TimedOut
// state. A late-arriving fill after a timeout is reconciled by the caller,
// not rejected here - the order is already out of the pending map by then.
func (t *OrderTracker) MarkTimedOut(cloid string, nowMs int64) error {
	return t.transition(cloid, types.OrderTimedOut, nil, nowMs)
}

// PendingOrders returns a snapshot of every order still in flight.
func (t *OrderTracker) PendingOrders() []types.TrackedOrder {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]types.TrackedOrder, 0, len(t.pending))
	for _, o := range t.pending {
		out = append(out, *o)
	}
	return out
}
