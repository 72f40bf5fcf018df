// Package position implements the position tracker and the exit
// supervisor. The tracker is a dual-view actor: a single goroutine owns
// authoritative state reached only through a message channel, while a
// striped-lock cache absorbs concurrent hot-path reads and is updated
// eagerly by callers ahead of the authoritative apply. The cache is
// therefore a superset of authoritative state - gate checks never miss a
// pending order, but may briefly see one the actor has not applied yet.
package position

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"hip3-taker/pkg/types"
)

const numShards = 16

// terminalTombstones bounds how many recently-terminal orders are kept
// around so a fill that arrives after its order update (the two streams
// carry no cross-ordering guarantee) can still be applied.
const terminalTombstones = 256

// ErrTrackerBusy is returned by RegisterOrder when the actor's message
// channel is full; the caller must roll back whatever else it admitted.
var ErrTrackerBusy = errors.New("position: tracker busy, order not admitted")

type msgKind int

const (
	msgRegister msgKind = iota
	msgAck
	msgFill
	msgTerminal
	msgSetFlatten
)

type trackerMsg struct {
	kind    msgKind
	cloid   string
	order   types.PendingOrder // msgRegister
	oid     string             // msgAck
	fillPx  types.Price        // msgFill
	fillSz  types.Size         // msgFill
	state   types.OrderState   // msgTerminal
	market  types.MarketKey    // msgSetFlatten
	flatten bool               // msgSetFlatten
}

type pendingEntry struct {
	market       types.MarketKey
	side         types.Side
	notional     decimal.Decimal
	reduceOnly   bool
	enqueuedAtMs int64
}

// cacheShard holds one stripe of the hot-path read cache.
type cacheShard struct {
	mu        sync.RWMutex
	pending   map[string]pendingEntry // cloid -> entry
	positions map[types.MarketKey]types.Position
}

// Tracker owns per-market net positions and the pending-order view the risk
// gates read.
type Tracker struct {
	logger *slog.Logger
	ch     chan trackerMsg
	shards [numShards]*cacheShard

	// authoritative state - touched only by the Run goroutine.
	positions      map[types.MarketKey]*types.Position
	pendingOrders  map[string]pendingEntry
	recentTerminal map[string]pendingEntry
	terminalOrder  []string // FIFO eviction for recentTerminal

	// onRealized, when set, is invoked from the actor goroutine with the
	// realized-PnL delta of each reducing fill. It is the thin handle the
	// risk monitor's drawdown tracking hangs off of, so the tracker never
	// needs a reference to the monitor itself.
	onRealized func(market types.MarketKey, deltaUSD float64)
}

// NewTracker builds a tracker with the given message-channel buffer size.
func NewTracker(logger *slog.Logger, bufferSize int) *Tracker {
	t := &Tracker{
		logger:         logger.With("component", "position-tracker"),
		ch:             make(chan trackerMsg, bufferSize),
		positions:      make(map[types.MarketKey]*types.Position),
		pendingOrders:  make(map[string]pendingEntry),
		recentTerminal: make(map[string]pendingEntry),
	}
	for i := range t.shards {
		t.shards[i] = &cacheShard{
			pending:   make(map[string]pendingEntry),
			positions: make(map[types.MarketKey]types.Position),
		}
	}
	return t
}

// SetRealizedPnLHandle registers the callback invoked whenever a reducing
// fill realizes PnL. Must be called before Run.
func (t *Tracker) SetRealizedPnLHandle(fn func(market types.MarketKey, deltaUSD float64)) {
	t.onRealized = fn
}

func (t *Tracker) shardFor(market types.MarketKey) *cacheShard {
	h := fnv.New32a()
	h.Write([]byte(market.String()))
	return t.shards[h.Sum32()%numShards]
}

// Run consumes the actor's message channel, applying each mutation to
// authoritative state and mirroring the result into the read cache, until
// ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-t.ch:
			t.apply(msg)
		}
	}
}

func (t *Tracker) apply(msg trackerMsg) {
	switch msg.kind {
	case msgRegister:
		t.applyRegister(msg)
	case msgAck:
		t.applyAck(msg)
	case msgFill:
		t.applyFill(msg)
	case msgTerminal:
		t.applyTerminal(msg)
	case msgSetFlatten:
		t.applySetFlatten(msg)
	}
}

func (t *Tracker) applySetFlatten(msg trackerMsg) {
	pos, ok := t.positions[msg.market]
	if !ok {
		pos = &types.Position{Market: msg.market}
		t.positions[msg.market] = pos
	}
	pos.FlattenInFlight = msg.flatten

	shard := t.shardFor(msg.market)
	shard.mu.Lock()
	shard.positions[msg.market] = *pos
	shard.mu.Unlock()
}

func (t *Tracker) applyRegister(msg trackerMsg) {
	order := msg.order
	entry := pendingEntry{
		market:       order.Market,
		side:         order.Side,
		notional:     order.Size.Notional(order.LimitPrice),
		reduceOnly:   order.ReduceOnly,
		enqueuedAtMs: order.EnqueuedAtMs,
	}
	t.pendingOrders[msg.cloid] = entry

	if _, ok := t.positions[order.Market]; !ok {
		t.positions[order.Market] = &types.Position{Market: order.Market}
	}

	shard := t.shardFor(order.Market)
	shard.mu.Lock()
	shard.pending[msg.cloid] = entry
	shard.mu.Unlock()
}

func (t *Tracker) applyAck(msg trackerMsg) {
	if _, ok := t.pendingOrders[msg.cloid]; !ok {
		t.logger.Debug("ack for unknown order", "cloid", msg.cloid)
	}
	_ = msg.oid // venue order id is carried by the order tracker, not position state
}

func (t *Tracker) applyFill(msg trackerMsg) {
	entry, ok := t.pendingOrders[msg.cloid]
	if !ok {
		// The order update may have gone terminal before this fill arrived;
		// late fills are still applied off the tombstone.
		if entry, ok = t.recentTerminal[msg.cloid]; !ok {
			t.logger.Warn("fill for unknown order dropped", "cloid", msg.cloid)
			return
		}
	}
	pos, ok := t.positions[entry.market]
	if !ok {
		pos = &types.Position{Market: entry.market}
		t.positions[entry.market] = pos
	}

	signedFillSize := msg.fillSz.Decimal()
	if entry.reduceOnly {
		// Reduce-only fills move the position toward flat regardless of
		// the order's recorded side - the venue enforces direction. A
		// brand-new position can never be opened by a reduce-only order, so
		// the pre-fill NetSize sign is always known here.
		if pos.NetSize.IsPositive() {
			signedFillSize = signedFillSize.Neg()
		}
	} else if entry.side.Sign() < 0 {
		// Opening/adding fills are signed by the order's own side, not the
		// position's pre-fill sign - a SELL opening a flat position must
		// apply as a negative (short) fill even though NetSize.IsNegative()
		// is false at size zero.
		signedFillSize = signedFillSize.Neg()
	}

	prev := pos.NetSize
	newSize := prev.Add(signedFillSize)
	fillPx := msg.fillPx.Decimal()

	switch {
	case prev.IsZero():
		pos.AvgEntryPrice = msg.fillPx
		pos.OpenedAtMs = entry.enqueuedAtMs
		pos.OpenClientOrderID = msg.cloid
	case prev.Sign() == signedFillSize.Sign():
		// Adding in the same direction: volume-weight the entry price.
		totalAbs := prev.Abs().Add(signedFillSize.Abs())
		weighted := pos.AvgEntryPrice.Decimal().Mul(prev.Abs()).
			Add(fillPx.Mul(signedFillSize.Abs())).Div(totalAbs)
		pos.AvgEntryPrice = types.PriceFromDecimal(weighted)
	default:
		// Reducing, possibly through zero: realize PnL on the closed
		// quantity against the average entry price.
		closed := decimal.Min(prev.Abs(), signedFillSize.Abs())
		perUnit := fillPx.Sub(pos.AvgEntryPrice.Decimal())
		if prev.IsNegative() {
			perUnit = perUnit.Neg()
		}
		delta := perUnit.Mul(closed)
		pos.RealizedPnL = pos.RealizedPnL.Add(delta)
		if t.onRealized != nil {
			f, _ := delta.Float64()
			t.onRealized(entry.market, f)
		}

		switch {
		case newSize.IsZero():
			pos.AvgEntryPrice = types.Price{}
			pos.OpenedAtMs = 0
			pos.OpenClientOrderID = ""
		case prev.Sign() != newSize.Sign():
			// Flipped through zero: the residual is a fresh position
			// entered at the fill price.
			pos.AvgEntryPrice = msg.fillPx
			pos.OpenedAtMs = entry.enqueuedAtMs
			pos.OpenClientOrderID = msg.cloid
		}
	}
	pos.NetSize = newSize
	if newSize.IsZero() {
		pos.FlattenInFlight = false
	}

	shard := t.shardFor(entry.market)
	shard.mu.Lock()
	shard.positions[entry.market] = *pos
	shard.mu.Unlock()
}

func (t *Tracker) applyTerminal(msg trackerMsg) {
	entry, ok := t.pendingOrders[msg.cloid]
	if !ok {
		return
	}
	delete(t.pendingOrders, msg.cloid)

	t.recentTerminal[msg.cloid] = entry
	t.terminalOrder = append(t.terminalOrder, msg.cloid)
	if len(t.terminalOrder) > terminalTombstones {
		delete(t.recentTerminal, t.terminalOrder[0])
		t.terminalOrder = t.terminalOrder[1:]
	}

	shard := t.shardFor(entry.market)
	shard.mu.Lock()
	delete(shard.pending, msg.cloid)
	shard.mu.Unlock()

	pos, ok := t.positions[entry.market]
	if !ok {
		return
	}
	// OpenClientOrderID stays pinned while the position is open; applyFill
	// clears it once the position returns to flat.
	if pos.FlattenInFlight && entry.reduceOnly {
		pos.FlattenInFlight = false
	}
	shard.mu.Lock()
	shard.positions[entry.market] = *pos
	shard.mu.Unlock()
}

// RegisterOrder eagerly admits order into the read cache, then dispatches
// the authoritative registration. If the actor's channel is full the cache
// entry is rolled back and ErrTrackerBusy is returned - the caller must
// not treat the order as admitted.
func (t *Tracker) RegisterOrder(order types.PendingOrder) error {
	entry := pendingEntry{
		market:       order.Market,
		side:         order.Side,
		notional:     order.Size.Notional(order.LimitPrice),
		reduceOnly:   order.ReduceOnly,
		enqueuedAtMs: order.EnqueuedAtMs,
	}
	shard := t.shardFor(order.Market)
	shard.mu.Lock()
	shard.pending[order.ClientOrderID] = entry
	shard.mu.Unlock()

	select {
	case t.ch <- trackerMsg{kind: msgRegister, cloid: order.ClientOrderID, order: order}:
		return nil
	default:
		shard.mu.Lock()
		delete(shard.pending, order.ClientOrderID)
		shard.mu.Unlock()
		return ErrTrackerBusy
	}
}

// OnAck records the venue order id for a newly-acked order.
func (t *Tracker) OnAck(cloid, oid string) {
	select {
	case t.ch <- trackerMsg{kind: msgAck, cloid: cloid, oid: oid}:
	default:
		t.logger.Warn("position: ack dropped, channel full", "cloid", cloid)
	}
}

// OnFill applies one fill (partial or final) to the authoritative position.
func (t *Tracker) OnFill(cloid string, px types.Price, sz types.Size) {
	select {
	case t.ch <- trackerMsg{kind: msgFill, cloid: cloid, fillPx: px, fillSz: sz}:
	default:
		t.logger.Warn("position: fill dropped, channel full", "cloid", cloid)
	}
}

// OnTerminal releases the pending-order slot once an order reaches a
// terminal state.
func (t *Tracker) OnTerminal(cloid string, state types.OrderState) {
	select {
	case t.ch <- trackerMsg{kind: msgTerminal, cloid: cloid, state: state}:
	default:
		t.logger.Warn("position: terminal event dropped, channel full", "cloid", cloid)
	}
}

// HasPendingOrder reports whether a non-reduce-only order is currently
// pending for market. At most one is ever admitted at a time.
func (t *Tracker) HasPendingOrder(market types.MarketKey) bool {
	shard := t.shardFor(market)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	for _, e := range shard.pending {
		if e.market == market && !e.reduceOnly {
			return true
		}
	}
	return false
}

// PendingNotional sums the notional of pending orders for market, optionally
// excluding reduce-only orders.
func (t *Tracker) PendingNotional(market types.MarketKey, excludingReduceOnly bool) decimal.Decimal {
	shard := t.shardFor(market)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	total := decimal.Zero
	for _, e := range shard.pending {
		if e.market != market {
			continue
		}
		if excludingReduceOnly && e.reduceOnly {
			continue
		}
		total = total.Add(e.notional)
	}
	return total
}

// Position returns the cached position for market, if any.
func (t *Tracker) Position(market types.MarketKey) (types.Position, bool) {
	shard := t.shardFor(market)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	pos, ok := shard.positions[market]
	return pos, ok
}

// OpenPositions returns every position with a non-zero net size.
func (t *Tracker) OpenPositions() []types.Position {
	var out []types.Position
	for _, shard := range t.shards {
		shard.mu.RLock()
		for _, pos := range shard.positions {
			if !pos.IsFlat() {
				out = append(out, pos)
			}
		}
		shard.mu.RUnlock()
	}
	return out
}

// MarkFlattenInFlight sets the de-duplication flag the exit supervisor uses
// to avoid emitting a second flatten order while one is outstanding (spec
// §4.6). The cache is updated eagerly so an immediate subsequent read sees
// the new value even before the actor applies it to authoritative state.
func (t *Tracker) MarkFlattenInFlight(market types.MarketKey, inFlight bool) {
	shard := t.shardFor(market)
	shard.mu.Lock()
	pos := shard.positions[market]
	pos.Market = market
	pos.FlattenInFlight = inFlight
	shard.positions[market] = pos
	shard.mu.Unlock()

	select {
	case t.ch <- trackerMsg{kind: msgSetFlatten, market: market, flatten: inFlight}:
	default:
	}
}
