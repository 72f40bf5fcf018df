// Package engine is the central orchestrator of the oracle-dislocation
// taker. It wires together the feed aggregator, dislocation detector, risk
// gate chain, execution pipeline, position tracker, and exit supervisor
// into one running process.
//
// Lifecycle: New() -> Start() -> [runs until SIGINT] -> Stop()
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"hip3-taker/internal/api"
	"hip3-taker/internal/config"
	"hip3-taker/internal/detector"
	"hip3-taker/internal/execution"
	"hip3-taker/internal/market"
	"hip3-taker/internal/position"
	"hip3-taker/internal/risk"
	"hip3-taker/internal/store"
	"hip3-taker/internal/telemetry"
	"hip3-taker/internal/transport"
	"hip3-taker/pkg/types"
)

// Engine orchestrates every component of the trading system. It owns the
// lifecycle of all long-lived workers (session reader/writer, scheduler
// tick, risk monitor, exit supervisor, signal archive) and is the single
// seam the dashboard collaborator depends on.
type Engine struct {
	cfg     config.AppConfig
	logger  *slog.Logger
	metrics *telemetry.Metrics

	feed          *market.Feed
	oracleTracker *market.OracleTracker
	registry      *market.Registry
	detector      *detector.Detector

	hardStop *risk.HardStop
	gates    *risk.Chain
	monitor  *risk.Monitor

	orderTracker    *execution.OrderTracker
	scheduler       *execution.Scheduler
	nonceMgr        *execution.NonceManager
	signer          *execution.Signer
	session         *execution.Session
	ws              *transport.WebSocketTransport
	ready           *transport.ReadyGate
	positionTracker *position.Tracker
	exitSupervisor  *position.ExitSupervisor

	budgetsMu sync.Mutex
	budgets   map[types.MarketKey]*execution.Budget

	store      *store.Store
	dailyStats *telemetry.DailyStats

	dashboardEvents chan api.DashboardEvent

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires every component from a populated AppConfig. The venue websocket
// connection is not established until Start.
func New(cfg config.AppConfig, logger *slog.Logger, metrics *telemetry.Metrics) (*Engine, error) {
	signer, err := execution.NewSigner(cfg.Wallet.PrivateKey, cfg.Wallet.ChainSource)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	sigStore, err := store.Open(cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	sigStore.SetDropHook(func() { metrics.StoreDropsTotal.Inc() })

	hardStop := risk.NewHardStop(func(string) { metrics.HardStopTrips.Inc() })

	ws := transport.NewWebSocketTransport(cfg.API.WSURL, logger)
	sess := execution.NewSession(ws, cfg.Execution.ActionTimeout, logger)

	requiredSubs := cfg.API.RequiredSubscriptions
	if len(requiredSubs) == 0 {
		requiredSubs = []string{"bbo", "activeAssetCtx", "orderUpdates"}
	}

	var dashEvents chan api.DashboardEvent
	if cfg.Dashboard.Enabled {
		dashEvents = make(chan api.DashboardEvent, 256)
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		cfg:     cfg,
		logger:  logger.With("component", "engine"),
		metrics: metrics,

		feed:          market.NewFeed(1024, logger),
		oracleTracker: market.NewOracleTracker(),
		registry:      market.NewRegistry(cfg.API, logger),
		detector:      detector.New(nil),

		hardStop: hardStop,
		gates:    risk.NewChain(cfg.Risk, hardStop),
		monitor:  risk.NewMonitor(cfg.Risk, hardStop, logger, 256),

		orderTracker: execution.NewOrderTracker(),
		scheduler:    execution.NewScheduler(cfg.Execution.MaxBatchSize, cfg.Execution.InflightSoftCeiling),
		nonceMgr:     execution.NewNonceManager(nil, func() { metrics.NoncesIssued.Inc() }),
		signer:       signer,
		session:      sess,
		ws:           ws,
		ready:        transport.NewReadyGate(ws, requiredSubs),

		budgets: make(map[types.MarketKey]*execution.Budget),

		store:      sigStore,
		dailyStats: telemetry.NewDailyStats(),

		dashboardEvents: dashEvents,

		ctx:    ctx,
		cancel: cancel,
	}

	e.positionTracker = position.NewTracker(logger, 256)
	e.positionTracker.SetRealizedPnLHandle(func(mkt types.MarketKey, deltaUSD float64) {
		e.monitor.Report(risk.ExecutionEvent{Type: risk.EventFilled, Market: mkt, At: time.Now(), RealizedPnLUSD: deltaUSD})
	})
	e.exitSupervisor = position.NewExitSupervisor(cfg.Exit, e.positionTracker, e.feed, e.oracleTracker, e.scheduler, logger, nil, 500*time.Millisecond)

	return e, nil
}

// Start launches every background worker and returns immediately; errors
// from long-lived workers are logged, not returned - workers degrade or
// trip the hard stop, they do not crash the process.
func (e *Engine) Start() error {
	e.spawn(func() {
		if err := e.ws.Run(e.ctx); err != nil && e.ctx.Err() == nil {
			e.logger.Error("transport run loop exited", "error", err)
		}
	})
	e.spawn(func() { e.session.Run(e.ctx) })
	e.spawn(func() { e.positionTracker.Run(e.ctx) })
	e.spawn(func() { e.monitor.Run(e.ctx) })
	e.spawn(func() { e.exitSupervisor.Run(e.ctx) })
	e.spawn(func() { e.store.Run(e.ctx) })
	e.spawn(e.runDetectionLoop)
	e.spawn(e.runSchedulerLoop)
	e.spawn(e.runRegistryRefreshLoop)
	e.spawn(e.runTelemetryLoop)

	e.logger.Info("engine started", "dry_run", e.cfg.DryRun)
	return nil
}

// Stop performs the supervised two-phase drain: stop admitting new signals,
// wait briefly for in-flight cancel/reduce-only traffic, flatten remaining
// positions if configured, then cancel every worker context and release
// resources.
func (e *Engine) Stop() {
	e.logger.Info("shutting down")
	e.hardStop.Trip("ShutdownRequested", time.Now())

	e.drainExecution(5 * time.Second)

	if e.cfg.Exit.FlattenOnShutdown {
		e.exitSupervisor.FlattenAll("Shutdown")
		e.drainExecution(5 * time.Second)
	}

	e.cancel()
	e.wg.Wait()

	if e.dashboardEvents != nil {
		close(e.dashboardEvents)
	}
	if err := e.store.Close(); err != nil {
		e.logger.Error("failed to close signal store", "error", err)
	}
	e.signer.Close()

	e.logger.Info("shutdown complete")
}

// drainExecution waits until the scheduler's queues and inflight counter
// are both empty, up to timeout. The scheduler loop is still running here,
// so queued reduce-only/cancel traffic gets sent rather than abandoned.
func (e *Engine) drainExecution(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) && (e.scheduler.Inflight() > 0 || e.scheduler.Backlog() > 0) {
		time.Sleep(50 * time.Millisecond)
	}
}

func (e *Engine) spawn(fn func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
}

// runRegistryRefreshLoop keeps the spec cache current; a spec that changes
// shape after discovery is a parameter-change event that trips the hard
// stop (the gate chain's ParamChange gate's companion trigger).
func (e *Engine) runRegistryRefreshLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	if _, err := e.registry.Refresh(e.ctx); err != nil {
		e.logger.Error("initial market registry refresh failed", "error", err)
	}

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			changed, err := e.registry.Refresh(e.ctx)
			if err != nil {
				e.logger.Error("market registry refresh failed", "error", err)
				continue
			}
			for _, mkt := range changed {
				e.monitor.TripParameterChange(mkt, time.Now())
			}
		}
	}
}

// runTelemetryLoop refreshes the per-market position gauges and heartbeats
// the risk monitor on a slow tick.
func (e *Engine) runTelemetryLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			for _, p := range e.positionTracker.OpenPositions() {
				notional := mustFloat(p.NetSize.Mul(p.AvgEntryPrice.Decimal()).Abs())
				e.metrics.PositionNotionalUSD.WithLabelValues(p.Market.String()).Set(notional)
			}
			e.monitor.Report(risk.ExecutionEvent{Type: risk.EventHeartbeat, At: time.Now()})
		}
	}
}

// runDetectionLoop is the hot path: snapshot -> detect -> gates -> enqueue.
// It must never block on I/O.
func (e *Engine) runDetectionLoop() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case u := <-e.feed.Updates():
			e.onSnapshotUpdate(u)
		}
	}
}

func (e *Engine) onSnapshotUpdate(u market.SnapshotUpdate) {
	e.exitSupervisor.OnUpdate(u.Market)

	spec, ok := e.registry.Spec(u.Market)
	if !ok {
		return
	}

	nowMs := time.Now().UnixMilli()
	e.metrics.FeedLatencyMs.WithLabelValues(u.Market.String(), "oracle").Observe(float64(u.Snapshot.Oracle.AgeMs(nowMs)))
	streak, _ := e.oracleTracker.Streak(u.Market)

	sig, err := e.detector.Detect(u.Snapshot, spec, e.userFees(), streak, e.sizingParams(), nowMs)
	if err != nil {
		e.metrics.FeedEventsTotal.WithLabelValues("detect", "error").Inc()
		return
	}
	if sig == nil {
		return
	}

	e.metrics.SignalsDetected.WithLabelValues(sig.Market.String(), string(sig.Side), string(sig.Strength)).Inc()
	e.metrics.SignalEdgeBps.WithLabelValues(sig.Market.String(), string(sig.Side)).Observe(sig.NetEdgeBps.InexactFloat64())
	e.dailyStats.RecordSignal()
	e.store.Record(*sig)
	e.emitDashboardEvent(api.DashboardEvent{
		Type:      "signal",
		Timestamp: time.Now(),
		Market:    sig.Market.String(),
		Data: api.NewSignalEvent(sig.SignalID, sig.Market.String(), string(sig.Side),
			sig.RawEdgeBps.InexactFloat64(), sig.NetEdgeBps.InexactFloat64(), string(sig.Strength), sig.SuggestedSize.Float64()),
	})

	e.admit(*sig, u.Snapshot, spec)
}

// admit runs the gate chain for one candidate signal and, if admitted,
// hands a PendingOrder to the position tracker and scheduler.
func (e *Engine) admit(sig types.DislocationSignal, snap types.MarketSnapshot, spec types.MarketSpec) {
	oracleAgeMs := snap.Oracle.AgeMs(sig.DetectedAtMs)
	spreadBps, _ := snap.SpreadBps()
	markMidDivergenceBps := markMidDivergence(snap)
	e.monitor.CheckMarkMidDivergence(sig.Market, markMidDivergenceBps, time.Now())

	pos, _ := e.positionTracker.Position(sig.Market)
	currentSpec, _ := e.registry.Spec(sig.Market)

	proposedDelta := sig.SuggestedSize.Notional(sig.BestAtDetect)
	if sig.Side == types.Sell {
		proposedDelta = proposedDelta.Neg()
	}

	in := risk.Inputs{
		NowMs:        sig.DetectedAtMs,
		SessionReady: e.ready.IsReady(),
		OracleAgeMs:  oracleAgeMs,
		PinnedSpec:   spec,
		CurrentSpec:  currentSpec,
		Halted:       snap.Halted,

		MarkMidDivergenceBps: markMidDivergenceBps,
		SpreadBps:            spreadBps.InexactFloat64(),
		OpenInterestUSD:      snap.OI.Value.InexactFloat64(),
		// Account margin state is not part of the streamed market data; until
		// an account-state feed is wired in, the buffer input is pinned fully
		// healthy and the BufferLow floor acts on configuration only.
		LiquidationBufferPct: 1.0,

		CurrentPositionUSD:   mustFloat(pos.NetSize.Mul(pos.AvgEntryPrice.Decimal())),
		ProposedDeltaUSD:     mustFloat(proposedDelta),
		PortfolioNotionalUSD: e.portfolioNotionalExcluding(sig.Market),
		HasPosition:          !pos.IsFlat(),
		HasPendingOrder:      e.positionTracker.HasPendingOrder(sig.Market) || e.orderTracker.HasPendingNewOrder(sig.Market),
		TakeActionBudget:     e.budgetFor(sig.Market).TryTake,
	}

	if err := e.gates.Evaluate(in); err != nil {
		e.recordGateOutcome(sig.Market, err)
		return
	}

	order := types.PendingOrder{
		ClientOrderID: execution.NewClientOrderID(),
		Market:        sig.Market,
		Side:          sig.Side,
		LimitPrice:    sig.BestAtDetect,
		Size:          sig.SuggestedSize,
		TIF:           types.TIFIoc,
		ReduceOnly:    false,
		EnqueuedAtMs:  sig.DetectedAtMs,
	}

	if err := e.positionTracker.RegisterOrder(order); err != nil {
		e.logger.Warn("position tracker busy, dropping admitted signal", "market", sig.Market, "error", err)
		return
	}
	if _, err := e.orderTracker.Register(order); err != nil {
		e.logger.Warn("order tracker rejected registration", "market", sig.Market, "error", err)
		e.positionTracker.OnTerminal(order.ClientOrderID, types.OrderCancelled)
		return
	}
	if err := e.scheduler.EnqueueNew(execution.QueuedAction{Order: order}); err != nil {
		e.logger.Warn("scheduler degraded, dropping admitted signal", "market", sig.Market, "error", err)
		e.orderTracker.MarkCancelled(order.ClientOrderID, time.Now().UnixMilli())
		e.positionTracker.OnTerminal(order.ClientOrderID, types.OrderCancelled)
		return
	}
}

// markMidDivergence is |mark - mid| / mark in bps, the gate chain's
// MarkMidDivergenceBps input; distinct from SpreadBps, which measures the
// book's own width rather than its distance from the mark.
func markMidDivergence(snap types.MarketSnapshot) float64 {
	mid, ok := snap.Mid()
	mark := snap.Mark.Value
	if !ok || mark.IsZero() {
		return 0
	}
	diff := mark.Decimal().Sub(mid.Decimal()).Abs()
	return mustFloat(diff.Div(mark.Decimal()).Mul(decimal.NewFromInt(10000)))
}

func (e *Engine) recordGateOutcome(mkt types.MarketKey, err error) {
	switch gerr := err.(type) {
	case risk.GateBlockedError:
		e.metrics.GateBlocksTotal.WithLabelValues(gerr.Gate, mkt.String()).Inc()
	case risk.SkippedError:
		// Soft skips are expected under normal operation; not counted toward
		// any consecutive-failure threshold.
	}
}

func (e *Engine) budgetFor(mkt types.MarketKey) *execution.Budget {
	e.budgetsMu.Lock()
	defer e.budgetsMu.Unlock()
	b, ok := e.budgets[mkt]
	if !ok {
		b = execution.NewBudget(float64(e.cfg.Execution.NewOrdersBurst), e.cfg.Execution.NewOrdersPerSec)
		e.budgets[mkt] = b
	}
	return b
}

func (e *Engine) portfolioNotionalExcluding(mkt types.MarketKey) float64 {
	var total float64
	for _, p := range e.positionTracker.OpenPositions() {
		if p.Market == mkt {
			continue
		}
		total += mustFloat(p.NetSize.Mul(p.AvgEntryPrice.Decimal()).Abs())
	}
	return total
}

func (e *Engine) userFees() detector.UserFees {
	return detector.UserFees{
		TakerFeeBps: decimal.NewFromFloat(e.cfg.Detector.TakerFeeBps),
		SlippageBps: decimal.NewFromFloat(e.cfg.Detector.SlippageBps),
		MinEdgeBps:  decimal.NewFromFloat(e.cfg.Detector.MinEdgeBps),
	}
}

func (e *Engine) sizingParams() detector.Params {
	return detector.Params{
		SizingAlpha:    decimal.NewFromFloat(e.cfg.Detector.SizingAlpha),
		MaxNotionalUSD: decimal.NewFromFloat(e.cfg.Detector.MaxNotionalUSD),
	}
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// runSchedulerLoop drains the batch scheduler on a fixed tick, signs and
// sends each batch through the duplex session, and reconciles results into
// the order tracker, position tracker, and risk monitor.
func (e *Engine) runSchedulerLoop() {
	ticker := time.NewTicker(e.cfg.Execution.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			batch := e.scheduler.Tick()
			if batch == nil {
				continue
			}
			// The latch halts new-order admission only; reduce-only and
			// cancel traffic keeps flowing so a tripped session can still
			// exit its positions.
			if batch.Kind == execution.ActionNew && e.hardStop.IsTripped() {
				for _, item := range batch.Items {
					e.orderTracker.MarkCancelled(item.Order.ClientOrderID, time.Now().UnixMilli())
					e.positionTracker.OnTerminal(item.Order.ClientOrderID, types.OrderCancelled)
					e.scheduler.OnTerminal()
				}
				continue
			}
			for _, item := range batch.Items {
				e.sendOrder(item)
			}
		}
	}
}

func (e *Engine) sendOrder(item execution.QueuedAction) {
	order := item.Order
	// Reduce-only flatten orders arrive from the exit supervisor without a
	// prior order-tracker registration; register on first sight so the state
	// machine covers them too. Registration is idempotent for known cloids.
	if _, ok := e.orderTracker.Get(order.ClientOrderID); !ok {
		if _, err := e.orderTracker.Register(order); err != nil {
			e.logger.Error("cannot track outbound order", "market", order.Market, "error", err)
			return
		}
	}

	nonce := e.nonceMgr.Next()

	wireOrder := types.WireOrder{
		Asset:      order.Market.WireAssetID(),
		IsBuy:      order.Side == types.Buy,
		LimitPx:    order.LimitPrice.String(),
		Sz:         order.Size.String(),
		ReduceOnly: order.ReduceOnly,
		OrderType:  string(types.OrderTypeLimit),
		Cloid:      order.ClientOrderID,
	}
	action := types.OrderAction{Type: "order", Orders: []types.WireOrder{wireOrder}, Grouping: "na"}

	sig, err := e.signer.Sign(action, nonce, e.cfg.Wallet.VaultAddress, nil)
	if err != nil {
		e.logger.Error("signer failed, tripping hard stop", "error", err)
		e.hardStop.Trip("SignerError", time.Now())
		return
	}

	envelope := types.PostEnvelope{
		Method: "post",
		ID:     e.session.NextPostID(),
		Request: types.ActionRequest{
			Type: "action",
			Payload: types.ActionPayload{
				Action:       action,
				Nonce:        nonce,
				Signature:    sig,
				VaultAddress: e.cfg.Wallet.VaultAddress,
			},
		},
	}

	if e.cfg.DryRun {
		e.logger.Info("dry run: would send order", "market", order.Market, "cloid", order.ClientOrderID)
		e.orderTracker.MarkCancelled(order.ClientOrderID, time.Now().UnixMilli())
		e.positionTracker.OnTerminal(order.ClientOrderID, types.OrderCancelled)
		e.scheduler.OnTerminal()
		return
	}

	e.orderTracker.MarkSent(order.ClientOrderID, time.Now().UnixMilli())
	e.metrics.OrdersByState.WithLabelValues(string(types.OrderSent)).Inc()
	e.dailyStats.RecordOrderSent()

	replyCh, cleanupWaiter := e.session.RegisterWaiter(envelope.ID)

	result, err := e.session.Send(e.ctx, envelope)
	e.metrics.SessionSendsTotal.WithLabelValues(string(result)).Inc()
	if err != nil || result != execution.SendSent {
		cleanupWaiter()
		e.logger.Warn("session send failed", "market", order.Market, "result", result, "error", err)
		e.markTimedOut(order)
		return
	}

	e.spawn(func() { e.awaitReply(order, replyCh, cleanupWaiter) })
}

// awaitReply bounds the end-to-end wait for the venue's post reply. The
// reply only confirms receipt - the order's lifecycle continues on the user
// order-update stream - but its absence within the action timeout means the
// order is unaccounted for and must be treated as timed out.
func (e *Engine) awaitReply(order types.PendingOrder, replyCh <-chan execution.InboundReply, cleanup func()) {
	defer cleanup()
	timer := time.NewTimer(e.cfg.Execution.ActionTimeout)
	defer timer.Stop()

	select {
	case <-e.ctx.Done():
	case <-replyCh:
	case <-timer.C:
		e.metrics.SessionTimeoutsTotal.Inc()
		e.logger.Warn("no post reply within action timeout", "market", order.Market, "cloid", order.ClientOrderID)
		e.markTimedOut(order)
	}
}

// markTimedOut transitions an order to TimedOut exactly once; if a venue
// event already drove it terminal, nothing is double-counted.
func (e *Engine) markTimedOut(order types.PendingOrder) {
	if err := e.orderTracker.MarkTimedOut(order.ClientOrderID, time.Now().UnixMilli()); err != nil {
		return
	}
	e.metrics.OrdersByState.WithLabelValues(string(types.OrderTimedOut)).Inc()
	e.positionTracker.OnTerminal(order.ClientOrderID, types.OrderTimedOut)
	e.scheduler.OnTerminal()
	e.monitor.Report(risk.ExecutionEvent{Type: risk.EventTimedOut, Market: order.Market, At: time.Now()})
}

// ------------------------------------------------------------------------
// Inbound venue event routing. Wire framing/parsing is external (an
// upstream collaborator turns raw bytes into these typed events); routing
// an already-typed event into the feed, oracle tracker, order tracker,
// position tracker, and risk monitor is the engine's responsibility.
// ------------------------------------------------------------------------

// OnBboUpdate routes a top-of-book update into the feed aggregator.
func (e *Engine) OnBboUpdate(u types.BboUpdate) {
	e.feed.IngestBbo(u)
	e.metrics.FeedEventsTotal.WithLabelValues("bbo", "ok").Inc()
}

// OnAssetCtxUpdate routes an oracle/mark/open-interest update into the feed
// aggregator and the oracle movement tracker.
func (e *Engine) OnAssetCtxUpdate(u types.AssetCtxUpdate) {
	if err := e.feed.IngestAssetCtx(u); err != nil {
		e.metrics.FeedEventsTotal.WithLabelValues("asset_ctx", "dropped").Inc()
		e.logger.Debug("dropping asset ctx update", "market", u.Market, "error", err)
		return
	}
	e.metrics.FeedEventsTotal.WithLabelValues("asset_ctx", "ok").Inc()
	e.oracleTracker.Update(u.Market, u.OraclePx, u.TsMs)
}

// OnBookUpdate routes a book-update timestamp into the feed aggregator.
func (e *Engine) OnBookUpdate(u types.BookUpdate) {
	e.feed.IngestBook(u)
	e.metrics.FeedEventsTotal.WithLabelValues("book", "ok").Inc()
}

// OnSubscriptionAck records a channel subscription acknowledgement; trading
// admission stays blocked until every required channel has acked.
func (e *Engine) OnSubscriptionAck(u types.SubscriptionResponse) {
	if u.Acked {
		e.ready.OnAck(u.Channel)
	}
}

// OnVenueOrderUpdate reconciles a venue order-lifecycle notification into
// the order tracker, position tracker, and risk monitor.
func (e *Engine) OnVenueOrderUpdate(u types.VenueOrderUpdate) {
	if u.ClientOrderID == "" {
		return
	}
	now := time.Now()

	switch u.Status {
	case types.VenueOrderOpen:
		if err := e.orderTracker.MarkAcked(u.ClientOrderID, u.OID, now.UnixMilli()); err == nil {
			e.metrics.OrdersByState.WithLabelValues(string(types.OrderAcked)).Inc()
		}
		e.positionTracker.OnAck(u.ClientOrderID, u.OID)
	case types.VenueOrderFilled:
		if err := e.orderTracker.MarkFilled(u.ClientOrderID, u.OrigSz, now.UnixMilli()); err != nil {
			return
		}
		e.metrics.OrdersByState.WithLabelValues(string(types.OrderFilled)).Inc()
		e.positionTracker.OnTerminal(u.ClientOrderID, types.OrderFilled)
		e.scheduler.OnTerminal()
		e.dailyStats.RecordFill(0)
		e.monitor.Report(risk.ExecutionEvent{Type: risk.EventFilled, Market: u.Market, At: now})
	case types.VenueOrderCanceled:
		if err := e.orderTracker.MarkCancelled(u.ClientOrderID, now.UnixMilli()); err != nil {
			return
		}
		e.metrics.OrdersByState.WithLabelValues(string(types.OrderCancelled)).Inc()
		e.positionTracker.OnTerminal(u.ClientOrderID, types.OrderCancelled)
		e.scheduler.OnTerminal()
		e.monitor.Report(risk.ExecutionEvent{Type: risk.EventCancelled, Market: u.Market, At: now})
	case types.VenueOrderRejected, types.VenueOrderMarginCanceled:
		if err := e.orderTracker.MarkRejected(u.ClientOrderID, string(u.Status), now.UnixMilli()); err != nil {
			return
		}
		e.metrics.OrdersByState.WithLabelValues(string(types.OrderRejected)).Inc()
		e.positionTracker.OnTerminal(u.ClientOrderID, types.OrderRejected)
		e.scheduler.OnTerminal()
		e.monitor.Report(risk.ExecutionEvent{Type: risk.EventRejected, Market: u.Market, At: now})
	}
}

// OnVenueFill applies a single execution to the position tracker and
// surfaces it on the dashboard.
func (e *Engine) OnVenueFill(f types.VenueFill) {
	if f.ClientOrderID == "" {
		return
	}
	e.positionTracker.OnFill(f.ClientOrderID, f.Price, f.Size)
	e.emitDashboardEvent(api.DashboardEvent{
		Type:      "fill",
		Timestamp: time.Now(),
		Market:    f.Market.String(),
		Data: api.FillEvent{
			ClientOrderID: f.ClientOrderID,
			Market:        f.Market.String(),
			Side:          string(f.Side),
			Price:         f.Price.Float64(),
			Size:          f.Size.Float64(),
		},
	})
}

// GetMarketsSnapshot implements api.MarketSnapshotProvider.
func (e *Engine) GetMarketsSnapshot() []api.MarketStatus {
	var out []api.MarketStatus
	for _, mkt := range e.feed.Markets() {
		snap, ok := e.feed.Snapshot(mkt)
		if !ok {
			continue
		}
		spec, _ := e.registry.Spec(mkt)
		mid, _ := snap.Mid()
		spreadBps, _ := snap.SpreadBps()
		pos, _ := e.positionTracker.Position(mkt)

		out = append(out, api.MarketStatus{
			Market:      mkt.String(),
			Symbol:      spec.Symbol,
			MidPrice:    mid.Float64(),
			BestBid:     snap.BestBid.Value.Float64(),
			BestAsk:     snap.BestAsk.Value.Float64(),
			SpreadBps:   spreadBps.InexactFloat64(),
			OraclePrice: snap.Oracle.Value.Float64(),
			MarkPrice:   snap.Mark.Value.Float64(),
			Position: api.PositionSnapshot{
				NetSize:         mustFloat(pos.NetSize),
				AvgEntryPrice:   pos.AvgEntryPrice.Float64(),
				RealizedPnL:     mustFloat(pos.RealizedPnL),
				FlattenInFlight: pos.FlattenInFlight,
			},
			IsStale: !snap.IsFresh(time.Now().UnixMilli(), e.cfg.Risk.OracleFreshWindowMs, e.cfg.Risk.OracleFreshWindowMs, e.cfg.Risk.OracleFreshWindowMs),
		})
	}
	return out
}

// GetRiskSnapshot implements api.MarketSnapshotProvider.
func (e *Engine) GetRiskSnapshot() api.RiskSnapshot {
	tripped, reason, trippedAt := e.hardStop.State()
	var total float64
	for _, p := range e.positionTracker.OpenPositions() {
		total += mustFloat(p.NetSize.Mul(p.AvgEntryPrice.Decimal()).Abs())
	}
	now := time.Now()
	return api.RiskSnapshot{
		HardStopTripped:          tripped,
		HardStopReason:           reason,
		TrippedAt:                trippedAt,
		TotalPositionNotionalUSD: total,
		MaxPositionTotalUSD:      e.cfg.Risk.MaxPositionTotalUSD,
		ConsecutiveRejects:       e.monitor.ConsecutiveRejects(now),
		ConsecutiveTimeouts:      e.monitor.ConsecutiveTimeouts(now),
	}
}

// GetDailyStats implements api.MarketSnapshotProvider.
func (e *Engine) GetDailyStats() api.DailyStats {
	return e.dailyStats.Snapshot()
}

// DashboardEvents is the reflective contract api.Server's run loop looks
// for (live signal/fill/order/hard-stop pushes).
func (e *Engine) DashboardEvents() <-chan api.DashboardEvent {
	return e.dashboardEvents
}

func (e *Engine) emitDashboardEvent(evt api.DashboardEvent) {
	if e.dashboardEvents == nil {
		return
	}
	select {
	case e.dashboardEvents <- evt:
	default:
		e.logger.Warn("dashboard event channel full, dropping event", "type", evt.Type)
	}
}
