package telemetry

import (
	"sync"
	"time"

	"hip3-taker/internal/api"
)

// DailyStats is a small in-memory rollup of signals-detected, orders-sent,
// orders-filled, and realized-PnL-bps, reset at UTC midnight and surfaced on
// the dashboard snapshot.
type DailyStats struct {
	mu sync.Mutex

	date            string
	signalsDetected int64
	ordersSent      int64
	ordersFilled    int64
	realizedPnLBps  float64

	now func() time.Time
}

// NewDailyStats builds a rollup anchored to the current UTC date.
func NewDailyStats() *DailyStats {
	d := &DailyStats{now: time.Now}
	d.date = d.now().UTC().Format("2006-01-02")
	return d
}

func (d *DailyStats) rolloverLocked() {
	today := d.now().UTC().Format("2006-01-02")
	if today == d.date {
		return
	}
	d.date = today
	d.signalsDetected = 0
	d.ordersSent = 0
	d.ordersFilled = 0
	d.realizedPnLBps = 0
}

// RecordSignal increments the signals-detected counter.
func (d *DailyStats) RecordSignal() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rolloverLocked()
	d.signalsDetected++
}

// RecordOrderSent increments the orders-sent counter.
func (d *DailyStats) RecordOrderSent() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rolloverLocked()
	d.ordersSent++
}

// RecordFill increments orders-filled and accumulates realized PnL in bps.
func (d *DailyStats) RecordFill(realizedPnLBps float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rolloverLocked()
	d.ordersFilled++
	d.realizedPnLBps += realizedPnLBps
}

// Snapshot returns the dashboard-facing view.
func (d *DailyStats) Snapshot() api.DailyStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rolloverLocked()
	return api.DailyStats{
		Date:            d.date,
		SignalsDetected: d.signalsDetected,
		OrdersSent:      d.ordersSent,
		OrdersFilled:    d.ordersFilled,
		RealizedPnLBps:  d.realizedPnLBps,
	}
}
