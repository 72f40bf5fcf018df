package api

import (
	"time"
)

// DashboardEvent is the wrapper for every event pushed to connected clients.
type DashboardEvent struct {
	Type      string      `json:"type"` // "snapshot", "signal", "fill", "order", "hard_stop"
	Timestamp time.Time   `json:"timestamp"`
	Market    string      `json:"market,omitempty"`
	Data      interface{} `json:"data"`
}

// SignalEvent is a live push of a detected dislocation.
type SignalEvent struct {
	SignalID   string  `json:"signal_id"`
	Market     string  `json:"market"`
	Side       string  `json:"side"`
	RawEdgeBps float64 `json:"raw_edge_bps"`
	NetEdgeBps float64 `json:"net_edge_bps"`
	Strength   string  `json:"strength"`
	Size       float64 `json:"size"`
}

// OrderEvent is an order-state transition.
type OrderEvent struct {
	ClientOrderID string  `json:"client_order_id"`
	Market        string  `json:"market"`
	State         string  `json:"state"`
	Side          string  `json:"side"`
	Price         float64 `json:"price"`
	Size          float64 `json:"size"`
}

// FillEvent is a single execution.
type FillEvent struct {
	ClientOrderID string  `json:"client_order_id"`
	Market        string  `json:"market"`
	Side          string  `json:"side"`
	Price         float64 `json:"price"`
	Size          float64 `json:"size"`
	RealizedPnL   float64 `json:"realized_pnl"`
}

// HardStopEvent is emitted when the latch trips.
type HardStopEvent struct {
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
	Market string    `json:"market,omitempty"`
}

// NewSignalEvent builds a SignalEvent from the float-friendly view of a signal.
func NewSignalEvent(signalID, market, side string, rawEdgeBps, netEdgeBps float64, strength string, size float64) SignalEvent {
	return SignalEvent{
		SignalID:   signalID,
		Market:     market,
		Side:       side,
		RawEdgeBps: rawEdgeBps,
		NetEdgeBps: netEdgeBps,
		Strength:   strength,
		Size:       size,
	}
}

// NewHardStopEvent builds a HardStopEvent.
func NewHardStopEvent(reason string, at time.Time, market string) HardStopEvent {
	return HardStopEvent{Reason: reason, At: at, Market: market}
}
