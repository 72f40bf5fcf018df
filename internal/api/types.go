package api

import (
	"time"

	"hip3-taker/internal/config"
)

// DashboardSnapshot is the complete point-in-time dashboard state, pushed
// on connect and rebroadcast periodically.
type DashboardSnapshot struct {
	Timestamp time.Time `json:"timestamp"`

	Markets []MarketStatus `json:"markets"`

	TotalRealizedPnL float64 `json:"total_realized_pnl"`

	Risk RiskSnapshot `json:"risk"`

	Config ConfigSummary `json:"config"`

	Daily DailyStats `json:"daily"`
}

// MarketStatus is per-market state surfaced to the dashboard.
type MarketStatus struct {
	Market      string  `json:"market"` // "dex:asset"
	Symbol      string  `json:"symbol"`
	MidPrice    float64 `json:"mid_price"`
	BestBid     float64 `json:"best_bid"`
	BestAsk     float64 `json:"best_ask"`
	SpreadBps   float64 `json:"spread_bps"`
	OraclePrice float64 `json:"oracle_price"`
	MarkPrice   float64 `json:"mark_price"`

	Position PositionSnapshot `json:"position"`

	IsStale bool `json:"is_stale"`
}

// PositionSnapshot is the position + PnL view for one market.
type PositionSnapshot struct {
	NetSize         float64 `json:"net_size"`
	AvgEntryPrice   float64 `json:"avg_entry_price"`
	RealizedPnL     float64 `json:"realized_pnl"`
	FlattenInFlight bool    `json:"flatten_in_flight"`
}

// RiskSnapshot is the aggregate risk-gate/hard-stop view.
type RiskSnapshot struct {
	HardStopTripped bool      `json:"hard_stop_tripped"`
	HardStopReason  string    `json:"hard_stop_reason,omitempty"`
	TrippedAt       time.Time `json:"tripped_at,omitempty"`

	TotalPositionNotionalUSD float64 `json:"total_position_notional_usd"`
	MaxPositionTotalUSD      float64 `json:"max_position_total_usd"`

	ConsecutiveRejects  int `json:"consecutive_rejects"`
	ConsecutiveTimeouts int `json:"consecutive_timeouts"`
}

// ConfigSummary is a read-only view of the active configuration.
type ConfigSummary struct {
	MinEdgeBps     float64 `json:"min_edge_bps"`
	TakerFeeBps    float64 `json:"taker_fee_bps"`
	FeeMultiplier  float64 `json:"fee_multiplier"`
	MaxNotionalUSD float64 `json:"max_notional_usd"`
	DryRun         bool    `json:"dry_run"`
}

// DailyStats is the UTC-midnight rollup of signal/order/fill counts.
type DailyStats struct {
	Date            string  `json:"date"`
	SignalsDetected int64   `json:"signals_detected"`
	OrdersSent      int64   `json:"orders_sent"`
	OrdersFilled    int64   `json:"orders_filled"`
	RealizedPnLBps  float64 `json:"realized_pnl_bps"`
}

// NewConfigSummary builds a ConfigSummary from AppConfig.
func NewConfigSummary(cfg config.AppConfig) ConfigSummary {
	return ConfigSummary{
		MinEdgeBps:     cfg.Detector.MinEdgeBps,
		TakerFeeBps:    cfg.Detector.TakerFeeBps,
		FeeMultiplier:  cfg.Detector.FeeMultiplier,
		MaxNotionalUSD: cfg.Detector.MaxNotionalUSD,
		DryRun:         cfg.DryRun,
	}
}
