package api

import (
	"time"

	"hip3-taker/internal/config"
)

// MarketSnapshotProvider supplies the data BuildSnapshot aggregates. The
// engine implements this; it is the single seam between the orchestrator
// and the dashboard collaborator.
type MarketSnapshotProvider interface {
	GetMarketsSnapshot() []MarketStatus
	GetRiskSnapshot() RiskSnapshot
	GetDailyStats() DailyStats
}

// BuildSnapshot aggregates state from all components into a dashboard snapshot.
func BuildSnapshot(provider MarketSnapshotProvider, cfg config.AppConfig) DashboardSnapshot {
	markets := provider.GetMarketsSnapshot()

	var totalRealized float64
	for _, m := range markets {
		totalRealized += m.Position.RealizedPnL
	}

	return DashboardSnapshot{
		Timestamp:        time.Now(),
		Markets:          markets,
		TotalRealizedPnL: totalRealized,
		Risk:             provider.GetRiskSnapshot(),
		Config:           NewConfigSummary(cfg),
		Daily:            provider.GetDailyStats(),
	}
}
