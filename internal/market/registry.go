package market

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"hip3-taker/internal/config"
	"hip3-taker/pkg/types"
)

// publishedMarket is the JSON shape of one entry in the venue's published
// market list, reduced to the fields the spec cache needs: market identity
// (dex id, asset index, symbol), tick, lot, sig-figs, the dex fee
// multiplier, minimum notional, and the spot flag.
type publishedMarket struct {
	DexID         int     `json:"dexId"`
	AssetIndex    int     `json:"assetIndex"`
	Symbol        string  `json:"symbol"`
	TickSize      string  `json:"tickSize"`
	LotSize       string  `json:"lotSize"`
	SigFigs       int     `json:"szDecimals"`
	FeeMultiplier float64 `json:"feeMultiplier"`
	MinNotional   string  `json:"minNotionalUsd"`
	IsSpot        bool    `json:"isSpot"`
}

// Registry polls the published market-list endpoint and maintains the
// read-mostly spec cache. It is the sole source of truth for a market's
// pinned spec: once discovered, a spec never changes in place - a differing
// re-discovery is surfaced as a ParamChange event instead.
type Registry struct {
	http   *resty.Client
	logger *slog.Logger

	mu    sync.RWMutex
	specs map[types.MarketKey]types.MarketSpec
}

// NewRegistry creates a registry client pointed at the venue's market-list
// endpoint. Retries cover transient network errors and 5xx responses only.
func NewRegistry(cfg config.APIConfig, logger *slog.Logger) *Registry {
	http := resty.New().
		SetBaseURL(cfg.MarketListURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	return &Registry{
		http:   http,
		logger: logger.With("component", "registry"),
		specs:  make(map[types.MarketKey]types.MarketSpec),
	}
}

// Refresh polls the market list once and merges it into the spec cache.
// Returns the set of markets whose pinned spec changed - callers must treat
// a non-empty result as a ParamChange event and trip the hard stop.
func (r *Registry) Refresh(ctx context.Context) (changed []types.MarketKey, err error) {
	var list []publishedMarket
	resp, err := r.http.R().SetContext(ctx).SetResult(&list).Get("")
	if err != nil {
		return nil, fmt.Errorf("fetch market list: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch market list: status %d: %s", resp.StatusCode(), resp.String())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, pm := range list {
		if pm.IsSpot {
			continue
		}
		key := types.MarketKey{DexId: types.DexId(pm.DexID), AssetId: pm.AssetIndex}

		tick, err := decimal.NewFromString(pm.TickSize)
		if err != nil {
			r.logger.Warn("skipping market with invalid tick size", "market", key, "error", err)
			continue
		}
		lot, err := decimal.NewFromString(pm.LotSize)
		if err != nil {
			r.logger.Warn("skipping market with invalid lot size", "market", key, "error", err)
			continue
		}
		minNotional := decimal.Zero
		if pm.MinNotional != "" {
			minNotional, err = decimal.NewFromString(pm.MinNotional)
			if err != nil {
				r.logger.Warn("skipping market with invalid min notional", "market", key, "error", err)
				continue
			}
		}
		feeMult := decimal.NewFromFloat(pm.FeeMultiplier)
		if feeMult.IsZero() {
			feeMult = decimal.NewFromInt(2) // HIP-3 default 2x
		}

		spec := types.MarketSpec{
			Market:        key,
			Symbol:        pm.Symbol,
			Tick:          tick,
			Lot:           lot,
			SigFigs:       pm.SigFigs,
			FeeMultiplier: feeMult,
			MinNotional:   minNotional,
			IsSpot:        false,
			DiscoveredAt:  time.Now(),
		}

		existing, ok := r.specs[key]
		if !ok {
			r.specs[key] = spec
			continue
		}
		if !existing.Equal(spec) {
			r.logger.Error("market spec changed after discovery - parameter-change event",
				"market", key, "old_tick", existing.Tick, "new_tick", tick)
			changed = append(changed, key)
			continue // keep the originally pinned spec; the caller trips the hard stop
		}
	}

	return changed, nil
}

// Spec returns the pinned spec for a market, or false if undiscovered.
func (r *Registry) Spec(market types.MarketKey) (types.MarketSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[market]
	return s, ok
}

// All returns every pinned spec currently cached.
func (r *Registry) All() []types.MarketSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.MarketSpec, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, s)
	}
	return out
}
