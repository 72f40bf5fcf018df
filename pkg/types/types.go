// Package types defines the shared data model used across every package in
// the bot: fixed-point price/size arithmetic, market identity, the
// per-market spec and snapshot, and the wire envelope for signed actions.
// It has no dependency on any internal package so any layer can import it.
package types

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ------------------------------------------------------------------------
// Price / Size - exact fixed-point decimals, never float64.
// ------------------------------------------------------------------------

// Price is a venue price. Distinct from Size so the two are never mixed
// without an explicit conversion (Notional).
type Price struct{ d decimal.Decimal }

// Size is a venue quantity. Distinct from Price.
type Size struct{ d decimal.Decimal }

// NewPrice constructs a Price from a decimal string. Returns an error on
// malformed input rather than silently truncating.
func NewPrice(s string) (Price, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Price{}, fmt.Errorf("parse price %q: %w", s, err)
	}
	return Price{d: d}, nil
}

// NewSize constructs a Size from a decimal string.
func NewSize(s string) (Size, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Size{}, fmt.Errorf("parse size %q: %w", s, err)
	}
	return Size{d: d}, nil
}

// PriceFromFloat builds a Price from a float64 (used only at feed ingress,
// where the upstream parser already hands us a float; everywhere downstream
// operates on the decimal).
func PriceFromFloat(f float64) Price { return Price{d: decimal.NewFromFloat(f)} }

// SizeFromFloat builds a Size from a float64.
func SizeFromFloat(f float64) Size { return Size{d: decimal.NewFromFloat(f)} }

// PriceFromDecimal builds a Price directly from a decimal.Decimal, with no
// float64 round trip - used anywhere downstream math already holds a
// decimal.Decimal (e.g. a flatten price derived from mark × slippage).
func PriceFromDecimal(d decimal.Decimal) Price { return Price{d: d} }

// SizeFromDecimal builds a Size directly from a decimal.Decimal, with no
// float64 round trip.
func SizeFromDecimal(d decimal.Decimal) Size { return Size{d: d} }

func (p Price) Decimal() decimal.Decimal { return p.d }
func (s Size) Decimal() decimal.Decimal  { return s.d }

func (p Price) Float64() float64 { f, _ := p.d.Float64(); return f }
func (s Size) Float64() float64  { f, _ := s.d.Float64(); return f }

func (p Price) String() string { return p.d.String() }
func (s Size) String() string  { return s.d.String() }

func (p Price) IsZero() bool { return p.d.IsZero() }
func (s Size) IsZero() bool  { return s.d.IsZero() }

func (p Price) Add(o Price) Price { return Price{d: p.d.Add(o.d)} }
func (p Price) Sub(o Price) Price { return Price{d: p.d.Sub(o.d)} }
func (s Size) Add(o Size) Size    { return Size{d: s.d.Add(o.d)} }
func (s Size) Sub(o Size) Size    { return Size{d: s.d.Sub(o.d)} }

// MulDec scales a Price by a plain decimal multiplier (e.g. a threshold
// ratio). Used by the detector for oracle*threshold comparisons.
func (p Price) MulDec(m decimal.Decimal) Price { return Price{d: p.d.Mul(m)} }

// Cmp compares two prices: -1, 0, 1.
func (p Price) Cmp(o Price) int { return p.d.Cmp(o.d) }

// Cmp compares two sizes: -1, 0, 1.
func (s Size) Cmp(o Size) int { return s.d.Cmp(o.d) }

// Notional returns size × price as a plain decimal (neither a Price nor a
// Size - it is a USD-denominated quantity).
func (s Size) Notional(p Price) decimal.Decimal { return s.d.Mul(p.d) }

// RoundDownToTick floors a price to the nearest multiple of tick (≥ 0).
func (p Price) RoundDownToTick(tick decimal.Decimal) Price {
	if tick.IsZero() {
		return p
	}
	units := p.d.Div(tick).Floor()
	return Price{d: units.Mul(tick)}
}

// RoundDownToLot floors a size to the nearest multiple of lot (≥ 0).
func (s Size) RoundDownToLot(lot decimal.Decimal) Size {
	if lot.IsZero() {
		return s
	}
	units := s.d.Div(lot).Floor()
	return Size{d: units.Mul(lot)}
}

// ------------------------------------------------------------------------
// MarketKey - (DexId, AssetId), totally ordered, hashable, stringifies dex:asset
// ------------------------------------------------------------------------

// DexId enumerates perpetual dex namespaces.
type DexId int

const (
	DexDefault DexId = 0 // the venue's native perp dex
)

// MarketKey identifies a single perpetual market.
type MarketKey struct {
	DexId   DexId
	AssetId int
}

// String renders "dex:asset".
func (k MarketKey) String() string {
	return fmt.Sprintf("%d:%d", int(k.DexId), k.AssetId)
}

// Less gives MarketKey a total order (DexId first, then AssetId) so it can
// be used as a stable iteration or sort key.
func (k MarketKey) Less(o MarketKey) bool {
	if k.DexId != o.DexId {
		return k.DexId < o.DexId
	}
	return k.AssetId < o.AssetId
}

// ParseMarketKey parses the "dex:asset" string form.
func ParseMarketKey(s string) (MarketKey, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return MarketKey{}, fmt.Errorf("invalid market key %q", s)
	}
	var dex, asset int
	if _, err := fmt.Sscanf(parts[0], "%d", &dex); err != nil {
		return MarketKey{}, fmt.Errorf("invalid dex id in %q: %w", s, err)
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &asset); err != nil {
		return MarketKey{}, fmt.Errorf("invalid asset id in %q: %w", s, err)
	}
	return MarketKey{DexId: DexId(dex), AssetId: asset}, nil
}

// WireAssetID computes the exchange-level numeric asset id:
// 100_000 + perp_dex_id*10_000 + asset_index.
func (k MarketKey) WireAssetID() int {
	return 100_000 + int(k.DexId)*10_000 + k.AssetId
}

// ------------------------------------------------------------------------
// Side / order plumbing enums
// ------------------------------------------------------------------------

// Side is the direction of an order or signal.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Sign returns 1 for Buy and -1 for Sell, for signing a fill size without
// having to branch on the side at every call site.
func (s Side) Sign() int {
	if s == Buy {
		return 1
	}
	return -1
}

// TimeInForce enumerates supported order lifecycles.
type TimeInForce string

const (
	TIFIoc TimeInForce = "IOC" // immediate-or-cancel - the taker's only order type
	TIFGtc TimeInForce = "GTC" // used by the market-making collaborator, not the taker core
)

// OrderType mirrors the wire action's "order_type" sub-document.
type OrderType string

const (
	OrderTypeLimit OrderType = "limit"
)

// Strength buckets a DislocationSignal's net edge.
type Strength string

const (
	StrengthWeak   Strength = "Weak"
	StrengthMedium Strength = "Medium"
	StrengthStrong Strength = "Strong"
)

// ClassifyStrength buckets net edge in excess of the minimum edge floor:
// Weak < 5bps, Medium < 15bps, else Strong.
func ClassifyStrength(excessBps decimal.Decimal) Strength {
	five := decimal.NewFromInt(5)
	fifteen := decimal.NewFromInt(15)
	switch {
	case excessBps.LessThan(five):
		return StrengthWeak
	case excessBps.LessThan(fifteen):
		return StrengthMedium
	default:
		return StrengthStrong
	}
}
