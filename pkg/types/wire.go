package types

// ------------------------------------------------------------------------
// Inbound wire events. Framing/parsing is an external collaborator; these
// are the typed shapes consumed once parsed.
// ------------------------------------------------------------------------

// BboUpdate is a top-of-book update for one market.
type BboUpdate struct {
	Market MarketKey
	BidPx  Price
	BidSz  Size
	AskPx  Price
	AskSz  Size
	TsMs   int64
}

// AssetCtxUpdate carries oracle/mark/open-interest for one market.
type AssetCtxUpdate struct {
	Market   MarketKey
	OraclePx Price
	MarkPx   Price
	OpenInt  string // kept as string; converted to decimal at the snapshot boundary
	TsMs     int64
	IsSpot   bool // spot markets are rejected at ingress before spec lookup
	Halted   bool
}

// BookUpdate is a full or partial book update; the core only needs to know
// it occurred for book-update timestamping, not its contents.
type BookUpdate struct {
	Market MarketKey
	TsMs   int64
}

// VenueOrderStatus enumerates the order_update.status values on the wire.
type VenueOrderStatus string

const (
	VenueOrderOpen           VenueOrderStatus = "open"
	VenueOrderFilled         VenueOrderStatus = "filled"
	VenueOrderCanceled       VenueOrderStatus = "canceled"
	VenueOrderRejected       VenueOrderStatus = "rejected"
	VenueOrderTriggered      VenueOrderStatus = "triggered"
	VenueOrderMarginCanceled VenueOrderStatus = "marginCanceled"
)

// IsTerminal reports whether the venue-reported status is terminal:
// filled, canceled, rejected, or marginCanceled.
func (s VenueOrderStatus) IsTerminal() bool {
	switch s {
	case VenueOrderFilled, VenueOrderCanceled, VenueOrderRejected, VenueOrderMarginCanceled:
		return true
	default:
		return false
	}
}

// VenueOrderUpdate is a single order-lifecycle notification.
type VenueOrderUpdate struct {
	OID             string
	Market          MarketKey
	Side            string // "B" or "A" on the wire
	Px              Price
	Sz              Size
	OrigSz          Size
	ClientOrderID   string // cloid, optional on the wire
	Status          VenueOrderStatus
	StatusTimestamp int64
}

// VenueFill is a single execution against one of our orders.
type VenueFill struct {
	OID           string
	ClientOrderID string
	Market        MarketKey
	Side          Side
	Price         Price
	Size          Size
	TsMs          int64
}

// SubscriptionResponse acks a channel subscription.
type SubscriptionResponse struct {
	Channel string
	Acked   bool
}

// ------------------------------------------------------------------------
// Outbound action envelope - the one wire format whose bit-exactness
// matters, since its bytes feed the action hash.
// ------------------------------------------------------------------------

// Signature is the split EIP-712 signature.
type Signature struct {
	R string `json:"r"`
	S string `json:"s"`
	V int    `json:"v"` // 27 or 28
}

// OrderAction is the "order" action payload: one or more orders plus a
// grouping hint.
type OrderAction struct {
	Type     string      `json:"type"` // "order"
	Orders   []WireOrder `json:"orders"`
	Grouping string      `json:"grouping"`
}

// WireOrder is a single order within an OrderAction. Numbers are strings on
// the wire; limit_px must have no trailing zeros.
type WireOrder struct {
	Asset      int    `json:"asset"`
	IsBuy      bool   `json:"is_buy"`
	LimitPx    string `json:"limit_px"`
	Sz         string `json:"sz"`
	ReduceOnly bool   `json:"reduce_only"`
	OrderType  string `json:"order_type"`
	Cloid      string `json:"cloid,omitempty"`
}

// CancelAction is the "cancel" action payload.
type CancelAction struct {
	Type    string       `json:"type"` // "cancel"
	Cancels []WireCancel `json:"cancels"`
}

// WireCancel identifies one order to cancel.
type WireCancel struct {
	Asset int    `json:"asset"`
	OID   string `json:"oid,omitempty"`
	Cloid string `json:"cloid,omitempty"`
}

// ActionPayload is the signed-and-nonced wrapper around an action.
type ActionPayload struct {
	Action       any       `json:"action"`
	Nonce        uint64    `json:"nonce"`
	Signature    Signature `json:"signature"`
	VaultAddress string    `json:"vaultAddress,omitempty"`
}

// ActionRequest wraps the payload in the "type":"action" envelope.
type ActionRequest struct {
	Type    string        `json:"type"`
	Payload ActionPayload `json:"payload"`
}

// PostEnvelope is the full outbound frame: {"method":"post","id":N,"request":{...}}.
type PostEnvelope struct {
	Method  string        `json:"method"`
	ID      int64         `json:"id"`
	Request ActionRequest `json:"request"`
}
