package models

import "time"

// Side is the trading direction of an order or stop-loss.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// TimeInForce is the broker-level order duration instruction.
type TimeInForce string

const (
	TIFDay TimeInForce = "DAY"
	TIFGTC TimeInForce = "GTC"
	TIFIOC TimeInForce = "IOC"
	TIFFOK TimeInForce = "FOK"
)

// StopLossStatus is the lifecycle state of a stop-loss order.
type StopLossStatus string

const (
	StopLossSubmitted StopLossStatus = "Submitted"
	StopLossActive    StopLossStatus = "Active"
	StopLossFilled    StopLossStatus = "Filled"
	StopLossCancelled StopLossStatus = "Cancelled"
	StopLossExpired   StopLossStatus = "Expired"
	StopLossRejected  StopLossStatus = "Rejected"
)

// Terminal reports whether the status is a terminal state that should
// decrement the active-stop-loss daily counter.
func (s StopLossStatus) Terminal() bool {
	switch s {
	case StopLossFilled, StopLossCancelled, StopLossExpired, StopLossRejected:
		return true
	default:
		return false
	}
}

// VariantKind tags which stop-loss variant a StopLossOrder carries.
type VariantKind string

const (
	VariantBasic      VariantKind = "Basic"
	VariantStopLimit  VariantKind = "StopLimit"
	VariantTrailing   VariantKind = "Trailing"
)

// Variant is a tagged union over the three stop-loss flavors. Exactly the
// fields relevant to Kind are populated; LimitPrice is set for StopLimit,
// and exactly one of TrailAmount/TrailPercent for Trailing.
type Variant struct {
	Kind         VariantKind
	LimitPrice   float64
	TrailAmount  *float64
	TrailPercent *float64
}

// StopLossOrder is a single stop-loss lifecycle record.
type StopLossOrder struct {
	OrderID       string
	Symbol        string
	Exchange      string
	Currency      string
	Side          Side
	Quantity      int
	StopPrice     float64
	Variant       Variant
	TimeInForce   TimeInForce
	Status        StopLossStatus
	SubmittedAt   time.Time
	UpdatedAt     time.Time
}

// PlaceStopLossParams is the payload for OpPlaceStopLoss.
type PlaceStopLossParams struct {
	Symbol      string
	Exchange    string
	Currency    string
	Side        Side
	Quantity    int
	StopPrice   float64
	Variant     Variant
	TimeInForce TimeInForce
}

// ModifyStopLossParams is the payload for OpModifyStopLoss.
type ModifyStopLossParams struct {
	OrderID      string
	NewStopPrice *float64
	NewQuantity  *int
	NewVariant   *Variant
}

// StopLossFilter restricts ListStopLosses results.
type StopLossFilter struct {
	Symbol string
	Status StopLossStatus
}

// OrderEstimateNotional returns a rough USD order-value estimate used to
// feed the optional notional-volume daily limit. It is an estimate from the
// requested stop/limit price, never a fill price.
func (p PlaceStopLossParams) OrderEstimateNotional() float64 {
	price := p.StopPrice
	if p.Variant.Kind == VariantStopLimit && p.Variant.LimitPrice > 0 {
		price = p.Variant.LimitPrice
	}
	return price * float64(p.Quantity)
}
