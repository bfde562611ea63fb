// Package models provides the data structures shared across the gateway:
// operation payloads, validation decisions, audit events, safety state, and
// the symbol/forex/order domain types.
package models

import "time"

// OperationKind tags the fixed set of trading and read-side operations the
// gateway exposes. Each kind carries a distinct validation profile in the
// safety manager and a distinct op-class in the rate limiter.
type OperationKind string

// Operation kinds, per the gateway's fixed operation surface.
const (
	OpMarketData       OperationKind = "MarketData"
	OpForexRate        OperationKind = "ForexRate"
	OpCurrencyConvert  OperationKind = "CurrencyConvert"
	OpResolveSymbol    OperationKind = "ResolveSymbol"
	OpPlaceStopLoss    OperationKind = "PlaceStopLoss"
	OpModifyStopLoss   OperationKind = "ModifyStopLoss"
	OpCancelStopLoss   OperationKind = "CancelStopLoss"
	OpListStopLosses   OperationKind = "ListStopLosses"
	OpPlaceOrder       OperationKind = "PlaceOrder"
	OpModifyOrder      OperationKind = "ModifyOrder"
	OpCancelOrder      OperationKind = "CancelOrder"
	OpAccountSwitch    OperationKind = "AccountSwitch"
	OpPortfolioRead    OperationKind = "PortfolioRead"
	OpOrderHistoryRead OperationKind = "OrderHistoryRead"
)

// TradingSide reports whether the operation kind places, modifies, or
// cancels an order or stop-loss — the set the kill switch and the global
// trading flag gate. Read-side kinds (market data, portfolio, resolution,
// order history, forex) always remain permitted.
func (k OperationKind) TradingSide() bool {
	switch k {
	case OpPlaceStopLoss, OpModifyStopLoss, OpCancelStopLoss,
		OpPlaceOrder, OpModifyOrder, OpCancelOrder:
		return true
	default:
		return false
	}
}

// OrderPlacing reports whether the kind is subject to the daily order-count
// limit and the per-minute order-placement rate class.
func (k OperationKind) OrderPlacing() bool {
	switch k {
	case OpPlaceStopLoss, OpPlaceOrder:
		return true
	default:
		return false
	}
}

// RateClass maps an operation kind to its rate-limiter op-class. Every
// read-side kind, order-history reads included, counts against
// quote_request. Symbol resolution counts there too; the far stricter
// fuzzy_search window applies only to the fuzzy remote lookup and is
// enforced inside the resolver, so exact-symbol resolutions don't burn it.
func (k OperationKind) RateClass() string {
	switch k {
	case OpPlaceStopLoss, OpModifyStopLoss, OpCancelStopLoss, OpPlaceOrder, OpModifyOrder, OpCancelOrder:
		return "order_placement"
	default:
		return "quote_request"
	}
}

// OperationRequest is the envelope every validated call goes through.
// Payload is kind-specific; callers type-assert once at the boundary.
type OperationRequest struct {
	Kind        OperationKind
	SubmittedAt time.Time
	Payload     any
}

// ValidationDecision is the outcome of SafetyManager.Validate. Safe is true
// iff Errors is empty; Warnings never block a decision. FailKind carries the
// gatewayerr.Kind of the first failing check (as a plain string, so this
// package need not import gatewayerr), letting callers rebuild a properly
// kinded error instead of collapsing every rejection to one kind.
type ValidationDecision struct {
	Safe             bool
	Warnings         []string
	Errors           []string
	ChecksPerformed  []string
	FailKind         string
}

// AddCheck records that a named check ran, for audit/debugging visibility.
func (d *ValidationDecision) AddCheck(name string) {
	d.ChecksPerformed = append(d.ChecksPerformed, name)
}

// AddWarning appends a non-fatal warning.
func (d *ValidationDecision) AddWarning(msg string) {
	d.Warnings = append(d.Warnings, msg)
}

// Fail appends an error of the given kind and marks the decision unsafe.
// Returns the decision for single-line "return d.Fail(...)" use at call
// sites. Only the first failing kind is kept, matching the chain's
// short-circuit-on-first-failure behavior.
func (d *ValidationDecision) Fail(kind, msg string) *ValidationDecision {
	if d.Safe {
		d.FailKind = kind
	}
	d.Errors = append(d.Errors, msg)
	d.Safe = false
	return d
}

// NewValidationDecision returns a decision that starts Safe and accumulates
// checks/warnings/errors as the safety chain runs.
func NewValidationDecision() *ValidationDecision {
	return &ValidationDecision{Safe: true}
}
