package models

import "time"

// MarketDataParams is the payload for OpMarketData.
type MarketDataParams struct {
	Symbols []string
}

// ForexRateParams is the payload for OpForexRate.
type ForexRateParams struct {
	Pairs []string
}

// CurrencyConvertParams is the payload for OpCurrencyConvert.
type CurrencyConvertParams struct {
	Amount float64
	From   string
	To     string
}

// AccountSwitchParams is the payload for OpAccountSwitch.
type AccountSwitchParams struct {
	AccountID string
}

// PortfolioReadParams is the payload for OpPortfolioRead. Empty today; kept
// as a distinct type so the OperationRequest payload switch stays exhaustive
// if portfolio filters are added later.
type PortfolioReadParams struct{}

// OrderHistoryReadParams is the payload for OpOrderHistoryRead.
type OrderHistoryReadParams struct {
	Symbol   string
	DaysBack int
	Kind     OrderHistoryKind
}

// OrderHistoryKind selects which order-history view is requested.
type OrderHistoryKind string

const (
	HistoryOpenOrders      OrderHistoryKind = "open_orders"
	HistoryCompletedOrders OrderHistoryKind = "completed_orders"
	HistoryExecutions      OrderHistoryKind = "executions"
)

// PlaceOrderParams is the payload for OpPlaceOrder (a plain market/limit
// order, distinct from the stop-loss lifecycle).
type PlaceOrderParams struct {
	Symbol      string
	Exchange    string
	Currency    string
	Side        Side
	Quantity    int
	OrderType   string // "MKT" | "LMT"
	LimitPrice  float64
	TimeInForce TimeInForce
}

// ModifyOrderParams is the payload for OpModifyOrder.
type ModifyOrderParams struct {
	OrderID       string
	NewQuantity   *int
	NewLimitPrice *float64
}

// CancelOrderParams is the payload for OpCancelOrder.
type CancelOrderParams struct {
	OrderID string
}

// OpenOrder, CompletedOrder, and Execution mirror the three distinct broker
// read APIs the Order Manager fronts: open orders carry live
// state, completed orders often carry zeroed fill fields (see DESIGN.md's
// Open Question resolution), and executions are the authoritative fill
// source.
type OpenOrder struct {
	OrderID     string
	Symbol      string
	Side        Side
	Quantity    int
	OrderType   string
	LimitPrice  float64
	Status      string
	SubmittedAt time.Time
}

type CompletedOrder struct {
	OrderID      string
	Symbol       string
	Side         Side
	Quantity     int
	Filled       float64 // often 0; see DESIGN.md
	AvgFillPrice float64 // often 0; see DESIGN.md
	Status       string
	CompletedAt  time.Time
}

type Execution struct {
	ExecID    string
	OrderID   string
	Symbol    string
	Side      Side
	Shares    int
	Price     float64
	Time      time.Time
}
