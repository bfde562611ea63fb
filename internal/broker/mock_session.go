package broker

import (
	"errors"
	"sync"

	"github.com/ibkr-mcp/gateway/internal/models"
)

// MockSession is a Session test double. Every method is a stub returning
// its configured response/error; Calls tallies invocations by method name
// for assertions.
type MockSession struct {
	mu sync.Mutex

	Connected bool
	ConnectErr, DisconnectErr error

	QualifyContractsFn   func(symbol, exchange, currency, secType string) ([]models.SymbolMatch, error)
	ReqMatchingSymbolsFn func(rawInput string) ([]models.SymbolMatch, error)
	ReqForexQuoteFn      func(pair string) (float64, float64, float64, float64, error)
	ReqTickersFn         func(symbols []string) ([]models.TickerSnapshot, error)
	ReqPositionsFn       func() ([]models.Position, error)
	ReqAccountSummaryFn  func() (models.AccountSummary, error)
	PlaceStopLossFn      func(p models.PlaceStopLossParams) (models.StopLossOrder, error)
	ModifyStopLossFn     func(p models.ModifyStopLossParams) (models.StopLossOrder, error)
	CancelStopLossFn     func(orderID string) error
	PlaceOrderFn         func(p models.PlaceOrderParams) (models.OpenOrder, error)
	CancelOrderFn        func(orderID string) error
	ReqOpenOrdersFn      func() ([]models.OpenOrder, error)
	ReqCompletedOrdersFn func(kind models.OrderHistoryKind) ([]models.CompletedOrder, error)
	ReqExecutionsFn      func() ([]models.Execution, error)

	Calls map[string]int
}

// NewMockSession returns a MockSession that is connected and returns empty,
// error-free responses from every method until overridden.
func NewMockSession() *MockSession {
	return &MockSession{Connected: true, Calls: make(map[string]int)}
}

func (m *MockSession) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls[name]++
}

func (m *MockSession) Connect() error {
	m.record("Connect")
	if m.ConnectErr != nil {
		return m.ConnectErr
	}
	m.Connected = true
	return nil
}

func (m *MockSession) Disconnect() error {
	m.record("Disconnect")
	if m.DisconnectErr != nil {
		return m.DisconnectErr
	}
	m.Connected = false
	return nil
}

func (m *MockSession) IsConnected() bool {
	m.record("IsConnected")
	return m.Connected
}

func (m *MockSession) QualifyContracts(symbol, exchange, currency, secType string) ([]models.SymbolMatch, error) {
	m.record("QualifyContracts")
	if m.QualifyContractsFn != nil {
		return m.QualifyContractsFn(symbol, exchange, currency, secType)
	}
	return nil, nil
}

func (m *MockSession) ReqMatchingSymbols(rawInput string) ([]models.SymbolMatch, error) {
	m.record("ReqMatchingSymbols")
	if m.ReqMatchingSymbolsFn != nil {
		return m.ReqMatchingSymbolsFn(rawInput)
	}
	return nil, nil
}

func (m *MockSession) ReqForexQuote(pair string) (float64, float64, float64, float64, error) {
	m.record("ReqForexQuote")
	if m.ReqForexQuoteFn != nil {
		return m.ReqForexQuoteFn(pair)
	}
	return 0, 0, 0, 0, errors.New("mock: ReqForexQuoteFn not configured")
}

func (m *MockSession) ReqTickers(symbols []string) ([]models.TickerSnapshot, error) {
	m.record("ReqTickers")
	if m.ReqTickersFn != nil {
		return m.ReqTickersFn(symbols)
	}
	return nil, nil
}

func (m *MockSession) ReqPositions() ([]models.Position, error) {
	m.record("ReqPositions")
	if m.ReqPositionsFn != nil {
		return m.ReqPositionsFn()
	}
	return nil, nil
}

func (m *MockSession) ReqAccountSummary() (models.AccountSummary, error) {
	m.record("ReqAccountSummary")
	if m.ReqAccountSummaryFn != nil {
		return m.ReqAccountSummaryFn()
	}
	return models.AccountSummary{}, nil
}

func (m *MockSession) PlaceStopLoss(p models.PlaceStopLossParams) (models.StopLossOrder, error) {
	m.record("PlaceStopLoss")
	if m.PlaceStopLossFn != nil {
		return m.PlaceStopLossFn(p)
	}
	return models.StopLossOrder{}, errors.New("mock: PlaceStopLossFn not configured")
}

func (m *MockSession) ModifyStopLoss(p models.ModifyStopLossParams) (models.StopLossOrder, error) {
	m.record("ModifyStopLoss")
	if m.ModifyStopLossFn != nil {
		return m.ModifyStopLossFn(p)
	}
	return models.StopLossOrder{}, errors.New("mock: ModifyStopLossFn not configured")
}

func (m *MockSession) CancelStopLoss(orderID string) error {
	m.record("CancelStopLoss")
	if m.CancelStopLossFn != nil {
		return m.CancelStopLossFn(orderID)
	}
	return nil
}

func (m *MockSession) PlaceOrder(p models.PlaceOrderParams) (models.OpenOrder, error) {
	m.record("PlaceOrder")
	if m.PlaceOrderFn != nil {
		return m.PlaceOrderFn(p)
	}
	return models.OpenOrder{}, errors.New("mock: PlaceOrderFn not configured")
}

func (m *MockSession) CancelOrder(orderID string) error {
	m.record("CancelOrder")
	if m.CancelOrderFn != nil {
		return m.CancelOrderFn(orderID)
	}
	return nil
}

func (m *MockSession) ReqOpenOrders() ([]models.OpenOrder, error) {
	m.record("ReqOpenOrders")
	if m.ReqOpenOrdersFn != nil {
		return m.ReqOpenOrdersFn()
	}
	return nil, nil
}

func (m *MockSession) ReqCompletedOrders(kind models.OrderHistoryKind) ([]models.CompletedOrder, error) {
	m.record("ReqCompletedOrders")
	if m.ReqCompletedOrdersFn != nil {
		return m.ReqCompletedOrdersFn(kind)
	}
	return nil, nil
}

func (m *MockSession) ReqExecutions() ([]models.Execution, error) {
	m.record("ReqExecutions")
	if m.ReqExecutionsFn != nil {
		return m.ReqExecutionsFn()
	}
	return nil, nil
}
