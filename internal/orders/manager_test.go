package orders

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibkr-mcp/gateway/internal/audit"
	"github.com/ibkr-mcp/gateway/internal/models"
	"github.com/ibkr-mcp/gateway/internal/safety"
)

type mockBrokerForOrders struct {
	placeStopLossFn  func(p models.PlaceStopLossParams) (models.StopLossOrder, error)
	modifyStopLossFn func(p models.ModifyStopLossParams) (models.StopLossOrder, error)
	cancelStopLossFn func(orderID string) error
	placeOrderFn     func(p models.PlaceOrderParams) (models.OpenOrder, error)
	cancelOrderFn    func(orderID string) error
	openOrdersFn     func() ([]models.OpenOrder, error)
	completedFn      func(kind models.OrderHistoryKind) ([]models.CompletedOrder, error)
	executionsFn     func() ([]models.Execution, error)
}

func (m *mockBrokerForOrders) PlaceStopLoss(p models.PlaceStopLossParams) (models.StopLossOrder, error) {
	if m.placeStopLossFn != nil {
		return m.placeStopLossFn(p)
	}
	return models.StopLossOrder{OrderID: "so-1", Symbol: p.Symbol, Status: models.StopLossSubmitted}, nil
}

func (m *mockBrokerForOrders) ModifyStopLoss(p models.ModifyStopLossParams) (models.StopLossOrder, error) {
	if m.modifyStopLossFn != nil {
		return m.modifyStopLossFn(p)
	}
	return models.StopLossOrder{OrderID: p.OrderID, Status: models.StopLossActive}, nil
}

func (m *mockBrokerForOrders) CancelStopLoss(orderID string) error {
	if m.cancelStopLossFn != nil {
		return m.cancelStopLossFn(orderID)
	}
	return nil
}

func (m *mockBrokerForOrders) PlaceOrder(p models.PlaceOrderParams) (models.OpenOrder, error) {
	if m.placeOrderFn != nil {
		return m.placeOrderFn(p)
	}
	return models.OpenOrder{OrderID: "o-1", Symbol: p.Symbol, Status: "Submitted"}, nil
}

func (m *mockBrokerForOrders) CancelOrder(orderID string) error {
	if m.cancelOrderFn != nil {
		return m.cancelOrderFn(orderID)
	}
	return nil
}

func (m *mockBrokerForOrders) ReqOpenOrders() ([]models.OpenOrder, error) {
	if m.openOrdersFn != nil {
		return m.openOrdersFn()
	}
	return nil, nil
}

func (m *mockBrokerForOrders) ReqCompletedOrders(kind models.OrderHistoryKind) ([]models.CompletedOrder, error) {
	if m.completedFn != nil {
		return m.completedFn(kind)
	}
	return nil, nil
}

func (m *mockBrokerForOrders) ReqExecutions() ([]models.Execution, error) {
	if m.executionsFn != nil {
		return m.executionsFn()
	}
	return nil, nil
}

type fakeAccountsForOrders struct{}

func (fakeAccountsForOrders) CurrentAccountID() string { return "DU1234567" }

func newTestOrderManager(t *testing.T, broker BrokerClient) (*Manager, *safety.DailyLimits) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.log")
	lg, err := audit.New(path, "orders-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = lg.Close() })

	ks := safety.NewKillSwitch("token")
	rl := safety.NewRateLimiter(safety.RateLimiterConfig{OrdersPerMinute: 10, MarketDataPerMinute: 30, FuzzySearchIntervalSeconds: 1.1})
	dl := safety.NewDailyLimits(5, 5, 0)
	cfg := safety.Config{
		EnableTrading: true, EnableStopLossOrders: true, EnableKillSwitch: true,
		RequirePaperAccountVerification: true, AllowedAccountPrefixes: []string{"DU"},
		MaxOrderSize: 1000, MaxOrderValueUSD: 1_000_000,
	}
	safetyMgr := safety.NewManager(cfg, ks, rl, dl, fakeAccountsForOrders{}, lg)
	return NewManager(safetyMgr, dl, broker, lg), dl
}

func validStopLossParams() models.PlaceStopLossParams {
	return models.PlaceStopLossParams{
		Symbol: "AAPL", Side: models.SideSell, Quantity: 10, StopPrice: 180,
		Variant: models.Variant{Kind: models.VariantBasic},
	}
}

func TestManager_PlaceStopLoss_Success(t *testing.T) {
	m, dl := newTestOrderManager(t, &mockBrokerForOrders{})

	order, err := m.PlaceStopLoss(validStopLossParams())
	require.NoError(t, err)
	assert.Equal(t, "so-1", order.OrderID)
	assert.Equal(t, 1, dl.Snapshot().OrdersPlaced)
	assert.Equal(t, 1, dl.Snapshot().ActiveStopLosses)
}

func TestManager_PlaceStopLoss_InvalidParamsNeverClaims(t *testing.T) {
	m, dl := newTestOrderManager(t, &mockBrokerForOrders{})

	p := validStopLossParams()
	p.Quantity = -1
	_, err := m.PlaceStopLoss(p)
	require.Error(t, err)
	assert.Equal(t, 0, dl.Snapshot().OrdersPlaced)
}

func TestManager_PlaceStopLoss_BrokerFailureReleasesSlot(t *testing.T) {
	broker := &mockBrokerForOrders{
		placeStopLossFn: func(p models.PlaceStopLossParams) (models.StopLossOrder, error) {
			return models.StopLossOrder{}, errors.New("rejected by broker")
		},
	}
	m, dl := newTestOrderManager(t, broker)

	_, err := m.PlaceStopLoss(validStopLossParams())
	require.Error(t, err)
	assert.Equal(t, 0, dl.Snapshot().OrdersPlaced)
}

func TestManager_PlaceStopLoss_DailyLimitExceeded(t *testing.T) {
	m, _ := newTestOrderManager(t, &mockBrokerForOrders{})
	for i := 0; i < 5; i++ {
		_, err := m.PlaceStopLoss(validStopLossParams())
		require.NoError(t, err)
	}
	_, err := m.PlaceStopLoss(validStopLossParams())
	require.Error(t, err)
}

func TestManager_CancelStopLoss_ReleasesSlot(t *testing.T) {
	m, dl := newTestOrderManager(t, &mockBrokerForOrders{})
	order, err := m.PlaceStopLoss(validStopLossParams())
	require.NoError(t, err)
	assert.Equal(t, 1, dl.Snapshot().ActiveStopLosses)

	require.NoError(t, m.CancelStopLoss(order.OrderID))
	assert.Equal(t, 0, dl.Snapshot().ActiveStopLosses)

	listed := m.ListStopLosses(models.StopLossFilter{})
	require.Len(t, listed, 1)
	assert.Equal(t, models.StopLossCancelled, listed[0].Status)
}

func TestManager_ListStopLosses_FiltersBySymbol(t *testing.T) {
	broker := &mockBrokerForOrders{}
	calls := 0
	broker.placeStopLossFn = func(p models.PlaceStopLossParams) (models.StopLossOrder, error) {
		calls++
		return models.StopLossOrder{OrderID: p.Symbol, Symbol: p.Symbol, Status: models.StopLossSubmitted}, nil
	}
	m, _ := newTestOrderManager(t, broker)

	p1 := validStopLossParams()
	p1.Symbol = "AAPL"
	p2 := validStopLossParams()
	p2.Symbol = "MSFT"
	_, err := m.PlaceStopLoss(p1)
	require.NoError(t, err)
	_, err = m.PlaceStopLoss(p2)
	require.NoError(t, err)

	filtered := m.ListStopLosses(models.StopLossFilter{Symbol: "AAPL"})
	require.Len(t, filtered, 1)
	assert.Equal(t, "AAPL", filtered[0].Symbol)
}

func TestManager_ReconcileStatus_ReleasesOnTerminal(t *testing.T) {
	m, dl := newTestOrderManager(t, &mockBrokerForOrders{})
	order, err := m.PlaceStopLoss(validStopLossParams())
	require.NoError(t, err)
	assert.Equal(t, 1, dl.Snapshot().ActiveStopLosses)

	m.ReconcileStatus(order.OrderID, models.StopLossFilled)
	assert.Equal(t, 0, dl.Snapshot().ActiveStopLosses)

	// A second terminal transition must not double-release.
	m.ReconcileStatus(order.OrderID, models.StopLossFilled)
	assert.Equal(t, 0, dl.Snapshot().ActiveStopLosses)
}

func TestManager_PlaceOrder_Success(t *testing.T) {
	m, dl := newTestOrderManager(t, &mockBrokerForOrders{})
	order, err := m.PlaceOrder(models.PlaceOrderParams{Symbol: "AAPL", Quantity: 5, OrderType: "MKT"})
	require.NoError(t, err)
	assert.Equal(t, "o-1", order.OrderID)
	assert.Equal(t, 1, dl.Snapshot().OrdersPlaced)
}

func TestManager_CancelOrder_Success(t *testing.T) {
	m, _ := newTestOrderManager(t, &mockBrokerForOrders{})
	require.NoError(t, m.CancelOrder("o-1"))
}

func TestManager_ListOpenOrders_PassesThrough(t *testing.T) {
	broker := &mockBrokerForOrders{openOrdersFn: func() ([]models.OpenOrder, error) {
		return []models.OpenOrder{{OrderID: "o-1"}}, nil
	}}
	m, _ := newTestOrderManager(t, broker)

	orders, err := m.ListOpenOrders()
	require.NoError(t, err)
	require.Len(t, orders, 1)
}

func TestManager_ListCompletedOrders_PassesThrough(t *testing.T) {
	broker := &mockBrokerForOrders{completedFn: func(kind models.OrderHistoryKind) ([]models.CompletedOrder, error) {
		assert.Equal(t, models.HistoryCompletedOrders, kind)
		return []models.CompletedOrder{{OrderID: "o-2"}}, nil
	}}
	m, _ := newTestOrderManager(t, broker)

	orders, err := m.ListCompletedOrders("AAPL", 7)
	require.NoError(t, err)
	require.Len(t, orders, 1)
}

func TestManager_ListExecutions_PassesThrough(t *testing.T) {
	broker := &mockBrokerForOrders{executionsFn: func() ([]models.Execution, error) {
		return []models.Execution{{ExecID: "e-1"}}, nil
	}}
	m, _ := newTestOrderManager(t, broker)

	execs, err := m.ListExecutions("AAPL", 7)
	require.NoError(t, err)
	require.Len(t, execs, 1)
}
