// Package orders implements the stop-loss lifecycle and order-history
// retrieval, thin wrappers over the broker session guarded by the safety
// chain and the daily order-count claim.
package orders

import (
	"sync"

	"github.com/ibkr-mcp/gateway/internal/audit"
	"github.com/ibkr-mcp/gateway/internal/gatewayerr"
	"github.com/ibkr-mcp/gateway/internal/models"
	"github.com/ibkr-mcp/gateway/internal/safety"
)

// BrokerClient is the subset of the broker session the order manager
// depends on.
type BrokerClient interface {
	PlaceStopLoss(p models.PlaceStopLossParams) (models.StopLossOrder, error)
	ModifyStopLoss(p models.ModifyStopLossParams) (models.StopLossOrder, error)
	CancelStopLoss(orderID string) error
	PlaceOrder(p models.PlaceOrderParams) (models.OpenOrder, error)
	CancelOrder(orderID string) error
	ReqOpenOrders() ([]models.OpenOrder, error)
	ReqCompletedOrders(kind models.OrderHistoryKind) ([]models.CompletedOrder, error)
	ReqExecutions() ([]models.Execution, error)
}

// Manager owns the in-memory stop-loss ledger and fronts every order
// operation with the safety chain's validate-then-claim sequence.
type Manager struct {
	mu     sync.RWMutex
	safety *safety.Manager
	daily  *safety.DailyLimits
	broker BrokerClient
	audit  *audit.Log

	stopLosses map[string]models.StopLossOrder
}

// NewManager wires the order manager's dependencies.
func NewManager(safetyMgr *safety.Manager, daily *safety.DailyLimits, broker BrokerClient, auditLog *audit.Log) *Manager {
	return &Manager{
		safety: safetyMgr, daily: daily, broker: broker, audit: auditLog,
		stopLosses: make(map[string]models.StopLossOrder),
	}
}

// PlaceStopLoss runs validate -> claim -> submit -> release-on-failure,
// per the two-phase counting scheme.
func (m *Manager) PlaceStopLoss(p models.PlaceStopLossParams) (models.StopLossOrder, error) {
	decision := m.safety.Validate(models.OpPlaceStopLoss, p)
	if !decision.Safe {
		return models.StopLossOrder{}, gatewayerr.FromDecision(decision.FailKind, decision.Errors[0])
	}

	if err := m.daily.ClaimOrderSlot(); err != nil {
		return models.StopLossOrder{}, err
	}

	notional := p.OrderEstimateNotional()
	if err := m.daily.AddNotional(notional); err != nil {
		m.daily.ReleaseOrderSlot()
		return models.StopLossOrder{}, err
	}

	order, err := m.broker.PlaceStopLoss(p)
	if err != nil {
		m.daily.ReleaseOrderSlot()
		_ = m.daily.AddNotional(-notional)
		m.audit.WriteOutcome(models.OpPlaceStopLoss, nil, "rejected: "+err.Error())
		return models.StopLossOrder{}, err
	}

	if err := m.daily.ClaimStopLossSlot(); err != nil {
		// Broker already accepted the order; we cannot un-submit it. The
		// slot accounting falls behind by one rather than cancel a live
		// order out from under the caller.
		m.audit.WriteOutcome(models.OpPlaceStopLoss, nil, "accepted-over-stop-loss-cap")
	}

	m.mu.Lock()
	m.stopLosses[order.OrderID] = order
	m.mu.Unlock()

	m.audit.WriteOutcome(models.OpPlaceStopLoss, nil, "accepted")
	return order, nil
}

// ModifyStopLoss validates, submits the change, and updates the ledger.
func (m *Manager) ModifyStopLoss(p models.ModifyStopLossParams) (models.StopLossOrder, error) {
	decision := m.safety.Validate(models.OpModifyStopLoss, p)
	if !decision.Safe {
		return models.StopLossOrder{}, gatewayerr.FromDecision(decision.FailKind, decision.Errors[0])
	}

	order, err := m.broker.ModifyStopLoss(p)
	if err != nil {
		m.audit.WriteOutcome(models.OpModifyStopLoss, nil, "rejected: "+err.Error())
		return models.StopLossOrder{}, err
	}

	m.mu.Lock()
	m.stopLosses[order.OrderID] = order
	m.mu.Unlock()
	m.audit.WriteOutcome(models.OpModifyStopLoss, nil, "accepted")
	return order, nil
}

// CancelStopLoss cancels the order and releases its active-stop-loss slot.
func (m *Manager) CancelStopLoss(orderID string) error {
	decision := m.safety.Validate(models.OpCancelStopLoss, models.ModifyStopLossParams{OrderID: orderID})
	if !decision.Safe {
		return gatewayerr.FromDecision(decision.FailKind, decision.Errors[0])
	}

	if err := m.broker.CancelStopLoss(orderID); err != nil {
		m.audit.WriteOutcome(models.OpCancelStopLoss, nil, "rejected: "+err.Error())
		return err
	}

	m.mu.Lock()
	if o, ok := m.stopLosses[orderID]; ok {
		o.Status = models.StopLossCancelled
		m.stopLosses[orderID] = o
	}
	m.mu.Unlock()
	m.daily.ReleaseStopLossSlot()
	m.audit.WriteOutcome(models.OpCancelStopLoss, nil, "accepted")
	return nil
}

// ListStopLosses returns the in-memory ledger, optionally filtered.
func (m *Manager) ListStopLosses(filter models.StopLossFilter) []models.StopLossOrder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.StopLossOrder, 0, len(m.stopLosses))
	for _, o := range m.stopLosses {
		if filter.Symbol != "" && o.Symbol != filter.Symbol {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		out = append(out, o)
	}
	return out
}

// ReconcileStatus records a broker-reported status transition for orderID,
// releasing its active-stop-loss slot if the new status is terminal.
func (m *Manager) ReconcileStatus(orderID string, status models.StopLossStatus) {
	m.mu.Lock()
	o, ok := m.stopLosses[orderID]
	wasTerminal := ok && o.Status.Terminal()
	if ok {
		o.Status = status
		m.stopLosses[orderID] = o
	}
	m.mu.Unlock()
	if ok && !wasTerminal && status.Terminal() {
		m.daily.ReleaseStopLossSlot()
	}
}

// PlaceOrder runs the same validate -> claim -> submit -> release sequence
// as PlaceStopLoss for plain market/limit orders.
func (m *Manager) PlaceOrder(p models.PlaceOrderParams) (models.OpenOrder, error) {
	decision := m.safety.Validate(models.OpPlaceOrder, p)
	if !decision.Safe {
		return models.OpenOrder{}, gatewayerr.FromDecision(decision.FailKind, decision.Errors[0])
	}

	if err := m.daily.ClaimOrderSlot(); err != nil {
		return models.OpenOrder{}, err
	}

	order, err := m.broker.PlaceOrder(p)
	if err != nil {
		m.daily.ReleaseOrderSlot()
		m.audit.WriteOutcome(models.OpPlaceOrder, nil, "rejected: "+err.Error())
		return models.OpenOrder{}, err
	}
	m.audit.WriteOutcome(models.OpPlaceOrder, nil, "accepted")
	return order, nil
}

// CancelOrder cancels a plain order (not a stop-loss).
func (m *Manager) CancelOrder(orderID string) error {
	decision := m.safety.Validate(models.OpCancelOrder, models.CancelOrderParams{OrderID: orderID})
	if !decision.Safe {
		return gatewayerr.FromDecision(decision.FailKind, decision.Errors[0])
	}
	if err := m.broker.CancelOrder(orderID); err != nil {
		m.audit.WriteOutcome(models.OpCancelOrder, nil, "rejected: "+err.Error())
		return err
	}
	m.audit.WriteOutcome(models.OpCancelOrder, nil, "accepted")
	return nil
}

// ListOpenOrders, ListCompletedOrders, and ListExecutions bypass the daily
// limits and kill switch (read-only) but still pass through rate limiting
// and audit via the safety chain's standard dispatch.
func (m *Manager) ListOpenOrders() ([]models.OpenOrder, error) {
	if d := m.safety.Validate(models.OpOrderHistoryRead, models.OrderHistoryReadParams{Kind: models.HistoryOpenOrders}); !d.Safe {
		return nil, gatewayerr.FromDecision(d.FailKind, d.Errors[0])
	}
	return m.broker.ReqOpenOrders()
}

func (m *Manager) ListCompletedOrders(symbol string, daysBack int) ([]models.CompletedOrder, error) {
	params := models.OrderHistoryReadParams{Symbol: symbol, DaysBack: daysBack, Kind: models.HistoryCompletedOrders}
	if d := m.safety.Validate(models.OpOrderHistoryRead, params); !d.Safe {
		return nil, gatewayerr.FromDecision(d.FailKind, d.Errors[0])
	}
	return m.broker.ReqCompletedOrders(models.HistoryCompletedOrders)
}

func (m *Manager) ListExecutions(symbol string, daysBack int) ([]models.Execution, error) {
	params := models.OrderHistoryReadParams{Symbol: symbol, DaysBack: daysBack, Kind: models.HistoryExecutions}
	if d := m.safety.Validate(models.OpOrderHistoryRead, params); !d.Safe {
		return nil, gatewayerr.FromDecision(d.FailKind, d.Errors[0])
	}
	return m.broker.ReqExecutions()
}
