// Package safety implements the pre-flight validation chain every
// trading-side (and several read-side) operation must pass: kill switch,
// rate limiting, daily limits, account verification, op-specific parameter
// checks, and the global trading flag.
package safety

import (
	"strings"

	"github.com/ibkr-mcp/gateway/internal/audit"
	"github.com/ibkr-mcp/gateway/internal/gatewayerr"
	"github.com/ibkr-mcp/gateway/internal/models"
)

// AccountProvider supplies the currently active broker account identifier,
// used by the paper-account verification check.
type AccountProvider interface {
	CurrentAccountID() string
}

// Config holds the toggles and limits the Safety Manager enforces directly
// (as opposed to the sub-component configs passed to their constructors).
type Config struct {
	EnableTrading                   bool
	EnableForexTrading               bool
	EnableInternationalTrading       bool
	EnableStopLossOrders             bool
	EnableKillSwitch                 bool
	RequirePaperAccountVerification  bool
	AllowedAccountPrefixes           []string
	MaxOrderSize                     int
	MaxOrderValueUSD                 float64
}

// Manager is the single entry point: Validate(kind, payload) -> decision.
// It composes the kill switch, rate limiter, daily limits, and account
// verification into a fixed, short-circuiting chain, then audits the
// outcome. Counter increments (order-slot claims) are NOT performed here —
// see DailyLimits.ClaimOrderSlot, invoked separately by the order manager
// after this decision returns Safe.
type Manager struct {
	cfg         Config
	killSwitch  *KillSwitch
	rateLimiter *RateLimiter
	dailyLimits *DailyLimits
	accounts    AccountProvider
	auditLog    *audit.Log
}

// NewManager wires the safety chain's sub-components.
func NewManager(cfg Config, ks *KillSwitch, rl *RateLimiter, dl *DailyLimits, accounts AccountProvider, auditLog *audit.Log) *Manager {
	return &Manager{cfg: cfg, killSwitch: ks, rateLimiter: rl, dailyLimits: dl, accounts: accounts, auditLog: auditLog}
}

// Validate runs the fixed ordered chain, short-circuiting on the first
// error but accumulating warnings along the way, then audits and returns
// the decision. payload is the kind-specific request struct (see
// internal/models payload types).
func (m *Manager) Validate(kind models.OperationKind, payload any) *models.ValidationDecision {
	d := models.NewValidationDecision()

	for _, step := range []func(models.OperationKind, any, *models.ValidationDecision) bool{
		m.checkKillSwitch,
		m.checkRateLimit,
		m.checkDailyLimit,
		m.checkAccountVerification,
		m.checkOpSpecific,
		m.checkGlobalGuard,
	} {
		if !step(kind, payload, d) {
			break
		}
	}

	m.auditLog.WriteValidation(kind, sanitizedPayload(kind, payload), d)
	return d
}

// checkKillSwitch returns false (stop the chain) iff the subsystem is
// armed, the switch is active, and the operation is trading-side.
func (m *Manager) checkKillSwitch(kind models.OperationKind, _ any, d *models.ValidationDecision) bool {
	d.AddCheck("kill_switch")
	if !m.cfg.EnableKillSwitch {
		return true
	}
	if kind.TradingSide() && m.killSwitch.IsActive() {
		d.Fail(string(gatewayerr.EmergencyHalt), gatewayerr.EmergencyHaltErr(m.killSwitch.Reason()).Error())
		return false
	}
	return true
}

func (m *Manager) checkRateLimit(kind models.OperationKind, _ any, d *models.ValidationDecision) bool {
	d.AddCheck("rate_limit")
	if err := m.rateLimiter.Check(kind.RateClass()); err != nil {
		d.Fail(string(gatewayerr.RateLimited), err.Error())
		return false
	}
	return true
}

// checkDailyLimit applies only to order-placing kinds; it is a read-only
// pre-check (CanClaimOrderSlot / CanPlaceStopLoss) — the actual increment
// happens in the order manager's post-validation claim call.
func (m *Manager) checkDailyLimit(kind models.OperationKind, _ any, d *models.ValidationDecision) bool {
	d.AddCheck("daily_limit")
	if !kind.OrderPlacing() {
		return true
	}
	var err error
	if kind == models.OpPlaceStopLoss {
		err = m.dailyLimits.CanPlaceStopLoss()
	}
	if err == nil {
		err = m.dailyLimits.CanClaimOrderSlot()
	}
	if err != nil {
		d.Fail(string(gatewayerr.DailyLimitExceeded), err.Error())
		return false
	}
	return true
}

func (m *Manager) checkAccountVerification(kind models.OperationKind, payload any, d *models.ValidationDecision) bool {
	d.AddCheck("account_verification")
	if !m.cfg.RequirePaperAccountVerification || m.accounts == nil {
		return true
	}
	// AccountSwitch verifies the account being switched to, not the one
	// currently active — otherwise a live account could never switch away
	// from itself into a valid paper account.
	acct := m.accounts.CurrentAccountID()
	if kind == models.OpAccountSwitch {
		if p, ok := payload.(models.AccountSwitchParams); ok {
			acct = p.AccountID
		}
	}
	for _, prefix := range m.cfg.AllowedAccountPrefixes {
		if strings.HasPrefix(acct, prefix) {
			return true
		}
	}
	d.Fail(string(gatewayerr.LiveAccountBlocked), gatewayerr.New(gatewayerr.LiveAccountBlocked,
		"current account is not a configured paper account").Error())
	return false
}

func (m *Manager) checkGlobalGuard(kind models.OperationKind, _ any, d *models.ValidationDecision) bool {
	d.AddCheck("global_guard")
	if kind.TradingSide() && !m.cfg.EnableTrading {
		d.Fail(string(gatewayerr.TradingDisabled), gatewayerr.New(gatewayerr.TradingDisabled, "trading is disabled (enable_trading=false)").Error())
		return false
	}
	switch kind {
	case models.OpForexRate, models.OpCurrencyConvert:
		if !m.cfg.EnableForexTrading && kind.TradingSide() {
			d.Fail(string(gatewayerr.TradingDisabled), gatewayerr.New(gatewayerr.TradingDisabled, "forex trading is disabled").Error())
			return false
		}
	case models.OpPlaceStopLoss, models.OpModifyStopLoss, models.OpCancelStopLoss:
		if !m.cfg.EnableStopLossOrders {
			d.Fail(string(gatewayerr.TradingDisabled), gatewayerr.New(gatewayerr.TradingDisabled, "stop-loss orders are disabled").Error())
			return false
		}
	}
	return true
}

// ManagerStatus is the safety chain's point-in-time snapshot for the
// operator status surface.
type ManagerStatus struct {
	KillSwitchActive bool                `json:"kill_switch_active"`
	KillSwitchReason string              `json:"kill_switch_reason,omitempty"`
	DailyCounters    models.DailyCounters `json:"daily_counters"`
	RateLimitOccupancy map[string]int    `json:"rate_limit_occupancy"`
}

// Status assembles a read-only snapshot of kill switch, daily counters, and
// rate-limit window occupancy. It never fails and never mutates state.
func (m *Manager) Status() ManagerStatus {
	ks := m.killSwitch.State()
	return ManagerStatus{
		KillSwitchActive: ks.Active,
		KillSwitchReason: ks.Reason,
		DailyCounters:    m.dailyLimits.Snapshot(),
		RateLimitOccupancy: map[string]int{
			"order_placement": m.rateLimiter.Occupancy("order_placement"),
			"quote_request":   m.rateLimiter.Occupancy("quote_request"),
			"fuzzy_search":    m.rateLimiter.Occupancy("fuzzy_search"),
		},
	}
}

// sanitizedPayload renders payload as a map[string]any for the audit log;
// the audit package performs field-level redaction on top of this.
func sanitizedPayload(kind models.OperationKind, payload any) map[string]any {
	m := map[string]any{"kind": string(kind)}
	switch p := payload.(type) {
	case models.PlaceStopLossParams:
		m["symbol"] = p.Symbol
		m["side"] = p.Side
		m["quantity"] = p.Quantity
		m["stop_price"] = p.StopPrice
	case models.CurrencyConvertParams:
		m["from"] = p.From
		m["to"] = p.To
		m["amount"] = p.Amount
	case models.ResolutionQuery:
		m["raw_input"] = p.RawInput
	case models.AccountSwitchParams:
		m["account_id"] = p.AccountID
	}
	return m
}
