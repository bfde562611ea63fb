package safety

import (
	"sync"
	"time"

	"github.com/ibkr-mcp/gateway/internal/gatewayerr"
	"github.com/ibkr-mcp/gateway/internal/models"
)

// DailyLimits tracks the three per-calendar-day counters (orders placed,
// active stop losses, notional volume). Rollover is time-based: any method
// that observes today_utc != counters.date_utc resets the counters first,
// even if the process has been idle since the last call.
type DailyLimits struct {
	mu                      sync.Mutex
	counters                models.DailyCounters
	maxDailyOrders          int
	maxStopLossOrders       int
	maxPortfolioValueAtRisk float64
}

// NewDailyLimits constructs a limiter with the configured caps. A
// maxPortfolioValueAtRisk of 0 disables the notional-volume check.
func NewDailyLimits(maxDailyOrders, maxStopLossOrders int, maxPortfolioValueAtRisk float64) *DailyLimits {
	d := &DailyLimits{
		maxDailyOrders:          maxDailyOrders,
		maxStopLossOrders:       maxStopLossOrders,
		maxPortfolioValueAtRisk: maxPortfolioValueAtRisk,
	}
	d.counters.DateUTC = today()
	return d
}

func today() string {
	return time.Now().UTC().Format("2006-01-02")
}

// rolloverLocked resets counters if the UTC calendar date has advanced.
// Caller must hold d.mu.
func (d *DailyLimits) rolloverLocked() {
	if t := today(); t != d.counters.DateUTC {
		d.counters = models.DailyCounters{DateUTC: t}
	}
}

// CanClaimOrderSlot reports whether one more order would stay within
// max_daily_orders, without mutating state (used by the safety manager's
// read-only pre-check, distinct from the order manager's ClaimOrderSlot).
func (d *DailyLimits) CanClaimOrderSlot() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rolloverLocked()
	if d.counters.OrdersPlaced+1 > d.maxDailyOrders {
		return gatewayerr.DailyLimitExceededErr("orders_placed", d.counters.OrdersPlaced, d.maxDailyOrders)
	}
	return nil
}

// ClaimOrderSlot atomically increments the order count if doing so would
// not exceed max_daily_orders. This is the two-phase "claim" the order
// manager calls post-validation, before broker submission.
func (d *DailyLimits) ClaimOrderSlot() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rolloverLocked()
	if d.counters.OrdersPlaced+1 > d.maxDailyOrders {
		return gatewayerr.DailyLimitExceededErr("orders_placed", d.counters.OrdersPlaced, d.maxDailyOrders)
	}
	d.counters.OrdersPlaced++
	return nil
}

// ReleaseOrderSlot decrements the order count; called when a claimed slot's
// broker submission fails or is cancelled before acceptance.
func (d *DailyLimits) ReleaseOrderSlot() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rolloverLocked()
	if d.counters.OrdersPlaced > 0 {
		d.counters.OrdersPlaced--
	}
}

// ClaimStopLossSlot increments the active-stop-loss count if under the cap.
// Called only after the broker acknowledges acceptance of a new stop-loss.
func (d *DailyLimits) ClaimStopLossSlot() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rolloverLocked()
	if d.counters.ActiveStopLosses >= d.maxStopLossOrders {
		return gatewayerr.DailyLimitExceededErr("active_stop_losses", d.counters.ActiveStopLosses, d.maxStopLossOrders)
	}
	d.counters.ActiveStopLosses++
	return nil
}

// CanPlaceStopLoss reports whether a new stop loss would fit under the cap,
// without mutating state (used by the safety manager's pre-check).
func (d *DailyLimits) CanPlaceStopLoss() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rolloverLocked()
	if d.counters.ActiveStopLosses >= d.maxStopLossOrders {
		return gatewayerr.DailyLimitExceededErr("active_stop_losses", d.counters.ActiveStopLosses, d.maxStopLossOrders)
	}
	return nil
}

// ReleaseStopLossSlot decrements the active-stop-loss count on cancellation
// or terminal fill.
func (d *DailyLimits) ReleaseStopLossSlot() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rolloverLocked()
	if d.counters.ActiveStopLosses > 0 {
		d.counters.ActiveStopLosses--
	}
}

// AddNotional accumulates an order-value estimate against the optional
// max_portfolio_value_at_risk bound. A zero bound disables the check.
func (d *DailyLimits) AddNotional(amountUSD float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rolloverLocked()
	if d.maxPortfolioValueAtRisk > 0 && d.counters.NotionalVolumeUSD+amountUSD > d.maxPortfolioValueAtRisk {
		return gatewayerr.New(gatewayerr.DailyLimitExceeded, "daily notional volume limit exceeded").
			WithDetails(map[string]any{
				"which":   "notional_volume_usd",
				"current": d.counters.NotionalVolumeUSD,
				"max":     d.maxPortfolioValueAtRisk,
			})
	}
	d.counters.NotionalVolumeUSD += amountUSD
	return nil
}

// Snapshot returns the current counters after applying any pending rollover.
func (d *DailyLimits) Snapshot() models.DailyCounters {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rolloverLocked()
	return d.counters
}
