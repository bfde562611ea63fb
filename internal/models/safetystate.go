package models

import "time"

// KillSwitchState is the process-scoped trading trip-wire's state.
type KillSwitchState struct {
	Active      bool       `json:"active"`
	Reason      string     `json:"reason,omitempty"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
}

// DailyCounters tracks the three per-calendar-day limits the Daily Limits
// component enforces. DateUTC is the calendar day (YYYY-MM-DD, UTC) the
// counters apply to; any access on a later day resets them first.
type DailyCounters struct {
	DateUTC           string  `json:"date_utc"`
	OrdersPlaced      int     `json:"orders_placed"`
	ActiveStopLosses  int     `json:"active_stop_losses"`
	NotionalVolumeUSD float64 `json:"notional_volume_usd"`
}

// AuditEvent is one append-only audit-log record: either a validation
// decision (Decision set) or a post-validation broker-call outcome
// (Outcome set), never both.
type AuditEvent struct {
	TimestampUTC time.Time          `json:"timestamp_utc"`
	SessionID    string             `json:"session_id"`
	Kind         OperationKind      `json:"kind"`
	Payload      map[string]any     `json:"payload,omitempty"`
	Decision     *ValidationDecision `json:"decision,omitempty"`
	Outcome      *string            `json:"outcome,omitempty"`
}
