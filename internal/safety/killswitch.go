package safety

import (
	"sync"
	"time"

	"github.com/ibkr-mcp/gateway/internal/gatewayerr"
	"github.com/ibkr-mcp/gateway/internal/models"
)

// KillSwitch is the process-scoped trading-side trip-wire. Once active it
// blocks every trading-side operation until an operator deactivates it with
// the configured override token; read-side operations are unaffected.
type KillSwitch struct {
	mu            sync.RWMutex
	state         models.KillSwitchState
	overrideToken string
}

// NewKillSwitch returns an inactive kill switch guarded by overrideToken.
func NewKillSwitch(overrideToken string) *KillSwitch {
	return &KillSwitch{overrideToken: overrideToken}
}

// Activate arms the switch with reason and returns the resulting state.
func (k *KillSwitch) Activate(reason string) models.KillSwitchState {
	k.mu.Lock()
	defer k.mu.Unlock()
	now := time.Now().UTC()
	k.state = models.KillSwitchState{Active: true, Reason: reason, ActivatedAt: &now}
	return k.state
}

// Deactivate clears the switch if token matches the configured override
// token; otherwise it returns PermissionDenied and leaves state unchanged.
func (k *KillSwitch) Deactivate(token string) (models.KillSwitchState, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if token == "" || token != k.overrideToken {
		return k.state, gatewayerr.New(gatewayerr.PermissionDenied, "invalid kill-switch override token")
	}
	k.state = models.KillSwitchState{}
	return k.state, nil
}

// IsActive is a cheap, read-mostly check.
func (k *KillSwitch) IsActive() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.state.Active
}

// State returns a snapshot of the current kill-switch state.
func (k *KillSwitch) State() models.KillSwitchState {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.state
}

// Reason returns the active reason, or "" if inactive. Cheap, used to
// populate every subsequent rejection's error detail while active.
func (k *KillSwitch) Reason() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.state.Reason
}
