package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKillSwitch_ActivateDeactivate(t *testing.T) {
	ks := NewKillSwitch("secret-token")
	assert.False(t, ks.IsActive())

	st := ks.Activate("circuit breaker tripped")
	assert.True(t, st.Active)
	assert.Equal(t, "circuit breaker tripped", st.Reason)
	require.NotNil(t, st.ActivatedAt)
	assert.True(t, ks.IsActive())
	assert.Equal(t, "circuit breaker tripped", ks.Reason())
}

func TestKillSwitch_DeactivateWrongToken(t *testing.T) {
	ks := NewKillSwitch("secret-token")
	ks.Activate("manual")

	_, err := ks.Deactivate("wrong-token")
	require.Error(t, err)
	assert.True(t, ks.IsActive())
}

func TestKillSwitch_DeactivateEmptyToken(t *testing.T) {
	ks := NewKillSwitch("secret-token")
	ks.Activate("manual")

	_, err := ks.Deactivate("")
	require.Error(t, err)
	assert.True(t, ks.IsActive())
}

func TestKillSwitch_DeactivateCorrectToken(t *testing.T) {
	ks := NewKillSwitch("secret-token")
	ks.Activate("manual")

	st, err := ks.Deactivate("secret-token")
	require.NoError(t, err)
	assert.False(t, st.Active)
	assert.False(t, ks.IsActive())
	assert.Equal(t, "", ks.Reason())
}

func TestKillSwitch_ReasonWhenInactive(t *testing.T) {
	ks := NewKillSwitch("t")
	assert.Equal(t, "", ks.Reason())
}
