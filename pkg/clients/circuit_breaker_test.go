package clients

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tideway/tideway/pkg/testutil"
)

func TestCircuitBreakerOpensAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{FailureThreshold: 5, Cooldown: time.Minute}, testutil.Logger(t))

	for i := 0; i < 4; i++ {
		cb.RecordFailure()
		require.NoError(t, cb.Allow(), "circuit must stay closed below the threshold")
	}

	cb.RecordFailure()
	assert.Error(t, cb.Allow(), "fifth consecutive failure must open the circuit")
	assert.True(t, cb.State().Open)
}

func TestCircuitBreakerSuccessFullyResets(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{FailureThreshold: 3, Cooldown: time.Minute}, testutil.Logger(t))

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()

	state := cb.State()
	assert.False(t, state.Open)
	assert.Equal(t, 0, state.FailureCount, "success must reset the consecutive failure count")

	// The run of failures starts over after a success.
	cb.RecordFailure()
	cb.RecordFailure()
	assert.NoError(t, cb.Allow())
}

func TestCircuitBreakerProbeAfterCooldown(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{FailureThreshold: 1, Cooldown: 30 * time.Millisecond}, testutil.Logger(t))

	cb.RecordFailure()
	require.Error(t, cb.Allow())

	testutil.AssertEventually(t, func() bool {
		return cb.Allow() == nil
	}, time.Second, "cooldown expiry must admit one probe")
	assert.Error(t, cb.Allow(), "only one probe per cooldown while the provider stays down")

	cb.RecordSuccess()
	assert.NoError(t, cb.Allow())
}
