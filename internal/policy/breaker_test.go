package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sessionbroker/broker/pkg/types"
)

func testBreakerConfig() types.CircuitBreakerConfig {
	return types.CircuitBreakerConfig{
		FailureThreshold: 3,
		WindowMs:         1000,
		RecoveryTimeMs:   500,
		SuccessThreshold: 2,
	}
}

func TestBreakerStartsClosed(t *testing.T) {
	b := NewCircuitBreaker(testBreakerConfig())
	assert.Equal(t, StateClosed, b.GetState())
	assert.True(t, b.CanExecute())
}

func TestBreakerTripsAtThreshold(t *testing.T) {
	b := NewCircuitBreaker(testBreakerConfig())

	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.GetState())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.GetState())
	assert.False(t, b.CanExecute())
}

func TestBreakerSlidesOldFailuresOutOfWindow(t *testing.T) {
	b := NewCircuitBreaker(testBreakerConfig())

	fake := time.Now()
	b.now = func() time.Time { return fake }

	b.RecordFailure()
	b.RecordFailure()

	// advance past the window; these two failures should no longer count
	fake = fake.Add(2 * time.Second)
	b.RecordFailure()

	assert.Equal(t, StateClosed, b.GetState())
	assert.Equal(t, 1, b.GetFailureCount())
}

func TestBreakerHalfOpenAfterRecovery(t *testing.T) {
	b := NewCircuitBreaker(testBreakerConfig())
	fake := time.Now()
	b.now = func() time.Time { return fake }

	b.RecordFailure()
	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.GetState())

	fake = fake.Add(600 * time.Millisecond)
	assert.True(t, b.CanExecute())
	assert.Equal(t, StateHalfOpen, b.GetState())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewCircuitBreaker(testBreakerConfig())
	fake := time.Now()
	b.now = func() time.Time { return fake }

	b.RecordFailure()
	b.RecordFailure()
	b.RecordFailure()
	fake = fake.Add(600 * time.Millisecond)
	b.CanExecute()
	assert.Equal(t, StateHalfOpen, b.GetState())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.GetState())
}

func TestBreakerHalfOpenRecoversAfterSuccessThreshold(t *testing.T) {
	b := NewCircuitBreaker(testBreakerConfig())
	fake := time.Now()
	b.now = func() time.Time { return fake }

	b.RecordFailure()
	b.RecordFailure()
	b.RecordFailure()
	fake = fake.Add(600 * time.Millisecond)
	b.CanExecute()

	b.RecordSuccess()
	assert.Equal(t, StateHalfOpen, b.GetState())
	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.GetState())
	assert.Equal(t, 0, b.GetFailureCount())
}

func TestBreakerForceReset(t *testing.T) {
	b := NewCircuitBreaker(testBreakerConfig())
	b.RecordFailure()
	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.GetState())

	b.ForceReset()
	assert.Equal(t, StateClosed, b.GetState())
	assert.True(t, b.CanExecute())
}
