package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestBreaker(maxFailures int, recovery time.Duration) *CircuitBreaker {
	return New(Config{
		Name:                "test",
		MaxFailures:         maxFailures,
		RecoveryTimeout:     recovery,
		HalfOpenMaxRequests: 1,
	}, zap.NewNop())
}

func TestBreakerStartsClosed(t *testing.T) {
	cb := newTestBreaker(3, time.Second)

	assert.Equal(t, StateClosed, cb.GetState())
	assert.True(t, cb.Allow())
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	cb := newTestBreaker(3, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.GetState())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.GetState())
	assert.False(t, cb.Allow())
}

func TestBreakerSuccessResetsStreak(t *testing.T) {
	cb := newTestBreaker(3, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	// The streak restarted after the success, still below threshold.
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestBreakerProbesAfterRecoveryTimeout(t *testing.T) {
	cb := newTestBreaker(1, 10*time.Millisecond)

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.GetState())
	assert.False(t, cb.Allow())

	time.Sleep(15 * time.Millisecond)

	// First caller through becomes the probe, the next is rejected.
	assert.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.GetState())
	assert.False(t, cb.Allow())
}

func TestBreakerClosesAfterSuccessfulProbe(t *testing.T) {
	cb := newTestBreaker(1, 10*time.Millisecond)

	cb.RecordFailure()
	time.Sleep(15 * time.Millisecond)
	assert.True(t, cb.Allow())

	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.GetState())
	assert.True(t, cb.Allow())
}

func TestBreakerReopensAfterFailedProbe(t *testing.T) {
	cb := newTestBreaker(1, 10*time.Millisecond)

	cb.RecordFailure()
	time.Sleep(15 * time.Millisecond)
	assert.True(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.GetState())
	assert.False(t, cb.Allow())
}

func TestBreakerStats(t *testing.T) {
	cb := newTestBreaker(2, time.Minute)

	cb.Allow()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()
	cb.Allow() // rejected, circuit open

	stats := cb.Stats()
	assert.Equal(t, "test", stats.Name)
	assert.Equal(t, "open", stats.State)
	assert.Equal(t, int64(2), stats.TotalRequests)
	assert.Equal(t, int64(2), stats.TotalFailures)
	assert.Equal(t, int64(1), stats.TotalSuccesses)
	assert.Equal(t, int64(1), stats.TotalRejected)
}
