package ai

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(threshold int, openFor time.Duration) (*CircuitBreaker, *fakeClock) {
	clock := newFakeClock()
	cb := NewCircuitBreaker(threshold, openFor)
	cb.now = clock.now
	return cb, clock
}

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb, _ := newTestBreaker(5, 30*time.Second)
	assert.Equal(t, CircuitClosed, cb.State())
	assert.True(t, cb.Allow())
}

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	cb, _ := newTestBreaker(5, 30*time.Second)

	for i := 0; i < 4; i++ {
		cb.RecordFailure()
		assert.Equal(t, CircuitClosed, cb.State(), "below threshold stays closed")
	}
	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.Equal(t, int64(1), cb.Trips())
}

func TestCircuitBreaker_FailsFastWhileOpen(t *testing.T) {
	cb, clock := newTestBreaker(3, 30*time.Second)
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}

	clock.advance(29 * time.Second)
	assert.False(t, cb.Allow(), "call before open duration elapses fails fast")
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenAfterCooldown(t *testing.T) {
	cb, clock := newTestBreaker(3, 30*time.Second)
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}

	clock.advance(31 * time.Second)
	assert.True(t, cb.Allow(), "trial admitted after cool-down")
	assert.Equal(t, CircuitHalfOpen, cb.State())
}

func TestCircuitBreaker_SingleTrialInHalfOpen(t *testing.T) {
	cb, clock := newTestBreaker(3, 30*time.Second)
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	clock.advance(31 * time.Second)

	require.True(t, cb.Allow())
	assert.False(t, cb.Allow(), "second call while trial in flight is rejected")
}

func TestCircuitBreaker_TrialSuccessCloses(t *testing.T) {
	cb, clock := newTestBreaker(3, 30*time.Second)
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	clock.advance(31 * time.Second)
	require.True(t, cb.Allow())

	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 0, cb.failureCount, "failure counter reset on success")
	assert.True(t, cb.Allow())
}

func TestCircuitBreaker_TrialFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(3, 30*time.Second)
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	clock.advance(31 * time.Second)
	require.True(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.Equal(t, int64(2), cb.Trips())

	// The open-duration clock restarted with the trial failure.
	clock.advance(29 * time.Second)
	assert.False(t, cb.Allow())
	clock.advance(2 * time.Second)
	assert.True(t, cb.Allow())
}

func TestCircuitBreaker_SuccessResetsConsecutiveCount(t *testing.T) {
	cb, _ := newTestBreaker(3, 30*time.Second)
	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State(), "non-consecutive failures do not open")
}

func TestCircuitBreaker_NotifiesObservers(t *testing.T) {
	cb, clock := newTestBreaker(2, 30*time.Second)

	var mu sync.Mutex
	var transitions []CircuitState
	cb.OnStateChange(func(_, to CircuitState) {
		mu.Lock()
		transitions = append(transitions, to)
		mu.Unlock()
	})

	cb.RecordFailure()
	cb.RecordFailure() // -> open
	clock.advance(31 * time.Second)
	require.True(t, cb.Allow()) // -> half-open
	cb.RecordSuccess()          // -> closed

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []CircuitState{CircuitOpen, CircuitHalfOpen, CircuitClosed}, transitions)
}

func TestCircuitState_String(t *testing.T) {
	tests := []struct {
		state    CircuitState
		expected string
	}{
		{CircuitClosed, "closed"},
		{CircuitOpen, "open"},
		{CircuitHalfOpen, "half-open"},
		{CircuitState(99), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.String())
		})
	}
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker(5, 30*time.Second)
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = cb.Allow()
				_ = cb.State()
			}
		}()
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				cb.RecordSuccess()
				cb.RecordFailure()
			}
		}()
	}
	wg.Wait()
}
