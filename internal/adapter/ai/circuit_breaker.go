package ai

import (
	"sync"
	"time"

	"log/slog"

	"github.com/polisim/ai-gateway/internal/adapter/observability"
)

// CircuitState represents the state of the circuit breaker.
type CircuitState int

const (
	// CircuitClosed indicates calls pass through to the backend.
	CircuitClosed CircuitState = iota
	// CircuitOpen indicates calls fail fast without reaching the backend.
	CircuitOpen
	// CircuitHalfOpen indicates the breaker is probing recovery with a single trial call.
	CircuitHalfOpen
)

// String returns a string representation of the circuit state.
func (cs CircuitState) String() string {
	switch cs {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// StateChangeFunc observes breaker transitions, e.g. to flip an availability
// flag consumed by the caller.
type StateChangeFunc func(from, to CircuitState)

// CircuitBreaker isolates a single logical downstream dependency. It counts
// consecutive failures, opens at the configured threshold, and allows one
// trial call after the open duration elapses. Per-endpoint isolation means
// one instance per endpoint; state is never shared.
type CircuitBreaker struct {
	mu               sync.Mutex
	failureThreshold int
	openDuration     time.Duration
	state            CircuitState
	failureCount     int
	lastFailureTime  time.Time
	trialInFlight    bool
	observers        []StateChangeFunc
	totalFailures    int64
	totalSuccesses   int64
	trips            int64
	now              func() time.Time
}

// NewCircuitBreaker creates a closed breaker with the given threshold and
// open duration.
func NewCircuitBreaker(failureThreshold int, openDuration time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		openDuration:     openDuration,
		state:            CircuitClosed,
		now:              time.Now,
	}
}

// OnStateChange registers an observer invoked after every transition.
// Observers must not call back into the breaker.
func (cb *CircuitBreaker) OnStateChange(fn StateChangeFunc) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.observers = append(cb.observers, fn)
}

// Allow reports whether a call may proceed. An open breaker moves to
// half-open once the open duration has elapsed since the last failure; in
// half-open exactly one trial call is admitted until its outcome is recorded.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	var notify func()

	allowed := false
	switch cb.state {
	case CircuitClosed:
		allowed = true
	case CircuitOpen:
		if cb.now().Sub(cb.lastFailureTime) > cb.openDuration {
			notify = cb.transitionLocked(CircuitHalfOpen)
			cb.trialInFlight = true
			allowed = true
		}
	case CircuitHalfOpen:
		if !cb.trialInFlight {
			cb.trialInFlight = true
			allowed = true
		}
	}
	cb.mu.Unlock()

	if notify != nil {
		notify()
	}
	return allowed
}

// RecordSuccess resets the failure counter and closes the breaker if it was
// probing recovery.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	var notify func()

	cb.totalSuccesses++
	cb.failureCount = 0
	cb.trialInFlight = false
	if cb.state != CircuitClosed {
		notify = cb.transitionLocked(CircuitClosed)
	}
	cb.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// RecordFailure counts a failure (timeouts included). A half-open failure
// re-opens the breaker and restarts the open-duration clock; in closed state
// the breaker opens once the consecutive-failure threshold is reached.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	var notify func()

	cb.totalFailures++
	cb.failureCount++
	cb.lastFailureTime = cb.now()
	cb.trialInFlight = false

	switch cb.state {
	case CircuitHalfOpen:
		cb.trips++
		notify = cb.transitionLocked(CircuitOpen)
	case CircuitClosed:
		if cb.failureCount >= cb.failureThreshold {
			cb.trips++
			notify = cb.transitionLocked(CircuitOpen)
		}
	}
	cb.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Trips returns how many times the breaker has opened.
func (cb *CircuitBreaker) Trips() int64 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.trips
}

// transitionLocked mutates the state and returns a closure that logs the
// transition and notifies observers. Callers invoke it after releasing the
// lock so observers cannot deadlock against the breaker.
func (cb *CircuitBreaker) transitionLocked(to CircuitState) func() {
	from := cb.state
	cb.state = to
	observers := make([]StateChangeFunc, len(cb.observers))
	copy(observers, cb.observers)

	return func() {
		slog.Info("circuit breaker state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()))
		observability.BreakerState.Set(float64(to))
		observability.BreakerTransitionsTotal.WithLabelValues(to.String()).Inc()
		for _, fn := range observers {
			fn(from, to)
		}
	}
}
