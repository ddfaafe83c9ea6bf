// pkg/common/circuit_breaker.go
package common

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// CircuitBreakerState represents the state of a circuit breaker
type CircuitBreakerState int32

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// CircuitBreaker fails fast toward a trunk proxy that keeps timing out.
// It never retries on the caller's behalf; while open it only rejects
// requests before they reach the wire.
type CircuitBreaker struct {
	name                string
	state               int32
	failureThreshold    int32
	resetTimeout        time.Duration
	halfOpenMaxReqs     int32
	halfOpenReqs        int32
	consecutiveFailures int32
	lastStateChange     time.Time

	mu     sync.RWMutex // guards lastStateChange
	logger *zap.Logger
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold"`
	ResetTimeout     time.Duration `json:"reset_timeout"`
	HalfOpenMaxReqs  int           `json:"half_open_max_requests"`
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, config CircuitBreakerConfig, logger *zap.Logger) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}

	failureThreshold := int32(config.FailureThreshold)
	if failureThreshold <= 0 {
		failureThreshold = 5
	}

	resetTimeout := config.ResetTimeout
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}

	halfOpenMaxReqs := int32(config.HalfOpenMaxReqs)
	if halfOpenMaxReqs <= 0 {
		halfOpenMaxReqs = 3
	}

	return &CircuitBreaker{
		name:             name,
		state:            int32(StateClosed),
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		halfOpenMaxReqs:  halfOpenMaxReqs,
		lastStateChange:  time.Now(),
		logger:           logger,
	}
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	return CircuitBreakerState(atomic.LoadInt32(&cb.state))
}

// AllowRequest determines if a request should be allowed
func (cb *CircuitBreaker) AllowRequest() bool {
	switch cb.GetState() {
	case StateClosed:
		return true

	case StateOpen:
		cb.mu.RLock()
		expired := time.Since(cb.lastStateChange) > cb.resetTimeout
		cb.mu.RUnlock()

		if expired {
			if atomic.CompareAndSwapInt32(&cb.state, int32(StateOpen), int32(StateHalfOpen)) {
				cb.mu.Lock()
				cb.lastStateChange = time.Now()
				cb.halfOpenReqs = 0
				cb.mu.Unlock()

				cb.logger.Info("Circuit half-open - testing recovery",
					zap.String("circuit", cb.name))
			}
			return cb.AllowRequest()
		}
		return false

	case StateHalfOpen:
		return atomic.AddInt32(&cb.halfOpenReqs, 1) <= cb.halfOpenMaxReqs
	}

	return false
}

// RecordSuccess records a successful request
func (cb *CircuitBreaker) RecordSuccess() {
	atomic.StoreInt32(&cb.consecutiveFailures, 0)

	if cb.GetState() == StateHalfOpen {
		if atomic.CompareAndSwapInt32(&cb.state, int32(StateHalfOpen), int32(StateClosed)) {
			cb.mu.Lock()
			cb.lastStateChange = time.Now()
			cb.mu.Unlock()

			cb.logger.Info("Circuit closed - trunk recovered",
				zap.String("circuit", cb.name))
		}
	}
}

// RecordFailure records a failed request
func (cb *CircuitBreaker) RecordFailure() {
	failures := atomic.AddInt32(&cb.consecutiveFailures, 1)

	state := cb.GetState()
	if (state == StateClosed && failures >= cb.failureThreshold) || state == StateHalfOpen {
		if atomic.CompareAndSwapInt32(&cb.state, int32(state), int32(StateOpen)) {
			cb.mu.Lock()
			cb.lastStateChange = time.Now()
			cb.mu.Unlock()

			cb.logger.Warn("Circuit opened due to trunk failures",
				zap.String("circuit", cb.name),
				zap.Int32("failures", failures),
				zap.Int32("threshold", cb.failureThreshold))
		}
	}
}

// Reset resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	atomic.StoreInt32(&cb.state, int32(StateClosed))
	atomic.StoreInt32(&cb.consecutiveFailures, 0)

	cb.mu.Lock()
	cb.lastStateChange = time.Now()
	cb.mu.Unlock()
}
