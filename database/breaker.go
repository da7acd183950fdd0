package database

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-content/types"
)

type CircuitBreakerConfig struct {
	Enabled          bool   `json:"enabled"`
	FailureThreshold int    `json:"failure_threshold"`
	RecoveryTimeout  string `json:"recovery_timeout"`
	HalfOpenRequests int    `json:"half_open_requests"`
}

type breakerState int32

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// circuitBreaker stops calling the remote store after FailureThreshold
// consecutive failures and probes it again once RecoveryTimeout has passed.
// A nil breaker lets everything through.
type circuitBreaker struct {
	mu               sync.Mutex
	logger           types.Logger
	threshold        int
	halfOpenRequests int
	recovery         time.Duration
	state            breakerState
	failures         int
	successes        int
	openedAt         time.Time
	now              func() time.Time
}

func newCircuitBreaker(config *CircuitBreakerConfig, logger types.Logger) (*circuitBreaker, error) {
	if config == nil || !config.Enabled {
		return nil, nil
	}

	recovery, err := parseDuration(config.RecoveryTimeout, 30*time.Second)
	if err != nil {
		return nil, types.WrapError(err, "circuit_breaker.recovery_timeout")
	}

	cb := &circuitBreaker{
		logger:           logger,
		threshold:        config.FailureThreshold,
		halfOpenRequests: config.HalfOpenRequests,
		recovery:         recovery,
		now:              time.Now,
	}

	if cb.threshold <= 0 {
		cb.threshold = 5
	}
	if cb.halfOpenRequests <= 0 {
		cb.halfOpenRequests = 1
	}

	return cb, nil
}

func (cb *circuitBreaker) CanExecute() bool {
	if cb == nil {
		return true
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == breakerOpen {
		if cb.now().Sub(cb.openedAt) < cb.recovery {
			return false
		}
		cb.transition(breakerHalfOpen)
	}

	return true
}

func (cb *circuitBreaker) RecordSuccess() {
	if cb == nil {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case breakerClosed:
		cb.failures = 0
	case breakerHalfOpen:
		cb.successes++
		if cb.successes >= cb.halfOpenRequests {
			cb.transition(breakerClosed)
		}
	}
}

func (cb *circuitBreaker) RecordFailure() {
	if cb == nil {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case breakerClosed:
		cb.failures++
		if cb.failures >= cb.threshold {
			cb.transition(breakerOpen)
		}
	case breakerHalfOpen:
		cb.transition(breakerOpen)
	}
}

func (cb *circuitBreaker) State() string {
	if cb == nil {
		return "disabled"
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.state.String()
}

func (cb *circuitBreaker) transition(to breakerState) {
	from := cb.state
	cb.state = to
	cb.failures = 0
	cb.successes = 0

	if to == breakerOpen {
		cb.openedAt = cb.now()
		cb.logger.Warn("Remote circuit breaker opened", zap.String("from", from.String()))
		return
	}

	cb.logger.Info("Remote circuit breaker state changed",
		zap.String("from", from.String()),
		zap.String("to", to.String()))
}

func parseDuration(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	return time.ParseDuration(value)
}
