package clients

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tideway/tideway/pkg/errors"
	"github.com/tideway/tideway/pkg/metrics"
)

// CircuitBreakerConfig is the configuration for the circuit breaker
type CircuitBreakerConfig struct {
	FailureThreshold int           // Consecutive failures before opening
	Cooldown         time.Duration // Time the circuit stays open before a probe is allowed
}

// DefaultCircuitBreakerConfig returns the default breaker policy: open
// after 5 consecutive failures, allow a probe after 30 seconds.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

// CircuitBreaker stops issuing calls to a failing provider after a run of
// consecutive failures. Any success fully resets it. While open, calls are
// rejected until the cooldown elapses, after which the next call is let
// through as a probe.
type CircuitBreaker struct {
	provider string
	config   CircuitBreakerConfig
	logger   *zap.Logger

	failureCount    int
	lastFailureTime time.Time
	open            bool

	mu sync.Mutex
}

// NewCircuitBreaker creates a circuit breaker for one provider.
func NewCircuitBreaker(provider string, config CircuitBreakerConfig, logger *zap.Logger) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 30 * time.Second
	}
	return &CircuitBreaker{
		provider: provider,
		config:   config,
		logger:   logger.With(zap.String("component", "circuit_breaker"), zap.String("provider", provider)),
	}
}

// Allow reports whether a call may proceed. An open circuit admits one call
// per cooldown interval as a recovery probe.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.open {
		return nil
	}

	if time.Since(cb.lastFailureTime) >= cb.config.Cooldown {
		// Probe: push the failure clock forward so only one call slips
		// through per cooldown while the provider stays down.
		cb.lastFailureTime = time.Now()
		return nil
	}

	return errors.Newf(errors.ErrorTypeTransient, "circuit open for provider %s", cb.provider)
}

// RecordSuccess resets the breaker to its initial state.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	wasOpen := cb.open
	cb.failureCount = 0
	cb.lastFailureTime = time.Time{}
	cb.open = false

	if wasOpen {
		cb.logger.Info("circuit closed")
	}
	metrics.CircuitState.WithLabelValues(cb.provider).Set(0)
}

// RecordFailure counts a failure and opens the circuit once the run of
// consecutive failures reaches the threshold.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailureTime = time.Now()

	if !cb.open && cb.failureCount >= cb.config.FailureThreshold {
		cb.open = true
		cb.logger.Warn("circuit opened",
			zap.Int("consecutive_failures", cb.failureCount),
			zap.Duration("cooldown", cb.config.Cooldown))
		metrics.CircuitState.WithLabelValues(cb.provider).Set(1)
	}
}

// CircuitBreakerState is a snapshot of the breaker for monitoring.
type CircuitBreakerState struct {
	Open            bool      `json:"open"`
	FailureCount    int       `json:"failure_count"`
	LastFailureTime time.Time `json:"last_failure_time,omitempty"`
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerState{
		Open:            cb.open,
		FailureCount:    cb.failureCount,
		LastFailureTime: cb.lastFailureTime,
	}
}
