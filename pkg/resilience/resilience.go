// Package resilience guards calls to external dependencies with a circuit breaker.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"chatcall-backend/pkg/logger"
	"chatcall-backend/pkg/metrics"
)

// ErrCircuitOpen is returned without calling the dependency while the breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State of a circuit breaker
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Config tunes a breaker
type Config struct {
	// MaxFailures consecutive failures open the circuit
	MaxFailures int
	// Cooldown is how long the circuit stays open before one probe is let through
	Cooldown time.Duration
	// IsFailure separates dependency outages from requests the dependency
	// rightly rejected. Nil counts every error.
	IsFailure func(err error) bool
}

// CircuitBreaker opens after consecutive failures and lets a single probe
// through once the cooldown elapsed. A successful probe closes it again.
type CircuitBreaker struct {
	name   string
	config Config
	now    func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// NewCircuitBreaker creates a closed breaker for the named dependency
func NewCircuitBreaker(name string, config Config) *CircuitBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 30 * time.Second
	}
	cb := &CircuitBreaker{
		name:   name,
		config: config,
		now:    time.Now,
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(StateClosed))
	return cb
}

// Execute runs fn unless the circuit is open. Context cancellation by the
// caller does not count as a dependency failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	if !cb.allow() {
		metrics.DependencyRequestsTotal.WithLabelValues(cb.name, operation, "circuit_open").Inc()
		return ErrCircuitOpen
	}

	err := fn(ctx)
	switch {
	case err == nil:
		cb.onSuccess()
		metrics.DependencyRequestsTotal.WithLabelValues(cb.name, operation, "success").Inc()
	case errors.Is(err, context.Canceled):
		cb.release()
		metrics.DependencyRequestsTotal.WithLabelValues(cb.name, operation, "canceled").Inc()
	case cb.config.IsFailure != nil && !cb.config.IsFailure(err):
		cb.onSuccess()
		metrics.DependencyRequestsTotal.WithLabelValues(cb.name, operation, "client_error").Inc()
	default:
		cb.onFailure(operation, err)
		metrics.DependencyRequestsTotal.WithLabelValues(cb.name, operation, "failure").Inc()
	}
	return err
}

// State returns the current state
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.config.Cooldown {
			return false
		}
		cb.setState(StateHalfOpen)
		cb.probing = true
		return true
	case StateHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	default:
		return true
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.probing = false
	if cb.state != StateClosed {
		logger.Info("Circuit breaker closed", zap.String("dependency", cb.name))
		cb.setState(StateClosed)
	}
}

func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probing = false
}

func (cb *CircuitBreaker) onFailure(operation string, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.probing = false
	if cb.state == StateHalfOpen || cb.failures >= cb.config.MaxFailures {
		if cb.state != StateOpen {
			logger.Error("Circuit breaker opened",
				zap.String("dependency", cb.name),
				zap.String("operation", operation),
				zap.Int("consecutive_failures", cb.failures),
				zap.Error(err))
		}
		cb.openedAt = cb.now()
		cb.setState(StateOpen)
	}
}

func (cb *CircuitBreaker) setState(s State) {
	cb.state = s
	metrics.CircuitBreakerState.WithLabelValues(cb.name).Set(float64(s))
}
