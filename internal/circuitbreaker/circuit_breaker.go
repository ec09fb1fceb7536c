// Package circuitbreaker protects calls to flaky upstreams.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/whale-role-bot/internal/logging"
)

// State represents the circuit breaker state
type State string

const (
	// StateClosed means the circuit is closed and requests are allowed
	StateClosed State = "closed"
	// StateOpen means the circuit is open and requests are blocked
	StateOpen State = "open"
	// StateHalfOpen means the circuit is testing if the upstream has recovered
	StateHalfOpen State = "half_open"
)

// CircuitBreaker implements the circuit breaker pattern
type CircuitBreaker struct {
	name             string
	maxFailures      int           // consecutive failures before opening
	timeout          time.Duration // time to wait before attempting half-open
	halfOpenMaxCalls int           // successful trial calls needed to close again
	now              func() time.Time

	mu               sync.Mutex
	state            State
	halfOpenCalls    int
	halfOpenSuccess  int
	consecutiveFails int
	lastStateChange  time.Time
}

// Config configures a circuit breaker
type Config struct {
	Name             string
	MaxFailures      int
	Timeout          time.Duration
	HalfOpenMaxCalls int
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig(name string) *Config {
	return &Config{
		Name:             name,
		MaxFailures:      5,
		Timeout:          time.Minute,
		HalfOpenMaxCalls: 1,
	}
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config *Config) *CircuitBreaker {
	halfOpen := config.HalfOpenMaxCalls
	if halfOpen <= 0 {
		halfOpen = 1
	}

	return &CircuitBreaker{
		name:             config.Name,
		maxFailures:      config.MaxFailures,
		timeout:          config.Timeout,
		halfOpenMaxCalls: halfOpen,
		now:              time.Now,
		state:            StateClosed,
		lastStateChange:  time.Now(),
	}
}

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ErrTooManyRequests is returned when too many requests are made in half-open state
var ErrTooManyRequests = errors.New("too many requests in half-open state")

// Execute runs fn with circuit breaker protection. A cancelled context is not
// counted as an upstream failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.beforeRequest(ctx); err != nil {
		return err
	}

	err := fn(ctx)
	if err != nil && ctx.Err() != nil {
		cb.release()
		return err
	}

	cb.afterRequest(ctx, err)
	return err
}

func (cb *CircuitBreaker) beforeRequest(ctx context.Context) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastStateChange) < cb.timeout {
			return ErrCircuitOpen
		}
		cb.setState(ctx, StateHalfOpen)
		fallthrough

	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.halfOpenMaxCalls {
			return ErrTooManyRequests
		}
		cb.halfOpenCalls++
	}

	return nil
}

// release gives back a half-open slot taken by a call that never finished
func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen && cb.halfOpenCalls > 0 {
		cb.halfOpenCalls--
	}
}

func (cb *CircuitBreaker) afterRequest(ctx context.Context, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.consecutiveFails = 0
		if cb.state == StateHalfOpen {
			cb.halfOpenSuccess++
			if cb.halfOpenSuccess >= cb.halfOpenMaxCalls {
				cb.setState(ctx, StateClosed)
			}
		}
		return
	}

	cb.consecutiveFails++
	switch cb.state {
	case StateClosed:
		if cb.consecutiveFails >= cb.maxFailures {
			cb.setState(ctx, StateOpen)
		}
	case StateHalfOpen:
		// Any failure while probing reopens the circuit
		cb.setState(ctx, StateOpen)
	}
}

func (cb *CircuitBreaker) setState(ctx context.Context, state State) {
	previous := cb.state
	cb.state = state
	cb.lastStateChange = cb.now()
	cb.halfOpenCalls = 0
	cb.halfOpenSuccess = 0
	if state == StateClosed {
		cb.consecutiveFails = 0
	}

	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"circuitBreaker": cb.name,
		"from":           previous,
		"to":             state,
	})
	if state == StateOpen {
		logger.WithField("consecutiveFails", cb.consecutiveFails).Warn("Circuit breaker opened")
		return
	}
	logger.Info("Circuit breaker state changed")
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
