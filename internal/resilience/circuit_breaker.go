// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// CircuitBreakerState is the admission state of a breaker
type CircuitBreakerState int

const (
	StateClosed   CircuitBreakerState = iota // calls pass through
	StateOpen                                // calls fail fast until the cool-down ends
	StateHalfOpen                            // one trial call decides whether to close
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig configures a breaker around a remote detector
type CircuitBreakerConfig struct {
	// Name identifies the protected detector in errors and callbacks
	Name string

	// FailureThreshold is the number of consecutive counted failures that opens the breaker
	FailureThreshold int

	// Timeout is the cool-down after which an open breaker admits one trial call
	Timeout time.Duration

	// IsFailure decides whether an error counts against the breaker
	IsFailure func(error) bool

	// OnStateChange is called with the breaker lock held; it must not call back into the breaker
	OnStateChange func(name string, from, to CircuitBreakerState)
}

// DefaultCircuitBreakerConfig counts only retryable errors, so a rejected
// API key or a malformed request never opens the breaker
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		Timeout:          30 * time.Second,
		IsFailure:        IsRetryable,
	}
}

// CircuitBreaker stops calling a detector that keeps failing
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu          sync.Mutex
	state       CircuitBreakerState
	failures    int // consecutive counted failures
	successes   int
	openedAt    time.Time
	lastFailure time.Time
	inTrial     bool // a half-open trial call is in flight
}

// NewCircuitBreaker creates a closed breaker
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = IsRetryable
	}
	return &CircuitBreaker{cfg: cfg}
}

// Execute runs fn unless the breaker rejects the call
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(time.Now()); err != nil {
		return err
	}
	err := fn(ctx)
	cb.record(err, time.Now())
	return err
}

func (cb *CircuitBreaker) admit(now time.Time) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if wait := cb.cfg.Timeout - now.Sub(cb.openedAt); wait > 0 {
			return cb.reject(fmt.Sprintf("open after %d consecutive failure(s), retry in %s",
				cb.failures, wait.Round(time.Second)))
		}
		cb.transition(StateHalfOpen)
		cb.inTrial = true
		return nil
	case StateHalfOpen:
		if cb.inTrial {
			return cb.reject("half-open, trial call in flight")
		}
		cb.inTrial = true
		return nil
	default:
		return nil
	}
}

func (cb *CircuitBreaker) record(err error, now time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	halfOpen := cb.state == StateHalfOpen
	cb.inTrial = false

	if err != nil && cb.cfg.IsFailure(err) {
		cb.failures++
		cb.lastFailure = now
		if halfOpen || cb.failures >= cb.cfg.FailureThreshold {
			cb.openedAt = now
			cb.transition(StateOpen)
		}
		return
	}

	cb.successes++
	cb.failures = 0
	if halfOpen {
		cb.transition(StateClosed)
	}
}

func (cb *CircuitBreaker) reject(reason string) error {
	return &CircuitBreakerError{
		Name:    cb.cfg.Name,
		State:   cb.state,
		Message: fmt.Sprintf("circuit breaker %q is %s", cb.cfg.Name, reason),
	}
}

func (cb *CircuitBreaker) transition(to CircuitBreakerState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}

// GetState returns the current state
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GetStats returns a snapshot of the breaker counters
func (cb *CircuitBreaker) GetStats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return CircuitBreakerStats{
		Name:            cb.cfg.Name,
		State:           cb.state,
		FailureCount:    cb.failures,
		SuccessCount:    cb.successes,
		LastFailureTime: cb.lastFailure,
	}
}

// CircuitBreakerStats is a snapshot of a breaker
type CircuitBreakerStats struct {
	Name            string              `json:"name"`
	State           CircuitBreakerState `json:"state"`
	FailureCount    int                 `json:"failure_count"`
	SuccessCount    int                 `json:"success_count"`
	LastFailureTime time.Time           `json:"last_failure_time"`
}

// CircuitBreakerError is returned for calls the breaker rejected
type CircuitBreakerError struct {
	Name    string
	State   CircuitBreakerState
	Message string
}

func (e *CircuitBreakerError) Error() string {
	return e.Message
}

// IsCircuitBreakerError reports whether err is a rejection by a breaker
func IsCircuitBreakerError(err error) bool {
	var cbErr *CircuitBreakerError
	return errors.As(err, &cbErr)
}
