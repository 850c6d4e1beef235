// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig("semantic")
	cfg.FailureThreshold = 2
	cfg.Timeout = time.Hour
	cb := NewCircuitBreaker(cfg)

	fail := func(ctx context.Context) error { return NewTransientError("down", nil) }

	for i := 0; i < 2; i++ {
		if err := cb.Execute(context.Background(), fail); err == nil {
			t.Fatal("expected failure")
		}
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("expected OPEN, got %s", cb.GetState())
	}

	called := false
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if !IsCircuitBreakerError(err) {
		t.Fatalf("expected circuit breaker error, got %v", err)
	}
	if called {
		t.Error("operation should not run while the circuit is open")
	}
	if IsRetryable(err) {
		t.Error("open circuit should not be retried")
	}
}

func TestCircuitBreaker_PermanentErrorsDoNotTrip(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig("semantic")
	cfg.FailureThreshold = 1
	cb := NewCircuitBreaker(cfg)

	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return NewPermanentError("bad key", nil)
	})
	if cb.GetState() != StateClosed {
		t.Errorf("expected CLOSED, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	var transitions []CircuitBreakerState
	cfg := DefaultCircuitBreakerConfig("semantic")
	cfg.FailureThreshold = 1
	cfg.Timeout = time.Millisecond
	cfg.OnStateChange = func(name string, from, to CircuitBreakerState) {
		transitions = append(transitions, to)
	}
	cb := NewCircuitBreaker(cfg)

	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return NewTransientError("down", nil)
	})
	time.Sleep(5 * time.Millisecond)

	if err := cb.Execute(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("expected half-open trial to succeed, got %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Fatalf("expected CLOSED after recovery, got %s", cb.GetState())
	}

	want := []CircuitBreakerState{StateOpen, StateHalfOpen, StateClosed}
	if len(transitions) != len(want) {
		t.Fatalf("expected transitions %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], transitions[i])
		}
	}
}

func TestCircuitBreaker_StatsTrackConsecutiveFailures(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig("semantic")
	cfg.FailureThreshold = 3
	cb := NewCircuitBreaker(cfg)

	fail := func(ctx context.Context) error { return NewTransientError("down", nil) }
	ok := func(ctx context.Context) error { return nil }

	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), fail)
	stats := cb.GetStats()
	if stats.FailureCount != 2 || stats.State != StateClosed || stats.LastFailureTime.IsZero() {
		t.Fatalf("unexpected stats after two failures: %+v", stats)
	}

	_ = cb.Execute(context.Background(), ok)
	stats = cb.GetStats()
	if stats.FailureCount != 0 || stats.SuccessCount != 1 {
		t.Errorf("expected success to clear the failure streak, got %+v", stats)
	}
	if stats.Name != "semantic" {
		t.Errorf("expected name semantic, got %q", stats.Name)
	}
}

func TestCircuitBreaker_HalfOpenAdmitsOneTrial(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig("semantic")
	cfg.FailureThreshold = 1
	cfg.Timeout = time.Millisecond
	cb := NewCircuitBreaker(cfg)

	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return NewTransientError("down", nil)
	})
	time.Sleep(5 * time.Millisecond)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return NewTransientError("still down", nil)
		})
	}()
	<-started

	if err := cb.Execute(context.Background(), func(ctx context.Context) error { return nil }); !IsCircuitBreakerError(err) {
		t.Fatalf("expected rejection while the trial call runs, got %v", err)
	}
	close(release)
	<-done

	if cb.GetState() != StateOpen {
		t.Errorf("expected failed trial to reopen, got %s", cb.GetState())
	}
}

func TestClassifyError_BreakerRejectionIsNotRetried(t *testing.T) {
	err := fmt.Errorf("detect: %w", &CircuitBreakerError{Name: "semantic", State: StateOpen, Message: "open"})
	if IsRetryable(err) {
		t.Error("breaker rejection should not be retried")
	}
}
