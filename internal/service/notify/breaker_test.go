package notify

import (
	"errors"
	"testing"
	"time"

	"github.com/aurabyshenoi/gallery/internal/domain"
)

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	t.Parallel()

	breaker := NewCircuitBreaker(2, time.Hour, nil)
	relayErr := errors.New("relay down")

	calls := 0
	failing := func() error {
		calls++
		return relayErr
	}

	for i := 0; i < 2; i++ {
		if err := breaker.Execute("send", failing); !errors.Is(err, relayErr) {
			t.Fatalf("expected relay error, got %v", err)
		}
	}
	if got := breaker.State(); got != CircuitOpen {
		t.Fatalf("expected open state, got %v", got)
	}

	if err := breaker.Execute("send", failing); !errors.Is(err, domain.ErrRelayUnavailable) {
		t.Fatalf("expected ErrRelayUnavailable, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 operation calls, got %d", calls)
	}
}

func TestCircuitBreaker_HalfOpenProbeClosesOnSuccess(t *testing.T) {
	t.Parallel()

	breaker := NewCircuitBreaker(1, time.Minute, nil)

	current := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	breaker.now = func() time.Time { return current }

	if err := breaker.Execute("send", func() error { return errors.New("relay down") }); err == nil {
		t.Fatal("expected operation error")
	}
	if got := breaker.State(); got != CircuitOpen {
		t.Fatalf("expected open state, got %v", got)
	}

	if err := breaker.Execute("send", func() error { return nil }); !errors.Is(err, domain.ErrRelayUnavailable) {
		t.Fatalf("expected ErrRelayUnavailable before cooldown, got %v", err)
	}

	current = current.Add(time.Minute + time.Second)
	if err := breaker.Execute("send", func() error { return nil }); err != nil {
		t.Fatalf("expected probe to succeed, got %v", err)
	}
	if got := breaker.State(); got != CircuitClosed {
		t.Fatalf("expected closed state, got %v", got)
	}
}

func TestCircuitBreaker_HalfOpenProbeReopensOnFailure(t *testing.T) {
	t.Parallel()

	breaker := NewCircuitBreaker(1, time.Minute, nil)

	current := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	breaker.now = func() time.Time { return current }

	if err := breaker.Execute("send", func() error { return errors.New("relay down") }); err == nil {
		t.Fatal("expected operation error")
	}

	current = current.Add(2 * time.Minute)
	probeCalls := 0
	if err := breaker.Execute("send", func() error {
		probeCalls++
		return errors.New("still down")
	}); err == nil {
		t.Fatal("expected probe to fail")
	}
	if probeCalls != 1 {
		t.Fatalf("expected 1 probe call, got %d", probeCalls)
	}
	if got := breaker.State(); got != CircuitOpen {
		t.Fatalf("expected reopened state, got %v", got)
	}

	if err := breaker.Execute("send", func() error { return nil }); !errors.Is(err, domain.ErrRelayUnavailable) {
		t.Fatalf("expected ErrRelayUnavailable right after failed probe, got %v", err)
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	t.Parallel()

	breaker := NewCircuitBreaker(2, time.Hour, nil)
	relayErr := errors.New("relay down")

	if err := breaker.Execute("send", func() error { return relayErr }); !errors.Is(err, relayErr) {
		t.Fatalf("expected relay error, got %v", err)
	}
	if err := breaker.Execute("send", func() error { return nil }); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if err := breaker.Execute("send", func() error { return relayErr }); !errors.Is(err, relayErr) {
		t.Fatalf("expected relay error, got %v", err)
	}

	if got := breaker.State(); got != CircuitClosed {
		t.Fatalf("expected closed state after reset, got %v", got)
	}
}
