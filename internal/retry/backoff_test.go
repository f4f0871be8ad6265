package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoffDelayCaps(t *testing.T) {
	b := Backoff{Initial: time.Second, Max: 4 * time.Second, MaxRetries: 5}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second}
	for i, w := range want {
		if got := b.Delay(i + 1); got != w {
			t.Errorf("Delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestBackoffDoRetriesThenSucceeds(t *testing.T) {
	b := Backoff{Initial: time.Millisecond, Max: time.Millisecond, MaxRetries: 3}
	attempts := 0
	err := b.Do(context.Background(), func(error) bool { return true }, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestBackoffDoStopsOnNonRetriable(t *testing.T) {
	b := DefaultBackoff()
	attempts := 0
	sentinel := errors.New("fatal")
	err := b.Do(context.Background(), func(error) bool { return false }, func() error {
		attempts++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want sentinel", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
}

func TestBackoffDoExhausts(t *testing.T) {
	b := Backoff{Initial: time.Millisecond, Max: time.Millisecond, MaxRetries: 3}
	attempts := 0
	sentinel := errors.New("always fails")
	err := b.Do(context.Background(), func(error) bool { return true }, func() error {
		attempts++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want sentinel", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestCircuitBreaker(t *testing.T) {
	cb := NewCircuitBreaker(2, 10*time.Millisecond)
	if !cb.Allow() {
		t.Fatal("fresh breaker should allow")
	}
	cb.RecordFailure()
	if !cb.Allow() {
		t.Fatal("breaker should still be closed after one failure")
	}
	cb.RecordFailure()
	if cb.Allow() {
		t.Fatal("breaker should be open after reaching the threshold")
	}
	time.Sleep(15 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("breaker should allow a trial call once the reset timeout passes")
	}
	cb.RecordSuccess()
	if !cb.Allow() {
		t.Fatal("breaker should be closed after a successful trial")
	}
}

func TestSignalFlagEscalates(t *testing.T) {
	hardExits := 0
	f := NewSignalFlag(func() { hardExits++ })
	if f.Stopped() {
		t.Fatal("fresh flag reports stopped")
	}
	f.Stop()
	if !f.Stopped() {
		t.Fatal("flag should be stopped after first Stop()")
	}
	if hardExits != 0 {
		t.Fatal("first Stop() should not hard-exit")
	}
	f.Stop()
	if hardExits != 1 {
		t.Fatalf("hardExits = %d, want 1 after second Stop()", hardExits)
	}
}
