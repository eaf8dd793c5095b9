package alert

import (
	"errors"
	"testing"
	"time"
)

var errDeliver = errors.New("delivery failed")

func TestBreaker_StartsClosed(t *testing.T) {
	b := newBreaker(3, 100*time.Millisecond)
	if b.State() != BreakerClosed {
		t.Errorf("expected closed, got %v", b.State())
	}
}

func TestBreaker_OpensAfterThresholdFailures(t *testing.T) {
	b := newBreaker(3, 100*time.Millisecond)

	for i := 0; i < 3; i++ {
		if err := b.Do(func() error { return errDeliver }); err != errDeliver {
			t.Fatalf("expected errDeliver, got %v", err)
		}
	}
	if b.State() != BreakerOpen {
		t.Fatalf("expected open after 3 failures, got %v", b.State())
	}

	// While open, calls are rejected without running fn.
	ran := false
	err := b.Do(func() error { ran = true; return nil })
	if err != errBreakerOpen {
		t.Errorf("expected errBreakerOpen, got %v", err)
	}
	if ran {
		t.Error("fn must not run while the circuit is open")
	}
}

func TestBreaker_ProbeSuccessCloses(t *testing.T) {
	b := newBreaker(2, 50*time.Millisecond)
	for i := 0; i < 2; i++ {
		b.Do(func() error { return errDeliver })
	}
	if b.State() != BreakerOpen {
		t.Fatal("expected open")
	}

	time.Sleep(60 * time.Millisecond)

	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("expected probe to run, got %v", err)
	}
	if b.State() != BreakerClosed {
		t.Errorf("expected closed after successful probe, got %v", b.State())
	}
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	b := newBreaker(2, 50*time.Millisecond)
	for i := 0; i < 2; i++ {
		b.Do(func() error { return errDeliver })
	}

	time.Sleep(60 * time.Millisecond)
	b.Do(func() error { return errDeliver })

	if b.State() != BreakerOpen {
		t.Errorf("expected open after failed probe, got %v", b.State())
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := newBreaker(3, 100*time.Millisecond)

	b.Do(func() error { return errDeliver })
	b.Do(func() error { return errDeliver })
	b.Do(func() error { return nil })

	b.Do(func() error { return errDeliver })
	b.Do(func() error { return errDeliver })

	if b.State() != BreakerClosed {
		t.Errorf("expected closed (counter reset by the success), got %v", b.State())
	}
}

func TestBreaker_TransitionHook(t *testing.T) {
	var seen []BreakerState
	b := newBreaker(1, 50*time.Millisecond)
	b.onTransition = func(from, to BreakerState) { seen = append(seen, to) }

	b.Do(func() error { return errDeliver })
	if len(seen) != 1 || seen[0] != BreakerOpen {
		t.Fatalf("expected [open], got %v", seen)
	}

	time.Sleep(60 * time.Millisecond)
	b.Do(func() error { return nil })

	want := []BreakerState{BreakerOpen, BreakerHalfOpen, BreakerClosed}
	if len(seen) != len(want) {
		t.Fatalf("expected %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition %d: expected %v, got %v", i, want[i], seen[i])
		}
	}
}
