package breaker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"loom/internal/services"
)

func newTestBreaker(t *testing.T, settings Settings) (*Breaker, *time.Time) {
	t.Helper()
	b := New("engine", settings)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return b, &now
}

func failOnce(b *Breaker) error {
	return b.Execute(context.Background(), func(context.Context) error {
		return errors.New("boom")
	})
}

func TestOpensAfterThresholdAndRejectsWithoutInvoking(t *testing.T) {
	b, _ := newTestBreaker(t, Settings{Threshold: 3, Cooldown: 30 * time.Second})

	for i := 0; i < 3; i++ {
		if err := failOnce(b); err == nil {
			t.Fatal("expected failure to propagate")
		}
	}
	if got := b.GetStatus(); got.State != StateOpen || got.Failures != 3 {
		t.Fatalf("unexpected status after threshold: %+v", got)
	}

	invoked := false
	err := b.Execute(context.Background(), func(context.Context) error {
		invoked = true
		return nil
	})
	if invoked {
		t.Fatal("open breaker must not invoke the wrapped operation")
	}
	if services.CodeOf(err) != services.CodeUnavailable {
		t.Fatalf("expected SERVICE_UNAVAILABLE, got %v", err)
	}
	if !strings.Contains(err.Error(), "retry in") {
		t.Fatalf("rejection should carry remaining cooldown: %v", err)
	}
}

func TestHalfOpenTrialSuccessCloses(t *testing.T) {
	b, now := newTestBreaker(t, Settings{Threshold: 2, Cooldown: 10 * time.Second})
	failOnce(b)
	failOnce(b)

	*now = now.Add(11 * time.Second)
	invoked := false
	err := b.Execute(context.Background(), func(context.Context) error {
		invoked = true
		return nil
	})
	if err != nil || !invoked {
		t.Fatalf("half-open trial should run: invoked=%v err=%v", invoked, err)
	}
	if got := b.GetStatus(); got.State != StateClosed || got.Failures != 0 {
		t.Fatalf("expected closed with zero failures, got %+v", got)
	}
}

func TestHalfOpenTrialFailureReopens(t *testing.T) {
	b, now := newTestBreaker(t, Settings{Threshold: 2, Cooldown: 10 * time.Second})
	failOnce(b)
	failOnce(b)

	*now = now.Add(11 * time.Second)
	if err := failOnce(b); err == nil {
		t.Fatal("expected trial failure")
	}
	if got := b.GetStatus(); got.State != StateOpen {
		t.Fatalf("expected open after failed trial, got %+v", got)
	}

	// The cooldown window restarts from the trial failure.
	*now = now.Add(5 * time.Second)
	invoked := false
	b.Execute(context.Background(), func(context.Context) error { //nolint:errcheck
		invoked = true
		return nil
	})
	if invoked {
		t.Fatal("cooldown must restart after a failed trial")
	}
}

func TestHalfOpenAdmitsExactlyOneTrial(t *testing.T) {
	b, now := newTestBreaker(t, Settings{Threshold: 1, Cooldown: 10 * time.Second})
	failOnce(b)
	*now = now.Add(11 * time.Second)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(context.Background(), func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	invoked := false
	err := b.Execute(context.Background(), func(context.Context) error {
		invoked = true
		return nil
	})
	if invoked {
		t.Fatal("second caller must not run while the trial is in flight")
	}
	if services.CodeOf(err) != services.CodeUnavailable {
		t.Fatalf("expected SERVICE_UNAVAILABLE, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("trial call failed: %v", err)
	}
	if got := b.GetStatus(); got.State != StateClosed {
		t.Fatalf("successful trial should close the breaker, got %+v", got)
	}
}

func TestPanicCountsAsBreakerFailure(t *testing.T) {
	b, now := newTestBreaker(t, Settings{Threshold: 1, Cooldown: 10 * time.Second})

	boom := func() {
		defer func() {
			if recover() == nil {
				t.Fatal("panic must propagate to the caller")
			}
		}()
		_ = b.Execute(context.Background(), func(context.Context) error {
			panic("boom")
		})
	}

	boom()
	if got := b.GetStatus(); got.State != StateOpen || got.Failures != 1 {
		t.Fatalf("panic did not count as a failure: %+v", got)
	}

	// A trial that panics reopens the breaker instead of wedging it half-open.
	*now = now.Add(11 * time.Second)
	boom()
	if got := b.GetStatus(); got.State != StateOpen {
		t.Fatalf("panicking trial should reopen, got %+v", got)
	}
	*now = now.Add(11 * time.Second)
	invoked := false
	if err := b.Execute(context.Background(), func(context.Context) error {
		invoked = true
		return nil
	}); err != nil || !invoked {
		t.Fatalf("next trial should be admitted: invoked=%v err=%v", invoked, err)
	}
}

func TestResetForcesClosed(t *testing.T) {
	b, _ := newTestBreaker(t, Settings{Threshold: 1, Cooldown: time.Minute})
	failOnce(b)
	if b.GetStatus().State != StateOpen {
		t.Fatal("precondition: breaker should be open")
	}
	b.Reset()
	got := b.GetStatus()
	if got.State != StateClosed || got.Failures != 0 {
		t.Fatalf("Reset did not clear state: %+v", got)
	}
}

func TestRegistrySharesBreakersByName(t *testing.T) {
	reg := NewRegistry(Settings{Threshold: 2, Cooldown: time.Second})
	if reg.Get("engine") != reg.Get("engine") {
		t.Fatal("same name must return the same breaker")
	}
	if reg.Get("engine") == reg.Get("assets") {
		t.Fatal("different names must return different breakers")
	}
	if got := len(reg.Statuses()); got != 2 {
		t.Fatalf("expected 2 statuses, got %d", got)
	}
}
