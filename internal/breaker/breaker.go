package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"loom/internal/services"
)

// State identifies the breaker position.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Settings configures breaker behavior.
type Settings struct {
	// Threshold is the consecutive-failure count before opening.
	Threshold int
	// Cooldown is how long the breaker stays open before a trial call.
	Cooldown time.Duration
}

// DefaultSettings mirror the configuration defaults.
func DefaultSettings() Settings {
	return Settings{Threshold: 3, Cooldown: 30 * time.Second}
}

// Breaker isolates one named external dependency. It is shared by every
// concurrent request calling that dependency, so all state mutation holds the
// mutex.
type Breaker struct {
	name     string
	settings Settings

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	// trialInFlight guards the half-open window: only one caller probes the
	// dependency, everyone else is rejected until the trial resolves.
	trialInFlight bool

	now func() time.Time
}

// Status is a read-only snapshot for observability.
type Status struct {
	Name        string
	State       State
	Failures    int
	LastFailure time.Time
}

// New constructs a closed breaker for the named dependency.
func New(name string, settings Settings) *Breaker {
	if settings.Threshold <= 0 {
		settings.Threshold = DefaultSettings().Threshold
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = DefaultSettings().Cooldown
	}
	return &Breaker{
		name:     name,
		settings: settings,
		state:    StateClosed,
		now:      time.Now,
	}
}

// Execute runs op under breaker protection. While open, calls are rejected
// without invoking op; after the cooldown elapses exactly one call is let
// through as the half-open trial.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.before(); err != nil {
		return err
	}
	completed := false
	defer func() {
		// A panicking op still counts as a failure before the panic resumes,
		// otherwise a half-open trial would wedge the breaker.
		if !completed {
			b.after(fmt.Errorf("%s call panicked", b.name))
		}
	}()
	err := op(ctx)
	completed = true
	b.after(err)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateHalfOpen:
		if b.trialInFlight {
			return services.Wrap(
				services.ErrUnavailable, b.name, "circuit half-open",
				"trial call in flight", nil)
		}
		b.trialInFlight = true
		return nil
	}

	elapsed := b.now().Sub(b.lastFailure)
	if elapsed < b.settings.Cooldown {
		remaining := b.settings.Cooldown - elapsed
		seconds := int((remaining + time.Second - 1) / time.Second)
		return services.Wrap(
			services.ErrUnavailable, b.name, "circuit open",
			fmt.Sprintf("retry in %ds", seconds), nil)
	}
	b.state = StateHalfOpen
	b.trialInFlight = true
	return nil
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trialInFlight = false

	if err == nil {
		b.failures = 0
		b.state = StateClosed
		return
	}

	b.failures++
	b.lastFailure = b.now()
	if b.state == StateHalfOpen || b.failures >= b.settings.Threshold {
		b.state = StateOpen
	}
}

// Reset forces the breaker closed with zero failures.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.lastFailure = time.Time{}
	b.trialInFlight = false
}

// GetStatus exposes the breaker position for observability.
func (b *Breaker) GetStatus() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{
		Name:        b.name,
		State:       b.state,
		Failures:    b.failures,
		LastFailure: b.lastFailure,
	}
}
