package retry

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"loom/internal/config"
	"loom/internal/store"
)

// Policy computes backoff delays and retry eligibility for failed tasks.
// The zero value is unusable; construct via NewPolicy or FromConfig.
type Policy struct {
	MaxRetries        int
	BaseDelay         time.Duration
	BackoffMultiplier float64
	MaxDelay          time.Duration
	JitterFactor      float64

	now  func() time.Time
	rand func() float64
}

// NewPolicy constructs a policy with explicit knobs.
func NewPolicy(maxRetries int, baseDelay time.Duration, multiplier float64, maxDelay time.Duration, jitterFactor float64) Policy {
	return Policy{
		MaxRetries:        maxRetries,
		BaseDelay:         baseDelay,
		BackoffMultiplier: multiplier,
		MaxDelay:          maxDelay,
		JitterFactor:      jitterFactor,
		now:               time.Now,
		rand:              rand.Float64,
	}
}

// FromConfig builds the policy from application configuration.
func FromConfig(cfg *config.Config) Policy {
	return NewPolicy(
		cfg.Retry.MaxRetries,
		time.Duration(cfg.Retry.BaseDelayMs)*time.Millisecond,
		cfg.Retry.BackoffMultiplier,
		time.Duration(cfg.Retry.MaxDelayMs)*time.Millisecond,
		cfg.Retry.JitterFactor,
	)
}

// Context is the ephemeral planning artifact for one retry decision. The
// durable fields live on the task row; this is recomputed per pass.
type Context struct {
	TaskID         string
	RequestID      string
	CurrentAttempt int
	LastError      string
	NextRetryAt    time.Time
}

// Delay returns the capped exponential backoff for a zero-indexed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(p.BaseDelay) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// ShouldRetry reports whether another attempt is allowed.
func (p Policy) ShouldRetry(attempt int, retriable bool) bool {
	return retriable && attempt < p.MaxRetries
}

// Jitter perturbs a delay by up to ±JitterFactor to avoid synchronized retry
// storms across many requests. The result is never negative.
func (p Policy) Jitter(delay time.Duration) time.Duration {
	factor := p.JitterFactor
	if factor <= 0 {
		return delay
	}
	r := p.rand
	if r == nil {
		r = rand.Float64
	}
	offset := (r()*2 - 1) * factor * float64(delay)
	jittered := time.Duration(float64(delay) + offset)
	if jittered < 0 {
		return 0
	}
	return jittered
}

// NewContext packages the retry plan for a failed task. NextRetryAt is
// now + jittered Delay(attempt), with attempt taken from the task's persisted
// retry count.
func (p Policy) NewContext(task *store.Task, lastError string) Context {
	clock := p.now
	if clock == nil {
		clock = time.Now
	}
	return Context{
		TaskID:         task.ID,
		RequestID:      task.RequestID,
		CurrentAttempt: task.RetryCount,
		LastError:      lastError,
		NextRetryAt:    clock().Add(p.Jitter(p.Delay(task.RetryCount))),
	}
}

// ReadyToRetry reports whether the scheduled retry time has arrived.
func (p Policy) ReadyToRetry(rc Context) bool {
	clock := p.now
	if clock == nil {
		clock = time.Now
	}
	return !clock().Before(rc.NextRetryAt)
}

// RemainingRetries returns how many attempts are left for a task.
func (p Policy) RemainingRetries(attempt int) int {
	remaining := p.MaxRetries - attempt
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Exhausted reports whether the retry budget is spent.
func (p Policy) Exhausted(attempt int) bool {
	return attempt >= p.MaxRetries
}

// FormatRetryLog renders an operator-facing summary of a retry decision. It
// carries no control-flow weight.
func FormatRetryLog(rc Context, maxRetries int) string {
	return fmt.Sprintf(
		"task %s (request %s) attempt %d/%d failed: %s; next retry at %s",
		rc.TaskID, rc.RequestID, rc.CurrentAttempt+1, maxRetries, rc.LastError,
		rc.NextRetryAt.UTC().Format(time.RFC3339),
	)
}
