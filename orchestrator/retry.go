package orchestrator

import (
	"math/rand"
	"time"

	"github.com/aluiziolira/pricetrack/fetcher"
)

// RetryPolicy decides whether a failed attempt is retried and how long to
// wait before the next one. It is a plain value so retry behavior is
// testable without triggering real failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter is the maximum random fraction of the computed delay added on
	// top of it, e.g. 0.2 adds up to 20%.
	Jitter float64
}

// ShouldRetry reports whether another attempt is allowed after err. Only
// transient failures are retried, and only while attempts remain.
func (p RetryPolicy) ShouldRetry(err error, attemptsUsed int) bool {
	if attemptsUsed >= p.MaxAttempts {
		return false
	}
	return fetcher.IsTransient(err)
}

// Backoff returns the delay before the attempt following attemptsUsed
// completed attempts: base · 2^attemptsUsed, capped, plus jitter.
func (p RetryPolicy) Backoff(attemptsUsed int) time.Duration {
	if attemptsUsed <= 0 {
		attemptsUsed = 1
	}

	base := p.BaseDelay
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<attemptsUsed)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.Jitter > 0 {
		delay += time.Duration(rand.Float64() * p.Jitter * float64(delay))
	}
	return delay
}

// budget returns the total time the policy may consume across all retries,
// excluding the fetches themselves.
func (p RetryPolicy) budget() time.Duration {
	var total time.Duration
	for i := 1; i < p.MaxAttempts; i++ {
		total += p.Backoff(i)
	}
	return total
}
