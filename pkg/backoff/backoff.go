// Package backoff computes exponential retry delays with jitter.
package backoff

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Policy describes an exponential backoff schedule
type Policy struct {
	// BaseDelay is the delay before the first retry
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay"`

	// MaxDelay caps the un-jittered delay; 0 leaves it uncapped
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay"`

	// Jitter widens each delay by a random factor in [1, 1+Jitter)
	Jitter float64 `json:"jitter" yaml:"jitter"`

	// MaxAttempts bounds the number of retries; 0 means unlimited
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`
}

// Delay returns min(BaseDelay*2^attempt, MaxDelay) scaled by 1+Jitter*r.
// attempt is zero-based and r is expected in [0, 1).
func (p Policy) Delay(attempt int, r float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if p.BaseDelay <= 0 {
		return 0
	}
	d := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		if r < 0 {
			r = 0
		}
		if r >= 1 {
			r = math.Nextafter(1, 0)
		}
		d *= 1 + p.Jitter*r
	}
	// Without a cap the exponent overflows Duration after ~34 doublings
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Exhausted reports whether attempt (zero-based) is beyond the budget.
func (p Policy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}

// Backoff tracks attempts against a Policy.
type Backoff struct {
	policy  Policy
	rand    func() float64
	mu      sync.Mutex
	attempt int
}

// New creates a Backoff drawing jitter from math/rand.
func New(policy Policy) *Backoff {
	return &Backoff{
		policy: policy,
		rand:   rand.Float64,
	}
}

// NewWithRand creates a Backoff with a custom jitter source.
func NewWithRand(policy Policy, r func() float64) *Backoff {
	b := New(policy)
	if r != nil {
		b.rand = r
	}
	return b
}

// Next returns the delay for the next attempt and advances the counter.
// ok is false when the attempt budget is spent.
func (b *Backoff) Next() (delay time.Duration, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.policy.Exhausted(b.attempt) {
		return 0, false
	}
	delay = b.policy.Delay(b.attempt, b.rand())
	b.attempt++
	return delay, true
}

// Attempts returns the number of delays handed out since the last Reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempt
}

// Reset clears the attempt counter
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempt = 0
}

// Policy returns the configured policy
func (b *Backoff) Policy() Policy {
	return b.policy
}
