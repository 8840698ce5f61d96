package backoff

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicyDelay(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 10 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{-1, time.Second},
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{20, 10 * time.Second},
	}

	for _, tt := range tests {
		if got := p.Delay(tt.attempt, 0.9); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestPolicyDelayUncappedSaturates(t *testing.T) {
	p := Policy{BaseDelay: time.Second}

	assert.Equal(t, 1<<33*time.Second, p.Delay(33, 0))
	for _, attempt := range []int{34, 63, 64, 1000, 1 << 30} {
		d := p.Delay(attempt, 0)
		if d != time.Duration(math.MaxInt64) {
			t.Errorf("Delay(%d) = %v, want saturation", attempt, d)
		}
	}

	jittered := Policy{BaseDelay: time.Second, Jitter: 0.5}
	assert.Equal(t, time.Duration(math.MaxInt64), jittered.Delay(40, 0.9))
	assert.Zero(t, Policy{}.Delay(5000, 0))
}

func TestPolicyDelayJitter(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 30 * time.Second, Jitter: 0.5}

	assert.Equal(t, time.Second, p.Delay(0, 0))
	assert.Equal(t, 1500*time.Millisecond, p.Delay(0, 1.0-1e-12).Round(time.Millisecond))
	assert.Equal(t, 2500*time.Millisecond, p.Delay(1, 0.5))

	// jitter below 1 keeps doubling delays strictly increasing
	prev := time.Duration(0)
	for i := 0; i < 4; i++ {
		d := p.Delay(i, 0.99)
		lo := p.Delay(i+1, 0)
		assert.Less(t, d, lo)
		assert.Greater(t, d, prev)
		prev = d
	}
}

func TestBackoffBudget(t *testing.T) {
	b := NewWithRand(Policy{BaseDelay: time.Second, MaxDelay: 4 * time.Second, MaxAttempts: 3}, func() float64 { return 0 })

	var delays []time.Duration
	for {
		d, ok := b.Next()
		if !ok {
			break
		}
		delays = append(delays, d)
	}

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, delays)
	assert.Equal(t, 3, b.Attempts())

	b.Reset()
	d, ok := b.Next()
	assert.True(t, ok)
	assert.Equal(t, time.Second, d)
}

func TestBackoffUnlimited(t *testing.T) {
	b := NewWithRand(Policy{BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}, func() float64 { return 0 })
	for i := 0; i < 100; i++ {
		if _, ok := b.Next(); !ok {
			t.Fatalf("unlimited policy stopped at attempt %d", i)
		}
	}
	d, _ := b.Next()
	assert.Equal(t, 5*time.Millisecond, d)
}
