// Package backoff computes the delay before an automatic retry.
//
// Strategies receive the zero-based retry index of the attempt that just
// failed: 0 for the first attempt, 1 for the first retry, and so on. All
// strategies are stateless and safe for concurrent use.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before the next attempt.
type Strategy interface {
	// Delay returns how long to wait after the attempt with the given
	// retry index failed.
	Delay(retries int) time.Duration
}

// Func adapts an ordinary function to the Strategy interface.
type Func func(retries int) time.Duration

// Delay calls f(retries).
func (f Func) Delay(retries int) time.Duration { return f(retries) }

// ──────────────────────────────────────────────────
// Polynomial
// ──────────────────────────────────────────────────

// Polynomial grows the delay with the fourth power of the retry index and
// adds jitter that widens with each attempt:
//
//	(n⁴ + 15 + rand[0,1) × 10 × (n+1)) seconds
//
// Early retries wait seconds; by the tenth retry the wait is hours.
type Polynomial struct {
	// Rand returns a value in [0, 1). Nil uses math/rand/v2.
	Rand func() float64
}

// NewPolynomial creates the polynomial strategy with random jitter.
func NewPolynomial() *Polynomial {
	return &Polynomial{}
}

// Delay returns the jittered polynomial delay for retry index n.
func (p *Polynomial) Delay(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	r := p.random()
	fn := float64(n)
	ms := (math.Pow(fn, 4) + 15 + r*10*(fn+1)) * 1000
	return time.Duration(ms) * time.Millisecond
}

func (p *Polynomial) random() float64 {
	if p.Rand != nil {
		return p.Rand()
	}
	return rand.Float64() //nolint:gosec // jitter intentionally uses non-crypto rand
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always waits the same interval.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Linear
// ──────────────────────────────────────────────────

// Linear waits Step for the first retry, 2×Step for the second, and so on,
// capped at Max when Max is positive.
type Linear struct {
	Step time.Duration
	Max  time.Duration
}

// NewLinear creates a linear backoff strategy.
func NewLinear(step, maxDelay time.Duration) *Linear {
	return &Linear{Step: step, Max: maxDelay}
}

// Delay returns Step × (n+1), capped at Max.
func (l *Linear) Delay(n int) time.Duration {
	d := l.Step * time.Duration(max(n, 0)+1)
	if l.Max > 0 && d > l.Max {
		return l.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the wait after each failed attempt, capped at Max
// when Max is positive.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial × 2ⁿ, capped at Max.
func (e *Exponential) Delay(n int) time.Duration {
	d := float64(e.Initial) * math.Pow(2, float64(max(n, 0)))
	if e.Max > 0 && d > float64(e.Max) {
		return e.Max
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// DefaultStrategy returns the strategy used by the engine when none is
// configured: [Polynomial] with random jitter.
func DefaultStrategy() Strategy {
	return NewPolynomial()
}
