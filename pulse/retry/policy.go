// Package retry holds the pure timing rules of the publishing engine: when a
// job is due, whether a failure is worth retrying, how long to back off, and
// how error text is scrubbed before it is stored or logged.
package retry

import (
	"math/rand/v2"
	"time"
)

// Defaults used when configuration leaves a field at zero.
const (
	DefaultGraceWindow = 60 * time.Second
	DefaultBase        = 30 * time.Second
	DefaultCap         = 120 * time.Second
	DefaultMaxRetries  = 3
	DefaultJitter      = 0.10
)

// IsDue reports whether a job scheduled at scheduledAt should run at now.
// The grace window delays pickup so a job is never run early because of
// clock skew between the scheduler and the store.
func IsDue(scheduledAt, now time.Time, grace time.Duration) bool {
	return !scheduledAt.After(now.Add(-grace))
}

// DueCutoff is the latest scheduled_at that IsDue accepts for now.
func DueCutoff(now time.Time, grace time.Duration) time.Time {
	return now.Add(-grace)
}

// Policy is a bounded exponential backoff with proportional jitter.
type Policy struct {
	Base       time.Duration
	Cap        time.Duration
	MaxRetries int
	Jitter     float64 // fraction, 0.10 = ±10%

	rand func() float64 // [0, 1)
}

// DefaultPolicy returns base 30s, cap 120s, 3 retries, ±10% jitter.
func DefaultPolicy() Policy {
	return NewPolicy(DefaultBase, DefaultCap, DefaultMaxRetries)
}

// NewPolicy builds a policy with the default jitter.
func NewPolicy(base, ceiling time.Duration, maxRetries int) Policy {
	if base <= 0 {
		base = DefaultBase
	}
	if ceiling < base {
		ceiling = base
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return Policy{
		Base:       base,
		Cap:        ceiling,
		MaxRetries: maxRetries,
		Jitter:     DefaultJitter,
		rand:       rand.Float64,
	}
}

// WithRand returns a copy of the policy that draws jitter from f.
func (p Policy) WithRand(f func() float64) Policy {
	p.rand = f
	return p
}

// Backoff returns min(Base * 2^retryCount, Cap) without jitter.
func (p Policy) Backoff(retryCount int) time.Duration {
	d := p.Base
	for i := 0; i < retryCount; i++ {
		if d >= p.Cap/2 {
			return p.Cap
		}
		d *= 2
	}
	if d > p.Cap {
		return p.Cap
	}
	return d
}

// Delay is Backoff with jitter applied: Backoff * (1 ± U(0, Jitter)).
func (p Policy) Delay(retryCount int) time.Duration {
	base := p.Backoff(retryCount)
	if p.Jitter <= 0 {
		return base
	}
	r := rand.Float64
	if p.rand != nil {
		r = p.rand
	}
	factor := 1 + p.Jitter*(2*r()-1)
	return time.Duration(float64(base) * factor)
}

// Decision is the outcome of evaluating one failed attempt.
type Decision struct {
	Retry          bool
	NextAttemptAt  time.Time // zero unless Retry
	RetryCount     int       // value to persist, never above MaxRetries
	Classification Classification
	Message        string // redacted
}

// Decide evaluates a failed attempt made with retryCount prior retries.
// Fatal errors and exhausted budgets are terminal; the persisted count is
// still incremented but capped at MaxRetries.
func (p Policy) Decide(err error, retryCount int, now time.Time) Decision {
	class := Classify(err)
	d := Decision{
		Classification: class,
		Message:        RedactError(err),
		RetryCount:     min(retryCount+1, p.MaxRetries),
	}
	if !class.Retryable || retryCount >= p.MaxRetries {
		return d
	}
	d.Retry = true
	d.NextAttemptAt = now.Add(p.Delay(retryCount))
	return d
}
