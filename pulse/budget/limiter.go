// Package budget enforces per-platform publish quotas. Store counts
// attempts recorded in the shared database, so every processor instance
// sees the same window; Limiter keeps the window in memory for a single
// instance.
package budget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/teranos/crosspost/errors"
)

// Gate decides whether one more publish call to platform is allowed now.
// Denials wrap errors.ErrRateLimited.
type Gate interface {
	Allow(ctx context.Context, platform string) error
}

// DefaultWindow is the sliding window all per-minute limits are counted over
const DefaultWindow = time.Minute

// Limiter enforces max calls per time window using sliding window algorithm
type Limiter struct {
	maxCalls  int
	window    time.Duration
	mu        sync.Mutex
	callTimes []time.Time
	timeNow   func() time.Time // Injectable for testing
}

// NewLimiter creates a per-minute limiter with real time
func NewLimiter(maxCallsPerMinute int) *Limiter {
	return NewLimiterWithClock(maxCallsPerMinute, time.Now)
}

// NewLimiterWithClock creates a per-minute limiter with injectable clock (for testing)
func NewLimiterWithClock(maxCallsPerMinute int, timeNow func() time.Time) *Limiter {
	return &Limiter{
		maxCalls:  maxCallsPerMinute,
		window:    DefaultWindow,
		callTimes: make([]time.Time, 0, maxCallsPerMinute),
		timeNow:   timeNow,
	}
}

// Allow records a call if the window has room, otherwise returns an error
// wrapping errors.ErrRateLimited.
func (r *Limiter) Allow() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.timeNow()
	r.removeExpiredCalls(now)

	if len(r.callTimes) >= r.maxCalls {
		err := errors.Wrapf(errors.ErrRateLimited, "%d calls in the last %s (limit: %d)",
			len(r.callTimes), r.window, r.maxCalls)
		return errors.WithDetail(err, fmt.Sprintf("Window frees up at: %s", r.callTimes[0].Add(r.window).Format(time.RFC3339)))
	}

	r.callTimes = append(r.callTimes, now)
	return nil
}

// removeExpiredCalls removes call timestamps that are outside the sliding window
// Must be called with lock held
func (r *Limiter) removeExpiredCalls(now time.Time) {
	cutoff := now.Add(-r.window)

	// timestamps are ordered
	expired := 0
	for _, callTime := range r.callTimes {
		if !callTime.After(cutoff) {
			expired++
		} else {
			break
		}
	}

	r.callTimes = r.callTimes[expired:]
}

// Stats returns current rate limiter statistics
func (r *Limiter) Stats() (callsInWindow int, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeExpiredCalls(r.timeNow())

	callsInWindow = len(r.callTimes)
	remaining = max(r.maxCalls-callsInWindow, 0)
	return callsInWindow, remaining
}

// MemoryGate is a Gate backed by one in-process Limiter per platform.
// Suitable only when a single processor instance runs.
type MemoryGate struct {
	mu       sync.Mutex
	limits   map[string]int
	limiters map[string]*Limiter
	timeNow  func() time.Time
}

// NewMemoryGate creates a gate with calls-per-minute limits per platform.
// Platforms missing from limits, or with a limit <= 0, are unlimited.
func NewMemoryGate(limits map[string]int) *MemoryGate {
	return NewMemoryGateWithClock(limits, time.Now)
}

// NewMemoryGateWithClock creates a memory gate with injectable clock (for testing)
func NewMemoryGateWithClock(limits map[string]int, timeNow func() time.Time) *MemoryGate {
	return &MemoryGate{limits: limits, limiters: make(map[string]*Limiter), timeNow: timeNow}
}

// Allow implements Gate.
func (g *MemoryGate) Allow(_ context.Context, platform string) error {
	limit := g.limits[platform]
	if limit <= 0 {
		return nil
	}

	g.mu.Lock()
	l, ok := g.limiters[platform]
	if !ok {
		l = NewLimiterWithClock(limit, g.timeNow)
		g.limiters[platform] = l
	}
	g.mu.Unlock()

	if err := l.Allow(); err != nil {
		return errors.Wrapf(err, "platform %s", platform)
	}
	return nil
}
