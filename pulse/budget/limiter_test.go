package budget

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/teranos/crosspost/errors"
)

// mockClock allows controlling time in tests
type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock(now time.Time) *mockClock {
	return &mockClock{now: now}
}

func (m *mockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *mockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Given: Limiter configured for 10 calls/minute
// When: Making 10 calls within 1 minute
// Then: All calls are allowed, the 11th is rejected as rate limited
func TestLimiter_AtLimit(t *testing.T) {
	clock := newMockClock(time.Now())
	limiter := NewLimiterWithClock(10, clock.Now)

	for i := 0; i < 10; i++ {
		if err := limiter.Allow(); err != nil {
			t.Errorf("Call %d: expected no error, got %v", i+1, err)
		}
		clock.Advance(time.Second)
	}

	err := limiter.Allow()
	if err == nil {
		t.Fatal("Call 11: expected rate limit error")
	}
	if !errors.Is(err, errors.ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
}

// Given: Limiter at its limit
// When: The oldest call leaves the 60s window
// Then: Exactly one more call is allowed
func TestLimiter_WindowSlides(t *testing.T) {
	clock := newMockClock(time.Now())
	limiter := NewLimiterWithClock(3, clock.Now)

	for i := 0; i < 3; i++ {
		if err := limiter.Allow(); err != nil {
			t.Fatalf("Call %d: %v", i+1, err)
		}
		clock.Advance(10 * time.Second)
	}
	if err := limiter.Allow(); err == nil {
		t.Fatal("expected limit at T=30s")
	}

	clock.Advance(31 * time.Second) // T=61s, the call from T=0 has expired
	if err := limiter.Allow(); err != nil {
		t.Errorf("expected room after window slid, got %v", err)
	}
	if err := limiter.Allow(); err == nil {
		t.Error("only one slot should have freed up")
	}
}

// Given: 50 goroutines sharing a 20 calls/minute limiter
// When: All call Allow at once
// Then: Exactly 20 succeed
func TestLimiter_Concurrent(t *testing.T) {
	clock := newMockClock(time.Now())
	limiter := NewLimiterWithClock(20, clock.Now)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Allow() == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 20 {
		t.Errorf("expected 20 allowed calls, got %d", allowed)
	}
	calls, remaining := limiter.Stats()
	if calls != 20 || remaining != 0 {
		t.Errorf("Stats() = (%d, %d), want (20, 0)", calls, remaining)
	}
}

func TestMemoryGate_PerPlatform(t *testing.T) {
	ctx := context.Background()
	clock := newMockClock(time.Now())
	gate := NewMemoryGateWithClock(map[string]int{"devto": 2, "medium": 0}, clock.Now)

	for i := 0; i < 2; i++ {
		if err := gate.Allow(ctx, "devto"); err != nil {
			t.Fatalf("devto call %d: %v", i+1, err)
		}
	}
	if err := gate.Allow(ctx, "devto"); !errors.Is(err, errors.ErrRateLimited) {
		t.Errorf("expected devto to be limited, got %v", err)
	}

	// Other platforms keep their own window
	for i := 0; i < 10; i++ {
		if err := gate.Allow(ctx, "medium"); err != nil {
			t.Fatalf("limit 0 means unlimited, got %v", err)
		}
		if err := gate.Allow(ctx, "hashnode"); err != nil {
			t.Fatalf("unconfigured platform is unlimited, got %v", err)
		}
	}

	clock.Advance(61 * time.Second)
	if err := gate.Allow(ctx, "devto"); err != nil {
		t.Errorf("devto should be allowed after the window, got %v", err)
	}
}
