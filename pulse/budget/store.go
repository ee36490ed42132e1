package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/teranos/crosspost/db"
	"github.com/teranos/crosspost/errors"
)

// Store counts publish attempts in platform_publish_records. Every
// attempted call leaves a record, so the table doubles as the shared rate
// window for all processor instances.
type Store struct {
	db *db.Handle
}

// NewStore creates a new budget store
func NewStore(h *db.Handle) *Store {
	return &Store{db: h}
}

// CountAttempts returns how many publish attempts were recorded for
// platform at or after since.
func (s *Store) CountAttempts(ctx context.Context, platform string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.db.Rebind(`
		SELECT COUNT(*)
		FROM platform_publish_records
		WHERE platform = ?
			AND attempted_at >= ?
			AND status IN ('success', 'failed')`),
		platform, since.UTC()).Scan(&n)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to count attempts for %s", platform)
	}
	return n, nil
}

// StoreGate is a Gate over Store with calls-per-window limits per platform.
type StoreGate struct {
	store   *Store
	limits  map[string]int
	window  time.Duration
	timeNow func() time.Time
}

// NewStoreGate creates a shared gate. Platforms missing from limits, or
// with a limit <= 0, are unlimited.
func NewStoreGate(store *Store, limits map[string]int) *StoreGate {
	return NewStoreGateWithClock(store, limits, time.Now)
}

// NewStoreGateWithClock creates a shared gate with injectable clock (for testing)
func NewStoreGateWithClock(store *Store, limits map[string]int, timeNow func() time.Time) *StoreGate {
	return &StoreGate{store: store, limits: limits, window: DefaultWindow, timeNow: timeNow}
}

// Allow implements Gate. The count is read, not reserved: two instances
// can both pass at the boundary, so the effective ceiling is limit plus
// the number of concurrent instances.
func (g *StoreGate) Allow(ctx context.Context, platform string) error {
	limit := g.limits[platform]
	if limit <= 0 {
		return nil
	}

	n, err := g.store.CountAttempts(ctx, platform, g.timeNow().Add(-g.window))
	if err != nil {
		return err
	}
	if n >= limit {
		err := errors.Wrapf(errors.ErrRateLimited, "platform %s: %d attempts in the last %s (limit: %d)",
			platform, n, g.window, limit)
		return errors.WithDetail(err, fmt.Sprintf("Window: %s", g.window))
	}
	return nil
}
