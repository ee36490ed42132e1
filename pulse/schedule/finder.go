package schedule

import (
	"context"
	"time"

	"github.com/teranos/crosspost/pulse/retry"
)

// Finder selects the due jobs for one processing pass.
type Finder struct {
	store *Store
	grace time.Duration
	limit int
}

// NewFinder creates a finder returning at most limit jobs per pass. A job
// counts as due once it is grace past its scheduled time.
func NewFinder(store *Store, grace time.Duration, limit int) *Finder {
	if grace < 0 {
		grace = 0
	}
	if limit <= 0 {
		limit = 1
	}
	return &Finder{store: store, grace: grace, limit: limit}
}

// FindDue returns pending jobs that are due at now, oldest first.
func (f *Finder) FindDue(ctx context.Context, now time.Time) ([]*Job, error) {
	return f.store.ListDue(ctx, retry.DueCutoff(now, f.grace), f.limit)
}
