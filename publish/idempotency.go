package publish

import "context"

// Checker answers whether a job's work is already done.
type Checker struct {
	records *RecordStore
}

// NewChecker creates an idempotency checker over records.
func NewChecker(records *RecordStore) *Checker {
	return &Checker{records: records}
}

// AlreadySatisfied reports whether every platform already has a success
// record for draftID. An empty platform list is never satisfied.
func (c *Checker) AlreadySatisfied(ctx context.Context, draftID string, platforms []string) (bool, error) {
	if len(platforms) == 0 {
		return false, nil
	}
	done, err := c.records.SuccessfulPlatforms(ctx, draftID, platforms)
	if err != nil {
		return false, err
	}
	for _, p := range platforms {
		if done[p] == nil {
			return false, nil
		}
	}
	return true, nil
}
