package budget

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/crosspost/db"
	"github.com/teranos/crosspost/errors"
	crosstest "github.com/teranos/crosspost/internal/testing"
)

func insertAttempt(t *testing.T, h *db.Handle, id, platform, status string, at time.Time) {
	t.Helper()
	_, err := h.Exec(h.Rebind(`INSERT INTO platform_publish_records
		(id, draft_id, job_id, job_fingerprint, platform, status, attempted_at)
		VALUES (?, ?, 'j', 'fp', ?, ?, ?)`), id, "draft-"+id, platform, status, at.UTC())
	require.NoError(t, err)
}

func TestStore_CountAttempts(t *testing.T) {
	h := crosstest.CreateTestDB(t)
	store := NewStore(h)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	insertAttempt(t, h, "old", "devto", "success", now.Add(-2*time.Minute))
	insertAttempt(t, h, "r1", "devto", "success", now.Add(-50*time.Second))
	insertAttempt(t, h, "r2", "devto", "failed", now.Add(-10*time.Second))
	insertAttempt(t, h, "r3", "hashnode", "failed", now.Add(-10*time.Second))
	insertAttempt(t, h, "r4", "devto", "rejected", now.Add(-5*time.Second))

	n, err := store.CountAttempts(context.Background(), "devto", now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.CountAttempts(context.Background(), "medium", now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestStoreGate(t *testing.T) {
	ctx := context.Background()
	h := crosstest.CreateTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gate := NewStoreGateWithClock(NewStore(h), map[string]int{"devto": 3}, func() time.Time { return now })

	for i := 0; i < 3; i++ {
		require.NoError(t, gate.Allow(ctx, "devto"), "attempt %d", i+1)
		insertAttempt(t, h, fmt.Sprintf("a%d", i), "devto", "failed", now.Add(-time.Duration(i)*time.Second))
	}

	err := gate.Allow(ctx, "devto")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRateLimited))

	assert.NoError(t, gate.Allow(ctx, "hashnode"), "platform without limit is unlimited")

	now = now.Add(time.Minute + 3*time.Second)
	assert.NoError(t, gate.Allow(ctx, "devto"), "window has slid past all attempts")
}
