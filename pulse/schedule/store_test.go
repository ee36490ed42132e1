package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/crosspost/errors"
	crosstest "github.com/teranos/crosspost/internal/testing"
)

func newJob(id string, at time.Time, platforms ...string) *Job {
	return &Job{
		ID:          id,
		DraftID:     "draft-" + id,
		UserID:      "user-1",
		Platforms:   platforms,
		ScheduledAt: at,
	}
}

func TestCreateJob(t *testing.T) {
	ctx := context.Background()
	store := NewStore(crosstest.CreateTestDB(t))
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	job := newJob("", at, "hashnode", "devto", "devto")
	require.NoError(t, store.CreateJob(ctx, job))
	assert.NotEmpty(t, job.ID, "id is generated")

	retrieved, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"devto", "hashnode"}, retrieved.Platforms)
	assert.Equal(t, StatusPending, retrieved.Status)
	assert.Equal(t, 0, retrieved.RetryCount)
	assert.True(t, at.Equal(retrieved.ScheduledAt))
	assert.Nil(t, retrieved.PublishedAt)
	assert.Empty(t, retrieved.ErrorMessage)
}

func TestCreateJob_Validation(t *testing.T) {
	ctx := context.Background()
	store := NewStore(crosstest.CreateTestDB(t))
	at := time.Now()

	tests := []struct {
		name string
		job  *Job
	}{
		{"no platforms", newJob("a", at)},
		{"only empty platform names", newJob("b", at, "", "")},
		{"no draft", &Job{UserID: "u", Platforms: []string{"devto"}, ScheduledAt: at}},
		{"no user", &Job{DraftID: "d", Platforms: []string{"devto"}, ScheduledAt: at}},
		{"no time", &Job{DraftID: "d", UserID: "u", Platforms: []string{"devto"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.CreateJob(ctx, tt.job)
			require.Error(t, err)
			assert.True(t, errors.IsInvalidRequestError(err))
		})
	}
}

func TestGetJob_NotFound(t *testing.T) {
	store := NewStore(crosstest.CreateTestDB(t))

	_, err := store.GetJob(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestListDue(t *testing.T) {
	ctx := context.Background()
	store := NewStore(crosstest.CreateTestDB(t))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, job := range []*Job{
		newJob("past", now.Add(-10*time.Minute), "devto"),
		newJob("now", now, "devto"),
		newJob("future", now.Add(10*time.Minute), "devto"),
		newJob("tie-b", now.Add(-5*time.Minute), "devto"),
		newJob("tie-a", now.Add(-5*time.Minute), "devto"),
	} {
		require.NoError(t, store.CreateJob(ctx, job))
	}
	cancelled := newJob("cancelled", now.Add(-time.Hour), "devto")
	require.NoError(t, store.CreateJob(ctx, cancelled))
	require.NoError(t, store.CancelJob(ctx, cancelled.ID))

	due, err := store.ListDue(ctx, now, 10)
	require.NoError(t, err)
	ids := make([]string, len(due))
	for i, j := range due {
		ids[i] = j.ID
	}
	assert.Equal(t, []string{"past", "tie-a", "tie-b", "now"}, ids)

	due, err = store.ListDue(ctx, now, 2)
	require.NoError(t, err)
	assert.Len(t, due, 2, "limit bounds the batch")

	_, err = store.ListDue(ctx, now, 0)
	assert.Error(t, err)
}

func TestFinder_GraceWindow(t *testing.T) {
	ctx := context.Background()
	store := NewStore(crosstest.CreateTestDB(t))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateJob(ctx, newJob("old", now.Add(-2*time.Minute), "devto")))
	require.NoError(t, store.CreateJob(ctx, newJob("edge", now.Add(-time.Minute), "devto")))
	require.NoError(t, store.CreateJob(ctx, newJob("recent", now.Add(-30*time.Second), "devto")))

	due, err := NewFinder(store, time.Minute, 10).FindDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "old", due[0].ID)
	assert.Equal(t, "edge", due[1].ID, "scheduled exactly at now-grace is due")
}

func TestUpdateJob(t *testing.T) {
	ctx := context.Background()
	store := NewStore(crosstest.CreateTestDB(t))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	job := newJob("j1", now, "devto")
	require.NoError(t, store.CreateJob(ctx, job))

	published := now.Add(time.Minute)
	job.Status = StatusPublished
	job.PublishedAt = &published
	require.NoError(t, store.UpdateJob(ctx, job))

	got, err := store.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, StatusPublished, got.Status)
	require.NotNil(t, got.PublishedAt)
	assert.True(t, published.Equal(*got.PublishedAt))

	// A job that already left pending cannot be overwritten
	job.Status = StatusFailed
	err = store.UpdateJob(ctx, job)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))

	got, err = store.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, StatusPublished, got.Status)
}

func TestCancelJob(t *testing.T) {
	ctx := context.Background()
	store := NewStore(crosstest.CreateTestDB(t))

	job := newJob("j1", time.Now(), "devto")
	require.NoError(t, store.CreateJob(ctx, job))
	require.NoError(t, store.CancelJob(ctx, "j1"))

	got, err := store.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	err = store.CancelJob(ctx, "j1")
	assert.True(t, errors.Is(err, errors.ErrConflict), "only pending jobs can be cancelled")

	err = store.CancelJob(ctx, "missing")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestResetJob(t *testing.T) {
	ctx := context.Background()
	store := NewStore(crosstest.CreateTestDB(t))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	job := newJob("j1", now, "devto", "hashnode")
	require.NoError(t, store.CreateJob(ctx, job))

	err := store.ResetJob(ctx, "j1", now)
	assert.True(t, errors.Is(err, errors.ErrConflict), "pending jobs cannot be reset")

	job.Status = StatusPartial
	job.RetryCount = 2
	job.ErrorMessage = "hashnode: server error"
	require.NoError(t, store.UpdateJob(ctx, job))

	later := now.Add(time.Hour)
	require.NoError(t, store.ResetJob(ctx, "j1", later))

	got, err := store.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, 0, got.RetryCount)
	assert.Empty(t, got.ErrorMessage)
	assert.True(t, later.Equal(got.ScheduledAt))
}

func TestListJobs(t *testing.T) {
	ctx := context.Background()
	store := NewStore(crosstest.CreateTestDB(t))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateJob(ctx, newJob("a", now, "devto")))
	require.NoError(t, store.CreateJob(ctx, newJob("b", now.Add(time.Hour), "devto")))
	require.NoError(t, store.CancelJob(ctx, "a"))

	all, err := store.ListJobs(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].ID, "newest first")

	cancelled, err := store.ListJobs(ctx, StatusCancelled, 10)
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, "a", cancelled[0].ID)
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("d1", []string{"hashnode", "devto"})
	b := Fingerprint("d1", []string{"devto", "hashnode", "devto"})
	assert.Equal(t, a, b, "order and duplicates do not matter")
	assert.NotEqual(t, a, Fingerprint("d2", []string{"devto", "hashnode"}))
	assert.NotEqual(t, a, Fingerprint("d1", []string{"devto"}))

	job := &Job{DraftID: "d1", Platforms: []string{"devto", "hashnode"}}
	assert.Equal(t, a, job.Fingerprint())
}
