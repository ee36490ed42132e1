// Package schedule stores publishing jobs and finds the ones that are due.
package schedule

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"time"
)

// Job is a request to publish one draft to several platforms at a time.
type Job struct {
	ID           string     `json:"id"`
	DraftID      string     `json:"draft_id"`
	UserID       string     `json:"user_id"`
	Platforms    []string   `json:"platforms"` // sorted, non-empty
	ScheduledAt  time.Time  `json:"scheduled_at"`
	Status       string     `json:"status"`
	RetryCount   int        `json:"retry_count"`
	ErrorMessage string     `json:"error_message,omitempty"` // redacted
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Status constants for scheduled jobs
const (
	StatusPending   = "pending"   // Waiting for its scheduled time or a retry
	StatusPublished = "published" // Every platform succeeded
	StatusPartial   = "partial"   // Some platforms succeeded; terminal until reset
	StatusFailed    = "failed"    // Fatal error or retries exhausted
	StatusCancelled = "cancelled" // Cancelled before it ran
)

// IsTerminal reports whether the engine will never pick the job up again
// on its own.
func (j *Job) IsTerminal() bool {
	return j.Status != StatusPending
}

// Fingerprint identifies the work a job asks for: the same draft and
// platform set always hash the same, whatever order the platforms came in.
func (j *Job) Fingerprint() string {
	return Fingerprint(j.DraftID, j.Platforms)
}

// Fingerprint hashes draftID and the sorted platform set.
func Fingerprint(draftID string, platforms []string) string {
	sorted := NormalizePlatforms(platforms)
	h := sha256.New()
	h.Write([]byte(draftID))
	for _, p := range sorted {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// NormalizePlatforms returns a sorted copy of platforms without duplicates
// or empty names.
func NormalizePlatforms(platforms []string) []string {
	out := make([]string, 0, len(platforms))
	for _, p := range platforms {
		if p != "" {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
