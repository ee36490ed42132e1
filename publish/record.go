package publish

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/crosspost/db"
	"github.com/teranos/crosspost/errors"
	"github.com/teranos/crosspost/pulse/retry"
)

// Record statuses. A rejected record was refused before the platform was
// called and does not count against its rate budget.
const (
	RecordPending  = "pending"
	RecordSuccess  = "success"
	RecordFailed   = "failed"
	RecordRejected = "rejected"
)

// Record is one publish attempt of a draft on a platform.
type Record struct {
	ID             string    `json:"id"`
	DraftID        string    `json:"draft_id"`
	JobID          string    `json:"job_id"`
	JobFingerprint string    `json:"job_fingerprint"`
	Platform       string    `json:"platform"`
	Status         string    `json:"status"`
	PlatformPostID string    `json:"platform_post_id,omitempty"`
	PlatformURL    string    `json:"platform_url,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"` // redacted
	ErrorCode      string    `json:"error_code,omitempty"`
	AttemptedAt    time.Time `json:"attempted_at"`
}

// RecordStore persists publish attempts. A success row for (draft,
// platform) is unique; it means the platform is never published to again
// for that draft.
type RecordStore struct {
	db *db.Handle
}

// NewRecordStore creates a record store over h.
func NewRecordStore(h *db.Handle) *RecordStore {
	return &RecordStore{db: h}
}

// Insert stores rec, assigning an id when empty. A second success for the
// same draft and platform is rejected with errors.ErrConflict.
func (s *RecordStore) Insert(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.AttemptedAt.IsZero() {
		rec.AttemptedAt = time.Now()
	}
	rec.AttemptedAt = rec.AttemptedAt.UTC()

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO platform_publish_records (
			id, draft_id, job_id, job_fingerprint, platform, status,
			platform_post_id, platform_url, error_message, error_code, attempted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID,
		rec.DraftID,
		rec.JobID,
		rec.JobFingerprint,
		rec.Platform,
		rec.Status,
		nullString(rec.PlatformPostID),
		nullString(rec.PlatformURL),
		nullString(rec.ErrorMessage),
		nullString(rec.ErrorCode),
		rec.AttemptedAt,
	)
	if db.IsUniqueViolation(err) {
		return errors.Wrapf(errors.ErrConflict, "draft %s already published to %s", rec.DraftID, rec.Platform)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to insert publish record for %s", rec.Platform)
	}
	return nil
}

// SuccessfulPlatforms returns, per platform, the success record of draftID
// among platforms.
func (s *RecordStore) SuccessfulPlatforms(ctx context.Context, draftID string, platforms []string) (map[string]*Record, error) {
	out := make(map[string]*Record)
	if len(platforms) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(platforms)), ", ")
	args := []interface{}{draftID, RecordSuccess}
	for _, p := range platforms {
		args = append(args, p)
	}

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`
		SELECT `+recordColumns+`
		FROM platform_publish_records
		WHERE draft_id = ? AND status = ? AND platform IN (`+placeholders+`)`), args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query successful platforms for draft %s", draftID)
	}
	recs, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		out[r.Platform] = r
	}
	return out, nil
}

// HasSuccess reports whether draftID was already published to platform.
func (s *RecordStore) HasSuccess(ctx context.Context, draftID, platform string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.db.Rebind(`
		SELECT COUNT(*) FROM platform_publish_records
		WHERE draft_id = ? AND platform = ? AND status = ?`),
		draftID, platform, RecordSuccess).Scan(&n)
	if err != nil {
		return false, errors.Wrapf(err, "failed to check success for draft %s on %s", draftID, platform)
	}
	return n > 0, nil
}

// Unconfirmed returns the platforms of draftID whose last failure was
// retry.CodeUnconfirmed and that have no success since: the post may
// exist there without a record of it.
func (s *RecordStore) Unconfirmed(ctx context.Context, draftID string) ([]string, error) {
	recs, err := s.ListByDraft(ctx, draftID)
	if err != nil {
		return nil, err
	}
	state := make(map[string]bool)
	for _, r := range recs {
		switch r.Status {
		case RecordSuccess:
			state[r.Platform] = false
		case RecordFailed:
			state[r.Platform] = r.ErrorCode == string(retry.CodeUnconfirmed)
		}
	}
	var out []string
	for platform, unconfirmed := range state {
		if unconfirmed {
			out = append(out, platform)
		}
	}
	sort.Strings(out)
	return out, nil
}

// ListByDraft returns every attempt for draftID, oldest first.
func (s *RecordStore) ListByDraft(ctx context.Context, draftID string) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`
		SELECT `+recordColumns+`
		FROM platform_publish_records
		WHERE draft_id = ?
		ORDER BY attempted_at ASC, platform ASC`), draftID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list publish records for draft %s", draftID)
	}
	return scanRecords(rows)
}

const recordColumns = `id, draft_id, job_id, job_fingerprint, platform, status,
		platform_post_id, platform_url, error_message, error_code, attempted_at`

func scanRecords(rows *sql.Rows) ([]*Record, error) {
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var r Record
		var postID, url, msg, code sql.NullString
		if err := rows.Scan(&r.ID, &r.DraftID, &r.JobID, &r.JobFingerprint, &r.Platform, &r.Status,
			&postID, &url, &msg, &code, &r.AttemptedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan publish record")
		}
		r.PlatformPostID = postID.String
		r.PlatformURL = url.String
		r.ErrorMessage = msg.String
		r.ErrorCode = code.String
		r.AttemptedAt = r.AttemptedAt.UTC()
		out = append(out, &r)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
