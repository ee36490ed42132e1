// Package publish turns one scheduled job into publish calls against the
// connected platforms and records every attempt.
package publish

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/teranos/crosspost/db"
	"github.com/teranos/crosspost/errors"
)

// Draft is the authored content a job publishes.
type Draft struct {
	ID           string
	UserID       string
	Title        string
	Body         string // markdown
	Tags         []string
	ThumbnailURL string
	CanonicalURL string
}

// DraftStore reads drafts. Missing drafts return an error wrapping
// errors.ErrNotFound.
type DraftStore interface {
	GetDraft(ctx context.Context, id string) (*Draft, error)
}

// SQLDraftStore reads the drafts table.
type SQLDraftStore struct {
	db *db.Handle
}

// NewDraftStore creates a draft store over h.
func NewDraftStore(h *db.Handle) *SQLDraftStore {
	return &SQLDraftStore{db: h}
}

// GetDraft implements DraftStore.
func (s *SQLDraftStore) GetDraft(ctx context.Context, id string) (*Draft, error) {
	var d Draft
	var tags string
	var thumbnail, canonical sql.NullString

	err := s.db.QueryRowContext(ctx, s.db.Rebind(`
		SELECT id, user_id, title, body, tags, thumbnail_url, canonical_url
		FROM drafts
		WHERE id = ?`), id).
		Scan(&d.ID, &d.UserID, &d.Title, &d.Body, &tags, &thumbnail, &canonical)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("draft %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get draft %s", id)
	}

	if err := json.Unmarshal([]byte(tags), &d.Tags); err != nil {
		return nil, errors.Wrapf(err, "failed to decode tags for draft %s", id)
	}
	d.ThumbnailURL = thumbnail.String
	d.CanonicalURL = canonical.String
	return &d, nil
}
