package publish

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/teranos/crosspost/db"
	"github.com/teranos/crosspost/errors"
)

// Credentials authorise publish calls on one platform for one user.
type Credentials struct {
	APIKey        string
	PublicationID string            // Hashnode publication, Medium user id
	Extra         map[string]string // platform specific
}

// String keeps the key out of logs and error messages.
func (c Credentials) String() string {
	return "Credentials{APIKey: [redacted], PublicationID: " + c.PublicationID + "}"
}

// Integration is a user's connection to one platform.
type Integration struct {
	UserID      string
	Platform    string
	Credentials Credentials
	ConnectedAt time.Time
}

// IntegrationStore reads connected integrations.
type IntegrationStore interface {
	// GetConnected returns the integrations userID has for the given
	// platforms. Platforms without an integration are simply absent.
	GetConnected(ctx context.Context, userID string, platforms []string) ([]Integration, error)
}

// SQLIntegrationStore reads the integrations table.
type SQLIntegrationStore struct {
	db *db.Handle
}

// NewIntegrationStore creates an integration store over h.
func NewIntegrationStore(h *db.Handle) *SQLIntegrationStore {
	return &SQLIntegrationStore{db: h}
}

// GetConnected implements IntegrationStore.
func (s *SQLIntegrationStore) GetConnected(ctx context.Context, userID string, platforms []string) ([]Integration, error) {
	if len(platforms) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(platforms)), ", ")
	args := make([]interface{}, 0, len(platforms)+1)
	args = append(args, userID)
	for _, p := range platforms {
		args = append(args, p)
	}

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`
		SELECT user_id, platform, api_key, publication_id, extra, connected_at
		FROM integrations
		WHERE user_id = ? AND platform IN (`+placeholders+`)
		ORDER BY platform`), args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query integrations for user %s", userID)
	}
	defer rows.Close()

	var out []Integration
	for rows.Next() {
		var in Integration
		var publication sql.NullString
		var extra string
		if err := rows.Scan(&in.UserID, &in.Platform, &in.Credentials.APIKey, &publication, &extra, &in.ConnectedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan integration")
		}
		in.Credentials.PublicationID = publication.String
		if extra != "" {
			if err := json.Unmarshal([]byte(extra), &in.Credentials.Extra); err != nil {
				return nil, errors.Wrapf(err, "failed to decode extra credentials for %s", in.Platform)
			}
		}
		out = append(out, in)
	}
	return out, rows.Err()
}
