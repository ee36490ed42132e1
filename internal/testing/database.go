package testing

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/teranos/crosspost/db"
)

// CreateTestDB creates a migrated SQLite database in a temp directory.
// A file is used instead of :memory: so every pooled connection sees the
// same data. Cleanup is registered via t.Cleanup().
func CreateTestDB(t *testing.T) *db.Handle {
	t.Helper()

	h, err := db.OpenWithMigrations("sqlite3", filepath.Join(t.TempDir(), "crosspost.db"), nil)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		h.Close()
	})

	return h
}

// SeedDraft inserts a draft row owned by userID.
func SeedDraft(t *testing.T, h *db.Handle, id, userID, title string, tags ...string) {
	t.Helper()
	if tags == nil {
		tags = []string{}
	}
	tagJSON, _ := json.Marshal(tags)
	now := time.Now().UTC()
	_, err := h.Exec(h.Rebind(`INSERT INTO drafts (id, user_id, title, body, tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`), id, userID, title, "# "+title+"\n\nbody", string(tagJSON), now, now)
	if err != nil {
		t.Fatalf("Failed to seed draft %s: %v", id, err)
	}
}

// SeedIntegration connects platform for userID.
func SeedIntegration(t *testing.T, h *db.Handle, userID, platform string) {
	t.Helper()
	_, err := h.Exec(h.Rebind(`INSERT INTO integrations (user_id, platform, api_key, connected_at)
		VALUES (?, ?, ?, ?)`), userID, platform, "key-"+platform, time.Now().UTC())
	if err != nil {
		t.Fatalf("Failed to seed integration %s/%s: %v", userID, platform, err)
	}
}
