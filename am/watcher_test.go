package am

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigWatcher_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crosspost.toml")
	if err := os.WriteFile(path, []byte("[log]\nlevel = \"info\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cw, err := NewConfigWatcher([]string{path}, func() (*Config, error) { return LoadFromFile(path) })
	if err != nil {
		t.Fatalf("NewConfigWatcher() failed: %v", err)
	}
	defer cw.Stop()
	cw.debouncePeriod = 10 * time.Millisecond

	reloaded := make(chan *Config, 4)
	cw.OnReload(func(c *Config) { reloaded <- c })
	cw.Start()

	if err := os.WriteFile(path, []byte("[log]\nlevel = \"debug\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-reloaded:
		if c.Log.Level != "debug" {
			t.Errorf("reloaded Log.Level = %q, want debug", c.Log.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after config write")
	}
}

func TestConfigWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crosspost.toml")
	if err := os.WriteFile(path, []byte(""), 0o600); err != nil {
		t.Fatal(err)
	}

	cw, err := NewConfigWatcher([]string{path}, func() (*Config, error) { return LoadFromFile(path) })
	if err != nil {
		t.Fatalf("NewConfigWatcher() failed: %v", err)
	}
	defer cw.Stop()
	cw.debouncePeriod = 10 * time.Millisecond

	reloaded := make(chan *Config, 4)
	cw.OnReload(func(c *Config) { reloaded <- c })
	cw.Start()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case <-reloaded:
		t.Fatal("reloaded on unrelated file")
	case <-time.After(200 * time.Millisecond):
	}
}
