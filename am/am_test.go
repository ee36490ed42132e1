package am

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestLoad_Defaults(t *testing.T) {
	// Isolated viper instance, no user/system config
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	if err != nil {
		t.Fatalf("LoadWithViper() failed: %v", err)
	}

	if cfg.Database.Driver != DriverSQLite {
		t.Errorf("expected default driver %q, got %q", DriverSQLite, cfg.Database.Driver)
	}
	if cfg.Scheduler.GraceWindowMS != 60_000 {
		t.Errorf("expected default grace window 60000ms, got %d", cfg.Scheduler.GraceWindowMS)
	}
	if cfg.Scheduler.MaxConcurrency != 3 {
		t.Errorf("expected default max concurrency 3, got %d", cfg.Scheduler.MaxConcurrency)
	}
	if cfg.Scheduler.MaxRetries != 3 {
		t.Errorf("expected default max retries 3, got %d", cfg.Scheduler.MaxRetries)
	}
	if cfg.GetBatchSize() != 3 {
		t.Errorf("expected batch size to follow max concurrency, got %d", cfg.GetBatchSize())
	}
	if cfg.GetServerPort() != DefaultServerPort {
		t.Errorf("expected default port %d, got %d", DefaultServerPort, cfg.GetServerPort())
	}
	if got := cfg.Platforms["devto"].MaxTags; got != 4 {
		t.Errorf("expected devto max_tags 4, got %d", got)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crosspost.toml")
	content := `
[database]
driver = "pgx"
dsn = "postgres://localhost/crosspost"

[scheduler]
max_concurrency = 8
batch_size = 20

[locks]
backend = "advisory"

[platforms.devto]
endpoint = "https://dev.to/api/articles"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() failed: %v", err)
	}

	if cfg.Database.Driver != DriverPostgres {
		t.Errorf("driver = %q, want pgx", cfg.Database.Driver)
	}
	if cfg.GetBatchSize() != 20 {
		t.Errorf("batch size = %d, want 20", cfg.GetBatchSize())
	}
	if cfg.Scheduler.MaxRetries != 3 {
		t.Errorf("max retries default lost after file merge, got %d", cfg.Scheduler.MaxRetries)
	}
	dev := cfg.Platforms["devto"]
	if dev.Endpoint != "https://dev.to/api/articles" {
		t.Errorf("devto endpoint = %q", dev.Endpoint)
	}
	if dev.MaxTags != 4 {
		t.Errorf("devto max_tags default lost after file merge, got %d", dev.MaxTags)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		v := viper.New()
		SetDefaults(v)
		var c Config
		if err := v.Unmarshal(&c); err != nil {
			t.Fatal(err)
		}
		return c
	}
	port := func(p int) *int { return &p }

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, true},
		{"zero port is invalid", func(c *Config) { c.Server.Port = port(0) }, true},
		{"explicit port is valid", func(c *Config) { c.Server.Port = port(9000) }, false},
		{"zero concurrency is invalid", func(c *Config) { c.Scheduler.MaxConcurrency = 0 }, true},
		{"zero retries is valid", func(c *Config) { c.Scheduler.MaxRetries = 0 }, false},
		{"negative grace is invalid", func(c *Config) { c.Scheduler.GraceWindowMS = -1 }, true},
		{"cap below base is invalid", func(c *Config) { c.Scheduler.RetryCapMS = 1000 }, true},
		{"bad cron is invalid", func(c *Config) { c.Scheduler.Cron = "every minute" }, true},
		{"memory rate limiter is valid", func(c *Config) { c.Scheduler.RateLimiter = RateLimiterMemory }, false},
		{"unknown rate limiter", func(c *Config) { c.Scheduler.RateLimiter = "redis" }, true},
		{"redis backend needs url", func(c *Config) { c.Locks.Backend = LockBackendRedis }, true},
		{"redis backend with url", func(c *Config) {
			c.Locks.Backend = LockBackendRedis
			c.Redis.URL = "redis://localhost:6379/0"
		}, false},
		{"advisory requires postgres", func(c *Config) { c.Locks.Backend = LockBackendAdvisory }, true},
		{"lease backend needs a job timeout", func(c *Config) {
			c.Locks.Backend = LockBackendTable
			c.Scheduler.JobTimeoutSecs = 0
		}, true},
		{"lease shorter than job timeout", func(c *Config) {
			c.Locks.Backend = LockBackendTable
			c.Locks.TTLSeconds = 30
			c.Scheduler.JobTimeoutSecs = 600
		}, true},
		{"lease without margin over job timeout", func(c *Config) {
			c.Locks.Backend = LockBackendTable
			c.Locks.TTLSeconds = 130
			c.Scheduler.JobTimeoutSecs = 120
		}, true},
		{"auto on sqlite is a lease backend", func(c *Config) {
			c.Locks.TTLSeconds = 60
			c.Scheduler.JobTimeoutSecs = 120
		}, true},
		{"auto on postgres uses advisory locks", func(c *Config) {
			c.Database.Driver = DriverPostgres
			c.Locks.TTLSeconds = 60
			c.Scheduler.JobTimeoutSecs = 0
		}, false},
		{"lease with margin over job timeout", func(c *Config) {
			c.Locks.Backend = LockBackendRedis
			c.Redis.URL = "redis://localhost:6379/0"
			c.Locks.TTLSeconds = 150
			c.Scheduler.JobTimeoutSecs = 120
		}, false},
		{"negative platform limit", func(c *Config) {
			c.Platforms["devto"] = PlatformConfig{MaxTags: -1}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnvOverride(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	t.Setenv("CROSSPOST_SCHEDULER_MAX_CONCURRENCY", "7")
	t.Setenv("CROSSPOST_DATABASE_DSN", filepath.Join(t.TempDir(), "env.db"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Scheduler.MaxConcurrency != 7 {
		t.Errorf("max concurrency = %d, want 7 from env", cfg.Scheduler.MaxConcurrency)
	}
}

func TestRedacted(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{Driver: DriverPostgres, DSN: "postgres://crosspost:hunter2@db:5432/crosspost"},
		Redis:    RedisConfig{URL: "redis://:s3cret@cache:6379/0"},
	}

	r := cfg.Redacted()
	if strings.Contains(r.Database.DSN, "hunter2") || !strings.Contains(r.Database.DSN, "crosspost:xxxxx@db:5432") {
		t.Errorf("Database.DSN = %q, want password masked", r.Database.DSN)
	}
	if strings.Contains(r.Redis.URL, "s3cret") {
		t.Errorf("Redis.URL = %q, want password masked", r.Redis.URL)
	}
	if !strings.Contains(cfg.Database.DSN, "hunter2") {
		t.Error("Redacted modified the original config")
	}

	sqlite := &Config{Database: DatabaseConfig{Driver: DriverSQLite, DSN: "crosspost.db"}}
	if got := sqlite.Redacted().Database.DSN; got != "crosspost.db" {
		t.Errorf("sqlite DSN = %q, want unchanged", got)
	}
}

func TestUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crosspost.toml")
	content := `
[scheduler]
max_concurrency = 5
max_retires = 4

[platforms.devto]
endpoint = "https://dev.to/api/articles"
rate_limit = 10
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	keys, err := UnknownKeys(path)
	if err != nil {
		t.Fatalf("UnknownKeys() failed: %v", err)
	}
	want := map[string]bool{"scheduler.max_retires": true, "platforms.devto.rate_limit": true}
	if len(keys) != len(want) {
		t.Fatalf("UnknownKeys() = %v, want %d keys", keys, len(want))
	}
	for _, k := range keys {
		if !want[k] {
			t.Errorf("unexpected unknown key %q", k)
		}
	}
}
