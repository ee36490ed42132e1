package am

import (
	"fmt"
	"net/url"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.dsn", "crosspost.db")

	// Scheduler defaults
	v.SetDefault("scheduler.grace_window_ms", 60_000)
	v.SetDefault("scheduler.max_concurrency", 3)
	v.SetDefault("scheduler.max_retries", 3)
	v.SetDefault("scheduler.retry_base_ms", 30_000)
	v.SetDefault("scheduler.retry_cap_ms", 120_000)
	v.SetDefault("scheduler.batch_size", 0)
	v.SetDefault("scheduler.cron", "@every 1m")
	v.SetDefault("scheduler.job_timeout_secs", 120)
	v.SetDefault("scheduler.rate_limiter", RateLimiterStore)

	// Lock defaults
	v.SetDefault("locks.backend", LockBackendAuto)
	v.SetDefault("locks.ttl_seconds", 300)

	// Platform limits as documented by each platform's API
	v.SetDefault("platforms.devto.max_title", 128)
	v.SetDefault("platforms.devto.max_tags", 4)
	v.SetDefault("platforms.devto.rate_limit_per_minute", 10)
	v.SetDefault("platforms.devto.timeout_seconds", 30)
	v.SetDefault("platforms.hashnode.max_title", 250)
	v.SetDefault("platforms.hashnode.max_tags", 5)
	v.SetDefault("platforms.hashnode.rate_limit_per_minute", 30)
	v.SetDefault("platforms.hashnode.timeout_seconds", 30)
	v.SetDefault("platforms.medium.max_title", 100)
	v.SetDefault("platforms.medium.max_tags", 5)
	v.SetDefault("platforms.medium.rate_limit_per_minute", 15)
	v.SetDefault("platforms.medium.timeout_seconds", 30)

	// Log defaults
	v.SetDefault("log.json", false)
	v.SetDefault("log.level", "info")
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("database.dsn", "CROSSPOST_DATABASE_DSN", "DATABASE_URL")
	v.BindEnv("redis.url", "CROSSPOST_REDIS_URL", "REDIS_URL")
}

// GetServerPort returns the configured port or DefaultServerPort
func (c *Config) GetServerPort() int {
	if c.Server.Port == nil {
		return DefaultServerPort
	}
	return *c.Server.Port
}

// GetBatchSize returns the number of due jobs fetched per pass
func (c *Config) GetBatchSize() int {
	if c.Scheduler.BatchSize <= 0 {
		return c.Scheduler.MaxConcurrency
	}
	return c.Scheduler.BatchSize
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Locks: %s, Scheduler: {MaxConcurrency: %d, MaxRetries: %d}}",
		c.Database.Driver, c.Locks.Backend, c.Scheduler.MaxConcurrency, c.Scheduler.MaxRetries)
}

// Redacted returns a copy safe to print: passwords in the database DSN and
// redis URL are masked.
func (c *Config) Redacted() *Config {
	out := *c
	out.Database.DSN = maskURLPassword(c.Database.DSN)
	out.Redis.URL = maskURLPassword(c.Redis.URL)
	return &out
}

func maskURLPassword(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
