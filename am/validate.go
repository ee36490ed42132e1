package am

import (
	"github.com/robfig/cron/v3"

	"github.com/teranos/crosspost/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return errors.Newf("database.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Database.Driver)
	}

	// Server port: 0 is invalid (omit for default), negative is invalid
	if c.Server.Port != nil && *c.Server.Port <= 0 {
		return errors.Newf("server.port must be positive, got %d (omit for default port %d)", *c.Server.Port, DefaultServerPort)
	}

	s := c.Scheduler
	if s.GraceWindowMS < 0 {
		return errors.Newf("scheduler.grace_window_ms must be >= 0, got %d", s.GraceWindowMS)
	}
	if s.MaxConcurrency <= 0 {
		return errors.Newf("scheduler.max_concurrency must be > 0, got %d", s.MaxConcurrency)
	}
	if s.MaxRetries < 0 {
		return errors.Newf("scheduler.max_retries must be >= 0, got %d", s.MaxRetries)
	}
	if s.RetryBaseMS <= 0 {
		return errors.Newf("scheduler.retry_base_ms must be > 0, got %d", s.RetryBaseMS)
	}
	if s.RetryCapMS < s.RetryBaseMS {
		return errors.Newf("scheduler.retry_cap_ms (%d) must be >= retry_base_ms (%d)", s.RetryCapMS, s.RetryBaseMS)
	}
	if s.BatchSize < 0 {
		return errors.Newf("scheduler.batch_size must be >= 0, got %d", s.BatchSize)
	}
	if s.JobTimeoutSecs < 0 {
		return errors.Newf("scheduler.job_timeout_secs must be >= 0, got %d", s.JobTimeoutSecs)
	}
	if s.Cron != "" {
		if _, err := cron.ParseStandard(s.Cron); err != nil {
			return errors.Wrapf(err, "scheduler.cron %q is not a valid schedule", s.Cron)
		}
	}

	switch s.RateLimiter {
	case RateLimiterStore, RateLimiterMemory:
	default:
		return errors.Newf("scheduler.rate_limiter must be %q or %q, got %q", RateLimiterStore, RateLimiterMemory, s.RateLimiter)
	}

	switch c.Locks.Backend {
	case LockBackendAuto, LockBackendAdvisory, LockBackendTable:
	case LockBackendRedis:
		if c.Redis.URL == "" {
			return errors.New("redis.url is required when locks.backend = \"redis\"")
		}
	default:
		return errors.Newf("locks.backend must be one of auto, advisory, table, redis; got %q", c.Locks.Backend)
	}
	if c.Locks.Backend == LockBackendAdvisory && c.Database.Driver != DriverPostgres {
		return errors.New("locks.backend = \"advisory\" requires database.driver = \"pgx\"")
	}
	if c.Locks.TTLSeconds <= 0 {
		return errors.Newf("locks.ttl_seconds must be > 0, got %d", c.Locks.TTLSeconds)
	}
	if c.usesLeaseLocks() {
		// A lease that expires while its job still runs can be taken by
		// another worker, so the job must be bounded well inside the TTL.
		if s.JobTimeoutSecs == 0 {
			return errors.Newf("scheduler.job_timeout_secs must be > 0 with locks.backend %q (leases expire)", c.Locks.Backend)
		}
		if c.Locks.TTLSeconds < s.JobTimeoutSecs+LockTTLMarginSecs {
			return errors.Newf("locks.ttl_seconds (%d) must be at least scheduler.job_timeout_secs (%d) + %d",
				c.Locks.TTLSeconds, s.JobTimeoutSecs, LockTTLMarginSecs)
		}
	}

	for name, p := range c.Platforms {
		if p.MaxTitle < 0 || p.MaxTags < 0 || p.RateLimitPerMinute < 0 || p.TimeoutSeconds < 0 {
			return errors.Newf("platforms.%s: limits must be >= 0", name)
		}
	}

	return nil
}

// usesLeaseLocks reports whether the lock backend hands out expiring
// leases (table, redis) rather than session-bound advisory locks.
func (c *Config) usesLeaseLocks() bool {
	switch c.Locks.Backend {
	case LockBackendTable, LockBackendRedis:
		return true
	case LockBackendAuto:
		return c.Database.Driver != DriverPostgres
	default:
		return false
	}
}
