package am

// Config represents the crosspost configuration
type Config struct {
	Database  DatabaseConfig            `mapstructure:"database" toml:"database"`
	Redis     RedisConfig               `mapstructure:"redis" toml:"redis"`
	Scheduler SchedulerConfig           `mapstructure:"scheduler" toml:"scheduler"`
	Locks     LocksConfig               `mapstructure:"locks" toml:"locks"`
	Platforms map[string]PlatformConfig `mapstructure:"platforms" toml:"platforms"`
	Server    ServerConfig              `mapstructure:"server" toml:"server"`
	Log       LogConfig                 `mapstructure:"log" toml:"log"`
}

// DatabaseConfig selects the SQL driver and data source.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" toml:"driver"` // "sqlite3" or "pgx"
	DSN    string `mapstructure:"dsn" toml:"dsn"`       // file path for sqlite3, postgres URL for pgx
}

// RedisConfig is only read when locks.backend = "redis"
type RedisConfig struct {
	URL string `mapstructure:"url" toml:"url"` // e.g. "redis://localhost:6379/0"
}

// SchedulerConfig configures one processing pass of the publishing engine
type SchedulerConfig struct {
	GraceWindowMS  int    `mapstructure:"grace_window_ms" toml:"grace_window_ms"`   // a job is due once scheduled_at <= now - grace
	MaxConcurrency int    `mapstructure:"max_concurrency" toml:"max_concurrency"`   // jobs processed in parallel per pass
	MaxRetries     int    `mapstructure:"max_retries" toml:"max_retries"`           // retryable failures before a job is failed
	RetryBaseMS    int    `mapstructure:"retry_base_ms" toml:"retry_base_ms"`       // first backoff step
	RetryCapMS     int    `mapstructure:"retry_cap_ms" toml:"retry_cap_ms"`         // backoff ceiling
	BatchSize      int    `mapstructure:"batch_size" toml:"batch_size"`             // due jobs fetched per pass (0 = max_concurrency)
	Cron           string `mapstructure:"cron" toml:"cron"`                         // trigger spec for `crosspost serve`
	JobTimeoutSecs int    `mapstructure:"job_timeout_secs" toml:"job_timeout_secs"` // per-job deadline (0 = none)
	RateLimiter    string `mapstructure:"rate_limiter" toml:"rate_limiter"`         // "store" counts attempt records, "memory" is per-process
}

// LocksConfig selects the per-job lock backend
type LocksConfig struct {
	Backend    string `mapstructure:"backend" toml:"backend"`         // auto, advisory, table, redis
	TTLSeconds int    `mapstructure:"ttl_seconds" toml:"ttl_seconds"` // lease lifetime for table and redis backends
}

// PlatformConfig configures the HTTP publisher for one platform
type PlatformConfig struct {
	Endpoint           string `mapstructure:"endpoint" toml:"endpoint"`
	MaxTitle           int    `mapstructure:"max_title" toml:"max_title"`                         // 0 = unlimited
	MaxTags            int    `mapstructure:"max_tags" toml:"max_tags"`                           // 0 = unlimited
	RateLimitPerMinute int    `mapstructure:"rate_limit_per_minute" toml:"rate_limit_per_minute"` // shared across instances, 0 = unlimited
	TimeoutSeconds     int    `mapstructure:"timeout_seconds" toml:"timeout_seconds"`
}

// ServerConfig configures the HTTP trigger server
type ServerConfig struct {
	Port *int `mapstructure:"port" toml:"port,omitempty"` // nil = DefaultServerPort, 0 is invalid
}

// LogConfig configures the global logger
type LogConfig struct {
	JSON  bool   `mapstructure:"json" toml:"json"`
	Level string `mapstructure:"level" toml:"level"`
}

// DefaultServerPort is used when server.port is omitted
const DefaultServerPort = 8787

// Lock backends
const (
	LockBackendAuto     = "auto"
	LockBackendAdvisory = "advisory"
	LockBackendTable    = "table"
	LockBackendRedis    = "redis"
)

// LockTTLMarginSecs is the minimum headroom of a lease TTL over the job
// timeout. It covers the store reads before publishing and the writes
// after.
const LockTTLMarginSecs = 30

// Platform rate limiter backends
const (
	RateLimiterStore  = "store"
	RateLimiterMemory = "memory"
)

// Database drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// File system constants
const (
	DefaultDirPermissions = 0755
)
