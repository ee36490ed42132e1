package commands

import (
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/teranos/crosspost/am"
	"github.com/teranos/crosspost/db"
	"github.com/teranos/crosspost/errors"
	"github.com/teranos/crosspost/logger"
	"github.com/teranos/crosspost/publish"
	"github.com/teranos/crosspost/publish/httppub"
	"github.com/teranos/crosspost/pulse/budget"
	"github.com/teranos/crosspost/pulse/engine"
	"github.com/teranos/crosspost/pulse/lock"
	"github.com/teranos/crosspost/pulse/schedule"
)

// loadConfig honours --config, falling back to the config cascade.
func loadConfig(cmd *cobra.Command) (*am.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		return am.LoadFromFile(path)
	}
	return am.Load()
}

// InitLogging sets up the global logger from flags, then config. An
// explicit -v wins over log.level.
func InitLogging(cmd *cobra.Command) error {
	verbosity, _ := cmd.Flags().GetCount("verbose")
	jsonLogs, _ := cmd.Flags().GetBool("log-json")

	if cfg, err := loadConfig(cmd); err == nil {
		if verbosity == 0 {
			verbosity = logger.ParseLevel(cfg.Log.Level)
		}
		jsonLogs = jsonLogs || cfg.Log.JSON
	}

	if err := logger.Initialize(jsonLogs, verbosity); err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}
	return nil
}

// app holds the wired engine and its stores for one command invocation.
type app struct {
	cfg       *am.Config
	db        *db.Handle
	rdb       *redis.Client
	jobs      *schedule.Store
	records   *publish.RecordStore
	processor *engine.Processor
}

// openDatabase opens and migrates the configured database.
func openDatabase(cfg *am.Config) (*db.Handle, error) {
	h, err := db.OpenWithMigrations(cfg.Database.Driver, cfg.Database.DSN, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s database", cfg.Database.Driver)
	}
	return h, nil
}

// openStores opens the database without building the engine, for the
// read and admin commands.
func openStores(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	h, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:     cfg,
		db:      h,
		jobs:    schedule.NewStore(h),
		records: publish.NewRecordStore(h),
	}, nil
}

// openApp wires the full engine: stores, lock backend, shared rate limit
// gate, platform publishers, orchestrator and processor.
func openApp(cmd *cobra.Command) (*app, error) {
	a, err := openStores(cmd)
	if err != nil {
		return nil, err
	}
	log := logger.Logger

	if a.cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(a.cfg.Redis.URL)
		if err != nil {
			a.Close()
			return nil, errors.Wrap(err, "invalid redis.url")
		}
		a.rdb = redis.NewClient(opts)
	}

	var rdb redis.UniversalClient
	if a.rdb != nil {
		rdb = a.rdb
	}
	locker, err := lock.New(a.cfg.Locks, a.db, rdb, log)
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "failed to create job locker")
	}

	registry, err := httppub.NewRegistry(a.cfg.Platforms)
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "failed to configure publishers")
	}

	rateLimits := make(map[string]int, len(a.cfg.Platforms))
	contentLimits := make(map[string]publish.Limits, len(a.cfg.Platforms))
	for name, pc := range a.cfg.Platforms {
		rateLimits[name] = pc.RateLimitPerMinute
		contentLimits[name] = publish.Limits{MaxTitle: pc.MaxTitle, MaxTags: pc.MaxTags}
	}
	var gate budget.Gate = budget.NewStoreGate(budget.NewStore(a.db), rateLimits)
	if a.cfg.Scheduler.RateLimiter == am.RateLimiterMemory {
		gate = budget.NewMemoryGate(rateLimits)
	}

	orch := publish.NewOrchestrator(
		publish.NewDraftStore(a.db),
		publish.NewIntegrationStore(a.db),
		a.records,
		registry,
		gate,
		contentLimits,
		log,
	)

	a.processor = engine.NewProcessor(
		a.jobs,
		locker,
		publish.NewChecker(a.records),
		orch,
		engine.ConfigFromAM(a.cfg.Scheduler),
		log,
	)
	a.processor.SetMetrics(engine.NewMetrics(otel.GetMeterProvider()))

	log.Debugw("Engine wired",
		"driver", a.cfg.Database.Driver,
		"lock_backend", a.cfg.Locks.Backend,
		logger.FieldPlatforms, registry.Platforms())
	return a, nil
}

// Close releases the database and redis connections.
func (a *app) Close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
