// Package engine runs processing passes: find due jobs, publish each under
// a per-job lock, then reschedule or settle it. The engine has no timer of
// its own; every pass is started by an external trigger (HTTP, CLI, cron)
// and all state between passes lives in the stores.
package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teranos/crosspost/am"
	"github.com/teranos/crosspost/errors"
	"github.com/teranos/crosspost/logger"
	"github.com/teranos/crosspost/publish"
	"github.com/teranos/crosspost/pulse/lock"
	"github.com/teranos/crosspost/pulse/retry"
	"github.com/teranos/crosspost/pulse/schedule"
)

const (
	// DefaultMaxConcurrency is the number of jobs processed at once per pass
	DefaultMaxConcurrency = 3

	// releaseTimeout bounds lock release and final store writes, which run
	// even after the pass context is cancelled.
	releaseTimeout = 5 * time.Second
)

// Job outcomes as reported in metrics and logs
const (
	OutcomePublished = "published"
	OutcomePartial   = "partial"
	OutcomeRetry     = "retry"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
	OutcomeError     = "error"
)

// Summary is the result of one processing pass.
type Summary struct {
	Processed  int      `json:"processed"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Partial    int      `json:"partial"`
	Skipped    int      `json:"skipped"`
	Errors     []string `json:"errors"`
}

// Runner publishes one job. *publish.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, job *schedule.Job) (*publish.Outcome, error)
}

// Config tunes a Processor.
type Config struct {
	GraceWindow    time.Duration
	MaxConcurrency int
	BatchSize      int           // due jobs per pass, 0 = MaxConcurrency
	JobTimeout     time.Duration // per job, 0 = none
	Policy         retry.Policy
}

// ConfigFromAM converts scheduler configuration.
func ConfigFromAM(c am.SchedulerConfig) Config {
	return Config{
		GraceWindow:    time.Duration(c.GraceWindowMS) * time.Millisecond,
		MaxConcurrency: c.MaxConcurrency,
		BatchSize:      c.BatchSize,
		JobTimeout:     time.Duration(c.JobTimeoutSecs) * time.Second,
		Policy: retry.NewPolicy(
			time.Duration(c.RetryBaseMS)*time.Millisecond,
			time.Duration(c.RetryCapMS)*time.Millisecond,
			c.MaxRetries,
		),
	}
}

// Processor runs processing passes. It keeps no state between passes and
// is safe to run concurrently, in this process or others.
type Processor struct {
	store   *schedule.Store
	finder  *schedule.Finder
	locker  lock.Locker
	checker *publish.Checker
	runner  Runner
	cfg     Config
	metrics *Metrics
	logger  *zap.SugaredLogger
	timeNow func() time.Time
}

// NewProcessor wires a processor.
func NewProcessor(store *schedule.Store, locker lock.Locker, checker *publish.Checker, runner Runner, cfg Config, log *zap.SugaredLogger) *Processor {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = cfg.MaxConcurrency
	}
	if cfg.Policy.Base == 0 {
		cfg.Policy = retry.DefaultPolicy()
	}
	if log == nil {
		log = logger.Logger
	}
	return &Processor{
		store:   store,
		finder:  schedule.NewFinder(store, cfg.GraceWindow, cfg.BatchSize),
		locker:  locker,
		checker: checker,
		runner:  runner,
		cfg:     cfg,
		metrics: NewMetrics(nil),
		logger:  log.Named("pulse.engine"),
		timeNow: time.Now,
	}
}

// SetMetrics replaces the no-op instruments. A runner that accepts an
// attempt observer reports its publish calls to m as well.
func (p *Processor) SetMetrics(m *Metrics) {
	p.metrics = m
	if r, ok := p.runner.(interface{ SetObserver(publish.AttemptObserver) }); ok {
		r.SetObserver(m)
	}
}

// jobResult is what one job contributes to the summary.
type jobResult struct {
	outcome string
	err     error
}

// ProcessDueJobs runs one pass. It never fails as a whole for a per-job
// problem; those are reported in Summary.Errors. Only a failure to query
// due jobs ends the pass early, as the single error.
func (p *Processor) ProcessDueJobs(ctx context.Context) Summary {
	summary := Summary{Errors: []string{}}

	jobs, err := p.finder.FindDue(ctx, p.timeNow().UTC())
	if err != nil {
		p.logger.Errorw("Failed to find due jobs", logger.FieldError, retry.RedactError(err))
		summary.Errors = append(summary.Errors, retry.RedactError(err))
		return summary
	}
	p.metrics.RecordBatch(ctx, len(jobs))
	if len(jobs) == 0 {
		return summary
	}
	p.logger.Infow("Processing due jobs", logger.FieldCount, len(jobs))

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(p.cfg.MaxConcurrency)
	for _, job := range jobs {
		g.Go(func() error {
			res := p.safeProcess(ctx, job)

			mu.Lock()
			defer mu.Unlock()
			summary.add(job.ID, res)
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Infow("Processing pass finished",
		"processed", summary.Processed,
		"successful", summary.Successful,
		"failed", summary.Failed,
		"partial", summary.Partial,
		"skipped", summary.Skipped,
		"errors", len(summary.Errors))
	return summary
}

func (s *Summary) add(jobID string, res jobResult) {
	switch res.outcome {
	case OutcomePublished:
		s.Processed++
		s.Successful++
	case OutcomePartial:
		s.Processed++
		s.Partial++
	case OutcomeRetry, OutcomeFailed:
		s.Processed++
		s.Failed++
	case OutcomeSkipped:
		s.Skipped++
	}
	if res.err != nil {
		s.Errors = append(s.Errors, fmt.Sprintf("job %s: %s", jobID, retry.RedactError(res.err)))
	}
}

// safeProcess keeps a panicking job from taking the pass down.
func (p *Processor) safeProcess(ctx context.Context, job *schedule.Job) (res jobResult) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorw("Job panicked", logger.FieldJobID, job.ID, "panic", r, "stack", string(debug.Stack()))
			res = jobResult{outcome: OutcomeError, err: errors.Newf("panic: %v", r)}
		}
	}()
	return p.processJob(ctx, job)
}

func (p *Processor) processJob(ctx context.Context, found *schedule.Job) jobResult {
	ctx = logger.WithJobID(ctx, found.ID)
	log := logger.FromContext(ctx, p.logger)

	lease, held, err := p.locker.Acquire(ctx, found.ID)
	if err != nil {
		log.Warnw("Lock backend error, skipping job", logger.FieldError, retry.RedactError(err))
		return jobResult{outcome: OutcomeSkipped, err: errors.Wrap(err, "lock")}
	}
	if !held {
		log.Debugw("Job locked elsewhere, skipping")
		return jobResult{outcome: OutcomeSkipped}
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			log.Warnw("Failed to release job lock", logger.FieldError, retry.RedactError(err))
		}
	}()

	start := p.timeNow()
	res := p.processLocked(ctx, found.ID, log)
	p.metrics.RecordJob(ctx, res.outcome, p.timeNow().Sub(start))
	return res
}

// processLocked runs with the job lock held.
func (p *Processor) processLocked(ctx context.Context, jobID string, log *zap.SugaredLogger) jobResult {
	// The row may have changed between the find and the lock.
	job, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		return jobResult{outcome: OutcomeError, err: err}
	}
	now := p.timeNow().UTC()
	if job.Status != schedule.StatusPending || !retry.IsDue(job.ScheduledAt, now, p.cfg.GraceWindow) {
		log.Debugw("Job no longer due, skipping", logger.FieldStatus, job.Status)
		return jobResult{outcome: OutcomeSkipped}
	}
	log = log.With(logger.FieldDraftID, job.DraftID, logger.FieldFingerprint, job.Fingerprint())

	done, err := p.checker.AlreadySatisfied(ctx, job.DraftID, job.Platforms)
	if err != nil {
		return jobResult{outcome: OutcomeError, err: err}
	}
	if done {
		log.Infow("Every platform already published, settling job")
		p.markPublished(job, now)
		return p.save(ctx, job, OutcomePublished)
	}

	runCtx := ctx
	if p.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.cfg.JobTimeout)
		defer cancel()
	}
	outcome, err := p.runner.Run(runCtx, job)
	if err != nil {
		log.Errorw("Publish step failed", logger.FieldError, retry.RedactError(err))
		return jobResult{outcome: OutcomeError, err: err}
	}

	now = p.timeNow().UTC()
	switch outcome.Status {
	case schedule.StatusPublished:
		p.markPublished(job, now)
		log.Infow("Job published", logger.FieldPlatforms, job.Platforms)
		return p.save(ctx, job, OutcomePublished)

	case schedule.StatusPartial:
		job.Status = schedule.StatusPartial
		job.PublishedAt = &now
		job.ErrorMessage = retry.Redact(fmt.Sprintf("failed platforms %v: %s", outcome.Failed(), outcome.Err))
		log.Warnw("Job partially published", "failed_platforms", outcome.Failed())
		return p.save(ctx, job, OutcomePartial)

	default:
		d := p.cfg.Policy.Decide(outcome.Err, job.RetryCount, now)
		job.RetryCount = d.RetryCount
		job.ErrorMessage = d.Message
		if d.Retry {
			job.ScheduledAt = d.NextAttemptAt
			log.Warnw("Job failed, retry scheduled",
				logger.FieldRetryCount, d.RetryCount,
				logger.FieldNextRunAt, d.NextAttemptAt,
				logger.FieldErrorCode, d.Classification.Code,
				logger.FieldError, d.Message)
			return p.save(ctx, job, OutcomeRetry)
		}
		job.Status = schedule.StatusFailed
		log.Errorw("Job failed",
			logger.FieldRetryCount, d.RetryCount,
			logger.FieldErrorCode, d.Classification.Code,
			logger.FieldError, d.Message)
		return p.save(ctx, job, OutcomeFailed)
	}
}

func (p *Processor) markPublished(job *schedule.Job, now time.Time) {
	job.Status = schedule.StatusPublished
	job.PublishedAt = &now
	job.RetryCount = 0
	job.ErrorMessage = ""
}

// save writes the job even when ctx was cancelled during publishing, so
// the outcome of calls that were made is not lost.
func (p *Processor) save(ctx context.Context, job *schedule.Job, outcome string) jobResult {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := p.store.UpdateJob(saveCtx, job); err != nil {
		return jobResult{outcome: OutcomeError, err: err}
	}
	return jobResult{outcome: outcome}
}
