package publish

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/crosspost/errors"
	"github.com/teranos/crosspost/logger"
	"github.com/teranos/crosspost/pulse/budget"
	"github.com/teranos/crosspost/pulse/retry"
	"github.com/teranos/crosspost/pulse/schedule"
)

// PlatformResult is the outcome of one platform within a run.
type PlatformResult struct {
	Platform string
	Success  bool
	Skipped  bool // already published by an earlier run, no call was made
	PostID   string
	URL      string
	Err      error
}

// Outcome is the classified result of running one job.
type Outcome struct {
	Status  string // schedule.StatusPublished, StatusPartial or StatusFailed
	Results []PlatformResult
	Err     error // nil when published
}

// Failed returns the platforms that did not succeed.
func (o *Outcome) Failed() []string {
	var out []string
	for _, r := range o.Results {
		if !r.Success {
			out = append(out, r.Platform)
		}
	}
	return out
}

// AttemptObserver is told about every publish call that was made.
type AttemptObserver interface {
	ObserveAttempt(ctx context.Context, platform string, success bool, code retry.ErrorCode)
}

// Orchestrator runs the publish step of a job: preconditions, per-platform
// mapping and rate limiting, publish calls, attempt records.
type Orchestrator struct {
	drafts       DraftStore
	integrations IntegrationStore
	records      *RecordStore
	registry     *Registry
	gate         budget.Gate
	limits       map[string]Limits
	observer     AttemptObserver
	logger       *zap.SugaredLogger
	timeNow      func() time.Time
}

// NewOrchestrator wires an orchestrator. gate and limits may be nil.
func NewOrchestrator(drafts DraftStore, integrations IntegrationStore, records *RecordStore, registry *Registry, gate budget.Gate, limits map[string]Limits, log *zap.SugaredLogger) *Orchestrator {
	if log == nil {
		log = logger.Logger
	}
	return &Orchestrator{
		drafts:       drafts,
		integrations: integrations,
		records:      records,
		registry:     registry,
		gate:         gate,
		limits:       limits,
		logger:       log,
		timeNow:      time.Now,
	}
}

// SetObserver registers obs for publish attempts.
func (o *Orchestrator) SetObserver(obs AttemptObserver) {
	o.observer = obs
}

// Run publishes job.DraftID to every platform of the job that does not
// already have a success record. Precondition failures (missing draft,
// unconnected or unsupported platforms) come back as a failed Outcome
// before any publish call. A returned error means the stores could not be
// used and nothing about the job's state is known.
func (o *Orchestrator) Run(ctx context.Context, job *schedule.Job) (*Outcome, error) {
	platforms := schedule.NormalizePlatforms(job.Platforms)
	log := logger.FromContext(ctx, o.logger).With(
		logger.FieldDraftID, job.DraftID,
		logger.FieldFingerprint, job.Fingerprint(),
	)

	draft, err := o.drafts.GetDraft(ctx, job.DraftID)
	if errors.IsNotFoundError(err) {
		return fatal(err), nil
	}
	if err != nil {
		return nil, err
	}
	if draft.UserID != job.UserID {
		return fatal(errors.NewInvalidRequestError("draft %s does not belong to user %s", draft.ID, job.UserID)), nil
	}

	connected, err := o.integrations.GetConnected(ctx, job.UserID, platforms)
	if err != nil {
		return nil, err
	}
	creds := make(map[string]Credentials, len(connected))
	for _, in := range connected {
		creds[in.Platform] = in.Credentials
	}
	var missing, unsupported []string
	for _, p := range platforms {
		if _, ok := creds[p]; !ok {
			missing = append(missing, p)
		}
		if o.registry.Get(p) == nil {
			unsupported = append(unsupported, p)
		}
	}
	if len(missing) > 0 {
		return fatal(errors.NewNotConnectedError(missing)), nil
	}
	if len(unsupported) > 0 {
		return fatal(errors.Wrapf(errors.ErrUnsupportedPlatform, "no publisher for %s", strings.Join(unsupported, ", "))), nil
	}

	done, err := o.records.SuccessfulPlatforms(ctx, job.DraftID, platforms)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{}
	for _, p := range platforms {
		if rec := done[p]; rec != nil {
			log.Debugw("Platform already published, skipping", logger.FieldPlatform, p, logger.FieldPostID, rec.PlatformPostID)
			outcome.Results = append(outcome.Results, PlatformResult{
				Platform: p, Success: true, Skipped: true, PostID: rec.PlatformPostID, URL: rec.PlatformURL,
			})
			continue
		}

		res, err := o.publishOne(ctx, job, draft, p, creds[p])
		if err != nil {
			return nil, err
		}
		if res.Success {
			log.Infow("Published", logger.FieldPlatform, p, logger.FieldPostID, res.PostID)
		} else {
			log.Warnw("Publish failed", logger.FieldPlatform, p, logger.FieldError, retry.RedactError(res.Err))
		}
		outcome.Results = append(outcome.Results, *res)
	}

	classify(outcome)
	return outcome, nil
}

// publishOne runs mapping, the rate gate and the publish call for one
// platform. A call that reached the platform leaves a success or failed
// record; a refusal before the call leaves a rejected one. The returned
// error is reserved for record persistence failures.
func (o *Orchestrator) publishOne(ctx context.Context, job *schedule.Job, draft *Draft, platform string, creds Credentials) (*PlatformResult, error) {
	result := &PlatformResult{Platform: platform}

	if err := ctx.Err(); err != nil {
		return o.reject(ctx, job, result, err)
	}

	content, err := MapContent(draft, o.limits[platform])
	if err != nil {
		return o.reject(ctx, job, result, err)
	}

	if o.gate != nil {
		if err := o.gate.Allow(ctx, platform); err != nil {
			if !errors.Is(err, errors.ErrRateLimited) {
				// The shared counter is unreachable; the call may well
				// succeed later, so keep the job retryable.
				err = errors.Mark(err, errors.ErrServiceUnavailable)
			}
			return o.reject(ctx, job, result, err)
		}
	}

	pub := o.registry.Get(platform)
	callCtx, cancel := detachCall(ctx)
	res, err := pub.Publish(callCtx, content, creds)
	cancel()
	if err == nil && res == nil {
		err = errors.Newf("%s publisher returned no result", platform)
	}

	rec := &Record{
		DraftID:        job.DraftID,
		JobID:          job.ID,
		JobFingerprint: job.Fingerprint(),
		Platform:       platform,
		AttemptedAt:    o.timeNow(),
	}
	class := retry.Classification{}
	if err != nil {
		class = retry.Classify(err)
		rec.Status = RecordFailed
		rec.ErrorMessage = retry.RedactError(err)
		rec.ErrorCode = string(class.Code)
		result.Err = err
	} else {
		rec.Status = RecordSuccess
		rec.PlatformPostID = res.PostID
		rec.PlatformURL = res.URL
		result.Success = true
		result.PostID = res.PostID
		result.URL = res.URL
	}

	if o.observer != nil {
		o.observer.ObserveAttempt(ctx, platform, result.Success, class.Code)
	}

	// The call happened; record it even if ctx was cancelled meanwhile.
	if err := o.records.Insert(context.WithoutCancel(ctx), rec); err != nil {
		if result.Success && errors.Is(err, errors.ErrConflict) {
			// Another run recorded a success for this platform first.
			return result, nil
		}
		return nil, errors.WithDetailf(err, "Platform %s was called; its result could not be recorded", platform)
	}
	return result, nil
}

// reject records that result.Platform was refused with cause before any
// call was made.
func (o *Orchestrator) reject(ctx context.Context, job *schedule.Job, result *PlatformResult, cause error) (*PlatformResult, error) {
	result.Err = cause
	rec := &Record{
		DraftID:        job.DraftID,
		JobID:          job.ID,
		JobFingerprint: job.Fingerprint(),
		Platform:       result.Platform,
		Status:         RecordRejected,
		ErrorMessage:   retry.RedactError(cause),
		ErrorCode:      string(retry.Classify(cause).Code),
		AttemptedAt:    o.timeNow(),
	}
	if err := o.records.Insert(context.WithoutCancel(ctx), rec); err != nil {
		return nil, errors.Wrapf(err, "failed to record rejected publish to %s", result.Platform)
	}
	return result, nil
}

// detachCall returns the context for one publish call. Once issued, a call
// is not aborted by cancellation of the pass; it keeps ctx's deadline (the
// per-job timeout) and values.
func detachCall(ctx context.Context) (context.Context, context.CancelFunc) {
	callCtx := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(callCtx, deadline)
	}
	return callCtx, func() {}
}

func classify(o *Outcome) {
	var failures []PlatformResult
	for _, r := range o.Results {
		if !r.Success {
			failures = append(failures, r)
		}
	}
	switch {
	case len(failures) == 0:
		o.Status = schedule.StatusPublished
	case len(failures) == len(o.Results):
		o.Status = schedule.StatusFailed
		o.Err = &PlatformErrors{Failures: failures}
	default:
		o.Status = schedule.StatusPartial
		o.Err = &PlatformErrors{Failures: failures}
	}
}

func fatal(err error) *Outcome {
	return &Outcome{Status: schedule.StatusFailed, Err: err}
}

// PlatformErrors aggregates the failed platforms of one run. It is
// retryable only when every failure is.
type PlatformErrors struct {
	Failures []PlatformResult
}

func (e *PlatformErrors) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.Platform + ": " + f.Err.Error()
	}
	return strings.Join(parts, "; ")
}

// Unwrap exposes the individual platform errors.
func (e *PlatformErrors) Unwrap() []error {
	out := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		out[i] = f.Err
	}
	return out
}

// Classification implements retry.Classifier. The code is that of the
// first failure deciding the outcome: the first fatal one if any,
// otherwise the first.
func (e *PlatformErrors) Classification() retry.Classification {
	if len(e.Failures) == 0 {
		return retry.Classification{Code: retry.CodeUnknown}
	}
	first := retry.Classify(e.Failures[0].Err)
	for _, f := range e.Failures {
		if c := retry.Classify(f.Err); !c.Retryable {
			return c
		}
	}
	return first
}
