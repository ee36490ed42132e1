package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/teranos/crosspost/pulse/retry"
)

// MeterName is the instrumentation scope of the engine's instruments.
const MeterName = "github.com/teranos/crosspost/pulse/engine"

// Metrics holds the engine's metric instruments.
type Metrics struct {
	jobOutcomes     metric.Int64Counter
	publishAttempts metric.Int64Counter
	jobDuration     metric.Float64Histogram
	batchSize       metric.Int64Histogram
}

// NewMetrics creates the instruments on mp. A nil mp yields no-op
// instruments.
func NewMetrics(mp metric.MeterProvider) *Metrics {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	meter := mp.Meter(MeterName)
	m := &Metrics{}

	var err error
	m.jobOutcomes, err = meter.Int64Counter(
		"crosspost.job.outcomes",
		metric.WithDescription("Jobs handled per processing pass, by outcome"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		m.jobOutcomes, _ = meter.Int64Counter("crosspost.job.outcomes")
	}

	m.publishAttempts, err = meter.Int64Counter(
		"crosspost.publish.attempts",
		metric.WithDescription("Publish calls made to platforms"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		m.publishAttempts, _ = meter.Int64Counter("crosspost.publish.attempts")
	}

	m.jobDuration, err = meter.Float64Histogram(
		"crosspost.job.duration",
		metric.WithDescription("Time from lock acquisition to lock release"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		m.jobDuration, _ = meter.Float64Histogram("crosspost.job.duration")
	}

	m.batchSize, err = meter.Int64Histogram(
		"crosspost.batch.size",
		metric.WithDescription("Due jobs found per processing pass"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		m.batchSize, _ = meter.Int64Histogram("crosspost.batch.size")
	}

	return m
}

// RecordJob records the outcome of one job.
func (m *Metrics) RecordJob(ctx context.Context, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.jobOutcomes.Add(ctx, 1, attrs)
	m.jobDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordBatch records how many due jobs a pass found.
func (m *Metrics) RecordBatch(ctx context.Context, size int) {
	m.batchSize.Record(ctx, int64(size))
}

// ObserveAttempt implements publish.AttemptObserver.
func (m *Metrics) ObserveAttempt(ctx context.Context, platform string, success bool, code retry.ErrorCode) {
	result := "success"
	if !success {
		result = string(code)
	}
	m.publishAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("platform", platform),
		attribute.String("result", result),
	))
}
