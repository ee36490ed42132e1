package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectSums(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	return sums
}

func TestMetrics_RecordedDuringPass(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { mp.Shutdown(context.Background()) })

	e := newEnv(t)
	e.addJob(t, "j1", "devto", "hashnode")
	e.addJob(t, "j2", "devto")
	e.hashnode.setErr(statusErr(500))

	p := e.processor(t, nil, Config{})
	p.SetMetrics(NewMetrics(mp))

	s := p.ProcessDueJobs(context.Background())
	assert.Equal(t, 2, s.Processed)

	sums := collectSums(t, reader)
	assert.Equal(t, int64(2), sums["crosspost.job.outcomes"])
	assert.Equal(t, int64(3), sums["crosspost.publish.attempts"])
}

func TestMetrics_NilProviderIsNoop(t *testing.T) {
	m := NewMetrics(nil)
	assert.NotPanics(t, func() {
		m.RecordBatch(context.Background(), 3)
		m.ObserveAttempt(context.Background(), "devto", false, "server_error")
	})
}
