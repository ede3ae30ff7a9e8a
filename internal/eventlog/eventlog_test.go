package eventlog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	log, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return log
}

func TestAppendAndAggregate(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	events := []Event{
		{RequestID: "req-ok-1", Route: "/generate", StatusCode: 200, CacheStatus: "miss",
			DurationMS: 120, PromptTokens: 100, OutputTokens: 400, TotalTokens: 500, CreatedAt: base},
		{RequestID: "req-ok-2", Route: "/generate", StatusCode: 200, CacheStatus: "hit",
			DurationMS: 15, TotalTokens: 0, CreatedAt: base.Add(time.Minute)},
		{RequestID: "req-bad-1", Route: "/generate", StatusCode: 500, ErrorCode: "PROVIDER_FAILED",
			DurationMS: 2000, CreatedAt: base.Add(2 * time.Minute)},
		{RequestID: "req-bad-2", Route: "/generate", StatusCode: 500, ErrorCode: "PROVIDER_FAILED",
			DurationMS: 2100, CreatedAt: base.Add(3 * time.Minute)},
		{RequestID: "req-bad-3", Route: "/generate", StatusCode: 500, ErrorCode: "EVAL_LINT_FAILED",
			DurationMS: 900, CreatedAt: base.Add(4 * time.Minute)},
	}
	for _, e := range events {
		require.NoError(t, log.Append(ctx, e))
	}

	stats, err := log.AggregateWindow(ctx, base, base.Add(10*time.Minute))
	require.NoError(t, err)

	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 3, stats.Failures)
	assert.Equal(t, int64(500), stats.TotalTokens)
	assert.InDelta(t, 100.0, stats.AvgTotalTokens, 0.001)

	require.NotEmpty(t, stats.TopErrorCodes)
	assert.Equal(t, ErrorCount{Code: "PROVIDER_FAILED", Count: 2}, stats.TopErrorCodes[0])
	assert.Equal(t, ErrorCount{Code: "EVAL_LINT_FAILED", Count: 1}, stats.TopErrorCodes[1])

	// Failed request ids lead the sample list.
	require.GreaterOrEqual(t, len(stats.SampleRequestIDs), 3)
	assert.Equal(t, []string{"req-bad-1", "req-bad-2", "req-bad-3"}, stats.SampleRequestIDs[:3])
}

func TestAggregateWindowBoundsExclusive(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, log.Append(ctx, Event{RequestID: "before", Route: "/generate", StatusCode: 200, CreatedAt: base.Add(-time.Second)}))
	require.NoError(t, log.Append(ctx, Event{RequestID: "inside", Route: "/generate", StatusCode: 200, CreatedAt: base}))
	require.NoError(t, log.Append(ctx, Event{RequestID: "at-end", Route: "/generate", StatusCode: 200, CreatedAt: base.Add(time.Hour)}))

	stats, err := log.AggregateWindow(ctx, base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, []string{"inside"}, stats.SampleRequestIDs)
}

func TestAggregateEmptyWindow(t *testing.T) {
	log := openTestLog(t)
	stats, err := log.AggregateWindow(context.Background(), time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
	assert.Equal(t, int64(0), stats.P95DurationMS)
	assert.Empty(t, stats.TopErrorCodes)
	assert.Empty(t, stats.SampleRequestIDs)
}

func TestSamplesCapped(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 25; i++ {
		require.NoError(t, log.Append(ctx, Event{
			RequestID:  fmt.Sprintf("req-%02d", i),
			Route:      "/generate",
			StatusCode: 500,
			ErrorCode:  "PROVIDER_FAILED",
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		}))
	}

	stats, err := log.AggregateWindow(ctx, base, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, stats.SampleRequestIDs, maxSamples)
}

func TestPercentileNearestRank(t *testing.T) {
	values := make([]int64, 100)
	for i := range values {
		values[i] = int64(i + 1)
	}
	assert.Equal(t, int64(96), percentile(values, 0.95))
	assert.Equal(t, int64(42), percentile([]int64{42}, 0.95))
	assert.Equal(t, int64(0), percentile(nil, 0.95))
}
