package ops

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sungjin9288/DecisionDoc-AI/internal/eventlog"
)

func newTestDedup(start time.Time) (*DedupStore, *time.Time) {
	clock := start
	d := NewDedupStore(NewMemoryKV())
	d.now = func() time.Time { return clock }
	return d, &clock
}

func testEntry(runID string) IndexEntry {
	return IndexEntry{
		IncidentKey: "inc-abc123def456",
		RunID:       runID,
		Stage:       "generate",
		Window:      "60m",
		Reason:      "provider error rate high",
	}
}

func TestAcquireFreshThenDeduped(t *testing.T) {
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	d, clock := newTestDedup(start)
	ctx := context.Background()
	ttl := 5 * time.Minute

	entry, fresh, err := d.Acquire(ctx, testEntry("run-1"), ttl, false)
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Equal(t, "run-1", entry.RunID)

	// A second trigger inside the TTL rides the first run.
	*clock = start.Add(time.Minute)
	entry, fresh, err = d.Acquire(ctx, testEntry("run-2"), ttl, false)
	require.NoError(t, err)
	assert.False(t, fresh)
	assert.Equal(t, "run-1", entry.RunID)

	// Past the TTL a new run is granted.
	*clock = start.Add(6 * time.Minute)
	entry, fresh, err = d.Acquire(ctx, testEntry("run-3"), ttl, false)
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Equal(t, "run-3", entry.RunID)
}

func TestAcquireForceBypassesTTL(t *testing.T) {
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	d, clock := newTestDedup(start)
	ctx := context.Background()
	ttl := 5 * time.Minute

	_, fresh, err := d.Acquire(ctx, testEntry("run-1"), ttl, false)
	require.NoError(t, err)
	require.True(t, fresh)

	*clock = start.Add(time.Minute)
	entry, fresh, err := d.Acquire(ctx, testEntry("run-forced"), ttl, true)
	require.NoError(t, err)
	assert.True(t, fresh, "force should bypass the dedup TTL")
	assert.Equal(t, "run-forced", entry.RunID)
}

func TestAcquireForcedRunKeepsNotifyState(t *testing.T) {
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	d, clock := newTestDedup(start)
	ctx := context.Background()
	ttl := 5 * time.Minute

	_, fresh, err := d.Acquire(ctx, testEntry("run-1"), ttl, false)
	require.NoError(t, err)
	require.True(t, fresh)

	ok, _, err := d.ShouldNotify(ctx, testEntry("").IncidentKey, 10*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// The forced re-run must not reset the notification clock.
	*clock = start.Add(2 * time.Minute)
	_, fresh, err = d.Acquire(ctx, testEntry("run-forced"), ttl, true)
	require.NoError(t, err)
	require.True(t, fresh)

	ok, _, err = d.ShouldNotify(ctx, testEntry("").IncidentKey, 10*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "forced re-run inside the cooldown must stay throttled")
}

func TestConcurrentAcquireHasOneWinner(t *testing.T) {
	d := NewDedupStore(NewMemoryKV())
	ctx := context.Background()

	const racers = 8
	var wg sync.WaitGroup
	freshCount := make([]bool, racers)
	runIDs := make([]string, racers)
	errs := make([]error, racers)
	for i := range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, fresh, err := d.Acquire(ctx, testEntry("run-"+string(rune('a'+i))), 5*time.Minute, false)
			errs[i] = err
			freshCount[i] = fresh
			runIDs[i] = entry.RunID
		}()
	}
	wg.Wait()
	for i := range racers {
		require.NoError(t, errs[i])
	}

	winners := 0
	var winnerRun string
	for i := range racers {
		if freshCount[i] {
			winners++
			winnerRun = runIDs[i]
		}
	}
	assert.Equal(t, 1, winners, "exactly one racer should own the run")
	for i := range racers {
		assert.Equal(t, winnerRun, runIDs[i], "every racer should converge on the winner's run")
	}
}

func TestShouldNotifyCooldown(t *testing.T) {
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	d, clock := newTestDedup(start)
	ctx := context.Background()
	key := testEntry("").IncidentKey

	_, _, err := d.Acquire(ctx, testEntry("run-1"), 5*time.Minute, false)
	require.NoError(t, err)

	ok, _, err := d.ShouldNotify(ctx, key, 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "first notification is always allowed")

	*clock = start.Add(5 * time.Minute)
	ok, _, err = d.ShouldNotify(ctx, key, 10*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	*clock = start.Add(11 * time.Minute)
	ok, _, err = d.ShouldNotify(ctx, key, 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestShouldNotifyUnknownKey(t *testing.T) {
	d := NewDedupStore(NewMemoryKV())
	_, _, err := d.ShouldNotify(context.Background(), "inc-unknown00000", time.Minute)
	assert.Error(t, err)
}

func TestReleaseNotifyRestoresCooldown(t *testing.T) {
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	d, clock := newTestDedup(start)
	ctx := context.Background()
	key := testEntry("").IncidentKey

	_, _, err := d.Acquire(ctx, testEntry("run-1"), 5*time.Minute, false)
	require.NoError(t, err)

	ok, prev, err := d.ShouldNotify(ctx, key, 10*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// The send failed; rolling the claim back must allow an immediate
	// retry instead of waiting out the cooldown.
	require.NoError(t, d.ReleaseNotify(ctx, key, prev))

	*clock = start.Add(time.Minute)
	ok, _, err = d.ShouldNotify(ctx, key, 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "a released claim must not consume the cooldown")
}

func TestRecordStatsVisibleOnLookup(t *testing.T) {
	d := NewDedupStore(NewMemoryKV())
	ctx := context.Background()
	key := testEntry("").IncidentKey

	_, _, err := d.Acquire(ctx, testEntry("run-1"), 5*time.Minute, false)
	require.NoError(t, err)
	require.NoError(t, d.RecordStats(ctx, key, &eventlog.WindowStats{Total: 20, Failures: 8}))

	entry, found, err := d.Lookup(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	require.NotNil(t, entry.Stats)
	assert.Equal(t, 8, entry.Stats.Failures)
}

func TestRecordStatuspageIncident(t *testing.T) {
	d := NewDedupStore(NewMemoryKV())
	ctx := context.Background()
	key := testEntry("").IncidentKey

	_, _, err := d.Acquire(ctx, testEntry("run-1"), 5*time.Minute, false)
	require.NoError(t, err)
	require.NoError(t, d.RecordStatuspageIncident(ctx, key, "sp-123"))

	entry, found, err := d.Lookup(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "sp-123", entry.StatuspageIncidentID)
}
