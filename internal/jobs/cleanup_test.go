package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/openclaw/match-session-worker/internal/errors"
	redisclient "github.com/openclaw/match-session-worker/internal/redis"
)

const testPrefix = "match_session:"

func setupRedis(t *testing.T) (*redisclient.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := redisclient.NewClient("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, mr
}

// fakeStore serves a fixed key set and lets tests block or fail the scan.
// With entered set, scan number blockOn (the first when zero) waits for
// release.
type fakeStore struct {
	values    map[string]string
	scanErr   error
	getErr    map[string]error
	entered   chan struct{}
	release   chan struct{}
	blockOn   int32
	scanCalls atomic.Int32
	deleted   []string
}

func (f *fakeStore) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	n := f.scanCalls.Add(1)
	if f.entered != nil && (f.blockOn == 0 || n == f.blockOn) {
		close(f.entered)
		<-f.release
	}
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	keys := make([]string, 0, len(f.values))
	for k := range f.values {
		keys = append(keys, k)
	}
	return keys, nil
}

func (f *fakeStore) GetValue(ctx context.Context, key string) (string, bool, error) {
	if err := f.getErr[key]; err != nil {
		return "", false, err
	}
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *fakeStore) Delete(ctx context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

func TestSweep_DeletesOnlyEndedMarkers(t *testing.T) {
	client, mr := setupRedis(t)
	require.NoError(t, mr.Set(testPrefix+"s1", `{"id":"s1","status":"ended","users":["a","b"]}`))
	require.NoError(t, mr.Set(testPrefix+"s2", `{"id":"s2","status":"connected","users":["c","d"]}`))
	require.NoError(t, mr.Set("unrelated:s3", `{"status":"ended"}`))

	job := NewCleanupJob(client, testPrefix, 5*time.Second)
	result := job.Sweep(context.Background())

	assert.Equal(t, 2, result.Scanned)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 0, result.Errors)
	assert.False(t, result.Skipped)

	assert.False(t, mr.Exists(testPrefix+"s1"))
	assert.True(t, mr.Exists(testPrefix+"s2"))
	assert.True(t, mr.Exists("unrelated:s3"))
}

func TestSweep_MixedStatuses(t *testing.T) {
	client, mr := setupRedis(t)
	statuses := map[string]string{
		"a": "waiting",
		"b": "pending",
		"c": "connected",
		"d": "rejected",
		"e": "ended",
		"f": "ended",
	}
	for id, status := range statuses {
		require.NoError(t, mr.Set(testPrefix+id, `{"status":"`+status+`","users":[]}`))
	}

	job := NewCleanupJob(client, testPrefix, 5*time.Second)
	result := job.Sweep(context.Background())

	assert.Equal(t, 6, result.Scanned)
	assert.Equal(t, 2, result.Deleted)
	for id, status := range statuses {
		assert.Equal(t, status != "ended", mr.Exists(testPrefix+id), "marker %s (%s)", id, status)
	}
}

func TestSweep_MalformedRecordIsContained(t *testing.T) {
	client, mr := setupRedis(t)
	require.NoError(t, mr.Set(testPrefix+"bad", `{not json`))
	require.NoError(t, mr.Set(testPrefix+"s1", `{"status":"ended"}`))
	require.NoError(t, mr.Set(testPrefix+"s2", `{"status":"ended"}`))

	job := NewCleanupJob(client, testPrefix, 5*time.Second)
	result := job.Sweep(context.Background())

	assert.Equal(t, 3, result.Scanned)
	assert.Equal(t, 2, result.Deleted)
	assert.Equal(t, 1, result.Errors)
	assert.True(t, mr.Exists(testPrefix+"bad"))

	stats := job.Stats()
	assert.Equal(t, int64(1), stats.TotalErrors)
	assert.Contains(t, stats.LastError, string(apperrors.ErrCodeSweepItem))
}

func TestSweep_MissingValueIsNotAnError(t *testing.T) {
	store := &fakeStore{values: map[string]string{testPrefix + "s1": `{"status":"ended"}`}}
	job := NewCleanupJob(&vanishingStore{fakeStore: store, vanished: testPrefix + "gone"}, testPrefix, time.Second)
	result := job.Sweep(context.Background())

	assert.Equal(t, 2, result.Scanned)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 0, result.Errors)
}

// vanishingStore lists a key that is already gone by the time it is read.
type vanishingStore struct {
	*fakeStore
	vanished string
}

func (v *vanishingStore) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	keys, err := v.fakeStore.ScanKeys(ctx, pattern)
	return append(keys, v.vanished), err
}

func TestSweep_StoreErrors(t *testing.T) {
	t.Run("scan failure counts one error", func(t *testing.T) {
		store := &fakeStore{scanErr: errors.New("connection refused")}
		job := NewCleanupJob(store, testPrefix, time.Second)

		result := job.Sweep(context.Background())
		assert.Equal(t, 0, result.Scanned)
		assert.Equal(t, 1, result.Errors)
		assert.Equal(t, "connection refused", job.Stats().LastError)
	})

	t.Run("get failure skips only that key", func(t *testing.T) {
		store := &fakeStore{
			values: map[string]string{
				testPrefix + "s1": `{"status":"ended"}`,
				testPrefix + "s2": `{"status":"ended"}`,
			},
			getErr: map[string]error{testPrefix + "s1": errors.New("timeout")},
		}
		job := NewCleanupJob(store, testPrefix, time.Second)

		result := job.Sweep(context.Background())
		assert.Equal(t, 2, result.Scanned)
		assert.Equal(t, 1, result.Deleted)
		assert.Equal(t, 1, result.Errors)
		assert.Equal(t, []string{testPrefix + "s2"}, store.deleted)
	})
}

// slowStore holds every read until the sweep deadline passes.
type slowStore struct {
	*fakeStore
}

func (s *slowStore) GetValue(ctx context.Context, key string) (string, bool, error) {
	<-ctx.Done()
	return "", false, ctx.Err()
}

func TestSweep_DeadlineCountsOnce(t *testing.T) {
	store := &slowStore{fakeStore: &fakeStore{values: map[string]string{
		testPrefix + "s1": `{"status":"ended"}`,
		testPrefix + "s2": `{"status":"ended"}`,
	}}}
	job := NewCleanupJob(store, testPrefix, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	result := job.Sweep(ctx)

	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, 0, result.Deleted)
	assert.Equal(t, 1, result.Errors)
	assert.Equal(t, int64(1), job.Stats().TotalErrors)
}

func TestSweep_UnknownStatusIsAnError(t *testing.T) {
	client, mr := setupRedis(t)
	require.NoError(t, mr.Set(testPrefix+"s1", `{"status":"archived"}`))
	require.NoError(t, mr.Set(testPrefix+"s2", `{"status":"ended"}`))

	job := NewCleanupJob(client, testPrefix, 5*time.Second)
	result := job.Sweep(context.Background())

	assert.Equal(t, 2, result.Scanned)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 1, result.Errors)
	assert.True(t, mr.Exists(testPrefix+"s1"))
}

func TestSweep_NoOverlap(t *testing.T) {
	store := &fakeStore{
		values:  map[string]string{testPrefix + "s1": `{"status":"ended"}`},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	job := NewCleanupJob(store, testPrefix, 5*time.Second)

	first := make(chan SweepResult, 1)
	go func() { first <- job.Sweep(context.Background()) }()
	<-store.entered

	second := job.Sweep(context.Background())
	assert.True(t, second.Skipped)
	assert.Equal(t, 0, second.Scanned)
	assert.Equal(t, int32(1), store.scanCalls.Load())

	close(store.release)
	result := <-first
	assert.False(t, result.Skipped)
	assert.Equal(t, 1, result.Deleted)

	stats := job.Stats()
	assert.Equal(t, int64(1), stats.Sweeps)
}

func TestStats(t *testing.T) {
	client, mr := setupRedis(t)
	job := NewCleanupJob(client, testPrefix, 5*time.Second)

	assert.Equal(t, Stats{}, job.Stats())

	require.NoError(t, mr.Set(testPrefix+"s1", `{"status":"ended"}`))
	job.Sweep(context.Background())
	require.NoError(t, mr.Set(testPrefix+"s2", `{"status":"waiting"}`))
	job.Sweep(context.Background())

	stats := job.Stats()
	assert.Equal(t, int64(2), stats.Sweeps)
	assert.Equal(t, int64(2), stats.TotalScanned)
	assert.Equal(t, int64(1), stats.TotalDeleted)
	assert.Empty(t, stats.LastError)
	require.NotNil(t, stats.LastSweepAt)

	*stats.LastSweepAt = time.Time{}
	assert.False(t, job.Stats().LastSweepAt.IsZero())
}

func TestStartStop(t *testing.T) {
	t.Run("rejects invalid schedule", func(t *testing.T) {
		job := NewCleanupJob(&fakeStore{}, testPrefix, time.Second)

		err := job.Start("not a schedule")
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConfig))
	})

	t.Run("sweeps once before first tick", func(t *testing.T) {
		client, mr := setupRedis(t)
		require.NoError(t, mr.Set(testPrefix+"s1", `{"status":"ended"}`))

		job := NewCleanupJob(client, testPrefix, 5*time.Second)
		require.NoError(t, job.Start("@every 1h"))

		assert.False(t, mr.Exists(testPrefix+"s1"))
		assert.Equal(t, int64(1), job.Stats().Sweeps)

		ctx := job.Stop()
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
			t.Fatal("stop did not complete")
		}
	})

	t.Run("accepts five and six field expressions", func(t *testing.T) {
		for _, schedule := range []string{"* * * * * *", "*/5 * * * *"} {
			job := NewCleanupJob(&fakeStore{}, testPrefix, time.Second)
			require.NoError(t, job.Start(schedule), schedule)
			<-job.Stop().Done()
		}
	})

	t.Run("rejects second start", func(t *testing.T) {
		job := NewCleanupJob(&fakeStore{}, testPrefix, time.Second)
		require.NoError(t, job.Start("@every 1h"))
		defer job.Stop()

		assert.Error(t, job.Start("@every 1h"))
	})

	t.Run("stop is idempotent", func(t *testing.T) {
		job := NewCleanupJob(&fakeStore{}, testPrefix, time.Second)
		require.NoError(t, job.Start("@every 1h"))

		first := job.Stop()
		second := job.Stop()
		assert.Equal(t, first, second)
		<-first.Done()
	})

	t.Run("stop before start returns a done context", func(t *testing.T) {
		job := NewCleanupJob(&fakeStore{}, testPrefix, time.Second)

		assert.Error(t, job.Stop().Err())
		assert.Error(t, job.Stop().Err())
	})

	t.Run("stop before start does not disarm a later stop", func(t *testing.T) {
		store := &fakeStore{}
		job := NewCleanupJob(store, testPrefix, time.Second)

		job.Stop()
		require.NoError(t, job.Start("* * * * * *"))
		<-job.Stop().Done()

		before := store.scanCalls.Load()
		time.Sleep(1500 * time.Millisecond)
		assert.Equal(t, before, store.scanCalls.Load())
	})

	t.Run("stop waits for the in-flight sweep", func(t *testing.T) {
		store := &fakeStore{
			values:  map[string]string{testPrefix + "s1": `{"status":"ended"}`},
			entered: make(chan struct{}),
			release: make(chan struct{}),
			blockOn: 2,
		}
		job := NewCleanupJob(store, testPrefix, 5*time.Second)
		require.NoError(t, job.Start("* * * * * *"))

		select {
		case <-store.entered:
		case <-time.After(3 * time.Second):
			t.Fatal("scheduled sweep never started")
		}

		stopped := job.Stop()
		select {
		case <-stopped.Done():
			t.Fatal("stop interrupted the running sweep")
		case <-time.After(50 * time.Millisecond):
		}

		close(store.release)
		select {
		case <-stopped.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("stop did not complete after the sweep finished")
		}

		stats := job.Stats()
		assert.Equal(t, int64(2), stats.Sweeps)
		assert.Equal(t, int64(2), stats.TotalDeleted)
		assert.Equal(t, []string{testPrefix + "s1", testPrefix + "s1"}, store.deleted)

		time.Sleep(1500 * time.Millisecond)
		assert.Equal(t, int32(2), store.scanCalls.Load())
	})
}
