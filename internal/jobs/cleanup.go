package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/match-session-worker/internal/config"
	apperrors "github.com/openclaw/match-session-worker/internal/errors"
	"github.com/openclaw/match-session-worker/internal/model"
)

// MarkerStore is the slice of the ephemeral store a sweep needs.
type MarkerStore interface {
	ScanKeys(ctx context.Context, pattern string) ([]string, error)
	GetValue(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error
}

// SweepResult reports one pass over the session markers.
type SweepResult struct {
	Scanned  int           `json:"scanned"`
	Deleted  int           `json:"deleted"`
	Errors   int           `json:"errors"`
	Duration time.Duration `json:"duration"`
	Skipped  bool          `json:"skipped"`
}

// Stats accumulates sweep results since process start.
type Stats struct {
	TotalScanned int64      `json:"totalScanned"`
	TotalDeleted int64      `json:"totalDeleted"`
	TotalErrors  int64      `json:"totalErrors"`
	Sweeps       int64      `json:"sweeps"`
	LastSweepAt  *time.Time `json:"lastSweepAt,omitempty"`
	LastError    string     `json:"lastError,omitempty"`
}

var scheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

type CleanupJob struct {
	store   MarkerStore
	pattern string
	timeout time.Duration

	running atomic.Bool

	statsMu sync.RWMutex
	stats   Stats

	lifecycleMu sync.Mutex
	cron        *cron.Cron
	stopped     context.Context
}

func NewCleanupJob(store MarkerStore, prefix string, timeout time.Duration) *CleanupJob {
	return &CleanupJob{
		store:   store,
		pattern: prefix + "*",
		timeout: timeout,
	}
}

// Start validates schedule, performs one sweep, then registers the recurring
// trigger. Calling Start on a running job is an error.
func (j *CleanupJob) Start(schedule string) error {
	sched, err := scheduleParser.Parse(schedule)
	if err != nil {
		return apperrors.Config("invalid cleanup schedule " + schedule).WithCause(err)
	}

	j.lifecycleMu.Lock()
	defer j.lifecycleMu.Unlock()
	if j.cron != nil {
		return apperrors.Internal("cleanup job already started")
	}

	j.run()

	logger := cronLogger{}
	c := cron.New(
		cron.WithParser(scheduleParser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger)),
	)
	c.Schedule(sched, cron.FuncJob(j.run))
	c.Start()
	j.cron = c

	log.Info().Str("schedule", schedule).Str("pattern", j.pattern).Msg("cleanup job started")
	return nil
}

// Stop cancels future triggers. It does not interrupt a running sweep; the
// returned context is done once any in-flight sweep has returned. Safe to call
// more than once and before Start.
func (j *CleanupJob) Stop() context.Context {
	j.lifecycleMu.Lock()
	defer j.lifecycleMu.Unlock()

	if j.stopped != nil {
		return j.stopped
	}
	if j.cron == nil {
		// Nothing to stop yet; a later Start still arms the trigger.
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}

	j.stopped = j.cron.Stop()
	log.Info().Msg("cleanup job stopped")
	return j.stopped
}

func (j *CleanupJob) run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	j.Sweep(ctx)
}

// Sweep deletes every marker whose status is ended. If another sweep is in
// flight it returns immediately with Skipped set.
func (j *CleanupJob) Sweep(ctx context.Context) SweepResult {
	if !j.running.CompareAndSwap(false, true) {
		log.Debug().Msg("cleanup sweep already running, skipping trigger")
		return SweepResult{Skipped: true}
	}
	defer j.running.Store(false)

	start := time.Now()
	var result SweepResult
	var lastErr error

	keys, err := j.store.ScanKeys(ctx, j.pattern)
	if err != nil {
		result.Errors++
		lastErr = err
		log.Error().Err(err).Str("pattern", j.pattern).Msg("failed to list session markers")
	}

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			result.Errors++
			lastErr = err
			log.Warn().Err(err).Int("remaining", len(keys)-result.Scanned).Msg("cleanup sweep cut short")
			break
		}

		result.Scanned++
		deleted, err := j.sweepKey(ctx, key)
		if err != nil {
			result.Errors++
			lastErr = err
			if ctx.Err() != nil {
				log.Warn().Err(err).Int("remaining", len(keys)-result.Scanned).Msg("cleanup sweep cut short")
				break
			}
			log.Error().Err(err).Str("key", key).Msg("failed to sweep session marker")
		} else if deleted {
			result.Deleted++
		}

		if result.Scanned%config.SweepProgressEvery == 0 {
			log.Debug().
				Int("scanned", result.Scanned).
				Int("total", len(keys)).
				Int("deleted", result.Deleted).
				Msg("cleanup sweep progress")
		}
	}

	result.Duration = time.Since(start)
	stats := j.record(result, lastErr)

	event := log.Debug()
	if result.Deleted > 0 || result.Errors > 0 {
		event = log.Info()
	}
	event.
		Int("scanned", result.Scanned).
		Int("deleted", result.Deleted).
		Int("errors", result.Errors).
		Dur("duration", result.Duration).
		Int64("total_scanned", stats.TotalScanned).
		Int64("total_deleted", stats.TotalDeleted).
		Int64("total_errors", stats.TotalErrors).
		Msg("cleanup sweep finished")

	return result
}

func (j *CleanupJob) sweepKey(ctx context.Context, key string) (bool, error) {
	raw, ok, err := j.store.GetValue(ctx, key)
	if err != nil {
		return false, apperrors.SweepItem(key, err)
	}
	if !ok {
		return false, nil
	}

	marker, err := model.DecodeSessionMarker(raw)
	if err != nil {
		return false, apperrors.SweepItem(key, err)
	}
	if !marker.Reclaimable() {
		return false, nil
	}

	if err := j.store.Delete(ctx, key); err != nil {
		return false, apperrors.SweepItem(key, err)
	}
	return true, nil
}

func (j *CleanupJob) record(result SweepResult, lastErr error) Stats {
	j.statsMu.Lock()
	defer j.statsMu.Unlock()

	now := time.Now()
	j.stats.TotalScanned += int64(result.Scanned)
	j.stats.TotalDeleted += int64(result.Deleted)
	j.stats.TotalErrors += int64(result.Errors)
	j.stats.Sweeps++
	j.stats.LastSweepAt = &now
	if lastErr != nil {
		j.stats.LastError = lastErr.Error()
	}
	return j.copyStats()
}

// Stats returns a snapshot of the cumulative counters.
func (j *CleanupJob) Stats() Stats {
	j.statsMu.RLock()
	defer j.statsMu.RUnlock()
	return j.copyStats()
}

func (j *CleanupJob) copyStats() Stats {
	s := j.stats
	if s.LastSweepAt != nil {
		at := *s.LastSweepAt
		s.LastSweepAt = &at
	}
	return s
}

// cronLogger routes scheduler diagnostics to zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
