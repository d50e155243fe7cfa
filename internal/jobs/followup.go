package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"

	"github.com/lukasbauer/apriori/internal/followup"
	"github.com/lukasbauer/apriori/internal/lock"
	"github.com/lukasbauer/apriori/internal/metrics"
)

// Lock keys shared by every replica.
const (
	ScheduleLockKey = "apriori:lock:schedule"
	ExecuteLockKey  = "apriori:lock:execute"
)

// SchedulePass is satisfied by *followup.Scheduler.
type SchedulePass interface {
	RunPass(ctx context.Context, ct followup.CallType) (followup.ScheduleSummary, error)
}

// ExecutePass is satisfied by *followup.Executor.
type ExecutePass interface {
	RunPass(ctx context.Context) (followup.ExecuteSummary, error)
}

// FollowUpJobConfig configures a FollowUpJob.
type FollowUpJobConfig struct {
	ScheduleInterval time.Duration     // default 24h
	ExecuteInterval  time.Duration     // default 15m
	CallType         followup.CallType // default retention_check
	ScheduleTTL      time.Duration     // lock TTL, default 30m
	ExecuteTTL       time.Duration     // lock TTL, default ExecuteInterval; refreshed while a pass runs
	// Report receives unexpected pass errors. Default sentry.CaptureException.
	Report func(error)
}

// FollowUpJob runs the schedule and execute passes periodically. Each pass
// holds a distributed lock so only one replica runs it at a time.
type FollowUpJob struct {
	scheduler SchedulePass
	executor  ExecutePass
	locker    lock.Locker
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	cfg       FollowUpJobConfig

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFollowUpJob creates a new follow-up job. m may be nil.
func NewFollowUpJob(s SchedulePass, e ExecutePass, locker lock.Locker, m *metrics.Metrics, logger zerolog.Logger, cfg FollowUpJobConfig) *FollowUpJob {
	if cfg.ScheduleInterval <= 0 {
		cfg.ScheduleInterval = 24 * time.Hour
	}
	if cfg.ExecuteInterval <= 0 {
		cfg.ExecuteInterval = 15 * time.Minute
	}
	if cfg.CallType == "" {
		cfg.CallType = followup.CallTypeRetentionCheck
	}
	if cfg.ScheduleTTL <= 0 {
		cfg.ScheduleTTL = 30 * time.Minute
	}
	if cfg.ExecuteTTL <= 0 {
		cfg.ExecuteTTL = cfg.ExecuteInterval
	}
	if cfg.Report == nil {
		cfg.Report = func(err error) { sentry.CaptureException(err) }
	}
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &FollowUpJob{
		scheduler: s,
		executor:  e,
		locker:    locker,
		metrics:   m,
		logger:    logger,
		cfg:       cfg,
	}
}

// Start begins both loops. Each loop runs its pass immediately, then on its interval.
func (j *FollowUpJob) Start(ctx context.Context) {
	ctx, j.cancel = context.WithCancel(ctx)
	j.wg.Add(2)
	go j.loop(ctx, j.cfg.ScheduleInterval, func(ctx context.Context) { _, _ = j.RunSchedule(ctx) })
	go j.loop(ctx, j.cfg.ExecuteInterval, func(ctx context.Context) { _, _ = j.RunExecute(ctx) })
	j.logger.Info().
		Dur("schedule_interval", j.cfg.ScheduleInterval).
		Dur("execute_interval", j.cfg.ExecuteInterval).
		Str("call_type", string(j.cfg.CallType)).
		Msg("FollowUpJob: started")
}

// Stop cancels in-flight passes and waits for both loops to exit.
func (j *FollowUpJob) Stop() {
	if j.cancel == nil {
		return
	}
	j.cancel()
	j.wg.Wait()
	j.logger.Info().Msg("FollowUpJob: stopped")
}

func (j *FollowUpJob) loop(ctx context.Context, interval time.Duration, pass func(context.Context)) {
	defer j.wg.Done()

	pass(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pass(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunSchedule runs one schedule pass for the configured call type under the
// schedule lock. ran is false when another replica holds the lock.
func (j *FollowUpJob) RunSchedule(ctx context.Context) (ran bool, err error) {
	return j.RunScheduleFor(ctx, j.cfg.CallType)
}

// RunScheduleFor is RunSchedule for an explicit call type.
func (j *FollowUpJob) RunScheduleFor(ctx context.Context, ct followup.CallType) (ran bool, err error) {
	err = j.withLock(ctx, "schedule", ScheduleLockKey, j.cfg.ScheduleTTL, func(ctx context.Context) error {
		ran = true
		sum, err := j.scheduler.RunPass(ctx, ct)
		if err != nil {
			return err
		}
		j.logger.Info().
			Str("call_type", string(ct)).
			Int("candidates", sum.Candidates).
			Int("scheduled", sum.Scheduled).
			Int("skipped", sum.Skipped).
			Int("failed", sum.Failed).
			Msg("FollowUpJob: schedule pass finished")
		return nil
	})
	return ran, err
}

// RunExecute runs one execute pass under the execute lock.
func (j *FollowUpJob) RunExecute(ctx context.Context) (ran bool, err error) {
	err = j.withLock(ctx, "execute", ExecuteLockKey, j.cfg.ExecuteTTL, func(ctx context.Context) error {
		ran = true
		sum, err := j.executor.RunPass(ctx)
		if err != nil {
			return err
		}
		if sum.Due > 0 {
			j.logger.Info().
				Int("due", sum.Due).
				Int("executed", sum.Executed).
				Int("cancelled", sum.Cancelled).
				Int("failed", sum.Failed).
				Int("stale", sum.Stale).
				Msg("FollowUpJob: execute pass finished")
		}
		return nil
	})
	return ran, err
}

func (j *FollowUpJob) withLock(ctx context.Context, job, key string, ttl time.Duration, pass func(context.Context) error) error {
	lease, err := j.locker.Acquire(ctx, key, ttl)
	if errors.Is(err, lock.ErrNotAcquired) {
		j.metrics.JobRuns.WithLabelValues(job, "locked").Inc()
		j.logger.Debug().Str("job", job).Msg("FollowUpJob: lock held elsewhere, skipping pass")
		return nil
	}
	if err != nil {
		j.fail(job, err)
		return err
	}
	defer func() {
		// Release on a fresh context so a cancelled pass still frees the lock.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := lease.Release(rctx); err != nil {
			j.logger.Warn().Err(err).Str("job", job).Msg("FollowUpJob: failed to release lock")
		}
	}()

	// The lease is refreshed while the pass runs, so a long execute pass
	// (many due calls, each followed by the call pause) keeps its lock.
	passCtx, stop := lock.KeepAlive(ctx, lease, ttl)
	defer stop()
	if err := pass(passCtx); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return err
		}
		if cause := context.Cause(passCtx); errors.Is(cause, lock.ErrLeaseLost) {
			err = fmt.Errorf("%s pass stopped: %w", job, cause)
		}
		j.fail(job, err)
		return err
	}
	j.metrics.JobRuns.WithLabelValues(job, "ok").Inc()
	return nil
}

func (j *FollowUpJob) fail(job string, err error) {
	j.metrics.JobRuns.WithLabelValues(job, "error").Inc()
	j.logger.Error().Err(err).Str("job", job).Msg("FollowUpJob: pass failed")
	j.cfg.Report(err)
}
