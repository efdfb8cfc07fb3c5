package application

import (
	"context"
	"time"

	"go.uber.org/zap"

	"scentroute-cloud/internal/observability/logging"
	"scentroute-cloud/internal/observability/metrics"
)

// Runner runs one sweep.
type Runner interface {
	ReconcileNow(ctx context.Context) (*Result, error)
}

// Locker grants a key to one holder until ttl expires.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// SchedulerConfig controls when sweeps run.
type SchedulerConfig struct {
	DailyAt   string
	OnStartup bool
	LockTTL   time.Duration
	Location  *time.Location
}

// Scheduler triggers sweeps daily at a wall-clock time, and once at startup
// when that time has already passed today.
type Scheduler struct {
	runner  Runner
	locker  Locker
	cfg     SchedulerConfig
	clock   Clock
	logger  *zap.Logger
	tick    time.Duration
	lastRun string
}

// NewScheduler constructs a Scheduler. A nil locker runs every sweep locally.
func NewScheduler(runner Runner, locker Locker, cfg SchedulerConfig, clock Clock, logger *zap.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Scheduler{
		runner: runner,
		locker: locker,
		cfg:    cfg,
		clock:  clock,
		logger: logging.OrNop(logger),
		tick:   time.Minute,
	}
}

// Start begins the scheduler loop and blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.runner == nil {
		return
	}
	if s.cfg.OnStartup && s.dueAtStartup(s.clock.Now()) {
		s.runOnce(ctx, s.clock.Now())
	}

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := s.clock.Now()
			if !s.shouldRun(now) {
				continue
			}
			s.runOnce(ctx, now)
		}
	}
}

// shouldRun reports whether today's sweep is due and has not run yet, so a
// tick that skips past the configured minute still triggers it.
func (s *Scheduler) shouldRun(now time.Time) bool {
	day := now.In(s.cfg.Location).Format("2006-01-02")
	return s.lastRun != day && s.dueAtStartup(now)
}

// dueAtStartup reports whether the configured time has passed today.
func (s *Scheduler) dueAtStartup(now time.Time) bool {
	hour, minute, err := parseDailyAt(s.cfg.DailyAt)
	if err != nil {
		return false
	}
	local := now.In(s.cfg.Location)
	due := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, s.cfg.Location)
	return !local.Before(due)
}

func (s *Scheduler) runOnce(ctx context.Context, now time.Time) {
	day := now.In(s.cfg.Location).Format("2006-01-02")
	if s.lastRun == day {
		return
	}
	if s.locker != nil {
		ok, err := s.locker.TryLock(ctx, "scentroute:reconcile:"+day, s.cfg.LockTTL)
		if err != nil {
			s.logger.Warn("reconcile lock failed, running anyway", zap.Error(err))
		} else if !ok {
			s.lastRun = day
			metrics.ObserveReconcile(metrics.ResultSkipped, 0, 0, 0)
			s.logger.Info("reconcile sweep held by another process", zap.String("day", day))
			return
		}
	}
	s.lastRun = day
	if _, err := s.runner.ReconcileNow(ctx); err != nil {
		s.logger.Error("reconcile sweep failed", zap.String("day", day), zap.Error(err))
	}
}

func parseDailyAt(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}
