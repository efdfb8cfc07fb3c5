package application

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"scentroute-cloud/internal/observability/logging"
	"scentroute-cloud/internal/observability/metrics"
	visits "scentroute-cloud/internal/visits/domain"
)

const defaultWorkers = 8

// Repository reads overdue visits and moves them.
type Repository interface {
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]visits.Visit, error)
	UpdateScheduledAt(ctx context.Context, id string, at time.Time) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Result reports one sweep.
type Result struct {
	Found      int       `json:"found"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Cutoff     time.Time `json:"cutoff"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Reconciler moves pending visits left behind on earlier days to their next
// occurrence of the same time of day.
type Reconciler struct {
	repo    Repository
	clock   Clock
	loc     *time.Location
	workers int
	logger  *zap.Logger
}

// NewReconciler constructs a Reconciler. workers bounds concurrent updates.
func NewReconciler(repo Repository, clock Clock, loc *time.Location, workers int, logger *zap.Logger) (*Reconciler, error) {
	if repo == nil {
		return nil, errors.New("reconciler: nil repository")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Reconciler{repo: repo, clock: clock, loc: loc, workers: workers, logger: logging.OrNop(logger)}, nil
}

// NextDate keeps the time of day of original and places it today, or
// tomorrow when that moment has already passed.
func NextDate(original, now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	o := original.In(loc)
	n := now.In(loc)
	candidate := time.Date(n.Year(), n.Month(), n.Day(), o.Hour(), o.Minute(), o.Second(), 0, loc)
	if candidate.Before(n) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// ReconcileNow runs one sweep. Each visit is updated on its own; a failed
// update is logged and counted without stopping the others. Cancelling ctx
// stops dispatching further updates and the context error is returned with
// the partial result.
func (r *Reconciler) ReconcileNow(ctx context.Context) (*Result, error) {
	started := r.clock.Now()
	now := started.In(r.loc)
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, r.loc)
	result := &Result{Cutoff: cutoff.UTC(), StartedAt: started.UTC()}

	overdue, err := r.repo.ListPendingBefore(ctx, cutoff)
	if err != nil {
		metrics.ObserveReconcile(metrics.ResultError, 0, 0, time.Since(started))
		return nil, fmt.Errorf("list overdue visits: %w", err)
	}
	result.Found = len(overdue)

	var succeeded, failed atomic.Int64
	// Dispatched updates run to completion even if ctx is cancelled.
	updateCtx := context.WithoutCancel(ctx)
	g := new(errgroup.Group)
	g.SetLimit(r.workers)
	for _, visit := range overdue {
		visit := visit
		if ctx.Err() != nil {
			break
		}
		next := NextDate(visit.ScheduledAt, started, r.loc).UTC()
		g.Go(func() error {
			if err := r.repo.UpdateScheduledAt(updateCtx, visit.ID, next); err != nil {
				failed.Add(1)
				r.logger.Warn("overdue visit update failed",
					zap.String("visit_id", visit.ID),
					zap.Time("scheduled_at", visit.ScheduledAt),
					zap.Time("next", next),
					zap.Error(err),
				)
				return nil
			}
			succeeded.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	result.Succeeded = int(succeeded.Load())
	result.Failed = int(failed.Load())
	result.FinishedAt = r.clock.Now().UTC()

	outcome := metrics.ResultSuccess
	if ctx.Err() != nil {
		outcome = metrics.ResultError
	}
	metrics.ObserveReconcile(outcome, result.Succeeded, result.Failed, time.Since(started))
	r.logger.Info("overdue visits reconciled",
		zap.Int("found", result.Found),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Time("cutoff", result.Cutoff),
	)
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}
