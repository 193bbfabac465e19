package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	applogger "PlantDex/pkg/logger"
	"PlantDex/pkg/util"
)

// CycleFunc runs (or enqueues) one recompute cycle for date.
type CycleFunc func(ctx context.Context, date time.Time) error

// Runner is the external caller that triggers engine cycles on a cron spec.
// The engine itself never schedules work.
type Runner struct {
	cron    *cron.Cron
	logger  *applogger.Logger
	baseCtx context.Context
	now     func() time.Time
}

func New(baseCtx context.Context, logger *applogger.Logger) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = applogger.NewNop()
	}
	return &Runner{
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)),
		logger:  logger,
		baseCtx: baseCtx,
		now:     time.Now,
	}
}

// Add registers a raw job on spec (six fields, seconds first).
func (r *Runner) Add(spec string, job func(context.Context)) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() { job(r.baseCtx) })
}

// AddCycle registers fn for the previous UTC day on spec. Overlapping runs are skipped.
func (r *Runner) AddCycle(spec string, fn CycleFunc) (cron.EntryID, error) {
	return r.Add(spec, r.cycleJob(fn))
}

func (r *Runner) cycleJob(fn CycleFunc) func(context.Context) {
	var running int32
	return func(ctx context.Context) {
		if !atomic.CompareAndSwapInt32(&running, 0, 1) {
			r.logger.Warn("cycle still running, skipped")
			return
		}
		defer atomic.StoreInt32(&running, 0)

		date := util.StartOfDay(r.now()).AddDate(0, 0, -1)
		start := time.Now()
		if err := fn(ctx, date); err != nil {
			r.logger.Error("scheduled cycle failed",
				applogger.Date("date", date),
				applogger.Error(err),
			)
			return
		}
		r.logger.Info("scheduled cycle done",
			applogger.Date("date", date),
			applogger.Duration("elapsed", time.Since(start)),
		)
	}
}

func (r *Runner) Start() {
	r.logger.Info("scheduler started", applogger.Int("entries", len(r.cron.Entries())))
	r.cron.Start()
}

// Stop waits for running jobs to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("scheduler stopped")
}
