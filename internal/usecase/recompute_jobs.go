package usecase

import (
	"context"
	"fmt"
	"time"

	"PlantDex/internal/domain/models"
	"PlantDex/pkg/queue"
	"PlantDex/pkg/util"
)

// Queue message types of the recompute jobs.
const (
	JobTypeAggregate = "recompute.aggregate"
	JobTypeIndex     = "recompute.index"
	JobTypeScore     = "recompute.score"
	JobTypeDetect    = "recompute.detect"
	JobTypeCycle     = "recompute.cycle"
)

// RecomputePayload is the queue payload of every recompute job. Date is
// YYYY-MM-DD; empty means today (or now for detection).
type RecomputePayload struct {
	ItemID int64  `json:"item_id,omitempty"`
	Date   string `json:"date,omitempty"`
}

func (p RecomputePayload) date() (time.Time, error) {
	if p.Date == "" {
		return time.Time{}, nil
	}
	t, ok := util.ParseDate(p.Date)
	if !ok {
		return time.Time{}, models.NewValidationError("date", "invalid date %q", p.Date)
	}
	return t, nil
}

type recomputeJob struct {
	typ string
	run func(ctx context.Context, p RecomputePayload) error
}

func (j *recomputeJob) Name() string { return j.typ + "-job" }
func (j *recomputeJob) Type() string { return j.typ }

func (j *recomputeJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[RecomputePayload](payload)
	if err != nil {
		return fmt.Errorf("%s payload: %w", j.typ, err)
	}
	return j.run(ctx, *p)
}

// RecomputeJobs exposes the compute operations as queue jobs. The queue is a
// trigger transport only; every job runs under the same keyed locks as HTTP.
func RecomputeJobs(uc *ComputeUseCase) []queue.Job {
	return []queue.Job{
		&recomputeJob{typ: JobTypeAggregate, run: func(ctx context.Context, p RecomputePayload) error {
			d, err := p.date()
			if err != nil {
				return err
			}
			if p.ItemID == 0 {
				_, err = uc.AggregateDay(ctx, d)
				return err
			}
			_, err = uc.Aggregate(ctx, p.ItemID, d)
			return err
		}},
		&recomputeJob{typ: JobTypeIndex, run: func(ctx context.Context, p RecomputePayload) error {
			d, err := p.date()
			if err != nil {
				return err
			}
			_, err = uc.Index(ctx, d)
			return err
		}},
		&recomputeJob{typ: JobTypeScore, run: func(ctx context.Context, p RecomputePayload) error {
			if p.ItemID == 0 {
				_, err := uc.ScoreAll(ctx)
				return err
			}
			_, err := uc.Score(ctx, p.ItemID)
			return err
		}},
		&recomputeJob{typ: JobTypeDetect, run: func(ctx context.Context, p RecomputePayload) error {
			d, err := p.date()
			if err != nil {
				return err
			}
			_, err = uc.Detect(ctx, d)
			return err
		}},
		&recomputeJob{typ: JobTypeCycle, run: func(ctx context.Context, p RecomputePayload) error {
			d, err := p.date()
			if err != nil {
				return err
			}
			_, err = uc.RunCycle(ctx, d)
			return err
		}},
	}
}

// IsRecomputeJobType reports whether t names a recompute job.
func IsRecomputeJobType(t string) bool {
	switch t {
	case JobTypeAggregate, JobTypeIndex, JobTypeScore, JobTypeDetect, JobTypeCycle:
		return true
	}
	return false
}
