package usecase

import (
	"context"
	"fmt"
	"time"

	"PlantDex/internal/domain/models"
	drepo "PlantDex/internal/domain/repository"
)

const (
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
)

// ObservationProcessor routes observations to the configured backend.
type ObservationProcessor struct {
	pub     drepo.ObservationPublisher
	store   drepo.ObservationStorage
	metrics drepo.Metrics
	backend string
}

func NewObservationProcessor(
	pub drepo.ObservationPublisher,
	store drepo.ObservationStorage,
	metrics drepo.Metrics,
	backend string,
) *ObservationProcessor {
	return &ObservationProcessor{
		pub:     pub,
		store:   store,
		metrics: metrics,
		backend: backend,
	}
}

// Process routes a single observation to the configured backend.
func (p *ObservationProcessor) Process(ctx context.Context, o *models.Observation) error {
	if o == nil {
		return fmt.Errorf("observation is nil")
	}

	start := time.Now()
	var err error

	switch {
	case p.backend == BackendKafka && p.pub != nil:
		err = p.pub.Publish(ctx, o)
	case p.backend == BackendClickHouse && p.store != nil:
		err = p.store.Store(ctx, o)
	default:
		err = fmt.Errorf("backend %q not available", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("process")
		return fmt.Errorf("process observation: %w", err)
	}

	p.metrics.RecordObservation(p.backend, o.Source)
	p.metrics.RecordLatency("process", time.Since(start).Seconds())
	return nil
}

// ProcessBatch routes several observations in one call. The realtime
// pipeline flushes its retry buffer through it.
func (p *ObservationProcessor) ProcessBatch(ctx context.Context, obs []*models.Observation) error {
	if len(obs) == 0 {
		return nil
	}

	start := time.Now()
	var err error

	switch {
	case p.backend == BackendKafka && p.pub != nil:
		err = p.pub.PublishBatch(ctx, obs)
	case p.backend == BackendClickHouse && p.store != nil:
		err = p.store.StoreBatch(ctx, obs)
	default:
		err = fmt.Errorf("backend %q not available", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("process_batch")
		return fmt.Errorf("process batch: %w", err)
	}

	for _, o := range obs {
		if o != nil {
			p.metrics.RecordObservation(p.backend, o.Source)
		}
	}
	p.metrics.RecordLatency("process_batch", time.Since(start).Seconds())
	return nil
}
