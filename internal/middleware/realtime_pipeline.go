package middleware

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"PlantDex/internal/domain/models"
	domrepo "PlantDex/internal/domain/repository"
	"PlantDex/internal/service/ratelimit"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, o *models.Observation) error
}

// BatchProc is implemented by processors that can forward several
// observations at once. Buffer flushes use it when available.
type BatchProc interface {
	ProcessBatch(ctx context.Context, obs []*models.Observation) error
}

// flushBatch caps how many buffered observations one flush forwards.
const flushBatch = 100

// RealtimePipeline sits between the price feed and the observation backend.
// It validates, throttles per item and source, optionally transforms, and
// buffers when downstream is unavailable.
type RealtimePipeline struct {
	proc    Proc
	metrics domrepo.Metrics
	maxRPS  int
	bufSize int
	bufCh   chan *models.Observation
	stopCh  chan struct{}
	started bool
	mu      sync.Mutex
	limiter *ratelimit.Limiter
	// simple format transform hook (optional)
	transform func(*models.Observation) *models.Observation
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS sets the max observations per second per item and source.
func WithMaxRPS(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the temporary buffer size when downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithTransform sets a hook that rewrites observations before forwarding.
func WithTransform(fn func(*models.Observation) *models.Observation) PipelineOption {
	return func(p *RealtimePipeline) { p.transform = fn }
}

// WithLimiter replaces the throttle limiter (tests inject a fixed clock).
func WithLimiter(l *ratelimit.Limiter) PipelineOption {
	return func(p *RealtimePipeline) {
		if l != nil {
			p.limiter = l
		}
	}
}

func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		proc:    proc,
		metrics: metrics,
		maxRPS:  20,
		bufSize: 1000,
		stopCh:  make(chan struct{}),
		limiter: ratelimit.New(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.Observation, p.bufSize)
	return p
}

// Start launches background flushing of buffered observations.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case o := <-p.bufCh:
				batch := p.drain(o)
				if len(batch) == 0 {
					continue
				}
				if rest, err := p.flush(ctx, batch); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					time.Sleep(backoff)
					p.requeue(rest)
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// drain collects first plus whatever else is buffered, up to flushBatch.
func (p *RealtimePipeline) drain(first *models.Observation) []*models.Observation {
	batch := make([]*models.Observation, 0, flushBatch)
	if first != nil {
		batch = append(batch, first)
	}
	for len(batch) < flushBatch {
		select {
		case o := <-p.bufCh:
			if o != nil {
				batch = append(batch, o)
			}
		default:
			return batch
		}
	}
	return batch
}

// flush forwards batch and returns the observations that were not delivered.
func (p *RealtimePipeline) flush(ctx context.Context, batch []*models.Observation) ([]*models.Observation, error) {
	if bp, ok := p.proc.(BatchProc); ok {
		if err := bp.ProcessBatch(ctx, batch); err != nil {
			return batch, err
		}
		return nil, nil
	}
	for i, o := range batch {
		if err := p.proc.Process(ctx, o); err != nil {
			return batch[i:], err
		}
	}
	return nil, nil
}

// requeue puts a failed batch back; whatever does not fit is dropped.
func (p *RealtimePipeline) requeue(batch []*models.Observation) {
	for _, o := range batch {
		select {
		case p.bufCh <- o:
		default:
			p.metrics.RecordError("pipeline_buffer_drop")
		}
	}
}

// Stop stops the background flushing.
func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.started = false
	close(p.stopCh)
}

// Buffered reports how many observations wait for a downstream retry.
func (p *RealtimePipeline) Buffered() int { return len(p.bufCh) }

// Process validates, throttles, and forwards o downstream, buffering on errors.
func (p *RealtimePipeline) Process(ctx context.Context, o *models.Observation) error {
	start := time.Now()
	if err := validateObservation(o); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.transform != nil {
		o = p.transform(o)
		if err := validateObservation(o); err != nil {
			p.metrics.RecordError("pipeline_transform_invalid")
			return err
		}
	}
	if !p.allow(o) {
		// throttled; dropped
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.proc.Process(ctx, o); err != nil {
		p.metrics.RecordError("pipeline_process")
		select {
		case p.bufCh <- o:
			p.metrics.RecordLatency("pipeline_buffer_depth", float64(len(p.bufCh)))
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func validateObservation(o *models.Observation) error {
	if o == nil {
		return models.NewValidationError("observation", "is nil")
	}
	if o.ItemID <= 0 {
		return models.NewValidationError("item_id", "must be positive")
	}
	if o.Timestamp.IsZero() {
		return models.NewValidationError("timestamp", "is missing")
	}
	if o.Price < 0 || o.StockQuantity < 0 {
		return models.NewValidationError("price", "negative price or stock")
	}
	return nil
}

func (p *RealtimePipeline) allow(o *models.Observation) bool {
	if p.maxRPS <= 0 {
		return true
	}
	key := strconv.FormatInt(o.ItemID, 10) + "|" + o.Source
	return p.limiter.Allow(key, float64(p.maxRPS), float64(p.maxRPS))
}
