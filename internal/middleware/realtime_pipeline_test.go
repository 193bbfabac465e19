package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"PlantDex/internal/domain/models"
	"PlantDex/internal/service/ratelimit"
)

type nopMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func (m *nopMetrics) RecordObservation(string, string) {}

func (m *nopMetrics) RecordIndexValue(string, float64) {}

func (m *nopMetrics) RecordLatency(string, float64) {}

func (m *nopMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errors == nil {
		m.errors = map[string]int{}
	}
	m.errors[kind]++
}

type recProc struct {
	mu   sync.Mutex
	got  []*models.Observation
	fail bool
}

func (p *recProc) Process(_ context.Context, o *models.Observation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("down")
	}
	p.got = append(p.got, o)
	return nil
}

type batchProc struct {
	recProc
	batches [][]*models.Observation
}

func (p *batchProc) ProcessBatch(_ context.Context, in []*models.Observation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("down")
	}
	p.batches = append(p.batches, append([]*models.Observation(nil), in...))
	return nil
}

func obs(item int64, source string) *models.Observation {
	return &models.Observation{ItemID: item, Source: source, Price: 10, Timestamp: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func TestPipelineValidation(t *testing.T) {
	m := &nopMetrics{}
	p := NewRealtimePipeline(&recProc{}, m)
	bad := []*models.Observation{
		nil,
		{ItemID: 0, Timestamp: time.Now(), Price: 1},
		{ItemID: 1, Price: 1},
		{ItemID: 1, Timestamp: time.Now(), Price: -1},
	}
	for i, o := range bad {
		err := p.Process(context.Background(), o)
		if !models.IsValidation(err) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
	if m.errors["pipeline_validate"] != len(bad) {
		t.Fatalf("expected %d validate errors, got %d", len(bad), m.errors["pipeline_validate"])
	}
}

func TestPipelineThrottlesPerItemAndSource(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	proc := &recProc{}
	p := NewRealtimePipeline(proc, &nopMetrics{}, WithMaxRPS(2),
		WithLimiter(ratelimit.NewWithClock(func() time.Time { return now })))

	for i := 0; i < 5; i++ {
		if err := p.Process(context.Background(), obs(1, "a")); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	if err := p.Process(context.Background(), obs(1, "b")); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(proc.got) != 3 {
		t.Fatalf("expected 2 for source a and 1 for source b, got %d", len(proc.got))
	}
}

func TestPipelineBuffersOnDownstreamError(t *testing.T) {
	proc := &recProc{fail: true}
	p := NewRealtimePipeline(proc, &nopMetrics{}, WithBufferSize(4))
	if err := p.Process(context.Background(), obs(2, "a")); err == nil {
		t.Fatalf("expected downstream error")
	}
	if p.Buffered() != 1 {
		t.Fatalf("expected one buffered observation, got %d", p.Buffered())
	}

	proc.mu.Lock()
	proc.fail = false
	proc.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		proc.mu.Lock()
		n := len(proc.got)
		proc.mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("buffered observation was not flushed")
}

func TestPipelineTransform(t *testing.T) {
	proc := &recProc{}
	p := NewRealtimePipeline(proc, &nopMetrics{}, WithTransform(func(o *models.Observation) *models.Observation {
		c := *o
		c.Currency = "EUR"
		return &c
	}))
	if err := p.Process(context.Background(), obs(3, "a")); err != nil {
		t.Fatalf("process: %v", err)
	}
	if proc.got[0].Currency != "EUR" {
		t.Fatalf("transform not applied")
	}
}

func TestPipelineFlushesBufferAsOneBatch(t *testing.T) {
	proc := &batchProc{recProc: recProc{fail: true}}
	p := NewRealtimePipeline(proc, &nopMetrics{}, WithBufferSize(8))
	for i := int64(1); i <= 3; i++ {
		if err := p.Process(context.Background(), obs(i, "a")); err == nil {
			t.Fatalf("expected downstream error")
		}
	}
	if p.Buffered() != 3 {
		t.Fatalf("expected three buffered observations, got %d", p.Buffered())
	}

	proc.mu.Lock()
	proc.fail = false
	proc.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		proc.mu.Lock()
		batches := proc.batches
		proc.mu.Unlock()
		if len(batches) > 0 {
			if len(batches) != 1 || len(batches[0]) != 3 {
				t.Fatalf("expected one batch of 3, got %d batches", len(batches))
			}
			if len(proc.got) != 0 {
				t.Fatalf("single-item path used during flush")
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("buffer was not flushed")
}
