package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type flakyHandler struct {
	topic    string
	failures int
	calls    int
	panics   bool
}

func (h *flakyHandler) Topic() string { return h.topic }

func (h *flakyHandler) Handle(context.Context, []byte) error {
	h.calls++
	if h.panics {
		panic("handler blew up")
	}
	if h.calls <= h.failures {
		return errors.New("transient")
	}
	return nil
}

func testConsumer(t *testing.T, retries int) *Consumer {
	t.Helper()
	c, err := NewConsumer(ConsumerConfig{
		Brokers:    []string{"localhost:9092"},
		RetryMax:   retries,
		BackoffMin: time.Millisecond,
		BackoffMax: 2 * time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("NewConsumer: %v", err)
	}
	return c
}

func TestNewConsumerAppliesDefaults(t *testing.T) {
	c := testConsumer(t, 0)
	if c.cfg.GroupID != "plantdex" || c.cfg.Workers != 1 || c.cfg.StartOffset != "earliest" {
		t.Fatalf("defaults not applied: %+v", c.cfg)
	}
	if c.cfg.startOffset() != kafka.FirstOffset {
		t.Fatalf("start offset = %d", c.cfg.startOffset())
	}

	if _, err := NewConsumer(ConsumerConfig{}, nil); err == nil {
		t.Fatal("expected error without brokers")
	}
}

func TestDeliverRetriesUntilSuccess(t *testing.T) {
	c := testConsumer(t, 3)
	h := &flakyHandler{topic: "obs", failures: 2}

	attempts, err := c.deliver(context.Background(), h, kafka.Message{Topic: "obs"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 || h.calls != 3 {
		t.Fatalf("attempts=%d calls=%d, want 3", attempts, h.calls)
	}
}

func TestDeliverGivesUpAfterRetryMax(t *testing.T) {
	c := testConsumer(t, 1)
	h := &flakyHandler{topic: "obs", failures: 10}

	attempts, err := c.deliver(context.Background(), h, kafka.Message{Topic: "obs"})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
}

func TestDeliverStopsWhenCancelled(t *testing.T) {
	c := testConsumer(t, 5)
	c.cfg.BackoffMin, c.cfg.BackoffMax = time.Hour, time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.deliver(ctx, &flakyHandler{topic: "obs", failures: 10}, kafka.Message{Topic: "obs"})
	if !errors.Is(err, errStopping) {
		t.Fatalf("got %v, want errStopping", err)
	}
}

func TestAttemptTurnsPanicIntoError(t *testing.T) {
	c := testConsumer(t, 0)
	var seen error
	c.Use(HookFuncs{Err: func(_ context.Context, _ string, _ kafka.Message, _ []byte, err error) { seen = err }})

	err := c.attempt(&flakyHandler{topic: "obs", panics: true}, kafka.Message{Topic: "obs"})
	if err == nil || seen == nil {
		t.Fatalf("err=%v hook saw %v", err, seen)
	}
}

func TestLaneIndexIsStablePerPartition(t *testing.T) {
	for p := 0; p < 32; p++ {
		a := laneIndex("obs", p, 4)
		if a < 0 || a >= 4 {
			t.Fatalf("lane %d out of range", a)
		}
		if b := laneIndex("obs", p, 4); a != b {
			t.Fatalf("partition %d moved lanes: %d vs %d", p, a, b)
		}
	}
	if laneIndex("obs", 7, 1) != 0 {
		t.Fatal("single lane must be 0")
	}
}

func TestBackoffStaysWithinWindow(t *testing.T) {
	lo, hi := 10*time.Millisecond, 80*time.Millisecond
	for attempt := 1; attempt <= 40; attempt++ {
		d := backoff(lo, hi, attempt)
		if d <= 0 || d > hi {
			t.Fatalf("attempt %d: %v outside (0, %v]", attempt, d, hi)
		}
	}
	if d := backoff(lo, hi, 1); d < lo/2 || d > lo {
		t.Fatalf("first backoff %v not in [%v, %v]", d, lo/2, lo)
	}
}

func TestStartRequiresHandlers(t *testing.T) {
	if err := testConsumer(t, 0).Start(); err == nil {
		t.Fatal("expected error with no handlers")
	}
}
