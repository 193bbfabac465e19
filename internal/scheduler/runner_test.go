package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAddRejectsBadSpec(t *testing.T) {
	r := New(context.Background(), nil)
	if _, err := r.AddCycle("not a spec", func(context.Context, time.Time) error { return nil }); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := r.AddCycle("0 5 0 * * *", func(context.Context, time.Time) error { return nil }); err != nil {
		t.Fatalf("six-field spec should parse: %v", err)
	}
}

func TestCycleJobUsesPreviousDay(t *testing.T) {
	r := New(context.Background(), nil)
	r.now = func() time.Time { return time.Date(2024, time.March, 10, 0, 5, 0, 0, time.UTC) }

	var got time.Time
	job := r.cycleJob(func(_ context.Context, d time.Time) error {
		got = d
		return nil
	})
	job(context.Background())

	want := time.Date(2024, time.March, 9, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestCycleJobSkipsOverlap(t *testing.T) {
	r := New(context.Background(), nil)
	release := make(chan struct{})
	started := make(chan struct{})
	calls := 0
	job := r.cycleJob(func(context.Context, time.Time) error {
		calls++
		close(started)
		<-release
		return errors.New("boom")
	})

	done := make(chan struct{})
	go func() {
		job(context.Background())
		close(done)
	}()
	<-started
	job(context.Background()) // skipped while the first run holds the guard
	close(release)
	<-done

	if calls != 1 {
		t.Fatalf("expected exactly one run, got %d", calls)
	}
}
