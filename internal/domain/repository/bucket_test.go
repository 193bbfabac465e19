package repository

import (
	"testing"
	"time"
)

func TestBucketRangeDaily(t *testing.T) {
	ts := time.Date(2024, 5, 14, 17, 45, 0, 0, time.UTC)
	start, end := BucketRange(BucketDaily, ts)
	if !start.Equal(time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %v", start)
	}
	if end.Sub(start) != 24*time.Hour {
		t.Fatalf("unexpected span %v", end.Sub(start))
	}
}

func TestBucketRangeWeeklyStartsMonday(t *testing.T) {
	// 2024-05-19 is a Sunday
	ts := time.Date(2024, 5, 19, 8, 0, 0, 0, time.UTC)
	start, end := BucketRange(BucketWeekly, ts)
	if start.Weekday() != time.Monday || !start.Equal(time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected week start %v", start)
	}
	if !end.Equal(time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected week end %v", end)
	}
}
