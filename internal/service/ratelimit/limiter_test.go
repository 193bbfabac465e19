package ratelimit

import (
	"testing"
	"time"
)

func TestLimiterBurstAndRefill(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewWithClock(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		if !l.Allow("k", 3, 1) {
			t.Fatalf("call %d should pass within burst", i)
		}
	}
	if l.Allow("k", 3, 1) {
		t.Fatalf("burst exhausted, expected deny")
	}
	if !l.Allow("other", 3, 1) {
		t.Fatalf("keys must not share buckets")
	}

	now = now.Add(time.Second)
	if !l.Allow("k", 3, 1) {
		t.Fatalf("one token should refill after 1s")
	}
	if l.Allow("k", 3, 1) {
		t.Fatalf("only one token refilled")
	}
}
