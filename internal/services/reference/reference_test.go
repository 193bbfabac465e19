package reference

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"PlantDex/internal/service/cache"
)

func TestStaticSeasonalReference(t *testing.T) {
	ref := NewStaticSeasonalReference(map[string][]int{"aroid": {5, 3, 13}})
	got, err := ref.GetSeasonalReference(context.Background(), "aroid")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.HighDemandMonths) != 2 || got.HighDemandMonths[0] != time.March || got.HighDemandMonths[1] != time.May {
		t.Fatalf("unexpected months: %v", got.HighDemandMonths)
	}
	other, _ := ref.GetSeasonalReference(context.Background(), "cactus")
	if other.IsHighDemand(time.March) {
		t.Fatalf("unknown category must have no high-demand months")
	}
}

func TestHTTPSeasonalReferenceCaches(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path != "/seasonal/aroid" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"category":"aroid","high_demand_months":[4,5]}`))
	}))
	defer srv.Close()

	ref := NewHTTPSeasonalReference(srv.URL, time.Second, WithCache(cache.NewTTLCache(16), time.Minute))
	for i := 0; i < 2; i++ {
		got, err := ref.GetSeasonalReference(context.Background(), "aroid")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got.IsHighDemand(time.April) || got.IsHighDemand(time.March) {
			t.Fatalf("unexpected months: %v", got.HighDemandMonths)
		}
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("expected 1 upstream call, got %d", n)
	}
}

func TestHTTPSeasonalReferenceFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	fallback := NewStaticSeasonalReference(map[string][]int{"aroid": {12}})
	ref := NewHTTPSeasonalReference(srv.URL, time.Second, WithFallback(fallback))
	got, err := ref.GetSeasonalReference(context.Background(), "aroid")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsHighDemand(time.December) {
		t.Fatalf("expected fallback months, got %v", got.HighDemandMonths)
	}

	noFallback := NewHTTPSeasonalReference(srv.URL, time.Second)
	if _, err := noFallback.GetSeasonalReference(context.Background(), "aroid"); err == nil {
		t.Fatalf("expected error without fallback")
	}
}
