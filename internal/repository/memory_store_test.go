package repository

import (
	"context"
	"testing"
	"time"

	"PlantDex/internal/domain/models"
)

func opp(id string, itemID int64, typ models.OpportunityType, conf float64, expires time.Time) models.Opportunity {
	return models.Opportunity{
		ID:              id,
		ItemID:          itemID,
		OpportunityType: typ,
		Confidence:      conf,
		DetectedAt:      expires.AddDate(0, 0, -7),
		ExpiresAt:       expires,
		IsActive:        true,
	}
}

func TestMemoryStoreSupersedeKeepsOneActivePerItemType(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	exp := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

	if n, _ := s.SupersedeOpportunity(ctx, opp("a", 1, models.OpportunityBreakout, 0.6, exp)); n != 0 {
		t.Fatalf("first insert closed %d rows", n)
	}
	if n, _ := s.SupersedeOpportunity(ctx, opp("b", 1, models.OpportunityBreakout, 0.7, exp)); n != 1 {
		t.Fatalf("expected 1 closed row, got %d", n)
	}
	_, _ = s.SupersedeOpportunity(ctx, opp("c", 1, models.OpportunityArbitrage, 0.9, exp))

	active, total, _ := s.CountOpportunities(ctx)
	if active != 2 || total != 3 {
		t.Fatalf("active=%d total=%d, want 2/3", active, total)
	}

	// Same id replaces in place.
	again := opp("b", 1, models.OpportunityBreakout, 0.8, exp)
	if n, _ := s.SupersedeOpportunity(ctx, again); n != 0 {
		t.Fatalf("replacing same id closed %d rows", n)
	}
	_, total, _ = s.CountOpportunities(ctx)
	if total != 3 {
		t.Fatalf("same id must not append, total=%d", total)
	}

	got, _ := s.ListActiveOpportunities(ctx, models.OpportunityFilter{}, time.Time{}, 0)
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" || got[1].Confidence != 0.8 {
		t.Fatalf("unexpected active list %+v", got)
	}
}

func TestMemoryStoreExpireAndActiveAt(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	early := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	_, _ = s.SupersedeOpportunity(ctx, opp("x", 1, models.OpportunityUndervalued, 0.6, early))
	_, _ = s.SupersedeOpportunity(ctx, opp("y", 2, models.OpportunityUndervalued, 0.6, late))

	got, _ := s.ListActiveOpportunities(ctx, models.OpportunityFilter{}, early, 10)
	if len(got) != 1 || got[0].ID != "y" {
		t.Fatalf("activeAt filter failed: %+v", got)
	}

	n, _ := s.ExpireOpportunities(ctx, early)
	if n != 1 {
		t.Fatalf("expired %d rows, want 1", n)
	}
	got, _ = s.ListActiveOpportunities(ctx, models.OpportunityFilter{Type: models.OpportunityUndervalued}, time.Time{}, 10)
	if len(got) != 1 || got[0].ID != "y" {
		t.Fatalf("unexpected rows after expiry: %+v", got)
	}
}

func TestMemoryStoreRecentAggregatesNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_ = s.UpsertDailyAggregate(ctx, models.DailyAggregate{ItemID: 7, BucketDate: base.AddDate(0, 0, i), ObservationCount: i})
	}
	rows, _ := s.ListRecentAggregates(ctx, 7, base.AddDate(0, 0, 3), 2)
	if len(rows) != 2 || !rows[0].BucketDate.Equal(base.AddDate(0, 0, 3)) || !rows[1].BucketDate.Equal(base.AddDate(0, 0, 2)) {
		t.Fatalf("unexpected rows %+v", rows)
	}

	first, ok, _ := s.EarliestPricedDate(ctx)
	if !ok || !first.Equal(base.AddDate(0, 0, 1)) {
		t.Fatalf("earliest priced = %v, %v", first, ok)
	}
}

func TestMemoryStoreUnknownItem(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.GetItem(context.Background(), 99); !models.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}
