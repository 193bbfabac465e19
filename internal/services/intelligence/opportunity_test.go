package intelligence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PlantDex/internal/domain/models"
)

func TestConfidenceScalesWithSignal(t *testing.T) {
	assert.InDelta(t, 0.55, Confidence(0.15, 0.15, 0.55, 0.5), 1e-9)
	assert.InDelta(t, 0.8, Confidence(0.225, 0.15, 0.55, 0.5), 1e-9)
	assert.Equal(t, 1.0, Confidence(0.6, 0.15, 0.55, 0.5))
	assert.Less(t, Confidence(0.2, 0.15, 0.55, 0.5), Confidence(0.21, 0.15, 0.55, 0.5))
}

func TestMovingAverage(t *testing.T) {
	d := day(2024, time.March, 1)
	rows := []models.DailyAggregate{
		priced(1, d, 10, 1),
		priced(1, d.AddDate(0, 0, 1), 20, 1),
		priced(1, d.AddDate(0, 0, 3), 30, 1),
	}
	assert.InDelta(t, 20.0, MovingAverage(rows, 30), 1e-9)
	assert.InDelta(t, 25.0, MovingAverage(rows, 2), 1e-9)
	assert.Equal(t, 0.0, MovingAverage(nil, 30))
}

func TestCountsRising(t *testing.T) {
	d := day(2024, time.March, 8)
	// most recent first
	assert.True(t, CountsRising([]models.DailyAggregate{priced(1, d, 1, 9), priced(1, d, 1, 8), priced(1, d, 1, 2), priced(1, d, 1, 1)}))
	assert.False(t, CountsRising([]models.DailyAggregate{priced(1, d, 1, 1), priced(1, d, 1, 9)}))
	assert.False(t, CountsRising([]models.DailyAggregate{priced(1, d, 1, 5)}))
}

func TestOpportunityIDIsDeterministic(t *testing.T) {
	at := time.Date(2024, time.March, 8, 12, 0, 0, 0, time.UTC)
	a := OpportunityID(1, models.OpportunityUndervalued, at)
	assert.Equal(t, a, OpportunityID(1, models.OpportunityUndervalued, at))
	assert.NotEqual(t, a, OpportunityID(1, models.OpportunityBreakout, at))
	assert.NotEqual(t, a, OpportunityID(2, models.OpportunityUndervalued, at))
	assert.NotEqual(t, a, OpportunityID(1, models.OpportunityUndervalued, at.Add(time.Second)))
}

func seedUndervalued(s interface {
	UpsertDailyAggregate(context.Context, models.DailyAggregate) error
}, last time.Time) {
	for i := 9; i >= 1; i-- {
		r := priced(1, last.AddDate(0, 0, -i), 100, 20)
		r.SalesVolume = 40
		_ = s.UpsertDailyAggregate(context.Background(), r)
	}
	r := priced(1, last, 70, 20)
	r.SalesVolume = 40
	_ = s.UpsertDailyAggregate(context.Background(), r)
}

func TestDetectUndervalued(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(models.Item{ID: 1, Category: "aroid"})
	asOf := time.Date(2024, time.March, 10, 6, 0, 0, 0, time.UTC)
	seedUndervalued(s, day(2024, time.March, 10))

	opps, err := NewOpportunityDetector(s, nil, testConfig()).DetectOpportunities(ctx, asOf)
	require.NoError(t, err)
	require.Len(t, opps, 1)

	o := opps[0]
	assert.Equal(t, models.OpportunityUndervalued, o.OpportunityType)
	// SMA over ten days = 97
	assert.InDelta(t, 27.0/97, o.SignalValue, 1e-9)
	assert.InDelta(t, 0.55+(27.0/97/0.15-1)*0.5, o.Confidence, 1e-9)
	assert.InDelta(t, 27.0/70*100, o.PotentialUpsidePct, 1e-9)
	assert.Equal(t, asOf.AddDate(0, 0, 30), o.ExpiresAt)
	assert.Equal(t, OpportunityID(1, models.OpportunityUndervalued, asOf), o.ID)
	assert.True(t, o.IsActive)
}

func TestDetectIsIdempotentAndSupersedes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(models.Item{ID: 1, Category: "aroid"})
	asOf := time.Date(2024, time.March, 10, 6, 0, 0, 0, time.UTC)
	seedUndervalued(s, day(2024, time.March, 10))
	det := NewOpportunityDetector(s, nil, testConfig())

	_, err := det.DetectOpportunities(ctx, asOf)
	require.NoError(t, err)
	_, err = det.DetectOpportunities(ctx, asOf)
	require.NoError(t, err)
	active, total, err := s.CountOpportunities(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, active)
	assert.Equal(t, 1, total)

	_, err = det.DetectOpportunities(ctx, asOf.Add(time.Hour))
	require.NoError(t, err)
	active, total, err = s.CountOpportunities(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, active)
	assert.Equal(t, 2, total)
}

func TestDetectExpiresStaleOpportunities(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(models.Item{ID: 1, Category: "aroid"})
	asOf := time.Date(2024, time.March, 10, 6, 0, 0, 0, time.UTC)
	seedUndervalued(s, day(2024, time.March, 10))
	det := NewOpportunityDetector(s, nil, testConfig())

	_, err := det.DetectOpportunities(ctx, asOf)
	require.NoError(t, err)

	opps, err := det.DetectOpportunities(ctx, asOf.AddDate(0, 0, 45))
	require.NoError(t, err)
	assert.Empty(t, opps)
	active, total, err := s.CountOpportunities(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, active)
	assert.Equal(t, 1, total)
}

func TestDetectArbitrage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(models.Item{ID: 1, Category: "aroid"})
	d := day(2024, time.March, 10)
	r := priced(1, d, 50, 4, "shopA", "shopB")
	r.SourceSpreadPct = 40
	mustUpsert(s, r)

	opps, err := NewOpportunityDetector(s, nil, testConfig()).DetectOpportunities(ctx, d.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.Equal(t, models.OpportunityArbitrage, opps[0].OpportunityType)
	assert.Equal(t, 1.0, opps[0].Confidence)
	assert.Equal(t, 7, opps[0].TimeHorizonDays)
}

func TestDetectSeasonal(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(models.Item{ID: 1, Category: "aroid"})
	d := day(2024, time.March, 12)
	r := priced(1, d, 50, 4)
	r.SearchVolume = 300
	mustUpsert(s, r)
	seasons := staticSeasons{"aroid": {time.March, time.April}}

	opps, err := NewOpportunityDetector(s, seasons, testConfig()).DetectOpportunities(ctx, d)
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.Equal(t, models.OpportunitySeasonal, opps[0].OpportunityType)
	// weekly demand 75 against floor 40
	assert.InDelta(t, 0.55+(75.0/40-1)*0.5, opps[0].Confidence, 1e-9)

	opps, err = NewOpportunityDetector(s, staticSeasons{"aroid": {time.June}}, testConfig()).DetectOpportunities(ctx, d.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestDetectSkipsBelowConfidenceFloor(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(models.Item{ID: 1, Category: "aroid"})
	d := day(2024, time.March, 12)
	r := priced(1, d, 50, 4)
	r.SearchVolume = 300
	mustUpsert(s, r)
	cfg := testConfig()
	cfg.Opportunity.ConfidenceFloor = 0.99

	opps, err := NewOpportunityDetector(s, staticSeasons{"aroid": {time.March}}, cfg).DetectOpportunities(ctx, d)
	require.NoError(t, err)
	assert.Empty(t, opps)
	_, total, err := s.CountOpportunities(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestDetectBreakout(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(models.Item{ID: 1, Category: "aroid"})
	last := day(2024, time.March, 10)
	means := []float64{100, 104, 108, 112, 116, 120, 124, 128}
	for i, m := range means {
		r := priced(1, last.AddDate(0, 0, -(len(means)-1-i)), m, 2+i)
		_ = s.UpsertDailyAggregate(ctx, r)
	}

	opps, err := NewOpportunityDetector(s, nil, testConfig()).DetectOpportunities(ctx, last)
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.Equal(t, models.OpportunityBreakout, opps[0].OpportunityType)
	assert.InDelta(t, 4.0/114, opps[0].SignalValue, 1e-9)
}
