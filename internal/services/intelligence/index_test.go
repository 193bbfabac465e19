package intelligence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PlantDex/internal/domain/models"
)

func TestWeightedIndexUsesItemCounts(t *testing.T) {
	got := WeightedIndex(map[string]float64{"aroid": 120, "cactus": 80}, map[string]int{"aroid": 10, "cactus": 1})
	assert.InDelta(t, 116.3636, got, 1e-4)

	assert.Equal(t, 0.0, WeightedIndex(map[string]float64{}, map[string]int{}))
}

func TestIndexConfidence(t *testing.T) {
	assert.Equal(t, 0.0, IndexConfidence(0, 5, 0, 3, 0.5))
	assert.Equal(t, 100.0, IndexConfidence(8, 5, 0, 3, 0.5))
	assert.InDelta(t, 40.0, IndexConfidence(2, 5, 0, 3, 0.5), 1e-9)
	// 20 * (1 - 0.5 * 1/2)
	assert.InDelta(t, 15.0, IndexConfidence(1, 5, 1, 2, 0.5), 1e-9)
}

func TestComputeDailyIndexDefaultsWithoutData(t *testing.T) {
	s := newTestStore(models.Item{ID: 1, Category: "aroid"})
	p, err := NewIndexCalculator(s, testConfig()).ComputeDailyIndex(context.Background(), day(2024, time.March, 4))
	require.NoError(t, err)
	assert.Equal(t, 1250.0, p.OverallIndex)
	assert.Equal(t, 0.0, p.ConfidenceScore)
	assert.Equal(t, 0, p.TotalTrackedItems)

	stored, ok, err := s.GetIndexPoint(context.Background(), day(2024, time.March, 4))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, p.OverallIndex, stored.OverallIndex)
}

func TestComputeDailyIndexAgainstBaseline(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Index.BaselineDays = 1
	s := newTestStore(
		models.Item{ID: 1, Category: "aroid"},
		models.Item{ID: 2, Category: "aroid"},
		models.Item{ID: 3, Category: "cactus"},
	)
	d1, d2 := day(2024, time.March, 4), day(2024, time.March, 5)
	mustUpsert(s,
		priced(1, d1, 10, 3, "shopA"),
		priced(2, d1, 20, 3, "shopB"),
		priced(1, d2, 15, 3, "shopA"),
		priced(2, d2, 30, 3, "shopB", "shopC"),
		priced(3, d2, 40, 1, "shopD"),
	)
	calc := NewIndexCalculator(s, cfg)

	p1, err := calc.ComputeDailyIndex(ctx, d1)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, p1.OverallIndex, 1e-9)
	assert.InDelta(t, 100.0, p1.PerCategoryIndices["aroid"], 1e-9)
	assert.Equal(t, 2, p1.TotalTrackedItems)
	assert.Equal(t, 2, p1.TotalSources)
	assert.InDelta(t, 40.0, p1.ConfidenceScore, 1e-9)
	assert.Equal(t, 0.0, p1.ChangeFromPreviousPct)

	p2, err := calc.ComputeDailyIndex(ctx, d2)
	require.NoError(t, err)
	// aroid raw 22.5 vs baseline 15; cactus first day is its own baseline
	assert.InDelta(t, 150.0, p2.PerCategoryIndices["aroid"], 1e-9)
	assert.InDelta(t, 100.0, p2.PerCategoryIndices["cactus"], 1e-9)
	assert.InDelta(t, (150.0*2+100.0)/3, p2.OverallIndex, 1e-9)
	assert.Equal(t, 3, p2.TotalTrackedItems)
	assert.Equal(t, 4, p2.TotalSources)
	assert.InDelta(t, ((150.0*2+100.0)/3-100)/100*100, p2.ChangeFromPreviousPct, 1e-9)
}

func TestComputeDailyIndexCarriesForwardZeroCountItems(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Index.BaselineDays = 1
	s := newTestStore(models.Item{ID: 1, Category: "aroid"}, models.Item{ID: 2, Category: "aroid"})
	d1, d2 := day(2024, time.March, 4), day(2024, time.March, 5)
	mustUpsert(s,
		priced(1, d1, 10, 3, "shopA"),
		priced(2, d1, 20, 3, "shopB"),
		priced(1, d2, 15, 3, "shopA"),
		models.DailyAggregate{ItemID: 2, BucketDate: d2},
	)

	p, err := NewIndexCalculator(s, cfg).ComputeDailyIndex(ctx, d2)
	require.NoError(t, err)
	// (15 + carried 20) / 2 = 17.5 against baseline 15
	assert.InDelta(t, 100*17.5/15, p.PerCategoryIndices["aroid"], 1e-9)
	assert.Equal(t, 2, p.TotalTrackedItems)
	assert.Equal(t, 1, p.CarriedForwardItems)
	assert.Equal(t, 1, p.TotalSources)
	assert.InDelta(t, 15.0, p.ConfidenceScore, 1e-9)
}

func TestComputeDailyIndexCarriesPriorPointWhenNothingContributes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(models.Item{ID: 1, Category: "aroid"})
	prev := models.MarketIndexPoint{
		IndexDate:          day(2024, time.March, 4),
		OverallIndex:       112,
		PerCategoryIndices: map[string]float64{"aroid": 112},
		TotalSources:       3,
		ConfidenceScore:    60,
	}
	require.NoError(t, s.UpsertIndexPoint(ctx, prev))

	p, err := NewIndexCalculator(s, testConfig()).ComputeDailyIndex(ctx, day(2024, time.March, 5))
	require.NoError(t, err)
	assert.Equal(t, 112.0, p.OverallIndex)
	assert.Equal(t, 112.0, p.PerCategoryIndices["aroid"])
	assert.Equal(t, 0.0, p.ConfidenceScore)
	assert.Equal(t, day(2024, time.March, 5), p.IndexDate)
}

func TestComputeDailyIndexOnlyLatestPointIsMutable(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Index.BaselineDays = 1
	s := newTestStore(models.Item{ID: 1, Category: "aroid"})
	d1, d2 := day(2024, time.March, 4), day(2024, time.March, 5)
	mustUpsert(s, priced(1, d1, 10, 3), priced(1, d2, 12, 3))
	calc := NewIndexCalculator(s, cfg)

	p1, err := calc.ComputeDailyIndex(ctx, d1)
	require.NoError(t, err)

	// latest point can be recomputed in place
	again, err := calc.ComputeDailyIndex(ctx, d1)
	require.NoError(t, err)
	assert.Equal(t, p1.OverallIndex, again.OverallIndex)

	_, err = calc.ComputeDailyIndex(ctx, d2)
	require.NoError(t, err)

	mustUpsert(s, priced(1, d1, 99, 3))
	closed, err := calc.ComputeDailyIndex(ctx, d1)
	require.NoError(t, err)
	assert.Equal(t, p1.OverallIndex, closed.OverallIndex)
}
