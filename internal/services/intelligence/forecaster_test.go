package intelligence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PlantDex/internal/domain/models"
)

func TestProjectDemandExtrapolatesTrend(t *testing.T) {
	monday := day(2024, time.March, 11)
	weeks := []models.WeeklyAggregate{
		{WeekStart: monday.AddDate(0, 0, -14), DemandScore: 60, SupplyScore: 20},
		{WeekStart: monday.AddDate(0, 0, -7), DemandScore: 50, SupplyScore: 30},
		{WeekStart: monday, DemandScore: 40, SupplyScore: 40},
	}

	fc := ProjectDemand(7, monday, weeks, 12)
	require.Len(t, fc.Points, 12)
	assert.Equal(t, 3, fc.HistoryWeeks)
	assert.InDelta(t, 50.0, fc.CurrentDemand, 1e-9)
	assert.InDelta(t, 30.0, fc.CurrentSupply, 1e-9)
	// (oldest - newest) / 3
	assert.InDelta(t, 20.0/3, fc.DemandTrend, 1e-9)
	assert.Equal(t, "increasing", fc.TrendDirection)

	first := fc.Points[0]
	assert.Equal(t, 1, first.HorizonWeek)
	assert.Equal(t, monday.AddDate(0, 0, 7), first.WeekStart)
	assert.InDelta(t, 50+20.0/3, first.ProjectedDemand, 1e-9)
	require.NotNil(t, first.DemandSupplyRatio)
	assert.InDelta(t, (50+20.0/3)/30, *first.DemandSupplyRatio, 1e-9)

	assert.Equal(t, 100.0, fc.Points[11].ProjectedDemand)
}

func TestProjectDemandClampsAtZeroAndNilRatio(t *testing.T) {
	monday := day(2024, time.March, 11)
	weeks := []models.WeeklyAggregate{
		{WeekStart: monday.AddDate(0, 0, -7), DemandScore: 10},
		{WeekStart: monday, DemandScore: 90},
	}
	fc := ProjectDemand(7, monday, weeks, 4)
	assert.Equal(t, "decreasing", fc.TrendDirection)
	for _, p := range fc.Points {
		assert.GreaterOrEqual(t, p.ProjectedDemand, 0.0)
		assert.LessOrEqual(t, p.ProjectedDemand, 100.0)
		assert.Nil(t, p.DemandSupplyRatio)
	}
	assert.Equal(t, 0.0, fc.Points[3].ProjectedDemand)
}

func TestProjectDemandSingleWeekIsStable(t *testing.T) {
	monday := day(2024, time.March, 11)
	fc := ProjectDemand(7, monday, []models.WeeklyAggregate{{WeekStart: monday, DemandScore: 42, SupplyScore: 21}}, 3)
	assert.Equal(t, "stable", fc.TrendDirection)
	for _, p := range fc.Points {
		assert.Equal(t, 42.0, p.ProjectedDemand)
		require.NotNil(t, p.DemandSupplyRatio)
		assert.InDelta(t, 2.0, *p.DemandSupplyRatio, 1e-9)
	}
}

func TestForecastValidatesHorizon(t *testing.T) {
	s := newTestStore(models.Item{ID: 1, Category: "aroid"})
	f := NewForecaster(s, testConfig())
	for _, weeks := range []int{0, -1, 13} {
		_, err := f.Forecast(context.Background(), 1, weeks)
		assert.True(t, models.IsValidation(err), "weeks=%d", weeks)
	}
}

func TestForecastErrors(t *testing.T) {
	s := newTestStore(models.Item{ID: 1, Category: "aroid"})
	f := NewForecaster(s, testConfig(), WithClock(fixedClock(day(2024, time.March, 13))))

	_, err := f.Forecast(context.Background(), 2, 4)
	assert.True(t, models.IsNotFound(err))

	_, err = f.Forecast(context.Background(), 1, 4)
	assert.True(t, models.IsInsufficientHistory(err))
}

func TestForecastFromStoredAggregates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(models.Item{ID: 1, Category: "aroid"})
	prevWeek := priced(1, day(2024, time.March, 5), 10, 2)
	prevWeek.SearchVolume = 300
	prevWeek.StockQuantity = 50
	thisWeek := priced(1, day(2024, time.March, 12), 10, 2)
	thisWeek.SearchVolume = 100
	thisWeek.StockQuantity = 50
	tooOld := priced(1, day(2024, time.January, 2), 10, 2)
	tooOld.SearchVolume = 100000
	mustUpsert(s, prevWeek, thisWeek, tooOld)

	f := NewForecaster(s, testConfig(), WithClock(fixedClock(time.Date(2024, time.March, 13, 9, 0, 0, 0, time.UTC))))
	fc, err := f.Forecast(ctx, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, 2, fc.HistoryWeeks)
	require.Len(t, fc.Points, 4)
	assert.Equal(t, day(2024, time.March, 18), fc.Points[0].WeekStart)
	// demand 75 then 50
	assert.InDelta(t, 62.5, fc.CurrentDemand, 1e-9)
	assert.InDelta(t, 12.5, fc.DemandTrend, 1e-9)
	assert.InDelta(t, 50.0, fc.CurrentSupply, 1e-9)
}
