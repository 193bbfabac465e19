package intelligence

import (
	"context"
	"fmt"
	"time"

	"PlantDex/internal/domain/models"
	"PlantDex/internal/domain/repository"
	domsvc "PlantDex/internal/domain/service"
	"PlantDex/internal/services/features"
	"PlantDex/pkg/config"
)

const (
	trendIncreasing = "increasing"
	trendDecreasing = "decreasing"
	trendStable     = "stable"
)

// DemandForecaster projects weekly demand from recent weekly rollups. Nothing is persisted.
type DemandForecaster struct {
	store repository.EngineStore
	cfg   config.EngineConfig
	opts  options
}

func NewForecaster(store repository.EngineStore, cfg config.EngineConfig, opts ...Option) *DemandForecaster {
	return &DemandForecaster{store: store, cfg: cfg, opts: buildOptions(opts)}
}

// Forecast returns weeksAhead projected points starting the week after the current one.
func (f *DemandForecaster) Forecast(ctx context.Context, itemID int64, weeksAhead int) (models.DemandForecast, error) {
	if weeksAhead < 1 || weeksAhead > f.cfg.MaxForecastWeeks {
		return models.DemandForecast{}, models.NewValidationError("weeks_ahead", "must be within [1,%d], got %d", f.cfg.MaxForecastWeeks, weeksAhead)
	}
	if _, err := f.store.GetItem(ctx, itemID); err != nil {
		return models.DemandForecast{}, fmt.Errorf("forecast: %w", err)
	}

	weeks, err := f.recentWeeks(ctx, itemID)
	if err != nil {
		return models.DemandForecast{}, err
	}
	if len(weeks) == 0 {
		return models.DemandForecast{}, &models.InsufficientHistoryError{ItemID: itemID, Needed: "at least one weekly rollup"}
	}

	currentWeek, _ := repository.BucketRange(repository.BucketWeekly, f.opts.now())
	return ProjectDemand(itemID, currentWeek, weeks, weeksAhead), nil
}

// recentWeeks returns the weekly rollups with data among the last ForecastWindow weeks, oldest first.
func (f *DemandForecaster) recentWeeks(ctx context.Context, itemID int64) ([]models.WeeklyAggregate, error) {
	currentWeek, end := repository.BucketRange(repository.BucketWeekly, f.opts.now())
	first := currentWeek.AddDate(0, 0, -7*(f.cfg.ForecastWindow-1))
	rows, err := f.store.ListItemAggregates(ctx, itemID, first, end.AddDate(0, 0, -1))
	if err != nil {
		return nil, fmt.Errorf("list item aggregates: %w", err)
	}

	byWeek := make(map[time.Time][]models.DailyAggregate)
	for _, r := range rows {
		ws, _ := repository.BucketRange(repository.BucketWeekly, r.BucketDate)
		byWeek[ws] = append(byWeek[ws], r)
	}
	out := make([]models.WeeklyAggregate, 0, f.cfg.ForecastWindow)
	for ws := first; !ws.After(currentWeek); ws = ws.AddDate(0, 0, 7) {
		days, ok := byWeek[ws]
		if !ok {
			continue
		}
		out = append(out, BuildWeeklyAggregate(itemID, ws, days, f.cfg))
	}
	return out, nil
}

// ProjectDemand extrapolates the demand trend of weeks (oldest first) over the horizon.
// The trend is (oldest - newest) / number of weeks; supply is held at its average.
func ProjectDemand(itemID int64, currentWeek time.Time, weeks []models.WeeklyAggregate, weeksAhead int) models.DemandForecast {
	demand := make([]float64, 0, len(weeks))
	supply := make([]float64, 0, len(weeks))
	for _, w := range weeks {
		demand = append(demand, w.DemandScore)
		supply = append(supply, w.SupplyScore)
	}
	out := models.DemandForecast{
		ItemID:        itemID,
		WeeksAhead:    weeksAhead,
		HistoryWeeks:  len(weeks),
		CurrentDemand: features.Mean(demand),
		CurrentSupply: features.Mean(supply),
		Points:        make([]models.DemandForecastPoint, 0, weeksAhead),
	}
	if n := len(demand); n > 0 {
		out.DemandTrend = (demand[0] - demand[n-1]) / float64(n)
	}
	switch {
	case out.DemandTrend > 0:
		out.TrendDirection = trendIncreasing
	case out.DemandTrend < 0:
		out.TrendDirection = trendDecreasing
	default:
		out.TrendDirection = trendStable
	}

	for week := 1; week <= weeksAhead; week++ {
		p := models.DemandForecastPoint{
			ItemID:          itemID,
			HorizonWeek:     week,
			WeekStart:       currentWeek.AddDate(0, 0, 7*week),
			ProjectedDemand: features.Clamp(out.CurrentDemand+out.DemandTrend*float64(week), 0, 100),
			SupplyScore:     out.CurrentSupply,
		}
		if p.SupplyScore > 0 {
			ratio := p.ProjectedDemand / p.SupplyScore
			p.DemandSupplyRatio = &ratio
		}
		out.Points = append(out.Points, p)
	}
	return out
}

var _ domsvc.Forecaster = (*DemandForecaster)(nil)
