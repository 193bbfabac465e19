package service

import (
	"context"
	"time"

	"PlantDex/internal/domain/models"
)

// Aggregator rolls raw observations into per-item buckets.
type Aggregator interface {
	Aggregate(ctx context.Context, itemID int64, bucketDate time.Time) (models.DailyAggregate, error)
	Weekly(ctx context.Context, itemID int64, weekStart time.Time) (models.WeeklyAggregate, error)
}

// IndexCalculator computes the composite market index of a date.
type IndexCalculator interface {
	ComputeDailyIndex(ctx context.Context, date time.Time) (models.MarketIndexPoint, error)
}

// Scorer computes the investment score of an item.
type Scorer interface {
	ScoreItem(ctx context.Context, itemID int64) (models.InvestmentScore, error)
}

// Forecaster projects near-term demand of an item.
type Forecaster interface {
	Forecast(ctx context.Context, itemID int64, weeksAhead int) (models.DemandForecast, error)
}

// OpportunityDetector flags items deviating from their rolling baseline.
type OpportunityDetector interface {
	DetectOpportunities(ctx context.Context, asOf time.Time) ([]models.Opportunity, error)
}
