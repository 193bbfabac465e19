package repository

import (
	"context"
	"time"

	"PlantDex/internal/domain/models"
)

// ObservationSource is the read side of the observation store.
type ObservationSource interface {
	GetObservations(ctx context.Context, itemID int64, from, to time.Time) ([]models.Observation, error)
}

// CounterSource supplies companion search/sales counters. Missing rows read as zeros.
type CounterSource interface {
	GetCompanionCounters(ctx context.Context, itemID int64, date time.Time) (models.CompanionCounters, error)
}

// CounterRecorder is the write side of the companion counters.
type CounterRecorder interface {
	RecordCompanionCounters(ctx context.Context, itemID int64, date time.Time, c models.CompanionCounters) error
}

// SeasonalReferenceSource supplies per-category high-demand months.
type SeasonalReferenceSource interface {
	GetSeasonalReference(ctx context.Context, category string) (models.SeasonalReference, error)
}

// ItemCatalog is the read-only plant catalog. GetItem returns a *models.NotFoundError
// for unknown ids.
type ItemCatalog interface {
	GetItem(ctx context.Context, itemID int64) (models.Item, error)
	ListItems(ctx context.Context) ([]models.Item, error)
}

// ItemWriter seeds the catalog.
type ItemWriter interface {
	UpsertItem(ctx context.Context, it models.Item) error
}

// AggregateStore keeps DailyAggregate rows keyed by (item_id, bucket_date).
type AggregateStore interface {
	UpsertDailyAggregate(ctx context.Context, agg models.DailyAggregate) error
	GetDailyAggregate(ctx context.Context, itemID int64, date time.Time) (models.DailyAggregate, bool, error)
	// ListDailyAggregatesByDate returns every item's row for date.
	ListDailyAggregatesByDate(ctx context.Context, date time.Time) ([]models.DailyAggregate, error)
	// ListDailyAggregatesBetween returns all rows with from <= bucket_date <= to, oldest first.
	ListDailyAggregatesBetween(ctx context.Context, from, to time.Time) ([]models.DailyAggregate, error)
	// ListItemAggregates returns an item's rows with from <= bucket_date <= to, oldest first.
	ListItemAggregates(ctx context.Context, itemID int64, from, to time.Time) ([]models.DailyAggregate, error)
	// ListRecentAggregates returns up to limit rows with bucket_date <= asOf, most recent first.
	ListRecentAggregates(ctx context.Context, itemID int64, asOf time.Time, limit int) ([]models.DailyAggregate, error)
	// EarliestPricedDate returns the first bucket_date with observation_count > 0.
	EarliestPricedDate(ctx context.Context) (time.Time, bool, error)
}

// IndexStore keeps one MarketIndexPoint per calendar date.
type IndexStore interface {
	UpsertIndexPoint(ctx context.Context, p models.MarketIndexPoint) error
	GetIndexPoint(ctx context.Context, date time.Time) (models.MarketIndexPoint, bool, error)
	LatestIndexPoint(ctx context.Context) (models.MarketIndexPoint, bool, error)
	ListIndexPoints(ctx context.Context, from, to time.Time) ([]models.MarketIndexPoint, error)
}

// ScoreStore keeps one current InvestmentScore per item.
type ScoreStore interface {
	UpsertScore(ctx context.Context, s models.InvestmentScore) error
	GetScore(ctx context.Context, itemID int64) (models.InvestmentScore, bool, error)
	ListScores(ctx context.Context) ([]models.InvestmentScore, error)
}

// OpportunityStore keeps the opportunity audit trail.
type OpportunityStore interface {
	// ExpireOpportunities soft-closes active rows with expires_at <= asOf.
	ExpireOpportunities(ctx context.Context, asOf time.Time) (int, error)
	// SupersedeOpportunity deactivates the active row of the same item+type and
	// inserts opp in one atomic step. It returns the number of rows closed.
	SupersedeOpportunity(ctx context.Context, opp models.Opportunity) (int, error)
	// ListActiveOpportunities returns active rows ordered by confidence desc.
	// A non-zero activeAt additionally requires expires_at > activeAt.
	ListActiveOpportunities(ctx context.Context, f models.OpportunityFilter, activeAt time.Time, limit int) ([]models.Opportunity, error)
	CountOpportunities(ctx context.Context) (active, total int, err error)
}

// EngineStore groups the keyed stores the engine writes to.
type EngineStore interface {
	ItemCatalog
	AggregateStore
	IndexStore
	ScoreStore
	OpportunityStore
}

// ObservationStorage is the append side of the observation store.
type ObservationStorage interface {
	Init(ctx context.Context) error
	Store(ctx context.Context, o *models.Observation) error
	StoreBatch(ctx context.Context, obs []*models.Observation) error
	Health(ctx context.Context) error
	Close() error
}

// ObservationPublisher ships observations to the ingest topic.
type ObservationPublisher interface {
	Publish(ctx context.Context, o *models.Observation) error
	PublishBatch(ctx context.Context, obs []*models.Observation) error
	Close() error
}

// PriceFeed is a live marketplace listing stream.
type PriceFeed interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Observation, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

type Metrics interface {
	RecordObservation(backend, source string)
	RecordError(kind string)
	RecordIndexValue(category string, value float64)
	RecordLatency(op string, seconds float64)
}
