package usecase

import (
	"context"
	"fmt"
	"time"

	"PlantDex/internal/domain/models"
	domrepo "PlantDex/internal/domain/repository"
	domsvc "PlantDex/internal/domain/service"
	"PlantDex/internal/service/lock"
	enginemetrics "PlantDex/internal/service/metrics"
	"PlantDex/pkg/cache"
	applogger "PlantDex/pkg/logger"
)

// ComputeUseCase runs the write side of the engine. Recomputations of the same
// key are serialized and every successful write drops the cached reads.
type ComputeUseCase struct {
	catalog  domrepo.ItemCatalog
	agg      domsvc.Aggregator
	index    domsvc.IndexCalculator
	scorer   domsvc.Scorer
	detector domsvc.OpportunityDetector
	locks    *lock.KeyedLocker
	cache    cache.Service
	metrics  domrepo.Metrics
	l        *applogger.Logger
	now      func() time.Time
}

type ComputeOption func(*ComputeUseCase)

// WithComputeCache invalidates query cache entries after writes.
func WithComputeCache(c cache.Service) ComputeOption {
	return func(uc *ComputeUseCase) { uc.cache = c }
}

func WithComputeLogger(l *applogger.Logger) ComputeOption {
	return func(uc *ComputeUseCase) {
		if l != nil {
			uc.l = l
		}
	}
}

func WithComputeClock(now func() time.Time) ComputeOption {
	return func(uc *ComputeUseCase) {
		if now != nil {
			uc.now = now
		}
	}
}

func NewComputeUseCase(
	catalog domrepo.ItemCatalog,
	agg domsvc.Aggregator,
	index domsvc.IndexCalculator,
	scorer domsvc.Scorer,
	detector domsvc.OpportunityDetector,
	locks *lock.KeyedLocker,
	metrics domrepo.Metrics,
	opts ...ComputeOption,
) *ComputeUseCase {
	uc := &ComputeUseCase{
		catalog:  catalog,
		agg:      agg,
		index:    index,
		scorer:   scorer,
		detector: detector,
		locks:    locks,
		metrics:  metrics,
		l:        applogger.NewNop(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	if uc.locks == nil {
		uc.locks = lock.New()
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// CycleResult summarizes one full recompute pass.
type CycleResult struct {
	Date          time.Time               `json:"date"`
	Aggregated    int                     `json:"aggregated"`
	Index         models.MarketIndexPoint `json:"index"`
	Scored        int                     `json:"scored"`
	Opportunities int                     `json:"opportunities"`
	Duration      string                  `json:"duration"`
}

func errorClass(err error) string {
	switch {
	case models.IsNotFound(err):
		return "not_found"
	case models.IsInsufficientHistory(err):
		return "insufficient_history"
	case models.IsValidation(err):
		return "validation"
	default:
		return "internal"
	}
}

// observe records latency and outcome of one component call.
func (uc *ComputeUseCase) observe(component string, start time.Time, err error) {
	elapsed := time.Since(start).Seconds()
	enginemetrics.ComputeLatency.WithLabelValues(component).Observe(elapsed)
	uc.metrics.RecordLatency("compute_"+component, elapsed)
	if err != nil {
		enginemetrics.ComputeErrors.WithLabelValues(component, errorClass(err)).Inc()
		uc.metrics.RecordError("compute_" + component)
	}
}

func (uc *ComputeUseCase) invalidate(ctx context.Context) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.DeleteByPattern(ctx, cache.BuildPattern(QueryCachePrefix)); err != nil {
		uc.l.Warn("query cache invalidation failed", applogger.Error(err))
	}
}

func (uc *ComputeUseCase) today() time.Time {
	t := uc.now().UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Aggregate recomputes the (item, day) bucket of date.
func (uc *ComputeUseCase) Aggregate(ctx context.Context, itemID int64, date time.Time) (models.DailyAggregate, error) {
	if itemID <= 0 {
		return models.DailyAggregate{}, models.NewValidationError("item_id", "must be positive")
	}
	if date.IsZero() {
		date = uc.today()
	}
	start := time.Now()
	var out models.DailyAggregate
	err := uc.locks.WithLock(ctx, lock.AggregateKey(itemID, date), func() error {
		var err error
		out, err = uc.agg.Aggregate(ctx, itemID, date)
		return err
	})
	uc.observe("aggregate", start, err)
	if err != nil {
		return models.DailyAggregate{}, err
	}
	uc.invalidate(ctx)
	return out, nil
}

// AggregateDay aggregates date for every catalog item.
func (uc *ComputeUseCase) AggregateDay(ctx context.Context, date time.Time) ([]models.DailyAggregate, error) {
	items, err := uc.catalog.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	out := make([]models.DailyAggregate, 0, len(items))
	for _, it := range items {
		agg, err := uc.Aggregate(ctx, it.ID, date)
		if err != nil {
			return out, fmt.Errorf("aggregate item %d: %w", it.ID, err)
		}
		out = append(out, agg)
	}
	return out, nil
}

// Index computes the market index point of date.
func (uc *ComputeUseCase) Index(ctx context.Context, date time.Time) (models.MarketIndexPoint, error) {
	if date.IsZero() {
		date = uc.today()
	}
	start := time.Now()
	var p models.MarketIndexPoint
	err := uc.locks.WithLock(ctx, lock.IndexKey(date), func() error {
		var err error
		p, err = uc.index.ComputeDailyIndex(ctx, date)
		return err
	})
	uc.observe("index", start, err)
	if err != nil {
		return models.MarketIndexPoint{}, err
	}
	uc.metrics.RecordIndexValue("overall", p.OverallIndex)
	for cat, v := range p.PerCategoryIndices {
		uc.metrics.RecordIndexValue(cat, v)
	}
	uc.invalidate(ctx)
	return p, nil
}

// Score recomputes the investment score of itemID.
func (uc *ComputeUseCase) Score(ctx context.Context, itemID int64) (models.InvestmentScore, error) {
	if itemID <= 0 {
		return models.InvestmentScore{}, models.NewValidationError("item_id", "must be positive")
	}
	start := time.Now()
	var s models.InvestmentScore
	err := uc.locks.WithLock(ctx, lock.ScoreKey(itemID), func() error {
		var err error
		s, err = uc.scorer.ScoreItem(ctx, itemID)
		return err
	})
	uc.observe("score", start, err)
	if err != nil {
		return models.InvestmentScore{}, err
	}
	uc.invalidate(ctx)
	return s, nil
}

// ScoreAll scores every catalog item.
func (uc *ComputeUseCase) ScoreAll(ctx context.Context) ([]models.InvestmentScore, error) {
	items, err := uc.catalog.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	out := make([]models.InvestmentScore, 0, len(items))
	for _, it := range items {
		s, err := uc.Score(ctx, it.ID)
		if err != nil {
			return out, fmt.Errorf("score item %d: %w", it.ID, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// Detect runs opportunity detection as of asOf (now when zero).
func (uc *ComputeUseCase) Detect(ctx context.Context, asOf time.Time) ([]models.Opportunity, error) {
	if asOf.IsZero() {
		asOf = uc.now()
	}
	start := time.Now()
	var opps []models.Opportunity
	err := uc.locks.WithLock(ctx, lock.DetectKey, func() error {
		var err error
		opps, err = uc.detector.DetectOpportunities(ctx, asOf)
		return err
	})
	uc.observe("detect", start, err)
	if err != nil {
		return nil, err
	}
	for _, o := range opps {
		enginemetrics.OpportunitiesDetected.WithLabelValues(string(o.OpportunityType)).Inc()
	}
	uc.invalidate(ctx)
	return opps, nil
}

// RunCycle aggregates date for all items, computes its index point, rescores
// every item and runs detection.
func (uc *ComputeUseCase) RunCycle(ctx context.Context, date time.Time) (CycleResult, error) {
	if date.IsZero() {
		date = uc.today()
	}
	start := time.Now()
	res := CycleResult{Date: date.UTC()}

	aggs, err := uc.AggregateDay(ctx, date)
	res.Aggregated = len(aggs)
	if err != nil {
		uc.observe("cycle", start, err)
		return res, err
	}
	if res.Index, err = uc.Index(ctx, date); err != nil {
		uc.observe("cycle", start, err)
		return res, err
	}
	scores, err := uc.ScoreAll(ctx)
	res.Scored = len(scores)
	if err != nil {
		uc.observe("cycle", start, err)
		return res, err
	}
	opps, err := uc.Detect(ctx, time.Time{})
	res.Opportunities = len(opps)
	uc.observe("cycle", start, err)
	if err != nil {
		return res, err
	}
	res.Duration = time.Since(start).String()

	uc.l.Info("compute cycle done",
		applogger.Date("date", res.Date),
		applogger.Int("aggregated", res.Aggregated),
		applogger.Float64("index", res.Index.OverallIndex),
		applogger.Int("scored", res.Scored),
		applogger.Int("opportunities", res.Opportunities),
		applogger.String("duration", res.Duration),
	)
	return res, nil
}
