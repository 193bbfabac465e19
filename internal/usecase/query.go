package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PlantDex/internal/domain/models"
	domrepo "PlantDex/internal/domain/repository"
	domsvc "PlantDex/internal/domain/service"
	enginemetrics "PlantDex/internal/service/metrics"
	"PlantDex/internal/services/intelligence"
	"PlantDex/pkg/cache"
	applogger "PlantDex/pkg/logger"
	"PlantDex/pkg/util"
)

// QueryCachePrefix namespaces cached query results; compute writes drop it.
const QueryCachePrefix = "query:"

const (
	defaultIndexDays = 30
	maxIndexDays     = 366
)

// QueryUseCase is the read-only side of the engine. It never recomputes stored
// metrics; forecasts and insights are derived from stored rows on read.
type QueryUseCase struct {
	store      domrepo.EngineStore
	obs        domrepo.ObservationSource
	agg        domsvc.Aggregator
	forecaster domsvc.Forecaster
	cache      cache.Service
	ttl        time.Duration
	l          *applogger.Logger
	now        func() time.Time
}

type QueryOption func(*QueryUseCase)

// WithQueryCache serves reads from c for ttl.
func WithQueryCache(c cache.Service, ttl time.Duration) QueryOption {
	return func(uc *QueryUseCase) {
		uc.cache = c
		if ttl > 0 {
			uc.ttl = ttl
		}
	}
}

func WithQueryLogger(l *applogger.Logger) QueryOption {
	return func(uc *QueryUseCase) {
		if l != nil {
			uc.l = l
		}
	}
}

func WithQueryClock(now func() time.Time) QueryOption {
	return func(uc *QueryUseCase) {
		if now != nil {
			uc.now = now
		}
	}
}

func NewQueryUseCase(
	store domrepo.EngineStore,
	obs domrepo.ObservationSource,
	agg domsvc.Aggregator,
	forecaster domsvc.Forecaster,
	opts ...QueryOption,
) *QueryUseCase {
	uc := &QueryUseCase{
		store:      store,
		obs:        obs,
		agg:        agg,
		forecaster: forecaster,
		ttl:        time.Minute,
		l:          applogger.NewNop(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// cached serves key from the query cache, filling it from load on a miss.
// Cache failures degrade to a direct load.
func cached[T any](ctx context.Context, uc *QueryUseCase, endpoint string, key string, load func() (T, error)) (T, error) {
	start := time.Now()
	defer func() {
		enginemetrics.QueryLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	if uc.cache == nil {
		return load()
	}
	full := QueryCachePrefix + key
	var v T
	err := uc.cache.Get(ctx, full, &v)
	if err == nil {
		enginemetrics.QueryCache.WithLabelValues(endpoint, "hit").Inc()
		return v, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		uc.l.Warn("query cache read failed", applogger.String("key", full), applogger.Error(err))
	}
	enginemetrics.QueryCache.WithLabelValues(endpoint, "miss").Inc()

	v, err = load()
	if err != nil {
		return v, err
	}
	if err := uc.cache.Set(ctx, full, v, uc.ttl); err != nil {
		uc.l.Warn("query cache write failed", applogger.String("key", full), applogger.Error(err))
	}
	return v, nil
}

// GetIndex returns stored index points with from <= date <= to. Zero bounds
// default to the trailing 30 days ending today.
func (uc *QueryUseCase) GetIndex(ctx context.Context, from, to time.Time) ([]models.MarketIndexPoint, error) {
	if to.IsZero() {
		to = uc.now()
	}
	if from.IsZero() {
		from = util.StartOfDay(to).AddDate(0, 0, -(defaultIndexDays - 1))
	}
	if util.StartOfDay(to).Before(util.StartOfDay(from)) {
		return nil, models.NewValidationError("to", "must not be before from")
	}
	from, to = util.AlignDateRange(from, to)
	if to.Sub(from) > maxIndexDays*24*time.Hour {
		return nil, models.NewValidationError("range", "must span at most %d days", maxIndexDays)
	}

	key := cache.GenerateKeyWithParams("index", from.Format(util.DateLayout), to.Format(util.DateLayout))
	return cached(ctx, uc, "index", key, func() ([]models.MarketIndexPoint, error) {
		pts, err := uc.store.ListIndexPoints(ctx, from, to)
		if err != nil {
			return nil, fmt.Errorf("list index points: %w", err)
		}
		if pts == nil {
			pts = []models.MarketIndexPoint{}
		}
		return pts, nil
	})
}

// unscored is returned for catalog items that have not been scored yet.
func unscored(itemID int64) models.InvestmentScore {
	return models.InvestmentScore{
		ItemID:           itemID,
		RiskTier:         models.RiskHigh,
		TrendDirection:   models.TrendStable,
		InsufficientData: true,
	}
}

// GetScore returns the stored score of itemID. An item without a stored score
// gets an insufficient-data placeholder; an unknown item is a NotFoundError.
func (uc *QueryUseCase) GetScore(ctx context.Context, itemID int64) (models.InvestmentScore, error) {
	key := cache.GenerateKeyWithParams("score", itemID)
	return cached(ctx, uc, "score", key, func() (models.InvestmentScore, error) {
		if _, err := uc.store.GetItem(ctx, itemID); err != nil {
			return models.InvestmentScore{}, err
		}
		s, ok, err := uc.store.GetScore(ctx, itemID)
		if err != nil {
			return models.InvestmentScore{}, fmt.Errorf("get score: %w", err)
		}
		if !ok {
			return unscored(itemID), nil
		}
		return s, nil
	})
}

// GetOpportunities returns active, unexpired opportunities by confidence desc.
func (uc *QueryUseCase) GetOpportunities(ctx context.Context, f models.OpportunityFilter, limit int) ([]models.Opportunity, error) {
	if f.Type != "" && !models.IsValidOpportunityType(f.Type) {
		return nil, models.NewValidationError("type", "unknown opportunity type %q", f.Type)
	}
	if limit <= 0 {
		limit = 20
	}
	key := cache.GenerateKeyWithParams("opportunities", f.Type, f.ItemID, limit)
	return cached(ctx, uc, "opportunities", key, func() ([]models.Opportunity, error) {
		opps, err := uc.store.ListActiveOpportunities(ctx, f, uc.now(), limit)
		if err != nil {
			return nil, fmt.Errorf("list opportunities: %w", err)
		}
		if opps == nil {
			opps = []models.Opportunity{}
		}
		return opps, nil
	})
}

// GetForecast projects demand of itemID over weeksAhead weeks.
func (uc *QueryUseCase) GetForecast(ctx context.Context, itemID int64, weeksAhead int) (models.DemandForecast, error) {
	key := cache.GenerateKeyWithParams("forecast", itemID, weeksAhead)
	return cached(ctx, uc, "forecast", key, func() (models.DemandForecast, error) {
		return uc.forecaster.Forecast(ctx, itemID, weeksAhead)
	})
}

func (uc *QueryUseCase) scores(ctx context.Context) ([]models.InvestmentScore, error) {
	scores, err := uc.store.ListScores(ctx)
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	return scores, nil
}

// Sentiment summarizes the trend directions of all stored scores.
func (uc *QueryUseCase) Sentiment(ctx context.Context) (models.MarketSentiment, error) {
	return cached(ctx, uc, "sentiment", "sentiment", func() (models.MarketSentiment, error) {
		scores, err := uc.scores(ctx)
		if err != nil {
			return models.MarketSentiment{}, err
		}
		return intelligence.Sentiment(scores), nil
	})
}

// TopMovers returns the highest scored items.
func (uc *QueryUseCase) TopMovers(ctx context.Context, limit int) ([]models.InvestmentScore, error) {
	key := cache.GenerateKeyWithParams("top_movers", limit)
	return cached(ctx, uc, "top_movers", key, func() ([]models.InvestmentScore, error) {
		scores, err := uc.scores(ctx)
		if err != nil {
			return nil, err
		}
		return intelligence.TopMovers(scores, limit), nil
	})
}

// Stats reports catalog, score and opportunity counters plus the latest index point.
func (uc *QueryUseCase) Stats(ctx context.Context) (models.MarketStats, error) {
	return cached(ctx, uc, "stats", "stats", func() (models.MarketStats, error) {
		var out models.MarketStats
		items, err := uc.store.ListItems(ctx)
		if err != nil {
			return out, fmt.Errorf("list items: %w", err)
		}
		out.TrackedItems = len(items)

		scores, err := uc.scores(ctx)
		if err != nil {
			return out, err
		}
		total := 0.0
		for _, s := range scores {
			total += s.Score
			if s.RiskTier == models.RiskLow {
				out.LowRiskItems++
			}
		}
		if len(scores) > 0 {
			out.AverageScore = total / float64(len(scores))
		}

		if out.ActiveOpportunities, out.TotalOpportunities, err = uc.store.CountOpportunities(ctx); err != nil {
			return out, fmt.Errorf("count opportunities: %w", err)
		}
		active, err := uc.store.ListActiveOpportunities(ctx, models.OpportunityFilter{}, uc.now(), 0)
		if err != nil {
			return out, fmt.Errorf("list opportunities: %w", err)
		}
		out.ActiveByType = make(map[string]int, len(models.OpportunityTypes))
		for _, t := range models.OpportunityTypes {
			out.ActiveByType[string(t)] = 0
		}
		for _, o := range active {
			out.ActiveByType[string(o.OpportunityType)]++
		}

		p, ok, err := uc.store.LatestIndexPoint(ctx)
		if err != nil {
			return out, fmt.Errorf("latest index point: %w", err)
		}
		if ok {
			out.CurrentIndex = &p
		}
		return out, nil
	})
}

// Trending ranks items by this week's demand score against the previous week.
// Items without any activity this week are left out.
func (uc *QueryUseCase) Trending(ctx context.Context, limit int) ([]models.TrendingItem, error) {
	key := cache.GenerateKeyWithParams("trending", limit)
	return cached(ctx, uc, "trending", key, func() ([]models.TrendingItem, error) {
		items, err := uc.store.ListItems(ctx)
		if err != nil {
			return nil, fmt.Errorf("list items: %w", err)
		}
		week, _ := domrepo.BucketRange(domrepo.BucketWeekly, uc.now())
		prevWeek := week.AddDate(0, 0, -7)

		out := make([]models.TrendingItem, 0, len(items))
		for _, it := range items {
			cur, err := uc.agg.Weekly(ctx, it.ID, week)
			if err != nil {
				return nil, fmt.Errorf("weekly %d: %w", it.ID, err)
			}
			if cur.ObservationCount == 0 && cur.SearchVolume == 0 && cur.SalesVolume == 0 {
				continue
			}
			prev, err := uc.agg.Weekly(ctx, it.ID, prevWeek)
			if err != nil {
				return nil, fmt.Errorf("weekly %d: %w", it.ID, err)
			}
			out = append(out, intelligence.Trend(it, cur, prev))
		}
		return intelligence.RankTrending(out, limit), nil
	})
}

// ItemAnalysis joins the score of itemID with a recommendation and its active opportunities.
func (uc *QueryUseCase) ItemAnalysis(ctx context.Context, itemID int64) (models.ItemAnalysis, error) {
	key := cache.GenerateKeyWithParams("analysis", itemID)
	return cached(ctx, uc, "analysis", key, func() (models.ItemAnalysis, error) {
		it, err := uc.store.GetItem(ctx, itemID)
		if err != nil {
			return models.ItemAnalysis{}, err
		}
		s, ok, err := uc.store.GetScore(ctx, itemID)
		if err != nil {
			return models.ItemAnalysis{}, fmt.Errorf("get score: %w", err)
		}
		if !ok {
			return models.ItemAnalysis{}, &models.NotFoundError{Resource: "score", Key: fmt.Sprintf("%d", itemID)}
		}
		opps, err := uc.store.ListActiveOpportunities(ctx, models.OpportunityFilter{ItemID: itemID}, uc.now(), 0)
		if err != nil {
			return models.ItemAnalysis{}, fmt.Errorf("list opportunities: %w", err)
		}
		if opps == nil {
			opps = []models.Opportunity{}
		}
		return models.ItemAnalysis{
			Item:           it,
			Score:          s,
			Recommendation: intelligence.Recommend(s.Score),
			Opportunities:  opps,
		}, nil
	})
}

// PriceAnalysis groups the last days of observations of itemID by source.
func (uc *QueryUseCase) PriceAnalysis(ctx context.Context, itemID int64, days int) (models.PriceAnalysis, error) {
	if days <= 0 {
		days = 30
	}
	key := cache.GenerateKeyWithParams("prices", itemID, days)
	return cached(ctx, uc, "prices", key, func() (models.PriceAnalysis, error) {
		if _, err := uc.store.GetItem(ctx, itemID); err != nil {
			return models.PriceAnalysis{}, err
		}
		to := uc.now()
		from := to.AddDate(0, 0, -days)
		obs, err := uc.obs.GetObservations(ctx, itemID, from, to)
		if err != nil {
			return models.PriceAnalysis{}, fmt.Errorf("get observations: %w", err)
		}
		return intelligence.PriceAnalysis(itemID, days, from, to, obs), nil
	})
}
