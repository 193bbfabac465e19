package intelligence

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"PlantDex/internal/domain/models"
	"PlantDex/internal/domain/repository"
	domsvc "PlantDex/internal/domain/service"
	"PlantDex/internal/services/features"
	"PlantDex/pkg/config"
	applogger "PlantDex/pkg/logger"
)

// MarketIndexCalculator builds the composite daily market index.
type MarketIndexCalculator struct {
	store repository.EngineStore
	cfg   config.EngineConfig
	opts  options
}

func NewIndexCalculator(store repository.EngineStore, cfg config.EngineConfig, opts ...Option) *MarketIndexCalculator {
	return &MarketIndexCalculator{store: store, cfg: cfg, opts: buildOptions(opts)}
}

type categoryBucket struct {
	sum   float64
	items int
}

// ComputeDailyIndex computes and stores the index point of date. Points older
// than the latest stored point are closed and returned as stored.
func (c *MarketIndexCalculator) ComputeDailyIndex(ctx context.Context, date time.Time) (models.MarketIndexPoint, error) {
	day := dayOf(date)
	prevDay := day.AddDate(0, 0, -1)

	stored, hasStored, err := c.store.GetIndexPoint(ctx, day)
	if err != nil {
		return models.MarketIndexPoint{}, fmt.Errorf("get index point: %w", err)
	}
	if hasStored {
		latest, ok, err := c.store.LatestIndexPoint(ctx)
		if err != nil {
			return models.MarketIndexPoint{}, fmt.Errorf("latest index point: %w", err)
		}
		if ok && dayOf(latest.IndexDate).After(day) {
			return stored, nil
		}
	}

	items, err := c.store.ListItems(ctx)
	if err != nil {
		return models.MarketIndexPoint{}, fmt.Errorf("list items: %w", err)
	}
	todayRows, err := c.store.ListDailyAggregatesByDate(ctx, day)
	if err != nil {
		return models.MarketIndexPoint{}, fmt.Errorf("list aggregates %s: %w", day.Format("2006-01-02"), err)
	}
	prevRows, err := c.store.ListDailyAggregatesByDate(ctx, prevDay)
	if err != nil {
		return models.MarketIndexPoint{}, fmt.Errorf("list aggregates %s: %w", prevDay.Format("2006-01-02"), err)
	}
	prevPoint, hasPrev, err := c.store.GetIndexPoint(ctx, prevDay)
	if err != nil {
		return models.MarketIndexPoint{}, fmt.Errorf("get previous index point: %w", err)
	}

	categoryOf := make(map[int64]string, len(items))
	for _, it := range items {
		categoryOf[it.ID] = it.Category
	}
	today := make(map[int64]models.DailyAggregate, len(todayRows))
	for _, r := range todayRows {
		today[r.ItemID] = r
	}
	prev := make(map[int64]models.DailyAggregate, len(prevRows))
	for _, r := range prevRows {
		prev[r.ItemID] = r
	}

	buckets := make(map[string]*categoryBucket)
	sources := make(map[string]struct{})
	carried := 0
	for _, it := range items {
		var mean float64
		if agg, ok := today[it.ID]; ok && agg.HasPrice() {
			mean = agg.MeanPrice
			for _, s := range agg.Sources {
				sources[s] = struct{}{}
			}
		} else if p, ok := prev[it.ID]; ok && p.HasPrice() {
			mean = p.MeanPrice
			carried++
		} else {
			continue
		}
		b := buckets[it.Category]
		if b == nil {
			b = &categoryBucket{}
			buckets[it.Category] = b
		}
		b.sum += mean
		b.items++
	}

	point := models.MarketIndexPoint{IndexDate: day, PerCategoryIndices: map[string]float64{}}
	tracked := 0
	for _, b := range buckets {
		tracked += b.items
	}

	switch {
	case tracked == 0 && hasPrev:
		point.OverallIndex = prevPoint.OverallIndex
		for k, v := range prevPoint.PerCategoryIndices {
			point.PerCategoryIndices[k] = v
		}
	case tracked == 0:
		point.OverallIndex = c.cfg.Index.DefaultValue
	default:
		baselines, err := c.categoryBaselines(ctx, day, categoryOf)
		if err != nil {
			return models.MarketIndexPoint{}, err
		}
		counts := make(map[string]int, len(buckets))
		for cat, b := range buckets {
			raw := b.sum / float64(b.items)
			base, ok := baselines[cat]
			if !ok || base <= 0 {
				base = c.cfg.Index.BaselinePrice
			}
			if base <= 0 {
				base = raw
			}
			sub := c.cfg.Index.BaseValue
			if base > 0 {
				sub = c.cfg.Index.BaseValue * raw / base
			}
			point.PerCategoryIndices[cat] = sub
			counts[cat] = b.items
		}
		point.OverallIndex = WeightedIndex(point.PerCategoryIndices, counts)
		point.TotalTrackedItems = tracked
		point.CarriedForwardItems = carried
		point.TotalSources = len(sources)
		point.ConfidenceScore = IndexConfidence(len(sources), c.cfg.Index.ExpectedSources, carried, tracked, c.cfg.Index.CarryForwardPenalty)
		if hasPrev {
			point.ChangeFromPreviousPct = features.GrowthPct(prevPoint.OverallIndex, point.OverallIndex)
		}
	}

	if err := c.store.UpsertIndexPoint(ctx, point); err != nil {
		return models.MarketIndexPoint{}, fmt.Errorf("upsert index point: %w", err)
	}
	c.opts.log.Info("market index computed",
		applogger.Date("index_date", day),
		applogger.Float64("overall_index", point.OverallIndex),
		applogger.Int("tracked_items", point.TotalTrackedItems),
		applogger.Int("carried_forward", point.CarriedForwardItems),
		applogger.Float64("confidence", point.ConfidenceScore),
	)
	return point, nil
}

// categoryBaselines returns, per category, the mean of its daily raw means over
// the first BaselineDays days that carried priced data on or before day.
func (c *MarketIndexCalculator) categoryBaselines(ctx context.Context, day time.Time, categoryOf map[int64]string) (map[string]float64, error) {
	out := make(map[string]float64)
	earliest, ok, err := c.store.EarliestPricedDate(ctx)
	if err != nil {
		return nil, fmt.Errorf("earliest priced date: %w", err)
	}
	if !ok || dayOf(earliest).After(day) {
		return out, nil
	}
	rows, err := c.store.ListDailyAggregatesBetween(ctx, dayOf(earliest), day)
	if err != nil {
		return nil, fmt.Errorf("list baseline aggregates: %w", err)
	}

	// category -> day -> bucket
	daily := make(map[string]map[time.Time]*categoryBucket)
	for _, r := range rows {
		cat, known := categoryOf[r.ItemID]
		if !known || !r.HasPrice() {
			continue
		}
		d := dayOf(r.BucketDate)
		if daily[cat] == nil {
			daily[cat] = make(map[time.Time]*categoryBucket)
		}
		b := daily[cat][d]
		if b == nil {
			b = &categoryBucket{}
			daily[cat][d] = b
		}
		b.sum += r.MeanPrice
		b.items++
	}

	limit := c.cfg.Index.BaselineDays
	if limit < 1 {
		limit = 1
	}
	for cat, byDay := range daily {
		days := make([]time.Time, 0, len(byDay))
		for d := range byDay {
			days = append(days, d)
		}
		sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
		if len(days) > limit {
			days = days[:limit]
		}
		raws := make([]float64, 0, len(days))
		for _, d := range days {
			b := byDay[d]
			raws = append(raws, b.sum/float64(b.items))
		}
		out[cat] = features.Mean(raws)
	}
	return out, nil
}

// WeightedIndex combines per-category sub-indices weighted by their tracked item counts.
func WeightedIndex(subIndices map[string]float64, itemCounts map[string]int) float64 {
	cats := make([]string, 0, len(subIndices))
	for cat := range subIndices {
		cats = append(cats, cat)
	}
	sort.Strings(cats)

	sum, weight := 0.0, 0
	for _, cat := range cats {
		n := itemCounts[cat]
		if n <= 0 {
			continue
		}
		sum += subIndices[cat] * float64(n)
		weight += n
	}
	if weight == 0 {
		return 0
	}
	return sum / float64(weight)
}

// IndexConfidence scales source coverage to [0,100] and discounts carried-forward items.
func IndexConfidence(sources, expected, carried, tracked int, penalty float64) float64 {
	if sources <= 0 || expected <= 0 {
		return 0
	}
	conf := math.Min(100, 100*float64(sources)/float64(expected))
	if tracked > 0 && carried > 0 {
		conf *= 1 - penalty*float64(carried)/float64(tracked)
	}
	return features.Clamp(conf, 0, 100)
}

var _ domsvc.IndexCalculator = (*MarketIndexCalculator)(nil)
