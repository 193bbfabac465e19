package intelligence

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"PlantDex/internal/domain/models"
	"PlantDex/internal/domain/repository"
	domsvc "PlantDex/internal/domain/service"
	"PlantDex/internal/services/features"
	"PlantDex/pkg/config"
	applogger "PlantDex/pkg/logger"
)

// ObservationAggregator rolls raw observations into daily and weekly buckets.
type ObservationAggregator struct {
	catalog  repository.ItemCatalog
	obs      repository.ObservationSource
	counters repository.CounterSource
	store    repository.AggregateStore
	cfg      config.EngineConfig
	opts     options
}

func NewAggregator(
	catalog repository.ItemCatalog,
	obs repository.ObservationSource,
	counters repository.CounterSource,
	store repository.AggregateStore,
	cfg config.EngineConfig,
	opts ...Option,
) *ObservationAggregator {
	return &ObservationAggregator{
		catalog:  catalog,
		obs:      obs,
		counters: counters,
		store:    store,
		cfg:      cfg,
		opts:     buildOptions(opts),
	}
}

// Aggregate recomputes and stores the (item, day) bucket containing bucketDate.
// An empty observation set yields a valid zero-count row.
func (a *ObservationAggregator) Aggregate(ctx context.Context, itemID int64, bucketDate time.Time) (models.DailyAggregate, error) {
	if _, err := a.catalog.GetItem(ctx, itemID); err != nil {
		return models.DailyAggregate{}, fmt.Errorf("aggregate: %w", err)
	}

	start, end := repository.BucketRange(repository.BucketDaily, bucketDate)
	rows, err := a.obs.GetObservations(ctx, itemID, start, end)
	if err != nil {
		return models.DailyAggregate{}, fmt.Errorf("get observations: %w", err)
	}
	counters, err := a.counters.GetCompanionCounters(ctx, itemID, start)
	if err != nil {
		return models.DailyAggregate{}, fmt.Errorf("get companion counters: %w", err)
	}

	agg := BuildDailyAggregate(itemID, start, rows, counters)
	if err := a.store.UpsertDailyAggregate(ctx, agg); err != nil {
		return models.DailyAggregate{}, fmt.Errorf("upsert daily aggregate: %w", err)
	}

	a.opts.log.Debug("aggregate ok",
		applogger.Int64("item_id", itemID),
		applogger.Date("bucket_date", start),
		applogger.Int("observations", agg.ObservationCount),
	)
	return agg, nil
}

// AggregateRange backfills every day of [from, to], one bucket per day.
func (a *ObservationAggregator) AggregateRange(ctx context.Context, itemID int64, from, to time.Time) ([]models.DailyAggregate, error) {
	from, to = dayOf(from), dayOf(to)
	if to.Before(from) {
		return nil, models.NewValidationError("range", "to %s is before from %s", to.Format("2006-01-02"), from.Format("2006-01-02"))
	}
	out := make([]models.DailyAggregate, 0, int(to.Sub(from).Hours()/24)+1)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		agg, err := a.Aggregate(ctx, itemID, d)
		if err != nil {
			return out, err
		}
		out = append(out, agg)
	}
	return out, nil
}

// AggregateAll aggregates bucketDate for every catalog item.
func (a *ObservationAggregator) AggregateAll(ctx context.Context, bucketDate time.Time) ([]models.DailyAggregate, error) {
	items, err := a.catalog.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	out := make([]models.DailyAggregate, 0, len(items))
	for _, it := range items {
		agg, err := a.Aggregate(ctx, it.ID, bucketDate)
		if err != nil {
			return out, err
		}
		out = append(out, agg)
	}
	return out, nil
}

// Weekly rolls the stored daily rows of the Monday-start week containing weekStart.
func (a *ObservationAggregator) Weekly(ctx context.Context, itemID int64, weekStart time.Time) (models.WeeklyAggregate, error) {
	if _, err := a.catalog.GetItem(ctx, itemID); err != nil {
		return models.WeeklyAggregate{}, fmt.Errorf("weekly: %w", err)
	}
	start, end := repository.BucketRange(repository.BucketWeekly, weekStart)
	days, err := a.store.ListItemAggregates(ctx, itemID, start, end.AddDate(0, 0, -1))
	if err != nil {
		return models.WeeklyAggregate{}, fmt.Errorf("list item aggregates: %w", err)
	}
	return BuildWeeklyAggregate(itemID, start, days, a.cfg), nil
}

type sortedObservation struct {
	models.Observation
	price decimal.Decimal
}

// BuildDailyAggregate computes the bucket statistics of one item-day. The
// result does not depend on the order of obs.
func BuildDailyAggregate(itemID int64, day time.Time, obs []models.Observation, counters models.CompanionCounters) models.DailyAggregate {
	start, end := repository.BucketRange(repository.BucketDaily, day)
	agg := models.DailyAggregate{
		ItemID:       itemID,
		BucketDate:   start,
		SearchVolume: counters.SearchVolume,
		SalesVolume:  counters.SalesVolume,
		Sources:      []string{},
	}

	rows := make([]sortedObservation, 0, len(obs))
	for _, o := range obs {
		ts := o.Timestamp.UTC()
		if ts.Before(start) || !ts.Before(end) {
			continue
		}
		rows = append(rows, sortedObservation{Observation: o, price: decimal.NewFromFloat(o.Price)})
	}
	if len(rows) == 0 {
		return agg
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Location != b.Location {
			return a.Location < b.Location
		}
		return a.price.LessThan(b.price)
	})

	n := decimal.NewFromInt(int64(len(rows)))
	sum := decimal.Zero
	minP, maxP := rows[0].price, rows[0].price
	sources := make(map[string]struct{})
	groups := make(map[string][]decimal.Decimal)
	for _, r := range rows {
		sum = sum.Add(r.price)
		if r.price.LessThan(minP) {
			minP = r.price
		}
		if r.price.GreaterThan(maxP) {
			maxP = r.price
		}
		if r.Availability {
			agg.AvailableCount++
			agg.StockQuantity += int64(r.StockQuantity)
		}
		sources[r.Source] = struct{}{}
		key := r.Source + "|" + r.Location
		groups[key] = append(groups[key], r.price)
	}
	mean := sum.DivRound(n, 8)

	variance := decimal.Zero
	if len(rows) > 1 {
		acc := decimal.Zero
		for _, r := range rows {
			d := r.price.Sub(mean)
			acc = acc.Add(d.Mul(d))
		}
		variance = acc.DivRound(n, 8)
	}

	agg.ObservationCount = len(rows)
	agg.MeanPrice = mean.InexactFloat64()
	agg.MinPrice = minP.InexactFloat64()
	agg.MaxPrice = maxP.InexactFloat64()
	agg.PriceStdDev = math.Sqrt(variance.InexactFloat64())
	for s := range sources {
		agg.Sources = append(agg.Sources, s)
	}
	sort.Strings(agg.Sources)
	agg.SourceSpreadPct = sourceSpreadPct(groups)
	return agg
}

// sourceSpreadPct is (max - min) of the per source/location mean prices
// relative to their mean, in percent. Fewer than two groups yield 0.
func sourceSpreadPct(groups map[string][]decimal.Decimal) float64 {
	if len(groups) < 2 {
		return 0
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	means := make([]decimal.Decimal, 0, len(keys))
	total := decimal.Zero
	for _, k := range keys {
		m := decimal.Sum(decimal.Zero, groups[k]...).DivRound(decimal.NewFromInt(int64(len(groups[k]))), 8)
		means = append(means, m)
		total = total.Add(m)
	}
	center := total.DivRound(decimal.NewFromInt(int64(len(means))), 8)
	if center.IsZero() {
		return 0
	}
	spread := decimal.Max(means[0], means[1:]...).Sub(decimal.Min(means[0], means[1:]...))
	return spread.Div(center).Mul(decimal.NewFromInt(100)).Round(4).InexactFloat64()
}

// BuildWeeklyAggregate rolls daily rows of one week. Rows outside the week are ignored.
func BuildWeeklyAggregate(itemID int64, weekStart time.Time, days []models.DailyAggregate, cfg config.EngineConfig) models.WeeklyAggregate {
	start, end := repository.BucketRange(repository.BucketWeekly, weekStart)
	w := models.WeeklyAggregate{ItemID: itemID, WeekStart: start}

	var counts []int
	var means, stds []float64
	var stockDays []float64
	for _, d := range days {
		bd := dayOf(d.BucketDate)
		if bd.Before(start) || !bd.Before(end) {
			continue
		}
		w.Days++
		w.SearchVolume += d.SearchVolume
		w.SalesVolume += d.SalesVolume
		if !d.HasPrice() {
			continue
		}
		if len(counts) == 0 || d.MinPrice < w.MinPrice {
			w.MinPrice = d.MinPrice
		}
		if len(counts) == 0 || d.MaxPrice > w.MaxPrice {
			w.MaxPrice = d.MaxPrice
		}
		counts = append(counts, d.ObservationCount)
		means = append(means, d.MeanPrice)
		stds = append(stds, d.PriceStdDev)
		w.AvailableCount += d.AvailableCount
		w.StockQuantity += d.StockQuantity
		stockDays = append(stockDays, float64(d.StockQuantity))
	}
	w.ObservationCount, w.MeanPrice, w.PriceStdDev = features.CombineMoments(counts, means, stds)

	demand := float64(w.SearchVolume) + cfg.DemandSalesWeight*float64(w.SalesVolume)
	w.DemandScore = 100 * features.Saturate(demand, cfg.DemandScale)
	w.SupplyScore = 100 * features.Saturate(features.Mean(stockDays), cfg.SupplyScale)
	return w
}

var _ domsvc.Aggregator = (*ObservationAggregator)(nil)
