package intelligence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sdcoffey/big"
	"github.com/sdcoffey/techan"

	"PlantDex/internal/domain/models"
	"PlantDex/internal/domain/repository"
	domsvc "PlantDex/internal/domain/service"
	"PlantDex/internal/services/features"
	"PlantDex/pkg/config"
	applogger "PlantDex/pkg/logger"
)

var opportunityNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("plantdex/opportunity"))

// OpportunityID derives a stable id from the item, type and detection time.
func OpportunityID(itemID int64, t models.OpportunityType, detectedAt time.Time) string {
	key := fmt.Sprintf("%d|%s|%s", itemID, t, detectedAt.UTC().Format(time.RFC3339Nano))
	return uuid.NewSHA1(opportunityNamespace, []byte(key)).String()
}

// OpportunityScanner flags items whose current state deviates from their baseline.
type OpportunityScanner struct {
	store    repository.EngineStore
	seasonal repository.SeasonalReferenceSource
	cfg      config.EngineConfig
	opts     options
}

func NewOpportunityDetector(store repository.EngineStore, seasonal repository.SeasonalReferenceSource, cfg config.EngineConfig, opts ...Option) *OpportunityScanner {
	return &OpportunityScanner{store: store, seasonal: seasonal, cfg: cfg, opts: buildOptions(opts)}
}

// itemSignals is the per-item input of the classification rules.
type itemSignals struct {
	item         models.Item
	current      models.DailyAggregate
	baseline     float64
	score        models.InvestmentScore
	countsRising bool
	highSeason   bool
	demandScore  float64
}

// DetectOpportunities expires stale opportunities, then classifies every catalog
// item as of asOf and supersedes the active opportunity of the same item and type.
func (d *OpportunityScanner) DetectOpportunities(ctx context.Context, asOf time.Time) ([]models.Opportunity, error) {
	asOf = asOf.UTC()
	expired, err := d.store.ExpireOpportunities(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("expire opportunities: %w", err)
	}

	items, err := d.store.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	seasons := make(map[string]models.SeasonalReference)
	out := make([]models.Opportunity, 0)
	superseded := 0
	for _, it := range items {
		sig, ok, err := d.collect(ctx, it, asOf, seasons)
		if err != nil {
			return out, err
		}
		if !ok {
			continue
		}
		opp, ok := d.classify(sig, asOf)
		if !ok {
			continue
		}
		n, err := d.store.SupersedeOpportunity(ctx, opp)
		if err != nil {
			return out, fmt.Errorf("supersede opportunity: %w", err)
		}
		superseded += n
		out = append(out, opp)
	}

	d.opts.log.Info("opportunities detected",
		applogger.Time("as_of", asOf),
		applogger.Int("detected", len(out)),
		applogger.Int("expired", expired),
		applogger.Int("superseded", superseded),
	)
	return out, nil
}

func (d *OpportunityScanner) collect(ctx context.Context, it models.Item, asOf time.Time, seasons map[string]models.SeasonalReference) (itemSignals, bool, error) {
	sig := itemSignals{item: it}
	day := dayOf(asOf)

	window := d.cfg.Opportunity.BaselineDays
	if window < 1 {
		window = 1
	}
	rows, err := d.store.ListItemAggregates(ctx, it.ID, day.AddDate(0, 0, -(window-1)), day)
	if err != nil {
		return sig, false, fmt.Errorf("list item aggregates: %w", err)
	}
	priced := make([]models.DailyAggregate, 0, len(rows))
	for _, r := range rows {
		if r.HasPrice() {
			priced = append(priced, r)
		}
	}
	if len(priced) == 0 {
		return sig, false, nil
	}
	sig.current = priced[len(priced)-1]
	sig.baseline = MovingAverage(priced, window)

	recent, err := d.store.ListRecentAggregates(ctx, it.ID, day, d.cfg.ScoreWindow)
	if err != nil {
		return sig, false, fmt.Errorf("list recent aggregates: %w", err)
	}
	score, ok, err := d.store.GetScore(ctx, it.ID)
	if err != nil {
		return sig, false, fmt.Errorf("get score: %w", err)
	}
	if !ok {
		score = ComputeScore(it.ID, recent, d.cfg)
	}
	sig.score = score
	sig.countsRising = CountsRising(recent)

	ref, cached := seasons[it.Category]
	if !cached && d.seasonal != nil {
		ref, err = d.seasonal.GetSeasonalReference(ctx, it.Category)
		if err != nil {
			d.opts.log.Warn("seasonal reference unavailable",
				applogger.String("category", it.Category),
				applogger.Error(err),
			)
			ref = models.SeasonalReference{Category: it.Category}
		}
		seasons[it.Category] = ref
	}
	sig.highSeason = ref.IsHighDemand(asOf.Month())
	if sig.highSeason {
		week := BuildWeeklyAggregate(it.ID, day, rows, d.cfg)
		sig.demandScore = week.DemandScore
	}
	return sig, true, nil
}

// classify applies the rules in priority order; the first matching rule wins.
// It reports false when no rule matches or the confidence is below the floor.
func (d *OpportunityScanner) classify(sig itemSignals, detectedAt time.Time) (models.Opportunity, bool) {
	oc := d.cfg.Opportunity
	opp := models.Opportunity{
		ItemID:         sig.item.ID,
		DetectedAt:     detectedAt,
		IsActive:       true,
		RiskAssessment: RiskAssessment(sig.score.RiskTier),
	}
	cur := sig.current.MeanPrice
	relSlope := sig.score.TrendSlopePct / 100

	var deviation float64
	if sig.baseline > 0 {
		deviation = (sig.baseline - cur) / sig.baseline
	}

	switch {
	case sig.baseline > 0 && deviation > oc.UndervaluedThreshold && sig.score.LiquidityScore > oc.LiquidityFloor:
		opp.OpportunityType = models.OpportunityUndervalued
		opp.SignalValue = deviation
		opp.Threshold = oc.UndervaluedThreshold
		if cur > 0 {
			opp.PotentialUpsidePct = (sig.baseline - cur) / cur * 100
		}
		opp.TimeHorizonDays = oc.HorizonDays.Undervalued
		opp.MarketConditions = fmt.Sprintf("price %.2f is %.1f%% below the %d-day average %.2f", cur, deviation*100, oc.BaselineDays, sig.baseline)
	case sig.score.TrendDirection == models.TrendUp && relSlope > oc.BreakoutSlope && sig.countsRising:
		opp.OpportunityType = models.OpportunityBreakout
		opp.SignalValue = relSlope
		opp.Threshold = oc.BreakoutSlope
		opp.PotentialUpsidePct = sig.score.RoiEstimatePct
		opp.TimeHorizonDays = oc.HorizonDays.Breakout
		opp.MarketConditions = fmt.Sprintf("price rising %.1f%% per day with growing listing activity", relSlope*100)
	case sig.highSeason && sig.demandScore > oc.SeasonalDemandFloor:
		opp.OpportunityType = models.OpportunitySeasonal
		opp.SignalValue = sig.demandScore
		opp.Threshold = oc.SeasonalDemandFloor
		opp.PotentialUpsidePct = sig.demandScore - oc.SeasonalDemandFloor
		opp.TimeHorizonDays = oc.HorizonDays.Seasonal
		opp.MarketConditions = fmt.Sprintf("%s is in its high-demand season, demand score %.1f", sig.item.Category, sig.demandScore)
	case sig.current.SourceSpreadPct > oc.SpreadThresholdPct:
		opp.OpportunityType = models.OpportunityArbitrage
		opp.SignalValue = sig.current.SourceSpreadPct
		opp.Threshold = oc.SpreadThresholdPct
		opp.PotentialUpsidePct = sig.current.SourceSpreadPct
		opp.TimeHorizonDays = oc.HorizonDays.Arbitrage
		opp.MarketConditions = fmt.Sprintf("prices differ by %.1f%% across %d sources", sig.current.SourceSpreadPct, len(sig.current.Sources))
	default:
		return models.Opportunity{}, false
	}

	opp.Confidence = Confidence(opp.SignalValue, opp.Threshold, oc.ConfidenceBase, oc.ConfidenceSlope)
	if opp.Confidence < oc.ConfidenceFloor {
		return models.Opportunity{}, false
	}
	opp.ExpiresAt = detectedAt.AddDate(0, 0, opp.TimeHorizonDays)
	opp.ID = OpportunityID(opp.ItemID, opp.OpportunityType, detectedAt)
	return opp, true
}

// Confidence grows linearly with how far signal exceeds threshold, capped at 1.
func Confidence(signal, threshold, base, slope float64) float64 {
	if threshold <= 0 {
		return features.Clamp(base, 0, 1)
	}
	return features.Clamp(base+(signal/threshold-1)*slope, 0, 1)
}

// MovingAverage is the simple moving average of mean prices (oldest first)
// over the last window candles.
func MovingAverage(priced []models.DailyAggregate, window int) float64 {
	if len(priced) == 0 {
		return 0
	}
	series := techan.NewTimeSeries()
	for _, r := range priced {
		candle := techan.NewCandle(techan.NewTimePeriod(dayOf(r.BucketDate), 24*time.Hour))
		price := big.NewDecimal(r.MeanPrice)
		candle.OpenPrice = price
		candle.ClosePrice = price
		candle.MaxPrice = big.NewDecimal(r.MaxPrice)
		candle.MinPrice = big.NewDecimal(r.MinPrice)
		candle.TradeCount = uint(r.ObservationCount)
		series.AddCandle(candle)
	}
	n := series.LastIndex() + 1
	if window > n {
		window = n
	}
	sma := techan.NewSimpleMovingAverage(techan.NewClosePriceIndicator(series), window)
	return sma.Calculate(series.LastIndex()).Float()
}

// CountsRising reports whether the later half of rows (most recent first) has a
// higher average observation count than the earlier half.
func CountsRising(recent []models.DailyAggregate) bool {
	n := len(recent)
	if n < 2 {
		return false
	}
	half := n / 2
	var later, earlier float64
	for i := 0; i < half; i++ {
		later += float64(recent[i].ObservationCount)
	}
	for i := n - half; i < n; i++ {
		earlier += float64(recent[i].ObservationCount)
	}
	return later > earlier
}

// RiskAssessment is the sentence stored with an opportunity for its risk tier.
func RiskAssessment(tier models.RiskTier) string {
	switch tier {
	case models.RiskLow:
		return "Low risk, stable pricing"
	case models.RiskMedium:
		return "Medium risk, moderate price swings"
	default:
		return "High risk, volatile or thin pricing history"
	}
}

var _ domsvc.OpportunityDetector = (*OpportunityScanner)(nil)
