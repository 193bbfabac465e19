package intelligence

import (
	"context"
	"fmt"

	"PlantDex/internal/domain/models"
	"PlantDex/internal/domain/repository"
	domsvc "PlantDex/internal/domain/service"
	"PlantDex/internal/services/features"
	"PlantDex/pkg/config"
	applogger "PlantDex/pkg/logger"
)

// Score composition weights.
const (
	liquidityWeight = 0.5

	trendUpPoints   = 2.5
	trendDownPoints = -2.5

	riskLowPoints    = 2.5
	riskMediumPoints = 1.0
	riskHighPoints   = -1.0

	lowRiskMaxCV    = 0.15
	mediumRiskMaxCV = 0.35

	maxScore = 10.0
)

// InvestmentScorer scores items from their most recent daily aggregates.
type InvestmentScorer struct {
	store repository.EngineStore
	cfg   config.EngineConfig
	opts  options
}

func NewScorer(store repository.EngineStore, cfg config.EngineConfig, opts ...Option) *InvestmentScorer {
	return &InvestmentScorer{store: store, cfg: cfg, opts: buildOptions(opts)}
}

// ScoreItem recomputes and overwrites the score row of itemID.
func (s *InvestmentScorer) ScoreItem(ctx context.Context, itemID int64) (models.InvestmentScore, error) {
	if _, err := s.store.GetItem(ctx, itemID); err != nil {
		return models.InvestmentScore{}, fmt.Errorf("score item: %w", err)
	}
	now := s.opts.now()
	rows, err := s.store.ListRecentAggregates(ctx, itemID, dayOf(now), s.cfg.ScoreWindow)
	if err != nil {
		return models.InvestmentScore{}, fmt.Errorf("list recent aggregates: %w", err)
	}

	score := ComputeScore(itemID, rows, s.cfg)
	score.LastUpdated = now
	if err := s.store.UpsertScore(ctx, score); err != nil {
		return models.InvestmentScore{}, fmt.Errorf("upsert score: %w", err)
	}
	s.opts.log.Debug("score ok",
		applogger.Int64("item_id", itemID),
		applogger.Float64("score", score.Score),
		applogger.String("risk_tier", string(score.RiskTier)),
		applogger.String("trend", string(score.TrendDirection)),
		applogger.Bool("insufficient_data", score.InsufficientData),
	)
	return score, nil
}

// ScoreAll scores every catalog item.
func (s *InvestmentScorer) ScoreAll(ctx context.Context) ([]models.InvestmentScore, error) {
	items, err := s.store.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	out := make([]models.InvestmentScore, 0, len(items))
	for _, it := range items {
		sc, err := s.ScoreItem(ctx, it.ID)
		if err != nil {
			return out, err
		}
		out = append(out, sc)
	}
	return out, nil
}

// ComputeScore derives an InvestmentScore from rows ordered most recent first.
// LastUpdated is left to the caller.
func ComputeScore(itemID int64, rows []models.DailyAggregate, cfg config.EngineConfig) models.InvestmentScore {
	out := models.InvestmentScore{
		ItemID:         itemID,
		RiskTier:       models.RiskHigh,
		TrendDirection: models.TrendStable,
		SampleSize:     len(rows),
	}
	if cfg.ScoreWindow > 0 && len(rows) > cfg.ScoreWindow {
		rows = rows[:cfg.ScoreWindow]
		out.SampleSize = len(rows)
	}

	out.LiquidityScore = Liquidity(rows, cfg)

	// chronological priced series
	prices := make([]float64, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].HasPrice() {
			prices = append(prices, rows[i].MeanPrice)
		}
	}
	if len(prices) < 2 {
		out.InsufficientData = true
		return out
	}

	rel := features.RelativeSlope(prices)
	out.TrendSlopePct = rel * 100
	out.TrendDirection = ClassifyTrend(rel, cfg.TrendEpsilon)

	cv, hasVariance := CoefficientOfVariation(rows)
	if hasVariance {
		v := cv
		out.CoefficientOfVariation = &v
	}
	out.RiskTier = ClassifyRisk(cv, hasVariance)

	out.RoiEstimatePct = features.Clamp(rel*float64(cfg.RoiHorizon)*100, -cfg.RoiCapPct, cfg.RoiCapPct)
	out.PriceVolatilityPct = features.RealizedVolatility(features.ComputeLogReturns(prices), len(prices)-1) * 100

	score := liquidityWeight * out.LiquidityScore
	switch out.TrendDirection {
	case models.TrendUp:
		score += trendUpPoints
	case models.TrendDown:
		score += trendDownPoints
	}
	switch out.RiskTier {
	case models.RiskLow:
		score += riskLowPoints
	case models.RiskMedium:
		score += riskMediumPoints
	default:
		score += riskHighPoints
	}
	out.Score = features.Clamp(score, 0, maxScore)
	return out
}

// Liquidity is 10 x the blend of saturated average count and average sales.
func Liquidity(rows []models.DailyAggregate, cfg config.EngineConfig) float64 {
	if len(rows) == 0 {
		return 0
	}
	var count, sales float64
	for _, r := range rows {
		count += float64(r.ObservationCount)
		sales += float64(r.SalesVolume)
	}
	n := float64(len(rows))
	l := 0.5*features.Saturate(count/n, cfg.LiquidityCountScale) + 0.5*features.Saturate(sales/n, cfg.LiquiditySalesScale)
	return features.Clamp(maxScore*l, 0, maxScore)
}

// CoefficientOfVariation is the count-weighted mean of stddev/mean over rows
// with at least two observations.
func CoefficientOfVariation(rows []models.DailyAggregate) (float64, bool) {
	sum, weight := 0.0, 0
	for _, r := range rows {
		if r.ObservationCount < 2 || r.MeanPrice <= 0 {
			continue
		}
		sum += float64(r.ObservationCount) * r.PriceStdDev / r.MeanPrice
		weight += r.ObservationCount
	}
	if weight == 0 {
		return 0, false
	}
	return sum / float64(weight), true
}

// ClassifyRisk maps a coefficient of variation to a risk tier.
func ClassifyRisk(cv float64, hasVariance bool) models.RiskTier {
	switch {
	case !hasVariance:
		return models.RiskHigh
	case cv <= lowRiskMaxCV:
		return models.RiskLow
	case cv < mediumRiskMaxCV:
		return models.RiskMedium
	default:
		return models.RiskHigh
	}
}

// ClassifyTrend maps a relative slope to a direction.
func ClassifyTrend(relSlope, epsilon float64) models.TrendDirection {
	switch {
	case relSlope > epsilon:
		return models.TrendUp
	case relSlope < -epsilon:
		return models.TrendDown
	default:
		return models.TrendStable
	}
}

var _ domsvc.Scorer = (*InvestmentScorer)(nil)
