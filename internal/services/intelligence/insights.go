package intelligence

import (
	"sort"
	"time"

	"PlantDex/internal/domain/models"
	"PlantDex/internal/services/features"
)

const (
	buyScoreFloor         = 7.0
	highConfidenceScore   = 8.0
	mediumConfidenceScore = 6.0
)

// Sentiment summarizes the trend directions of scores. Items with insufficient
// data count as neutral.
func Sentiment(scores []models.InvestmentScore) models.MarketSentiment {
	out := models.MarketSentiment{ScoredItems: len(scores), Mood: "neutral"}
	if len(scores) == 0 {
		return out
	}
	var up, down, flat int
	total := 0.0
	for _, s := range scores {
		total += s.Score
		switch {
		case s.InsufficientData:
			flat++
		case s.TrendDirection == models.TrendUp:
			up++
		case s.TrendDirection == models.TrendDown:
			down++
		default:
			flat++
		}
	}
	n := float64(len(scores))
	out.BullishPct = 100 * float64(up) / n
	out.BearishPct = 100 * float64(down) / n
	out.NeutralPct = 100 * float64(flat) / n
	out.AverageScore = total / n
	switch {
	case up > down && up >= flat:
		out.Mood = "bullish"
	case down > up && down >= flat:
		out.Mood = "bearish"
	}
	return out
}

// TopMovers returns up to limit scores ordered by score desc, then item id.
func TopMovers(scores []models.InvestmentScore, limit int) []models.InvestmentScore {
	out := make([]models.InvestmentScore, len(scores))
	copy(out, scores)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ItemID < out[j].ItemID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Recommend maps a score to BUY/HOLD with a confidence band.
func Recommend(score float64) models.Recommendation {
	rec := models.Recommendation{Action: "HOLD", Confidence: "LOW"}
	if score >= buyScoreFloor {
		rec.Action = "BUY"
	}
	switch {
	case score > highConfidenceScore:
		rec.Confidence = "HIGH"
	case score > mediumConfidenceScore:
		rec.Confidence = "MEDIUM"
	}
	return rec
}

// Trend compares an item's current week with the previous one.
func Trend(item models.Item, current, previous models.WeeklyAggregate) models.TrendingItem {
	return models.TrendingItem{
		Item:            item,
		WeekStart:       current.WeekStart,
		PopularityScore: current.DemandScore,
		SearchGrowthPct: features.GrowthPct(float64(previous.SearchVolume), float64(current.SearchVolume)),
		SalesGrowthPct:  features.GrowthPct(float64(previous.SalesVolume), float64(current.SalesVolume)),
		PriceGrowthPct:  features.GrowthPct(previous.MeanPrice, current.MeanPrice),
	}
}

// RankTrending orders items by popularity desc, assigns ranks and truncates to limit.
func RankTrending(items []models.TrendingItem, limit int) []models.TrendingItem {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].PopularityScore != items[j].PopularityScore {
			return items[i].PopularityScore > items[j].PopularityScore
		}
		return items[i].Item.ID < items[j].Item.ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	for i := range items {
		items[i].Rank = i + 1
	}
	return items
}

// PriceAnalysis groups observations by source, ordered by source name.
func PriceAnalysis(itemID int64, days int, from, to time.Time, obs []models.Observation) models.PriceAnalysis {
	out := models.PriceAnalysis{ItemID: itemID, Days: days, From: from, To: to, Sources: []models.SourcePriceStats{}}
	bySource := make(map[string]*models.SourcePriceStats)
	sums := make(map[string]float64)
	for _, o := range obs {
		st := bySource[o.Source]
		if st == nil {
			st = &models.SourcePriceStats{Source: o.Source, MinPrice: o.Price, MaxPrice: o.Price}
			bySource[o.Source] = st
		}
		st.Count++
		sums[o.Source] += o.Price
		if o.Price < st.MinPrice {
			st.MinPrice = o.Price
		}
		if o.Price > st.MaxPrice {
			st.MaxPrice = o.Price
		}
	}
	names := make([]string, 0, len(bySource))
	for name := range bySource {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		st := bySource[name]
		st.AvgPrice = sums[name] / float64(st.Count)
		out.Sources = append(out.Sources, *st)
	}
	return out
}
