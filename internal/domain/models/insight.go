package models

import "time"

// MarketSentiment is the distribution of trend directions across scored items.
type MarketSentiment struct {
	BullishPct   float64 `json:"bullish_pct"`
	BearishPct   float64 `json:"bearish_pct"`
	NeutralPct   float64 `json:"neutral_pct"`
	AverageScore float64 `json:"average_score"`
	ScoredItems  int     `json:"scored_items"`
	Mood         string  `json:"mood"`
}

// MarketStats is the dashboard summary.
type MarketStats struct {
	TrackedItems        int               `json:"tracked_items"`
	AverageScore        float64           `json:"average_score"`
	LowRiskItems        int               `json:"low_risk_items"`
	ActiveOpportunities int               `json:"active_opportunities"`
	TotalOpportunities  int               `json:"total_opportunities"`
	ActiveByType        map[string]int    `json:"active_by_type"`
	CurrentIndex        *MarketIndexPoint `json:"current_index"`
}

// TrendingItem ranks an item by weekly popularity.
type TrendingItem struct {
	Item            Item      `json:"item"`
	WeekStart       time.Time `json:"week_start"`
	PopularityScore float64   `json:"popularity_score"`
	SearchGrowthPct float64   `json:"search_growth_pct"`
	SalesGrowthPct  float64   `json:"sales_growth_pct"`
	PriceGrowthPct  float64   `json:"price_growth_pct"`
	Rank            int       `json:"rank"`
}
