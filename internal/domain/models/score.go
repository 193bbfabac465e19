package models

import "time"

type RiskTier string

const (
	RiskLow    RiskTier = "LOW"
	RiskMedium RiskTier = "MEDIUM"
	RiskHigh   RiskTier = "HIGH"
)

type TrendDirection string

const (
	TrendUp     TrendDirection = "UP"
	TrendDown   TrendDirection = "DOWN"
	TrendStable TrendDirection = "STABLE"
)

// InvestmentScore is the current score row of an item. It is overwritten
// on every recomputation, no history is kept.
type InvestmentScore struct {
	ItemID                 int64          `json:"item_id"`
	Score                  float64        `json:"score"`
	RiskTier               RiskTier       `json:"risk_tier"`
	LiquidityScore         float64        `json:"liquidity_score"`
	TrendDirection         TrendDirection `json:"trend_direction"`
	TrendSlopePct          float64        `json:"trend_slope_pct"`
	RoiEstimatePct         float64        `json:"roi_estimate_pct"`
	PriceVolatilityPct     float64        `json:"price_volatility_pct"`
	CoefficientOfVariation *float64       `json:"coefficient_of_variation"`
	SampleSize             int            `json:"sample_size"`
	InsufficientData       bool           `json:"insufficient_data"`
	LastUpdated            time.Time      `json:"last_updated"`
}

// Recommendation is the BUY/HOLD verdict shown on the per-item analysis.
type Recommendation struct {
	Action     string `json:"action"`
	Confidence string `json:"confidence"`
}

// ItemAnalysis joins an item's score with its active opportunities.
type ItemAnalysis struct {
	Item           Item            `json:"item"`
	Score          InvestmentScore `json:"score"`
	Recommendation Recommendation  `json:"recommendation"`
	Opportunities  []Opportunity   `json:"opportunities"`
}
