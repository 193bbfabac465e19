package models

import "time"

type OpportunityType string

const (
	OpportunityUndervalued OpportunityType = "UNDERVALUED"
	OpportunityBreakout    OpportunityType = "BREAKOUT"
	OpportunitySeasonal    OpportunityType = "SEASONAL"
	OpportunityArbitrage   OpportunityType = "ARBITRAGE"
)

// OpportunityTypes lists the types in classification priority order.
var OpportunityTypes = []OpportunityType{
	OpportunityUndervalued,
	OpportunityBreakout,
	OpportunitySeasonal,
	OpportunityArbitrage,
}

// IsValidOpportunityType returns true if t is a known type.
func IsValidOpportunityType(t OpportunityType) bool {
	for _, ot := range OpportunityTypes {
		if ot == t {
			return true
		}
	}
	return false
}

// Opportunity is a detected deviation from baseline. Records are soft-closed
// through IsActive and never deleted.
type Opportunity struct {
	ID                 string          `json:"id"`
	ItemID             int64           `json:"item_id"`
	OpportunityType    OpportunityType `json:"opportunity_type"`
	Confidence         float64         `json:"confidence"`
	PotentialUpsidePct float64         `json:"potential_upside_pct"`
	TimeHorizonDays    int             `json:"time_horizon_days"`
	SignalValue        float64         `json:"signal_value"`
	Threshold          float64         `json:"threshold"`
	RiskAssessment     string          `json:"risk_assessment"`
	MarketConditions   string          `json:"market_conditions"`
	DetectedAt         time.Time       `json:"detected_at"`
	ExpiresAt          time.Time       `json:"expires_at"`
	IsActive           bool            `json:"is_active"`
}

// OpportunityFilter narrows opportunity reads. Zero values match everything.
type OpportunityFilter struct {
	Type   OpportunityType
	ItemID int64
}
