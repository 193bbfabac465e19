package models

import "time"

// MarketIndexPoint is the composite market index of one calendar day.
type MarketIndexPoint struct {
	IndexDate             time.Time          `json:"index_date"`
	OverallIndex          float64            `json:"overall_index"`
	PerCategoryIndices    map[string]float64 `json:"per_category_indices"`
	TotalTrackedItems     int                `json:"total_tracked_items"`
	CarriedForwardItems   int                `json:"carried_forward_items"`
	TotalSources          int                `json:"total_sources"`
	ConfidenceScore       float64            `json:"confidence_score"`
	ChangeFromPreviousPct float64            `json:"change_from_previous_pct"`
}
