package models

import "time"

// DemandForecastPoint is one forward week of a demand forecast.
// DemandSupplyRatio is nil when the supply score is zero.
type DemandForecastPoint struct {
	ItemID            int64     `json:"item_id"`
	HorizonWeek       int       `json:"horizon_week"`
	WeekStart         time.Time `json:"week_start"`
	ProjectedDemand   float64   `json:"projected_demand"`
	SupplyScore       float64   `json:"supply_score"`
	DemandSupplyRatio *float64  `json:"demand_supply_ratio"`
}

// DemandForecast wraps the forward points with the inputs they came from.
type DemandForecast struct {
	ItemID         int64                 `json:"item_id"`
	WeeksAhead     int                   `json:"weeks_ahead"`
	HistoryWeeks   int                   `json:"history_weeks"`
	CurrentDemand  float64               `json:"current_demand"`
	CurrentSupply  float64               `json:"current_supply"`
	DemandTrend    float64               `json:"demand_trend"`
	TrendDirection string                `json:"trend_direction"`
	Points         []DemandForecastPoint `json:"points"`
}
