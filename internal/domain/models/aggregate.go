package models

import "time"

// DailyAggregate is the per-(item, day) rollup of observations.
// It is derived state and is replaced as a whole on recomputation.
type DailyAggregate struct {
	ItemID           int64     `json:"item_id"`
	BucketDate       time.Time `json:"bucket_date"`
	ObservationCount int       `json:"observation_count"`
	MeanPrice        float64   `json:"mean_price"`
	MinPrice         float64   `json:"min_price"`
	MaxPrice         float64   `json:"max_price"`
	PriceStdDev      float64   `json:"price_stddev"`
	SearchVolume     int64     `json:"search_volume"`
	SalesVolume      int64     `json:"sales_volume"`
	AvailableCount   int       `json:"available_count"`
	StockQuantity    int64     `json:"stock_quantity"`
	Sources          []string  `json:"sources"`
	SourceSpreadPct  float64   `json:"source_spread_pct"`
}

// HasPrice reports whether the bucket saw at least one observation.
func (a DailyAggregate) HasPrice() bool { return a.ObservationCount > 0 }

// WeeklyAggregate rolls daily aggregates of one ISO week (Monday start)
// and carries the 0-100 demand and supply scores used by the forecaster.
type WeeklyAggregate struct {
	ItemID           int64     `json:"item_id"`
	WeekStart        time.Time `json:"week_start"`
	Days             int       `json:"days"`
	ObservationCount int       `json:"observation_count"`
	MeanPrice        float64   `json:"mean_price"`
	MinPrice         float64   `json:"min_price"`
	MaxPrice         float64   `json:"max_price"`
	PriceStdDev      float64   `json:"price_stddev"`
	SearchVolume     int64     `json:"search_volume"`
	SalesVolume      int64     `json:"sales_volume"`
	AvailableCount   int       `json:"available_count"`
	StockQuantity    int64     `json:"stock_quantity"`
	DemandScore      float64   `json:"demand_score"`
	SupplyScore      float64   `json:"supply_score"`
}
