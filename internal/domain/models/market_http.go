package models

// Requests for market HTTP endpoints. Defined in domain for consistency and reuse.

type IndexRequest struct {
	From string `query:"from" json:"from" validate:"omitempty,datetime=2006-01-02"`
	To   string `query:"to" json:"to" validate:"omitempty,datetime=2006-01-02"`
}

type ItemRequest struct {
	ItemID int64 `param:"item_id" json:"item_id" validate:"required,gt=0"`
}

type OpportunitiesRequest struct {
	Type   string `query:"type" json:"type" validate:"omitempty,oneof=UNDERVALUED BREAKOUT SEASONAL ARBITRAGE"`
	ItemID int64  `query:"item_id" json:"item_id" validate:"gte=0"`
	Limit  int    `query:"limit" json:"limit" default:"20" validate:"gte=1,lte=200"`
}

type ForecastRequest struct {
	ItemID     int64 `param:"item_id" json:"item_id" validate:"required,gt=0"`
	WeeksAhead int   `query:"weeks_ahead" json:"weeks_ahead" default:"4" validate:"gte=1,lte=12"`
}

type LimitRequest struct {
	Limit int `query:"limit" json:"limit" default:"10" validate:"gte=1,lte=100"`
}

type PriceAnalysisRequest struct {
	ItemID int64 `param:"item_id" json:"item_id" validate:"required,gt=0"`
	Days   int   `query:"days" json:"days" default:"30" validate:"gte=1,lte=365"`
}

type ComputeRequest struct {
	ItemID int64  `json:"item_id" query:"item_id" validate:"gte=0"`
	Date   string `json:"date" query:"date" validate:"omitempty,datetime=2006-01-02"`
}
