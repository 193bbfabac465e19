package models

import (
	"strings"
	"time"
)

// Item is the read-only catalog view of a tracked plant listing.
type Item struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// Observation is a single price/listing record from a collector.
// Observations are immutable once recorded.
type Observation struct {
	ItemID        int64     `json:"item_id"`
	Timestamp     time.Time `json:"timestamp"`
	Price         float64   `json:"price"`
	Currency      string    `json:"currency"`
	Source        string    `json:"source"`
	Location      string    `json:"location"`
	Availability  bool      `json:"availability"`
	StockQuantity int       `json:"stock_quantity"`
}

// NormalizeObservation returns a copy with trimmed lower-case source and
// location, an upper-case currency and a UTC timestamp. Source spreads group
// by these strings, so feeds that disagree on casing still fold together.
func NormalizeObservation(o *Observation) *Observation {
	if o == nil {
		return nil
	}
	n := *o
	n.Source = strings.ToLower(strings.TrimSpace(o.Source))
	n.Location = strings.ToLower(strings.TrimSpace(o.Location))
	n.Currency = strings.ToUpper(strings.TrimSpace(o.Currency))
	n.Timestamp = o.Timestamp.UTC()
	return &n
}

// CompanionCounters are the per-day search/sales counters supplied next to price rows.
type CompanionCounters struct {
	SearchVolume int64 `json:"search_volume"`
	SalesVolume  int64 `json:"sales_volume"`
}

// SeasonalReference lists the historically strong months of a category.
type SeasonalReference struct {
	Category         string       `json:"category"`
	HighDemandMonths []time.Month `json:"high_demand_months"`
}

// IsHighDemand reports whether m is one of the category's high-demand months.
func (s SeasonalReference) IsHighDemand(m time.Month) bool {
	for _, hm := range s.HighDemandMonths {
		if hm == m {
			return true
		}
	}
	return false
}

// SourcePriceStats summarizes the observations of one source.
type SourcePriceStats struct {
	Source   string  `json:"source"`
	Count    int     `json:"count"`
	AvgPrice float64 `json:"avg_price"`
	MinPrice float64 `json:"min_price"`
	MaxPrice float64 `json:"max_price"`
}

// PriceAnalysis groups an item's recent observations by source.
type PriceAnalysis struct {
	ItemID  int64              `json:"item_id"`
	Days    int                `json:"days"`
	From    time.Time          `json:"from"`
	To      time.Time          `json:"to"`
	Sources []SourcePriceStats `json:"sources"`
}

const (
	MessageKindObservation = "observation"
	MessageKindCounters    = "counters"
)

// ObservationMessage is the wire form of ingest topic records. Kind tells
// price rows from companion counter rows; an empty kind reads as a price row.
type ObservationMessage struct {
	Kind          string    `json:"kind,omitempty"`
	ItemID        int64     `json:"item_id"`
	Timestamp     time.Time `json:"ts"`
	Price         float64   `json:"price,omitempty"`
	Currency      string    `json:"currency,omitempty"`
	Source        string    `json:"source,omitempty"`
	Location      string    `json:"location,omitempty"`
	Availability  bool      `json:"availability"`
	StockQuantity int       `json:"stock_quantity,omitempty"`
	SearchVolume  int64     `json:"search_volume,omitempty"`
	SalesVolume   int64     `json:"sales_volume,omitempty"`
}

// NewObservationMessage converts an observation to its wire form.
func NewObservationMessage(o *Observation) ObservationMessage {
	return ObservationMessage{
		Kind:          MessageKindObservation,
		ItemID:        o.ItemID,
		Timestamp:     o.Timestamp.UTC(),
		Price:         o.Price,
		Currency:      o.Currency,
		Source:        o.Source,
		Location:      o.Location,
		Availability:  o.Availability,
		StockQuantity: o.StockQuantity,
	}
}

// Observation converts a price message back to an Observation.
func (m ObservationMessage) Observation() *Observation {
	return &Observation{
		ItemID:        m.ItemID,
		Timestamp:     m.Timestamp.UTC(),
		Price:         m.Price,
		Currency:      m.Currency,
		Source:        m.Source,
		Location:      m.Location,
		Availability:  m.Availability,
		StockQuantity: m.StockQuantity,
	}
}
