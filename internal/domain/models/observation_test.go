package models

import (
	"testing"
	"time"
)

func TestNormalizeObservation(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)
	in := &Observation{
		ItemID:    4,
		Timestamp: time.Date(2024, 3, 9, 7, 0, 0, 0, loc),
		Price:     12,
		Currency:  " vnd",
		Source:    " Shopee ",
		Location:  "Ha Noi",
	}
	got := NormalizeObservation(in)

	if got == in {
		t.Fatal("expected a copy")
	}
	if got.Source != "shopee" || got.Location != "ha noi" || got.Currency != "VND" {
		t.Fatalf("unexpected strings: %+v", got)
	}
	if got.Timestamp.Location() != time.UTC || !got.Timestamp.Equal(in.Timestamp) {
		t.Fatalf("timestamp = %v", got.Timestamp)
	}
	if in.Source != " Shopee " {
		t.Fatal("input was modified")
	}
	if NormalizeObservation(nil) != nil {
		t.Fatal("nil in, nil out")
	}
}
