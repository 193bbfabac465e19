package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegisterer(reg)

	r.RecordObservation("clickhouse", "etsy")
	r.RecordObservation("clickhouse", "etsy")
	r.RecordError("aggregate")
	r.RecordIndexValue("overall", 104.5)

	if got := testutil.ToFloat64(r.observations.WithLabelValues("clickhouse", "etsy")); got != 2 {
		t.Fatalf("observations = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.errorsTotal.WithLabelValues("aggregate")); got != 1 {
		t.Fatalf("errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.indexValue.WithLabelValues("overall")); got != 104.5 {
		t.Fatalf("index = %v, want 104.5", got)
	}
}
