package features

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestMeanAndPopulationStdDev(t *testing.T) {
	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	if got := Mean(xs); !almostEqual(got, 5) {
		t.Fatalf("mean = %v", got)
	}
	if got := PopulationStdDev(xs); !almostEqual(got, 2) {
		t.Fatalf("stddev = %v", got)
	}
	if PopulationStdDev([]float64{3}) != 0 {
		t.Fatalf("single value must have zero stddev")
	}
	if Mean(nil) != 0 {
		t.Fatalf("empty mean must be zero")
	}
}

func TestLinearSlope(t *testing.T) {
	cases := []struct {
		name string
		ys   []float64
		want float64
	}{
		{"flat", []float64{5, 5, 5}, 0},
		{"rising", []float64{1, 2, 3, 4}, 1},
		{"falling", []float64{10, 8, 6}, -2},
		{"single", []float64{7}, 0},
	}
	for _, tc := range cases {
		if got := LinearSlope(tc.ys); !almostEqual(got, tc.want) {
			t.Fatalf("%s: slope = %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestRelativeSlope(t *testing.T) {
	got := RelativeSlope([]float64{99, 100, 101})
	if !almostEqual(got, 0.01) {
		t.Fatalf("relative slope = %v", got)
	}
	if RelativeSlope([]float64{0, 0}) != 0 {
		t.Fatalf("zero mean must give zero slope")
	}
}

func TestCombineMoments(t *testing.T) {
	// {1,3} and {5,7}: union {1,3,5,7} has mean 4 and population stddev sqrt(5)
	n, mean, std := CombineMoments([]int{2, 2, 0}, []float64{2, 6, 100}, []float64{1, 1, 50})
	if n != 4 || !almostEqual(mean, 4) || !almostEqual(std, math.Sqrt(5)) {
		t.Fatalf("got n=%d mean=%v std=%v", n, mean, std)
	}
	if n, _, _ := CombineMoments(nil, nil, nil); n != 0 {
		t.Fatalf("empty input must give zero count")
	}
}

func TestSaturateIsMonotonicAndBounded(t *testing.T) {
	prev := -1.0
	for _, x := range []float64{0, 1, 5, 50, 5000} {
		v := Saturate(x, 10)
		if v < 0 || v >= 1 {
			t.Fatalf("saturate(%v) = %v out of range", x, v)
		}
		if v < prev {
			t.Fatalf("saturate not monotonic at %v", x)
		}
		prev = v
	}
}

func TestLogReturnsAndVolatility(t *testing.T) {
	rets := ComputeLogReturns([]float64{100, 110, 99})
	if len(rets) != 2 || !almostEqual(rets[0], math.Log(1.1)) {
		t.Fatalf("unexpected returns %v", rets)
	}
	if ComputeLogReturns([]float64{1}) != nil {
		t.Fatalf("expected nil for single price")
	}
	if RealizedVolatility([]float64{0.01, 0.01, 0.01}, 3) != 0 {
		t.Fatalf("constant returns must have zero volatility")
	}
}

func TestGrowthPctAndClamp(t *testing.T) {
	if !almostEqual(GrowthPct(80, 100), 25) {
		t.Fatalf("growth")
	}
	if GrowthPct(0, 10) != 0 {
		t.Fatalf("zero base")
	}
	if Clamp(11, 0, 10) != 10 || Clamp(-1, 0, 10) != 0 || Clamp(3, 0, 10) != 3 {
		t.Fatalf("clamp")
	}
}
