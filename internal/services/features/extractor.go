package features

import "math"

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// PopulationStdDev returns the population standard deviation (0 if len <= 1).
func PopulationStdDev(xs []float64) float64 {
	if len(xs) <= 1 {
		return 0
	}
	m := Mean(xs)
	acc := 0.0
	for _, x := range xs {
		d := x - m
		acc += d * d
	}
	return math.Sqrt(acc / float64(len(xs)))
}

// LinearSlope fits y = a + b*x by least squares with x = 0..n-1 and returns b.
// Fewer than 2 points yield 0.
func LinearSlope(ys []float64) float64 {
	n := len(ys)
	if n < 2 {
		return 0
	}
	xMean := float64(n-1) / 2
	yMean := Mean(ys)
	num, den := 0.0, 0.0
	for i, y := range ys {
		dx := float64(i) - xMean
		num += dx * (y - yMean)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// RelativeSlope is LinearSlope normalized by the mean level of the series,
// i.e. the fractional change per period.
func RelativeSlope(ys []float64) float64 {
	m := Mean(ys)
	if m == 0 {
		return 0
	}
	return LinearSlope(ys) / m
}

// ComputeLogReturns computes r_t = ln(p_t / p_{t-1}) for a chronological series.
// It returns a slice of length len(prices)-1, or nil if insufficient data.
func ComputeLogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev, cur := prices[i-1], prices[i]
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility returns the sample stddev of the last window returns.
func RealizedVolatility(logReturns []float64, window int) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	sum, sum2 := 0.0, 0.0
	for i := len(logReturns) - window; i < len(logReturns); i++ {
		r := logReturns[i]
		sum += r
		sum2 += r * r
	}
	n := float64(window)
	mean := sum / n
	variance := (sum2 - n*mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// CombineMoments pools per-bucket (count, mean, population stddev) triples into
// the moments of the union. Buckets with zero count are ignored.
func CombineMoments(counts []int, means, stddevs []float64) (int, float64, float64) {
	total := 0
	sum := 0.0
	for i, c := range counts {
		if c <= 0 {
			continue
		}
		total += c
		sum += float64(c) * means[i]
	}
	if total == 0 {
		return 0, 0, 0
	}
	mean := sum / float64(total)
	acc := 0.0
	for i, c := range counts {
		if c <= 0 {
			continue
		}
		d := means[i] - mean
		acc += float64(c) * (stddevs[i]*stddevs[i] + d*d)
	}
	variance := acc / float64(total)
	if variance < 0 {
		variance = 0
	}
	return total, mean, math.Sqrt(variance)
}

// Saturate maps x >= 0 monotonically into [0, 1) as x/(x+scale).
func Saturate(x, scale float64) float64 {
	if x <= 0 {
		return 0
	}
	if scale <= 0 {
		return 1
	}
	return x / (x + scale)
}

// Clamp bounds x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// GrowthPct returns the percentage change from prev to cur, 0 when prev is 0.
func GrowthPct(prev, cur float64) float64 {
	if prev == 0 {
		return 0
	}
	return (cur - prev) / prev * 100
}
