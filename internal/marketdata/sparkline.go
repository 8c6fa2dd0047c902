package marketdata

import "math"

// SparklinePoints is the length of every served sparkline.
const SparklinePoints = 20

// Resample returns exactly n points from series. Longer series are
// sampled at a fixed stride, shorter ones linearly interpolated, and an
// empty series becomes a flat line at 100.
func Resample(series []float64, n int) []float64 {
	if n <= 0 {
		return []float64{}
	}
	out := make([]float64, n)

	switch {
	case len(series) == 0:
		for i := range out {
			out[i] = 100
		}
	case len(series) == 1:
		for i := range out {
			out[i] = series[0]
		}
	case len(series) >= n:
		step := len(series) / n
		for i := range out {
			idx := i * step
			if idx > len(series)-1 {
				idx = len(series) - 1
			}
			out[i] = series[idx]
		}
	default:
		if n == 1 {
			out[0] = series[0]
			return out
		}
		step := float64(len(series)-1) / float64(n-1)
		for i := range out {
			pos := float64(i) * step
			lo := int(math.Floor(pos))
			hi := int(math.Ceil(pos))
			if hi > len(series)-1 {
				hi = len(series) - 1
			}
			if lo == hi {
				out[i] = series[lo]
				continue
			}
			w := pos - float64(lo)
			out[i] = series[lo]*(1-w) + series[hi]*w
		}
	}
	return out
}

// Rebase expresses every point relative to the first as 100 + percent
// change. Series whose first point is not positive are returned as is.
func Rebase(series []float64) []float64 {
	out := make([]float64, len(series))
	copy(out, series)
	if len(out) == 0 || out[0] <= 0 {
		return out
	}
	first := out[0]
	for i, v := range out {
		out[i] = (v/first-1)*100 + 100
	}
	return out
}

// NormalizeSparkline resamples to SparklinePoints and rebases.
func NormalizeSparkline(series []float64) []float64 {
	return Rebase(Resample(series, SparklinePoints))
}
