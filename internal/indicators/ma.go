package indicators

import "math"

// SMA calculates the simple moving average for the last period values.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period)
}

// MeanStdDev returns the mean and population standard deviation of values.
func MeanStdDev(values []float64) (mean, stddev float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

// Momentum returns (price - ref) / ref where ref is the value lookback
// positions from the end of history. ok is false when history is too short.
func Momentum(price float64, history []float64, lookback int) (value float64, ok bool) {
	if lookback <= 0 || len(history) < lookback {
		return 0, false
	}
	ref := history[len(history)-lookback]
	if ref == 0 {
		return 0, false
	}
	return (price - ref) / ref, true
}
