package indicators

// RSI computes a basic Relative Strength Index over the last period changes,
// without smoothing. ok is false when there are fewer than period+1 values.
func RSI(values []float64, period int) (value float64, ok bool) {
	if period <= 0 || len(values) < period+1 {
		return 0, false
	}

	gain := 0.0
	loss := 0.0
	for i := len(values) - period; i < len(values); i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			gain += change
		} else {
			loss -= change
		}
	}

	if loss == 0 {
		if gain == 0 {
			return 50, true
		}
		return 100, true
	}
	rs := gain / loss
	return 100 - (100 / (1 + rs)), true
}
