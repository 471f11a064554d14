package formulas

// CompoundValueSeries builds a synthetic portfolio-value series from periodic
// returns, starting at 1.0. Value[t] = Value[t-1] * (1 + r_t).
func CompoundValueSeries(returns []float64) []float64 {
	values := make([]float64, len(returns)+1)
	values[0] = 1.0
	for i, r := range returns {
		values[i+1] = values[i] * (1 + r)
	}
	return values
}

// CalculateMaxDrawdown calculates the maximum drawdown from a value series.
//
// Drawdown Formula:
//
//	Drawdown = (Peak Value - Current Value) / Peak Value
//	Max Drawdown = Maximum of all drawdowns
//
// Returns the maximum drawdown as a positive fraction (0.25 = 25% loss from
// peak) or nil if the series is too short.
func CalculateMaxDrawdown(values []float64) *float64 {
	if len(values) < 2 {
		return nil
	}

	maxDrawdown := 0.0
	peak := values[0]

	for _, value := range values {
		if value > peak {
			peak = value
		}

		if peak > 0 {
			drawdown := (peak - value) / peak
			if drawdown > maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}

	return &maxDrawdown
}

// CalculateMaxDrawdownFromReturns is a convenience wrapper that compounds the
// returns into a value series first.
func CalculateMaxDrawdownFromReturns(returns []float64) *float64 {
	if len(returns) == 0 {
		return nil
	}
	return CalculateMaxDrawdown(CompoundValueSeries(returns))
}
