package indicators

import "math"

// RSI returns Wilder's Relative Strength Index for every index of values.
// Gains and losses are smoothed with alpha = 1/period, seeded at the first
// price change; index 0 has no change and is NaN. A zero average loss gives
// 100 (or 50 when the average gain is zero too). NaN prices are skipped and
// the previous reading is carried forward.
func RSI(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 || len(values) < 2 {
		return out
	}
	alpha := 1 / float64(period)

	var avgGain, avgLoss float64
	seeded := false
	prev := values[0]
	for i := 1; i < len(values); i++ {
		cur := values[i]
		if math.IsNaN(cur) || math.IsNaN(prev) {
			out[i] = out[i-1]
			if !math.IsNaN(cur) {
				prev = cur
			}
			continue
		}
		delta := cur - prev
		prev = cur

		gain := math.Max(delta, 0)
		loss := math.Max(-delta, 0)
		if !seeded {
			avgGain, avgLoss = gain, loss
			seeded = true
		} else {
			avgGain = (1-alpha)*avgGain + alpha*gain
			avgLoss = (1-alpha)*avgLoss + alpha*loss
		}
		out[i] = rsiFromAverages(avgGain, avgLoss)
	}
	return out
}

func rsiFromAverages(gain, loss float64) float64 {
	if loss == 0 {
		if gain == 0 {
			return 50
		}
		return 100
	}
	rs := gain / loss
	return 100 - 100/(1+rs)
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// Last returns the final non-NaN value of a series.
func Last(series []float64) (float64, bool) {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) {
			return series[i], true
		}
	}
	return math.NaN(), false
}
