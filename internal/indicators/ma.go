package indicators

import "math"

// EMA returns the exponential moving average with span period
// (alpha = 2/(period+1)), seeded from the first value, without bias
// adjustment. Leading NaNs stay NaN; later NaNs carry the previous average.
func EMA(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 {
		return out
	}
	alpha := 2 / (float64(period) + 1)

	avg := math.NaN()
	for i, v := range values {
		switch {
		case math.IsNaN(v):
		case math.IsNaN(avg):
			avg = v
		default:
			avg = alpha*v + (1-alpha)*avg
		}
		out[i] = avg
	}
	return out
}

// MACD returns the MACD line (EMA(fast) - EMA(slow)), its signal line
// (EMA of the line with span signal) and the histogram (line - signal).
func MACD(values []float64, fast, slow, signal int) (line, sig, hist []float64) {
	fastEMA := EMA(values, fast)
	slowEMA := EMA(values, slow)

	line = make([]float64, len(values))
	for i := range values {
		line[i] = fastEMA[i] - slowEMA[i]
	}
	sig = EMA(line, signal)
	hist = make([]float64, len(values))
	for i := range values {
		hist[i] = line[i] - sig[i]
	}
	return line, sig, hist
}

// OIChangePct returns the percent change of the last value against the
// value window steps earlier.
func OIChangePct(values []float64, window int) (float64, bool) {
	if window <= 0 || len(values) <= window {
		return math.NaN(), false
	}
	last := values[len(values)-1]
	base := values[len(values)-1-window]
	if math.IsNaN(last) || math.IsNaN(base) || base == 0 {
		return math.NaN(), false
	}
	return (last - base) / base * 100, true
}
