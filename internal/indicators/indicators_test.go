package indicators

import (
	"math"
	"testing"
)

const eps = 1e-9

func near(a, b float64) bool { return math.Abs(a-b) < eps }

func TestRSIBoundaries(t *testing.T) {
	up := make([]float64, 50)
	down := make([]float64, 50)
	flat := make([]float64, 50)
	for i := range up {
		up[i] = float64(100 + i)
		down[i] = float64(200 - i)
		flat[i] = 42
	}

	if v, _ := Last(RSI(up, 14)); v != 100 {
		t.Fatalf("rising RSI=%v, expected 100", v)
	}
	if v, _ := Last(RSI(down, 14)); v != 0 {
		t.Fatalf("falling RSI=%v, expected 0", v)
	}
	if v, _ := Last(RSI(flat, 14)); v != 50 {
		t.Fatalf("flat RSI=%v, expected 50", v)
	}
	if !math.IsNaN(RSI(up, 14)[0]) {
		t.Fatal("index 0 must be NaN")
	}
}

func TestRSIRecurrence(t *testing.T) {
	prices := []float64{10, 11, 10.5, 12, 11}
	got := RSI(prices, 2)

	// alpha = 0.5, seeded at the first change
	gains := []float64{1, 0, 1.5, 0}
	losses := []float64{0, 0.5, 0, 1}
	g, l := gains[0], losses[0]
	want := []float64{math.NaN(), rsiFromAverages(g, l)}
	for i := 1; i < len(gains); i++ {
		g = 0.5*g + 0.5*gains[i]
		l = 0.5*l + 0.5*losses[i]
		want = append(want, 100-100/(1+g/l))
	}
	for i := 1; i < len(want); i++ {
		if !near(got[i], want[i]) {
			t.Fatalf("RSI[%d]=%v, expected %v", i, got[i], want[i])
		}
	}
	if got[1] != 100 {
		t.Fatalf("first reading after a pure gain should be 100, got %v", got[1])
	}
}

func TestEMARecurrence(t *testing.T) {
	values := []float64{1, 2, 3, 4}
	got := EMA(values, 3) // alpha = 0.5
	want := []float64{1, 1.5, 2.25, 3.125}
	for i := range want {
		if !near(got[i], want[i]) {
			t.Fatalf("EMA[%d]=%v, expected %v", i, got[i], want[i])
		}
	}
}

func TestEMASkipsNaN(t *testing.T) {
	got := EMA([]float64{math.NaN(), 2, math.NaN(), 4}, 3)
	if !math.IsNaN(got[0]) || got[1] != 2 || got[2] != 2 || got[3] != 3 {
		t.Fatalf("EMA with gaps=%v", got)
	}
}

func TestMACD(t *testing.T) {
	values := []float64{10, 12, 11, 13, 15, 14}
	line, sig, hist := MACD(values, 2, 4, 3)
	fast := EMA(values, 2)
	slow := EMA(values, 4)
	for i := range values {
		if !near(line[i], fast[i]-slow[i]) {
			t.Fatalf("line[%d]=%v", i, line[i])
		}
		if !near(hist[i], line[i]-sig[i]) {
			t.Fatalf("hist[%d]=%v", i, hist[i])
		}
	}
	wantSig := EMA(line, 3)
	for i := range wantSig {
		if !near(sig[i], wantSig[i]) {
			t.Fatalf("signal[%d]=%v", i, sig[i])
		}
	}
	if line[0] != 0 || sig[0] != 0 {
		t.Fatalf("first MACD reading should be 0, got %v/%v", line[0], sig[0])
	}
}

func TestOIChangePct(t *testing.T) {
	if v, ok := OIChangePct([]float64{100, 90, 95, 110}, 3); !ok || !near(v, 10) {
		t.Fatalf("OIChangePct=%v,%v", v, ok)
	}
	if _, ok := OIChangePct([]float64{1, 2}, 3); ok {
		t.Fatal("short series accepted")
	}
	if _, ok := OIChangePct([]float64{0, 2}, 1); ok {
		t.Fatal("zero base accepted")
	}
}

type settings map[string]any

func (s settings) Bool(k string, d bool) bool {
	if v, ok := s[k].(bool); ok {
		return v
	}
	return d
}
func (s settings) Int(k string, d int) int {
	if v, ok := s[k].(float64); ok {
		return int(v)
	}
	return d
}
func (s settings) Float(k string, d float64) float64 {
	if v, ok := s[k].(float64); ok {
		return v
	}
	return d
}
func (s settings) String(k, d string) string {
	if v, ok := s[k].(string); ok {
		return v
	}
	return d
}

func TestComputeHonoursToggles(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5, 6}
	p := ParamsFromSettings(settings{"USE_EMA": false, "RSI_PERIOD": 3.0, "USE_MACD": false})
	snap := Compute(p, closes, nil)

	if snap.Close != 6 {
		t.Fatalf("Close=%v", snap.Close)
	}
	if snap.RSI != 100 {
		t.Fatalf("RSI=%v", snap.RSI)
	}
	if !math.IsNaN(snap.FastEMA) || !math.IsNaN(snap.MACD) || !math.IsNaN(snap.OIChange) {
		t.Fatalf("disabled indicators computed: %+v", snap)
	}
}
