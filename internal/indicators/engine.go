package indicators

import "math"

// SettingsReader is the subset of a profile's settings the engine reads.
type SettingsReader interface {
	Bool(key string, def bool) bool
	Int(key string, def int) int
	Float(key string, def float64) float64
	String(key, def string) string
}

// Params selects and sizes the indicators for one user.
type Params struct {
	UseRSI        bool
	RSIPeriod     int
	RSIOversold   float64
	RSIOverbought float64

	UseEMA bool
	FastMA int
	SlowMA int

	UseMACD    bool
	MACDFast   int
	MACDSlow   int
	MACDSignal int

	UseOI          bool
	OIWindow       int
	OIMinChangePct float64
	OIDirection    string

	BuyRatio  float64
	SellRatio float64
}

// ParamsFromSettings reads indicator parameters from profile settings.
func ParamsFromSettings(s SettingsReader) Params {
	return Params{
		UseRSI:         s.Bool("USE_RSI", true),
		RSIPeriod:      s.Int("RSI_PERIOD", 14),
		RSIOversold:    s.Float("RSI_OVERSOLD", 40),
		RSIOverbought:  s.Float("RSI_OVERBOUGHT", 60),
		UseEMA:         s.Bool("USE_EMA", true),
		FastMA:         s.Int("FAST_MA", 50),
		SlowMA:         s.Int("SLOW_MA", 200),
		UseMACD:        s.Bool("USE_MACD", true),
		MACDFast:       s.Int("MACD_FAST", 8),
		MACDSlow:       s.Int("MACD_SLOW", 21),
		MACDSignal:     s.Int("MACD_SIGNAL", 5),
		UseOI:          s.Bool("USE_OI", false),
		OIWindow:       s.Int("OI_WINDOW", 3),
		OIMinChangePct: s.Float("OI_MIN_CHANGE_PCT", 5),
		OIDirection:    s.String("OI_DIRECTION", "up"),
		BuyRatio:       s.Float("BUY_CONFIRMATION_RATIO", 0.66),
		SellRatio:      s.Float("SELL_CONFIRMATION_RATIO", 0.33),
	}
}

// Snapshot holds the latest reading of every enabled indicator. Disabled or
// unavailable readings are NaN.
type Snapshot struct {
	Close      float64
	RSI        float64
	FastEMA    float64
	SlowEMA    float64
	MACD       float64
	MACDSignal float64
	MACDHist   float64
	OIChange   float64
}

// Compute evaluates the enabled indicators over closes and open interest.
func Compute(p Params, closes, openInterest []float64) Snapshot {
	nan := math.NaN()
	snap := Snapshot{Close: nan, RSI: nan, FastEMA: nan, SlowEMA: nan, MACD: nan, MACDSignal: nan, MACDHist: nan, OIChange: nan}
	if v, ok := Last(closes); ok {
		snap.Close = v
	}
	if p.UseRSI {
		snap.RSI, _ = Last(RSI(closes, p.RSIPeriod))
	}
	if p.UseEMA {
		snap.FastEMA, _ = Last(EMA(closes, p.FastMA))
		snap.SlowEMA, _ = Last(EMA(closes, p.SlowMA))
	}
	if p.UseMACD {
		line, sig, hist := MACD(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)
		snap.MACD, _ = Last(line)
		snap.MACDSignal, _ = Last(sig)
		snap.MACDHist, _ = Last(hist)
	}
	if p.UseOI {
		snap.OIChange, _ = OIChangePct(openInterest, p.OIWindow)
	}
	return snap
}
