// Package market turns exchange market-data payloads of unknown shape into
// ordered candle and open-interest series.
package market

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrNoData means the payload held no usable rows.
var ErrNoData = errors.New("market: no data")

// Candle is one OHLCV row. Fields that failed to parse are NaN.
type Candle struct {
	Time   time.Time `json:"t"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Series is a candle sequence ordered by time.
type Series []Candle

// Closes returns the close column.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Close
	}
	return out
}

// Last returns the newest candle.
func (s Series) Last() (Candle, bool) {
	if len(s) == 0 {
		return Candle{}, false
	}
	return s[len(s)-1], true
}

// OIPoint is one open-interest observation.
type OIPoint struct {
	Time  time.Time `json:"t"`
	Value float64   `json:"oi"`
}

// OISeries is an open-interest sequence ordered by time.
type OISeries []OIPoint

// Values returns the value column.
func (s OISeries) Values() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Value
	}
	return out
}

var (
	timeKeys   = []string{"t", "start", "timestamp", "time"}
	oiTimeKeys = []string{"t", "timestamp", "time"}
	oiValKeys  = []string{"openInterest", "open_interest", "oi"}
)

// NormalizeOHLCV decodes a candle payload. Any panic while walking the
// payload is reported as ErrNoData.
func NormalizeOHLCV(raw any) (out Series, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: %v", ErrNoData, r)
		}
	}()

	items, ok := extractRows(raw)
	if !ok || len(items) == 0 {
		return nil, ErrNoData
	}

	out = make(Series, 0, len(items))
	for _, item := range items {
		var ts, o, h, l, c, v any
		switch row := item.(type) {
		case []any:
			switch {
			case len(row) >= 6:
				ts, o, h, l, c, v = row[0], row[1], row[2], row[3], row[4], row[5]
			case len(row) == 5:
				ts, o, h, l, c = row[0], row[1], row[2], row[3], row[4]
			default:
				continue
			}
		case map[string]any:
			ts = firstNonEmpty(row, timeKeys...)
			o = firstPresent(row, "open", "o")
			h = firstPresent(row, "high", "h")
			l = firstPresent(row, "low", "l")
			c = firstPresent(row, "close", "c")
			v = firstPresent(row, "volume", "v")
		default:
			continue
		}

		t, ok := parseTime(ts)
		if !ok {
			continue
		}
		out = append(out, Candle{
			Time:   t,
			Open:   toFloat(o),
			High:   toFloat(h),
			Low:    toFloat(l),
			Close:  toFloat(c),
			Volume: toFloat(v),
		})
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

// NormalizeOpenInterest decodes an open-interest payload.
func NormalizeOpenInterest(raw any) (out OISeries, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: %v", ErrNoData, r)
		}
	}()

	items, ok := extractRows(raw)
	if !ok || len(items) == 0 {
		return nil, ErrNoData
	}

	out = make(OISeries, 0, len(items))
	for _, item := range items {
		var ts, val any
		switch row := item.(type) {
		case []any:
			if len(row) < 2 {
				continue
			}
			ts, val = row[0], row[1]
		case map[string]any:
			ts = firstNonEmpty(row, oiTimeKeys...)
			val = firstPresent(row, oiValKeys...)
		default:
			continue
		}
		t, ok := parseTime(ts)
		if !ok {
			continue
		}
		out = append(out, OIPoint{Time: t, Value: toFloat(val)})
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

// extractRows finds the row array inside raw, trying in order: result.list,
// result as array, result.data, top-level list, the first array-valued field
// in key order, and finally raw itself as an array. A missing result member
// makes raw its own result.
func extractRows(raw any) ([]any, bool) {
	switch v := raw.(type) {
	case []any:
		return v, true
	case map[string]any:
		res, hasResult := v["result"]
		if !hasResult {
			res = v
		}
		if m, ok := res.(map[string]any); ok {
			if list, ok := m["list"].([]any); ok {
				return list, true
			}
		}
		if list, ok := res.([]any); ok {
			return list, true
		}
		if m, ok := res.(map[string]any); ok {
			if data, ok := m["data"].([]any); ok {
				return data, true
			}
		}
		if list, ok := v["list"].([]any); ok {
			return list, true
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if list, ok := v[k].([]any); ok {
				return list, true
			}
		}
		return nil, false
	default:
		return nil, false
	}
}

// firstNonEmpty returns the first value that is not null, "", 0 or false.
func firstNonEmpty(row map[string]any, keys ...string) any {
	for _, k := range keys {
		switch v := row[k].(type) {
		case nil:
			continue
		case string:
			if v == "" {
				continue
			}
		case float64:
			if v == 0 {
				continue
			}
		case bool:
			if !v {
				continue
			}
		}
		return row[k]
	}
	return nil
}

// firstPresent returns the value of the first key present in row.
func firstPresent(row map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := row[k]; ok {
			return v
		}
	}
	return nil
}

var calendarLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTime reads digit strings and integral numbers as epoch milliseconds
// and any other string as a calendar timestamp (naive values are UTC).
func parseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) || t != math.Trunc(t) || t < 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(t)).UTC(), true
	case json.Number:
		n, err := t.Int64()
		if err != nil || n < 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(n).UTC(), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		if isDigits(s) {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return time.Time{}, false
			}
			return time.UnixMilli(n).UTC(), true
		}
		for _, layout := range calendarLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// toFloat coerces a JSON value to float64; anything unparseable is NaN.
func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}
