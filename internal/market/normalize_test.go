package market

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func ms(n int64) time.Time { return time.UnixMilli(n).UTC() }

func times(s Series) []int64 {
	out := make([]int64, len(s))
	for i, c := range s {
		out[i] = c.Time.UnixMilli()
	}
	return out
}

func TestNormalizeOHLCVShapes(t *testing.T) {
	row := []any{"1000", "1", "2", "0.5", "1.5", "10"}
	tests := []struct {
		name string
		raw  any
	}{
		{"result.list", map[string]any{"retCode": 0.0, "result": map[string]any{"list": []any{row}}}},
		{"result array", map[string]any{"result": []any{row}}},
		{"result.data", map[string]any{"result": map[string]any{"data": []any{row}}}},
		{"top-level list", map[string]any{"list": []any{row}}},
		{"first array field", map[string]any{"meta": "x", "candles": []any{row}}},
		{"bare array", []any{row}},
		{"no result uses data", map[string]any{"data": []any{row}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NormalizeOHLCV(tt.raw)
			if err != nil {
				t.Fatalf("NormalizeOHLCV: %v", err)
			}
			if len(s) != 1 || !s[0].Time.Equal(ms(1000)) || s[0].Close != 1.5 || s[0].Volume != 10 {
				t.Fatalf("unexpected series %+v", s)
			}
		})
	}
}

func TestNormalizeOHLCVFirstArrayFieldIsDeterministic(t *testing.T) {
	raw := map[string]any{
		"zeta":  []any{[]any{"2000", "1", "1", "1", "9", "1"}},
		"alpha": []any{[]any{"1000", "1", "1", "1", "7", "1"}},
	}
	for i := 0; i < 20; i++ {
		s, err := NormalizeOHLCV(raw)
		if err != nil || s[0].Close != 7 {
			t.Fatalf("picked wrong field: %+v, %v", s, err)
		}
	}
}

func TestNormalizeOHLCVDropsBadTimestampsAndSorts(t *testing.T) {
	raw := []any{
		map[string]any{"t": 100.0, "open": "1", "high": "1", "low": "1", "close": "100", "volume": "1"},
		map[string]any{"t": "bad", "open": "1", "high": "1", "low": "1", "close": "0", "volume": "1"},
		map[string]any{"t": 50.0, "open": "1", "high": "1", "low": "1", "close": "50", "volume": "1"},
	}
	s, err := NormalizeOHLCV(raw)
	if err != nil {
		t.Fatalf("NormalizeOHLCV: %v", err)
	}
	got := times(s)
	if len(got) != 2 || got[0] != 50 || got[1] != 100 {
		t.Fatalf("times=%v, expected [50 100]", got)
	}
}

func TestNormalizeOHLCVRowForms(t *testing.T) {
	raw := []any{
		[]any{"3000", "1", "2", "0.5", "1.5"},
		map[string]any{"start": "2000", "o": 1.0, "h": 2.0, "l": 0.5, "c": 1.2, "v": 3.0},
		map[string]any{"t": 0.0, "timestamp": "2024-01-02T03:04:05Z", "close": "oops"},
		[]any{"4000", "1"},
		"garbage",
	}
	s, err := NormalizeOHLCV(raw)
	if err != nil {
		t.Fatalf("NormalizeOHLCV: %v", err)
	}
	if len(s) != 3 {
		t.Fatalf("expected 3 rows, got %d: %+v", len(s), s)
	}
	if !s[0].Time.Equal(ms(2000)) || s[0].Close != 1.2 {
		t.Fatalf("object row: %+v", s[0])
	}
	if !s[1].Time.Equal(ms(3000)) || !math.IsNaN(s[1].Volume) {
		t.Fatalf("five-element row: %+v", s[1])
	}
	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if !s[2].Time.Equal(want) || !math.IsNaN(s[2].Close) || !math.IsNaN(s[2].Open) {
		t.Fatalf("calendar row: %+v", s[2])
	}
}

func TestNormalizeOHLCVStableOnDuplicates(t *testing.T) {
	raw := []any{
		[]any{"1000", "1", "1", "1", "1", "1"},
		[]any{"1000", "2", "2", "2", "2", "2"},
		[]any{"500", "3", "3", "3", "3", "3"},
	}
	s, err := NormalizeOHLCV(raw)
	if err != nil {
		t.Fatalf("NormalizeOHLCV: %v", err)
	}
	if len(s) != 3 || s[1].Close != 1 || s[2].Close != 2 {
		t.Fatalf("duplicates reordered: %+v", s)
	}
}

func TestNormalizeOHLCVNoData(t *testing.T) {
	for name, raw := range map[string]any{
		"nil":         nil,
		"string":      "hello",
		"empty list":  map[string]any{"result": map[string]any{"list": []any{}}},
		"no arrays":   map[string]any{"retCode": 10001.0, "retMsg": "params error"},
		"all invalid": []any{[]any{"x", "1", "1", "1", "1"}},
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := NormalizeOHLCV(raw); !errors.Is(err, ErrNoData) {
				t.Fatalf("expected ErrNoData, got %v", err)
			}
		})
	}
}

func TestNormalizeOpenInterest(t *testing.T) {
	raw := map[string]any{"result": map[string]any{"list": []any{
		map[string]any{"openInterest": "200.5", "timestamp": "2000"},
		map[string]any{"open_interest": "100", "time": "1000"},
		[]any{"3000", "300"},
		map[string]any{"oi": "1"},
	}}}
	s, err := NormalizeOpenInterest(raw)
	if err != nil {
		t.Fatalf("NormalizeOpenInterest: %v", err)
	}
	vals := s.Values()
	if len(vals) != 3 || vals[0] != 100 || vals[1] != 200.5 || vals[2] != 300 {
		t.Fatalf("values=%v", vals)
	}
}

type fakeSource struct {
	ohlcv, oi       any
	ohlcvErr, oiErr error
}

func (f fakeSource) FetchOHLCV(context.Context, string, string, int) (any, error) {
	return f.ohlcv, f.ohlcvErr
}

func (f fakeSource) FetchOpenInterest(context.Context, string, string, int) (any, error) {
	return f.oi, f.oiErr
}

func TestFeedLoad(t *testing.T) {
	feed := NewFeed("5", 10, zerolog.Nop())
	ctx := context.Background()

	src := fakeSource{
		ohlcv: []any{[]any{"1000", "1", "1", "1", "1", "1"}},
		oiErr: errors.New("boom"),
	}
	snap, err := feed.Load(ctx, src, "BTCUSDT", true)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Candles) != 1 || len(snap.OpenInterest) != 0 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	_, err = feed.Load(ctx, fakeSource{ohlcvErr: errors.New("timeout")}, "BTCUSDT", false)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}
