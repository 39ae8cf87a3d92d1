package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"bybit-autotrader/internal/market"
	"bybit-autotrader/internal/monitor"
	"bybit-autotrader/internal/store"
	"bybit-autotrader/pkg/exchanges/common"
)

type fakeGateway struct {
	mu      sync.Mutex
	orders  []decimal.Decimal
	reply   common.Envelope
	candles any
}

func (g *fakeGateway) Testnet() bool { return true }

func (g *fakeGateway) GetBalance(context.Context) common.BalanceResult {
	return common.Balance(1000)
}

func (g *fakeGateway) PlaceOrder(_ context.Context, _ common.Side, qty decimal.Decimal, _ string, _ common.OrderType) common.Envelope {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orders = append(g.orders, qty)
	return g.reply
}

func (g *fakeGateway) FetchOHLCV(context.Context, string, string, int) (any, error) {
	if g.candles == nil {
		return nil, errors.New("no candles")
	}
	return g.candles, nil
}

func (g *fakeGateway) FetchOpenInterest(context.Context, string, string, int) (any, error) {
	return nil, errors.New("no open interest")
}

func candles(closes ...float64) any {
	rows := make([]any, len(closes))
	for i, c := range closes {
		rows[i] = []any{float64(1_700_000_000_000 + i*300_000), c, c, c, c, 1.0}
	}
	return map[string]any{"result": map[string]any{"list": rows}}
}

func newTradeStore(t *testing.T) *store.FileStore {
	t.Helper()
	dir := t.TempDir()
	l, err := store.NewJSONLedger(filepath.Join(dir, "trades.json"), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewJSONLedger: %v", err)
	}
	st := store.NewFileStore(filepath.Join(dir, "users.json"), l, zerolog.Nop())
	if err := st.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return st
}

func TestFloorQty(t *testing.T) {
	tests := []struct {
		qty  float64
		prec int
		want string
	}{
		{1.23456789, 6, "1.234567"},
		{0.999, 0, "0"},
		{0.0059, 3, "0.005"},
		{5.5, -1, "5"},
		{-1, 2, "0"},
	}
	for _, tt := range tests {
		if got := FloorQty(tt.qty, tt.prec).String(); got != tt.want {
			t.Errorf("FloorQty(%v, %d) = %s, want %s", tt.qty, tt.prec, got, tt.want)
		}
	}
}

func TestSize(t *testing.T) {
	tests := []struct {
		name     string
		settings store.Settings
		balance  float64
		price    float64
		wantQty  string
		wantErr  error
	}{
		{"fixed usd", store.Settings{"ORDER_SIZE_USD": 100.0}, 0, 20000, "0.005", nil},
		{"percent of balance", store.Settings{"ORDER_PERCENT": 10.0}, 1000, 20000, "0.005", nil},
		{"below min notional", store.Settings{"ORDER_PERCENT": 10.0}, 10, 20000, "0.00005", ErrBelowMinNotional},
		{"floors to zero", store.Settings{"ORDER_SIZE_USD": 100.0, "QTY_PRECISION": 2.0}, 0, 20000, "0", ErrNoSize},
		{"no price", store.Settings{}, 1000, 0, "0", ErrNoPrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qty, _, err := Size(tt.settings, tt.balance, tt.price)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if qty.String() != tt.wantQty {
				t.Fatalf("qty = %s, want %s", qty, tt.wantQty)
			}
		})
	}
}

func TestExecuteDryRun(t *testing.T) {
	st := newTradeStore(t)
	gw := &fakeGateway{}
	ex := NewExecutor(st, false, nil, zerolog.Nop())
	p := store.Profile{ID: "1", Settings: store.Settings{"ORDER_SIZE_USD": 50.0}}

	trade, err := ex.Execute(context.Background(), gw, p, "BTCUSDT", common.SideBuy, 25000, 0)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if trade["mode"] != ModeDryRun || trade["status"] != "simulated" || trade["qty"] != "0.002" {
		t.Fatalf("trade = %v", trade)
	}
	if len(gw.orders) != 0 {
		t.Fatal("dry run reached the exchange")
	}
	got := st.TradesFor(context.Background(), "1", 0)
	if len(got) != 1 {
		t.Fatalf("ledger has %d trades", len(got))
	}
}

func TestExecuteGlobalDryRunWins(t *testing.T) {
	gw := &fakeGateway{}
	ex := NewExecutor(newTradeStore(t), true, nil, zerolog.Nop())
	p := store.Profile{ID: "1", Settings: store.Settings{"ORDER_SIZE_USD": 50.0, "DRY_RUN": false}}

	trade, err := ex.Execute(context.Background(), gw, p, "BTCUSDT", common.SideSell, 25000, 0)
	if err != nil || trade["mode"] != ModeDryRun {
		t.Fatalf("trade = %v, err = %v", trade, err)
	}
}

func TestExecuteLive(t *testing.T) {
	st := newTradeStore(t)
	ex := NewExecutor(st, false, nil, zerolog.Nop())
	p := store.Profile{ID: "1", Settings: store.Settings{"ORDER_SIZE_USD": 50.0, "DRY_RUN": false}}

	ok := &fakeGateway{reply: common.Envelope{HTTPStatus: 200, Body: map[string]any{"retCode": 0.0, "retMsg": "OK"}}}
	trade, err := ex.Execute(context.Background(), ok, p, "BTCUSDT", common.SideBuy, 25000, 0)
	if err != nil || trade["status"] != "placed" {
		t.Fatalf("trade = %v, err = %v", trade, err)
	}
	if len(ok.orders) != 1 || ok.orders[0].String() != "0.002" {
		t.Fatalf("orders = %v", ok.orders)
	}

	bad := &fakeGateway{reply: common.Envelope{HTTPStatus: 200, Body: map[string]any{"retCode": 110007.0, "retMsg": "insufficient balance"}}}
	trade, err = ex.Execute(context.Background(), bad, p, "BTCUSDT", common.SideBuy, 25000, 0)
	if !errors.Is(err, ErrOrderRejected) || trade["status"] != "rejected" {
		t.Fatalf("trade = %v, err = %v", trade, err)
	}
	got := st.TradesFor(context.Background(), "1", 0)
	if len(got) != 2 {
		t.Fatalf("ledger has %d trades, want 2", len(got))
	}
}

type profiles []store.Profile

func (p profiles) Profiles() []store.Profile { return p }

type checker struct {
	gw *fakeGateway
}

func (c checker) Check(_ context.Context, p store.Profile) monitor.Result {
	switch p.ID {
	case "healthy":
		return monitor.Result{UserID: p.ID, Outcome: monitor.OutcomeHealthy, Balance: 1000, Gateway: c.gw}
	case "boom":
		panic("exchange exploded")
	default:
		return monitor.Result{UserID: p.ID, Outcome: monitor.OutcomeSkipped, SkipReason: monitor.SkipSubscription}
	}
}

func TestRunOnce(t *testing.T) {
	for _, workers := range []int{1, 3} {
		st := newTradeStore(t)
		gw := &fakeGateway{candles: candles(100, 101, 102, 103)}
		var decided atomic.Int32
		eng := New(Config{
			Profiles: profiles{
				{ID: "boom", Settings: store.Settings{}},
				{ID: "healthy", Settings: store.Settings{"SYMBOLS": []any{"BTCUSDT", "ETHUSDT"}, "ORDER_SIZE_USD": 51.5}},
				{ID: "idle", Settings: store.Settings{}},
			},
			Monitor: checker{gw: gw},
			Feed:    market.NewFeed("5", 10, zerolog.Nop()),
			Policy: PolicyFunc(func(_ context.Context, in Input) Decision {
				decided.Add(1)
				if in.Symbol == "BTCUSDT" {
					return Decision{Action: ActionBuy}
				}
				return Decision{Action: ActionHold}
			}),
			Executor: NewExecutor(st, true, nil, zerolog.Nop()),
			Workers:  workers,
			Logger:   zerolog.Nop(),
		})

		rep := eng.RunOnce(context.Background())
		if len(rep.Users) != 3 {
			t.Fatalf("workers=%d: %d reports", workers, len(rep.Users))
		}
		if u := rep.Users[0]; u.Outcome != monitor.OutcomeError || u.Panic == nil {
			t.Fatalf("workers=%d: panicking user report %+v", workers, u)
		}
		healthy := rep.Users[1]
		if healthy.Outcome != monitor.OutcomeHealthy || len(healthy.Symbols) != 2 {
			t.Fatalf("workers=%d: healthy report %+v", workers, healthy)
		}
		if healthy.Symbols[0].Indicators.Close != 103 || healthy.Symbols[0].Trade == nil {
			t.Fatalf("workers=%d: symbol report %+v", workers, healthy.Symbols[0])
		}
		if rep.Users[2].Reason != monitor.SkipSubscription {
			t.Fatalf("workers=%d: skipped report %+v", workers, rep.Users[2])
		}
		if decided.Load() != 2 {
			t.Fatalf("workers=%d: policy called %d times", workers, decided.Load())
		}
		trades := st.TradesFor(context.Background(), "healthy", 0)
		if len(trades) != 1 || trades[0]["qty"] != "0.5" {
			t.Fatalf("workers=%d: trades %v", workers, trades)
		}
	}
}

func TestRunOnceMissingCandles(t *testing.T) {
	eng := New(Config{
		Profiles: profiles{{ID: "healthy", Settings: store.Settings{"SYMBOLS": "BTCUSDT"}}},
		Monitor:  checker{gw: &fakeGateway{}},
		Feed:     market.NewFeed("5", 10, zerolog.Nop()),
		Logger:   zerolog.Nop(),
	})
	rep := eng.RunOnce(context.Background())
	syms := rep.Users[0].Symbols
	if len(syms) != 1 || syms[0].Symbol != "BTCUSDT" || !errors.Is(syms[0].Err, market.ErrNoData) {
		t.Fatalf("symbols = %+v", syms)
	}
}

func TestLoopStopsOnCancel(t *testing.T) {
	var cycles atomic.Int32
	eng := New(Config{
		Profiles: profiles{{ID: "idle"}},
		Monitor: checkerFunc(func(context.Context, store.Profile) monitor.Result {
			cycles.Add(1)
			return monitor.Result{Outcome: monitor.OutcomeSkipped}
		}),
		Logger: zerolog.Nop(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := eng.Loop(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("Loop err = %v", err)
	}
	if cycles.Load() != 1 {
		t.Fatalf("cycles = %d", cycles.Load())
	}
}

type checkerFunc func(context.Context, store.Profile) monitor.Result

func (f checkerFunc) Check(ctx context.Context, p store.Profile) monitor.Result { return f(ctx, p) }
