package execution

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"hl-signal-bot/internal/errs"
	"hl-signal-bot/internal/exchange"
	"hl-signal-bot/internal/order"
	"hl-signal-bot/internal/sizing"
	"hl-signal-bot/internal/strategy"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var btc = exchange.Instrument{Coin: "BTC", Asset: 0, SzDecimals: 5, MaxLeverage: 40}

type fakeReader struct {
	state    exchange.AccountState
	stateErr error
	mark     decimal.Decimal
	markErr  error
	delay    time.Duration

	stateCalls atomic.Int32
	markCalls  atomic.Int32
	active     atomic.Int32
	maxActive  atomic.Int32
}

func (f *fakeReader) FetchState(ctx context.Context, account string, inst exchange.Instrument) (exchange.AccountState, error) {
	f.stateCalls.Add(1)
	n := f.active.Add(1)
	for {
		m := f.maxActive.Load()
		if n <= m || f.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.stateErr != nil {
		f.active.Add(-1)
		return exchange.AccountState{}, f.stateErr
	}
	return f.state, nil
}

func (f *fakeReader) FetchMarkPrice(ctx context.Context, inst exchange.Instrument) (exchange.MarketPrice, error) {
	f.markCalls.Add(1)
	if f.markErr != nil {
		return exchange.MarketPrice{}, f.markErr
	}
	return exchange.MarketPrice{Coin: inst.Coin, MarkPrice: f.mark}, nil
}

type fakeTrader struct {
	reader   *fakeReader
	mu       sync.Mutex
	orders   []exchange.OrderIntent
	levs     []exchange.LeverageUpdate
	placeErr error
	levErr   error
}

func (f *fakeTrader) PlaceOrder(ctx context.Context, o exchange.OrderIntent) (*exchange.OrderResult, error) {
	if f.reader != nil {
		f.reader.active.Add(-1)
	}
	f.mu.Lock()
	f.orders = append(f.orders, o)
	f.mu.Unlock()
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	return &exchange.OrderResult{Status: exchange.OrderFilled, OrderID: 1, FilledSize: o.Size}, nil
}

func (f *fakeTrader) UpdateLeverage(ctx context.Context, u exchange.LeverageUpdate) error {
	f.mu.Lock()
	f.levs = append(f.levs, u)
	f.mu.Unlock()
	return f.levErr
}

func (f *fakeTrader) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders) + len(f.levs)
}

func newExecutor(cfg Config, r *fakeReader, tr *fakeTrader) *Executor {
	if cfg.Account == "" {
		cfg.Account = "0xabc"
	}
	cfg.Instrument = btc
	sizer := sizing.FullExposure{MarginFraction: d("0.95"), Leverage: 10, MinNotional: d("10")}
	b := order.NewBuilder(btc, order.DefaultSlippage)
	b.NewID = func() string { return "00000000-0000-0000-0000-000000000001" }
	e := NewExecutor(cfg, r, tr, sizer, b, zap.NewNop())
	e.newID = func() string { return "req-1" }
	return e
}

func flat(equity string) exchange.AccountState {
	return exchange.AccountState{Equity: d(equity), AvailableMargin: d(equity)}
}

func withPosition(equity, szi string) exchange.AccountState {
	st := flat(equity)
	st.OpenPosition = mo.Some(exchange.Position{Coin: "BTC", SignedSize: d(szi)})
	return st
}

func TestExecuteLongSizesFullExposure(t *testing.T) {
	r := &fakeReader{state: flat("1000"), mark: d("50000")}
	tr := &fakeTrader{}
	e := newExecutor(Config{PositionGuard: true}, r, tr)

	out, err := e.Execute(context.Background(), exchange.Signal{Side: exchange.Long})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Status != StatusSent || out.RequestID != "req-1" || out.Size != "0.19" || out.LimitPrice != "52500" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if len(tr.orders) != 1 {
		t.Fatalf("expected one order, got %d", len(tr.orders))
	}
	o := tr.orders[0]
	if !o.IsBuy || o.ReduceOnly || !o.Size.Equal(d("0.19")) {
		t.Fatalf("unexpected order: %+v", o)
	}
	// notional never exceeds leverage * equity
	if o.Size.Mul(d("50000")).GreaterThan(d("10000")) {
		t.Fatalf("order notional exceeds leverage budget")
	}
}

func TestExecuteShortClosesLong(t *testing.T) {
	r := &fakeReader{state: withPosition("1000", "0.4321"), mark: d("50000")}
	tr := &fakeTrader{}
	e := newExecutor(Config{PositionGuard: true, Policy: strategy.SignalPolicy{Short: strategy.ShortCloses}}, r, tr)

	out, err := e.Execute(context.Background(), exchange.Signal{Side: exchange.Short})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Intent != "close" || out.Status != StatusSent {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	o := tr.orders[0]
	if o.IsBuy || !o.ReduceOnly || !o.Size.Equal(d("0.4321")) {
		t.Fatalf("expected reduce-only sell of 0.4321, got %+v", o)
	}
}

func TestExecuteOpenShortMode(t *testing.T) {
	r := &fakeReader{state: flat("1000"), mark: d("50000")}
	tr := &fakeTrader{}
	e := newExecutor(Config{PositionGuard: true, Policy: strategy.SignalPolicy{Short: strategy.ShortOpens}}, r, tr)

	if _, err := e.Execute(context.Background(), exchange.Signal{Side: exchange.Short}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	o := tr.orders[0]
	if o.IsBuy || o.ReduceOnly || !o.Size.Equal(d("0.19")) {
		t.Fatalf("expected opening sell of 0.19, got %+v", o)
	}
}

func TestExecuteGuardSkipsWithoutWrites(t *testing.T) {
	tests := []struct {
		name   string
		state  exchange.AccountState
		side   exchange.Side
		reason string
	}{
		{"long while long", withPosition("1000", "0.1"), exchange.Long, "already_in_position"},
		{"close while flat", flat("1000"), exchange.Short, "no_position"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeReader{state: tt.state, mark: d("50000")}
			tr := &fakeTrader{}
			e := newExecutor(Config{PositionGuard: true, SetLeverage: true, Leverage: 10}, r, tr)

			out, err := e.Execute(context.Background(), exchange.Signal{Side: tt.side})
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if out.Status != StatusSkipped || out.Reason != tt.reason {
				t.Fatalf("expected skipped/%s, got %+v", tt.reason, out)
			}
			if tr.writes() != 0 {
				t.Fatalf("expected zero writes, got %d", tr.writes())
			}
		})
	}
}

func TestExecuteLeverageFailureAborts(t *testing.T) {
	r := &fakeReader{state: flat("1000"), mark: d("50000")}
	tr := &fakeTrader{levErr: errs.New(errs.ExchangeRejected, "update leverage", "Invalid leverage value")}
	e := newExecutor(Config{SetLeverage: true, Leverage: 10, CrossMargin: true}, r, tr)

	out, err := e.Execute(context.Background(), exchange.Signal{Side: exchange.Long})
	if !errs.Is(err, errs.ExchangeRejected) {
		t.Fatalf("expected ExchangeRejected, got %v", err)
	}
	if out.RequestID == "" {
		t.Fatal("request id missing on failure")
	}
	if len(tr.orders) != 0 {
		t.Fatalf("order placed after leverage failure")
	}
	if len(tr.levs) != 1 || tr.levs[0].Leverage != 10 || !tr.levs[0].IsCross {
		t.Fatalf("unexpected leverage updates: %+v", tr.levs)
	}
}

func TestExecuteLeverageNotSetForClose(t *testing.T) {
	r := &fakeReader{state: withPosition("1000", "0.1"), mark: d("50000")}
	tr := &fakeTrader{}
	e := newExecutor(Config{SetLeverage: true, Leverage: 10}, r, tr)

	if _, err := e.Execute(context.Background(), exchange.Signal{Side: exchange.Short}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(tr.levs) != 0 {
		t.Fatalf("leverage update sent for a close")
	}
}

func TestExecuteUpstreamFailuresPropagate(t *testing.T) {
	tests := []struct {
		name string
		r    *fakeReader
		kind errs.Kind
	}{
		{"malformed state", &fakeReader{stateErr: errs.New(errs.UpstreamMalformed, "fetch state", "non-JSON response: Internal error")}, errs.UpstreamMalformed},
		{"zero balance", &fakeReader{stateErr: errs.New(errs.ZeroBalance, "fetch state", "equity 0")}, errs.ZeroBalance},
		{"bad mark", &fakeReader{state: flat("1000"), markErr: errs.New(errs.InvalidMarketPrice, "fetch mark price", "0")}, errs.InvalidMarketPrice},
		{"dust equity", &fakeReader{state: flat("0.001"), mark: d("50000")}, errs.SizeBelowMinimum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTrader{}
			e := newExecutor(Config{}, tt.r, tr)
			_, err := e.Execute(context.Background(), exchange.Signal{Side: exchange.Long})
			if got := errs.KindOf(err); got != tt.kind {
				t.Fatalf("expected %s, got %s (%v)", tt.kind, got, err)
			}
			if tr.writes() != 0 {
				t.Fatalf("expected zero writes, got %d", tr.writes())
			}
		})
	}
}

func TestExecuteRejectsUnknownSide(t *testing.T) {
	r := &fakeReader{}
	tr := &fakeTrader{}
	e := newExecutor(Config{}, r, tr)

	_, err := e.Execute(context.Background(), exchange.Signal{Side: "sideways"})
	if !errs.Is(err, errs.InvalidSignal) {
		t.Fatalf("expected InvalidSignal, got %v", err)
	}
	if r.stateCalls.Load() != 0 {
		t.Fatal("reader called for invalid signal")
	}
}

func TestExecuteSerializesPerAccount(t *testing.T) {
	r := &fakeReader{state: flat("1000"), mark: d("50000"), delay: 5 * time.Millisecond}
	tr := &fakeTrader{reader: r}
	e := newExecutor(Config{}, r, tr)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Execute(context.Background(), exchange.Signal{Side: exchange.Long}); err != nil {
				t.Errorf("Execute: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := r.maxActive.Load(); got != 1 {
		t.Fatalf("read-to-dispatch sections overlapped: max %d in flight", got)
	}
	if len(tr.orders) != 8 {
		t.Fatalf("expected 8 orders, got %d", len(tr.orders))
	}
}

func TestGateAcquireHonoursContext(t *testing.T) {
	g := NewGate()
	release, err := g.Acquire(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	// other keys are independent
	other, err := g.Acquire(context.Background(), "b")
	if err != nil {
		t.Fatalf("independent key blocked: %v", err)
	}
	other()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := g.Acquire(ctx, "a"); !errs.Is(err, errs.UpstreamTimeout) {
		t.Fatalf("expected timeout while held, got %v", err)
	}
}
