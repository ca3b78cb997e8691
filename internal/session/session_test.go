package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"tradebot/internal/events"
	"tradebot/internal/indicators"
	"tradebot/internal/strategy"
	"tradebot/internal/userdata"
	"tradebot/pkg/db"
	"tradebot/pkg/exchanges/common"
)

type fakeConnector struct {
	name     string
	tickers  []common.Ticker
	balances []common.Balance
	result   common.OrderResult
	panicky  bool
	block    chan struct{} // GetTickers waits on it when set
	entered  chan struct{}

	orderDelay   time.Duration // PlaceOrder takes this long unless its ctx ends
	orderEntered chan struct{}

	mu       sync.Mutex
	orders   []common.Order
	orderErr error
}

func (f *fakeConnector) Name() string                                  { return f.name }
func (f *fakeConnector) TestConnection(context.Context) (bool, string) { return true, "ok" }
func (f *fakeConnector) GetBalances(context.Context) ([]common.Balance, error) {
	return f.balances, nil
}

func (f *fakeConnector) GetTickers(context.Context, []string) ([]common.Ticker, error) {
	if f.panicky {
		panic("malformed payload")
	}
	if f.block != nil {
		close(f.entered)
		<-f.block
	}
	return f.tickers, nil
}

func (f *fakeConnector) PlaceOrder(ctx context.Context, o common.Order) (common.OrderResult, error) {
	if f.orderEntered != nil {
		close(f.orderEntered)
	}
	if f.orderDelay > 0 {
		select {
		case <-time.After(f.orderDelay):
		case <-ctx.Done():
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		f.orderErr = err
		return common.OrderResult{}, err
	}
	f.orders = append(f.orders, o)
	return f.result, nil
}

func (f *fakeConnector) placedErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orderErr
}

func (f *fakeConnector) placed() []common.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]common.Order(nil), f.orders...)
}

type fakeProvider map[string]common.Connector

func (p fakeProvider) GetOrCreate(_, exchange string, _ common.Credentials) (common.Connector, error) {
	c, ok := p[exchange]
	if !ok {
		return nil, fmt.Errorf("no connector for %s", exchange)
	}
	return c, nil
}
func (p fakeProvider) RecordFailure(string, string) {}
func (p fakeProvider) RecordSuccess(string, string) {}

type staticConfig struct{ cfg strategy.Config }

func (s staticConfig) StrategyConfig() strategy.Config { return s.cfg }

type fixedIndicators struct{ v indicators.Values }

func (f fixedIndicators) Name() string                                 { return "fixed" }
func (f fixedIndicators) Compute(float64, []float64) indicators.Values { return f.v }

type historyRecorder struct {
	mu   sync.Mutex
	rows []db.TradeHistory
}

func (h *historyRecorder) Write(row db.TradeHistory) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rows = append(h.rows, row)
}

const user = "trader@example.com"

func usdt(free float64) []common.Balance {
	return []common.Balance{{Asset: "USDT", Free: free, Total: free}}
}

func newStore(t *testing.T, exchanges ...string) *userdata.MemoryStore {
	t.Helper()
	store := userdata.NewMemoryStore()
	rec := userdata.NewRecord(time.Now())
	for _, name := range exchanges {
		rec.AddExchange(userdata.ExchangeConnection{Name: name, APIKey: "k", APISecret: "s"})
	}
	if err := store.SaveUserData(context.Background(), user, rec); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return store
}

func newSession(store userdata.Store, provider fakeProvider, rsi float64, bus *events.Bus, hist HistorySink) *Session {
	return New(user, Config{Interval: time.Hour, StopTimeout: time.Second}, Deps{
		Store:      store,
		Connectors: provider,
		Strategy:   staticConfig{strategy.DefaultConfig()},
		Indicators: fixedIndicators{indicators.Values{RSI: rsi}},
		Bus:        bus,
		History:    hist,
	})
}

func TestStartWithoutExchanges(t *testing.T) {
	s := newSession(newStore(t), fakeProvider{}, 50, nil, nil)
	err := s.Start(context.Background())

	var cfgErr *common.ConfigurationError
	if !errors.As(err, &cfgErr) || !errors.Is(err, ErrNoExchanges) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if s.Running() {
		t.Fatal("session running after failed start")
	}
}

func (s *Session) currentWindow() *indicators.Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window
}

func TestStartStopLifecycle(t *testing.T) {
	conn := &fakeConnector{
		name:     "btcc",
		tickers:  []common.Ticker{{Symbol: "BTCUSDT", Price: 50000}},
		balances: usdt(10000),
		result:   common.OrderResult{Success: true, Status: "FILLED", OrderID: "o-1"},
	}
	s := newSession(newStore(t, "btcc"), fakeProvider{"btcc": conn}, 10, nil, nil)
	ctx := context.Background()
	key := "btcc|" + common.SymbolKey("BTCUSDT")

	if err := s.iterate(ctx, s.generation, s.window); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(s.TradeHistory()) != 1 || len(s.currentWindow().History(key)) != 1 {
		t.Fatalf("seed: history=%d window=%v", len(s.TradeHistory()), s.currentWindow().History(key))
	}

	// hold the new worker inside its first exchange call so the fresh state
	// can be inspected before it trades again
	conn.block = make(chan struct{})
	conn.entered = make(chan struct{})

	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second start: %v", err)
	}
	select {
	case <-conn.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never called the exchange")
	}
	if h := s.TradeHistory(); len(h) != 0 {
		t.Fatalf("history survived start: %+v", h)
	}
	if w := s.currentWindow().History(key); len(w) != 0 {
		t.Fatalf("price window survived start: %v", w)
	}
	if st := s.Status(); st.Iterations != 0 || st.Trades != 0 {
		t.Fatalf("status after start = %+v", st)
	}
	close(conn.block)

	if err := s.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if s.Running() {
		t.Fatal("still running after stop")
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("stop when idle: %v", err)
	}
}

func TestStopLetsInflightOrderFinish(t *testing.T) {
	conn := &fakeConnector{
		name:         "btcc",
		tickers:      []common.Ticker{{Symbol: "BTCUSDT", Price: 50000}},
		balances:     usdt(10000),
		result:       common.OrderResult{Success: true, Status: "FILLED", OrderID: "o-9"},
		orderDelay:   300 * time.Millisecond,
		orderEntered: make(chan struct{}),
	}
	store := newStore(t, "btcc")
	s := newSession(store, fakeProvider{"btcc": conn}, 10, nil, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case <-conn.orderEntered:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never placed an order")
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if err := conn.placedErr(); err != nil {
		t.Fatalf("in-flight order was cancelled: %v", err)
	}
	h := s.TradeHistory()
	if len(h) != 1 || h[0].OrderID != "o-9" {
		t.Fatalf("history = %+v", h)
	}
	rec, _ := store.GetUserData(context.Background(), user)
	if len(rec.TradingData.Trades) != 1 {
		t.Fatalf("stored trades = %+v", rec.TradingData.Trades)
	}
}

func TestStopTimeout(t *testing.T) {
	conn := &fakeConnector{name: "btcc", block: make(chan struct{}), entered: make(chan struct{})}
	s := New(user, Config{Interval: time.Hour, StopTimeout: 50 * time.Millisecond}, Deps{
		Store:      newStore(t, "btcc"),
		Connectors: fakeProvider{"btcc": conn},
		Strategy:   staticConfig{strategy.DefaultConfig()},
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer close(conn.block)

	select {
	case <-conn.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never called the exchange")
	}
	if err := s.Stop(); !errors.Is(err, ErrStopTimeout) {
		t.Fatalf("expected ErrStopTimeout, got %v", err)
	}
	if s.Running() {
		t.Fatal("session should read as stopped")
	}
}

func TestIterationPlacesSizedOrder(t *testing.T) {
	conn := &fakeConnector{
		name:     "btcc",
		tickers:  []common.Ticker{{Symbol: "BTCUSDT", Price: 50000}},
		balances: usdt(10000),
		result:   common.OrderResult{Success: true, Status: "FILLED", OrderID: "o-1"},
	}
	store := newStore(t, "btcc")
	bus := events.NewBus()
	executed, unsub := bus.Subscribe(4, events.EventTradeExecuted)
	defer unsub()
	hist := &historyRecorder{}

	s := newSession(store, fakeProvider{"btcc": conn}, 10, bus, hist)
	if err := s.iterate(context.Background(), s.generation, s.window); err != nil {
		t.Fatalf("iterate: %v", err)
	}

	orders := conn.placed()
	if len(orders) != 1 {
		t.Fatalf("orders = %+v", orders)
	}
	if o := orders[0]; o.Side != common.SideBuy || o.Type != common.OrderTypeMarket || o.Quantity != 0.004 {
		t.Fatalf("order = %+v", o)
	}

	h := s.TradeHistory()
	if len(h) != 1 || h[0].Status != StatusExecuted || h[0].OrderID != "o-1" || h[0].Exchange != "btcc" {
		t.Fatalf("history = %+v", h)
	}
	if len(hist.rows) != 1 || hist.rows[0].ID != h[0].ID {
		t.Fatalf("history rows = %+v", hist.rows)
	}
	select {
	case msg := <-executed:
		if msg.User != user {
			t.Fatalf("message = %+v", msg)
		}
	default:
		t.Fatal("no trade event")
	}

	rec, _ := store.GetUserData(context.Background(), user)
	if rec.TradingData.TotalTrades != 1 || len(rec.TradingData.Trades) != 1 {
		t.Fatalf("stored trading data = %+v", rec.TradingData)
	}
}

func TestIterationContainsExchangeFailures(t *testing.T) {
	bad := &fakeConnector{name: "kucoin", panicky: true}
	good := &fakeConnector{
		name:     "btcc",
		tickers:  []common.Ticker{{Symbol: "ETHUSDT", Price: 2000}},
		balances: usdt(1000),
		result:   common.OrderResult{Success: true, Status: "NEW"},
	}
	store := newStore(t, "kucoin", "btcc")

	s := newSession(store, fakeProvider{"kucoin": bad, "btcc": good}, 10, nil, nil)
	if err := s.iterate(context.Background(), s.generation, s.window); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	h := s.TradeHistory()
	if len(h) != 1 || h[0].Exchange != "btcc" || h[0].Status != StatusSubmitted {
		t.Fatalf("history = %+v", h)
	}
}

func TestIterationSkipsWhenRiskDenies(t *testing.T) {
	conn := &fakeConnector{
		name:     "btcc",
		tickers:  []common.Ticker{{Symbol: "BTCUSDT", Price: 50000}},
		balances: usdt(10000),
		result:   common.OrderResult{Success: true},
	}
	store := newStore(t, "btcc")
	rec, _ := store.GetUserData(context.Background(), user)
	rec.TradingData.ConsecutiveLosses = 3
	store.SaveUserData(context.Background(), user, rec)

	bus := events.NewBus()
	rejected, unsub := bus.Subscribe(4, events.EventRiskRejected)
	defer unsub()

	s := newSession(store, fakeProvider{"btcc": conn}, 10, bus, nil)
	s.iterate(context.Background(), s.generation, s.window)

	if len(conn.placed()) != 0 {
		t.Fatal("order placed despite risk denial")
	}
	select {
	case <-rejected:
	default:
		t.Fatal("no risk rejection event")
	}
}

func TestIterationRecordsNothingOnRejection(t *testing.T) {
	conn := &fakeConnector{
		name:     "btcc",
		tickers:  []common.Ticker{{Symbol: "BTCUSDT", Price: 50000}},
		balances: usdt(10000),
		result:   common.OrderResult{Success: false, Message: "insufficient balance"},
	}
	bus := events.NewBus()
	failed, unsub := bus.Subscribe(4, events.EventOrderFailed)
	defer unsub()

	s := newSession(newStore(t, "btcc"), fakeProvider{"btcc": conn}, 10, bus, nil)
	s.iterate(context.Background(), s.generation, s.window)

	if len(conn.placed()) != 1 || len(s.TradeHistory()) != 0 {
		t.Fatalf("orders=%d history=%d", len(conn.placed()), len(s.TradeHistory()))
	}
	select {
	case <-failed:
	default:
		t.Fatal("no order failure event")
	}
}

func TestHoldPlacesNothing(t *testing.T) {
	conn := &fakeConnector{
		name:     "btcc",
		tickers:  []common.Ticker{{Symbol: "BTCUSDT", Price: 50000}},
		balances: usdt(10000),
	}
	s := newSession(newStore(t, "btcc"), fakeProvider{"btcc": conn}, 50, nil, nil)
	s.iterate(context.Background(), s.generation, s.window)
	if len(conn.placed()) != 0 {
		t.Fatal("hold signal placed an order")
	}
	if st := s.Status(); st.Iterations != 1 || st.LastError != "" {
		t.Fatalf("status = %+v", st)
	}
}
