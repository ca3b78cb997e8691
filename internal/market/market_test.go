package market

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"strings"
	"testing"

	"tradebot/internal/events"
	"tradebot/internal/indicators"
	"tradebot/internal/state"
	"tradebot/internal/strategy"
	"tradebot/pkg/cache"
)

type stubPrices struct {
	price float64
	err   error
}

func (s stubPrices) LastPrice(context.Context, string) (float64, error) { return s.price, s.err }

type fixedIndicators struct{ v indicators.Values }

func (f fixedIndicators) Name() string                                 { return "fixed" }
func (f fixedIndicators) Compute(float64, []float64) indicators.Values { return f.v }

func TestFallbackSource(t *testing.T) {
	live := NewFallbackSource(stubPrices{price: 42000}, 1)
	if p, ok := live.Price(context.Background(), "BTCUSDT"); !ok || p != 42000 {
		t.Fatalf("got %v %v", p, ok)
	}

	down := NewFallbackSource(stubPrices{err: errors.New("timeout")}, 1)
	for i := 0; i < 100; i++ {
		p, ok := down.Price(context.Background(), "BTCUSDT")
		if ok || p < FallbackLow || p >= FallbackHigh {
			t.Fatalf("fallback price %v (real=%v)", p, ok)
		}
	}
}

func TestMockTraderBuysOnOversold(t *testing.T) {
	st := state.NewManager(nil, strategy.DefaultConfig(), 10000)
	bus := events.NewBus()
	trades, unsub := bus.Subscribe(4, events.EventMockTrade)
	defer unsub()

	m := &MockTrader{
		State:      st,
		Prices:     NewFallbackSource(stubPrices{price: 100}, 1),
		Indicators: fixedIndicators{indicators.Values{RSI: 10}},
		Symbol:     "ETHUSDT",
		Bus:        bus,
	}
	sig := m.Step(context.Background())
	if sig.Action != strategy.ActionBuy {
		t.Fatalf("signal = %+v", sig)
	}
	pos := st.Positions()
	if len(pos) != 1 || pos[0].Symbol != "ETHUSDT" || pos[0].Qty != 1 || pos[0].AvgPrice != 100 {
		t.Fatalf("positions = %+v", pos)
	}
	if st.Cash() != 9900 {
		t.Fatalf("cash = %v", st.Cash())
	}
	select {
	case <-trades:
	default:
		t.Fatal("mock trade not published")
	}
}

func TestMockTraderLogsSyntheticPrice(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	st := state.NewManager(nil, strategy.DefaultConfig(), 1e9)
	m := &MockTrader{
		State:      st,
		Prices:     NewFallbackSource(stubPrices{err: errors.New("down")}, 1),
		Indicators: fixedIndicators{indicators.Values{RSI: 10}},
		Symbol:     "ETHUSDT",
		Bus:        events.NewBus(),
	}
	sig := m.Step(context.Background())
	if sig.Action != strategy.ActionBuy || sig.Price < FallbackLow || sig.Price >= FallbackHigh {
		t.Fatalf("signal = %+v", sig)
	}
	if !strings.Contains(buf.String(), "no live price for ETHUSDT, trading on synthetic") {
		t.Fatalf("log = %q", buf.String())
	}
}

func TestMockTraderHoldDoesNotTrade(t *testing.T) {
	st := state.NewManager(nil, strategy.DefaultConfig(), 10000)
	m := &MockTrader{
		State:      st,
		Prices:     NewFallbackSource(stubPrices{price: 100}, 1),
		Indicators: fixedIndicators{indicators.Values{RSI: 50}},
	}
	if sig := m.Step(context.Background()); sig.Action != strategy.ActionHold {
		t.Fatalf("signal = %+v", sig)
	}
	if st.Performance().TradeCount != 0 {
		t.Fatal("hold produced a trade")
	}
}

func TestFeedPollFillsCache(t *testing.T) {
	c := cache.NewQuoteCache()
	f := &Feed{Source: stubPrices{price: 3000}, Exchange: "binance", Cache: c, Symbols: []string{"ETHUSDT"}}
	f.Poll(context.Background())
	if q, ok := c.Get("binance", "ETHUSDT"); !ok || q.Price != 3000 {
		t.Fatalf("quote = %+v %v", q, ok)
	}

	empty := cache.NewQuoteCache()
	(&Feed{Source: stubPrices{err: errors.New("down")}, Cache: empty, Symbols: []string{"ETHUSDT"}}).Poll(context.Background())
	if empty.Len() != 0 {
		t.Fatal("failed poll cached a quote")
	}
}
