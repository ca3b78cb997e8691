package market

import (
	"context"
	"log"
	"runtime/debug"
	"time"

	"tradebot/internal/events"
	"tradebot/internal/indicators"
	"tradebot/internal/monitor"
	"tradebot/internal/state"
	"tradebot/internal/strategy"
)

// MockTrader is the paper-trading loop. While the state manager is running it
// reads a price, evaluates the active strategy and books one unit per signal.
// Every signal passes the risk check; there is no real money involved.
type MockTrader struct {
	State      *state.Manager
	Prices     *FallbackSource
	Indicators indicators.Source
	Symbol     string
	Interval   time.Duration
	Bus        *events.Bus
	Metrics    *monitor.SystemMetrics

	window *indicators.Window
}

// Start runs the loop until ctx ends.
func (m *MockTrader) Start(ctx context.Context) {
	if m.State == nil || m.Prices == nil {
		log.Println("mock trader: not fully configured; skipping start")
		return
	}
	if m.Interval <= 0 {
		m.Interval = 5 * time.Second
	}
	go func() {
		ticker := time.NewTicker(m.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if m.State.Running() {
					m.Step(ctx)
				}
			}
		}
	}()
}

// Step runs one iteration and returns the signal it acted on.
func (m *MockTrader) Step(ctx context.Context) (sig strategy.Signal) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("mock trader: panic recovered: %v\n%s", r, debug.Stack())
			sig = strategy.Signal{Action: strategy.ActionHold}
		}
	}()

	if m.window == nil {
		m.window = indicators.NewWindow(indicators.DefaultWindow)
	}
	if m.Indicators == nil {
		m.Indicators = indicators.NewPlaceholder(time.Now().UnixNano())
	}
	symbol := m.Symbol
	if symbol == "" {
		symbol = "BTCUSDT"
	}

	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	price, live := m.Prices.Price(reqCtx, symbol)
	cancel()
	if !live {
		log.Printf("mock trader: no live price for %s, trading on synthetic %.2f", symbol, price)
	}

	history := m.window.Push(symbol, price)
	cfg := m.State.StrategyConfig()
	sig = strategy.Evaluate(symbol, price, m.Indicators.Compute(price, history), cfg, history)
	if !sig.Actionable() {
		return sig
	}
	if m.Metrics != nil {
		m.Metrics.IncrementSignals()
	}
	m.Bus.Publish(events.EventSignal, "", sig)

	res, err := m.State.ExecuteMockTrade(ctx, state.TradeRequest{
		Symbol: symbol,
		Side:   string(sig.Action),
		Qty:    1,
		Price:  price,
	})
	if err != nil {
		log.Printf("mock trader: %s %s: %v", sig.Action, symbol, err)
		return sig
	}
	if m.Metrics != nil {
		m.Metrics.IncrementMockTrades()
	}
	m.Bus.Publish(events.EventMockTrade, "", res)
	return sig
}
