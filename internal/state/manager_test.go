package state

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"tradebot/internal/strategy"
	"tradebot/pkg/db"
)

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestMockTradeAccounting(t *testing.T) {
	m := NewManager(nil, strategy.DefaultConfig(), 10000)
	ctx := context.Background()

	if _, err := m.ExecuteMockTrade(ctx, TradeRequest{Symbol: "btcusdt", Side: "buy", Qty: 1, Price: 100}); err != nil {
		t.Fatal(err)
	}
	res, err := m.ExecuteMockTrade(ctx, TradeRequest{Symbol: "BTCUSDT", Side: "BUY", Qty: 1, Price: 200})
	if err != nil {
		t.Fatal(err)
	}
	if !almost(res.Position.Qty, 2) || !almost(res.Position.AvgPrice, 150) {
		t.Fatalf("position after buys = %+v", res.Position)
	}
	if !almost(res.Cash, 9700) {
		t.Fatalf("cash = %v", res.Cash)
	}

	res, err = m.ExecuteMockTrade(ctx, TradeRequest{Symbol: "BTCUSDT", Side: "sell", Qty: 3, Price: 180})
	if err != nil {
		t.Fatal(err)
	}
	if !almost(res.Trade.RealizedPnL, 60) {
		t.Fatalf("realized = %v, want 60", res.Trade.RealizedPnL)
	}
	if res.Position.Qty != 0 || res.Position.AvgPrice != 0 {
		t.Fatalf("position after sell = %+v", res.Position)
	}
	if !almost(res.Cash, 10060) {
		t.Fatalf("cash = %v", res.Cash)
	}

	perf := m.Performance()
	if perf.TradeCount != 3 || !almost(perf.TotalRealizedPnL, 60) {
		t.Fatalf("performance = %+v", perf)
	}
	if len(m.Trades()) != 3 {
		t.Fatalf("trades = %d", len(m.Trades()))
	}
}

func TestMockTradeValidation(t *testing.T) {
	m := NewManager(nil, strategy.DefaultConfig(), 10000)
	bad := []TradeRequest{
		{Symbol: "", Side: "buy", Qty: 1, Price: 1},
		{Symbol: "BTCUSDT", Side: "hold", Qty: 1, Price: 1},
		{Symbol: "BTCUSDT", Side: "buy", Qty: 0, Price: 1},
		{Symbol: "BTCUSDT", Side: "buy", Qty: 1, Price: math.NaN()},
	}
	for _, req := range bad {
		if _, err := m.ExecuteMockTrade(context.Background(), req); !errors.Is(err, ErrInvalidTrade) {
			t.Errorf("%+v: expected ErrInvalidTrade, got %v", req, err)
		}
	}
	if m.Performance().TradeCount != 0 {
		t.Fatal("rejected trade was counted")
	}
}

func TestStrategyConfigSnapshot(t *testing.T) {
	m := NewManager(nil, strategy.DefaultConfig(), 0)
	snap := m.StrategyConfig()

	if _, err := m.UpdateStrategyConfig(map[string]any{"active_strategy": "momentum", "momentum_threshold": 0.8}); err != nil {
		t.Fatal(err)
	}
	if snap.ActiveStrategy != "rsi" {
		t.Fatal("snapshot changed after update")
	}
	if got := m.StrategyConfig(); got.ActiveStrategy != "momentum" || got.MomentumThreshold != 0.8 {
		t.Fatalf("config = %+v", got)
	}
	if _, err := m.UpdateStrategyConfig(map[string]any{"rsi_oversold": 90}); err == nil {
		t.Fatal("invalid thresholds accepted")
	}
	if m.StrategyConfig().RSIOversold != 30 {
		t.Fatal("failed update changed the config")
	}
}

func TestSchedule(t *testing.T) {
	m := NewManager(nil, strategy.DefaultConfig(), 0)
	if m.Schedule() != Schedule247 {
		t.Fatalf("default schedule = %s", m.Schedule())
	}
	if err := m.SetSchedule("weekends"); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule, got %v", err)
	}
	if err := m.SetSchedule(ScheduleMarket); err != nil || m.Schedule() != ScheduleMarket {
		t.Fatalf("schedule = %s, %v", m.Schedule(), err)
	}
}

func TestConcurrentTrades(t *testing.T) {
	m := NewManager(nil, strategy.DefaultConfig(), 1e6)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.ExecuteMockTrade(context.Background(), TradeRequest{Symbol: "ETHUSDT", Side: "buy", Qty: 1, Price: 10})
		}()
	}
	wg.Wait()
	if p := m.Positions(); len(p) != 1 || p[0].Qty != 50 {
		t.Fatalf("positions = %+v", p)
	}
}

func TestPositionsPersist(t *testing.T) {
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	m := NewManager(database, strategy.DefaultConfig(), 10000)
	if _, err := m.ExecuteMockTrade(ctx, TradeRequest{Symbol: "BTCUSDT", Side: "buy", Qty: 2, Price: 30000}); err != nil {
		t.Fatal(err)
	}

	reloaded := NewManager(database, strategy.DefaultConfig(), 10000)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if p := reloaded.Positions(); len(p) != 1 || p[0].Qty != 2 || p[0].AvgPrice != 30000 {
		t.Fatalf("reloaded = %+v", p)
	}
	trades, err := database.ListMockTrades(ctx, 10)
	if err != nil || len(trades) != 1 {
		t.Fatalf("mock trades = %+v, %v", trades, err)
	}
}
