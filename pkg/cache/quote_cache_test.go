package cache

import (
	"testing"
	"time"

	"tradebot/pkg/exchanges/common"
)

func TestPutGetNormalizesSymbols(t *testing.T) {
	c := NewQuoteCache()
	c.Put("kucoin", common.Ticker{Symbol: "BTC-USDT", Price: 50000})

	q, ok := c.Get("kucoin", "BTCUSDT")
	if !ok || q.Price != 50000 || q.Symbol != "BTC-USDT" {
		t.Fatalf("got %+v %v", q, ok)
	}
	if _, ok := c.Get("btcc", "BTCUSDT"); ok {
		t.Fatal("quote leaked across exchanges")
	}
}

func TestLatestPicksNewest(t *testing.T) {
	c := NewQuoteCache()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }
	c.Put("btcc", common.Ticker{Symbol: "ETHUSDT", Price: 3000})
	c.now = func() time.Time { return base.Add(time.Second) }
	c.Put("kucoin", common.Ticker{Symbol: "ETH-USDT", Price: 3001})

	q, ok := c.Latest("eth/usdt")
	if !ok || q.Exchange != "kucoin" {
		t.Fatalf("latest = %+v", q)
	}
	if got := c.Snapshot(); len(got) != 2 || got[0].Exchange != "btcc" {
		t.Fatalf("snapshot = %+v", got)
	}
}

func TestCleanup(t *testing.T) {
	c := NewQuoteCache()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }
	c.Put("btcc", common.Ticker{Symbol: "BTCUSDT", Price: 1}, common.Ticker{Symbol: "SOLUSDT", Price: 2})
	c.now = func() time.Time { return base.Add(time.Hour) }
	c.Put("btcc", common.Ticker{Symbol: "SOLUSDT", Price: 3})

	if n := c.Cleanup(time.Minute); n != 1 {
		t.Fatalf("removed %d", n)
	}
	if c.Len() != 1 {
		t.Fatalf("len = %d", c.Len())
	}
}
