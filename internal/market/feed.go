package market

import (
	"context"
	"log"
	"time"

	"tradebot/internal/events"
	"tradebot/pkg/cache"
	"tradebot/pkg/exchanges/common"
)

// Feed polls public prices for the watched symbols, stores them in the quote
// cache and publishes price ticks.
type Feed struct {
	Source   PriceSource
	Exchange string // cache key for quotes from Source
	Cache    *cache.QuoteCache
	Bus      *events.Bus
	Symbols  []string
	Interval time.Duration
}

// Start begins polling until ctx ends.
func (f *Feed) Start(ctx context.Context) {
	if f.Source == nil || f.Cache == nil || len(f.Symbols) == 0 {
		log.Println("market feed: not fully configured; skipping start")
		return
	}
	if f.Interval <= 0 {
		f.Interval = 10 * time.Second
	}
	go func() {
		f.Poll(ctx)
		ticker := time.NewTicker(f.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				f.Poll(ctx)
			}
		}
	}()
}

// Poll fetches every symbol once. Failed symbols are skipped.
func (f *Feed) Poll(ctx context.Context) {
	for _, sym := range f.Symbols {
		reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		price, err := f.Source.LastPrice(reqCtx, sym)
		cancel()
		if err != nil {
			log.Printf("market feed: %s: %v", sym, err)
			continue
		}
		t := common.Ticker{Symbol: sym, Price: price}
		f.Cache.Put(f.Exchange, t)
		f.Bus.Publish(events.EventPriceTick, "", t)
	}
}
