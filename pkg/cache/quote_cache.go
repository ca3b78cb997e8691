// Package cache holds the latest ticker seen per exchange and symbol.
package cache

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"tradebot/pkg/exchanges/common"
)

const numShards = 16

// Quote is a cached ticker.
type Quote struct {
	Exchange  string    `json:"exchange"`
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Volume24h float64   `json:"volume_24h"`
	Change24h float64   `json:"change_24h"`
	UpdatedAt time.Time `json:"updated_at"`
}

// QuoteCache is a sharded map of quotes keyed by exchange and normalized
// symbol, so BTC-USDT on one venue and BTCUSDT on another can be compared.
type QuoteCache struct {
	shards [numShards]*quoteShard
	now    func() time.Time
}

type quoteShard struct {
	mu    sync.RWMutex
	items map[string]Quote
}

func NewQuoteCache() *QuoteCache {
	c := &QuoteCache{now: time.Now}
	for i := 0; i < numShards; i++ {
		c.shards[i] = &quoteShard{items: make(map[string]Quote)}
	}
	return c
}

func cacheKey(exchange, symbol string) string {
	return exchange + "|" + common.SymbolKey(symbol)
}

func (c *QuoteCache) shard(key string) *quoteShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%numShards]
}

// Put stores the tickers of one exchange.
func (c *QuoteCache) Put(exchange string, tickers ...common.Ticker) {
	now := c.now()
	for _, t := range tickers {
		k := cacheKey(exchange, t.Symbol)
		s := c.shard(k)
		s.mu.Lock()
		s.items[k] = Quote{
			Exchange:  exchange,
			Symbol:    t.Symbol,
			Price:     t.Price,
			Volume24h: t.Volume24h,
			Change24h: t.Change24h,
			UpdatedAt: now,
		}
		s.mu.Unlock()
	}
}

// Get returns the quote of symbol on exchange.
func (c *QuoteCache) Get(exchange, symbol string) (Quote, bool) {
	k := cacheKey(exchange, symbol)
	s := c.shard(k)
	s.mu.RLock()
	q, ok := s.items[k]
	s.mu.RUnlock()
	return q, ok
}

// Latest returns the most recently updated quote of symbol on any exchange.
func (c *QuoteCache) Latest(symbol string) (Quote, bool) {
	want := common.SymbolKey(symbol)
	var best Quote
	found := false
	for _, s := range c.shards {
		s.mu.RLock()
		for _, q := range s.items {
			if common.SymbolKey(q.Symbol) == want && (!found || q.UpdatedAt.After(best.UpdatedAt)) {
				best, found = q, true
			}
		}
		s.mu.RUnlock()
	}
	return best, found
}

// Snapshot returns every quote ordered by exchange then symbol.
func (c *QuoteCache) Snapshot() []Quote {
	out := make([]Quote, 0, c.Len())
	for _, s := range c.shards {
		s.mu.RLock()
		for _, q := range s.items {
			out = append(out, q)
		}
		s.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Exchange != out[j].Exchange {
			return out[i].Exchange < out[j].Exchange
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// Len returns total items across all shards.
func (c *QuoteCache) Len() int {
	total := 0
	for _, s := range c.shards {
		s.mu.RLock()
		total += len(s.items)
		s.mu.RUnlock()
	}
	return total
}

// Cleanup removes quotes older than maxAge and returns how many went.
func (c *QuoteCache) Cleanup(maxAge time.Duration) int {
	removed := 0
	cutoff := c.now().Add(-maxAge)
	for _, s := range c.shards {
		s.mu.Lock()
		for k, q := range s.items {
			if q.UpdatedAt.Before(cutoff) {
				delete(s.items, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}
