// Package market supplies prices: a poller that keeps the quote cache fresh
// and the mock-mode trading loop.
package market

import (
	"context"
	"log"
	"math/rand"
	"sync"
)

// PriceSource returns the last traded price of a symbol.
// *binance.Connector satisfies it.
type PriceSource interface {
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// Fallback bounds of the synthetic price used when the exchange is unreachable.
const (
	FallbackLow  = 29000.0
	FallbackHigh = 31000.0
)

// FallbackSource asks Primary first and returns a uniform random price in
// [FallbackLow, FallbackHigh) when it fails.
type FallbackSource struct {
	Primary PriceSource

	mu  sync.Mutex
	rng *rand.Rand
}

// NewFallbackSource wraps primary, which may be nil.
func NewFallbackSource(primary PriceSource, seed int64) *FallbackSource {
	return &FallbackSource{Primary: primary, rng: rand.New(rand.NewSource(seed))}
}

// Price never fails; the bool reports whether the price is real.
func (f *FallbackSource) Price(ctx context.Context, symbol string) (float64, bool) {
	if f.Primary != nil {
		price, err := f.Primary.LastPrice(ctx, symbol)
		if err == nil && price > 0 {
			return price, true
		}
		log.Printf("market: price for %s unavailable, using synthetic price: %v", symbol, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return FallbackLow + f.rng.Float64()*(FallbackHigh-FallbackLow), false
}
