// Package risk decides whether a signal may become an order and how large
// that order is. Apart from the gate's clock, everything here is a pure
// function of its inputs.
package risk

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradebot/internal/strategy"
	"tradebot/pkg/exchanges/common"
)

// knownQuotes are matched as suffixes of concatenated symbols, longest first.
var knownQuotes = []string{"FDUSD", "USDT", "USDC", "BUSD", "TUSD", "USD", "EUR", "BTC", "ETH"}

// Gate evaluates signals against a set of limits.
type Gate struct {
	limits Limits
	now    func() time.Time
}

// NewGate creates a gate with limits.
func NewGate(limits Limits) *Gate {
	return &Gate{limits: limits, now: time.Now}
}

// Limits returns the gate's limits.
func (g *Gate) Limits() Limits { return g.limits }

// Permit reports whether the signal may be executed.
func (g *Gate) Permit(sig strategy.Signal, balances []common.Balance, stats SessionStats) bool {
	return g.Evaluate(sig, balances, stats).Allowed
}

// Evaluate runs the checks in order and stops at the first failure:
// daily PnL, losing streak, then the quote balance floor for buys. A daily
// PnL recorded for another day is ignored.
func (g *Gate) Evaluate(sig strategy.Signal, balances []common.Balance, stats SessionStats) Decision {
	l := g.limits
	stats = stats.AsOf(g.now())
	if stats.DailyPnL < -l.MaxDailyLossPct {
		return Decision{Reason: fmt.Sprintf("daily loss limit reached: %.2f < -%.2f", stats.DailyPnL, l.MaxDailyLossPct)}
	}
	if stats.ConsecutiveLosses >= l.MaxConsecutiveLosses {
		return Decision{Reason: fmt.Sprintf("consecutive loss limit reached: %d/%d", stats.ConsecutiveLosses, l.MaxConsecutiveLosses)}
	}
	if sig.Action == strategy.ActionBuy {
		quote := QuoteAsset(sig.Symbol, l.DefaultQuote)
		if free := FreeBalance(balances, quote); free < l.MinQuoteBalance {
			return Decision{Reason: fmt.Sprintf("insufficient %s: %.2f < %.2f", quote, free, l.MinQuoteBalance)}
		}
	}

	d := Decision{Allowed: true, Reason: "within limits"}
	switch sig.Action {
	case strategy.ActionBuy:
		d.StopLoss = sig.Price * (1 - l.StopLossPct/100)
		d.TakeProfit = sig.Price * (1 + l.TakeProfitPct/100)
	case strategy.ActionSell:
		d.StopLoss = sig.Price * (1 + l.StopLossPct/100)
		d.TakeProfit = sig.Price * (1 - l.TakeProfitPct/100)
	}
	return d
}

// Size returns the order quantity for sig: free quote balance times the
// per-trade risk fraction, divided by price, capped by the position size
// fraction and rounded to the symbol's precision. Zero means do not trade.
func (g *Gate) Size(sig strategy.Signal, balances []common.Balance) float64 {
	if sig.Price <= 0 {
		return 0
	}
	free := FreeBalance(balances, QuoteAsset(sig.Symbol, g.limits.DefaultQuote))
	if free <= 0 {
		return 0
	}
	fraction := g.limits.RiskPerTrade
	if g.limits.MaxPositionSizePct > 0 && fraction > g.limits.MaxPositionSizePct {
		fraction = g.limits.MaxPositionSizePct
	}
	qty := decimal.NewFromFloat(free).
		Mul(decimal.NewFromFloat(fraction)).
		Div(decimal.NewFromFloat(sig.Price)).
		Round(Precision(sig.Symbol))
	if !qty.IsPositive() {
		return 0
	}
	return qty.InexactFloat64()
}

// Precision returns the quantity decimals for symbol: 6 for BTC pairs,
// 5 for ETH pairs and 4 otherwise.
func Precision(symbol string) int32 {
	s := strings.ToUpper(symbol)
	switch {
	case strings.Contains(s, "BTC"):
		return 6
	case strings.Contains(s, "ETH"):
		return 5
	default:
		return 4
	}
}

// QuoteAsset extracts the quote currency of symbol (BTC-USDT, BTC/USDT and
// BTCUSDT all give USDT). fallback is returned when nothing matches.
func QuoteAsset(symbol, fallback string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if i := strings.IndexAny(s, "-/_"); i >= 0 && i < len(s)-1 {
		return s[i+1:]
	}
	for _, q := range knownQuotes {
		if len(s) > len(q) && strings.HasSuffix(s, q) {
			return q
		}
	}
	if fallback == "" {
		return "USDT"
	}
	return strings.ToUpper(fallback)
}

// FreeBalance returns the free amount of asset, or 0 when absent.
func FreeBalance(balances []common.Balance, asset string) float64 {
	for _, b := range balances {
		if strings.EqualFold(b.Asset, asset) {
			return b.Free
		}
	}
	return 0
}
