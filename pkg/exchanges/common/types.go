package common

import (
	"fmt"
	"math"
	"strings"
)

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType denotes the order types every connector supports.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// balanceTolerance bounds the drift allowed between total and free+used.
const balanceTolerance = 1e-9

// Credentials authenticate one connector. The connector keeps its own copy.
type Credentials struct {
	APIKey     string `json:"api_key"`
	APISecret  string `json:"api_secret"`
	Passphrase string `json:"passphrase,omitempty"`
	Sandbox    bool   `json:"sandbox"`
}

// Validate reports missing key material.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" || strings.TrimSpace(c.APISecret) == "" {
		return &ConfigurationError{Reason: "api key and secret are required"}
	}
	return nil
}

// Balance is the holding of one asset. Total always equals Free+Used.
type Balance struct {
	Asset string  `json:"asset"`
	Free  float64 `json:"free"`
	Used  float64 `json:"used"`
	Total float64 `json:"total"`
}

// NewBalance normalizes an exchange balance row. When only two of the three
// amounts are reported the third is derived; when all three are reported the
// total is recomputed from free and used. ok is false when the row cannot be
// used (no asset, an amount that does not parse, or fewer than two amounts).
func NewBalance(asset string, free, used, total Number) (Balance, bool) {
	asset = strings.TrimSpace(asset)
	if asset == "" || free.Bad() || used.Bad() || total.Bad() {
		return Balance{}, false
	}
	b := Balance{Asset: strings.ToUpper(asset)}
	switch {
	case free.Valid && used.Valid:
		b.Free, b.Used = free.Value, used.Value
	case free.Valid && total.Valid:
		b.Free, b.Used = free.Value, total.Value-free.Value
	case used.Valid && total.Valid:
		b.Free, b.Used = total.Value-used.Value, used.Value
	case free.Valid:
		b.Free = free.Value
	default:
		return Balance{}, false
	}
	b.Total = b.Free + b.Used
	return b, true
}

// Consistent reports whether Total matches Free+Used.
func (b Balance) Consistent() bool {
	return math.Abs(b.Total-(b.Free+b.Used)) <= balanceTolerance
}

// IsZero reports whether the asset has no holdings at all.
func (b Balance) IsZero() bool {
	return b.Free == 0 && b.Used == 0
}

// Ticker is a point-in-time market snapshot. Never persisted.
type Ticker struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Volume24h float64 `json:"volume_24h"`
	Change24h float64 `json:"change_24h"`
}

// Order is an order intent built fresh for each trade attempt.
type Order struct {
	Symbol   string    `json:"symbol"`
	Side     Side      `json:"side"`
	Quantity float64   `json:"quantity"`
	Price    float64   `json:"price"`
	Type     OrderType `json:"order_type"`
}

// Validate checks the order before it is sent.
func (o Order) Validate() error {
	if o.Symbol == "" {
		return fmt.Errorf("order: symbol required")
	}
	if o.Side != SideBuy && o.Side != SideSell {
		return fmt.Errorf("order: invalid side %q", o.Side)
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("order: quantity must be positive")
	}
	switch o.Type {
	case OrderTypeMarket:
	case OrderTypeLimit:
		if o.Price <= 0 {
			return fmt.Errorf("order: limit price must be positive")
		}
	default:
		return fmt.Errorf("order: invalid type %q", o.Type)
	}
	return nil
}

// OrderResult is the exchange outcome of PlaceOrder, passed through mostly as-is.
type OrderResult struct {
	Success   bool           `json:"success"`
	Status    string         `json:"status"`
	OrderID   string         `json:"order_id,omitempty"`
	FilledQty float64        `json:"filled_qty"`
	Message   string         `json:"message,omitempty"`
	Raw       map[string]any `json:"raw,omitempty"`
}

// Filled reports whether the exchange reported the order as filled.
func (r OrderResult) Filled() bool {
	return strings.EqualFold(r.Status, "filled")
}

// SymbolKey folds symbol spellings (BTC-USDT, btc/usdt, BTCUSDT) to one key.
func SymbolKey(symbol string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', '/', '_', ' ':
			return -1
		}
		if r >= 'a' && r <= 'z' {
			return r - 'a' + 'A'
		}
		return r
	}, symbol)
}

// FilterTickers keeps the tickers whose symbol matches one of symbols.
// An empty symbols list keeps everything.
func FilterTickers(tickers []Ticker, symbols []string) []Ticker {
	if len(symbols) == 0 {
		return tickers
	}
	want := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		want[SymbolKey(s)] = struct{}{}
	}
	out := make([]Ticker, 0, len(symbols))
	for _, t := range tickers {
		if _, ok := want[SymbolKey(t.Symbol)]; ok {
			out = append(out, t)
		}
	}
	return out
}
