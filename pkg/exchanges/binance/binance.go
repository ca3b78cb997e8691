package binance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tradebot/pkg/exchanges/common"
	"tradebot/pkg/exchanges/rest"
)

const (
	Name = "binance"

	prodURL    = "https://api.binance.com"
	sandboxURL = "https://testnet.binance.vision"

	weightHeader = "X-MBX-USED-WEIGHT-1M"
)

var scheme = rest.Scheme{
	Layout:           rest.LayoutQueryTimestamp,
	KeyHeader:        "X-MBX-APIKEY",
	SignatureInQuery: true,
}

// Connector is the Binance spot connector.
type Connector struct {
	client *rest.Client
}

// New builds a Binance connector for creds.
func New(creds common.Credentials, opts ...rest.Option) *Connector {
	cfg := rest.Config{
		Exchange:     Name,
		BaseURL:      BaseURL(creds.Sandbox),
		Credentials:  creds,
		Scheme:       scheme,
		WeightHeader: weightHeader,
		// 1200 weight/min for spot
		RateLimiter: common.NewRateLimiter(Name, 10, 10, 1200, time.Minute),
	}
	cfg.Apply(opts)
	return &Connector{client: rest.NewClient(cfg)}
}

// BaseURL selects the production or testnet host.
func BaseURL(sandbox bool) string {
	if sandbox {
		return sandboxURL
	}
	return prodURL
}

func (c *Connector) Name() string { return Name }

func (c *Connector) TestConnection(ctx context.Context) (bool, string) {
	var resp map[string]any
	if err := c.client.DoJSON(ctx, http.MethodGet, "/api/v3/account", nil, nil, &resp); err != nil {
		return false, fmt.Sprintf("Connection failed: %v", err)
	}
	if _, ok := resp["makerCommission"]; !ok {
		return false, "Invalid response format"
	}
	return true, "Connection successful"
}

type accountResponse struct {
	Balances []struct {
		Asset  string        `json:"asset"`
		Free   common.Number `json:"free"`
		Locked common.Number `json:"locked"`
	} `json:"balances"`
}

// GetBalances returns the non-zero balances of the account.
func (c *Connector) GetBalances(ctx context.Context) ([]common.Balance, error) {
	var resp accountResponse
	if err := c.client.DoJSON(ctx, http.MethodGet, "/api/v3/account", nil, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]common.Balance, 0, len(resp.Balances))
	for _, row := range resp.Balances {
		b, ok := common.NewBalance(row.Asset, row.Free, row.Locked, common.Number{})
		if !ok || b.IsZero() {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

type ticker24h struct {
	Symbol             string        `json:"symbol"`
	LastPrice          common.Number `json:"lastPrice"`
	Volume             common.Number `json:"volume"`
	PriceChangePercent common.Number `json:"priceChangePercent"`
}

func (c *Connector) GetTickers(ctx context.Context, symbols []string) ([]common.Ticker, error) {
	var params map[string]string
	if len(symbols) > 0 {
		keys := make([]string, len(symbols))
		for i, s := range symbols {
			keys[i] = common.SymbolKey(s)
		}
		list, err := json.Marshal(keys)
		if err != nil {
			return nil, err
		}
		params = map[string]string{"symbols": string(list)}
	}
	raw, err := c.client.Do(ctx, http.MethodGet, "/api/v3/ticker/24hr", params, nil)
	if err != nil {
		return nil, err
	}

	var rows []ticker24h
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '{' {
		var one ticker24h
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, fmt.Errorf("binance: decode ticker: %w", err)
		}
		rows = append(rows, one)
	} else if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("binance: decode tickers: %w", err)
	}

	out := make([]common.Ticker, 0, len(rows))
	for _, row := range rows {
		if row.Symbol == "" || !row.LastPrice.Valid {
			continue
		}
		out = append(out, common.Ticker{
			Symbol:    row.Symbol,
			Price:     row.LastPrice.Value,
			Volume24h: row.Volume.Float(),
			Change24h: row.PriceChangePercent.Float(),
		})
	}
	return common.FilterTickers(out, symbols), nil
}

func (c *Connector) PlaceOrder(ctx context.Context, order common.Order) (common.OrderResult, error) {
	if err := order.Validate(); err != nil {
		return common.OrderResult{}, err
	}
	body := map[string]string{
		"symbol":   common.SymbolKey(order.Symbol),
		"side":     strings.ToUpper(string(order.Side)),
		"type":     strings.ToUpper(string(order.Type)),
		"quantity": rest.FormatAmount(order.Quantity),
	}
	if order.Type == common.OrderTypeLimit {
		body["price"] = rest.FormatAmount(order.Price)
		body["timeInForce"] = "GTC"
	}
	raw, err := c.client.Do(ctx, http.MethodPost, "/api/v3/order", nil, body)
	if err != nil {
		return rest.OrderOutcome(err)
	}
	return rest.DecodeOrderResult(raw), nil
}

// SyncTime aligns request timestamps with the exchange clock.
func (c *Connector) SyncTime(ctx context.Context) error {
	return c.client.TimeSync().Sync(ctx, c.serverTime)
}

func (c *Connector) serverTime(ctx context.Context) (int64, error) {
	var resp struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := c.client.Public(ctx, "/api/v3/time", nil, &resp); err != nil {
		return 0, err
	}
	return resp.ServerTime, nil
}

// LastPrice returns the public last traded price of symbol. No credentials
// are needed.
func (c *Connector) LastPrice(ctx context.Context, symbol string) (float64, error) {
	var resp struct {
		Symbol string        `json:"symbol"`
		Price  common.Number `json:"price"`
	}
	params := map[string]string{"symbol": common.SymbolKey(symbol)}
	if err := c.client.Public(ctx, "/api/v3/ticker/price", params, &resp); err != nil {
		return 0, err
	}
	if !resp.Price.Valid || resp.Price.Value <= 0 {
		return 0, fmt.Errorf("binance: no price for %s", symbol)
	}
	return resp.Price.Value, nil
}

var _ common.Connector = (*Connector)(nil)
