package btcc

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tradebot/pkg/exchanges/common"
	"tradebot/pkg/exchanges/rest"
)

const (
	Name = "btcc"

	prodURL    = "https://api.btcc.com"
	sandboxURL = "https://api-testnet.btcc.com"
)

var scheme = rest.Scheme{
	Layout:          rest.LayoutTimestampParams,
	KeyHeader:       "X-BTCC-APIKEY",
	SignatureHeader: "X-BTCC-SIGNATURE",
	TimestampHeader: "X-BTCC-TIMESTAMP",
}

// Connector is the BTCC spot connector.
type Connector struct {
	client *rest.Client
}

// New builds a BTCC connector for creds.
func New(creds common.Credentials, opts ...rest.Option) *Connector {
	cfg := rest.Config{
		Exchange:    Name,
		BaseURL:     BaseURL(creds.Sandbox),
		Credentials: creds,
		Scheme:      scheme,
		RateLimiter: common.NewRateLimiter(Name, 10, 5, 0, time.Minute),
	}
	cfg.Apply(opts)
	return &Connector{client: rest.NewClient(cfg)}
}

// BaseURL selects the production or sandbox host.
func BaseURL(sandbox bool) string {
	if sandbox {
		return sandboxURL
	}
	return prodURL
}

func (c *Connector) Name() string { return Name }

func (c *Connector) TestConnection(ctx context.Context) (bool, string) {
	var resp map[string]any
	if err := c.client.DoJSON(ctx, http.MethodGet, "/api/v1/account", nil, nil, &resp); err != nil {
		return false, fmt.Sprintf("Connection failed: %v", err)
	}
	if _, ok := resp["accountId"]; !ok {
		return false, "Invalid response format"
	}
	return true, "Connection successful"
}

type balancesResponse struct {
	Balances []struct {
		Currency  string        `json:"currency"`
		Available common.Number `json:"available"`
		Locked    common.Number `json:"locked"`
		Total     common.Number `json:"total"`
	} `json:"balances"`
}

func (c *Connector) GetBalances(ctx context.Context) ([]common.Balance, error) {
	var resp balancesResponse
	if err := c.client.DoJSON(ctx, http.MethodGet, "/api/v1/account/balances", nil, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]common.Balance, 0, len(resp.Balances))
	for _, row := range resp.Balances {
		if b, ok := common.NewBalance(row.Currency, row.Available, row.Locked, row.Total); ok {
			out = append(out, b)
		}
	}
	return out, nil
}

type tickersResponse struct {
	Tickers []struct {
		Symbol string        `json:"symbol"`
		Price  common.Number `json:"price"`
		Volume common.Number `json:"volume"`
		Change common.Number `json:"change"`
	} `json:"tickers"`
}

func (c *Connector) GetTickers(ctx context.Context, symbols []string) ([]common.Ticker, error) {
	var params map[string]string
	if len(symbols) > 0 {
		params = map[string]string{"symbols": strings.Join(symbols, ",")}
	}
	var resp tickersResponse
	if err := c.client.DoJSON(ctx, http.MethodGet, "/api/v1/market/tickers", params, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]common.Ticker, 0, len(resp.Tickers))
	for _, row := range resp.Tickers {
		if row.Symbol == "" || !row.Price.Valid {
			continue
		}
		out = append(out, common.Ticker{
			Symbol:    row.Symbol,
			Price:     row.Price.Value,
			Volume24h: row.Volume.Float(),
			Change24h: row.Change.Float(),
		})
	}
	return common.FilterTickers(out, symbols), nil
}

func (c *Connector) PlaceOrder(ctx context.Context, order common.Order) (common.OrderResult, error) {
	if err := order.Validate(); err != nil {
		return common.OrderResult{}, err
	}
	body := map[string]string{
		"symbol":   order.Symbol,
		"side":     strings.ToUpper(string(order.Side)),
		"type":     strings.ToUpper(string(order.Type)),
		"quantity": rest.FormatAmount(order.Quantity),
	}
	if order.Type == common.OrderTypeLimit {
		body["price"] = rest.FormatAmount(order.Price)
	}
	raw, err := c.client.Do(ctx, http.MethodPost, "/api/v1/order", nil, body)
	if err != nil {
		return rest.OrderOutcome(err)
	}
	res := rest.DecodeOrderResult(raw)
	if msg, ok := res.Raw["error"].(string); ok && msg != "" {
		res.Success, res.Status, res.Message = false, "rejected", msg
	}
	return res, nil
}

var _ common.Connector = (*Connector)(nil)
