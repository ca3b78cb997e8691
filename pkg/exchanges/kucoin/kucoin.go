package kucoin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"tradebot/pkg/exchanges/common"
	"tradebot/pkg/exchanges/rest"
)

const (
	Name = "kucoin"

	prodURL    = "https://api.kucoin.com"
	sandboxURL = "https://sandbox-api.kucoin.com"

	codeOK = "200000"
)

var scheme = rest.Scheme{
	Layout:           rest.LayoutTimestampBody,
	KeyHeader:        "KC-API-KEY",
	SignatureHeader:  "KC-API-SIGN",
	TimestampHeader:  "KC-API-TIMESTAMP",
	PassphraseHeader: "KC-API-PASSPHRASE",
	SignPassphrase:   true,
	StaticHeaders:    map[string]string{"KC-API-KEY-VERSION": "2"},
}

// Connector is the KuCoin spot connector.
type Connector struct {
	client *rest.Client
}

// New builds a KuCoin connector for creds. KuCoin keys carry a passphrase.
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

// envelope is the wrapper around every KuCoin REST response.
type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (c *Connector) Name() string { return Name }

func (c *Connector) TestConnection(ctx context.Context) (bool, string) {
	var resp envelope
	if err := c.client.DoJSON(ctx, http.MethodGet, "/api/v1/accounts", nil, nil, &resp); err != nil {
		return false, fmt.Sprintf("Connection failed: %v", err)
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return false, "Invalid response format"
	}
	return true, "Connection successful"
}

type account struct {
	Currency  string        `json:"currency"`
	Available common.Number `json:"available"`
	Holds     common.Number `json:"holds"`
	Balance   common.Number `json:"balance"`
}

func (c *Connector) GetBalances(ctx context.Context) ([]common.Balance, error) {
	var resp envelope
	if err := c.client.DoJSON(ctx, http.MethodGet, "/api/v1/accounts", nil, nil, &resp); err != nil {
		return nil, err
	}
	var rows []account
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &rows); err != nil {
			return nil, fmt.Errorf("kucoin: decode accounts: %w", err)
		}
	}
	out := make([]common.Balance, 0, len(rows))
	for _, row := range rows {
		if b, ok := common.NewBalance(row.Currency, row.Available, row.Holds, row.Balance); ok {
			out = append(out, b)
		}
	}
	return out, nil
}

type allTickers struct {
	Ticker []struct {
		Symbol     string        `json:"symbol"`
		Last       common.Number `json:"last"`
		Price      common.Number `json:"price"`
		Vol        common.Number `json:"vol"`
		ChangeRate common.Number `json:"changeRate"`
	} `json:"ticker"`
}

// GetTickers reads the full ticker table and keeps the requested symbols.
// KuCoin spells pairs BTC-USDT; BTCUSDT style symbols match as well.
func (c *Connector) GetTickers(ctx context.Context, symbols []string) ([]common.Ticker, error) {
	var resp envelope
	if err := c.client.DoJSON(ctx, http.MethodGet, "/api/v1/market/allTickers", nil, nil, &resp); err != nil {
		return nil, err
	}
	var data allTickers
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			return nil, fmt.Errorf("kucoin: decode tickers: %w", err)
		}
	}
	out := make([]common.Ticker, 0, len(data.Ticker))
	for _, row := range data.Ticker {
		price := row.Last
		if !price.Valid {
			price = row.Price
		}
		if row.Symbol == "" || !price.Valid {
			continue
		}
		out = append(out, common.Ticker{
			Symbol:    row.Symbol,
			Price:     price.Value,
			Volume24h: row.Vol.Float(),
			Change24h: row.ChangeRate.Float(),
		})
	}
	return common.FilterTickers(out, symbols), nil
}

func (c *Connector) PlaceOrder(ctx context.Context, order common.Order) (common.OrderResult, error) {
	if err := order.Validate(); err != nil {
		return common.OrderResult{}, err
	}
	body := map[string]string{
		"clientOid": "bot_" + uuid.NewString(),
		"symbol":    order.Symbol,
		"side":      strings.ToLower(string(order.Side)),
		"type":      strings.ToLower(string(order.Type)),
		"size":      rest.FormatAmount(order.Quantity),
	}
	if order.Type == common.OrderTypeLimit {
		body["price"] = rest.FormatAmount(order.Price)
	}
	raw, err := c.client.Do(ctx, http.MethodPost, "/api/v1/orders", nil, body)
	if err != nil {
		return rest.OrderOutcome(err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Code != "" && env.Code != codeOK {
		return common.OrderResult{Success: false, Status: "rejected", Message: env.Msg}, nil
	}
	return rest.DecodeOrderResult(raw), nil
}

var _ common.Connector = (*Connector)(nil)
