package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tradebot/pkg/exchanges/common"
)

// DefaultTimeout bounds every exchange request. There are no retries.
const DefaultTimeout = 10 * time.Second

// Config configures a Client.
type Config struct {
	Exchange    string
	BaseURL     string
	Credentials common.Credentials
	Scheme      Scheme
	// WeightHeader names the response header carrying used request weight.
	WeightHeader string

	HTTPClient  *http.Client
	Clock       common.Clock
	RateLimiter *common.RateLimiter
}

// Client is the authenticated request primitive shared by all connectors.
type Client struct {
	exchange     string
	baseURL      string
	signer       Signer
	weightHeader string
	httpClient   *http.Client
	timeSync     *common.TimeSync
	rateLimiter  *common.RateLimiter
}

// NewClient builds a Client from cfg.
func NewClient(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		exchange:     cfg.Exchange,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		signer:       NewSigner(cfg.Scheme, cfg.Credentials),
		weightHeader: cfg.WeightHeader,
		httpClient:   hc,
		timeSync:     common.NewTimeSync(cfg.Clock),
		rateLimiter:  cfg.RateLimiter,
	}
}

// BaseURL returns the host the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// TimeSync exposes the request clock.
func (c *Client) TimeSync() *common.TimeSync { return c.timeSync }

// Do sends a signed request and returns the raw response body. Transport
// failures and non-2xx statuses are returned as *common.RequestError.
func (c *Client) Do(ctx context.Context, method, endpoint string, params, body map[string]string) ([]byte, error) {
	signed, err := c.signer.Sign(method, endpoint, params, body, c.timeSync.NowMillis())
	if err != nil {
		return nil, c.requestError(method, endpoint, 0, "", fmt.Errorf("sign: %w", err))
	}
	return c.send(ctx, method, endpoint, signed, body)
}

// DoJSON is Do followed by decoding into out.
func (c *Client) DoJSON(ctx context.Context, method, endpoint string, params, body map[string]string, out any) error {
	raw, err := c.Do(ctx, method, endpoint, params, body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return c.requestError(method, endpoint, 0, string(raw), fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// Public sends an unsigned GET, used for server time and public prices.
func (c *Client) Public(ctx context.Context, endpoint string, params map[string]string, out any) error {
	signed := Signed{Header: http.Header{}}
	if len(params) > 0 {
		signed.Query = url.Values{}
		for k, v := range params {
			signed.Query.Set(k, v)
		}
	}
	raw, err := c.send(ctx, http.MethodGet, endpoint, signed, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return c.requestError(http.MethodGet, endpoint, 0, string(raw), fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, signed Signed, body map[string]string) ([]byte, error) {
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, c.requestError(method, endpoint, 0, "", err)
		}
	}

	target := c.baseURL + endpoint
	if len(signed.Query) > 0 {
		target += "?" + signed.Query.Encode()
	}
	var reader io.Reader
	if method != http.MethodGet && len(body) > 0 {
		js, err := compactJSON(body)
		if err != nil {
			return nil, c.requestError(method, endpoint, 0, "", err)
		}
		reader = bytes.NewBufferString(js)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, c.requestError(method, endpoint, 0, "", err)
	}
	for k, vs := range signed.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.requestError(method, endpoint, 0, "", err)
	}
	defer res.Body.Close()

	if c.rateLimiter != nil && c.weightHeader != "" {
		c.rateLimiter.UpdateFromHeader(res.Header.Get(c.weightHeader))
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, c.requestError(method, endpoint, 0, "", fmt.Errorf("read body: %w", err))
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, c.requestError(method, endpoint, res.StatusCode, string(raw),
			fmt.Errorf("unexpected status %d", res.StatusCode))
	}
	return raw, nil
}

func (c *Client) requestError(method, endpoint string, status int, body string, err error) *common.RequestError {
	return &common.RequestError{
		Exchange:   c.exchange,
		Method:     method,
		Endpoint:   endpoint,
		StatusCode: status,
		Body:       body,
		Err:        err,
	}
}
