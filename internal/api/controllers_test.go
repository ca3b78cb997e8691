package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"tradebot/internal/engine"
	"tradebot/internal/events"
	"tradebot/internal/gateway"
	"tradebot/internal/monitor"
	"tradebot/internal/session"
	"tradebot/internal/state"
	"tradebot/internal/strategy"
	"tradebot/internal/userdata"
	"tradebot/pkg/db"
	"tradebot/pkg/exchanges/common"
)

type stubConnector struct{ name string }

func (s stubConnector) Name() string                                  { return s.name }
func (s stubConnector) TestConnection(context.Context) (bool, string) { return true, "ok" }
func (s stubConnector) GetBalances(context.Context) ([]common.Balance, error) {
	return []common.Balance{{Asset: "USDT", Free: 1000, Total: 1000}}, nil
}
func (s stubConnector) GetTickers(context.Context, []string) ([]common.Ticker, error) {
	return []common.Ticker{{Symbol: "BTCUSDT", Price: 50000}}, nil
}
func (s stubConnector) PlaceOrder(context.Context, common.Order) (common.OrderResult, error) {
	return common.OrderResult{Success: true}, nil
}

func stubFactory(exchange string, _ common.Credentials) (common.Connector, error) {
	if !gateway.IsSupported(exchange) {
		return gateway.Create(exchange, common.Credentials{})
	}
	return stubConnector{name: gateway.NormalizeName(exchange)}, nil
}

func newTestAPIServer(t *testing.T) (*httptest.Server, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("ApplyMigrations: %v", err)
	}

	bus := events.NewBus()
	metrics := monitor.NewSystemMetrics()
	st := state.NewManager(nil, strategy.DefaultConfig(), 10000)
	pool := gateway.NewManager(stubFactory, gateway.DefaultConfig())
	eng := engine.NewImpl(engine.Config{
		Store:   userdata.NewSQLStore(database, nil),
		Pool:    pool,
		Factory: stubFactory,
		State:   st,
		Session: session.Config{Interval: time.Hour, StopTimeout: time.Second},
		Bus:     bus,
		Metrics: metrics,
	})

	server := NewServer(Options{
		Engine:    eng,
		DB:        database,
		State:     st,
		Bus:       bus,
		Metrics:   metrics,
		JWTSecret: "test-secret",
		Meta:      SystemMeta{Version: "test", Symbols: []string{"BTCUSDT"}},
	})

	httpServer := httptest.NewServer(server.Router)

	cleanup := func() {
		httpServer.Close()
		eng.Shutdown()
		_ = database.Close()
	}
	return httpServer, cleanup
}

func doJSONRequest(t *testing.T, client *http.Client, method, url, token string, payload any, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&buf).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func registerAndLogin(t *testing.T, client *http.Client, baseURL string) string {
	t.Helper()
	var regResp struct {
		UserID string `json:"user_id"`
	}
	status := doJSONRequest(t, client, http.MethodPost, baseURL+"/api/auth/register", "", map[string]string{
		"email":    "tester@example.com",
		"password": "StrongPass123!",
	}, &regResp)
	if status != http.StatusCreated {
		t.Fatalf("register status=%d resp=%+v", status, regResp)
	}

	var loginResp struct {
		Token string `json:"token"`
	}
	status = doJSONRequest(t, client, http.MethodPost, baseURL+"/api/auth/login", "", map[string]string{
		"email":    "tester@example.com",
		"password": "StrongPass123!",
	}, &loginResp)
	if status != http.StatusOK || loginResp.Token == "" {
		t.Fatalf("login failed status=%d resp=%+v", status, loginResp)
	}
	return loginResp.Token
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func TestAuthFlow(t *testing.T) {
	ts, cleanup := newTestAPIServer(t)
	defer cleanup()
	client := ts.Client()

	registerAndLogin(t, client, ts.URL)

	var resp errorResponse
	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/auth/register", "", map[string]string{
		"email":    "Tester@example.com",
		"password": "AnotherPass1",
	}, &resp)
	if status != http.StatusConflict || resp.Code != "EMAIL_ALREADY_REGISTERED" {
		t.Fatalf("duplicate register status=%d resp=%+v", status, resp)
	}

	status = doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/auth/login", "", map[string]string{
		"email":    "tester@example.com",
		"password": "wrong-password",
	}, &resp)
	if status != http.StatusUnauthorized || resp.Code != "INVALID_CREDENTIALS" {
		t.Fatalf("bad login status=%d resp=%+v", status, resp)
	}

	status = doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/trading/status", "", nil, &resp)
	if status != http.StatusUnauthorized || resp.Code != "MISSING_TOKEN" {
		t.Fatalf("unauthenticated status=%d resp=%+v", status, resp)
	}
}

func TestExchangeConnectionRoutes(t *testing.T) {
	ts, cleanup := newTestAPIServer(t)
	defer cleanup()
	client := ts.Client()
	token := registerAndLogin(t, client, ts.URL)

	var supported struct {
		Exchanges []string `json:"exchanges"`
	}
	if status := doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/exchanges/supported", token, nil, &supported); status != http.StatusOK {
		t.Fatalf("supported status=%d", status)
	}
	if len(supported.Exchanges) != 3 || supported.Exchanges[0] != "binance" {
		t.Fatalf("supported = %v", supported.Exchanges)
	}

	var resp errorResponse
	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/exchanges", token, map[string]any{
		"exchange": "ftx", "api_key": "k", "api_secret": "s",
	}, &resp)
	if status != http.StatusBadRequest || resp.Code != "UNSUPPORTED_EXCHANGE" {
		t.Fatalf("unsupported status=%d resp=%+v", status, resp)
	}

	var info engine.ExchangeInfo
	status = doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/exchanges", token, map[string]any{
		"exchange": "BTCC", "api_key": "0123456789", "api_secret": "s",
	}, &info)
	if status != http.StatusCreated || info.Name != "btcc" || info.APIKey != "0123****6789" {
		t.Fatalf("connect status=%d info=%+v", status, info)
	}

	var balances []common.Balance
	if status := doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/exchanges/btcc/balances", token, nil, &balances); status != http.StatusOK || len(balances) != 1 {
		t.Fatalf("balances status=%d %+v", status, balances)
	}

	if status := doJSONRequest(t, client, http.MethodDelete, ts.URL+"/api/exchanges/btcc", token, nil, nil); status != http.StatusOK {
		t.Fatalf("disconnect status=%d", status)
	}
	status = doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/exchanges/btcc/tickers", token, nil, &resp)
	if status != http.StatusNotFound || resp.Code != "EXCHANGE_NOT_CONNECTED" {
		t.Fatalf("tickers after disconnect status=%d resp=%+v", status, resp)
	}
}

func TestTradingRoutes(t *testing.T) {
	ts, cleanup := newTestAPIServer(t)
	defer cleanup()
	client := ts.Client()
	token := registerAndLogin(t, client, ts.URL)

	var resp errorResponse
	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/trading/start", token, nil, &resp)
	if status != http.StatusBadRequest || resp.Code != "CONFIGURATION_ERROR" {
		t.Fatalf("start without exchanges status=%d resp=%+v", status, resp)
	}

	doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/exchanges", token, map[string]any{
		"exchange": "kucoin", "api_key": "k", "api_secret": "s", "passphrase": "p",
	}, nil)

	var started struct {
		Success bool `json:"success"`
	}
	if status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/trading/start", token, nil, &started); status != http.StatusOK || !started.Success {
		t.Fatalf("start status=%d", status)
	}
	status = doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/trading/start", token, nil, &resp)
	if status != http.StatusConflict || resp.Code != "ALREADY_RUNNING" {
		t.Fatalf("second start status=%d resp=%+v", status, resp)
	}

	var st engine.Status
	if status := doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/trading/status", token, nil, &st); status != http.StatusOK {
		t.Fatalf("status=%d", status)
	}
	if !st.Running || len(st.ConnectedExchanges) != 1 || st.ConnectedExchanges[0] != "kucoin" {
		t.Fatalf("status = %+v", st)
	}

	if status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/trading/stop", token, nil, nil); status != http.StatusOK {
		t.Fatalf("stop status=%d", status)
	}
	var history []session.TradeHistoryEntry
	if status := doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/trading/history?limit=10", token, nil, &history); status != http.StatusOK {
		t.Fatalf("history status=%d", status)
	}
}

func TestConfigRoutes(t *testing.T) {
	ts, cleanup := newTestAPIServer(t)
	defer cleanup()
	client := ts.Client()
	token := registerAndLogin(t, client, ts.URL)

	var cfg strategy.Config
	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/strategy-config", token, map[string]any{
		"active_strategy": "breakout",
	}, &cfg)
	if status != http.StatusOK || cfg.ActiveStrategy != "breakout" {
		t.Fatalf("update strategy status=%d cfg=%+v", status, cfg)
	}

	var resp errorResponse
	status = doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/strategy-config", token, map[string]any{
		"rsi_oversold": 80,
	}, &resp)
	if status != http.StatusBadRequest || resp.Code != "INVALID_PARAMETERS" {
		t.Fatalf("invalid strategy status=%d resp=%+v", status, resp)
	}

	var limits struct {
		MinQuoteBalance float64 `json:"min_quote_balance"`
	}
	status = doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/risk-config", token, map[string]any{
		"min_quote_balance": 50,
	}, &limits)
	if status != http.StatusOK || limits.MinQuoteBalance != 50 {
		t.Fatalf("update risk status=%d limits=%+v", status, limits)
	}
}

func TestMockRoutes(t *testing.T) {
	ts, cleanup := newTestAPIServer(t)
	defer cleanup()
	client := ts.Client()
	token := registerAndLogin(t, client, ts.URL)

	var res state.TradeResult
	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/mock/trade", token, map[string]any{
		"symbol": "BTCUSDT", "side": "buy", "qty": 2, "price": 100,
	}, &res)
	if status != http.StatusOK || res.Position.Qty != 2 || res.Cash != 9800 {
		t.Fatalf("mock trade status=%d res=%+v", status, res)
	}

	var resp errorResponse
	status = doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/mock/trade", token, map[string]any{
		"symbol": "BTCUSDT", "side": "hold", "qty": 1, "price": 100,
	}, &resp)
	if status != http.StatusBadRequest || resp.Code != "INVALID_TRADE" {
		t.Fatalf("invalid mock trade status=%d resp=%+v", status, resp)
	}

	var perf state.Performance
	if status := doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/performance", token, nil, &perf); status != http.StatusOK || perf.TradeCount != 1 {
		t.Fatalf("performance status=%d perf=%+v", status, perf)
	}

	status = doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/mock/schedule", token, map[string]any{"schedule": "weekends"}, &resp)
	if status != http.StatusBadRequest || resp.Code != "INVALID_SCHEDULE" {
		t.Fatalf("schedule status=%d resp=%+v", status, resp)
	}
}
