package btcc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradebot/pkg/exchanges/common"
	"tradebot/pkg/exchanges/rest"
)

func newTestConnector(t *testing.T, h http.HandlerFunc) *Connector {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	creds := common.Credentials{APIKey: "k", APISecret: "s"}
	return New(creds,
		rest.WithBaseURL(srv.URL),
		rest.WithClock(func() time.Time { return time.UnixMilli(1700000000000) }),
	)
}

func TestBaseURL(t *testing.T) {
	assert.Equal(t, "https://api.btcc.com", BaseURL(false))
	assert.Equal(t, "https://api-testnet.btcc.com", BaseURL(true))
}

func TestGetBalancesNormalizes(t *testing.T) {
	c := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/account/balances", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("X-BTCC-APIKEY"))
		assert.NotEmpty(t, r.Header.Get("X-BTCC-SIGNATURE"))
		assert.Equal(t, "1700000000000", r.Header.Get("X-BTCC-TIMESTAMP"))
		io.WriteString(w, `{"balances":[
			{"currency":"USDT","available":"900.5","locked":"99.5","total":"1000"},
			{"currency":"BTC","available":"0.5","total":"0.75"},
			{"currency":"ETH","available":"abc","locked":"1"},
			{"currency":"SOL","available":2,"locked":1,"total":99}
		]}`)
	})

	balances, err := c.GetBalances(context.Background())
	require.NoError(t, err)
	require.Len(t, balances, 3)

	for _, b := range balances {
		assert.True(t, b.Consistent(), "total != free+used for %s", b.Asset)
	}
	assert.Equal(t, "BTC", balances[1].Asset)
	assert.InDelta(t, 0.25, balances[1].Used, 1e-9)
	assert.InDelta(t, 3.0, balances[2].Total, 1e-9)
}

func TestGetTickersFiltersUnknownSymbols(t *testing.T) {
	c := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTCUSDT,DOGEUSDT", r.URL.Query().Get("symbols"))
		io.WriteString(w, `{"tickers":[
			{"symbol":"BTCUSDT","price":"50000","volume":"10","change":"1.5"},
			{"symbol":"ETHUSDT","price":"3000","volume":"20","change":"-0.5"}
		]}`)
	})

	tickers, err := c.GetTickers(context.Background(), []string{"BTCUSDT", "DOGEUSDT"})
	require.NoError(t, err)
	require.Len(t, tickers, 1)
	assert.Equal(t, common.Ticker{Symbol: "BTCUSDT", Price: 50000, Volume24h: 10, Change24h: 1.5}, tickers[0])
}

func TestPlaceOrderBody(t *testing.T) {
	c := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{
			"symbol": "BTCUSDT", "side": "BUY", "type": "LIMIT", "quantity": "0.004", "price": "50000",
		}, body)
		io.WriteString(w, `{"orderId":"o-1","status":"filled","filledQty":"0.004"}`)
	})

	res, err := c.PlaceOrder(context.Background(), common.Order{
		Symbol: "BTCUSDT", Side: common.SideBuy, Quantity: 0.004, Price: 50000, Type: common.OrderTypeLimit,
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Filled())
	assert.Equal(t, "o-1", res.OrderID)
}

func TestPlaceOrderRejected(t *testing.T) {
	c := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"insufficient balance"}`)
	})

	res, err := c.PlaceOrder(context.Background(), common.Order{
		Symbol: "BTCUSDT", Side: common.SideBuy, Quantity: 1, Type: common.OrderTypeMarket,
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "insufficient")
}

func TestTestConnection(t *testing.T) {
	ok := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"accountId":"42"}`)
	})
	passed, msg := ok.TestConnection(context.Background())
	assert.True(t, passed)
	assert.Equal(t, "Connection successful", msg)

	bad := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	passed, msg = bad.TestConnection(context.Background())
	assert.False(t, passed)
	assert.Contains(t, msg, "Connection failed")
}
