package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tradebot/internal/gateway"
	"tradebot/pkg/exchanges/common"
)

// trading_api_check/main.go
//
// Quick check that a connector can talk to its exchange with real keys.
//
// Usage:
//
//   CHECK_EXCHANGE=kucoin CHECK_API_KEY=... CHECK_API_SECRET=... CHECK_PASSPHRASE=... \
//     go run ./scripts/trading_api_check
//
// Environment:
//   CHECK_EXCHANGE              binance | btcc | kucoin (default "binance")
//   CHECK_SANDBOX               use the exchange sandbox (default "true")
//   CHECK_SYMBOL                symbol for ticker and order checks (default "BTCUSDT")
//   TRADING_CHECK_PLACE_ORDERS  send a market buy of CHECK_QTY (default "false")
//   CHECK_QTY                   order quantity (default "0.0001")
//
// An order check can fill when the account holds enough balance. Leave
// TRADING_CHECK_PLACE_ORDERS=false until the read-only checks pass.

func main() {
	log.Println("=== Trading API check starting ===")
	_ = godotenv.Load()

	name := getenv("CHECK_EXCHANGE", "binance")
	symbol := strings.ToUpper(getenv("CHECK_SYMBOL", "BTCUSDT"))
	placeOrders := getenv("TRADING_CHECK_PLACE_ORDERS", "false") == "true"
	qty, err := strconv.ParseFloat(getenv("CHECK_QTY", "0.0001"), 64)
	if err != nil {
		log.Fatalf("invalid CHECK_QTY: %v", err)
	}

	creds := common.Credentials{
		APIKey:     os.Getenv("CHECK_API_KEY"),
		APISecret:  os.Getenv("CHECK_API_SECRET"),
		Passphrase: os.Getenv("CHECK_PASSPHRASE"),
		Sandbox:    getenv("CHECK_SANDBOX", "true") == "true",
	}
	if err := creds.Validate(); err != nil {
		log.Fatalf("credentials: %v", err)
	}

	conn, err := gateway.Create(name, creds)
	if err != nil {
		log.Fatalf("connector: %v", err)
	}
	log.Printf("Config: exchange=%s sandbox=%v symbol=%s placeOrders=%v", conn.Name(), creds.Sandbox, symbol, placeOrders)

	checkConnector(conn, symbol, qty, placeOrders)
	log.Println("=== Trading API check finished ===")
}

func checkConnector(c common.Connector, symbol string, qty float64, placeOrders bool) {
	tag := "[" + strings.ToUpper(c.Name()) + "]"

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ok, msg := c.TestConnection(ctx)
	log.Printf("%s TestConnection ok=%v message=%s", tag, ok, msg)
	if !ok {
		return
	}

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	balances, err := c.GetBalances(ctx2)
	if err != nil {
		log.Printf("%s GetBalances error: %v", tag, err)
	} else {
		log.Printf("%s Non-zero balances=%d", tag, len(balances))
		for _, b := range balances {
			log.Printf("%s   %s free=%f total=%f", tag, b.Asset, b.Free, b.Total)
		}
	}

	ctx3, cancel3 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel3()
	tickers, err := c.GetTickers(ctx3, []string{symbol})
	if err != nil {
		log.Printf("%s GetTickers error: %v", tag, err)
	} else {
		for _, t := range tickers {
			log.Printf("%s Ticker %s price=%f", tag, t.Symbol, t.Price)
		}
	}

	if !placeOrders {
		log.Printf("%s Skip placing orders (TRADING_CHECK_PLACE_ORDERS=false)", tag)
		return
	}

	ctx4, cancel4 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel4()
	order := common.Order{Symbol: symbol, Side: common.SideBuy, Type: common.OrderTypeMarket, Quantity: qty}
	log.Printf("%s Submitting test MARKET BUY order %s qty=%f", tag, symbol, qty)
	res, err := c.PlaceOrder(ctx4, order)
	if err != nil {
		log.Printf("%s PlaceOrder error: %v", tag, err)
		return
	}
	if !res.Success {
		log.Printf("%s PlaceOrder rejected (acceptable for test, e.g. insufficient balance): %s", tag, res.Message)
		return
	}
	log.Printf("%s PlaceOrder OK id=%s status=%s filled=%f", tag, res.OrderID, res.Status, res.FilledQty)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
