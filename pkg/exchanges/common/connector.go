package common

import "context"

// Connector exposes uniform trading operations over one exchange's REST API.
type Connector interface {
	// Name returns the registry key of the exchange (lowercase).
	Name() string
	// TestConnection performs a minimal authenticated call. It never fails;
	// problems are reported through the message.
	TestConnection(ctx context.Context) (bool, string)
	// GetBalances returns account balances. Unparseable entries are skipped.
	GetBalances(ctx context.Context) ([]Balance, error)
	// GetTickers returns tickers for symbols, or every symbol when none are given.
	// Unknown symbols are dropped without error.
	GetTickers(ctx context.Context, symbols []string) ([]Ticker, error)
	// PlaceOrder submits an order. A transport failure is returned as an error;
	// an exchange rejection is returned as a result with Success=false.
	PlaceOrder(ctx context.Context, order Order) (OrderResult, error)
}
