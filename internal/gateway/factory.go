package gateway

import (
	"sort"
	"strings"

	"tradebot/pkg/exchanges/binance"
	"tradebot/pkg/exchanges/btcc"
	"tradebot/pkg/exchanges/common"
	"tradebot/pkg/exchanges/kucoin"
	"tradebot/pkg/exchanges/rest"
)

// Constructor builds a connector for one exchange.
type Constructor func(creds common.Credentials, opts ...rest.Option) common.Connector

var registry = map[string]Constructor{
	btcc.Name: func(c common.Credentials, opts ...rest.Option) common.Connector {
		return btcc.New(c, opts...)
	},
	binance.Name: func(c common.Credentials, opts ...rest.Option) common.Connector {
		return binance.New(c, opts...)
	},
	kucoin.Name: func(c common.Credentials, opts ...rest.Option) common.Connector {
		return kucoin.New(c, opts...)
	},
}

// Factory creates a connector for an exchange name and credentials.
type Factory func(exchange string, creds common.Credentials) (common.Connector, error)

// Create resolves exchange case-insensitively against the registry.
func Create(exchange string, creds common.Credentials, opts ...rest.Option) (common.Connector, error) {
	name := NormalizeName(exchange)
	ctor, ok := registry[name]
	if !ok {
		return nil, &common.UnsupportedExchangeError{Name: exchange, Supported: SupportedExchanges()}
	}
	return ctor(creds, opts...), nil
}

// DefaultFactory is Create without options.
func DefaultFactory(exchange string, creds common.Credentials) (common.Connector, error) {
	return Create(exchange, creds)
}

// SupportedExchanges returns the registry keys in sorted order.
func SupportedExchanges() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsSupported reports whether exchange is in the registry.
func IsSupported(exchange string) bool {
	_, ok := registry[NormalizeName(exchange)]
	return ok
}

// NormalizeName folds an exchange name to its registry key form.
func NormalizeName(exchange string) string {
	return strings.ToLower(strings.TrimSpace(exchange))
}
