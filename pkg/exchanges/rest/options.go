package rest

import (
	"net/http"

	"tradebot/pkg/exchanges/common"
)

// Option customizes a connector's Client.
type Option func(*Config)

// WithBaseURL overrides the production/sandbox host selection.
func WithBaseURL(u string) Option {
	return func(c *Config) { c.BaseURL = u }
}

// WithHTTPClient replaces the default 10s-timeout client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Config) { c.HTTPClient = hc }
}

// WithClock replaces the clock used for request timestamps.
func WithClock(clock common.Clock) Option {
	return func(c *Config) { c.Clock = clock }
}

// WithRateLimiter replaces the connector's default request pacing.
func WithRateLimiter(rl *common.RateLimiter) Option {
	return func(c *Config) { c.RateLimiter = rl }
}

// Apply runs opts against cfg.
func (cfg *Config) Apply(opts []Option) {
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
}
