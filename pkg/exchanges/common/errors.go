package common

import (
	"fmt"
	"strings"
)

// RequestError wraps a transport or HTTP status failure of an exchange call.
type RequestError struct {
	Exchange   string
	Method     string
	Endpoint   string
	StatusCode int // 0 when no response was received
	Body       string
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s %s status %d: %s", e.Exchange, e.Method, e.Endpoint, e.StatusCode, truncate(e.Body, 256))
	}
	return fmt.Sprintf("%s %s %s: %v", e.Exchange, e.Method, e.Endpoint, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Rejected reports whether the exchange answered with a non-2xx status,
// as opposed to the request never completing.
func (e *RequestError) Rejected() bool {
	return e.StatusCode != 0
}

// UnsupportedExchangeError is returned for exchange names outside the registry.
type UnsupportedExchangeError struct {
	Name      string
	Supported []string
}

func (e *UnsupportedExchangeError) Error() string {
	return fmt.Sprintf("unsupported exchange %q (supported: %s)", e.Name, strings.Join(e.Supported, ", "))
}

// ConfigurationError reports missing credentials or exchange connections.
type ConfigurationError struct {
	User   string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := e.Reason
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.User != "" {
		return fmt.Sprintf("configuration error for %s: %s", e.User, msg)
	}
	return "configuration error: " + msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
