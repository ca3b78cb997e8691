package rest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"tradebot/pkg/exchanges/common"
)

// Layout selects how the string to sign is assembled.
type Layout int

const (
	// LayoutTimestampParams signs METHOD + endpoint + timestamp + json(params) + json(body).
	LayoutTimestampParams Layout = iota
	// LayoutQueryTimestamp signs METHOD + endpoint + sorted k=v query + timestamp + json(body).
	LayoutQueryTimestamp
	// LayoutTimestampBody signs METHOD + endpoint + timestamp + json(body).
	LayoutTimestampBody
)

// Scheme describes one exchange's request signing. Everything that differs
// between exchanges at the HTTP level lives here.
type Scheme struct {
	Layout Layout

	KeyHeader        string
	SignatureHeader  string // empty when the signature travels in the query
	TimestampHeader  string // empty when the timestamp travels in the query
	PassphraseHeader string

	// SignPassphrase sends HMAC-SHA256(secret, passphrase) instead of the raw passphrase.
	SignPassphrase bool
	// SignatureInQuery appends signature and timestamp to the query string.
	SignatureInQuery bool

	StaticHeaders map[string]string
}

// Signed is the authentication material for one request.
type Signed struct {
	Header  http.Header
	Query   url.Values
	Payload string
}

// Signer applies a Scheme with one set of credentials.
type Signer struct {
	scheme Scheme
	creds  common.Credentials
}

// NewSigner binds a scheme to credentials.
func NewSigner(scheme Scheme, creds common.Credentials) Signer {
	return Signer{scheme: scheme, creds: creds}
}

// Sign produces headers and query params for a request made at ts (ms).
func (s Signer) Sign(method, endpoint string, params, body map[string]string, ts int64) (Signed, error) {
	timestamp := strconv.FormatInt(ts, 10)
	payload, err := s.payload(strings.ToUpper(method), endpoint, params, body, timestamp)
	if err != nil {
		return Signed{}, err
	}
	sig := hmacHex(s.creds.APISecret, payload)

	h := http.Header{}
	h.Set("Content-Type", "application/json")
	for k, v := range s.scheme.StaticHeaders {
		h.Set(k, v)
	}
	if s.scheme.KeyHeader != "" {
		h.Set(s.scheme.KeyHeader, s.creds.APIKey)
	}
	if s.scheme.SignatureHeader != "" {
		h.Set(s.scheme.SignatureHeader, sig)
	}
	if s.scheme.TimestampHeader != "" {
		h.Set(s.scheme.TimestampHeader, timestamp)
	}
	if s.scheme.PassphraseHeader != "" {
		pass := s.creds.Passphrase
		if s.scheme.SignPassphrase {
			pass = hmacHex(s.creds.APISecret, s.creds.Passphrase)
		}
		h.Set(s.scheme.PassphraseHeader, pass)
	}

	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	if s.scheme.SignatureInQuery {
		q.Set("signature", sig)
		q.Set("timestamp", timestamp)
	}
	return Signed{Header: h, Query: q, Payload: payload}, nil
}

func (s Signer) payload(method, endpoint string, params, body map[string]string, timestamp string) (string, error) {
	var b strings.Builder
	b.WriteString(method)
	b.WriteString(endpoint)
	switch s.scheme.Layout {
	case LayoutQueryTimestamp:
		b.WriteString(sortedQuery(params))
		b.WriteString(timestamp)
	case LayoutTimestampParams:
		b.WriteString(timestamp)
		if len(params) > 0 {
			js, err := compactJSON(params)
			if err != nil {
				return "", err
			}
			b.WriteString(js)
		}
	default:
		b.WriteString(timestamp)
	}
	if len(body) > 0 {
		js, err := compactJSON(body)
		if err != nil {
			return "", err
		}
		b.WriteString(js)
	}
	return b.String(), nil
}

// sortedQuery joins params as k=v pairs in key order, without escaping.
func sortedQuery(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + params[k]
	}
	return strings.Join(parts, "&")
}

// compactJSON encodes m with sorted keys and no insignificant whitespace.
// The same bytes are sent as the request body so the signature matches.
func compactJSON(m map[string]string) (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func hmacHex(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
