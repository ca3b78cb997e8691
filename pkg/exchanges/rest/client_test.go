package rest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tradebot/pkg/exchanges/common"
)

func fixedClock() time.Time { return time.UnixMilli(fixedTS) }

func newTestClient(url string) *Client {
	return NewClient(Config{
		Exchange:    "test",
		BaseURL:     url,
		Credentials: testCreds,
		Scheme:      Scheme{Layout: LayoutTimestampParams, KeyHeader: "X-KEY", SignatureHeader: "X-SIGN", TimestampHeader: "X-TS"},
		Clock:       fixedClock,
	})
}

func TestClientDoSendsSignedRequest(t *testing.T) {
	var gotBody, gotSign, gotTS, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotSign = r.Header.Get("X-SIGN")
		gotTS = r.Header.Get("X-TS")
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	var out struct {
		OK bool `json:"ok"`
	}
	err := c.DoJSON(context.Background(), http.MethodPost, "/order", nil, map[string]string{"symbol": "BTCUSDT"}, &out)
	if err != nil {
		t.Fatalf("DoJSON: %v", err)
	}
	if !out.OK {
		t.Fatal("response not decoded")
	}
	if gotBody != `{"symbol":"BTCUSDT"}` {
		t.Fatalf("body = %q", gotBody)
	}
	if gotTS != "1700000000000" {
		t.Fatalf("timestamp = %q", gotTS)
	}
	if want := hmacHex("secret", `POST/order1700000000000{"symbol":"BTCUSDT"}`); gotSign != want {
		t.Fatalf("signature = %q, want %q", gotSign, want)
	}
	if gotQuery != "" {
		t.Fatalf("query = %q", gotQuery)
	}
}

func TestClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"msg":"insufficient balance"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Do(context.Background(), http.MethodGet, "/x", nil, nil)
	var reqErr *common.RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if reqErr.StatusCode != http.StatusBadRequest || !reqErr.Rejected() {
		t.Fatalf("status = %d rejected=%v", reqErr.StatusCode, reqErr.Rejected())
	}

	res, err := OrderOutcome(err)
	if err != nil {
		t.Fatalf("rejection should not be an error: %v", err)
	}
	if res.Success {
		t.Fatal("rejected order reported success")
	}
}

func TestClientTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url).Do(context.Background(), http.MethodGet, "/x", nil, nil)
	var reqErr *common.RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if reqErr.Rejected() {
		t.Fatal("transport failure reported as rejection")
	}
	if _, err := OrderOutcome(err); err == nil {
		t.Fatal("transport failure should stay an error")
	}
}

func TestDecodeOrderResult(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		id     string
		status string
		filled float64
	}{
		{"binance", `{"orderId":12345,"status":"FILLED","executedQty":"0.004"}`, "12345", "filled", 0.004},
		{"kucoin envelope", `{"code":"200000","data":{"orderId":"abc"}}`, "abc", "submitted", 0},
		{"not json", `ok`, "", "submitted", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := DecodeOrderResult([]byte(tt.raw))
			if !res.Success || res.OrderID != tt.id || res.Status != tt.status || res.FilledQty != tt.filled {
				t.Fatalf("got %+v", res)
			}
		})
	}
}

func TestFormatAmount(t *testing.T) {
	cases := map[float64]string{0.004: "0.004", 1: "1", 0.00012: "0.00012", 123.45: "123.45"}
	for in, want := range cases {
		if got := FormatAmount(in); got != want {
			t.Errorf("FormatAmount(%v) = %q, want %q", in, got, want)
		}
	}
}
