package rest

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"tradebot/pkg/exchanges/common"
)

// OrderOutcome turns a PlaceOrder request failure into its result. An
// exchange rejection becomes an unsuccessful result; anything else stays an error.
func OrderOutcome(err error) (common.OrderResult, error) {
	var reqErr *common.RequestError
	if errors.As(err, &reqErr) && reqErr.Rejected() {
		return common.OrderResult{
			Success: false,
			Status:  "rejected",
			Message: reqErr.Body,
		}, nil
	}
	return common.OrderResult{}, err
}

// FormatAmount renders an amount in its shortest exact decimal form.
func FormatAmount(v float64) string {
	return decimal.NewFromFloat(v).String()
}

// DecodeOrderResult reads the common fields of an order acknowledgement.
// Unknown shapes still count as submitted since the exchange accepted them.
func DecodeOrderResult(raw []byte) common.OrderResult {
	res := common.OrderResult{Success: true, Status: "submitted"}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return res
	}
	res.Raw = m
	data := m
	if inner, ok := m["data"].(map[string]any); ok {
		data = inner
	}
	res.OrderID = firstString(data, "orderId", "order_id", "id")
	if status := firstString(data, "status", "state"); status != "" {
		res.Status = strings.ToLower(status)
	}
	res.FilledQty = firstFloat(data, "executedQty", "filledQty", "filled_qty", "dealSize")
	return res
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func firstFloat(m map[string]any, keys ...string) float64 {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
		}
	}
	return 0
}
