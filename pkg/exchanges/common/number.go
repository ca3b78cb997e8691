package common

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Number decodes the amounts exchanges send as JSON numbers or numeric strings.
// Set is true when a non-empty value was present; Valid when it parsed.
type Number struct {
	Value float64
	Set   bool
	Valid bool
}

// Num builds a valid Number.
func Num(v float64) Number {
	return Number{Value: v, Set: true, Valid: true}
}

func (n *Number) UnmarshalJSON(data []byte) error {
	*n = Number{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			n.Set = true
			return nil
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return nil
		}
	}
	n.Set = true
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	n.Value, n.Valid = v, true
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// Bad reports a value that was present but not numeric.
func (n Number) Bad() bool {
	return n.Set && !n.Valid
}

// Float returns the value, or zero when missing or invalid.
func (n Number) Float() float64 {
	if !n.Valid {
		return 0
	}
	return n.Value
}
