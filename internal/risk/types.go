package risk

import (
	"encoding/json"
	"fmt"
	"time"
)

// Limits are the risk parameters applied to one session.
type Limits struct {
	MaxDailyLossPct      float64 `json:"max_daily_loss_pct"`
	MaxPositionSizePct   float64 `json:"max_position_size_pct"` // fraction of free quote per order
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	StopLossPct          float64 `json:"stop_loss_pct"`
	TakeProfitPct        float64 `json:"take_profit_pct"`
	MinQuoteBalance      float64 `json:"min_quote_balance"`
	RiskPerTrade         float64 `json:"risk_per_trade"`
	DefaultQuote         string  `json:"default_quote"`
}

// DefaultLimits returns the process-wide defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxDailyLossPct:      5.0,
		MaxPositionSizePct:   0.1,
		MaxConsecutiveLosses: 3,
		StopLossPct:          2.0,
		TakeProfitPct:        5.0,
		MinQuoteBalance:      100,
		RiskPerTrade:         0.02,
		DefaultQuote:         "USDT",
	}
}

// Validate checks parameter ranges.
func (l Limits) Validate() error {
	switch {
	case l.MaxDailyLossPct < 0:
		return fmt.Errorf("max_daily_loss_pct must not be negative")
	case l.MaxConsecutiveLosses < 0:
		return fmt.Errorf("max_consecutive_losses must not be negative")
	case l.MinQuoteBalance < 0:
		return fmt.Errorf("min_quote_balance must not be negative")
	case l.RiskPerTrade < 0 || l.RiskPerTrade > 1:
		return fmt.Errorf("risk_per_trade must be within [0, 1]")
	case l.MaxPositionSizePct < 0 || l.MaxPositionSizePct > 1:
		return fmt.Errorf("max_position_size_pct must be within [0, 1]")
	case l.StopLossPct < 0 || l.TakeProfitPct < 0:
		return fmt.Errorf("stop loss and take profit must not be negative")
	}
	return nil
}

// Merge returns l with the keys of patch applied. Keys are the JSON field
// names; unknown keys are ignored.
func (l Limits) Merge(patch map[string]any) (Limits, error) {
	if len(patch) == 0 {
		return l, nil
	}
	base, err := json.Marshal(l)
	if err != nil {
		return l, err
	}
	merged := map[string]any{}
	if err := json.Unmarshal(base, &merged); err != nil {
		return l, err
	}
	for k, v := range patch {
		if _, ok := merged[k]; ok {
			merged[k] = v
		}
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return l, err
	}
	var out Limits
	if err := json.Unmarshal(raw, &out); err != nil {
		return l, fmt.Errorf("invalid risk limits: %w", err)
	}
	if err := out.Validate(); err != nil {
		return l, err
	}
	return out, nil
}

// SessionStats are the externally maintained counters the gate reads.
type SessionStats struct {
	DailyPnL          float64 `json:"daily_pnl"`
	ConsecutiveLosses int     `json:"consecutive_losses"`
	Day               string  `json:"day,omitempty"` // YYYY-MM-DD the daily figure belongs to
}

// AsOf returns the stats as they stand on now's day. A daily figure booked
// on an earlier day no longer counts; an unset Day is taken as current.
func (s SessionStats) AsOf(now time.Time) SessionStats {
	today := now.UTC().Format("2006-01-02")
	if s.Day != "" && s.Day != today {
		s.DailyPnL = 0
		s.Day = today
	}
	return s
}

// Record folds one realized trade result into the stats. A new day resets
// the daily figure; a loss extends the losing streak and a win ends it.
func (s SessionStats) Record(pnl float64, now time.Time) SessionStats {
	today := now.UTC().Format("2006-01-02")
	if s.Day != today {
		s.DailyPnL = 0
		s.Day = today
	}
	s.DailyPnL += pnl
	switch {
	case pnl < 0:
		s.ConsecutiveLosses++
	case pnl > 0:
		s.ConsecutiveLosses = 0
	}
	return s
}

// Decision is the outcome of a gate evaluation.
type Decision struct {
	Allowed    bool    `json:"allowed"`
	Reason     string  `json:"reason"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
}
