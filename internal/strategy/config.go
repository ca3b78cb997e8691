package strategy

import (
	"encoding/json"
	"fmt"
)

// Config holds the parameters of every strategy kind plus the active one.
type Config struct {
	ActiveStrategy     string  `json:"active_strategy" yaml:"active_strategy"`
	RSIOversold        float64 `json:"rsi_oversold" yaml:"rsi_oversold"`
	RSIOverbought      float64 `json:"rsi_overbought" yaml:"rsi_overbought"`
	RSITimeframe       string  `json:"rsi_timeframe" yaml:"rsi_timeframe"`
	MomentumLookback   int     `json:"momentum_lookback" yaml:"momentum_lookback"`
	MomentumThreshold  float64 `json:"momentum_threshold" yaml:"momentum_threshold"`
	BreakoutPeriod     int     `json:"breakout_period" yaml:"breakout_period"`
	BreakoutMultiplier float64 `json:"breakout_multiplier" yaml:"breakout_multiplier"`
}

// DefaultConfig returns the built-in parameters.
func DefaultConfig() Config {
	return Config{
		ActiveStrategy:     string(KindRSI),
		RSIOversold:        30,
		RSIOverbought:      70,
		RSITimeframe:       "5min",
		MomentumLookback:   14,
		MomentumThreshold:  0.5,
		BreakoutPeriod:     20,
		BreakoutMultiplier: 2.0,
	}
}

// Kind returns the active strategy kind.
func (c Config) Kind() Kind { return ParseKind(c.ActiveStrategy) }

// Validate checks parameter ranges.
func (c Config) Validate() error {
	if c.RSIOversold < 0 || c.RSIOverbought > 100 || c.RSIOversold >= c.RSIOverbought {
		return fmt.Errorf("rsi thresholds must satisfy 0 <= oversold < overbought <= 100 (got %v/%v)",
			c.RSIOversold, c.RSIOverbought)
	}
	if c.MomentumLookback <= 0 {
		return fmt.Errorf("momentum_lookback must be positive")
	}
	if c.MomentumThreshold < 0 {
		return fmt.Errorf("momentum_threshold must not be negative")
	}
	if c.BreakoutPeriod <= 0 {
		return fmt.Errorf("breakout_period must be positive")
	}
	if c.BreakoutMultiplier < 0 {
		return fmt.Errorf("breakout_multiplier must not be negative")
	}
	return nil
}

// Apply returns c with the keys in patch overwritten. Keys are the JSON
// field names; unknown keys are ignored.
func (c Config) Apply(patch map[string]any) (Config, error) {
	if len(patch) == 0 {
		return c, nil
	}
	base, err := json.Marshal(c)
	if err != nil {
		return c, err
	}
	merged := map[string]any{}
	if err := json.Unmarshal(base, &merged); err != nil {
		return c, err
	}
	for k, v := range patch {
		if _, known := merged[k]; known {
			merged[k] = v
		}
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return c, err
	}
	var out Config
	if err := json.Unmarshal(raw, &out); err != nil {
		return c, fmt.Errorf("invalid strategy config: %w", err)
	}
	if err := out.Validate(); err != nil {
		return c, err
	}
	return out, nil
}
