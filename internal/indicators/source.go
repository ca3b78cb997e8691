package indicators

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Values are the indicator readings handed to a strategy.
type Values struct {
	RSI      float64 `json:"rsi"`
	Momentum float64 `json:"momentum"`
}

// Source turns a price history into indicator values.
type Source interface {
	Name() string
	Compute(price float64, history []float64) Values
}

// Mode names a Source.
type Mode string

const (
	ModeComputed    Mode = "computed"
	ModePlaceholder Mode = "placeholder"
)

// NewSource builds the source for mode.
func NewSource(mode Mode) (Source, error) {
	switch Mode(strings.ToLower(string(mode))) {
	case ModeComputed, "":
		return NewComputed(14, 14), nil
	case ModePlaceholder:
		return NewPlaceholder(time.Now().UnixNano()), nil
	default:
		return nil, fmt.Errorf("unknown indicator mode %q", mode)
	}
}

// Computed derives RSI and momentum from the price history. With too little
// history RSI reads a neutral 50 and momentum 0.
type Computed struct {
	RSIPeriod        int
	MomentumLookback int
}

// NewComputed creates a Computed source.
func NewComputed(rsiPeriod, momentumLookback int) *Computed {
	return &Computed{RSIPeriod: rsiPeriod, MomentumLookback: momentumLookback}
}

func (c *Computed) Name() string { return string(ModeComputed) }

func (c *Computed) Compute(price float64, history []float64) Values {
	v := Values{RSI: 50}
	if rsi, ok := RSI(history, c.RSIPeriod); ok {
		v.RSI = rsi
	}
	if m, ok := Momentum(price, history, c.MomentumLookback); ok {
		v.Momentum = m
	}
	return v
}

// Placeholder returns random readings: RSI uniform in [20, 80] and momentum
// uniform in [-1, 1]. It does not look at prices at all and must not be used
// with real funds.
type Placeholder struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewPlaceholder creates a Placeholder source seeded with seed.
func NewPlaceholder(seed int64) *Placeholder {
	return &Placeholder{rng: rand.New(rand.NewSource(seed))}
}

func (p *Placeholder) Name() string { return string(ModePlaceholder) }

func (p *Placeholder) Compute(float64, []float64) Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Values{
		RSI:      20 + p.rng.Float64()*60,
		Momentum: p.rng.Float64()*2 - 1,
	}
}
