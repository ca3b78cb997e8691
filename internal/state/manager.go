// Package state owns the process-wide trading state: the active strategy
// configuration and the simulated book used in mock mode.
package state

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradebot/internal/strategy"
	"tradebot/pkg/db"
)

var (
	ErrInvalidTrade    = errors.New("invalid mock trade")
	ErrInvalidSchedule = errors.New("schedule must be '24/7' or 'market'")
)

const (
	Schedule247    = "24/7"
	ScheduleMarket = "market"

	maxTrades = 1000
)

// Position is the simulated holding of one symbol.
type Position struct {
	Symbol   string  `json:"symbol"`
	Qty      float64 `json:"qty"`
	AvgPrice float64 `json:"avg_price"`
}

// TradeRequest is one simulated order.
type TradeRequest struct {
	Symbol string  `json:"symbol" binding:"required"`
	Side   string  `json:"side" binding:"required"`
	Qty    float64 `json:"qty" binding:"required"`
	Price  float64 `json:"price" binding:"required"`
}

// Trade is a simulated fill.
type Trade struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side"`
	Qty         float64   `json:"qty"`
	Price       float64   `json:"price"`
	RealizedPnL float64   `json:"realized_pnl"`
}

// TradeResult is returned by ExecuteMockTrade.
type TradeResult struct {
	Position Position `json:"position"`
	Trade    Trade    `json:"trade"`
	Cash     float64  `json:"cash"`
}

// Performance aggregates mock-mode results.
type Performance struct {
	TotalRealizedPnL float64 `json:"total_realized_pnl"`
	TotalFees        float64 `json:"total_fees"`
	TradeCount       int     `json:"trade_count"`
}

// Manager is the single lock-guarded state object. Every read returns a copy.
type Manager struct {
	mu        sync.RWMutex
	db        *db.Database
	config    strategy.Config
	running   bool
	schedule  string
	positions map[string]Position
	cash      float64
	trades    []Trade
	perf      Performance
	now       func() time.Time
}

// NewManager creates a Manager. database may be nil for a purely in-memory book.
func NewManager(database *db.Database, cfg strategy.Config, initialCash float64) *Manager {
	return &Manager{
		db:        database,
		config:    cfg,
		schedule:  Schedule247,
		positions: make(map[string]Position),
		cash:      initialCash,
		now:       time.Now,
	}
}

// Load seeds positions from the database.
func (m *Manager) Load(ctx context.Context) error {
	if m.db == nil {
		return nil
	}
	rows, err := m.db.ListPositions(ctx)
	if err != nil {
		return fmt.Errorf("load positions: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range rows {
		m.positions[p.Symbol] = Position{Symbol: p.Symbol, Qty: p.Qty, AvgPrice: p.AvgPrice}
	}
	return nil
}

// StrategyConfig returns a snapshot of the active strategy configuration.
func (m *Manager) StrategyConfig() strategy.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// UpdateStrategyConfig merges patch into the configuration. Sessions pick the
// change up on their next iteration.
func (m *Manager) UpdateStrategyConfig(patch map[string]any) (strategy.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := m.config.Apply(patch)
	if err != nil {
		return m.config, err
	}
	m.config = next
	return next, nil
}

// Running reports whether the mock loop should trade.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *Manager) SetRunning(running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = running
}

func (m *Manager) Schedule() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.schedule
}

func (m *Manager) SetSchedule(schedule string) error {
	if schedule != Schedule247 && schedule != ScheduleMarket {
		return ErrInvalidSchedule
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedule = schedule
	return nil
}

// Positions returns the book ordered by symbol.
func (m *Manager) Positions() []Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]Position, 0, len(m.positions))
	for _, p := range m.positions {
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Symbol < res[j].Symbol })
	return res
}

func (m *Manager) Cash() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cash
}

// Trades returns the most recent simulated fills, oldest first.
func (m *Manager) Trades() []Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Trade(nil), m.trades...)
}

func (m *Manager) Performance() Performance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.perf
}

// ExecuteMockTrade applies req to the book. Buys move the average cost;
// sells realize PnL on the held quantity they close.
func (m *Manager) ExecuteMockTrade(ctx context.Context, req TradeRequest) (TradeResult, error) {
	side := strings.ToLower(strings.TrimSpace(req.Side))
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	switch {
	case symbol == "":
		return TradeResult{}, fmt.Errorf("%w: symbol is required", ErrInvalidTrade)
	case side != "buy" && side != "sell":
		return TradeResult{}, fmt.Errorf("%w: side must be buy or sell", ErrInvalidTrade)
	case !(req.Qty > 0) || math.IsInf(req.Qty, 0):
		return TradeResult{}, fmt.Errorf("%w: qty must be positive", ErrInvalidTrade)
	case !(req.Price > 0) || math.IsInf(req.Price, 0):
		return TradeResult{}, fmt.Errorf("%w: price must be positive", ErrInvalidTrade)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pos := m.positions[symbol]
	pos.Symbol = symbol
	realized := 0.0

	if side == "buy" {
		cost := pos.Qty*pos.AvgPrice + req.Qty*req.Price
		pos.Qty += req.Qty
		pos.AvgPrice = cost / pos.Qty
		m.cash -= req.Qty * req.Price
	} else {
		sold := math.Min(req.Qty, pos.Qty)
		realized = (req.Price - pos.AvgPrice) * sold
		pos.Qty -= sold
		if pos.Qty == 0 {
			pos.AvgPrice = 0
		}
		m.cash += sold * req.Price
		m.perf.TotalRealizedPnL += realized
	}
	m.positions[symbol] = pos

	trade := Trade{
		ID:          uuid.NewString(),
		Timestamp:   m.now().UTC(),
		Symbol:      symbol,
		Side:        side,
		Qty:         req.Qty,
		Price:       req.Price,
		RealizedPnL: realized,
	}
	m.trades = append(m.trades, trade)
	if len(m.trades) > maxTrades {
		m.trades = append([]Trade(nil), m.trades[len(m.trades)-maxTrades:]...)
	}
	m.perf.TradeCount++
	m.persist(ctx, pos, trade)
	return TradeResult{Position: pos, Trade: trade, Cash: m.cash}, nil
}

// persist runs under m.mu so rows land in trade order. The in-memory book
// stays authoritative when the database is unavailable.
func (m *Manager) persist(ctx context.Context, pos Position, trade Trade) {
	if m.db == nil {
		return
	}
	if err := m.db.UpsertPosition(ctx, db.Position{Symbol: pos.Symbol, Qty: pos.Qty, AvgPrice: pos.AvgPrice}); err != nil {
		log.Printf("state: persist position %s: %v", pos.Symbol, err)
	}
	if err := m.db.CreateMockTrade(ctx, db.MockTrade{
		ID:          trade.ID,
		Symbol:      trade.Symbol,
		Side:        trade.Side,
		Qty:         trade.Qty,
		Price:       trade.Price,
		RealizedPnL: trade.RealizedPnL,
		CreatedAt:   trade.Timestamp,
	}); err != nil {
		log.Printf("state: persist mock trade %s: %v", trade.ID, err)
	}
}
