// Package session runs one user's trading loop: read tickers and balances
// from every connected exchange, evaluate the active strategy, pass actionable
// signals through the risk gate and place the sized order.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradebot/internal/events"
	"tradebot/internal/indicators"
	"tradebot/internal/monitor"
	"tradebot/internal/risk"
	"tradebot/internal/strategy"
	"tradebot/internal/userdata"
	"tradebot/pkg/cache"
	"tradebot/pkg/db"
	"tradebot/pkg/exchanges/common"
)

var (
	ErrAlreadyRunning = errors.New("trading session already running")
	ErrNoExchanges    = errors.New("no connected exchanges")
	ErrStopTimeout    = errors.New("trading worker did not stop in time")
)

const (
	StatusExecuted  = "executed"
	StatusSubmitted = "submitted"
)

// TradeHistoryEntry is one order outcome of a session.
type TradeHistoryEntry = userdata.Trade

// ConnectorProvider hands out live connectors. *gateway.Manager satisfies it.
type ConnectorProvider interface {
	GetOrCreate(userID, exchange string, creds common.Credentials) (common.Connector, error)
	RecordFailure(userID, exchange string)
	RecordSuccess(userID, exchange string)
}

// ConfigSource returns the strategy configuration in force. *state.Manager
// satisfies it.
type ConfigSource interface {
	StrategyConfig() strategy.Config
}

// HistorySink receives executed trades for durable storage.
// *persistence.BatchWriter satisfies it.
type HistorySink interface {
	Write(row db.TradeHistory)
}

// Config holds the loop timing and the symbols requested from every exchange.
type Config struct {
	Symbols      []string
	Interval     time.Duration
	ErrorBackoff time.Duration
	StopTimeout  time.Duration
	CallTimeout  time.Duration // bound on one exchange call
}

// DefaultConfig returns the loop defaults.
func DefaultConfig() Config {
	return Config{
		Symbols:      []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"},
		Interval:     10 * time.Second,
		ErrorBackoff: 30 * time.Second,
		StopTimeout:  5 * time.Second,
		CallTimeout:  15 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if len(c.Symbols) == 0 {
		c.Symbols = d.Symbols
	}
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = d.ErrorBackoff
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = d.StopTimeout
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = d.CallTimeout
	}
	return c
}

// Deps are the collaborators shared by every session. Store, Connectors and
// Strategy are required; the rest may be nil.
type Deps struct {
	Store      userdata.Store
	Connectors ConnectorProvider
	Strategy   ConfigSource
	Indicators indicators.Source
	Bus        *events.Bus
	Quotes     *cache.QuoteCache
	History    HistorySink
	Metrics    *monitor.SystemMetrics
	// RecordLock serializes writes to the user's stored record with other
	// writers of the same record. Optional.
	RecordLock sync.Locker
}

// Status is a snapshot of a session.
type Status struct {
	User          string    `json:"user"`
	Running       bool      `json:"running"`
	StartedAt     time.Time `json:"started_at,omitempty"`
	Iterations    int       `json:"iterations"`
	LastIteration time.Time `json:"last_iteration,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	Trades        int       `json:"trades"`
}

// Session is the trading loop of one user. At most one worker runs at a time.
type Session struct {
	user string
	cfg  Config
	deps Deps

	mu         sync.Mutex
	running    bool
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
	history    []TradeHistoryEntry
	window     *indicators.Window
	startedAt  time.Time
	iterations int
	lastRun    time.Time
	lastErr    string
}

// New creates a stopped session for user.
func New(user string, cfg Config, deps Deps) *Session {
	if deps.Indicators == nil {
		deps.Indicators = indicators.NewComputed(14, 14)
	}
	if deps.Metrics == nil {
		deps.Metrics = monitor.NewSystemMetrics()
	}
	if deps.Quotes == nil {
		deps.Quotes = cache.NewQuoteCache()
	}
	return &Session{
		user:   user,
		cfg:    cfg.withDefaults(),
		deps:   deps,
		window: indicators.NewWindow(indicators.DefaultWindow),
	}
}

// User returns the session owner.
func (s *Session) User() string { return s.user }

// Start launches the worker. It fails when the session is already running or
// the user has no connected exchange. ctx bounds only the checks done before
// the worker starts.
func (s *Session) Start(ctx context.Context) error {
	if s.Running() {
		return ErrAlreadyRunning
	}
	rec, err := s.deps.Store.GetUserData(ctx, s.user)
	if err != nil {
		return fmt.Errorf("load user data: %w", err)
	}
	if len(rec.Exchanges) == 0 {
		return &common.ConfigurationError{User: s.user, Reason: "no connected exchanges", Err: ErrNoExchanges}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}

	// A worker left over from a timed-out Stop keeps its own window.
	window := indicators.NewWindow(indicators.DefaultWindow)
	s.history = nil
	s.window = window
	s.generation++
	s.iterations = 0
	s.lastErr = ""
	s.startedAt = time.Now().UTC()

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.running = true

	go s.run(runCtx, s.generation, window, done)

	log.Printf("session[%s]: started with %d exchange(s)", s.user, len(rec.Exchanges))
	s.deps.Bus.Publish(events.EventSessionState, s.user, events.SessionState{Running: true})
	return nil
}

// Stop signals the worker and waits up to the stop timeout for it to exit.
// The session reads as stopped either way. Stopping an idle session is a no-op.
func (s *Session) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()

	var err error
	select {
	case <-done:
	case <-time.After(s.cfg.StopTimeout):
		err = ErrStopTimeout
		log.Printf("session[%s]: worker still busy after %s", s.user, s.cfg.StopTimeout)
	}
	log.Printf("session[%s]: stopped", s.user)
	s.deps.Bus.Publish(events.EventSessionState, s.user, events.SessionState{Running: false, Reason: "stopped"})
	return err
}

// Running reports whether the worker is active.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		User:          s.user,
		Running:       s.running,
		StartedAt:     s.startedAt,
		Iterations:    s.iterations,
		LastIteration: s.lastRun,
		LastError:     s.lastErr,
		Trades:        len(s.history),
	}
}

// TradeHistory returns the outcomes recorded since the last Start.
func (s *Session) TradeHistory() []TradeHistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TradeHistoryEntry(nil), s.history...)
}

func (s *Session) run(ctx context.Context, gen uint64, window *indicators.Window, done chan struct{}) {
	defer close(done)
	for {
		wait := s.cfg.Interval
		if err := s.iterate(ctx, gen, window); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("session[%s]: iteration failed: %v", s.user, err)
			s.deps.Metrics.IncrementErrors()
			wait = s.cfg.ErrorBackoff
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// iterate runs one pass over the user's exchanges in connection order.
// Cancelling ctx stops the pass between exchange calls; a call already in
// flight runs to completion or its own timeout.
func (s *Session) iterate(ctx context.Context, gen uint64, window *indicators.Window) error {
	timer := monitor.NewTimer(s.deps.Metrics.LoopLatency)
	cfg := s.deps.Strategy.StrategyConfig()
	rec, err := s.deps.Store.GetUserData(ctx, s.user)
	if err != nil {
		s.finishIteration(gen, err)
		return fmt.Errorf("load user data: %w", err)
	}

	gate := risk.NewGate(rec.RiskManagement)
	stats := rec.TradingData.Stats()
	for _, conn := range rec.Exchanges {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.processExchange(ctx, gen, window, conn, cfg, gate, stats)
	}

	timer.Stop()
	s.finishIteration(gen, nil)
	return nil
}

func (s *Session) finishIteration(gen uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return
	}
	s.iterations++
	s.lastRun = time.Now().UTC()
	if err != nil {
		s.lastErr = err.Error()
	} else {
		s.lastErr = ""
	}
}

// processExchange handles one exchange. Failures and panics stay here so the
// remaining exchanges are still processed.
func (s *Session) processExchange(ctx context.Context, gen uint64, window *indicators.Window, conn userdata.ExchangeConnection,
	cfg strategy.Config, gate *risk.Gate, stats risk.SessionStats) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("session[%s]: panic processing %s: %v\n%s", s.user, conn.Name, r, debug.Stack())
			s.deps.Metrics.IncrementErrors()
		}
	}()

	connector, err := s.deps.Connectors.GetOrCreate(s.user, conn.Name, conn.Credentials())
	if err != nil {
		log.Printf("session[%s]: %s connector: %v", s.user, conn.Name, err)
		return
	}

	tickers, err := s.readTickers(ctx, connector)
	if err != nil {
		log.Printf("session[%s]: %s tickers: %v", s.user, conn.Name, err)
		s.deps.Connectors.RecordFailure(s.user, conn.Name)
		return
	}
	if len(tickers) == 0 {
		return
	}
	s.deps.Quotes.Put(conn.Name, tickers...)

	balances, err := s.readBalances(ctx, connector)
	if err != nil {
		log.Printf("session[%s]: %s balances: %v", s.user, conn.Name, err)
		s.deps.Connectors.RecordFailure(s.user, conn.Name)
		return
	}
	s.deps.Connectors.RecordSuccess(s.user, conn.Name)
	if len(balances) == 0 {
		return
	}

	for _, t := range tickers {
		if ctx.Err() != nil {
			return
		}
		s.processTicker(ctx, gen, window, connector, conn.Name, t, balances, cfg, gate, stats)
	}
}

// callContext bounds a single exchange call by the call timeout only, so a
// stop request never aborts a request that is already on the wire.
func (s *Session) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CallTimeout)
}

func (s *Session) readTickers(ctx context.Context, c common.Connector) ([]common.Ticker, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	defer monitor.NewTimer(s.deps.Metrics.ExchangeLatency).Stop()
	return c.GetTickers(callCtx, s.cfg.Symbols)
}

func (s *Session) readBalances(ctx context.Context, c common.Connector) ([]common.Balance, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	defer monitor.NewTimer(s.deps.Metrics.ExchangeLatency).Stop()
	return c.GetBalances(callCtx)
}

func (s *Session) processTicker(ctx context.Context, gen uint64, window *indicators.Window, c common.Connector, exchange string, t common.Ticker,
	balances []common.Balance, cfg strategy.Config, gate *risk.Gate, stats risk.SessionStats) {
	if t.Price <= 0 {
		return
	}
	history := window.Push(exchange+"|"+common.SymbolKey(t.Symbol), t.Price)
	ind := s.deps.Indicators.Compute(t.Price, history)
	sig := strategy.Evaluate(t.Symbol, t.Price, ind, cfg, history)
	if !sig.Actionable() {
		return
	}
	s.deps.Metrics.IncrementSignals()
	s.deps.Bus.Publish(events.EventSignal, s.user, sig)

	decision := gate.Evaluate(sig, balances, stats)
	if !decision.Allowed {
		log.Printf("session[%s]: %s %s %s rejected: %s", s.user, exchange, sig.Action, sig.Symbol, decision.Reason)
		s.deps.Bus.Publish(events.EventRiskRejected, s.user, decision)
		return
	}

	qty := gate.Size(sig, balances)
	if qty <= 0 {
		return
	}

	order := common.Order{
		Symbol:   sig.Symbol,
		Side:     common.Side(sig.Action),
		Quantity: qty,
		Price:    sig.Price,
		Type:     common.OrderTypeMarket,
	}
	callCtx, cancel := s.callContext(ctx)
	timer := monitor.NewTimer(s.deps.Metrics.OrderLatency)
	res, err := c.PlaceOrder(callCtx, order)
	cancel()
	timer.Stop()
	if err != nil {
		log.Printf("session[%s]: %s order %s %s: %v", s.user, exchange, order.Side, order.Symbol, err)
		s.deps.Metrics.IncrementRejectedOrders()
		s.deps.Bus.Publish(events.EventOrderFailed, s.user, fmt.Sprintf("%s order %s %s: %v", exchange, order.Side, order.Symbol, err))
		return
	}
	if !res.Success {
		log.Printf("session[%s]: %s rejected %s %s: %s", s.user, exchange, order.Side, order.Symbol, res.Message)
		s.deps.Metrics.IncrementRejectedOrders()
		s.deps.Bus.Publish(events.EventOrderFailed, s.user, fmt.Sprintf("%s rejected %s %s: %s", exchange, order.Side, order.Symbol, res.Message))
		return
	}

	status := StatusSubmitted
	if res.Filled() {
		status = StatusExecuted
	}
	s.record(ctx, gen, TradeHistoryEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		UserEmail: s.user,
		Exchange:  exchange,
		Symbol:    sig.Symbol,
		Action:    string(sig.Action),
		Quantity:  qty,
		Price:     sig.Price,
		Reason:    sig.Reason,
		Status:    status,
		OrderID:   res.OrderID,
	})
}

// record appends the entry to the session history and forwards it to the
// history sink, the bus and the user's stored record.
func (s *Session) record(ctx context.Context, gen uint64, e TradeHistoryEntry) {
	s.mu.Lock()
	if gen == s.generation {
		s.history = append(s.history, e)
	}
	s.mu.Unlock()

	s.deps.Metrics.IncrementOrders()
	if s.deps.History != nil {
		s.deps.History.Write(db.TradeHistory{
			ID:        e.ID,
			UserEmail: e.UserEmail,
			Exchange:  e.Exchange,
			Symbol:    e.Symbol,
			Action:    e.Action,
			Quantity:  e.Quantity,
			Price:     e.Price,
			Reason:    e.Reason,
			Status:    e.Status,
			OrderID:   e.OrderID,
			CreatedAt: e.Timestamp,
		})
	}
	s.deps.Bus.Publish(events.EventTradeExecuted, s.user, e)

	// the order is already placed; a store failure only loses the record copy
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if l := s.deps.RecordLock; l != nil {
		l.Lock()
		defer l.Unlock()
	}
	rec, err := s.deps.Store.GetUserData(storeCtx, s.user)
	if err != nil {
		log.Printf("session[%s]: load user data for trade %s: %v", s.user, e.ID, err)
		return
	}
	rec.AppendTrade(e)
	if err := s.deps.Store.SaveUserData(storeCtx, s.user, rec); err != nil {
		log.Printf("session[%s]: save trade %s: %v", s.user, e.ID, err)
	}
}
