package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"tradebot/internal/events"
	"tradebot/internal/gateway"
	"tradebot/internal/indicators"
	"tradebot/internal/monitor"
	"tradebot/internal/risk"
	"tradebot/internal/session"
	"tradebot/internal/strategy"
	"tradebot/internal/userdata"
	"tradebot/pkg/cache"
	"tradebot/pkg/exchanges/common"
)

var (
	ErrExchangeNotConnected = errors.New("exchange not connected")
	ErrConnectionTest       = errors.New("exchange connection test failed")
)

const connectionTimeout = 15 * time.Second

// Pool is the connector cache sessions and queries share. *gateway.Manager
// satisfies it.
type Pool interface {
	session.ConnectorProvider
	Remove(userID, exchange string)
}

// StrategyState holds the process-wide strategy configuration.
// *state.Manager satisfies it.
type StrategyState interface {
	StrategyConfig() strategy.Config
	UpdateStrategyConfig(patch map[string]any) (strategy.Config, error)
}

// Config holds the collaborators of the engine implementation.
type Config struct {
	Store      userdata.Store
	Pool       Pool
	Factory    gateway.Factory // builds throwaway connectors for connection tests
	State      StrategyState
	Session    session.Config
	Indicators indicators.Source
	Bus        *events.Bus
	Quotes     *cache.QuoteCache
	History    session.HistorySink
	Metrics    *monitor.SystemMetrics
}

// Impl implements Service with one session per user.
type Impl struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*session.Session

	userLocks sync.Map // email -> *sync.Mutex, serializes record updates
}

// NewImpl creates a new engine implementation.
func NewImpl(cfg Config) *Impl {
	if cfg.Factory == nil {
		cfg.Factory = gateway.DefaultFactory
	}
	if cfg.Quotes == nil {
		cfg.Quotes = cache.NewQuoteCache()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = monitor.NewSystemMetrics()
	}
	return &Impl{cfg: cfg, sessions: make(map[string]*session.Session)}
}

func normalizeUser(user string) string {
	return strings.ToLower(strings.TrimSpace(user))
}

func (e *Impl) userLock(user string) *sync.Mutex {
	v, _ := e.userLocks.LoadOrStore(user, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (e *Impl) lockUser(user string) func() {
	mu := e.userLock(user)
	mu.Lock()
	return mu.Unlock
}

// updateRecord loads, mutates and saves the user's record under the user lock.
func (e *Impl) updateRecord(ctx context.Context, user string, fn func(*userdata.Record) error) (*userdata.Record, error) {
	defer e.lockUser(user)()
	rec, err := e.cfg.Store.GetUserData(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("load user data: %w", err)
	}
	if err := fn(rec); err != nil {
		return nil, err
	}
	rec.UpdatedAt = time.Now().UTC()
	if err := e.cfg.Store.SaveUserData(ctx, user, rec); err != nil {
		return nil, fmt.Errorf("save user data: %w", err)
	}
	return rec, nil
}

func (e *Impl) session(user string, create bool) *session.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[user]
	if !ok && create {
		s = session.New(user, e.cfg.Session, session.Deps{
			Store:      e.cfg.Store,
			Connectors: e.cfg.Pool,
			Strategy:   e.cfg.State,
			Indicators: e.cfg.Indicators,
			Bus:        e.cfg.Bus,
			Quotes:     e.cfg.Quotes,
			History:    e.cfg.History,
			Metrics:    e.cfg.Metrics,
			RecordLock: e.userLock(user),
		})
		e.sessions[user] = s
	}
	return s
}

// --- Trading sessions ---

// StartTrading starts the user's session. The bool mirrors the error for
// callers that only need a yes or no.
func (e *Impl) StartTrading(ctx context.Context, user string) (bool, error) {
	user = normalizeUser(user)
	if err := e.session(user, true).Start(ctx); err != nil {
		return false, err
	}
	e.setBotRunning(ctx, user, true)
	e.cfg.Metrics.SetActiveSessions(e.ActiveSessions())
	return true, nil
}

func (e *Impl) StopTrading(ctx context.Context, user string) error {
	user = normalizeUser(user)
	s := e.session(user, false)
	if s == nil {
		return nil
	}
	err := s.Stop()
	e.setBotRunning(ctx, user, false)
	e.cfg.Metrics.SetActiveSessions(e.ActiveSessions())
	return err
}

func (e *Impl) setBotRunning(ctx context.Context, user string, running bool) {
	if _, err := e.updateRecord(ctx, user, func(r *userdata.Record) error {
		r.BotStatus.Running = running
		return nil
	}); err != nil {
		log.Printf("engine: record bot status for %s: %v", user, err)
	}
}

func (e *Impl) Status(ctx context.Context, user string) (*Status, error) {
	user = normalizeUser(user)
	rec, err := e.cfg.Store.GetUserData(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("load user data: %w", err)
	}
	st := &Status{
		ConnectedExchanges: make([]string, 0, len(rec.Exchanges)),
		TotalTrades:        rec.TradingData.TotalTrades,
		DailyPnL:           rec.TradingData.Stats().AsOf(time.Now()).DailyPnL,
		ConsecutiveLosses:  rec.TradingData.ConsecutiveLosses,
		Session:            session.Status{User: user},
	}
	for _, c := range rec.Exchanges {
		st.ConnectedExchanges = append(st.ConnectedExchanges, c.Name)
	}
	if s := e.session(user, false); s != nil {
		st.Session = s.Status()
		st.Running = st.Session.Running
	}
	return st, nil
}

// TradeHistory returns the history of the current session, or the stored
// trades when the user has no session in this process. limit <= 0 means all.
func (e *Impl) TradeHistory(ctx context.Context, user string, limit int) ([]session.TradeHistoryEntry, error) {
	user = normalizeUser(user)
	var entries []session.TradeHistoryEntry
	if s := e.session(user, false); s != nil {
		entries = s.TradeHistory()
	} else {
		rec, err := e.cfg.Store.GetUserData(ctx, user)
		if err != nil {
			return nil, fmt.Errorf("load user data: %w", err)
		}
		entries = rec.TradingData.Trades
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// --- Exchange connections ---

func (e *Impl) SupportedExchanges() []string {
	return gateway.SupportedExchanges()
}

func (e *Impl) Exchanges(ctx context.Context, user string) ([]ExchangeInfo, error) {
	rec, err := e.cfg.Store.GetUserData(ctx, normalizeUser(user))
	if err != nil {
		return nil, fmt.Errorf("load user data: %w", err)
	}
	out := make([]ExchangeInfo, 0, len(rec.Exchanges))
	for _, c := range rec.Exchanges {
		out = append(out, exchangeInfo(c))
	}
	return out, nil
}

// ConnectExchange tests the credentials against the exchange and stores the
// connection only when the test passes. Reconnecting replaces the previous
// credentials and keeps the connection's position in the list.
func (e *Impl) ConnectExchange(ctx context.Context, user string, req ConnectRequest) (*ExchangeInfo, error) {
	user = normalizeUser(user)
	name := gateway.NormalizeName(req.Exchange)
	creds := common.Credentials{
		APIKey:     strings.TrimSpace(req.APIKey),
		APISecret:  strings.TrimSpace(req.APISecret),
		Passphrase: req.Passphrase,
		Sandbox:    req.Sandbox,
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	conn, err := e.cfg.Factory(name, creds)
	if err != nil {
		return nil, err
	}

	testCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	ok, msg := conn.TestConnection(testCtx)
	cancel()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConnectionTest, msg)
	}

	c := userdata.ExchangeConnection{
		Name:        name,
		APIKey:      creds.APIKey,
		APISecret:   creds.APISecret,
		Passphrase:  creds.Passphrase,
		Sandbox:     creds.Sandbox,
		Status:      "connected",
		ConnectedAt: time.Now().UTC(),
	}
	if _, err := e.updateRecord(ctx, user, func(r *userdata.Record) error {
		r.AddExchange(c)
		return nil
	}); err != nil {
		return nil, err
	}
	// a cached connector still carries the old credentials
	e.cfg.Pool.Remove(user, name)
	log.Printf("engine: %s connected %s", user, name)

	info := exchangeInfo(c)
	return &info, nil
}

func (e *Impl) DisconnectExchange(ctx context.Context, user, exchange string) error {
	user = normalizeUser(user)
	name := gateway.NormalizeName(exchange)
	if _, err := e.updateRecord(ctx, user, func(r *userdata.Record) error {
		if !r.RemoveExchange(name) {
			return fmt.Errorf("%w: %s", ErrExchangeNotConnected, name)
		}
		return nil
	}); err != nil {
		return err
	}
	e.cfg.Pool.Remove(user, name)
	log.Printf("engine: %s disconnected %s", user, name)
	return nil
}

// connector returns the pooled connector of a stored connection.
func (e *Impl) connector(ctx context.Context, user, exchange string) (common.Connector, string, error) {
	user = normalizeUser(user)
	rec, err := e.cfg.Store.GetUserData(ctx, user)
	if err != nil {
		return nil, "", fmt.Errorf("load user data: %w", err)
	}
	c, ok := rec.Exchange(exchange)
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrExchangeNotConnected, gateway.NormalizeName(exchange))
	}
	conn, err := e.cfg.Pool.GetOrCreate(user, c.Name, c.Credentials())
	if err != nil {
		return nil, "", err
	}
	return conn, c.Name, nil
}

func (e *Impl) TestExchange(ctx context.Context, user, exchange string) (bool, string, error) {
	conn, _, err := e.connector(ctx, user, exchange)
	if err != nil {
		return false, "", err
	}
	testCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	ok, msg := conn.TestConnection(testCtx)
	return ok, msg, nil
}

func (e *Impl) Balances(ctx context.Context, user, exchange string) ([]common.Balance, error) {
	conn, name, err := e.connector(ctx, user, exchange)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	balances, err := conn.GetBalances(callCtx)
	if err != nil {
		e.cfg.Pool.RecordFailure(normalizeUser(user), name)
		return nil, err
	}
	e.cfg.Pool.RecordSuccess(normalizeUser(user), name)
	return balances, nil
}

func (e *Impl) Tickers(ctx context.Context, user, exchange string, symbols []string) ([]common.Ticker, error) {
	conn, name, err := e.connector(ctx, user, exchange)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	tickers, err := conn.GetTickers(callCtx, symbols)
	if err != nil {
		e.cfg.Pool.RecordFailure(normalizeUser(user), name)
		return nil, err
	}
	e.cfg.Pool.RecordSuccess(normalizeUser(user), name)
	e.cfg.Quotes.Put(name, tickers...)
	return tickers, nil
}

// --- Configuration ---

func (e *Impl) StrategyConfig() strategy.Config {
	return e.cfg.State.StrategyConfig()
}

// UpdateStrategyConfig applies patch to the shared configuration. Running
// sessions see the change on their next iteration.
func (e *Impl) UpdateStrategyConfig(patch map[string]any) (strategy.Config, error) {
	return e.cfg.State.UpdateStrategyConfig(patch)
}

func (e *Impl) RiskLimits(ctx context.Context, user string) (risk.Limits, error) {
	rec, err := e.cfg.Store.GetUserData(ctx, normalizeUser(user))
	if err != nil {
		return risk.Limits{}, fmt.Errorf("load user data: %w", err)
	}
	return rec.RiskManagement, nil
}

func (e *Impl) UpdateRiskLimits(ctx context.Context, user string, patch map[string]any) (risk.Limits, error) {
	rec, err := e.updateRecord(ctx, normalizeUser(user), func(r *userdata.Record) error {
		merged, err := r.RiskManagement.Merge(patch)
		if err != nil {
			return err
		}
		r.RiskManagement = merged
		return nil
	})
	if err != nil {
		return risk.Limits{}, err
	}
	return rec.RiskManagement, nil
}

// --- System ---

func (e *Impl) ActiveSessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, s := range e.sessions {
		if s.Running() {
			n++
		}
	}
	return n
}

// Shutdown stops every running session. Stored bot status is left as is.
func (e *Impl) Shutdown() {
	e.mu.Lock()
	sessions := make([]*session.Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *session.Session) {
			defer wg.Done()
			if err := s.Stop(); err != nil {
				log.Printf("engine: stop session %s: %v", s.User(), err)
			}
		}(s)
	}
	wg.Wait()
	e.cfg.Metrics.SetActiveSessions(0)
}

var _ Service = (*Impl)(nil)
