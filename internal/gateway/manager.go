// Package gateway builds exchange connectors and keeps one live connector per
// user and exchange for as long as the exchange stays connected.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"tradebot/pkg/exchanges/common"
)

var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrConnectorUnhealthy = errors.New("connector is unhealthy")
	ErrPoolFull           = errors.New("connector pool is full")
)

// CachedConnector holds a connector with lifecycle metadata.
type CachedConnector struct {
	Connector common.Connector
	UserID    string
	Exchange  string
	CreatedAt time.Time
	LastUsed  time.Time
	HealthyAt time.Time
	Failures  int
}

// Config holds configuration for the Manager.
type Config struct {
	MaxSize          int           // LRU bound on cached connectors
	IdleTimeout      time.Duration // idle connectors are dropped after this
	HealthInterval   time.Duration
	FailureThreshold int // failures before the circuit opens
	CircuitTimeout   time.Duration
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		MaxSize:          100,
		IdleTimeout:      30 * time.Minute,
		HealthInterval:   5 * time.Minute,
		FailureThreshold: 3,
		CircuitTimeout:   5 * time.Minute,
	}
}

// Manager is a pool of connectors keyed by user and exchange.
type Manager struct {
	mu         sync.RWMutex
	connectors map[string]*CachedConnector
	lruOrder   []string // oldest first

	config  Config
	factory Factory

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager creates a Manager. A nil factory uses DefaultFactory.
func NewManager(factory Factory, cfg Config) *Manager {
	if factory == nil {
		factory = DefaultFactory
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultConfig().MaxSize
	}
	return &Manager{
		connectors: make(map[string]*CachedConnector),
		config:     cfg,
		factory:    factory,
		stopCh:     make(chan struct{}),
	}
}

func key(userID, exchange string) string {
	return userID + "|" + NormalizeName(exchange)
}

// Start runs idle cleanup and health checks until ctx ends or Stop is called.
func (m *Manager) Start(ctx context.Context) {
	if m.config.IdleTimeout > 0 {
		m.wg.Add(1)
		go m.every(ctx, m.config.IdleTimeout/2, m.cleanupIdle)
	}
	if m.config.HealthInterval > 0 {
		m.wg.Add(1)
		go m.every(ctx, m.config.HealthInterval, func() { m.healthCheckAll(ctx) })
	}
}

func (m *Manager) every(ctx context.Context, interval time.Duration, fn func()) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			fn()
		}
	}
}

// Stop shuts down background work and drops every connector.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectors = make(map[string]*CachedConnector)
	m.lruOrder = nil
}

// GetOrCreate returns the cached connector for (userID, exchange), building
// one from creds when none exists.
func (m *Manager) GetOrCreate(userID, exchange string, creds common.Credentials) (common.Connector, error) {
	k := key(userID, exchange)

	m.mu.Lock()
	defer m.mu.Unlock()

	if cached, ok := m.connectors[k]; ok {
		if cached.Failures >= m.config.FailureThreshold && m.config.FailureThreshold > 0 &&
			time.Since(cached.HealthyAt) < m.config.CircuitTimeout {
			return nil, ErrConnectorUnhealthy
		}
		m.touchLRULocked(k)
		return cached.Connector, nil
	}

	if len(m.connectors) >= m.config.MaxSize && !m.evictOldestLocked() {
		return nil, ErrPoolFull
	}

	conn, err := m.factory(exchange, creds)
	if err != nil {
		return nil, fmt.Errorf("create connector: %w", err)
	}

	now := time.Now()
	m.connectors[k] = &CachedConnector{
		Connector: conn,
		UserID:    userID,
		Exchange:  NormalizeName(exchange),
		CreatedAt: now,
		LastUsed:  now,
		HealthyAt: now,
	}
	m.lruOrder = append(m.lruOrder, k)
	return conn, nil
}

// Get returns a cached connector without creating one.
func (m *Manager) Get(userID, exchange string) (common.Connector, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cached, ok := m.connectors[key(userID, exchange)]
	if !ok {
		return nil, ErrConnectionNotFound
	}
	return cached.Connector, nil
}

// Remove drops the connector for (userID, exchange).
func (m *Manager) Remove(userID, exchange string) {
	k := key(userID, exchange)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.connectors[k]; ok {
		delete(m.connectors, k)
		m.removeLRULocked(k)
	}
}

// RemoveByUser drops every connector of userID.
func (m *Manager) RemoveByUser(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, cached := range m.connectors {
		if cached.UserID == userID {
			delete(m.connectors, k)
			m.removeLRULocked(k)
		}
	}
}

// RecordFailure counts a failed call against the connector.
func (m *Manager) RecordFailure(userID, exchange string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cached, ok := m.connectors[key(userID, exchange)]; ok {
		cached.Failures++
	}
}

// RecordSuccess resets the failure counter.
func (m *Manager) RecordSuccess(userID, exchange string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cached, ok := m.connectors[key(userID, exchange)]; ok {
		cached.Failures = 0
		cached.HealthyAt = time.Now()
	}
}

// PoolStats contains connector pool statistics.
type PoolStats struct {
	TotalConnectors int            `json:"total_connectors"`
	MaxSize         int            `json:"max_size"`
	ByExchange      map[string]int `json:"by_exchange"`
	UnhealthyCount  int            `json:"unhealthy_count"`
}

// Stats returns current pool statistics.
func (m *Manager) Stats() PoolStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := PoolStats{
		TotalConnectors: len(m.connectors),
		MaxSize:         m.config.MaxSize,
		ByExchange:      make(map[string]int),
	}
	for _, cached := range m.connectors {
		stats.ByExchange[cached.Exchange]++
		if m.config.FailureThreshold > 0 && cached.Failures >= m.config.FailureThreshold {
			stats.UnhealthyCount++
		}
	}
	return stats
}

func (m *Manager) touchLRULocked(k string) {
	if cached, ok := m.connectors[k]; ok {
		cached.LastUsed = time.Now()
	}
	for i, id := range m.lruOrder {
		if id == k {
			m.lruOrder = append(m.lruOrder[:i], m.lruOrder[i+1:]...)
			m.lruOrder = append(m.lruOrder, k)
			break
		}
	}
}

func (m *Manager) removeLRULocked(k string) {
	for i, id := range m.lruOrder {
		if id == k {
			m.lruOrder = append(m.lruOrder[:i], m.lruOrder[i+1:]...)
			break
		}
	}
}

func (m *Manager) evictOldestLocked() bool {
	if len(m.lruOrder) == 0 {
		return false
	}
	oldest := m.lruOrder[0]
	delete(m.connectors, oldest)
	m.lruOrder = m.lruOrder[1:]
	return true
}

func (m *Manager) cleanupIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for k, cached := range m.connectors {
		if now.Sub(cached.LastUsed) > m.config.IdleTimeout {
			delete(m.connectors, k)
			m.removeLRULocked(k)
		}
	}
}

func (m *Manager) healthCheckAll(ctx context.Context) {
	m.mu.RLock()
	targets := make([]CachedConnector, 0, len(m.connectors))
	for _, cached := range m.connectors {
		targets = append(targets, *cached)
	}
	m.mu.RUnlock()

	for _, t := range targets {
		checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		ok, msg := t.Connector.TestConnection(checkCtx)
		cancel()
		if ok {
			m.RecordSuccess(t.UserID, t.Exchange)
			continue
		}
		log.Printf("gateway: health check failed user=%s exchange=%s: %s", t.UserID, t.Exchange, msg)
		m.RecordFailure(t.UserID, t.Exchange)
	}
}
