// Package monitor collects process metrics and turns risk and order events
// into alerts.
package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"tradebot/internal/gateway"
)

// SystemMetrics tracks trading activity across every session.
type SystemMetrics struct {
	mu sync.RWMutex

	OrderLatency    *LatencyHistogram
	ExchangeLatency *LatencyHistogram // ticker and balance reads
	LoopLatency     *LatencyHistogram // one pass over a user's exchanges
	APILatency      *LatencyHistogram

	ordersPlaced     atomic.Uint64
	ordersRejected   atomic.Uint64
	signalsGenerated atomic.Uint64
	riskRejections   atomic.Uint64
	mockTrades       atomic.Uint64
	errorsCount      atomic.Uint64
	apiRequests      atomic.Uint64
	apiErrors        atomic.Uint64

	gatewayStats   gateway.PoolStats
	activeSessions int
	started        time.Time
}

// LatencyHistogram tracks latency samples with a sliding window. Stats are
// recomputed lazily.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool
	cachedStats LatencyStats
}

// NewSystemMetrics creates a new metrics instance.
func NewSystemMetrics() *SystemMetrics {
	return &SystemMetrics{
		OrderLatency:    NewLatencyHistogram(1000),
		ExchangeLatency: NewLatencyHistogram(1000),
		LoopLatency:     NewLatencyHistogram(500),
		APILatency:      NewLatencyHistogram(1000),
		started:         time.Now(),
	}
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

// RecordDuration converts duration to ms and records.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg, p50, p95, p99.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty {
		return h.cachedStats
	}

	n := len(h.samples)
	if n == 0 {
		h.cachedStats = LatencyStats{}
		h.dirty = false
		return h.cachedStats
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	pct := func(p float64) float64 {
		i := int(float64(n) * p)
		if i >= n {
			i = n - 1
		}
		return sorted[i]
	}

	h.cachedStats = LatencyStats{
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   sum / float64(n),
		P50:   pct(0.50),
		P95:   pct(0.95),
		P99:   pct(0.99),
		Count: n,
	}
	h.dirty = false
	return h.cachedStats
}

// LatencyStats holds computed latency statistics.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

func (m *SystemMetrics) IncrementOrders()         { m.ordersPlaced.Add(1) }
func (m *SystemMetrics) IncrementRejectedOrders() { m.ordersRejected.Add(1) }
func (m *SystemMetrics) IncrementSignals()        { m.signalsGenerated.Add(1) }
func (m *SystemMetrics) IncrementRiskRejections() { m.riskRejections.Add(1) }
func (m *SystemMetrics) IncrementMockTrades()     { m.mockTrades.Add(1) }
func (m *SystemMetrics) IncrementErrors()         { m.errorsCount.Add(1) }
func (m *SystemMetrics) IncrementAPI()            { m.apiRequests.Add(1) }
func (m *SystemMetrics) IncrementAPIErrors()      { m.apiErrors.Add(1) }

// MetricsSnapshot is a point-in-time copy of SystemMetrics.
type MetricsSnapshot struct {
	OrderLatency     LatencyStats      `json:"order_latency"`
	ExchangeLatency  LatencyStats      `json:"exchange_latency"`
	LoopLatency      LatencyStats      `json:"loop_latency"`
	APILatency       LatencyStats      `json:"api_latency"`
	OrdersPlaced     uint64            `json:"orders_placed"`
	OrdersRejected   uint64            `json:"orders_rejected"`
	SignalsGenerated uint64            `json:"signals_generated"`
	RiskRejections   uint64            `json:"risk_rejections"`
	MockTrades       uint64            `json:"mock_trades"`
	ErrorsCount      uint64            `json:"errors_count"`
	APIRequests      uint64            `json:"api_requests"`
	APIErrors        uint64            `json:"api_errors"`
	GatewayPool      gateway.PoolStats `json:"gateway_pool"`
	ActiveSessions   int               `json:"active_sessions"`
	GoroutineCount   int               `json:"goroutine_count"`
	HeapAlloc        uint64            `json:"heap_alloc_bytes"`
	Uptime           string            `json:"uptime"`
	Timestamp        time.Time         `json:"timestamp"`
}

// Snapshot returns a point-in-time metrics snapshot.
func (m *SystemMetrics) Snapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.mu.RLock()
	gwStats := m.gatewayStats
	sessions := m.activeSessions
	m.mu.RUnlock()

	return MetricsSnapshot{
		OrderLatency:     m.OrderLatency.Stats(),
		ExchangeLatency:  m.ExchangeLatency.Stats(),
		LoopLatency:      m.LoopLatency.Stats(),
		APILatency:       m.APILatency.Stats(),
		OrdersPlaced:     m.ordersPlaced.Load(),
		OrdersRejected:   m.ordersRejected.Load(),
		SignalsGenerated: m.signalsGenerated.Load(),
		RiskRejections:   m.riskRejections.Load(),
		MockTrades:       m.mockTrades.Load(),
		ErrorsCount:      m.errorsCount.Load(),
		APIRequests:      m.apiRequests.Load(),
		APIErrors:        m.apiErrors.Load(),
		GatewayPool:      gwStats,
		ActiveSessions:   sessions,
		GoroutineCount:   runtime.NumGoroutine(),
		HeapAlloc:        memStats.HeapAlloc,
		Uptime:           time.Since(m.started).Round(time.Second).String(),
		Timestamp:        time.Now(),
	}
}

// SetGatewayPoolStats updates connector pool statistics.
func (m *SystemMetrics) SetGatewayPoolStats(stats gateway.PoolStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gatewayStats = stats
}

// SetActiveSessions records how many trading sessions are running.
func (m *SystemMetrics) SetActiveSessions(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeSessions = n
}

// Timer helps measure operation duration.
type Timer struct {
	start     time.Time
	histogram *LatencyHistogram
}

// NewTimer creates a timer that records to the given histogram.
func NewTimer(h *LatencyHistogram) *Timer {
	return &Timer{start: time.Now(), histogram: h}
}

// Stop records elapsed time to histogram.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.histogram != nil {
		t.histogram.RecordDuration(elapsed)
	}
	return elapsed
}
