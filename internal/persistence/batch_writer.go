// Package persistence batches trade-history writes off the trading loop.
package persistence

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"tradebot/pkg/db"
)

// Sink receives flushed batches. *db.UserQueries satisfies it.
type Sink interface {
	InsertTradeHistory(ctx context.Context, rows []db.TradeHistory) error
}

// BatchWriter buffers trade-history rows and writes them in one transaction
// when the buffer fills or the flush interval passes.
type BatchWriter struct {
	sink        Sink
	buffer      []db.TradeHistory
	mu          sync.Mutex
	maxSize     int
	flushIntval time.Duration
	done        chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup

	totalWrites  atomic.Uint64
	totalBatches atomic.Uint64
	totalErrors  atomic.Uint64
	lastMu       sync.Mutex
	lastSize     int
	lastFlush    time.Time
}

// BatchWriterMetrics provides statistics about batch operations.
type BatchWriterMetrics struct {
	TotalWrites   uint64    `json:"total_writes"`
	TotalBatches  uint64    `json:"total_batches"`
	TotalErrors   uint64    `json:"total_errors"`
	LastBatchSize int       `json:"last_batch_size"`
	LastFlushTime time.Time `json:"last_flush_time"`
}

// NewBatchWriter creates a batch writer with specified parameters.
// maxSize: max rows before auto-flush
// interval: time-based flush interval
func NewBatchWriter(sink Sink, maxSize int, interval time.Duration) *BatchWriter {
	if maxSize <= 0 {
		maxSize = 50
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	bw := &BatchWriter{
		sink:        sink,
		buffer:      make([]db.TradeHistory, 0, maxSize),
		maxSize:     maxSize,
		flushIntval: interval,
		done:        make(chan struct{}),
	}

	bw.wg.Add(1)
	go bw.backgroundFlush()

	return bw
}

// Write queues one row.
func (bw *BatchWriter) Write(row db.TradeHistory) {
	bw.mu.Lock()
	bw.buffer = append(bw.buffer, row)
	shouldFlush := len(bw.buffer) >= bw.maxSize
	bw.mu.Unlock()

	if shouldFlush {
		if err := bw.Flush(); err != nil {
			log.Printf("persistence: flush error: %v", err)
		}
	}
}

// Flush immediately writes all buffered rows.
func (bw *BatchWriter) Flush() error {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return nil
	}
	rows := bw.buffer
	bw.buffer = make([]db.TradeHistory, 0, bw.maxSize)
	bw.mu.Unlock()

	return bw.executeBatch(rows)
}

func (bw *BatchWriter) executeBatch(rows []db.TradeHistory) error {
	bw.totalWrites.Add(uint64(len(rows)))
	bw.totalBatches.Add(1)
	bw.lastMu.Lock()
	bw.lastSize = len(rows)
	bw.lastFlush = time.Now()
	bw.lastMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := bw.sink.InsertTradeHistory(ctx, rows); err != nil {
		bw.totalErrors.Add(1)
		log.Printf("persistence: batch of %d rows failed: %v", len(rows), err)
		return err
	}
	return nil
}

func (bw *BatchWriter) backgroundFlush() {
	defer bw.wg.Done()
	ticker := time.NewTicker(bw.flushIntval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := bw.Flush(); err != nil {
				log.Printf("persistence: background flush error: %v", err)
			}
		case <-bw.done:
			if err := bw.Flush(); err != nil {
				log.Printf("persistence: final flush error: %v", err)
			}
			return
		}
	}
}

// Pending returns the number of queued rows.
func (bw *BatchWriter) Pending() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Metrics returns the current counters.
func (bw *BatchWriter) Metrics() BatchWriterMetrics {
	bw.lastMu.Lock()
	defer bw.lastMu.Unlock()
	return BatchWriterMetrics{
		TotalWrites:   bw.totalWrites.Load(),
		TotalBatches:  bw.totalBatches.Load(),
		TotalErrors:   bw.totalErrors.Load(),
		LastBatchSize: bw.lastSize,
		LastFlushTime: bw.lastFlush,
	}
}

// Close flushes what is left and stops the background loop.
func (bw *BatchWriter) Close() error {
	bw.closeOnce.Do(func() { close(bw.done) })
	bw.wg.Wait()
	return nil
}
