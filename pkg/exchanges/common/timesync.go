package common

import (
	"context"
	"sync"
	"time"
)

// Clock returns the current time. Tests replace it to get stable signatures.
type Clock func() time.Time

// TimeSync keeps the offset between the local clock and an exchange server.
// Request timestamps are taken from Now so they stay inside the exchange's
// receive window on a drifting host.
type TimeSync struct {
	clock Clock

	mu       sync.RWMutex
	offset   int64 // ms, server - local
	lastSync time.Time
}

// NewTimeSync creates a TimeSync on top of clock (time.Now when nil).
func NewTimeSync(clock Clock) *TimeSync {
	if clock == nil {
		clock = time.Now
	}
	return &TimeSync{clock: clock}
}

// Sync measures the offset using serverTime, assuming symmetric latency.
func (ts *TimeSync) Sync(ctx context.Context, serverTime func(context.Context) (int64, error)) error {
	before := ts.clock().UnixMilli()
	server, err := serverTime(ctx)
	if err != nil {
		return err
	}
	after := ts.clock().UnixMilli()
	local := before + (after-before)/2

	ts.mu.Lock()
	ts.offset = server - local
	ts.lastSync = ts.clock()
	ts.mu.Unlock()
	return nil
}

// NowMillis returns the adjusted time in milliseconds.
func (ts *TimeSync) NowMillis() int64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.clock().UnixMilli() + ts.offset
}

// Offset returns the current offset in milliseconds.
func (ts *TimeSync) Offset() int64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.offset
}

// LastSync returns when Sync last succeeded.
func (ts *TimeSync) LastSync() time.Time {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.lastSync
}
