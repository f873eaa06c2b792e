// Package metrics provides lightweight, lock-free counters using atomic
// operations so they impose minimal overhead on the gateway's hot paths.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics tracks aggregate statistics for one gateway process. All counters
// are accessed exclusively through atomic operations: no mutex contention
// between the Cursor Engine, WebChannel, and Gateway goroutines that update
// them concurrently.
type Metrics struct {
	RPCTotal   uint64
	RPCSuccess uint64
	RPCFailed  uint64

	CursorPagesFetched uint64

	WebChannelReconnects uint64
	WebChannelFrames     uint64

	MarkReadDispatched uint64
	MarkReadDropped    uint64

	WSClientsActive int64

	startTime time.Time
}

// NewMetrics creates a Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

func (m *Metrics) IncRPCTotal()   { atomic.AddUint64(&m.RPCTotal, 1) }
func (m *Metrics) IncRPCSuccess() { atomic.AddUint64(&m.RPCSuccess, 1) }
func (m *Metrics) IncRPCFailed()  { atomic.AddUint64(&m.RPCFailed, 1) }

func (m *Metrics) AddCursorPage() { atomic.AddUint64(&m.CursorPagesFetched, 1) }

func (m *Metrics) IncWebChannelReconnect() { atomic.AddUint64(&m.WebChannelReconnects, 1) }
func (m *Metrics) IncWebChannelFrame()     { atomic.AddUint64(&m.WebChannelFrames, 1) }

func (m *Metrics) IncMarkReadDispatched() { atomic.AddUint64(&m.MarkReadDispatched, 1) }
func (m *Metrics) IncMarkReadDropped()    { atomic.AddUint64(&m.MarkReadDropped, 1) }

func (m *Metrics) WSClientConnected()    { atomic.AddInt64(&m.WSClientsActive, 1) }
func (m *Metrics) WSClientDisconnected() { atomic.AddInt64(&m.WSClientsActive, -1) }

// RPCsPerSecond returns the average RPC rate since the Metrics instance was
// created. Returns 0 if called in the same wall-clock second as creation.
func (m *Metrics) RPCsPerSecond() float64 {
	elapsed := time.Since(m.startTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&m.RPCTotal)) / elapsed
}

// Snapshot is a point-in-time copy of the counters suitable for /health or
// periodic logging.
type Snapshot struct {
	RPCTotal             uint64
	RPCSuccess           uint64
	RPCFailed            uint64
	CursorPagesFetched   uint64
	WebChannelReconnects uint64
	WebChannelFrames     uint64
	MarkReadDispatched   uint64
	MarkReadDropped      uint64
	WSClientsActive      int64
}

// Snapshot returns a Snapshot of all counters. Because the loads are not
// performed under a single lock, the result may be very slightly
// inconsistent at nanosecond granularity, which is acceptable for
// monitoring purposes.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		RPCTotal:             atomic.LoadUint64(&m.RPCTotal),
		RPCSuccess:           atomic.LoadUint64(&m.RPCSuccess),
		RPCFailed:            atomic.LoadUint64(&m.RPCFailed),
		CursorPagesFetched:   atomic.LoadUint64(&m.CursorPagesFetched),
		WebChannelReconnects: atomic.LoadUint64(&m.WebChannelReconnects),
		WebChannelFrames:     atomic.LoadUint64(&m.WebChannelFrames),
		MarkReadDispatched:   atomic.LoadUint64(&m.MarkReadDispatched),
		MarkReadDropped:      atomic.LoadUint64(&m.MarkReadDropped),
		WSClientsActive:      atomic.LoadInt64(&m.WSClientsActive),
	}
}
