package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	RedirectCacheHits       uint64
	RedirectCacheMisses     uint64
	RedirectDurationCount   uint64
	RedirectDurationTotalNs int64
	MessagesSent            uint64
	MessagesFailed          uint64
	SendDurationCount       uint64
	SendDurationTotalNs     int64
	DispatchQueueDepth      int64
	WebhooksReceived        map[string]uint64
}

// InMemoryRecorder stores metrics in memory for tests and the admin
// metrics endpoint.
type InMemoryRecorder struct {
	redirectCacheHits       uint64
	redirectCacheMisses     uint64
	redirectDurationCount   uint64
	redirectDurationTotalNs int64
	messagesSent            uint64
	messagesFailed          uint64
	sendDurationCount       uint64
	sendDurationTotalNs     int64
	dispatchQueueDepth      int64

	mu               sync.Mutex
	webhooksReceived map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		webhooksReceived: make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	webhooks := make(map[string]uint64, len(m.webhooksReceived))
	for k, v := range m.webhooksReceived {
		webhooks[k] = v
	}
	m.mu.Unlock()

	return Snapshot{
		RedirectCacheHits:       atomic.LoadUint64(&m.redirectCacheHits),
		RedirectCacheMisses:     atomic.LoadUint64(&m.redirectCacheMisses),
		RedirectDurationCount:   atomic.LoadUint64(&m.redirectDurationCount),
		RedirectDurationTotalNs: atomic.LoadInt64(&m.redirectDurationTotalNs),
		MessagesSent:            atomic.LoadUint64(&m.messagesSent),
		MessagesFailed:          atomic.LoadUint64(&m.messagesFailed),
		SendDurationCount:       atomic.LoadUint64(&m.sendDurationCount),
		SendDurationTotalNs:     atomic.LoadInt64(&m.sendDurationTotalNs),
		DispatchQueueDepth:      atomic.LoadInt64(&m.dispatchQueueDepth),
		WebhooksReceived:        webhooks,
	}
}

// IncRedirectCacheHit increments cache hit counter.
func (m *InMemoryRecorder) IncRedirectCacheHit() {
	atomic.AddUint64(&m.redirectCacheHits, 1)
}

// IncRedirectCacheMiss increments cache miss counter.
func (m *InMemoryRecorder) IncRedirectCacheMiss() {
	atomic.AddUint64(&m.redirectCacheMisses, 1)
}

// ObserveRedirectDuration records redirect duration.
func (m *InMemoryRecorder) ObserveRedirectDuration(duration time.Duration) {
	atomic.AddUint64(&m.redirectDurationCount, 1)
	atomic.AddInt64(&m.redirectDurationTotalNs, duration.Nanoseconds())
}

// IncMessageSent increments the sent or failed counter.
func (m *InMemoryRecorder) IncMessageSent(status string) {
	if status == "sent" {
		atomic.AddUint64(&m.messagesSent, 1)
	} else {
		atomic.AddUint64(&m.messagesFailed, 1)
	}
}

// ObserveSendDuration records one provider send round trip.
func (m *InMemoryRecorder) ObserveSendDuration(duration time.Duration) {
	atomic.AddUint64(&m.sendDurationCount, 1)
	atomic.AddInt64(&m.sendDurationTotalNs, duration.Nanoseconds())
}

// SetDispatchQueueDepth records the pending ledger size.
func (m *InMemoryRecorder) SetDispatchQueueDepth(depth int64) {
	atomic.StoreInt64(&m.dispatchQueueDepth, depth)
}

// IncEngagementEventPublished is tracked only in aggregate for now.
func (m *InMemoryRecorder) IncEngagementEventPublished(status string) {}

// IncEngagementEventProcessed is tracked only in aggregate for now.
func (m *InMemoryRecorder) IncEngagementEventProcessed(status string) {}

// ObserveEngagementBatchSize is a no-op in the in-memory recorder.
func (m *InMemoryRecorder) ObserveEngagementBatchSize(size int) {}

// ObserveEngagementBatchDuration is a no-op in the in-memory recorder.
func (m *InMemoryRecorder) ObserveEngagementBatchDuration(duration time.Duration) {}

// ObserveEngagementIngestLag is a no-op in the in-memory recorder.
func (m *InMemoryRecorder) ObserveEngagementIngestLag(lag time.Duration) {}

// IncWebhookReceived counts provider webhook events by status.
func (m *InMemoryRecorder) IncWebhookReceived(status string) {
	m.mu.Lock()
	m.webhooksReceived[status]++
	m.mu.Unlock()
}
