package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncRedirectCacheHit is a no-op.
func (n *NoopRecorder) IncRedirectCacheHit() {}

// IncRedirectCacheMiss is a no-op.
func (n *NoopRecorder) IncRedirectCacheMiss() {}

// ObserveRedirectDuration is a no-op.
func (n *NoopRecorder) ObserveRedirectDuration(duration time.Duration) {}

// IncMessageSent is a no-op.
func (n *NoopRecorder) IncMessageSent(status string) {}

// ObserveSendDuration is a no-op.
func (n *NoopRecorder) ObserveSendDuration(duration time.Duration) {}

// SetDispatchQueueDepth is a no-op.
func (n *NoopRecorder) SetDispatchQueueDepth(depth int64) {}

// IncEngagementEventPublished is a no-op.
func (n *NoopRecorder) IncEngagementEventPublished(status string) {}

// IncEngagementEventProcessed is a no-op.
func (n *NoopRecorder) IncEngagementEventProcessed(status string) {}

// ObserveEngagementBatchSize is a no-op.
func (n *NoopRecorder) ObserveEngagementBatchSize(size int) {}

// ObserveEngagementBatchDuration is a no-op.
func (n *NoopRecorder) ObserveEngagementBatchDuration(duration time.Duration) {}

// ObserveEngagementIngestLag is a no-op.
func (n *NoopRecorder) ObserveEngagementIngestLag(lag time.Duration) {}

// IncWebhookReceived is a no-op.
func (n *NoopRecorder) IncWebhookReceived(status string) {}
