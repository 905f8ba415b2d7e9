// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Redirect metrics
	IncRedirectCacheHit()
	IncRedirectCacheMiss()
	ObserveRedirectDuration(duration time.Duration)

	// Dispatch metrics
	IncMessageSent(status string) // status: "sent" or "failed"
	ObserveSendDuration(duration time.Duration)
	SetDispatchQueueDepth(depth int64)

	// Engagement pipeline metrics
	IncEngagementEventPublished(status string) // status: "success" or "dropped"
	IncEngagementEventProcessed(status string) // status: "success", "failed", "skipped"
	ObserveEngagementBatchSize(size int)
	ObserveEngagementBatchDuration(duration time.Duration)
	ObserveEngagementIngestLag(lag time.Duration)

	// Webhook metrics
	IncWebhookReceived(status string) // provider event status
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
