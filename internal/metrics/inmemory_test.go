package metrics

import (
	"testing"
	"time"
)

func TestInMemoryRecorder_Snapshot(t *testing.T) {
	t.Parallel()

	rec := NewInMemory()

	rec.IncRedirectCacheHit()
	rec.IncRedirectCacheHit()
	rec.IncRedirectCacheMiss()
	rec.ObserveRedirectDuration(5 * time.Millisecond)
	rec.IncMessageSent("sent")
	rec.IncMessageSent("sent")
	rec.IncMessageSent("failed")
	rec.ObserveSendDuration(100 * time.Millisecond)
	rec.SetDispatchQueueDepth(37)
	rec.IncWebhookReceived("delivered")
	rec.IncWebhookReceived("delivered")
	rec.IncWebhookReceived("failed")

	snap := rec.Snapshot()

	if snap.RedirectCacheHits != 2 {
		t.Errorf("RedirectCacheHits = %d, want 2", snap.RedirectCacheHits)
	}
	if snap.RedirectCacheMisses != 1 {
		t.Errorf("RedirectCacheMisses = %d, want 1", snap.RedirectCacheMisses)
	}
	if snap.RedirectDurationCount != 1 {
		t.Errorf("RedirectDurationCount = %d, want 1", snap.RedirectDurationCount)
	}
	if snap.RedirectDurationTotalNs != (5 * time.Millisecond).Nanoseconds() {
		t.Errorf("RedirectDurationTotalNs = %d, want %d", snap.RedirectDurationTotalNs, (5 * time.Millisecond).Nanoseconds())
	}
	if snap.MessagesSent != 2 {
		t.Errorf("MessagesSent = %d, want 2", snap.MessagesSent)
	}
	if snap.MessagesFailed != 1 {
		t.Errorf("MessagesFailed = %d, want 1", snap.MessagesFailed)
	}
	if snap.SendDurationCount != 1 {
		t.Errorf("SendDurationCount = %d, want 1", snap.SendDurationCount)
	}
	if snap.DispatchQueueDepth != 37 {
		t.Errorf("DispatchQueueDepth = %d, want 37", snap.DispatchQueueDepth)
	}
	if snap.WebhooksReceived["delivered"] != 2 {
		t.Errorf("WebhooksReceived[delivered] = %d, want 2", snap.WebhooksReceived["delivered"])
	}
	if snap.WebhooksReceived["failed"] != 1 {
		t.Errorf("WebhooksReceived[failed] = %d, want 1", snap.WebhooksReceived["failed"])
	}
}

func TestInMemoryRecorder_SnapshotIsCopy(t *testing.T) {
	t.Parallel()

	rec := NewInMemory()
	rec.IncWebhookReceived("queued")

	snap := rec.Snapshot()
	snap.WebhooksReceived["queued"] = 99

	if got := rec.Snapshot().WebhooksReceived["queued"]; got != 1 {
		t.Errorf("recorder counter mutated through snapshot copy: got %d, want 1", got)
	}
}

func TestNoopRecorder_ImplementsRecorder(t *testing.T) {
	t.Parallel()

	var _ Recorder = NewNoop()
	var _ Recorder = NewInMemory()
}
