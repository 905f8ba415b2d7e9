package handler

import (
	"fmt"
	"net/http"

	"github.com/brinecast/brinecast/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeMetric(w, "brinecast_redirect_cache_hits_total %d\n", snap.RedirectCacheHits)
	writeMetric(w, "brinecast_redirect_cache_misses_total %d\n", snap.RedirectCacheMisses)
	writeMetric(w, "brinecast_redirect_duration_seconds_count %d\n", snap.RedirectDurationCount)
	writeMetric(w, "brinecast_redirect_duration_seconds_sum %.6f\n", float64(snap.RedirectDurationTotalNs)/1e9)

	writeMetric(w, "brinecast_messages_total{status=\"sent\"} %d\n", snap.MessagesSent)
	writeMetric(w, "brinecast_messages_total{status=\"failed\"} %d\n", snap.MessagesFailed)
	writeMetric(w, "brinecast_send_duration_seconds_count %d\n", snap.SendDurationCount)
	writeMetric(w, "brinecast_send_duration_seconds_sum %.6f\n", float64(snap.SendDurationTotalNs)/1e9)
	writeMetric(w, "brinecast_dispatch_queue_depth %d\n", snap.DispatchQueueDepth)

	for status, count := range snap.WebhooksReceived {
		writeMetric(w, "brinecast_webhooks_received_total{status=%q} %d\n", status, count)
	}
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
