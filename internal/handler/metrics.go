package handler

import (
	"fmt"
	"net/http"

	"github.com/familyshare/familyshare/internal/metrics"
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

	writeMetric(w, "familyshare_circles_created_total %d\n", snap.CirclesCreated)
	writeMetric(w, "familyshare_circles_disbanded_total %d\n", snap.CirclesDisbanded)
	writeMetric(w, "familyshare_circle_members_total{change=\"added\"} %d\n", snap.MembersAdded)
	writeMetric(w, "familyshare_circle_members_total{change=\"removed\"} %d\n", snap.MembersRemoved)

	writeMetric(w, "familyshare_check_ins_requested_total %d\n", snap.CheckInsRequested)
	writeMetric(w, "familyshare_check_ins_responded_total{decision=\"approve\"} %d\n", snap.CheckInsApproved)
	writeMetric(w, "familyshare_check_ins_responded_total{decision=\"decline\"} %d\n", snap.CheckInsDeclined)
	writeMetric(w, "familyshare_grant_reads_total{result=\"served\"} %d\n", snap.GrantReadsServed)
	writeMetric(w, "familyshare_grant_reads_total{result=\"expired\"} %d\n", snap.GrantReadsExpired)

	writeMetric(w, "familyshare_alerts_posted_total %d\n", snap.AlertsPosted)
	writeMetric(w, "familyshare_alert_transitions_total{status=\"resolved\"} %d\n", snap.AlertsResolved)
	writeMetric(w, "familyshare_alert_transitions_total{status=\"pending_moderation\"} %d\n", snap.AlertsFlagged)
	writeMetric(w, "familyshare_alert_transitions_total{status=\"active\"} %d\n", snap.AlertsReinstated)
	writeMetric(w, "familyshare_sightings_reported_total %d\n", snap.SightingsReported)

	writeMetric(w, "familyshare_device_transitions_total{status=\"pending\"} %d\n", snap.DevicesInvited)
	writeMetric(w, "familyshare_device_transitions_total{status=\"active\"} %d\n", snap.DevicesConsented)
	writeMetric(w, "familyshare_device_transitions_total{status=\"revoked\"} %d\n", snap.DevicesRevoked)

	writeMetric(w, "familyshare_write_conflicts_total %d\n", snap.Conflicts)
	writeMetric(w, "familyshare_location_pushes_total{source=\"http\"} %d\n", snap.LocationPushesHTTP)
	writeMetric(w, "familyshare_location_pushes_total{source=\"mqtt\"} %d\n", snap.LocationPushesMQTT)
	writeMetric(w, "familyshare_events_published_total{status=\"success\"} %d\n", snap.EventsPublished)
	writeMetric(w, "familyshare_events_published_total{status=\"dropped\"} %d\n", snap.EventsDropped)
	writeMetric(w, "familyshare_events_audited_total{status=\"success\"} %d\n", snap.EventsAudited)
	writeMetric(w, "familyshare_events_audited_total{status=\"failed\"} %d\n", snap.EventsAuditFailed)
	writeMetric(w, "familyshare_events_audited_total{status=\"dead_lettered\"} %d\n", snap.EventsDeadLettered)
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
