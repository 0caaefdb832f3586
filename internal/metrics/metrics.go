// Package metrics provides lightweight hooks for instrumentation.
package metrics

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Circle registry
	IncCircleCreated()
	IncCircleDisbanded()
	IncMemberAdded()
	IncMemberRemoved()

	// Check-in protocol
	IncCheckInRequested()
	IncCheckInResponded(decision string) // decision: "approve" or "decline"
	IncGrantRead(result string)          // result: "served" or "expired"

	// Alert board
	IncAlertPosted()
	IncAlertTransition(status string) // status: "resolved", "pending_moderation", "active"
	IncSightingReported()

	// Supervised devices
	IncDeviceTransition(status string) // status: "pending", "active", "revoked"

	// Cross-cutting
	IncConflict()
	IncLocationPush(source string)   // source: "http" or "mqtt"
	IncEventPublished(status string) // status: "success" or "dropped"
	IncEventAudited(status string)   // status: "success", "failed" or "dead_lettered"
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
