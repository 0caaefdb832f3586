package metrics

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncCircleCreated()          {}
func (n *NoopRecorder) IncCircleDisbanded()        {}
func (n *NoopRecorder) IncMemberAdded()            {}
func (n *NoopRecorder) IncMemberRemoved()          {}
func (n *NoopRecorder) IncCheckInRequested()       {}
func (n *NoopRecorder) IncCheckInResponded(string) {}
func (n *NoopRecorder) IncGrantRead(string)        {}
func (n *NoopRecorder) IncAlertPosted()            {}
func (n *NoopRecorder) IncAlertTransition(string)  {}
func (n *NoopRecorder) IncSightingReported()       {}
func (n *NoopRecorder) IncDeviceTransition(string) {}
func (n *NoopRecorder) IncConflict()               {}
func (n *NoopRecorder) IncLocationPush(string)     {}
func (n *NoopRecorder) IncEventPublished(string)   {}
func (n *NoopRecorder) IncEventAudited(string)     {}
