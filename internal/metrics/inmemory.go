package metrics

import "sync/atomic"

// Snapshot captures current in-memory counters.
type Snapshot struct {
	CirclesCreated   uint64
	CirclesDisbanded uint64
	MembersAdded     uint64
	MembersRemoved   uint64

	CheckInsRequested uint64
	CheckInsApproved  uint64
	CheckInsDeclined  uint64
	GrantReadsServed  uint64
	GrantReadsExpired uint64

	AlertsPosted      uint64
	AlertsResolved    uint64
	AlertsFlagged     uint64
	AlertsReinstated  uint64
	SightingsReported uint64

	DevicesInvited   uint64
	DevicesConsented uint64
	DevicesRevoked   uint64

	Conflicts          uint64
	LocationPushesHTTP uint64
	LocationPushesMQTT uint64
	EventsPublished    uint64
	EventsDropped      uint64

	EventsAudited      uint64
	EventsAuditFailed  uint64
	EventsDeadLettered uint64
}

// InMemoryRecorder stores metrics in memory.
type InMemoryRecorder struct {
	circlesCreated   atomic.Uint64
	circlesDisbanded atomic.Uint64
	membersAdded     atomic.Uint64
	membersRemoved   atomic.Uint64

	checkInsRequested atomic.Uint64
	checkInsApproved  atomic.Uint64
	checkInsDeclined  atomic.Uint64
	grantReadsServed  atomic.Uint64
	grantReadsExpired atomic.Uint64

	alertsPosted      atomic.Uint64
	alertsResolved    atomic.Uint64
	alertsFlagged     atomic.Uint64
	alertsReinstated  atomic.Uint64
	sightingsReported atomic.Uint64

	devicesInvited   atomic.Uint64
	devicesConsented atomic.Uint64
	devicesRevoked   atomic.Uint64

	conflicts          atomic.Uint64
	locationPushesHTTP atomic.Uint64
	locationPushesMQTT atomic.Uint64
	eventsPublished    atomic.Uint64
	eventsDropped      atomic.Uint64

	eventsAudited      atomic.Uint64
	eventsAuditFailed  atomic.Uint64
	eventsDeadLettered atomic.Uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		CirclesCreated:     m.circlesCreated.Load(),
		CirclesDisbanded:   m.circlesDisbanded.Load(),
		MembersAdded:       m.membersAdded.Load(),
		MembersRemoved:     m.membersRemoved.Load(),
		CheckInsRequested:  m.checkInsRequested.Load(),
		CheckInsApproved:   m.checkInsApproved.Load(),
		CheckInsDeclined:   m.checkInsDeclined.Load(),
		GrantReadsServed:   m.grantReadsServed.Load(),
		GrantReadsExpired:  m.grantReadsExpired.Load(),
		AlertsPosted:       m.alertsPosted.Load(),
		AlertsResolved:     m.alertsResolved.Load(),
		AlertsFlagged:      m.alertsFlagged.Load(),
		AlertsReinstated:   m.alertsReinstated.Load(),
		SightingsReported:  m.sightingsReported.Load(),
		DevicesInvited:     m.devicesInvited.Load(),
		DevicesConsented:   m.devicesConsented.Load(),
		DevicesRevoked:     m.devicesRevoked.Load(),
		Conflicts:          m.conflicts.Load(),
		LocationPushesHTTP: m.locationPushesHTTP.Load(),
		LocationPushesMQTT: m.locationPushesMQTT.Load(),
		EventsPublished:    m.eventsPublished.Load(),
		EventsDropped:      m.eventsDropped.Load(),
		EventsAudited:      m.eventsAudited.Load(),
		EventsAuditFailed:  m.eventsAuditFailed.Load(),
		EventsDeadLettered: m.eventsDeadLettered.Load(),
	}
}

func (m *InMemoryRecorder) IncCircleCreated()   { m.circlesCreated.Add(1) }
func (m *InMemoryRecorder) IncCircleDisbanded() { m.circlesDisbanded.Add(1) }
func (m *InMemoryRecorder) IncMemberAdded()     { m.membersAdded.Add(1) }
func (m *InMemoryRecorder) IncMemberRemoved()   { m.membersRemoved.Add(1) }

func (m *InMemoryRecorder) IncCheckInRequested() { m.checkInsRequested.Add(1) }

// IncCheckInResponded counts responses by decision.
func (m *InMemoryRecorder) IncCheckInResponded(decision string) {
	switch decision {
	case "approve":
		m.checkInsApproved.Add(1)
	case "decline":
		m.checkInsDeclined.Add(1)
	}
}

// IncGrantRead counts location reads that went through a check-in grant.
func (m *InMemoryRecorder) IncGrantRead(result string) {
	switch result {
	case "served":
		m.grantReadsServed.Add(1)
	case "expired":
		m.grantReadsExpired.Add(1)
	}
}

func (m *InMemoryRecorder) IncAlertPosted()      { m.alertsPosted.Add(1) }
func (m *InMemoryRecorder) IncSightingReported() { m.sightingsReported.Add(1) }

// IncAlertTransition counts alert status changes by target status.
func (m *InMemoryRecorder) IncAlertTransition(status string) {
	switch status {
	case "resolved":
		m.alertsResolved.Add(1)
	case "pending_moderation":
		m.alertsFlagged.Add(1)
	case "active":
		m.alertsReinstated.Add(1)
	}
}

// IncDeviceTransition counts device status changes by target status.
func (m *InMemoryRecorder) IncDeviceTransition(status string) {
	switch status {
	case "pending":
		m.devicesInvited.Add(1)
	case "active":
		m.devicesConsented.Add(1)
	case "revoked":
		m.devicesRevoked.Add(1)
	}
}

func (m *InMemoryRecorder) IncConflict() { m.conflicts.Add(1) }

// IncLocationPush counts location updates by ingest source.
func (m *InMemoryRecorder) IncLocationPush(source string) {
	switch source {
	case "http":
		m.locationPushesHTTP.Add(1)
	case "mqtt":
		m.locationPushesMQTT.Add(1)
	}
}

// IncEventPublished counts workflow events sent to the stream.
func (m *InMemoryRecorder) IncEventPublished(status string) {
	switch status {
	case "success":
		m.eventsPublished.Add(1)
	case "dropped":
		m.eventsDropped.Add(1)
	}
}

// IncEventAudited counts events copied from the stream into the audit log.
func (m *InMemoryRecorder) IncEventAudited(status string) {
	switch status {
	case "success":
		m.eventsAudited.Add(1)
	case "failed":
		m.eventsAuditFailed.Add(1)
	case "dead_lettered":
		m.eventsDeadLettered.Add(1)
	}
}
