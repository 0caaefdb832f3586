package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/familyshare/familyshare/internal/model"
)

func TestCheckIn_ConcreteScenario(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	// C1 created by U1, U2 added and not sharing.
	c1 := h.circleWith(t, "u2")
	if c1.Member("u2").IsSharingLocation {
		t.Fatal("u2 should not be sharing")
	}

	r1, err := h.checkIns.Request(ctx, RequestCheckInInput{CircleID: c1.ID, RequesterID: "u1", TargetID: "u2"})
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if r1.Status != model.CheckInPending {
		t.Fatalf("Status = %s, want pending", r1.Status)
	}
	if r1.RequesterName != "Ana" || r1.TargetName != "Ben" {
		t.Errorf("names = %q/%q", r1.RequesterName, r1.TargetName)
	}

	got, err := h.checkIns.Respond(ctx, RespondInput{
		RequestID: r1.ID,
		ActorID:   "u2",
		Decision:  model.DecisionApprove,
		Duration:  model.ShareOnce,
		Location:  &model.LatLng{Lat: 1, Lng: 1},
	})
	if err != nil {
		t.Fatalf("Respond(approve) error = %v", err)
	}
	if got.Status != model.CheckInApproved {
		t.Errorf("Status = %s, want approved", got.Status)
	}
	if got.Location == nil || *got.Location != (model.LatLng{Lat: 1, Lng: 1}) {
		t.Errorf("Location = %v, want {1 1}", got.Location)
	}
	if got.RespondedAt == nil || !got.RespondedAt.Equal(h.clock.Now()) {
		t.Errorf("RespondedAt = %v", got.RespondedAt)
	}

	_, err = h.checkIns.Respond(ctx, RespondInput{RequestID: r1.ID, ActorID: "u1", Decision: model.DecisionDecline})
	assertErr(t, err, ErrAlreadyResponded, ErrInvalidState)
}

func TestCheckIn_SecondRespondAlwaysFails(t *testing.T) {
	t.Parallel()

	for _, first := range []model.Decision{model.DecisionApprove, model.DecisionDecline} {
		for _, second := range []model.Decision{model.DecisionApprove, model.DecisionDecline} {
			t.Run(string(first)+"_then_"+string(second), func(t *testing.T) {
				h := newHarness(t)
				ctx := context.Background()
				c := h.circleWith(t, "u2")
				req, _ := h.checkIns.Request(ctx, RequestCheckInInput{CircleID: c.ID, RequesterID: "u1", TargetID: "u2"})

				in := RespondInput{RequestID: req.ID, ActorID: "u2", Duration: model.ShareOneHour}
				in.Decision = first
				done, err := h.checkIns.Respond(ctx, in)
				if err != nil {
					t.Fatalf("first Respond() error = %v", err)
				}

				in.Decision = second
				_, err = h.checkIns.Respond(ctx, in)
				assertErr(t, err, ErrAlreadyResponded, ErrInvalidState)

				stored, _ := h.store.GetCheckIn(ctx, req.ID)
				if stored.Status != done.Status {
					t.Errorf("Status changed to %s after second response", stored.Status)
				}
			})
		}
	}
}

func TestCheckIn_ConcurrentRespond_OneWinner(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	c := h.circleWith(t, "u2")
	req, _ := h.checkIns.Request(ctx, RequestCheckInInput{CircleID: c.ID, RequesterID: "u1", TargetID: "u2"})

	var wins, invalid atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		decision := model.DecisionApprove
		if i%2 == 1 {
			decision = model.DecisionDecline
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.checkIns.Respond(ctx, RespondInput{RequestID: req.ID, ActorID: "u2", Decision: decision, Duration: model.ShareOnce})
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrInvalidState), errors.Is(err, ErrConflict):
				invalid.Add(1)
			default:
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("winners = %d, want 1", wins.Load())
	}
	if invalid.Load() != 19 {
		t.Errorf("losers = %d, want 19", invalid.Load())
	}
}

func TestCheckIn_Request_Errors(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	c := h.circleWith(t, "u2")

	tests := []struct {
		name    string
		input   RequestCheckInInput
		wantErr error
		kind    error
	}{
		{"target_outside", RequestCheckInInput{CircleID: c.ID, RequesterID: "u1", TargetID: "u3"}, ErrNotInSameCircle, ErrNotAuthorized},
		{"requester_outside", RequestCheckInInput{CircleID: c.ID, RequesterID: "u3", TargetID: "u2"}, ErrNotInSameCircle, ErrNotAuthorized},
		{"self", RequestCheckInInput{CircleID: c.ID, RequesterID: "u1", TargetID: "u1"}, ErrSelfCheckIn, ErrValidationFailed},
		{"no_circle", RequestCheckInInput{CircleID: "missing", RequesterID: "u1", TargetID: "u2"}, ErrCircleNotFound, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.checkIns.Request(ctx, tt.input)
			assertErr(t, err, tt.wantErr, tt.kind)
		})
	}
}

func TestCheckIn_Respond_Errors(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	c := h.circleWith(t, "u2", "u3")
	req, _ := h.checkIns.Request(ctx, RequestCheckInInput{CircleID: c.ID, RequesterID: "u1", TargetID: "u2"})

	tests := []struct {
		name    string
		input   RespondInput
		wantErr error
		kind    error
	}{
		{"requester_responds", RespondInput{RequestID: req.ID, ActorID: "u1", Decision: model.DecisionApprove, Duration: model.ShareOnce}, ErrNotTarget, ErrNotAuthorized},
		{"third_party", RespondInput{RequestID: req.ID, ActorID: "u3", Decision: model.DecisionDecline}, ErrNotTarget, ErrNotAuthorized},
		{"missing_duration", RespondInput{RequestID: req.ID, ActorID: "u2", Decision: model.DecisionApprove}, ErrDurationRequired, ErrValidationFailed},
		{"bad_duration", RespondInput{RequestID: req.ID, ActorID: "u2", Decision: model.DecisionApprove, Duration: "forever"}, ErrDurationRequired, ErrValidationFailed},
		{"bad_decision", RespondInput{RequestID: req.ID, ActorID: "u2", Decision: "maybe"}, ErrInvalidDecision, ErrValidationFailed},
		{"bad_location", RespondInput{RequestID: req.ID, ActorID: "u2", Decision: model.DecisionApprove, Duration: model.ShareOnce, Location: &model.LatLng{Lat: 100}}, ErrInvalidLocation, ErrValidationFailed},
		{"missing", RespondInput{RequestID: "nope", ActorID: "u2", Decision: model.DecisionDecline}, ErrCheckInNotFound, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.checkIns.Respond(ctx, tt.input)
			assertErr(t, err, tt.wantErr, tt.kind)
		})
	}

	stored, _ := h.store.GetCheckIn(ctx, req.ID)
	if !stored.IsPending() {
		t.Errorf("failed responses must not change state, got %s", stored.Status)
	}
}

func TestCheckIn_Respond_TargetLeftCircle(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	c := h.circleWith(t, "u2")
	req, _ := h.checkIns.Request(ctx, RequestCheckInInput{CircleID: c.ID, RequesterID: "u2", TargetID: "u1"})

	if _, err := h.circles.RemoveMember(ctx, MembershipInput{CircleID: c.ID, UserID: "u2", ActorID: "u2"}); err != nil {
		t.Fatalf("RemoveMember() error = %v", err)
	}

	_, err := h.checkIns.Respond(ctx, RespondInput{RequestID: req.ID, ActorID: "u1", Decision: model.DecisionApprove, Duration: model.ShareOnce})
	assertErr(t, err, ErrNotInSameCircle, ErrNotAuthorized)
}

func TestCheckIn_DeclineIgnoresShareFields(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	c := h.circleWith(t, "u2")
	req, _ := h.checkIns.Request(ctx, RequestCheckInInput{CircleID: c.ID, RequesterID: "u1", TargetID: "u2"})

	got, err := h.checkIns.Respond(ctx, RespondInput{
		RequestID: req.ID,
		ActorID:   "u2",
		Decision:  model.DecisionDecline,
		Location:  &model.LatLng{Lat: 5, Lng: 5},
		PhotoURL:  "https://img.example.com/x.jpg",
		Duration:  model.ShareOneHour,
	})
	if err != nil {
		t.Fatalf("Respond(decline) error = %v", err)
	}
	if got.Status != model.CheckInDeclined || got.RespondedAt == nil {
		t.Errorf("got = %+v", got)
	}
	if got.Location != nil || got.PhotoURL != "" || got.Duration != "" || got.Grant != nil {
		t.Errorf("decline stored share fields: %+v", got)
	}
}

func TestCheckIn_OnceGrant_SingleRead(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	// B shares, A requests, B approves once.
	c := h.circleWith(t, "u2", "u3")
	if _, err := h.circles.SetSharing(ctx, c.ID, "u2", true); err != nil {
		t.Fatalf("SetSharing() error = %v", err)
	}
	if _, err := h.circles.UpdateLocation(ctx, "u2", model.LatLng{Lat: 5, Lng: 5}, time.Time{}); err != nil {
		t.Fatalf("UpdateLocation() error = %v", err)
	}
	req, _ := h.checkIns.Request(ctx, RequestCheckInInput{CircleID: c.ID, RequesterID: "u1", TargetID: "u2"})
	if _, err := h.checkIns.Respond(ctx, RespondInput{RequestID: req.ID, ActorID: "u2", Decision: model.DecisionApprove, Duration: model.ShareOnce, Location: &model.LatLng{Lat: 1, Lng: 1}}); err != nil {
		t.Fatalf("Respond() error = %v", err)
	}

	first, err := h.circles.LocationOf(ctx, c.ID, "u1", "u2")
	if err != nil {
		t.Fatalf("first LocationOf() error = %v", err)
	}
	if first.Source != model.SourceCheckIn || first.Location == nil || first.Location.Lat != 1 || first.CheckInID != req.ID {
		t.Fatalf("first read = %+v, want check-in location", first)
	}

	stored, err := h.store.GetCheckIn(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetCheckIn() error = %v", err)
	}
	if stored.Grant == nil || !stored.Grant.Consumed || stored.Grant.ConsumedAt == nil {
		t.Fatalf("grant after first read = %+v, want consumed", stored.Grant)
	}

	second, err := h.circles.LocationOf(ctx, c.ID, "u1", "u2")
	if err != nil {
		t.Fatalf("second LocationOf() error = %v", err)
	}
	if !second.Expired || second.Source == model.SourceCheckIn || second.CheckInID != "" {
		t.Errorf("second read = %+v, want expired marker and no check-in location", second)
	}
	if second.Location != nil && second.Location.Lat == 1 {
		t.Errorf("second read served the spent check-in location: %+v", second.Location)
	}

	third, _ := h.circles.LocationOf(ctx, c.ID, "u3", "u2")
	if third.Source != model.SourceLive || third.Expired || third.Location == nil || third.Location.Lat != 5 {
		t.Errorf("third-party read = %+v, want unaffected live view", third)
	}

	snap := h.metrics.Snapshot()
	if snap.GrantReadsServed != 1 || snap.GrantReadsExpired != 1 {
		t.Errorf("grant reads = %d served / %d expired", snap.GrantReadsServed, snap.GrantReadsExpired)
	}
}

func TestCheckIn_OnceGrant_SpentWhileSharingStaysSpent(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	c := h.circleWith(t, "u2")
	if _, err := h.circles.SetSharing(ctx, c.ID, "u2", true); err != nil {
		t.Fatalf("SetSharing() error = %v", err)
	}
	req, _ := h.checkIns.Request(ctx, RequestCheckInInput{CircleID: c.ID, RequesterID: "u1", TargetID: "u2"})
	_, _ = h.checkIns.Respond(ctx, RespondInput{RequestID: req.ID, ActorID: "u2", Decision: model.DecisionApprove, Duration: model.ShareOnce, Location: &model.LatLng{Lat: 1, Lng: 1}})

	if view, _ := h.circles.LocationOf(ctx, c.ID, "u1", "u2"); view.Source != model.SourceCheckIn {
		t.Fatalf("first read = %+v, want check-in", view)
	}

	if _, err := h.circles.SetSharing(ctx, c.ID, "u2", false); err != nil {
		t.Fatalf("SetSharing(false) error = %v", err)
	}
	view, _ := h.circles.LocationOf(ctx, c.ID, "u1", "u2")
	if view.Location != nil || !view.Expired || view.Source != model.SourceNone {
		t.Errorf("read after sharing off = %+v, want expired marker without location", view)
	}
}

func TestCheckIn_OneHourGrant_LiveWinsWhileSharing(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	c := h.circleWith(t, "u2")
	if _, err := h.circles.SetSharing(ctx, c.ID, "u2", true); err != nil {
		t.Fatalf("SetSharing() error = %v", err)
	}
	if _, err := h.circles.UpdateLocation(ctx, "u2", model.LatLng{Lat: 5, Lng: 5}, time.Time{}); err != nil {
		t.Fatalf("UpdateLocation() error = %v", err)
	}
	req, _ := h.checkIns.Request(ctx, RequestCheckInInput{CircleID: c.ID, RequesterID: "u1", TargetID: "u2"})
	_, _ = h.checkIns.Respond(ctx, RespondInput{RequestID: req.ID, ActorID: "u2", Decision: model.DecisionApprove, Duration: model.ShareOneHour, Location: &model.LatLng{Lat: 1, Lng: 1}})

	for i := 0; i < 2; i++ {
		view, _ := h.circles.LocationOf(ctx, c.ID, "u1", "u2")
		if view.Source != model.SourceLive || view.Expired || view.Location == nil || view.Location.Lat != 5 {
			t.Fatalf("read %d = %+v, want live view", i, view)
		}
	}
}

func TestCheckIn_OnceGrant_ConcurrentReadersSeeItOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	c := h.circleWith(t, "u2")
	req, _ := h.checkIns.Request(ctx, RequestCheckInInput{CircleID: c.ID, RequesterID: "u1", TargetID: "u2"})
	_, _ = h.checkIns.Respond(ctx, RespondInput{RequestID: req.ID, ActorID: "u2", Decision: model.DecisionApprove, Duration: model.ShareOnce, Location: &model.LatLng{Lat: 1, Lng: 1}})

	var served atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			view, err := h.circles.LocationOf(ctx, c.ID, "u1", "u2")
			if err == nil && view.Location != nil {
				served.Add(1)
			}
		}()
	}
	wg.Wait()

	if served.Load() != 1 {
		t.Errorf("reads served = %d, want 1", served.Load())
	}
}

func TestCheckIn_OneHourGrant_Boundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		after      time.Duration
		wantActive bool
	}{
		{"immediately", 0, true},
		{"3599s", 3599 * time.Second, true},
		{"3600s", 3600 * time.Second, false},
		{"3601s", 3601 * time.Second, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			c := h.circleWith(t, "u2")
			req, _ := h.checkIns.Request(ctx, RequestCheckInInput{CircleID: c.ID, RequesterID: "u1", TargetID: "u2"})
			if _, err := h.checkIns.Respond(ctx, RespondInput{RequestID: req.ID, ActorID: "u2", Decision: model.DecisionApprove, Duration: model.ShareOneHour, Location: &model.LatLng{Lat: 2, Lng: 2}}); err != nil {
				t.Fatalf("Respond() error = %v", err)
			}

			h.clock.Advance(tt.after)

			// Repeated reads inside the window are allowed.
			for i := 0; i < 2; i++ {
				view, err := h.circles.LocationOf(ctx, c.ID, "u1", "u2")
				if err != nil {
					t.Fatalf("LocationOf() error = %v", err)
				}
				active := view.Source == model.SourceCheckIn && view.Location != nil
				if active != tt.wantActive {
					t.Fatalf("read %d at +%s: active = %v, want %v (%+v)", i, tt.after, active, tt.wantActive, view)
				}
				if !tt.wantActive && !view.Expired {
					t.Errorf("expired grant should be marked expired")
				}
			}
		})
	}
}

func TestCheckIn_ListAndGet(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	c := h.circleWith(t, "u2", "u3")

	out, _ := h.checkIns.Request(ctx, RequestCheckInInput{CircleID: c.ID, RequesterID: "u1", TargetID: "u2"})
	h.clock.Advance(time.Second)
	in, _ := h.checkIns.Request(ctx, RequestCheckInInput{CircleID: c.ID, RequesterID: "u3", TargetID: "u1"})
	_, _ = h.checkIns.Respond(ctx, RespondInput{RequestID: out.ID, ActorID: "u2", Decision: model.DecisionApprove, Duration: model.ShareOnce, Location: &model.LatLng{Lat: 9, Lng: 9}, PhotoURL: "https://img.example.com/p.jpg"})

	all, err := h.checkIns.ListCheckIns(ctx, ListCheckInsInput{UserID: "u1"})
	if err != nil {
		t.Fatalf("ListCheckIns() error = %v", err)
	}
	if len(all) != 2 || all[0].ID != in.ID || all[1].ID != out.ID {
		t.Fatalf("ListCheckIns() = %d items, want [in out]", len(all))
	}
	if all[1].Location != nil || all[1].PhotoURL != "" {
		t.Error("requester listing must not carry the shared location")
	}

	incoming, _ := h.checkIns.ListCheckIns(ctx, ListCheckInsInput{UserID: "u1", Direction: DirectionIncoming})
	if len(incoming) != 1 || incoming[0].ID != in.ID {
		t.Errorf("incoming = %d items", len(incoming))
	}

	_, err = h.checkIns.ListCheckIns(ctx, ListCheckInsInput{UserID: "u1", Direction: "sideways"})
	assertErr(t, err, ErrInvalidDirection, ErrValidationFailed)

	targetView, err := h.checkIns.GetCheckIn(ctx, out.ID, "u2")
	if err != nil || targetView.Location == nil {
		t.Errorf("target GetCheckIn() = %+v, %v", targetView, err)
	}
	_, err = h.checkIns.GetCheckIn(ctx, out.ID, "u3")
	assertErr(t, err, ErrNotParticipant, ErrNotAuthorized)
}
