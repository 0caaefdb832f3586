package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/familyshare/familyshare/internal/auth"
	"github.com/familyshare/familyshare/internal/handler/dto"
	"github.com/familyshare/familyshare/internal/metrics"
	"github.com/familyshare/familyshare/internal/model"
	"github.com/familyshare/familyshare/internal/pseudonym"
	"github.com/familyshare/familyshare/internal/service"
	"github.com/familyshare/familyshare/internal/session"
	"github.com/familyshare/familyshare/internal/store"
)

type testAPI struct {
	router   http.Handler
	metrics  *metrics.InMemoryRecorder
	sessions *session.Tracker
}

// testAuth trusts X-Test-User and X-Test-Role in place of a bearer token.
func testAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get("X-Test-User"); id != "" {
			ctx := auth.WithIdentity(r.Context(), &model.AuthContext{
				UserID:   id,
				Role:     r.Header.Get("X-Test-Role"),
				IssuedAt: time.Now(),
			})
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	logger := discardLogger()
	recorder := metrics.NewInMemory()
	st := store.NewMemory()
	opts := []service.Option{service.WithMetrics(recorder)}

	pseudonyms, err := pseudonym.New("test-secret")
	if err != nil {
		t.Fatalf("pseudonym.New() error = %v", err)
	}
	sessions := session.NewTracker(session.NewLocalWatermarks(), nil, logger)

	circles := NewCircleHandler(service.NewCircleService(st, opts...), logger, recorder)
	checkIns := NewCheckInHandler(service.NewCheckInService(st, opts...), logger)
	alerts := NewAlertHandler(service.NewAlertService(st, opts...), pseudonyms, logger)
	devices := NewDeviceHandler(service.NewDeviceService(st, opts...), logger)
	me := NewSessionHandler(sessions, logger)
	h := New()

	r := chi.NewRouter()
	r.Use(testAuth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/circles", func(r chi.Router) {
			r.Get("/", circles.List)
			r.Post("/", circles.Create)
			r.Get("/{id}", circles.Get)
			r.Delete("/{id}", circles.Disband)
			r.Post("/{id}/members", circles.AddMember)
			r.Delete("/{id}/members/{userID}", circles.RemoveMember)
			r.Get("/{id}/members/{userID}/location", circles.MemberLocation)
			r.Put("/{id}/sharing", circles.SetSharing)
		})
		r.Route("/check-ins", func(r chi.Router) {
			r.Get("/", checkIns.List)
			r.Post("/", checkIns.Request)
			r.Get("/{id}", checkIns.Get)
			r.Post("/{id}/respond", checkIns.Respond)
		})
		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", alerts.List)
			r.Post("/", alerts.Post)
			r.Get("/{id}", alerts.Get)
			r.Post("/{id}/resolve", alerts.Resolve)
			r.Post("/{id}/flag", alerts.Flag)
			r.Post("/{id}/reinstate", alerts.Reinstate)
			r.Get("/{id}/sightings", alerts.ListSightings)
			r.Post("/{id}/sightings", alerts.ReportSighting)
		})
		r.Get("/moderation/alerts", alerts.ModerationQueue)
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", devices.List)
			r.Post("/", devices.Invite)
			r.Get("/{id}", devices.Get)
			r.Post("/{id}/consent", devices.Consent)
			r.Post("/{id}/revoke", devices.Revoke)
			r.Put("/{id}/limits", devices.UpdateLimits)
			r.Put("/{id}/location", devices.ReportLocation)
		})
		r.Put("/me/location", circles.UpdateMyLocation)
		r.Post("/me/sign-out", me.SignOut)
	})
	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return &testAPI{router: r, metrics: recorder, sessions: sessions}
}

func (a *testAPI) do(t *testing.T, user, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return a.doAs(t, user, "", method, path, body)
}

func (a *testAPI) doAs(t *testing.T, user, role, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	if role != "" {
		req.Header.Set("X-Test-Role", role)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response: %v (body %q)", err, rec.Body.String())
	}
	return out
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	if got := decode[dto.ErrorResponse](t, rec); got.Code != code {
		t.Fatalf("code = %s, want %s", got.Code, code)
	}
}

// newCircle creates a circle owned by creator with the given extra members.
func (a *testAPI) newCircle(t *testing.T, creator string, members ...string) string {
	t.Helper()
	rec := a.do(t, creator, http.MethodPost, "/api/v1/circles", dto.CreateCircleRequest{Name: "Family"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create circle: status %d, body %s", rec.Code, rec.Body.String())
	}
	circle := decode[model.FamilyCircle](t, rec)
	for _, m := range members {
		rec := a.do(t, creator, http.MethodPost, "/api/v1/circles/"+circle.ID+"/members", dto.AddMemberRequest{UserID: m})
		if rec.Code != http.StatusOK {
			t.Fatalf("add member %s: status %d, body %s", m, rec.Code, rec.Body.String())
		}
	}
	return circle.ID
}

func TestAPI_RequiresIdentity(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, "", http.MethodGet, "/api/v1/circles", nil)
	expectError(t, rec, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestAPI_InvalidBody(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, "u1", http.MethodPost, "/api/v1/circles", "{not json")
	expectError(t, rec, http.StatusBadRequest, "INVALID_JSON")

	rec = api.do(t, "u1", http.MethodPost, "/api/v1/circles", map[string]string{})
	expectError(t, rec, http.StatusBadRequest, "VALIDATION_FAILED")
}

func TestAPI_CircleLifecycle(t *testing.T) {
	api := newTestAPI(t)
	circleID := api.newCircle(t, "alice", "bob")

	rec := api.do(t, "bob", http.MethodGet, "/api/v1/circles", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	list := decode[dto.ListResponse[model.FamilyCircle]](t, rec)
	if len(list.Data) != 1 || len(list.Data[0].Members) != 2 {
		t.Fatalf("bob should see one circle with two members, got %+v", list.Data)
	}

	rec = api.do(t, "mallory", http.MethodGet, "/api/v1/circles/"+circleID, nil)
	expectError(t, rec, http.StatusForbidden, "NOT_MEMBER")

	rec = api.do(t, "alice", http.MethodDelete, "/api/v1/circles/"+circleID+"/members/alice", nil)
	expectError(t, rec, http.StatusConflict, "CANNOT_REMOVE_CREATOR")

	rec = api.do(t, "bob", http.MethodDelete, "/api/v1/circles/"+circleID, nil)
	expectError(t, rec, http.StatusForbidden, "NOT_CREATOR")

	rec = api.do(t, "alice", http.MethodDelete, "/api/v1/circles/"+circleID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("disband: status %d, body %s", rec.Code, rec.Body.String())
	}

	rec = api.do(t, "alice", http.MethodGet, "/api/v1/circles/"+circleID, nil)
	expectError(t, rec, http.StatusNotFound, "CIRCLE_NOT_FOUND")
}

func TestAPI_LiveSharing(t *testing.T) {
	api := newTestAPI(t)
	circleID := api.newCircle(t, "alice", "bob")

	rec := api.do(t, "bob", http.MethodPut, "/api/v1/me/location", map[string]any{"lat": 52.52, "lng": 13.405})
	if rec.Code != http.StatusOK {
		t.Fatalf("update location: status %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decode[dto.UpdateLocationResponse](t, rec); got.CirclesUpdated != 1 {
		t.Fatalf("circles_updated = %d, want 1", got.CirclesUpdated)
	}
	if api.metrics.Snapshot().LocationPushesHTTP != 1 {
		t.Error("HTTP location push should be counted")
	}

	path := "/api/v1/circles/" + circleID + "/members/bob/location"
	view := decode[model.LocationView](t, api.do(t, "alice", http.MethodGet, path, nil))
	if view.Source != model.SourceNone || view.Location != nil {
		t.Fatalf("non-sharing member should be hidden, got %+v", view)
	}

	rec = api.do(t, "bob", http.MethodPut, "/api/v1/circles/"+circleID+"/sharing", map[string]bool{"enabled": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("set sharing: status %d, body %s", rec.Code, rec.Body.String())
	}

	view = decode[model.LocationView](t, api.do(t, "alice", http.MethodGet, path, nil))
	if view.Source != model.SourceLive || view.Location == nil || view.Location.Lat != 52.52 {
		t.Fatalf("sharing member should be visible live, got %+v", view)
	}
}

func TestAPI_FutureLocationRejected(t *testing.T) {
	api := newTestAPI(t)
	api.newCircle(t, "alice", "bob")

	future := time.Now().Add(365 * 24 * time.Hour)
	rec := api.do(t, "bob", http.MethodPut, "/api/v1/me/location", map[string]any{"lat": 1, "lng": 1, "at": future})
	expectError(t, rec, http.StatusBadRequest, "INVALID_LOCATION")
	if api.metrics.Snapshot().LocationPushesHTTP != 0 {
		t.Error("rejected push should not be counted")
	}

	rec = api.do(t, "bob", http.MethodPut, "/api/v1/me/location", map[string]any{"lat": 2, "lng": 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("current push: status %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decode[dto.UpdateLocationResponse](t, rec); got.CirclesUpdated != 1 {
		t.Errorf("circles_updated = %d, want 1", got.CirclesUpdated)
	}
}

func TestAPI_CheckInSingleRead(t *testing.T) {
	api := newTestAPI(t)
	circleID := api.newCircle(t, "alice", "bob")

	rec := api.do(t, "alice", http.MethodPost, "/api/v1/check-ins", dto.RequestCheckInRequest{CircleID: circleID, TargetID: "bob"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("request: status %d, body %s", rec.Code, rec.Body.String())
	}
	checkIn := decode[model.CheckInRequest](t, rec)
	if checkIn.Status != model.CheckInPending {
		t.Fatalf("status = %s, want pending", checkIn.Status)
	}

	respondPath := "/api/v1/check-ins/" + checkIn.ID + "/respond"
	rec = api.do(t, "alice", http.MethodPost, respondPath, map[string]any{"decision": "approve", "duration": "once"})
	expectError(t, rec, http.StatusForbidden, "NOT_TARGET")

	rec = api.do(t, "bob", http.MethodPost, respondPath, map[string]any{"decision": "approve"})
	expectError(t, rec, http.StatusBadRequest, "DURATION_REQUIRED")

	body := map[string]any{
		"decision":  "approve",
		"duration":  "once",
		"location":  map[string]float64{"lat": 48.85, "lng": 2.35},
		"photo_url": "https://img.example.com/bob.jpg",
	}
	rec = api.do(t, "bob", http.MethodPost, respondPath, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("respond: status %d, body %s", rec.Code, rec.Body.String())
	}

	rec = api.do(t, "bob", http.MethodPost, respondPath, map[string]any{"decision": "decline"})
	expectError(t, rec, http.StatusConflict, "ALREADY_RESPONDED")

	path := "/api/v1/circles/" + circleID + "/members/bob/location"
	view := decode[model.LocationView](t, api.do(t, "alice", http.MethodGet, path, nil))
	if view.Source != model.SourceCheckIn || view.Location == nil || view.PhotoURL == "" {
		t.Fatalf("first read should be served from the grant, got %+v", view)
	}

	view = decode[model.LocationView](t, api.do(t, "alice", http.MethodGet, path, nil))
	if view.Source != model.SourceNone || view.Location != nil || !view.Expired {
		t.Fatalf("second read should find the grant consumed, got %+v", view)
	}

	// The requester's copy of the request never carries the location.
	got := decode[model.CheckInRequest](t, api.do(t, "alice", http.MethodGet, "/api/v1/check-ins/"+checkIn.ID, nil))
	if got.Location != nil || got.PhotoURL != "" {
		t.Fatalf("requester view leaked location: %+v", got)
	}
}

func TestAPI_CheckInList(t *testing.T) {
	api := newTestAPI(t)
	circleID := api.newCircle(t, "alice", "bob")

	for range 2 {
		rec := api.do(t, "alice", http.MethodPost, "/api/v1/check-ins", dto.RequestCheckInRequest{CircleID: circleID, TargetID: "bob"})
		if rec.Code != http.StatusCreated {
			t.Fatalf("request: status %d", rec.Code)
		}
	}

	incoming := decode[dto.ListResponse[model.CheckInRequest]](t, api.do(t, "bob", http.MethodGet, "/api/v1/check-ins?direction=incoming", nil))
	if len(incoming.Data) != 2 {
		t.Fatalf("incoming = %d, want 2", len(incoming.Data))
	}
	outgoing := decode[dto.ListResponse[model.CheckInRequest]](t, api.do(t, "bob", http.MethodGet, "/api/v1/check-ins?direction=outgoing", nil))
	if len(outgoing.Data) != 0 {
		t.Fatalf("outgoing = %d, want 0", len(outgoing.Data))
	}

	rec := api.do(t, "bob", http.MethodGet, "/api/v1/check-ins?direction=sideways", nil)
	expectError(t, rec, http.StatusBadRequest, "INVALID_DIRECTION")

	rec = api.do(t, "bob", http.MethodGet, "/api/v1/check-ins?limit=abc", nil)
	expectError(t, rec, http.StatusBadRequest, "INVALID_LIMIT")
}

func postAlert(t *testing.T, api *testAPI, creator string) model.PublicAlert {
	t.Helper()
	body := map[string]any{
		"type":                 "lost_pet",
		"title":                "Grey cat",
		"description":          "Answers to Miso",
		"location":             map[string]float64{"lat": 40.7, "lng": -74.0},
		"location_description": "Near the park",
	}
	rec := api.do(t, creator, http.MethodPost, "/api/v1/alerts", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("post alert: status %d, body %s", rec.Code, rec.Body.String())
	}
	return decode[model.PublicAlert](t, rec)
}

func TestAPI_SightingsArePseudonymous(t *testing.T) {
	api := newTestAPI(t)
	alert := postAlert(t, api, "carol")

	path := "/api/v1/alerts/" + alert.ID + "/sightings"
	for _, msg := range []string{"Saw it by the fountain", "Still there"} {
		rec := api.do(t, "dave", http.MethodPost, path, dto.ReportSightingRequest{Message: msg})
		if rec.Code != http.StatusCreated {
			t.Fatalf("report sighting: status %d, body %s", rec.Code, rec.Body.String())
		}
	}

	rec := api.do(t, "dave", http.MethodGet, path, nil)
	expectError(t, rec, http.StatusForbidden, "NOT_AUTHORIZED")

	list := decode[dto.ListResponse[model.SightingReport]](t, api.do(t, "carol", http.MethodGet, path, nil))
	if len(list.Data) != 2 {
		t.Fatalf("sightings = %d, want 2", len(list.Data))
	}
	first := list.Data[0].ReporterID
	if !strings.HasPrefix(first, pseudonym.Prefix) || strings.Contains(first, "dave") {
		t.Fatalf("reporter id should be a pseudonym, got %q", first)
	}
	if list.Data[1].ReporterID != first {
		t.Error("the same reporter should map to the same pseudonym on one alert")
	}

	rec = api.do(t, "dave", http.MethodPost, path, dto.ReportSightingRequest{Message: "x", PhotoURL: "javascript:alert(1)"})
	expectError(t, rec, http.StatusBadRequest, "VALIDATION_FAILED")
}

func TestAPI_AlertModeration(t *testing.T) {
	api := newTestAPI(t)
	alert := postAlert(t, api, "carol")
	base := "/api/v1/alerts/" + alert.ID

	rec := api.do(t, "dave", http.MethodPost, base+"/flag", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("flag: status %d, body %s", rec.Code, rec.Body.String())
	}

	rec = api.do(t, "dave", http.MethodGet, base, nil)
	expectError(t, rec, http.StatusNotFound, "ALERT_NOT_FOUND")

	rec = api.do(t, "dave", http.MethodGet, "/api/v1/moderation/alerts", nil)
	expectError(t, rec, http.StatusForbidden, "NOT_MODERATOR")

	queue := decode[dto.ListResponse[model.PublicAlert]](t, api.doAs(t, "mod", model.RoleModerator, http.MethodGet, "/api/v1/moderation/alerts", nil))
	if len(queue.Data) != 1 || queue.Data[0].ID != alert.ID {
		t.Fatalf("moderation queue = %+v", queue.Data)
	}

	rec = api.doAs(t, "mod", model.RoleModerator, http.MethodPost, base+"/reinstate", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reinstate: status %d, body %s", rec.Code, rec.Body.String())
	}

	rec = api.do(t, "carol", http.MethodPost, base+"/resolve", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve: status %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decode[model.PublicAlert](t, rec); got.Status != model.AlertResolved || got.ResolvedAt == nil {
		t.Fatalf("resolved alert = %+v", got)
	}

	rec = api.do(t, "dave", http.MethodPost, base+"/sightings", dto.ReportSightingRequest{Message: "late tip"})
	if rec.Code == http.StatusCreated {
		t.Fatal("sightings on a resolved alert should be rejected")
	}
}

func TestAPI_DeviceLifecycle(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, "parent", http.MethodPost, "/api/v1/devices", dto.InviteDeviceRequest{ChildID: "kid", ChildName: "Sam"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("invite: status %d, body %s", rec.Code, rec.Body.String())
	}
	device := decode[model.SupervisedDevice](t, rec)
	base := "/api/v1/devices/" + device.ID

	rec = api.do(t, "kid", http.MethodPut, base+"/location", map[string]float64{"lat": 1, "lng": 1})
	expectError(t, rec, http.StatusConflict, "DEVICE_NOT_ACTIVE")

	rec = api.do(t, "parent", http.MethodPost, base+"/consent", nil)
	expectError(t, rec, http.StatusForbidden, "NOT_CHILD")

	rec = api.do(t, "kid", http.MethodPost, base+"/consent", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("consent: status %d, body %s", rec.Code, rec.Body.String())
	}

	limits := map[string]any{"screen_time_limit": 90, "approved_apps": []string{"com.example.maps"}}
	rec = api.do(t, "parent", http.MethodPut, base+"/limits", limits)
	if rec.Code != http.StatusOK {
		t.Fatalf("limits: status %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decode[model.SupervisedDevice](t, rec); got.ScreenTimeLimit != 90 || len(got.ApprovedApps) != 1 {
		t.Fatalf("limits not applied: %+v", got)
	}

	rec = api.do(t, "kid", http.MethodPut, base+"/location", map[string]float64{"lat": 35.68, "lng": 139.69})
	if rec.Code != http.StatusOK {
		t.Fatalf("device location: status %d, body %s", rec.Code, rec.Body.String())
	}

	got := decode[model.SupervisedDevice](t, api.do(t, "parent", http.MethodGet, base, nil))
	if got.LastLocation == nil || got.LastLocation.Lat != 35.68 {
		t.Fatalf("parent should see the active device location, got %+v", got)
	}

	rec = api.do(t, "parent", http.MethodPost, base+"/revoke", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("revoke: status %d, body %s", rec.Code, rec.Body.String())
	}

	got = decode[model.SupervisedDevice](t, api.do(t, "parent", http.MethodGet, base, nil))
	if got.Status != model.DeviceRevoked || got.LastLocation != nil {
		t.Fatalf("revoked device should hide its location, got %+v", got)
	}

	rec = api.do(t, "parent", http.MethodPut, base+"/limits", limits)
	expectError(t, rec, http.StatusConflict, "DEVICE_REVOKED")
}

func TestAPI_SignOut(t *testing.T) {
	api := newTestAPI(t)
	issued := time.Now().Add(-time.Minute)

	rec := api.do(t, "alice", http.MethodPost, "/api/v1/me/sign-out", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("sign-out: status %d, body %s", rec.Code, rec.Body.String())
	}

	revoked, err := api.sessions.Revoked(context.Background(), "alice", issued)
	if err != nil || !revoked {
		t.Fatalf("Revoked() = %v, %v; want true, nil", revoked, err)
	}
}

func TestAPI_UnknownRoute(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, "alice", http.MethodGet, "/api/v1/nope", nil)
	expectError(t, rec, http.StatusNotFound, "NOT_FOUND")
}
