package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/benvon/family-planner/internal/catalog"
	"github.com/benvon/family-planner/internal/models"
	"github.com/benvon/family-planner/internal/planner"
	"github.com/benvon/family-planner/internal/session"
	"github.com/benvon/family-planner/internal/travel"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type emptyStates struct{}

func (emptyStates) LoadState(context.Context, uuid.UUID) (models.PlannerState, error) {
	return models.NewPlannerState(), nil
}

type nopPersister struct{}

func (nopPersister) Apply(context.Context, planner.Command) error { return nil }

func coord(v float64) *float64 { return &v }

func testBundle() *catalog.Bundle {
	return &catalog.Bundle{
		Destination: models.Destination{ID: uuid.New(), Name: "Camogli", Country: "Italy"},
		Activities: []models.Activity{
			{ID: "beach", Name: "Pebble Beach", Location: models.Location{Lat: coord(44.3500), Lng: coord(9.1500)}},
			{ID: "bakery", Name: "Focaccia Bakery", Location: models.Location{Lat: coord(44.3520), Lng: coord(9.1540)}},
			{ID: "boat", Name: "Boat to San Fruttuoso"},
		},
		Templates: []models.ItineraryTemplate{{ID: "seaside", Label: "Seaside day", ActivityIDs: []string{"beach", "bakery"}}},
	}
}

type plannerFixture struct {
	user    *models.User
	manager *session.Manager
	handler *PlannerHandler
}

func newPlannerFixture(t *testing.T, withPlan bool) *plannerFixture {
	t.Helper()
	bundle := testBundle()
	user := newUser()
	plans := newFakePlanStore()
	if withPlan {
		if err := plans.Create(context.Background(), &models.Plan{OwnerID: user.ID, DestinationID: bundle.Destination.ID, Name: "Summer", IsActive: true}); err != nil {
			t.Fatal(err)
		}
	}
	m := session.NewManager(plans, emptyStates{}, catalog.NewStaticSource(bundle), nopPersister{}, zap.NewNop())
	t.Cleanup(func() { m.CloseAll(context.Background()) })
	return &plannerFixture{user: user, manager: m, handler: NewPlannerHandler(m, zap.NewNop())}
}

func (f *plannerFixture) do(method, path string, body any) *httptest.ResponseRecorder {
	return serve(f.handler.RegisterRoutes, "/api/v1/planner", f.user, method, "/api/v1/planner"+path, body)
}

func (f *plannerFixture) addDay(t *testing.T, activityIDs ...string) models.ItineraryDay {
	t.Helper()
	w := f.do(http.MethodPost, "/days", nil)
	assertStatus(t, w, http.StatusCreated)
	var day models.ItineraryDay
	decodeData(t, decodeEnvelope(t, w), &day)
	for _, id := range activityIDs {
		assertStatus(t, f.do(http.MethodPost, "/days/"+day.ID+"/items", AddItemRequest{ActivityID: id}), http.StatusOK)
	}
	return day
}

func TestPlannerHandler_NoActivePlan(t *testing.T) {
	t.Parallel()

	f := newPlannerFixture(t, false)
	w := f.do(http.MethodGet, "", nil)
	assertStatus(t, w, http.StatusConflict)
	if env := decodeEnvelope(t, w); env.Error != errNoActivePlan {
		t.Errorf("error = %q, want %q", env.Error, errNoActivePlan)
	}
}

func TestPlannerHandler_Unauthenticated(t *testing.T) {
	t.Parallel()

	f := newPlannerFixture(t, true)
	w := serve(f.handler.RegisterRoutes, "/api/v1/planner", nil, http.MethodGet, "/api/v1/planner", nil)
	assertStatus(t, w, http.StatusUnauthorized)
}

func TestPlannerHandler_Statuses(t *testing.T) {
	t.Parallel()

	f := newPlannerFixture(t, true)

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantError  string
	}{
		{"set want", http.MethodPut, "/statuses/beach", SetStatusRequest{Status: models.StatusWant}, http.StatusOK, ""},
		{"invalid status", http.MethodPut, "/statuses/beach", `{"status":"maybe"}`, http.StatusBadRequest, errValidation},
		{"missing status", http.MethodPut, "/statuses/beach", `{}`, http.StatusBadRequest, errValidation},
		{"unknown activity", http.MethodPut, "/statuses/casino", SetStatusRequest{Status: models.StatusWant}, http.StatusNotFound, errNotFound},
		{"malformed body", http.MethodPut, "/statuses/bakery", `{"status":`, http.StatusBadRequest, errValidation},
		{"toggle unknown", http.MethodPost, "/statuses/casino/toggle", nil, http.StatusNotFound, errNotFound},
	}
	for _, tt := range tests {
		w := f.do(tt.method, tt.path, tt.body)
		if w.Code != tt.wantStatus {
			t.Errorf("%s: status = %d, want %d (%s)", tt.name, w.Code, tt.wantStatus, w.Body.String())
			continue
		}
		if env := decodeEnvelope(t, w); env.Error != tt.wantError {
			t.Errorf("%s: error = %q, want %q", tt.name, env.Error, tt.wantError)
		}
	}

	w := f.do(http.MethodPost, "/statuses/beach/toggle", nil)
	assertStatus(t, w, http.StatusOK)
	var toggled struct {
		Status models.ActivityStatus `json:"status"`
	}
	decodeData(t, decodeEnvelope(t, w), &toggled)
	if toggled.Status != models.StatusDone {
		t.Errorf("toggle want = %q, want done", toggled.Status)
	}

	w = f.do(http.MethodGet, "", nil)
	assertStatus(t, w, http.StatusOK)
	var view PlannerView
	decodeData(t, decodeEnvelope(t, w), &view)
	if view.Stats != (models.PlannerStats{Want: 0, Done: 1, Total: 3}) {
		t.Errorf("stats = %+v", view.Stats)
	}
	if len(view.Done) != 1 || view.Done[0].ID != "beach" {
		t.Errorf("done list = %+v", view.Done)
	}
	if view.Destination.Name != "Camogli" || view.Plan.Name != "Summer" {
		t.Errorf("view header = %+v / %+v", view.Plan, view.Destination)
	}
}

func TestPlannerHandler_Days(t *testing.T) {
	t.Parallel()

	f := newPlannerFixture(t, true)
	day := f.addDay(t, "beach", "bakery")
	if day.Label != "Day 1" {
		t.Errorf("label = %q, want Day 1", day.Label)
	}

	w := f.do(http.MethodPost, "/days/"+day.ID+"/reorder", ReorderRequest{From: 0, To: 5})
	assertStatus(t, w, http.StatusBadRequest)

	w = f.do(http.MethodPost, "/days/"+day.ID+"/reorder", ReorderRequest{From: 1, To: 0})
	assertStatus(t, w, http.StatusOK)
	var reordered models.ItineraryDay
	decodeData(t, decodeEnvelope(t, w), &reordered)
	if strings.Join(reordered.ActivityIDs, ",") != "bakery,beach" {
		t.Errorf("reordered = %v", reordered.ActivityIDs)
	}

	assertStatus(t, f.do(http.MethodPost, "/days/"+day.ID+"/items", AddItemRequest{ActivityID: "casino"}), http.StatusNotFound)
	assertStatus(t, f.do(http.MethodPost, "/days/nope/items", AddItemRequest{ActivityID: "boat"}), http.StatusNotFound)
	assertStatus(t, f.do(http.MethodDelete, "/days/"+day.ID+"/items/boat", nil), http.StatusNotFound)

	w = f.do(http.MethodGet, "/days/"+day.ID+"/available", nil)
	assertStatus(t, w, http.StatusOK)
	var available []models.Activity
	decodeData(t, decodeEnvelope(t, w), &available)
	if len(available) != 1 || available[0].ID != "boat" {
		t.Errorf("available = %+v", available)
	}

	w = f.do(http.MethodPatch, "/days/"+day.ID, `{"label":"Arrival","date":"2026-13-45"}`)
	assertStatus(t, w, http.StatusBadRequest)
	w = f.do(http.MethodPatch, "/days/"+day.ID, `{"label":"Arrival","date":"2026-07-14"}`)
	assertStatus(t, w, http.StatusOK)
	var updated models.ItineraryDay
	decodeData(t, decodeEnvelope(t, w), &updated)
	if updated.Label != "Arrival" || updated.Date == nil || *updated.Date != "2026-07-14" {
		t.Errorf("updated = %+v", updated)
	}

	assertStatus(t, f.do(http.MethodDelete, "/days/"+day.ID+"/items/beach", nil), http.StatusOK)
	assertStatus(t, f.do(http.MethodDelete, "/days/"+day.ID, nil), http.StatusNoContent)
	assertStatus(t, f.do(http.MethodDelete, "/days/"+day.ID, nil), http.StatusNotFound)
}

func TestPlannerHandler_Timeline(t *testing.T) {
	t.Parallel()

	f := newPlannerFixture(t, true)
	day := f.addDay(t, "beach", "bakery", "boat")

	w := f.do(http.MethodGet, "/days/"+day.ID+"/timeline", nil)
	assertStatus(t, w, http.StatusOK)
	var entries []travel.Entry
	decodeData(t, decodeEnvelope(t, w), &entries)

	var kinds []string
	for _, e := range entries {
		kinds = append(kinds, string(e.Kind))
	}
	want := "meal,activity,travel,activity,meal,activity,meal"
	if got := strings.Join(kinds, ","); got != want {
		t.Errorf("timeline = %s, want %s", got, want)
	}

	empty := f.addDay(t)
	w = f.do(http.MethodGet, "/days/"+empty.ID+"/timeline", nil)
	assertStatus(t, w, http.StatusOK)
	decodeData(t, decodeEnvelope(t, w), &entries)
	if len(entries) != 0 {
		t.Errorf("empty day timeline = %+v", entries)
	}
}

func TestPlannerHandler_LoadTemplate(t *testing.T) {
	t.Parallel()

	f := newPlannerFixture(t, true)

	w := f.do(http.MethodPost, "/days/from-template", LoadTemplateRequest{TemplateID: "seaside"})
	assertStatus(t, w, http.StatusCreated)
	var day models.ItineraryDay
	decodeData(t, decodeEnvelope(t, w), &day)
	if day.Label != "Seaside day" || strings.Join(day.ActivityIDs, ",") != "beach,bakery" {
		t.Errorf("day = %+v", day)
	}

	assertStatus(t, f.do(http.MethodPost, "/days/from-template", LoadTemplateRequest{TemplateID: "ski"}), http.StatusNotFound)
	assertStatus(t, f.do(http.MethodPost, "/days/from-template", nil), http.StatusBadRequest)
}

func TestPlannerHandler_Notes(t *testing.T) {
	t.Parallel()

	f := newPlannerFixture(t, true)

	tests := []struct {
		name string
		text string
		want string
	}{
		{"set", "Bring water shoes", "Bring water shoes"},
		{"replace", "Go before 10", "Go before 10"},
		{"blank deletes", "   ", ""},
	}
	for _, tt := range tests {
		assertStatus(t, f.do(http.MethodPut, "/notes/beach", NoteRequest{Text: tt.text}), http.StatusOK)

		w := f.do(http.MethodGet, "/notes/beach", nil)
		assertStatus(t, w, http.StatusOK)
		var note map[string]string
		decodeData(t, decodeEnvelope(t, w), &note)
		if note["text"] != tt.want {
			t.Errorf("%s: note = %q, want %q", tt.name, note["text"], tt.want)
		}
	}
	assertStatus(t, f.do(http.MethodGet, "/notes/casino", nil), http.StatusNotFound)
}

func TestPlannerHandler_Travel(t *testing.T) {
	t.Parallel()

	f := newPlannerFixture(t, true)

	w := f.do(http.MethodGet, "/travel?from=beach&to=bakery", nil)
	assertStatus(t, w, http.StatusOK)
	var resp TravelResponse
	decodeData(t, decodeEnvelope(t, w), &resp)
	if resp.Hint == nil || resp.Hint.Minutes <= 0 {
		t.Errorf("hint = %+v", resp.Hint)
	}

	w = f.do(http.MethodGet, "/travel?from=beach&to=boat", nil)
	assertStatus(t, w, http.StatusOK)
	resp = TravelResponse{}
	decodeData(t, decodeEnvelope(t, w), &resp)
	if resp.Hint != nil {
		t.Errorf("hint without coordinates = %+v", resp.Hint)
	}

	assertStatus(t, f.do(http.MethodGet, "/travel?from=beach&to=casino", nil), http.StatusNotFound)
}

func TestPlannerHandler_Close(t *testing.T) {
	t.Parallel()

	f := newPlannerFixture(t, true)
	assertStatus(t, f.do(http.MethodGet, "", nil), http.StatusOK)
	if f.manager.Count() != 1 {
		t.Fatalf("open sessions = %d, want 1", f.manager.Count())
	}
	assertStatus(t, f.do(http.MethodDelete, "", nil), http.StatusNoContent)
	if f.manager.Count() != 0 {
		t.Errorf("open sessions = %d after close, want 0", f.manager.Count())
	}
}
