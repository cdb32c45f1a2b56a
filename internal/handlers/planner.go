package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/benvon/family-planner/internal/models"
	"github.com/benvon/family-planner/internal/session"
	"github.com/benvon/family-planner/internal/syncer"
	"github.com/benvon/family-planner/internal/travel"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// SessionProvider hands out the caller's planner session
type SessionProvider interface {
	GetOrOpen(ctx context.Context, userID uuid.UUID) (*session.Session, error)
	Close(ctx context.Context, userID uuid.UUID) error
}

// PlannerHandler exposes the planner state store of the caller's active plan
type PlannerHandler struct {
	sessions SessionProvider
	logger   *zap.Logger
}

// NewPlannerHandler creates a new planner handler
func NewPlannerHandler(sessions SessionProvider, logger *zap.Logger) *PlannerHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlannerHandler{sessions: sessions, logger: logger}
}

// RegisterRoutes registers planner routes.
// The router should already have the /planner prefix.
func (h *PlannerHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.GetPlanner).Methods("GET")
	r.HandleFunc("", h.ClosePlanner).Methods("DELETE")
	r.HandleFunc("/statuses/{activityId}", h.SetStatus).Methods("PUT")
	r.HandleFunc("/statuses/{activityId}/toggle", h.ToggleStatus).Methods("POST")
	r.HandleFunc("/days", h.AddDay).Methods("POST")
	r.HandleFunc("/days/from-template", h.LoadTemplate).Methods("POST")
	r.HandleFunc("/days/{dayId}", h.UpdateDay).Methods("PATCH")
	r.HandleFunc("/days/{dayId}", h.RemoveDay).Methods("DELETE")
	r.HandleFunc("/days/{dayId}/items", h.AddToDay).Methods("POST")
	r.HandleFunc("/days/{dayId}/items/{activityId}", h.RemoveFromDay).Methods("DELETE")
	r.HandleFunc("/days/{dayId}/reorder", h.ReorderInDay).Methods("POST")
	r.HandleFunc("/days/{dayId}/timeline", h.Timeline).Methods("GET")
	r.HandleFunc("/days/{dayId}/available", h.Available).Methods("GET")
	r.HandleFunc("/notes/{activityId}", h.GetNote).Methods("GET")
	r.HandleFunc("/notes/{activityId}", h.SetNote).Methods("PUT")
	r.HandleFunc("/travel", h.Travel).Methods("GET")
}

// PlannerView is the full planner as shown on load
type PlannerView struct {
	Plan        models.Plan         `json:"plan"`
	Destination models.Destination  `json:"destination"`
	State       models.PlannerState `json:"state"`
	Want        []models.Activity   `json:"want"`
	Done        []models.Activity   `json:"done"`
	Stats       models.PlannerStats `json:"stats"`
	Syncing     bool                `json:"syncing"`
	Pending     int                 `json:"pending"`
	Failures    []syncer.Failure    `json:"failures"`
}

// SetStatusRequest replaces an activity status
type SetStatusRequest struct {
	Status models.ActivityStatus `json:"status" validate:"required,activity_status"`
}

// AddDayRequest appends a day
type AddDayRequest struct {
	Label string `json:"label" validate:"max=100"`
}

// LoadTemplateRequest appends a day from a destination template
type LoadTemplateRequest struct {
	TemplateID string `json:"template_id" validate:"required"`
}

// UpdateDayRequest changes a day's label or date. Omitted fields are kept; an
// empty date clears it.
type UpdateDayRequest struct {
	Label *string `json:"label,omitempty" validate:"omitempty,max=100"`
	Date  *string `json:"date,omitempty" validate:"omitempty,iso_date"`
}

// AddItemRequest schedules an activity on a day
type AddItemRequest struct {
	ActivityID string `json:"activity_id" validate:"required"`
}

// ReorderRequest moves an activity within a day
type ReorderRequest struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// NoteRequest replaces a note. Blank text deletes it.
type NoteRequest struct {
	Text string `json:"text" validate:"max=10000"`
}

// TravelResponse is the travel hint between two activities; Hint is nil when
// either activity has no coordinates
type TravelResponse struct {
	From string       `json:"from"`
	To   string       `json:"to"`
	Hint *travel.Hint `json:"hint"`
}

// currentSession resolves the caller's planner session, writing the error response on failure
func (h *PlannerHandler) currentSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	user, ok := requireUser(w, r)
	if !ok {
		return nil, false
	}
	s, err := h.sessions.GetOrOpen(r.Context(), user.ID)
	if err != nil {
		h.logger.Debug("planner_session_unavailable", zap.String("user_id", user.ID.String()), zap.Error(err))
		respondError(w, err)
		return nil, false
	}
	return s, true
}

// activity resolves the {activityId} route variable against the session catalog
func activity(w http.ResponseWriter, r *http.Request, s *session.Session) (string, bool) {
	id := mux.Vars(r)["activityId"]
	if _, ok := s.Store.Activity(id); !ok {
		respondJSONError(w, http.StatusNotFound, errNotFound, fmt.Sprintf("unknown activity %q", id))
		return "", false
	}
	return id, true
}

// GetPlanner returns the session's state with its derived views
func (h *PlannerHandler) GetPlanner(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, PlannerView{
		Plan:        s.Plan,
		Destination: s.Bundle.Destination,
		State:       s.Store.Snapshot(),
		Want:        s.Store.WantList(),
		Done:        s.Store.DoneList(),
		Stats:       s.Store.Stats(),
		Syncing:     s.Dispatcher.IsSyncing(),
		Pending:     s.Dispatcher.Pending(),
		Failures:    s.Dispatcher.Failures(),
	})
}

// ClosePlanner drains and closes the caller's session
func (h *PlannerHandler) ClosePlanner(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.sessions.Close(r.Context(), user.ID); err != nil {
		h.logger.Warn("planner_session_close_failed", zap.String("user_id", user.ID.String()), zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetStatus replaces an activity's status
func (h *PlannerHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	id, ok := activity(w, r, s)
	if !ok {
		return
	}
	var req SetStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.Store.SetStatus(id, req.Status); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"activity_id": id, "status": req.Status})
}

// ToggleStatus cycles an activity's status
func (h *PlannerHandler) ToggleStatus(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	id, ok := activity(w, r, s)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"activity_id": id, "status": s.Store.ToggleStatus(id)})
}

// AddDay appends an itinerary day
func (h *PlannerHandler) AddDay(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	var req AddDayRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	respondJSON(w, http.StatusCreated, s.Store.AddDay(req.Label))
}

// LoadTemplate appends a day seeded from one of the destination's templates
func (h *PlannerHandler) LoadTemplate(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	var req LoadTemplateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tpl, found := s.Bundle.Template(req.TemplateID)
	if !found {
		respondJSONError(w, http.StatusNotFound, errNotFound, fmt.Sprintf("unknown template %q", req.TemplateID))
		return
	}
	respondJSON(w, http.StatusCreated, s.Store.LoadTemplate(tpl))
}

// UpdateDay changes a day's label or date
func (h *PlannerHandler) UpdateDay(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	var req UpdateDayRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	day, err := s.Store.UpdateDay(mux.Vars(r)["dayId"], req.Label, req.Date)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, day)
}

// RemoveDay deletes a day
func (h *PlannerHandler) RemoveDay(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	if err := s.Store.RemoveDay(mux.Vars(r)["dayId"]); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddToDay appends an activity to a day
func (h *PlannerHandler) AddToDay(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	var req AddItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, found := s.Store.Activity(req.ActivityID); !found {
		respondJSONError(w, http.StatusNotFound, errNotFound, fmt.Sprintf("unknown activity %q", req.ActivityID))
		return
	}
	h.respondDay(w, s, mux.Vars(r)["dayId"], s.Store.AddToDay(mux.Vars(r)["dayId"], req.ActivityID))
}

// RemoveFromDay removes an activity from a day
func (h *PlannerHandler) RemoveFromDay(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	h.respondDay(w, s, vars["dayId"], s.Store.RemoveFromDay(vars["dayId"], vars["activityId"]))
}

// ReorderInDay moves an activity within a day
func (h *PlannerHandler) ReorderInDay(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	var req ReorderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	dayID := mux.Vars(r)["dayId"]
	h.respondDay(w, s, dayID, s.Store.ReorderInDay(dayID, req.From, req.To))
}

// respondDay answers a day mutation with the day's new contents
func (h *PlannerHandler) respondDay(w http.ResponseWriter, s *session.Session, dayID string, err error) {
	if err != nil {
		respondError(w, err)
		return
	}
	day, err := s.Store.Day(dayID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, day)
}

// Timeline renders a day with meals and travel hints
func (h *PlannerHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	day, err := s.Store.Day(mux.Vars(r)["dayId"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, travel.BuildTimeline(day, s.Store.Activity))
}

// Available lists catalog activities not yet on the day
func (h *PlannerHandler) Available(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	activities, err := s.Store.Available(mux.Vars(r)["dayId"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, activities)
}

// GetNote returns an activity's note
func (h *PlannerHandler) GetNote(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	id, ok := activity(w, r, s)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"activity_id": id, "text": s.Store.Note(id)})
}

// SetNote replaces an activity's note
func (h *PlannerHandler) SetNote(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	id, ok := activity(w, r, s)
	if !ok {
		return
	}
	var req NoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.Store.SetNote(id, req.Text)
	respondJSON(w, http.StatusOK, map[string]string{"activity_id": id, "text": s.Store.Note(id)})
}

// Travel estimates the travel between two activities
func (h *PlannerHandler) Travel(w http.ResponseWriter, r *http.Request) {
	s, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	fromID, toID := q.Get("from"), q.Get("to")
	from, okFrom := s.Store.Activity(fromID)
	to, okTo := s.Store.Activity(toID)
	if !okFrom || !okTo {
		respondJSONError(w, http.StatusNotFound, errNotFound, "from and to must be catalog activities")
		return
	}
	resp := TravelResponse{From: fromID, To: toID}
	if hint, ok := travel.Estimate(from.Location, to.Location); ok {
		resp.Hint = &hint
	}
	respondJSON(w, http.StatusOK, resp)
}
