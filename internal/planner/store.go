// Package planner holds the in-memory state of one plan: activity statuses,
// the itinerary and notes. Every mutation is applied synchronously and then
// handed to a Sink as a Command for asynchronous persistence.
package planner

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benvon/family-planner/internal/models"
	"github.com/google/uuid"
)

// Store is the single source of truth for one plan
type Store struct {
	mu       sync.Mutex
	planID   string
	catalog  []models.Activity
	byID     map[string]int
	state    models.PlannerState
	sink     Sink
	newID    func() string
	now      func() time.Time
	onChange func()
}

// Option configures a Store
type Option func(*Store)

// WithSink sets where commands are dispatched
func WithSink(sink Sink) Option {
	return func(s *Store) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithState seeds the store with hydrated state
func WithState(state models.PlannerState) Option {
	return func(s *Store) {
		s.state = state.Clone()
	}
}

// WithIDGenerator overrides how day ids are generated
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) {
		s.newID = newID
	}
}

// WithClock overrides the command timestamp source
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithChangeHook registers a function called after every mutation
func WithChangeHook(fn func()) Option {
	return func(s *Store) {
		s.onChange = fn
	}
}

// NewStore creates a store for planID over the given catalog
func NewStore(planID string, catalog []models.Activity, opts ...Option) *Store {
	s := &Store{
		planID:  planID,
		catalog: append([]models.Activity{}, catalog...),
		state:   models.NewPlannerState(),
		sink:    discardSink{},
		newID:   uuid.NewString,
		now:     time.Now,
	}
	s.byID = make(map[string]int, len(s.catalog))
	for i, a := range s.catalog {
		s.byID[a.ID] = i
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlanID returns the plan this store belongs to
func (s *Store) PlanID() string {
	return s.planID
}

// Status returns the status of an activity, none when unset
func (s *Store) Status(activityID string) models.ActivityStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked(activityID)
}

func (s *Store) statusLocked(activityID string) models.ActivityStatus {
	if st, ok := s.state.Statuses[activityID]; ok {
		return st
	}
	return models.StatusNone
}

// SetStatus replaces the status of an activity. Setting none removes the entry.
func (s *Store) SetStatus(activityID string, status models.ActivityStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	s.mu.Lock()
	cmd := s.setStatusLocked(activityID, status)
	s.sink.Dispatch(cmd)
	s.mu.Unlock()

	s.changed()
	return nil
}

// ToggleStatus advances the activity along none -> want -> done -> none and returns the new status
func (s *Store) ToggleStatus(activityID string) models.ActivityStatus {
	s.mu.Lock()
	next := s.statusLocked(activityID).Next()
	cmd := s.setStatusLocked(activityID, next)
	s.sink.Dispatch(cmd)
	s.mu.Unlock()

	s.changed()
	return next
}

func (s *Store) setStatusLocked(activityID string, status models.ActivityStatus) Command {
	if status == models.StatusNone {
		delete(s.state.Statuses, activityID)
		return s.command(Command{Kind: CmdDeleteStatus, ActivityID: activityID})
	}
	s.state.Statuses[activityID] = status
	return s.command(Command{Kind: CmdUpsertStatus, ActivityID: activityID, Status: status})
}

// AddDay appends an empty day. An empty label becomes "Day N".
func (s *Store) AddDay(label string) models.ItineraryDay {
	s.mu.Lock()
	label = strings.TrimSpace(label)
	if label == "" {
		label = fmt.Sprintf("Day %d", len(s.state.Itinerary)+1)
	}
	day := models.ItineraryDay{ID: s.newID(), Label: label, ActivityIDs: []string{}}
	cmd := s.appendDayLocked(day)
	s.sink.Dispatch(cmd)
	s.mu.Unlock()

	s.changed()
	return day.Clone()
}

// LoadTemplate appends a new day seeded from a template
func (s *Store) LoadTemplate(tpl models.ItineraryTemplate) models.ItineraryDay {
	s.mu.Lock()
	day := Instantiate(tpl, s.newID)
	cmd := s.appendDayLocked(day)
	s.sink.Dispatch(cmd)
	s.mu.Unlock()

	s.changed()
	return day.Clone()
}

// appendDayLocked adds day at the end. SortOrder is only a lower bound; stores
// place the day after every day they already hold for the plan.
func (s *Store) appendDayLocked(day models.ItineraryDay) Command {
	order := len(s.state.Itinerary)
	s.state.Itinerary = append(s.state.Itinerary, day)
	return s.command(Command{
		Kind:        CmdInsertDay,
		DayID:       day.ID,
		Label:       day.Label,
		Date:        day.Date,
		SortOrder:   order,
		ActivityIDs: append([]string{}, day.ActivityIDs...),
	})
}

// UpdateDay changes a day's label and date. A nil argument leaves that field unchanged;
// an empty date string clears the date.
func (s *Store) UpdateDay(dayID string, label, date *string) (models.ItineraryDay, error) {
	s.mu.Lock()
	idx := s.dayIndexLocked(dayID)
	if idx < 0 {
		s.mu.Unlock()
		return models.ItineraryDay{}, fmt.Errorf("%w: %s", ErrDayNotFound, dayID)
	}
	day := &s.state.Itinerary[idx]
	if label != nil && strings.TrimSpace(*label) != "" {
		day.Label = strings.TrimSpace(*label)
	}
	if date != nil {
		if *date == "" {
			day.Date = nil
		} else {
			d := *date
			day.Date = &d
		}
	}
	out := day.Clone()
	cmd := s.command(Command{Kind: CmdUpdateDay, DayID: dayID, Label: out.Label, Date: out.Date})
	s.sink.Dispatch(cmd)
	s.mu.Unlock()

	s.changed()
	return out, nil
}

// RemoveDay deletes a day and its items
func (s *Store) RemoveDay(dayID string) error {
	s.mu.Lock()
	idx := s.dayIndexLocked(dayID)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDayNotFound, dayID)
	}
	s.state.Itinerary = append(s.state.Itinerary[:idx], s.state.Itinerary[idx+1:]...)
	cmd := s.command(Command{Kind: CmdDeleteDay, DayID: dayID})
	s.sink.Dispatch(cmd)
	s.mu.Unlock()

	s.changed()
	return nil
}

// AddToDay appends an activity to the end of a day. Adding an activity the day
// already contains is a no-op.
func (s *Store) AddToDay(dayID, activityID string) error {
	s.mu.Lock()
	idx := s.dayIndexLocked(dayID)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDayNotFound, dayID)
	}
	day := &s.state.Itinerary[idx]
	if day.Contains(activityID) {
		s.mu.Unlock()
		return nil
	}
	order := len(day.ActivityIDs)
	day.ActivityIDs = append(day.ActivityIDs, activityID)
	cmd := s.command(Command{
		Kind:        CmdInsertItem,
		DayID:       dayID,
		ActivityID:  activityID,
		SortOrder:   order,
		ActivityIDs: append([]string{}, day.ActivityIDs...),
	})
	s.sink.Dispatch(cmd)
	s.mu.Unlock()

	s.changed()
	return nil
}

// RemoveFromDay removes every occurrence of an activity from a day
func (s *Store) RemoveFromDay(dayID, activityID string) error {
	s.mu.Lock()
	idx := s.dayIndexLocked(dayID)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDayNotFound, dayID)
	}
	day := &s.state.Itinerary[idx]
	kept := make([]string, 0, len(day.ActivityIDs))
	for _, id := range day.ActivityIDs {
		if id != activityID {
			kept = append(kept, id)
		}
	}
	if len(kept) == len(day.ActivityIDs) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrActivityNotInDay, activityID)
	}
	day.ActivityIDs = kept
	cmd := s.command(Command{
		Kind:        CmdDeleteItem,
		DayID:       dayID,
		ActivityID:  activityID,
		ActivityIDs: append([]string{}, kept...),
	})
	s.sink.Dispatch(cmd)
	s.mu.Unlock()

	s.changed()
	return nil
}

// ReorderInDay moves the activity at position from to position to, shifting the
// ones in between. Positions outside the day are rejected.
func (s *Store) ReorderInDay(dayID string, from, to int) error {
	s.mu.Lock()
	idx := s.dayIndexLocked(dayID)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDayNotFound, dayID)
	}
	day := &s.state.Itinerary[idx]
	n := len(day.ActivityIDs)
	if from < 0 || from >= n || to < 0 || to >= n {
		s.mu.Unlock()
		return fmt.Errorf("%w: move %d to %d in day of %d", ErrIndexOutOfRange, from, to, n)
	}
	day.ActivityIDs = move(day.ActivityIDs, from, to)
	cmd := s.command(Command{Kind: CmdReorderDay, DayID: dayID, ActivityIDs: append([]string{}, day.ActivityIDs...)})
	s.sink.Dispatch(cmd)
	s.mu.Unlock()

	s.changed()
	return nil
}

func move(ids []string, from, to int) []string {
	out := make([]string, 0, len(ids))
	moved := ids[from]
	for i, id := range ids {
		if i != from {
			out = append(out, id)
		}
	}
	out = append(out, "")
	copy(out[to+1:], out[to:])
	out[to] = moved
	return out
}

// Note returns the note for an activity, empty when none
func (s *Store) Note(activityID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Notes[activityID]
}

// SetNote stores text verbatim. Whitespace-only text deletes the note.
func (s *Store) SetNote(activityID, text string) {
	s.mu.Lock()
	var cmd Command
	if strings.TrimSpace(text) == "" {
		delete(s.state.Notes, activityID)
		cmd = s.command(Command{Kind: CmdDeleteNote, ActivityID: activityID})
	} else {
		s.state.Notes[activityID] = text
		cmd = s.command(Command{Kind: CmdUpsertNote, ActivityID: activityID, Note: text})
	}
	s.sink.Dispatch(cmd)
	s.mu.Unlock()

	s.changed()
}

// Day returns a copy of a single day
func (s *Store) Day(dayID string) (models.ItineraryDay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.dayIndexLocked(dayID)
	if idx < 0 {
		return models.ItineraryDay{}, fmt.Errorf("%w: %s", ErrDayNotFound, dayID)
	}
	return s.state.Itinerary[idx].Clone(), nil
}

// Snapshot returns a deep copy of the current state
func (s *Store) Snapshot() models.PlannerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Catalog returns the activities this store was built with, in catalog order
func (s *Store) Catalog() []models.Activity {
	return append([]models.Activity{}, s.catalog...)
}

// Activity looks up a catalog entry by id
func (s *Store) Activity(activityID string) (models.Activity, bool) {
	i, ok := s.byID[activityID]
	if !ok {
		return models.Activity{}, false
	}
	return s.catalog[i], true
}

func (s *Store) dayIndexLocked(dayID string) int {
	for i, d := range s.state.Itinerary {
		if d.ID == dayID {
			return i
		}
	}
	return -1
}

func (s *Store) command(cmd Command) Command {
	cmd.PlanID = s.planID
	cmd.IssuedAt = s.now().UTC()
	return cmd
}

func (s *Store) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}
