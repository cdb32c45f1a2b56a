package models

// ActivityStatus is a user's mark on an activity. Absence means StatusNone.
type ActivityStatus string

const (
	StatusNone ActivityStatus = "none"
	StatusWant ActivityStatus = "want"
	StatusDone ActivityStatus = "done"
)

// Valid reports whether s is one of none, want or done
func (s ActivityStatus) Valid() bool {
	return s == StatusNone || s == StatusWant || s == StatusDone
}

// Next returns the status that follows s in the none -> want -> done -> none cycle
func (s ActivityStatus) Next() ActivityStatus {
	switch s {
	case StatusWant:
		return StatusDone
	case StatusDone:
		return StatusNone
	default:
		return StatusWant
	}
}

// ItineraryDay is an ordered, named list of activity references.
// Date is an optional YYYY-MM-DD calendar date.
type ItineraryDay struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	Date        *string  `json:"date,omitempty"`
	ActivityIDs []string `json:"activity_ids"`
}

// Clone returns a deep copy of the day
func (d ItineraryDay) Clone() ItineraryDay {
	out := d
	if d.Date != nil {
		date := *d.Date
		out.Date = &date
	}
	out.ActivityIDs = append([]string{}, d.ActivityIDs...)
	return out
}

// Contains reports whether the activity is scheduled on this day
func (d ItineraryDay) Contains(activityID string) bool {
	for _, id := range d.ActivityIDs {
		if id == activityID {
			return true
		}
	}
	return false
}

// PlannerState is everything a user has planned for one destination
type PlannerState struct {
	Statuses  map[string]ActivityStatus `json:"statuses"`
	Itinerary []ItineraryDay            `json:"itinerary"`
	Notes     map[string]string         `json:"notes"`
}

// NewPlannerState returns an empty state with initialized maps
func NewPlannerState() PlannerState {
	return PlannerState{
		Statuses:  map[string]ActivityStatus{},
		Itinerary: []ItineraryDay{},
		Notes:     map[string]string{},
	}
}

// Clone returns a deep copy of the state
func (s PlannerState) Clone() PlannerState {
	out := NewPlannerState()
	for k, v := range s.Statuses {
		out.Statuses[k] = v
	}
	for k, v := range s.Notes {
		out.Notes[k] = v
	}
	for _, day := range s.Itinerary {
		out.Itinerary = append(out.Itinerary, day.Clone())
	}
	return out
}

// PlannerStats summarizes statuses against the catalog size
type PlannerStats struct {
	Want  int `json:"want"`
	Done  int `json:"done"`
	Total int `json:"total"`
}
