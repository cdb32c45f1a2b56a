package travel

import "github.com/benvon/family-planner/internal/models"

// EntryKind tags a row of a day timeline
type EntryKind string

const (
	EntryMeal     EntryKind = "meal"
	EntryActivity EntryKind = "activity"
	EntryTravel   EntryKind = "travel"
)

// Meal slots placed around a day's activities
const (
	MealBreakfast = "breakfast"
	MealLunch     = "lunch"
	MealDinner    = "dinner"
)

var mealGlyphs = map[string]string{
	MealBreakfast: "🥐",
	MealLunch:     "🍽️",
	MealDinner:    "🍝",
}

// Entry is one row of a rendered day. Position is the index in the day's
// activity sequence, or -1 for meals.
type Entry struct {
	Kind       EntryKind `json:"kind"`
	Meal       string    `json:"meal,omitempty"`
	Glyph      string    `json:"glyph,omitempty"`
	ActivityID string    `json:"activity_id,omitempty"`
	Name       string    `json:"name,omitempty"`
	Position   int       `json:"position"`
	Travel     *Hint     `json:"travel,omitempty"`
}

// Lookup resolves an activity id against the catalog
type Lookup func(activityID string) (models.Activity, bool)

// LunchAfterIndex returns the position after which lunch is served for a day of n activities
func LunchAfterIndex(n int) int {
	return (n+1)/2 - 1
}

// BuildTimeline lays out a day: breakfast, the activities in order with travel rows
// between consecutive located activities, lunch at the midpoint and dinner last.
// Ids the lookup cannot resolve are skipped; when the midpoint is one of them the
// day has no lunch row. An empty day has no timeline.
func BuildTimeline(day models.ItineraryDay, lookup Lookup) []Entry {
	if len(day.ActivityIDs) == 0 {
		return []Entry{}
	}

	lunchAfter := LunchAfterIndex(len(day.ActivityIDs))
	entries := []Entry{meal(MealBreakfast)}

	var prev *models.Activity
	for i, id := range day.ActivityIDs {
		act, ok := lookup(id)
		if ok {
			if prev != nil {
				if hint, known := Estimate(prev.Location, act.Location); known {
					entries = append(entries, Entry{Kind: EntryTravel, Glyph: hint.Glyph, Travel: &hint, Position: i})
				}
			}
			entries = append(entries, Entry{
				Kind:       EntryActivity,
				Glyph:      act.ImageEmoji,
				ActivityID: act.ID,
				Name:       act.Name,
				Position:   i,
			})
			a := act
			prev = &a
			if i == lunchAfter {
				entries = append(entries, meal(MealLunch))
			}
		} else {
			prev = nil
		}
	}

	return append(entries, meal(MealDinner))
}

func meal(slot string) Entry {
	return Entry{Kind: EntryMeal, Meal: slot, Glyph: mealGlyphs[slot], Position: -1}
}
