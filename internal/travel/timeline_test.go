package travel

import (
	"testing"

	"github.com/benvon/family-planner/internal/models"
)

func catalogLookup(acts ...models.Activity) Lookup {
	byID := make(map[string]models.Activity, len(acts))
	for _, a := range acts {
		byID[a.ID] = a
	}
	return func(id string) (models.Activity, bool) {
		a, ok := byID[id]
		return a, ok
	}
}

func kinds(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		switch e.Kind {
		case EntryMeal:
			out = append(out, e.Meal)
		case EntryActivity:
			out = append(out, e.ActivityID)
		default:
			out = append(out, string(e.Kind))
		}
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestLunchAfterIndex(t *testing.T) {
	t.Parallel()

	for n, want := range map[int]int{1: 0, 2: 0, 3: 1, 4: 1, 5: 2} {
		if got := LunchAfterIndex(n); got != want {
			t.Errorf("LunchAfterIndex(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestBuildTimeline(t *testing.T) {
	t.Parallel()

	a := models.Activity{ID: "a", Name: "Lake", Location: loc(46.90, 11.43)}
	b := models.Activity{ID: "b", Name: "Castle", Location: loc(46.905, 11.435)}
	c := models.Activity{ID: "c", Name: "Museum"}
	lookup := catalogLookup(a, b, c)

	tests := []struct {
		name string
		ids  []string
		want []string
	}{
		{"empty day", nil, []string{}},
		{"single activity", []string{"a"}, []string{"breakfast", "a", "lunch", "dinner"}},
		{"two located activities", []string{"a", "b"}, []string{"breakfast", "a", "lunch", "travel", "b", "dinner"}},
		{"no travel without coordinates", []string{"a", "c", "b"}, []string{"breakfast", "a", "c", "lunch", "b", "dinner"}},
		{"unknown ids skipped", []string{"gone", "a", "b"}, []string{"breakfast", "a", "lunch", "travel", "b", "dinner"}},
		{"no lunch when midpoint unknown", []string{"a", "gone", "b", "c"}, []string{"breakfast", "a", "b", "c", "dinner"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := kinds(BuildTimeline(models.ItineraryDay{ID: "d1", ActivityIDs: tt.ids}, lookup))
			if !equal(got, tt.want) {
				t.Errorf("timeline = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildTimeline_TravelHintAttached(t *testing.T) {
	t.Parallel()

	a := models.Activity{ID: "a", Location: loc(46.90, 11.43)}
	b := models.Activity{ID: "b", Location: loc(46.905, 11.435)}

	entries := BuildTimeline(models.ItineraryDay{ActivityIDs: []string{"a", "b"}}, catalogLookup(a, b))
	for _, e := range entries {
		if e.Kind != EntryTravel {
			continue
		}
		if e.Travel == nil || e.Travel.Mode != ModeDrive {
			t.Errorf("travel entry = %+v, want a drive hint", e.Travel)
		}
		if e.Position != 1 {
			t.Errorf("travel position = %d, want 1", e.Position)
		}
		return
	}
	t.Error("no travel entry in timeline")
}
