package planner

import "github.com/benvon/family-planner/internal/models"

// Instantiate produces a new itinerary day from a template. The day gets its own
// id and its own copy of the activity sequence; repeated ids keep their first
// position. Ids missing from the catalog are kept and skipped at render time.
func Instantiate(tpl models.ItineraryTemplate, newID func() string) models.ItineraryDay {
	seen := make(map[string]bool, len(tpl.ActivityIDs))
	ids := make([]string, 0, len(tpl.ActivityIDs))
	for _, id := range tpl.ActivityIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return models.ItineraryDay{
		ID:          newID(),
		Label:       tpl.Label,
		ActivityIDs: ids,
	}
}
