package catalog

import (
	"strings"

	"github.com/benvon/family-planner/internal/models"
)

// Query narrows an activity list. Zero fields match everything.
type Query struct {
	Category           models.Category
	Season             models.Season
	MinKidFriendliness int
	Text               string
}

// Filter returns the activities matching q, in their original order
func Filter(activities []models.Activity, q Query) []models.Activity {
	text := strings.ToLower(strings.TrimSpace(q.Text))
	out := []models.Activity{}
	for _, a := range activities {
		if q.Category != "" && a.Category != q.Category {
			continue
		}
		if a.KidFriendliness < q.MinKidFriendliness {
			continue
		}
		if q.Season != "" && len(a.BestSeason) > 0 && !hasSeason(a.BestSeason, q.Season) {
			continue
		}
		if text != "" && !matchesText(a, text) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func hasSeason(seasons []models.Season, s models.Season) bool {
	for _, v := range seasons {
		if v == s {
			return true
		}
	}
	return false
}

func matchesText(a models.Activity, text string) bool {
	for _, field := range []string{a.Name, a.NameLocal, a.Description, a.Subcategory, a.Location.Area} {
		if strings.Contains(strings.ToLower(field), text) {
			return true
		}
	}
	return false
}
