package planner

import (
	"fmt"

	"github.com/benvon/family-planner/internal/models"
)

// WantList returns the activities marked want, in catalog order
func (s *Store) WantList() []models.Activity {
	return s.withStatus(models.StatusWant)
}

// DoneList returns the activities marked done, in catalog order
func (s *Store) DoneList() []models.Activity {
	return s.withStatus(models.StatusDone)
}

func (s *Store) withStatus(status models.ActivityStatus) []models.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Activity{}
	for _, a := range s.catalog {
		if s.state.Statuses[a.ID] == status {
			out = append(out, a)
		}
	}
	return out
}

// Stats counts want and done activities against the catalog size.
// Statuses for ids no longer in the catalog are not counted.
func (s *Store) Stats() models.PlannerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := models.PlannerStats{Total: len(s.catalog)}
	for _, a := range s.catalog {
		switch s.state.Statuses[a.ID] {
		case models.StatusWant:
			stats.Want++
		case models.StatusDone:
			stats.Done++
		}
	}
	return stats
}

// Available returns catalog activities not yet scheduled on the day
func (s *Store) Available(dayID string) ([]models.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.dayIndexLocked(dayID)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrDayNotFound, dayID)
	}
	day := s.state.Itinerary[idx]
	out := []models.Activity{}
	for _, a := range s.catalog {
		if !day.Contains(a.ID) {
			out = append(out, a)
		}
	}
	return out, nil
}
