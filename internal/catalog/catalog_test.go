package catalog

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/benvon/family-planner/internal/database"
	"github.com/benvon/family-planner/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type fakeRepo struct {
	dest       *models.Destination
	acts       []models.Activity
	weatherErr error
	calls      atomic.Int32
}

func (f *fakeRepo) GetDestination(_ context.Context, id uuid.UUID) (*models.Destination, error) {
	f.calls.Add(1)
	if f.dest == nil || f.dest.ID != id {
		return nil, database.ErrNotFound
	}
	d := *f.dest
	return &d, nil
}

func (f *fakeRepo) ListActivities(context.Context, uuid.UUID) ([]models.Activity, error) {
	f.calls.Add(1)
	return f.acts, nil
}

func (f *fakeRepo) ListWeather(context.Context, uuid.UUID) ([]models.SeasonWeather, error) {
	f.calls.Add(1)
	if f.weatherErr != nil {
		return nil, f.weatherErr
	}
	return []models.SeasonWeather{{Season: models.SeasonSummer}}, nil
}

func (f *fakeRepo) ListTemplates(context.Context, uuid.UUID) ([]models.ItineraryTemplate, error) {
	f.calls.Add(1)
	return []models.ItineraryTemplate{{ID: "t1", Label: "Day out", ActivityIDs: []string{"a1"}}}, nil
}

func TestService_Bundle(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	repo := &fakeRepo{
		dest: &models.Destination{ID: id, Name: "Camogli"},
		acts: []models.Activity{{ID: "a1", Name: "Beach"}},
	}
	svc := NewService(repo, nil, zap.NewNop())

	b, err := svc.Bundle(context.Background(), id)
	if err != nil {
		t.Fatalf("Bundle() error = %v", err)
	}
	if b.Destination.Name != "Camogli" || len(b.Activities) != 1 || len(b.Weather) != 1 || len(b.Templates) != 1 {
		t.Errorf("Bundle() = %+v", b)
	}
	if repo.calls.Load() != 4 {
		t.Errorf("repository called %d times, want 4", repo.calls.Load())
	}
	if _, ok := b.Activity("a1"); !ok {
		t.Error("Activity(a1) not found")
	}
	if _, ok := b.Template("t1"); !ok {
		t.Error("Template(t1) not found")
	}
	if err := svc.Invalidate(context.Background(), id); err != nil {
		t.Errorf("Invalidate() without cache error = %v", err)
	}
}

func TestService_BundleErrors(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	tests := []struct {
		name string
		repo *fakeRepo
		want error
	}{
		{"missing destination", &fakeRepo{}, database.ErrNotFound},
		{"weather failure", &fakeRepo{dest: &models.Destination{ID: id}, weatherErr: errBoom}, errBoom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewService(tt.repo, nil, nil).Bundle(context.Background(), id)
			if !errors.Is(err, tt.want) {
				t.Errorf("Bundle() error = %v, want %v", err, tt.want)
			}
		})
	}
}

var errBoom = errors.New("boom")
