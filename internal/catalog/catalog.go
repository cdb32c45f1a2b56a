// Package catalog serves the read-only destination catalog: the destination,
// its activities, seasonal weather and itinerary templates.
package catalog

import (
	"context"
	"fmt"

	"github.com/benvon/family-planner/internal/cache"
	"github.com/benvon/family-planner/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Bundle is everything the planner needs to know about one destination
type Bundle struct {
	Destination models.Destination         `json:"destination" yaml:"destination"`
	Activities  []models.Activity          `json:"activities" yaml:"activities"`
	Weather     []models.SeasonWeather     `json:"weather" yaml:"weather"`
	Templates   []models.ItineraryTemplate `json:"templates" yaml:"templates"`
}

// Activity looks up an activity by id
func (b *Bundle) Activity(id string) (models.Activity, bool) {
	for _, a := range b.Activities {
		if a.ID == id {
			return a, true
		}
	}
	return models.Activity{}, false
}

// Template looks up an itinerary template by id
func (b *Bundle) Template(id string) (models.ItineraryTemplate, bool) {
	for _, t := range b.Templates {
		if t.ID == id {
			return t, true
		}
	}
	return models.ItineraryTemplate{}, false
}

// Source provides destination bundles
type Source interface {
	Bundle(ctx context.Context, destinationID uuid.UUID) (*Bundle, error)
}

// Repository is the subset of the destination repository the service reads from
type Repository interface {
	GetDestination(ctx context.Context, id uuid.UUID) (*models.Destination, error)
	ListActivities(ctx context.Context, destinationID uuid.UUID) ([]models.Activity, error)
	ListWeather(ctx context.Context, destinationID uuid.UUID) ([]models.SeasonWeather, error)
	ListTemplates(ctx context.Context, destinationID uuid.UUID) ([]models.ItineraryTemplate, error)
}

// Service loads bundles from the database and caches them in Redis
type Service struct {
	repo   Repository
	cache  *cache.JSONCache
	logger *zap.Logger
}

var _ Source = (*Service)(nil)

// NewService creates a catalog service. A nil cache disables caching.
func NewService(repo Repository, c *cache.JSONCache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, cache: c, logger: logger}
}

// Bundle returns the destination's catalog, reading the four parts in parallel on a cache miss
func (s *Service) Bundle(ctx context.Context, destinationID uuid.UUID) (*Bundle, error) {
	var cached Bundle
	hit, err := s.cache.Get(ctx, destinationID.String(), &cached)
	if err != nil {
		s.logger.Warn("catalog_cache_read_failed",
			zap.String("destination_id", destinationID.String()),
			zap.Error(err),
		)
	}
	if hit {
		return &cached, nil
	}

	b := &Bundle{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := s.repo.GetDestination(gctx, destinationID)
		if err != nil {
			return err
		}
		b.Destination = *d
		return nil
	})
	g.Go(func() error {
		var err error
		b.Activities, err = s.repo.ListActivities(gctx, destinationID)
		return err
	})
	g.Go(func() error {
		var err error
		b.Weather, err = s.repo.ListWeather(gctx, destinationID)
		return err
	})
	g.Go(func() error {
		var err error
		b.Templates, err = s.repo.ListTemplates(gctx, destinationID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load catalog for %s: %w", destinationID, err)
	}

	if err := s.cache.Set(ctx, destinationID.String(), b); err != nil {
		s.logger.Warn("catalog_cache_write_failed",
			zap.String("destination_id", destinationID.String()),
			zap.Error(err),
		)
	}
	return b, nil
}

// Invalidate drops the cached bundle so the next read reloads it
func (s *Service) Invalidate(ctx context.Context, destinationID uuid.UUID) error {
	return s.cache.Delete(ctx, destinationID.String())
}
