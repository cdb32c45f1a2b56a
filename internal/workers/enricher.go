package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/family-planner/internal/models"
	"github.com/benvon/family-planner/internal/queue"
	"github.com/benvon/family-planner/internal/services/places"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// PlacesRequestInterval spaces outbound places searches
const PlacesRequestInterval = 100 * time.Millisecond

// PlaceStore is the slice of the destination repository the enricher needs
type PlaceStore interface {
	GetDestination(ctx context.Context, id uuid.UUID) (*models.Destination, error)
	ActivitiesMissingPlace(ctx context.Context, destinationID uuid.UUID) ([]models.Activity, error)
	UpdateActivityPlace(ctx context.Context, activityID string, place models.PlaceDetails) error
}

// CatalogInvalidator drops cached catalog bundles
type CatalogInvalidator interface {
	Invalidate(ctx context.Context, destinationID uuid.UUID) error
}

// EnrichResult counts the activities matched to a place
type EnrichResult struct {
	Enriched int `json:"enriched"`
	Total    int `json:"total"`
}

// PlaceEnricher backfills place ids, coordinates and photos on activities
type PlaceEnricher struct {
	searcher places.Searcher
	repo     PlaceStore
	cache    CatalogInvalidator
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewPlaceEnricher creates an enricher. cache may be nil.
func NewPlaceEnricher(searcher places.Searcher, repo PlaceStore, cache CatalogInvalidator, logger *zap.Logger) *PlaceEnricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlaceEnricher{
		searcher: searcher,
		repo:     repo,
		cache:    cache,
		limiter:  rate.NewLimiter(rate.Every(PlacesRequestInterval), 1),
		logger:   logger,
	}
}

// Enrich looks up every active activity of the destination that has no place yet.
// Failures on single activities are logged and skipped.
func (e *PlaceEnricher) Enrich(ctx context.Context, destinationID uuid.UUID) (EnrichResult, error) {
	dest, err := e.repo.GetDestination(ctx, destinationID)
	if err != nil {
		return EnrichResult{}, fmt.Errorf("failed to get destination: %w", err)
	}
	activities, err := e.repo.ActivitiesMissingPlace(ctx, destinationID)
	if err != nil {
		return EnrichResult{}, fmt.Errorf("failed to list activities: %w", err)
	}

	result := EnrichResult{Total: len(activities)}
	for _, a := range activities {
		if err := e.limiter.Wait(ctx); err != nil {
			return result, err
		}

		lat, lng := dest.Lat, dest.Lng
		if a.Location.HasCoordinates() {
			lat, lng = *a.Location.Lat, *a.Location.Lng
		}
		place, err := e.searcher.SearchPlace(ctx, a.Name+" "+dest.Name, lat, lng)
		if err != nil {
			e.logger.Warn("place_search_failed",
				zap.String("activity_id", a.ID),
				zap.String("activity", a.Name),
				zap.Error(err),
			)
			continue
		}
		if place == nil || place.PlaceID == "" {
			e.logger.Debug("place_not_found", zap.String("activity_id", a.ID))
			continue
		}
		if err := e.repo.UpdateActivityPlace(ctx, a.ID, *place); err != nil {
			e.logger.Warn("failed_to_store_place",
				zap.String("activity_id", a.ID),
				zap.Error(err),
			)
			continue
		}
		result.Enriched++
	}

	if result.Enriched > 0 && e.cache != nil {
		if err := e.cache.Invalidate(ctx, destinationID); err != nil {
			e.logger.Warn("failed_to_invalidate_catalog", zap.String("destination_id", destinationID.String()), zap.Error(err))
		}
	}
	e.logger.Info("destination_enriched",
		zap.String("destination_id", destinationID.String()),
		zap.Int("enriched", result.Enriched),
		zap.Int("total", result.Total),
	)
	return result, nil
}

// ProcessEnrichJob handles an enrich_destination job
func (e *PlaceEnricher) ProcessEnrichJob(ctx context.Context, job *queue.Job) error {
	if job.DestinationID == nil {
		return fmt.Errorf("destination_id is required for enrichment job: %w", ErrInvalidJob)
	}
	_, err := e.Enrich(ctx, *job.DestinationID)
	return err
}
