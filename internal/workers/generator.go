package workers

import (
	"context"
	"errors"
	"fmt"

	"github.com/benvon/family-planner/internal/database"
	"github.com/benvon/family-planner/internal/models"
	"github.com/benvon/family-planner/internal/queue"
	"github.com/benvon/family-planner/internal/services/ai"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CatalogWriter is the slice of the destination repository the generator needs
type CatalogWriter interface {
	FindDestinationByName(ctx context.Context, name string) (*models.Destination, error)
	ImportCatalog(ctx context.Context, c database.CatalogImport) (uuid.UUID, error)
}

// DestinationGenerator builds destination catalogs with an AI provider
type DestinationGenerator struct {
	provider ai.Generator
	repo     CatalogWriter
	jobQueue queue.Enqueuer
	enrich   bool
	logger   *zap.Logger
}

// NewDestinationGenerator creates a generator. When enrich is set and jobQueue is
// non-nil, every generated destination is queued for places enrichment.
func NewDestinationGenerator(provider ai.Generator, repo CatalogWriter, jobQueue queue.Enqueuer, enrich bool, logger *zap.Logger) *DestinationGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DestinationGenerator{
		provider: provider,
		repo:     repo,
		jobQueue: jobQueue,
		enrich:   enrich,
		logger:   logger,
	}
}

// Generate creates the destination unless one with the same name exists, and
// reports whether it already existed
func (g *DestinationGenerator) Generate(ctx context.Context, req ai.GenerateRequest, createdBy *uuid.UUID) (uuid.UUID, bool, error) {
	req = req.Normalize()
	if req.Name == "" || req.Country == "" {
		return uuid.Nil, false, fmt.Errorf("name and country are required: %w", ErrInvalidJob)
	}

	existing, err := g.repo.FindDestinationByName(ctx, req.Name)
	if err == nil {
		return existing.ID, true, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return uuid.Nil, false, fmt.Errorf("failed to look up destination: %w", err)
	}

	guide, err := g.provider.GenerateDestination(ctx, req)
	if err != nil {
		return uuid.Nil, false, err
	}

	id, err := g.repo.ImportCatalog(ctx, guide.Import(req, createdBy))
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to store generated destination: %w", err)
	}
	g.logger.Info("destination_created",
		zap.String("destination_id", id.String()),
		zap.String("name", req.Name),
		zap.Int("activities", len(guide.Activities)),
		zap.Int("templates", len(guide.Templates)),
	)
	return id, false, nil
}

// ProcessGenerateJob handles a generate_destination job
func (g *DestinationGenerator) ProcessGenerateJob(ctx context.Context, job *queue.Job) error {
	var req ai.GenerateRequest
	if err := job.DecodePayload(&req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}

	ctx = ai.WithJob(ctx, job.ID, job.UserID)

	createdBy := job.UserID
	var by *uuid.UUID
	if createdBy != uuid.Nil {
		by = &createdBy
	}
	id, existed, err := g.Generate(ctx, req, by)
	if err != nil {
		return err
	}
	if existed {
		g.logger.Info("destination_already_exists",
			zap.String("destination_id", id.String()),
			zap.String("name", req.Name),
		)
		return nil
	}

	if g.enrich && g.jobQueue != nil {
		enrichJob := NewEnrichJob(job.UserID, id)
		if err := g.jobQueue.Enqueue(ctx, enrichJob); err != nil {
			// the catalog is usable without places data
			g.logger.Warn("failed_to_enqueue_enrichment",
				zap.String("destination_id", id.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}

// NewGenerateJob builds a generate_destination job for req
func NewGenerateJob(userID uuid.UUID, req ai.GenerateRequest) (*queue.Job, error) {
	job := queue.NewJob(queue.JobTypeGenerateDestination, userID)
	if err := job.SetPayload(req.Normalize()); err != nil {
		return nil, err
	}
	return job, nil
}

// NewEnrichJob builds an enrich_destination job
func NewEnrichJob(userID, destinationID uuid.UUID) *queue.Job {
	job := queue.NewJob(queue.JobTypeEnrichDestination, userID)
	job.DestinationID = &destinationID
	return job
}
