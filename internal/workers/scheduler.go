package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/family-planner/internal/queue"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PendingEnrichmentLister finds destinations that still have activities without place data
type PendingEnrichmentLister interface {
	DestinationsMissingPlaces(ctx context.Context) ([]uuid.UUID, error)
}

// EnrichScheduler periodically queues enrichment for destinations with unmatched activities
type EnrichScheduler struct {
	jobQueue queue.Enqueuer
	repo     PendingEnrichmentLister
	logger   *zap.Logger
	now      func() time.Time
}

// NewEnrichScheduler creates a new enrichment scheduler
func NewEnrichScheduler(jobQueue queue.Enqueuer, repo PendingEnrichmentLister, logger *zap.Logger) *EnrichScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrichScheduler{
		jobQueue: jobQueue,
		repo:     repo,
		logger:   logger,
		now:      time.Now,
	}
}

// ScheduleEnrichmentJobs enqueues one enrichment job per destination that needs one.
// Jobs expire after validFor so a backlog does not pile up across runs.
func (s *EnrichScheduler) ScheduleEnrichmentJobs(ctx context.Context, validFor time.Duration) (int, error) {
	ids, err := s.repo.DestinationsMissingPlaces(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list destinations missing places: %w", err)
	}

	scheduled := 0
	for _, id := range ids {
		job := NewEnrichJob(uuid.Nil, id)
		if validFor > 0 {
			notAfter := s.now().Add(validFor)
			job.NotAfter = &notAfter
		}
		if err := s.jobQueue.Enqueue(ctx, job); err != nil {
			s.logger.Warn("failed_to_schedule_enrichment",
				zap.String("destination_id", id.String()),
				zap.Error(err),
			)
			continue
		}
		scheduled++
	}

	s.logger.Info("scheduled_enrichment_jobs",
		zap.Int("destination_count", len(ids)),
		zap.Int("scheduled", scheduled),
	)
	return scheduled, nil
}

// Start schedules enrichment every interval until ctx is cancelled
func (s *EnrichScheduler) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ScheduleEnrichmentJobs(ctx, interval); err != nil {
				s.logger.Error("enrichment_scheduling_failed", zap.Error(err))
			}
		}
	}
}
