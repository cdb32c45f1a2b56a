package workers

import (
	"context"
	"fmt"

	"github.com/benvon/family-planner/internal/planner"
	"github.com/benvon/family-planner/internal/queue"
	"github.com/benvon/family-planner/internal/syncer"
	"go.uber.org/zap"
)

// SyncReplayer applies planner writes that were deferred to the queue
type SyncReplayer struct {
	persister syncer.Persister
	logger    *zap.Logger
}

// NewSyncReplayer creates a replayer writing through persister
func NewSyncReplayer(persister syncer.Persister, logger *zap.Logger) *SyncReplayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncReplayer{persister: persister, logger: logger}
}

// ProcessReplayJob handles a replay_sync job
func (r *SyncReplayer) ProcessReplayJob(ctx context.Context, job *queue.Job) error {
	var cmd planner.Command
	if err := job.DecodePayload(&cmd); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	if err := r.persister.Apply(ctx, cmd); err != nil {
		return fmt.Errorf("failed to replay %s: %w", cmd.Key(), err)
	}
	r.logger.Info("sync_command_replayed",
		zap.String("plan_id", cmd.PlanID),
		zap.String("kind", string(cmd.Kind)),
		zap.Int("retry_count", job.RetryCount),
	)
	return nil
}
