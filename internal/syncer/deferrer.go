package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/family-planner/internal/planner"
	"github.com/benvon/family-planner/internal/queue"
	"github.com/google/uuid"
)

// QueueDeferrer turns exhausted commands into replay_sync jobs
type QueueDeferrer struct {
	queue  queue.Enqueuer
	userID uuid.UUID
	delay  time.Duration
}

// NewQueueDeferrer creates a deferrer publishing on behalf of userID; jobs wait delay before running
func NewQueueDeferrer(q queue.Enqueuer, userID uuid.UUID, delay time.Duration) *QueueDeferrer {
	return &QueueDeferrer{queue: q, userID: userID, delay: delay}
}

// Defer enqueues cmd for replay by the worker
func (q *QueueDeferrer) Defer(ctx context.Context, cmd planner.Command) error {
	job := queue.NewJob(queue.JobTypeReplaySync, q.userID)
	job.MaxRetries = 5
	if planID, err := uuid.Parse(cmd.PlanID); err == nil {
		job.PlanID = &planID
	}
	if q.delay > 0 {
		notBefore := time.Now().Add(q.delay)
		job.NotBefore = &notBefore
	}
	if err := job.SetPayload(cmd); err != nil {
		return err
	}
	if err := q.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue replay job: %w", err)
	}
	return nil
}
