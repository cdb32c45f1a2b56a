package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/family-planner/internal/queue"
	"github.com/benvon/family-planner/internal/services/ai"
	"github.com/benvon/family-planner/internal/syncer"
	"go.uber.org/zap"
)

var (
	// ErrInvalidJob marks jobs that can never succeed; they go straight to the DLQ
	ErrInvalidJob = errors.New("invalid job")
	// ErrHandlerNotConfigured is returned for job types this worker cannot run
	ErrHandlerNotConfigured = errors.New("job handler not configured")
)

// maxEarlyHold bounds how long a job delivered before its NotBefore is held
// before being put back on the queue
const maxEarlyHold = 30 * time.Second

// Processor routes queued jobs to their handlers and applies the retry policy
type Processor struct {
	generator *DestinationGenerator
	enricher  *PlaceEnricher
	replayer  *SyncReplayer
	jobQueue  queue.Enqueuer
	logger    *zap.Logger
	now       func() time.Time
}

// NewProcessor creates a processor. Any handler may be nil; its jobs are then dead-lettered.
func NewProcessor(generator *DestinationGenerator, enricher *PlaceEnricher, replayer *SyncReplayer, jobQueue queue.Enqueuer, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		generator: generator,
		enricher:  enricher,
		replayer:  replayer,
		jobQueue:  jobQueue,
		logger:    logger,
		now:       time.Now,
	}
}

// ProcessJob processes a job based on its type
func (p *Processor) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()

	if job.IsExpired() {
		p.logger.Info("job_expired_dropped", zap.String("job_id", job.ID.String()), zap.String("job_type", string(job.Type)))
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack expired job: %w", ackErr)
		}
		return nil
	}

	if !job.ShouldProcess() {
		ready, err := p.holdUntilReady(ctx, msg, job)
		if !ready {
			return err
		}
	}

	err := p.dispatch(ctx, job)
	if err != nil {
		return p.handleJobError(ctx, msg, job, err)
	}
	if ackErr := msg.Ack(); ackErr != nil {
		return fmt.Errorf("failed to ack job: %w", ackErr)
	}
	return nil
}

func (p *Processor) dispatch(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeGenerateDestination:
		if p.generator == nil {
			return fmt.Errorf("%s: %w", job.Type, ErrHandlerNotConfigured)
		}
		return p.generator.ProcessGenerateJob(ctx, job)
	case queue.JobTypeEnrichDestination:
		if p.enricher == nil {
			return fmt.Errorf("%s: %w", job.Type, ErrHandlerNotConfigured)
		}
		return p.enricher.ProcessEnrichJob(ctx, job)
	case queue.JobTypeReplaySync:
		if p.replayer == nil {
			return fmt.Errorf("%s: %w", job.Type, ErrHandlerNotConfigured)
		}
		return p.replayer.ProcessReplayJob(ctx, job)
	default:
		return fmt.Errorf("unknown job type %q: %w", job.Type, ErrInvalidJob)
	}
}

// holdUntilReady waits for a job that arrived early, which happens when the
// broker has no delayed exchange. Jobs further out are put back on the queue.
func (p *Processor) holdUntilReady(ctx context.Context, msg queue.MessageInterface, job *queue.Job) (bool, error) {
	if job.NotBefore == nil {
		// expired since the first check
		if ackErr := msg.Ack(); ackErr != nil {
			p.logger.Warn("failed_to_ack_expired_job", zap.Error(ackErr))
		}
		return false, nil
	}
	wait := job.NotBefore.Sub(p.now())
	if wait <= maxEarlyHold {
		select {
		case <-ctx.Done():
			if nackErr := msg.Nack(true); nackErr != nil {
				p.logger.Warn("failed_to_nack_job", zap.Error(nackErr))
			}
			return false, ctx.Err()
		case <-time.After(wait):
			return true, nil
		}
	}

	if p.jobQueue == nil {
		if nackErr := msg.Nack(true); nackErr != nil {
			p.logger.Warn("failed_to_nack_job", zap.Error(nackErr))
		}
		return false, nil
	}
	if ackErr := msg.Ack(); ackErr != nil {
		p.logger.Warn("failed_to_ack_job_for_later_processing", zap.Error(ackErr))
	}
	if err := p.jobQueue.Enqueue(ctx, job); err != nil {
		return false, fmt.Errorf("failed to re-enqueue early job %s: %w", job.ID, err)
	}
	p.logger.Debug("job_not_ready_requeued", zap.String("job_id", job.ID.String()), zap.Time("not_before", *job.NotBefore))
	return false, nil
}

// handleJobError applies the retry policy. Quota and rate-limit errors are
// re-enqueued with a long delay, other errors back off until MaxRetries, and
// invalid jobs go straight to the DLQ.
func (p *Processor) handleJobError(ctx context.Context, msg queue.MessageInterface, job *queue.Job, err error) error {
	fields := []zap.Field{
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", string(job.Type)),
		zap.Int("retry_count", job.RetryCount),
		zap.Int("max_retries", job.MaxRetries),
		zap.Error(err),
	}

	if errors.Is(err, ErrInvalidJob) || errors.Is(err, ErrHandlerNotConfigured) || errors.Is(err, syncer.ErrPermanent) {
		p.logger.Error("job_failed_permanently", fields...)
		p.nack(msg, false)
		return fmt.Errorf("job failed permanently: %w", err)
	}

	if ai.IsQuotaError(err) || ai.IsRateLimitError(err) {
		quota := ai.IsQuotaError(err)
		if (quota || job.CanRetry()) && p.jobQueue != nil {
			delay := ai.GetRetryDelay(err, job.RetryCount)
			delayed := job.Delayed(delay)
			if ackErr := msg.Ack(); ackErr != nil {
				p.logger.Warn("failed_to_ack_job_before_reenqueue", zap.Error(ackErr))
			}
			if enqueueErr := p.jobQueue.Enqueue(ctx, delayed); enqueueErr != nil {
				p.logger.Error("failed_to_reenqueue_job", append(fields, zap.NamedError("enqueue_error", enqueueErr))...)
				return fmt.Errorf("rate limited, failed to re-enqueue: %w", enqueueErr)
			}
			p.logger.Warn("job_rate_limited_reenqueued", append(fields,
				zap.Bool("quota", quota),
				zap.Duration("retry_in", delay),
				zap.Time("not_before", *delayed.NotBefore),
			)...)
			return nil
		}
		if quota {
			// no queue to delay on; avoid hammering the provider
			p.logger.Error("job_quota_exhausted", fields...)
			p.nack(msg, false)
			return fmt.Errorf("quota exhausted (job %s): %w", job.ID, err)
		}
	}

	if job.CanRetry() {
		// a requeued delivery keeps its old body, so the retry count only
		// advances when the job is published again
		if p.jobQueue != nil {
			delay := ai.GetRetryDelay(err, job.RetryCount)
			if ackErr := msg.Ack(); ackErr != nil {
				p.logger.Warn("failed_to_ack_job_before_reenqueue", zap.Error(ackErr))
			}
			if enqueueErr := p.jobQueue.Enqueue(ctx, job.Delayed(delay)); enqueueErr != nil {
				p.logger.Error("failed_to_reenqueue_job", append(fields, zap.NamedError("enqueue_error", enqueueErr))...)
				return fmt.Errorf("job failed, failed to re-enqueue: %w", enqueueErr)
			}
			p.logger.Warn("job_failed_will_retry", append(fields, zap.Duration("retry_in", delay))...)
			return fmt.Errorf("job failed (will retry): %w", err)
		}
		job.IncrementRetry()
		p.logger.Warn("job_failed_will_retry", fields...)
		p.nack(msg, true)
		return fmt.Errorf("job failed (will retry): %w", err)
	}

	p.logger.Error("job_failed_max_retries", fields...)
	p.nack(msg, false)
	return fmt.Errorf("job failed (max retries): %w", err)
}

func (p *Processor) nack(msg queue.MessageInterface, requeue bool) {
	if err := msg.Nack(requeue); err != nil {
		p.logger.Warn("failed_to_nack_job", zap.Bool("requeue", requeue), zap.Error(err))
	}
}
