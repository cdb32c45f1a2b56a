package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	purgeTimeout = 2 * time.Minute

	// failures in a row before dlq_gc_failed is logged at error level
	gcEscalateAfter = 3
)

// GarbageCollector drops dead-lettered planner jobs (failed replays,
// generations that exhausted their retries) once they outlive retention.
type GarbageCollector struct {
	dlqPurger DLQPurger
	interval  time.Duration
	retention time.Duration
	logger    *zap.Logger

	failures int
}

// NewGarbageCollector creates a garbage collector that purges through purger every interval
func NewGarbageCollector(purger DLQPurger, interval, retention time.Duration, logger *zap.Logger) *GarbageCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GarbageCollector{
		dlqPurger: purger,
		interval:  interval,
		retention: retention,
		logger:    logger,
	}
}

// Start purges once immediately, then every interval until ctx is cancelled
func (gc *GarbageCollector) Start(ctx context.Context) error {
	gc.runOnce(ctx)

	ticker := time.NewTicker(gc.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			gc.runOnce(ctx)
		}
	}
}

func (gc *GarbageCollector) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := gc.collect(ctx); err != nil {
		gc.failures++
		level := zap.WarnLevel
		if gc.failures >= gcEscalateAfter {
			level = zap.ErrorLevel
		}
		gc.logger.Log(level, "dlq_gc_failed", zap.Int("consecutive_failures", gc.failures), zap.Error(err))
		return
	}
	gc.failures = 0
}

func (gc *GarbageCollector) collect(ctx context.Context) error {
	if gc.dlqPurger == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, purgeTimeout)
	defer cancel()
	n, err := gc.dlqPurger.PurgeOlderThan(ctx, gc.retention)
	if err != nil {
		return fmt.Errorf("failed to purge dead-lettered jobs: %w", err)
	}
	if n > 0 {
		gc.logger.Info("dlq_gc_purged",
			zap.Int("purged", n),
			zap.Duration("retention", gc.retention),
		)
	}
	return nil
}
