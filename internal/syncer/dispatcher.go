// Package syncer makes planner mutations durable without blocking the caller.
// Commands for one plan are persisted in issue order by a single goroutine,
// retried with exponential backoff and deferred to the job queue when retries
// run out. Failed writes never roll back the in-memory change.
package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benvon/family-planner/internal/planner"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrPermanent marks persistence errors that retrying cannot fix
var ErrPermanent = errors.New("permanent persistence error")

const maxFailures = 20

// Persister applies a command to durable storage. Implementations must be idempotent.
type Persister interface {
	Apply(ctx context.Context, cmd planner.Command) error
}

// Deferrer hands off a command whose retries are exhausted
type Deferrer interface {
	Defer(ctx context.Context, cmd planner.Command) error
}

// Failure is a write that could not be persisted, kept for display as a non-fatal notice
type Failure struct {
	Kind     planner.CommandKind `json:"kind"`
	Key      string              `json:"key"`
	Error    string              `json:"error"`
	Deferred bool                `json:"deferred"`
	At       time.Time           `json:"at"`
}

// Dispatcher persists the commands of one plan
type Dispatcher struct {
	persister Persister
	deferrer  Deferrer
	logger    *zap.Logger
	tracer    trace.Tracer

	maxAttempts     uint64
	initialInterval time.Duration
	maxInterval     time.Duration
	attemptTimeout  time.Duration

	mu       sync.Mutex
	pending  []planner.Command
	failures []Failure
	closed   bool

	inflight atomic.Int64
	wake     chan struct{}
	done     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithDeferrer sets where exhausted commands go
func WithDeferrer(d Deferrer) Option {
	return func(disp *Dispatcher) {
		disp.deferrer = d
	}
}

// WithRetry sets the attempt budget and backoff bounds
func WithRetry(maxAttempts int, initial, max time.Duration) Option {
	return func(d *Dispatcher) {
		if maxAttempts > 0 {
			d.maxAttempts = uint64(maxAttempts)
		}
		if initial > 0 {
			d.initialInterval = initial
		}
		if max > 0 {
			d.maxInterval = max
		}
	}
}

// WithAttemptTimeout bounds a single persistence attempt
func WithAttemptTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.attemptTimeout = timeout
		}
	}
}

// NewDispatcher starts a dispatcher writing through persister
func NewDispatcher(persister Persister, logger *zap.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		persister:       persister,
		logger:          logger,
		tracer:          otel.Tracer("github.com/benvon/family-planner/internal/syncer"),
		maxAttempts:     5,
		initialInterval: 200 * time.Millisecond,
		maxInterval:     5 * time.Second,
		attemptTimeout:  10 * time.Second,
		wake:            make(chan struct{}, 1),
		done:            make(chan struct{}),
		ctx:             ctx,
		cancel:          cancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	go d.run()
	return d
}

// Dispatch queues cmd for persistence and returns immediately. A command
// dispatched after Close, by a request still holding a closed session, is
// written on its own goroutine and deferred if that write fails.
func (d *Dispatcher) Dispatch(cmd planner.Command) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		go d.persistLate(cmd)
		return
	}
	d.pending = append(d.pending, cmd)
	d.inflight.Add(1)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// IsSyncing reports whether any command is waiting or being written
func (d *Dispatcher) IsSyncing() bool {
	return d.inflight.Load() > 0
}

// Pending returns the number of commands not yet persisted or given up on
func (d *Dispatcher) Pending() int {
	return int(d.inflight.Load())
}

// Failures returns the most recent writes that could not be persisted
func (d *Dispatcher) Failures() []Failure {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Failure{}, d.failures...)
}

// Close stops accepting commands and waits for queued ones to be written.
// When ctx ends first, remaining retries are abandoned and deferred.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
	}
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}

	select {
	case <-d.done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-d.done
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		cmd, ok, closed := d.next()
		if ok {
			d.apply(cmd)
			d.inflight.Add(-1)
			continue
		}
		if closed {
			return
		}
		<-d.wake
	}
}

func (d *Dispatcher) next() (planner.Command, bool, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) == 0 {
		return planner.Command{}, false, d.closed
	}
	cmd := d.pending[0]
	d.pending = d.pending[1:]
	return cmd, true, false
}

func (d *Dispatcher) apply(cmd planner.Command) {
	ctx, span := d.tracer.Start(d.ctx, "syncer.apply", trace.WithAttributes(
		attribute.String("plan_id", cmd.PlanID),
		attribute.String("command.kind", string(cmd.Kind)),
		attribute.String("command.key", cmd.Key()),
	))
	defer span.End()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.initialInterval
	policy.MaxInterval = d.maxInterval
	policy.MaxElapsedTime = 0

	op := func() error {
		cmd.Attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
		defer cancel()
		err := d.persister.Apply(attemptCtx, cmd)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrPermanent) {
			return backoff.Permanent(err)
		}
		d.logger.Debug("persist_attempt_failed",
			zap.String("plan_id", cmd.PlanID),
			zap.String("kind", string(cmd.Kind)),
			zap.Int("attempt", cmd.Attempts),
			zap.Error(err),
		)
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, d.maxAttempts-1), ctx))
	span.SetAttributes(attribute.Int("command.attempts", cmd.Attempts))
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "persist failed")

	deferred := false
	if d.deferrer != nil && !errors.Is(err, ErrPermanent) {
		deferCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.attemptTimeout)
		if deferErr := d.deferrer.Defer(deferCtx, cmd); deferErr != nil {
			d.logger.Error("failed_to_defer_command",
				zap.String("plan_id", cmd.PlanID),
				zap.String("kind", string(cmd.Kind)),
				zap.Error(deferErr),
			)
		} else {
			deferred = true
		}
		cancel()
	}

	d.logger.Warn("failed_to_persist_command",
		zap.String("plan_id", cmd.PlanID),
		zap.String("kind", string(cmd.Kind)),
		zap.String("key", cmd.Key()),
		zap.Int("attempts", cmd.Attempts),
		zap.Bool("deferred", deferred),
		zap.Error(err),
	)

	d.mu.Lock()
	d.recordLocked(cmd, err, deferred)
	d.mu.Unlock()
}

// persistLate makes one attempt to write cmd outside the ordered queue. Stores
// version every write by IssuedAt, so losing queue order cannot undo newer state.
func (d *Dispatcher) persistLate(cmd planner.Command) {
	ctx, cancel := context.WithTimeout(context.Background(), d.attemptTimeout)
	defer cancel()

	cmd.Attempts++
	err := d.persister.Apply(ctx, cmd)
	if err == nil {
		d.logger.Debug("late_command_persisted",
			zap.String("plan_id", cmd.PlanID),
			zap.String("kind", string(cmd.Kind)),
		)
		return
	}

	deferred := false
	if d.deferrer != nil && !errors.Is(err, ErrPermanent) {
		if deferErr := d.deferrer.Defer(ctx, cmd); deferErr == nil {
			deferred = true
		} else {
			err = errors.Join(err, deferErr)
		}
	}
	d.logger.Warn("failed_to_persist_late_command",
		zap.String("plan_id", cmd.PlanID),
		zap.String("kind", string(cmd.Kind)),
		zap.String("key", cmd.Key()),
		zap.Bool("deferred", deferred),
		zap.Error(err),
	)

	d.mu.Lock()
	d.recordLocked(cmd, err, deferred)
	d.mu.Unlock()
}

func (d *Dispatcher) recordLocked(cmd planner.Command, err error, deferred bool) {
	d.failures = append(d.failures, Failure{
		Kind:     cmd.Kind,
		Key:      cmd.Key(),
		Error:    err.Error(),
		Deferred: deferred,
		At:       time.Now().UTC(),
	})
	if len(d.failures) > maxFailures {
		d.failures = d.failures[len(d.failures)-maxFailures:]
	}
}

var _ planner.Sink = (*Dispatcher)(nil)
