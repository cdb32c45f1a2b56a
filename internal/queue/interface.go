package queue

import (
	"context"
	"time"
)

// MessageInterface lets workers be tested without a broker
type MessageInterface interface {
	Ack() error
	Nack(requeue bool) error
	GetJob() *Job
}

// JobQueue is the interface for job queues
type JobQueue interface {
	// Enqueue adds a job to the queue
	Enqueue(ctx context.Context, job *Job) error

	// Consume delivers messages until ctx is cancelled. Each message must be
	// acked or nacked by the caller. prefetchCount bounds unacknowledged messages.
	Consume(ctx context.Context, prefetchCount int) (<-chan *Message, <-chan error, error)

	// Close closes the queue connection
	Close() error

	// HealthCheck verifies the queue connection is healthy
	HealthCheck(ctx context.Context) error
}

// Enqueuer is the publishing half of JobQueue
type Enqueuer interface {
	Enqueue(ctx context.Context, job *Job) error
}

// DLQPurger removes dead-lettered messages older than retention and returns how many it removed
type DLQPurger interface {
	PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error)
}

var _ JobQueue = (*RabbitMQQueue)(nil)
var _ DLQPurger = (*RabbitMQQueue)(nil)
