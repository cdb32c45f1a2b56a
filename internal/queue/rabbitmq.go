package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	// DefaultQueueName is the default queue name
	DefaultQueueName = "planner_jobs"
	// DefaultDLQName is the default dead letter queue name
	DefaultDLQName = "planner_jobs_dlq"
	// DefaultExchangeName is the default exchange name
	DefaultExchangeName = "planner"
	// DefaultDelayedExchangeName is the default delayed exchange name (requires plugin)
	DefaultDelayedExchangeName = "planner_delayed"

	jobsRoutingKey = "jobs"
	dlqRoutingKey  = "dlq"
)

// RabbitMQQueue implements JobQueue using RabbitMQ
type RabbitMQQueue struct {
	conn                *amqp.Connection
	mu                  sync.Mutex // guards channel; amqp channels are not safe for concurrent publish
	channel             *amqp.Channel
	logger              *zap.Logger
	queueName           string
	dlqName             string
	exchangeName        string
	delayedExchangeName string
	delayedAvailable    bool
}

// NewRabbitMQQueue connects to RabbitMQ and declares the exchanges and queues
func NewRabbitMQQueue(amqpURL string, logger *zap.Logger) (*RabbitMQQueue, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q := &RabbitMQQueue{
		conn:                conn,
		channel:             ch,
		logger:              logger,
		queueName:           DefaultQueueName,
		dlqName:             DefaultDLQName,
		exchangeName:        DefaultExchangeName,
		delayedExchangeName: DefaultDelayedExchangeName,
	}

	if err := q.setup(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to setup queues: %w", err)
	}

	return q, nil
}

// ConnectWithRetry dials RabbitMQ with exponential backoff (capped at 30s) to ride out broker startup
func ConnectWithRetry(ctx context.Context, amqpURL string, maxRetries int, logger *zap.Logger) (*RabbitMQQueue, error) {
	const initialDelay = 2 * time.Second
	if logger == nil {
		logger = zap.NewNop()
	}
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		q, err := NewRabbitMQQueue(amqpURL, logger)
		if err == nil {
			return q, nil
		}
		lastErr = err

		delay := initialDelay * time.Duration(1<<uint(attempt))
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
		logger.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", maxRetries),
			zap.Duration("retry_delay", delay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxRetries, lastErr)
}

func (q *RabbitMQQueue) setup() error {
	// The delayed exchange needs the rabbitmq_delayed_message_exchange plugin.
	err := q.channel.ExchangeDeclare(
		q.delayedExchangeName,
		"x-delayed-message",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		amqp.Table{"x-delayed-type": "direct"},
	)
	if err != nil {
		// A failed declare closes the channel.
		if q.channel.IsClosed() {
			newCh, openErr := q.conn.Channel()
			if openErr != nil {
				return fmt.Errorf("failed to reopen channel after delayed exchange error: %w", openErr)
			}
			q.channel = newCh
		}
		q.logger.Warn("delayed_exchange_unavailable", zap.Error(err))
	} else {
		q.delayedAvailable = true
	}

	if err := q.channel.ExchangeDeclare(q.exchangeName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if _, err := q.channel.QueueDeclare(q.dlqName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLQ: %w", err)
	}
	if err := q.channel.QueueBind(q.dlqName, dlqRoutingKey, q.exchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind DLQ: %w", err)
	}

	queueArgs := amqp.Table{
		"x-dead-letter-exchange":    q.exchangeName,
		"x-dead-letter-routing-key": dlqRoutingKey,
	}
	if _, err := q.channel.QueueDeclare(q.queueName, true, false, false, false, queueArgs); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := q.channel.QueueBind(q.queueName, jobsRoutingKey, q.exchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue to exchange: %w", err)
	}
	if q.delayedAvailable {
		if err := q.channel.QueueBind(q.queueName, jobsRoutingKey, q.delayedExchangeName, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue to delayed exchange: %w", err)
		}
	}

	return nil
}

// buildPublishing maps a job onto an AMQP publishing and picks the exchange.
// A future NotBefore uses the delayed exchange when the plugin is available.
func (q *RabbitMQQueue) buildPublishing(job *Job) (string, amqp.Publishing, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return "", amqp.Publishing{}, fmt.Errorf("failed to marshal job: %w", err)
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID.String(),
		Timestamp:    job.CreatedAt,
		Type:         string(job.Type),
	}

	if job.NotAfter != nil {
		if ttl := time.Until(*job.NotAfter); ttl > 0 {
			publishing.Expiration = fmt.Sprintf("%d", ttl.Milliseconds())
		}
	}

	exchange := q.exchangeName
	if job.NotBefore != nil && q.delayedAvailable {
		if delay := time.Until(*job.NotBefore); delay > 0 {
			exchange = q.delayedExchangeName
			publishing.Headers = amqp.Table{"x-delay": delay.Milliseconds()}
		}
	}

	return exchange, publishing, nil
}

// Enqueue adds a job to the queue
func (q *RabbitMQQueue) Enqueue(ctx context.Context, job *Job) error {
	exchange, publishing, err := q.buildPublishing(job)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.channel.PublishWithContext(ctx, exchange, jobsRoutingKey, false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}

	q.logger.Debug("job_enqueued",
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", string(job.Type)),
		zap.String("exchange", exchange),
	)
	return nil
}

// Consume returns a channel of messages from the queue using async delivery
func (q *RabbitMQQueue) Consume(ctx context.Context, prefetchCount int) (<-chan *Message, <-chan error, error) {
	// Consumers get their own channel so publishing is never blocked by deliveries.
	consumeCh, err := q.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create consumer channel: %w", err)
	}

	if err := consumeCh.Qos(prefetchCount, 0, false); err != nil {
		_ = consumeCh.Close()
		return nil, nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := consumeCh.Consume(
		q.queueName,
		"",    // consumer tag (auto-generate)
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = consumeCh.Close()
		return nil, nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	msgChan := make(chan *Message, prefetchCount)
	errChan := make(chan error, 1)

	go func() {
		defer close(msgChan)
		defer close(errChan)
		defer func() {
			_ = consumeCh.Close()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					errChan <- fmt.Errorf("delivery channel closed")
					return
				}

				var job Job
				if err := json.Unmarshal(delivery.Body, &job); err != nil {
					_ = delivery.Nack(false, false)
					q.logger.Warn("invalid_job_message_sent_to_dlq", zap.Error(err))
					continue
				}

				if job.IsExpired() {
					_ = delivery.Nack(false, false)
					continue
				}

				msg := newMessage(&job, delivery)

				select {
				case <-ctx.Done():
					_ = delivery.Nack(false, true)
					return
				case msgChan <- msg:
				}
			}
		}
	}()

	return msgChan, errChan, nil
}

// HealthCheck verifies the connection and the main queue
func (q *RabbitMQQueue) HealthCheck(ctx context.Context) error {
	if q.conn == nil || q.conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open health check channel: %w", err)
	}
	defer func() {
		_ = ch.Close()
	}()

	if _, err := ch.QueueDeclarePassive(q.queueName, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    q.exchangeName,
		"x-dead-letter-routing-key": dlqRoutingKey,
	}); err != nil {
		return fmt.Errorf("job queue unavailable: %w", err)
	}
	return nil
}

// PurgeOlderThan drops dead-lettered messages published before now-retention.
// It stops at the first younger message, which is put back on the queue.
func (q *RabbitMQQueue) PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error) {
	ch, err := q.conn.Channel()
	if err != nil {
		return 0, fmt.Errorf("failed to open purge channel: %w", err)
	}
	defer func() {
		_ = ch.Close()
	}()

	info, err := ch.QueueDeclarePassive(q.dlqName, true, false, false, false, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect DLQ: %w", err)
	}

	cutoff := time.Now().Add(-retention)
	purged := 0
	for i := 0; i < info.Messages; i++ {
		if err := ctx.Err(); err != nil {
			return purged, err
		}
		delivery, ok, err := ch.Get(q.dlqName, false)
		if err != nil {
			return purged, fmt.Errorf("failed to read DLQ: %w", err)
		}
		if !ok {
			break
		}
		if delivery.Timestamp.IsZero() || delivery.Timestamp.After(cutoff) {
			_ = delivery.Nack(false, true)
			break
		}
		if err := delivery.Ack(false); err != nil {
			return purged, fmt.Errorf("failed to drop DLQ message: %w", err)
		}
		purged++
	}
	return purged, nil
}

// Close closes the queue connection
func (q *RabbitMQQueue) Close() error {
	var err error
	if q.channel != nil {
		err = q.channel.Close()
	}
	if q.conn != nil {
		if closeErr := q.conn.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}
