package queue

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// Message is a decoded planner job together with the delivery it arrived on
type Message struct {
	Job      *Job
	delivery amqp.Delivery
}

func newMessage(job *Job, delivery amqp.Delivery) *Message {
	return &Message{Job: job, delivery: delivery}
}

// Ack removes the job from the queue
func (m *Message) Ack() error {
	return m.delivery.Ack(false)
}

// Nack returns the job to the queue when requeue is set; otherwise the
// broker dead-letters it
func (m *Message) Nack(requeue bool) error {
	return m.delivery.Nack(false, requeue)
}

// GetJob returns the decoded job
func (m *Message) GetJob() *Job {
	return m.Job
}

// Redelivered reports whether the broker delivered this job before, for
// example after a worker crashed mid-replay
func (m *Message) Redelivered() bool {
	return m.delivery.Redelivered
}
