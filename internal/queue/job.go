package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypeGenerateDestination builds a destination catalog with the AI provider
	JobTypeGenerateDestination JobType = "generate_destination"
	// JobTypeEnrichDestination backfills place data for a destination's activities
	JobTypeEnrichDestination JobType = "enrich_destination"
	// JobTypeReplaySync re-applies a planner write that could not be persisted in time
	JobTypeReplaySync JobType = "replay_sync"
)

// Job represents a job in the queue
type Job struct {
	ID            uuid.UUID       `json:"id"`
	Type          JobType         `json:"type"`
	UserID        uuid.UUID       `json:"user_id"`
	DestinationID *uuid.UUID      `json:"destination_id,omitempty"`
	PlanID        *uuid.UUID      `json:"plan_id,omitempty"`
	NotBefore     *time.Time      `json:"not_before,omitempty"` // nil = immediate
	NotAfter      *time.Time      `json:"not_after,omitempty"`  // nil = no expiration
	Payload       json.RawMessage `json:"payload,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	RetryCount    int             `json:"retry_count"`
	MaxRetries    int             `json:"max_retries"`
}

// NewJob creates a new job
func NewJob(jobType JobType, userID uuid.UUID) *Job {
	return &Job{
		ID:         uuid.New(),
		Type:       jobType,
		UserID:     userID,
		CreatedAt:  time.Now(),
		RetryCount: 0,
		MaxRetries: 3,
	}
}

// SetPayload stores v as the job's JSON payload
func (j *Job) SetPayload(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal job payload: %w", err)
	}
	j.Payload = data
	return nil
}

// DecodePayload unmarshals the job's payload into v
func (j *Job) DecodePayload(v any) error {
	if len(j.Payload) == 0 {
		return fmt.Errorf("job %s has no payload", j.ID)
	}
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("failed to decode job payload: %w", err)
	}
	return nil
}

// Delayed returns a copy of the job scheduled no earlier than now+delay with
// its retry count incremented
func (j *Job) Delayed(delay time.Duration) *Job {
	next := *j
	notBefore := time.Now().Add(delay)
	next.NotBefore = &notBefore
	next.RetryCount = j.RetryCount + 1
	return &next
}

// ShouldProcess checks if the job should be processed now
func (j *Job) ShouldProcess() bool {
	now := time.Now()
	if j.NotBefore != nil && now.Before(*j.NotBefore) {
		return false
	}
	if j.NotAfter != nil && now.After(*j.NotAfter) {
		return false
	}
	return true
}

// IsExpired checks if the job has expired
func (j *Job) IsExpired() bool {
	if j.NotAfter == nil {
		return false
	}
	return time.Now().After(*j.NotAfter)
}

// CanRetry checks if the job can be retried
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// IncrementRetry increments the retry count
func (j *Job) IncrementRetry() {
	j.RetryCount++
}
