package queue

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func timePtr(t time.Time) *time.Time {
	return &t
}

func TestNewJob(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	job := NewJob(JobTypeGenerateDestination, userID)

	if job.ID == uuid.Nil {
		t.Error("Expected job ID to be set")
	}
	if job.Type != JobTypeGenerateDestination {
		t.Errorf("Expected job type to be %s, got %s", JobTypeGenerateDestination, job.Type)
	}
	if job.UserID != userID {
		t.Errorf("Expected user ID to be %s, got %s", userID, job.UserID)
	}
	if job.RetryCount != 0 {
		t.Errorf("Expected retry count to be 0, got %d", job.RetryCount)
	}
	if job.MaxRetries != 3 {
		t.Errorf("Expected max retries to be 3, got %d", job.MaxRetries)
	}
}

func TestJob_ShouldProcess(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tests := []struct {
		name string
		job  *Job
		want bool
	}{
		{"no time constraints", &Job{}, true},
		{"not before in past", &Job{NotBefore: timePtr(now.Add(-time.Hour))}, true},
		{"not before in future", &Job{NotBefore: timePtr(now.Add(time.Hour))}, false},
		{"not after in future", &Job{NotAfter: timePtr(now.Add(time.Hour))}, true},
		{"not after in past", &Job{NotAfter: timePtr(now.Add(-time.Hour))}, false},
		{
			name: "inside window",
			job:  &Job{NotBefore: timePtr(now.Add(-time.Hour)), NotAfter: timePtr(now.Add(time.Hour))},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.job.ShouldProcess(); got != tt.want {
				t.Errorf("ShouldProcess() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJob_IsExpired(t *testing.T) {
	t.Parallel()

	if (&Job{}).IsExpired() {
		t.Error("job without NotAfter reported expired")
	}
	if !(&Job{NotAfter: timePtr(time.Now().Add(-time.Minute))}).IsExpired() {
		t.Error("job past NotAfter not reported expired")
	}
}

func TestJob_Retry(t *testing.T) {
	t.Parallel()

	job := NewJob(JobTypeEnrichDestination, uuid.New())
	for i := 0; i < job.MaxRetries; i++ {
		if !job.CanRetry() {
			t.Fatalf("CanRetry() = false after %d retries", i)
		}
		job.IncrementRetry()
	}
	if job.CanRetry() {
		t.Error("CanRetry() = true after max retries")
	}
}

func TestJob_Delayed(t *testing.T) {
	t.Parallel()

	destID := uuid.New()
	job := NewJob(JobTypeEnrichDestination, uuid.New())
	job.DestinationID = &destID

	next := job.Delayed(time.Minute)
	if next.ID != job.ID || next.DestinationID != job.DestinationID {
		t.Error("Delayed() changed job identity")
	}
	if next.RetryCount != job.RetryCount+1 {
		t.Errorf("RetryCount = %d, want %d", next.RetryCount, job.RetryCount+1)
	}
	if next.NotBefore == nil || time.Until(*next.NotBefore) < 50*time.Second {
		t.Errorf("NotBefore = %v, want about a minute from now", next.NotBefore)
	}
	if job.NotBefore != nil {
		t.Error("Delayed() mutated the original job")
	}
}

func TestJob_Payload(t *testing.T) {
	t.Parallel()

	type request struct {
		Name string  `json:"name"`
		Lat  float64 `json:"lat"`
	}

	job := NewJob(JobTypeGenerateDestination, uuid.New())
	var empty request
	if err := job.DecodePayload(&empty); err == nil {
		t.Error("DecodePayload() on empty payload returned nil error")
	}

	if err := job.SetPayload(request{Name: "Innsbruck", Lat: 47.26}); err != nil {
		t.Fatalf("SetPayload() error = %v", err)
	}
	var got request
	if err := job.DecodePayload(&got); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if got.Name != "Innsbruck" || got.Lat != 47.26 {
		t.Errorf("payload = %+v", got)
	}
}
