package workers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/benvon/family-planner/internal/models"
	"github.com/benvon/family-planner/internal/planner"
	"github.com/benvon/family-planner/internal/queue"
	"github.com/benvon/family-planner/internal/services/ai"
	"github.com/benvon/family-planner/internal/syncer"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func replayJob(t *testing.T) *queue.Job {
	t.Helper()
	job := queue.NewJob(queue.JobTypeReplaySync, uuid.New())
	if err := job.SetPayload(planner.Command{
		Kind:       planner.CmdUpsertStatus,
		PlanID:     uuid.NewString(),
		ActivityID: "a1",
		Status:     models.StatusWant,
		IssuedAt:   time.Now(),
	}); err != nil {
		t.Fatalf("SetPayload() error = %v", err)
	}
	return job
}

func TestProcessor_ProcessJob(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		job         func(t *testing.T) *queue.Job
		persister   *mockPersister
		generator   *DestinationGenerator
		wantErr     bool
		wantAck     bool
		wantNack    bool
		wantRequeue bool
		wantJobs    int
	}{
		{
			name:      "replay succeeds",
			job:       replayJob,
			persister: &mockPersister{},
			wantAck:   true,
		},
		{
			name:      "transient failure is re-enqueued with backoff",
			job:       replayJob,
			persister: &mockPersister{err: errBoom},
			wantErr:   true,
			wantAck:   true,
			wantJobs:  1,
		},
		{
			name: "max retries goes to DLQ",
			job: func(t *testing.T) *queue.Job {
				j := replayJob(t)
				j.RetryCount = j.MaxRetries
				return j
			},
			persister: &mockPersister{err: errBoom},
			wantErr:   true,
			wantNack:  true,
		},
		{
			name:      "permanent persistence error goes to DLQ",
			job:       replayJob,
			persister: &mockPersister{err: syncer.ErrPermanent},
			wantErr:   true,
			wantNack:  true,
		},
		{
			name: "unknown job type goes to DLQ",
			job: func(*testing.T) *queue.Job {
				return queue.NewJob("bogus", uuid.New())
			},
			wantErr:  true,
			wantNack: true,
		},
		{
			name: "unconfigured handler goes to DLQ",
			job: func(*testing.T) *queue.Job {
				return NewEnrichJob(uuid.New(), uuid.New())
			},
			wantErr:  true,
			wantNack: true,
		},
		{
			name: "expired job is dropped",
			job: func(t *testing.T) *queue.Job {
				j := replayJob(t)
				past := time.Now().Add(-time.Minute)
				j.NotAfter = &past
				return j
			},
			persister: &mockPersister{},
			wantAck:   true,
		},
		{
			name: "job far in the future is put back",
			job: func(t *testing.T) *queue.Job {
				j := replayJob(t)
				later := time.Now().Add(time.Hour)
				j.NotBefore = &later
				return j
			},
			persister: &mockPersister{},
			wantAck:   true,
			wantJobs:  1,
		},
		{
			name: "rate limited generation is delayed",
			job: func(t *testing.T) *queue.Job {
				j, err := NewGenerateJob(uuid.New(), ai.GenerateRequest{Name: "Camogli", Country: "Italy"})
				if err != nil {
					t.Fatal(err)
				}
				return j
			},
			generator: NewDestinationGenerator(&mockGenerator{generateFunc: func(context.Context, ai.GenerateRequest) (*ai.GeneratedDestination, error) {
				return nil, &ai.APIError{StatusCode: http.StatusTooManyRequests, Type: "rate_limit_error"}
			}}, &mockCatalogRepo{}, nil, false, nil),
			wantAck:  true,
			wantJobs: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			jobs := &mockJobQueue{}
			var replayer *SyncReplayer
			if tt.persister != nil {
				replayer = NewSyncReplayer(tt.persister, zap.NewNop())
			}
			p := NewProcessor(tt.generator, nil, replayer, jobs, zap.NewNop())
			msg := &mockMessage{job: tt.job(t)}

			err := p.ProcessJob(context.Background(), msg)
			if (err != nil) != tt.wantErr {
				t.Errorf("ProcessJob() error = %v, wantErr %v", err, tt.wantErr)
			}
			if msg.acked != tt.wantAck {
				t.Errorf("acked = %v, want %v", msg.acked, tt.wantAck)
			}
			if msg.nacked != tt.wantNack || msg.requeue != tt.wantRequeue {
				t.Errorf("nacked = %v (requeue %v), want %v (requeue %v)", msg.nacked, msg.requeue, tt.wantNack, tt.wantRequeue)
			}
			if got := len(jobs.enqueued()); got != tt.wantJobs {
				t.Errorf("enqueued %d jobs, want %d", got, tt.wantJobs)
			}
		})
	}
}

func TestProcessor_RetryIncrementsCountAndDelays(t *testing.T) {
	t.Parallel()

	jobs := &mockJobQueue{}
	p := NewProcessor(nil, nil, NewSyncReplayer(&mockPersister{err: errBoom}, nil), jobs, nil)
	job := replayJob(t)
	_ = p.ProcessJob(context.Background(), &mockMessage{job: job})

	enqueued := jobs.enqueued()
	if len(enqueued) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(enqueued))
	}
	next := enqueued[0]
	if next.ID != job.ID || next.RetryCount != job.RetryCount+1 {
		t.Errorf("retry job id %s count %d, want %s count %d", next.ID, next.RetryCount, job.ID, job.RetryCount+1)
	}
	if next.NotBefore == nil || time.Until(*next.NotBefore) < time.Second {
		t.Errorf("retry NotBefore = %v, want a backoff delay", next.NotBefore)
	}
}

func TestProcessor_RequeueWithoutQueue(t *testing.T) {
	t.Parallel()

	p := NewProcessor(nil, nil, NewSyncReplayer(&mockPersister{err: errBoom}, nil), nil, nil)
	msg := &mockMessage{job: replayJob(t)}
	if err := p.ProcessJob(context.Background(), msg); err == nil {
		t.Fatal("ProcessJob() error = nil")
	}
	if !msg.nacked || !msg.requeue {
		t.Errorf("nacked = %v requeue = %v, want requeue", msg.nacked, msg.requeue)
	}
}

func TestSyncReplayer_AppliesCommand(t *testing.T) {
	t.Parallel()

	persister := &mockPersister{}
	job := replayJob(t)
	if err := NewSyncReplayer(persister, nil).ProcessReplayJob(context.Background(), job); err != nil {
		t.Fatalf("ProcessReplayJob() error = %v", err)
	}
	if len(persister.cmds) != 1 || persister.cmds[0].ActivityID != "a1" || persister.cmds[0].Status != models.StatusWant {
		t.Errorf("applied = %+v", persister.cmds)
	}

	empty := queue.NewJob(queue.JobTypeReplaySync, uuid.New())
	if err := NewSyncReplayer(persister, nil).ProcessReplayJob(context.Background(), empty); !errors.Is(err, ErrInvalidJob) {
		t.Errorf("ProcessReplayJob(empty) error = %v, want ErrInvalidJob", err)
	}
}
