package workers

import (
	"context"
	"errors"
	"testing"

	"github.com/benvon/family-planner/internal/models"
	"github.com/benvon/family-planner/internal/queue"
	"github.com/benvon/family-planner/internal/services/ai"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func TestDestinationGenerator_Generate(t *testing.T) {
	t.Parallel()

	existingID := uuid.New()

	tests := []struct {
		name        string
		req         ai.GenerateRequest
		repo        *mockCatalogRepo
		provider    *mockGenerator
		wantExisted bool
		wantCalls   int
		wantErr     error
		validate    func(*testing.T, *mockCatalogRepo)
	}{
		{
			name:      "generates and imports",
			req:       ai.GenerateRequest{Name: " Camogli ", Country: "Italy", Lat: 44.35, Lng: 9.15},
			repo:      &mockCatalogRepo{},
			provider:  &mockGenerator{},
			wantCalls: 1,
			validate: func(t *testing.T, repo *mockCatalogRepo) {
				if len(repo.imports) != 1 {
					t.Fatalf("imports = %d, want 1", len(repo.imports))
				}
				imp := repo.imports[0]
				if imp.Destination.Name != "Camogli" || imp.Destination.Timezone != "Europe/Berlin" {
					t.Errorf("destination = %+v", imp.Destination)
				}
				if len(imp.Activities) != 2 || imp.Activities[0].Source != models.SourceAI {
					t.Errorf("activities = %+v", imp.Activities)
				}
			},
		},
		{
			name:        "short-circuits on existing name",
			req:         ai.GenerateRequest{Name: "Camogli", Country: "Italy"},
			repo:        &mockCatalogRepo{byName: map[string]uuid.UUID{"Camogli": existingID}},
			provider:    &mockGenerator{},
			wantExisted: true,
		},
		{
			name:    "missing country",
			req:     ai.GenerateRequest{Name: "Camogli"},
			repo:    &mockCatalogRepo{},
			wantErr: ErrInvalidJob,
		},
		{
			name: "provider failure",
			req:  ai.GenerateRequest{Name: "Camogli", Country: "Italy"},
			repo: &mockCatalogRepo{},
			provider: &mockGenerator{generateFunc: func(context.Context, ai.GenerateRequest) (*ai.GeneratedDestination, error) {
				return nil, errBoom
			}},
			wantCalls: 1,
			wantErr:   errBoom,
		},
		{
			name:      "import failure",
			req:       ai.GenerateRequest{Name: "Camogli", Country: "Italy"},
			repo:      &mockCatalogRepo{importErr: errBoom},
			provider:  &mockGenerator{},
			wantCalls: 1,
			wantErr:   errBoom,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			provider := tt.provider
			if provider == nil {
				provider = &mockGenerator{}
			}
			g := NewDestinationGenerator(provider, tt.repo, nil, false, zap.NewNop())
			id, existed, err := g.Generate(context.Background(), tt.req, nil)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Generate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			if existed != tt.wantExisted {
				t.Errorf("existed = %v, want %v", existed, tt.wantExisted)
			}
			if tt.wantExisted && id != existingID {
				t.Errorf("id = %s, want %s", id, existingID)
			}
			if provider.calls != tt.wantCalls {
				t.Errorf("provider called %d times, want %d", provider.calls, tt.wantCalls)
			}
			if tt.validate != nil {
				tt.validate(t, tt.repo)
			}
		})
	}
}

func TestDestinationGenerator_ProcessGenerateJobEnqueuesEnrichment(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	job, err := NewGenerateJob(userID, ai.GenerateRequest{Name: "Camogli", Country: "Italy"})
	if err != nil {
		t.Fatalf("NewGenerateJob() error = %v", err)
	}

	jobs := &mockJobQueue{}
	repo := &mockCatalogRepo{}
	g := NewDestinationGenerator(&mockGenerator{}, repo, jobs, true, zap.NewNop())
	if err := g.ProcessGenerateJob(context.Background(), job); err != nil {
		t.Fatalf("ProcessGenerateJob() error = %v", err)
	}

	if len(repo.imports) != 1 || repo.imports[0].CreatedBy == nil || *repo.imports[0].CreatedBy != userID {
		t.Errorf("import created_by not set to job user")
	}
	enqueued := jobs.enqueued()
	if len(enqueued) != 1 || enqueued[0].Type != queue.JobTypeEnrichDestination || enqueued[0].DestinationID == nil {
		t.Fatalf("enqueued = %+v, want one enrichment job", enqueued)
	}
}

func TestDestinationGenerator_ProcessGenerateJobWithoutEnrichment(t *testing.T) {
	t.Parallel()

	job, _ := NewGenerateJob(uuid.New(), ai.GenerateRequest{Name: "Camogli", Country: "Italy"})
	jobs := &mockJobQueue{}
	g := NewDestinationGenerator(&mockGenerator{}, &mockCatalogRepo{}, jobs, false, nil)
	if err := g.ProcessGenerateJob(context.Background(), job); err != nil {
		t.Fatalf("ProcessGenerateJob() error = %v", err)
	}
	if n := len(jobs.enqueued()); n != 0 {
		t.Errorf("enqueued %d jobs without a places key, want 0", n)
	}
}

func TestDestinationGenerator_ProcessGenerateJobBadPayload(t *testing.T) {
	t.Parallel()

	job := queue.NewJob(queue.JobTypeGenerateDestination, uuid.New())
	g := NewDestinationGenerator(&mockGenerator{}, &mockCatalogRepo{}, nil, false, nil)
	if err := g.ProcessGenerateJob(context.Background(), job); !errors.Is(err, ErrInvalidJob) {
		t.Errorf("ProcessGenerateJob() error = %v, want ErrInvalidJob", err)
	}
}
