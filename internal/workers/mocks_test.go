package workers

import (
	"context"
	"errors"
	"sync"

	"github.com/benvon/family-planner/internal/database"
	"github.com/benvon/family-planner/internal/models"
	"github.com/benvon/family-planner/internal/planner"
	"github.com/benvon/family-planner/internal/queue"
	"github.com/benvon/family-planner/internal/services/ai"
	"github.com/google/uuid"
)

// mockGenerator is a mock implementation of ai.Generator
type mockGenerator struct {
	generateFunc func(ctx context.Context, req ai.GenerateRequest) (*ai.GeneratedDestination, error)
	calls        int
}

func (m *mockGenerator) GenerateDestination(ctx context.Context, req ai.GenerateRequest) (*ai.GeneratedDestination, error) {
	m.calls++
	if m.generateFunc != nil {
		return m.generateFunc(ctx, req)
	}
	return &ai.GeneratedDestination{
		Description: "Seaside village",
		Activities: []ai.GeneratedActivity{
			{Name: "Beach", Category: "outdoors", KidFriendliness: 5},
			{Name: "Bakery", Category: "food", KidFriendliness: 4},
		},
		Templates: []ai.GeneratedTemplate{{Label: "Easy day", ActivityNames: []string{"beach", "BAKERY"}}},
	}, nil
}

func (m *mockGenerator) Close() error { return nil }

var _ ai.Generator = (*mockGenerator)(nil)

// mockCatalogRepo is a mock implementation of the destination repository slices
type mockCatalogRepo struct {
	mu         sync.Mutex
	byName     map[string]uuid.UUID
	imports    []database.CatalogImport
	importErr  error
	dest       *models.Destination
	missing    []models.Activity
	updates    map[string]models.PlaceDetails
	updateErr  map[string]error
	pendingIDs []uuid.UUID
}

func (m *mockCatalogRepo) FindDestinationByName(_ context.Context, name string) (*models.Destination, error) {
	if id, ok := m.byName[name]; ok {
		return &models.Destination{ID: id, Name: name}, nil
	}
	return nil, database.ErrNotFound
}

func (m *mockCatalogRepo) ImportCatalog(_ context.Context, c database.CatalogImport) (uuid.UUID, error) {
	if m.importErr != nil {
		return uuid.Nil, m.importErr
	}
	m.imports = append(m.imports, c)
	return uuid.New(), nil
}

func (m *mockCatalogRepo) GetDestination(_ context.Context, id uuid.UUID) (*models.Destination, error) {
	if m.dest == nil || m.dest.ID != id {
		return nil, database.ErrNotFound
	}
	return m.dest, nil
}

func (m *mockCatalogRepo) ActivitiesMissingPlace(context.Context, uuid.UUID) ([]models.Activity, error) {
	return m.missing, nil
}

func (m *mockCatalogRepo) UpdateActivityPlace(_ context.Context, activityID string, place models.PlaceDetails) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.updateErr[activityID]; err != nil {
		return err
	}
	if m.updates == nil {
		m.updates = map[string]models.PlaceDetails{}
	}
	m.updates[activityID] = place
	return nil
}

func (m *mockCatalogRepo) DestinationsMissingPlaces(context.Context) ([]uuid.UUID, error) {
	return m.pendingIDs, nil
}

var (
	_ CatalogWriter           = (*mockCatalogRepo)(nil)
	_ PlaceStore              = (*mockCatalogRepo)(nil)
	_ PendingEnrichmentLister = (*mockCatalogRepo)(nil)
)

// mockJobQueue records enqueued jobs
type mockJobQueue struct {
	mu         sync.Mutex
	jobs       []*queue.Job
	enqueueErr error
}

func (m *mockJobQueue) Enqueue(_ context.Context, job *queue.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.jobs = append(m.jobs, job)
	return nil
}

func (m *mockJobQueue) enqueued() []*queue.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*queue.Job(nil), m.jobs...)
}

// mockMessage is a mock implementation of queue.MessageInterface
type mockMessage struct {
	job     *queue.Job
	acked   bool
	nacked  bool
	requeue bool
}

func (m *mockMessage) Ack() error {
	m.acked = true
	return nil
}

func (m *mockMessage) Nack(requeue bool) error {
	m.nacked = true
	m.requeue = requeue
	return nil
}

func (m *mockMessage) GetJob() *queue.Job { return m.job }

var _ queue.MessageInterface = (*mockMessage)(nil)

// mockSearcher returns canned places keyed by query
type mockSearcher struct {
	mu      sync.Mutex
	results map[string]*models.PlaceDetails
	errs    map[string]error
	queries []string
	centers [][2]float64
}

func (m *mockSearcher) SearchPlace(_ context.Context, query string, lat, lng float64) (*models.PlaceDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, query)
	m.centers = append(m.centers, [2]float64{lat, lng})
	if err := m.errs[query]; err != nil {
		return nil, err
	}
	return m.results[query], nil
}

type mockInvalidator struct{ ids []uuid.UUID }

func (m *mockInvalidator) Invalidate(_ context.Context, id uuid.UUID) error {
	m.ids = append(m.ids, id)
	return nil
}

// mockPersister applies commands or fails with err
type mockPersister struct {
	cmds []planner.Command
	err  error
}

func (m *mockPersister) Apply(_ context.Context, cmd planner.Command) error {
	if m.err != nil {
		return m.err
	}
	m.cmds = append(m.cmds, cmd)
	return nil
}

var errBoom = errors.New("boom")
