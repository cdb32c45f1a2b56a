package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benvon/family-planner/internal/database"
	"github.com/benvon/family-planner/internal/models"
	"github.com/benvon/family-planner/internal/queue"
	"github.com/benvon/family-planner/internal/request"
	"github.com/benvon/family-planner/internal/session"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return env
}

func decodeData(t *testing.T, env envelope, dst any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("Failed to decode data %s: %v", env.Data, err)
	}
}

func newUser() *models.User {
	return &models.User{ID: uuid.New(), Email: "parent@example.com"}
}

// serve routes a request through a subrouter mounted at prefix, as the server does
func serve(register func(*mux.Router), prefix string, user *models.User, method, path string, body any) *httptest.ResponseRecorder {
	router := mux.NewRouter()
	register(router.PathPrefix(prefix).Subrouter())

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if user != nil {
		req = req.WithContext(request.WithUser(req.Context(), user))
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []*queue.Job
	err  error
}

func (q *fakeQueue) Enqueue(_ context.Context, job *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type fakeDestinations struct {
	byName map[string]*models.Destination
	err    error
}

func (f *fakeDestinations) ListDestinations(context.Context) ([]models.Destination, error) {
	out := []models.Destination{}
	for _, d := range f.byName {
		out = append(out, *d)
	}
	return out, f.err
}

func (f *fakeDestinations) FindDestinationByName(_ context.Context, name string) (*models.Destination, error) {
	if f.err != nil {
		return nil, f.err
	}
	for n, d := range f.byName {
		if strings.EqualFold(n, name) {
			return d, nil
		}
	}
	return nil, database.ErrNotFound
}

type fakePlanStore struct {
	mu       sync.Mutex
	plans    map[uuid.UUID]*models.Plan
	members  map[uuid.UUID]map[uuid.UUID]models.MemberRole
	messages map[uuid.UUID][]models.PlanMessage
}

func newFakePlanStore() *fakePlanStore {
	return &fakePlanStore{
		plans:    make(map[uuid.UUID]*models.Plan),
		members:  make(map[uuid.UUID]map[uuid.UUID]models.MemberRole),
		messages: make(map[uuid.UUID][]models.PlanMessage),
	}
}

func (f *fakePlanStore) Create(_ context.Context, plan *models.Plan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	if plan.ShareCode == "" {
		plan.ShareCode = database.NewShareCode()
	}
	if plan.IsActive {
		for _, p := range f.plans {
			if p.OwnerID == plan.OwnerID {
				p.IsActive = false
			}
		}
	}
	cp := *plan
	f.plans[plan.ID] = &cp
	f.members[plan.ID] = map[uuid.UUID]models.MemberRole{plan.OwnerID: models.RoleOwner}
	return nil
}

func (f *fakePlanStore) GetByID(_ context.Context, id uuid.UUID) (*models.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plans[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePlanStore) GetByShareCode(_ context.Context, code string) (*models.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.plans {
		if p.ShareCode == code {
			cp := *p
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (f *fakePlanStore) GetActive(_ context.Context, ownerID uuid.UUID) (*models.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.plans {
		if p.OwnerID == ownerID && p.IsActive {
			cp := *p
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (f *fakePlanStore) ListForUser(_ context.Context, userID uuid.UUID) ([]*models.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.Plan{}
	for id, p := range f.plans {
		if _, member := f.members[id][userID]; member {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakePlanStore) Activate(_ context.Context, ownerID, planID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	target, ok := f.plans[planID]
	if !ok || target.OwnerID != ownerID {
		return database.ErrNotFound
	}
	for _, p := range f.plans {
		if p.OwnerID == ownerID {
			p.IsActive = p.ID == planID
		}
	}
	return nil
}

func (f *fakePlanStore) MemberRole(_ context.Context, planID, userID uuid.UUID) (models.MemberRole, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	role, ok := f.members[planID][userID]
	if !ok {
		return "", database.ErrNotFound
	}
	return role, nil
}

func (f *fakePlanStore) AddMember(_ context.Context, planID, userID uuid.UUID, role models.MemberRole) (*models.PlanMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[planID] == nil {
		f.members[planID] = make(map[uuid.UUID]models.MemberRole)
	}
	f.members[planID][userID] = role
	return &models.PlanMember{PlanID: planID, UserID: userID, Role: role, InvitedAt: time.Now()}, nil
}

func (f *fakePlanStore) ListMembers(_ context.Context, planID uuid.UUID) ([]models.PlanMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.PlanMember{}
	for userID, role := range f.members[planID] {
		out = append(out, models.PlanMember{PlanID: planID, UserID: userID, Role: role})
	}
	return out, nil
}

func (f *fakePlanStore) AddMessage(_ context.Context, msg *models.PlanMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg.ID = uuid.New()
	msg.CreatedAt = time.Now()
	f.messages[msg.PlanID] = append(f.messages[msg.PlanID], *msg)
	return nil
}

func (f *fakePlanStore) ListMessages(_ context.Context, planID uuid.UUID, _ int) ([]models.PlanMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.PlanMessage{}, f.messages[planID]...), nil
}

type fakeUsers struct {
	byEmail map[string]*models.User
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, database.ErrNotFound
	}
	return u, nil
}

type countingOpener struct {
	mu     sync.Mutex
	opened []uuid.UUID
	err    error
}

func (o *countingOpener) Open(_ context.Context, userID uuid.UUID) (*session.Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, userID)
	return nil, o.err
}

func (o *countingOpener) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.opened)
}

func assertStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, want, w.Body.String())
	}
}
