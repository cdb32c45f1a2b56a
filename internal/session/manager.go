// Package session owns the per-user planner sessions of the server: the
// hydrated store, its catalog and the dispatcher persisting its changes.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benvon/family-planner/internal/catalog"
	"github.com/benvon/family-planner/internal/database"
	"github.com/benvon/family-planner/internal/models"
	"github.com/benvon/family-planner/internal/planner"
	"github.com/benvon/family-planner/internal/syncer"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoActivePlan is returned when the user has no active plan to open
	ErrNoActivePlan = errors.New("no active plan")
	// ErrHydrationAborted is returned when the session was closed or reopened
	// while its state was still loading
	ErrHydrationAborted = errors.New("session hydration aborted")
)

// PlanLookup finds the plan a session is opened for
type PlanLookup interface {
	GetActive(ctx context.Context, ownerID uuid.UUID) (*models.Plan, error)
}

// StateLoader reads the persisted planner state of a plan
type StateLoader interface {
	LoadState(ctx context.Context, planID uuid.UUID) (models.PlannerState, error)
}

// DeferrerFactory builds the deferrer used by a user's dispatcher
type DeferrerFactory func(userID uuid.UUID) syncer.Deferrer

// Session is one user's open planner
type Session struct {
	UserID     uuid.UUID
	Plan       models.Plan
	Bundle     *catalog.Bundle
	Store      *planner.Store
	Dispatcher *syncer.Dispatcher

	lastSeen atomic.Int64
}

// LastSeen returns when the session was last used
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

// hydration is one Open in progress. Its result fields are written before
// done is closed.
type hydration struct {
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	drained chan struct{}
	after   <-chan struct{}
	old     *Session

	session    *Session
	err        error
	superseded bool
}

// hydrateTimeout bounds a hydration shared by concurrent callers
const hydrateTimeout = 30 * time.Second

// Manager creates, looks up and destroys sessions
type Manager struct {
	plans       PlanLookup
	states      StateLoader
	source      catalog.Source
	persister   syncer.Persister
	deferrers   DeferrerFactory
	syncOptions []syncer.Option
	logger      *zap.Logger
	idleTimeout time.Duration
	now         func() time.Time

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	pending  map[uuid.UUID]*hydration
}

// Option configures a Manager
type Option func(*Manager)

// WithIdleTimeout sets how long an unused session survives a sweep
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.idleTimeout = d
		}
	}
}

// WithDeferrerFactory defers commands that exhaust their retries
func WithDeferrerFactory(f DeferrerFactory) Option {
	return func(m *Manager) {
		m.deferrers = f
	}
}

// WithSyncOptions passes options to every dispatcher
func WithSyncOptions(opts ...syncer.Option) Option {
	return func(m *Manager) {
		m.syncOptions = append(m.syncOptions, opts...)
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a session manager
func NewManager(plans PlanLookup, states StateLoader, source catalog.Source, persister syncer.Persister, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		plans:       plans,
		states:      states,
		source:      source,
		persister:   persister,
		logger:      logger,
		idleTimeout: 2 * time.Hour,
		now:         time.Now,
		sessions:    make(map[uuid.UUID]*Session),
		pending:     make(map[uuid.UUID]*hydration),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the user's open session
func (m *Manager) Get(userID uuid.UUID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// GetOrOpen returns the open session, opening one when there is none.
// Concurrent callers share a single hydration.
func (m *Manager) GetOrOpen(ctx context.Context, userID uuid.UUID) (*Session, error) {
	for {
		m.mu.Lock()
		if s, ok := m.sessions[userID]; ok {
			m.mu.Unlock()
			s.touch(m.now())
			return s, nil
		}
		h, ok := m.pending[userID]
		if !ok {
			h = m.beginLocked(ctx, userID)
			m.mu.Unlock()
			return m.finish(userID, h)
		}
		m.mu.Unlock()

		select {
		case <-h.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		// a newer Open replaced the one we waited on; wait for that one instead
		if !h.superseded {
			return h.session, h.err
		}
	}
}

// Open hydrates a fresh session for the user's active plan, replacing any open
// one. The replaced session's pending writes are flushed before the state is
// read. A result that arrives after Close or a newer Open is discarded.
func (m *Manager) Open(ctx context.Context, userID uuid.UUID) (*Session, error) {
	m.mu.Lock()
	h := m.beginLocked(ctx, userID)
	m.mu.Unlock()
	return m.finish(userID, h)
}

// beginLocked registers a hydration for userID, superseding one in progress
// and taking the open session out of service
func (m *Manager) beginLocked(ctx context.Context, userID uuid.UUID) *hydration {
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hydrateTimeout)
	h := &hydration{
		ctx:     hctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		drained: make(chan struct{}),
		old:     m.sessions[userID],
	}
	if prev, ok := m.pending[userID]; ok {
		prev.superseded = true
		prev.cancel()
		h.after = prev.drained
	}
	delete(m.sessions, userID)
	m.pending[userID] = h
	return h
}

// finish drains the replaced session, then hydrates and installs the new one
// if h is still the user's current hydration
func (m *Manager) finish(userID uuid.UUID, h *hydration) (*Session, error) {
	defer h.cancel()

	if h.after != nil {
		<-h.after
	}
	if h.old != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), hydrateTimeout)
		_ = m.closeSession(drainCtx, h.old)
		cancel()
	}
	close(h.drained)

	plan, bundle, state, err := m.hydrate(h.ctx, userID)

	m.mu.Lock()
	live := m.pending[userID] == h
	if live {
		delete(m.pending, userID)
	}
	switch {
	case !live:
		h.err = ErrHydrationAborted
	case err != nil:
		h.err = err
	default:
		h.session = m.newSession(userID, plan, bundle, state)
		m.sessions[userID] = h.session
	}
	m.mu.Unlock()
	close(h.done)

	if h.err != nil {
		if !live {
			m.logger.Debug("session_hydration_discarded", zap.String("user_id", userID.String()))
		}
		return nil, h.err
	}
	m.logger.Info("session_opened",
		zap.String("user_id", userID.String()),
		zap.String("plan_id", plan.ID.String()),
		zap.Int("activities", len(bundle.Activities)),
	)
	return h.session, nil
}

func (m *Manager) hydrate(ctx context.Context, userID uuid.UUID) (*models.Plan, *catalog.Bundle, models.PlannerState, error) {
	plan, err := m.plans.GetActive(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil, models.PlannerState{}, ErrNoActivePlan
	}
	if err != nil {
		return nil, nil, models.PlannerState{}, fmt.Errorf("failed to find active plan: %w", err)
	}

	var (
		bundle *catalog.Bundle
		state  models.PlannerState
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		bundle, err = m.source.Bundle(gctx, plan.DestinationID)
		return err
	})
	g.Go(func() error {
		var err error
		state, err = m.states.LoadState(gctx, plan.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, models.PlannerState{}, fmt.Errorf("failed to hydrate plan %s: %w", plan.ID, err)
	}
	return plan, bundle, state, nil
}

func (m *Manager) newSession(userID uuid.UUID, plan *models.Plan, bundle *catalog.Bundle, state models.PlannerState) *Session {
	opts := append([]syncer.Option{}, m.syncOptions...)
	if m.deferrers != nil {
		if d := m.deferrers(userID); d != nil {
			opts = append(opts, syncer.WithDeferrer(d))
		}
	}
	dispatcher := syncer.NewDispatcher(m.persister, m.logger.With(zap.String("plan_id", plan.ID.String())), opts...)

	s := &Session{
		UserID:     userID,
		Plan:       *plan,
		Bundle:     bundle,
		Dispatcher: dispatcher,
		Store: planner.NewStore(plan.ID.String(), bundle.Activities,
			planner.WithState(state),
			planner.WithSink(dispatcher),
			planner.WithClock(m.now),
		),
	}
	s.touch(m.now())
	return s
}

// Touch marks the user's session as used
func (m *Manager) Touch(userID uuid.UUID) {
	if s, ok := m.Get(userID); ok {
		s.touch(m.now())
	}
}

// Close destroys the user's session, cancelling a hydration in progress and
// draining the session's pending writes
func (m *Manager) Close(ctx context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	if p, ok := m.pending[userID]; ok {
		p.cancel()
		delete(m.pending, userID)
	}
	s := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	if s == nil {
		return nil
	}
	return m.closeSession(ctx, s)
}

func (m *Manager) closeSession(ctx context.Context, s *Session) error {
	err := s.Dispatcher.Close(ctx)
	if err != nil {
		m.logger.Warn("session_close_incomplete",
			zap.String("user_id", s.UserID.String()),
			zap.String("plan_id", s.Plan.ID.String()),
			zap.Int("pending", s.Dispatcher.Pending()),
			zap.Error(err),
		)
	}
	return err
}

// Sweep closes sessions idle for longer than the idle timeout and returns how many it closed
func (m *Manager) Sweep(ctx context.Context) int {
	cutoff := m.now().Add(-m.idleTimeout)

	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		_ = m.closeSession(ctx, s)
	}
	if len(idle) > 0 {
		m.logger.Info("idle_sessions_closed", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// Run sweeps idle sessions every interval until ctx is cancelled
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// CloseAll closes every session, for shutdown
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, id)
	}
	for id, p := range m.pending {
		p.cancel()
		delete(m.pending, id)
	}
	m.mu.Unlock()

	for _, s := range all {
		_ = m.closeSession(ctx, s)
	}
}

// Count returns the number of open sessions
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
