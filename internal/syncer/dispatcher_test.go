package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benvon/family-planner/internal/planner"
	"github.com/benvon/family-planner/internal/queue"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type fakePersister struct {
	mu      sync.Mutex
	applied []planner.Command
	calls   int
	applyFn func(call int, cmd planner.Command) error
}

func (f *fakePersister) Apply(_ context.Context, cmd planner.Command) error {
	f.mu.Lock()
	f.calls++
	call := f.calls
	fn := f.applyFn
	f.mu.Unlock()

	if fn != nil {
		if err := fn(call, cmd); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.applied = append(f.applied, cmd)
	f.mu.Unlock()
	return nil
}

func (f *fakePersister) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.applied))
	for _, c := range f.applied {
		out = append(out, c.ActivityID)
	}
	return out
}

type fakeDeferrer struct {
	mu   sync.Mutex
	cmds []planner.Command
	err  error
}

func (f *fakeDeferrer) Defer(_ context.Context, cmd planner.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.cmds = append(f.cmds, cmd)
	return nil
}

func fastRetry(attempts int) Option {
	return WithRetry(attempts, time.Millisecond, 2*time.Millisecond)
}

func closeDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func statusCmd(id string) planner.Command {
	return planner.Command{Kind: planner.CmdUpsertStatus, PlanID: "plan-1", ActivityID: id}
}

func TestDispatcher_PersistsInIssueOrder(t *testing.T) {
	t.Parallel()

	p := &fakePersister{}
	d := NewDispatcher(p, zap.NewNop(), fastRetry(3))

	var want []string
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("a%d", i)
		want = append(want, id)
		d.Dispatch(statusCmd(id))
	}
	closeDispatcher(t, d)

	got := p.keys()
	if len(got) != len(want) {
		t.Fatalf("applied %d commands, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("command %d = %s, want %s", i, got[i], want[i])
		}
	}
	if d.IsSyncing() {
		t.Error("IsSyncing() = true after drain")
	}
}

func TestDispatcher_DispatchDoesNotBlock(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	p := &fakePersister{applyFn: func(int, planner.Command) error {
		<-release
		return nil
	}}
	d := NewDispatcher(p, zap.NewNop(), fastRetry(1))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Dispatch(statusCmd("a1"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch blocked on a slow persister")
	}
	if !d.IsSyncing() {
		t.Error("IsSyncing() = false while writes are in flight")
	}
	if d.Pending() == 0 {
		t.Error("Pending() = 0 while writes are in flight")
	}

	close(release)
	closeDispatcher(t, d)
}

func TestDispatcher_RetriesTransientErrors(t *testing.T) {
	t.Parallel()

	p := &fakePersister{applyFn: func(call int, _ planner.Command) error {
		if call < 3 {
			return errors.New("connection reset")
		}
		return nil
	}}
	def := &fakeDeferrer{}
	d := NewDispatcher(p, zap.NewNop(), fastRetry(5), WithDeferrer(def))

	d.Dispatch(statusCmd("a1"))
	closeDispatcher(t, d)

	if got := p.keys(); len(got) != 1 {
		t.Fatalf("applied = %v, want one command", got)
	}
	if p.applied[0].Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", p.applied[0].Attempts)
	}
	if len(def.cmds) != 0 {
		t.Errorf("deferred %d commands, want 0", len(def.cmds))
	}
	if len(d.Failures()) != 0 {
		t.Errorf("Failures() = %v, want none", d.Failures())
	}
}

func TestDispatcher_DefersExhaustedCommands(t *testing.T) {
	t.Parallel()

	p := &fakePersister{applyFn: func(int, planner.Command) error {
		return errors.New("database unavailable")
	}}
	def := &fakeDeferrer{}
	d := NewDispatcher(p, zap.NewNop(), fastRetry(3), WithDeferrer(def))

	d.Dispatch(statusCmd("a1"))
	d.Dispatch(statusCmd("a2"))
	closeDispatcher(t, d)

	if p.calls != 6 {
		t.Errorf("persister called %d times, want 6", p.calls)
	}
	if len(def.cmds) != 2 || def.cmds[0].ActivityID != "a1" || def.cmds[1].ActivityID != "a2" {
		t.Fatalf("deferred = %+v, want a1 then a2", def.cmds)
	}
	if def.cmds[0].Attempts != 3 {
		t.Errorf("deferred Attempts = %d, want 3", def.cmds[0].Attempts)
	}

	failures := d.Failures()
	if len(failures) != 2 || !failures[0].Deferred || failures[0].Key != "status:a1" {
		t.Errorf("Failures() = %+v, want two deferred failures", failures)
	}
}

func TestDispatcher_PermanentErrorsAreNotRetried(t *testing.T) {
	t.Parallel()

	p := &fakePersister{applyFn: func(int, planner.Command) error {
		return fmt.Errorf("unknown command kind: %w", ErrPermanent)
	}}
	def := &fakeDeferrer{}
	d := NewDispatcher(p, zap.NewNop(), fastRetry(5), WithDeferrer(def))

	d.Dispatch(statusCmd("a1"))
	closeDispatcher(t, d)

	if p.calls != 1 {
		t.Errorf("persister called %d times, want 1", p.calls)
	}
	if len(def.cmds) != 0 {
		t.Error("permanent failure was deferred")
	}
	if f := d.Failures(); len(f) != 1 || f[0].Deferred {
		t.Errorf("Failures() = %+v, want one undeferred failure", f)
	}
}

func TestDispatcher_DeferFailureIsRecorded(t *testing.T) {
	t.Parallel()

	p := &fakePersister{applyFn: func(int, planner.Command) error { return errors.New("down") }}
	def := &fakeDeferrer{err: errors.New("broker down")}
	d := NewDispatcher(p, zap.NewNop(), fastRetry(1), WithDeferrer(def))

	d.Dispatch(statusCmd("a1"))
	closeDispatcher(t, d)

	if f := d.Failures(); len(f) != 1 || f[0].Deferred {
		t.Errorf("Failures() = %+v, want one undeferred failure", f)
	}
}

// eventually polls cond for up to a second
func eventually(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestDispatcher_DispatchAfterClose(t *testing.T) {
	t.Parallel()

	p := &fakePersister{}
	d := NewDispatcher(p, zap.NewNop())
	closeDispatcher(t, d)

	d.Dispatch(statusCmd("a1"))
	if !eventually(t, func() bool { return len(p.keys()) == 1 }) {
		t.Fatalf("late command applied %v, want [a1]", p.keys())
	}
	if f := d.Failures(); len(f) != 0 {
		t.Errorf("Failures() = %+v, want none", f)
	}
	if d.IsSyncing() {
		t.Error("IsSyncing() = true after Close")
	}
}

func TestDispatcher_LateCommandIsDeferredOnFailure(t *testing.T) {
	t.Parallel()

	p := &fakePersister{applyFn: func(int, planner.Command) error { return errors.New("connection reset") }}
	def := &fakeDeferrer{}
	d := NewDispatcher(p, zap.NewNop(), WithDeferrer(def))
	closeDispatcher(t, d)

	d.Dispatch(statusCmd("a1"))
	if !eventually(t, func() bool { return len(d.Failures()) == 1 }) {
		t.Fatal("late failure not recorded")
	}
	if f := d.Failures()[0]; !f.Deferred {
		t.Errorf("failure = %+v, want deferred", f)
	}
	def.mu.Lock()
	defer def.mu.Unlock()
	if len(def.cmds) != 1 || def.cmds[0].ActivityID != "a1" {
		t.Errorf("deferred %+v, want a1", def.cmds)
	}
}

func TestDispatcher_CloseTimeoutDefersRemaining(t *testing.T) {
	t.Parallel()

	p := &fakePersister{applyFn: func(int, planner.Command) error { return errors.New("slow store") }}
	def := &fakeDeferrer{}
	d := NewDispatcher(p, zap.NewNop(), WithRetry(1000, 20*time.Millisecond, 20*time.Millisecond), WithDeferrer(def))

	d.Dispatch(statusCmd("a1"))
	d.Dispatch(statusCmd("a2"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := d.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Close() error = %v, want deadline exceeded", err)
	}
	if len(def.cmds) != 2 {
		t.Errorf("deferred %d commands, want 2", len(def.cmds))
	}
}

func TestDispatcher_StoreIntegration(t *testing.T) {
	t.Parallel()

	p := &fakePersister{}
	d := NewDispatcher(p, zap.NewNop(), fastRetry(2))
	store := planner.NewStore("plan-1", nil, planner.WithSink(d))

	store.ToggleStatus("a1")
	store.ToggleStatus("a1")
	store.SetNote("a1", "   ")
	closeDispatcher(t, d)

	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := []planner.CommandKind{}
	for _, c := range p.applied {
		kinds = append(kinds, c.Kind)
	}
	want := []planner.CommandKind{planner.CmdUpsertStatus, planner.CmdUpsertStatus, planner.CmdDeleteNote}
	if len(kinds) != len(want) {
		t.Fatalf("applied kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("kind %d = %s, want %s", i, kinds[i], want[i])
		}
	}
	if p.applied[1].Status != "done" {
		t.Errorf("second status = %q, want done", p.applied[1].Status)
	}
}

type recordingQueue struct {
	jobs []*queue.Job
}

func (r *recordingQueue) Enqueue(_ context.Context, job *queue.Job) error {
	r.jobs = append(r.jobs, job)
	return nil
}

func TestQueueDeferrer(t *testing.T) {
	t.Parallel()

	q := &recordingQueue{}
	userID := uuid.New()
	planID := uuid.New()
	def := NewQueueDeferrer(q, userID, time.Minute)

	cmd := planner.Command{Kind: planner.CmdReorderDay, PlanID: planID.String(), DayID: "d1", ActivityIDs: []string{"b", "a"}}
	if err := def.Defer(context.Background(), cmd); err != nil {
		t.Fatalf("Defer() error = %v", err)
	}
	if len(q.jobs) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(q.jobs))
	}

	job := q.jobs[0]
	if job.Type != queue.JobTypeReplaySync || job.UserID != userID {
		t.Errorf("job = %s for %s", job.Type, job.UserID)
	}
	if job.PlanID == nil || *job.PlanID != planID {
		t.Errorf("PlanID = %v, want %s", job.PlanID, planID)
	}
	if job.NotBefore == nil {
		t.Error("NotBefore not set")
	}

	var decoded planner.Command
	if err := job.DecodePayload(&decoded); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if decoded.DayID != "d1" || len(decoded.ActivityIDs) != 2 || decoded.ActivityIDs[0] != "b" {
		t.Errorf("decoded command = %+v", decoded)
	}
}
