package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakePurger struct {
	calls atomic.Int32
	n     int
	err   error
	got   time.Duration
}

func (p *fakePurger) PurgeOlderThan(_ context.Context, retention time.Duration) (int, error) {
	p.calls.Add(1)
	p.got = retention
	return p.n, p.err
}

func TestGarbageCollector_Collect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		purger     DLQPurger
		wantErr    bool
		wantPurged bool
	}{
		{name: "no purger", purger: nil},
		{name: "nothing expired", purger: &fakePurger{}},
		{name: "expired replays removed", purger: &fakePurger{n: 3}, wantPurged: true},
		{name: "broker error", purger: &fakePurger{err: errors.New("channel closed")}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zap.InfoLevel)
			gc := NewGarbageCollector(tt.purger, time.Minute, 7*24*time.Hour, zap.New(core))
			err := gc.collect(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("collect() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := logs.FilterMessage("dlq_gc_purged").Len() == 1; got != tt.wantPurged {
				t.Errorf("dlq_gc_purged logged = %v, want %v", got, tt.wantPurged)
			}
			if p, ok := tt.purger.(*fakePurger); ok && p.got != 7*24*time.Hour {
				t.Errorf("retention = %v", p.got)
			}
		})
	}
}

func TestGarbageCollector_EscalatesRepeatedFailures(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	purger := &fakePurger{err: errors.New("channel closed")}
	gc := NewGarbageCollector(purger, time.Minute, time.Hour, zap.New(core))

	for i := 0; i < gcEscalateAfter; i++ {
		gc.runOnce(context.Background())
	}
	entries := logs.FilterMessage("dlq_gc_failed").All()
	if len(entries) != gcEscalateAfter {
		t.Fatalf("logged %d failures, want %d", len(entries), gcEscalateAfter)
	}
	if entries[0].Level != zapcore.WarnLevel || entries[gcEscalateAfter-1].Level != zapcore.ErrorLevel {
		t.Errorf("levels = %v .. %v", entries[0].Level, entries[gcEscalateAfter-1].Level)
	}

	purger.err = nil
	gc.runOnce(context.Background())
	if gc.failures != 0 {
		t.Errorf("failures = %d after a successful purge", gc.failures)
	}
}

func TestGarbageCollector_StartPurgesImmediately(t *testing.T) {
	t.Parallel()

	purger := &fakePurger{}
	gc := NewGarbageCollector(purger, 24*time.Hour, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- gc.Start(ctx) }()

	deadline := time.After(2 * time.Second)
	for purger.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("no purge before the first tick")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Start() = %v, want context.Canceled", err)
	}
}
