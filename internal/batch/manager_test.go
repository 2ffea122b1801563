package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harvestd/harvestd/internal/model"
	"github.com/harvestd/harvestd/internal/ratelimit"
	"github.com/harvestd/harvestd/internal/session"
)

// processorFunc adapts a function to the ItemProcessor interface.
type processorFunc func(ctx context.Context, itemName string, cfg model.SessionConfig) (json.RawMessage, error)

func (f processorFunc) Process(ctx context.Context, itemName string, cfg model.SessionConfig) (json.RawMessage, error) {
	return f(ctx, itemName, cfg)
}

// staticSource supplies a fixed list of item names.
type staticSource struct {
	names      []string
	maxRetries int
	calls      atomic.Int32
}

func (s *staticSource) Items(_ context.Context) ([]*model.BatchItem, error) {
	s.calls.Add(1)
	items := make([]*model.BatchItem, 0, len(s.names))
	for i, name := range s.names {
		items = append(items, model.NewBatchItem(fmt.Sprintf("i-%d", i), name, s.maxRetries))
	}
	return items, nil
}

// newTestManager creates a manager over a temp store with fast pacing.
func newTestManager(t *testing.T) *Manager {
	t.Helper()

	store, err := session.Open(t.TempDir(), session.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	limiter := ratelimit.New(ratelimit.Params{
		BaseDelay:   time.Millisecond,
		JitterRange: 0,
		MaxDelay:    50 * time.Millisecond,
		BackoffCap:  2,
	})
	return NewManager(store, limiter)
}

// TestManagerCreateSession tests creation semantics.
func TestManagerCreateSession(t *testing.T) {
	t.Parallel()

	t.Run("persists immediately", func(t *testing.T) {
		t.Parallel()

		m := newTestManager(t)
		ctx := context.Background()

		sess, err := m.CreateSession(ctx, "s-1", "profile", model.SessionConfig{MaxRetries: 2})
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if sess.Status() != model.SessionPending {
			t.Errorf("expected PENDING, got %s", sess.Status())
		}

		all, err := m.ListSessions(ctx, false)
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(all) != 1 || all[0].SessionID != "s-1" {
			t.Errorf("expected persisted session s-1, got %+v", all)
		}
	})

	t.Run("rejects duplicate id", func(t *testing.T) {
		t.Parallel()

		m := newTestManager(t)
		ctx := context.Background()

		if _, err := m.CreateSession(ctx, "s-1", "profile", model.SessionConfig{}); err != nil {
			t.Fatalf("create failed: %v", err)
		}
		_, err := m.CreateSession(ctx, "s-1", "profile", model.SessionConfig{})
		if !errors.Is(err, ErrSessionExists) {
			t.Errorf("expected ErrSessionExists, got %v", err)
		}
	})

	t.Run("generates id when empty", func(t *testing.T) {
		t.Parallel()

		m := newTestManager(t)
		sess, err := m.CreateSession(context.Background(), "", "profile", model.SessionConfig{})
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if sess.ID() == "" {
			t.Error("expected a generated session id")
		}
	})
}

// TestManagerGetSession tests registry and store lookup.
func TestManagerGetSession(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	ctx := context.Background()

	created, err := m.CreateSession(ctx, "s-1", "profile", model.SessionConfig{})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := m.GetSession(ctx, "s-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != created {
		t.Error("expected the cached live session")
	}

	if _, err := m.GetSession(ctx, "unknown"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

// TestManagerRunAllSucceed tests a full pass where every item succeeds
// (scenario: 3 items, 2 workers).
func TestManagerRunAllSucceed(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	ctx := context.Background()

	sess, err := m.CreateSession(ctx, "s-1", "profile", model.SessionConfig{MaxRetries: 2, MaxWorkers: 2})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	src := &staticSource{names: []string{"alice", "bob", "carol"}, maxRetries: 2}
	var processed atomic.Int32
	proc := processorFunc(func(_ context.Context, name string, _ model.SessionConfig) (json.RawMessage, error) {
		processed.Add(1)
		return json.RawMessage(`{"name":"` + name + `"}`), nil
	})

	if err := m.Run(ctx, sess, src, proc); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if got := sess.Status(); got != model.SessionCompleted {
		t.Errorf("expected COMPLETED, got %s", got)
	}
	if got := processed.Load(); got != 3 {
		t.Errorf("expected 3 processed items, got %d", got)
	}

	sum := sess.Summary()
	if sum.Progress.CompletedItems != 3 || sum.Progress.Remaining() != 0 {
		t.Errorf("unexpected progress: %+v", sum.Progress)
	}

	// Persisted snapshot must match the in-memory state.
	persisted, err := m.store.Load(ctx, "s-1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if persisted.Status != model.SessionCompleted ||
		persisted.Progress.CompletedItems != 3 {
		t.Errorf("persisted snapshot out of sync: %+v", persisted.Progress)
	}
	for id, item := range persisted.Items {
		if item.Status != model.ItemCompleted {
			t.Errorf("item %s persisted as %s, want COMPLETED", id, item.Status)
		}
		if len(item.Result) == 0 {
			t.Errorf("item %s missing persisted result", id)
		}
	}
}

// TestManagerRunRetryExhaustion tests that a persistently failing item is
// retried across runs until its budget is exhausted, then never again
// (scenario: one item fails every attempt, max_retries=2).
func TestManagerRunRetryExhaustion(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	ctx := context.Background()

	sess, err := m.CreateSession(ctx, "s-1", "profile", model.SessionConfig{MaxRetries: 2, MaxWorkers: 1})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	src := &staticSource{names: []string{"broken"}, maxRetries: 2}
	var attempts atomic.Int32
	proc := processorFunc(func(context.Context, string, model.SessionConfig) (json.RawMessage, error) {
		attempts.Add(1)
		return nil, errors.New("source rejected the request")
	})

	// First run: the failure requeues the item; a single pass does not
	// retry it within the same invocation.
	if err := m.Run(ctx, sess, src, proc); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if got := attempts.Load(); got != 1 {
		t.Fatalf("expected 1 attempt in first run, got %d", got)
	}
	if got := sess.Status(); got != model.SessionPending {
		t.Fatalf("expected PENDING with requeued work, got %s", got)
	}

	// Second run: the retry budget is exhausted and the item is terminal.
	if err := m.Run(ctx, sess, src, proc); err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if got := attempts.Load(); got != 2 {
		t.Fatalf("expected 2 attempts total, got %d", got)
	}

	sum := sess.Summary()
	if sess.Status() != model.SessionCompleted {
		t.Errorf("expected COMPLETED once drained, got %s", sess.Status())
	}
	if sum.Progress.FailedItems != 1 {
		t.Errorf("expected 1 failed item, got %+v", sum.Progress)
	}

	// Third run: nothing pending, no further attempts for the failed item.
	if err := m.Run(ctx, sess, src, proc); err != nil {
		t.Fatalf("third run failed: %v", err)
	}
	if got := attempts.Load(); got != 2 {
		t.Errorf("failed item was attempted again: %d attempts", got)
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("item source consulted %d times, want once", got)
	}
}

// TestManagerRunStopAndResume tests cooperative cancellation and resume
// (scenario: stop while 2 of 5 items are pending).
func TestManagerRunStopAndResume(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	ctx := context.Background()

	sess, err := m.CreateSession(ctx, "s-1", "profile", model.SessionConfig{MaxRetries: 1, MaxWorkers: 1})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	src := &staticSource{names: []string{"a", "b", "c", "d", "e"}, maxRetries: 1}
	var mu sync.Mutex
	attempts := make(map[string]int)
	var count int32
	proc := processorFunc(func(_ context.Context, name string, _ model.SessionConfig) (json.RawMessage, error) {
		mu.Lock()
		attempts[name]++
		mu.Unlock()
		if atomic.AddInt32(&count, 1) == 3 {
			m.Stop("s-1")
		}
		return json.RawMessage(`{}`), nil
	})

	if err := m.Run(ctx, sess, src, proc); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if got := sess.Status(); got != model.SessionCancelled {
		t.Fatalf("expected CANCELLED, got %s", got)
	}
	sum := sess.Summary()
	if sum.Progress.CompletedItems != 3 {
		t.Errorf("expected 3 completed before stop, got %d", sum.Progress.CompletedItems)
	}
	if sum.Progress.PendingItems != 2 {
		t.Errorf("untouched items must stay PENDING, got %+v", sum.Progress)
	}
	if sum.Progress.FailedItems != 0 {
		t.Errorf("stop must not fail items, got %d failed", sum.Progress.FailedItems)
	}

	// Resume: exactly the two untouched items are processed.
	if err := m.Run(ctx, sess, src, proc); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if got := sess.Status(); got != model.SessionCompleted {
		t.Errorf("expected COMPLETED after resume, got %s", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(attempts) != 5 {
		t.Errorf("expected all 5 items attempted, got %d", len(attempts))
	}
	for name, n := range attempts {
		if n != 1 {
			t.Errorf("item %s attempted %d times, want exactly once", name, n)
		}
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("resume must not repopulate items; source consulted %d times", got)
	}
}

// TestManagerRunRejectsConcurrentRun tests single ownership of a session.
func TestManagerRunRejectsConcurrentRun(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	ctx := context.Background()

	sess, err := m.CreateSession(ctx, "s-1", "profile", model.SessionConfig{MaxWorkers: 1, MaxRetries: 1})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	started := make(chan struct{})
	release := make(chan struct{})
	proc := processorFunc(func(context.Context, string, model.SessionConfig) (json.RawMessage, error) {
		close(started)
		<-release
		return json.RawMessage(`{}`), nil
	})
	src := &staticSource{names: []string{"only"}, maxRetries: 1}

	errCh := make(chan error, 1)
	go func() {
		errCh <- m.Run(ctx, sess, src, proc)
	}()

	<-started
	if err := m.Run(ctx, sess, src, proc); !errors.Is(err, ErrSessionRunning) {
		t.Errorf("expected ErrSessionRunning, got %v", err)
	}
	close(release)

	if err := <-errCh; err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if got := sess.Status(); got != model.SessionCompleted {
		t.Errorf("expected COMPLETED, got %s", got)
	}
}

// TestManagerProcessorErrorsDoNotFailSession tests the propagation policy:
// processor errors are absorbed at the worker boundary.
func TestManagerProcessorErrorsDoNotFailSession(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	ctx := context.Background()

	sess, err := m.CreateSession(ctx, "s-1", "profile", model.SessionConfig{MaxRetries: 1, MaxWorkers: 2})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	src := &staticSource{names: []string{"ok", "bad"}, maxRetries: 1}
	proc := processorFunc(func(_ context.Context, name string, _ model.SessionConfig) (json.RawMessage, error) {
		if name == "bad" {
			return nil, errors.New("parse error")
		}
		return json.RawMessage(`{}`), nil
	})

	if err := m.Run(ctx, sess, src, proc); err != nil {
		t.Fatalf("run must absorb processor errors, got %v", err)
	}

	sum := sess.Summary()
	if sess.Status() != model.SessionCompleted {
		t.Errorf("expected COMPLETED, got %s", sess.Status())
	}
	if sum.Progress.CompletedItems != 1 || sum.Progress.FailedItems != 1 {
		t.Errorf("unexpected progress: %+v", sum.Progress)
	}
}

// TestManagerCleanup tests the cleanup surface.
func TestManagerCleanup(t *testing.T) {
	t.Parallel()

	t.Run("unknown id returns failure without panicking", func(t *testing.T) {
		t.Parallel()

		m := newTestManager(t)
		err := m.CleanupSession(context.Background(), "does-not-exist")
		if !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("removes session and snapshot", func(t *testing.T) {
		t.Parallel()

		m := newTestManager(t)
		ctx := context.Background()

		if _, err := m.CreateSession(ctx, "s-1", "profile", model.SessionConfig{}); err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if err := m.CleanupSession(ctx, "s-1"); err != nil {
			t.Fatalf("cleanup failed: %v", err)
		}
		if _, err := m.GetSession(ctx, "s-1"); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("expected session gone, got %v", err)
		}
	})

	t.Run("cleanup finished", func(t *testing.T) {
		t.Parallel()

		m := newTestManager(t)
		ctx := context.Background()

		done, err := m.CreateSession(ctx, "s-done", "profile", model.SessionConfig{})
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if err := done.SetStatus(ctx, model.SessionCompleted); err != nil {
			t.Fatalf("set status failed: %v", err)
		}
		if _, err := m.CreateSession(ctx, "s-live", "profile", model.SessionConfig{}); err != nil {
			t.Fatalf("create failed: %v", err)
		}

		n, err := m.CleanupFinished(ctx)
		if err != nil {
			t.Fatalf("cleanup finished failed: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 cleaned session, got %d", n)
		}

		remaining, err := m.ListSessions(ctx, false)
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(remaining) != 1 || remaining[0].SessionID != "s-live" {
			t.Errorf("expected only s-live to remain, got %+v", remaining)
		}
	})
}

// TestManagerStopUnknownSession tests that stop reports a miss for inactive IDs.
func TestManagerStopUnknownSession(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	if m.Stop("nope") {
		t.Error("expected stop of an unknown session to report false")
	}
}

// TestManagerRunHardCancelInterruptsInFlight tests that cancelling the
// invocation context reaches an in-flight processor call; only the
// persistence writes are shielded from cancellation.
func TestManagerRunHardCancelInterruptsInFlight(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, err := m.CreateSession(ctx, "s-abort", "profile", model.SessionConfig{MaxRetries: 3, MaxWorkers: 1})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	started := make(chan struct{})
	proc := processorFunc(func(pctx context.Context, _ string, _ model.SessionConfig) (json.RawMessage, error) {
		close(started)
		select {
		case <-pctx.Done():
			return nil, pctx.Err()
		case <-time.After(5 * time.Second):
			return nil, errors.New("processor context was never cancelled")
		}
	})

	src := &staticSource{names: []string{"alice"}, maxRetries: 3}
	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(ctx, sess, src, proc) }()

	<-started
	cancel()

	if err := <-errCh; err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if sess.Status() != model.SessionCancelled {
		t.Errorf("expected CANCELLED, got %s", sess.Status())
	}

	// The interrupted attempt is recorded as a failure and the item
	// requeued for the next run.
	for _, item := range sess.Snapshot().Items {
		if item.Status != model.ItemPending {
			t.Errorf("expected item requeued PENDING, got %s", item.Status)
		}
		if item.RetryCount != 1 {
			t.Errorf("expected one recorded attempt, got %d", item.RetryCount)
		}
		if !strings.Contains(item.ErrorMessage, context.Canceled.Error()) {
			t.Errorf("expected a cancellation error, got %q", item.ErrorMessage)
		}
	}
}

// TestManagerRunStopLeavesInFlightRunning tests that a cooperative stop does
// not cancel the context handed to an in-flight processor.
func TestManagerRunStopLeavesInFlightRunning(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	ctx := context.Background()

	sess, err := m.CreateSession(ctx, "s-flight", "profile", model.SessionConfig{MaxRetries: 3, MaxWorkers: 1})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	started := make(chan struct{})
	release := make(chan struct{})
	proc := processorFunc(func(pctx context.Context, _ string, _ model.SessionConfig) (json.RawMessage, error) {
		close(started)
		select {
		case <-pctx.Done():
			return nil, errors.New("stop cancelled in-flight work")
		case <-release:
			return json.RawMessage(`{"ok":true}`), nil
		}
	})

	src := &staticSource{names: []string{"alice"}, maxRetries: 3}
	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(ctx, sess, src, proc) }()

	<-started
	if !m.Stop("s-flight") {
		t.Fatal("expected an active run to stop")
	}
	// Let the stop propagate before releasing the processor.
	time.Sleep(20 * time.Millisecond)
	close(release)

	if err := <-errCh; err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if sess.Status() != model.SessionCancelled {
		t.Errorf("expected CANCELLED, got %s", sess.Status())
	}

	sum := sess.Summary()
	if sum.Progress.CompletedItems != 1 || sum.Progress.FailedItems != 0 {
		t.Errorf("expected the in-flight item to finish, got %d completed, %d failed",
			sum.Progress.CompletedItems, sum.Progress.FailedItems)
	}
}
