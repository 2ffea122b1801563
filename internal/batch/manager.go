package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harvestd/harvestd/internal/model"
	"github.com/harvestd/harvestd/internal/ratelimit"
	"github.com/harvestd/harvestd/internal/session"
)

// defaultMaxWorkers is used when the session config does not set a pool size.
const defaultMaxWorkers = 4

// ItemSource supplies the initial work items for a session. It is consulted
// exactly once, on the first run of a session; resumed sessions keep their
// persisted items so work is neither duplicated nor lost.
type ItemSource interface {
	// Items returns the work items to populate a fresh session with.
	Items(ctx context.Context) ([]*model.BatchItem, error)
}

// ItemProcessor is the external collaborator that performs the actual work
// for one item. The orchestrator does not know how it fetches or parses
// data; it only needs success or failure and, on success, an opaque result.
type ItemProcessor interface {
	// Process handles one named work item under the given session config.
	Process(ctx context.Context, itemName string, cfg model.SessionConfig) (json.RawMessage, error)
}

// Manager owns the lifecycle of batch sessions: the registry of live
// sessions, one cancellation signal per active run, and the shared store
// and rate limiter behind them.
type Manager struct {
	store   *session.Store
	limiter *ratelimit.Limiter
	logger  *slog.Logger

	// mu guards the registries below.
	mu       sync.Mutex
	sessions map[string]*session.Session
	cancels  map[string]context.CancelFunc
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets a custom logger.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager over the given store and shared rate limiter.
func NewManager(store *session.Store, limiter *ratelimit.Limiter, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:    store,
		limiter:  limiter,
		sessions: make(map[string]*session.Session),
		cancels:  make(map[string]context.CancelFunc),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.logger == nil {
		m.logger = slog.Default()
	}

	return m
}

// CreateSession creates and immediately persists a new pending session.
// An empty ID gets a generated UUID. Creating over an existing ID fails
// with ErrSessionExists.
func (m *Manager) CreateSession(ctx context.Context, id, sessionType string, cfg model.SessionConfig) (*session.Session, error) {
	if id == "" {
		id = uuid.NewString()
	}

	existing, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}

	sess, err := session.Create(ctx, m.store, id, sessionType, cfg)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()

	m.logger.Info("created session",
		"session_id", id,
		"type", sessionType,
		"source", cfg.Source,
	)
	return sess, nil
}

// GetSession returns the live session for the given ID, loading it from the
// store when it is not in the registry. Unknown IDs yield ErrSessionNotFound.
func (m *Manager) GetSession(ctx context.Context, id string) (*session.Session, error) {
	m.mu.Lock()
	if sess, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return sess, nil
	}
	m.mu.Unlock()

	data, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	sess := session.New(m.store, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another caller may have loaded it while we were reading the store.
	if cached, ok := m.sessions[id]; ok {
		return cached, nil
	}
	m.sessions[id] = sess
	return sess, nil
}

// Run drains the session's pending items through a bounded worker pool.
// On the first run of a fresh session the item source populates the items;
// resumed sessions keep their persisted work set.
//
// Run returns once the pool has drained its snapshot of pending items (or a
// stop was requested). The session ends COMPLETED when no pending or running
// work remains, CANCELLED when a stop was requested, FAILED when an
// orchestration error escaped the pool, and PENDING when requeued items are
// still waiting for a later run.
func (m *Manager) Run(ctx context.Context, sess *session.Session, src ItemSource, proc ItemProcessor) error {
	id := sess.ID()

	runCtx, cancel, err := m.registerRun(ctx, id)
	if err != nil {
		return err
	}
	defer m.unregisterRun(id, cancel)

	if err := m.populateItems(ctx, sess, src); err != nil {
		return err
	}

	if err := sess.SetStatus(ctx, model.SessionRunning); err != nil {
		return fmt.Errorf("failed to mark session running: %w", err)
	}

	cfg := sess.Config()
	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = defaultMaxWorkers
	}

	start := time.Now()
	m.logger.Info("starting batch run",
		"session_id", id,
		"pending_items", sess.Summary().Progress.PendingItems,
		"max_workers", maxWorkers,
	)

	// A stop request cancels only runCtx, so in-flight processor calls keep
	// the caller's context and are interrupted only when the invocation
	// itself is aborted.
	poolErr := m.drainPending(runCtx, ctx, sess, proc, maxWorkers)

	// Outcomes of in-flight items must be persisted even after a stop, so
	// the teardown writes are shielded from cancellation.
	endCtx := context.WithoutCancel(ctx)
	final, err := m.finishRun(endCtx, sess, runCtx, poolErr)

	m.logger.Info("batch run finished",
		"session_id", id,
		"status", final,
		"elapsed", time.Since(start),
		"limiter", m.limiter.Stats(),
	)
	return err
}

// registerRun installs the cancellation signal for a run, enforcing single
// ownership of the session.
func (m *Manager) registerRun(ctx context.Context, id string) (context.Context, context.CancelFunc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, active := m.cancels[id]; active {
		return nil, nil, fmt.Errorf("%w: %s", ErrSessionRunning, id)
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancels[id] = cancel
	return runCtx, cancel, nil
}

// unregisterRun tears down a run's cancellation signal.
func (m *Manager) unregisterRun(id string, cancel context.CancelFunc) {
	cancel()
	m.mu.Lock()
	delete(m.cancels, id)
	m.mu.Unlock()
}

// populateItems fills a fresh session from the item source. Sessions that
// already have items (resumes) are left untouched.
func (m *Manager) populateItems(ctx context.Context, sess *session.Session, src ItemSource) error {
	if sess.ItemCount() > 0 {
		return nil
	}

	items, err := src.Items(ctx)
	if err != nil {
		return fmt.Errorf("failed to populate items: %w", err)
	}
	if len(items) == 0 {
		return nil
	}
	return sess.AddItems(ctx, items...)
}

// finishRun decides and persists the session's final status for this run.
func (m *Manager) finishRun(ctx context.Context, sess *session.Session, runCtx context.Context, poolErr error) (model.SessionStatus, error) {
	switch {
	case poolErr != nil:
		if err := sess.SetStatus(ctx, model.SessionFailed); err != nil {
			m.logger.Error("failed to persist FAILED status", "session_id", sess.ID(), "error", err)
		}
		return model.SessionFailed, poolErr

	case runCtx.Err() != nil:
		return model.SessionCancelled, sess.SetStatus(ctx, model.SessionCancelled)

	default:
		progress := sess.Summary().Progress
		if progress.Remaining() == 0 {
			return model.SessionCompleted, sess.SetStatus(ctx, model.SessionCompleted)
		}
		// Items were requeued mid-run; they wait for the next invocation.
		return model.SessionPending, sess.SetStatus(ctx, model.SessionPending)
	}
}

// Stop signals cooperative cancellation of a running session. Workers
// observe it between item dispatches; in-flight items finish and are
// recorded normally. It reports whether a run was active for the ID.
func (m *Manager) Stop(id string) bool {
	m.mu.Lock()
	cancel, ok := m.cancels[id]
	m.mu.Unlock()

	if !ok {
		return false
	}
	m.logger.Info("stop requested", "session_id", id)
	cancel()
	return true
}

// ListSessions enumerates persisted sessions, optionally only active ones.
// The store reflects the last persisted mutation of every live session, so
// no merge with the registry is needed.
func (m *Manager) ListSessions(ctx context.Context, activeOnly bool) ([]*model.BatchSession, error) {
	return m.store.List(ctx, activeOnly)
}

// CleanupSession stops the session if it is running, drops it from the live
// registry, and deletes its persisted snapshot. An unknown ID yields
// ErrSessionNotFound.
func (m *Manager) CleanupSession(ctx context.Context, id string) error {
	m.Stop(id)

	m.mu.Lock()
	_, wasLive := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	existed, err := m.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !existed && !wasLive {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	m.logger.Info("cleaned up session", "session_id", id)
	return nil
}

// CleanupFinished removes all completed, failed, and cancelled sessions and
// returns how many were deleted.
func (m *Manager) CleanupFinished(ctx context.Context) (int, error) {
	n, err := m.store.DeleteFinished(ctx)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	for id, sess := range m.sessions {
		status := sess.Status()
		if !status.Active() && status != model.SessionPaused {
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	return n, nil
}

// CleanupOlderThan removes sessions whose last update is older than the
// given age and returns how many were deleted.
func (m *Manager) CleanupOlderThan(ctx context.Context, age time.Duration) (int, error) {
	return m.store.DeleteOlderThan(ctx, age)
}
