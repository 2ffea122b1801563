package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harvestd/harvestd/internal/model"
)

// Item state machine errors. Callers use errors.Is for programmatic handling.
var (
	// ErrItemNotFound is returned when an item ID is not part of the session.
	ErrItemNotFound = errors.New("item not found in session")

	// ErrItemNotPending is returned when starting an item that is not pending.
	ErrItemNotPending = errors.New("item is not pending")

	// ErrItemNotRunning is returned when completing or failing an item that
	// is not running.
	ErrItemNotRunning = errors.New("item is not running")
)

// Session binds an in-memory model.BatchSession to a Store. All mutators
// hold the session lock across the mutate-and-persist step, so the persisted
// snapshot never lags the in-memory state and the progress invariant
// (total == pending + running + completed + failed) holds after every save.
//
// The lock is NOT held around external calls (item processing); workers
// mutate the session only through these methods between calls.
type Session struct {
	store *Store
	data  *model.BatchSession

	// mu guards data. The critical section includes the store write, since
	// persistence happens after every mutation.
	mu sync.Mutex
}

// New wraps a session model with its store.
func New(store *Store, data *model.BatchSession) *Session {
	return &Session{
		store: store,
		data:  data,
	}
}

// Create builds a new pending session, persists it immediately, and returns
// the wrapper.
func Create(ctx context.Context, store *Store, id, sessionType string, cfg model.SessionConfig) (*Session, error) {
	data := model.NewBatchSession(id, sessionType, cfg)
	if err := store.Save(ctx, data); err != nil {
		return nil, err
	}
	return New(store, data), nil
}

// ID returns the session's identifier.
func (s *Session) ID() string {
	return s.data.SessionID
}

// Status returns the session's current lifecycle state.
func (s *Session) Status() model.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Status
}

// Config returns a copy of the session configuration.
func (s *Session) Config() model.SessionConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Config
}

// ItemCount returns the number of items in the session.
func (s *Session) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.Items)
}

// AddItems appends items to the session, recomputes the totals, and persists
// once. Duplicate item IDs are rejected before anything is mutated.
func (s *Session) AddItems(ctx context.Context, items ...*model.BatchItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range items {
		if _, exists := s.data.Items[item.ID]; exists {
			return fmt.Errorf("duplicate item id %q in session %s", item.ID, s.data.SessionID)
		}
	}
	for _, item := range items {
		s.data.Items[item.ID] = item
	}

	s.data.Progress.Recount(s.data.Items)
	return s.store.Save(ctx, s.data)
}

// MarkItemStarted transitions an item from PENDING to RUNNING and persists.
func (s *Session) MarkItemStarted(ctx context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.data.Items[itemID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if item.Status != model.ItemPending {
		return fmt.Errorf("%w: %s is %s", ErrItemNotPending, itemID, item.Status)
	}

	item.Start(time.Now().UTC())
	s.data.Progress.Recount(s.data.Items)
	return s.store.Save(ctx, s.data)
}

// MarkItemCompleted transitions an item from RUNNING to COMPLETED, stores
// the processor's result, refreshes the ETA, and persists.
func (s *Session) MarkItemCompleted(ctx context.Context, itemID string, result json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.data.Items[itemID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if item.Status != model.ItemRunning {
		return fmt.Errorf("%w: %s is %s", ErrItemNotRunning, itemID, item.Status)
	}

	now := time.Now().UTC()
	item.Complete(now, result)
	s.data.Progress.Recount(s.data.Items)
	s.data.Progress.EstimateCompletion(now)
	return s.store.Save(ctx, s.data)
}

// MarkItemFailed records a failed attempt: the item is requeued to PENDING
// while its retry budget lasts and becomes terminally FAILED once it is
// exhausted. It returns the item's resulting status.
func (s *Session) MarkItemFailed(ctx context.Context, itemID string, itemErr error) (model.ItemStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.data.Items[itemID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if item.Status != model.ItemRunning {
		return "", fmt.Errorf("%w: %s is %s", ErrItemNotRunning, itemID, item.Status)
	}

	msg := ""
	if itemErr != nil {
		msg = itemErr.Error()
	}
	status := item.Fail(time.Now().UTC(), msg)
	s.data.Progress.Recount(s.data.Items)
	return status, s.store.Save(ctx, s.data)
}

// SetStatus transitions the session lifecycle state and persists. Moving to
// RUNNING records the progress start time on the first run.
func (s *Session) SetStatus(ctx context.Context, status model.SessionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Status = status
	if status == model.SessionRunning && s.data.Progress.StartTime == nil {
		now := time.Now().UTC()
		s.data.Progress.StartTime = &now
	}
	return s.store.Save(ctx, s.data)
}

// PendingItems returns copies of all items currently in the PENDING state.
// A run invocation uses this as its work snapshot: items requeued to
// PENDING after the snapshot was taken wait for the next run.
func (s *Session) PendingItems() []*model.BatchItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*model.BatchItem
	for _, item := range s.data.Items {
		if item.Status == model.ItemPending {
			pending = append(pending, item.Clone())
		}
	}
	return pending
}

// Snapshot returns a deep copy of the full session state, safe to read while
// workers continue mutating the original.
func (s *Session) Snapshot() *model.BatchSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Clone()
}

// Summary is a read-only projection of session status and progress.
type Summary struct {
	SessionID   string                   `json:"session_id"`
	Type        string                   `json:"type"`
	Status      model.SessionStatus      `json:"status"`
	Progress    model.BatchProgress      `json:"progress"`
	ItemCounts  map[model.ItemStatus]int `json:"item_counts"`
	LastUpdated time.Time                `json:"last_updated"`
}

// Summary returns the session's current status, progress, and per-status
// item counts. Safe to call concurrently with mutation.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := map[model.ItemStatus]int{
		model.ItemPending:   s.data.Progress.PendingItems,
		model.ItemRunning:   s.data.Progress.RunningItems,
		model.ItemCompleted: s.data.Progress.CompletedItems,
		model.ItemFailed:    s.data.Progress.FailedItems,
	}

	return Summary{
		SessionID:   s.data.SessionID,
		Type:        s.data.Type,
		Status:      s.data.Status,
		Progress:    *s.data.Progress.Clone(),
		ItemCounts:  counts,
		LastUpdated: s.data.LastUpdated,
	}
}
