package model

import (
	"encoding/json"
	"time"
)

// BatchItem is one unit of work within a session. Items are created in the
// PENDING state, mutated only by the worker that currently owns them, and
// never deleted; they only transition between states.
//
// Invariant: RetryCount <= MaxRetries. Once RetryCount reaches MaxRetries
// and the item fails again, it is permanently FAILED.
type BatchItem struct {
	// ID uniquely identifies the item within its session.
	ID string `json:"id"`

	// Name is the work item's external name (e.g., an entity to harvest).
	// It is what gets handed to the item processor.
	Name string `json:"name"`

	// Status is the item's current state.
	Status ItemStatus `json:"status"`

	// CreatedAt is when the item was added to the session.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when a worker last picked the item up. Nil until the
	// first attempt.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the item reached a terminal state. Nil until then.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// ErrorMessage holds the most recent failure message, if any.
	ErrorMessage string `json:"error_message,omitempty"`

	// Result is the opaque result returned by the item processor on success.
	// The orchestrator never inspects it.
	Result json.RawMessage `json:"result,omitempty"`

	// RetryCount is the number of failed attempts so far.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the item's retry budget.
	MaxRetries int `json:"max_retries"`
}

// NewBatchItem creates a pending item with the given identity and retry budget.
func NewBatchItem(id, name string, maxRetries int) *BatchItem {
	return &BatchItem{
		ID:         id,
		Name:       name,
		Status:     ItemPending,
		CreatedAt:  time.Now().UTC(),
		MaxRetries: maxRetries,
	}
}

// Start transitions the item from PENDING to RUNNING.
func (i *BatchItem) Start(now time.Time) {
	i.Status = ItemRunning
	i.StartedAt = &now
}

// Complete transitions the item from RUNNING to COMPLETED and stores the
// processor's opaque result.
func (i *BatchItem) Complete(now time.Time, result json.RawMessage) {
	i.Status = ItemCompleted
	i.CompletedAt = &now
	i.Result = result
	i.ErrorMessage = ""
}

// Fail records a failed attempt. While the retry budget is not exhausted the
// item is requeued to PENDING; once RetryCount reaches MaxRetries the item
// becomes terminally FAILED. It returns the resulting status.
func (i *BatchItem) Fail(now time.Time, errMsg string) ItemStatus {
	if i.RetryCount < i.MaxRetries {
		i.RetryCount++
	}
	i.ErrorMessage = errMsg

	if i.RetryCount >= i.MaxRetries {
		i.Status = ItemFailed
		i.CompletedAt = &now
	} else {
		i.Status = ItemPending
	}
	return i.Status
}

// Clone returns a deep copy of the item. Result bytes are copied so the
// caller cannot mutate shared state.
func (i *BatchItem) Clone() *BatchItem {
	c := *i
	if i.StartedAt != nil {
		t := *i.StartedAt
		c.StartedAt = &t
	}
	if i.CompletedAt != nil {
		t := *i.CompletedAt
		c.CompletedAt = &t
	}
	if i.Result != nil {
		c.Result = append(json.RawMessage(nil), i.Result...)
	}
	return &c
}
