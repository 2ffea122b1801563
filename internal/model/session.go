package model

import "time"

// SchemaVersion is the current version of the persisted session schema.
// It is written into every snapshot so that a future release can detect
// and migrate older shapes.
const SchemaVersion = 1

// SessionConfig holds the caller-supplied configuration for a session.
// It is persisted as part of the snapshot so a resumed session behaves
// identically to the original run.
type SessionConfig struct {
	// Source names the item source this session harvests from.
	Source string `json:"source"`

	// MaxRetries is the retry budget applied to items created for this
	// session.
	MaxRetries int `json:"max_retries"`

	// MaxWorkers is the worker pool size used when the session runs.
	MaxWorkers int `json:"max_workers"`

	// BaseDelayMillis is the pacing base delay the session was created
	// with, in milliseconds. Resumed runs rebuild their limiter from it
	// so pacing survives across invocations. Zero means the global
	// default applies.
	BaseDelayMillis int `json:"base_delay_millis,omitempty"`

	// Options carries opaque source-specific settings (e.g., a URL
	// template). The orchestrator passes them through to the processor
	// without interpreting them.
	Options map[string]string `json:"options,omitempty"`
}

// Option returns a named option value, or the fallback when unset.
func (c SessionConfig) Option(key, fallback string) string {
	if v, ok := c.Options[key]; ok && v != "" {
		return v
	}
	return fallback
}

// BatchSession is the persisted state of one batch of work: its items,
// aggregate progress, and lifecycle status. A session is owned exclusively
// by one manager at a time and persisted after every state change.
type BatchSession struct {
	// SchemaVersion records the snapshot schema this session was written with.
	SchemaVersion int `json:"schema_version"`

	// SessionID uniquely identifies the session in the store.
	SessionID string `json:"session_id"`

	// Type is a caller-chosen label for the kind of work (e.g., "profile").
	Type string `json:"type"`

	// Status is the session's lifecycle state.
	Status SessionStatus `json:"status"`

	// Config is the caller-supplied session configuration.
	Config SessionConfig `json:"config"`

	// Items maps item ID to item state.
	Items map[string]*BatchItem `json:"items"`

	// Progress holds the aggregate counters, kept in sync with Items.
	Progress BatchProgress `json:"progress"`

	// CreatedAt is when the session was created.
	CreatedAt time.Time `json:"created_at"`

	// LastUpdated is when the session was last persisted.
	LastUpdated time.Time `json:"last_updated"`
}

// NewBatchSession creates an empty pending session.
func NewBatchSession(id, sessionType string, cfg SessionConfig) *BatchSession {
	now := time.Now().UTC()
	return &BatchSession{
		SchemaVersion: SchemaVersion,
		SessionID:     id,
		Type:          sessionType,
		Status:        SessionPending,
		Config:        cfg,
		Items:         make(map[string]*BatchItem),
		CreatedAt:     now,
		LastUpdated:   now,
	}
}

// Clone returns a deep copy of the session, safe to hand to readers while
// workers keep mutating the original under its lock.
func (s *BatchSession) Clone() *BatchSession {
	c := *s
	c.Items = make(map[string]*BatchItem, len(s.Items))
	for id, item := range s.Items {
		c.Items[id] = item.Clone()
	}
	c.Progress = *s.Progress.Clone()
	if s.Config.Options != nil {
		c.Config.Options = make(map[string]string, len(s.Config.Options))
		for k, v := range s.Config.Options {
			c.Config.Options[k] = v
		}
	}
	return &c
}
