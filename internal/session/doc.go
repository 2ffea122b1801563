// Package session provides durable, resumable state for batches of work.
//
// Store persists whole-session snapshots in SQLite, one row per session,
// keyed by session ID. Session wraps a model.BatchSession with a mutex and
// persists after every mutation, so the last saved snapshot always reflects
// the in-memory state and a process restart can resume exactly where the
// previous run stopped.
//
// Design decision: Every mutation writes the whole snapshot under the
// session lock. An append-only log with compaction would scale to higher
// completion rates, but whole-snapshot writes keep load trivially correct
// (the snapshot is the state) and SQLite in WAL mode absorbs the write rate
// of a politeness-throttled harvester with ease.
package session
