// Package model defines the persisted data types for batch harvesting:
// sessions, items, progress counters, and their status state machines.
//
// All types in this package marshal to JSON with an explicit schema and a
// version field so that persisted snapshots can be migrated if the shape
// changes. Types here carry no behavior beyond state transitions and
// derived-value computation; persistence and concurrency control live in
// the session package.
package model
