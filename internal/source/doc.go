// Package source provides item sources and processors for batch sessions.
//
// A source enumerates the work (item names) a session should cover; a
// processor performs the actual fetch for one item. Both sit behind the
// orchestrator's interfaces so sessions stay agnostic of where items come
// from and how they are harvested.
package source
