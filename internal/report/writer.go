package report

import (
	"io"
	"sort"

	"github.com/harvestd/harvestd/internal/model"
)

// Writer defines the interface for session report output.
// Implementations render a session snapshot in various formats.
type Writer interface {
	// Write outputs the report to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(snapshot *model.BatchSession) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
//
// Design decision: We implement this as a separate type rather than
// using io.MultiWriter because our Writer interface is different
// from io.Writer - we write session snapshots, not raw bytes.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(snapshot *model.BatchSession) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(snapshot)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// failedItems returns the session's terminally failed items, ordered by name
// so report output is stable.
func failedItems(snapshot *model.BatchSession) []*model.BatchItem {
	var failed []*model.BatchItem
	for _, item := range snapshot.Items {
		if item.Status == model.ItemFailed {
			failed = append(failed, item)
		}
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i].Name < failed[j].Name })
	return failed
}

// percentComplete returns the share of items in a terminal state, 0-100.
func percentComplete(p model.BatchProgress) float64 {
	if p.TotalItems == 0 {
		return 0
	}
	done := p.CompletedItems + p.FailedItems
	return float64(done) / float64(p.TotalItems) * 100
}
