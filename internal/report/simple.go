package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/harvestd/harvestd/internal/model"
)

// SimpleWriter outputs human-readable text reports.
// This format is designed for terminal display with clear section
// formatting.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors by default because:
// 1. It works in all terminals without compatibility issues
// 2. It's easier to pipe to files or other tools
// 3. Color can be added as an option later if needed
type SimpleWriter struct {
	baseWriter

	// verbose enables per-item detail in the output.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with per-item details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the session snapshot in human-readable format.
func (w *SimpleWriter) Write(snapshot *model.BatchSession) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, snapshot)
	w.writeProgress(&sb, snapshot)
	w.writeFailed(&sb, snapshot)

	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the session identity and lifecycle state.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, snapshot *model.BatchSession) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                         SESSION REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Session:      %s\n", snapshot.SessionID))
	sb.WriteString(fmt.Sprintf("Type:         %s\n", snapshot.Type))
	sb.WriteString(fmt.Sprintf("Status:       %s\n", snapshot.Status))
	sb.WriteString(fmt.Sprintf("Created:      %s\n", snapshot.CreatedAt.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString(fmt.Sprintf("Last Updated: %s\n", snapshot.LastUpdated.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString("\n")
}

// writeProgress writes the aggregate progress section.
func (w *SimpleWriter) writeProgress(sb *strings.Builder, snapshot *model.BatchSession) {
	p := snapshot.Progress

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("PROGRESS\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("  TOTAL:     %d\n", p.TotalItems))
	sb.WriteString(fmt.Sprintf("  COMPLETED: %d\n", p.CompletedItems))
	sb.WriteString(fmt.Sprintf("  FAILED:    %d\n", p.FailedItems))
	sb.WriteString(fmt.Sprintf("  RUNNING:   %d\n", p.RunningItems))
	sb.WriteString(fmt.Sprintf("  PENDING:   %d\n", p.PendingItems))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("  %.1f%% complete\n", percentComplete(p)))

	if p.EstimatedCompletion != nil && p.Remaining() > 0 {
		sb.WriteString(fmt.Sprintf("  Estimated completion: %s\n",
			p.EstimatedCompletion.Format("2006-01-02 15:04:05 MST")))
	}
	sb.WriteString("\n")
}

// writeFailed writes the failed-item section, if any items failed.
func (w *SimpleWriter) writeFailed(sb *strings.Builder, snapshot *model.BatchSession) {
	failed := failedItems(snapshot)
	if len(failed) == 0 {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("FAILED ITEMS\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	for _, item := range failed {
		sb.WriteString(fmt.Sprintf("  * %s (%d attempts)\n", item.Name, item.RetryCount))
		if w.verbose && item.ErrorMessage != "" {
			sb.WriteString(fmt.Sprintf("    Error: %s\n", item.ErrorMessage))
		}
	}
	sb.WriteString("\n")
}
