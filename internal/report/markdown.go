package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/harvestd/harvestd/internal/model"
)

// MarkdownWriter outputs session reports in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the session snapshot in Markdown format.
func (w *MarkdownWriter) Write(snapshot *model.BatchSession) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, snapshot)
	w.writeProgress(md, snapshot)
	w.writeFailed(md, snapshot)

	return len(md.String()), md.Build()
}

// writeHeader writes the session identity table.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, snapshot *model.BatchSession) {
	md.H1("Session Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Session", "`" + snapshot.SessionID + "`"},
			{"Type", snapshot.Type},
			{"Status", w.statusText(snapshot.Status)},
			{"Created", snapshot.CreatedAt.Format("2006-01-02 15:04:05 MST")},
			{"Last Updated", snapshot.LastUpdated.Format("2006-01-02 15:04:05 MST")},
		},
	})
	md.PlainText("")
}

// statusText returns a decorated status cell.
func (w *MarkdownWriter) statusText(status model.SessionStatus) string {
	switch status {
	case model.SessionCompleted:
		return "✅ " + string(status)
	case model.SessionFailed:
		return "❌ " + string(status)
	case model.SessionCancelled:
		return "⚠️ " + string(status)
	case model.SessionRunning:
		return "🏃 " + string(status)
	default:
		return string(status)
	}
}

// writeProgress writes the progress table, pie chart, and overall alert.
func (w *MarkdownWriter) writeProgress(md *markdown.Markdown, snapshot *model.BatchSession) {
	p := snapshot.Progress

	md.H2("Progress")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"State", "Count"},
		Rows: [][]string{
			{"🟢 Completed", strconv.Itoa(p.CompletedItems)},
			{"🔴 Failed", strconv.Itoa(p.FailedItems)},
			{"🟡 Running", strconv.Itoa(p.RunningItems)},
			{"⚪ Pending", strconv.Itoa(p.PendingItems)},
			{"**Total**", "**" + strconv.Itoa(p.TotalItems) + "**"},
		},
	})
	md.PlainText("")

	if p.TotalItems > 0 {
		w.writePieChart(md, p)
	}

	md.PlainTextf("%.1f%% complete.", percentComplete(p))
	if p.EstimatedCompletion != nil && p.Remaining() > 0 {
		md.PlainTextf("Estimated completion: %s.",
			p.EstimatedCompletion.Format("2006-01-02 15:04:05 MST"))
	}
	md.PlainText("")

	w.writeAlert(md, snapshot)
}

// writePieChart writes a mermaid pie chart of the item state distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, p model.BatchProgress) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Item State Distribution"),
		piechart.WithShowData(true),
	)

	if p.CompletedItems > 0 {
		chart.LabelAndIntValue("Completed", uint64(p.CompletedItems))
	}
	if p.FailedItems > 0 {
		chart.LabelAndIntValue("Failed", uint64(p.FailedItems))
	}
	if p.RunningItems > 0 {
		chart.LabelAndIntValue("Running", uint64(p.RunningItems))
	}
	if p.PendingItems > 0 {
		chart.LabelAndIntValue("Pending", uint64(p.PendingItems))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert reflecting the session outcome.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, snapshot *model.BatchSession) {
	p := snapshot.Progress
	switch {
	case snapshot.Status == model.SessionFailed:
		md.Caution("The session failed before processing all items. Re-run to resume.")
	case snapshot.Status == model.SessionCancelled:
		md.Warningf("The session was stopped with %d item(s) still pending. Re-run to resume.", p.PendingItems)
	case p.FailedItems > 0:
		md.Importantf("%d item(s) exhausted their retry budget and will not be retried.", p.FailedItems)
	case snapshot.Status == model.SessionCompleted:
		md.Tip("All items completed successfully.")
	}
	md.PlainText("")
}

// writeFailed writes the failed-item table, if any items failed.
func (w *MarkdownWriter) writeFailed(md *markdown.Markdown, snapshot *model.BatchSession) {
	failed := failedItems(snapshot)
	if len(failed) == 0 {
		return
	}

	md.H2("Failed Items")
	md.PlainText("")

	rows := make([][]string, len(failed))
	for i, item := range failed {
		errMsg := item.ErrorMessage
		if errMsg == "" {
			errMsg = "-"
		}
		rows[i] = []string{
			item.Name,
			fmt.Sprintf("%d/%d", item.RetryCount, item.MaxRetries),
			truncateString(errMsg, 80),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Item", "Attempts", "Last Error"},
		Rows:   rows,
	})
	md.PlainText("")
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
