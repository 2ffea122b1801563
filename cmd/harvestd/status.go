package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harvestd/harvestd/internal/batch"
	"github.com/harvestd/harvestd/internal/config"
	"github.com/harvestd/harvestd/internal/session"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <session-id>",
		Short: "Show the state of a persisted session",
		Long: `Status prints a report for a persisted session: lifecycle state,
per-item progress counters, the completion estimate, and any items that
exhausted their retry budget.

Examples:
  # Human-readable report
  harvestd status 3f1c97c2-4a7e-4f2b-9d0a-8f6e1c2b3a4d

  # Machine-readable report
  harvestd status --json 3f1c97c2-4a7e-4f2b-9d0a-8f6e1c2b3a4d

  # Write a Markdown report to a file
  harvestd status --markdown -o report.md 3f1c97c2-4a7e-4f2b-9d0a-8f6e1c2b3a4d`,
		Args: cobra.ExactArgs(1),
		RunE: runStatusCmd,
	}

	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	return cmd
}

// runStatusCmd executes the status command.
func runStatusCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, nil)
	if err != nil {
		return err
	}
	if cfg.JSONReport && cfg.MarkdownReport {
		return config.ErrConflictingReportFormats
	}

	store, err := session.Open(cfg.DBDir, session.Options{EnableWAL: true})
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer store.Close()

	snapshot, err := store.Load(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if snapshot == nil {
		return fmt.Errorf("%w: %s", batch.ErrSessionNotFound, args[0])
	}

	return outputReport(cfg, snapshot)
}
