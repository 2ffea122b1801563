package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harvestd/harvestd/internal/session"
)

// NewListCmd creates the list command.
func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List persisted sessions",
		Long: `List prints every persisted session with its status and progress.

Examples:
  # All sessions
  harvestd list

  # Only sessions that still have work to do
  harvestd list --active`,
		Args: cobra.NoArgs,
		RunE: runListCmd,
	}

	cmd.Flags().BoolP("active", "a", false, "Show only pending or running sessions")

	return cmd
}

// runListCmd executes the list command.
func runListCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd, nil)
	if err != nil {
		return err
	}

	activeOnly, err := cmd.Flags().GetBool("active")
	if err != nil {
		return err
	}

	store, err := session.Open(cfg.DBDir, session.Options{EnableWAL: true})
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer store.Close()

	sessions, err := store.List(cmd.Context(), activeOnly)
	if err != nil {
		return err
	}

	if len(sessions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions found.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tTYPE\tSTATUS\tCOMPLETED\tFAILED\tPENDING\tLAST UPDATED")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			s.SessionID,
			s.Type,
			s.Status,
			s.Progress.CompletedItems,
			s.Progress.FailedItems,
			s.Progress.PendingItems,
			s.LastUpdated.Format("2006-01-02 15:04:05"),
		)
	}
	return w.Flush()
}
