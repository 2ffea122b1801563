package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harvestd/harvestd/internal/session"
)

// NewCleanupCmd creates the cleanup command.
func NewCleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup [session-id]",
		Short: "Delete persisted sessions",
		Long: `Cleanup deletes persisted sessions from the store.

A session ID deletes that one session. --finished deletes every session
in a terminal state (COMPLETED, FAILED, CANCELLED). --older-than deletes
sessions not updated within the given duration.

Examples:
  # Delete one session
  harvestd cleanup 3f1c97c2-4a7e-4f2b-9d0a-8f6e1c2b3a4d

  # Delete all finished sessions
  harvestd cleanup --finished

  # Delete sessions untouched for a week
  harvestd cleanup --older-than 168h`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCleanupCmd,
	}

	cmd.Flags().Bool("finished", false, "Delete all sessions in a terminal state")
	cmd.Flags().Duration("older-than", 0, "Delete sessions not updated within this duration")

	return cmd
}

// runCleanupCmd executes the cleanup command.
func runCleanupCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, nil)
	if err != nil {
		return err
	}

	finished, err := cmd.Flags().GetBool("finished")
	if err != nil {
		return err
	}
	olderThan, err := cmd.Flags().GetDuration("older-than")
	if err != nil {
		return err
	}

	if len(args) == 0 && !finished && olderThan == 0 {
		return errors.New("nothing to clean up: pass a session ID, --finished, or --older-than")
	}

	store, err := session.Open(cfg.DBDir, session.Options{EnableWAL: true})
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		existed, err := store.Delete(ctx, args[0])
		if err != nil {
			return err
		}
		if !existed {
			return fmt.Errorf("session not found: %s", args[0])
		}
		fmt.Fprintf(out, "Deleted session %s\n", args[0])
	}

	if finished {
		n, err := store.DeleteFinished(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted %d finished session(s)\n", n)
	}

	if olderThan > 0 {
		n, err := store.DeleteOlderThan(ctx, olderThan)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted %d session(s) older than %s\n", n, olderThan)
	}

	return nil
}
