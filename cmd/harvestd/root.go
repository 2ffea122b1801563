// Package main provides the entry point for the harvestd CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for harvestd.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvestd",
		Short: "Resumable batch harvesting with anti-detection pacing",
		Long: `harvestd runs batch harvesting sessions against rate-limited sources.

Every session is persisted after each item, so an interrupted or stopped
run resumes exactly where it left off. All workers pace their requests
through one shared rate limiter with jittered delays, exponential backoff,
and rotating identity profiles.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().String("db-dir", "", "Session database directory (default: XDG data directory)")

	// Add subcommands
	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewListCmd())
	cmd.AddCommand(NewCleanupCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
