package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/orbitlabs/orbit-cli/internal/session"
	"github.com/orbitlabs/orbit-cli/internal/ui"
)

// stopCmd stops a running session from outside the owning process.
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running development session",
	Long: `Stop the development session for the project in the current directory.

The running session is asked to shut down cleanly; any leftover bundler
or tunnel processes are killed and the tracked session state is cleared.
Useful when a session's terminal is gone or a crash left state behind.

Examples:
  orbit stop`,
	RunE: runStop,
}

// runStop stops the project's session.
//
// Parameters:
//   - cmd: The cobra command being executed
//   - args: Command line arguments (unused)
//
// Returns:
//   - error: Project or state errors
func runStop(cmd *cobra.Command, args []string) error {
	projectRoot, err := resolveProjectRoot()
	if err != nil {
		return err
	}

	stopped, err := session.StopDetached(context.Background(), newStore(), projectRoot)
	if err != nil {
		return err
	}
	if !stopped {
		ui.PrintInfo("No running session found")
		return nil
	}
	ui.PrintSuccess("Session stopped")
	return nil
}
