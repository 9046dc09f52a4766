package main

import (
	"github.com/spf13/cobra"

	"github.com/orbitlabs/orbit-cli/internal/session"
	"github.com/orbitlabs/orbit-cli/internal/settings"
	"github.com/orbitlabs/orbit-cli/internal/ui"
)

// statusCmd reports the health of the project's session.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the development session status",
	Long: `Show whether a development session is running for the current project.

Reports one of three states: running, stopped, or ill. An ill session
has tracked state on disk but its processes are gone or unresponsive,
usually after a crash. Run "orbit stop" to clean it up.

Examples:
  orbit status`,
	RunE: runStatus,
}

// runStatus prints the session health and any tracked URLs.
//
// Parameters:
//   - cmd: The cobra command being executed
//   - args: Command line arguments (unused)
//
// Returns:
//   - error: Project or state errors
func runStatus(cmd *cobra.Command, args []string) error {
	projectRoot, err := resolveProjectRoot()
	if err != nil {
		return err
	}
	store := newStore()

	health, err := session.Diagnose(store, projectRoot)
	if err != nil {
		return err
	}

	switch health {
	case session.HealthRunning:
		ui.PrintSuccess("Session is running")
		if url, err := session.SessionURL(store, projectRoot); err == nil {
			ui.PrintLink("URL", url)
		}
		printPorts(store, projectRoot)
	case session.HealthIll:
		ui.PrintWarning("Session is ill: state is tracked but the processes are not responding")
		ui.PrintDim("Run `orbit stop` to clean up")
	case session.HealthStopped:
		ui.PrintInfo("No session is running")
	}
	return nil
}

// printPorts shows the tracked ports of a running session.
func printPorts(store *settings.Store, projectRoot string) {
	info, err := store.ReadPackagerInfo(projectRoot)
	if err != nil {
		return
	}
	if info.ServerPort != nil {
		ui.PrintDim("Server port: %d", *info.ServerPort)
	}
	if info.PackagerPort != nil {
		ui.PrintDim("Bundler port: %d", *info.PackagerPort)
	}
	if info.WebpackServerPort != nil {
		ui.PrintDim("Web port: %d", *info.WebpackServerPort)
	}
}
