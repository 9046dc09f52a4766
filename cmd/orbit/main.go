// Package main provides the entry point for the Orbit CLI.
//
// The Orbit CLI runs a local development session for Orbit mobile apps:
// it manages the JavaScript bundler, serves signed manifests to client
// devices, opens public tunnels, and publishes app assets.
package main

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/orbitlabs/orbit-cli/internal/api"
	"github.com/orbitlabs/orbit-cli/internal/project"
	"github.com/orbitlabs/orbit-cli/internal/settings"
	"github.com/orbitlabs/orbit-cli/internal/ui"
)

// Version information set at build time via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "orbit",
	Short: "Local development sessions for Orbit apps",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		if debug {
			log.SetLevel(log.DebugLevel)
			log.Debug("Debug logging enabled")
		}

		quiet, _ := cmd.Flags().GetBool("quiet")
		ui.SetQuietMode(quiet)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress non-essential output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(urlCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(exportCmd)
}

// versionCmd shows version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		ui.PrintInfo("Version: %s", version)
		ui.PrintInfo("Commit: %s", commit)
		ui.PrintInfo("Built: %s", date)
	},
}

// resolveProjectRoot finds the project root from the working directory.
func resolveProjectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return project.FindProjectRoot(cwd)
}

// newStore creates the per-user settings store.
func newStore() *settings.Store {
	return settings.NewStore()
}

// newAPIClient creates the backend client from the ambient session token.
func newAPIClient() *api.Client {
	return api.NewClient(os.Getenv("ORBIT_SESSION_TOKEN"))
}

func main() {
	Execute()
}
