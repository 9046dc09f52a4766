// Package main provides session lifecycle commands for the Orbit CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/orbitlabs/orbit-cli/internal/project"
	"github.com/orbitlabs/orbit-cli/internal/session"
	"github.com/orbitlabs/orbit-cli/internal/settings"
	"github.com/orbitlabs/orbit-cli/internal/ui"
)

// startCmd starts a development session for the current project.
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a development session",
	Long: `Start a development session for the project in the current directory.

The session runs the JavaScript bundler, serves manifests to client
devices, and opens a public tunnel when tunnel hosting is active.
It keeps running until interrupted with Ctrl+C.

Hosting flags persist: the chosen host mode, dev, minify, and https
settings are remembered for the next start.

Examples:
  orbit start                   # Start with the saved settings
  orbit start --host tunnel     # Serve through a public tunnel
  orbit start --host lan        # Serve over the local network
  orbit start --offline         # Skip all backend traffic
  orbit start --web             # Run the web bundler only
  orbit start --clear           # Reset the bundler cache first`,
	RunE: runStart,
}

var (
	startHost      string
	startDev       bool
	startMinify    bool
	startHTTPS     bool
	startWeb       bool
	startOffline   bool
	startPort      int
	startClear     bool
	startDevClient bool
)

func init() {
	startCmd.Flags().StringVar(&startHost, "host", "", "Hosting mode: tunnel, lan, or localhost")
	startCmd.Flags().BoolVar(&startDev, "dev", true, "Serve development-mode bundles")
	startCmd.Flags().BoolVar(&startMinify, "minify", false, "Minify served bundles")
	startCmd.Flags().BoolVar(&startHTTPS, "https", false, "Serve session URLs over https")
	startCmd.Flags().BoolVar(&startWeb, "web", false, "Run the web bundler only")
	startCmd.Flags().BoolVar(&startOffline, "offline", false, "Skip signing, heartbeat, and tunnels")
	startCmd.Flags().IntVarP(&startPort, "port", "p", 0, "Pin the bundler port")
	startCmd.Flags().BoolVarP(&startClear, "clear", "c", false, "Clear the bundler cache on start")
	startCmd.Flags().BoolVar(&startDevClient, "dev-client", false, "Target a native development client build")
}

// runStart starts the session and blocks until interrupted.
//
// Parameters:
//   - cmd: The cobra command being executed
//   - args: Command line arguments (unused)
//
// Returns:
//   - error: Project, settings, or session start errors
func runStart(cmd *cobra.Command, args []string) error {
	projectRoot, err := resolveProjectRoot()
	if err != nil {
		return err
	}

	store := newStore()
	if err := applyStartSettings(cmd.Flags(), store, projectRoot); err != nil {
		return err
	}

	controller := session.NewController(store, newAPIClient(), projectRoot, version)

	ctx := context.Background()
	opts := session.Options{
		WebOnly:   startWeb,
		Offline:   startOffline,
		DevClient: startDevClient,
		MetroPort: startPort,
		Reset:     startClear,
	}
	if err := controller.Start(ctx, opts); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	if url, err := controller.SessionURL(); err == nil {
		ui.Println()
		ui.PrintLink("Session running at", url)
		ui.PrintDim("Press Ctrl+C to stop")
		ui.Println()
	}

	waitForInterrupt()

	ui.Println()
	ui.PrintInfo("Stopping session...")
	if err := controller.Stop(context.Background()); err != nil {
		ui.PrintWarning("Session did not stop cleanly: %v", err)
	} else {
		ui.PrintSuccess("Session stopped")
	}
	return nil
}

// applyStartSettings merges .orbit/config.yaml defaults and explicit flags
// into the project's persisted settings. Flags the user set win over config
// defaults; everything else keeps its stored value.
func applyStartSettings(flags *pflag.FlagSet, store *settings.Store, projectRoot string) error {
	orbitConfig, err := project.LoadOrbitConfig(projectRoot)
	if err != nil {
		return err
	}

	patch := &settings.SettingsPatch{}
	defaults := orbitConfig.Defaults
	if defaults.Host != "" {
		hostType, err := parseHostType(defaults.Host)
		if err != nil {
			return fmt.Errorf("invalid .orbit/config.yaml: %w", err)
		}
		patch.HostType = &hostType
	}
	patch.Dev = defaults.Dev
	patch.Minify = defaults.Minify
	patch.HTTPS = defaults.HTTPS

	if flags.Changed("host") {
		hostType, err := parseHostType(startHost)
		if err != nil {
			return err
		}
		patch.HostType = &hostType
	}
	if flags.Changed("dev") {
		patch.Dev = &startDev
	}
	if flags.Changed("minify") {
		patch.Minify = &startMinify
	}
	if flags.Changed("https") {
		patch.HTTPS = &startHTTPS
	}

	_, err = store.SetSettings(projectRoot, patch)
	return err
}

// parseHostType validates a host mode name.
func parseHostType(name string) (settings.HostType, error) {
	switch settings.HostType(name) {
	case settings.HostTypeTunnel, settings.HostTypeLAN, settings.HostTypeLocalhost, settings.HostTypeRedirect:
		return settings.HostType(name), nil
	default:
		return "", fmt.Errorf("unknown host mode %q, expected tunnel, lan, or localhost", name)
	}
}

// waitForInterrupt blocks until SIGINT or SIGTERM.
func waitForInterrupt() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	signal.Stop(sigCh)
}
