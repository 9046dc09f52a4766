package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orbitlabs/orbit-cli/internal/session"
	"github.com/orbitlabs/orbit-cli/internal/ui"
)

// urlCmd prints the URLs of the running session.
var urlCmd = &cobra.Command{
	Use:   "url",
	Short: "Print the running session's URL",
	Long: `Print the URL client devices use to reach the running session.

Examples:
  orbit url           # Print the session URL
  orbit url --web     # Print the http:// variant for browsers`,
	RunE: runURL,
}

var urlWeb bool

func init() {
	urlCmd.Flags().BoolVar(&urlWeb, "web", false, "Print an http:// URL instead of exp://")
}

// runURL prints the session URL.
//
// Parameters:
//   - cmd: The cobra command being executed
//   - args: Command line arguments (unused)
//
// Returns:
//   - error: Project errors, or an error when nothing is running
func runURL(cmd *cobra.Command, args []string) error {
	projectRoot, err := resolveProjectRoot()
	if err != nil {
		return err
	}

	url, err := session.SessionURL(newStore(), projectRoot)
	if err != nil {
		return fmt.Errorf("no running session: %w", err)
	}
	if urlWeb && strings.HasPrefix(url, "exp://") {
		url = "http://" + strings.TrimPrefix(url, "exp://")
	}

	ui.PrintLink("Session URL", url)
	return nil
}
