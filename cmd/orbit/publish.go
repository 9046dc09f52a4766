// Package main provides asset publishing commands for the Orbit CLI.
package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orbitlabs/orbit-cli/internal/manifest"
	"github.com/orbitlabs/orbit-cli/internal/project"
	"github.com/orbitlabs/orbit-cli/internal/publish"
	"github.com/orbitlabs/orbit-cli/internal/ui"
)

// publishCmd uploads the project's assets to the asset CDN.
var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish the project's assets",
	Long: `Publish the project's assets to the Orbit asset CDN.

Assets referenced by the app config are hashed and uploaded. Assets the
CDN already has are skipped, so repeated publishes only transfer what
changed. A missing local asset fails the publish.

Requires a session token in the ORBIT_SESSION_TOKEN environment
variable.

Examples:
  orbit publish`,
	RunE: runPublish,
}

// runPublish builds a strict manifest and uploads its assets.
//
// Parameters:
//   - cmd: The cobra command being executed
//   - args: Command line arguments (unused)
//
// Returns:
//   - error: Project, manifest, or upload errors
func runPublish(cmd *cobra.Command, args []string) error {
	projectRoot, err := resolveProjectRoot()
	if err != nil {
		return err
	}

	_, assets, err := buildPublishAssets(projectRoot)
	if err != nil {
		return err
	}

	pipeline := publish.NewPipeline(newAPIClient())
	result, err := pipeline.Publish(context.Background(), projectRoot, assets)
	if err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}

	if result.Transferred == 0 {
		ui.PrintSuccess("All %d assets are already published", result.Total)
	} else {
		ui.PrintSuccess("Published %d of %d assets", result.Transferred, result.Total)
	}
	return nil
}

// buildPublishAssets builds a strict manifest and collects its local assets.
//
// Strict mode turns a missing local asset into an error, so a publish never
// silently skips a file the app config references.
//
// Returns:
//   - *manifest.Built: The built manifest
//   - []publish.Asset: The collected assets
//   - error: Manifest build or asset collection errors
func buildPublishAssets(projectRoot string) (*manifest.Built, []publish.Asset, error) {
	loader := project.NewLoader(projectRoot)
	defer loader.Close()

	builder := manifest.NewBuilder(newStore(), loader, version)
	built, err := builder.Build(manifest.Request{
		ProjectRoot: projectRoot,
		Strict:      true,
	})
	if err != nil {
		return nil, nil, err
	}

	assets, err := publish.CollectManifestAssets(projectRoot, built.JSON)
	if err != nil {
		return nil, nil, err
	}
	return built, assets, nil
}
