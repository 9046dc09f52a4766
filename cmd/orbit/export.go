package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/orbitlabs/orbit-cli/internal/publish"
	"github.com/orbitlabs/orbit-cli/internal/ui"
)

// exportCmd writes the manifest and assets to a local directory.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the manifest and assets to a directory",
	Long: `Export the project's manifest and assets to a local directory.

Assets are copied under <output>/assets/ named by content hash, and the
manifest is written with its asset bundle patterns resolved to the
concrete bundled asset list. The result can be served from any static
file host.

Examples:
  orbit export                  # Export to ./dist
  orbit export --output build   # Export to ./build`,
	RunE: runExport,
}

var exportOutput string

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "dist", "Output directory")
}

// runExport builds a strict manifest and copies its assets out.
//
// Parameters:
//   - cmd: The cobra command being executed
//   - args: Command line arguments (unused)
//
// Returns:
//   - error: Project, manifest, or copy errors
func runExport(cmd *cobra.Command, args []string) error {
	projectRoot, err := resolveProjectRoot()
	if err != nil {
		return err
	}

	built, assets, err := buildPublishAssets(projectRoot)
	if err != nil {
		return err
	}

	pipeline := publish.NewPipeline(nil)
	result, err := pipeline.Export(projectRoot, exportOutput, assets)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	manifestJSON, err := publish.RewriteBundledAssets(built.JSON, assets)
	if err != nil {
		return err
	}
	manifestPath := filepath.Join(exportOutput, "manifest.json")
	if err := os.WriteFile(manifestPath, manifestJSON, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	ui.PrintSuccess("Exported %d assets to %s", result.Transferred, exportOutput)
	ui.PrintLink("Manifest", manifestPath)
	return nil
}
