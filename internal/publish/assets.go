package publish

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/orbitlabs/orbit-cli/internal/util"
)

// manifestAssetFields are the manifest paths checked for publishable local
// files in addition to the bundler's emitted assets.
var manifestAssetFields = []string{
	"icon",
	"splash.image",
	"notification.icon",
}

// CollectManifestAssets gathers local files referenced by the manifest.
//
// Remote references and missing files are skipped; the manifest builder has
// already warned or failed for those.
//
// Parameters:
//   - projectRoot: The project root
//   - manifestJSON: The built manifest document
//
// Returns:
//   - []Asset: One asset per resolvable local reference
//   - error: Hashing errors
func CollectManifestAssets(projectRoot string, manifestJSON []byte) ([]Asset, error) {
	var assets []Asset
	for _, field := range manifestAssetFields {
		ref := gjson.GetBytes(manifestJSON, field).String()
		if ref == "" || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
			continue
		}

		rel := filepath.ToSlash(filepath.Clean(filepath.FromSlash(ref)))
		localPath := filepath.Join(projectRoot, filepath.FromSlash(rel))
		if _, err := os.Stat(localPath); err != nil {
			continue
		}

		hash, err := util.FileHash(localPath)
		if err != nil {
			return nil, err
		}
		ext := strings.TrimPrefix(filepath.Ext(rel), ".")
		assets = append(assets, Asset{
			Files:      []string{rel},
			FileHashes: []string{hash},
			Type:       ext,
		})
	}
	return assets, nil
}

// RewriteBundledAssets replaces assetBundlePatterns with the concrete
// bundledAssets list.
//
// Each asset variant whose path matches any pattern is included under its
// content-addressed name, "asset_<hash>.<type>" or "asset_<hash>" when the
// asset has no extension. Patterns use filepath glob syntax.
//
// Parameters:
//   - manifestJSON: The built manifest document
//   - assets: The session's assets
//
// Returns:
//   - []byte: The rewritten manifest
//   - error: Pattern or rewrite errors
func RewriteBundledAssets(manifestJSON []byte, assets []Asset) ([]byte, error) {
	patternsField := gjson.GetBytes(manifestJSON, "assetBundlePatterns")
	if !patternsField.Exists() {
		return manifestJSON, nil
	}

	var patterns []string
	for _, p := range patternsField.Array() {
		patterns = append(patterns, p.String())
	}

	var bundled []string
	seen := make(map[string]struct{})
	for _, asset := range assets {
		for i, hash := range asset.FileHashes {
			if i >= len(asset.Files) {
				break
			}
			match, err := matchesAnyPattern(asset.Files[i], patterns)
			if err != nil {
				return nil, err
			}
			if !match {
				continue
			}

			name := "asset_" + hash
			if asset.Type != "" {
				name += "." + asset.Type
			}
			if _, dup := seen[name]; !dup {
				seen[name] = struct{}{}
				bundled = append(bundled, name)
			}
		}
	}

	doc, err := sjson.SetBytes(manifestJSON, "bundledAssets", bundled)
	if err != nil {
		return nil, fmt.Errorf("failed to set bundledAssets: %w", err)
	}
	doc, err = sjson.DeleteBytes(doc, "assetBundlePatterns")
	if err != nil {
		return nil, fmt.Errorf("failed to drop assetBundlePatterns: %w", err)
	}
	return doc, nil
}

// matchesAnyPattern reports whether a path matches any glob pattern. The
// first match wins.
func matchesAnyPattern(path string, patterns []string) (bool, error) {
	path = filepath.ToSlash(path)
	for _, pattern := range patterns {
		ok, err := filepath.Match(filepath.ToSlash(pattern), path)
		if err != nil {
			return false, fmt.Errorf("invalid asset bundle pattern %q: %w", pattern, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
