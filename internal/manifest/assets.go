package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/orbitlabs/orbit-cli/internal/project"
	"github.com/orbitlabs/orbit-cli/internal/util"
)

// AssetHostBase is the CDN base URL for hash-addressed hosted assets.
const AssetHostBase = "https://assets.orbit.host/~assets"

// defaultAssetFields are the app config paths treated as asset references
// when the project does not override the schema in .orbit/config.yaml.
var defaultAssetFields = []string{
	"icon",
	"splash.image",
	"notification.icon",
	"ios.icon",
	"android.icon",
	"android.adaptiveIcon.foregroundImage",
}

// ResolutionError reports an asset field pointing at a missing local file.
type ResolutionError struct {
	// Field is the app config path of the offending asset.
	Field string

	// LocalAssetPath is the resolved on-disk path that does not exist.
	LocalAssetPath string
}

// Error returns a human-readable error message.
func (e *ResolutionError) Error() string {
	return fmt.Sprintf("asset field %q points at %s, which does not exist", e.Field, e.LocalAssetPath)
}

// resolveAssets rewrites asset reference fields into servable URLs.
//
// Remote http(s) values pass through unchanged. Local files become either
// origin-relative /assets/ URLs (serve mode) or hash-addressed hosted URLs
// (strict mode). A missing local file is an error in strict mode; in serve
// mode it logs one warning per field and is skipped.
func (b *Builder) resolveAssets(doc []byte, req Request, origin string) ([]byte, error) {
	fields := defaultAssetFields
	if cfg, err := project.LoadOrbitConfig(req.ProjectRoot); err == nil && len(cfg.AssetFields) > 0 {
		fields = cfg.AssetFields
	}

	for _, field := range fields {
		value := gjson.GetBytes(doc, field)
		if !value.Exists() || value.String() == "" {
			continue
		}
		ref := value.String()

		if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
			if req.UpdatesProtocol {
				var err error
				doc, err = sjson.SetBytes(doc, field+"Asset", map[string]string{"rawUrl": ref})
				if err != nil {
					return nil, fmt.Errorf("failed to record asset %s: %w", field, err)
				}
			}
			continue
		}

		rel := filepath.ToSlash(filepath.Clean(filepath.FromSlash(ref)))
		localPath := filepath.Join(req.ProjectRoot, filepath.FromSlash(rel))
		if _, err := os.Stat(localPath); err != nil {
			if req.Strict {
				return nil, &ResolutionError{Field: field, LocalAssetPath: localPath}
			}
			b.warnMissingAsset(field, localPath)
			continue
		}

		var assetURL, assetKey string
		if req.Strict {
			hash, err := util.FileHash(localPath)
			if err != nil {
				return nil, err
			}
			assetKey = hash
			assetURL = AssetHostBase + "/" + hash
		} else {
			assetKey = rel
			assetURL = origin + "/assets/" + rel
		}

		var err error
		doc, err = sjson.SetBytes(doc, field+"Url", assetURL)
		if err != nil {
			return nil, fmt.Errorf("failed to rewrite asset %s: %w", field, err)
		}
		if req.UpdatesProtocol {
			doc, err = sjson.SetBytes(doc, field+"Asset", map[string]string{"assetKey": assetKey})
			if err != nil {
				return nil, fmt.Errorf("failed to record asset %s: %w", field, err)
			}
		}
	}

	return doc, nil
}

// warnMissingAsset logs a missing-asset warning once per field.
func (b *Builder) warnMissingAsset(field, localPath string) {
	b.mu.Lock()
	_, seen := b.warnedAssets[field]
	b.warnedAssets[field] = struct{}{}
	b.mu.Unlock()

	if !seen {
		log.Warn("asset file not found, leaving field unresolved", "field", field, "path", localPath)
	}
}
