// Package project provides app configuration loading for Orbit projects.
//
// A project is a directory containing app.json (the app config, read with
// gjson so unknown fields survive untouched) and optionally .orbit/config.yaml
// with CLI defaults.
package project

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
)

// UnversionedSDK is the sentinel used when app.json declares no sdkVersion.
const UnversionedSDK = "UNVERSIONED"

// NoProjectRootError indicates no app.json was found at or above a directory.
type NoProjectRootError struct {
	// Dir is the directory the search started from.
	Dir string
}

// Error returns a human-readable error message.
func (e *NoProjectRootError) Error() string {
	return fmt.Sprintf("no app.json found (searched from %s to /)", e.Dir)
}

// AppConfig is the parsed app configuration served in manifests.
type AppConfig struct {
	// Name is the human-readable app name.
	Name string

	// Slug is the URL-safe app identifier.
	Slug string

	// Version is the app version string.
	Version string

	// SDKVersion is the declared SDK version, or UnversionedSDK.
	SDKVersion string

	// RuntimeVersion is the expo-updates runtime version, when declared.
	RuntimeVersion string

	// Owner is the publishing account name; empty means anonymous.
	Owner string

	// Scheme is the app's custom URL scheme, when declared.
	Scheme string

	// Platforms lists the supported platforms.
	Platforms []string

	// Raw is the JSON of the app config object. Asset resolution walks this
	// with gjson paths so fields not modeled here are preserved.
	Raw []byte
}

// FindProjectRoot walks up from dir looking for an app.json file.
//
// Parameters:
//   - dir: Starting directory to search from
//
// Returns:
//   - string: The first ancestor (or dir itself) containing app.json
//   - error: NoProjectRootError if none is found before reaching /
func FindProjectRoot(dir string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	current := absDir
	for {
		if _, err := os.Stat(filepath.Join(current, "app.json")); err == nil {
			return current, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", &NoProjectRootError{Dir: absDir}
		}
		current = parent
	}
}

// LoadAppConfig reads and parses app.json from a project root.
//
// Both layouts are accepted: fields nested under an "expo" key or declared
// at the top level. A missing sdkVersion is tolerated and replaced with the
// UnversionedSDK sentinel.
//
// Parameters:
//   - projectRoot: The project root directory
//
// Returns:
//   - *AppConfig: The parsed app configuration
//   - error: Any error that occurred during loading
func LoadAppConfig(projectRoot string) (*AppConfig, error) {
	path := filepath.Join(projectRoot, "app.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read app.json: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("failed to parse app.json: invalid JSON")
	}

	root := gjson.ParseBytes(data)
	if expo := root.Get("expo"); expo.Exists() {
		root = expo
	}

	cfg := &AppConfig{
		Name:           root.Get("name").String(),
		Slug:           root.Get("slug").String(),
		Version:        root.Get("version").String(),
		SDKVersion:     root.Get("sdkVersion").String(),
		RuntimeVersion: root.Get("runtimeVersion").String(),
		Owner:          root.Get("owner").String(),
		Scheme:         root.Get("scheme").String(),
		Raw:            []byte(root.Raw),
	}
	if cfg.SDKVersion == "" {
		cfg.SDKVersion = UnversionedSDK
	}
	if cfg.Slug == "" {
		cfg.Slug = filepath.Base(projectRoot)
	}
	for _, p := range root.Get("platforms").Array() {
		cfg.Platforms = append(cfg.Platforms, p.String())
	}
	if len(cfg.Platforms) == 0 {
		cfg.Platforms = []string{"ios", "android"}
	}

	return cfg, nil
}

// EntryPoint resolves the entry module name for a platform.
//
// Resolution order: index.<platform>.js in the project root, the "main"
// field of package.json, then index.js. The returned name has no .js
// extension, matching the bundle URL path segment.
//
// Parameters:
//   - projectRoot: The project root directory
//   - platform: The requested platform (ios, android, web)
//
// Returns:
//   - string: The entry module name (e.g. "index")
func EntryPoint(projectRoot, platform string) string {
	platformEntry := fmt.Sprintf("index.%s.js", platform)
	if _, err := os.Stat(filepath.Join(projectRoot, platformEntry)); err == nil {
		return trimJSExt(platformEntry)
	}

	pkgPath := filepath.Join(projectRoot, "package.json")
	if data, err := os.ReadFile(pkgPath); err == nil {
		if main := gjson.GetBytes(data, "main").String(); main != "" {
			return trimJSExt(main)
		}
	}

	return "index"
}

// trimJSExt strips a trailing .js from a module path.
func trimJSExt(name string) string {
	if filepath.Ext(name) == ".js" {
		return name[:len(name)-3]
	}
	return name
}
