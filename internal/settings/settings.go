// Package settings persists per-project runtime configuration and transient
// packager state.
//
// Each project root maps to a directory under ~/.orbit/projects/ keyed by a
// hash of the root path. Two files live there: settings.json (durable
// ProjectSettings) and packager-info.json (transient PackagerInfo). Absence
// of either file implies defaults.
package settings

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// HostType selects how session URLs are constructed.
type HostType string

const (
	// HostTypeTunnel serves URLs through the public tunnel hostnames.
	HostTypeTunnel HostType = "tunnel"

	// HostTypeLAN serves URLs using the machine's LAN IP.
	HostTypeLAN HostType = "lan"

	// HostTypeLocalhost serves URLs on 127.0.0.1 only.
	HostTypeLocalhost HostType = "localhost"

	// HostTypeRedirect serves URLs through the hosted redirect page.
	HostTypeRedirect HostType = "redirect"
)

// ProjectSettings is the durable per-project configuration record.
type ProjectSettings struct {
	// HostType is the active URL hosting mode. At most one is active at a time.
	HostType HostType `json:"hostType"`

	// Dev enables development-mode bundles.
	Dev bool `json:"dev"`

	// Minify enables bundle minification.
	Minify bool `json:"minify"`

	// HTTPS serves URLs with an https scheme.
	HTTPS bool `json:"https"`

	// URLRandomness seeds the deterministic tunnel hostname. Nil until a
	// tunnel is first opened; cleared to force a new address.
	URLRandomness *string `json:"urlRandomness"`

	// Scheme is the app's custom URL scheme, when known.
	Scheme *string `json:"scheme"`
}

// SettingsPatch is a partial ProjectSettings for shallow-merge updates.
// Nil fields are left untouched.
type SettingsPatch struct {
	HostType        *HostType `json:"hostType,omitempty"`
	Dev             *bool     `json:"dev,omitempty"`
	Minify          *bool     `json:"minify,omitempty"`
	HTTPS           *bool     `json:"https,omitempty"`
	URLRandomness   *string   `json:"urlRandomness,omitempty"`
	ClearRandomness bool      `json:"-"`
	Scheme          *string   `json:"scheme,omitempty"`
}

// PackagerInfo is the transient per-project runtime record.
//
// A non-nil PID means a live OS process was started under that PID; it may
// be stale after a crash and is best-effort only.
type PackagerInfo struct {
	// PackagerPort is the JS bundler's port.
	PackagerPort *int `json:"packagerPort"`

	// PackagerPID is the bundler child process ID (legacy mode).
	PackagerPID *int `json:"packagerPid"`

	// ServerPort is the manifest server's port.
	ServerPort *int `json:"expoServerPort"`

	// ServerNgrokURL is the public tunnel URL for the manifest server.
	ServerNgrokURL *string `json:"expoServerNgrokUrl"`

	// PackagerNgrokURL is the public tunnel URL for the bundler.
	PackagerNgrokURL *string `json:"packagerNgrokUrl"`

	// NgrokPID is the tunnel client's OS process ID.
	NgrokPID *int `json:"ngrokPid"`

	// WebpackServerPort is the web bundler's port.
	WebpackServerPort *int `json:"webpackServerPort"`
}

// DefaultSettings returns the settings used when no file exists yet.
func DefaultSettings() *ProjectSettings {
	return &ProjectSettings{
		HostType: HostTypeLAN,
		Dev:      true,
		Minify:   false,
		HTTPS:    false,
	}
}

// Store reads and writes per-project settings files.
//
// Writes are guarded by an in-process mutex; last write wins. Cross-process
// locking is intentionally absent; one CLI session per project root is
// assumed.
type Store struct {
	// baseDir is the per-user state directory (default ~/.orbit).
	baseDir string

	mu sync.Mutex
}

// NewStore creates a settings store rooted at ~/.orbit.
//
// Returns:
//   - *Store: A new store instance
func NewStore() *Store {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return &Store{baseDir: filepath.Join(homeDir, ".orbit")}
}

// NewStoreWithDir creates a settings store rooted at a custom directory.
//
// Parameters:
//   - baseDir: The directory to store state in
//
// Returns:
//   - *Store: A new store instance
func NewStoreWithDir(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// projectDir returns the state directory for a project root.
func (s *Store) projectDir(projectRoot string) string {
	sum := sha256.Sum256([]byte(projectRoot))
	return filepath.Join(s.baseDir, "projects", hex.EncodeToString(sum[:])[:16])
}

// settingsPath returns the path to the durable settings file.
func (s *Store) settingsPath(projectRoot string) string {
	return filepath.Join(s.projectDir(projectRoot), "settings.json")
}

// packagerInfoPath returns the path to the transient packager-info file.
func (s *Store) packagerInfoPath(projectRoot string) string {
	return filepath.Join(s.projectDir(projectRoot), "packager-info.json")
}

// ReadSettings retrieves the settings for a project root.
//
// Returns defaults when no settings file exists yet.
//
// Parameters:
//   - projectRoot: The on-disk project root path
//
// Returns:
//   - *ProjectSettings: The stored or default settings
//   - error: Any error other than the file not existing
func (s *Store) ReadSettings(projectRoot string) (*ProjectSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readSettingsLocked(projectRoot)
}

func (s *Store) readSettingsLocked(projectRoot string) (*ProjectSettings, error) {
	data, err := os.ReadFile(s.settingsPath(projectRoot))
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, fmt.Errorf("failed to read project settings: %w", err)
	}

	var settings ProjectSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse project settings: %w", err)
	}
	if settings.HostType == "" {
		settings.HostType = HostTypeLAN
	}
	return &settings, nil
}

// SetSettings shallow-merges a patch into the stored settings, persists the
// result, and returns it.
//
// Parameters:
//   - projectRoot: The on-disk project root path
//   - patch: Fields to update; nil fields are untouched
//
// Returns:
//   - *ProjectSettings: The merged settings
//   - error: Any error that occurred during persistence
func (s *Store) SetSettings(projectRoot string, patch *SettingsPatch) (*ProjectSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.readSettingsLocked(projectRoot)
	if err != nil {
		return nil, err
	}

	if patch.HostType != nil {
		settings.HostType = *patch.HostType
	}
	if patch.Dev != nil {
		settings.Dev = *patch.Dev
	}
	if patch.Minify != nil {
		settings.Minify = *patch.Minify
	}
	if patch.HTTPS != nil {
		settings.HTTPS = *patch.HTTPS
	}
	if patch.URLRandomness != nil {
		settings.URLRandomness = patch.URLRandomness
	}
	if patch.ClearRandomness {
		settings.URLRandomness = nil
	}
	if patch.Scheme != nil {
		settings.Scheme = patch.Scheme
	}

	if err := s.writeJSON(s.settingsPath(projectRoot), settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// ReadPackagerInfo retrieves the transient packager record for a project.
//
// Returns an empty record when no file exists yet.
//
// Parameters:
//   - projectRoot: The on-disk project root path
//
// Returns:
//   - *PackagerInfo: The stored or empty record
//   - error: Any error other than the file not existing
func (s *Store) ReadPackagerInfo(projectRoot string) (*PackagerInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readPackagerInfoLocked(projectRoot)
}

func (s *Store) readPackagerInfoLocked(projectRoot string) (*PackagerInfo, error) {
	data, err := os.ReadFile(s.packagerInfoPath(projectRoot))
	if err != nil {
		if os.IsNotExist(err) {
			return &PackagerInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read packager info: %w", err)
	}

	var info PackagerInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse packager info: %w", err)
	}
	return &info, nil
}

// UpdatePackagerInfo applies a mutation to the stored record and persists it.
//
// The mutate function receives the current record and edits it in place.
//
// Parameters:
//   - projectRoot: The on-disk project root path
//   - mutate: Function that edits the record
//
// Returns:
//   - *PackagerInfo: The updated record
//   - error: Any error that occurred during persistence
func (s *Store) UpdatePackagerInfo(projectRoot string, mutate func(*PackagerInfo)) (*PackagerInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := s.readPackagerInfoLocked(projectRoot)
	if err != nil {
		return nil, err
	}

	mutate(info)

	if err := s.writeJSON(s.packagerInfoPath(projectRoot), info); err != nil {
		return nil, err
	}
	return info, nil
}

// ClearPackagerInfo resets every transient field to null.
//
// Used by clean stop and by the force-quit path.
//
// Parameters:
//   - projectRoot: The on-disk project root path
//
// Returns:
//   - error: Any error that occurred during persistence
func (s *Store) ClearPackagerInfo(projectRoot string) error {
	_, err := s.UpdatePackagerInfo(projectRoot, func(info *PackagerInfo) {
		*info = PackagerInfo{}
	})
	return err
}

// writeJSON persists a value as indented JSON with restricted permissions.
func (s *Store) writeJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}
