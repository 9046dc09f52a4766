// Package manifest builds and signs the manifest documents served to client
// apps.
//
// A manifest is the project's app config enriched with session URLs, the
// entry module, resolved asset URLs, and host metadata. Signing is optional
// and degrades to an UNSIGNED wrapper when the backend is unreachable or the
// user is anonymous.
package manifest

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"runtime"
	"strconv"
	"sync"

	"github.com/tidwall/sjson"

	"github.com/orbitlabs/orbit-cli/internal/ports"
	"github.com/orbitlabs/orbit-cli/internal/project"
	"github.com/orbitlabs/orbit-cli/internal/settings"
)

// AnonymousUsername is the account segment of manifest ids for sessions
// without a signed-in user.
const AnonymousUsername = "anonymous"

// Request describes one manifest build.
type Request struct {
	// ProjectRoot is the project being served.
	ProjectRoot string

	// Host is the HTTP Host header of the incoming request; may be empty
	// for builds not triggered by a request (export, url printing).
	Host string

	// Platform is the client platform (ios, android, web).
	Platform string

	// AcceptSignature requests a signed wrapper instead of the bare
	// manifest document.
	AcceptSignature bool

	// Offline marks the session as having no usable backend connection.
	Offline bool

	// Strict makes a missing local asset an error instead of a warning.
	Strict bool

	// UpdatesProtocol additionally emits asset descriptor objects for the
	// updates-protocol endpoint.
	UpdatesProtocol bool
}

// HostInfo identifies the serving machine in the Exponent-Server header.
type HostInfo struct {
	Host          string `json:"host"`
	Server        string `json:"server"`
	ServerVersion string `json:"serverVersion"`
	ServerOS      string `json:"serverOS"`
}

// Built is the outcome of a manifest build, before any signing.
type Built struct {
	// JSON is the manifest document.
	JSON []byte

	// HostInfo describes the serving host.
	HostInfo *HostInfo
}

// Builder assembles manifest documents for a project.
type Builder struct {
	store   *settings.Store
	loader  *project.Loader
	version string

	// lanAddress is overridable for tests.
	lanAddress func() string

	mu           sync.Mutex
	warnedAssets map[string]struct{}
}

// NewBuilder creates a manifest builder.
//
// Parameters:
//   - store: The settings store
//   - loader: The app config loader for the project
//   - version: The CLI version reported in host info
//
// Returns:
//   - *Builder: A new builder instance
func NewBuilder(store *settings.Store, loader *project.Loader, version string) *Builder {
	return &Builder{
		store:        store,
		loader:       loader,
		version:      version,
		lanAddress:   ports.LANAddress,
		warnedAssets: make(map[string]struct{}),
	}
}

// AppConfig returns the project's current app config.
//
// Returns:
//   - *project.AppConfig: The cached or freshly loaded config
//   - error: Any error that occurred during loading
func (b *Builder) AppConfig() (*project.AppConfig, error) {
	return b.loader.Get()
}

// Build assembles the manifest for one request.
//
// Parameters:
//   - req: The build request
//
// Returns:
//   - *Built: The manifest document and host info
//   - error: Config load, state read, or strict asset resolution errors
func (b *Builder) Build(req Request) (*Built, error) {
	config, err := b.loader.Get()
	if err != nil {
		return nil, err
	}
	projectSettings, err := b.store.ReadSettings(req.ProjectRoot)
	if err != nil {
		return nil, err
	}
	info, err := b.store.ReadPackagerInfo(req.ProjectRoot)
	if err != nil {
		return nil, err
	}
	hostID, err := b.store.HostID()
	if err != nil {
		return nil, err
	}

	platform := req.Platform
	if platform == "" {
		platform = "ios"
	}

	hostname := b.resolveHostname(req.Host, projectSettings, info)
	scheme := "http"
	if projectSettings.HTTPS || projectSettings.HostType == settings.HostTypeTunnel {
		scheme = "https"
	}

	serverPort := 80
	if info.ServerPort != nil {
		serverPort = *info.ServerPort
	}
	packagerPort := 80
	if info.PackagerPort != nil {
		packagerPort = *info.PackagerPort
	}

	entry := project.EntryPoint(req.ProjectRoot, platform)
	hostURI := net.JoinHostPort(hostname, strconv.Itoa(serverPort))
	debuggerHost := net.JoinHostPort(hostname, strconv.Itoa(packagerPort))
	bundleURL := fmt.Sprintf("%s://%s/%s.bundle?platform=%s&dev=%t&hot=false&minify=%t",
		scheme, debuggerHost, entry, url.QueryEscape(platform), projectSettings.Dev, projectSettings.Minify)

	doc := config.Raw
	set := func(path string, value interface{}) {
		if err == nil {
			doc, err = sjson.SetBytes(doc, path, value)
		}
	}

	set("id", manifestID(config, hostID, req.Offline))
	set("slug", config.Slug)
	set("sdkVersion", config.SDKVersion)
	set("mainModuleName", entry)
	set("bundleUrl", bundleURL)
	set("hostUri", hostURI)
	set("debuggerHost", debuggerHost)
	set("logUrl", fmt.Sprintf("%s://%s/logs", scheme, hostURI))
	set("packagerOpts", map[string]interface{}{
		"hostType":      string(projectSettings.HostType),
		"dev":           projectSettings.Dev,
		"minify":        projectSettings.Minify,
		"https":         projectSettings.HTTPS,
		"lanType":       "ip",
		"urlRandomness": derefOrNil(projectSettings.URLRandomness),
	})
	set("developer", map[string]interface{}{
		"tool":        "orbit-cli",
		"projectRoot": req.ProjectRoot,
	})
	set("env.ORBIT_DEBUG", projectSettings.Dev)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble manifest: %w", err)
	}

	// Served assets come off the bundler, so their URLs share the
	// bundleUrl origin rather than the manifest server's.
	origin := fmt.Sprintf("%s://%s", scheme, debuggerHost)
	doc, err = b.resolveAssets(doc, req, origin)
	if err != nil {
		return nil, err
	}

	return &Built{
		JSON: doc,
		HostInfo: &HostInfo{
			Host:          hostID,
			Server:        "orbit-cli",
			ServerVersion: b.version,
			ServerOS:      runtime.GOOS,
		},
	}, nil
}

// resolveHostname picks the hostname clients should reach the session on.
//
// The request's own Host header is authoritative when present since the
// client evidently reached us through it. Without one, fall back to the
// tunnel hostname, loopback, or the LAN address per the hosting mode.
func (b *Builder) resolveHostname(host string, projectSettings *settings.ProjectSettings, info *settings.PackagerInfo) string {
	if host != "" {
		if hostname, _, err := net.SplitHostPort(host); err == nil {
			return hostname
		}
		return host
	}

	switch projectSettings.HostType {
	case settings.HostTypeTunnel:
		if info.ServerNgrokURL != nil {
			if u, err := url.Parse(*info.ServerNgrokURL); err == nil && u.Hostname() != "" {
				return u.Hostname()
			}
		}
	case settings.HostTypeLocalhost:
		return "127.0.0.1"
	}
	return b.lanAddress()
}

// manifestID derives the manifest's experience id.
//
// Anonymous and offline sessions get a host-unique suffix so two machines
// serving the same project never collide in a client's history.
func manifestID(config *project.AppConfig, hostID string, offline bool) string {
	owner := config.Owner
	anonymous := owner == ""
	if anonymous {
		owner = AnonymousUsername
	}

	id := fmt.Sprintf("@%s/%s", owner, config.Slug)
	if offline || anonymous {
		id += "+" + hostID
	}
	return id
}

// derefOrNil unwraps a string pointer for JSON embedding.
func derefOrNil(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

// MarshalHostInfo serializes host info for the Exponent-Server header.
//
// Parameters:
//   - info: The host info to serialize
//
// Returns:
//   - string: Compact JSON
func MarshalHostInfo(info *HostInfo) string {
	data, err := json.Marshal(info)
	if err != nil {
		return "{}"
	}
	return string(data)
}
