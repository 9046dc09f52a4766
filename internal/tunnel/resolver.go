package tunnel

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
	"github.com/tidwall/gjson"

	"github.com/orbitlabs/orbit-cli/internal/ui"
)

const (
	// ClientPackage is the npm package providing the tunnel client.
	ClientPackage = "@orbit/ngrok"

	// ClientSemverRange is the version range the CLI is compatible with.
	ClientSemverRange = "^4.1.0"
)

// clientMinVersion is the lower bound of ClientSemverRange.
var clientMinVersion = [3]int{4, 1, 0}

// Resolver locates a compatible tunnel client installation.
//
// Resolution order: project-local node_modules, global npm root, and last an
// offer to install the global package when interactive prompting is allowed.
// The resolved client is cached for the lifetime of the resolver, so a
// tunnel restart does not re-resolve.
type Resolver struct {
	// NpmPath overrides the npm executable used for lookups and installs.
	NpmPath string

	// newClient builds a Client from a resolved package directory.
	// Overridable in tests.
	newClient func(pkgDir string) Client

	mu     sync.Mutex
	cached Client
}

// NewResolver creates a tunnel client resolver.
//
// Returns:
//   - *Resolver: A new resolver instance
func NewResolver() *Resolver {
	return &Resolver{
		NpmPath:   "npm",
		newClient: func(pkgDir string) Client { return newProcessClient(pkgDir) },
	}
}

// Resolve returns the tunnel client, resolving and caching it on first use.
//
// Parameters:
//   - projectRoot: The project root, searched for a local installation
//   - allowPrompt: Whether an interactive install offer is permitted
//
// Returns:
//   - Client: The resolved client
//   - error: An actionable error when no compatible installation is found
func (r *Resolver) Resolve(projectRoot string, allowPrompt bool) (Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != nil {
		return r.cached, nil
	}

	pkgDir, err := r.locate(projectRoot, allowPrompt)
	if err != nil {
		return nil, err
	}

	r.cached = r.newClient(pkgDir)
	return r.cached, nil
}

// Cached returns the already-resolved client, or nil if Resolve has not
// succeeded yet.
func (r *Resolver) Cached() Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cached
}

// locate finds a compatible package directory without caching.
func (r *Resolver) locate(projectRoot string, allowPrompt bool) (string, error) {
	// 1. Project-local installation
	localDir := filepath.Join(projectRoot, "node_modules", filepath.FromSlash(ClientPackage))
	if dir, ok := compatibleInstall(localDir); ok {
		log.Debug("using project-local tunnel client", "dir", dir)
		return dir, nil
	}

	// 2. Global installation
	if globalRoot, err := r.npmGlobalRoot(); err == nil {
		globalDir := filepath.Join(globalRoot, filepath.FromSlash(ClientPackage))
		if dir, ok := compatibleInstall(globalDir); ok {
			log.Debug("using global tunnel client", "dir", dir)
			return dir, nil
		}
	}

	// 3. Offer a global install when interactive
	if allowPrompt && isatty.IsTerminal(os.Stdin.Fd()) {
		confirmed, err := ui.PromptConfirm(
			fmt.Sprintf("The tunnel client (%s) is not installed. Install it globally now?", ClientPackage), true)
		if err == nil && confirmed {
			if err := r.installGlobal(); err != nil {
				return "", fmt.Errorf("failed to install %s: %w", ClientPackage, err)
			}
			globalRoot, err := r.npmGlobalRoot()
			if err != nil {
				return "", fmt.Errorf("failed to locate npm global root after install: %w", err)
			}
			globalDir := filepath.Join(globalRoot, filepath.FromSlash(ClientPackage))
			if dir, ok := compatibleInstall(globalDir); ok {
				return dir, nil
			}
		}
	}

	return "", fmt.Errorf(
		"the tunnel client is not available. Install it with `npm install -g %s@%s`, or use `--host lan` or `--host localhost` instead of a tunnel",
		ClientPackage, ClientSemverRange)
}

// npmGlobalRoot returns the global node_modules directory.
func (r *Resolver) npmGlobalRoot() (string, error) {
	out, err := exec.Command(r.NpmPath, "root", "-g").Output()
	if err != nil {
		return "", fmt.Errorf("npm root -g failed: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// installGlobal installs the tunnel client package globally.
func (r *Resolver) installGlobal() error {
	cmd := exec.Command(r.NpmPath, "install", "-g", ClientPackage+"@"+ClientSemverRange)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// compatibleInstall reports whether pkgDir holds an installation whose
// version satisfies ClientSemverRange.
func compatibleInstall(pkgDir string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(pkgDir, "package.json"))
	if err != nil {
		return "", false
	}
	version := gjson.GetBytes(data, "version").String()
	if !satisfiesCaretRange(version, clientMinVersion) {
		log.Debug("tunnel client version out of range", "dir", pkgDir, "version", version)
		return "", false
	}
	return pkgDir, true
}

// satisfiesCaretRange checks version against a caret range lower bound:
// same major version, and at least the minimum minor/patch.
func satisfiesCaretRange(version string, min [3]int) bool {
	parts := strings.SplitN(strings.TrimPrefix(strings.TrimSpace(version), "v"), ".", 3)
	if len(parts) != 3 {
		return false
	}
	var nums [3]int
	for i, p := range parts {
		// Strip prerelease/build suffixes from the patch component.
		if i == 2 {
			if idx := strings.IndexAny(p, "-+"); idx != -1 {
				p = p[:idx]
			}
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return false
		}
		nums[i] = n
	}
	if nums[0] != min[0] {
		return false
	}
	if nums[1] != min[1] {
		return nums[1] > min[1]
	}
	return nums[2] >= min[2]
}
