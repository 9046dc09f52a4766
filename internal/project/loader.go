package project

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// Loader caches the app config for a project root and keeps it fresh.
//
// The manifest endpoint is hit on every client poll; re-reading and
// re-parsing app.json each time is wasteful, so the loader caches the parsed
// config and invalidates it when fsnotify reports a write to app.json.
type Loader struct {
	projectRoot string

	mu       sync.Mutex
	cached   *AppConfig
	onChange func()

	watcher *fsnotify.Watcher
}

// NewLoader creates an app config loader for a project root.
//
// Parameters:
//   - projectRoot: The project root directory
//
// Returns:
//   - *Loader: A new loader instance
func NewLoader(projectRoot string) *Loader {
	return &Loader{projectRoot: projectRoot}
}

// Get returns the app config, loading it on first use.
//
// Returns:
//   - *AppConfig: The cached or freshly loaded config
//   - error: Any error that occurred during loading
func (l *Loader) Get() (*AppConfig, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cached != nil {
		return l.cached, nil
	}

	cfg, err := LoadAppConfig(l.projectRoot)
	if err != nil {
		return nil, err
	}
	l.cached = cfg
	return cfg, nil
}

// Invalidate drops the cached config so the next Get re-reads app.json.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cached = nil
}

// OnChange registers a callback invoked after the watcher invalidates the
// cached config. Used to push reloads to connected clients.
//
// Parameters:
//   - fn: The callback
func (l *Loader) OnChange(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = fn
}

// Watch invalidates the cache whenever app.json changes on disk.
//
// Runs until the context is cancelled or Close is called. Watching the
// directory rather than the file survives editors that replace-on-save.
//
// Parameters:
//   - ctx: Context for cancellation
//
// Returns:
//   - error: Any error that occurred setting up the watcher
func (l *Loader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(l.projectRoot); err != nil {
		watcher.Close()
		return err
	}

	l.mu.Lock()
	l.watcher = watcher
	l.mu.Unlock()

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != "app.json" {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					log.Debug("app.json changed, invalidating cached app config")
					l.Invalidate()
					l.mu.Lock()
					onChange := l.onChange
					l.mu.Unlock()
					if onChange != nil {
						onChange()
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Debug("app config watcher error", "error", err)
			}
		}
	}()

	return nil
}

// Close stops the watcher if one is running.
func (l *Loader) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watcher != nil {
		l.watcher.Close()
		l.watcher = nil
	}
}
