package project

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

func TestLoadAppConfig_NestedExpoKey(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "app.json", `{
		"expo": {
			"name": "Demo App",
			"slug": "demo-app",
			"version": "1.2.3",
			"sdkVersion": "38.0.0",
			"owner": "acme",
			"platforms": ["ios"]
		}
	}`)

	cfg, err := LoadAppConfig(dir)
	if err != nil {
		t.Fatalf("LoadAppConfig failed: %v", err)
	}
	if cfg.Name != "Demo App" || cfg.Slug != "demo-app" {
		t.Errorf("unexpected name/slug: %q/%q", cfg.Name, cfg.Slug)
	}
	if cfg.SDKVersion != "38.0.0" {
		t.Errorf("SDKVersion = %q, want 38.0.0", cfg.SDKVersion)
	}
	if cfg.Owner != "acme" {
		t.Errorf("Owner = %q, want acme", cfg.Owner)
	}
	if len(cfg.Platforms) != 1 || cfg.Platforms[0] != "ios" {
		t.Errorf("Platforms = %v, want [ios]", cfg.Platforms)
	}
}

func TestLoadAppConfig_MissingSDKVersionIsUnversioned(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "app.json", `{"name": "Bare", "slug": "bare"}`)

	cfg, err := LoadAppConfig(dir)
	if err != nil {
		t.Fatalf("LoadAppConfig failed: %v", err)
	}
	if cfg.SDKVersion != UnversionedSDK {
		t.Errorf("SDKVersion = %q, want %q", cfg.SDKVersion, UnversionedSDK)
	}
	if len(cfg.Platforms) != 2 {
		t.Errorf("Platforms = %v, want default [ios android]", cfg.Platforms)
	}
}

func TestLoadAppConfig_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "app.json", `{"name": `)

	if _, err := LoadAppConfig(dir); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestEntryPoint(t *testing.T) {
	dir := t.TempDir()

	// No files at all: default.
	if got := EntryPoint(dir, "ios"); got != "index" {
		t.Errorf("EntryPoint = %q, want index", got)
	}

	// package.json main wins over the default.
	writeFile(t, dir, "package.json", `{"main": "src/App.js"}`)
	if got := EntryPoint(dir, "ios"); got != "src/App" {
		t.Errorf("EntryPoint = %q, want src/App", got)
	}

	// Platform override wins over package.json.
	writeFile(t, dir, "index.ios.js", "")
	if got := EntryPoint(dir, "ios"); got != "index.ios" {
		t.Errorf("EntryPoint = %q, want index.ios", got)
	}
	if got := EntryPoint(dir, "android"); got != "src/App" {
		t.Errorf("EntryPoint(android) = %q, want src/App", got)
	}
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app.json", `{}`)
	nested := filepath.Join(root, "src", "screens")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}

	got, err := FindProjectRoot(nested)
	if err != nil {
		t.Fatalf("FindProjectRoot failed: %v", err)
	}
	// Resolve symlinks (macOS tempdirs live under /private).
	wantResolved, _ := filepath.EvalSymlinks(root)
	gotResolved, _ := filepath.EvalSymlinks(got)
	if gotResolved != wantResolved {
		t.Errorf("FindProjectRoot = %q, want %q", got, root)
	}
}

func TestFindProjectRoot_NotFound(t *testing.T) {
	dir := t.TempDir()
	_, err := FindProjectRoot(dir)
	if err == nil {
		t.Fatal("expected NoProjectRootError")
	}
	if _, ok := err.(*NoProjectRootError); !ok {
		t.Errorf("error type = %T, want *NoProjectRootError", err)
	}
}

func TestLoader_CachesAndInvalidates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "app.json", `{"name": "One", "slug": "one"}`)

	loader := NewLoader(dir)
	cfg, err := loader.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if cfg.Name != "One" {
		t.Fatalf("Name = %q, want One", cfg.Name)
	}

	// Without invalidation the cached config is returned.
	writeFile(t, dir, "app.json", `{"name": "Two", "slug": "two"}`)
	cfg, _ = loader.Get()
	if cfg.Name != "One" {
		t.Errorf("expected cached config, got %q", cfg.Name)
	}

	loader.Invalidate()
	cfg, err = loader.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if cfg.Name != "Two" {
		t.Errorf("Name after invalidate = %q, want Two", cfg.Name)
	}
}
