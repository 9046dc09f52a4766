package project

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoaderCachesAndInvalidates(t *testing.T) {
	projectRoot := t.TempDir()
	appPath := filepath.Join(projectRoot, "app.json")
	if err := os.WriteFile(appPath, []byte(`{"expo": {"slug": "one", "sdkVersion": "40.0.0"}}`), 0644); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader(projectRoot)
	cfg, err := loader.Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if cfg.Slug != "one" {
		t.Errorf("slug = %q", cfg.Slug)
	}

	// Without invalidation the cached config is returned.
	if err := os.WriteFile(appPath, []byte(`{"expo": {"slug": "two", "sdkVersion": "40.0.0"}}`), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err = loader.Get()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Slug != "one" {
		t.Errorf("slug = %q, want cached value", cfg.Slug)
	}

	loader.Invalidate()
	cfg, err = loader.Get()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Slug != "two" {
		t.Errorf("slug after invalidation = %q", cfg.Slug)
	}
}

func TestWatchFiresOnChange(t *testing.T) {
	projectRoot := t.TempDir()
	appPath := filepath.Join(projectRoot, "app.json")
	if err := os.WriteFile(appPath, []byte(`{"expo": {"slug": "one", "sdkVersion": "40.0.0"}}`), 0644); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader(projectRoot)
	defer loader.Close()
	if _, err := loader.Get(); err != nil {
		t.Fatal(err)
	}

	changed := make(chan struct{}, 1)
	loader.OnChange(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := loader.Watch(ctx); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	if err := os.WriteFile(appPath, []byte(`{"expo": {"slug": "two", "sdkVersion": "40.0.0"}}`), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("change callback never fired")
	}

	cfg, err := loader.Get()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Slug != "two" {
		t.Errorf("slug after watched change = %q", cfg.Slug)
	}
}
