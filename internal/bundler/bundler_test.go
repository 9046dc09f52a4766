package bundler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/orbitlabs/orbit-cli/internal/project"
	"github.com/orbitlabs/orbit-cli/internal/settings"
)

func mustLoadConfig(t *testing.T, dir string) *project.AppConfig {
	t.Helper()
	config, err := project.LoadAppConfig(dir)
	if err != nil {
		t.Fatalf("LoadAppConfig() error = %v", err)
	}
	return config
}

func TestSupportsDevServer(t *testing.T) {
	tests := []struct {
		sdkVersion string
		want       bool
	}{
		{"40.0.0", true},
		{"41.0.0", true},
		{"39.0.0", false},
		{"38.0.0", false},
		{"UNVERSIONED", true},
		{"", false},
		{"garbage", false},
	}

	for _, tt := range tests {
		t.Run(tt.sdkVersion, func(t *testing.T) {
			if got := SupportsDevServer(tt.sdkVersion); got != tt.want {
				t.Errorf("SupportsDevServer(%q) = %v, want %v", tt.sdkVersion, got, tt.want)
			}
		})
	}
}

func TestRewriteOutputLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
		keep bool
	}{
		{
			name: "normal line kept",
			line: "Loading dependency graph, done.",
			want: "Loading dependency graph, done.",
			keep: true,
		},
		{
			name: "whitespace trimmed",
			line: "  bundling complete  ",
			want: "bundling complete",
			keep: true,
		},
		{
			name: "blank suppressed",
			line: "   ",
			keep: false,
		},
		{
			name: "duplicate module warning suppressed",
			line: "jest-haste-map: Duplicate module name: bser",
			keep: false,
		},
		{
			name: "node experimental warning suppressed",
			line: "(node:123) ExperimentalWarning: stream/web is experimental",
			keep: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, keep := rewriteOutputLine(tt.line)
			if keep != tt.keep {
				t.Fatalf("rewriteOutputLine(%q) keep = %v, want %v", tt.line, keep, tt.keep)
			}
			if keep && got != tt.want {
				t.Errorf("rewriteOutputLine(%q) = %q, want %q", tt.line, got, tt.want)
			}
		})
	}
}

func writeAppJSON(t *testing.T, dir, sdkVersion string) {
	t.Helper()
	content := `{"expo": {"name": "Demo", "slug": "demo", "sdkVersion": "` + sdkVersion + `"}}`
	if err := os.WriteFile(filepath.Join(dir, "app.json"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestRunnerBuildArgs(t *testing.T) {
	projectRoot := t.TempDir()
	writeAppJSON(t, projectRoot, "38.0.0")
	store := settings.NewStoreWithDir(t.TempDir())

	t.Run("old sdk gets source extensions", func(t *testing.T) {
		r := NewRunner(store, projectRoot, Options{})
		args := r.buildArgs(19001, mustLoadConfig(t, projectRoot))
		joined := strings.Join(args, " ")
		if !strings.HasPrefix(joined, "start --port 19001") {
			t.Errorf("args = %v, want start --port 19001 prefix", args)
		}
		if !strings.Contains(joined, "--sourceExts") {
			t.Errorf("args = %v, want --sourceExts for SDK 38", args)
		}
	})

	t.Run("reset and workers flags", func(t *testing.T) {
		r := NewRunner(store, projectRoot, Options{Reset: true, MaxWorkers: 2})
		joined := strings.Join(r.buildArgs(19001, mustLoadConfig(t, projectRoot)), " ")
		if !strings.Contains(joined, "--reset-cache") {
			t.Errorf("args missing --reset-cache: %s", joined)
		}
		if !strings.Contains(joined, "--max-workers 2") {
			t.Errorf("args missing --max-workers 2: %s", joined)
		}
	})

	t.Run("new sdk omits source extensions", func(t *testing.T) {
		newRoot := t.TempDir()
		writeAppJSON(t, newRoot, "41.0.0")
		r := NewRunner(store, newRoot, Options{})
		joined := strings.Join(r.buildArgs(19001, mustLoadConfig(t, newRoot)), " ")
		if strings.Contains(joined, "--sourceExts") {
			t.Errorf("args unexpectedly contain --sourceExts: %s", joined)
		}
	})
}
