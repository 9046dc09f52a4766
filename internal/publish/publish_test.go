package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/orbitlabs/orbit-cli/internal/api"
)

// fakeUploader records metadata and upload traffic.
type fakeUploader struct {
	existing map[string]bool

	mu            sync.Mutex
	metadataCalls int
	metadataKeys  []string
	uploaded      []string
	uploadErr     error
}

func (f *fakeUploader) AssetsMetadata(ctx context.Context, keys []string) (map[string]api.AssetMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metadataCalls++
	f.metadataKeys = append([]string(nil), keys...)

	out := make(map[string]api.AssetMetadata, len(keys))
	for _, key := range keys {
		out[key] = api.AssetMetadata{Exists: f.existing[key]}
	}
	return out, nil
}

func (f *fakeUploader) UploadAsset(ctx context.Context, key, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploaded = append(f.uploaded, key)
	return nil
}

func makeAssets(t *testing.T, projectRoot string, n int) []Asset {
	t.Helper()
	assets := make([]Asset, 0, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("asset%02d.png", i)
		if err := os.WriteFile(filepath.Join(projectRoot, name), []byte(name), 0644); err != nil {
			t.Fatal(err)
		}
		assets = append(assets, Asset{
			Files:      []string{name},
			FileHashes: []string{fmt.Sprintf("hash%02d", i)},
			Type:       "png",
		})
	}
	return assets
}

func TestPublishUploadsOnlyMissing(t *testing.T) {
	projectRoot := t.TempDir()
	assets := makeAssets(t, projectRoot, 10)

	// 3 of 10 already exist remotely.
	uploader := &fakeUploader{existing: map[string]bool{
		"hash00": true,
		"hash04": true,
		"hash09": true,
	}}
	p := &Pipeline{client: uploader, chunkSize: uploadChunkSize}

	result, err := p.Publish(context.Background(), projectRoot, assets)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if uploader.metadataCalls != 1 {
		t.Errorf("metadata called %d times, want 1", uploader.metadataCalls)
	}
	if len(uploader.metadataKeys) != 10 {
		t.Errorf("metadata queried %d keys, want all 10", len(uploader.metadataKeys))
	}
	if len(uploader.uploaded) != 7 {
		t.Errorf("uploaded %d assets, want 7", len(uploader.uploaded))
	}
	// 7 missing assets in chunks of 5 makes 2 batches.
	if result.Batches != 2 {
		t.Errorf("Batches = %d, want 2", result.Batches)
	}
	if result.Total != 10 || result.Transferred != 7 {
		t.Errorf("result = %+v", result)
	}

	for _, key := range uploader.uploaded {
		if uploader.existing[key] {
			t.Errorf("existing asset %s was re-uploaded", key)
		}
	}
}

func TestPublishDedupesByHash(t *testing.T) {
	projectRoot := t.TempDir()
	if err := os.WriteFile(filepath.Join(projectRoot, "icon.png"), []byte("icon"), 0644); err != nil {
		t.Fatal(err)
	}

	// The same content hash appears in two assets and two variants.
	assets := []Asset{
		{Files: []string{"icon.png", "icon.png"}, FileHashes: []string{"h1", "h1"}, Type: "png"},
		{Files: []string{"icon.png"}, FileHashes: []string{"h1"}, Type: "png"},
	}

	uploader := &fakeUploader{}
	p := &Pipeline{client: uploader, chunkSize: uploadChunkSize}

	result, err := p.Publish(context.Background(), projectRoot, assets)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if result.Total != 1 || len(uploader.uploaded) != 1 {
		t.Errorf("result = %+v, uploaded = %v, want single deduped asset", result, uploader.uploaded)
	}
}

func TestPublishNoAssets(t *testing.T) {
	uploader := &fakeUploader{}
	p := &Pipeline{client: uploader, chunkSize: uploadChunkSize}

	result, err := p.Publish(context.Background(), t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if result.Total != 0 || uploader.metadataCalls != 0 {
		t.Errorf("empty publish touched the backend: %+v, calls=%d", result, uploader.metadataCalls)
	}
}

func TestExportCopiesAssets(t *testing.T) {
	projectRoot := t.TempDir()
	assets := makeAssets(t, projectRoot, 3)
	outDir := t.TempDir()

	p := NewPipeline(nil)
	result, err := p.Export(projectRoot, outDir, assets)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if result.Transferred != 3 || result.Batches != 1 {
		t.Errorf("result = %+v", result)
	}

	for i := 0; i < 3; i++ {
		hash := fmt.Sprintf("hash%02d", i)
		data, err := os.ReadFile(filepath.Join(outDir, "assets", hash))
		if err != nil {
			t.Fatalf("exported asset %s missing: %v", hash, err)
		}
		want := fmt.Sprintf("asset%02d.png", i)
		if string(data) != want {
			t.Errorf("asset %s content = %q, want %q", hash, data, want)
		}
	}
}
