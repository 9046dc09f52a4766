// Package publish implements the asset export and publish pipeline.
//
// Assets are content-addressed by SHA-256. The remote side is queried once
// for the whole asset set, and only missing assets are transferred, a small
// batch at a time.
package publish

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/orbitlabs/orbit-cli/internal/api"
)

// uploadChunkSize is how many asset transfers run concurrently per batch.
const uploadChunkSize = 5

// Asset is one bundler-emitted asset: parallel file and hash lists, one
// entry per scale variant.
type Asset struct {
	// Files are the variant file paths, relative to the project root.
	Files []string

	// FileHashes are the content hashes, aligned with Files.
	FileHashes []string

	// Type is the file extension without the dot, e.g. "png". Empty for
	// extensionless assets.
	Type string
}

// uploader is the backend surface the pipeline needs. Implemented by
// *api.Client.
type uploader interface {
	AssetsMetadata(ctx context.Context, keys []string) (map[string]api.AssetMetadata, error)
	UploadAsset(ctx context.Context, key, path string) error
}

// Result summarizes one publish or export run.
type Result struct {
	// Total is the number of distinct asset hashes processed.
	Total int

	// Transferred is how many assets were uploaded or copied.
	Transferred int

	// Batches is how many transfer batches ran.
	Batches int
}

// Pipeline uploads or exports a session's assets.
type Pipeline struct {
	client    uploader
	chunkSize int
}

// NewPipeline creates an asset pipeline.
//
// Parameters:
//   - client: The backend API client; may be nil for export-only use
//
// Returns:
//   - *Pipeline: A new pipeline instance
func NewPipeline(client *api.Client) *Pipeline {
	p := &Pipeline{chunkSize: uploadChunkSize}
	if client != nil {
		p.client = client
	}
	return p
}

// dedupe flattens assets into a hash-to-path map. Variants sharing content
// collapse to one entry.
func dedupe(projectRoot string, assets []Asset) map[string]string {
	paths := make(map[string]string)
	for _, asset := range assets {
		for i, hash := range asset.FileHashes {
			if i >= len(asset.Files) {
				break
			}
			if _, ok := paths[hash]; !ok {
				paths[hash] = filepath.Join(projectRoot, filepath.FromSlash(asset.Files[i]))
			}
		}
	}
	return paths
}

// sortedKeys returns the map's keys in stable order.
func sortedKeys(paths map[string]string) []string {
	keys := make([]string, 0, len(paths))
	for key := range paths {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Publish uploads every asset the backend does not already have.
//
// Remote existence is resolved with a single batched metadata call; uploads
// run in bounded concurrent batches.
//
// Parameters:
//   - ctx: Context for cancellation
//   - projectRoot: The project root asset paths are relative to
//   - assets: The assets to publish
//
// Returns:
//   - *Result: Transfer statistics
//   - error: Metadata or upload errors
func (p *Pipeline) Publish(ctx context.Context, projectRoot string, assets []Asset) (*Result, error) {
	if p.client == nil {
		return nil, fmt.Errorf("cannot publish assets without an API client")
	}

	paths := dedupe(projectRoot, assets)
	keys := sortedKeys(paths)
	result := &Result{Total: len(keys)}
	if len(keys) == 0 {
		return result, nil
	}

	metadata, err := p.client.AssetsMetadata(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to query asset metadata: %w", err)
	}

	var missing []string
	for _, key := range keys {
		if !metadata[key].Exists {
			missing = append(missing, key)
		}
	}
	log.Debug("asset metadata resolved", "total", len(keys), "missing", len(missing))

	batches, err := p.inChunks(missing, func(key string) error {
		return p.client.UploadAsset(ctx, key, paths[key])
	})
	if err != nil {
		return nil, err
	}

	result.Transferred = len(missing)
	result.Batches = batches
	return result, nil
}

// Export copies every asset into <outDir>/assets/<hash>.
//
// Parameters:
//   - projectRoot: The project root asset paths are relative to
//   - outDir: The export destination directory
//   - assets: The assets to export
//
// Returns:
//   - *Result: Transfer statistics
//   - error: Any copy error
func (p *Pipeline) Export(projectRoot, outDir string, assets []Asset) (*Result, error) {
	assetDir := filepath.Join(outDir, "assets")
	if err := os.MkdirAll(assetDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	paths := dedupe(projectRoot, assets)
	keys := sortedKeys(paths)

	batches, err := p.inChunks(keys, func(key string) error {
		return copyFile(paths[key], filepath.Join(assetDir, key))
	})
	if err != nil {
		return nil, err
	}

	return &Result{Total: len(keys), Transferred: len(keys), Batches: batches}, nil
}

// inChunks runs fn over keys in concurrent batches of the chunk size.
//
// Returns:
//   - int: How many batches ran
//   - error: The first error any fn returned
func (p *Pipeline) inChunks(keys []string, fn func(key string) error) (int, error) {
	batches := 0
	for start := 0; start < len(keys); start += p.chunkSize {
		end := start + p.chunkSize
		if end > len(keys) {
			end = len(keys)
		}
		batches++

		var wg sync.WaitGroup
		errs := make([]error, end-start)
		for i, key := range keys[start:end] {
			wg.Add(1)
			go func(i int, key string) {
				defer wg.Done()
				errs[i] = fn(key)
			}(i, key)
		}
		wg.Wait()

		for _, err := range errs {
			if err != nil {
				return batches, err
			}
		}
	}
	return batches, nil
}

// copyFile copies src to dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open asset %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy asset to %s: %w", dst, err)
	}
	return nil
}
