// Package artifact downloads, verifies, caches, and extracts the
// external binaries a workflow depends on, such as the trace server.
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tracekit/ci-harness/pkg/errors"
)

// Spec describes an artifact to fetch.
type Spec struct {
	URL string
	// SHA256 is the expected hex digest; empty skips verification.
	SHA256 string
	// Force bypasses the cache.
	Force bool
}

// Downloader fetches artifacts through a disk cache.
type Downloader struct {
	client *http.Client
	cache  *DiskCache
	logger *slog.Logger
}

// NewDownloader creates a downloader backed by the given cache.
func NewDownloader(cache *DiskCache, logger *slog.Logger) *Downloader {
	return &Downloader{
		client: &http.Client{Timeout: 10 * time.Minute},
		cache:  cache,
		logger: logger,
	}
}

// Fetch returns a local path for the artifact, downloading it on a cache
// miss. The second return value reports whether the cache served it.
func (d *Downloader) Fetch(ctx context.Context, spec Spec) (string, bool, error) {
	key := d.cache.Key(spec.URL, spec.SHA256)

	if !spec.Force {
		if path, ok := d.cache.Get(key); ok {
			d.logger.Info("artifact cache hit", "url", spec.URL)
			return path, true, nil
		}
	}

	path, err := d.download(ctx, spec, key)
	if err != nil {
		return "", false, err
	}
	return path, false, nil
}

func (d *Downloader) download(ctx context.Context, spec Spec, key string) (string, error) {
	d.logger.Info("downloading artifact", "url", spec.URL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.URL, nil)
	if err != nil {
		return "", errors.ArtifactError("invalid artifact URL", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", errors.ArtifactError(fmt.Sprintf("download failed: %s", spec.URL), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// 5xx messages keep the status text so the retry classifier
		// can tell transient server trouble from a bad URL.
		return "", errors.ArtifactError(
			fmt.Sprintf("download failed: %s returned status %d", spec.URL, resp.StatusCode), nil)
	}

	// Temp file lives next to the final path so the commit rename stays
	// on one filesystem.
	if err := os.MkdirAll(filepath.Dir(d.cache.Path(key)), 0o755); err != nil {
		return "", errors.ArtifactError("create cache dir", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(d.cache.Path(key)), ".download-*")
	if err != nil {
		return "", errors.ArtifactError("create temp file", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), resp.Body)
	if err != nil {
		return "", errors.ArtifactError("download interrupted", err)
	}
	if err := tmp.Close(); err != nil {
		return "", errors.ArtifactError("flush download", err)
	}

	if spec.SHA256 != "" {
		got := hex.EncodeToString(hasher.Sum(nil))
		if !strings.EqualFold(got, spec.SHA256) {
			return "", errors.ArtifactError(
				fmt.Sprintf("checksum mismatch for %s: got %s, want %s", spec.URL, got, spec.SHA256), nil)
		}
	}

	path, err := d.cache.Put(key, tmp.Name())
	if err != nil {
		return "", errors.ArtifactError("cache artifact", err)
	}

	d.logger.Info("artifact downloaded", "url", spec.URL, "bytes", size)
	return path, nil
}
