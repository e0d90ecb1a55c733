// Copyright 2026 Tracekit Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// DiskCache is a content-addressed artifact cache on disk.
//
// Entries are keyed by a hash of the source URL plus the expected
// checksum, so a URL whose pinned checksum changes gets a fresh entry.
type DiskCache struct {
	root string
}

// NewDiskCache creates a disk cache rooted at root.
func NewDiskCache(root string) *DiskCache {
	return &DiskCache{root: root}
}

// Key derives the cache key for a URL and expected checksum.
func (c *DiskCache) Key(url, sha string) string {
	h := sha256.New()
	h.Write([]byte(url))
	h.Write([]byte(sha))
	return hex.EncodeToString(h.Sum(nil))
}

// Path returns the cache path for a key.
func (c *DiskCache) Path(key string) string {
	return filepath.Join(c.root, "artifacts", key)
}

// Get returns the cached file path for the key, if present.
func (c *DiskCache) Get(key string) (string, bool) {
	path := c.Path(key)
	if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
		return path, true
	}
	return "", false
}

// Put moves a completed temp file into the cache under key. The rename
// is atomic, so a partial download is never observable at the final path.
func (c *DiskCache) Put(key, tempFile string) (string, error) {
	dest := c.Path(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}
	if err := os.Rename(tempFile, dest); err != nil {
		return "", fmt.Errorf("commit cache entry: %w", err)
	}
	return dest, nil
}

// Clear removes all cached artifacts.
func (c *DiskCache) Clear() error {
	return os.RemoveAll(filepath.Join(c.root, "artifacts"))
}
