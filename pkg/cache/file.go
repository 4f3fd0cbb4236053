package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// FileCache stores payloads as files in a directory. Dataset payloads run
// into tens of megabytes, so the data is written raw with a small JSON
// sidecar holding the expiry.
type FileCache struct {
	dir string
}

// NewFileCache creates a file-based cache in the given directory, creating
// it if necessary.
func NewFileCache(dir string) (Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileCache{dir: dir}, nil
}

// fileMeta is the sidecar metadata for a cached payload.
type fileMeta struct {
	ExpiresAt time.Time `json:"expires_at"`
}

// Get retrieves a payload from the cache.
func (c *FileCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	dataPath, metaPath := c.paths(key)

	raw, err := os.ReadFile(metaPath)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var meta fileMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		// Corrupt metadata is a miss.
		c.remove(key)
		return nil, false, nil
	}
	if !meta.ExpiresAt.IsZero() && time.Now().After(meta.ExpiresAt) {
		c.remove(key)
		return nil, false, nil
	}

	data, err := os.ReadFile(dataPath)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set stores a payload in the cache.
func (c *FileCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	var meta fileMeta
	if ttl > 0 {
		meta.ExpiresAt = time.Now().Add(ttl)
	}
	metaRaw, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	dataPath, metaPath := c.paths(key)
	if err := os.MkdirAll(filepath.Dir(dataPath), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(dataPath, data, 0644); err != nil {
		return err
	}
	return os.WriteFile(metaPath, metaRaw, 0644)
}

// Delete removes a payload from the cache.
func (c *FileCache) Delete(ctx context.Context, key string) error {
	c.remove(key)
	return nil
}

// Close does nothing for the file cache.
func (c *FileCache) Close() error {
	return nil
}

// paths converts a cache key to data and metadata file paths. The first
// two hash characters become a subdirectory to keep directories small.
func (c *FileCache) paths(key string) (string, string) {
	hash := Hash([]byte(key))
	base := filepath.Join(c.dir, hash[:2], hash[2:])
	return base + ".bin", base + ".json"
}

func (c *FileCache) remove(key string) {
	dataPath, metaPath := c.paths(key)
	_ = os.Remove(dataPath)
	_ = os.Remove(metaPath)
}

// Ensure FileCache implements Cache.
var _ Cache = (*FileCache)(nil)
