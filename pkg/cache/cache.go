// Package cache provides payload caching for dataset sources.
//
// Raw downloads (MNIST IDX files, character archives) and derived dataset
// payloads are keyed by content-addressed hashes so repeated pipeline runs
// skip the network and the expensive decode steps.
package cache

import (
	"context"
	"time"
)

// Cache lifetimes per payload kind. Source downloads are immutable upstream
// files and never expire. Decoded dataset snapshots can be rebuilt from
// sources, so they expire after a month to bound disk usage.
const (
	TTLSource  = time.Duration(0)
	TTLDataset = 30 * 24 * time.Hour
)

// Cache stores binary payloads under string keys with optional expiry.
type Cache interface {
	// Get retrieves a payload. The second return value reports whether the
	// key was present and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a payload. A zero ttl means the entry never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a payload. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the cache.
	Close() error
}

// SourceKeyOpts distinguishes variants of a downloaded source.
type SourceKeyOpts struct {
	URL     string `json:"url"`
	Variant string `json:"variant,omitempty"`
}

// DatasetKeyOpts distinguishes decoded dataset payloads derived from the
// same source.
type DatasetKeyOpts struct {
	Resolution int    `json:"resolution"`
	Seed       uint64 `json:"seed"`
	Shuffle    bool   `json:"shuffle"`
}

// Keyer derives cache keys for the payload kinds the pipeline stores.
type Keyer interface {
	// SourceKey keys a raw download of a named source.
	SourceKey(source string, opts SourceKeyOpts) string

	// DatasetKey keys a decoded dataset derived from the source payload
	// with the given hash.
	DatasetKey(sourceHash string, opts DatasetKeyOpts) string
}

// DefaultKeyer derives keys by hashing the source name and options.
type DefaultKeyer struct{}

// NewDefaultKeyer creates the standard keyer.
func NewDefaultKeyer() Keyer {
	return &DefaultKeyer{}
}

// SourceKey implements Keyer.
func (k *DefaultKeyer) SourceKey(source string, opts SourceKeyOpts) string {
	return hashKey("source", source, opts)
}

// DatasetKey implements Keyer.
func (k *DefaultKeyer) DatasetKey(sourceHash string, opts DatasetKeyOpts) string {
	return hashKey("dataset", sourceHash, opts)
}
