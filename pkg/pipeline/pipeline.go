// Package pipeline provides the dataset composition pipeline for trainset.
//
// This package implements the complete load → augment → compose pipeline
// that assembles a balanced character-classification dataset from machine-
// rendered digits, handwritten digits, and out-of-vocabulary samples. By
// centralizing this logic, the CLI and library consumers share one
// implementation of source loading, caching, and composition.
//
// # Architecture
//
// The pipeline consists of three stages:
//
//  1. Load: Read the configured sources (pre-rendered digits, MNIST,
//     curated characters, synthetic empties) into datasets
//  2. Augment: Grow the machine-digit dataset through seeded transform
//     pipelines
//  3. Compose: Resize every source to the output resolution and wrap them
//     in a balanced minibatch generator
//
// Each stage can be run independently or as part of the complete pipeline.
//
// # Usage
//
// Create a Runner and execute the pipeline:
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	opts := pipeline.DefaultOptions()
//	opts.PrerenderedPath = "digits.zip"
//	result, err := runner.Execute(ctx, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	gen := result.Generator
//
// Run individual stages:
//
//	// Load only
//	machine, err := runner.LoadMachine(ctx, opts)
//
//	// Augment an already loaded dataset
//	err = runner.Augment(ctx, machine, opts)
//
//	// Compose with existing datasets
//	gen, err := runner.Compose(ctx, machine, handwritten, out, opts)
package pipeline

import (
	"io"
	"runtime"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/trainset/pkg/batch"
	"github.com/matzehuels/trainset/pkg/cache"
	"github.com/matzehuels/trainset/pkg/dataset"
	"github.com/matzehuels/trainset/pkg/errors"
	"github.com/matzehuels/trainset/pkg/transform"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI and Library Consumers
// =============================================================================

const (
	// DefaultResolution is the working resolution for loading and
	// augmentation. Warping at a resolution above the output size keeps
	// interpolation artifacts out of the final images.
	DefaultResolution = 64

	// DefaultOutputResolution matches the native MNIST size so composed
	// sources line up without resampling the handwritten digits.
	DefaultOutputResolution = dataset.MNISTResolution

	// DefaultBatchSize is the minibatch size of the composed generator.
	DefaultBatchSize = 128

	// DefaultEmptyCount is the number of synthetic empty-cell samples.
	DefaultEmptyCount = 10000

	// DefaultSeed is the default random seed for reproducibility.
	DefaultSeed = uint64(42)
)

// Source names used in cache keys, hook events, and log lines.
const (
	SourceMachine     = "machine"
	SourceHandwritten = "handwritten"
	SourceOut         = "out"
	SourceValidation  = "validation"
)

// =============================================================================
// Options - Pipeline Configuration
// =============================================================================

// Options contains all configuration for the dataset pipeline.
// This struct supports TOML/JSON serialization for config files.
type Options struct {
	// Load options
	Resolution       int    `json:"resolution,omitempty" toml:"resolution"`
	PrerenderedPath  string `json:"prerendered_path,omitempty" toml:"prerendered_path"`
	PrerenderedCount int    `json:"prerendered_count,omitempty" toml:"prerendered_count"`
	MNIST            bool   `json:"mnist,omitempty" toml:"mnist"`
	MNISTBaseURL     string `json:"mnist_base_url,omitempty" toml:"mnist_base_url"`
	CuratedPath      string `json:"curated_path,omitempty" toml:"curated_path"`
	RealPath         string `json:"real_path,omitempty" toml:"real_path"`
	LegacyScheme     bool   `json:"legacy_scheme,omitempty" toml:"legacy_scheme"`
	EmptyCount       int    `json:"empty_count,omitempty" toml:"empty_count"`
	Refresh          bool   `json:"refresh,omitempty" toml:"refresh"`

	// Augment options
	KeepOriginals bool   `json:"keep_originals,omitempty" toml:"keep_originals"`
	Seed          uint64 `json:"seed,omitempty" toml:"seed"`
	Shuffle       bool   `json:"shuffle,omitempty" toml:"shuffle"`
	FastResize    bool   `json:"fast_resize,omitempty" toml:"fast_resize"`
	Workers       int    `json:"workers,omitempty" toml:"workers"`

	// Compose options
	OutputResolution int  `json:"output_resolution,omitempty" toml:"output_resolution"`
	BatchSize        int  `json:"batch_size,omitempty" toml:"batch_size"`
	Flatten          bool `json:"flatten,omitempty" toml:"flatten"`

	// Runtime options (not serialized)
	Chains  []transform.Chain   `json:"-" toml:"-"`
	Logger  *log.Logger         `json:"-" toml:"-"`
	Fetcher dataset.Fetcher     `json:"-" toml:"-"`
	Reader  dataset.ImageReader `json:"-" toml:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool `json:"-" toml:"-"`
}

// DefaultOptions returns options with MNIST enabled and shuffled splits.
func DefaultOptions() Options {
	return Options{MNIST: true, Shuffle: true}
}

// Result contains the outputs of a pipeline run.
type Result struct {
	// RunID uniquely identifies this execution in logs and hook events.
	RunID string

	// Machine holds the augmented machine-rendered digits (classes 1..9).
	Machine *dataset.Dataset

	// Handwritten holds handwritten digits (classes 11..19).
	Handwritten *dataset.Dataset

	// Out holds empty cells and out-of-vocabulary characters.
	Out *dataset.Dataset

	// Validation holds photographed cells for held-out evaluation.
	// Nil unless RealPath was configured.
	Validation *dataset.Dataset

	// Generator yields balanced minibatches over the three sources.
	Generator *batch.Balanced

	// Stats contains timing and size information.
	Stats Stats

	// CacheInfo tracks which sources were restored from cache.
	CacheInfo CacheInfo
}

// Stats contains pipeline execution statistics.
type Stats struct {
	MachineCount     int
	HandwrittenCount int
	OutCount         int
	BatchCount       int
	LoadTime         time.Duration
	AugmentTime      time.Duration
	ComposeTime      time.Duration
}

// CacheInfo tracks snapshot cache hits for each source.
type CacheInfo struct {
	MachineHit     bool // Whether the machine source came from cache
	HandwrittenHit bool // Whether the handwritten source came from cache
	OutHit         bool // Whether the out source came from cache
}

// =============================================================================
// Options Methods
// =============================================================================

// ValidateAndSetDefaults checks required fields and applies defaults for the
// full pipeline. This method is idempotent - calling it multiple times has
// the same effect as calling it once.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if err := o.ValidateForLoad(); err != nil {
		return err
	}
	o.SetAugmentDefaults()
	o.SetComposeDefaults()
	o.validated = true
	return nil
}

// ValidateForLoad checks required fields for source loading.
func (o *Options) ValidateForLoad() error {
	if o.PrerenderedPath == "" {
		return errors.New(errors.ErrCodeInvalidConfig,
			"a machine-printed source is required; set prerendered_path")
	}
	if !o.MNIST && o.CuratedPath == "" {
		return errors.New(errors.ErrCodeInvalidConfig,
			"a handwritten source is required; enable mnist or set curated_path")
	}

	// Load defaults
	if o.Resolution == 0 {
		o.Resolution = DefaultResolution
	}
	if err := errors.ValidateResolution(o.Resolution); err != nil {
		return err
	}
	if o.MNISTBaseURL == "" {
		o.MNISTBaseURL = dataset.DefaultMNISTBaseURL
	}
	if o.EmptyCount == 0 {
		o.EmptyCount = DefaultEmptyCount
	}
	if o.Seed == 0 {
		o.Seed = DefaultSeed
	}

	// Logger default
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}

	return nil
}

// SetAugmentDefaults sets default values for the augment stage.
func (o *Options) SetAugmentDefaults() {
	if o.Chains == nil {
		o.Chains = DefaultAugmentations(o.Seed)
	}
	if o.Workers == 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
}

// SetComposeDefaults sets default values for composition.
func (o *Options) SetComposeDefaults() {
	if o.OutputResolution == 0 {
		o.OutputResolution = DefaultOutputResolution
	}
	if o.BatchSize == 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
}

// ValidateForCompose validates and sets defaults for composition.
func (o *Options) ValidateForCompose() error {
	o.SetComposeDefaults()
	return errors.ValidateResolution(o.OutputResolution)
}

// DatasetOptions returns the dataset-level options shared by every source.
func (o *Options) DatasetOptions() dataset.Options {
	return dataset.Options{
		Shuffle:    o.Shuffle,
		FastResize: o.FastResize,
		Seed:       o.Seed,
		Workers:    o.Workers,
		Logger:     o.Logger,
	}
}

// BatchOptions returns the generator options for composition.
func (o *Options) BatchOptions() batch.Options {
	return batch.Options{
		BatchSize: o.BatchSize,
		Shuffle:   o.Shuffle,
		Flatten:   o.Flatten,
		Seed:      o.Seed,
		Logger:    o.Logger,
	}
}

// DatasetKeyOpts returns cache key options for source snapshots.
func (o *Options) DatasetKeyOpts() cache.DatasetKeyOpts {
	return cache.DatasetKeyOpts{
		Resolution: o.Resolution,
		Seed:       o.Seed,
		Shuffle:    o.Shuffle,
	}
}
