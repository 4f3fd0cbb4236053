package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/trainset/pkg/batch"
	"github.com/matzehuels/trainset/pkg/cache"
	"github.com/matzehuels/trainset/pkg/dataset"
	snapshot "github.com/matzehuels/trainset/pkg/io"
	"github.com/matzehuels/trainset/pkg/observability"
)

// Runner encapsulates pipeline execution with caching.
//
// The Runner is stateless except for the cache and logger - it doesn't
// store pipeline results. Multiple goroutines can safely use the same
// Runner with different options.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
	}
}

// Execute runs the complete load → augment → compose pipeline with caching.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	r.applyLogger(&opts)

	result := &Result{RunID: uuid.NewString()}
	logger := r.Logger.With("run_id", result.RunID)

	// Stage 1: Load
	loadStart := time.Now()
	machine, machineHit, err := r.LoadMachineWithCacheInfo(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("load machine: %w", err)
	}
	handwritten, handwrittenHit, err := r.LoadHandwrittenWithCacheInfo(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("load handwritten: %w", err)
	}
	out, outHit, err := r.LoadOutWithCacheInfo(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("load out: %w", err)
	}
	result.Machine = machine
	result.Handwritten = handwritten
	result.Out = out
	result.CacheInfo = CacheInfo{
		MachineHit:     machineHit,
		HandwrittenHit: handwrittenHit,
		OutHit:         outHit,
	}
	result.Stats.LoadTime = time.Since(loadStart)

	logger.Info("loaded sources",
		"machine", machine.Len(),
		"handwritten", handwritten.Len(),
		"out", out.Len(),
		"duration", result.Stats.LoadTime)

	if opts.RealPath != "" {
		validation, err := r.LoadValidation(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("load validation: %w", err)
		}
		result.Validation = validation
		logger.Info("loaded validation cells", "samples", len(validation.TestX))
	}

	// Stage 2: Augment
	augmentStart := time.Now()
	if err := r.Augment(ctx, machine, opts); err != nil {
		return nil, fmt.Errorf("augment: %w", err)
	}
	result.Stats.AugmentTime = time.Since(augmentStart)
	result.Stats.MachineCount = machine.Len()
	result.Stats.HandwrittenCount = handwritten.Len()
	result.Stats.OutCount = out.Len()

	logger.Info("augmented machine digits",
		"samples", machine.Len(),
		"pipelines", len(opts.Chains),
		"duration", result.Stats.AugmentTime)

	// Stage 3: Compose
	composeStart := time.Now()
	gen, err := r.Compose(ctx, machine, handwritten, out, opts)
	if err != nil {
		return nil, fmt.Errorf("compose: %w", err)
	}
	result.Generator = gen
	result.Stats.ComposeTime = time.Since(composeStart)
	result.Stats.BatchCount = gen.Len()

	logger.Info("composed dataset",
		"batches", gen.Len(),
		"batch_size", opts.BatchSize,
		"duration", result.Stats.ComposeTime)

	return result, nil
}

// LoadMachineWithCacheInfo loads the machine-rendered digit source with
// snapshot caching and returns cache hit info.
func (r *Runner) LoadMachineWithCacheInfo(ctx context.Context, opts Options) (*dataset.Dataset, bool, error) {
	if err := opts.ValidateForLoad(); err != nil {
		return nil, false, err
	}
	r.applyLogger(&opts)

	hash := configHash(struct {
		Source string `json:"source"`
		Path   string `json:"path"`
		Count  int    `json:"count"`
	}{SourceMachine, opts.PrerenderedPath, opts.PrerenderedCount})

	return r.loadSource(ctx, SourceMachine, hash, opts, func() (*dataset.Dataset, error) {
		return dataset.LoadPrerendered(dataset.PrerenderedOptions{
			Path:       opts.PrerenderedPath,
			Resolution: opts.Resolution,
			DigitCount: opts.PrerenderedCount,
			Reader:     opts.Reader,
			Dataset:    opts.DatasetOptions(),
		})
	})
}

// LoadMachine is a convenience wrapper that discards the cache hit info.
func (r *Runner) LoadMachine(ctx context.Context, opts Options) (*dataset.Dataset, error) {
	ds, _, err := r.LoadMachineWithCacheInfo(ctx, opts)
	return ds, err
}

// LoadHandwrittenWithCacheInfo loads the handwritten digit source with
// snapshot caching and returns cache hit info. MNIST digits and curated
// handwritten digits are concatenated when both are configured.
func (r *Runner) LoadHandwrittenWithCacheInfo(ctx context.Context, opts Options) (*dataset.Dataset, bool, error) {
	if err := opts.ValidateForLoad(); err != nil {
		return nil, false, err
	}
	r.applyLogger(&opts)

	hash := configHash(struct {
		Source      string `json:"source"`
		MNIST       bool   `json:"mnist"`
		BaseURL     string `json:"base_url"`
		CuratedPath string `json:"curated_path"`
	}{SourceHandwritten, opts.MNIST, opts.MNISTBaseURL, opts.CuratedPath})

	return r.loadSource(ctx, SourceHandwritten, hash, opts, func() (*dataset.Dataset, error) {
		var parts []*dataset.Dataset
		if opts.MNIST {
			d, err := dataset.LoadClassSeparateMNIST(ctx, r.fetcher(opts), opts.DatasetOptions())
			if err != nil {
				return nil, err
			}
			parts = append(parts, d)
		}
		if opts.CuratedPath != "" {
			d, err := dataset.LoadClassSeparateCurated(dataset.CuratedOptions{
				Path:       opts.CuratedPath,
				Resolution: opts.Resolution,
				Chars:      dataset.CharsFromString("123456789"),
				Reader:     opts.Reader,
				Dataset:    opts.DatasetOptions(),
			})
			if err != nil {
				return nil, err
			}
			parts = append(parts, d)
		}
		if len(parts) == 1 {
			return parts[0], nil
		}
		return dataset.ConcatReleased(parts...)
	})
}

// LoadHandwritten is a convenience wrapper that discards the cache hit info.
func (r *Runner) LoadHandwritten(ctx context.Context, opts Options) (*dataset.Dataset, error) {
	ds, _, err := r.LoadHandwrittenWithCacheInfo(ctx, opts)
	return ds, err
}

// LoadOutWithCacheInfo loads the out-of-vocabulary source with snapshot
// caching and returns cache hit info. The source always contains synthetic
// empty cells; when a curated path is configured its non-digit characters
// are concatenated as well.
func (r *Runner) LoadOutWithCacheInfo(ctx context.Context, opts Options) (*dataset.Dataset, bool, error) {
	if err := opts.ValidateForLoad(); err != nil {
		return nil, false, err
	}
	r.applyLogger(&opts)

	hash := configHash(struct {
		Source      string `json:"source"`
		EmptyCount  int    `json:"empty_count"`
		CuratedPath string `json:"curated_path"`
	}{SourceOut, opts.EmptyCount, opts.CuratedPath})

	return r.loadSource(ctx, SourceOut, hash, opts, func() (*dataset.Dataset, error) {
		empty, err := dataset.LoadEmpty(opts.Resolution, opts.EmptyCount, opts.DatasetOptions())
		if err != nil {
			return nil, err
		}
		if opts.CuratedPath == "" {
			return empty, nil
		}
		curated, err := dataset.LoadCurated(dataset.CuratedOptions{
			Path:       opts.CuratedPath,
			Resolution: opts.Resolution,
			Chars:      nonDigitChars(),
			Reader:     opts.Reader,
			Dataset:    opts.DatasetOptions(),
		})
		if err != nil {
			return nil, err
		}
		return dataset.ConcatReleased(empty, curated)
	})
}

// LoadOut is a convenience wrapper that discards the cache hit info.
func (r *Runner) LoadOut(ctx context.Context, opts Options) (*dataset.Dataset, error) {
	ds, _, err := r.LoadOutWithCacheInfo(ctx, opts)
	return ds, err
}

// LoadValidation loads photographed grid cells as an all-validation
// dataset. Local directory reads are cheap, so no snapshot caching.
func (r *Runner) LoadValidation(ctx context.Context, opts Options) (*dataset.Dataset, error) {
	if err := opts.ValidateForLoad(); err != nil {
		return nil, err
	}
	opts.SetComposeDefaults()
	r.applyLogger(&opts)

	observability.Pipeline().OnLoadStart(ctx, SourceValidation)
	start := time.Now()
	ds, err := dataset.LoadRealValidation(dataset.RealOptions{
		Path:         opts.RealPath,
		Resolution:   opts.OutputResolution,
		LegacyScheme: opts.LegacyScheme,
		Reader:       opts.Reader,
		Dataset:      opts.DatasetOptions(),
	})
	count := 0
	if ds != nil {
		count = len(ds.TestX)
	}
	observability.Pipeline().OnLoadComplete(ctx, SourceValidation, count, time.Since(start), err)
	return ds, err
}

// Augment grows a dataset by queueing the configured transform pipelines
// and applying them over both splits.
func (r *Runner) Augment(ctx context.Context, ds *dataset.Dataset, opts Options) error {
	opts.SetAugmentDefaults()
	r.applyLogger(&opts)

	observability.Pipeline().OnAugmentStart(ctx, SourceMachine, len(opts.Chains))
	start := time.Now()
	for _, chain := range opts.Chains {
		ds.AddTransforms(chain...)
	}
	err := ds.ApplyTransforms(opts.KeepOriginals, true)
	observability.Pipeline().OnAugmentComplete(ctx, SourceMachine, ds.Len(), time.Since(start), err)
	return err
}

// Compose resizes the three sources to the output resolution and wraps
// them in a balanced minibatch generator.
func (r *Runner) Compose(ctx context.Context, machine, handwritten, out *dataset.Dataset, opts Options) (*batch.Balanced, error) {
	if err := opts.ValidateForCompose(); err != nil {
		return nil, err
	}
	r.applyLogger(&opts)

	observability.Pipeline().OnComposeStart(ctx, opts.OutputResolution)
	start := time.Now()
	gen, err := r.compose(machine, handwritten, out, opts)
	batches := 0
	if gen != nil {
		batches = gen.Len()
	}
	observability.Pipeline().OnComposeComplete(ctx, batches, time.Since(start), err)
	return gen, err
}

func (r *Runner) compose(machine, handwritten, out *dataset.Dataset, opts Options) (*batch.Balanced, error) {
	for _, ds := range []*dataset.Dataset{machine, handwritten, out} {
		if err := ds.Resize(opts.OutputResolution); err != nil {
			return nil, err
		}
	}
	return batch.NewBalanced(machine, handwritten, out, opts.BatchOptions())
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

// loadSource wraps a source loader with snapshot caching and hook events.
func (r *Runner) loadSource(ctx context.Context, source, confHash string, opts Options, load func() (*dataset.Dataset, error)) (*dataset.Dataset, bool, error) {
	observability.Pipeline().OnLoadStart(ctx, source)
	start := time.Now()
	ds, hit, err := r.loadCached(ctx, confHash, opts, load)
	count := 0
	if ds != nil {
		count = ds.Len()
	}
	observability.Pipeline().OnLoadComplete(ctx, source, count, time.Since(start), err)
	return ds, hit, err
}

// loadCached restores a source from its snapshot cache entry, or runs the
// loader and caches the result.
func (r *Runner) loadCached(ctx context.Context, confHash string, opts Options, load func() (*dataset.Dataset, error)) (*dataset.Dataset, bool, error) {
	key := r.Keyer.DatasetKey(confHash, opts.DatasetKeyOpts())

	// Try cache first (unless refresh requested)
	if !opts.Refresh {
		if data, hit, err := r.Cache.Get(ctx, key); err == nil && hit {
			ds, err := snapshot.Unmarshal(data, opts.DatasetOptions())
			if err == nil {
				observability.Cache().OnCacheHit(ctx, "dataset")
				return ds, true, nil // Cache hit
			}
			// If deserialization fails, fall through to reload
		}
		observability.Cache().OnCacheMiss(ctx, "dataset")
	}

	ds, err := load()
	if err != nil {
		return nil, false, err
	}

	// Cache the result
	if data, err := snapshot.Marshal(ds); err == nil {
		_ = r.Cache.Set(ctx, key, data, cache.TTLDataset)
		observability.Cache().OnCacheSet(ctx, "dataset", len(data))
	}

	return ds, false, nil // Cache miss
}

// fetcher returns the configured MNIST fetcher, defaulting to an IDX
// fetcher sharing the runner's cache.
func (r *Runner) fetcher(opts Options) dataset.Fetcher {
	if opts.Fetcher != nil {
		return opts.Fetcher
	}
	idx := dataset.NewIDXFetcher(r.Cache)
	idx.BaseURL = opts.MNISTBaseURL
	idx.Keyer = r.Keyer
	idx.Logger = opts.Logger
	return idx
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}

// nonDigitChars returns the curated character set minus the digits, the
// codepoints labeled ClassOut.
func nonDigitChars() []int {
	all := dataset.DefaultCuratedChars()
	chars := make([]int, 0, len(all))
	for _, c := range all {
		if !dataset.IsDigitChar(c) {
			chars = append(chars, c)
		}
	}
	return chars
}

// configHash derives a stable hash of a source's load-relevant settings
// for cache keying.
func configHash(v any) string {
	data, _ := json.Marshal(v)
	return cache.Hash(data)
}
