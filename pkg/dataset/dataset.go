// Package dataset assembles labeled character image collections for
// classifier training.
//
// A Dataset holds square grayscale or BGRA images with integer class
// labels, split into a training and a validation part. Loaders construct
// datasets from different sources (MNIST, curated handwritten characters,
// pre-rendered glyphs, photographed cells) and bulk operations mutate all
// images at once: resizing, colorspace conversion, alpha induction,
// inversion and transform pipelines.
package dataset

import (
	"math/rand/v2"
	"runtime"

	"github.com/charmbracelet/log"
	"github.com/disintegration/imaging"

	"github.com/matzehuels/trainset/pkg/errors"
	"github.com/matzehuels/trainset/pkg/parallel"
	"github.com/matzehuels/trainset/pkg/pixmap"
	"github.com/matzehuels/trainset/pkg/transform"
)

// TrainFraction is the share of samples assigned to the training split.
const TrainFraction = 0.9

// Options configures dataset construction.
type Options struct {
	// Shuffle randomizes the sample order before splitting.
	Shuffle bool

	// FastResize trades interpolation quality for speed in Resize.
	FastResize bool

	// Seed drives sample shuffling and GetRandom draws.
	Seed uint64

	// Workers bounds the goroutines used by bulk operations. Zero means one
	// per CPU.
	Workers int

	// Logger receives progress and warning messages. Defaults to the
	// standard logger.
	Logger *log.Logger
}

// DefaultOptions returns the options used by the loaders unless the caller
// overrides them.
func DefaultOptions() Options {
	return Options{Shuffle: true}
}

// ValidateAndSetDefaults checks the options and fills in defaults for
// unset fields.
func (o *Options) ValidateAndSetDefaults() error {
	if o.Workers < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "workers must not be negative, got %d", o.Workers)
	}
	if o.Workers == 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	return nil
}

// Dataset is a labeled collection of square images with a train/validation
// split and per-class sample indices.
type Dataset struct {
	// Resolution is the width and height of every image in the dataset.
	Resolution int

	TrainX []*pixmap.Image
	TrainY []int
	TestX  []*pixmap.Image
	TestY  []int

	trainByClass map[int][]int
	testByClass  map[int][]int

	transforms []transform.Chain

	opts Options
	rng  *rand.Rand
}

// New creates an empty dataset at the given resolution.
func New(resolution int, opts Options) (*Dataset, error) {
	if err := errors.ValidateResolution(resolution); err != nil {
		return nil, err
	}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	return &Dataset{
		Resolution:   resolution,
		trainByClass: map[int][]int{},
		testByClass:  map[int][]int{},
		opts:         opts,
		rng:          transform.NewRand(opts.Seed),
	}, nil
}

// Len returns the number of training samples.
func (d *Dataset) Len() int {
	return len(d.TrainX)
}

// Get returns the i-th training image.
func (d *Dataset) Get(i int) (*pixmap.Image, error) {
	if i < 0 || i >= len(d.TrainX) {
		return nil, errors.New(errors.ErrCodeIndexOutOfRange,
			"index %d outside dataset of %d samples", i, len(d.TrainX))
	}
	return d.TrainX[i], nil
}

// Split assigns images and labels to the train and validation parts. The
// first 90% of samples (after optional shuffling) become training data and
// the remainder validation data.
func (d *Dataset) Split(images []*pixmap.Image, labels []int) error {
	return d.splitAt(images, labels, int(float64(len(images))*TrainFraction))
}

// splitAt is Split with an explicit training sample count, for loaders
// with a canonical split size.
func (d *Dataset) splitAt(images []*pixmap.Image, labels []int, trainCount int) error {
	if len(images) != len(labels) {
		return errors.New(errors.ErrCodeShapeMismatch,
			"got %d images but %d labels", len(images), len(labels))
	}
	indices := make([]int, len(images))
	for i := range indices {
		indices[i] = i
	}
	if d.opts.Shuffle {
		d.rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	d.TrainX = make([]*pixmap.Image, 0, trainCount)
	d.TrainY = make([]int, 0, trainCount)
	d.TestX = make([]*pixmap.Image, 0, len(images)-trainCount)
	d.TestY = make([]int, 0, len(images)-trainCount)
	for _, idx := range indices[:trainCount] {
		d.TrainX = append(d.TrainX, images[idx])
		d.TrainY = append(d.TrainY, labels[idx])
	}
	for _, idx := range indices[trainCount:] {
		d.TestX = append(d.TestX, images[idx])
		d.TestY = append(d.TestY, labels[idx])
	}
	d.rebuildIndex()
	return nil
}

// SetSplits replaces both splits with already-partitioned data and rebuilds
// the class index. Unlike Split it performs no shuffling, so loaders and
// deserializers can restore an exact partition.
func (d *Dataset) SetSplits(trainX []*pixmap.Image, trainY []int, testX []*pixmap.Image, testY []int) error {
	if len(trainX) != len(trainY) || len(testX) != len(testY) {
		return errors.New(errors.ErrCodeShapeMismatch,
			"got %d/%d train and %d/%d test images/labels",
			len(trainX), len(trainY), len(testX), len(testY))
	}
	d.TrainX, d.TrainY = trainX, trainY
	d.TestX, d.TestY = testX, testY
	d.rebuildIndex()
	return nil
}

// filterClasses drops every sample from both splits whose class fails the
// predicate.
func (d *Dataset) filterClasses(keep func(class int) bool) {
	trainX, trainY := d.TrainX[:0], d.TrainY[:0]
	for i, y := range d.TrainY {
		if keep(y) {
			trainX = append(trainX, d.TrainX[i])
			trainY = append(trainY, y)
		}
	}
	d.TrainX, d.TrainY = trainX, trainY

	testX, testY := d.TestX[:0], d.TestY[:0]
	for i, y := range d.TestY {
		if keep(y) {
			testX = append(testX, d.TestX[i])
			testY = append(testY, y)
		}
	}
	d.TestX, d.TestY = testX, testY
	d.rebuildIndex()
}

// rebuildIndex recomputes the per-class sample indices from the current
// labels.
func (d *Dataset) rebuildIndex() {
	d.trainByClass = map[int][]int{}
	for i, y := range d.TrainY {
		d.trainByClass[y] = append(d.trainByClass[y], i)
	}
	d.testByClass = map[int][]int{}
	for i, y := range d.TestY {
		d.testByClass[y] = append(d.testByClass[y], i)
	}
}

// Classes returns the class labels present in the training split.
func (d *Dataset) Classes() []int {
	out := make([]int, 0, len(d.trainByClass))
	for c := range d.trainByClass {
		out = append(out, c)
	}
	return out
}

// ClassCount returns the number of training samples labeled with the given
// class.
func (d *Dataset) ClassCount(class int) int {
	return len(d.trainByClass[class])
}

// GetRandom returns a random training image of the given class.
func (d *Dataset) GetRandom(class int) (*pixmap.Image, error) {
	indices := d.trainByClass[class]
	if len(indices) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidClass,
			"dataset holds no samples of class %d", class)
	}
	return d.TrainX[indices[d.rng.IntN(len(indices))]], nil
}

// GetOrdered returns the index-th training image of the given class, in
// stable order.
func (d *Dataset) GetOrdered(class, index int) (*pixmap.Image, error) {
	indices := d.trainByClass[class]
	if len(indices) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidClass,
			"dataset holds no samples of class %d", class)
	}
	if index < 0 || index >= len(indices) {
		return nil, errors.New(errors.ErrCodeIndexOutOfRange,
			"index %d outside %d samples of class %d", index, len(indices), class)
	}
	return d.TrainX[indices[index]], nil
}

// AddTransforms queues a sequence of transforms to be applied as one
// pipeline by the next ApplyTransforms call. Each call adds one pipeline;
// the transforms within a call run in order on each image.
func (d *Dataset) AddTransforms(transforms ...transform.Transform) {
	d.transforms = append(d.transforms, transform.Chain(transforms))
}

// ApplyTransforms runs every queued pipeline over both splits. Each
// pipeline contributes one transformed copy of the full dataset, so with k
// pipelines the dataset grows to k times its size, plus the originals when
// keep is true. Labels are tiled to match. When clear is true the queued
// pipelines are dropped afterwards.
func (d *Dataset) ApplyTransforms(keep, clear bool) error {
	if len(d.transforms) == 0 {
		return nil
	}
	d.opts.Logger.Info("applying transform pipelines",
		"pipelines", len(d.transforms), "train", len(d.TrainX), "test", len(d.TestX))

	factor := len(d.transforms)
	if keep {
		factor++
	}

	newTrainX := make([]*pixmap.Image, 0, factor*len(d.TrainX))
	newTestX := make([]*pixmap.Image, 0, factor*len(d.TestX))
	if keep {
		newTrainX = append(newTrainX, d.TrainX...)
		newTestX = append(newTestX, d.TestX...)
	}
	for _, chain := range d.transforms {
		trainOut, err := parallel.MapOrdered(d.TrainX, d.opts.Workers, chain.Apply)
		if err != nil {
			return err
		}
		testOut, err := parallel.MapOrdered(d.TestX, d.opts.Workers, chain.Apply)
		if err != nil {
			return err
		}
		newTrainX = append(newTrainX, trainOut...)
		newTestX = append(newTestX, testOut...)
	}

	d.TrainX = newTrainX
	d.TestX = newTestX
	d.TrainY = tile(d.TrainY, factor)
	d.TestY = tile(d.TestY, factor)
	d.rebuildIndex()

	if clear {
		d.transforms = nil
	}
	return nil
}

// tile repeats a label slice n times.
func tile(labels []int, n int) []int {
	out := make([]int, 0, n*len(labels))
	for i := 0; i < n; i++ {
		out = append(out, labels...)
	}
	return out
}

// Resize scales every image in both splits to the given resolution.
// Downscaling uses Lanczos and upscaling Catmull-Rom; with FastResize both
// drop to cheaper filters. Resizing to the current resolution is a no-op.
func (d *Dataset) Resize(resolution int) error {
	if err := errors.ValidateResolution(resolution); err != nil {
		return err
	}
	if resolution == d.Resolution {
		return nil
	}

	var filter imaging.ResampleFilter
	switch {
	case resolution < d.Resolution && d.opts.FastResize:
		filter = imaging.NearestNeighbor
	case resolution < d.Resolution:
		filter = imaging.Lanczos
	case d.opts.FastResize:
		filter = imaging.Box
	default:
		filter = imaging.CatmullRom
	}

	resize := func(img *pixmap.Image) (*pixmap.Image, error) {
		scaled := imaging.Resize(img.ToNRGBA(), resolution, resolution, filter)
		return pixmap.FromNRGBA(scaled, img.Channels), nil
	}
	if err := d.mapImages(resize); err != nil {
		return err
	}
	d.Resolution = resolution
	return nil
}

// Convert changes the colorspace of every image in both splits.
func (d *Dataset) Convert(mode pixmap.ColorMode) error {
	return d.mapImages(func(img *pixmap.Image) (*pixmap.Image, error) {
		return img.Convert(mode)
	})
}

// InduceAlpha recomputes the alpha channel of every image in both splits.
// All images must have four channels.
func (d *Dataset) InduceAlpha(opts pixmap.AlphaOptions) error {
	return d.mapImages(func(img *pixmap.Image) (*pixmap.Image, error) {
		out := img.Clone()
		if err := out.InduceAlpha(opts); err != nil {
			return nil, err
		}
		return out, nil
	})
}

// Invert flips every sample of every image bitwise.
func (d *Dataset) Invert() {
	// Infallible, so skip the parallel error plumbing.
	for _, img := range d.TrainX {
		img.Invert()
	}
	for _, img := range d.TestX {
		img.Invert()
	}
}

// mapImages replaces both splits with fn applied to each image in
// parallel.
func (d *Dataset) mapImages(fn func(*pixmap.Image) (*pixmap.Image, error)) error {
	trainOut, err := parallel.MapOrdered(d.TrainX, d.opts.Workers, fn)
	if err != nil {
		return err
	}
	testOut, err := parallel.MapOrdered(d.TestX, d.opts.Workers, fn)
	if err != nil {
		return err
	}
	d.TrainX = trainOut
	d.TestX = testOut
	return nil
}

// Train returns the training images and labels.
func (d *Dataset) Train() ([]*pixmap.Image, []int) {
	return d.TrainX, d.TrainY
}

// Test returns the validation images and labels.
func (d *Dataset) Test() ([]*pixmap.Image, []int) {
	return d.TestX, d.TestY
}
