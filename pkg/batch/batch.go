// Package batch turns datasets into minibatches of normalized, one-hot
// labeled training data.
package batch

import (
	"math/rand/v2"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/trainset/pkg/dataset"
	"github.com/matzehuels/trainset/pkg/errors"
	"github.com/matzehuels/trainset/pkg/pixmap"
	"github.com/matzehuels/trainset/pkg/transform"
)

// Batch is one minibatch of training data. X holds the images scaled to
// [0, 1], either flattened per sample or in row-major (n, res, res, 1)
// layout; Y holds the one-hot labels in row-major (n, classes) layout.
type Batch struct {
	X          []float32
	Y          []float32
	N          int
	Resolution int
	Classes    int
	Flat       bool
}

// appendSample converts one grayscale image and label into the batch
// buffers.
func (b *Batch) appendSample(img *pixmap.Image, label int) {
	for _, v := range img.Pix {
		b.X = append(b.X, float32(v)/255)
	}
	hot := make([]float32, b.Classes)
	if label >= 0 && label < b.Classes {
		hot[label] = 1
	}
	b.Y = append(b.Y, hot...)
	b.N++
}

// Options configures a generator.
type Options struct {
	// BatchSize defaults to 32.
	BatchSize int

	// Shuffle randomizes sample order at construction and on epoch ends.
	Shuffle bool

	// Flatten switches X from (n, res, res, 1) layout to (n, res*res).
	Flatten bool

	// Classes is the one-hot label space size. Defaults to
	// dataset.NumClasses.
	Classes int

	// Seed drives shuffling.
	Seed uint64

	Logger *log.Logger
}

// ValidateAndSetDefaults checks the options and fills in defaults.
func (o *Options) ValidateAndSetDefaults() error {
	if o.BatchSize < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "batch size must not be negative, got %d", o.BatchSize)
	}
	if o.BatchSize == 0 {
		o.BatchSize = 32
	}
	if o.Classes == 0 {
		o.Classes = dataset.NumClasses
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	return nil
}

// requireGray rejects datasets holding multi-channel images, since batch
// tensors lay samples out as (n, res, res, 1).
func requireGray(datasets ...*dataset.Dataset) error {
	for _, ds := range datasets {
		for _, img := range ds.TrainX {
			if img.Channels != pixmap.Gray {
				return errors.New(errors.ErrCodeInvalidInput,
					"batches need grayscale images, dataset holds %d-channel images", img.Channels)
			}
		}
	}
	return nil
}

// Simple yields minibatches drawn from a single dataset's training split.
// The final partial batch is dropped.
type Simple struct {
	ds      *dataset.Dataset
	opts    Options
	indices []int
	rng     *rand.Rand
}

// NewSimple creates a generator over one dataset.
func NewSimple(ds *dataset.Dataset, opts Options) (*Simple, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	if err := requireGray(ds); err != nil {
		return nil, err
	}
	g := &Simple{
		ds:   ds,
		opts: opts,
		rng:  transform.NewRand(opts.Seed),
	}
	g.OnEpochEnd()
	return g, nil
}

// Len returns the number of full batches per epoch.
func (g *Simple) Len() int {
	return g.ds.Len() / g.opts.BatchSize
}

// Batch generates the index-th minibatch.
func (g *Simple) Batch(index int) (*Batch, error) {
	if index < 0 || index >= g.Len() {
		return nil, errors.New(errors.ErrCodeIndexOutOfRange,
			"batch %d outside %d batches per epoch", index, g.Len())
	}
	b := &Batch{
		Resolution: g.ds.Resolution,
		Classes:    g.opts.Classes,
		Flat:       g.opts.Flatten,
	}
	for _, i := range g.indices[index*g.opts.BatchSize : (index+1)*g.opts.BatchSize] {
		b.appendSample(g.ds.TrainX[i], g.ds.TrainY[i])
	}
	return b, nil
}

// OnEpochEnd resets and optionally reshuffles the sample order.
func (g *Simple) OnEpochEnd() {
	g.indices = sequence(g.ds.Len())
	if g.opts.Shuffle {
		shuffle(g.rng, g.indices)
	}
}

// Balanced yields minibatches mixing three label sources in equal parts:
// machine-printed digits, handwritten digits and out-of-vocabulary
// characters. Each batch takes batch/3 samples from the machine and
// handwritten sources and the remainder from the out source.
//
// An epoch covers the machine dataset twice, so the smaller sources wrap
// around cyclically rather than truncating the epoch.
type Balanced struct {
	machine     *dataset.Dataset
	handwritten *dataset.Dataset
	out         *dataset.Dataset

	opts Options
	rng  *rand.Rand

	machineIdx     []int
	handwrittenIdx []int
	outIdx         []int
}

// NewBalanced creates a generator over the three label sources.
func NewBalanced(machine, handwritten, out *dataset.Dataset, opts Options) (*Balanced, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	if err := requireGray(machine, handwritten, out); err != nil {
		return nil, err
	}
	if opts.BatchSize%3 != 0 {
		opts.Logger.Warn("batch size is not divisible by three, the out class will be over-represented",
			"batch_size", opts.BatchSize)
	}
	g := &Balanced{
		machine:     machine,
		handwritten: handwritten,
		out:         out,
		opts:        opts,
		rng:         transform.NewRand(opts.Seed),
	}
	g.outIdx = sequence(out.Len())
	g.OnEpochEnd()
	return g, nil
}

// Len returns the number of batches per epoch: the machine dataset's
// sample count doubled, divided by the batch size, rounded up.
func (g *Balanced) Len() int {
	return (2*g.machine.Len() + g.opts.BatchSize - 1) / g.opts.BatchSize
}

// Batch generates the index-th minibatch.
func (g *Balanced) Batch(index int) (*Batch, error) {
	if index < 0 || index >= g.Len() {
		return nil, errors.New(errors.ErrCodeIndexOutOfRange,
			"batch %d outside %d batches per epoch", index, g.Len())
	}

	mini := g.opts.BatchSize / 3
	last := g.opts.BatchSize - 2*mini

	b := &Batch{
		Resolution: g.machine.Resolution,
		Classes:    g.opts.Classes,
		Flat:       g.opts.Flatten,
	}
	g.appendWindow(b, g.machine, g.machineIdx, index*mini, mini)
	g.appendWindow(b, g.handwritten, g.handwrittenIdx, index*mini, mini)
	g.appendWindow(b, g.out, g.outIdx, index*last, last)
	return b, nil
}

// appendWindow copies count samples starting at a cyclic offset into the
// batch.
func (g *Balanced) appendWindow(b *Batch, ds *dataset.Dataset, indices []int, start, count int) {
	if len(indices) == 0 {
		return
	}
	for j := 0; j < count; j++ {
		i := indices[(start+j)%len(indices)]
		b.appendSample(ds.TrainX[i], ds.TrainY[i])
	}
}

// OnEpochEnd reshuffles the machine and handwritten sample orders. The out
// source keeps its order, matching its role as filler.
func (g *Balanced) OnEpochEnd() {
	g.machineIdx = sequence(g.machine.Len())
	g.handwrittenIdx = sequence(g.handwritten.Len())
	if g.opts.Shuffle {
		shuffle(g.rng, g.machineIdx)
		shuffle(g.rng, g.handwrittenIdx)
	}
}

func sequence(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func shuffle(rng *rand.Rand, indices []int) {
	rng.Shuffle(len(indices), func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})
}
