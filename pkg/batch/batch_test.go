package batch

import (
	"testing"

	"github.com/matzehuels/trainset/pkg/dataset"
	"github.com/matzehuels/trainset/pkg/errors"
	"github.com/matzehuels/trainset/pkg/pixmap"
)

// fixedDataset builds a dataset whose training split holds n images of a
// single constant value, labeled round-robin over the classes.
func fixedDataset(t *testing.T, n, res int, value uint8, classes ...int) *dataset.Dataset {
	t.Helper()
	d, err := dataset.New(res, dataset.Options{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	// Oversize the pool so the 90/10 split leaves exactly n training
	// samples.
	total := n * 10 / 9
	if n*10%9 != 0 {
		total++
	}
	images := make([]*pixmap.Image, total)
	labels := make([]int, total)
	for i := range images {
		images[i] = pixmap.NewGray(res)
		images[i].Fill(value)
		labels[i] = classes[i%len(classes)]
	}
	if err := d.Split(images, labels); err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if d.Len() != n {
		t.Fatalf("training split = %d, want %d", d.Len(), n)
	}
	return d
}

func TestSimpleGenerator(t *testing.T) {
	d := fixedDataset(t, 100, 8, 51, 1, 2, 3, 4)
	g, err := NewSimple(d, Options{BatchSize: 32, Classes: 9})
	if err != nil {
		t.Fatalf("NewSimple failed: %v", err)
	}

	if g.Len() != 3 {
		t.Errorf("Len() = %d, want 3 (partial batch dropped)", g.Len())
	}

	b, err := g.Batch(0)
	if err != nil {
		t.Fatalf("Batch failed: %v", err)
	}
	if b.N != 32 {
		t.Errorf("batch size = %d, want 32", b.N)
	}
	if len(b.X) != 32*8*8 {
		t.Errorf("len(X) = %d, want %d", len(b.X), 32*8*8)
	}
	if len(b.Y) != 32*9 {
		t.Errorf("len(Y) = %d, want %d", len(b.Y), 32*9)
	}
	if b.X[0] != 51.0/255 {
		t.Errorf("X[0] = %v, want %v", b.X[0], 51.0/255)
	}

	if _, err := g.Batch(3); errors.GetCode(err) != errors.ErrCodeIndexOutOfRange {
		t.Errorf("got code %q, want %q", errors.GetCode(err), errors.ErrCodeIndexOutOfRange)
	}
}

func TestSimpleGeneratorRejectsMultiChannel(t *testing.T) {
	d := fixedDataset(t, 20, 8, 51, 1)
	if err := d.Convert(pixmap.GrayToBGRA); err != nil {
		t.Fatalf("Convert failed: %v", err)
	}

	_, err := NewSimple(d, Options{BatchSize: 4, Classes: 9})
	if errors.GetCode(err) != errors.ErrCodeInvalidInput {
		t.Fatalf("got code %q, want %q", errors.GetCode(err), errors.ErrCodeInvalidInput)
	}
}

func TestBalancedGeneratorRejectsMultiChannel(t *testing.T) {
	machine := fixedDataset(t, 30, 8, 10, 1)
	handwritten := fixedDataset(t, 30, 8, 20, 11)
	out := fixedDataset(t, 30, 8, 30, dataset.ClassOut)
	if err := handwritten.Convert(pixmap.GrayToBGRA); err != nil {
		t.Fatalf("Convert failed: %v", err)
	}

	_, err := NewBalanced(machine, handwritten, out, Options{BatchSize: 12})
	if errors.GetCode(err) != errors.ErrCodeInvalidInput {
		t.Fatalf("got code %q, want %q", errors.GetCode(err), errors.ErrCodeInvalidInput)
	}
}

func TestBalancedGeneratorLen(t *testing.T) {
	machine := fixedDataset(t, 900, 8, 1, 1)
	handwritten := fixedDataset(t, 90, 8, 2, 11)
	out := fixedDataset(t, 45, 8, 3, dataset.ClassOut)

	g, err := NewBalanced(machine, handwritten, out, Options{BatchSize: 12})
	if err != nil {
		t.Fatalf("NewBalanced failed: %v", err)
	}
	// ceil(2*900/12)
	if g.Len() != 150 {
		t.Errorf("Len() = %d, want 150", g.Len())
	}
}

func TestBalancedGeneratorBatchComposition(t *testing.T) {
	// Distinct pixel values identify the source of each sample.
	machine := fixedDataset(t, 90, 8, 10, 1)
	handwritten := fixedDataset(t, 90, 8, 20, 11)
	out := fixedDataset(t, 90, 8, 30, dataset.ClassOut)

	g, err := NewBalanced(machine, handwritten, out, Options{BatchSize: 12})
	if err != nil {
		t.Fatalf("NewBalanced failed: %v", err)
	}

	b, err := g.Batch(0)
	if err != nil {
		t.Fatalf("Batch failed: %v", err)
	}
	if b.N != 12 {
		t.Fatalf("batch size = %d, want 12", b.N)
	}

	perSample := 8 * 8
	counts := map[float32]int{}
	for s := 0; s < b.N; s++ {
		counts[b.X[s*perSample]]++
	}
	if counts[10.0/255] != 4 || counts[20.0/255] != 4 || counts[30.0/255] != 4 {
		t.Errorf("source mix = %v, want 4 samples each", counts)
	}

	// One-hot labels: each row sums to exactly one, machine rows hot at
	// class 1, handwritten at 11, out at ClassOut.
	for s := 0; s < b.N; s++ {
		row := b.Y[s*b.Classes : (s+1)*b.Classes]
		sum := float32(0)
		for _, v := range row {
			sum += v
		}
		if sum != 1 {
			t.Fatalf("row %d one-hot sum = %v", s, sum)
		}
	}
	if b.Y[0*b.Classes+1] != 1 {
		t.Error("machine sample not hot at class 1")
	}
	if b.Y[4*b.Classes+11] != 1 {
		t.Error("handwritten sample not hot at class 11")
	}
	if b.Y[8*b.Classes+dataset.ClassOut] != 1 {
		t.Error("out sample not hot at the out class")
	}
}

func TestBalancedGeneratorWrapsSmallSources(t *testing.T) {
	machine := fixedDataset(t, 90, 8, 10, 1)
	handwritten := fixedDataset(t, 9, 8, 20, 11)
	out := fixedDataset(t, 9, 8, 30, dataset.ClassOut)

	g, err := NewBalanced(machine, handwritten, out, Options{BatchSize: 12})
	if err != nil {
		t.Fatalf("NewBalanced failed: %v", err)
	}

	// Every batch of the epoch stays full even though the small sources
	// are exhausted after a few batches.
	for i := 0; i < g.Len(); i++ {
		b, err := g.Batch(i)
		if err != nil {
			t.Fatalf("Batch(%d) failed: %v", i, err)
		}
		if b.N != 12 {
			t.Fatalf("batch %d size = %d, want 12", i, b.N)
		}
	}
}

func TestBalancedGeneratorUnevenBatchSize(t *testing.T) {
	machine := fixedDataset(t, 90, 8, 10, 1)
	handwritten := fixedDataset(t, 90, 8, 20, 11)
	out := fixedDataset(t, 90, 8, 30, dataset.ClassOut)

	// 3*3+4: the out source fills the remainder.
	g, err := NewBalanced(machine, handwritten, out, Options{BatchSize: 13})
	if err != nil {
		t.Fatalf("NewBalanced failed: %v", err)
	}
	b, err := g.Batch(0)
	if err != nil {
		t.Fatalf("Batch failed: %v", err)
	}
	if b.N != 13 {
		t.Fatalf("batch size = %d, want 13", b.N)
	}

	perSample := 8 * 8
	outSamples := 0
	for s := 0; s < b.N; s++ {
		if b.X[s*perSample] == 30.0/255 {
			outSamples++
		}
	}
	if outSamples != 5 {
		t.Errorf("out samples = %d, want 5", outSamples)
	}
}

func TestBalancedGeneratorEpochShuffleDeterministic(t *testing.T) {
	machine := fixedDataset(t, 30, 8, 10, 1)
	handwritten := fixedDataset(t, 30, 8, 20, 11)
	out := fixedDataset(t, 30, 8, 30, dataset.ClassOut)

	run := func() []float32 {
		g, err := NewBalanced(machine, handwritten, out, Options{BatchSize: 6, Shuffle: true, Seed: 5})
		if err != nil {
			t.Fatalf("NewBalanced failed: %v", err)
		}
		b, err := g.Batch(0)
		if err != nil {
			t.Fatalf("Batch failed: %v", err)
		}
		return b.Y
	}

	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same seed produced different batches")
		}
	}
}
