package dataset

import (
	"testing"

	"github.com/matzehuels/trainset/pkg/errors"
	"github.com/matzehuels/trainset/pkg/pixmap"
	"github.com/matzehuels/trainset/pkg/transform"
)

// pool builds n gray images whose first pixel encodes their pool index,
// labeled round-robin over the given classes.
func pool(n, res int, classes ...int) ([]*pixmap.Image, []int) {
	images := make([]*pixmap.Image, n)
	labels := make([]int, n)
	for i := range images {
		img := pixmap.NewGray(res)
		img.Pix[0] = uint8(i)
		images[i] = img
		labels[i] = classes[i%len(classes)]
	}
	return images, labels
}

func mustDataset(t *testing.T, res int, opts Options) *Dataset {
	t.Helper()
	d, err := New(res, opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return d
}

func TestNewInvalidResolution(t *testing.T) {
	if _, err := New(0, Options{}); errors.GetCode(err) != errors.ErrCodeInvalidResolution {
		t.Fatalf("got code %q, want %q", errors.GetCode(err), errors.ErrCodeInvalidResolution)
	}
}

func TestSplitFractions(t *testing.T) {
	d := mustDataset(t, 8, Options{})
	images, labels := pool(100, 8, 1, 2, 3)

	if err := d.Split(images, labels); err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(d.TrainX) != 90 || len(d.TrainY) != 90 {
		t.Errorf("train split = %d, want 90", len(d.TrainX))
	}
	if len(d.TestX) != 10 || len(d.TestY) != 10 {
		t.Errorf("test split = %d, want 10", len(d.TestX))
	}
}

func TestSplitShapeMismatch(t *testing.T) {
	d := mustDataset(t, 8, Options{})
	images, _ := pool(10, 8, 1)

	err := d.Split(images, []int{1, 2})
	if errors.GetCode(err) != errors.ErrCodeShapeMismatch {
		t.Fatalf("got code %q, want %q", errors.GetCode(err), errors.ErrCodeShapeMismatch)
	}
}

func TestSplitShuffleDeterministic(t *testing.T) {
	split := func() []uint8 {
		d := mustDataset(t, 8, Options{Shuffle: true, Seed: 7})
		images, labels := pool(50, 8, 1, 2)
		if err := d.Split(images, labels); err != nil {
			t.Fatalf("Split failed: %v", err)
		}
		order := make([]uint8, len(d.TrainX))
		for i, img := range d.TrainX {
			order[i] = img.Pix[0]
		}
		return order
	}

	a, b := split(), split()
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same seed produced different splits")
		}
	}
}

func TestGetRandomAndOrdered(t *testing.T) {
	d := mustDataset(t, 8, Options{})
	images, labels := pool(40, 8, 3, 7)
	if err := d.Split(images, labels); err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	img, err := d.GetRandom(3)
	if err != nil {
		t.Fatalf("GetRandom failed: %v", err)
	}
	if img == nil {
		t.Fatal("GetRandom returned nil image")
	}

	if _, err := d.GetRandom(5); errors.GetCode(err) != errors.ErrCodeInvalidClass {
		t.Errorf("unknown class: got code %q, want %q", errors.GetCode(err), errors.ErrCodeInvalidClass)
	}
	if _, err := d.GetOrdered(3, 9999); errors.GetCode(err) != errors.ErrCodeIndexOutOfRange {
		t.Errorf("out of range: got code %q, want %q", errors.GetCode(err), errors.ErrCodeIndexOutOfRange)
	}

	// Ordered access is stable.
	first, err := d.GetOrdered(7, 0)
	if err != nil {
		t.Fatalf("GetOrdered failed: %v", err)
	}
	second, err := d.GetOrdered(7, 0)
	if err != nil {
		t.Fatalf("GetOrdered failed: %v", err)
	}
	if !first.Equal(second) {
		t.Error("repeated GetOrdered returned different images")
	}
}

func TestApplyTransformsGrowth(t *testing.T) {
	invert := transform.Func(func(img *pixmap.Image) (*pixmap.Image, error) {
		out := img.Clone()
		out.Invert()
		return out, nil
	})

	tests := []struct {
		name      string
		keep      bool
		pipelines int
		factor    int
	}{
		{"keep with two pipelines", true, 2, 3},
		{"replace with two pipelines", false, 2, 2},
		{"keep with one pipeline", true, 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := mustDataset(t, 8, Options{})
			images, labels := pool(20, 8, 1, 2)
			if err := d.Split(images, labels); err != nil {
				t.Fatalf("Split failed: %v", err)
			}
			nTrain, nTest := len(d.TrainX), len(d.TestX)

			for i := 0; i < tt.pipelines; i++ {
				d.AddTransforms(invert)
			}
			if err := d.ApplyTransforms(tt.keep, true); err != nil {
				t.Fatalf("ApplyTransforms failed: %v", err)
			}

			if len(d.TrainX) != tt.factor*nTrain {
				t.Errorf("train size = %d, want %d", len(d.TrainX), tt.factor*nTrain)
			}
			if len(d.TestX) != tt.factor*nTest {
				t.Errorf("test size = %d, want %d", len(d.TestX), tt.factor*nTest)
			}
			if len(d.TrainY) != len(d.TrainX) {
				t.Errorf("train labels = %d, want %d", len(d.TrainY), len(d.TrainX))
			}
			// Labels tile in dataset-sized blocks.
			for i, y := range d.TrainY {
				if y != d.TrainY[i%nTrain] {
					t.Fatalf("label %d = %d, not a tiling of the originals", i, y)
				}
			}

			// The queue was cleared, so a second apply is a no-op.
			size := len(d.TrainX)
			if err := d.ApplyTransforms(true, true); err != nil {
				t.Fatalf("second ApplyTransforms failed: %v", err)
			}
			if len(d.TrainX) != size {
				t.Error("cleared transform queue still grew the dataset")
			}
		})
	}
}

func TestApplyTransformsKeepRetainsOriginals(t *testing.T) {
	invert := transform.Func(func(img *pixmap.Image) (*pixmap.Image, error) {
		out := img.Clone()
		out.Invert()
		return out, nil
	})

	d := mustDataset(t, 8, Options{})
	images, labels := pool(10, 8, 1)
	if err := d.Split(images, labels); err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	originals := make([]*pixmap.Image, len(d.TrainX))
	for i, img := range d.TrainX {
		originals[i] = img.Clone()
	}

	d.AddTransforms(invert)
	if err := d.ApplyTransforms(true, true); err != nil {
		t.Fatalf("ApplyTransforms failed: %v", err)
	}

	for i, want := range originals {
		if !d.TrainX[i].Equal(want) {
			t.Fatalf("original %d was not retained", i)
		}
		if d.TrainX[len(originals)+i].Equal(want) {
			t.Fatalf("transformed copy %d equals its original", i)
		}
	}
}

func TestResize(t *testing.T) {
	d := mustDataset(t, 64, Options{})
	images, labels := pool(10, 64, 1)
	if err := d.Split(images, labels); err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	if err := d.Resize(28); err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	if d.Resolution != 28 {
		t.Errorf("resolution = %d, want 28", d.Resolution)
	}
	for _, img := range d.TrainX {
		if img.Res != 28 {
			t.Fatalf("image resolution = %d, want 28", img.Res)
		}
	}

	// Upscale back.
	if err := d.Resize(64); err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	if d.TrainX[0].Res != 64 {
		t.Errorf("image resolution = %d, want 64", d.TrainX[0].Res)
	}
}

func TestResizeSameResolutionIsNoop(t *testing.T) {
	d := mustDataset(t, 28, Options{})
	images, labels := pool(5, 28, 1)
	if err := d.Split(images, labels); err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	before := d.TrainX[0]

	if err := d.Resize(28); err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	if d.TrainX[0] != before {
		t.Error("same-resolution resize should not touch images")
	}
}

func TestConvertGrayToBGRA(t *testing.T) {
	d := mustDataset(t, 8, Options{})
	images, labels := pool(10, 8, 1)
	if err := d.Split(images, labels); err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	if err := d.Convert(pixmap.GrayToBGRA); err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	for _, img := range d.TrainX {
		if img.Channels != pixmap.BGRA {
			t.Fatalf("channels = %d, want %d", img.Channels, pixmap.BGRA)
		}
		// Alpha is the inverted gray value.
		if img.Pix[3] != ^img.Pix[0] {
			t.Fatalf("alpha = %d, want %d", img.Pix[3], ^img.Pix[0])
		}
	}
}

func TestInvert(t *testing.T) {
	d := mustDataset(t, 8, Options{})
	images, labels := pool(4, 8, 1)
	if err := d.Split(images, labels); err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	want := ^d.TrainX[0].Pix[0]

	d.Invert()
	if got := d.TrainX[0].Pix[0]; got != want {
		t.Errorf("got %d, want %d", got, want)
	}
}

func TestConcat(t *testing.T) {
	a := mustDataset(t, 28, Options{})
	imagesA, labelsA := pool(20, 28, 1)
	if err := a.Split(imagesA, labelsA); err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	b := mustDataset(t, 64, Options{})
	imagesB, labelsB := pool(10, 64, 11)
	if err := b.Split(imagesB, labelsB); err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	merged, err := Concat(a, b)
	if err != nil {
		t.Fatalf("Concat failed: %v", err)
	}
	if merged.Resolution != 28 {
		t.Errorf("resolution = %d, want 28 (from first dataset)", merged.Resolution)
	}
	if len(merged.TrainX) != len(a.TrainX)+len(b.TrainX) {
		t.Errorf("train size = %d, want %d", len(merged.TrainX), len(a.TrainX)+len(b.TrainX))
	}
	if merged.ClassCount(1) == 0 || merged.ClassCount(11) == 0 {
		t.Error("merged dataset lost a class")
	}
	for _, img := range merged.TrainX {
		if img.Res != 28 {
			t.Fatalf("image resolution = %d, want 28", img.Res)
		}
	}
}

func TestConcatCopiesStorage(t *testing.T) {
	a := mustDataset(t, 8, Options{})
	imagesA, labelsA := pool(10, 8, 1)
	if err := a.Split(imagesA, labelsA); err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	b := mustDataset(t, 8, Options{})
	imagesB, labelsB := pool(10, 8, 11)
	if err := b.Split(imagesB, labelsB); err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	merged, err := Concat(a, b)
	if err != nil {
		t.Fatalf("Concat failed: %v", err)
	}

	want := merged.TrainX[0].Pix[0]
	a.Invert()
	if got := merged.TrainX[0].Pix[0]; got != want {
		t.Errorf("pixel = %d after source mutation, want %d", got, want)
	}
}

func TestConcatReleased(t *testing.T) {
	a := mustDataset(t, 8, Options{})
	imagesA, labelsA := pool(10, 8, 1)
	if err := a.Split(imagesA, labelsA); err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	merged, err := ConcatReleased(a)
	if err != nil {
		t.Fatalf("ConcatReleased failed: %v", err)
	}
	if a.Len() != 0 {
		t.Errorf("source length = %d after release, want 0", a.Len())
	}
	if merged.Len() != 9 {
		t.Errorf("merged length = %d, want 9", merged.Len())
	}
}

func TestConcatEmptyInput(t *testing.T) {
	if _, err := Concat(); errors.GetCode(err) != errors.ErrCodeInvalidInput {
		t.Fatalf("got code %q, want %q", errors.GetCode(err), errors.ErrCodeInvalidInput)
	}
}

func TestLoadEmpty(t *testing.T) {
	d, err := LoadEmpty(28, 1000, Options{})
	if err != nil {
		t.Fatalf("LoadEmpty failed: %v", err)
	}
	if len(d.TrainX) != 900 || len(d.TestX) != 100 {
		t.Errorf("split = %d/%d, want 900/100", len(d.TrainX), len(d.TestX))
	}
	for _, y := range d.TrainY {
		if y != ClassEmpty {
			t.Fatalf("label = %d, want %d", y, ClassEmpty)
		}
	}
	for _, v := range d.TrainX[0].Pix {
		if v != 0 {
			t.Fatal("empty dataset images must be black")
		}
	}
}

func TestRemapLegacy(t *testing.T) {
	labels := []int{0, 10, 5, 15, 0}
	RemapLegacy(labels)
	want := []int{10, 0, 5, 15, 10}
	for i := range labels {
		if labels[i] != want[i] {
			t.Fatalf("labels = %v, want %v", labels, want)
		}
	}
}

func TestLabelForChar(t *testing.T) {
	tests := []struct {
		codepoint int
		offset    int
		want      int
	}{
		{'1', 0, 1},
		{'9', 0, 9},
		{'5', HandwrittenOffset, 15},
		{'0', 0, ClassOut},
		{'a', 0, ClassOut},
		{'!', HandwrittenOffset, ClassOut},
	}
	for _, tt := range tests {
		if got := LabelForChar(tt.codepoint, tt.offset); got != tt.want {
			t.Errorf("LabelForChar(%q, %d) = %d, want %d", rune(tt.codepoint), tt.offset, got, tt.want)
		}
	}
}
