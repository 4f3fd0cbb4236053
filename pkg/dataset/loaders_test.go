package dataset

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/matzehuels/trainset/pkg/cache"
	"github.com/matzehuels/trainset/pkg/pixmap"
)

// stubReader returns blank images without touching the filesystem.
type stubReader struct{}

func (stubReader) ReadGray(path string, resolution int) (*pixmap.Image, error) {
	return pixmap.NewGray(resolution), nil
}

// encodeIDX builds a gzipped IDX image tensor and matching label tensor.
func encodeIDX(t *testing.T, labels []int) ([]byte, []byte) {
	t.Helper()

	var imgBuf bytes.Buffer
	gz := gzip.NewWriter(&imgBuf)
	for _, v := range []uint32{idxMagicImages, uint32(len(labels)), MNISTResolution, MNISTResolution} {
		if err := binary.Write(gz, binary.BigEndian, v); err != nil {
			t.Fatalf("writing IDX header: %v", err)
		}
	}
	pix := make([]byte, MNISTResolution*MNISTResolution)
	for range labels {
		if _, err := gz.Write(pix); err != nil {
			t.Fatalf("writing IDX pixels: %v", err)
		}
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("closing gzip: %v", err)
	}

	var lblBuf bytes.Buffer
	gz = gzip.NewWriter(&lblBuf)
	for _, v := range []uint32{idxMagicLabels, uint32(len(labels))} {
		if err := binary.Write(gz, binary.BigEndian, v); err != nil {
			t.Fatalf("writing IDX header: %v", err)
		}
	}
	for _, l := range labels {
		if _, err := gz.Write([]byte{byte(l)}); err != nil {
			t.Fatalf("writing IDX labels: %v", err)
		}
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("closing gzip: %v", err)
	}
	return imgBuf.Bytes(), lblBuf.Bytes()
}

// mnistServer serves a synthetic MNIST mirror with 60 train and 10 test
// samples, counting requests.
func mnistServer(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()

	trainLabels := make([]int, 60)
	for i := range trainLabels {
		trainLabels[i] = i % 10
	}
	testLabels := make([]int, 10)
	for i := range testLabels {
		testLabels[i] = i
	}
	trainImg, trainLbl := encodeIDX(t, trainLabels)
	testImg, testLbl := encodeIDX(t, testLabels)

	files := map[string][]byte{
		"/train-images-idx3-ubyte.gz": trainImg,
		"/train-labels-idx1-ubyte.gz": trainLbl,
		"/t10k-images-idx3-ubyte.gz":  testImg,
		"/t10k-labels-idx1-ubyte.gz":  testLbl,
	}

	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		requests.Add(1)
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func TestLoadMNIST(t *testing.T) {
	srv, requests := mnistServer(t)

	fileCache, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache failed: %v", err)
	}
	fetcher := NewIDXFetcher(fileCache)
	fetcher.BaseURL = srv.URL

	d, err := LoadMNIST(context.Background(), fetcher, Options{})
	if err != nil {
		t.Fatalf("LoadMNIST failed: %v", err)
	}
	if len(d.TrainX) != 60 || len(d.TestX) != 10 {
		t.Errorf("split = %d/%d, want 60/10", len(d.TrainX), len(d.TestX))
	}
	if d.Resolution != MNISTResolution {
		t.Errorf("resolution = %d, want %d", d.Resolution, MNISTResolution)
	}
	for c := 0; c < 10; c++ {
		if d.ClassCount(c) == 0 {
			t.Errorf("class %d missing from training split", c)
		}
	}

	// A second load hits the payload cache instead of the network.
	before := requests.Load()
	if _, err := LoadMNIST(context.Background(), fetcher, Options{}); err != nil {
		t.Fatalf("second LoadMNIST failed: %v", err)
	}
	if after := requests.Load(); after != before {
		t.Errorf("second load made %d network requests", after-before)
	}
}

func TestLoadFilteredMNIST(t *testing.T) {
	srv, _ := mnistServer(t)
	fetcher := NewIDXFetcher(cache.NewNullCache())
	fetcher.BaseURL = srv.URL

	d, err := LoadFilteredMNIST(context.Background(), fetcher, Options{})
	if err != nil {
		t.Fatalf("LoadFilteredMNIST failed: %v", err)
	}
	for _, y := range append(append([]int{}, d.TrainY...), d.TestY...) {
		if y == 0 {
			t.Fatal("filtered dataset still holds zero digits")
		}
		if y < 1 || y > 9 {
			t.Fatalf("unexpected label %d", y)
		}
	}
}

func TestLoadClassSeparateMNIST(t *testing.T) {
	srv, _ := mnistServer(t)
	fetcher := NewIDXFetcher(cache.NewNullCache())
	fetcher.BaseURL = srv.URL

	d, err := LoadClassSeparateMNIST(context.Background(), fetcher, Options{})
	if err != nil {
		t.Fatalf("LoadClassSeparateMNIST failed: %v", err)
	}
	for _, y := range append(append([]int{}, d.TrainY...), d.TestY...) {
		if y < 11 || y > 19 {
			t.Fatalf("label %d outside handwritten range 11..19", y)
		}
	}
}

func TestLoadCurated(t *testing.T) {
	root := t.TempDir()
	chars := CharsFromString("12a")
	for _, c := range chars {
		dir := filepath.Join(root, strconv.Itoa(c))
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 10; i++ {
			path := filepath.Join(dir, strconv.Itoa(i)+".png")
			if err := os.WriteFile(path, []byte("stub"), 0644); err != nil {
				t.Fatal(err)
			}
		}
	}

	d, err := LoadCurated(CuratedOptions{
		Path:       root,
		Resolution: 16,
		Chars:      chars,
		Reader:     stubReader{},
	})
	if err != nil {
		t.Fatalf("LoadCurated failed: %v", err)
	}
	total := len(d.TrainX) + len(d.TestX)
	if total != 30 {
		t.Errorf("total samples = %d, want 30", total)
	}
	if d.Resolution != 16 {
		t.Errorf("resolution = %d, want 16", d.Resolution)
	}

	seen := map[int]int{}
	for _, y := range append(append([]int{}, d.TrainY...), d.TestY...) {
		seen[y]++
	}
	if seen[1] != 10 || seen[2] != 10 || seen[ClassOut] != 10 {
		t.Errorf("label distribution = %v, want 10 each for 1, 2 and %d", seen, ClassOut)
	}
}

func TestLoadCuratedMissingRoot(t *testing.T) {
	_, err := LoadCurated(CuratedOptions{Path: filepath.Join(t.TempDir(), "absent")})
	if err == nil {
		t.Fatal("expected error for missing dataset root")
	}
}

func TestLoadPrerendered(t *testing.T) {
	root := t.TempDir()

	d, err := LoadPrerendered(PrerenderedOptions{
		Path:       root,
		Resolution: 16,
		DigitCount: 2,
		Reader:     stubReader{},
	})
	if err != nil {
		t.Fatalf("LoadPrerendered failed: %v", err)
	}
	total := len(d.TrainX) + len(d.TestX)
	if total != 18 {
		t.Errorf("total samples = %d, want 18", total)
	}

	seen := map[int]int{}
	for _, y := range append(append([]int{}, d.TrainY...), d.TestY...) {
		seen[y]++
	}
	for c := 1; c <= 9; c++ {
		if seen[c] != 2 {
			t.Errorf("class %d count = %d, want 2", c, seen[c])
		}
	}
}

func writeManifest(t *testing.T, dir string, labels []int) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	raw, err := json.Marshal(map[string][]int{"labels": labels})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "labels.json"), raw, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadReal(t *testing.T) {
	root := t.TempDir()

	valid := make([]int, CellsPerGrid)
	for i := range valid {
		valid[i] = i % NumClasses
	}
	writeManifest(t, filepath.Join(root, "grid_a"), valid)
	// Malformed manifest: wrong label count, must be skipped.
	writeManifest(t, filepath.Join(root, "grid_b"), []int{1, 2, 3})

	d, err := LoadReal(RealOptions{Path: root, Reader: stubReader{}})
	if err != nil {
		t.Fatalf("LoadReal failed: %v", err)
	}
	total := len(d.TrainX) + len(d.TestX)
	if total != CellsPerGrid {
		t.Errorf("total samples = %d, want %d (malformed grid skipped)", total, CellsPerGrid)
	}
	cells := float64(CellsPerGrid)
	wantTest := CellsPerGrid - int(cells*TrainFraction)
	if len(d.TestX) != wantTest {
		t.Errorf("test split = %d samples, want %d", len(d.TestX), wantTest)
	}
}

func TestLoadRealLegacyScheme(t *testing.T) {
	root := t.TempDir()

	labels := make([]int, CellsPerGrid)
	labels[0] = 0  // legacy out
	labels[1] = 10 // legacy empty
	labels[2] = 5
	writeManifest(t, filepath.Join(root, "grid"), labels)

	d, err := LoadReal(RealOptions{Path: root, LegacyScheme: true, Reader: stubReader{}})
	if err != nil {
		t.Fatalf("LoadReal failed: %v", err)
	}
	all := append(append([]int{}, d.TrainY...), d.TestY...)
	seen := map[int]int{}
	for _, y := range all {
		seen[y]++
	}
	// The 79 zero-filled legacy labels map to ClassOut, plus the explicit
	// legacy out at index 0. The legacy empty becomes ClassEmpty.
	if seen[ClassOut] != CellsPerGrid-2 {
		t.Errorf("out count = %d, want %d", seen[ClassOut], CellsPerGrid-2)
	}
	if seen[ClassEmpty] != 1 {
		t.Errorf("empty count = %d, want 1", seen[ClassEmpty])
	}
	if seen[5] != 1 {
		t.Errorf("class 5 count = %d, want 1", seen[5])
	}
}

func TestLoadRealValidation(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "grid"), make([]int, CellsPerGrid))

	d, err := LoadRealValidation(RealOptions{Path: root, Reader: stubReader{}})
	if err != nil {
		t.Fatalf("LoadRealValidation failed: %v", err)
	}
	if len(d.TrainX) != 0 {
		t.Errorf("train split = %d, want 0", len(d.TrainX))
	}
	if len(d.TestX) != CellsPerGrid {
		t.Errorf("test split = %d, want %d", len(d.TestX), CellsPerGrid)
	}
}

func TestIDXDecodeBadMagic(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := binary.Write(gz, binary.BigEndian, uint32(0xdeadbeef)); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := decodeIDXLabels(buf.Bytes()); err == nil {
		t.Error("expected error for bad label magic")
	}
	if _, err := decodeIDXImages(buf.Bytes()); err == nil {
		t.Error("expected error for bad image magic")
	}
}
