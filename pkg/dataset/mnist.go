package dataset

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/trainset/pkg/cache"
	"github.com/matzehuels/trainset/pkg/errors"
	"github.com/matzehuels/trainset/pkg/pixmap"
)

// MNISTResolution is the native resolution of MNIST digit images.
const MNISTResolution = 28

// DefaultMNISTBaseURL hosts the canonical IDX archives.
const DefaultMNISTBaseURL = "https://storage.googleapis.com/cvdf-datasets/mnist/"

// Fetcher retrieves a raw pool of labeled images for a loader. The MNIST
// loader combines the archive's train and test files into one pool and
// performs its own split.
type Fetcher interface {
	Fetch(ctx context.Context) ([]*pixmap.Image, []int, error)
}

// IDXFetcher downloads the MNIST IDX archives over HTTP, caching the
// compressed payloads.
type IDXFetcher struct {
	// BaseURL is the directory URL holding the four canonical IDX files.
	BaseURL string

	// Client defaults to a client with a 60 second timeout.
	Client *http.Client

	// Cache and Keyer store the downloaded archives. A nil Cache disables
	// caching.
	Cache cache.Cache
	Keyer cache.Keyer

	Logger *log.Logger
}

// NewIDXFetcher creates a fetcher for the canonical MNIST mirror with the
// given payload cache.
func NewIDXFetcher(c cache.Cache) *IDXFetcher {
	return &IDXFetcher{
		BaseURL: DefaultMNISTBaseURL,
		Cache:   c,
		Keyer:   cache.NewDefaultKeyer(),
		Logger:  log.Default(),
	}
}

// idxFiles are the four files of the canonical MNIST distribution, in
// image/label pairs.
var idxFiles = [2][2]string{
	{"train-images-idx3-ubyte.gz", "train-labels-idx1-ubyte.gz"},
	{"t10k-images-idx3-ubyte.gz", "t10k-labels-idx1-ubyte.gz"},
}

// Fetch implements Fetcher. It returns all 70000 samples as one pool.
func (f *IDXFetcher) Fetch(ctx context.Context) ([]*pixmap.Image, []int, error) {
	var images []*pixmap.Image
	var labels []int
	for _, pair := range idxFiles {
		imgRaw, err := f.download(ctx, pair[0])
		if err != nil {
			return nil, nil, err
		}
		lblRaw, err := f.download(ctx, pair[1])
		if err != nil {
			return nil, nil, err
		}
		imgs, err := decodeIDXImages(imgRaw)
		if err != nil {
			return nil, nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "decoding %s", pair[0])
		}
		lbls, err := decodeIDXLabels(lblRaw)
		if err != nil {
			return nil, nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "decoding %s", pair[1])
		}
		if len(imgs) != len(lbls) {
			return nil, nil, errors.New(errors.ErrCodeShapeMismatch,
				"%s holds %d images but %s holds %d labels", pair[0], len(imgs), pair[1], len(lbls))
		}
		images = append(images, imgs...)
		labels = append(labels, lbls...)
	}
	return images, labels, nil
}

// download fetches one archive, consulting the cache first.
func (f *IDXFetcher) download(ctx context.Context, name string) ([]byte, error) {
	fileURL, err := url.JoinPath(f.BaseURL, name)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "bad base URL %q", f.BaseURL)
	}

	var key string
	if f.Cache != nil {
		keyer := f.Keyer
		if keyer == nil {
			keyer = cache.NewDefaultKeyer()
		}
		key = keyer.SourceKey("mnist", cache.SourceKeyOpts{URL: fileURL})
		if data, ok, err := f.Cache.Get(ctx, key); err == nil && ok {
			return data, nil
		}
	}

	if f.Logger != nil {
		f.Logger.Info("downloading archive", "url", fileURL)
	}
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	var data []byte
	err = cache.RetryWithBackoff(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return cache.Retryable(fmt.Errorf("%w: %v", cache.ErrNetwork, err))
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return cache.Retryable(fmt.Errorf("%w: status %d", cache.ErrNetwork, resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w: status %d for %s", cache.ErrNotFound, resp.StatusCode, fileURL)
		}
		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return cache.Retryable(err)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNotFound, err, "fetching %s", fileURL)
	}

	if f.Cache != nil {
		_ = f.Cache.Set(ctx, key, data, cache.TTLSource)
	}
	return data, nil
}

// IDX magic numbers for unsigned byte tensors of rank 1 and 3.
const (
	idxMagicLabels = 0x00000801
	idxMagicImages = 0x00000803
)

// decodeIDXImages parses a gzipped IDX rank-3 tensor into square grayscale
// images.
func decodeIDXImages(raw []byte) ([]*pixmap.Image, error) {
	r, err := gzipReader(raw)
	if err != nil {
		return nil, err
	}

	var header [4]uint32
	for i := range header {
		if err := binary.Read(r, binary.BigEndian, &header[i]); err != nil {
			return nil, err
		}
	}
	if header[0] != idxMagicImages {
		return nil, fmt.Errorf("bad IDX image magic 0x%08x", header[0])
	}
	count, rows, cols := int(header[1]), int(header[2]), int(header[3])
	if rows != cols {
		return nil, fmt.Errorf("non-square IDX images: %dx%d", rows, cols)
	}

	images := make([]*pixmap.Image, count)
	for i := range images {
		img := pixmap.NewGray(rows)
		if _, err := io.ReadFull(r, img.Pix); err != nil {
			return nil, err
		}
		images[i] = img
	}
	return images, nil
}

// decodeIDXLabels parses a gzipped IDX rank-1 tensor of byte labels.
func decodeIDXLabels(raw []byte) ([]int, error) {
	r, err := gzipReader(raw)
	if err != nil {
		return nil, err
	}

	var header [2]uint32
	for i := range header {
		if err := binary.Read(r, binary.BigEndian, &header[i]); err != nil {
			return nil, err
		}
	}
	if header[0] != idxMagicLabels {
		return nil, fmt.Errorf("bad IDX label magic 0x%08x", header[0])
	}

	buf := make([]byte, int(header[1]))
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	labels := make([]int, len(buf))
	for i, b := range buf {
		labels[i] = int(b)
	}
	return labels, nil
}

func gzipReader(raw []byte) (io.Reader, error) {
	return gzip.NewReader(bytes.NewReader(raw))
}

// LoadMNIST fetches the MNIST pool and splits it the canonical way: one
// seventh of the samples (10000 of 70000) become validation data.
func LoadMNIST(ctx context.Context, f Fetcher, opts Options) (*Dataset, error) {
	images, labels, err := f.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	d, err := New(MNISTResolution, opts)
	if err != nil {
		return nil, err
	}
	if err := d.splitAt(images, labels, len(images)-len(images)/7); err != nil {
		return nil, err
	}
	return d, nil
}

// LoadFilteredMNIST loads MNIST without any zero-digit samples. Labels are
// left unchanged, so the dataset holds classes 1..9.
func LoadFilteredMNIST(ctx context.Context, f Fetcher, opts Options) (*Dataset, error) {
	d, err := LoadMNIST(ctx, f, opts)
	if err != nil {
		return nil, err
	}
	d.filterClasses(func(class int) bool { return class > 0 })
	return d, nil
}

// LoadClassSeparateMNIST loads filtered MNIST with digit labels shifted
// into the handwritten class range 11..19.
func LoadClassSeparateMNIST(ctx context.Context, f Fetcher, opts Options) (*Dataset, error) {
	d, err := LoadFilteredMNIST(ctx, f, opts)
	if err != nil {
		return nil, err
	}
	for i := range d.TrainY {
		d.TrainY[i] += HandwrittenOffset
	}
	for i := range d.TestY {
		d.TestY[i] += HandwrittenOffset
	}
	d.rebuildIndex()
	return d, nil
}
