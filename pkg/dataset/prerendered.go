package dataset

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/matzehuels/trainset/pkg/errors"
	"github.com/matzehuels/trainset/pkg/parallel"
	"github.com/matzehuels/trainset/pkg/pixmap"
)

// PrerenderedOptions configures the pre-rendered digit loader.
type PrerenderedOptions struct {
	// Path is the digit directory or a .zip archive holding files 0.png
	// through (9*DigitCount-1).png.
	Path string

	// Resolution images are scaled to on load. Defaults to 128.
	Resolution int

	// DigitCount is the number of renderings per digit. Defaults to 915.
	DigitCount int

	// Reader defaults to FileImageReader.
	Reader ImageReader

	Dataset Options
}

// LoadPrerendered loads machine-rendered digit images. The files are laid
// out in digit-major order: the first DigitCount files are ones, the next
// DigitCount twos, and so on through nine.
func LoadPrerendered(opts PrerenderedOptions) (*Dataset, error) {
	if err := errors.ValidateDatasetPath(opts.Path); err != nil {
		return nil, err
	}
	if opts.Resolution == 0 {
		opts.Resolution = 128
	}
	if opts.DigitCount == 0 {
		opts.DigitCount = 915
	}
	if opts.Reader == nil {
		opts.Reader = FileImageReader{}
	}

	root := opts.Path
	if isArchive(root) {
		var err error
		if root, err = extractArchive(root); err != nil {
			return nil, err
		}
	}
	if _, err := os.Stat(root); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "dataset root %s", root)
	}

	d, err := New(opts.Resolution, opts.Dataset)
	if err != nil {
		return nil, err
	}

	total := 9 * opts.DigitCount
	indices := make([]int, total)
	for i := range indices {
		indices[i] = i
	}
	images, err := parallel.MapOrdered(indices, d.opts.Workers, func(i int) (*pixmap.Image, error) {
		return opts.Reader.ReadGray(filepath.Join(root, fmt.Sprintf("%d.png", i)), opts.Resolution)
	})
	if err != nil {
		return nil, err
	}
	labels := make([]int, total)
	for i := range labels {
		labels[i] = 1 + i/opts.DigitCount
	}
	if err := d.Split(images, labels); err != nil {
		return nil, err
	}
	return d, nil
}
