package dataset

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/disintegration/imaging"

	"github.com/matzehuels/trainset/pkg/errors"
	"github.com/matzehuels/trainset/pkg/parallel"
	"github.com/matzehuels/trainset/pkg/pixmap"
)

// ImageReader decodes one image file into a square grayscale pixmap at the
// requested resolution.
type ImageReader interface {
	ReadGray(path string, resolution int) (*pixmap.Image, error)
}

// FileImageReader reads image files from disk, scaling with Lanczos when
// shrinking and Catmull-Rom when enlarging.
type FileImageReader struct{}

// ReadGray implements ImageReader.
func (FileImageReader) ReadGray(path string, resolution int) (*pixmap.Image, error) {
	src, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "reading image %s", path)
	}
	b := src.Bounds()
	if b.Dx() != resolution || b.Dy() != resolution {
		filter := imaging.CatmullRom
		if resolution < b.Dx() {
			filter = imaging.Lanczos
		}
		src = imaging.Resize(src, resolution, resolution, filter)
	}
	return pixmap.FromNRGBA(imaging.Clone(src), pixmap.Gray), nil
}

// DefaultCuratedChars returns the full codepoint range of the curated
// handwritten character set: printable ASCII from '!' to '~', minus the
// backslash, which the source material does not include.
func DefaultCuratedChars() []int {
	chars := make([]int, 0, 93)
	for c := 33; c < 127; c++ {
		if c == '\\' {
			continue
		}
		chars = append(chars, c)
	}
	return chars
}

// CharsFromString converts a selection string into codepoints.
func CharsFromString(s string) []int {
	out := make([]int, 0, len(s))
	for _, r := range s {
		out = append(out, int(r))
	}
	return out
}

// CuratedOptions configures the curated handwritten character loader.
type CuratedOptions struct {
	// Path is the dataset root directory or a .zip/.tar/.tar.gz archive,
	// laid out as one subdirectory per character codepoint.
	Path string

	// Resolution images are scaled to on load. Defaults to 64.
	Resolution int

	// Chars restricts loading to these codepoints. Nil loads the full set.
	Chars []int

	// DigitOffset shifts digit labels; pass HandwrittenOffset to label this
	// source with the handwritten classes 11..19.
	DigitOffset int

	// Reader defaults to FileImageReader.
	Reader ImageReader

	Dataset Options
}

// LoadCurated loads the curated handwritten character dataset. Digit
// characters are labeled by value (plus offset), everything else as
// ClassOut.
func LoadCurated(opts CuratedOptions) (*Dataset, error) {
	if err := errors.ValidateDatasetPath(opts.Path); err != nil {
		return nil, err
	}
	if opts.Resolution == 0 {
		opts.Resolution = 64
	}
	if opts.Chars == nil {
		opts.Chars = DefaultCuratedChars()
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

	type entry struct {
		path  string
		label int
	}
	var files []entry
	for _, char := range opts.Chars {
		dir := filepath.Join(root, strconv.Itoa(char))
		names, err := os.ReadDir(dir)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "character directory %s", dir)
		}
		label := LabelForChar(char, opts.DigitOffset)
		sort.Slice(names, func(i, j int) bool { return names[i].Name() < names[j].Name() })
		for _, n := range names {
			if n.IsDir() {
				continue
			}
			files = append(files, entry{path: filepath.Join(dir, n.Name()), label: label})
		}
	}

	d, err := New(opts.Resolution, opts.Dataset)
	if err != nil {
		return nil, err
	}
	images, err := parallel.MapOrdered(files, d.opts.Workers, func(e entry) (*pixmap.Image, error) {
		return opts.Reader.ReadGray(e.path, opts.Resolution)
	})
	if err != nil {
		return nil, err
	}
	labels := make([]int, len(files))
	for i, e := range files {
		labels[i] = e.label
	}
	if err := d.Split(images, labels); err != nil {
		return nil, err
	}
	return d, nil
}

// LoadClassSeparateCurated is LoadCurated with digit labels shifted into
// the handwritten class range 11..19.
func LoadClassSeparateCurated(opts CuratedOptions) (*Dataset, error) {
	opts.DigitOffset = HandwrittenOffset
	return LoadCurated(opts)
}
