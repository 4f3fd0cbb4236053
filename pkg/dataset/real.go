package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/matzehuels/trainset/pkg/errors"
	"github.com/matzehuels/trainset/pkg/pixmap"
)

// CellsPerGrid is the number of cell images recorded per photographed
// grid: a 9x9 puzzle yields 81 cells.
const CellsPerGrid = 81

// RealOptions configures the photographed-cell loader.
type RealOptions struct {
	// Path is the base directory. Each subdirectory holds one photographed
	// grid: a labels.json manifest and CellsPerGrid box_<i>.png images.
	Path string

	// Resolution images are scaled to on load. Defaults to 28.
	Resolution int

	// LegacyScheme interprets the manifests with the old class assignment,
	// where 0 meant "out" and 10 meant "empty".
	LegacyScheme bool

	// Reader defaults to FileImageReader.
	Reader ImageReader

	Dataset Options
}

// realManifest is the labels.json schema.
type realManifest struct {
	Labels []int `json:"labels"`
}

// LoadReal loads photographed cell images with their manual labels.
// Subdirectories whose manifest does not hold exactly CellsPerGrid labels
// are skipped with a warning; a manifest without its images is an error.
func LoadReal(opts RealOptions) (*Dataset, error) {
	d, images, labels, err := loadRealPool(opts)
	if err != nil {
		return nil, err
	}
	if err := d.Split(images, labels); err != nil {
		return nil, err
	}
	return d, nil
}

// LoadRealValidation is LoadReal with every sample assigned to the
// validation split, for held-out evaluation sets.
func LoadRealValidation(opts RealOptions) (*Dataset, error) {
	d, images, labels, err := loadRealPool(opts)
	if err != nil {
		return nil, err
	}
	if err := d.splitAt(images, labels, 0); err != nil {
		return nil, err
	}
	return d, nil
}

func loadRealPool(opts RealOptions) (*Dataset, []*pixmap.Image, []int, error) {
	if err := errors.ValidateDatasetPath(opts.Path); err != nil {
		return nil, nil, nil, err
	}
	if opts.Resolution == 0 {
		opts.Resolution = 28
	}
	if opts.Reader == nil {
		opts.Reader = FileImageReader{}
	}

	d, err := New(opts.Resolution, opts.Dataset)
	if err != nil {
		return nil, nil, nil, err
	}

	entries, err := os.ReadDir(opts.Path)
	if err != nil {
		return nil, nil, nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "dataset root %s", opts.Path)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var images []*pixmap.Image
	var labels []int
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(opts.Path, entry.Name())
		manifestPath := filepath.Join(dir, "labels.json")
		raw, err := os.ReadFile(manifestPath)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, nil, nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "manifest %s", manifestPath)
		}
		var manifest realManifest
		if err := json.Unmarshal(raw, &manifest); err != nil {
			return nil, nil, nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "manifest %s", manifestPath)
		}
		if len(manifest.Labels) != CellsPerGrid {
			d.opts.Logger.Warn("skipping grid with malformed manifest",
				"manifest", manifestPath, "labels", len(manifest.Labels), "want", CellsPerGrid)
			continue
		}

		for i := 0; i < CellsPerGrid; i++ {
			imgPath := filepath.Join(dir, fmt.Sprintf("box_%d.png", i))
			img, err := opts.Reader.ReadGray(imgPath, opts.Resolution)
			if err != nil {
				return nil, nil, nil, err
			}
			images = append(images, img)
		}
		labels = append(labels, manifest.Labels...)
	}

	if opts.LegacyScheme {
		RemapLegacy(labels)
	}
	return d, images, labels, nil
}
