package dataset

import (
	"github.com/matzehuels/trainset/pkg/pixmap"
)

// LoadEmpty creates a dataset of uniformly black images labeled
// ClassEmpty. The split is deterministic since the samples are
// indistinguishable anyway.
func LoadEmpty(resolution, size int, opts Options) (*Dataset, error) {
	opts.Shuffle = false
	d, err := New(resolution, opts)
	if err != nil {
		return nil, err
	}

	images := make([]*pixmap.Image, size)
	labels := make([]int, size)
	for i := range images {
		images[i] = pixmap.NewGray(resolution)
		labels[i] = ClassEmpty
	}
	if err := d.Split(images, labels); err != nil {
		return nil, err
	}
	return d, nil
}
