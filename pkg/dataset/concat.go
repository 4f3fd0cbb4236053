package dataset

import (
	"github.com/matzehuels/trainset/pkg/errors"
	"github.com/matzehuels/trainset/pkg/pixmap"
)

// Concat merges multiple datasets into one. Every dataset is resized to
// the resolution of the first, and the existing train/validation splits
// are preserved rather than redrawn. Images are deep-copied, so mutating
// a source afterwards never touches the result.
func Concat(datasets ...*Dataset) (*Dataset, error) {
	return concat(false, datasets)
}

// ConcatReleased is Concat with the sources emptied after the copy, so
// their image storage can be reclaimed once the result is the only holder.
func ConcatReleased(datasets ...*Dataset) (*Dataset, error) {
	return concat(true, datasets)
}

func concat(release bool, datasets []*Dataset) (*Dataset, error) {
	if len(datasets) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "need at least one dataset to concatenate")
	}

	res := datasets[0].Resolution
	for _, d := range datasets[1:] {
		if err := d.Resize(res); err != nil {
			return nil, err
		}
	}

	out, err := New(res, datasets[0].opts)
	if err != nil {
		return nil, err
	}

	var trainLen, testLen int
	for _, d := range datasets {
		trainLen += len(d.TrainX)
		testLen += len(d.TestX)
	}
	out.TrainX = make([]*pixmap.Image, 0, trainLen)
	out.TrainY = make([]int, 0, trainLen)
	out.TestX = make([]*pixmap.Image, 0, testLen)
	out.TestY = make([]int, 0, testLen)

	for _, d := range datasets {
		for _, img := range d.TrainX {
			out.TrainX = append(out.TrainX, img.Clone())
		}
		for _, img := range d.TestX {
			out.TestX = append(out.TestX, img.Clone())
		}
		out.TrainY = append(out.TrainY, d.TrainY...)
		out.TestY = append(out.TestY, d.TestY...)

		if release {
			d.TrainX, d.TrainY = nil, nil
			d.TestX, d.TestY = nil, nil
			d.rebuildIndex()
		}
	}
	out.rebuildIndex()
	return out, nil
}
