// Package io provides binary import and export for composed datasets.
//
// # Overview
//
// A snapshot stores a dataset's train and validation splits in a single
// gzipped container so that an expensive composition (network fetches,
// decoding, augmentation) can be cached and restored byte-identically.
// The format is designed for:
//
//   - Caching composed datasets between pipeline runs
//   - Shipping a built dataset to a training host as one file
//   - Round-trip preservation: export, import, and re-export identically
//
// # Format
//
// The container is a gzip stream wrapping a big-endian uint32 header
// length, a JSON header, and the raw pixel payload:
//
//	gzip(
//	  uint32 header length |
//	  {"version":1,"resolution":28,"channels":1,"train_y":[...],"test_y":[...]} |
//	  train pixels | test pixels
//	)
//
// Pixel data is stored row-major, one image after another, train split
// first. Each image occupies resolution*resolution*channels bytes. Labels
// live in the JSON header, so the payload length is fully determined by
// the header and truncated input is always detected.
package io

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"encoding/json"
	"io"
	"os"

	"github.com/matzehuels/trainset/pkg/dataset"
	"github.com/matzehuels/trainset/pkg/errors"
	"github.com/matzehuels/trainset/pkg/pixmap"
)

// snapshotVersion is the current container version. Readers reject
// versions they do not know.
const snapshotVersion = 1

type header struct {
	Version    int   `json:"version"`
	Resolution int   `json:"resolution"`
	Channels   int   `json:"channels"`
	TrainY     []int `json:"train_y"`
	TestY      []int `json:"test_y"`
}

// WriteSnapshot encodes a dataset and writes it to w.
// The output can be re-imported with [ReadSnapshot] for round-trip
// processing. Datasets with mixed channel counts cannot be encoded.
func WriteSnapshot(ds *dataset.Dataset, w io.Writer) error {
	channels := pixmap.Gray
	if len(ds.TrainX) > 0 {
		channels = ds.TrainX[0].Channels
	} else if len(ds.TestX) > 0 {
		channels = ds.TestX[0].Channels
	}

	h := header{
		Version:    snapshotVersion,
		Resolution: ds.Resolution,
		Channels:   channels,
		TrainY:     ds.TrainY,
		TestY:      ds.TestY,
	}
	headerData, err := json.Marshal(h)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "encode snapshot header")
	}

	zw := gzip.NewWriter(w)
	if err := binary.Write(zw, binary.BigEndian, uint32(len(headerData))); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "write snapshot header length")
	}
	if _, err := zw.Write(headerData); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "write snapshot header")
	}
	for _, split := range [][]*pixmap.Image{ds.TrainX, ds.TestX} {
		for _, img := range split {
			if img.Res != ds.Resolution || img.Channels != channels {
				return errors.New(errors.ErrCodeShapeMismatch,
					"image %dx%d/%dch in %dx%d/%dch snapshot",
					img.Res, img.Res, img.Channels, ds.Resolution, ds.Resolution, channels)
			}
			if _, err := zw.Write(img.Pix); err != nil {
				return errors.Wrap(errors.ErrCodeInternal, err, "write pixel data")
			}
		}
	}
	if err := zw.Close(); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "flush snapshot")
	}
	return nil
}

// ReadSnapshot decodes a snapshot from r into a dataset.
//
// The restored dataset keeps the exact train/validation partition of the
// exported one; the shuffle setting in opts only affects later Split calls.
//
// ReadSnapshot returns an error if the stream is not a snapshot, the
// version is unknown, or the pixel payload is shorter than the header
// promises. ReadSnapshot does not close r.
func ReadSnapshot(r io.Reader, opts dataset.Options) (*dataset.Dataset, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "not a snapshot stream")
	}
	defer zr.Close()

	var headerLen uint32
	if err := binary.Read(zr, binary.BigEndian, &headerLen); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "read snapshot header length")
	}
	headerData := make([]byte, headerLen)
	if _, err := io.ReadFull(zr, headerData); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "read snapshot header")
	}
	var h header
	if err := json.Unmarshal(headerData, &h); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode snapshot header")
	}
	if h.Version != snapshotVersion {
		return nil, errors.New(errors.ErrCodeUnsupported, "snapshot version %d", h.Version)
	}

	ds, err := dataset.New(h.Resolution, opts)
	if err != nil {
		return nil, err
	}

	readImages := func(n int) ([]*pixmap.Image, error) {
		images := make([]*pixmap.Image, n)
		for i := range images {
			img := pixmap.New(h.Resolution, h.Channels)
			if _, err := io.ReadFull(zr, img.Pix); err != nil {
				return nil, errors.Wrap(errors.ErrCodeInvalidInput, err,
					"read image %d of %d", i, n)
			}
			images[i] = img
		}
		return images, nil
	}
	trainX, err := readImages(len(h.TrainY))
	if err != nil {
		return nil, err
	}
	testX, err := readImages(len(h.TestY))
	if err != nil {
		return nil, err
	}

	if err := ds.SetSplits(trainX, h.TrainY, testX, h.TestY); err != nil {
		return nil, err
	}
	return ds, nil
}

// Marshal encodes a dataset snapshot to a byte slice, for callers that
// store snapshots in a payload cache.
func Marshal(ds *dataset.Dataset) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteSnapshot(ds, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a dataset snapshot from a byte slice.
func Unmarshal(data []byte, opts dataset.Options) (*dataset.Dataset, error) {
	return ReadSnapshot(bytes.NewReader(data), opts)
}

// Export writes a dataset snapshot to a file at path.
// This is a convenience wrapper around [WriteSnapshot] for file-based output.
func Export(ds *dataset.Dataset, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "create %s", path)
	}
	defer f.Close()
	return WriteSnapshot(ds, f)
}

// Import reads a snapshot file at path and returns the decoded dataset.
func Import(path string, opts dataset.Options) (*dataset.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "open %s", path)
	}
	defer f.Close()
	return ReadSnapshot(f, opts)
}
