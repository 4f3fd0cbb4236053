// Package parallel provides an ordered worker-pool map for bulk per-image
// operations.
//
// Resizing, colorspace conversion and transform application are
// embarrassingly parallel across images: each worker receives one input and
// produces one output, with no shared mutable state. Results are written
// into a preallocated slice at the input's index, so the output order always
// matches the input order regardless of scheduling.
package parallel

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// MapOrdered applies fn to every item using up to workers goroutines and
// returns the results in input order. A workers value <= 0 uses
// runtime.NumCPU(). The first error cancels outstanding work and is
// returned; the partial result slice is discarded.
func MapOrdered[T, R any](items []T, workers int, fn func(T) (R, error)) ([]R, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	out := make([]R, len(items))
	var g errgroup.Group
	g.SetLimit(workers)

	for i, item := range items {
		g.Go(func() error {
			r, err := fn(item)
			if err != nil {
				return err
			}
			out[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
