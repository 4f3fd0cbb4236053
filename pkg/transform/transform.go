// Package transform implements composable single-image transforms for
// dataset augmentation.
//
// A Transform is a pure function of an input image and (for the stochastic
// transforms) the transform's own random stream: it never mutates the input
// and returns a freshly allocated image of the same resolution. Chains of
// transforms form the building blocks of dataset transform pipelines.
//
// # Randomness
//
// Every stochastic transform owns a *rand.Rand seeded at construction, so
// two transforms built with the same seed produce identical parameter draws.
// Apply is deliberately not idempotent: each call draws fresh parameters.
//
// # Families
//
//   - Geometric: RandomPerspective (plus axis-restricted and backwards
//     variants) and LensDistortion.
//   - Photometric/noise: UniformNoise, GaussianNoise, SpeckleNoise,
//     PoissonNoise, SaltPepperNoise, GrainNoise.
//   - Filters: BoxBlur, GaussianBlur, Sharpen, Relief, Edge, UnsharpMask,
//     Dilate, DilateSoft.
//   - Context: JPEGReencode, EmbedInRectangle, EmbedInGrid.
package transform

import (
	"math/rand/v2"

	"github.com/matzehuels/trainset/pkg/pixmap"
)

// Transform converts one image into another of the same resolution.
// Implementations must not mutate the input image.
type Transform interface {
	Apply(img *pixmap.Image) (*pixmap.Image, error)
}

// Chain applies a sequence of transforms in order.
type Chain []Transform

// Apply runs every transform in the chain, feeding each output into the
// next.
func (c Chain) Apply(img *pixmap.Image) (*pixmap.Image, error) {
	out := img
	for _, t := range c {
		var err error
		out, err = t.Apply(out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// NewRand creates the package's canonical random source for a seed.
// The same PCG construction is used everywhere so a seed fully determines a
// transform's draws.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0xdeadbeef))
}

// Func adapts a plain function to the Transform interface.
type Func func(img *pixmap.Image) (*pixmap.Image, error)

// Apply implements Transform.
func (f Func) Apply(img *pixmap.Image) (*pixmap.Image, error) {
	return f(img)
}
