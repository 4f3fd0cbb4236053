package pipeline

import (
	"github.com/matzehuels/trainset/pkg/transform"
)

// augmentShifts are the corner-displacement strengths of the default
// training augmentation, from gentle to aggressive.
var augmentShifts = []float64{0.2, 0.25, 1.0 / 3}

// DefaultAugmentations returns the standard training augmentation: six
// random perspective warps of increasing strength, three displacing all
// four corners freely and three restricted to the vertical axis. Applied
// without keeping originals this grows a dataset sixfold.
func DefaultAugmentations(seed uint64) []transform.Chain {
	chains := make([]transform.Chain, 0, 2*len(augmentShifts))
	for i, shift := range augmentShifts {
		t := transform.NewRandomPerspective(seed + uint64(i))
		t.MaxShift = shift
		chains = append(chains, transform.Chain{t})
	}
	for i, shift := range augmentShifts {
		t := transform.NewRandomPerspectiveY(seed + uint64(len(augmentShifts)+i))
		t.MaxShift = shift
		chains = append(chains, transform.Chain{t})
	}
	return chains
}

// ValidationAugmentations returns the single default-strength warp used
// when building a small held-out evaluation set.
func ValidationAugmentations(seed uint64) []transform.Chain {
	return []transform.Chain{{transform.NewRandomPerspective(seed)}}
}
