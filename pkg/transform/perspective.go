package transform

import (
	"math"
	"math/rand/v2"

	"github.com/matzehuels/trainset/pkg/pixmap"
)

// Axis restricts which corner displacements a perspective draw may use.
type Axis int

const (
	// AxisBoth displaces corners along both axes.
	AxisBoth Axis = iota
	// AxisX displaces corners along the x axis only (left/right tilt).
	AxisX
	// AxisY displaces corners along the y axis only (forward/back tilt).
	AxisY
)

// ReplicateBorder as Background selects edge replication instead of a
// constant fill.
const ReplicateBorder = -1

// RandomPerspective warps images through a random homography, mapping the
// image's bounding box onto a quadrilateral whose corners are displaced
// inward by independent uniform draws.
//
// Each of the four corners draws one offset per active axis in
// [0, floor(dim*MaxShift)]. MaxShift values of 0.5 or above can let
// opposite corners cross; callers are expected to stay below that.
type RandomPerspective struct {
	// MaxShift is the maximum inward corner displacement as a fraction of
	// the image dimension.
	MaxShift float64

	// Background is the border fill value, or ReplicateBorder for edge
	// replication.
	Background int

	// Axis restricts displacement to one axis.
	Axis Axis

	// Backwards solves the homography in the inverse direction, mapping the
	// narrowed space back onto the original.
	Backwards bool

	rng *rand.Rand
}

// NewRandomPerspective creates a perspective transform with the default
// maximum shift of 0.25 and a black constant border.
func NewRandomPerspective(seed uint64) *RandomPerspective {
	return &RandomPerspective{MaxShift: 0.25, Background: 0, rng: NewRand(seed)}
}

// NewRandomPerspectiveX creates an x-axis-restricted perspective transform.
func NewRandomPerspectiveX(seed uint64) *RandomPerspective {
	t := NewRandomPerspective(seed)
	t.Axis = AxisX
	return t
}

// NewRandomPerspectiveY creates a y-axis-restricted perspective transform.
func NewRandomPerspectiveY(seed uint64) *RandomPerspective {
	t := NewRandomPerspective(seed)
	t.Axis = AxisY
	return t
}

// NewRandomPerspectiveBackwards creates a perspective transform whose
// homography is applied in the inverse warp direction.
func NewRandomPerspectiveBackwards(seed uint64) *RandomPerspective {
	t := NewRandomPerspective(seed)
	t.Backwards = true
	return t
}

// Apply implements Transform.
func (t *RandomPerspective) Apply(img *pixmap.Image) (*pixmap.Image, error) {
	h, err := t.Matrix(img.Res)
	if err != nil {
		return nil, err
	}
	border, fill := t.border()
	if t.Backwards {
		return h.WarpInverse(img, border, fill), nil
	}
	return h.Warp(img, border, fill)
}

// Matrix draws fresh corner displacements and solves the resulting
// homography for an image of the given resolution.
func (t *RandomPerspective) Matrix(res int) (Homography, error) {
	dim := float64(res - 1)
	xs := t.displacements(dim, t.Axis != AxisY)
	ys := t.displacements(dim, t.Axis != AxisX)

	src := []Point{{0, 0}, {dim, 0}, {dim, dim}, {0, dim}}
	dst := []Point{
		{xs[0], ys[0]},
		{dim - xs[1], ys[1]},
		{dim - xs[2], dim - ys[2]},
		{xs[3], dim - ys[3]},
	}
	return SolveHomography(src, dst)
}

// displacements returns four inward corner offsets, or zeros when the axis
// is inactive.
func (t *RandomPerspective) displacements(dim float64, active bool) [4]float64 {
	var d [4]float64
	if !active {
		return d
	}
	bound := int(math.Floor(dim*t.MaxShift)) + 1
	for i := range d {
		d[i] = float64(t.rng.IntN(bound))
	}
	return d
}

func (t *RandomPerspective) border() (BorderMode, uint8) {
	if t.Background == ReplicateBorder {
		return BorderReplicate, 0
	}
	return BorderConstant, uint8(t.Background)
}

// LensDistortion simulates a pinhole camera's lens distortion.
//
// The distortion model uses two radial (K1, K2) and two tangential (P1, P2)
// coefficients; all-zero coefficients make the transform a no-op. The
// principal point defaults to the image center.
type LensDistortion struct {
	// FocalX and FocalY are the simulated focal lengths in pixels.
	FocalX, FocalY float64

	// K1, K2 are radial distortion coefficients.
	K1, K2 float64

	// P1, P2 are tangential distortion coefficients.
	P1, P2 float64

	// PrincipalX, PrincipalY override the principal point when set to a
	// non-negative value.
	PrincipalX, PrincipalY float64
}

// NewLensDistortion creates a distortion transform with the default focal
// lengths of 500 and zero coefficients.
func NewLensDistortion() *LensDistortion {
	return &LensDistortion{FocalX: 500, FocalY: 500, PrincipalX: -1, PrincipalY: -1}
}

// Apply implements Transform.
func (t *LensDistortion) Apply(img *pixmap.Image) (*pixmap.Image, error) {
	cx, cy := t.PrincipalX, t.PrincipalY
	if cx < 0 || cy < 0 {
		cx = math.Floor(float64(img.Res) / 2)
		cy = cx
	}

	out := pixmap.New(img.Res, img.Channels)
	for y := 0; y < img.Res; y++ {
		for x := 0; x < img.Res; x++ {
			// Normalized camera coordinates.
			nx := (float64(x) - cx) / t.FocalX
			ny := (float64(y) - cy) / t.FocalY
			r2 := nx*nx + ny*ny
			radial := 1 + t.K1*r2 + t.K2*r2*r2
			dx := nx*radial + 2*t.P1*nx*ny + t.P2*(r2+2*nx*nx)
			dy := ny*radial + t.P1*(r2+2*ny*ny) + 2*t.P2*nx*ny
			sx := dx*t.FocalX + cx
			sy := dy*t.FocalY + cy
			for c := 0; c < img.Channels; c++ {
				out.Set(x, y, c, sampleBilinear(img, sx, sy, c, BorderConstant, 0))
			}
		}
	}
	return out, nil
}
