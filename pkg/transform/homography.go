package transform

import (
	"gonum.org/v1/gonum/mat"

	"github.com/matzehuels/trainset/pkg/errors"
	"github.com/matzehuels/trainset/pkg/pixmap"
)

// Point is a 2D image coordinate.
type Point struct {
	X, Y float64
}

// Homography is a 3x3 projective transform in row-major order, mapping one
// planar quadrilateral onto another.
type Homography [9]float64

// SolveHomography computes the homography H with H*src[i] ~ dst[i] from
// point correspondences.
//
// Four correspondences give the exact direct-linear-transform solution
// (8 equations, 8 unknowns, h22 fixed to 1). More than four are solved in
// the least-squares sense, which is what the legacy eight-point path
// produces. Fewer than four correspondences are rejected.
func SolveHomography(src, dst []Point) (Homography, error) {
	var h Homography
	if len(src) != len(dst) {
		return h, errors.New(errors.ErrCodeShapeMismatch,
			"correspondence count mismatch: %d src vs %d dst", len(src), len(dst))
	}
	if len(src) < 4 {
		return h, errors.New(errors.ErrCodeInvalidInput,
			"homography needs at least 4 correspondences, got %d", len(src))
	}

	n := len(src)
	a := mat.NewDense(2*n, 8, nil)
	b := mat.NewVecDense(2*n, nil)
	for i := 0; i < n; i++ {
		x, y := src[i].X, src[i].Y
		u, v := dst[i].X, dst[i].Y
		a.SetRow(2*i, []float64{x, y, 1, 0, 0, 0, -u * x, -u * y})
		a.SetRow(2*i+1, []float64{0, 0, 0, x, y, 1, -v * x, -v * y})
		b.SetVec(2*i, u)
		b.SetVec(2*i+1, v)
	}

	// Dense.Solve finds the exact solution for the square system and the
	// minimum-norm least-squares solution for the over-determined one.
	var sol mat.Dense
	if err := sol.Solve(a, b); err != nil {
		return h, errors.Wrap(errors.ErrCodeInvalidInput, err, "degenerate corner configuration")
	}

	for i := 0; i < 8; i++ {
		h[i] = sol.At(i, 0)
	}
	h[8] = 1
	return h, nil
}

// Invert returns the inverse homography.
func (h Homography) Invert() (Homography, error) {
	var inv Homography
	m := mat.NewDense(3, 3, h[:])
	var im mat.Dense
	if err := im.Inverse(m); err != nil {
		return inv, errors.Wrap(errors.ErrCodeInvalidInput, err, "homography is singular")
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			inv[i*3+j] = im.At(i, j)
		}
	}
	return inv, nil
}

// project maps (x, y) through the homography.
func (h Homography) project(x, y float64) (float64, float64) {
	w := h[6]*x + h[7]*y + h[8]
	return (h[0]*x + h[1]*y + h[2]) / w, (h[3]*x + h[4]*y + h[5]) / w
}

// BorderMode selects how out-of-bounds samples are filled during warping.
type BorderMode int

const (
	// BorderConstant fills out-of-bounds samples with a fixed value.
	BorderConstant BorderMode = iota
	// BorderReplicate clamps sample coordinates to the image edge.
	BorderReplicate
)

// Warp resamples img through the homography using bilinear interpolation.
// The homography maps source coordinates to destination coordinates; each
// output pixel is looked up through the inverse. The output has the same
// resolution and channel count as the input.
func (h Homography) Warp(img *pixmap.Image, border BorderMode, fill uint8) (*pixmap.Image, error) {
	inv, err := h.Invert()
	if err != nil {
		return nil, err
	}
	return inv.WarpInverse(img, border, fill), nil
}

// WarpInverse resamples img treating the homography as the
// destination-to-source mapping directly (the "backwards" warp direction).
func (h Homography) WarpInverse(img *pixmap.Image, border BorderMode, fill uint8) *pixmap.Image {
	out := pixmap.New(img.Res, img.Channels)
	for y := 0; y < img.Res; y++ {
		for x := 0; x < img.Res; x++ {
			sx, sy := h.project(float64(x), float64(y))
			for c := 0; c < img.Channels; c++ {
				out.Set(x, y, c, sampleBilinear(img, sx, sy, c, border, fill))
			}
		}
	}
	return out
}

// sampleBilinear reads a sub-pixel value with the given border handling.
func sampleBilinear(img *pixmap.Image, x, y float64, c int, border BorderMode, fill uint8) uint8 {
	x0 := int(floor(x))
	y0 := int(floor(y))
	fx := x - float64(x0)
	fy := y - float64(y0)

	v00 := borderAt(img, x0, y0, c, border, fill)
	v10 := borderAt(img, x0+1, y0, c, border, fill)
	v01 := borderAt(img, x0, y0+1, c, border, fill)
	v11 := borderAt(img, x0+1, y0+1, c, border, fill)

	top := float64(v00)*(1-fx) + float64(v10)*fx
	bot := float64(v01)*(1-fx) + float64(v11)*fx
	return pixmap.ClampByte(top*(1-fy) + bot*fy)
}

func borderAt(img *pixmap.Image, x, y, c int, border BorderMode, fill uint8) uint8 {
	if x < 0 || y < 0 || x >= img.Res || y >= img.Res {
		if border == BorderConstant {
			return fill
		}
		x = clampInt(x, 0, img.Res-1)
		y = clampInt(y, 0, img.Res-1)
	}
	return img.At(x, y, c)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func floor(v float64) float64 {
	f := float64(int(v))
	if v < 0 && v != f {
		f--
	}
	return f
}
