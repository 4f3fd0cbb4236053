package transform

import (
	"math"

	"github.com/disintegration/imaging"

	"github.com/matzehuels/trainset/pkg/errors"
	"github.com/matzehuels/trainset/pkg/pixmap"
)

// BoxBlur averages each pixel with its neighbours over a KSize x KSize
// window, Iterations times. Only kernel sizes 3 and 5 are supported.
type BoxBlur struct {
	KSize      int
	Iterations int
}

// NewBoxBlur creates a box blur with a 3x3 kernel and one iteration.
func NewBoxBlur() *BoxBlur {
	return &BoxBlur{KSize: 3, Iterations: 1}
}

// Apply implements Transform.
func (t *BoxBlur) Apply(img *pixmap.Image) (*pixmap.Image, error) {
	for i := 0; i < t.Iterations; i++ {
		switch t.KSize {
		case 3:
			var k [9]float64
			for j := range k {
				k[j] = 1.0 / 9
			}
			img = convolve3x3(img, k)
		case 5:
			var k [25]float64
			for j := range k {
				k[j] = 1.0 / 25
			}
			img = convolve5x5(img, k)
		default:
			return nil, errors.New(errors.ErrCodeUnsupported,
				"box blur kernel size must be 3 or 5")
		}
	}
	return img, nil
}

// GaussianBlur smooths the image with a Gaussian kernel. When Sigma is zero
// it is derived from KSize the way fixed-size blur kernels conventionally
// are: 0.3*((ksize-1)*0.5 - 1) + 0.8.
type GaussianBlur struct {
	KSize      int
	Sigma      float64
	Iterations int
}

// NewGaussianBlur creates a Gaussian blur with a 3x3 kernel, derived sigma
// and one iteration.
func NewGaussianBlur() *GaussianBlur {
	return &GaussianBlur{KSize: 3, Iterations: 1}
}

// Apply implements Transform.
func (t *GaussianBlur) Apply(img *pixmap.Image) (*pixmap.Image, error) {
	sigma := t.Sigma
	if sigma <= 0 {
		sigma = 0.3*((float64(t.KSize)-1)*0.5-1) + 0.8
	}
	for i := 0; i < t.Iterations; i++ {
		blurred := imaging.Blur(img.ToNRGBA(), sigma)
		img = pixmap.FromNRGBA(blurred, img.Channels)
	}
	return img, nil
}

// SharpenFilter applies a fixed 3x3 sharpening kernel.
type SharpenFilter struct {
	Iterations int
}

// Apply implements Transform.
func (t *SharpenFilter) Apply(img *pixmap.Image) (*pixmap.Image, error) {
	k := [9]float64{
		0, -1, 0,
		-1, 5, -1,
		0, -1, 0,
	}
	return iterate3x3(img, k, t.Iterations), nil
}

// ReliefFilter applies a fixed 3x3 relief (emboss) kernel.
type ReliefFilter struct {
	Iterations int
}

// Apply implements Transform.
func (t *ReliefFilter) Apply(img *pixmap.Image) (*pixmap.Image, error) {
	k := [9]float64{
		-2, -1, 0,
		-1, 1, 1,
		0, 1, 2,
	}
	return iterate3x3(img, k, t.Iterations), nil
}

// EdgeFilter applies a fixed 3x3 edge detection kernel.
type EdgeFilter struct {
	Iterations int
}

// Apply implements Transform.
func (t *EdgeFilter) Apply(img *pixmap.Image) (*pixmap.Image, error) {
	k := [9]float64{
		1. / 4, 2. / 4, 1. / 4,
		2. / 4, -12. / 4, 2. / 4,
		1. / 4, 2. / 4, 1. / 4,
	}
	return iterate3x3(img, k, t.Iterations), nil
}

// UnsharpMaskingFilter3x3 sharpens by subtracting a small blur, using a
// fixed 3x3 kernel.
type UnsharpMaskingFilter3x3 struct {
	Iterations int
}

// Apply implements Transform.
func (t *UnsharpMaskingFilter3x3) Apply(img *pixmap.Image) (*pixmap.Image, error) {
	k := [9]float64{
		-1. / 16, -2. / 16, -1. / 16,
		-2. / 16, 28. / 16, -2. / 16,
		-1. / 16, -2. / 16, -1. / 16,
	}
	return iterate3x3(img, k, t.Iterations), nil
}

// UnsharpMaskingFilter5x5 sharpens by subtracting a wider Gaussian blur,
// using a fixed 5x5 kernel.
type UnsharpMaskingFilter5x5 struct {
	Iterations int
}

// Apply implements Transform.
func (t *UnsharpMaskingFilter5x5) Apply(img *pixmap.Image) (*pixmap.Image, error) {
	k := [25]float64{
		-1. / 256, -4. / 256, -6. / 256, -4. / 256, -1. / 256,
		-4. / 256, -16. / 256, -24. / 256, -16. / 256, -4. / 256,
		-6. / 256, -24. / 256, 476. / 256, -24. / 256, -6. / 256,
		-4. / 256, -16. / 256, -24. / 256, -16. / 256, -4. / 256,
		-1. / 256, -4. / 256, -6. / 256, -4. / 256, -1. / 256,
	}
	out := img
	for i := 0; i < t.Iterations; i++ {
		out = convolve5x5(out, k)
	}
	return out, nil
}

func iterate3x3(img *pixmap.Image, k [9]float64, iterations int) *pixmap.Image {
	for i := 0; i < iterations; i++ {
		img = convolve3x3(img, k)
	}
	return img
}

func convolve3x3(img *pixmap.Image, k [9]float64) *pixmap.Image {
	out := imaging.Convolve3x3(img.ToNRGBA(), k, nil)
	return pixmap.FromNRGBA(out, img.Channels)
}

func convolve5x5(img *pixmap.Image, k [25]float64) *pixmap.Image {
	out := imaging.Convolve5x5(img.ToNRGBA(), k, nil)
	return pixmap.FromNRGBA(out, img.Channels)
}

// ElementShape selects the structuring element used by Dilate.
type ElementShape int

const (
	// ElementEllipse is an elliptical structuring element inscribed in the
	// kernel rectangle.
	ElementEllipse ElementShape = iota
	// ElementRect is a full rectangular structuring element.
	ElementRect
)

// element is a binary structuring element with optional per-cell weights.
type element struct {
	w, h    int
	mask    []bool
	weights []float64
}

func elementRect(w, h int) element {
	mask := make([]bool, w*h)
	for i := range mask {
		mask[i] = true
	}
	return element{w: w, h: h, mask: mask}
}

func elementEllipse(w, h int) element {
	mask := make([]bool, w*h)
	rx := float64(w-1) / 2
	ry := float64(h-1) / 2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx := (float64(x) - rx) / math.Max(rx, 0.5)
			dy := (float64(y) - ry) / math.Max(ry, 0.5)
			mask[y*w+x] = dx*dx+dy*dy <= 1
		}
	}
	return element{w: w, h: h, mask: mask}
}

func elementGaussian(w, h int) element {
	mask := make([]bool, w*h)
	weights := make([]float64, w*h)
	sx := 0.3*((float64(w)-1)*0.5-1) + 0.8
	sy := 0.3*((float64(h)-1)*0.5-1) + 0.8
	cx := float64(w-1) / 2
	cy := float64(h-1) / 2
	peak := 0.0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx := (float64(x) - cx) / sx
			dy := (float64(y) - cy) / sy
			weights[y*w+x] = math.Exp(-(dx*dx + dy*dy) / 2)
			peak = math.Max(peak, weights[y*w+x])
			mask[y*w+x] = true
		}
	}
	for i := range weights {
		weights[i] /= peak
	}
	return element{w: w, h: h, mask: mask, weights: weights}
}

// dilate performs grayscale dilation: each output sample is the maximum of
// the input samples under the structuring element, weighted when the
// element carries weights. Borders replicate.
func dilate(img *pixmap.Image, el element, iterations int) *pixmap.Image {
	for it := 0; it < iterations; it++ {
		out := pixmap.New(img.Res, img.Channels)
		ax := el.w / 2
		ay := el.h / 2
		for y := 0; y < img.Res; y++ {
			for x := 0; x < img.Res; x++ {
				for c := 0; c < img.Channels; c++ {
					best := 0.0
					for ey := 0; ey < el.h; ey++ {
						for ex := 0; ex < el.w; ex++ {
							if !el.mask[ey*el.w+ex] {
								continue
							}
							sx := clampInt(x+ex-ax, 0, img.Res-1)
							sy := clampInt(y+ey-ay, 0, img.Res-1)
							v := float64(img.At(sx, sy, c))
							if el.weights != nil {
								v *= el.weights[ey*el.w+ex]
							}
							best = math.Max(best, v)
						}
					}
					out.Set(x, y, c, pixmap.ClampByte(best))
				}
			}
		}
		img = out
	}
	return img
}

// Dilate grows bright regions using a binary structuring element.
type Dilate struct {
	Shape      ElementShape
	Width      int
	Height     int
	Iterations int
}

// NewDilate creates a dilation with a 3x3 elliptical element and one
// iteration.
func NewDilate() *Dilate {
	return &Dilate{Shape: ElementEllipse, Width: 3, Height: 3, Iterations: 1}
}

// Apply implements Transform.
func (t *Dilate) Apply(img *pixmap.Image) (*pixmap.Image, error) {
	var el element
	switch t.Shape {
	case ElementRect:
		el = elementRect(t.Width, t.Height)
	default:
		el = elementEllipse(t.Width, t.Height)
	}
	return dilate(img, el, t.Iterations), nil
}

// DilateSoft grows bright regions using a Gaussian-weighted structuring
// element, producing softer grain edges than the binary variant.
type DilateSoft struct {
	Width      int
	Height     int
	Iterations int
}

// NewDilateSoft creates a soft dilation with a 3x3 Gaussian element and one
// iteration.
func NewDilateSoft() *DilateSoft {
	return &DilateSoft{Width: 3, Height: 3, Iterations: 1}
}

// Apply implements Transform.
func (t *DilateSoft) Apply(img *pixmap.Image) (*pixmap.Image, error) {
	return dilate(img, elementGaussian(t.Width, t.Height), t.Iterations), nil
}

// resizeTo scales a square image to the given resolution with bilinear
// interpolation.
func resizeTo(img *pixmap.Image, res int) *pixmap.Image {
	if img.Res == res {
		return img
	}
	scaled := imaging.Resize(img.ToNRGBA(), res, res, imaging.Linear)
	return pixmap.FromNRGBA(scaled, img.Channels)
}
