// Package pixmap defines the square 8-bit image type shared by all dataset
// and transform code.
//
// Images are stored as flat byte slices in row-major order with either one
// channel (grayscale) or four channels (BGRA, matching the channel order the
// upstream capture pipeline produces). All samples in a dataset share one
// side length, the dataset's resolution.
package pixmap

import (
	"bytes"
	"image"
	"image/color"

	"github.com/matzehuels/trainset/pkg/errors"
)

// Channel counts for the two supported layouts.
const (
	Gray = 1 // single-channel grayscale
	BGRA = 4 // blue, green, red, alpha
)

// Image is a square 8-bit pixmap.
//
// Invariant: len(Pix) == Res*Res*Channels. Pixel (x, y) channel c lives at
// Pix[(y*Res+x)*Channels+c].
type Image struct {
	Pix      []uint8
	Res      int
	Channels int
}

// New allocates a zeroed image with the given side length and channel count.
func New(res, channels int) *Image {
	return &Image{
		Pix:      make([]uint8, res*res*channels),
		Res:      res,
		Channels: channels,
	}
}

// NewGray allocates a zeroed single-channel image.
func NewGray(res int) *Image {
	return New(res, Gray)
}

// FromPix wraps an existing byte slice without copying.
// Returns an error if the slice length does not match res and channels.
func FromPix(pix []uint8, res, channels int) (*Image, error) {
	if len(pix) != res*res*channels {
		return nil, errors.New(errors.ErrCodeShapeMismatch,
			"pixel buffer length %d does not match %dx%dx%d", len(pix), res, res, channels)
	}
	return &Image{Pix: pix, Res: res, Channels: channels}, nil
}

// Clone returns a deep copy of the image.
func (m *Image) Clone() *Image {
	out := &Image{
		Pix:      make([]uint8, len(m.Pix)),
		Res:      m.Res,
		Channels: m.Channels,
	}
	copy(out.Pix, m.Pix)
	return out
}

// At returns the value of channel c at pixel (x, y).
// Coordinates are not bounds-checked; callers iterate within [0, Res).
func (m *Image) At(x, y, c int) uint8 {
	return m.Pix[(y*m.Res+x)*m.Channels+c]
}

// Set assigns the value of channel c at pixel (x, y).
func (m *Image) Set(x, y, c int, v uint8) {
	m.Pix[(y*m.Res+x)*m.Channels+c] = v
}

// Fill sets every sample in the image to v.
func (m *Image) Fill(v uint8) {
	for i := range m.Pix {
		m.Pix[i] = v
	}
}

// Equal reports whether two images have identical shape and pixel data.
func (m *Image) Equal(o *Image) bool {
	if o == nil {
		return m == nil
	}
	return m.Res == o.Res && m.Channels == o.Channels && bytes.Equal(m.Pix, o.Pix)
}

// Floats returns the pixel data promoted to float64, one entry per sample.
// Photometric transforms operate on this buffer and clamp back with
// FromFloats.
func (m *Image) Floats() []float64 {
	out := make([]float64, len(m.Pix))
	for i, v := range m.Pix {
		out[i] = float64(v)
	}
	return out
}

// FromFloats writes a float buffer back into the image, clipping each value
// to [0, 255] before the cast to uint8.
func (m *Image) FromFloats(buf []float64) {
	for i, v := range buf {
		m.Pix[i] = ClampByte(v)
	}
}

// ClampByte clips v to [0, 255] and casts to uint8.
func ClampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}

// ToGray converts a single-channel image to a stdlib *image.Gray.
// The pixel buffer is shared, not copied.
func (m *Image) ToGray() *image.Gray {
	return &image.Gray{
		Pix:    m.Pix,
		Stride: m.Res,
		Rect:   image.Rect(0, 0, m.Res, m.Res),
	}
}

// FromGray copies a stdlib grayscale image into a new single-channel Image.
// Non-square inputs are cropped to their top-left square.
func FromGray(g *image.Gray) *Image {
	b := g.Bounds()
	res := min(b.Dx(), b.Dy())
	out := NewGray(res)
	for y := 0; y < res; y++ {
		row := g.Pix[(y+b.Min.Y-g.Rect.Min.Y)*g.Stride:]
		copy(out.Pix[y*res:(y+1)*res], row[b.Min.X-g.Rect.Min.X:b.Min.X-g.Rect.Min.X+res])
	}
	return out
}

// ToNRGBA converts the image to a stdlib *image.NRGBA for use with the
// imaging and gg libraries. Grayscale values are replicated across R, G and
// B with full alpha; BGRA channels are reordered to RGBA.
func (m *Image) ToNRGBA() *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, m.Res, m.Res))
	n := m.Res * m.Res
	switch m.Channels {
	case Gray:
		for i := 0; i < n; i++ {
			v := m.Pix[i]
			out.Pix[i*4+0] = v
			out.Pix[i*4+1] = v
			out.Pix[i*4+2] = v
			out.Pix[i*4+3] = 255
		}
	case BGRA:
		for i := 0; i < n; i++ {
			out.Pix[i*4+0] = m.Pix[i*4+2]
			out.Pix[i*4+1] = m.Pix[i*4+1]
			out.Pix[i*4+2] = m.Pix[i*4+0]
			out.Pix[i*4+3] = m.Pix[i*4+3]
		}
	}
	return out
}

// FromNRGBA converts a stdlib NRGBA image back into an Image with the given
// channel count. For Gray the standard luma weights are applied; for BGRA
// the channels are reordered. Non-square inputs are cropped to their
// top-left square.
func FromNRGBA(src *image.NRGBA, channels int) *Image {
	b := src.Bounds()
	res := min(b.Dx(), b.Dy())
	out := New(res, channels)
	for y := 0; y < res; y++ {
		for x := 0; x < res; x++ {
			c := src.NRGBAAt(b.Min.X+x, b.Min.Y+y)
			switch channels {
			case Gray:
				out.Pix[y*res+x] = luma(c)
			case BGRA:
				i := (y*res + x) * 4
				out.Pix[i+0] = c.B
				out.Pix[i+1] = c.G
				out.Pix[i+2] = c.R
				out.Pix[i+3] = c.A
			}
		}
	}
	return out
}

// luma converts an NRGBA color to 8-bit grayscale using the BT.601 weights,
// matching image/color's GrayModel rounding.
func luma(c color.NRGBA) uint8 {
	return uint8((299*uint32(c.R) + 587*uint32(c.G) + 114*uint32(c.B) + 500) / 1000)
}
