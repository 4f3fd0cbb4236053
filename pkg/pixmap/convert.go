package pixmap

import (
	"github.com/matzehuels/trainset/pkg/errors"
)

// ColorMode identifies a colorspace conversion.
type ColorMode int

// Supported conversions between the two pixel layouts.
const (
	// GrayToBGRA widens grayscale to four channels. The alpha channel is the
	// bit-inverted source value, so dark ink on a light background becomes
	// opaque ink on a transparent background.
	GrayToBGRA ColorMode = iota

	// BGRAToGray collapses four channels to grayscale using BT.601 weights.
	// Alpha is discarded.
	BGRAToGray
)

// Invert flips every sample bitwise in place (the equivalent of a bitwise
// NOT over the whole buffer). This is one of the documented in-place bulk
// operations; transforms used inside pipelines must not call it on shared
// images.
func (m *Image) Invert() {
	for i, v := range m.Pix {
		m.Pix[i] = ^v
	}
}

// Convert returns a new image in the target layout.
// Converting to the current layout returns a plain clone.
func (m *Image) Convert(mode ColorMode) (*Image, error) {
	switch mode {
	case GrayToBGRA:
		if m.Channels == BGRA {
			return m.Clone(), nil
		}
		out := New(m.Res, BGRA)
		for i, v := range m.Pix {
			out.Pix[i*4+0] = v
			out.Pix[i*4+1] = v
			out.Pix[i*4+2] = v
			out.Pix[i*4+3] = ^v
		}
		return out, nil
	case BGRAToGray:
		if m.Channels == Gray {
			return m.Clone(), nil
		}
		out := NewGray(m.Res)
		for i := 0; i < m.Res*m.Res; i++ {
			b := uint32(m.Pix[i*4+0])
			g := uint32(m.Pix[i*4+1])
			r := uint32(m.Pix[i*4+2])
			out.Pix[i] = uint8((299*r + 587*g + 114*b + 500) / 1000)
		}
		return out, nil
	default:
		return nil, errors.New(errors.ErrCodeUnsupported, "unknown color mode: %d", mode)
	}
}

// AlphaOptions selects how InduceAlpha computes the alpha channel.
// Exactly one of AverageOf, ZeroValue or MaxOf must be set.
type AlphaOptions struct {
	// AverageOf sets alpha to the per-pixel average of the given channels.
	AverageOf []int

	// ZeroValue maps pixels whose alpha equals this value to alpha 0 and all
	// others to alpha 255 (a chroma-key on the alpha channel).
	ZeroValue *uint8

	// MaxOf sets alpha to the per-pixel maximum of the given channels.
	MaxOf []int

	// Invert flips the computed alpha values.
	Invert bool
}

// validate checks the exactly-one-of-three constraint.
func (o AlphaOptions) validate() error {
	set := 0
	if len(o.AverageOf) > 0 {
		set++
	}
	if o.ZeroValue != nil {
		set++
	}
	if len(o.MaxOf) > 0 {
		set++
	}
	if set != 1 {
		return errors.New(errors.ErrCodeInvalidInput,
			"exactly one alpha induction mode must be chosen, got %d", set)
	}
	return nil
}

// InduceAlpha recomputes the alpha channel in place from per-pixel
// statistics. The image must have four channels.
func (m *Image) InduceAlpha(opts AlphaOptions) error {
	if m.Channels != BGRA {
		return errors.New(errors.ErrCodeUnsupported,
			"alpha induction requires a 4-channel image, got %d channels", m.Channels)
	}
	if err := opts.validate(); err != nil {
		return err
	}

	n := m.Res * m.Res
	switch {
	case len(opts.AverageOf) > 0:
		for i := 0; i < n; i++ {
			sum := 0
			for _, c := range opts.AverageOf {
				sum += int(m.Pix[i*4+c])
			}
			m.Pix[i*4+3] = applyInvert(uint8(sum/len(opts.AverageOf)), opts.Invert)
		}
	case opts.ZeroValue != nil:
		zero := applyInvert(0, opts.Invert)
		full := applyInvert(255, opts.Invert)
		for i := 0; i < n; i++ {
			if m.Pix[i*4+3] == *opts.ZeroValue {
				m.Pix[i*4+3] = zero
			} else {
				m.Pix[i*4+3] = full
			}
		}
	case len(opts.MaxOf) > 0:
		for i := 0; i < n; i++ {
			var maxV uint8
			for _, c := range opts.MaxOf {
				if v := m.Pix[i*4+c]; v > maxV {
					maxV = v
				}
			}
			m.Pix[i*4+3] = applyInvert(maxV, opts.Invert)
		}
	}
	return nil
}

func applyInvert(v uint8, invert bool) uint8 {
	if invert {
		return ^v
	}
	return v
}
