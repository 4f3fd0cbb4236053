package transform

import (
	"bytes"
	"image"
	"image/jpeg"

	"github.com/matzehuels/trainset/pkg/errors"
	"github.com/matzehuels/trainset/pkg/pixmap"
)

// JPEGReencode encodes the image as JPEG at the given quality and decodes
// it again, introducing realistic compression artifacts. JPEG carries no
// alpha channel, so four-channel images come back fully opaque.
type JPEGReencode struct {
	Quality int
}

// NewJPEGReencode creates a re-encode transform with quality 80.
func NewJPEGReencode() *JPEGReencode {
	return &JPEGReencode{Quality: 80}
}

// Apply implements Transform.
func (t *JPEGReencode) Apply(img *pixmap.Image) (*pixmap.Image, error) {
	var buf bytes.Buffer
	var src image.Image
	if img.Channels == pixmap.Gray {
		src = img.ToGray()
	} else {
		src = img.ToNRGBA()
	}
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: t.Quality}); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "jpeg encode failed")
	}

	decoded, err := jpeg.Decode(&buf)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "jpeg decode failed")
	}

	if g, ok := decoded.(*image.Gray); ok && img.Channels == pixmap.Gray {
		return pixmap.FromGray(g), nil
	}

	out := pixmap.New(img.Res, img.Channels)
	for y := 0; y < img.Res; y++ {
		for x := 0; x < img.Res; x++ {
			r, g, b, _ := decoded.At(x, y).RGBA()
			if img.Channels == pixmap.Gray {
				out.Set(x, y, 0, uint8((299*(r>>8)+587*(g>>8)+114*(b>>8)+500)/1000))
				continue
			}
			i := (y*img.Res + x) * 4
			out.Pix[i+0] = uint8(b >> 8)
			out.Pix[i+1] = uint8(g >> 8)
			out.Pix[i+2] = uint8(r >> 8)
			out.Pix[i+3] = 255
		}
	}
	return out, nil
}
