package transform

import (
	"image"
	"math/rand/v2"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"

	"github.com/matzehuels/trainset/pkg/pixmap"
)

// EmbedInRectangle pastes the image into the center of a larger black
// canvas, strokes a white rectangle at half the inset distance from the
// border, and randomly crops the canvas back to the original resolution.
// The result looks like a digit sitting inside a printed cell border.
type EmbedInRectangle struct {
	Inset     float64
	Thickness int
	rng       *rand.Rand
}

// NewEmbedInRectangle creates an embed transform with 10% inset and a
// one-pixel border.
func NewEmbedInRectangle(seed uint64) *EmbedInRectangle {
	return &EmbedInRectangle{Inset: 0.1, Thickness: 1, rng: NewRand(seed)}
}

// Apply implements Transform.
func (t *EmbedInRectangle) Apply(img *pixmap.Image) (*pixmap.Image, error) {
	dc, off, expRes := expandOnCanvas(img, t.Inset)

	dc.SetRGB(1, 1, 1)
	dc.SetLineWidth(float64(t.Thickness))
	dc.DrawRectangle(
		float64(off)+0.5, float64(off)+0.5,
		float64(expRes-2*off-1), float64(expRes-2*off-1))
	dc.Stroke()

	return cropToRes(dc.Image(), img, t.Inset, t.rng), nil
}

// EmbedInGrid pastes the image into the center of a larger black canvas and
// draws full-width and full-height white grid lines through the inset
// offsets, then randomly crops back to the original resolution. The result
// looks like a digit inside a hand-drawn grid cell with neighbouring cell
// borders visible.
type EmbedInGrid struct {
	Inset     float64
	Thickness int
	rng       *rand.Rand
}

// NewEmbedInGrid creates a grid embed transform with 20% inset and
// one-pixel lines.
func NewEmbedInGrid(seed uint64) *EmbedInGrid {
	return &EmbedInGrid{Inset: 0.2, Thickness: 1, rng: NewRand(seed)}
}

// Apply implements Transform.
func (t *EmbedInGrid) Apply(img *pixmap.Image) (*pixmap.Image, error) {
	dc, off, expRes := expandOnCanvas(img, t.Inset)

	dc.SetRGB(1, 1, 1)
	dc.SetLineWidth(float64(t.Thickness))
	near := float64(off) + 0.5
	far := float64(expRes-off) - 0.5
	end := float64(expRes)
	dc.DrawLine(near, 0, near, end)
	dc.DrawLine(far, 0, far, end)
	dc.DrawLine(0, near, end, near)
	dc.DrawLine(0, far, end, far)
	dc.Stroke()

	return cropToRes(dc.Image(), img, t.Inset, t.rng), nil
}

// expandOnCanvas returns a black drawing canvas of the inset-expanded
// resolution with img pasted in its center, plus the paste offset and the
// expanded resolution. A non-positive inset yields the image itself on an
// unexpanded canvas.
func expandOnCanvas(img *pixmap.Image, inset float64) (*gg.Context, int, int) {
	expRes := img.Res
	off := 0
	if inset > 0 {
		expRes = int(float64(img.Res) + inset*float64(img.Res))
		off = int(inset / 2 * float64(img.Res))
	}

	dc := gg.NewContext(expRes, expRes)
	dc.SetRGB(0, 0, 0)
	dc.Clear()
	dc.DrawImage(img.ToNRGBA(), off, off)
	return dc, off, expRes
}

// cropToRes crops the expanded canvas back to the source resolution at a
// random offset. Without an inset there is nothing to crop.
func cropToRes(canvas image.Image, src *pixmap.Image, inset float64, rng *rand.Rand) *pixmap.Image {
	b := canvas.Bounds()
	if inset <= 0 || b.Dx() <= src.Res {
		return pixmap.FromNRGBA(imaging.Clone(canvas), src.Channels)
	}
	dx := rng.IntN(b.Dx() - src.Res)
	dy := rng.IntN(b.Dy() - src.Res)
	cropped := imaging.Crop(canvas, image.Rect(dx, dy, dx+src.Res, dy+src.Res))
	return pixmap.FromNRGBA(cropped, src.Channels)
}
