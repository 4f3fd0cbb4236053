package transform

import (
	"math"
	"math/rand/v2"

	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/matzehuels/trainset/pkg/pixmap"
)

// UniformNoise adds i.i.d. uniform noise in [Low, High] to every sample.
// The image is promoted to float, summed with the noise and clipped back to
// [0, 255].
type UniformNoise struct {
	Low, High float64
	rng       *rand.Rand
}

// NewUniformNoise creates a uniform noise transform with the default range
// [-16, 16].
func NewUniformNoise(seed uint64) *UniformNoise {
	return &UniformNoise{Low: -16, High: 16, rng: NewRand(seed)}
}

// Apply implements Transform.
func (t *UniformNoise) Apply(img *pixmap.Image) (*pixmap.Image, error) {
	buf := img.Floats()
	for i := range buf {
		buf[i] += t.Low + t.rng.Float64()*(t.High-t.Low)
	}
	out := pixmap.New(img.Res, img.Channels)
	out.FromFloats(buf)
	return out, nil
}

// GaussianNoise adds i.i.d. normal noise with mean Mu and standard
// deviation Sigma to every sample.
type GaussianNoise struct {
	Mu, Sigma float64
	rng       *rand.Rand
}

// NewGaussianNoise creates a Gaussian noise transform with mu 0, sigma 4.
func NewGaussianNoise(seed uint64) *GaussianNoise {
	return &GaussianNoise{Sigma: 4, rng: NewRand(seed)}
}

// Apply implements Transform.
func (t *GaussianNoise) Apply(img *pixmap.Image) (*pixmap.Image, error) {
	buf := img.Floats()
	for i := range buf {
		buf[i] += t.rng.NormFloat64()*t.Sigma + t.Mu
	}
	out := pixmap.New(img.Res, img.Channels)
	out.FromFloats(buf)
	return out, nil
}

// SpeckleNoise adds multiplicative Gaussian noise: img += img * n with
// n ~ Normal(Mu/255, Sigma/255). Mu and Sigma are given in pixel units to
// match the additive variant.
type SpeckleNoise struct {
	Mu, Sigma float64
	rng       *rand.Rand
}

// NewSpeckleNoise creates a speckle transform with mu 0, sigma 4.
func NewSpeckleNoise(seed uint64) *SpeckleNoise {
	return &SpeckleNoise{Sigma: 4, rng: NewRand(seed)}
}

// Apply implements Transform.
func (t *SpeckleNoise) Apply(img *pixmap.Image) (*pixmap.Image, error) {
	mu := t.Mu / 255
	sigma := t.Sigma / 255
	buf := img.Floats()
	for i := range buf {
		n := t.rng.NormFloat64()*sigma + mu
		buf[i] += buf[i] * n
	}
	out := pixmap.New(img.Res, img.Channels)
	out.FromFloats(buf)
	return out, nil
}

// PoissonNoise adds data-dependent Poisson noise. The image is scaled to
// [0, 1], the level count is the next power of two above the number of
// distinct pixel values present, and each output sample is drawn from
// Poisson(value*levels)/levels.
type PoissonNoise struct {
	src exprand.Source
}

// NewPoissonNoise creates a Poisson noise transform.
func NewPoissonNoise(seed uint64) *PoissonNoise {
	return &PoissonNoise{src: exprand.NewSource(seed)}
}

// Apply implements Transform.
func (t *PoissonNoise) Apply(img *pixmap.Image) (*pixmap.Image, error) {
	levels := math.Pow(2, math.Ceil(math.Log2(float64(distinctValues(img)))))

	out := pixmap.New(img.Res, img.Channels)
	for i, v := range img.Pix {
		lambda := float64(v) / 255 * levels
		if lambda == 0 {
			out.Pix[i] = 0
			continue
		}
		draw := distuv.Poisson{Lambda: lambda, Src: t.src}.Rand()
		out.Pix[i] = pixmap.ClampByte(draw / levels * 255)
	}
	return out, nil
}

func distinctValues(img *pixmap.Image) int {
	var seen [256]bool
	n := 0
	for _, v := range img.Pix {
		if !seen[v] {
			seen[v] = true
			n++
		}
	}
	return n
}

// SaltPepperNoise sets randomly chosen pixels to white ("salt") or black
// ("pepper").
//
// Amount values below 1 are a fraction of the pixel count; values of 1 or
// above are an absolute pixel count. Ratio is the salt share: 1.0 produces
// salt only and never introduces black pixels. Salt and pepper positions
// are drawn independently and may coincide.
type SaltPepperNoise struct {
	Amount float64
	Ratio  float64
	rng    *rand.Rand
}

// NewSaltPepperNoise creates a salt-and-pepper transform with 1% amount and
// an even salt/pepper split.
func NewSaltPepperNoise(seed uint64) *SaltPepperNoise {
	return &SaltPepperNoise{Amount: 0.01, Ratio: 0.5, rng: NewRand(seed)}
}

// Apply implements Transform.
func (t *SaltPepperNoise) Apply(img *pixmap.Image) (*pixmap.Image, error) {
	out := img.Clone()
	t.sprinkle(out)
	return out, nil
}

// sprinkle writes salt and pepper pixels into img in place. GrainNoise
// reuses it on scratch masks.
func (t *SaltPepperNoise) sprinkle(img *pixmap.Image) {
	total := float64(len(img.Pix))
	effective := t.Amount
	if effective < 1 {
		effective *= total
	}

	salt := int(math.Ceil(effective * t.Ratio))
	t.setPixels(img, salt, 255)

	if t.Ratio == 1.0 {
		return
	}
	pepper := int(math.Ceil(effective * (1 - t.Ratio)))
	t.setPixels(img, pepper, 0)
}

func (t *SaltPepperNoise) setPixels(img *pixmap.Image, count int, v uint8) {
	for i := 0; i < count; i++ {
		x := t.rng.IntN(img.Res)
		y := t.rng.IntN(img.Res)
		for c := 0; c < img.Channels; c++ {
			img.Set(x, y, c, v)
		}
	}
}

// GrainNoise adds larger textured white grains. Each iteration sprinkles
// salt onto a small scratch mask, dilates it with a randomly sized
// rectangular element, upscales it to the image size, JPEG-recompresses it
// to introduce block artifacts, and accumulates it additively.
type GrainNoise struct {
	Amount     float64
	Iterations int
	MaskRes    int
	rng        *rand.Rand
	salt       *SaltPepperNoise
}

// NewGrainNoise creates a grain transform with the default amount 0.0005,
// two iterations and a 102-pixel scratch mask.
func NewGrainNoise(seed uint64) *GrainNoise {
	return &GrainNoise{
		Amount:     0.0005,
		Iterations: 2,
		MaskRes:    102,
		rng:        NewRand(seed),
		salt:       &SaltPepperNoise{Amount: 0.0005, Ratio: 1, rng: NewRand(seed ^ 0x9e3779b9)},
	}
}

// Apply implements Transform.
func (t *GrainNoise) Apply(img *pixmap.Image) (*pixmap.Image, error) {
	encode := &JPEGReencode{Quality: 90}

	acc := make([]int, len(img.Pix))
	for i, v := range img.Pix {
		acc[i] = int(v)
	}

	for iter := 0; iter < t.Iterations; iter++ {
		mask := pixmap.New(t.MaskRes, img.Channels)
		t.salt.Amount = t.Amount
		t.salt.sprinkle(mask)

		w := 3 + t.rng.IntN(7)
		h := 3 + t.rng.IntN(7)
		mask = dilate(mask, elementRect(w, h), 1)

		mask = resizeTo(mask, img.Res)
		mask, err := encode.Apply(mask)
		if err != nil {
			return nil, err
		}

		for i, v := range mask.Pix {
			acc[i] += int(v)
		}
	}

	out := pixmap.New(img.Res, img.Channels)
	for i, v := range acc {
		out.Pix[i] = pixmap.ClampByte(float64(v))
	}
	return out, nil
}
