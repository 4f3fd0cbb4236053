package pixmap

import "testing"

func TestNewShape(t *testing.T) {
	tests := []struct {
		name     string
		res      int
		channels int
		wantLen  int
	}{
		{"gray 28", 28, Gray, 784},
		{"bgra 28", 28, BGRA, 3136},
		{"gray 1", 1, Gray, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.res, tt.channels)
			if len(m.Pix) != tt.wantLen {
				t.Errorf("len(Pix) = %d, want %d", len(m.Pix), tt.wantLen)
			}
		})
	}
}

func TestFromPixShapeMismatch(t *testing.T) {
	if _, err := FromPix(make([]uint8, 10), 28, Gray); err == nil {
		t.Fatal("FromPix with short buffer should fail")
	}
	m, err := FromPix(make([]uint8, 784), 28, Gray)
	if err != nil {
		t.Fatalf("FromPix error: %v", err)
	}
	if m.Res != 28 {
		t.Errorf("Res = %d, want 28", m.Res)
	}
}

func TestCloneIsDeep(t *testing.T) {
	m := NewGray(4)
	m.Set(1, 2, 0, 100)
	c := m.Clone()
	c.Set(1, 2, 0, 200)

	if m.At(1, 2, 0) != 100 {
		t.Error("mutating clone changed the original")
	}
	if c.At(1, 2, 0) != 200 {
		t.Error("clone did not retain its own write")
	}
}

func TestFloatsRoundTrip(t *testing.T) {
	m := NewGray(3)
	for i := range m.Pix {
		m.Pix[i] = uint8(i * 20)
	}
	buf := m.Floats()
	out := NewGray(3)
	out.FromFloats(buf)
	if !m.Equal(out) {
		t.Error("Floats/FromFloats round trip changed pixel data")
	}
}

func TestClampByte(t *testing.T) {
	tests := []struct {
		in   float64
		want uint8
	}{
		{-10, 0},
		{0, 0},
		{127.4, 127},
		{127.6, 128},
		{255, 255},
		{300, 255},
	}
	for _, tt := range tests {
		if got := ClampByte(tt.in); got != tt.want {
			t.Errorf("ClampByte(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestNRGBARoundTripGray(t *testing.T) {
	m := NewGray(8)
	for i := range m.Pix {
		m.Pix[i] = uint8(i * 3)
	}
	back := FromNRGBA(m.ToNRGBA(), Gray)
	if !m.Equal(back) {
		t.Error("gray -> NRGBA -> gray round trip changed pixel data")
	}
}

func TestNRGBARoundTripBGRA(t *testing.T) {
	m := New(4, BGRA)
	for i := range m.Pix {
		m.Pix[i] = uint8(i * 7)
	}
	back := FromNRGBA(m.ToNRGBA(), BGRA)
	if !m.Equal(back) {
		t.Error("BGRA -> NRGBA -> BGRA round trip changed pixel data")
	}
}

func TestInvert(t *testing.T) {
	m := NewGray(2)
	m.Pix = []uint8{0, 255, 100, 200}
	m.Invert()
	want := []uint8{255, 0, 155, 55}
	for i, v := range want {
		if m.Pix[i] != v {
			t.Errorf("Pix[%d] = %d, want %d", i, m.Pix[i], v)
		}
	}
}

func TestConvertGrayToBGRA(t *testing.T) {
	m := NewGray(2)
	m.Pix = []uint8{10, 20, 30, 40}
	out, err := m.Convert(GrayToBGRA)
	if err != nil {
		t.Fatalf("Convert error: %v", err)
	}
	if out.Channels != BGRA {
		t.Fatalf("Channels = %d, want %d", out.Channels, BGRA)
	}
	// Alpha is the bit-inverted source value.
	if out.Pix[3] != ^uint8(10) {
		t.Errorf("alpha = %d, want %d", out.Pix[3], ^uint8(10))
	}
	if out.Pix[0] != 10 || out.Pix[1] != 10 || out.Pix[2] != 10 {
		t.Errorf("BGR channels = %v, want replicated 10", out.Pix[:3])
	}
}

func TestInduceAlphaModeExclusivity(t *testing.T) {
	zero := uint8(0)
	tests := []struct {
		name    string
		opts    AlphaOptions
		wantErr bool
	}{
		{"none set", AlphaOptions{}, true},
		{"average only", AlphaOptions{AverageOf: []int{0, 1, 2}}, false},
		{"max only", AlphaOptions{MaxOf: []int{0}}, false},
		{"zero only", AlphaOptions{ZeroValue: &zero}, false},
		{"two set", AlphaOptions{AverageOf: []int{0}, MaxOf: []int{1}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(2, BGRA)
			err := m.InduceAlpha(tt.opts)
			if (err != nil) != tt.wantErr {
				t.Errorf("InduceAlpha error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInduceAlphaRequiresBGRA(t *testing.T) {
	m := NewGray(2)
	if err := m.InduceAlpha(AlphaOptions{AverageOf: []int{0}}); err == nil {
		t.Error("InduceAlpha on grayscale should fail")
	}
}

func TestInduceAlphaAverage(t *testing.T) {
	m := New(1, BGRA)
	m.Pix = []uint8{30, 60, 90, 0}
	if err := m.InduceAlpha(AlphaOptions{AverageOf: []int{0, 1, 2}}); err != nil {
		t.Fatalf("InduceAlpha error: %v", err)
	}
	if m.Pix[3] != 60 {
		t.Errorf("alpha = %d, want 60", m.Pix[3])
	}
}

func TestInduceAlphaMaxInverted(t *testing.T) {
	m := New(1, BGRA)
	m.Pix = []uint8{30, 60, 90, 0}
	if err := m.InduceAlpha(AlphaOptions{MaxOf: []int{0, 1, 2}, Invert: true}); err != nil {
		t.Fatalf("InduceAlpha error: %v", err)
	}
	if m.Pix[3] != ^uint8(90) {
		t.Errorf("alpha = %d, want %d", m.Pix[3], ^uint8(90))
	}
}
