package fractal

import (
	"image/color"
	"math"
	"testing"
)

func TestMapSentinels(t *testing.T) {
	m := NewMapper(DefaultParams())
	for _, tc := range []struct {
		v    float64
		want color.RGBA
	}{
		{math.Inf(1), InSetColor},
		{math.NaN(), InSetColor},
		{math.Inf(-1), OutOfBoundsColor},
	} {
		if got := m.Map(tc.v, 1); got != tc.want {
			t.Errorf("Map(%v) = %v, want %v", tc.v, got, tc.want)
		}
	}
}

func TestMapPeriodicColor(t *testing.T) {
	p := DefaultParams()
	p.Mapping = Periodic{Scheme: ColorScheme{
		Red:   Wave{Factor: 0, Offset: math.Pi / 2},
		Green: Wave{Factor: 0, Offset: -math.Pi / 2},
		Blue:  Wave{Factor: 0, Offset: 0},
	}}
	got := NewMapper(p).Map(42, 1)
	if want := (color.RGBA{R: 255, G: 0, B: 127, A: 255}); got != want {
		t.Errorf("Map = %v, want %v", got, want)
	}
}

func TestMapPeriodicGreyscale(t *testing.T) {
	p := DefaultParams()
	p.Mapping = Periodic{Scheme: GreyScheme{Wave{Factor: 0.7, Offset: 1.1}}}
	m := NewMapper(p)
	for _, v := range []float64{0, 1.5, 17.25, -3} {
		c := m.Map(v, 1)
		if c.R != c.G || c.G != c.B {
			t.Errorf("Map(%v) = %v is not grey", v, c)
		}
	}
}

func TestMapRamp(t *testing.T) {
	p := DefaultParams()
	p.Mapping = Ramp{Factor: 1, Offset: 2}
	m := NewMapper(p)
	for _, tc := range []struct {
		v    float64
		want uint8
	}{
		{2, 0},
		{-5, 0},
		{100, 255},
		{2 + math.Atanh(0.5), 127},
	} {
		c := m.Map(tc.v, 1)
		if c.R != tc.want || c.G != tc.want || c.B != tc.want {
			t.Errorf("Map(%v) = %v, want grey %d", tc.v, c, tc.want)
		}
	}
}

func TestShade(t *testing.T) {
	flat := NewMapper(DefaultParams())
	if s := flat.Shade(-12); s != 1 {
		t.Errorf("flat shade = %v", s)
	}

	p := DefaultParams()
	p.Brightness = StripAverage{FoldChange: 10, Shape: Shape{Factor: 1, Offset: 0, MinBrightness: 0.3}}
	m := NewMapper(p)
	if s := m.Shade(0); math.Abs(s-0.65) > 1e-12 {
		t.Errorf("Shade(0) = %v, want 0.65", s)
	}
	if s := m.Shade(math.Pi / 2); math.Abs(s-1) > 1e-12 {
		t.Errorf("Shade(π/2) = %v, want 1", s)
	}
	if s := m.Shade(-math.Pi / 2); math.Abs(s-0.3) > 1e-12 {
		t.Errorf("Shade(-π/2) = %v, want 0.3", s)
	}
	for _, b := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if s := m.Shade(b); s != m.Shade(0) {
			t.Errorf("Shade(%v) = %v, want Shade(0)", b, s)
		}
	}
}

func TestMapAppliesBrightness(t *testing.T) {
	p := DefaultParams()
	p.Mapping = Periodic{Scheme: GreyScheme{Wave{Factor: 0, Offset: math.Pi / 2}}}
	p.Brightness = StripAverage{FoldChange: 10, Shape: Shape{Factor: 1, MinBrightness: 0}}
	m := NewMapper(p)
	if c := m.Map(3, -math.Pi/2); c != (color.RGBA{A: 255}) {
		t.Errorf("zero brightness gave %v", c)
	}
	if c := m.Map(3, math.Pi/2); c != (color.RGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Errorf("full brightness gave %v", c)
	}
	// NaN brightness must not leak into the pixel
	if c := m.Map(3, math.NaN()); c != (color.RGBA{R: 127, G: 127, B: 127, A: 255}) {
		t.Errorf("NaN brightness gave %v", c)
	}
}
