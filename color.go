package fractal

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

var (
	// InSetColor is used for points that never escaped.
	InSetColor = color.RGBA{A: 255}
	// OutOfBoundsColor is used for points outside the escape radius from the start.
	OutOfBoundsColor = color.RGBA{R: 255, A: 255}
)

// Mapper turns raw sample values into pixel colors.
type Mapper struct {
	mapping Mapping
	// shape is nil for flat brightness
	shape *Shape
}

// NewMapper returns the color mapper for the coloring part of p.
func NewMapper(p Params) Mapper {
	m := Mapper{mapping: p.Mapping}
	switch b := p.Brightness.(type) {
	case StripAverage:
		m.shape = &b.Shape
	case StripAverageAlt:
		m.shape = &b.Shape
	}
	return m
}

func (w Wave) apply(v float64) float64 {
	return (math.Sin(v*w.Factor+w.Offset) + 1) / 2
}

// Base returns the unshaded color for a finite color value.
func (m Mapper) Base(v float64) colorful.Color {
	switch mp := m.mapping.(type) {
	case Ramp:
		g := math.Max(math.Min(math.Tanh((v-mp.Offset)*mp.Factor), 1), 0)
		return colorful.Color{R: g, G: g, B: g}
	case Periodic:
		switch s := mp.Scheme.(type) {
		case ColorScheme:
			return colorful.Color{R: s.Red.apply(v), G: s.Green.apply(v), B: s.Blue.apply(v)}
		case GreyScheme:
			g := s.apply(v)
			return colorful.Color{R: g, G: g, B: g}
		}
	}
	return colorful.Color{}
}

// Shade returns the brightness multiplier in [MinBrightness, 1] for a raw value.
func (m Mapper) Shade(b float64) float64 {
	if m.shape == nil {
		return 1
	}
	if math.IsNaN(b) || math.IsInf(b, 0) {
		b = 0
	}
	v := (math.Sin(b*m.shape.Factor+m.shape.Offset) + 1) / 2
	return m.shape.MinBrightness + (1-m.shape.MinBrightness)*v
}

// Map returns the final color of a sample.
func (m Mapper) Map(colorValue, brightness float64) color.RGBA {
	switch {
	case math.IsInf(colorValue, 1), math.IsNaN(colorValue):
		return InSetColor
	case math.IsInf(colorValue, -1):
		return OutOfBoundsColor
	}
	shade := m.Shade(brightness)
	c := m.Base(colorValue)
	c = colorful.Color{R: c.R * shade, G: c.G * shade, B: c.B * shade}.Clamped()
	return color.RGBA{R: channel(c.R), G: channel(c.G), B: channel(c.B), A: 255}
}

// channel truncates a clamped [0,1] value to a byte.
func channel(v float64) uint8 {
	v *= 255
	if !(v > 0) {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
