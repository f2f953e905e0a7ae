package fractal

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/marben/fractile/internal/xfloat"
)

// ErrInvalidParams is wrapped by every error returned from Params.Validate.
var ErrInvalidParams = errors.New("invalid render parameters")

// Kind selects the iterated formula.
type Kind int

const (
	Mandelbrot Kind = iota
	Julia
)

func (k Kind) String() string {
	switch k {
	case Mandelbrot:
		return "mandel"
	case Julia:
		return "julia"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Precision selects the floating type used by the iteration kernel.
type Precision int

const (
	// Standard iterates in float64.
	Standard Precision = iota
	// Extended iterates in double-double.
	Extended
)

func (p Precision) String() string {
	switch p {
	case Standard:
		return "double"
	case Extended:
		return "extended"
	}
	return fmt.Sprintf("Precision(%d)", int(p))
}

// ColorBase selects the raw color value derived from an escaped orbit.
type ColorBase int

const (
	Continuous ColorBase = iota
	Angle
)

func (c ColorBase) String() string {
	switch c {
	case Continuous:
		return "continuous"
	case Angle:
		return "angle"
	}
	return fmt.Sprintf("ColorBase(%d)", int(c))
}

// Range is the rectangle of the complex plane mapped onto the canvas.
type Range struct {
	RealMin, RealMax xfloat.DD
	ImagMin, ImagMax xfloat.DD
}

// Complex is a complex number stored at extended width.
type Complex struct {
	Real, Imag xfloat.DD
}

// Wave is a sine wave applied to the color value: (sin(v*Factor+Offset)+1)/2.
type Wave struct {
	Factor float64 `json:"factor"`
	Offset float64 `json:"offset"`
}

// Mapping turns a finite color value into a base color.
// Implementations are Periodic and Ramp.
type Mapping interface {
	isMapping()
}

// Scheme is the channel layout of a Periodic mapping.
// Implementations are ColorScheme and GreyScheme.
type Scheme interface {
	isScheme()
}

// ColorScheme drives each channel with its own wave.
type ColorScheme struct {
	Red, Green, Blue Wave
}

// GreyScheme drives all three channels with the same wave.
type GreyScheme struct {
	Wave
}

// Periodic maps color values through sine waves.
type Periodic struct {
	Scheme Scheme
}

// Ramp maps color values onto a grey ramp: clamp(tanh((v-Offset)*Factor), 0, 1).
type Ramp struct {
	Factor, Offset float64
}

func (ColorScheme) isScheme() {}
func (GreyScheme) isScheme()  {}
func (Periodic) isMapping()   {}
func (Ramp) isMapping()       {}

// Shape reshapes a raw brightness value into [MinBrightness, 1].
type Shape struct {
	Factor, Offset, MinBrightness float64
}

// Brightness selects how the per-point brightness is derived.
// Implementations are Flat, StripAverage and StripAverageAlt.
type Brightness interface {
	isBrightness()
}

// Flat renders every point at full brightness.
type Flat struct{}

// StripAverage averages (1+sin(FoldChange*arg z))/2 along the orbit.
type StripAverage struct {
	FoldChange float64
	Shape
}

// StripAverageAlt averages 1/(1+Regularity*sin(FoldChange*arg z)^Exponent) along the orbit.
type StripAverageAlt struct {
	FoldChange float64
	Regularity float64
	Exponent   float64
	Shape
}

func (Flat) isBrightness()            {}
func (StripAverage) isBrightness()    {}
func (StripAverageAlt) isBrightness() {}

// Averaging reports whether b accumulates a strip average along the orbit.
func Averaging(b Brightness) bool {
	switch b.(type) {
	case StripAverage, StripAverageAlt:
		return true
	}
	return false
}

// Storage says where and what a render persists.
type Storage struct {
	Directory       string
	SavePicture     bool
	SaveCacheDisk   bool
	SaveCacheMemory bool
	SaveStatistics  bool
}

// Params is the complete description of one render pass.
type Params struct {
	Name      string
	Kind      Kind
	Precision Precision
	Range     Range

	Depth        int
	EscapeRadius float64
	Oversampling int
	Julia        Complex

	ColorBase  ColorBase
	Mapping    Mapping
	Brightness Brightness

	Width, Height int

	Storage Storage
}

// DefaultRange returns the initial view for a fractal kind.
func DefaultRange(k Kind) Range {
	if k == Julia {
		return Range{
			RealMin: xfloat.New(-2), RealMax: xfloat.New(2),
			ImagMin: xfloat.New(-2), ImagMax: xfloat.New(2),
		}
	}
	return Range{
		RealMin: xfloat.MustParse("-2.2"), RealMax: xfloat.MustParse("0.7"),
		ImagMin: xfloat.MustParse("-1.3"), ImagMax: xfloat.MustParse("1.3"),
	}
}

// DefaultStripAverage is the strip average used when switching away from Flat.
var DefaultStripAverage = StripAverage{
	FoldChange: 10,
	Shape:      Shape{Factor: 10, Offset: 0, MinBrightness: 0.3},
}

// DefaultParams returns a full Mandelbrot view with periodic coloring.
func DefaultParams() Params {
	return Params{
		Name:         "fractal",
		Kind:         Mandelbrot,
		Precision:    Standard,
		Range:        DefaultRange(Mandelbrot),
		Depth:        1000,
		EscapeRadius: 4000,
		Oversampling: 1,
		ColorBase:    Continuous,
		Mapping: Periodic{Scheme: ColorScheme{
			Red:   Wave{Factor: 0.1, Offset: 1},
			Green: Wave{Factor: 0.2, Offset: 2},
			Blue:  Wave{Factor: 0.4, Offset: 3},
		}},
		Brightness: Flat{},
		Width:      800,
		Height:     600,
		Storage:    Storage{SaveCacheMemory: true},
	}
}

// lessAt compares a < b at the active precision.
func (p Params) lessAt(a, b xfloat.DD) bool {
	if p.Precision == Extended {
		return a.Cmp(b) < 0
	}
	return a.Hi < b.Hi
}

// equalAt compares a == b at the active precision.
func (p Params) equalAt(a, b xfloat.DD) bool {
	if p.Precision == Extended {
		return a == b
	}
	return a.Hi == b.Hi
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Validate checks every invariant a render relies on.
// All violations are reported together.
func (p Params) Validate() error {
	var errs []error
	fail := func(format string, a ...any) {
		errs = append(errs, fmt.Errorf(format, a...))
	}

	if p.Kind != Mandelbrot && p.Kind != Julia {
		fail("unknown fractal kind %d", int(p.Kind))
	}
	if p.Precision != Standard && p.Precision != Extended {
		fail("unknown precision %d", int(p.Precision))
	}
	r := p.Range
	if !r.RealMin.IsFinite() || !r.RealMax.IsFinite() || !r.ImagMin.IsFinite() || !r.ImagMax.IsFinite() {
		fail("range bounds must be finite")
	} else {
		if !p.lessAt(r.RealMin, r.RealMax) {
			fail("real min %v must be less than real max %v", r.RealMin, r.RealMax)
		}
		if !p.lessAt(r.ImagMin, r.ImagMax) {
			fail("imag min %v must be less than imag max %v", r.ImagMin, r.ImagMax)
		}
	}
	if p.Depth < 1 {
		fail("depth %d must be at least 1", p.Depth)
	}
	if !finite(p.EscapeRadius) || p.EscapeRadius < 1 {
		fail("escape radius %v must be a finite value of at least 1", p.EscapeRadius)
	}
	if p.Oversampling < 1 || p.Oversampling > 5 {
		fail("oversampling %d must be between 1 and 5", p.Oversampling)
	}
	if p.Kind == Julia && (!p.Julia.Real.IsFinite() || !p.Julia.Imag.IsFinite()) {
		fail("julia constant must be finite")
	}
	if p.ColorBase != Continuous && p.ColorBase != Angle {
		fail("unknown color base value %d", int(p.ColorBase))
	}

	switch m := p.Mapping.(type) {
	case nil:
		fail("color mapping method is missing")
	case Periodic:
		switch s := m.Scheme.(type) {
		case ColorScheme:
			if !finite(s.Red.Factor, s.Red.Offset, s.Green.Factor, s.Green.Offset, s.Blue.Factor, s.Blue.Offset) {
				fail("periodic color factors and offsets must be finite")
			}
		case GreyScheme:
			if !finite(s.Factor, s.Offset) {
				fail("periodic greyscale factor and offset must be finite")
			}
		default:
			fail("periodic color scheme is missing")
		}
	case Ramp:
		if !finite(m.Factor, m.Offset) {
			fail("ramp factor and offset must be finite")
		}
	default:
		fail("unknown color mapping method %T", m)
	}

	switch b := p.Brightness.(type) {
	case nil:
		fail("brightness value is missing")
	case Flat:
	case StripAverage:
		if !finite(b.FoldChange, b.Factor, b.Offset, b.MinBrightness) {
			fail("strip average parameters must be finite")
		}
	case StripAverageAlt:
		if !finite(b.FoldChange, b.Regularity, b.Exponent, b.Factor, b.Offset, b.MinBrightness) {
			fail("strip average alt parameters must be finite")
		}
	default:
		fail("unknown brightness value %T", b)
	}

	if p.Width < 1 || p.Height < 1 {
		fail("resolution %dx%d must be at least 1x1", p.Width, p.Height)
	}

	s := p.Storage
	if s.SaveCacheDisk || s.SavePicture || s.SaveStatistics {
		if s.Directory == "" {
			fail("storage directory is required when saving to disk")
		}
		if p.Name == "" || p.Name == "." || p.Name == ".." || strings.ContainsAny(p.Name, `/\`) || filepath.Base(p.Name) != p.Name {
			fail("name %q cannot be used as a directory name", p.Name)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidParams, errors.Join(errs...))
}

// brightnessRaw extracts the sub-parameters that change raw brightness values.
func brightnessRaw(b Brightness) (fold, regularity, exponent float64) {
	switch b := b.(type) {
	case StripAverage:
		return b.FoldChange, 0, 0
	case StripAverageAlt:
		return b.FoldChange, b.Regularity, b.Exponent
	}
	return 0, 0, 0
}

func brightnessMode(b Brightness) string {
	switch b.(type) {
	case Flat:
		return "flat"
	case StripAverage:
		return "strip average"
	case StripAverageAlt:
		return "strip average alt"
	}
	return ""
}

// InvalidatesCache reports whether raw values computed under p are stale under next.
// Coloring, brightness shaping and storage flags are cosmetic; so are the name
// and the directory, which only move the disk cache elsewhere.
func (p Params) InvalidatesCache(next Params) bool {
	if p.Precision != next.Precision ||
		p.Kind != next.Kind ||
		p.Depth != next.Depth ||
		p.EscapeRadius != next.EscapeRadius ||
		p.Oversampling != next.Oversampling ||
		p.ColorBase != next.ColorBase ||
		p.Width != next.Width || p.Height != next.Height {
		return true
	}
	if !next.equalAt(p.Range.RealMin, next.Range.RealMin) ||
		!next.equalAt(p.Range.RealMax, next.Range.RealMax) ||
		!next.equalAt(p.Range.ImagMin, next.Range.ImagMin) ||
		!next.equalAt(p.Range.ImagMax, next.Range.ImagMax) {
		return true
	}
	if !next.equalAt(p.Julia.Real, next.Julia.Real) || !next.equalAt(p.Julia.Imag, next.Julia.Imag) {
		return true
	}

	// Switching to flat only ignores the stored brightness.
	if _, flat := next.Brightness.(Flat); flat {
		return false
	}
	if brightnessMode(p.Brightness) != brightnessMode(next.Brightness) {
		return true
	}
	f0, r0, e0 := brightnessRaw(p.Brightness)
	f1, r1, e1 := brightnessRaw(next.Brightness)
	return f0 != f1 || r0 != r1 || e0 != e1
}
