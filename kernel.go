package fractal

import (
	"math"

	"github.com/marben/fractile/internal/xfloat"
)

// Real is the arithmetic the iteration kernel needs from a floating type.
type Real[T any] interface {
	Add(T) T
	Sub(T) T
	Mul(T) T
	Scale(float64) T
	Float64() float64
}

// Float64 is the standard precision Real.
type Float64 float64

func (a Float64) Add(b Float64) Float64   { return a + b }
func (a Float64) Sub(b Float64) Float64   { return a - b }
func (a Float64) Mul(b Float64) Float64   { return a * b }
func (a Float64) Scale(f float64) Float64 { return a * Float64(f) }
func (a Float64) Float64() float64        { return float64(a) }

func standard(d xfloat.DD) Float64   { return Float64(d.Hi) }
func extended(d xfloat.DD) xfloat.DD { return d }

var (
	_ Real[Float64]   = Float64(0)
	_ Real[xfloat.DD] = xfloat.DD{}
)

// Sample is the raw, unmapped result for one point.
//
// Color is +Inf inside the set, -Inf when the starting point already lies
// outside the escape radius, and the continuous or angle value otherwise.
type Sample struct {
	Color      float64
	Brightness float64
	Iterations int
}

func (s Sample) InSet() bool       { return math.IsInf(s.Color, 1) }
func (s Sample) OutOfBounds() bool { return math.IsInf(s.Color, -1) }

// Sampler evaluates the fractal at canvas coordinates.
type Sampler interface {
	// Sample evaluates the point at pixel position (x, y), where the fractional
	// part selects a sub-pixel sample.
	Sample(x, y float64) Sample
}

// NewSampler returns the kernel for p at its precision. p must be valid.
func NewSampler(p Params) Sampler {
	if p.Precision == Extended {
		return newKernel(p, extended)
	}
	return newKernel(p, standard)
}

// OversamplingOffsets spreads n samples evenly over [-1/2, 1/2]:
// offset i is (2i-n+1)/(2n).
func OversamplingOffsets(n int) []float64 {
	offsets := make([]float64, n)
	for i := range n {
		offsets[i] = (2*float64(i) - float64(n) + 1) / 2 / float64(n)
	}
	return offsets
}

type kernel[T Real[T]] struct {
	julia bool

	realMin, realSpan T
	imagMax, imagSpan T
	cReal, cImag      T

	xDenom, yDenom float64

	depth        int
	escapeRadius float64
	rSquared     float64

	base ColorBase

	// strip average
	averaging  bool
	alt        bool
	fold       float64
	regularity float64
	exponent   float64
}

func newKernel[T Real[T]](p Params, conv func(xfloat.DD) T) *kernel[T] {
	k := &kernel[T]{
		julia:        p.Kind == Julia,
		realMin:      conv(p.Range.RealMin),
		realSpan:     conv(p.Range.RealMax).Sub(conv(p.Range.RealMin)),
		imagMax:      conv(p.Range.ImagMax),
		imagSpan:     conv(p.Range.ImagMax).Sub(conv(p.Range.ImagMin)),
		cReal:        conv(p.Julia.Real),
		cImag:        conv(p.Julia.Imag),
		xDenom:       math.Max(float64(p.Width-1), 1),
		yDenom:       math.Max(float64(p.Height-1), 1),
		depth:        p.Depth,
		escapeRadius: p.EscapeRadius,
		rSquared:     p.EscapeRadius * p.EscapeRadius,
		base:         p.ColorBase,
	}
	switch b := p.Brightness.(type) {
	case StripAverage:
		k.averaging, k.fold = true, b.FoldChange
	case StripAverageAlt:
		k.averaging, k.alt = true, true
		k.fold, k.regularity, k.exponent = b.FoldChange, b.Regularity, b.Exponent
	}
	return k
}

func (k *kernel[T]) Sample(x, y float64) Sample {
	re := k.realMin.Add(k.realSpan.Scale(x / k.xDenom))
	im := k.imagMax.Sub(k.imagSpan.Scale(y / k.yDenom))
	return k.iterate(re, im)
}

// iterate runs z <- z^2 + c from the given point.
func (k *kernel[T]) iterate(pointRe, pointIm T) Sample {
	var zr, zi, cr, ci T
	if k.julia {
		zr, zi = pointRe, pointIm
		cr, ci = k.cReal, k.cImag
	} else {
		cr, ci = pointRe, pointIm
	}

	// Strip average sums are taken from iteration index 2 on; the sum before
	// the last step is kept for the smoothing interpolation.
	const skip = 1
	var sum, prevSum float64

	// z0 = 0 never escapes, so a Mandelbrot point is out of bounds when
	// its first iterate, c itself, is already outside the radius.
	limit := k.depth
	if !k.julia && cr.Mul(cr).Add(ci.Mul(ci)).Float64() >= k.rSquared {
		limit = 0
	}

	n := 0
	for n < limit && zr.Mul(zr).Add(zi.Mul(zi)).Float64() < k.rSquared {
		nr := zr.Mul(zr).Sub(zi.Mul(zi)).Add(cr)
		zi = zr.Mul(zi).Scale(2).Add(ci)
		zr = nr
		if k.averaging && n > skip {
			prevSum = sum
			arg := Arg(zr.Float64(), zi.Float64())
			if k.alt {
				sum += 1 / (1 + k.regularity*math.Pow(math.Sin(k.fold*arg), k.exponent))
			} else {
				sum += (1 + math.Sin(k.fold*arg)) / 2
			}
		}
		n++
	}

	s := Sample{Iterations: n}
	switch {
	case n == k.depth:
		s.Color = math.Inf(1)
		s.Brightness = 1
		return s
	case n == 0:
		s.Color = math.Inf(-1)
	default:
		r, i := zr.Float64(), zi.Float64()
		if k.base == Angle {
			s.Color = Arg(r, i)
		} else {
			s.Color = float64(n) - math.Log2(math.Log2(r*r+i*i)/2)
		}
		// |z| == 1 at escape (radius 1) has no potential estimate.
		if math.IsNaN(s.Color) || math.IsInf(s.Color, 0) {
			s.Color = float64(n)
		}
	}

	switch {
	case !k.averaging:
		s.Brightness = 1
	case n <= skip+1:
		// both averages need at least one term
		s.Brightness = 0
	default:
		avg := sum / float64(n-skip)
		prev := prevSum / float64(n-skip-1)
		r, i := zr.Float64(), zi.Float64()
		logR := 0.5 * math.Log(r*r+i*i)
		lambda := 1 + math.Log2(math.Log(k.escapeRadius)/logR)
		s.Brightness = lambda*avg + (1-lambda)*prev
	}
	return s
}

// Arg is the argument of re+i·im in (-π, π]. On the imaginary axis it is
// π/2 above the origin and -π/2 otherwise, including at the origin.
func Arg(re, im float64) float64 {
	switch {
	case re > 0:
		return math.Atan(im / re)
	case re < 0:
		if im >= 0 {
			return math.Atan(im/re) + math.Pi
		}
		return math.Atan(im/re) - math.Pi
	case im > 0:
		return math.Pi / 2
	}
	return -math.Pi / 2
}
