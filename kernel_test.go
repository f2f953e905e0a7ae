package fractal

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/marben/fractile/internal/xfloat"
)

// pointParams returns a 1×1 canvas whose only sample is (re, im).
func pointParams(kind Kind, re, im float64) Params {
	p := DefaultParams()
	p.Kind = kind
	p.Width, p.Height = 1, 1
	p.Range = Range{
		RealMin: xfloat.New(re), RealMax: xfloat.New(re + 1),
		ImagMin: xfloat.New(im - 1), ImagMax: xfloat.New(im),
	}
	return p
}

func sampleAt(p Params) Sample {
	return NewSampler(p).Sample(0, 0)
}

func TestInsideSet(t *testing.T) {
	for _, prec := range []Precision{Standard, Extended} {
		p := pointParams(Mandelbrot, 0, 0)
		p.Precision = prec
		s := sampleAt(p)
		if !s.InSet() || s.Iterations != 1000 || s.Brightness != 1 {
			t.Errorf("%v: c=0 gave %+v", prec, s)
		}
	}
}

func TestOutOfBoundsStart(t *testing.T) {
	for _, prec := range []Precision{Standard, Extended} {
		p := pointParams(Mandelbrot, 5000, 0)
		p.Precision = prec
		s := sampleAt(p)
		if !s.OutOfBounds() || s.Iterations != 0 {
			t.Errorf("%v: c=5000 gave %+v", prec, s)
		}
	}
}

func TestJuliaContinuousValue(t *testing.T) {
	p := pointParams(Julia, 0.3, 0.3)
	p.Julia = Complex{Real: xfloat.New(-0.8), Imag: xfloat.New(0.156)}
	p.Depth = 500

	// plain complex128 iteration
	c := complex(-0.8, 0.156)
	z := complex(0.3, 0.3)
	r2 := p.EscapeRadius * p.EscapeRadius
	n := 0
	for n < p.Depth && real(z)*real(z)+imag(z)*imag(z) < r2 {
		z = z*z + c
		n++
	}
	if n < 1 || n >= p.Depth {
		t.Fatalf("reference orbit did not escape: n = %d", n)
	}
	abs := cmplx.Abs(z)
	want := float64(n) - math.Log2(math.Log2(abs*abs)/2)

	s := sampleAt(p)
	if s.Iterations != n {
		t.Fatalf("iterations = %d, want %d", s.Iterations, n)
	}
	if math.Abs(s.Color-want) > 1e-9*math.Abs(want) {
		t.Errorf("color = %.15g, want %.15g", s.Color, want)
	}
	if s.Brightness != 1 {
		t.Errorf("flat brightness = %v", s.Brightness)
	}
}

func TestExtendedAgreesWithStandard(t *testing.T) {
	p := pointParams(Mandelbrot, 0.5, 0.5)
	std := sampleAt(p)
	p.Precision = Extended
	ext := sampleAt(p)
	if std.Iterations != ext.Iterations {
		t.Fatalf("iterations %d vs %d", std.Iterations, ext.Iterations)
	}
	if math.Abs(std.Color-ext.Color) > 1e-9*math.Abs(std.Color) {
		t.Errorf("color %.15g vs %.15g", std.Color, ext.Color)
	}
}

func TestExtendedResolvesDeepZoom(t *testing.T) {
	p := DefaultParams()
	p.Width, p.Height = 2, 2
	p.Precision = Extended
	re := xfloat.MustParse("-0.743643887037158704752191506114774")
	im := xfloat.MustParse("0.131825904205311970493132056385139")
	eps := xfloat.MustParse("1e-20")
	p.Range = Range{
		RealMin: re.Sub(eps), RealMax: re.Add(eps),
		ImagMin: im.Sub(eps), ImagMax: im.Add(eps),
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("extended range rejected: %v", err)
	}
	p.Precision = Standard
	if err := p.Validate(); err == nil {
		t.Error("range below float64 resolution accepted at standard precision")
	}
}

func TestAngleColorBase(t *testing.T) {
	p := pointParams(Mandelbrot, 0.5, 0.5)
	p.ColorBase = Angle
	s := sampleAt(p)
	if s.InSet() || s.OutOfBounds() {
		t.Fatalf("unexpected classification %+v", s)
	}
	if s.Color <= -math.Pi || s.Color > math.Pi {
		t.Errorf("angle %v outside (-π, π]", s.Color)
	}
}

func TestStripAverageBrightness(t *testing.T) {
	// c = 1000 escapes after two iterations, too early for either average
	p := pointParams(Mandelbrot, 1000, 0)
	p.Brightness = DefaultStripAverage
	if s := sampleAt(p); s.Iterations != 2 || s.Brightness != 0 {
		t.Errorf("short orbit gave %+v, want 2 iterations and brightness 0", s)
	}

	for _, b := range []Brightness{
		DefaultStripAverage,
		StripAverageAlt{FoldChange: 10, Regularity: -0.7, Exponent: 4},
	} {
		p := pointParams(Mandelbrot, 0.5, 0.5)
		p.Brightness = b
		s := sampleAt(p)
		if s.Iterations <= 2 || s.InSet() {
			t.Fatalf("%T: orbit %+v is not a long escape", b, s)
		}
		if math.IsNaN(s.Brightness) || math.IsInf(s.Brightness, 0) {
			t.Errorf("%T: brightness %v", b, s.Brightness)
		}
	}
}

func TestStripAverageInterpolation(t *testing.T) {
	const fold, regularity, exponent = 10.0, -0.7, 4.0
	for _, tc := range []struct {
		brightness Brightness
		term       func(arg float64) float64
	}{
		{
			StripAverage{FoldChange: fold},
			func(arg float64) float64 { return (1 + math.Sin(fold*arg)) / 2 },
		},
		{
			StripAverageAlt{FoldChange: fold, Regularity: regularity, Exponent: exponent},
			func(arg float64) float64 { return 1 / (1 + regularity*math.Pow(math.Sin(fold*arg), exponent)) },
		},
	} {
		p := pointParams(Julia, 0.3, 0.3)
		p.Julia = Complex{Real: xfloat.New(-0.8), Imag: xfloat.New(0.156)}
		p.Depth = 500
		p.Brightness = tc.brightness

		// complex128 orbit; terms start at the third iterate
		c := complex(-0.8, 0.156)
		z := complex(0.3, 0.3)
		r2 := p.EscapeRadius * p.EscapeRadius
		n := 0
		var sum, prevSum float64
		for n < p.Depth && real(z)*real(z)+imag(z)*imag(z) < r2 {
			z = z*z + c
			if n >= 2 {
				prevSum = sum
				sum += tc.term(cmplx.Phase(z))
			}
			n++
		}
		if n <= 3 || n >= p.Depth {
			t.Fatalf("%T: reference orbit too short or bounded: n = %d", tc.brightness, n)
		}
		avg := sum / float64(n-1)
		prev := prevSum / float64(n-2)
		lambda := 1 + math.Log2(math.Log(p.EscapeRadius)/math.Log(cmplx.Abs(z)))
		want := lambda*avg + (1-lambda)*prev

		s := sampleAt(p)
		if s.Iterations != n {
			t.Fatalf("%T: iterations = %d, want %d", tc.brightness, s.Iterations, n)
		}
		if math.Abs(s.Brightness-want) > 1e-9*math.Abs(want) {
			t.Errorf("%T: brightness = %.15g, want %.15g", tc.brightness, s.Brightness, want)
		}
	}
}

func TestSampleMapsCanvasCorners(t *testing.T) {
	p := DefaultParams()
	p.Width, p.Height = 5, 3
	p.Range = Range{
		RealMin: xfloat.New(-2), RealMax: xfloat.New(2),
		ImagMin: xfloat.New(-1), ImagMax: xfloat.New(1),
	}
	k := newKernel(p, standard)
	for _, tc := range []struct {
		x, y   float64
		re, im Float64
	}{
		{0, 0, -2, 1},
		{4, 2, 2, -1},
		{2, 1, 0, 0},
		{1, 0.5, -1, 0.5},
	} {
		re := k.realMin.Add(k.realSpan.Scale(tc.x / k.xDenom))
		im := k.imagMax.Sub(k.imagSpan.Scale(tc.y / k.yDenom))
		if re != tc.re || im != tc.im {
			t.Errorf("pixel (%v,%v) -> (%v,%v), want (%v,%v)", tc.x, tc.y, re, im, tc.re, tc.im)
		}
	}
}

func TestOversamplingOffsets(t *testing.T) {
	for n, want := range map[int][]float64{
		1: {0},
		2: {-0.25, 0.25},
		4: {-0.375, -0.125, 0.125, 0.375},
	} {
		got := OversamplingOffsets(n)
		if len(got) != len(want) {
			t.Fatalf("n=%d: %v", n, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("n=%d: offset %d = %v, want %v", n, i, got[i], want[i])
			}
		}
	}
	three := OversamplingOffsets(3)
	if math.Abs(three[0]+1.0/3) > 1e-15 || three[1] != 0 || math.Abs(three[2]-1.0/3) > 1e-15 {
		t.Errorf("n=3: %v", three)
	}
}

func TestArg(t *testing.T) {
	for _, tc := range []struct {
		re, im, want float64
	}{
		{1, 0, 0},
		{1, 1, math.Pi / 4},
		{0, 1, math.Pi / 2},
		{0, -1, -math.Pi / 2},
		{0, 0, -math.Pi / 2},
		{-1, 0, math.Pi},
		{-1, 1, 3 * math.Pi / 4},
		{-1, -1, -3 * math.Pi / 4},
	} {
		if got := Arg(tc.re, tc.im); math.Abs(got-tc.want) > 1e-15 {
			t.Errorf("Arg(%v, %v) = %v, want %v", tc.re, tc.im, got, tc.want)
		}
	}
}
