// Package xfloat implements a double-double floating point type.
//
// A DD holds an unevaluated sum hi+lo of two float64 values with |lo| <= ulp(hi)/2,
// which gives roughly 106 bits of mantissa. It is the extended width used for deep
// zooms where float64 coordinates collapse into the same value.
package xfloat

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// DD is a double-double value. The zero value is 0.
type DD struct {
	Hi, Lo float64
}

// parsePrec is enough bits to round-trip any DD through big.Float.
const parsePrec = 256

// New returns the DD exactly equal to f.
func New(f float64) DD {
	return DD{Hi: f}
}

// twoSum returns s, e with s+e == a+b exactly.
func twoSum(a, b float64) (s, e float64) {
	s = a + b
	bb := s - a
	e = (a - (s - bb)) + (b - bb)
	return s, e
}

// quickTwoSum requires |a| >= |b|.
func quickTwoSum(a, b float64) (s, e float64) {
	s = a + b
	e = b - (s - a)
	return s, e
}

// twoProd returns p, e with p+e == a*b exactly.
func twoProd(a, b float64) (p, e float64) {
	p = a * b
	e = math.FMA(a, b, -p)
	return p, e
}

func (a DD) Add(b DD) DD {
	s, e := twoSum(a.Hi, b.Hi)
	t, f := twoSum(a.Lo, b.Lo)
	e += t
	s, e = quickTwoSum(s, e)
	e += f
	s, e = quickTwoSum(s, e)
	return DD{Hi: s, Lo: e}
}

func (a DD) Neg() DD {
	return DD{Hi: -a.Hi, Lo: -a.Lo}
}

func (a DD) Sub(b DD) DD {
	return a.Add(b.Neg())
}

func (a DD) Mul(b DD) DD {
	p, e := twoProd(a.Hi, b.Hi)
	e += a.Hi*b.Lo + a.Lo*b.Hi
	p, e = quickTwoSum(p, e)
	return DD{Hi: p, Lo: e}
}

// Scale multiplies a by the float64 f.
func (a DD) Scale(f float64) DD {
	p, e := twoProd(a.Hi, f)
	e += a.Lo * f
	p, e = quickTwoSum(p, e)
	return DD{Hi: p, Lo: e}
}

// Float64 returns the nearest float64.
func (a DD) Float64() float64 {
	return a.Hi + a.Lo
}

// Cmp compares a and b and returns -1, 0 or +1.
func (a DD) Cmp(b DD) int {
	switch {
	case a.Hi < b.Hi:
		return -1
	case a.Hi > b.Hi:
		return 1
	case a.Lo < b.Lo:
		return -1
	case a.Lo > b.Lo:
		return 1
	}
	return 0
}

func (a DD) IsFinite() bool {
	return !math.IsInf(a.Hi, 0) && !math.IsNaN(a.Hi) && !math.IsInf(a.Lo, 0) && !math.IsNaN(a.Lo)
}

// Big returns a as an exact big.Float.
func (a DD) Big() *big.Float {
	f := new(big.Float).SetPrec(parsePrec).SetFloat64(a.Hi)
	return f.Add(f, new(big.Float).SetPrec(parsePrec).SetFloat64(a.Lo))
}

// FromBig rounds f to the nearest DD.
func FromBig(f *big.Float) DD {
	hi, _ := f.Float64()
	if math.IsInf(hi, 0) {
		return DD{Hi: hi}
	}
	rem := new(big.Float).SetPrec(parsePrec).Sub(f, new(big.Float).SetFloat64(hi))
	lo, _ := rem.Float64()
	hi, lo = quickTwoSum(hi, lo)
	return DD{Hi: hi, Lo: lo}
}

// Parse reads a decimal or hexadecimal floating point string.
func Parse(s string) (DD, error) {
	s = strings.TrimSpace(s)
	f, _, err := big.ParseFloat(s, 0, parsePrec, big.ToNearestEven)
	if err != nil {
		return DD{}, fmt.Errorf("xfloat: parse %q: %w", s, err)
	}
	return FromBig(f), nil
}

// MustParse is Parse for constants; it panics on malformed input.
func MustParse(s string) DD {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// String formats a with the fewest digits that parse back to the same value.
func (a DD) String() string {
	if a.Lo == 0 {
		if s := strconv.FormatFloat(a.Hi, 'g', -1, 64); parsesTo(s, a) {
			return s
		}
	}
	b := a.Big()
	for digits := 17; digits <= 60; digits++ {
		if s := b.Text('g', digits); parsesTo(s, a) {
			return s
		}
	}
	return b.Text('g', -1)
}

func parsesTo(s string, a DD) bool {
	back, err := Parse(s)
	return err == nil && back == a
}

// MarshalText implements encoding.TextMarshaler.
func (a DD) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *DD) UnmarshalText(b []byte) error {
	d, err := Parse(string(b))
	if err != nil {
		return err
	}
	*a = d
	return nil
}
