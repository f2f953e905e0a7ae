package xfloat

import (
	"math"
	"testing"
)

func TestParseKeepsDigitsBeyondFloat64(t *testing.T) {
	a := MustParse("0.1000000000000000000000001")
	b := MustParse("0.1")
	if a.Hi != b.Hi {
		t.Fatalf("hi parts differ: %v vs %v", a.Hi, b.Hi)
	}
	if a.Cmp(b) <= 0 {
		t.Errorf("expected %v > %v", a, b)
	}
	d := a.Sub(b).Float64()
	if math.Abs(d-1e-25) > 1e-31 {
		t.Errorf("difference = %g, want 1e-25", d)
	}
}

func TestStringRoundTrip(t *testing.T) {
	for _, s := range []string{"-2.2", "0.7", "-0.743643887037158704752191506114774", "1e-30", "0"} {
		d := MustParse(s)
		back, err := Parse(d.String())
		if err != nil {
			t.Fatalf("Parse(%q): %v", d.String(), err)
		}
		if back != d {
			t.Errorf("%q: round trip %v -> %v", s, d, back)
		}
	}
}

func TestArithmeticMatchesFloat64ForExactValues(t *testing.T) {
	a, b := New(1.5), New(-0.25)
	if got := a.Add(b).Float64(); got != 1.25 {
		t.Errorf("Add = %v", got)
	}
	if got := a.Sub(b).Float64(); got != 1.75 {
		t.Errorf("Sub = %v", got)
	}
	if got := a.Mul(b).Float64(); got != -0.375 {
		t.Errorf("Mul = %v", got)
	}
	if got := a.Scale(2).Float64(); got != 3 {
		t.Errorf("Scale = %v", got)
	}
}

func TestMulCarriesLowBits(t *testing.T) {
	// (1 + 2^-60)^2 = 1 + 2^-59 + 2^-120; float64 alone drops everything past 1.
	x := New(1).Add(New(math.Ldexp(1, -60)))
	sq := x.Mul(x)
	if sq.Hi != 1 {
		t.Fatalf("hi = %v, want 1", sq.Hi)
	}
	if sq.Lo != math.Ldexp(1, -59) {
		t.Errorf("lo = %g, want %g", sq.Lo, math.Ldexp(1, -59))
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse("one point five"); err == nil {
		t.Error("expected error")
	}
}

func TestTextMarshaling(t *testing.T) {
	var d DD
	if err := d.UnmarshalText([]byte("  -1.3 ")); err != nil {
		t.Fatal(err)
	}
	b, _ := d.MarshalText()
	if string(b) != "-1.3" {
		t.Errorf("MarshalText = %q", b)
	}
}

func TestStringOfRoundedFloat64(t *testing.T) {
	// New(-0.8) is the binary value nearest -0.8, not -0.8 itself.
	d := New(-0.8)
	back, err := Parse(d.String())
	if err != nil {
		t.Fatal(err)
	}
	if back != d {
		t.Errorf("%v round trips to %+v, want %+v", d, back, d)
	}
	if s := New(0.5).String(); s != "0.5" {
		t.Errorf("New(0.5) = %q", s)
	}
}
