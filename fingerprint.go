package fractal

import (
	"encoding/binary"
	"hash/fnv"
	"math"

	"github.com/marben/fractile/internal/xfloat"
)

// Fingerprint identifies the parameters raw cache values were computed under.
// Values covers everything except brightness; Brightness covers the brightness
// mode and its orbit parameters. Both are FNV-64a hashes.
type Fingerprint struct {
	Values     uint64
	Brightness uint64
}

// Accepts reports whether raw values stamped with stored can be colored under p.
// Flat brightness ignores stored brightness values, so any brightness hash is fine.
func (f Fingerprint) Accepts(stored Fingerprint, p Params) bool {
	if f.Values != stored.Values {
		return false
	}
	if _, flat := p.Brightness.(Flat); flat {
		return true
	}
	return f.Brightness == stored.Brightness
}

type hashWriter struct {
	buf [8]byte
	sum interface {
		Write([]byte) (int, error)
		Sum64() uint64
	}
}

func (h *hashWriter) u64(v uint64) {
	binary.LittleEndian.PutUint64(h.buf[:], v)
	_, _ = h.sum.Write(h.buf[:]) // fnv never fails
}

func (h *hashWriter) f64(v float64) { h.u64(math.Float64bits(v)) }
func (h *hashWriter) num(v int)     { h.u64(uint64(int64(v))) }

func (h *hashWriter) dd(p Params, v xfloat.DD) {
	h.f64(v.Hi)
	if p.Precision == Extended {
		h.f64(v.Lo)
	}
}

// Fingerprint hashes exactly the parameters that InvalidatesCache compares.
func (p Params) Fingerprint() Fingerprint {
	v := &hashWriter{sum: fnv.New64a()}
	v.num(int(p.Precision))
	v.num(int(p.Kind))
	v.num(p.Depth)
	v.f64(p.EscapeRadius)
	v.num(p.Oversampling)
	v.num(int(p.ColorBase))
	v.num(p.Width)
	v.num(p.Height)
	for _, d := range []xfloat.DD{p.Range.RealMin, p.Range.RealMax, p.Range.ImagMin, p.Range.ImagMax, p.Julia.Real, p.Julia.Imag} {
		v.dd(p, d)
	}

	b := &hashWriter{sum: fnv.New64a()}
	_, _ = b.sum.Write([]byte(brightnessMode(p.Brightness)))
	fold, reg, exp := brightnessRaw(p.Brightness)
	b.f64(fold)
	b.f64(reg)
	b.f64(exp)

	return Fingerprint{Values: v.sum.Sum64(), Brightness: b.sum.Sum64()}
}
