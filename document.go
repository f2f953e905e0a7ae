package fractal

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/marben/fractile/internal/xfloat"
)

// Document is the flat, human-readable form of Params. Range bounds and the
// Julia constant are decimal strings so extended precision survives a round trip.
type Document struct {
	Name      string `json:"name"`
	Kind      string `json:"fractal_type"`
	Precision string `json:"precision"`

	RealMin string `json:"real_min"`
	RealMax string `json:"real_max"`
	ImagMin string `json:"imag_min"`
	ImagMax string `json:"imag_max"`

	Depth        int     `json:"depth"`
	EscapeRadius float64 `json:"escape_radius"`
	Oversampling int     `json:"oversampling"`

	JuliaReal string `json:"julia_real,omitempty"`
	JuliaImag string `json:"julia_imag,omitempty"`

	ColorBase string  `json:"color_base_value"`
	Mapping   string  `json:"color_mapping_method"`
	Scheme    string  `json:"color_scheme,omitempty"`
	Colors    []Wave  `json:"colors,omitempty"`
	Factor    float64 `json:"color_factor,omitempty"`
	Offset    float64 `json:"color_offset,omitempty"`

	Brightness       string   `json:"brightness_value"`
	FoldChange       *float64 `json:"brightness_fold_change,omitempty"`
	Regularity       *float64 `json:"brightness_regularity,omitempty"`
	Exponent         *float64 `json:"brightness_exponent,omitempty"`
	BrightnessFactor *float64 `json:"brightness_factor,omitempty"`
	BrightnessOffset *float64 `json:"brightness_offset,omitempty"`
	MinBrightness    *float64 `json:"brightness_min_brightness,omitempty"`

	Width  int `json:"width"`
	Height int `json:"height"`

	StorageDirectory string `json:"storage_directory,omitempty"`
	SavePicture      bool   `json:"save_picture"`
	SaveCacheDisk    bool   `json:"save_cache_on_disk"`
	SaveCacheMemory  bool   `json:"save_cache_in_memory"`
	SaveStatistics   bool   `json:"save_statistics"`
}

// Document returns the serializable form of p.
func (p Params) Document() Document {
	d := Document{
		Name:             p.Name,
		Kind:             p.Kind.String(),
		Precision:        p.Precision.String(),
		RealMin:          p.Range.RealMin.String(),
		RealMax:          p.Range.RealMax.String(),
		ImagMin:          p.Range.ImagMin.String(),
		ImagMax:          p.Range.ImagMax.String(),
		Depth:            p.Depth,
		EscapeRadius:     p.EscapeRadius,
		Oversampling:     p.Oversampling,
		ColorBase:        p.ColorBase.String(),
		Width:            p.Width,
		Height:           p.Height,
		StorageDirectory: p.Storage.Directory,
		SavePicture:      p.Storage.SavePicture,
		SaveCacheDisk:    p.Storage.SaveCacheDisk,
		SaveCacheMemory:  p.Storage.SaveCacheMemory,
		SaveStatistics:   p.Storage.SaveStatistics,
	}
	if p.Kind == Julia {
		d.JuliaReal = p.Julia.Real.String()
		d.JuliaImag = p.Julia.Imag.String()
	}

	switch m := p.Mapping.(type) {
	case Periodic:
		d.Mapping = "periodic"
		switch s := m.Scheme.(type) {
		case ColorScheme:
			d.Scheme = "color"
			d.Colors = []Wave{s.Red, s.Green, s.Blue}
		case GreyScheme:
			d.Scheme = "greyscale"
			d.Factor, d.Offset = s.Factor, s.Offset
		}
	case Ramp:
		d.Mapping = "ramp"
		d.Factor, d.Offset = m.Factor, m.Offset
	}

	d.Brightness = brightnessMode(p.Brightness)
	shape := func(s Shape) {
		d.BrightnessFactor, d.BrightnessOffset, d.MinBrightness = &s.Factor, &s.Offset, &s.MinBrightness
	}
	switch b := p.Brightness.(type) {
	case StripAverage:
		d.FoldChange = &b.FoldChange
		shape(b.Shape)
	case StripAverageAlt:
		d.FoldChange, d.Regularity, d.Exponent = &b.FoldChange, &b.Regularity, &b.Exponent
		shape(b.Shape)
	}
	return d
}

func orDefault(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

// Params converts d back into render parameters. Missing brightness
// sub-parameters take the values of DefaultStripAverage. The result is not
// validated.
func (d Document) Params() (Params, error) {
	p := Params{
		Name:         d.Name,
		Depth:        d.Depth,
		EscapeRadius: d.EscapeRadius,
		Oversampling: d.Oversampling,
		Width:        d.Width,
		Height:       d.Height,
		Storage: Storage{
			Directory:       d.StorageDirectory,
			SavePicture:     d.SavePicture,
			SaveCacheDisk:   d.SaveCacheDisk,
			SaveCacheMemory: d.SaveCacheMemory,
			SaveStatistics:  d.SaveStatistics,
		},
	}

	switch d.Kind {
	case "mandel", "mandelbrot", "":
		p.Kind = Mandelbrot
	case "julia":
		p.Kind = Julia
	default:
		return Params{}, fmt.Errorf("unknown fractal type %q", d.Kind)
	}

	switch d.Precision {
	case "double", "standard", "":
		p.Precision = Standard
	case "extended", "long double":
		p.Precision = Extended
	default:
		return Params{}, fmt.Errorf("unknown precision %q", d.Precision)
	}

	def := DefaultRange(p.Kind)
	bounds := []struct {
		s   string
		dst *xfloat.DD
		def xfloat.DD
	}{
		{d.RealMin, &p.Range.RealMin, def.RealMin},
		{d.RealMax, &p.Range.RealMax, def.RealMax},
		{d.ImagMin, &p.Range.ImagMin, def.ImagMin},
		{d.ImagMax, &p.Range.ImagMax, def.ImagMax},
		{d.JuliaReal, &p.Julia.Real, xfloat.DD{}},
		{d.JuliaImag, &p.Julia.Imag, xfloat.DD{}},
	}
	for _, b := range bounds {
		if b.s == "" {
			*b.dst = b.def
			continue
		}
		v, err := xfloat.Parse(b.s)
		if err != nil {
			return Params{}, err
		}
		*b.dst = v
	}

	switch d.ColorBase {
	case "continuous", "":
		p.ColorBase = Continuous
	case "angle":
		p.ColorBase = Angle
	default:
		return Params{}, fmt.Errorf("unknown color base value %q", d.ColorBase)
	}

	switch d.Mapping {
	case "periodic", "":
		switch d.Scheme {
		case "color", "":
			if len(d.Colors) != 3 {
				return Params{}, fmt.Errorf("periodic color scheme needs 3 waves, got %d", len(d.Colors))
			}
			p.Mapping = Periodic{Scheme: ColorScheme{Red: d.Colors[0], Green: d.Colors[1], Blue: d.Colors[2]}}
		case "greyscale":
			p.Mapping = Periodic{Scheme: GreyScheme{Wave{Factor: d.Factor, Offset: d.Offset}}}
		default:
			return Params{}, fmt.Errorf("unknown color scheme %q", d.Scheme)
		}
	case "ramp":
		p.Mapping = Ramp{Factor: d.Factor, Offset: d.Offset}
	default:
		return Params{}, fmt.Errorf("unknown color mapping method %q", d.Mapping)
	}

	sa := DefaultStripAverage
	shape := Shape{
		Factor:        orDefault(d.BrightnessFactor, sa.Factor),
		Offset:        orDefault(d.BrightnessOffset, sa.Offset),
		MinBrightness: orDefault(d.MinBrightness, sa.MinBrightness),
	}
	switch d.Brightness {
	case "flat", "":
		p.Brightness = Flat{}
	case "strip average":
		p.Brightness = StripAverage{FoldChange: orDefault(d.FoldChange, sa.FoldChange), Shape: shape}
	case "strip average alt":
		p.Brightness = StripAverageAlt{
			FoldChange: orDefault(d.FoldChange, sa.FoldChange),
			Regularity: orDefault(d.Regularity, -0.7),
			Exponent:   orDefault(d.Exponent, 4),
			Shape:      shape,
		}
	default:
		return Params{}, fmt.Errorf("unknown brightness value %q", d.Brightness)
	}
	return p, nil
}

// LoadParams decodes a JSON parameter document.
func LoadParams(r io.Reader) (Params, error) {
	var d Document
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return Params{}, fmt.Errorf("decode params: %w", err)
	}
	return d.Params()
}

// WriteParams encodes p as an indented JSON document.
func WriteParams(w io.Writer, p Params) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p.Document()); err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	return nil
}
