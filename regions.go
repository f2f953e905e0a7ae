package fractal

import (
	"sort"
	"strings"

	"github.com/marben/fractile/internal/xfloat"
)

func region(realMin, realMax, imagMin, imagMax string) Range {
	return Range{
		RealMin: xfloat.MustParse(realMin),
		RealMax: xfloat.MustParse(realMax),
		ImagMin: xfloat.MustParse(imagMin),
		ImagMax: xfloat.MustParse(imagMax),
	}
}

// Well known views of the Mandelbrot set.
var (
	// seahorse curls between the main cardioid and the period-2 bulb
	SeahorseValley = region("-0.8", "-0.7", "0.05", "0.15")

	// trunk-like tendrils right of the cardioid
	ElephantValley = region("0.25", "0.35", "-0.05", "0.05")

	SpiralMinibrot = region("-0.7435", "-0.7420", "0.1310", "0.1325")

	TripleSpiral = region("-0.7480", "-0.7450", "0.0950", "0.0980")

	ValleyOfTheDragon = region("-0.7400", "-0.7350", "0.1800", "0.1850")

	// a small copy of the set inside a spiral arm on the real axis
	MinibrotInMiniSpiral = region("-1.7390", "-1.7375", "-0.0235", "-0.0220")
)

// Regions maps the names accepted by LookupRegion to their ranges.
var Regions = map[string]Range{
	"full":                    DefaultRange(Mandelbrot),
	"seahorse-valley":         SeahorseValley,
	"elephant-valley":         ElephantValley,
	"spiral-minibrot":         SpiralMinibrot,
	"triple-spiral":           TripleSpiral,
	"valley-of-the-dragon":    ValleyOfTheDragon,
	"minibrot-in-mini-spiral": MinibrotInMiniSpiral,
}

// LookupRegion finds a named region, ignoring case.
func LookupRegion(name string) (Range, bool) {
	r, ok := Regions[strings.ToLower(name)]
	return r, ok
}

// RegionNames lists the known regions in alphabetical order.
func RegionNames() []string {
	names := make([]string, 0, len(Regions))
	for n := range Regions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
