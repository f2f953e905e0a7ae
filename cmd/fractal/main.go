// fractal renders one image from the command line and writes it as PNG.
package main

import (
	"context"
	"fmt"
	"image/png"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/alexflint/go-arg"
	"github.com/pkg/profile"

	fractal "github.com/marben/fractile"
	"github.com/marben/fractile/cache"
	"github.com/marben/fractile/render"
)

type cli struct {
	Params string `arg:"--params" help:"JSON parameter document to start from"`
	Region string `arg:"--region" help:"named Mandelbrot region, see --list-regions"`

	Kind         *string  `arg:"--kind" help:"mandel or julia"`
	Precision    *string  `arg:"--precision" help:"double or extended"`
	RealMin      *string  `arg:"--real-min"`
	RealMax      *string  `arg:"--real-max"`
	ImagMin      *string  `arg:"--imag-min"`
	ImagMax      *string  `arg:"--imag-max"`
	Depth        *int     `arg:"-d,--depth" help:"maximum number of iterations"`
	EscapeRadius *float64 `arg:"--escape-radius"`
	Oversampling *int     `arg:"-s,--oversampling" help:"samples per pixel edge, 1 to 5"`
	JuliaReal    *string  `arg:"--julia-real"`
	JuliaImag    *string  `arg:"--julia-imag"`
	ColorBase    *string  `arg:"--color-base" help:"continuous or angle"`
	Brightness   *string  `arg:"--brightness" help:"flat, \"strip average\" or \"strip average alt\""`
	Width        *int     `arg:"-W,--width"`
	Height       *int     `arg:"-H,--height"`
	Name         *string  `arg:"--name" help:"name used for files under --dir"`

	Dir        string `arg:"--dir" help:"storage directory for the disk cache, picture and statistics"`
	DiskCache  bool   `arg:"--disk-cache" help:"keep raw values on disk under --dir"`
	Statistics bool   `arg:"--statistics" help:"save statistics and parameters under --dir"`

	Out      string `arg:"-o,--out" default:"fractal.png" help:"output PNG, empty to skip"`
	Workers  int    `arg:"-j,--workers" help:"tiles rendered concurrently [default: processors-1]"`
	TileSize int    `arg:"--tile-size" default:"100"`

	Verbose     bool   `arg:"-v,--verbose"`
	Profile     string `arg:"--profile" help:"write a CPU profile into this directory"`
	ListRegions bool   `arg:"--list-regions"`
}

func (cli) Description() string {
	return "Renders a Mandelbrot or Julia set to a PNG file."
}

func main() {
	var args cli
	arg.MustParse(&args)
	if err := run(args); err != nil {
		log.Fatalf("run: %v", err)
	}
}

func run(args cli) error {
	if args.ListRegions {
		fmt.Println(strings.Join(fractal.RegionNames(), "\n"))
		return nil
	}
	if args.Profile != "" {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(args.Profile), profile.NoShutdownHook).Stop()
	}

	level := slog.LevelInfo
	if args.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	p, err := args.params()
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}

	store, err := cache.New(cache.WithLogger(logger))
	if err != nil {
		return err
	}
	defer store.Close()

	eng := render.New(store,
		render.WithWorkers(args.Workers),
		render.WithTileSize(args.TileSize),
		render.WithLogger(logger),
		render.WithObserver(fractal.ObserverFuncs{
			OnProgress: func(s fractal.Snapshot) {
				logger.Info("progress",
					"percent", fmt.Sprintf("%.1f", s.Statistics.PercentComplete(p)),
					"tiles", fmt.Sprintf("%d/%d", s.TilesDone, s.TilesTotal))
			},
		}),
	)
	defer eng.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := eng.Start(p); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	select {
	case <-eng.Done():
	case <-ctx.Done():
		logger.Warn("interrupted, finishing tiles in flight")
		eng.Stop()
		<-eng.Done()
	}

	s := eng.Statistics()
	logger.Info("done",
		"status", eng.Status(),
		"elapsed", s.FinishTime.Sub(s.StartTime),
		"in_set", s.PointsInSet,
		"iterations", s.TotalIterations)

	if args.Out == "" {
		return nil
	}
	return writePNG(args.Out, eng)
}

func writePNG(path string, eng *render.Engine) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := png.Encode(f, eng.Canvas()); err != nil {
		f.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	return f.Close()
}

// params layers the flags over the parameter file, or the defaults.
func (a cli) params() (fractal.Params, error) {
	p := fractal.DefaultParams()
	if a.Params != "" {
		f, err := os.Open(a.Params)
		if err != nil {
			return p, err
		}
		defer f.Close()
		if p, err = fractal.LoadParams(f); err != nil {
			return p, fmt.Errorf("%s: %w", a.Params, err)
		}
	}

	d := p.Document()
	if a.Kind != nil && *a.Kind != d.Kind {
		// empty bounds select the default view of the new kind
		d.RealMin, d.RealMax, d.ImagMin, d.ImagMax = "", "", "", ""
	}
	if a.Region != "" {
		r, ok := fractal.LookupRegion(a.Region)
		if !ok {
			return p, fmt.Errorf("unknown region %q, known: %s", a.Region, strings.Join(fractal.RegionNames(), ", "))
		}
		d.RealMin, d.RealMax = r.RealMin.String(), r.RealMax.String()
		d.ImagMin, d.ImagMax = r.ImagMin.String(), r.ImagMax.String()
	}
	set(&d.Kind, a.Kind)
	set(&d.Precision, a.Precision)
	set(&d.RealMin, a.RealMin)
	set(&d.RealMax, a.RealMax)
	set(&d.ImagMin, a.ImagMin)
	set(&d.ImagMax, a.ImagMax)
	set(&d.Depth, a.Depth)
	set(&d.EscapeRadius, a.EscapeRadius)
	set(&d.Oversampling, a.Oversampling)
	set(&d.JuliaReal, a.JuliaReal)
	set(&d.JuliaImag, a.JuliaImag)
	set(&d.ColorBase, a.ColorBase)
	set(&d.Brightness, a.Brightness)
	set(&d.Width, a.Width)
	set(&d.Height, a.Height)
	set(&d.Name, a.Name)
	if a.Dir != "" {
		d.StorageDirectory = a.Dir
	}
	d.SaveCacheDisk = d.SaveCacheDisk || a.DiskCache
	d.SaveStatistics = d.SaveStatistics || a.Statistics
	return d.Params()
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
