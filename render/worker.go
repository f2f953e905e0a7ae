package render

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io/fs"
	"log/slog"
	"time"

	fractal "github.com/marben/fractile"
	"github.com/marben/fractile/cache"
)

// tileJob is everything a worker needs for one tile. Workers never touch the
// engine or another tile's state.
type tileJob struct {
	id      int
	rect    image.Rectangle
	params  fractal.Params
	sampler fractal.Sampler
	mapper  fractal.Mapper
	// preset holds values from the memory tier; nil means compute or load.
	preset *cache.Samples
	// disk is nil unless the disk tier is enabled.
	disk *cache.TileHandle
}

type tileResult struct {
	id      int
	rect    image.Rectangle
	img     *image.RGBA
	samples *cache.Samples
	stats   fractal.Statistics
	// computed is false when the raw values came from a cache tier.
	computed bool
}

// renderTile renders one tile. Raw values come from the preset, the disk tile,
// or the kernel, in that order; cache failures only cost a recomputation.
func renderTile(log *slog.Logger, job tileJob, now func() time.Time) tileResult {
	start := now()
	ctx := context.Background()
	attrs := []slog.Attr{slog.Int("tile", job.id)}

	samples := job.preset
	if samples == nil && job.disk != nil {
		loaded, err := job.disk.Load()
		switch {
		case err == nil:
			log.LogAttrs(ctx, slog.LevelDebug, "disk cache hit", attrs...)
			samples = loaded
		case errors.Is(err, fs.ErrNotExist):
			log.LogAttrs(ctx, slog.LevelDebug, "disk cache miss", attrs...)
		default:
			log.LogAttrs(ctx, slog.LevelWarn, "disk cache unusable, recomputing", append(attrs, slog.Any("err", err))...)
		}
	}

	n := job.params.Oversampling
	count := job.rect.Dx() * job.rect.Dy() * n * n
	if samples != nil && samples.Len() != count {
		log.LogAttrs(ctx, slog.LevelWarn, "cached tile has wrong size, recomputing",
			append(attrs, slog.Int("have", samples.Len()), slog.Int("want", count))...)
		samples = nil
	}

	computed := samples == nil
	if computed {
		samples = cache.NewSamples(count)
	}

	stats := fractal.NewStatistics()
	averaging := fractal.Averaging(job.params.Brightness)
	offsets := fractal.OversamplingOffsets(n)
	img := image.NewRGBA(job.rect)
	tileW := job.rect.Dx()
	norm := n * n

	for py := job.rect.Min.Y; py < job.rect.Max.Y; py++ {
		for px := job.rect.Min.X; px < job.rect.Max.X; px++ {
			var r, g, b int
			for sy, dy := range offsets {
				for sx, dx := range offsets {
					i := cache.Index(px-job.rect.Min.X, py-job.rect.Min.Y, sx, sy, tileW, n)
					var s fractal.Sample
					if computed {
						s = job.sampler.Sample(float64(px)+dx, float64(py)+dy)
						samples.Color[i], samples.Brightness[i] = s.Color, s.Brightness
					} else {
						s = fractal.Sample{Color: samples.Color[i], Brightness: samples.Brightness[i]}
					}
					stats.Record(s, computed, averaging)

					c := job.mapper.Map(s.Color, s.Brightness)
					r += int(c.R)
					g += int(c.G)
					b += int(c.B)
				}
			}
			img.SetRGBA(px, py, color.RGBA{R: uint8(r / norm), G: uint8(g / norm), B: uint8(b / norm), A: 255})
		}
	}

	// Save is skip-if-exists, so tiles taken from memory reach the disk tier
	// when it was enabled after they were computed.
	if job.disk != nil {
		wrote, err := job.disk.Save(samples)
		switch {
		case err != nil:
			log.LogAttrs(ctx, slog.LevelWarn, "cannot save tile to disk cache", append(attrs, slog.Any("err", err))...)
		case wrote:
			log.LogAttrs(ctx, slog.LevelDebug, "tile saved to disk cache", attrs...)
		}
	}

	stats.ProcessingTime = now().Sub(start)
	return tileResult{id: job.id, rect: job.rect, img: img, samples: samples, stats: stats, computed: computed}
}
