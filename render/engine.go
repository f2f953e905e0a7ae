// Package render splits a canvas into tiles and renders them on a bounded
// worker pool, keeping raw values in a cache.Store between passes.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	fractal "github.com/marben/fractile"
	"github.com/marben/fractile/cache"
	"golang.org/x/image/draw"
)

var (
	// ErrBusy is returned by Start while a pass is running.
	ErrBusy = errors.New("render in progress")
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("engine closed")
	// ErrNoRawData is returned by RawValueAt when the pixel's tile is not in memory.
	ErrNoRawData = errors.New("no raw data for pixel")
	// ErrOutOfRange is returned by RawValueAt for a pixel outside the canvas.
	ErrOutOfRange = errors.New("pixel out of range")
)

// PlaceholderColor fills the canvas where no tile has been composited yet.
var PlaceholderColor = color.RGBA{R: 192, G: 192, B: 192, A: 255}

// DefaultUpdateInterval is the minimum time between two progress notifications.
const DefaultUpdateInterval = 500 * time.Millisecond

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers sets the number of tiles rendered concurrently.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithTileSize sets the tile edge length in pixels.
func WithTileSize(size int) Option {
	return func(e *Engine) {
		if size > 0 {
			e.tileSize = size
		}
	}
}

// WithObserver sets the receiver of render notifications.
func WithObserver(o fractal.Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithLogger sets the engine logger. Logging is discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithUpdateInterval sets the progress notification throttle. Zero reports
// every finished tile.
func WithUpdateInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.interval = d
		}
	}
}

// WithClock replaces time.Now for timestamps and throttling.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// DefaultWorkers leaves one processor to the caller.
func DefaultWorkers() int {
	return max(runtime.GOMAXPROCS(0)-1, 1)
}

// Engine renders one parameter set at a time into its canvas.
type Engine struct {
	log      *slog.Logger
	store    *cache.Store
	observer fractal.Observer
	workers  int
	tileSize int
	interval time.Duration
	now      func() time.Time

	pool *workerPool
	stop atomic.Bool

	// mu guards everything below.
	mu         sync.Mutex
	status     fractal.Status
	closed     bool
	params     *fractal.Params
	grid       *Grid
	canvas     *image.RGBA
	stats      fractal.Statistics
	// spent holds the statistics of every tile computed since the last
	// invalidation, so cached passes still report iterations and depth.
	spent      map[int]fractal.Statistics
	done       chan struct{}
	tilesDone  int
	dispatched int
	inFlight   int
}

// New creates an idle engine that keeps raw values in store.
func New(store *cache.Store, opts ...Option) *Engine {
	e := &Engine{
		log:      slog.New(slog.DiscardHandler),
		store:    store,
		observer: fractal.ObserverFuncs{},
		workers:  DefaultWorkers(),
		tileSize: DefaultTileSize,
		interval: DefaultUpdateInterval,
		now:      time.Now,
		stats:    fractal.NewStatistics(),
		spent:    make(map[int]fractal.Statistics),
	}
	for _, o := range opts {
		o(e)
	}
	e.pool = newWorkerPool(e.workers)
	e.done = make(chan struct{})
	close(e.done)
	return e
}

// pass is the immutable part of one render pass.
type pass struct {
	params  fractal.Params
	grid    Grid
	sampler fractal.Sampler
	mapper  fractal.Mapper
}

// Start begins rendering p. Invalid parameters are rejected before anything
// changes. Values cached for the previous parameters are discarded only if p
// differs from them in a way that changes raw values.
func (e *Engine) Start(p fractal.Params) error {
	if err := p.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.status == fractal.Working {
		return ErrBusy
	}

	if e.params != nil && e.params.InvalidatesCache(p) {
		removed, err := e.store.Invalidate(p)
		if err != nil {
			e.log.Warn("cannot clear disk cache", "err", err)
		}
		e.log.Info("cache invalidated", "name", p.Name, "files", removed)
		e.canvas = nil
		e.grid = nil
		clear(e.spent)
	}
	if e.grid == nil {
		g := NewGrid(p.Width, p.Height, e.tileSize)
		e.grid = &g
	}
	if e.canvas == nil {
		e.canvas = image.NewRGBA(e.grid.Bounds)
		draw.Draw(e.canvas, e.canvas.Bounds(), image.NewUniform(PlaceholderColor), image.Point{}, draw.Src)
	}

	e.params = &p
	e.stats = fractal.NewStatistics()
	e.stats.StartTime = e.now()
	e.status = fractal.Working
	e.tilesDone, e.dispatched, e.inFlight = 0, 0, 0
	e.done = make(chan struct{})
	e.stop.Store(false)

	ps := &pass{
		params:  p,
		grid:    *e.grid,
		sampler: fractal.NewSampler(p),
		mapper:  fractal.NewMapper(p),
	}
	e.log.Info("render started", "name", p.Name, "width", p.Width, "height", p.Height,
		"tiles", len(ps.grid.Tiles), "workers", e.workers)
	go e.run(ps, e.done)
	return nil
}

// run is the coordinator. It is the only goroutine that dispatches tiles or
// calls the observer during a pass.
func (e *Engine) run(ps *pass, done chan struct{}) {
	defer close(done)

	results := make(chan tileResult, e.workers)
	next, inFlight := 0, 0

	dispatch := func() {
		for inFlight < e.workers && next < len(ps.grid.Tiles) && !e.stop.Load() {
			job := e.job(ps, next)
			if !e.pool.submit(func() { results <- renderTile(e.log, job, e.now) }) {
				return
			}
			next++
			inFlight++
			e.mu.Lock()
			e.dispatched, e.inFlight = next, inFlight
			e.mu.Unlock()
		}
	}

	e.observer.Started(e.Snapshot())
	e.observer.Progress(e.Snapshot())
	lastUpdate := e.now()

	dispatch()
	for inFlight > 0 {
		res := <-results
		inFlight--
		e.composite(ps, res, inFlight)

		if now := e.now(); now.Sub(lastUpdate) >= e.interval {
			lastUpdate = now
			e.observer.Progress(e.Snapshot())
		}
		dispatch()
	}

	e.finish(ps)
}

func (e *Engine) job(ps *pass, id int) tileJob {
	job := tileJob{
		id:      id,
		rect:    ps.grid.Tiles[id],
		params:  ps.params,
		sampler: ps.sampler,
		mapper:  ps.mapper,
	}
	if s, ok := e.store.Get(id); ok {
		job.preset = s
	}
	if ps.params.Storage.SaveCacheDisk {
		job.disk = e.store.Tile(ps.params, id, job.rect)
	}
	return job
}

func (e *Engine) composite(ps *pass, res tileResult, inFlight int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	draw.Draw(e.canvas, res.rect, res.img, res.rect.Min, draw.Src)
	if res.computed {
		e.spent[res.id] = res.stats
	} else if prev, ok := e.spent[res.id]; ok {
		e.stats.MergeIterations(prev)
	}
	e.stats.Merge(res.stats)
	if ps.params.Storage.SaveCacheMemory {
		e.store.Put(res.id, res.samples)
	} else {
		e.store.Drop(res.id)
	}
	e.tilesDone++
	e.inFlight = inFlight
}

func (e *Engine) finish(ps *pass) {
	e.mu.Lock()
	e.stats.FinishTime = e.now()
	stats := e.stats
	var canvas *image.RGBA
	if ps.params.Storage.SavePicture {
		canvas = cloneRGBA(e.canvas)
	}
	e.mu.Unlock()

	if canvas != nil {
		savePicture(e.log, ps.params, canvas)
	}
	if ps.params.Storage.SaveStatistics {
		saveStatistics(e.log, ps.params, stats)
	}

	e.mu.Lock()
	if e.stop.Load() {
		e.status = fractal.Stopped
	} else {
		e.status = fractal.Idle
	}
	e.mu.Unlock()

	snap := e.Snapshot()
	e.log.Info("render finished", "name", ps.params.Name, "status", snap.Status,
		"tiles", snap.TilesDone, "of", snap.TilesTotal,
		"elapsed", stats.FinishTime.Sub(stats.StartTime))
	e.observer.Progress(snap)
	e.observer.Finished(snap)
}

// Stop asks the running pass to dispatch no more tiles. Tiles already in
// flight are finished and composited.
func (e *Engine) Stop() {
	e.stop.Store(true)
}

// Status returns the engine state.
func (e *Engine) Status() fractal.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Statistics returns the statistics of the current or last pass.
func (e *Engine) Statistics() fractal.Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Snapshot returns the progress of the current or last pass.
func (e *Engine) Snapshot() fractal.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	total := 0
	if e.grid != nil {
		total = len(e.grid.Tiles)
	}
	return fractal.Snapshot{
		Status:          e.status,
		TilesTotal:      total,
		TilesDone:       e.tilesDone,
		TilesDispatched: e.dispatched,
		InFlight:        e.inFlight,
		Statistics:      e.stats,
	}
}

// Params returns the parameters of the current or last pass.
func (e *Engine) Params() (fractal.Params, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.params == nil {
		return fractal.Params{}, false
	}
	return *e.params, true
}

// Canvas returns a copy of the canvas, or nil before the first pass.
func (e *Engine) Canvas() *image.RGBA {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.canvas == nil {
		return nil
	}
	return cloneRGBA(e.canvas)
}

// Done returns a channel that is closed when the current pass ends.
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

// Wait blocks until the current pass ends or ctx is done.
func (e *Engine) Wait(ctx context.Context) error {
	select {
	case <-e.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the running pass, waits for it and shuts the worker pool down.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	done := e.done
	e.mu.Unlock()

	e.Stop()
	<-done
	e.pool.close()
	return nil
}

// RawValueAt returns the raw samples of pixel (x, y) in scan order, read from
// the memory tier. Oversampled pixels have Oversampling² samples.
func (e *Engine) RawValueAt(x, y int) ([]fractal.Sample, error) {
	e.mu.Lock()
	grid, params := e.grid, e.params
	e.mu.Unlock()

	if grid == nil || params == nil {
		return nil, ErrNoRawData
	}
	id, ok := grid.TileAt(x, y)
	if !ok {
		return nil, fmt.Errorf("%w: (%d,%d) outside %v", ErrOutOfRange, x, y, grid.Bounds)
	}
	s, ok := e.store.Get(id)
	rect := grid.Tiles[id]
	n := params.Oversampling
	if !ok || s.Len() != rect.Dx()*rect.Dy()*n*n {
		return nil, fmt.Errorf("%w: tile %d not in memory", ErrNoRawData, id)
	}

	out := make([]fractal.Sample, 0, n*n)
	for sy := range n {
		for sx := range n {
			i := cache.Index(x-rect.Min.X, y-rect.Min.Y, sx, sy, rect.Dx(), n)
			out = append(out, fractal.Sample{Color: s.Color[i], Brightness: s.Brightness[i]})
		}
	}
	return out, nil
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Rect)
	copy(dst.Pix, src.Pix)
	return dst
}
