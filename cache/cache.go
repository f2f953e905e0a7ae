// Package cache stores raw per-tile sample values so a render can be recolored
// without iterating again, and resumed after an interruption.
//
// Values live in a memory tier keyed by tile id and, optionally, in one file
// per tile under <dir>/<name>/<W>x<H>/cache. A tile file that already exists
// is authoritative and never rewritten.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	fractal "github.com/marben/fractile"
)

var (
	// ErrStale is returned for a tile file computed under other parameters.
	ErrStale = errors.New("cache file is stale")
	// ErrCorrupt is returned for a tile file that cannot be decoded.
	ErrCorrupt = errors.New("cache file is corrupt")
)

// Samples holds the raw values of one tile in scan order: pixel rows, pixel
// columns, then sample rows and sample columns within the pixel.
type Samples struct {
	Color      []float64
	Brightness []float64
}

// NewSamples allocates storage for n samples.
func NewSamples(n int) *Samples {
	return &Samples{Color: make([]float64, n), Brightness: make([]float64, n)}
}

// Len returns the number of samples.
func (s *Samples) Len() int {
	return len(s.Color)
}

// Index returns the position of sample (sx, sy) of pixel (px, py), with the
// pixel relative to the tile origin, for a tile tileW pixels wide sampled n×n.
func Index(px, py, sx, sy, tileW, n int) int {
	return ((py*tileW+px)*n+sy)*n + sx
}

// Store is the cache of one engine. It is safe for concurrent use.
type Store struct {
	log *slog.Logger

	mu  sync.Mutex
	mem map[int]*Samples

	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for non-fatal disk errors.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a store with an empty memory tier.
func New(opts ...Option) (*Store, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, fmt.Errorf("zstd.NewWriter: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("zstd.NewReader: %w", err)
	}
	s := &Store{
		log: slog.New(slog.DiscardHandler),
		mem: make(map[int]*Samples),
		enc: enc,
		dec: dec,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Close releases the codecs. The memory tier stays readable.
func (s *Store) Close() error {
	s.dec.Close()
	return s.enc.Close()
}

// Get returns the in-memory samples of a tile.
func (s *Store) Get(tile int) (*Samples, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.mem[tile]
	return v, ok
}

// Put keeps samples of a tile in memory.
func (s *Store) Put(tile int, v *Samples) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mem[tile] = v
}

// Drop evicts a tile from memory.
func (s *Store) Drop(tile int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mem, tile)
}

// ClearMemory evicts every tile from memory.
func (s *Store) ClearMemory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.mem)
}

// Len returns the number of tiles held in memory.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mem)
}

// Dir returns the directory holding the tile files of p.
func Dir(p fractal.Params) string {
	return filepath.Join(p.Storage.Directory, p.Name, fmt.Sprintf("%dx%d", p.Width, p.Height), "cache")
}

// TilePath returns the file holding one tile of p.
func TilePath(p fractal.Params, tile int) string {
	return filepath.Join(Dir(p), "tile_"+strconv.Itoa(tile)+".bin")
}

// tileFiles lists the tile files present for p.
func tileFiles(p fractal.Params) ([]string, error) {
	entries, err := os.ReadDir(Dir(p))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.Type().IsRegular() && strings.HasPrefix(name, "tile_") && strings.HasSuffix(name, ".bin") {
			files = append(files, filepath.Join(Dir(p), name))
		}
	}
	return files, nil
}

// CountDisk returns the number of tile files stored for p.
func (s *Store) CountDisk(p fractal.Params) (int, error) {
	files, err := tileFiles(p)
	return len(files), err
}

// Invalidate clears the memory tier and removes every tile file of p.
// It returns the number of files removed.
func (s *Store) Invalidate(p fractal.Params) (int, error) {
	s.ClearMemory()
	if p.Storage.Directory == "" {
		return 0, nil
	}
	files, err := tileFiles(p)
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", Dir(p), err)
	}
	removed := 0
	var errs []error
	for _, f := range files {
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	s.log.LogAttrs(context.Background(), slog.LevelInfo, "disk cache invalidated",
		slog.String("dir", Dir(p)), slog.Int("removed", removed))
	return removed, errors.Join(errs...)
}
