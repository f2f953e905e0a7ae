package cache

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	fractal "github.com/marben/fractile"
)

const (
	magic   = "FRTC"
	version = 1
)

// header opens every tile file. All fields are little endian; the zstd
// compressed payload of Count color values followed by Count brightness
// values comes after it.
type header struct {
	Magic        [4]byte
	Version      uint16
	_            uint16
	Values       uint64
	Brightness   uint64
	X, Y, W, H   int32
	Oversampling uint32
	Count        uint32
}

// TileHandle gives a tile renderer access to the file of its own tile only.
type TileHandle struct {
	store  *Store
	path   string
	params fractal.Params
	rect   image.Rectangle
	fp     fractal.Fingerprint
}

// Tile returns the disk handle for tile id of p covering rect.
func (s *Store) Tile(p fractal.Params, id int, rect image.Rectangle) *TileHandle {
	return &TileHandle{
		store:  s,
		path:   TilePath(p, id),
		params: p,
		rect:   rect,
		fp:     p.Fingerprint(),
	}
}

// Path returns the tile file location.
func (h *TileHandle) Path() string {
	return h.path
}

func (h *TileHandle) count() int {
	n := h.params.Oversampling
	return h.rect.Dx() * h.rect.Dy() * n * n
}

// Exists reports whether the tile file is present.
func (h *TileHandle) Exists() bool {
	_, err := os.Stat(h.path)
	return err == nil
}

// Load reads the tile file. A missing file is reported as fs.ErrNotExist.
// A file that does not match the tile geometry or parameters is removed and
// reported as ErrStale; an undecodable one is removed and reported as ErrCorrupt.
func (h *TileHandle) Load() (*Samples, error) {
	raw, err := os.ReadFile(h.path)
	if err != nil {
		return nil, err
	}
	s, err := h.decode(raw)
	if errors.Is(err, ErrStale) || errors.Is(err, ErrCorrupt) {
		if rmErr := os.Remove(h.path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			h.store.log.LogAttrs(context.Background(), slog.LevelWarn, "cannot remove unusable cache file",
				slog.String("path", h.path), slog.Any("err", rmErr))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", h.path, err)
	}
	return s, nil
}

func (h *TileHandle) decode(raw []byte) (*Samples, error) {
	var hd header
	r := bytes.NewReader(raw)
	if err := binary.Read(r, binary.LittleEndian, &hd); err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrCorrupt, err)
	}
	if string(hd.Magic[:]) != magic || hd.Version != version {
		return nil, fmt.Errorf("%w: bad magic or version %d", ErrCorrupt, hd.Version)
	}
	stored := fractal.Fingerprint{Values: hd.Values, Brightness: hd.Brightness}
	rect := image.Rect(int(hd.X), int(hd.Y), int(hd.X+hd.W), int(hd.Y+hd.H))
	if rect != h.rect || int(hd.Oversampling) != h.params.Oversampling || int(hd.Count) != h.count() {
		return nil, fmt.Errorf("%w: geometry %v x%d does not match %v x%d", ErrStale, rect, hd.Oversampling, h.rect, h.params.Oversampling)
	}
	if !h.fp.Accepts(stored, h.params) {
		return nil, fmt.Errorf("%w: computed under different parameters", ErrStale)
	}

	payload, err := h.store.dec.DecodeAll(raw[len(raw)-r.Len():], make([]byte, 0, 16*int(hd.Count)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if len(payload) != 16*int(hd.Count) {
		return nil, fmt.Errorf("%w: payload has %d bytes, want %d", ErrCorrupt, len(payload), 16*hd.Count)
	}
	n := int(hd.Count)
	s := NewSamples(n)
	for i := range n {
		s.Color[i] = math.Float64frombits(binary.LittleEndian.Uint64(payload[8*i:]))
		s.Brightness[i] = math.Float64frombits(binary.LittleEndian.Uint64(payload[8*(n+i):]))
	}
	return s, nil
}

// Save writes the tile file unless one already exists, and reports whether it
// wrote. The file appears atomically.
func (h *TileHandle) Save(s *Samples) (bool, error) {
	if s.Len() != h.count() || len(s.Brightness) != s.Len() {
		return false, fmt.Errorf("save %s: have %d samples, tile needs %d", h.path, s.Len(), h.count())
	}
	if h.Exists() {
		return false, nil
	}

	n := s.Len()
	payload := make([]byte, 16*n)
	for i := range n {
		binary.LittleEndian.PutUint64(payload[8*i:], math.Float64bits(s.Color[i]))
		binary.LittleEndian.PutUint64(payload[8*(n+i):], math.Float64bits(s.Brightness[i]))
	}

	hd := header{
		Version:      version,
		Values:       h.fp.Values,
		Brightness:   h.fp.Brightness,
		X:            int32(h.rect.Min.X),
		Y:            int32(h.rect.Min.Y),
		W:            int32(h.rect.Dx()),
		H:            int32(h.rect.Dy()),
		Oversampling: uint32(h.params.Oversampling),
		Count:        uint32(n),
	}
	copy(hd.Magic[:], magic)
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &hd); err != nil {
		return false, fmt.Errorf("save %s: %w", h.path, err)
	}
	data := h.store.enc.EncodeAll(payload, buf.Bytes())

	dir := filepath.Dir(h.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("save %s: %w", h.path, err)
	}
	tmp, err := os.CreateTemp(dir, ".tile-*")
	if err != nil {
		return false, fmt.Errorf("save %s: %w", h.path, err)
	}
	defer os.Remove(tmp.Name()) // no-op after the rename
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return false, fmt.Errorf("save %s: %w", h.path, err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("save %s: %w", h.path, err)
	}
	if err := os.Rename(tmp.Name(), h.path); err != nil {
		return false, fmt.Errorf("save %s: %w", h.path, err)
	}
	return true, nil
}
