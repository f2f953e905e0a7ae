package render

import "image"

// DefaultTileSize is the edge length of a tile in pixels.
const DefaultTileSize = 100

// Grid is the row-major tiling of a canvas. A tile's index in Tiles is its id.
type Grid struct {
	Bounds   image.Rectangle
	TileSize int
	Tiles    []image.Rectangle
	perRow   int
}

// NewGrid splits a width × height canvas into tiles of size × size.
// Tiles at the right and bottom edges are smaller if the canvas is not divisible.
func NewGrid(width, height, size int) Grid {
	if size <= 0 {
		panic("tile size must be positive")
	}
	r := image.Rect(0, 0, width, height)
	return Grid{
		Bounds:   r,
		TileSize: size,
		Tiles:    splitRectNoClip(r, size, size),
		perRow:   (width + size - 1) / size,
	}
}

// TileAt returns the id of the tile containing pixel (x, y).
func (g Grid) TileAt(x, y int) (int, bool) {
	if !(image.Point{X: x, Y: y}).In(g.Bounds) {
		return 0, false
	}
	return (y/g.TileSize)*g.perRow + x/g.TileSize, true
}

// splitRectNoClip splits r into tiles of size tileW × tileH.
// Tiles at the right and bottom edges are smaller if r is not divisible.
func splitRectNoClip(r image.Rectangle, tileW, tileH int) []image.Rectangle {
	w := r.Dx()
	h := r.Dy()

	var tiles []image.Rectangle

	for oy := 0; oy < h; oy += tileH {
		th := tileH
		if oy+th > h {
			th = h - oy
		}

		for ox := 0; ox < w; ox += tileW {
			tw := tileW
			if ox+tw > w {
				tw = w - ox
			}

			tile := image.Rect(
				r.Min.X+ox,
				r.Min.Y+oy,
				r.Min.X+ox+tw,
				r.Min.Y+oy+th,
			)
			tiles = append(tiles, tile)
		}
	}

	return tiles
}
