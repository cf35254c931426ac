// Package worldmap loads the static tile grid a game is played on.
package worldmap

import (
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/tilewars/engine/internal/content"
	"github.com/tilewars/engine/pkg/units"
)

var (
	// ErrMissingTile is returned when a row uses a symbol with no tile definition.
	ErrMissingTile = errors.New("missing tile definition")
	// ErrInvalidMap is returned for structurally broken map files.
	ErrInvalidMap = errors.New("invalid map")
)

// Tile describes one cell.
type Tile struct {
	Symbol   string
	Texture  string
	Passable bool
}

// Map is a read-only grid of tiles. Tile (x, y) covers [x, x+1) × [y, y+1).
type Map struct {
	Name   string
	Width  int
	Height int
	Digest string

	tiles  []*Tile
	bounds geom.Envelope
}

type tileDoc struct {
	Symbol   string `mapstructure:"symbol"`
	Texture  string `mapstructure:"texture"`
	Passable bool   `mapstructure:"passable"`
}

type document struct {
	Name  string    `mapstructure:"name"`
	Tiles []tileDoc `mapstructure:"tiles"`
	Rows  []string  `mapstructure:"rows"`
}

// Load reads a map file.
func Load(path string) (*Map, error) {
	doc, err := content.Read(path)
	if err != nil {
		return nil, err
	}
	return build(doc)
}

// Parse reads map content in the given format.
func Parse(data []byte, format string) (*Map, error) {
	doc, err := content.Parse(data, format)
	if err != nil {
		return nil, err
	}
	return build(doc)
}

func build(doc *content.Document) (*Map, error) {
	var d document
	if err := doc.Decode(&d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMap, err)
	}
	if len(d.Rows) == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrInvalidMap)
	}

	defs := make(map[rune]*Tile, len(d.Tiles))
	for _, td := range d.Tiles {
		r, size := utf8.DecodeRuneInString(td.Symbol)
		if size == 0 || size != len(td.Symbol) {
			return nil, fmt.Errorf("%w: tile symbol %q must be one character", ErrInvalidMap, td.Symbol)
		}
		defs[r] = &Tile{Symbol: td.Symbol, Texture: td.Texture, Passable: td.Passable}
	}

	width := utf8.RuneCountInString(d.Rows[0])
	if width == 0 {
		return nil, fmt.Errorf("%w: empty row", ErrInvalidMap)
	}
	m := &Map{
		Name:   d.Name,
		Width:  width,
		Height: len(d.Rows),
		Digest: doc.DigestHex(),
		tiles:  make([]*Tile, 0, width*len(d.Rows)),
	}

	for y, row := range d.Rows {
		if n := utf8.RuneCountInString(row); n != width {
			return nil, fmt.Errorf("%w: row %d has %d tiles, want %d", ErrInvalidMap, y, n, width)
		}
		for x, r := range []rune(row) {
			tile, ok := defs[r]
			if !ok {
				return nil, fmt.Errorf("%w: symbol %q at (%d, %d)", ErrMissingTile, r, x, y)
			}
			m.tiles = append(m.tiles, tile)
		}
	}

	bounds, err := geom.NewEnvelope([]geom.XY{{X: 0, Y: 0}, {X: float64(width), Y: float64(m.Height)}})
	if err != nil {
		return nil, fmt.Errorf("%w: bounds: %v", ErrInvalidMap, err)
	}
	m.bounds = bounds
	return m, nil
}

// At returns the tile at integer coordinates.
func (m *Map) At(x, y int) (Tile, bool) {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return Tile{}, false
	}
	return *m.tiles[y*m.Width+x], true
}

// TileAt returns the tile under a position.
func (m *Map) TileAt(p units.Vector2[units.Position]) (Tile, bool) {
	if !m.Contains(p) {
		return Tile{}, false
	}
	return m.At(int(math.Floor(p.X)), int(math.Floor(p.Y)))
}

// Passable reports whether p lies on a passable tile.
func (m *Map) Passable(p units.Vector2[units.Position]) bool {
	t, ok := m.TileAt(p)
	return ok && t.Passable
}

// Contains reports whether p lies inside the map, right and bottom edges excluded.
func (m *Map) Contains(p units.Vector2[units.Position]) bool {
	xy := geom.XY{X: p.X, Y: p.Y}
	return m.bounds.Contains(xy) && p.X < float64(m.Width) && p.Y < float64(m.Height)
}

// Bounds is the map's extent in the plane.
func (m *Map) Bounds() geom.Envelope {
	return m.bounds
}
