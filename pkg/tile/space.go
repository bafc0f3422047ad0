package tile

// Space maps between tile grid coordinates and level-0 pixel boxes for one
// dataset. A Space is a plain value and never changes after construction.
type Space struct {
	Size   Point `json:"size" mapstructure:"size"`
	Offset Point `json:"offset" mapstructure:"offset"`
}

// NewSpace returns a tile space with the given tile size and origin offset
func NewSpace(size, offset Point) Space {
	return Space{Size: size, Offset: offset}
}

// CoveredTiles returns the box of level-0 tile coordinates whose pixels
// cover the pixel box. An empty pixel box covers no tiles.
func (s Space) CoveredTiles(pixels Box) Box {
	return s.covered(pixels, s.Size)
}

// CoveredTilesAtLevel is CoveredTiles for tiles at the given pyramid level
func (s Space) CoveredTilesAtLevel(pixels Box, level int) Box {
	return s.covered(pixels, s.Size.Scale(1<<level))
}

func (s Space) covered(pixels Box, size Point) Box {
	if pixels.Empty() {
		return Box{}
	}
	local := pixels.Sub(s.Offset)
	return Box{
		Begin: Point{FloorTo(local.Begin.X, size.X), FloorTo(local.Begin.Y, size.Y)},
		End:   Point{CeilTo(local.End.X, size.X), CeilTo(local.End.Y, size.Y)},
	}.Div(size)
}

// TilePixels returns the level-0 pixel box of a tile
func (s Space) TilePixels(p Point) Box {
	return Cell(p).Mul(s.Size).Add(s.Offset)
}

// TilePixelsAtLevel returns the level-0 pixel box of a tile at any level
func (s Space) TilePixelsAtLevel(c TileCoord) Box {
	return Cell(c.XY()).Mul(s.Size.Scale(1 << c.Z)).Add(s.Offset)
}

// FloorMod returns v mod m in [0, m) for positive m, also for negative v
func FloorMod(v, m int) int {
	r := v % m
	if r < 0 {
		r += m
	}
	return r
}

// FloorTo rounds v down to a multiple of m
func FloorTo(v, m int) int {
	return v - FloorMod(v, m)
}

// CeilTo rounds v up to a multiple of m
func CeilTo(v, m int) int {
	if r := FloorMod(v, m); r != 0 {
		return v - r + m
	}
	return v
}
