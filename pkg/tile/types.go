package tile

import (
	"encoding/json"
	"fmt"
)

// Point is an integer position in pixel or tile space
type Point struct {
	X int `json:"x" mapstructure:"x"`
	Y int `json:"y" mapstructure:"y"`
}

// Pt is shorthand for Point{X: x, Y: y}
func Pt(x, y int) Point {
	return Point{X: x, Y: y}
}

// Add returns p+q
func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }

// Sub returns p-q
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

// Mul multiplies component-wise
func (p Point) Mul(q Point) Point { return Point{p.X * q.X, p.Y * q.Y} }

// Div divides component-wise, truncating toward zero
func (p Point) Div(q Point) Point { return Point{p.X / q.X, p.Y / q.Y} }

// Scale multiplies both components by k
func (p Point) Scale(k int) Point { return Point{p.X * k, p.Y * k} }

// Shrink divides both components by k, truncating toward zero
func (p Point) Shrink(k int) Point { return Point{p.X / k, p.Y / k} }

// String formats the point as "x,y", the same form the config layer accepts
func (p Point) String() string {
	return fmt.Sprintf("%d,%d", p.X, p.Y)
}

// UnmarshalJSON accepts both [x, y] and {"x": .., "y": ..}
func (p *Point) UnmarshalJSON(data []byte) error {
	var pair []int
	if err := json.Unmarshal(data, &pair); err == nil {
		if len(pair) != 2 {
			return fmt.Errorf("point must have 2 components, got %d", len(pair))
		}
		p.X, p.Y = pair[0], pair[1]
		return nil
	}

	type plain Point
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid point %s: %w", string(data), err)
	}
	*p = Point(v)
	return nil
}

// TileCoord addresses a tile in a pyramid. Z is the level exponent: a level-z
// tile spans 2^z times the linear extent of a level-0 tile.
type TileCoord struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// XY drops the level
func (c TileCoord) XY() Point {
	return Point{c.X, c.Y}
}

func (c TileCoord) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y)
}

// MarshalJSON writes the compact [x, y, z] form used by manifests
func (c TileCoord) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]int{c.X, c.Y, c.Z})
}

// UnmarshalJSON accepts [x, y, z] and {"x": .., "y": .., "z": ..}
func (c *TileCoord) UnmarshalJSON(data []byte) error {
	var triple []int
	if err := json.Unmarshal(data, &triple); err == nil {
		if len(triple) != 3 {
			return fmt.Errorf("tile coordinate must have 3 components, got %d", len(triple))
		}
		c.X, c.Y, c.Z = triple[0], triple[1], triple[2]
		return nil
	}

	type plain TileCoord
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid tile coordinate %s: %w", string(data), err)
	}
	*c = TileCoord(v)
	return nil
}
