package tile

import (
	"fmt"
	"iter"
)

// Box is a half-open integer rectangle [Begin, End).
type Box struct {
	Begin Point `json:"begin"`
	End   Point `json:"end"`
}

// Cell returns the unit box whose top-left corner is p
func Cell(p Point) Box {
	return Box{Begin: p, End: p.Add(Point{1, 1})}
}

// Bounds builds a box from its corners
func Bounds(begin, end Point) Box {
	return Box{Begin: begin, End: end}
}

// Add translates the box by v
func (b Box) Add(v Point) Box { return Box{b.Begin.Add(v), b.End.Add(v)} }

// Sub translates the box by -v
func (b Box) Sub(v Point) Box { return Box{b.Begin.Sub(v), b.End.Sub(v)} }

// Mul scales both corners component-wise
func (b Box) Mul(v Point) Box { return Box{b.Begin.Mul(v), b.End.Mul(v)} }

// Div divides both corners component-wise, truncating toward zero
func (b Box) Div(v Point) Box { return Box{b.Begin.Div(v), b.End.Div(v)} }

// Scale multiplies both corners by k
func (b Box) Scale(k int) Box { return Box{b.Begin.Scale(k), b.End.Scale(k)} }

// Shrink divides both corners by k, truncating toward zero
func (b Box) Shrink(k int) Box { return Box{b.Begin.Shrink(k), b.End.Shrink(k)} }

// Intersect returns the overlap of b and o. Boxes that do not overlap
// produce a result with End <= Begin on some axis; check Empty before use.
func (b Box) Intersect(o Box) Box {
	return Box{
		Begin: Point{max(b.Begin.X, o.Begin.X), max(b.Begin.Y, o.Begin.Y)},
		End:   Point{min(b.End.X, o.End.X), min(b.End.Y, o.End.Y)},
	}
}

// Empty reports whether the box contains no points
func (b Box) Empty() bool {
	return b.End.X <= b.Begin.X || b.End.Y <= b.Begin.Y
}

// Size returns End-Begin
func (b Box) Size() Point {
	return b.End.Sub(b.Begin)
}

// Area returns the number of contained points. It panics on a degenerate
// box (End < Begin on some axis).
func (b Box) Area() int {
	s := b.Size()
	if s.X < 0 || s.Y < 0 {
		panic(fmt.Sprintf("tile: area of degenerate box %v", b))
	}
	return s.X * s.Y
}

// Contains reports whether p lies inside the box
func (b Box) Contains(p Point) bool {
	return p.X >= b.Begin.X && p.X < b.End.X && p.Y >= b.Begin.Y && p.Y < b.End.Y
}

// Points enumerates every contained point in row-major order, x fastest.
// The sequence can be ranged over any number of times.
func (b Box) Points() iter.Seq[Point] {
	return func(yield func(Point) bool) {
		if b.Empty() {
			return
		}
		for y := b.Begin.Y; y < b.End.Y; y++ {
			for x := b.Begin.X; x < b.End.X; x++ {
				if !yield(Point{x, y}) {
					return
				}
			}
		}
	}
}

func (b Box) String() string {
	return fmt.Sprintf("[%d,%d)x[%d,%d)", b.Begin.X, b.End.X, b.Begin.Y, b.End.Y)
}
