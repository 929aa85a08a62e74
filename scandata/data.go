package scandata

import (
	"cmp"
	"maps"
	"slices"
)

// Data is the immutable result of a scan run: raw points, processed points and, for completed eye scans,
// the eye summary.
type Data struct {
	raw     []RawPoint
	points  map[Coord]Point
	grid    Grid
	summary *Summary
}

// Raw returns a copy of every raw point received, in arrival order.
func (d *Data) Raw() []RawPoint {
	return slices.Clone(d.raw)
}

// Points returns a copy of the processed map.
func (d *Data) Points() map[Coord]Point {
	return maps.Clone(d.points)
}

// SortedPoints returns the processed points ordered by y, then x.
func (d *Data) SortedPoints() []Point {
	pts := slices.Collect(maps.Values(d.points))
	slices.SortFunc(pts, func(a, b Point) int {
		if c := cmp.Compare(a.Y, b.Y); c != 0 {
			return c
		}
		return cmp.Compare(a.X, b.X)
	})

	return pts
}

// Point returns the processed point at (x, y).
func (d *Data) Point(x, y int) (Point, bool) {
	p, ok := d.points[Coord{X: x, Y: y}]
	return p, ok
}

// Len returns the number of processed points.
func (d *Data) Len() int {
	return len(d.points)
}

// Grid returns the sweep grid.
func (d *Data) Grid() Grid {
	return d.grid
}

// Summary returns the eye summary. ok is false if the run did not complete or is not an eye scan.
func (d *Data) Summary() (Summary, bool) {
	if d.summary == nil {
		return Summary{}, false
	}

	return *d.summary, true
}
