package scandata

import (
	"fmt"
	"math"
)

// Coord is a sweep coordinate in offset codes.
type Coord struct {
	X int
	Y int
}

// Origin is the zero-crossing coordinate.
var Origin = Coord{}

// Grid is the full set of coordinates a scan sweeps: multiples of the step that lie inside the declared range.
type Grid struct {
	XStep int
	YStep int

	// index bounds, coordinate = index * step
	xMin, xMax int
	yMin, yMax int
}

// NewGrid builds the sweep grid for the given steps and ranges.
func NewGrid(horzStep, vertStep int, horz HorizontalRange, vert VerticalRange) (Grid, error) {
	if horzStep <= 0 || vertStep <= 0 {
		return Grid{}, fmt.Errorf("%w: horizontal %d, vertical %d", ErrInvalidStep, horzStep, vertStep)
	}

	loCode, hiCode := horz.Codes()
	yMaxCode := float64(vert.MaxCode())

	g := Grid{
		XStep: horzStep,
		YStep: vertStep,
		xMin:  int(math.Ceil(loCode/float64(horzStep) - rangeEpsilon)),
		xMax:  int(math.Floor(hiCode/float64(horzStep) + rangeEpsilon)),
		yMin:  int(math.Ceil(-yMaxCode/float64(vertStep) - rangeEpsilon)),
		yMax:  int(math.Floor(yMaxCode/float64(vertStep) + rangeEpsilon)),
	}

	if g.Columns() <= 0 || g.Rows() <= 0 {
		return Grid{}, fmt.Errorf("%w: horizontal %s step %d, vertical %s step %d",
			ErrEmptyGrid, horz, horzStep, vert, vertStep)
	}

	return g, nil
}

// Columns returns the number of distinct horizontal coordinates.
func (g Grid) Columns() int {
	return g.xMax - g.xMin + 1
}

// Rows returns the number of distinct vertical coordinates.
func (g Grid) Rows() int {
	return g.yMax - g.yMin + 1
}

// Total returns the number of coordinates in the grid, measured or not.
func (g Grid) Total() int {
	if g.XStep <= 0 || g.YStep <= 0 || g.Columns() <= 0 || g.Rows() <= 0 {
		return 0
	}

	return g.Columns() * g.Rows()
}

// Contains reports whether c is a coordinate of the grid.
func (g Grid) Contains(c Coord) bool {
	if g.XStep <= 0 || g.YStep <= 0 {
		return false
	}
	if c.X%g.XStep != 0 || c.Y%g.YStep != 0 {
		return false
	}

	xi, yi := c.X/g.XStep, c.Y/g.YStep

	return xi >= g.xMin && xi <= g.xMax && yi >= g.yMin && yi <= g.yMax
}

// XBounds returns the lowest and highest horizontal coordinates.
func (g Grid) XBounds() (int, int) {
	return g.xMin * g.XStep, g.xMax * g.XStep
}

// YBounds returns the lowest and highest vertical coordinates.
func (g Grid) YBounds() (int, int) {
	return g.yMin * g.YStep, g.yMax * g.YStep
}

// Coords returns every grid coordinate, row by row from the lowest y.
func (g Grid) Coords() []Coord {
	coords := make([]Coord, 0, g.Total())
	for yi := g.yMin; yi <= g.yMax; yi++ {
		for xi := g.xMin; xi <= g.xMax; xi++ {
			coords = append(coords, Coord{X: xi * g.XStep, Y: yi * g.YStep})
		}
	}

	return coords
}
