package scandata

import (
	"fmt"
	"strings"
)

// OpenAreaMode selects how the open area of the eye is measured.
type OpenAreaMode uint8

const (
	// MaskArea counts every measured grid point whose BER is below the target (threshold mask).
	MaskArea OpenAreaMode = iota
	// ContiguousArea counts only open points connected to (0, 0) through horizontal/vertical neighbours.
	ContiguousArea
)

// String returns the configuration name of the mode.
func (m OpenAreaMode) String() string {
	switch m {
	case MaskArea:
		return "mask"
	case ContiguousArea:
		return "contiguous"
	default:
		return "unknown"
	}
}

// ParseOpenAreaMode converts "mask" or "contiguous" to an OpenAreaMode.
func ParseOpenAreaMode(s string) (OpenAreaMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mask":
		return MaskArea, nil
	case "contiguous":
		return ContiguousArea, nil
	default:
		return MaskArea, fmt.Errorf("%w: %q", ErrInvalidOpenAreaMode, s)
	}
}

// Summary holds the eye metrics of a completed scan.
//
// OpenArea is a point count. HorizontalOpening and VerticalOpening are in sweep codes: the number of
// consecutive open points through (0, 0) along the axis times the step. The percentages are fractions
// in [0, 1] of the grid: OpenPercentage = OpenArea / TotalPoints, HorizontalPercentage = open columns /
// Columns, VerticalPercentage = open rows / Rows.
type Summary struct {
	TargetBER      float64
	Mode           OpenAreaMode
	TotalPoints    int
	MeasuredPoints int

	OpenArea       int
	OpenPercentage float64

	HorizontalOpening    int
	VerticalOpening      int
	HorizontalPercentage float64
	VerticalPercentage   float64
}

type eyeMap struct {
	points map[Coord]Point
	grid   Grid
	target float64
}

func (m eyeMap) isOpen(c Coord) bool {
	if !m.grid.Contains(c) {
		return false
	}
	p, ok := m.points[c]

	return ok && p.BER < m.target
}

// Summarize computes the eye metrics of points over grid.
func Summarize(points map[Coord]Point, grid Grid, targetBER float64, mode OpenAreaMode) Summary {
	m := eyeMap{points: points, grid: grid, target: targetBER}

	s := Summary{
		TargetBER:   targetBER,
		Mode:        mode,
		TotalPoints: grid.Total(),
	}

	for c := range points {
		if grid.Contains(c) {
			s.MeasuredPoints++
		}
	}

	switch mode {
	case ContiguousArea:
		s.OpenArea = m.contiguousArea()
	default:
		s.OpenArea = m.maskArea()
	}

	if s.TotalPoints > 0 {
		s.OpenPercentage = float64(s.OpenArea) / float64(s.TotalPoints)
	}

	if !m.isOpen(Origin) {
		return s
	}

	cols := m.run(Coord{X: grid.XStep}) + m.run(Coord{X: -grid.XStep}) + 1
	rows := m.run(Coord{Y: grid.YStep}) + m.run(Coord{Y: -grid.YStep}) + 1

	s.HorizontalOpening = cols * grid.XStep
	s.VerticalOpening = rows * grid.YStep
	s.HorizontalPercentage = float64(cols) / float64(grid.Columns())
	s.VerticalPercentage = float64(rows) / float64(grid.Rows())

	return s
}

func (m eyeMap) maskArea() int {
	area := 0
	for c := range m.points {
		if m.isOpen(c) {
			area++
		}
	}

	return area
}

// contiguousArea flood-fills from the origin; the grid bounds the search.
func (m eyeMap) contiguousArea() int {
	if !m.isOpen(Origin) {
		return 0
	}

	visited := map[Coord]struct{}{Origin: {}}
	stack := []Coord{Origin}
	steps := []Coord{{X: m.grid.XStep}, {X: -m.grid.XStep}, {Y: m.grid.YStep}, {Y: -m.grid.YStep}}

	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, d := range steps {
			n := Coord{X: c.X + d.X, Y: c.Y + d.Y}
			if _, seen := visited[n]; seen || !m.isOpen(n) {
				continue
			}
			visited[n] = struct{}{}
			stack = append(stack, n)
		}
	}

	return len(visited)
}

// run counts consecutive open points starting one step away from the origin in direction d.
func (m eyeMap) run(d Coord) int {
	n := 0
	for c := d; m.isOpen(c); c = (Coord{X: c.X + d.X, Y: c.Y + d.Y}) {
		n++
	}

	return n
}
