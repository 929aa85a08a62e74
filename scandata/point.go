package scandata

// RawPoint is one measurement as delivered by the remote service. It is immutable once created.
type RawPoint struct {
	X int `json:"x"`
	Y int `json:"y"`

	ErrorCount  uint64 `json:"error_count"`
	SampleCount uint64 `json:"sample_count"`

	// VerticalRange and HorizontalRange are the range settings the point was measured at.
	VerticalRange   float64 `json:"vertical_range"`
	HorizontalRange float64 `json:"horizontal_range"`
}

// Coord returns the sweep coordinate of the point.
func (p RawPoint) Coord() Coord {
	return Coord{X: p.X, Y: p.Y}
}

// Measured reports whether the point carries at least one sample.
func (p RawPoint) Measured() bool {
	return p.SampleCount > 0
}

// Point is a processed scan point.
type Point struct {
	X       int
	Y       int
	BER     float64
	Errors  uint64
	Samples uint64
}

// Coord returns the sweep coordinate of the point.
func (p Point) Coord() Coord {
	return Coord{X: p.X, Y: p.Y}
}

// NewPoint computes the processed point for raw. ok is false if raw was never sampled.
func NewPoint(raw RawPoint) (Point, bool) {
	if !raw.Measured() {
		return Point{}, false
	}

	return Point{
		X:       raw.X,
		Y:       raw.Y,
		BER:     float64(raw.ErrorCount) / float64(raw.SampleCount),
		Errors:  raw.ErrorCount,
		Samples: raw.SampleCount,
	}, true
}
