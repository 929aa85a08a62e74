package scandata

import (
	"fmt"
	"maps"
	"slices"
)

// Config configures a Reducer.
type Config struct {
	Grid      Grid
	TargetBER float64
	Mode      OpenAreaMode
}

// Reducer accumulates raw point batches of one scan run.
//
// Reducer is not safe for concurrent use; the owning session serializes access.
type Reducer struct {
	cfg    Config
	raw    []RawPoint
	points map[Coord]Point
}

// NewReducer creates a reducer for one scan run.
func NewReducer(cfg Config) (*Reducer, error) {
	if !(cfg.TargetBER > 0 && cfg.TargetBER < 1) {
		return nil, fmt.Errorf("%w: %g", ErrInvalidTargetBER, cfg.TargetBER)
	}
	if cfg.Grid.Total() == 0 {
		return nil, ErrEmptyGrid
	}
	if cfg.Mode != MaskArea && cfg.Mode != ContiguousArea {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOpenAreaMode, cfg.Mode)
	}

	return &Reducer{
		cfg:    cfg,
		points: make(map[Coord]Point, cfg.Grid.Total()),
	}, nil
}

// Add retains a batch of raw points and updates the processed map.
//
// Batches may arrive in any order. A later measurement of a coordinate replaces an earlier one;
// a point without samples is retained as raw data but never enters, or replaces, the processed map.
// It returns the number of points that updated the processed map.
func (r *Reducer) Add(batch []RawPoint) int {
	r.raw = append(r.raw, batch...)

	updated := 0
	for _, raw := range batch {
		p, ok := NewPoint(raw)
		if !ok {
			continue
		}
		r.points[p.Coord()] = p
		updated++
	}

	return updated
}

// RawCount returns the number of raw points received so far.
func (r *Reducer) RawCount() int {
	return len(r.raw)
}

// Len returns the number of processed points.
func (r *Reducer) Len() int {
	return len(r.points)
}

// Grid returns the sweep grid of the run.
func (r *Reducer) Grid() Grid {
	return r.cfg.Grid
}

// Finalize returns an immutable copy of the accumulated data.
// The eye summary is computed only when withSummary is true.
func (r *Reducer) Finalize(withSummary bool) *Data {
	d := &Data{
		raw:    slices.Clone(r.raw),
		points: maps.Clone(r.points),
		grid:   r.cfg.Grid,
	}

	if withSummary {
		s := Summarize(d.points, d.grid, r.cfg.TargetBER, r.cfg.Mode)
		d.summary = &s
	}

	return d
}
