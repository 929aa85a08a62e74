package scandata

import (
	"fmt"
	"math"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

const (
	// HorizontalCodesPerUI is the number of horizontal offset codes in one unit interval.
	HorizontalCodesPerUI = 64
	// VerticalMaxCode is the vertical offset code at 100% of the vertical range.
	VerticalMaxCode = 127

	// MaxHorizontalUI is the largest horizontal offset, in UI, on either side of the zero crossing.
	MaxHorizontalUI = 0.5

	rangeEpsilon = 1e-9
)

var rangeLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Number", Pattern: `[-+]?(\d+(\.\d*)?|\.\d+)([eE][-+]?\d+)?`},
	{Name: "Unit", Pattern: `(?i)(UI|%)`},
	{Name: "To", Pattern: `(?i)to`},
	{Name: "Whitespace", Pattern: `\s+`},
})

// rangeExpr is the grammar of a sweep range: Bound ("to" Bound)?
type rangeExpr struct {
	Low  bound  `parser:"@@"`
	High *bound `parser:"( To @@ )?"`
}

type bound struct {
	Value float64 `parser:"@Number"`
	Unit  string  `parser:"@Unit?"`
}

var rangeParser = participle.MustBuild[rangeExpr](
	participle.Lexer(rangeLexer),
	participle.Elide("Whitespace"),
)

// HorizontalRange is a horizontal sweep range in unit intervals.
type HorizontalRange struct {
	Low  float64
	High float64
}

// String returns the canonical text form, e.g. "-0.500 UI to 0.500 UI".
func (r HorizontalRange) String() string {
	return fmt.Sprintf("%.3f UI to %.3f UI", r.Low, r.High)
}

// Codes returns the range in horizontal offset codes.
func (r HorizontalRange) Codes() (float64, float64) {
	return r.Low * HorizontalCodesPerUI, r.High * HorizontalCodesPerUI
}

// VerticalRange is a vertical sweep range as a percentage of the full voltage swing, symmetric around 0.
type VerticalRange struct {
	Percent float64
}

// String returns the canonical text form, e.g. "100%".
func (r VerticalRange) String() string {
	return fmt.Sprintf("%g%%", r.Percent)
}

// MaxCode returns the largest vertical offset code covered by the range.
func (r VerticalRange) MaxCode() int {
	return int(math.Round(VerticalMaxCode * r.Percent / 100))
}

// ParseHorizontalRange parses a horizontal range such as "-0.5 to 0.5" or "-0.500 UI to 0.500 UI".
// Both bounds must lie within ±0.5 UI and the low bound must be below the high bound.
func ParseHorizontalRange(s string) (HorizontalRange, error) {
	expr, err := rangeParser.ParseString("", s)
	if err != nil {
		return HorizontalRange{}, fmt.Errorf("%w: %q: %s", ErrInvalidRange, s, err.Error())
	}

	if expr.High == nil {
		return HorizontalRange{}, fmt.Errorf("%w: %q: horizontal range needs two bounds", ErrInvalidRange, s)
	}

	for _, b := range []bound{expr.Low, *expr.High} {
		if unit := strings.ToUpper(b.Unit); unit != "" && unit != "UI" {
			return HorizontalRange{}, fmt.Errorf("%w: %q: unit %q is not UI", ErrInvalidRange, s, b.Unit)
		}
		if math.Abs(b.Value) > MaxHorizontalUI+rangeEpsilon {
			return HorizontalRange{}, fmt.Errorf("%w: %q: bound %g exceeds ±%g UI", ErrInvalidRange, s, b.Value, MaxHorizontalUI)
		}
	}

	r := HorizontalRange{Low: expr.Low.Value, High: expr.High.Value}
	if r.Low >= r.High {
		return HorizontalRange{}, fmt.Errorf("%w: %q: low bound must be below high bound", ErrInvalidRange, s)
	}

	return r, nil
}

// ParseVerticalRange parses a vertical range such as "100%" or "50 %". A bare number is read as a percentage.
func ParseVerticalRange(s string) (VerticalRange, error) {
	expr, err := rangeParser.ParseString("", s)
	if err != nil {
		return VerticalRange{}, fmt.Errorf("%w: %q: %s", ErrInvalidRange, s, err.Error())
	}

	if expr.High != nil {
		return VerticalRange{}, fmt.Errorf("%w: %q: vertical range takes a single percentage", ErrInvalidRange, s)
	}

	if unit := expr.Low.Unit; unit != "" && unit != "%" {
		return VerticalRange{}, fmt.Errorf("%w: %q: unit %q is not %%", ErrInvalidRange, s, unit)
	}

	pct := expr.Low.Value
	if pct <= 0 || pct > 100 {
		return VerticalRange{}, fmt.Errorf("%w: %q: percentage must be in (0, 100]", ErrInvalidRange, s)
	}

	return VerticalRange{Percent: pct}, nil
}
