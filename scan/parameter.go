package scan

import (
	"fmt"
	"slices"
	"sync"

	"github.com/arloliu/go-eyescan/internal/util"
	"github.com/arloliu/go-eyescan/scandata"
)

// Parameter names.
const (
	ParamHorzStep  = "horz_step"
	ParamVertStep  = "vert_step"
	ParamHorzRange = "horz_range"
	ParamVertRange = "vert_range"
	ParamTargetBER = "target_ber"
	ParamDwellBER  = "dwell_ber"
	ParamDwellTime = "dwell_time"
	ParamScanType  = "scan_type"
)

// Parameter is a scan parameter. Value is nil while the parameter is unset, in which case the
// default applies.
type Parameter struct {
	Name        string
	Description string
	Modifiable  bool
	// Domain is the ordered list of legal values. An empty domain means free-form.
	Domain  []any
	Default any
	Value   any

	// coerce converts a caller value to the canonical type and checks free-form constraints
	coerce func(v any) (any, error)
}

// Effective returns Value if set, else Default.
func (p Parameter) Effective() any {
	if p.Value != nil {
		return p.Value
	}

	return p.Default
}

func (p Parameter) check(v any) (any, error) {
	if !p.Modifiable {
		return nil, fmt.Errorf("%w: %s", ErrNotModifiable, p.Name)
	}

	cv := util.NormalizeNumber(v)
	if p.coerce != nil {
		var err error
		if cv, err = p.coerce(v); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidParameter, p.Name, err)
		}
	}

	if len(p.Domain) > 0 && !slices.Contains(p.Domain, cv) {
		return nil, fmt.Errorf("%w: %s: %v is not one of %v", ErrInvalidParameter, p.Name, v, p.Domain)
	}

	return cv, nil
}

// ParameterSet is the parameter set of one session. It is safe for concurrent use.
type ParameterSet struct {
	mu     sync.RWMutex
	kind   Kind
	params map[string]*Parameter
	order  []string
}

func newParameterSet(kind Kind, defs []Parameter) *ParameterSet {
	ps := &ParameterSet{kind: kind, params: make(map[string]*Parameter, len(defs))}
	for _, d := range defs {
		p := d
		ps.params[p.Name] = &p
		ps.order = append(ps.order, p.Name)
	}

	return ps
}

// NewParameterSet returns the default parameter set of kind.
func NewParameterSet(kind Kind) (*ParameterSet, error) {
	switch kind {
	case EyeScan:
		return newParameterSet(kind, eyeScanParameters()), nil
	case SlicerScan:
		return newParameterSet(kind, slicerScanParameters()), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Kind returns the scan kind the set belongs to.
func (ps *ParameterSet) Kind() Kind {
	return ps.kind
}

// Names returns the parameter names in declaration order.
func (ps *ParameterSet) Names() []string {
	return slices.Clone(ps.order)
}

// Get returns a copy of the named parameter.
func (ps *ParameterSet) Get(name string) (Parameter, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	p, ok := ps.params[name]
	if !ok {
		return Parameter{}, fmt.Errorf("%w: %s has no parameter %q", ErrUnknownParameter, ps.kind, name)
	}

	out := *p
	out.Domain = slices.Clone(p.Domain)

	return out, nil
}

// SetValue sets the value of name. It fails with ErrNotModifiable for a fixed parameter and with
// ErrInvalidParameter for a value outside the declared domain or constraints.
func (ps *ParameterSet) SetValue(name string, value any) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	p, ok := ps.params[name]
	if !ok {
		return fmt.Errorf("%w: %s has no parameter %q", ErrUnknownParameter, ps.kind, name)
	}

	v, err := p.check(value)
	if err != nil {
		return err
	}
	p.Value = v

	return nil
}

// SetValues sets several values. Either every value is applied or none is.
func (ps *ParameterSet) SetValues(values map[string]any) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	checked := make(map[string]any, len(values))
	for _, name := range util.SortedKeys(values) {
		p, ok := ps.params[name]
		if !ok {
			return fmt.Errorf("%w: %s has no parameter %q", ErrUnknownParameter, ps.kind, name)
		}
		v, err := p.check(values[name])
		if err != nil {
			return err
		}
		checked[name] = v
	}

	for name, v := range checked {
		ps.params[name].Value = v
	}

	return nil
}

// Unset clears the value of name so the default applies again.
func (ps *ParameterSet) Unset(name string) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	p, ok := ps.params[name]
	if !ok {
		return fmt.Errorf("%w: %s has no parameter %q", ErrUnknownParameter, ps.kind, name)
	}
	p.Value = nil

	return nil
}

// Resolve returns the effective value of every parameter.
func (ps *ParameterSet) Resolve() map[string]any {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	out := make(map[string]any, len(ps.params))
	for name, p := range ps.params {
		out[name] = p.Effective()
	}

	return out
}

var (
	stepDomain      = []any{int64(1), int64(2), int64(4), int64(8), int64(16), int64(32)}
	vertRangeDomain = []any{"25%", "50%", "75%", "100%"}
)

func eyeScanParameters() []Parameter {
	return []Parameter{
		{Name: ParamHorzStep, Description: "horizontal sweep step in codes", Modifiable: true,
			Domain: stepDomain, Default: int64(8), coerce: intValue},
		{Name: ParamVertStep, Description: "vertical sweep step in codes", Modifiable: true,
			Domain: stepDomain, Default: int64(8), coerce: intValue},
		{Name: ParamHorzRange, Description: "horizontal sweep range", Modifiable: true,
			Default: "-0.500 UI to 0.500 UI", coerce: horzRangeValue},
		{Name: ParamVertRange, Description: "vertical sweep range", Modifiable: true,
			Domain: vertRangeDomain, Default: "100%", coerce: stringValue},
		{Name: ParamTargetBER, Description: "BER below which a point is open", Modifiable: true,
			Default: 1e-5, coerce: berValue},
		{Name: ParamDwellBER, Description: "BER floor each point dwells for", Modifiable: true,
			Default: 1e-5, coerce: berValue},
		{Name: ParamDwellTime, Description: "minimum dwell time per point in seconds", Modifiable: true,
			Default: int64(0), coerce: nonNegativeInt},
		{Name: ParamScanType, Description: "scan algorithm", Modifiable: false,
			Default: "2D statistical"},
	}
}

func slicerScanParameters() []Parameter {
	return []Parameter{
		{Name: ParamVertStep, Description: "vertical sweep step in codes", Modifiable: true,
			Domain: stepDomain, Default: int64(2), coerce: intValue},
		{Name: ParamVertRange, Description: "vertical sweep range", Modifiable: true,
			Domain: vertRangeDomain, Default: "100%", coerce: stringValue},
		{Name: ParamTargetBER, Description: "BER below which a point is open", Modifiable: true,
			Default: 1e-5, coerce: berValue},
		{Name: ParamDwellBER, Description: "BER floor each point dwells for", Modifiable: true,
			Default: 1e-5, coerce: berValue},
		{Name: ParamDwellTime, Description: "minimum dwell time per point in seconds", Modifiable: true,
			Default: int64(0), coerce: nonNegativeInt},
		{Name: ParamScanType, Description: "scan algorithm", Modifiable: false,
			Default: "1D slicer"},
	}
}

func intValue(v any) (any, error) {
	n, ok := util.ToInt64(v)
	if !ok {
		return nil, fmt.Errorf("%v (%T) is not an integer", v, v)
	}

	return n, nil
}

func nonNegativeInt(v any) (any, error) {
	n, ok := util.ToInt64(v)
	if !ok || n < 0 {
		return nil, fmt.Errorf("%v is not a non-negative integer", v)
	}

	return n, nil
}

func stringValue(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("%v (%T) is not a string", v, v)
	}

	return s, nil
}

func horzRangeValue(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("%v (%T) is not a string", v, v)
	}

	r, err := scandata.ParseHorizontalRange(s)
	if err != nil {
		return nil, err
	}

	return r.String(), nil
}

func berValue(v any) (any, error) {
	f, ok := util.ToFloat64(v)
	if !ok || !(f > 0 && f < 1) {
		return nil, fmt.Errorf("%v is not a BER in (0, 1)", v)
	}

	return f, nil
}

// plan is the resolved form of a parameter set that a run needs.
type plan struct {
	values  map[string]any
	reducer scandata.Config
}

// resolvePlan resolves the effective values and derives the sweep grid.
func resolvePlan(ps *ParameterSet, mode scandata.OpenAreaMode) (plan, error) {
	values := ps.Resolve()

	vert, err := scandata.ParseVerticalRange(values[ParamVertRange].(string))
	if err != nil {
		return plan{}, err
	}

	horz := scandata.HorizontalRange{}
	horzStep := int64(1)
	if ps.kind == EyeScan {
		if horz, err = scandata.ParseHorizontalRange(values[ParamHorzRange].(string)); err != nil {
			return plan{}, err
		}
		horzStep = values[ParamHorzStep].(int64)
	}

	grid, err := scandata.NewGrid(int(horzStep), int(values[ParamVertStep].(int64)), horz, vert)
	if err != nil {
		return plan{}, err
	}

	return plan{
		values: values,
		reducer: scandata.Config{
			Grid:      grid,
			TargetBER: values[ParamTargetBER].(float64),
			Mode:      mode,
		},
	}, nil
}
