package property

import (
	"fmt"
	"slices"
	"strings"

	"github.com/arloliu/go-eyescan/internal/util"
)

// ValueType is the declared type of a property value.
type ValueType uint8

const (
	Bool ValueType = iota
	Int
	Float
	String
)

// String returns the name of the type.
func (t ValueType) String() string {
	switch t {
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Float:
		return "float"
	case String:
		return "string"
	default:
		return "unknown"
	}
}

// Coerce converts v to the canonical Go type of t: bool, int64, float64 or string.
// Integers are accepted for Float, and floats without a fractional part for Int.
func (t ValueType) Coerce(v any) (any, error) {
	switch t {
	case Bool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case Int:
		if n, ok := util.ToInt64(v); ok {
			return n, nil
		}
	case Float:
		if f, ok := util.ToFloat64(v); ok {
			return f, nil
		}
	case String:
		if s, ok := v.(string); ok {
			return s, nil
		}
	default:
		return nil, fmt.Errorf("%w: unknown type %d", ErrInvalidValue, t)
	}

	return nil, fmt.Errorf("%w: %v (%T) is not a %s", ErrInvalidValue, v, v, t)
}

// Permission is a set of operations allowed on a property.
type Permission uint8

const (
	PermGet Permission = 1 << iota
	PermSet
	PermRefresh
	PermCommit

	PermNone Permission = 0
	PermAll             = PermGet | PermSet | PermRefresh | PermCommit
	// PermReadOnly is the usual permission set of a status property.
	PermReadOnly = PermGet | PermRefresh
)

// Has reports whether every operation of op is allowed.
func (p Permission) Has(op Permission) bool {
	return p&op == op
}

// String returns the permission names joined by "|", e.g. "GET|REFRESH".
func (p Permission) String() string {
	names := make([]string, 0, 4)
	for _, perm := range []struct {
		bit  Permission
		name string
	}{{PermGet, "GET"}, {PermSet, "SET"}, {PermRefresh, "REFRESH"}, {PermCommit, "COMMIT"}} {
		if p.Has(perm.bit) {
			names = append(names, perm.name)
		}
	}
	if len(names) == 0 {
		return "NONE"
	}

	return strings.Join(names, "|")
}

// Kind distinguishes stored properties from properties computed by the service.
type Kind uint8

const (
	// Normal properties hold a value that can be set locally and committed.
	Normal Kind = iota
	// Computed properties are derived by the remote service and can never be set.
	Computed
)

func (k Kind) String() string {
	if k == Computed {
		return "computed"
	}

	return "normal"
}

// Def declares a property.
type Def struct {
	Name        string
	Description string
	Type        ValueType
	Perms       Permission
	// Default is the initial cached value. Nil leaves the property unset until refreshed.
	Default any
	// Domain is the ordered list of legal values. An empty domain means free-form.
	Domain []any
	Groups []string
	Kind   Kind
}

// Enumerated reports whether the property declares a domain.
func (d Def) Enumerated() bool {
	return len(d.Domain) > 0
}

// normalize validates the declaration and converts Default and Domain to canonical values.
func (d Def) normalize() (Def, error) {
	if d.Name == "" {
		return d, fmt.Errorf("%w: empty property name", ErrInvalidDef)
	}
	if d.Type > String {
		return d, fmt.Errorf("%w: %s: unknown type %d", ErrInvalidDef, d.Name, d.Type)
	}
	if d.Kind > Computed {
		return d, fmt.Errorf("%w: %s: unknown kind %d", ErrInvalidDef, d.Name, d.Kind)
	}

	out := d
	out.Groups = slices.Clone(d.Groups)
	out.Domain = make([]any, 0, len(d.Domain))
	for _, v := range d.Domain {
		cv, err := d.Type.Coerce(v)
		if err != nil {
			return d, fmt.Errorf("%w: %s: domain: %w", ErrInvalidDef, d.Name, err)
		}
		out.Domain = append(out.Domain, cv)
	}

	if d.Default != nil {
		v, err := out.check(d.Default)
		if err != nil {
			return d, fmt.Errorf("%w: %s: default: %w", ErrInvalidDef, d.Name, err)
		}
		out.Default = v
	}

	return out, nil
}

// check coerces v to the property type and verifies domain membership.
func (d Def) check(v any) (any, error) {
	cv, err := d.Type.Coerce(v)
	if err != nil {
		return nil, err
	}

	if d.Enumerated() && !slices.Contains(d.Domain, cv) {
		return nil, fmt.Errorf("%w: %v is not one of %v", ErrInvalidValue, v, d.Domain)
	}

	return cv, nil
}

// Descriptor describes a property and its cached value.
type Descriptor struct {
	Name        string
	Description string
	Type        ValueType
	Perms       Permission
	Default     any
	Value       any
	Kind        Kind
	Groups      []string
	// Domain is set only for enumerated properties.
	Domain []any
}
