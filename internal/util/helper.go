package util

import (
	"cmp"
	"maps"
	"slices"
)

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	return slices.Sorted(maps.Keys(m))
}

// Dedup returns names without duplicates, keeping the first occurrence order.
func Dedup(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}

	return out
}

// NormalizeNumber converts any Go integer kind to int64 and any float kind to float64.
// Other values are returned unchanged.
//
// It is used so that values coming from callers, YAML files and the remote service compare
// equal regardless of the concrete numeric type that carried them.
func NormalizeNumber(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint:
		return int64(n) //nolint:gosec
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n) //nolint:gosec
	case float32:
		return float64(n)
	case float64:
		return n
	default:
		return v
	}
}

// ToFloat64 converts a normalized integer or float to float64.
func ToFloat64(v any) (float64, bool) {
	switch n := NormalizeNumber(v).(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// ToInt64 converts a normalized integer, or a float without fractional part, to int64.
func ToInt64(v any) (int64, bool) {
	switch n := NormalizeNumber(v).(type) {
	case int64:
		return n, true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
		return 0, false
	default:
		return 0, false
	}
}
