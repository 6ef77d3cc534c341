// Package params implements the layered parameter model shared by every
// analysis stage. A Set is the already-merged view: configuration defaults
// at the bottom, parameters remembered in the cache document in the middle,
// and per-run dynamic overrides on top.
package params

import "strings"

// Set is an effective parameter mapping. Nested maps are addressed with
// dotted paths, e.g. "scoring.weights.gamma_regime".
type Set map[string]any

// Get walks a dotted path and returns the raw value.
func (s Set) Get(path string) (any, bool) {
	return lookup(map[string]any(s), path)
}

// Has reports whether the path resolves to any value.
func (s Set) Has(path string) bool {
	_, ok := s.Get(path)
	return ok
}

// Float returns the value at path coerced to float64. Integer values
// coerce; anything else reports false.
func (s Set) Float(path string) (float64, bool) {
	v, ok := s.Get(path)
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// FloatOr returns the float at path or def when absent or non-numeric.
func (s Set) FloatOr(path string, def float64) float64 {
	if v, ok := s.Float(path); ok {
		return v
	}
	return def
}

// Int returns the value at path as an int, rounding floats.
func (s Set) Int(path string) (int, bool) {
	v, ok := s.Float(path)
	if !ok {
		return 0, false
	}
	if v >= 0 {
		return int(v + 0.5), true
	}
	return int(v - 0.5), true
}

// IntOr returns the int at path or def when absent or non-numeric.
func (s Set) IntOr(path string, def int) int {
	if v, ok := s.Int(path); ok {
		return v
	}
	return def
}

// Str returns the string value at path.
func (s Set) Str(path string) (string, bool) {
	v, ok := s.Get(path)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// StrOr returns the string at path or def when absent or non-string.
func (s Set) StrOr(path string, def string) string {
	if v, ok := s.Str(path); ok {
		return v
	}
	return def
}

// Bool returns the boolean value at path.
func (s Set) Bool(path string) (bool, bool) {
	v, ok := s.Get(path)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// BoolOr returns the bool at path or def when absent or non-boolean.
func (s Set) BoolOr(path string, def bool) bool {
	if v, ok := s.Bool(path); ok {
		return v
	}
	return def
}

// Clone returns a deep copy. Mutating the copy never affects the original.
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	return Set(deepCopyMap(map[string]any(s)))
}

// Expand turns a dotted key into the nested map form used by the merge
// layers, so "compare.material_change_pct" becomes
// {"compare": {"material_change_pct": v}}.
func Expand(key string, value any) map[string]any {
	parts := strings.Split(key, ".")
	out := map[string]any{parts[len(parts)-1]: deepCopyValue(value)}
	for i := len(parts) - 2; i >= 0; i-- {
		out = map[string]any{parts[i]: out}
	}
	return out
}

func lookup(m map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	cur := any(m)
	for _, part := range parts {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = node[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}
