package params

import (
	"fmt"
	"sort"

	"github.com/foreverwb/swing-workflow/internal/domain/workflow/wferr"
)

// Layer names used in error details so a failed resolve says which input
// carried the offending key.
const (
	layerCached = "cached"
	layerDyn    = "dyn"
)

// Resolve merges the three parameter layers into one effective Set.
// Precedence: dyn over cached over defaults. The merge is deep for nested
// maps and never mutates any input.
//
// Overriding an existing key with a value of a different kind (number vs
// string vs bool vs map) fails with a ParameterError naming the key and the
// layer, so a typo like --set scoring.weights=high cannot silently corrupt
// a run. Nil overlay values are ignored; absence, not null, is how a layer
// declines to override.
func Resolve(defaults Set, cached map[string]any, dyn map[string]any) (Set, error) {
	out := deepCopyMap(map[string]any(defaults))
	if out == nil {
		out = map[string]any{}
	}
	if err := mergeLayer(out, cached, layerCached, ""); err != nil {
		return nil, err
	}
	if err := mergeLayer(out, dyn, layerDyn, ""); err != nil {
		return nil, err
	}
	return Set(out), nil
}

func mergeLayer(dst map[string]any, overlay map[string]any, layer, prefix string) error {
	// Deterministic order keeps the first reported conflict stable.
	keys := make([]string, 0, len(overlay))
	for k := range overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		val := overlay[key]
		if val == nil {
			continue
		}
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}

		existing, exists := dst[key]
		if !exists || existing == nil {
			dst[key] = deepCopyValue(val)
			continue
		}

		dstMap, dstIsMap := existing.(map[string]any)
		srcMap, srcIsMap := val.(map[string]any)
		switch {
		case dstIsMap && srcIsMap:
			if err := mergeLayer(dstMap, srcMap, layer, path); err != nil {
				return err
			}
		case dstIsMap != srcIsMap:
			return typeConflict(path, layer, existing, val)
		default:
			if kindOf(existing) != kindOf(val) {
				return typeConflict(path, layer, existing, val)
			}
			dst[key] = deepCopyValue(val)
		}
	}
	return nil
}

func typeConflict(path, layer string, old, new any) error {
	return wferr.NewParameterError(
		fmt.Sprintf("parameter %q: %s layer has %s, existing value is %s",
			path, layer, kindOf(new), kindOf(old))).
		WithDetail("parameter", path).
		WithDetail("layer", layer)
}

// kindOf buckets values into merge-compatible families. All numeric types
// are one family because JSON decoding and Go literals disagree about
// int vs float64.
func kindOf(v any) string {
	switch v.(type) {
	case float64, float32, int, int32, int64, uint, uint32, uint64:
		return "number"
	case string:
		return "string"
	case bool:
		return "bool"
	case map[string]any:
		return "map"
	case []any:
		return "list"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}
