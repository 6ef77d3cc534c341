// Package market models the observed option-market inputs of a run: the
// validated core readings, the volatility scenario derived from them, and
// the greeks snapshots kept per cache document.
package market

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/foreverwb/swing-workflow/internal/domain/workflow"
)

// MissingSentinel marks a reading the upstream extractor could not supply.
// Values equal to it are treated as absent everywhere.
const MissingSentinel = -999

// Params are the four readings every analysis run requires. Everything
// else in a market parameter map (spot, walls, dealer flow) is optional
// and degrades the affected score dimension when absent.
type Params struct {
	Vix  float64 `json:"vix" validate:"gte=0,lte=200"`
	IVR  float64 `json:"ivr" validate:"gte=0,lte=100"`
	IV30 float64 `json:"iv30" validate:"gte=0,lte=500"`
	HV20 float64 `json:"hv20" validate:"gt=0,lte=500"`
}

// VRP is the volatility risk premium, implied over realized.
func (p Params) VRP() float64 {
	return p.IV30 / p.HV20
}

// RequiredKeys lists the map keys FromMap demands, in report order.
func RequiredKeys() []string {
	return []string{"vix", "ivr", "iv30", "hv20"}
}

var validate = validator.New()

// FromMap extracts and validates the core readings from a raw parameter
// map. All problems are collected into one ParameterError so a caller
// fixing their input sees every issue at once.
func FromMap(m map[string]any) (Params, error) {
	var missing, malformed []string

	get := func(key string) float64 {
		v, exists := m[key]
		if !exists || v == nil {
			missing = append(missing, key)
			return 0
		}
		f, ok := toFloat(v)
		if !ok || f == MissingSentinel {
			malformed = append(malformed, key)
			return 0
		}
		return f
	}

	p := Params{
		Vix:  get("vix"),
		IVR:  get("ivr"),
		IV30: get("iv30"),
		HV20: get("hv20"),
	}

	if len(missing) > 0 || len(malformed) > 0 {
		var parts []string
		if len(missing) > 0 {
			parts = append(parts, "missing "+strings.Join(missing, ", "))
		}
		if len(malformed) > 0 {
			parts = append(parts, "non-numeric "+strings.Join(malformed, ", "))
		}
		err := workflow.NewParameterError("market params: " + strings.Join(parts, "; "))
		if len(missing) > 0 {
			err = err.WithDetail("missing", missing)
		}
		if len(malformed) > 0 {
			err = err.WithDetail("malformed", malformed)
		}
		return Params{}, err
	}

	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s out of range (%s)", strings.ToLower(fe.Field()), fe.Tag()))
			}
			sort.Strings(fields)
			return Params{}, workflow.NewParameterError("market params: " + strings.Join(fields, ", ")).
				WithDetail("fields", fields)
		}
		return Params{}, workflow.NewParameterError("market params: " + err.Error())
	}
	return p, nil
}

// Validate checks a raw parameter map without keeping the extracted struct.
func Validate(m map[string]any) error {
	_, err := FromMap(m)
	return err
}

// Num reads a numeric value from a parameter map. The missing sentinel
// reads as absent.
func Num(m map[string]any, key string) (float64, bool) {
	v, exists := m[key]
	if !exists {
		return 0, false
	}
	f, ok := toFloat(v)
	if !ok || f == MissingSentinel {
		return 0, false
	}
	return f, true
}

// Str reads a string value from a parameter map.
func Str(m map[string]any, key string) (string, bool) {
	v, exists := m[key]
	if !exists {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Flag reads a boolean value from a parameter map.
func Flag(m map[string]any, key string) (bool, bool) {
	v, exists := m[key]
	if !exists {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Missing reports whether a raw parameter value means "not provided":
// nil or the numeric missing sentinel. Merges skip such values so they
// never clobber a reading carried forward from the cache.
func Missing(v any) bool {
	if v == nil {
		return true
	}
	f, ok := toFloat(v)
	return ok && f == MissingSentinel
}

// MalformedNumeric reports which of the given numeric keys are present but
// not readable as numbers. Stage handlers use it to distinguish "absent,
// degrade gracefully" from "present but garbage, fail the stage".
func MalformedNumeric(m map[string]any, keys ...string) []string {
	var bad []string
	for _, key := range keys {
		v, exists := m[key]
		if !exists || v == nil {
			continue
		}
		if _, ok := toFloat(v); !ok {
			bad = append(bad, key)
		}
	}
	return bad
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
