package analysis

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/foreverwb/swing-workflow/internal/domain/market"
	"github.com/foreverwb/swing-workflow/internal/domain/params"
	"github.com/foreverwb/swing-workflow/internal/domain/workflow"
)

// FieldDelta is one field's movement between the baseline and the current
// readings. ChangePct is nil when the baseline value was zero.
type FieldDelta struct {
	Field     string   `json:"field"`
	Old       float64  `json:"old"`
	New       float64  `json:"new"`
	ChangePct *float64 `json:"change_pct"`
}

// CompareReport is the comparison stage payload.
type CompareReport struct {
	Symbol         string       `json:"symbol"`
	BaselineKind   string       `json:"baseline_kind"`
	BaselineTime   time.Time    `json:"baseline_time"`
	ThresholdPct   float64      `json:"threshold_pct"`
	Deltas         []FieldDelta `json:"deltas"`
	MissingFields  []string     `json:"missing_fields,omitempty"`
	MaterialChange bool         `json:"material_change"`
	MaterialFields []string     `json:"material_fields,omitempty"`
}

// Comparator diffs the current market readings against the last recorded
// baseline and decides whether the move is material.
type Comparator struct{}

// NewComparator returns the comparison stage handler.
func NewComparator() *Comparator { return &Comparator{} }

// Name implements workflow.Handler.
func (c *Comparator) Name() string { return workflow.StageComparison }

// Execute implements workflow.Handler.
func (c *Comparator) Execute(_ context.Context, view *workflow.StateView, ps params.Set) (any, error) {
	baseline := view.CompareBaseline()
	if baseline == nil || len(baseline.Fields) == 0 {
		return nil, workflow.NewStageError(c.Name(),
			fmt.Errorf("no baseline to compare against"))
	}
	current := view.MarketParams()
	if len(current) == 0 {
		return nil, workflow.NewStageError(c.Name(),
			fmt.Errorf("no current market parameters"))
	}
	if bad := market.MalformedNumeric(current, market.KeyFields...); len(bad) > 0 {
		return nil, workflow.NewStageError(c.Name(),
			fmt.Errorf("non-numeric market parameters: %s", strings.Join(bad, ", ")))
	}

	threshold := ps.FloatOr("compare.material_change_pct", 10)
	deltas, materialFields, missing := DiffFields(current, baseline.Fields, threshold)

	return &CompareReport{
		Symbol:         view.Symbol(),
		BaselineKind:   baseline.Kind,
		BaselineTime:   baseline.Time,
		ThresholdPct:   threshold,
		Deltas:         deltas,
		MissingFields:  missing,
		MaterialChange: len(materialFields) > 0,
		MaterialFields: materialFields,
	}, nil
}

// DiffFields compares every numeric field the two maps share, in sorted
// field order. Fields readable on only one side are reported as missing
// rather than diffed. A delta is material when its percentage change is
// defined and at least thresholdPct in magnitude.
func DiffFields(current, baseline map[string]any, thresholdPct float64) (deltas []FieldDelta, materialFields, missing []string) {
	fieldSet := map[string]struct{}{}
	for k := range current {
		fieldSet[k] = struct{}{}
	}
	for k := range baseline {
		fieldSet[k] = struct{}{}
	}
	fields := make([]string, 0, len(fieldSet))
	for k := range fieldSet {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	for _, field := range fields {
		oldV, okOld := market.Num(baseline, field)
		newV, okNew := market.Num(current, field)
		switch {
		case okOld && okNew:
			change := market.NewChange(oldV, newV)
			deltas = append(deltas, FieldDelta{
				Field:     field,
				Old:       oldV,
				New:       newV,
				ChangePct: change.ChangePct,
			})
			if change.ChangePct != nil && math.Abs(*change.ChangePct) >= thresholdPct {
				materialFields = append(materialFields, field)
			}
		case okOld != okNew:
			// numeric on one side only; strings on both sides are not
			// comparison material at all
			if isNonNumericScalar(current[field]) || isNonNumericScalar(baseline[field]) {
				continue
			}
			missing = append(missing, field)
		}
	}
	return deltas, materialFields, missing
}

func isNonNumericScalar(v any) bool {
	switch v.(type) {
	case string, bool:
		return true
	default:
		return false
	}
}
