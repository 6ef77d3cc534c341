package analysis

import (
	"github.com/foreverwb/swing-workflow/internal/domain/market"
)

// Stage payloads live in two forms: the typed structs produced in-process
// and the map[string]any shape they decode back into from a cache
// document. These helpers read the fields later stages depend on from
// either form.

// TotalScore extracts the weighted total from a scoring payload.
func TotalScore(v any) (float64, bool) {
	switch p := v.(type) {
	case *ScoreReport:
		return p.Total, true
	case ScoreReport:
		return p.Total, true
	case map[string]any:
		return market.Num(p, "total_score")
	}
	return 0, false
}

// EventConstraints extracts the risk grade and DTE cap from an event
// detection payload. ok is false when the payload carries neither.
func EventConstraints(v any) (riskLevel string, maxDTE int, ok bool) {
	switch p := v.(type) {
	case *EventReport:
		return p.RiskLevel, p.MaxDTE, true
	case EventReport:
		return p.RiskLevel, p.MaxDTE, true
	case map[string]any:
		level, okLevel := market.Str(p, "risk_level")
		dte, okDTE := market.Num(p, "max_dte")
		if !okLevel && !okDTE {
			return "", 0, false
		}
		return level, int(dte), true
	}
	return "", 0, false
}

// MaterialChangeFlag extracts the material flag from a comparison payload.
func MaterialChangeFlag(v any) (bool, bool) {
	switch p := v.(type) {
	case *CompareReport:
		return p.MaterialChange, true
	case CompareReport:
		return p.MaterialChange, true
	case map[string]any:
		return market.Flag(p, "material_change")
	}
	return false, false
}

// RegimeOf extracts the price regime from a scoring payload.
func RegimeOf(v any) (string, bool) {
	switch p := v.(type) {
	case *ScoreReport:
		return p.Regime, true
	case ScoreReport:
		return p.Regime, true
	case map[string]any:
		return market.Str(p, "regime")
	}
	return "", false
}

// StrategyCategory extracts the recommended category from a strategy
// payload.
func StrategyCategory(v any) (string, bool) {
	switch p := v.(type) {
	case *StrategyReport:
		return p.Category, true
	case StrategyReport:
		return p.Category, true
	case map[string]any:
		return market.Str(p, "category")
	}
	return "", false
}

// ScenarioOf extracts the volatility scenario label from a dynamic
// parameter map.
func ScenarioOf(dyn map[string]any) (string, bool) {
	return market.Str(dyn, "scenario")
}
