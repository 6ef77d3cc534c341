package market

import "math"

// Scenario is the volatility regime derived from the core readings.
type Scenario string

const (
	// ScenarioSqueezePanic is rich volatility premium or stretched IV
	// rank: compressed windows, short tenors, wide strike coverage.
	ScenarioSqueezePanic Scenario = "squeeze_panic"
	// ScenarioGrindLowVol is cheap premium or depressed IV rank: wide
	// windows, long tenors, narrow strike coverage.
	ScenarioGrindLowVol Scenario = "grind_low_vol"
	// ScenarioNormalTrend is everything in between.
	ScenarioNormalTrend Scenario = "normal_trend"
)

// CalcThresholds are the regime boundaries for CalcState.
type CalcThresholds struct {
	VRPSqueeze float64 // VRP above this is squeeze territory
	VRPGrind   float64 // VRP below this is grind territory
	IVRHigh    float64
	IVRLow     float64
	VixPanic   float64 // splits squeeze into panic / elevated
	VixCalm    float64 // splits grind into dead-calm / drifting
}

// DefaultCalcThresholds returns the standard regime boundaries.
func DefaultCalcThresholds() CalcThresholds {
	return CalcThresholds{
		VRPSqueeze: 1.15,
		VRPGrind:   0.90,
		IVRHigh:    80,
		IVRLow:     30,
		VixPanic:   25,
		VixCalm:    15,
	}
}

// CalcState maps the core readings onto the dynamic analysis parameters:
// how many strikes to cover, how wide an observation window to use and
// which expirations to target. The result is merged into a run's dynamic
// overlay, so any field can still be pinned manually per run.
func CalcState(p Params, th CalcThresholds) map[string]any {
	vrp := p.VRP()

	strikes, window := 30, 60
	dteShort, dteMid, dteLong := 14, 30, 60
	scenario := ScenarioNormalTrend

	switch {
	case vrp > th.VRPSqueeze || p.IVR > th.IVRHigh:
		scenario = ScenarioSqueezePanic
		if p.Vix > th.VixPanic {
			strikes, window = 50, 20
			dteShort, dteMid, dteLong = 3, 7, 14
		} else {
			strikes, window = 45, 45
			dteShort, dteMid, dteLong = 7, 14, 30
		}
	case vrp < th.VRPGrind || p.IVR < th.IVRLow:
		scenario = ScenarioGrindLowVol
		if p.Vix < th.VixCalm {
			strikes, window = 25, 90
			dteShort, dteMid, dteLong = 30, 60, 90
		} else {
			strikes, window = 35, 60
			dteShort, dteMid, dteLong = 21, 45, 60
		}
	}

	return map[string]any{
		"scenario":            string(scenario),
		"vrp":                 round3(vrp),
		"dyn_strikes":         float64(strikes),
		"dyn_window":          float64(window),
		"dyn_dte_short":       float64(dteShort),
		"dyn_dte_mid":         float64(dteMid),
		"dyn_dte_long_backup": float64(dteLong),
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// Round2 rounds to two decimals, the precision used for reported deltas.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
