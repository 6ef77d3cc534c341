package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foreverwb/swing-workflow/internal/domain/params"
	"github.com/foreverwb/swing-workflow/internal/domain/workflow"
)

func fullMarketParams() map[string]any {
	return map[string]any{
		"vix": 18.0, "ivr": 65.0, "iv30": 22.0, "hv20": 19.0,
		"spot_price":            585.0,
		"vol_trigger":           580.0,
		"em1_dollar":            5.0,
		"call_wall":             600.0,
		"put_wall":              570.0,
		"wall_cluster_strength": 1.0,
		"dex_same_dir_pct":      75.0,
		"vanna_dir":             "up",
		"vanna_confidence":      "high",
		"iv_path":               "crush_expected",
		"iv_path_confidence":    "high",
	}
}

func runScoring(t *testing.T, mp map[string]any, eventPayload any, ps params.Set) *ScoreReport {
	t.Helper()
	rs := workflow.NewRunState("SPY", workflow.ModeFull, mp, nil,
		time.Date(2025, 11, 10, 14, 30, 0, 0, time.UTC))
	if eventPayload != nil {
		rs.StageResults.Merge(workflow.StageEventDetection, workflow.MergeAppend, eventPayload)
	}
	out, err := NewScoringEngine().Execute(context.Background(), rs.View(nil, nil), ps)
	require.NoError(t, err)
	return out.(*ScoreReport)
}

func breakdownSum(report *ScoreReport) float64 {
	var sum float64
	for _, v := range report.Breakdown {
		sum += v
	}
	return sum
}

func TestScoringFullInputs(t *testing.T) {
	report := runScoring(t, fullMarketParams(), nil, params.Set{})

	// gamma above (7*0.4) + wide gap with weak cluster (4*0.3) +
	// confirmed direction (9*0.2) + expected crush (8*0.1)
	assert.InDelta(t, 6.6, report.Total, 1e-9)
	assert.Equal(t, RegimeAbove, report.Regime)
	assert.Equal(t, 7.0, report.Dimensions[DimGammaRegime].Score)
	assert.Equal(t, 4.0, report.Dimensions[DimBreakWall].Score)
	assert.Equal(t, 9.0, report.Dimensions[DimDirection].Score)
	assert.Equal(t, 8.0, report.Dimensions[DimIV].Score)
	assert.Zero(t, report.EventRisk)

	assert.Equal(t, EntryProbe, report.EntryCheck)
	assert.Contains(t, report.ConditionsMet, CondScore)
	assert.Contains(t, report.ConditionsMet, CondRegime)
	assert.Contains(t, report.ConditionsFailed, CondPOP)
}

func TestScoringBreakdownSumsToTotal(t *testing.T) {
	cases := []map[string]any{
		fullMarketParams(),
		{"vix": 18.0, "ivr": 65.0, "iv30": 22.0, "hv20": 19.0},
		{"vix": 30.0, "ivr": 85.0, "iv30": 30.0, "hv20": 20.0,
			"spot_price": 450.0, "vol_trigger": 470.0, "em1_dollar": 9.0,
			"put_wall": 445.0, "dex_same_dir_pct": 40.0, "iv_path": "expansion"},
		{"vix": 12.0, "ivr": 25.0, "iv30": 16.0, "hv20": 20.0,
			"spot_price": 585.0, "vol_trigger": 584.9, "em1_dollar": 4.0,
			"call_wall": 586.0, "wall_cluster_strength": 2.5, "iv_path": "stable"},
	}
	eventPayloads := []any{
		nil,
		&EventReport{RiskLevel: RiskMedium, MaxDTE: 14},
		&EventReport{RiskLevel: RiskHigh, MaxDTE: 5},
	}

	for _, mp := range cases {
		for _, ev := range eventPayloads {
			report := runScoring(t, mp, ev, params.Set{})
			assert.InDelta(t, report.Total, breakdownSum(report), 1e-6,
				"breakdown must sum to the total")
			for dim, ds := range report.Dimensions {
				assert.GreaterOrEqual(t, ds.Score, 1.0, dim)
				assert.LessOrEqual(t, ds.Score, 10.0, dim)
			}
		}
	}
}

func TestScoringMinimalInputsDegrade(t *testing.T) {
	report := runScoring(t, map[string]any{"vix": 18.0, "ivr": 65.0, "iv30": 22.0, "hv20": 19.0}, nil, params.Set{})

	// unknown regime (4*0.4) + unknown gap (3*0.3) + no direction signal
	// (5*0.2) + unknown iv path (5*0.1)
	assert.InDelta(t, 4.0, report.Total, 1e-9)
	assert.Equal(t, RegimeUnknown, report.Regime)
	assert.Equal(t, EntryProbe, report.EntryCheck)
}

func TestScoringEventRiskPenalty(t *testing.T) {
	minimal := map[string]any{"vix": 18.0, "ivr": 65.0, "iv30": 22.0, "hv20": 19.0}

	medium := runScoring(t, minimal, &EventReport{RiskLevel: RiskMedium, MaxDTE: 14}, params.Set{})
	assert.InDelta(t, 3.5, medium.Total, 1e-9)
	assert.Equal(t, -0.5, medium.EventRisk)

	high := runScoring(t, minimal, &EventReport{RiskLevel: RiskHigh, MaxDTE: 5}, params.Set{})
	assert.InDelta(t, 3.0, high.Total, 1e-9)
	assert.Equal(t, -1.0, high.EventRisk)
	assert.Equal(t, EntryStandAside, high.EntryCheck,
		"high event risk fails the gate even at the score threshold")

	// the decoded map form of an event payload works the same way
	mapForm := runScoring(t, minimal,
		map[string]any{"risk_level": "medium", "max_dte": 14.0}, params.Set{})
	assert.Equal(t, -0.5, mapForm.EventRisk)
}

func TestScoringEnterRequiresAllConditions(t *testing.T) {
	mp := fullMarketParams()
	mp["pop"] = 68.0
	// pull price to half an expected move from the call wall
	mp["spot_price"] = 598.0
	mp["vol_trigger"] = 580.0

	report := runScoring(t, mp, nil, params.Set{})

	assert.Equal(t, EntryEnter, report.EntryCheck)
	assert.Len(t, report.ConditionsMet, 4)
	assert.Empty(t, report.ConditionsFailed)
}

func TestScoringNearTrigger(t *testing.T) {
	mp := fullMarketParams()
	mp["spot_price"] = 581.0 // within half an expected move of 580
	report := runScoring(t, mp, nil, params.Set{})

	assert.Equal(t, RegimeNear, report.Regime)
	assert.Equal(t, 4.0, report.Dimensions[DimGammaRegime].Score)
	assert.Contains(t, report.RiskWarnings, "price pinned at the volatility trigger")
}

func TestScoringGapTiers(t *testing.T) {
	base := map[string]any{
		"vix": 18.0, "ivr": 65.0, "iv30": 22.0, "hv20": 19.0,
		"vol_trigger": 580.0, "em1_dollar": 5.0,
	}

	tests := []struct {
		name  string
		spot  float64
		wall  float64
		score float64
	}{
		{"tight gap scores nine", 599.0, 600.0, 9},   // 0.2 EM1
		{"moderate gap scores six", 597.0, 600.0, 6}, // 0.6 EM1
		{"wide gap scores three", 590.0, 600.0, 3},   // 2.0 EM1
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mp := map[string]any{}
			for k, v := range base {
				mp[k] = v
			}
			mp["spot_price"] = tt.spot
			mp["call_wall"] = tt.wall

			report := runScoring(t, mp, nil, params.Set{})
			assert.Equal(t, tt.score, report.Dimensions[DimBreakWall].Score)
		})
	}
}

func TestScoringClusterAdjustment(t *testing.T) {
	mp := fullMarketParams()
	mp["spot_price"] = 599.0 // tight gap, base 9

	mp["wall_cluster_strength"] = 2.5
	strong := runScoring(t, mp, nil, params.Set{})
	assert.Equal(t, 8.0, strong.Dimensions[DimBreakWall].Score)
	assert.Contains(t, strong.RiskWarnings, "strong gamma wall cluster in range")

	mp["wall_cluster_strength"] = 1.5
	trend := runScoring(t, mp, nil, params.Set{})
	assert.Equal(t, 9.0, trend.Dimensions[DimBreakWall].Score)

	mp["wall_cluster_strength"] = 0.5
	weak := runScoring(t, mp, nil, params.Set{})
	assert.Equal(t, 10.0, weak.Dimensions[DimBreakWall].Score)
}

func TestScoringWeightsFromParams(t *testing.T) {
	ps := params.Set{
		"scoring": map[string]any{
			"weights": map[string]any{
				"gamma_regime": 0.25, "break_wall": 0.25, "direction": 0.25, "iv": 0.25,
			},
		},
	}
	minimal := map[string]any{"vix": 18.0, "ivr": 65.0, "iv30": 22.0, "hv20": 19.0}
	report := runScoring(t, minimal, nil, ps)

	// (4 + 3 + 5 + 5) / 4
	assert.InDelta(t, 4.25, report.Total, 1e-9)
	assert.InDelta(t, report.Total, breakdownSum(report), 1e-6)
}

func TestScoringFailures(t *testing.T) {
	rs := workflow.NewRunState("SPY", workflow.ModeFull, nil, nil, time.Now())
	_, err := NewScoringEngine().Execute(context.Background(), rs.View(nil, nil), params.Set{})
	require.Error(t, err)
	assert.True(t, workflow.IsStageError(err))

	bad := fullMarketParams()
	bad["spot_price"] = "585 and change"
	rs = workflow.NewRunState("SPY", workflow.ModeFull, bad, nil, time.Now())
	_, err = NewScoringEngine().Execute(context.Background(), rs.View(nil, nil), params.Set{})
	require.Error(t, err)
	assert.True(t, workflow.IsStageError(err))
	assert.Equal(t, workflow.StageScoring, workflow.FailedStage(err))
}
