package analysis

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/foreverwb/swing-workflow/internal/domain/market"
	"github.com/foreverwb/swing-workflow/internal/domain/params"
	"github.com/foreverwb/swing-workflow/internal/domain/workflow"
)

// Price regimes relative to the volatility trigger.
const (
	RegimeAbove   = "above"
	RegimeBelow   = "below"
	RegimeNear    = "near"
	RegimeUnknown = "unknown"
)

// Entry gate outcomes.
const (
	EntryEnter      = "enter"
	EntryProbe      = "probe"
	EntryStandAside = "stand_aside"
)

// Scoring dimension names, also the breakdown keys.
const (
	DimGammaRegime = "gamma_regime"
	DimBreakWall   = "break_wall"
	DimDirection   = "direction"
	DimIV          = "iv"
	DimEventRisk   = "event_risk"
)

// Entry condition tags.
const (
	CondScore     = "score_above_gate"
	CondPOP       = "pop_above_gate"
	CondRegime    = "regime_decisive"
	CondEventRisk = "event_risk_contained"
)

// DimScore is one dimension's raw 1-10 score before weighting.
type DimScore struct {
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
	Basis  string  `json:"basis"`
}

// ScoreReport is the scoring stage payload. Breakdown holds the weighted
// contribution per dimension plus the additive event risk; its values sum
// to Total.
type ScoreReport struct {
	Symbol           string              `json:"symbol"`
	Total            float64             `json:"total_score"`
	Breakdown        map[string]float64  `json:"breakdown"`
	Dimensions       map[string]DimScore `json:"dimensions"`
	Regime           string              `json:"regime"`
	EventRisk        float64             `json:"event_risk"`
	EntryCheck       string              `json:"entry_check"`
	ConditionsMet    []string            `json:"conditions_met,omitempty"`
	ConditionsFailed []string            `json:"conditions_failed,omitempty"`
	RiskWarnings     []string            `json:"risk_warnings,omitempty"`
}

// ScoringEngine grades the setup across four weighted dimensions and runs
// the entry gate.
type ScoringEngine struct{}

// NewScoringEngine returns the scoring stage handler.
func NewScoringEngine() *ScoringEngine { return &ScoringEngine{} }

// Name implements workflow.Handler.
func (s *ScoringEngine) Name() string { return workflow.StageScoring }

// numericInputs are the optional readings scoring consumes. Present but
// non-numeric values fail the stage; absent ones degrade the dimension.
var numericInputs = []string{
	"spot_price", "vol_trigger", "em1_dollar", "call_wall", "put_wall",
	"gap_distance_em1", "wall_cluster_strength", "dex_same_dir_pct", "pop",
}

// Execute implements workflow.Handler.
func (s *ScoringEngine) Execute(_ context.Context, view *workflow.StateView, ps params.Set) (any, error) {
	mp := view.MarketParams()
	if len(mp) == 0 {
		return nil, workflow.NewStageError(s.Name(),
			fmt.Errorf("no market parameters to score"))
	}
	if bad := market.MalformedNumeric(mp, append([]string{"vix", "ivr", "iv30", "hv20"}, numericInputs...)...); len(bad) > 0 {
		return nil, workflow.NewStageError(s.Name(),
			fmt.Errorf("non-numeric market parameters: %s", strings.Join(bad, ", ")))
	}

	weights := map[string]float64{
		DimGammaRegime: ps.FloatOr("scoring.weights.gamma_regime", 0.4),
		DimBreakWall:   ps.FloatOr("scoring.weights.break_wall", 0.3),
		DimDirection:   ps.FloatOr("scoring.weights.direction", 0.2),
		DimIV:          ps.FloatOr("scoring.weights.iv", 0.1),
	}

	em1, hasEM1 := em1Of(mp, ps)

	gammaScore, regime := gammaRegimeScore(mp, em1, hasEM1)
	breakScore, gapEM1, hasGap, breakBasis := breakWallScore(mp, ps, regime, em1, hasEM1)
	dirScore, dirBasis := directionScore(mp, ps)
	ivScore, ivBasis := ivPathScore(mp)
	eventRisk := eventRiskAdjustment(view)

	report := &ScoreReport{
		Symbol: view.Symbol(),
		Regime: regime,
		Dimensions: map[string]DimScore{
			DimGammaRegime: {Score: gammaScore, Weight: weights[DimGammaRegime], Basis: regime},
			DimBreakWall:   {Score: breakScore, Weight: weights[DimBreakWall], Basis: breakBasis},
			DimDirection:   {Score: dirScore, Weight: weights[DimDirection], Basis: dirBasis},
			DimIV:          {Score: ivScore, Weight: weights[DimIV], Basis: ivBasis},
		},
		EventRisk: eventRisk,
	}

	report.Breakdown = map[string]float64{
		DimGammaRegime: round4(gammaScore * weights[DimGammaRegime]),
		DimBreakWall:   round4(breakScore * weights[DimBreakWall]),
		DimDirection:   round4(dirScore * weights[DimDirection]),
		DimIV:          round4(ivScore * weights[DimIV]),
		DimEventRisk:   eventRisk,
	}
	for _, v := range report.Breakdown {
		report.Total += v
	}
	report.Total = round4(report.Total)

	s.entryGate(report, mp, ps, eventRisk)
	s.riskWarnings(report, mp, ps, gapEM1, hasGap)

	return report, nil
}

// em1Of reads the one-day expected move, deriving it from spot and IV30
// when not supplied directly.
func em1Of(mp map[string]any, ps params.Set) (float64, bool) {
	if em1, ok := market.Num(mp, "em1_dollar"); ok && em1 > 0 {
		return em1, true
	}
	spot, okSpot := market.Num(mp, "spot_price")
	iv30, okIV := market.Num(mp, "iv30")
	if !okSpot || !okIV || spot <= 0 || iv30 <= 0 {
		return 0, false
	}
	factor := ps.FloatOr("strategy.em1_sqrt_factor", 0.06299)
	return spot * iv30 / 100 * factor, true
}

// gammaRegimeScore grades where price sits relative to the volatility
// trigger. Clearly above or below is tradable (7); pinned at the trigger
// or unknown is not (4).
func gammaRegimeScore(mp map[string]any, em1 float64, hasEM1 bool) (float64, string) {
	spot, okSpot := market.Num(mp, "spot_price")
	trigger, okTrig := market.Num(mp, "vol_trigger")
	if !okSpot || !okTrig {
		return 4, RegimeUnknown
	}

	nearBand := 0.0
	if hasEM1 {
		nearBand = 0.5 * em1
	}
	switch {
	case math.Abs(spot-trigger) <= nearBand:
		return 4, RegimeNear
	case spot > trigger:
		return 7, RegimeAbove
	default:
		return 7, RegimeBelow
	}
}

// breakWallScore grades how much room price has before the nearest gamma
// wall, in units of the one-day expected move, then adjusts for wall
// cluster strength.
func breakWallScore(mp map[string]any, ps params.Set, regime string, em1 float64, hasEM1 bool) (score, gapEM1 float64, hasGap bool, basis string) {
	gapEM1, hasGap = gapDistanceEM1(mp, regime, em1, hasEM1)

	low := ps.FloatOr("scoring.break_wall.low", 0.4)
	high := ps.FloatOr("scoring.break_wall.high", 0.8)

	switch {
	case !hasGap:
		score, basis = 3, "gap_unknown"
	case gapEM1 < low:
		score, basis = 9, "gap_tight"
	case gapEM1 < high:
		score, basis = 6, "gap_moderate"
	default:
		score, basis = 3, "gap_wide"
	}

	if cluster, ok := market.Num(mp, "wall_cluster_strength"); ok {
		strong := ps.FloatOr("scoring.cluster.strong", 2.0)
		trend := ps.FloatOr("scoring.cluster.trend", 1.2)
		switch {
		case cluster >= strong:
			score--
		case cluster < trend:
			score++
		}
	}

	score = math.Min(10, math.Max(1, score))
	return score, gapEM1, hasGap, basis
}

// gapDistanceEM1 measures the distance to the wall price would break
// through: the call wall when above the trigger, the put wall when below,
// the nearer of the two otherwise. A precomputed gap_distance_em1 reading
// wins over derivation.
func gapDistanceEM1(mp map[string]any, regime string, em1 float64, hasEM1 bool) (float64, bool) {
	if gap, ok := market.Num(mp, "gap_distance_em1"); ok && gap >= 0 {
		return gap, true
	}
	if !hasEM1 || em1 <= 0 {
		return 0, false
	}
	spot, okSpot := market.Num(mp, "spot_price")
	if !okSpot {
		return 0, false
	}
	callWall, okCall := market.Num(mp, "call_wall")
	putWall, okPut := market.Num(mp, "put_wall")

	dist := math.Inf(1)
	switch regime {
	case RegimeAbove:
		if okCall {
			dist = callWall - spot
		}
	case RegimeBelow:
		if okPut {
			dist = spot - putWall
		}
	default:
		if okCall {
			dist = math.Min(dist, math.Abs(callWall-spot))
		}
		if okPut {
			dist = math.Min(dist, math.Abs(spot-putWall))
		}
	}
	if math.IsInf(dist, 1) {
		return 0, false
	}
	// price already through the wall reads as zero distance
	return math.Max(dist, 0) / em1, true
}

// directionScore grades dealer-flow alignment: the share of dealer delta
// pointing the same way, confirmed by vanna flow.
func directionScore(mp map[string]any, ps params.Set) (float64, string) {
	dex, okDex := market.Num(mp, "dex_same_dir_pct")
	vannaConf := strings.ToLower(strOr(mp, "vanna_confidence", ""))

	if !okDex {
		return 5, "no_directional_signal"
	}

	strong := ps.FloatOr("scoring.dex.strong", 70)
	medium := ps.FloatOr("scoring.dex.medium", 60)
	weak := ps.FloatOr("scoring.dex.weak", 50)

	switch {
	case dex >= strong && (vannaConf == "high" || vannaConf == "medium"):
		return 9, "dex_strong_vanna_confirmed"
	case dex >= medium:
		return 6, "dex_medium"
	case dex < weak:
		return 3, "dex_opposed"
	default:
		return 5, "dex_mixed"
	}
}

// ivPathScore grades the expected implied volatility path for premium
// selling: an expected crush is the best backdrop, expansion the worst.
func ivPathScore(mp map[string]any) (float64, string) {
	path, ok := market.Str(mp, "iv_path")
	if !ok {
		return 5, "iv_path_unknown"
	}
	conf := strings.ToLower(strOr(mp, "iv_path_confidence", ""))

	switch strings.ToLower(path) {
	case "crush_expected":
		switch conf {
		case "high":
			return 8, "crush_high_confidence"
		case "medium":
			return 6, "crush_medium_confidence"
		default:
			return 5, "crush_low_confidence"
		}
	case "stable":
		return 6, "iv_stable"
	case "expansion":
		if conf == "low" {
			return 4, "expansion_low_confidence"
		}
		return 3, "expansion_expected"
	default:
		return 5, "iv_path_unknown"
	}
}

// eventRiskAdjustment converts the detection stage's risk grade into the
// additive score penalty.
func eventRiskAdjustment(view *workflow.StateView) float64 {
	payload, ok := view.StageResult(workflow.StageEventDetection)
	if !ok {
		return 0
	}
	level, _, ok := EventConstraints(payload)
	if !ok {
		return 0
	}
	switch level {
	case RiskHigh:
		return -1.0
	case RiskMedium:
		return -0.5
	default:
		return 0
	}
}

// entryGate runs the four entry conditions. All four must hold to enter;
// two or three with the score gate passing still allow a probe position.
func (s *ScoringEngine) entryGate(report *ScoreReport, mp map[string]any, ps params.Set, eventRisk float64) {
	entryScore := ps.FloatOr("scoring.entry.score", 3)
	entryProb := ps.FloatOr("scoring.entry.probability", 60)

	check := func(tag string, ok bool) {
		if ok {
			report.ConditionsMet = append(report.ConditionsMet, tag)
		} else {
			report.ConditionsFailed = append(report.ConditionsFailed, tag)
		}
	}

	scoreOK := report.Total >= entryScore
	check(CondScore, scoreOK)

	pop, hasPOP := market.Num(mp, "pop")
	check(CondPOP, hasPOP && pop >= entryProb)

	check(CondRegime, report.Regime == RegimeAbove || report.Regime == RegimeBelow)
	check(CondEventRisk, eventRisk > -1.0)

	met := len(report.ConditionsMet)
	switch {
	case scoreOK && met == 4:
		report.EntryCheck = EntryEnter
	case scoreOK && met >= 2:
		report.EntryCheck = EntryProbe
	default:
		report.EntryCheck = EntryStandAside
	}
}

func (s *ScoringEngine) riskWarnings(report *ScoreReport, mp map[string]any, ps params.Set, gapEM1 float64, hasGap bool) {
	if hasGap && gapEM1 > 2.0 {
		report.RiskWarnings = append(report.RiskWarnings, "nearest wall beyond two expected moves")
	}
	if report.Regime == RegimeNear {
		report.RiskWarnings = append(report.RiskWarnings, "price pinned at the volatility trigger")
	}
	if cluster, ok := market.Num(mp, "wall_cluster_strength"); ok &&
		cluster >= ps.FloatOr("scoring.cluster.strong", 2.0) {
		report.RiskWarnings = append(report.RiskWarnings, "strong gamma wall cluster in range")
	}
	vannaDir := strings.ToLower(strOr(mp, "vanna_dir", ""))
	ivPath := strings.ToLower(strOr(mp, "iv_path", ""))
	if (vannaDir == "up" && ivPath == "crush_expected") ||
		(vannaDir == "down" && ivPath == "expansion") {
		report.RiskWarnings = append(report.RiskWarnings, "vanna flow disagrees with expected IV path")
	}
}

func strOr(m map[string]any, key, def string) string {
	if v, ok := market.Str(m, key); ok {
		return v
	}
	return def
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
