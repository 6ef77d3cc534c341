package analysis

import (
	"context"
	"fmt"
	"math"

	"github.com/foreverwb/swing-workflow/internal/domain/market"
	"github.com/foreverwb/swing-workflow/internal/domain/params"
	"github.com/foreverwb/swing-workflow/internal/domain/workflow"
)

// Strategy categories ordered by risk width. Vetoes only ever move a
// recommendation down this list, toward narrower risk.
const (
	CategoryStandAside   = "stand_aside"
	CategoryIronCondor   = "iron_condor"
	CategoryCreditSpread = "credit_spread"
	CategoryDebitSpread  = "debit_spread"
)

// Structure families.
const (
	StructureCredit = "credit"
	StructureDebit  = "debit"
	StructureNone   = "none"
)

// Directional stances.
const (
	DirectionLong    = "long"
	DirectionShort   = "short"
	DirectionNeutral = "neutral"
)

// Veto tags.
const (
	VetoVolume   = "volume_unconfirmed"
	VetoScenario = "scenario_divergence"
)

// StrikesHint sketches the strike zone for the recommended structure.
type StrikesHint struct {
	Center float64 `json:"center,omitempty"`
	Lower  float64 `json:"lower,omitempty"`
	Upper  float64 `json:"upper,omitempty"`
	Count  int     `json:"count"`
}

// StrategyReport is the strategy stage payload.
type StrategyReport struct {
	Symbol          string      `json:"symbol"`
	Category        string      `json:"category"`
	Structure       string      `json:"structure"`
	Direction       string      `json:"direction"`
	Score           float64     `json:"score"`
	DTE             int         `json:"dte"`
	Strikes         StrikesHint `json:"strikes"`
	WinProbPct      float64     `json:"win_prob_pct"`
	ProfitTargetPct float64     `json:"profit_target_pct"`
	StopLossPct     float64     `json:"stop_loss_pct"`
	Vetoes          []string    `json:"vetoes,omitempty"`
	Rationale       string      `json:"rationale"`
}

// StrategyCalculator maps a scored setup onto a concrete options
// structure with tenor, strikes and exit levels.
type StrategyCalculator struct{}

// NewStrategyCalculator returns the strategy stage handler.
func NewStrategyCalculator() *StrategyCalculator { return &StrategyCalculator{} }

// Name implements workflow.Handler.
func (c *StrategyCalculator) Name() string { return workflow.StageStrategyCalc }

// Execute implements workflow.Handler.
func (c *StrategyCalculator) Execute(_ context.Context, view *workflow.StateView, ps params.Set) (any, error) {
	scorePayload, ok := view.StageResult(workflow.StageScoring)
	if !ok {
		return nil, workflow.NewStageError(c.Name(),
			fmt.Errorf("scoring output required before strategy calculation"))
	}
	total, ok := TotalScore(scorePayload)
	if !ok {
		return nil, workflow.NewStageError(c.Name(),
			fmt.Errorf("scoring output carries no total score"))
	}

	mp := view.MarketParams()
	report := &StrategyReport{
		Symbol: view.Symbol(),
		Score:  total,
	}

	report.Category = c.bucket(total, ps)
	c.applyVetoes(report, view)

	if report.Category == CategoryStandAside {
		report.Structure = StructureNone
		report.Direction = DirectionNeutral
		report.Rationale = fmt.Sprintf("score %.1f below the tradable buckets", total)
		return report, nil
	}

	report.Structure = structureOf(report.Category)
	report.Direction = c.direction(scorePayload, mp)
	report.DTE = c.tenor(view, ps)
	report.Strikes = c.strikes(mp, view.DynParams(), ps)

	riskLevel := c.eventRiskLevel(view)
	report.WinProbPct = c.winProbability(report.Structure, riskLevel, ps)

	if report.Structure == StructureCredit {
		report.ProfitTargetPct = ps.FloatOr("strategy.profit_target.credit_pct", 30)
		report.StopLossPct = ps.FloatOr("strategy.stop_loss.credit_pct", 150)
	} else {
		report.ProfitTargetPct = ps.FloatOr("strategy.profit_target.debit_pct", 60)
		report.StopLossPct = ps.FloatOr("strategy.stop_loss.debit_pct", 50)
	}

	report.Rationale = c.rationale(report, total)
	return report, nil
}

// bucket maps the total score onto a category. Comparisons are strict so
// a score sitting exactly on an edge falls to the narrower-risk bucket.
func (c *StrategyCalculator) bucket(total float64, ps params.Set) string {
	switch {
	case total > ps.FloatOr("strategy.buckets.debit", 7.5):
		return CategoryDebitSpread
	case total > ps.FloatOr("strategy.buckets.credit", 5.5):
		return CategoryCreditSpread
	case total > ps.FloatOr("strategy.buckets.condor", 3.5):
		return CategoryIronCondor
	default:
		return CategoryStandAside
	}
}

// applyVetoes demotes the category for conditions the score alone cannot
// see. Order matters and is fixed: scenario first, volume second.
func (c *StrategyCalculator) applyVetoes(report *StrategyReport, view *workflow.StateView) {
	if scenario, ok := ScenarioOf(view.DynParams()); ok &&
		scenario == string(market.ScenarioSqueezePanic) &&
		report.Category == CategoryDebitSpread {
		report.Category = CategoryCreditSpread
		report.Vetoes = append(report.Vetoes, VetoScenario)
	}

	if confirmed, ok := market.Flag(view.MarketParams(), "volume_confirm"); ok && !confirmed {
		report.Category = demote(report.Category)
		report.Vetoes = append(report.Vetoes, VetoVolume)
	}
}

func demote(category string) string {
	switch category {
	case CategoryDebitSpread:
		return CategoryCreditSpread
	case CategoryCreditSpread:
		return CategoryIronCondor
	default:
		return CategoryStandAside
	}
}

func structureOf(category string) string {
	switch category {
	case CategoryIronCondor, CategoryCreditSpread:
		return StructureCredit
	case CategoryDebitSpread:
		return StructureDebit
	default:
		return StructureNone
	}
}

// direction follows the price regime; dealer positioning refines the
// neutral case.
func (c *StrategyCalculator) direction(scorePayload any, mp map[string]any) string {
	regime, _ := RegimeOf(scorePayload)
	switch regime {
	case RegimeAbove:
		return DirectionLong
	case RegimeBelow:
		return DirectionShort
	}
	if dex, ok := market.Num(mp, "dex_same_dir_pct"); ok && dex >= 70 {
		if vanna, okV := market.Str(mp, "vanna_dir"); okV {
			if vanna == "up" {
				return DirectionLong
			}
			if vanna == "down" {
				return DirectionShort
			}
		}
	}
	return DirectionNeutral
}

// tenor picks the working DTE: the scenario tenor capped by the event
// calendar, never below the configured floor.
func (c *StrategyCalculator) tenor(view *workflow.StateView, ps params.Set) int {
	maxDTE := ps.IntOr("events.max_dte.default", 14)
	if payload, ok := view.StageResult(workflow.StageEventDetection); ok {
		if _, eventMax, okC := EventConstraints(payload); okC && eventMax > 0 {
			maxDTE = eventMax
		}
	}

	dte := maxDTE
	if dynDTE, ok := market.Num(view.DynParams(), "dyn_dte_short"); ok && int(dynDTE) > 0 {
		dte = minInt(maxDTE, int(dynDTE))
	}

	if minDTE := ps.IntOr("events.max_dte.min", 3); dte < minDTE {
		dte = minDTE
	}
	return dte
}

// strikes sketches the zone between the gamma walls, falling back to 1.5
// expected moves around spot when a wall is missing.
func (c *StrategyCalculator) strikes(mp, dyn map[string]any, ps params.Set) StrikesHint {
	hint := StrikesHint{Count: ps.IntOr("strategy.strikes.default", 25)}
	if n, ok := market.Num(dyn, "dyn_strikes"); ok && n > 0 {
		hint.Count = int(n)
	}

	spot, okSpot := market.Num(mp, "spot_price")
	if !okSpot {
		return hint
	}
	hint.Center = spot

	em1, hasEM1 := em1Of(mp, ps)
	if upper, ok := market.Num(mp, "call_wall"); ok {
		hint.Upper = upper
	} else if hasEM1 {
		hint.Upper = market.Round2(spot + 1.5*em1)
	}
	if lower, ok := market.Num(mp, "put_wall"); ok {
		hint.Lower = lower
	} else if hasEM1 {
		hint.Lower = market.Round2(spot - 1.5*em1)
	}
	return hint
}

func (c *StrategyCalculator) eventRiskLevel(view *workflow.StateView) string {
	payload, ok := view.StageResult(workflow.StageEventDetection)
	if !ok {
		return RiskLow
	}
	level, _, okC := EventConstraints(payload)
	if !okC || level == "" {
		return RiskLow
	}
	return level
}

// winProbability blends the empirical base rate with the theoretical rate
// for the structure family, clamps into the family band, then takes the
// event-risk penalty.
func (c *StrategyCalculator) winProbability(structure, riskLevel string, ps params.Set) float64 {
	family := "credit"
	if structure == StructureDebit {
		family = "debit"
	}
	base := ps.FloatOr("strategy.win_prob."+family+".base", 50)
	theo := ps.FloatOr("strategy.win_prob."+family+".theoretical", 65)
	lo := ps.FloatOr("strategy.win_prob."+family+".min", 40)
	hi := ps.FloatOr("strategy.win_prob."+family+".max", 85)

	p := 0.7*base + 0.3*theo
	p = math.Min(hi, math.Max(lo, p))

	if riskLevel == RiskHigh {
		p -= ps.FloatOr("strategy.win_prob.event_risk_penalty", 5)
	}
	return market.Round2(math.Min(95, math.Max(5, p)))
}

func (c *StrategyCalculator) rationale(report *StrategyReport, total float64) string {
	msg := fmt.Sprintf("score %.1f maps to %s, %s %s over %d DTE",
		total, report.Category, report.Direction, report.Structure, report.DTE)
	if len(report.Vetoes) > 0 {
		msg += fmt.Sprintf(" after %d veto(es)", len(report.Vetoes))
	}
	return msg
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
