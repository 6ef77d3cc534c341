// Package render formats run results for the terminal: aligned text
// reports for humans, stable JSON shapes for machines.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/foreverwb/swing-workflow/internal/application/usecase/history"
	"github.com/foreverwb/swing-workflow/internal/application/usecase/run"
	"github.com/foreverwb/swing-workflow/internal/domain/analysis"
	"github.com/foreverwb/swing-workflow/internal/domain/market"
	"github.com/foreverwb/swing-workflow/internal/domain/workflow"
	"github.com/foreverwb/swing-workflow/internal/infra/repository/cache"
)

// JSON writes v indented, with a trailing newline.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// RunOutput is the machine shape of one run.
type RunOutput struct {
	Symbol       string                 `json:"symbol"`
	Mode         string                 `json:"mode"`
	RunID        string                 `json:"run_id"`
	Timestamp    time.Time              `json:"timestamp"`
	CacheFile    string                 `json:"cache_file"`
	Persisted    bool                   `json:"persisted"`
	ElapsedMs    int64                  `json:"elapsed_ms"`
	MarketParams map[string]any         `json:"market_params"`
	DynParams    map[string]any         `json:"dyn_params"`
	StageResults *workflow.StageResults `json:"stage_results"`
}

// NewRunOutput flattens a run result.
func NewRunOutput(res *run.Result) RunOutput {
	rs := res.State
	return RunOutput{
		Symbol:       rs.Symbol,
		Mode:         string(rs.Mode),
		RunID:        rs.RunID,
		Timestamp:    rs.Timestamp,
		CacheFile:    res.CacheFile,
		Persisted:    res.Persisted,
		ElapsedMs:    res.ElapsedMs,
		MarketParams: rs.MarketParams,
		DynParams:    rs.DynParams,
		StageResults: rs.StageResults,
	}
}

// stageLabels order and name the report sections.
var stageLabels = map[string]string{
	workflow.StageEventDetection: "Events",
	workflow.StageScoring:        "Scoring",
	workflow.StageStrategyCalc:   "Strategy",
	workflow.StageComparison:     "Compare",
}

// Run writes the text report for one run.
func Run(w io.Writer, res *run.Result) {
	rs := res.State

	fmt.Fprintf(w, "Symbol   : %s\n", rs.Symbol)
	fmt.Fprintf(w, "Mode     : %s\n", rs.Mode)
	fmt.Fprintf(w, "Run ID   : %s\n", rs.RunID)
	fmt.Fprintf(w, "Time     : %s\n", rs.Timestamp.Format(time.RFC3339))
	target := res.CacheFile
	if !res.Persisted {
		target += " (not persisted)"
	}
	fmt.Fprintf(w, "Cache    : %s\n", target)
	if scenario, ok := analysis.ScenarioOf(rs.DynParams); ok {
		fmt.Fprintf(w, "Scenario : %s\n", scenario)
	}

	for _, stage := range rs.StageResults.Stages() {
		payload, ok := rs.StageResults.Latest(stage)
		if !ok {
			continue
		}
		label, known := stageLabels[stage]
		if !known {
			label = stage
		}
		fmt.Fprintf(w, "%-8s : %s\n", label, stageLine(stage, payload))
	}
}

// stageLine summarizes one stage payload. Payloads arrive typed from the
// run that produced them and as plain maps when inherited from a cache
// document; normalizing through JSON reads both the same way.
func stageLine(stage string, payload any) string {
	m := asMap(payload)
	if m == nil {
		return "(unreadable payload)"
	}

	switch stage {
	case workflow.StageEventDetection:
		count, _ := market.Num(m, "event_count")
		risk, _ := market.Str(m, "risk_level")
		dte, _ := market.Num(m, "max_dte")
		line := fmt.Sprintf("%d detected, risk %s, max DTE %d", int(count), risk, int(dte))
		if flags := eventFlags(m); len(flags) > 0 {
			line += " [" + strings.Join(flags, ", ") + "]"
		}
		return line

	case workflow.StageScoring:
		total, _ := market.Num(m, "total_score")
		regime, _ := market.Str(m, "regime")
		entry, _ := market.Str(m, "entry_check")
		return fmt.Sprintf("%.2f (regime %s, entry %s)", total, regime, entry)

	case workflow.StageStrategyCalc:
		category, _ := market.Str(m, "category")
		if category == analysis.CategoryStandAside {
			rationale, _ := market.Str(m, "rationale")
			return fmt.Sprintf("%s: %s", category, rationale)
		}
		direction, _ := market.Str(m, "direction")
		structure, _ := market.Str(m, "structure")
		dte, _ := market.Num(m, "dte")
		win, _ := market.Num(m, "win_prob_pct")
		target, _ := market.Num(m, "profit_target_pct")
		stop, _ := market.Num(m, "stop_loss_pct")
		return fmt.Sprintf("%s (%s %s) %d DTE, win %.1f%%, target %.0f%% / stop %.0f%%",
			category, direction, structure, int(dte), win, target, stop)

	case workflow.StageComparison:
		kind, _ := market.Str(m, "baseline_kind")
		if material, _ := market.Flag(m, "material_change"); material {
			return fmt.Sprintf("material change [%s] vs %s baseline",
				strings.Join(strSlice(m, "material_fields"), ", "), kind)
		}
		return fmt.Sprintf("no material change vs %s baseline", kind)
	}
	return "(done)"
}

func eventFlags(m map[string]any) []string {
	var flags []string
	if v, _ := market.Flag(m, "no_cross_earnings"); v {
		flags = append(flags, "no_cross_earnings")
	}
	if v, _ := market.Flag(m, "reduce_position"); v {
		flags = append(flags, "reduce_position")
	}
	if v, _ := market.Flag(m, "adjust_dte"); v {
		flags = append(flags, "adjust_dte")
	}
	return flags
}

// History writes the run listing.
func History(w io.Writer, entries []cache.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no cached analyses")
		return
	}
	fmt.Fprintf(w, "%-26s %-10s %-8s %6s %-14s %-8s %s\n",
		"FILE", "DATE", "MODE", "SCORE", "SCENARIO", "MATERIAL", "SNAPS")
	for _, e := range entries {
		fmt.Fprintf(w, "%-26s %-10s %-8s %6s %-14s %-8s %d\n",
			e.File,
			e.Day.Format("2006-01-02"),
			orDash(e.Mode),
			floatOrDash(e.TotalScore),
			orDash(e.Scenario),
			boolOrDash(e.MaterialChange),
			e.Snapshots)
	}
}

// BacktestOutput is the machine shape of one backtest.
type BacktestOutput struct {
	Symbol         string                 `json:"symbol"`
	TestDate       string                 `json:"test_date"`
	CacheFile      string                 `json:"cache_file"`
	RunDay         string                 `json:"run_day"`
	CachedScore    *float64               `json:"cached_score"`
	ReplayScore    *float64               `json:"replay_score"`
	ScoreDelta     *float64               `json:"score_delta"`
	CachedCategory string                 `json:"cached_category,omitempty"`
	ReplayCategory string                 `json:"replay_category,omitempty"`
	Stats          history.Stats          `json:"history_stats"`
	ActualDeltas   []analysis.FieldDelta  `json:"actual_deltas,omitempty"`
	ActualMaterial []string               `json:"actual_material,omitempty"`
	ActualMissing  []string               `json:"actual_missing,omitempty"`
	StageResults   *workflow.StageResults `json:"stage_results"`
}

// NewBacktestOutput flattens a backtest result.
func NewBacktestOutput(res *history.Result) BacktestOutput {
	return BacktestOutput{
		Symbol:         res.Entry.Symbol,
		TestDate:       res.TestDate.Format("2006-01-02"),
		CacheFile:      res.Entry.File,
		RunDay:         res.Entry.Day.Format("2006-01-02"),
		CachedScore:    res.CachedScore,
		ReplayScore:    res.ReplayScore,
		ScoreDelta:     res.ScoreDelta,
		CachedCategory: res.CachedCategory,
		ReplayCategory: res.ReplayCategory,
		Stats:          res.Stats,
		ActualDeltas:   res.ActualDeltas,
		ActualMaterial: res.ActualMaterial,
		ActualMissing:  res.ActualMissing,
		StageResults:   res.Replay.StageResults,
	}
}

// Backtest writes the text report for one backtest.
func Backtest(w io.Writer, res *history.Result) {
	fmt.Fprintf(w, "Symbol    : %s\n", res.Entry.Symbol)
	fmt.Fprintf(w, "Test date : %s\n", res.TestDate.Format("2006-01-02"))
	fmt.Fprintf(w, "Replayed  : %s (run day %s)\n", res.Entry.File, res.Entry.Day.Format("2006-01-02"))
	fmt.Fprintf(w, "Cached    : %s\n", scoreLine(res.CachedScore, res.CachedCategory))
	fmt.Fprintf(w, "Replay    : %s\n", scoreLine(res.ReplayScore, res.ReplayCategory))
	if res.ScoreDelta != nil {
		fmt.Fprintf(w, "Delta     : %+.2f\n", *res.ScoreDelta)
	}
	fmt.Fprintf(w, "History   : %d runs, mean %.2f, stddev %.2f\n",
		res.Stats.Runs, res.Stats.MeanScore, res.Stats.StdDevScore)
	if len(res.ActualDeltas) > 0 {
		line := fmt.Sprintf("%d readings compared", len(res.ActualDeltas))
		if len(res.ActualMaterial) > 0 {
			line += ", material [" + strings.Join(res.ActualMaterial, ", ") + "]"
		} else {
			line += ", none material"
		}
		fmt.Fprintf(w, "Actuals   : %s\n", line)
	}
}

func scoreLine(score *float64, category string) string {
	if score == nil {
		return "no score recorded"
	}
	if category == "" {
		return fmt.Sprintf("score %.2f", *score)
	}
	return fmt.Sprintf("score %.2f, %s", *score, category)
}

func asMap(payload any) map[string]any {
	if m, ok := payload.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

func strSlice(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func floatOrDash(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}

func boolOrDash(v *bool) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%t", *v)
}
