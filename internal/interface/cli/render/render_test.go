package render

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foreverwb/swing-workflow/internal/application/usecase/history"
	"github.com/foreverwb/swing-workflow/internal/application/usecase/run"
	"github.com/foreverwb/swing-workflow/internal/domain/analysis"
	"github.com/foreverwb/swing-workflow/internal/domain/workflow"
	"github.com/foreverwb/swing-workflow/internal/infra/repository/cache"
)

var renderTime = time.Date(2025, 11, 10, 15, 0, 0, 0, time.UTC)

func sampleResult(t *testing.T) *run.Result {
	t.Helper()

	rs := workflow.NewRunState("SPY", workflow.ModeFull,
		map[string]any{"spot_price": 585.0},
		map[string]any{"scenario": "squeeze_panic"},
		renderTime)

	// One payload per form: maps come back from cached documents, typed
	// reports from a live run.
	rs.StageResults.Merge(workflow.StageEventDetection, workflow.MergeReplace, map[string]any{
		"event_count":       2.0,
		"risk_level":        "high",
		"max_dte":           7.0,
		"no_cross_earnings": true,
	})
	rs.StageResults.Merge(workflow.StageScoring, workflow.MergeReplace, &analysis.ScoreReport{
		Total:      4.2,
		Regime:     analysis.RegimeAbove,
		EntryCheck: analysis.EntryProbe,
	})
	rs.StageResults.Merge(workflow.StageStrategyCalc, workflow.MergeReplace, &analysis.StrategyReport{
		Category:        analysis.CategoryIronCondor,
		Structure:       analysis.StructureCredit,
		Direction:       "neutral",
		DTE:             7,
		WinProbPct:      49.5,
		ProfitTargetPct: 30,
		StopLossPct:     150,
	})
	rs.StageResults.Merge(workflow.StageComparison, workflow.MergeReplace, map[string]any{
		"baseline_kind":   "snapshot",
		"material_change": true,
		"material_fields": []any{"net_gex"},
	})

	return &run.Result{State: rs, CacheFile: "SPY_20251110.json", Persisted: true, ElapsedMs: 12}
}

func TestRunReport(t *testing.T) {
	var buf bytes.Buffer
	Run(&buf, sampleResult(t))
	out := buf.String()

	assert.Contains(t, out, "Symbol   : SPY\n")
	assert.Contains(t, out, "Mode     : full\n")
	assert.Contains(t, out, "Cache    : SPY_20251110.json\n")
	assert.Contains(t, out, "Scenario : squeeze_panic\n")
	assert.Contains(t, out, "Events   : 2 detected, risk high, max DTE 7 [no_cross_earnings]\n")
	assert.Contains(t, out, "Scoring  : 4.20 (regime above, entry probe)\n")
	assert.Contains(t, out, "Strategy : iron_condor (neutral credit) 7 DTE, win 49.5%, target 30% / stop 150%\n")
	assert.Contains(t, out, "Compare  : material change [net_gex] vs snapshot baseline\n")
}

func TestRunReportMarksUnpersisted(t *testing.T) {
	res := sampleResult(t)
	res.Persisted = false

	var buf bytes.Buffer
	Run(&buf, res)

	assert.Contains(t, buf.String(), "SPY_20251110.json (not persisted)")
}

func TestRunReportStandAside(t *testing.T) {
	rs := workflow.NewRunState("SPY", workflow.ModeFull, nil, nil, renderTime)
	rs.StageResults.Merge(workflow.StageStrategyCalc, workflow.MergeReplace, &analysis.StrategyReport{
		Category:  analysis.CategoryStandAside,
		Rationale: "score 2.0 below the tradable buckets",
	})

	var buf bytes.Buffer
	Run(&buf, &run.Result{State: rs, CacheFile: "SPY_20251110.json", Persisted: true})

	assert.Contains(t, buf.String(), "Strategy : stand_aside: score 2.0 below the tradable buckets\n")
}

func TestNewRunOutput(t *testing.T) {
	out := NewRunOutput(sampleResult(t))

	assert.Equal(t, "SPY", out.Symbol)
	assert.Equal(t, "full", out.Mode)
	assert.Equal(t, "SPY_20251110.json", out.CacheFile)
	assert.True(t, out.Persisted)
	assert.Equal(t, int64(12), out.ElapsedMs)
	require.NotNil(t, out.StageResults)
	assert.Equal(t, 4, out.StageResults.Len())
}

func TestHistoryTable(t *testing.T) {
	score := 4.2
	material := true
	entries := []cache.Entry{
		{
			File:       "SPY_20251110.json",
			Symbol:     "SPY",
			Day:        renderTime,
			Mode:       "refresh",
			TotalScore: &score,
			Scenario:   "squeeze_panic",
			Snapshots:  2,
		},
		{
			File:           "SPY_20251111.json",
			Symbol:         "SPY",
			Day:            renderTime.Add(24 * time.Hour),
			Mode:           "full",
			MaterialChange: &material,
			Snapshots:      1,
		},
	}

	var buf bytes.Buffer
	History(&buf, entries)
	out := buf.String()

	assert.Contains(t, out, "FILE")
	assert.Contains(t, out, "SPY_20251110.json")
	assert.Contains(t, out, "2025-11-10")
	assert.Contains(t, out, "4.20")
	assert.Contains(t, out, "squeeze_panic")
	assert.Contains(t, out, "true")
	assert.Contains(t, out, "-", "missing fields render as a dash")
}

func TestHistoryTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	History(&buf, nil)
	assert.Equal(t, "no cached analyses\n", buf.String())
}

func TestBacktestReport(t *testing.T) {
	cached, replayed, delta := 6.0, 4.2, -1.8
	pct := 19.66
	res := &history.Result{
		Entry: cache.Entry{
			File:   "SPY_20251110.json",
			Symbol: "SPY",
			Day:    renderTime,
		},
		TestDate:       time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC),
		CachedScore:    &cached,
		ReplayScore:    &replayed,
		ScoreDelta:     &delta,
		CachedCategory: analysis.CategoryCreditSpread,
		ReplayCategory: analysis.CategoryIronCondor,
		Stats:          history.Stats{Runs: 2, MeanScore: 5.5, StdDevScore: 0.71},
		ActualDeltas:   []analysis.FieldDelta{{Field: "spot_price", Old: 585, New: 700, ChangePct: &pct}},
		ActualMaterial: []string{"spot_price"},
	}

	var buf bytes.Buffer
	Backtest(&buf, res)
	out := buf.String()

	assert.Contains(t, out, "Symbol    : SPY\n")
	assert.Contains(t, out, "Test date : 2025-11-20\n")
	assert.Contains(t, out, "Replayed  : SPY_20251110.json (run day 2025-11-10)\n")
	assert.Contains(t, out, "Cached    : score 6.00, credit_spread\n")
	assert.Contains(t, out, "Replay    : score 4.20, iron_condor\n")
	assert.Contains(t, out, "Delta     : -1.80\n")
	assert.Contains(t, out, "History   : 2 runs, mean 5.50, stddev 0.71\n")
	assert.Contains(t, out, "Actuals   : 1 readings compared, material [spot_price]\n")
}

func TestBacktestReportNoScores(t *testing.T) {
	res := &history.Result{
		Entry:    cache.Entry{File: "SPY_20251110.json", Symbol: "SPY", Day: renderTime},
		TestDate: renderTime,
	}

	var buf bytes.Buffer
	Backtest(&buf, res)

	assert.Contains(t, buf.String(), "Cached    : no score recorded\n")
	assert.NotContains(t, buf.String(), "Delta")
}
