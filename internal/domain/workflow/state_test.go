package workflow

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunIDOrdering(t *testing.T) {
	early := NewRunID(time.Date(2025, 11, 10, 9, 0, 0, 0, time.UTC))
	late := NewRunID(time.Date(2025, 11, 25, 9, 0, 0, 0, time.UTC))

	assert.Len(t, early, 26)
	assert.Less(t, early, late, "ULIDs sort by timestamp")

	a := NewRunID(time.Now())
	b := NewRunID(time.Now())
	assert.NotEqual(t, a, b)
}

func TestStageResultsMergePolicies(t *testing.T) {
	sr := NewStageResults()

	sr.Merge(StageScoring, MergeReplace, "first")
	sr.Merge(StageScoring, MergeReplace, "second")
	assert.Equal(t, []any{"second"}, sr.All(StageScoring), "replace keeps one entry")

	sr.Merge(StageEventDetection, MergeAppend, "e1")
	sr.Merge(StageEventDetection, MergeAppend, "e2")
	assert.Equal(t, []any{"e1", "e2"}, sr.All(StageEventDetection))

	sr.Merge(StageStrategyCalc, MergeSkipIfPresent, "s1")
	sr.Merge(StageStrategyCalc, MergeSkipIfPresent, "s2")
	latest, ok := sr.Latest(StageStrategyCalc)
	require.True(t, ok)
	assert.Equal(t, "s1", latest, "skip_if_present keeps the original")
}

func TestStageResultsNeverDropSiblings(t *testing.T) {
	sr := NewStageResults()
	sr.Merge(StageEventDetection, MergeAppend, "e1")
	sr.Merge(StageScoring, MergeAppend, "sc1")

	// replacing one stage leaves the other stages and the order intact
	sr.Merge(StageScoring, MergeReplace, "sc2")
	sr.Merge(StageStrategyCalc, MergeReplace, "st1")

	assert.Equal(t, []string{StageEventDetection, StageScoring, StageStrategyCalc}, sr.Stages())
	assert.Equal(t, []any{"e1"}, sr.All(StageEventDetection))
	assert.Equal(t, 3, sr.Len())
}

func TestStageResultsJSONOrderPreserved(t *testing.T) {
	sr := NewStageResults()
	sr.Merge(StageEventDetection, MergeAppend, map[string]any{"risk_level": "low"})
	sr.Merge(StageScoring, MergeAppend, map[string]any{"total_score": 6.1})
	sr.Merge(StageScoring, MergeAppend, map[string]any{"total_score": 6.4})
	sr.Merge(StageStrategyCalc, MergeAppend, map[string]any{"category": "credit_spread"})

	data, err := json.Marshal(sr)
	require.NoError(t, err)

	var back StageResults
	require.NoError(t, json.Unmarshal(data, &back))

	assert.Equal(t, []string{StageEventDetection, StageScoring, StageStrategyCalc}, back.Stages())
	assert.Len(t, back.All(StageScoring), 2)

	latest, ok := back.Latest(StageScoring)
	require.True(t, ok)
	assert.Equal(t, 6.4, latest.(map[string]any)["total_score"])
}

func TestStageResultsUnmarshalBareObject(t *testing.T) {
	// older documents stored a single object instead of an array
	data := []byte(`{"scoring": {"total_score": 5.0}, "event_detection": [{"risk_level": "low"}]}`)

	var sr StageResults
	require.NoError(t, json.Unmarshal(data, &sr))

	assert.Equal(t, []string{"scoring", "event_detection"}, sr.Stages())
	assert.Len(t, sr.All("scoring"), 1)
}

func TestStageResultsUnmarshalRejectsNonObject(t *testing.T) {
	var sr StageResults
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &sr))
}

func TestStageResultsClone(t *testing.T) {
	sr := NewStageResults()
	sr.Merge(StageScoring, MergeAppend, map[string]any{"total_score": 5.0})

	clone := sr.Clone()
	clone.Merge(StageScoring, MergeAppend, map[string]any{"total_score": 9.0})
	payload, _ := clone.Latest(StageScoring)
	payload.(map[string]any)["total_score"] = 1.0

	assert.Len(t, sr.All(StageScoring), 1)
	orig, _ := sr.Latest(StageScoring)
	assert.Equal(t, 5.0, orig.(map[string]any)["total_score"])
}

func TestNewRunStateCopiesParams(t *testing.T) {
	marketIn := map[string]any{"vix": 18.0, "nested": map[string]any{"a": 1.0}}
	dynIn := map[string]any{"dyn_window": 45.0}

	rs := NewRunState("SPY", ModeFull, marketIn, dynIn, time.Date(2025, 11, 10, 14, 30, 0, 0, time.UTC))

	marketIn["vix"] = 99.0
	marketIn["nested"].(map[string]any)["a"] = 99.0
	dynIn["dyn_window"] = 99.0

	assert.Equal(t, 18.0, rs.MarketParams["vix"])
	assert.Equal(t, 1.0, rs.MarketParams["nested"].(map[string]any)["a"])
	assert.Equal(t, 45.0, rs.DynParams["dyn_window"])
	assert.Equal(t, "SPY", rs.Symbol)
	assert.NotEmpty(t, rs.RunID)
	assert.Equal(t, time.UTC, rs.Timestamp.Location())
}

func TestStateViewIsolation(t *testing.T) {
	rs := NewRunState("SPY", ModeUpdate,
		map[string]any{"vix": 18.0}, map[string]any{"dyn_window": 45.0},
		time.Date(2025, 11, 10, 14, 30, 0, 0, time.UTC))
	rs.StageResults.Merge(StageScoring, MergeAppend, map[string]any{"total_score": 6.0})

	baseline := &Baseline{
		Kind:   BaselineSnapshot,
		Time:   time.Date(2025, 11, 10, 10, 0, 0, 0, time.UTC),
		Fields: map[string]any{"spot_price": 585.0},
	}
	view := rs.View(map[string]any{"vix": 16.0}, baseline)

	// mutating view maps never reaches the run state
	view.MarketParams()["vix"] = 99.0
	view.PriorMarketParams()["vix"] = 99.0
	view.CompareBaseline().Fields["spot_price"] = 99.0

	assert.Equal(t, 18.0, rs.MarketParams["vix"])
	assert.Equal(t, 585.0, baseline.Fields["spot_price"])

	got, ok := view.StageResult(StageScoring)
	require.True(t, ok)
	assert.Equal(t, 6.0, got.(map[string]any)["total_score"])
	assert.True(t, view.HasStageResult(StageScoring))
	assert.False(t, view.HasStageResult(StageComparison))
	assert.Equal(t, "SPY", view.Symbol())
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	a := stubHandler{name: StageScoring}
	b := stubHandler{name: StageScoring}

	_, err := NewRegistry(a, b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")

	reg, err := NewRegistry(a, stubHandler{name: StageEventDetection})
	require.NoError(t, err)
	h, ok := reg.Get(StageScoring)
	require.True(t, ok)
	assert.Equal(t, StageScoring, h.Name())
	assert.Equal(t, []string{StageEventDetection, StageScoring}, reg.Names())
}
