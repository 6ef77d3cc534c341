package cache

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foreverwb/swing-workflow/internal/domain/workflow"
)

func saveDayDoc(t *testing.T, repo *Repository, symbol string, at time.Time, total float64) string {
	t.Helper()
	rs := workflow.NewRunState(symbol, workflow.ModeFull,
		map[string]any{"vix": 18.0, "ivr": 60.0, "iv30": 21.0, "hv20": 19.0},
		map[string]any{"scenario": "normal_trend"},
		at)
	rs.StageResults.Merge(workflow.StageScoring, workflow.MergeReplace,
		map[string]any{"total_score": total, "regime": "above"})
	rs.StageResults.Merge(workflow.StageComparison, workflow.MergeAppend,
		map[string]any{"material_change": total > 6.0})

	name := FileName(symbol, at)
	require.NoError(t, repo.Save(name, NewDocument(rs)))
	return name
}

func TestScannerAscendingByDay(t *testing.T) {
	repo := NewRepository(afero.NewMemMapFs(), "cache")

	// Saved out of order; the scan must come back by day.
	saveDayDoc(t, repo, "SPY", time.Date(2025, 11, 25, 14, 30, 0, 0, time.UTC), 7.1)
	saveDayDoc(t, repo, "SPY", time.Date(2025, 11, 10, 14, 30, 0, 0, time.UTC), 5.2)
	saveDayDoc(t, repo, "SPY", time.Date(2025, 11, 18, 14, 30, 0, 0, time.UTC), 6.4)
	saveDayDoc(t, repo, "QQQ", time.Date(2025, 11, 12, 14, 30, 0, 0, time.UTC), 4.0)

	scanner, err := repo.Scan("SPY")
	require.NoError(t, err)

	var days []string
	var totals []float64
	for scanner.Next() {
		entry := scanner.Entry()
		assert.Equal(t, "SPY", entry.Symbol)
		days = append(days, entry.Day.Format("20060102"))
		require.NotNil(t, entry.TotalScore)
		totals = append(totals, *entry.TotalScore)
	}
	assert.Equal(t, []string{"20251110", "20251118", "20251125"}, days)
	assert.Equal(t, []float64{5.2, 6.4, 7.1}, totals)

	scanner.Reset()
	count := 0
	for scanner.Next() {
		count++
	}
	assert.Equal(t, 3, count, "a reset scanner walks the history again")
}

func TestScannerSkipsCorrupt(t *testing.T) {
	fsys := afero.NewMemMapFs()
	repo := NewRepository(fsys, "cache")
	saveDayDoc(t, repo, "SPY", time.Date(2025, 11, 10, 14, 30, 0, 0, time.UTC), 5.0)
	require.NoError(t, afero.WriteFile(fsys, "cache/SPY_20251114.json",
		[]byte("{broken"), 0o644))
	saveDayDoc(t, repo, "SPY", time.Date(2025, 11, 20, 14, 30, 0, 0, time.UTC), 6.0)

	scanner, err := repo.Scan("SPY")
	require.NoError(t, err)

	var days []string
	for scanner.Next() {
		days = append(days, scanner.Entry().Day.Format("20060102"))
	}
	assert.Equal(t, []string{"20251110", "20251120"}, days,
		"one corrupt document does not hide the rest of the history")
}

func TestScannerEntrySummary(t *testing.T) {
	repo := NewRepository(afero.NewMemMapFs(), "cache")
	at := time.Date(2025, 11, 10, 14, 30, 0, 0, time.UTC)
	name := saveDayDoc(t, repo, "SPY", at, 6.5)

	scanner, err := repo.Scan("SPY")
	require.NoError(t, err)
	require.True(t, scanner.Next())

	entry := scanner.Entry()
	assert.Equal(t, name, entry.File)
	assert.Equal(t, "full", entry.Mode)
	assert.Equal(t, "normal_trend", entry.Scenario)
	assert.Equal(t, at, entry.CreatedAt)
	require.NotNil(t, entry.TotalScore)
	assert.Equal(t, 6.5, *entry.TotalScore)
	require.NotNil(t, entry.MaterialChange)
	assert.True(t, *entry.MaterialChange)

	require.NotNil(t, scanner.Document())
	assert.Equal(t, "SPY", scanner.Document().Symbol)
	assert.False(t, scanner.Next())
}

func TestScannerEmptyDirectory(t *testing.T) {
	repo := NewRepository(afero.NewMemMapFs(), "cache")
	scanner, err := repo.Scan("SPY")
	require.NoError(t, err)
	assert.False(t, scanner.Next())
}
