package journal

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournalAppendLoad(t *testing.T) {
	fsys := afero.NewMemMapFs()
	w := NewWriter(fsys, "cache/journal.ndjson")

	score := 6.2
	material := true
	require.NoError(t, w.Append(Record{
		RunID:      "01K9GW4RD1TCNV1X4YZ7Q2M3AB",
		Symbol:     "SPY",
		Mode:       "full",
		CacheFile:  "SPY_20251110.json",
		TotalScore: &score,
		ElapsedMs:  42,
		Stages:     []string{"event_detection", "scoring", "strategy_calc"},
	}))
	require.NoError(t, w.Append(Record{
		RunID:          "01K9GW4RD2ABCDEF0123456789",
		Symbol:         "SPY",
		Mode:           "refresh",
		CacheFile:      "SPY_20251110.json",
		MaterialChange: &material,
		ElapsedMs:      7,
		Stages:         []string{"comparison"},
	}))

	records, err := w.Load()
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "full", records[0].Mode)
	assert.NotEmpty(t, records[0].Timestamp, "timestamp filled in when absent")
	require.NotNil(t, records[0].TotalScore)
	assert.Equal(t, 6.2, *records[0].TotalScore)
	assert.Nil(t, records[0].MaterialChange)

	assert.Equal(t, "refresh", records[1].Mode)
	require.NotNil(t, records[1].MaterialChange)
	assert.True(t, *records[1].MaterialChange)
	assert.Equal(t, []string{"comparison"}, records[1].Stages)
}

func TestJournalIsNDJSON(t *testing.T) {
	fsys := afero.NewMemMapFs()
	w := NewWriter(fsys, "cache/journal.ndjson")

	require.NoError(t, w.Append(Record{RunID: "a", Symbol: "SPY", Mode: "full"}))
	require.NoError(t, w.Append(Record{RunID: "b", Symbol: "SPY", Mode: "update"}))

	data, err := afero.ReadFile(fsys, "cache/journal.ndjson")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 2, "one record per line")
	assert.True(t, strings.HasPrefix(lines[0], "{"))
	assert.True(t, strings.HasSuffix(lines[1], "}"))
}

func TestJournalLoadSkipsCorruptLines(t *testing.T) {
	fsys := afero.NewMemMapFs()
	path := "cache/journal.ndjson"
	content := `{"timestamp":"2025-11-10T14:30:00Z","run_id":"a","symbol":"SPY","mode":"full"}
{torn line
{"timestamp":"2025-11-10T16:00:00Z","run_id":"b","symbol":"SPY","mode":"update"}
`
	require.NoError(t, afero.WriteFile(fsys, path, []byte(content), 0o644))

	records, err := NewWriter(fsys, path).Load()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].RunID)
	assert.Equal(t, "b", records[1].RunID)
}

func TestJournalLoadMissingFile(t *testing.T) {
	records, err := NewWriter(afero.NewMemMapFs(), "cache/journal.ndjson").Load()
	require.NoError(t, err)
	assert.Empty(t, records)
}
