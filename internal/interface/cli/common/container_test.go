package common

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foreverwb/swing-workflow/internal/app"
	"github.com/foreverwb/swing-workflow/internal/application/usecase/run"
	"github.com/foreverwb/swing-workflow/internal/domain/workflow"
)

func TestNewContainerWiresTheGraph(t *testing.T) {
	cfg := app.DefaultConfig()
	paths := app.ResolvePaths("home")

	c, err := NewContainer(afero.NewMemMapFs(), cfg, paths)
	require.NoError(t, err)

	assert.NotNil(t, c.Repo)
	assert.NotNil(t, c.Journal)
	assert.NotNil(t, c.Registry)
	assert.NotNil(t, c.Runner)
	assert.NotNil(t, c.Reader)
	assert.NotNil(t, c.Backtest)
	assert.Equal(t, paths, c.Paths)

	// The wired runner is usable end to end on the memory filesystem.
	res, err := c.Runner.Execute(context.Background(), run.Request{
		Symbol: "SPY",
		Mode:   workflow.ModeFull,
		MarketParams: map[string]any{
			"vix": 18.5, "ivr": 65.0, "iv30": 22.0, "hv20": 19.0,
			"spot_price": 585.0, "vol_trigger": 580.0,
			"call_wall": 600.0, "put_wall": 565.0,
			"em1_dollar": 5.8, "net_gex": 1.5e9,
		},
	})
	require.NoError(t, err)
	assert.True(t, res.Persisted)

	ok, err := afero.Exists(c.Fs, filepath.Join(paths.Cache, res.CacheFile))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRuntimeFallsBackToDefaults(t *testing.T) {
	cfg, paths := Runtime()

	assert.Equal(t, app.DefaultConfig().LogLevel, cfg.LogLevel)
	assert.NotEmpty(t, paths.Cache)
}
