package initcmd

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/foreverwb/swing-workflow/internal/app"
)

func TestRunCreatesWorkspace(t *testing.T) {
	fsys := afero.NewMemMapFs()
	paths := app.ResolvePaths("home")

	require.NoError(t, Run(fsys, paths, false))

	for _, dir := range []string{paths.Home, paths.Cache} {
		ok, err := afero.DirExists(fsys, dir)
		require.NoError(t, err)
		assert.True(t, ok, dir)
	}

	data, err := afero.ReadFile(fsys, paths.Config)
	require.NoError(t, err)

	var cfg app.Config
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Equal(t, app.DefaultConfig().LogLevel, cfg.LogLevel)
	assert.Equal(t, app.DefaultConfig().Compare.MaterialChangePct, cfg.Compare.MaterialChangePct)
}

func TestRunKeepsExistingConfig(t *testing.T) {
	fsys := afero.NewMemMapFs()
	paths := app.ResolvePaths("home")
	require.NoError(t, afero.WriteFile(fsys, paths.Config, []byte("log_level: debug\n"), 0o644))

	require.NoError(t, Run(fsys, paths, false))

	data, err := afero.ReadFile(fsys, paths.Config)
	require.NoError(t, err)
	assert.Equal(t, "log_level: debug\n", string(data), "without --force the existing config stays")

	require.NoError(t, Run(fsys, paths, true))

	data, err = afero.ReadFile(fsys, paths.Config)
	require.NoError(t, err)
	assert.Contains(t, string(data), "log_level: info", "--force restores the starter config")
}
