package common

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/foreverwb/swing-workflow/internal/app"
	"github.com/foreverwb/swing-workflow/internal/application/usecase/history"
	"github.com/foreverwb/swing-workflow/internal/application/usecase/run"
	"github.com/foreverwb/swing-workflow/internal/domain/analysis"
	"github.com/foreverwb/swing-workflow/internal/domain/workflow"
	"github.com/foreverwb/swing-workflow/internal/infra/fs"
	"github.com/foreverwb/swing-workflow/internal/infra/repository/cache"
	"github.com/foreverwb/swing-workflow/internal/infra/repository/journal"
)

// Container wires the use cases behind the commands.
type Container struct {
	Config app.Config
	Paths  app.Paths
	Fs     afero.Fs

	Repo     *cache.Repository
	Journal  *journal.Writer
	Registry *workflow.Registry
	Runner   *run.UseCase
	Reader   *history.Reader
	Backtest *history.Backtest
}

// InitializeContainer builds the container over the real filesystem and
// the runtime loaded by the root command.
func InitializeContainer() (*Container, error) {
	cfg, paths := Runtime()
	return NewContainer(afero.NewOsFs(), cfg, paths)
}

// NewContainer wires the full object graph. Tests pass a memory
// filesystem.
func NewContainer(fsys afero.Fs, cfg app.Config, paths app.Paths) (*Container, error) {
	registry, err := analysis.DefaultRegistry()
	if err != nil {
		return nil, err
	}

	repo := cache.NewRepository(fsys, paths.Cache)
	jw := journal.NewWriter(fsys, paths.Journal)
	lockOpts := fs.LockOptions{
		Timeout: cfg.LockTO.Std(),
		TTL:     cfg.LockStale.Std(),
	}

	runner := run.New(repo, jw, registry, cfg.ParamDefaults(), lockOpts, log.Logger)
	reader := history.NewReader(repo)

	return &Container{
		Config:   cfg,
		Paths:    paths,
		Fs:       fsys,
		Repo:     repo,
		Journal:  jw,
		Registry: registry,
		Runner:   runner,
		Reader:   reader,
		Backtest: history.NewBacktest(reader, runner, log.Logger),
	}, nil
}
