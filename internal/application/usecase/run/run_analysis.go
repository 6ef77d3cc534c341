// Package run orchestrates one analysis run: resolve parameters, execute
// the mode's stage plan, and persist the resulting cache document.
package run

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/foreverwb/swing-workflow/internal/domain/analysis"
	"github.com/foreverwb/swing-workflow/internal/domain/market"
	"github.com/foreverwb/swing-workflow/internal/domain/params"
	"github.com/foreverwb/swing-workflow/internal/domain/workflow"
	"github.com/foreverwb/swing-workflow/internal/infra/fs"
	"github.com/foreverwb/swing-workflow/internal/infra/repository/cache"
	"github.com/foreverwb/swing-workflow/internal/infra/repository/journal"
	"github.com/foreverwb/swing-workflow/internal/pkg/symbol"
)

// Request describes one analysis run.
type Request struct {
	Symbol       string
	Mode         workflow.Mode
	MarketParams map[string]any
	DynParams    map[string]any

	// CacheFile overrides the default SYMBOL_YYYYMMDD.json target. Backtests
	// set it to the historical document they replay.
	CacheFile string

	// Overwrite lets full mode replace an existing document.
	Overwrite bool

	// AsOf is the effective analysis time; zero means now. Backtests set it
	// to the historical run time so calendar logic sees the past date.
	AsOf time.Time
}

// Result is the outcome of one run.
type Result struct {
	State     *workflow.RunState
	CacheFile string
	Persisted bool
	ElapsedMs int64
}

// UseCase executes analysis runs against one cache directory.
type UseCase struct {
	repo     *cache.Repository
	journal  *journal.Writer
	registry *workflow.Registry
	defaults params.Set
	lockOpts fs.LockOptions
	logger   zerolog.Logger
	clock    func() time.Time
}

// New wires the run engine.
func New(
	repo *cache.Repository,
	jw *journal.Writer,
	registry *workflow.Registry,
	defaults params.Set,
	lockOpts fs.LockOptions,
	logger zerolog.Logger,
) *UseCase {
	return &UseCase{
		repo:     repo,
		journal:  jw,
		registry: registry,
		defaults: defaults,
		lockOpts: lockOpts,
		logger:   logger,
		clock:    time.Now,
	}
}

// Execute runs the requested mode end to end. The cache document is written
// only after every planned stage succeeded; a failed run leaves the cache
// exactly as it was.
func (uc *UseCase) Execute(ctx context.Context, req Request) (*Result, error) {
	start := uc.clock()

	sym, err := symbol.Normalize(req.Symbol)
	if err != nil {
		return nil, workflow.NewParameterError(err.Error()).
			WithDetail("symbol", req.Symbol)
	}

	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = uc.clock()
	}
	asOf = asOf.UTC()

	cacheFile := req.CacheFile
	if cacheFile == "" {
		cacheFile = cache.FileName(sym, asOf)
	} else {
		fileSym, _, err := cache.ParseFileName(cacheFile)
		if err != nil {
			return nil, workflow.NewParameterError(err.Error()).
				WithDetail("cache_file", cacheFile)
		}
		if fileSym != sym {
			return nil, workflow.NewParameterError(
				fmt.Sprintf("cache file %s does not belong to symbol %s", cacheFile, sym)).
				WithDetail("cache_file", cacheFile).
				WithDetail("symbol", sym)
		}
	}

	fail := func(err error) (*Result, error) {
		return nil, annotate(err, sym, req.Mode, cacheFile)
	}

	// Backtests only read, and writers land documents atomically, so they
	// run without the lock.
	if req.Mode != workflow.ModeBacktest {
		release, err := fs.AcquireLock(ctx, uc.repo.Fs(), uc.repo.LockPath(cacheFile), uc.lockOpts)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return fail(err)
			}
			return fail(workflow.NewCacheIOError("acquire cache lock", err))
		}
		defer func() {
			if err := release(); err != nil {
				uc.logger.Warn().Err(err).Str("cache_file", cacheFile).
					Msg("failed to release cache lock")
			}
		}()
	}

	prior, err := uc.repo.Load(cacheFile)
	if err != nil {
		return fail(err)
	}

	plan, err := workflow.PlanFor(req.Mode, prior != nil, req.Overwrite)
	if err != nil {
		return fail(err)
	}

	var cachedDyn, priorMarket map[string]any
	var baseline *workflow.Baseline
	if prior != nil {
		cachedDyn = prior.DynParams
		priorMarket = prior.MarketParams
		baseline = prior.CompareBaseline()
	}

	overlayDyn, err := params.Resolve(params.Set{}, cachedDyn, req.DynParams)
	if err != nil {
		return fail(err)
	}
	ps, err := params.Resolve(uc.defaults, cachedDyn, req.DynParams)
	if err != nil {
		return fail(err)
	}

	rs := workflow.NewRunState(sym, req.Mode, marketFor(req, prior), overlayDyn, asOf)
	if prior != nil && (req.Mode == workflow.ModeUpdate || req.Mode == workflow.ModeRefresh) {
		if prior.StageResults != nil {
			rs.StageResults = prior.StageResults.Clone()
		}
	}

	cachedTotal, hadStrategy := priorStrategyState(prior)

	uc.logger.Info().
		Str("run_id", rs.RunID).
		Str("symbol", sym).
		Str("mode", string(req.Mode)).
		Str("cache_file", cacheFile).
		Msg("starting analysis run")

	executed := make([]string, 0, len(plan.Stages))
	for _, stage := range plan.Stages {
		select {
		case <-ctx.Done():
			return fail(ctx.Err())
		default:
		}

		if stage.Conditional && !uc.shouldRunStrategy(rs, cachedTotal, hadStrategy, ps) {
			uc.logger.Info().
				Str("stage", stage.Name).
				Msg("score change below rerun gate; keeping cached strategy")
			continue
		}
		if stage.Policy == workflow.MergeSkipIfPresent && rs.StageResults.Has(stage.Name) {
			continue
		}

		handler, ok := uc.registry.Get(stage.Name)
		if !ok {
			return fail(workflow.NewStageError(stage.Name,
				fmt.Errorf("no handler registered")))
		}

		payload, err := handler.Execute(ctx, rs.View(priorMarket, baseline), ps)
		if err != nil {
			var werr *workflow.Error
			if !errors.As(err, &werr) {
				err = workflow.NewStageError(stage.Name, err)
			}
			return fail(err)
		}
		rs.StageResults.Merge(stage.Name, stage.Policy, payload)
		executed = append(executed, stage.Name)
	}

	persisted := false
	if plan.Persist {
		doc := prior
		if req.Mode == workflow.ModeFull || doc == nil {
			doc = cache.NewDocument(rs)
		} else {
			doc.ApplyRun(rs)
		}
		uc.applySnapshots(doc, rs, req.Mode, asOf)

		if err := uc.repo.Save(cacheFile, doc); err != nil {
			return fail(err)
		}
		persisted = true
	}

	elapsed := uc.clock().Sub(start).Milliseconds()
	if persisted {
		uc.journalRun(rs, cacheFile, elapsed, executed)
	}

	uc.logger.Info().
		Str("run_id", rs.RunID).
		Strs("stages", executed).
		Bool("persisted", persisted).
		Int64("elapsed_ms", elapsed).
		Msg("analysis run finished")

	return &Result{
		State:     rs,
		CacheFile: cacheFile,
		Persisted: persisted,
		ElapsedMs: elapsed,
	}, nil
}

// marketFor assembles the market parameter map a run analyzes. Full runs
// take the request as-is; update and refresh carry the cached readings
// forward under the new ones; backtests replay the cached readings, with
// request entries as what-if overrides.
func marketFor(req Request, prior *cache.Document) map[string]any {
	if req.Mode == workflow.ModeFull || prior == nil {
		return req.MarketParams
	}
	merged := make(map[string]any, len(prior.MarketParams)+len(req.MarketParams))
	for k, v := range prior.MarketParams {
		merged[k] = v
	}
	for k, v := range req.MarketParams {
		if market.Missing(v) {
			continue
		}
		merged[k] = v
	}
	return merged
}

// priorStrategyState reads the cached scoring total and whether a strategy
// result exists, the inputs to the conditional rerun gate.
func priorStrategyState(prior *cache.Document) (*float64, bool) {
	if prior == nil || prior.StageResults == nil {
		return nil, false
	}
	var cachedTotal *float64
	if payload, ok := prior.StageResults.Latest(workflow.StageScoring); ok {
		if total, ok := analysis.TotalScore(payload); ok {
			cachedTotal = &total
		}
	}
	return cachedTotal, prior.StageResults.Has(workflow.StageStrategyCalc)
}

// shouldRunStrategy gates strategy recalculation in update mode: rerun when
// no cached strategy exists or when the new total moved at least the
// configured delta from the cached one.
func (uc *UseCase) shouldRunStrategy(rs *workflow.RunState, cachedTotal *float64, hadStrategy bool, ps params.Set) bool {
	if !hadStrategy || cachedTotal == nil {
		return true
	}
	payload, ok := rs.StageResults.Latest(workflow.StageScoring)
	if !ok {
		return true
	}
	newTotal, ok := analysis.TotalScore(payload)
	if !ok {
		return true
	}
	delta := ps.FloatOr("scoring.strategy_rerun_score_delta", 0.5)
	return math.Abs(newTotal-*cachedTotal) >= delta
}

// applySnapshots records greeks observations: full runs seed the initial
// snapshot of a fresh document, refreshes append an intraday one annotated
// with the comparison deltas.
func (uc *UseCase) applySnapshots(doc *cache.Document, rs *workflow.RunState, mode workflow.Mode, asOf time.Time) {
	switch mode {
	case workflow.ModeFull:
		if len(doc.GreeksSnapshots) == 0 {
			doc.AppendSnapshot(market.NewSnapshot(
				doc.NextSnapshotID(), market.SnapshotInitial, asOf, "", rs.MarketParams))
		}
	case workflow.ModeRefresh:
		snap := market.NewSnapshot(
			doc.NextSnapshotID(), market.SnapshotIntraday, asOf, "", rs.MarketParams)
		if payload, ok := rs.StageResults.Latest(workflow.StageComparison); ok {
			if report, ok := payload.(*analysis.CompareReport); ok && len(report.Deltas) > 0 {
				changes := make(map[string]market.Change, len(report.Deltas))
				for _, d := range report.Deltas {
					changes[d.Field] = market.Change{Old: d.Old, New: d.New, ChangePct: d.ChangePct}
				}
				snap.Changes = changes
			}
		}
		doc.AppendSnapshot(snap)
	}
}

// journalRun appends the run's journal line. The journal is an audit trail;
// failures are logged and swallowed.
func (uc *UseCase) journalRun(rs *workflow.RunState, cacheFile string, elapsed int64, executed []string) {
	rec := journal.Record{
		RunID:     rs.RunID,
		Symbol:    rs.Symbol,
		Mode:      string(rs.Mode),
		CacheFile: cacheFile,
		ElapsedMs: elapsed,
		Stages:    executed,
	}
	if payload, ok := rs.StageResults.Latest(workflow.StageScoring); ok {
		if total, ok := analysis.TotalScore(payload); ok {
			rec.TotalScore = &total
		}
	}
	if payload, ok := rs.StageResults.Latest(workflow.StageComparison); ok {
		if material, ok := analysis.MaterialChangeFlag(payload); ok {
			rec.MaterialChange = &material
		}
	}
	if err := uc.journal.Append(rec); err != nil {
		uc.logger.Warn().Err(err).
			Str("run_id", rs.RunID).
			Msg("journal append failed")
	}
}

// annotate stamps the run coordinates onto a workflow error so the caller
// can report which run failed without parsing the message.
func annotate(err error, sym string, mode workflow.Mode, cacheFile string) error {
	var werr *workflow.Error
	if !errors.As(err, &werr) {
		return err
	}
	if werr.Detail("symbol") == nil {
		werr.WithDetail("symbol", sym)
	}
	if werr.Detail("mode") == nil {
		werr.WithDetail("mode", string(mode))
	}
	if werr.Detail("cache_file") == nil {
		werr.WithDetail("cache_file", cacheFile)
	}
	return werr
}
