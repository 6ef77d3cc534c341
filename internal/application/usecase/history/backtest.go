package history

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/foreverwb/swing-workflow/internal/application/usecase/run"
	"github.com/foreverwb/swing-workflow/internal/domain/analysis"
	"github.com/foreverwb/swing-workflow/internal/domain/market"
	"github.com/foreverwb/swing-workflow/internal/domain/workflow"
	"github.com/foreverwb/swing-workflow/internal/infra/repository/cache"
	"github.com/foreverwb/swing-workflow/internal/pkg/symbol"
)

// Request selects the historical run to replay.
type Request struct {
	Symbol   string
	TestDate time.Time

	// Actuals are realized market readings to diff against the readings
	// the historical run analyzed. Optional.
	Actuals map[string]any

	// ThresholdPct grades actual-vs-analyzed moves as material; zero means
	// the standard 10 percent.
	ThresholdPct float64
}

// Stats summarizes the scoring history up to the test date.
type Stats struct {
	Runs        int     `json:"runs"`
	MeanScore   float64 `json:"mean_score"`
	StdDevScore float64 `json:"stddev_score"`
}

// Result reports a replayed run against its stored outcome.
type Result struct {
	Entry    cache.Entry
	TestDate time.Time

	CachedScore    *float64
	ReplayScore    *float64
	ScoreDelta     *float64
	CachedCategory string
	ReplayCategory string

	Replay *workflow.RunState
	Stats  Stats

	ActualDeltas   []analysis.FieldDelta
	ActualMaterial []string
	ActualMissing  []string
}

// Backtest replays a historical analysis through the current engine and
// reports how the stored and recomputed outcomes differ. Nothing is
// persisted; a drift between the two means the engine or its tuning moved
// since the document was written.
type Backtest struct {
	reader *Reader
	runner *run.UseCase
	logger zerolog.Logger
	clock  func() time.Time
}

// NewBacktest wires the backtest use case.
func NewBacktest(reader *Reader, runner *run.UseCase, logger zerolog.Logger) *Backtest {
	return &Backtest{
		reader: reader,
		runner: runner,
		logger: logger,
		clock:  time.Now,
	}
}

// Execute resolves the historical document, replays it, and assembles the
// comparison.
func (b *Backtest) Execute(ctx context.Context, req Request) (*Result, error) {
	sym, err := symbol.Normalize(req.Symbol)
	if err != nil {
		return nil, workflow.NewParameterError(err.Error()).
			WithDetail("symbol", req.Symbol)
	}

	testDate := req.TestDate
	if testDate.IsZero() {
		testDate = b.clock()
	}
	testDate = dateOnly(testDate)

	entry, doc, err := b.reader.LoadForBacktest(sym, testDate)
	if err != nil {
		return nil, err
	}

	b.logger.Info().
		Str("symbol", sym).
		Str("test_date", testDate.Format("2006-01-02")).
		Str("cache_file", entry.File).
		Msg("replaying historical analysis")

	asOf := doc.LastUpdated
	if asOf.IsZero() {
		asOf = entry.Day
	}

	replay, err := b.runner.Execute(ctx, run.Request{
		Symbol:    sym,
		Mode:      workflow.ModeBacktest,
		CacheFile: entry.File,
		AsOf:      asOf,
	})
	if err != nil {
		return nil, err
	}

	result := &Result{
		Entry:       entry,
		TestDate:    testDate,
		CachedScore: entry.TotalScore,
		Replay:      replay.State,
	}
	if payload, ok := replay.State.StageResults.Latest(workflow.StageScoring); ok {
		if total, ok := analysis.TotalScore(payload); ok {
			result.ReplayScore = &total
		}
	}
	if result.CachedScore != nil && result.ReplayScore != nil {
		delta := market.Round2(*result.ReplayScore - *result.CachedScore)
		result.ScoreDelta = &delta
	}
	result.CachedCategory = categoryOf(doc.StageResults)
	result.ReplayCategory = categoryOf(replay.State.StageResults)

	entries, err := b.reader.List(sym)
	if err != nil {
		return nil, err
	}
	result.Stats = scoreStats(entries, testDate)

	if len(req.Actuals) > 0 {
		threshold := req.ThresholdPct
		if threshold <= 0 {
			threshold = 10
		}
		result.ActualDeltas, result.ActualMaterial, result.ActualMissing =
			analysis.DiffFields(req.Actuals, doc.MarketParams, threshold)
	}

	return result, nil
}

func categoryOf(sr *workflow.StageResults) string {
	if sr == nil {
		return ""
	}
	payload, ok := sr.Latest(workflow.StageStrategyCalc)
	if !ok {
		return ""
	}
	category, _ := analysis.StrategyCategory(payload)
	return category
}

// scoreStats runs mean and sample standard deviation over every stored
// total up to the cutoff day. Future documents stay out of the window so a
// backtest never peeks past its test date.
func scoreStats(entries []cache.Entry, cutoff time.Time) Stats {
	var scores []float64
	for _, e := range entries {
		if e.Day.After(cutoff) {
			continue
		}
		if e.TotalScore != nil {
			scores = append(scores, *e.TotalScore)
		}
	}

	stats := Stats{Runs: len(scores)}
	if len(scores) > 0 {
		stats.MeanScore = market.Round2(stat.Mean(scores, nil))
	}
	if len(scores) > 1 {
		stats.StdDevScore = market.Round2(stat.StdDev(scores, nil))
	}
	return stats
}
