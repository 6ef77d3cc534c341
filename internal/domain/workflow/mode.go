package workflow

// Stage names in canonical execution order. Cache documents and reports
// key stage output by these strings, so they are part of the on-disk format.
const (
	StageEventDetection = "event_detection"
	StageScoring        = "scoring"
	StageStrategyCalc   = "strategy_calc"
	StageComparison     = "comparison"
)

// Mode selects which stages a run executes and how their output merges
// into the cached document.
type Mode string

const (
	// ModeFull runs the whole pipeline and starts a fresh document.
	ModeFull Mode = "full"
	// ModeUpdate re-runs detection and scoring against an existing
	// document, recalculating strategy only on a material score change.
	ModeUpdate Mode = "update"
	// ModeRefresh folds a new market snapshot into an existing document
	// and reports what changed.
	ModeRefresh Mode = "refresh"
	// ModeBacktest replays the full pipeline against a historical
	// document without persisting anything.
	ModeBacktest Mode = "backtest"
)

// ParseMode validates a mode name from a flag or request payload.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFull, ModeUpdate, ModeRefresh, ModeBacktest:
		return Mode(s), nil
	}
	return "", NewUnknownModeError(s)
}

// ValidModes lists accepted mode names for CLI help text.
func ValidModes() []string {
	return []string{string(ModeFull), string(ModeUpdate), string(ModeRefresh), string(ModeBacktest)}
}

// MergePolicy controls how one stage's output lands in the document's
// stage_results section.
type MergePolicy string

const (
	// MergeReplace discards prior output of the stage.
	MergeReplace MergePolicy = "replace"
	// MergeAppend keeps prior output and adds a new entry.
	MergeAppend MergePolicy = "append"
	// MergeSkipIfPresent leaves existing output untouched; the stage
	// does not even execute when output is already present.
	MergeSkipIfPresent MergePolicy = "skip_if_present"
)

// PlannedStage is one step of a StagePlan.
type PlannedStage struct {
	Name   string
	Policy MergePolicy

	// Conditional stages run only when the engine's runtime check
	// passes. Used by update mode to gate strategy recalculation on a
	// material scoring change.
	Conditional bool
}

// StagePlan is the ordered execution plan for one run.
type StagePlan struct {
	Mode    Mode
	Stages  []PlannedStage
	Persist bool
}

// PlanFor maps a mode onto its stage plan. hasCache reports whether a
// cached document already exists under the run's cache key; overwrite
// permits full mode to clobber it.
//
// Precondition failures return ModeError, except backtest over a missing
// record which is NotFoundError because the caller asked to read history
// that does not exist.
func PlanFor(mode Mode, hasCache, overwrite bool) (*StagePlan, error) {
	switch mode {
	case ModeFull:
		if hasCache && !overwrite {
			return nil, NewModeError(string(mode),
				"cached analysis already exists; pass overwrite to replace it")
		}
		return &StagePlan{
			Mode: mode,
			Stages: []PlannedStage{
				{Name: StageEventDetection, Policy: MergeReplace},
				{Name: StageScoring, Policy: MergeReplace},
				{Name: StageStrategyCalc, Policy: MergeReplace},
			},
			Persist: true,
		}, nil

	case ModeUpdate:
		if !hasCache {
			return nil, NewModeError(string(mode), "no cached analysis to update")
		}
		return &StagePlan{
			Mode: mode,
			Stages: []PlannedStage{
				{Name: StageEventDetection, Policy: MergeAppend},
				{Name: StageScoring, Policy: MergeAppend},
				{Name: StageStrategyCalc, Policy: MergeAppend, Conditional: true},
			},
			Persist: true,
		}, nil

	case ModeRefresh:
		if !hasCache {
			return nil, NewModeError(string(mode), "no cached analysis to refresh")
		}
		return &StagePlan{
			Mode: mode,
			Stages: []PlannedStage{
				{Name: StageComparison, Policy: MergeAppend},
			},
			Persist: true,
		}, nil

	case ModeBacktest:
		if !hasCache {
			return nil, NewNotFoundError("no cached analysis at or before the test date")
		}
		return &StagePlan{
			Mode: mode,
			Stages: []PlannedStage{
				{Name: StageEventDetection, Policy: MergeReplace},
				{Name: StageScoring, Policy: MergeReplace},
				{Name: StageStrategyCalc, Policy: MergeReplace},
			},
			Persist: false,
		}, nil
	}
	return nil, NewUnknownModeError(string(mode))
}
