package workflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/foreverwb/swing-workflow/internal/domain/params"
)

// Baseline kinds for the comparison stage.
const (
	BaselineSnapshot = "snapshot"       // most recent greeks snapshot
	BaselineInitial  = "initial_params" // prior document's market params
)

// Baseline is the reference point a comparison run measures against.
type Baseline struct {
	Kind   string
	Time   time.Time
	Fields map[string]any
}

// Handler executes one analysis stage. Implementations read from the view
// and the resolved parameter set and return a payload for the stage they
// name; they never write state directly.
type Handler interface {
	Name() string
	Execute(ctx context.Context, view *StateView, ps params.Set) (any, error)
}

// StateView is the read-only window a stage handler gets. Parameter maps
// are copies; results from earlier stages are shared payloads handlers
// must treat as immutable.
type StateView struct {
	symbol      string
	asOf        time.Time
	market      map[string]any
	dyn         map[string]any
	priorMarket map[string]any
	baseline    *Baseline
	results     *StageResults
}

// View builds a stage view over the current run state. prior is the market
// parameter map from the previous cache document, nil on first runs.
func (rs *RunState) View(prior map[string]any, baseline *Baseline) *StateView {
	v := &StateView{
		symbol:      rs.Symbol,
		asOf:        rs.Timestamp,
		market:      copyAnyMap(rs.MarketParams),
		dyn:         copyAnyMap(rs.DynParams),
		priorMarket: copyAnyMap(prior),
		results:     rs.StageResults,
	}
	if baseline != nil {
		b := *baseline
		b.Fields = copyAnyMap(baseline.Fields)
		v.baseline = &b
	}
	return v
}

// Symbol is the normalized symbol under analysis.
func (v *StateView) Symbol() string { return v.symbol }

// AsOf is the effective analysis time. Backtests set this to the
// historical run time, so calendar logic sees the past date.
func (v *StateView) AsOf() time.Time { return v.asOf }

// MarketParams is the merged market parameter map for this run.
func (v *StateView) MarketParams() map[string]any { return v.market }

// DynParams is the dynamic overlay for this run.
func (v *StateView) DynParams() map[string]any { return v.dyn }

// PriorMarketParams is the previous document's market map, nil without one.
func (v *StateView) PriorMarketParams() map[string]any { return v.priorMarket }

// CompareBaseline returns the comparison reference, nil when no prior
// document exists.
func (v *StateView) CompareBaseline() *Baseline { return v.baseline }

// StageResult returns the latest payload an earlier stage produced.
func (v *StateView) StageResult(stage string) (any, bool) {
	if v.results == nil {
		return nil, false
	}
	return v.results.Latest(stage)
}

// HasStageResult reports whether stage already produced output.
func (v *StateView) HasStageResult(stage string) bool {
	return v.results != nil && v.results.Has(stage)
}

// Registry maps stage names to their handlers.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry builds a registry, rejecting duplicate stage names.
func NewRegistry(handlers ...Handler) (*Registry, error) {
	r := &Registry{handlers: make(map[string]Handler, len(handlers))}
	for _, h := range handlers {
		name := h.Name()
		if name == "" {
			return nil, fmt.Errorf("stage handler with empty name")
		}
		if _, dup := r.handlers[name]; dup {
			return nil, fmt.Errorf("duplicate stage handler %q", name)
		}
		r.handlers[name] = h
	}
	return r, nil
}

// Get returns the handler registered for stage.
func (r *Registry) Get(stage string) (Handler, bool) {
	h, ok := r.handlers[stage]
	return h, ok
}

// Names lists registered stages sorted for stable output.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
