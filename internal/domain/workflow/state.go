package workflow

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewRunID returns a ULID for one engine invocation. ULIDs sort by time,
// so journal lines and cache documents order naturally.
func NewRunID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t.UTC()), entropy).String()
}

// RunState is the in-memory state assembled over one engine run: the
// parameters the stages saw plus every stage result produced or inherited.
type RunState struct {
	RunID        string         `json:"run_id"`
	Symbol       string         `json:"symbol"`
	Timestamp    time.Time      `json:"timestamp"`
	Mode         Mode           `json:"mode"`
	MarketParams map[string]any `json:"market_params"`
	DynParams    map[string]any `json:"dyn_params"`
	StageResults *StageResults  `json:"stage_results"`
}

// NewRunState builds a fresh run state. The parameter maps are deep-copied
// so later stage execution cannot reach back into caller-owned maps.
func NewRunState(symbol string, mode Mode, market, dyn map[string]any, at time.Time) *RunState {
	return &RunState{
		RunID:        NewRunID(at),
		Symbol:       symbol,
		Timestamp:    at.UTC(),
		Mode:         mode,
		MarketParams: copyAnyMap(market),
		DynParams:    copyAnyMap(dyn),
		StageResults: NewStageResults(),
	}
}

// StageResults is an insertion-ordered multimap from stage name to the
// payloads that stage produced. A stage appears once in iteration order no
// matter how many payloads it holds; order is first-merge order.
//
// Entries only ever grow within a run lineage: merging one stage never
// drops or reorders another stage's entries.
type StageResults struct {
	order []string
	items map[string][]any
}

// NewStageResults returns an empty result set.
func NewStageResults() *StageResults {
	return &StageResults{items: map[string][]any{}}
}

// Merge records payload under stage according to policy.
func (sr *StageResults) Merge(stage string, policy MergePolicy, payload any) {
	switch policy {
	case MergeReplace:
		sr.put(stage, []any{payload})
	case MergeAppend:
		sr.put(stage, append(sr.items[stage], payload))
	case MergeSkipIfPresent:
		if len(sr.items[stage]) == 0 {
			sr.put(stage, []any{payload})
		}
	}
}

func (sr *StageResults) put(stage string, payloads []any) {
	if _, seen := sr.items[stage]; !seen {
		sr.order = append(sr.order, stage)
	}
	sr.items[stage] = payloads
}

// Latest returns the most recent payload for stage.
func (sr *StageResults) Latest(stage string) (any, bool) {
	ps := sr.items[stage]
	if len(ps) == 0 {
		return nil, false
	}
	return ps[len(ps)-1], true
}

// All returns every payload recorded for stage, oldest first.
func (sr *StageResults) All(stage string) []any {
	ps := sr.items[stage]
	if len(ps) == 0 {
		return nil
	}
	out := make([]any, len(ps))
	copy(out, ps)
	return out
}

// Has reports whether stage holds at least one payload.
func (sr *StageResults) Has(stage string) bool {
	return len(sr.items[stage]) > 0
}

// Stages lists stage names in first-merge order.
func (sr *StageResults) Stages() []string {
	out := make([]string, len(sr.order))
	copy(out, sr.order)
	return out
}

// Len is the number of distinct stages recorded.
func (sr *StageResults) Len() int { return len(sr.order) }

// Clone deep-copies the result set. Map and slice payloads are copied;
// struct payloads are shared, which is safe because handlers never mutate
// results they did not produce.
func (sr *StageResults) Clone() *StageResults {
	if sr == nil {
		return NewStageResults()
	}
	out := NewStageResults()
	for _, stage := range sr.order {
		src := sr.items[stage]
		dst := make([]any, len(src))
		for i, p := range src {
			dst[i] = copyAnyValue(p)
		}
		out.put(stage, dst)
	}
	return out
}

// MarshalJSON emits a JSON object keyed by stage name, values as arrays,
// keys in insertion order.
func (sr *StageResults) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, stage := range sr.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(stage)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(sr.items[stage])
		if err != nil {
			return nil, fmt.Errorf("marshal stage %s: %w", stage, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the object form back, preserving key order. A bare
// object value (rather than an array) is accepted and treated as a single
// payload, so documents written by older builds still load.
func (sr *StageResults) UnmarshalJSON(data []byte) error {
	sr.order = nil
	sr.items = map[string][]any{}

	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("stage_results: expected object, got %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		stage, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("stage_results: non-string key %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("stage_results[%s]: %w", stage, err)
		}

		var payloads []any
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			if err := json.Unmarshal(trimmed, &payloads); err != nil {
				return fmt.Errorf("stage_results[%s]: %w", stage, err)
			}
		} else {
			var single any
			if err := json.Unmarshal(trimmed, &single); err != nil {
				return fmt.Errorf("stage_results[%s]: %w", stage, err)
			}
			payloads = []any{single}
		}
		sr.put(stage, payloads)
	}

	// consume closing brace
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// Clone deep-copies the run state.
func (rs *RunState) Clone() *RunState {
	out := *rs
	out.MarketParams = copyAnyMap(rs.MarketParams)
	out.DynParams = copyAnyMap(rs.DynParams)
	out.StageResults = rs.StageResults.Clone()
	return &out
}

func copyAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyAnyValue(v)
	}
	return out
}

func copyAnyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyAnyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyAnyValue(e)
		}
		return out
	default:
		return v
	}
}
