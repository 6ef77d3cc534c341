// Package cache persists analysis runs as one JSON document per symbol and
// day, with an index scanner over the document directory for history reads.
package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/foreverwb/swing-workflow/internal/domain/market"
	"github.com/foreverwb/swing-workflow/internal/domain/workflow"
)

// SchemaVersion tags documents written by this build.
const SchemaVersion = 1

// Document is one cache file: the accumulated state of a symbol's analysis
// runs for one day. Top-level keys this build does not know are preserved
// verbatim, so a document survives round trips through newer and older
// builds without losing fields.
type Document struct {
	Symbol          string                 `json:"symbol"`
	RunID           string                 `json:"run_id"`
	CreatedAt       time.Time              `json:"created_at"`
	LastUpdated     time.Time              `json:"last_updated"`
	Mode            string                 `json:"mode"`
	MarketParams    map[string]any         `json:"market_params"`
	DynParams       map[string]any         `json:"dyn_params"`
	StageResults    *workflow.StageResults `json:"stage_results"`
	GreeksSnapshots []market.Snapshot      `json:"greeks_snapshots"`
	SchemaVersion   int                    `json:"schema_version"`

	extra map[string]json.RawMessage
}

// NewDocument starts a document from a finished run.
func NewDocument(rs *workflow.RunState) *Document {
	doc := &Document{CreatedAt: rs.Timestamp}
	doc.ApplyRun(rs)
	return doc
}

// ApplyRun folds a finished run into the document. The creation time and
// snapshot history of an existing document are kept; everything else
// reflects the latest run.
func (d *Document) ApplyRun(rs *workflow.RunState) {
	d.Symbol = rs.Symbol
	d.RunID = rs.RunID
	d.Mode = string(rs.Mode)
	d.MarketParams = rs.MarketParams
	d.DynParams = rs.DynParams
	d.StageResults = rs.StageResults
	d.LastUpdated = rs.Timestamp
	if d.CreatedAt.IsZero() {
		d.CreatedAt = rs.Timestamp
	}
	d.SchemaVersion = SchemaVersion
}

// AppendSnapshot records one more greeks observation.
func (d *Document) AppendSnapshot(s market.Snapshot) {
	d.GreeksSnapshots = append(d.GreeksSnapshots, s)
}

// NextSnapshotID returns the ID for the next snapshot to append. IDs start
// at zero and grow with the history.
func (d *Document) NextSnapshotID() int {
	return len(d.GreeksSnapshots)
}

// LastSnapshot returns the most recent greeks observation, nil without one.
func (d *Document) LastSnapshot() *market.Snapshot {
	if len(d.GreeksSnapshots) == 0 {
		return nil
	}
	return &d.GreeksSnapshots[len(d.GreeksSnapshots)-1]
}

// CompareBaseline picks the reference for a comparison run: the latest
// snapshot when one exists, otherwise the market parameters the document
// was created with.
func (d *Document) CompareBaseline() *workflow.Baseline {
	if last := d.LastSnapshot(); last != nil {
		return &workflow.Baseline{
			Kind:   workflow.BaselineSnapshot,
			Time:   last.Timestamp,
			Fields: last.BaselineFields(),
		}
	}
	fields := make(map[string]any, len(d.MarketParams))
	for k, v := range d.MarketParams {
		fields[k] = v
	}
	return &workflow.Baseline{
		Kind:   workflow.BaselineInitial,
		Time:   d.CreatedAt,
		Fields: fields,
	}
}

// knownKeys is the serialization order of the document's own fields.
// Unknown keys follow, sorted.
var knownKeys = []string{
	"symbol",
	"run_id",
	"created_at",
	"last_updated",
	"mode",
	"market_params",
	"dyn_params",
	"stage_results",
	"greeks_snapshots",
	"schema_version",
}

// MarshalJSON writes the document with a fixed key order so files diff
// cleanly between runs.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	writeField := func(key string, v any) error {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(key)
		if err != nil {
			return err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal field %s: %w", key, err)
		}
		buf.Write(vb)
		return nil
	}

	results := d.StageResults
	if results == nil {
		results = &workflow.StageResults{}
	}
	snapshots := d.GreeksSnapshots
	if snapshots == nil {
		snapshots = []market.Snapshot{}
	}
	values := map[string]any{
		"symbol":           d.Symbol,
		"run_id":           d.RunID,
		"created_at":       d.CreatedAt,
		"last_updated":     d.LastUpdated,
		"mode":             d.Mode,
		"market_params":    orEmptyMap(d.MarketParams),
		"dyn_params":       orEmptyMap(d.DynParams),
		"stage_results":    results,
		"greeks_snapshots": snapshots,
		"schema_version":   d.SchemaVersion,
	}
	for _, key := range knownKeys {
		if err := writeField(key, values[key]); err != nil {
			return nil, err
		}
	}

	extraKeys := make([]string, 0, len(d.extra))
	for k := range d.extra {
		extraKeys = append(extraKeys, k)
	}
	sort.Strings(extraKeys)
	for _, key := range extraKeys {
		if err := writeField(key, d.extra[key]); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the document's own fields and stashes every other
// top-level key for the next save.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	take := func(key string, dst any) error {
		msg, ok := raw[key]
		delete(raw, key)
		if !ok || bytes.Equal(msg, []byte("null")) {
			return nil
		}
		if err := json.Unmarshal(msg, dst); err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
		return nil
	}

	if err := take("symbol", &d.Symbol); err != nil {
		return err
	}
	if err := take("run_id", &d.RunID); err != nil {
		return err
	}
	if err := take("created_at", &d.CreatedAt); err != nil {
		return err
	}
	if err := take("last_updated", &d.LastUpdated); err != nil {
		return err
	}
	if err := take("mode", &d.Mode); err != nil {
		return err
	}
	if err := take("market_params", &d.MarketParams); err != nil {
		return err
	}
	if err := take("dyn_params", &d.DynParams); err != nil {
		return err
	}
	if err := take("stage_results", &d.StageResults); err != nil {
		return err
	}
	if err := take("greeks_snapshots", &d.GreeksSnapshots); err != nil {
		return err
	}
	if err := take("schema_version", &d.SchemaVersion); err != nil {
		return err
	}

	if len(raw) > 0 {
		d.extra = raw
	} else {
		d.extra = nil
	}
	return nil
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
