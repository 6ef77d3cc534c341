package market

import "time"

// Snapshot kinds.
const (
	SnapshotInitial  = "initial_analysis"
	SnapshotIntraday = "intraday_refresh"
)

// KeyFields are the greeks readings tracked across snapshots and compared
// between refreshes, in report order.
var KeyFields = []string{
	"spot_price",
	"em1_dollar",
	"vol_trigger",
	"call_wall",
	"put_wall",
	"net_gex",
	"iv_7d",
	"iv_14d",
}

// Change is one field's movement between two observations. ChangePct is
// nil when the old value was zero, where a percentage has no meaning.
type Change struct {
	Old       float64  `json:"old"`
	New       float64  `json:"new"`
	ChangePct *float64 `json:"change_pct"`
}

// NewChange computes the movement between two readings, percentage rounded
// to two decimals.
func NewChange(oldV, newV float64) Change {
	c := Change{Old: oldV, New: newV}
	if oldV != 0 {
		pct := Round2((newV - oldV) / oldV * 100)
		c.ChangePct = &pct
	}
	return c
}

// Snapshot is one intraday observation of the tracked greeks fields,
// stored on the cache document so refreshes can diff against the last one.
type Snapshot struct {
	ID        int                `json:"snapshot_id"`
	Kind      string             `json:"kind"`
	Timestamp time.Time          `json:"timestamp"`
	Note      string             `json:"note,omitempty"`
	Fields    map[string]float64 `json:"fields"`
	Changes   map[string]Change  `json:"changes,omitempty"`
}

// NewSnapshot captures the tracked fields out of a market parameter map.
// Missing or sentinel readings are simply not recorded.
func NewSnapshot(id int, kind string, at time.Time, note string, marketParams map[string]any) Snapshot {
	fields := make(map[string]float64, len(KeyFields))
	for _, key := range KeyFields {
		if v, ok := Num(marketParams, key); ok {
			fields[key] = v
		}
	}
	return Snapshot{
		ID:        id,
		Kind:      kind,
		Timestamp: at.UTC(),
		Note:      note,
		Fields:    fields,
	}
}

// BaselineFields widens the snapshot's readings back into a parameter map
// for comparison input.
func (s Snapshot) BaselineFields() map[string]any {
	out := make(map[string]any, len(s.Fields))
	for k, v := range s.Fields {
		out[k] = v
	}
	return out
}
