package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSnapshotExtractsKeyFields(t *testing.T) {
	at := time.Date(2025, 11, 10, 14, 30, 0, 0, time.UTC)
	m := map[string]any{
		"vix":         18.0, // not a tracked field
		"spot_price":  585.25,
		"call_wall":   600.0,
		"put_wall":    570.0,
		"net_gex":     1.2e9,
		"vol_trigger": float64(MissingSentinel),
	}

	s := NewSnapshot(0, SnapshotInitial, at, "first pass", m)

	assert.Equal(t, 0, s.ID)
	assert.Equal(t, SnapshotInitial, s.Kind)
	assert.Equal(t, at, s.Timestamp)
	assert.Equal(t, 585.25, s.Fields["spot_price"])
	assert.Equal(t, 600.0, s.Fields["call_wall"])
	assert.NotContains(t, s.Fields, "vix")
	assert.NotContains(t, s.Fields, "vol_trigger", "sentinel readings are dropped")
	assert.NotContains(t, s.Fields, "iv_7d")
}

func TestSnapshotBaselineFields(t *testing.T) {
	s := NewSnapshot(1, SnapshotIntraday, time.Now(), "",
		map[string]any{"spot_price": 585.0, "em1_dollar": 5.4})

	fields := s.BaselineFields()
	require.Len(t, fields, 2)
	assert.Equal(t, 585.0, fields["spot_price"])

	// widening copies; mutating the result leaves the snapshot alone
	fields["spot_price"] = 1.0
	assert.Equal(t, 585.0, s.Fields["spot_price"])
}

func TestNewChange(t *testing.T) {
	c := NewChange(580.0, 585.8)
	require.NotNil(t, c.ChangePct)
	assert.Equal(t, 1.0, *c.ChangePct)

	zero := NewChange(0, 5)
	assert.Nil(t, zero.ChangePct, "percent change from zero is undefined")
	assert.Equal(t, 5.0, zero.New)
}
