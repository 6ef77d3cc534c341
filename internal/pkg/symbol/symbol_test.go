package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{
			name: "plain ticker",
			raw:  "NVDA",
			want: "NVDA",
		},
		{
			name: "lowercase is uppercased",
			raw:  "nvda",
			want: "NVDA",
		},
		{
			name: "surrounding whitespace dropped",
			raw:  "  SPY \n",
			want: "SPY",
		},
		{
			name: "class share dot survives",
			raw:  "brk.b",
			want: "BRK.B",
		},
		{
			name: "fullwidth input collapses via NFKC",
			raw:  "ＮＶＤＡ",
			want: "NVDA",
		},
		{
			name:    "empty",
			raw:     "   ",
			wantErr: true,
		},
		{
			name:    "embedded space rejected",
			raw:     "NV DA",
			wantErr: true,
		},
		{
			name:    "path traversal rejected",
			raw:     "../etc",
			wantErr: true,
		},
		{
			name:    "too long",
			raw:     "ABCDEFGHIJKLMN",
			wantErr: true,
		},
		{
			name:    "leading dot rejected",
			raw:     ".NVDA",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMustNormalizePanicsOnInvalid(t *testing.T) {
	assert.Panics(t, func() { MustNormalize("") })
	assert.Equal(t, "QQQ", MustNormalize("qqq"))
}
