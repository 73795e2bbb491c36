package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecurityID_FallbackChain(t *testing.T) {
	isin := "TW0002330008"
	ticker := "2330"
	empty := ""

	tests := []struct {
		name    string
		holding Holding
		want    string
	}{
		{
			name:    "isin wins when present",
			holding: Holding{ISIN: &isin, TickerSymbol: &ticker, SecurityName: "TSMC"},
			want:    "TW0002330008",
		},
		{
			name:    "ticker when no isin",
			holding: Holding{TickerSymbol: &ticker, SecurityName: "TSMC"},
			want:    "2330",
		},
		{
			name:    "empty isin treated as absent",
			holding: Holding{ISIN: &empty, TickerSymbol: &ticker, SecurityName: "TSMC"},
			want:    "2330",
		},
		{
			name:    "name as last resort",
			holding: Holding{SecurityName: "TSMC"},
			want:    "TSMC",
		},
		{
			name:    "empty ticker treated as absent",
			holding: Holding{TickerSymbol: &empty, SecurityName: "TSMC"},
			want:    "TSMC",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.holding.SecurityID())
		})
	}
}
