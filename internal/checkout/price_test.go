package checkout

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestMinorUnits(t *testing.T) {
	cases := map[string]int64{
		"0":       0,
		"0.01":    1,
		"19.99":   1999,
		"19.995":  2000,
		"2.675":   268,
		"1.004":   100,
		"1234.50": 123450,
	}
	for raw, want := range cases {
		if got := MinorUnits(decimal.RequireFromString(raw)); got != want {
			t.Fatalf("%s: expected %d got %d", raw, want, got)
		}
	}
}
