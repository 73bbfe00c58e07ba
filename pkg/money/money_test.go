package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := map[string]string{
		"40":      "40",
		"40.555":  "40.56",
		"40,5":    "40.5",
		" 12.30 ": "12.3",
	}
	for raw, want := range cases {
		got, err := Parse(raw)
		require.NoError(t, err, raw)
		assert.True(t, got.Equal(decimal.RequireFromString(want)), "%s => %s", raw, got)
	}

	_, err := Parse("abc")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = Parse("")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "R$ 40,00", Format(decimal.NewFromInt(40)))
	assert.Equal(t, "R$ 1.234,50", Format(decimal.RequireFromString("1234.5")))
	assert.Equal(t, "R$ 1.000.000,01", Format(decimal.RequireFromString("1000000.01")))
	assert.Equal(t, "-R$ 30,00", Format(decimal.NewFromInt(-30)))
}

func TestWithinAndDrift(t *testing.T) {
	assert.True(t, Within(decimal.RequireFromString("10.004"), decimal.NewFromInt(10), DefaultTolerance))
	assert.False(t, Within(decimal.RequireFromString("10.01"), decimal.NewFromInt(10), DefaultTolerance))
	assert.False(t, HasDrift(decimal.RequireFromString("10.004"), DefaultTolerance))
	assert.True(t, HasDrift(decimal.RequireFromString("10.004"), decimal.New(1, -3)))
}
