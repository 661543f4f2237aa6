package numeric

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jyscao/tail-risk/internal/errs"
)

func TestParseExamples(t *testing.T) {
	n, err := Parse("_2", MustBeInteger())
	require.NoError(t, err)
	assert.True(t, n.IsInt())
	assert.Equal(t, int64(-2), n.Value())

	n, err = Parse("99.5", Min(0), Max(100))
	require.NoError(t, err)
	assert.False(t, n.IsInt())
	assert.Equal(t, 99.5, n.Value())

	_, err = Parse("101", Min(0), Max(100))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrRange))
}

func TestParsePrefersIntegers(t *testing.T) {
	n, err := Parse("3.0")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n.Value())
	assert.Equal(t, "3", n.String())
}

func TestParseNegationRoundTrip(t *testing.T) {
	for _, s := range []string{"0", "1", "2.5", "66", "0.001", "1e3", "_4", "_0.5"} {
		t.Run(s, func(t *testing.T) {
			pos, err := Parse(s)
			require.NoError(t, err)
			neg, err := Parse(Negate(s))
			require.NoError(t, err)
			assert.Equal(t, pos.Neg().Value(), neg.Value())
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
		opts []Option
		kind error
	}{
		{name: "not a number", text: "abc", kind: errs.ErrValue},
		{name: "empty", text: "", kind: errs.ErrValue},
		{name: "fractional int", text: "2.5", opts: []Option{MustBeInteger()}, kind: errs.ErrType},
		{name: "infinite", text: "inf", kind: errs.ErrType},
		{name: "below min", text: "0", opts: []Option{Min(1)}, kind: errs.ErrRange},
		{name: "signed below min", text: "_5", opts: []Option{Min(0)}, kind: errs.ErrRange},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.text, tc.opts...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.kind), "got %v", err)
		})
	}
}

func TestParseMessageOverrides(t *testing.T) {
	_, err := Parse("1.5", MustBeInteger(), TypeMessage("window must be whole days"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "window must be whole days")

	_, err = Parse("150", Max(100), RangeMessage("percent value must be in [0, 100]"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "percent value must be in [0, 100]")
}

func TestIsDecimal(t *testing.T) {
	assert.True(t, IsDecimal("066"))
	assert.False(t, IsDecimal("6.6"))
	assert.False(t, IsDecimal("_6"))
	assert.False(t, IsDecimal(""))
}

func TestParseLargeWholeNumbers(t *testing.T) {
	n, err := Parse("9007199254740992")
	require.NoError(t, err)
	assert.True(t, n.IsInt())
	assert.Equal(t, int64(MaxExactInt), n.Value())

	n, err = Parse("1e20", Min(0))
	require.NoError(t, err)
	assert.False(t, n.IsInt())
	assert.Equal(t, 1e20, n.Value())
	assert.Equal(t, "1e+20", n.String())

	n, err = Parse("_1e30")
	require.NoError(t, err)
	assert.Equal(t, -1e30, n.Value())
	assert.Equal(t, int64(math.MinInt64), n.Int())
	assert.Equal(t, int64(math.MaxInt64), Float(1e30).Int())

	_, err = Parse("1e20", MustBeInteger())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrRange), "got %v", err)
}
