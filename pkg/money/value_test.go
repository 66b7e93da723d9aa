package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDivByZeroReturnsZeroNotPanic(t *testing.T) {
	v := NewFromInt(100)
	assert.True(t, v.Div(Zero).IsZero())
}

func TestMinMaxClamp0(t *testing.T) {
	a, b := NewFromInt(3), NewFromInt(5)
	assert.True(t, Min(a, b).Compare(a) == 0)
	assert.True(t, Max(a, b).Compare(b) == 0)
	assert.True(t, Clamp0(NewFromInt(-7)).IsZero())
	assert.Equal(t, "3", Clamp0(a).String())
}

func TestCeilDivRollMultiplier(t *testing.T) {
	// targetDays=10, pickedDays=3 -> ceil(10/3) == 4
	got := CeilDiv(NewFromInt(10), NewFromInt(3))
	assert.Equal(t, "4", got.String())

	// exact division stays exact.
	got = CeilDiv(NewFromInt(9), NewFromInt(3))
	assert.Equal(t, "3", got.String())

	// division by zero degrades to zero rather than panicking.
	assert.True(t, CeilDiv(NewFromInt(9), Zero).IsZero())
}

func TestUSDCStringAlwaysTwoDecimals(t *testing.T) {
	assert.Equal(t, "20.00", NewFromInt(20).USDCString())
	assert.Equal(t, "20.13", NewFromFloat(20.126).USDCString())
}

func TestSizeStringSixDecimals(t *testing.T) {
	assert.Equal(t, "0.033000", NewFromFloat(0.033).SizeString())
}

func TestUnmarshalJSONAcceptsStringOrNumber(t *testing.T) {
	var v Value
	assert.NoError(t, v.UnmarshalJSON([]byte(`"12.50"`)))
	assert.Equal(t, "12.5", v.String())

	var v2 Value
	assert.NoError(t, v2.UnmarshalJSON([]byte(`12.5`)))
	assert.Equal(t, "12.5", v2.String())
}

func TestMarshalJSONEmitsQuotedUSDCString(t *testing.T) {
	b, err := NewFromInt(20).MarshalJSON()
	assert.NoError(t, err)
	assert.Equal(t, `"20.00"`, string(b))
}

func TestSizeMarshalsAtSizePrecision(t *testing.T) {
	b, err := NewSize(NewFromFloat(0.033)).MarshalJSON()
	assert.NoError(t, err)
	assert.Equal(t, `"0.033000"`, string(b))

	// The 2dp USDC marshaler would flatten this to "0.00".
	small, err := NewSize(NewFromFloat(0.004)).MarshalJSON()
	assert.NoError(t, err)
	assert.Equal(t, `"0.004000"`, string(small))
}

func TestSizeUnmarshalAcceptsStringAndNumber(t *testing.T) {
	var s Size
	assert.NoError(t, s.UnmarshalJSON([]byte(`"0.5"`)))
	assert.Equal(t, "0.5", s.String())

	assert.NoError(t, s.UnmarshalJSON([]byte(`0.25`)))
	assert.Equal(t, "0.25", s.String())
}
