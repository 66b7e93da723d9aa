package venue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drawdownguard/collar-engine/pkg/money"
	"github.com/drawdownguard/collar-engine/pkg/ptypes"
)

func TestParseInstrumentOption(t *testing.T) {
	inst, err := ParseInstrument("BTC-29NOV24-45000-P")
	require.NoError(t, err)
	assert.Equal(t, ptypes.Asset("BTC"), inst.Asset)
	assert.Equal(t, "option", inst.Kind)
	assert.Equal(t, ptypes.OptionPut, inst.OptionType)
	assert.Equal(t, "45000", inst.Strike.String())
	assert.Equal(t, "29NOV24", inst.ExpiryTag)
}

func TestParseInstrumentPerpetual(t *testing.T) {
	inst, err := ParseInstrument("BTC-PERPETUAL")
	require.NoError(t, err)
	assert.Equal(t, "perpetual", inst.Kind)
	assert.Equal(t, ptypes.Asset("BTC"), inst.Asset)
}

func TestParseInstrumentRejectsMalformed(t *testing.T) {
	_, err := ParseInstrument("BTC-GARBAGE")
	assert.Error(t, err)

	_, err = ParseInstrument("BTC-29NOV24-45000-X")
	assert.Error(t, err)

	_, err = ParseInstrument("BTC-29FOO24-45000-P")
	assert.Error(t, err)
}

func TestFormatOptionInstrumentRoundTrips(t *testing.T) {
	expiry := time.Date(2024, time.November, 29, 8, 0, 0, 0, time.UTC)
	name := FormatOptionInstrument(ptypes.Asset("BTC"), expiry, money.NewFromInt(45000), ptypes.OptionPut)
	assert.Equal(t, "BTC-29NOV24-45000-P", name)

	inst, err := ParseInstrument(name)
	require.NoError(t, err)
	assert.Equal(t, expiry.UnixMilli(), inst.ExpiryTime)
}

func TestFormatPerpetualInstrument(t *testing.T) {
	assert.Equal(t, "BTC-PERPETUAL", FormatPerpetualInstrument(ptypes.Asset("BTC")))
}
