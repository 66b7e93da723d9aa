package fees

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/drawdownguard/collar-engine/pkg/money"
	"github.com/drawdownguard/collar-engine/pkg/ptypes"
)

func baseInputs() Inputs {
	return Inputs{
		Tier:              "Pro (Gold)",
		Days:              7,
		Leverage:          money.NewFromInt(3),
		Iv:                0.4,
		BaseFee:           money.NewFromInt(10),
		MinFeeByTier:      map[string]money.Value{"Pro (Gold)": money.NewFromInt(10)},
		DurationPerDayPct: money.NewFromFloat(0.01),
		DurationMaxPct:    money.NewFromFloat(0.2),
		BaseDays:          3,
		IvLowThreshold:    0.3,
		IvHighThreshold:   0.8,
		RegimeMultiplierByTier: map[string]map[Regime]money.Value{
			"Pro (Gold)": {
				RegimeLow:    money.NewFromFloat(0.9),
				RegimeNormal: money.One,
				RegimeHigh:   money.NewFromFloat(1.5),
			},
		},
		LeverageMultipliers: map[string]money.Value{
			"1": money.One,
			"3": money.NewFromFloat(1.1),
			"5": money.NewFromFloat(1.25),
		},
	}
}

// S1: Tier Pro (Bronze), leverage 2x, fixed fee 10 -> feeUsd == 20.00.
func TestBronzeFixedOverrideAtLowLeverage(t *testing.T) {
	in := baseInputs()
	in.Tier = ptypes.ProBronze
	in.Leverage = money.NewFromInt(2)
	in.BaseFee = money.NewFromInt(10)
	in.MinFeeByTier = map[string]money.Value{ptypes.ProBronze: money.NewFromInt(10)}
	in.RegimeMultiplierByTier = nil

	res := Compute(in)
	assert.Equal(t, "20.00", res.Fee.USDCString())
	assert.Equal(t, "bronze_fixed", res.Reason)
}

// Bronze at leverage above 2x does not get the fixed override.
func TestBronzeOverrideDoesNotApplyAboveThreshold(t *testing.T) {
	in := baseInputs()
	in.Tier = ptypes.ProBronze
	in.Leverage = money.NewFromInt(5)
	in.MinFeeByTier = map[string]money.Value{ptypes.ProBronze: money.NewFromInt(10)}
	in.RegimeMultiplierByTier = nil

	res := Compute(in)
	assert.NotEqual(t, "20.00", res.Fee.USDCString())
	assert.NotEqual(t, "bronze_fixed", res.Reason)
}

// S2: high-IV regime uplifts the fee vs. the normal-regime baseline.
func TestHighIvRegimeUpliftsFee(t *testing.T) {
	normal := baseInputs()
	normal.Iv = 0.5
	normalResult := Compute(normal)
	assert.Equal(t, RegimeNormal, normalResult.Regime)

	high := baseInputs()
	high.Iv = 0.95
	highResult := Compute(high)
	assert.Equal(t, RegimeHigh, highResult.Regime)
	assert.Equal(t, "regime_high", highResult.Reason)
	assert.True(t, highResult.Fee.GreaterThan(normalResult.Fee))
}

// I1: fee is non-decreasing in leverage bucket for fixed {tier, iv, days, baseFee}.
func TestFeeMonotonicInLeverageBucket(t *testing.T) {
	low := baseInputs()
	low.Leverage = money.NewFromInt(1)
	mid := baseInputs()
	mid.Leverage = money.NewFromInt(3)
	hi := baseInputs()
	hi.Leverage = money.NewFromInt(5)

	feeLow := Compute(low).Fee
	feeMid := Compute(mid).Fee
	feeHi := Compute(hi).Fee

	assert.True(t, feeMid.GreaterOrEqual(feeLow))
	assert.True(t, feeHi.GreaterOrEqual(feeMid))
}

func TestDurationUpliftCapsAtMaxPct(t *testing.T) {
	in := baseInputs()
	in.Days = 365 // far beyond baseDays=3, uplift should cap at DurationMaxPct=0.2
	in.RegimeMultiplierByTier = nil
	in.LeverageMultipliers = map[string]money.Value{"3": money.One}

	res := Compute(in)
	// fee := max(baseFee, minFee)=10, uplift capped at 1.2x => 12.00
	assert.Equal(t, "12.00", res.Fee.USDCString())
}

// CTC floor replaces the fee only when it is larger.
func TestCTCFloorReplacesFeeWhenLarger(t *testing.T) {
	in := baseInputs()
	in.RegimeMultiplierByTier = nil
	in.LeverageMultipliers = map[string]money.Value{"3": money.One}
	in.CTC = &CTCResult{Cost: money.NewFromInt(999)}

	res := Compute(in)
	assert.Equal(t, "999.00", res.Fee.USDCString())
	assert.Equal(t, "ctc_safety", res.Reason)
}

func TestCTCFloorIgnoredWhenSmaller(t *testing.T) {
	in := baseInputs()
	in.RegimeMultiplierByTier = nil
	in.LeverageMultipliers = map[string]money.Value{"3": money.One}
	in.CTC = &CTCResult{Cost: money.NewFromInt(1)}

	res := Compute(in)
	assert.NotEqual(t, "ctc_safety", res.Reason)
}
