package hedging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/drawdownguard/collar-engine/pkg/money"
	"github.com/drawdownguard/collar-engine/pkg/ptypes"
)

// S3: buffer 1.2% with target 5%, hysteresis 2% -> increase/buffer_below_target.
func TestRollingDecisionIncreaseBelowTarget(t *testing.T) {
	d := RollingDecision(0.012, 0.05, 0.02)
	assert.Equal(t, ActionIncrease, d.Action)
	assert.Equal(t, "buffer_below_target", d.Reason)
}

func TestRollingDecisionDecreaseAboveHysteresisBand(t *testing.T) {
	d := RollingDecision(0.09, 0.05, 0.02)
	assert.Equal(t, ActionDecrease, d.Action)
	assert.Equal(t, "buffer_above_target", d.Reason)
}

func TestRollingDecisionHoldWithinBand(t *testing.T) {
	d := RollingDecision(0.06, 0.05, 0.02)
	assert.Equal(t, ActionHold, d.Action)
}

// I8 / S4: shouldRenew(now, expiry, window) <=> now >= expiry-window.
func TestShouldRenewWindowBoundary(t *testing.T) {
	expiry := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	window := 15 * time.Minute

	assert.True(t, ShouldRenew(expiry.Add(-10*time.Minute), expiry, window))
	assert.True(t, ShouldRenew(expiry.Add(-15*time.Minute), expiry, window))
	assert.False(t, ShouldRenew(expiry.Add(-16*time.Minute), expiry, window))
}

func TestRequiredSizeUsesDeltaRatioWhenSupplied(t *testing.T) {
	posDelta := money.NewFromFloat(0.5)
	optDelta := money.NewFromFloat(0.25)
	size := RequiredSize(money.NewFromInt(10), money.NewFromInt(1), money.Zero, &posDelta, &optDelta)
	assert.Equal(t, "2", size.String())
}

func TestRequiredSizeFallsBackToPositionOverContractSize(t *testing.T) {
	size := RequiredSize(money.NewFromInt(10), money.NewFromInt(4), money.Zero, nil, nil)
	assert.Equal(t, "2.5", size.String())
}

func TestRequiredSizeFlooredAtMinOptionSize(t *testing.T) {
	size := RequiredSize(money.NewFromInt(1), money.NewFromInt(100), money.NewFromFloat(0.1), nil, nil)
	assert.Equal(t, "0.1", size.String())
}

// A strike at exactly the floor has zero intrinsic there: no credit.
func TestSurvivalFailsAtFloorStrike(t *testing.T) {
	check := Survival(SurvivalInputs{
		Spot:         money.NewFromInt(50000),
		Dd:           0.2,
		OptionType:   ptypes.OptionPut,
		Strike:       money.NewFromInt(40000),
		HedgeSize:    money.NewFromFloat(1.0),
		RequiredSize: money.NewFromFloat(1.0),
		TolerancePct: 0.98,
	})
	// floor = 50000*0.8 = 40000; intrinsic = max(0, strike-floor) = 0.
	// With strike == floor, intrinsic is zero: coverage ratio is 0, so it should fail.
	assert.False(t, check.Pass)
}

func TestSurvivalFailsWhenStrikeCoversHalfTheCredit(t *testing.T) {
	check := Survival(SurvivalInputs{
		Spot:         money.NewFromInt(50000),
		Dd:           0.2,
		OptionType:   ptypes.OptionPut,
		Strike:       money.NewFromInt(45000),
		HedgeSize:    money.NewFromFloat(1.0),
		RequiredSize: money.NewFromFloat(1.0),
		TolerancePct: 0.98,
	})
	// floor = 40000; requiredCredit = |50000-40000|*1 = 10000.
	// intrinsic = max(0, 45000-40000) = 5000; hedgeCredit = 5000.
	// coverageRatio = 0.5, below tolerance.
	assert.InDelta(t, 0.5, check.CoverageRatio, 1e-9)
	assert.False(t, check.Pass)
}

func TestSurvivalCallOptionType(t *testing.T) {
	check := Survival(SurvivalInputs{
		Spot:         money.NewFromInt(50000),
		Dd:           0.2,
		OptionType:   ptypes.OptionCall,
		Strike:       money.NewFromInt(60000),
		HedgeSize:    money.NewFromFloat(1.0),
		RequiredSize: money.NewFromFloat(1.0),
		TolerancePct: 0.5,
	})
	// floor = 50000*1.2 = 60000; requiredCredit = |50000-60000| = 10000.
	// intrinsic = max(0, floor-strike) = max(0, 60000-60000) = 0.
	assert.Equal(t, 0.0, check.CoverageRatio)
	assert.False(t, check.Pass)
}
