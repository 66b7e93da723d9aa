// Package fees implements the fee engine: min fee floor, duration uplift,
// IV-regime multiplier, leverage multiplier, Bronze fixed-fee override, and
// the CTC safety-replication floor. The pass-through cap and the
// partial-coverage discount are applied later, by pkg/quote's status
// resolution.
package fees

import (
	"sort"

	"github.com/drawdownguard/collar-engine/pkg/money"
	"github.com/drawdownguard/collar-engine/pkg/ptypes"
)

// Regime is the IV classification used for the fee multiplier lookup.
type Regime string

const (
	RegimeLow    Regime = "low"
	RegimeNormal Regime = "normal"
	RegimeHigh   Regime = "high"
)

// Inputs collects every configuration value the fee calculation is a pure
// function of: tier, days, leverage, iv, and the configured multiplier
// tables.
type Inputs struct {
	Tier     string
	Days     int
	Leverage money.Value
	Iv       float64 // ladder-normalized IV

	BaseFee money.Value

	MinFeeByTier map[string]money.Value

	DurationPerDayPct money.Value
	DurationMaxPct    money.Value
	BaseDays          int

	IvLowThreshold  float64
	IvHighThreshold float64
	RegimeMultiplierByTier map[string]map[Regime]money.Value

	IvUpliftThresholdByTier map[string]float64
	IvUpliftPctByTier       map[string]money.Value

	// LeverageMultipliers maps a leverage bucket (bucket <= leverage, pick
	// largest) to its multiplier.
	LeverageMultipliers map[string]money.Value

	CTC *CTCResult // nil if not applicable or not computed
}

// Result is the computed fee plus the regime it classified into, for the
// quote state machine to carry forward as feeRegime.
type Result struct {
	Fee    money.Value
	Regime Regime
	Reason string
}

// Compute runs the full seven-step fee calculation.
func Compute(in Inputs) Result {
	fee := money.Max(in.BaseFee, in.MinFeeByTier[in.Tier])

	// Step 2: duration uplift.
	extraDays := in.Days - in.BaseDays
	if extraDays < 0 {
		extraDays = 0
	}
	uplift := money.Min(in.DurationMaxPct, in.DurationPerDayPct.Mul(money.NewFromInt(int64(extraDays))))
	fee = fee.Mul(money.One.Add(uplift))

	// Step 3: IV regime multiplier.
	regime := classifyRegime(in.Iv, in.IvLowThreshold, in.IvHighThreshold)
	reason := ""
	if mults, ok := in.RegimeMultiplierByTier[in.Tier]; ok {
		if mult, ok := mults[regime]; ok {
			fee = fee.Mul(mult)
			reason = "regime_" + string(regime)
		}
	} else if threshold, ok := in.IvUpliftThresholdByTier[in.Tier]; ok && in.Iv > threshold {
		// Step 4: no regime matched, optional tier-specific IV uplift.
		if pct, ok := in.IvUpliftPctByTier[in.Tier]; ok {
			fee = fee.Mul(money.One.Add(pct))
			reason = "iv_uplift"
		}
	}

	// Step 5: leverage multiplier by largest bucket <= leverage.
	fee = fee.Mul(leverageMultiplier(in.LeverageMultipliers, in.Leverage))

	// Step 6: Bronze fixed-fee override, applied once after the multipliers
	// above and before pass-through capping is evaluated by the quote state
	// machine, so the advertised fixed price never varies with coverage
	// parameters.
	if in.Tier == ptypes.ProBronze && in.Leverage.LessOrEqual(money.NewFromInt(2)) {
		fee = money.NewFromInt(20)
		reason = "bronze_fixed"
	}

	// Step 7: CTC safety-replication floor.
	if in.CTC != nil && in.CTC.Cost.GreaterThan(fee) {
		fee = in.CTC.Cost
		reason = "ctc_safety"
	}

	return Result{Fee: fee, Regime: regime, Reason: reason}
}

func classifyRegime(iv, low, high float64) Regime {
	switch {
	case iv <= low:
		return RegimeLow
	case iv >= high:
		return RegimeHigh
	default:
		return RegimeNormal
	}
}

// leverageMultiplier finds the largest configured bucket key (parsed as a
// number) that is <= leverage, the way "fee_leverage_multipliers_by_x" is
// keyed in risk_controls.json (string keys like "1","3","5",...).
func leverageMultiplier(buckets map[string]money.Value, leverage money.Value) money.Value {
	if len(buckets) == 0 {
		return money.One
	}

	type bucket struct {
		threshold money.Value
		mult      money.Value
	}
	bs := make([]bucket, 0, len(buckets))
	for k, v := range buckets {
		t, err := money.NewFromString(k)
		if err != nil {
			continue
		}
		bs = append(bs, bucket{threshold: t, mult: v})
	}
	sort.Slice(bs, func(i, j int) bool { return bs[i].threshold.LessThan(bs[j].threshold) })

	best := money.One
	for _, b := range bs {
		if b.threshold.LessOrEqual(leverage) {
			best = b.mult
		}
	}
	return best
}
