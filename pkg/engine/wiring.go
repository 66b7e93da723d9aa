package engine

import (
	"strconv"

	"github.com/drawdownguard/collar-engine/pkg/config"
	"github.com/drawdownguard/collar-engine/pkg/fees"
	"github.com/drawdownguard/collar-engine/pkg/marketdata"
	"github.com/drawdownguard/collar-engine/pkg/money"
	"github.com/drawdownguard/collar-engine/pkg/pricing"
	"github.com/drawdownguard/collar-engine/pkg/quote"
)

func flexMap(m map[string]config.FlexNumber) map[string]money.Value {
	out := make(map[string]money.Value, len(m))
	for k, v := range m {
		out[k] = v.Value
	}
	return out
}

// dayMap converts a "{days: pct}" override map (string keys in the operator
// JSON) into the int-keyed form pricing.GateTable resolves against.
func dayMap(m map[string]config.FlexNumber) map[int]float64 {
	if len(m) == 0 {
		return nil
	}
	out := make(map[int]float64, len(m))
	for k, v := range m {
		days, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		out[days] = v.Value.Float64()
	}
	return out
}

func boolSet(names []string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

// buildFeeInputsTemplate converts the parsed risk_controls.json shape into
// the pure fees.Inputs template the quote engine fills in per request.
func buildFeeInputsTemplate(rc *config.RiskControls) fees.Inputs {
	regimeByTier := make(map[string]map[fees.Regime]money.Value, len(rc.FeeIvRegimeMultipliersByTier))
	for tier, byRegime := range rc.FeeIvRegimeMultipliersByTier {
		m := make(map[fees.Regime]money.Value, len(byRegime))
		for regime, v := range byRegime {
			m[fees.Regime(regime)] = v.Value
		}
		regimeByTier[tier] = m
	}

	upliftThreshold := make(map[string]float64, len(rc.FeeIvUpliftThresholdByTier))
	for tier, v := range rc.FeeIvUpliftThresholdByTier {
		upliftThreshold[tier] = v.Value.Float64()
	}

	return fees.Inputs{
		MinFeeByTier:            flexMap(rc.MinFeeUsdcByTier),
		DurationPerDayPct:       rc.DurationFeePerDayPct.Value,
		DurationMaxPct:          rc.DurationFeeMaxPct.Value,
		BaseDays:                int(rc.FeeBaseDays.Value.Float64()),
		IvLowThreshold:          rc.FeeIvRegimeThresholds.Low.Value.Float64(),
		IvHighThreshold:         rc.FeeIvRegimeThresholds.High.Value.Float64(),
		RegimeMultiplierByTier:  regimeByTier,
		IvUpliftThresholdByTier: upliftThreshold,
		IvUpliftPctByTier:       flexMap(rc.FeeIvUpliftPctByTier),
		LeverageMultipliers:     flexMap(rc.FeeLeverageMultipliersByX),
	}
}

// buildQuoteConfig converts risk_controls.json into the quote engine's
// Config.
func buildQuoteConfig(rc *config.RiskControls, ladder *marketdata.LadderCache, canApplySubsidy func(tier, coverageID string, subsidy money.Value, iv float64) bool) quote.Config {
	return quote.Config{
		MinOptionSize: rc.MinOptionSize.Value,
		MaxVenues:     rc.MaxVenues,

		MaxPreferredDays: rc.DefaultTargetDays,
		MaxFallbackDays:  rc.FallbackTargetDays,

		Gate: pricing.GateTable{
			Default: pricing.Gate{
				MaxSpreadPct:   rc.MaxSpreadPct.Value.Float64(),
				MaxSlippagePct: rc.MaxSlippagePct.Value.Float64(),
			},
			SpreadByDays:   dayMap(rc.MaxSpreadPctByDays),
			SlippageByDays: dayMap(rc.MaxSlippagePctByDays),
		},
		LiquidityGate: pricing.GateTable{
			Default: pricing.Gate{
				MaxSpreadPct:   rc.LiquidityOverrideSpreadPct.Value.Float64(),
				MaxSlippagePct: rc.LiquidityOverrideSlippagePct.Value.Float64(),
			},
			SpreadByDays:   dayMap(rc.LiquidityOverrideSpreadPctByDays),
			SlippageByDays: dayMap(rc.LiquidityOverrideSlippagePctByDays),
		},
		LiquidityOverride: rc.LiquidityOverrideEnabled,

		FeeInputsTemplate: buildFeeInputsTemplate(rc),

		PremiumFloorRatio:        rc.PremiumFloorRatio.Value.Float64(),
		PassThroughCapByLeverage: flexMap(rc.PassThroughCapByLeverage),

		PartialDiscountPct: rc.PartialCoverageDiscountPct.Value,

		CoverageOverrideTiers: boolSet(rc.CoverageOverrideTiers),

		SurvivalTolerancePct: rc.SurvivalTolerancePct.Value.Float64(),

		CanApplySubsidy: canApplySubsidy,

		CTCEnabled:         rc.CtcEnabled,
		CTCBufferPct:       rc.CtcBufferPct.Value.Float64(),
		CTCMarginPctByTier: flexMap(rc.CtcMarginPctByTier),
		CTCOpsBufferByTier: flexMap(rc.CtcOpsBufferByTier),
	}
}
