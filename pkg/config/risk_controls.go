package config

// RiskControls is the parsed shape of risk_controls.json. The json tags keep
// the operator JSON's snake_case so Loader's encoding/json decode binds
// directly without custom key mapping.
type RiskControls struct {
	MinFeeUsdcByTier            map[string]FlexNumber `json:"min_fee_usdc_by_tier"`
	DurationFeePerDayPct        FlexNumber            `json:"duration_fee_per_day_pct"`
	DurationFeeMaxPct           FlexNumber            `json:"duration_fee_max_pct"`
	FeeBaseDays                 FlexNumber            `json:"fee_base_days"`
	FeeIvRegimeThresholds       IvRegimeThresholds    `json:"fee_iv_regime_thresholds"`
	FeeIvRegimeMultipliersByTier map[string]map[string]FlexNumber `json:"fee_iv_regime_multipliers_by_tier"`
	FeeIvUpliftThresholdByTier  map[string]FlexNumber `json:"fee_iv_uplift_threshold_by_tier"`
	FeeIvUpliftPctByTier        map[string]FlexNumber `json:"fee_iv_uplift_pct_by_tier"`
	FeeLeverageMultipliersByX   map[string]FlexNumber `json:"fee_leverage_multipliers_by_x"`
	PassThroughCapByLeverage    map[string]FlexNumber `json:"pass_through_cap_by_leverage"`
	PremiumFloorRatio           FlexNumber            `json:"premium_floor_ratio"`
	PartialCoverageDiscountPct  FlexNumber            `json:"partial_coverage_discount_pct"`
	NetExposureCapUsdc          map[string]FlexNumber `json:"net_exposure_cap_usdc"`
	RiskBudgetPctMin            FlexNumber            `json:"risk_budget_pct_min"`
	RiskBudgetPctMax            FlexNumber            `json:"risk_budget_pct_max"`
	HedgeReductionFactor        FlexNumber            `json:"hedge_reduction_factor"`
	VolatilityThrottleIv        FlexNumber            `json:"volatility_throttle_iv"`
	ReservePct                  FlexNumber            `json:"reserve_pct"`
	MaxLeverage                 FlexNumber            `json:"max_leverage"`
	MinOptionSize               FlexNumber            `json:"min_option_size"`
	MaxSpreadPct                FlexNumber            `json:"max_spread_pct"`
	MaxSpreadPctByDays          map[string]FlexNumber `json:"max_spread_pct_by_days"`
	MaxSlippagePct              FlexNumber            `json:"max_slippage_pct"`
	MaxSlippagePctByDays        map[string]FlexNumber `json:"max_slippage_pct_by_days"`
	LiquidityOverrideEnabled    bool                  `json:"liquidity_override_enabled"`
	LiquidityOverrideSpreadPct  FlexNumber            `json:"liquidity_override_spread_pct"`
	LiquidityOverrideSlippagePct FlexNumber           `json:"liquidity_override_slippage_pct"`
	LiquidityOverrideSpreadPctByDays   map[string]FlexNumber `json:"liquidity_override_spread_pct_by_days"`
	LiquidityOverrideSlippagePctByDays map[string]FlexNumber `json:"liquidity_override_slippage_pct_by_days"`
	CoverageOverrideTiers        []string              `json:"coverage_override_tiers"`
	SurvivalTolerancePct         FlexNumber            `json:"survival_tolerance_pct"`
	CtcEnabled                   bool                  `json:"ctc_enabled"`
	CtcMarginPctByTier           map[string]FlexNumber `json:"ctc_margin_pct_by_tier"`
	CtcOpsBufferByTier           map[string]FlexNumber `json:"ctc_ops_buffer_by_tier"`
	CtcBufferPct                 FlexNumber            `json:"ctc_buffer_pct"`
	DefaultTargetDays            int                   `json:"default_target_days"`
	MaxTargetDays                int                   `json:"max_target_days"`
	FallbackTargetDays           int                   `json:"fallback_target_days"`
	OptionSearchBudgetMs         int                   `json:"option_search_budget_ms"`
	MaxVenues                    int                   `json:"max_venues"`
}

// IvRegimeThresholds is the {low, high} pair used to classify ladder-
// normalized IV into low|normal|high.
type IvRegimeThresholds struct {
	Low  FlexNumber `json:"low"`
	High FlexNumber `json:"high"`
}
