package config

import "github.com/drawdownguard/collar-engine/pkg/ptypes"

// FundedLevel mirrors one entry of funded_levels.json.
type FundedLevel struct {
	Name               string     `json:"name"`
	DepositUsdc        FlexNumber `json:"deposit_usdc"`
	FundingUsdc        FlexNumber `json:"funding_usdc"`
	PointsTarget       FlexNumber `json:"points_target"`
	ProfitTargetUsdc   FlexNumber `json:"profit_target_usdc"`
	DrawdownLimitPct   FlexNumber `json:"drawdown_limit_pct"`
	FixedPriceUsdc     FlexNumber `json:"fixed_price_usdc"`
	ExpiryDays         int        `json:"expiry_days,omitempty"`
	RenewWindowMinutes int        `json:"renew_window_minutes,omitempty"`
	BufferAlertPct     FlexNumber `json:"buffer_alert_pct,omitempty"`
}

// FundedLevelsFile is the root shape of funded_levels.json.
type FundedLevelsFile struct {
	Levels []FundedLevel `json:"levels"`
}

// ToTier converts a parsed FundedLevel into the domain Tier type.
func (l FundedLevel) ToTier() ptypes.Tier {
	return ptypes.Tier{
		Name:               l.Name,
		DepositUsdc:        l.DepositUsdc.Value,
		FundingUsdc:        l.FundingUsdc.Value,
		ProfitTargetUsdc:   l.ProfitTargetUsdc.Value,
		DrawdownLimitPct:   l.DrawdownLimitPct.Value,
		FixedPriceUsdc:     l.FixedPriceUsdc.Value,
		ExpiryDays:         l.ExpiryDays,
		RenewWindowMinutes: l.RenewWindowMinutes,
		BufferAlertPct:     l.BufferAlertPct.Value,
	}
}
