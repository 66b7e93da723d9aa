package ptypes

import "github.com/drawdownguard/collar-engine/pkg/money"

// Tier fixes the drawdown floor and base fee for a coverage.
//
// Invariants: 0 < DrawdownLimitPct < 1; FixedPriceUsdc >= 0.
type Tier struct {
	Name               string      `json:"name"`
	DepositUsdc        money.Value `json:"deposit"`
	FundingUsdc        money.Value `json:"funding"`
	ProfitTargetUsdc   money.Value `json:"profitTarget"`
	DrawdownLimitPct   money.Value `json:"drawdownLimitPct"`
	FixedPriceUsdc     money.Value `json:"fixedPriceUsdc"`
	ExpiryDays         int         `json:"expiryDays,omitempty"`
	RenewWindowMinutes int         `json:"renewWindowMinutes,omitempty"`
	BufferAlertPct     money.Value `json:"bufferAlertPct,omitempty"`
}

func (t Tier) Valid() bool {
	return t.DrawdownLimitPct.Sign() > 0 &&
		t.DrawdownLimitPct.LessThan(money.One) &&
		t.FixedPriceUsdc.Sign() >= 0
}

// ProBronze is the tier name that carries the fixed $20 fee override for
// leverage <= 2x (spec section 4.4 step 4.6).
const ProBronze = "Pro (Bronze)"
