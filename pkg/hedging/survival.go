// Package hedging implements hedge sizing, the buffer-band rolling decision,
// the survival check, and the renewal gate.
package hedging

import (
	"github.com/drawdownguard/collar-engine/pkg/money"
	"github.com/drawdownguard/collar-engine/pkg/ptypes"
)

// SurvivalInputs collects the inputs to the floor-coverage check.
type SurvivalInputs struct {
	Spot          money.Value
	Dd            float64
	OptionType    ptypes.OptionType
	Strike        money.Value
	HedgeSize     money.Value
	RequiredSize  money.Value
	TolerancePct  float64
}

// Survival checks whether the chosen hedge covers at least tolerancePct of
// the required credit at the drawdown floor.
func Survival(in SurvivalInputs) ptypes.SurvivalCheck {
	tolerance := in.TolerancePct
	if tolerance <= 0 {
		tolerance = 0.98
	}

	var floor money.Value
	if in.OptionType == ptypes.OptionCall {
		floor = in.Spot.Mul(money.NewFromFloat(1 + in.Dd))
	} else {
		floor = in.Spot.Mul(money.NewFromFloat(1 - in.Dd))
	}

	requiredCredit := in.Spot.Sub(floor).Abs().Mul(in.RequiredSize)

	var intrinsic money.Value
	if in.OptionType == ptypes.OptionCall {
		intrinsic = money.Clamp0(floor.Sub(in.Strike))
	} else {
		intrinsic = money.Clamp0(in.Strike.Sub(floor))
	}

	hedgeCredit := intrinsic.Mul(in.HedgeSize)

	if requiredCredit.IsZero() {
		return ptypes.SurvivalCheck{CoverageRatio: 0, Pass: false}
	}

	ratio := hedgeCredit.Div(requiredCredit).Float64()

	return ptypes.SurvivalCheck{
		CoverageRatio: ratio,
		Pass:          ratio >= tolerance,
	}
}
