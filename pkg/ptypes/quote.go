package ptypes

import "github.com/drawdownguard/collar-engine/pkg/money"

// QuoteStatus is the tagged variant produced by the quote state machine
// (spec section 4.4 step 5). Every non-terminal status must additionally
// pass the survival check or drop to StatusNoQuote.
type QuoteStatus string

const (
	StatusOK                 QuoteStatus = "ok"
	StatusSubsidized         QuoteStatus = "subsidized"
	StatusCoverageOverride   QuoteStatus = "coverage_override"
	StatusPassThrough        QuoteStatus = "pass_through"
	StatusPassThroughCapped  QuoteStatus = "pass_through_capped"
	StatusPremiumFloor       QuoteStatus = "premium_floor"
	StatusPartial            QuoteStatus = "partial"
	StatusPerpFallback       QuoteStatus = "perp_fallback"
	StatusNoQuote            QuoteStatus = "no_quote"
)

// ExecutionLeg is one fill in a multi-venue best-price split.
type ExecutionLeg struct {
	Venue      string      `json:"venue"`
	Instrument string      `json:"instrument"`
	Side       OrderSide   `json:"side"`
	Size       money.Size  `json:"size"`
	Price      money.Value `json:"price"`
}

// SurvivalCheck is the result of the floor-coverage check in spec 4.6.
type SurvivalCheck struct {
	CoverageRatio float64 `json:"coverageRatio"`
	Pass          bool    `json:"pass"`
}

// SelectionSnapshot records the anchor ordering and winning candidate for
// diagnostics, per spec 4.4 step 2-3 ("anchor ordering ... is not revisited").
type SelectionSnapshot struct {
	ExpiryTagsTried []string `json:"expiryTagsTried"`
	PickedExpiry    string   `json:"pickedExpiry"`
	PickedDays      int      `json:"pickedDays"`
}

// Quote is the full output of the quote state machine.
type Quote struct {
	QuoteID             string          `json:"quoteId"`
	ExpiresAt           string          `json:"expiresAt"`
	Instrument          string          `json:"instrument"`
	Strike              money.Value     `json:"strike"`
	OptionType          OptionType      `json:"optionType"`
	PremiumPerUnitUsdc  money.Value     `json:"premiumPerUnitUsdc"`
	PremiumTotalUsdc    money.Value     `json:"premiumTotalUsdc"`
	HedgeSize           money.Size      `json:"hedgeSize"`
	RollMultiplier      money.Value     `json:"rollMultiplier"`
	AllInPremiumUsdc    money.Value     `json:"allInPremiumUsdc"`
	FeeUsdc             money.Value     `json:"feeUsdc"`
	FeeRegime           string          `json:"feeRegime"`
	SubsidyUsdc         money.Value     `json:"subsidyUsdc"`
	Status              QuoteStatus     `json:"status"`
	Reason              string          `json:"reason"`
	ExecutionPlan       []ExecutionLeg  `json:"executionPlan"`
	SurvivalCheck       SurvivalCheck   `json:"survivalCheck"`
	SelectionSnapshot   SelectionSnapshot `json:"selectionSnapshot"`

	// Partial-only fields.
	CoveragePct    money.Size  `json:"coveragePct,omitempty"`
	DiscountedFee  money.Value `json:"discountedFee,omitempty"`
	CapBreached    bool        `json:"capBreached,omitempty"`
}

// IsTerminal reports whether this status ends the state machine without a
// further survival-check gate (premium_floor is terminal and informative).
func (s QuoteStatus) IsTerminal() bool {
	return s == StatusPremiumFloor
}
