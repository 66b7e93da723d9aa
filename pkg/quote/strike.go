package quote

import (
	"context"
	"math"

	"github.com/drawdownguard/collar-engine/pkg/money"
	"github.com/drawdownguard/collar-engine/pkg/pricing"
	"github.com/drawdownguard/collar-engine/pkg/ptypes"
	"github.com/drawdownguard/collar-engine/pkg/venue"
)

// StrikeCandidate is one evaluated strike within one expiry tag.
type StrikeCandidate struct {
	ExpiryTag      string
	Days           int
	Instrument     string
	Strike         money.Value
	AvgPrice       money.Value
	PremiumTotal   money.Value
	RollMultiplier money.Value
	AllInPremium   money.Value
	FilledSize     money.Value
	Plan           []ptypes.ExecutionLeg
	Aggregate      pricing.AggregateResult
}

// NearestStrikes returns up to n strikes from instruments (matching
// optionType and expiryTag) nearest to target, sorted by distance.
func NearestStrikes(instruments []venue.Instrument, expiryTag string, optionType ptypes.OptionType, target money.Value, n int) []venue.Instrument {
	var candidates []venue.Instrument
	for _, inst := range instruments {
		if inst.Kind != "option" || inst.ExpiryTag != expiryTag || inst.OptionType != optionType {
			continue
		}
		candidates = append(candidates, inst)
	}

	targetF := target.Float64()
	// insertion sort by distance to target, small n makes this adequate.
	for i := 1; i < len(candidates); i++ {
		j := i
		for j > 0 && math.Abs(candidates[j].Strike.Float64()-targetF) < math.Abs(candidates[j-1].Strike.Float64()-targetF) {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
			j--
		}
	}

	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}

// EvaluateStrike aggregates venue books for one strike/expiry and computes
// premium totals.
func EvaluateStrike(ctx context.Context, reg *venue.Registry, inst venue.Instrument, spot money.Value, side ptypes.OrderSide, requiredSize money.Value, maxVenues int, gate pricing.Gate, targetDays, pickedDays int) (StrikeCandidate, bool) {
	books := pricing.FetchBooks(ctx, reg, inst.Name, true, spot)
	if len(books) == 0 {
		return StrikeCandidate{}, false
	}

	result := pricing.SplitRouter(books, inst.Name, side, requiredSize, maxVenues)
	if !gate.Passes(result) {
		return StrikeCandidate{}, false
	}

	premiumTotal := result.AvgPrice.Mul(requiredSize)
	rollMultiplier := money.CeilDiv(money.NewFromInt(int64(targetDays)), money.NewFromInt(int64(pickedDays)))
	allIn := premiumTotal.Mul(rollMultiplier)

	return StrikeCandidate{
		ExpiryTag:      inst.ExpiryTag,
		Days:           pickedDays,
		Instrument:     inst.Name,
		Strike:         inst.Strike,
		AvgPrice:       result.AvgPrice,
		PremiumTotal:   premiumTotal,
		RollMultiplier: rollMultiplier,
		AllInPremium:   allIn,
		FilledSize:     result.FilledSize,
		Plan:           result.Plan,
		Aggregate:      result,
	}, true
}
