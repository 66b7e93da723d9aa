package quote

import (
	"sort"

	"github.com/drawdownguard/collar-engine/pkg/fees"
	"github.com/drawdownguard/collar-engine/pkg/money"
	"github.com/drawdownguard/collar-engine/pkg/ptypes"
)

// resolveStatus computes the tagged status variant. P = allInPremium,
// F = fee, available = filled book depth, required = requiredSize.
func (e *Engine) resolveStatus(in Inputs, best StrikeCandidate, feeResult fees.Result, requiredSize money.Value, optType ptypes.OptionType, iv float64) ptypes.Quote {
	q := ptypes.Quote{}

	p := best.AllInPremium
	f := feeResult.Fee
	available := best.FilledSize

	capMul := passThroughCapMultiplier(e.Config.PassThroughCapByLeverage, in.Leverage)
	maxFee := f.Mul(capMul)

	breach := f.Sign() > 0 && p.Div(f).GreaterThan(money.NewFromFloat(e.Config.PremiumFloorRatio))
	capped := false

	if breach {
		switch {
		case in.AllowPremiumPassThrough && p.LessOrEqual(maxFee):
			q.Status = ptypes.StatusPassThrough
			q.Reason = "premium_floor_pass_through"
			q.FeeUsdc = p
			q.SubsidyUsdc = money.Zero
			return q
		case in.AllowPremiumPassThrough && p.GreaterThan(maxFee):
			f = maxFee
			capped = true
		default:
			q.Status = ptypes.StatusPremiumFloor
			q.Reason = "premium_floor_breached"
			q.FeeUsdc = f
			q.SubsidyUsdc = money.Zero
			return q
		}
	}

	s := money.Clamp0(p.Sub(f))
	haveLiquidity := available.GreaterOrEqual(requiredSize)

	switch {
	case s.Sign() > 0 && e.Config.CanApplySubsidy != nil && haveLiquidity &&
		e.Config.CanApplySubsidy(in.Tier.Name, in.CoverageID, s, iv):
		q.Status = ptypes.StatusSubsidized
		q.Reason = "subsidized"
		q.FeeUsdc = f
		q.SubsidyUsdc = s

	case s.Sign() > 0 && haveLiquidity && e.Config.CoverageOverrideTiers[in.Tier.Name]:
		q.Status = ptypes.StatusCoverageOverride
		q.Reason = "coverage_override"
		q.FeeUsdc = f
		q.SubsidyUsdc = s
		q.CapBreached = capped

	case s.Sign() > 0 && in.AllowPremiumPassThrough && !capped:
		q.Status = ptypes.StatusPassThrough
		q.Reason = "premium_floor_pass_through_late"
		q.FeeUsdc = p
		q.SubsidyUsdc = money.Zero

	case s.Sign() > 0 && partialQualifies(f, best, available, requiredSize, e.Config.MinOptionSize):
		partialSize := partialSizeFor(f, best, available)
		coveragePct := partialSize.Div(requiredSize)
		discounted := f.Mul(coveragePct).Mul(money.One.Sub(e.Config.PartialDiscountPct))
		q.Status = ptypes.StatusPartial
		q.Reason = "partial_coverage"
		q.FeeUsdc = discounted
		q.SubsidyUsdc = money.Zero
		q.CoveragePct = money.NewSize(coveragePct)
		q.DiscountedFee = discounted

	case s.Sign() > 0 && capped:
		q.Status = ptypes.StatusPassThroughCapped
		q.Reason = "premium_floor_pass_through_capped"
		q.FeeUsdc = f
		q.SubsidyUsdc = s

	case s.Sign() > 0:
		q.Status = ptypes.StatusPerpFallback
		q.Reason = "perp_fallback"
		q.FeeUsdc = f

	case haveLiquidity:
		q.Status = ptypes.StatusOK
		q.Reason = "ok"
		q.FeeUsdc = f
		q.SubsidyUsdc = money.Zero

	default:
		q.Status = ptypes.StatusPerpFallback
		q.Reason = "perp_fallback_thin_book"
		q.FeeUsdc = f
	}

	return q
}

// partialSizeFor computes partialSize := min(available, F/(premiumPerUnit*rollMultiplier)).
func partialSizeFor(f money.Value, best StrikeCandidate, available money.Value) money.Value {
	denom := best.AvgPrice.Mul(best.RollMultiplier)
	byBudget := f.Div(denom)
	return money.Min(available, byBudget)
}

func partialQualifies(f money.Value, best StrikeCandidate, available, requiredSize, minOptionSize money.Value) bool {
	return partialSizeFor(f, best, available).GreaterOrEqual(minOptionSize)
}

// passThroughCapMultiplier picks the largest configured leverage bucket
// <= leverage, the way fees.leverageMultiplier does for fee buckets.
func passThroughCapMultiplier(buckets map[string]money.Value, leverage money.Value) money.Value {
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
