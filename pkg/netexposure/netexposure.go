// Package netexposure implements the per-tick net-exposure planner from
// spec section 4.8: asset-level netting across live coverages, hedge-factor
// attenuation, budget-bounded option ladder search, and perpetual fallback.
package netexposure

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/drawdownguard/collar-engine/pkg/money"
	"github.com/drawdownguard/collar-engine/pkg/pricing"
	"github.com/drawdownguard/collar-engine/pkg/ptypes"
	"github.com/drawdownguard/collar-engine/pkg/venue"
)

// Attenuators collects the multiplicative hedge-factor inputs from spec
// section 4.8 step 1. Each is a multiplier in (0, 1]; the minimum wins.
type Attenuators struct {
	RiskBudgetUsagePct float64 // fraction of risk budget consumed
	CapBreached        bool
	HighIv             bool
	UnfavourableFundingWithBuffer bool

	HedgeReductionFactor float64
}

// HedgeFactor computes the minimum-wins attenuation from spec section 4.8
// step 1: overage vs. risk budget (x0.8 at min usage, x0.5 at max usage),
// cap breach (xhedgeReductionFactor), high IV (xhedgeReductionFactor),
// unfavourable funding with ample buffer (x0.5).
func HedgeFactor(a Attenuators, riskBudgetPctMin, riskBudgetPctMax float64) float64 {
	factor := 1.0

	if a.RiskBudgetUsagePct >= riskBudgetPctMax {
		factor = minF(factor, 0.5)
	} else if a.RiskBudgetUsagePct >= riskBudgetPctMin {
		factor = minF(factor, 0.8)
	}

	if a.CapBreached {
		factor = minF(factor, a.HedgeReductionFactor)
	}
	if a.HighIv {
		factor = minF(factor, a.HedgeReductionFactor)
	}
	if a.UnfavourableFundingWithBuffer {
		factor = minF(factor, 0.5)
	}

	return factor
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// AssetNet is the signed net notional for one asset across all live
// coverages, positive meaning net-long exposure the platform must hedge by
// selling/shorting, negative meaning net-short.
type AssetNet struct {
	Asset ptypes.Asset
	Net   money.Value // signed USDC notional
}

// NetByAsset sums signed notional across live coverages, grouped by asset.
// A coverage protecting a long position contributes +notional (the platform
// is net long the user's downside, so it must be net short to hedge); a
// coverage protecting a short position contributes -notional.
func NetByAsset(coverages []ptypes.Coverage, assetOf func(ptypes.Coverage) ptypes.Asset, sideOf func(ptypes.Coverage) ptypes.Side) []AssetNet {
	totals := map[ptypes.Asset]money.Value{}
	for _, c := range coverages {
		asset := assetOf(c)
		signed := c.NotionalUsdc
		if sideOf(c) == ptypes.SideShort {
			signed = signed.Neg()
		}
		totals[asset] = totals[asset].Add(signed)
	}

	var out []AssetNet
	for asset, net := range totals {
		out = append(out, AssetNet{Asset: asset, Net: net})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}

// Plan is one asset's net-exposure hedging plan for this tick.
type Plan struct {
	Asset         ptypes.Asset
	TargetNotional money.Value // signed
	HedgeFactor   float64
	TargetUnits   money.Value
	BudgetUsdc    money.Value
}

const exposureFactor = 0.7

// BuildPlan computes spec section 4.8 steps 2-3: the target hedge size and
// the budget the planner is allowed to spend this tick.
func BuildPlan(asset ptypes.Asset, net AssetNet, spot money.Value, hedgeFactor float64, liquidityUsdc, reservePct, revenueUsdc, riskBudgetMaxPct, hedgeSpendUsdc money.Value) Plan {
	targetUnits := net.Net.Abs().Div(spot).Mul(money.NewFromFloat(hedgeFactor)).Mul(money.NewFromFloat(exposureFactor))

	liquidityBudget := liquidityUsdc.Sub(reservePct.Mul(liquidityUsdc))
	revenueBudget := revenueUsdc.Mul(riskBudgetMaxPct).Sub(hedgeSpendUsdc)
	budget := money.Max(liquidityBudget, revenueBudget)

	return Plan{
		Asset:          asset,
		TargetNotional: net.Net,
		HedgeFactor:    hedgeFactor,
		TargetUnits:    targetUnits,
		BudgetUsdc:     money.Clamp0(budget),
	}
}

// LadderCandidate is one shortlisted strike evaluated during the option
// ladder search.
type LadderCandidate struct {
	Instrument   string
	Days         int
	Strike       money.Value
	AvgPrice     money.Value
	DistancePct  float64
	SpreadPct    float64
	PremiumUsd   money.Value
	FillUnits    money.Value
	Plan         []ptypes.ExecutionLeg
}

// LadderDiag counts why candidate strikes fell out of the ladder search,
// recorded on option_exec_failed audit entries to guide threshold tuning.
type LadderDiag struct {
	MissingBook     int  `json:"missingBook"`
	NoBidAsk        int  `json:"noBidAsk"`
	SpreadTooWide   int  `json:"spreadTooWide"`
	SizeTooSmall    int  `json:"sizeTooSmall"`
	SlippageTooHigh int  `json:"slippageTooHigh"`
	BudgetTooSmall  int  `json:"budgetTooSmall"`
	TimeBudgetHit   bool `json:"timeBudgetHit"`
}

// Empty reports whether the search recorded no drop at all.
func (d LadderDiag) Empty() bool {
	return d == LadderDiag{}
}

func (d *LadderDiag) countGateFail(reason string) {
	switch reason {
	case "no_bid_ask":
		d.NoBidAsk++
	case "spread_too_wide":
		d.SpreadTooWide++
	case "size_too_small":
		d.SizeTooSmall++
	case "slippage_too_high":
		d.SlippageTooHigh++
	}
}

// SearchOptionLadder implements spec section 4.8 step 4: a wall-clock
// bounded search over candidate days and strikes in [0.88*floor, 1.12*floor],
// ranked by (premiumUsd, distancePct, spreadPct). The returned diag records
// every dropped strike by cause.
func SearchOptionLadder(ctx context.Context, reg *venue.Registry, instruments []venue.Instrument, optType ptypes.OptionType, side ptypes.OrderSide, candidateDays []int, spot, floor, targetUnits, budgetUsdc money.Value, gates pricing.GateTable, budget time.Duration) ([]LadderCandidate, LadderDiag) {
	deadline := time.Now().Add(budget)
	lowBound := floor.Mul(money.NewFromFloat(0.88))
	highBound := floor.Mul(money.NewFromFloat(1.12))

	var out []LadderCandidate
	var diag LadderDiag

	for _, days := range candidateDays {
		if time.Now().After(deadline) {
			diag.TimeBudgetHit = true
			break
		}

		tag := closestTagForDays(instruments, days)
		if tag == "" {
			continue
		}
		gate := gates.ForDays(days)

		for _, inst := range instruments {
			if time.Now().After(deadline) {
				diag.TimeBudgetHit = true
				break
			}
			if inst.Kind != "option" || inst.ExpiryTag != tag || inst.OptionType != optType {
				continue
			}
			if inst.Strike.LessThan(lowBound) || inst.Strike.GreaterThan(highBound) {
				continue
			}

			books := pricing.FetchBooks(ctx, reg, inst.Name, true, spot)
			if len(books) == 0 {
				diag.MissingBook++
				continue
			}
			result := pricing.SplitRouter(books, inst.Name, side, targetUnits, len(books))
			if reason := gate.FailReason(result); reason != "" {
				diag.countGateFail(reason)
				continue
			}

			byBudget := money.Zero
			if result.AvgPrice.Sign() > 0 {
				perUnitUsdc := result.AvgPrice
				byBudget = budgetUsdc.Div(perUnitUsdc)
			}
			fillUnits := money.Min(result.FilledSize, money.Min(targetUnits, byBudget))
			if fillUnits.Sign() <= 0 {
				diag.BudgetTooSmall++
				continue
			}

			premiumUsd := result.AvgPrice.Mul(fillUnits)
			distancePct := inst.Strike.Sub(floor).Div(floor).Abs().Float64()

			out = append(out, LadderCandidate{
				Instrument:  inst.Name,
				Days:        days,
				Strike:      inst.Strike,
				AvgPrice:    result.AvgPrice,
				DistancePct: distancePct,
				SpreadPct:   result.SpreadPct,
				PremiumUsd:  premiumUsd,
				FillUnits:   fillUnits,
				Plan:        result.Plan,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].PremiumUsd.Compare(out[j].PremiumUsd) != 0 {
			return out[i].PremiumUsd.LessThan(out[j].PremiumUsd)
		}
		if out[i].DistancePct != out[j].DistancePct {
			return out[i].DistancePct < out[j].DistancePct
		}
		return out[i].SpreadPct < out[j].SpreadPct
	})

	return out, diag
}

func closestTagForDays(instruments []venue.Instrument, targetDays int) string {
	now := time.Now().UnixMilli()
	targetMillis := int64(targetDays) * 86400000

	best := ""
	bestDiff := int64(-1)
	for _, inst := range instruments {
		if inst.Kind != "option" {
			continue
		}
		diff := inst.ExpiryTime - now - targetMillis
		if diff < 0 {
			diff = -diff
		}
		if bestDiff < 0 || diff < bestDiff {
			bestDiff = diff
			best = inst.ExpiryTag
		}
	}
	return best
}

// ExecuteResult is the outcome of attempting to execute (or fall back from)
// an option ladder, per spec section 4.8 steps 5-6.
type ExecuteResult struct {
	Executed      []LadderCandidate
	PerpFallback  bool
	PerpPlan      pricing.AggregateResult
}

// skippableRejection is an allowlist, not a denylist: only the two
// paper-reject reasons spec section 4.8 step 5 names
// (no_top_of_book, insufficient_liquidity) permit advancing to the next
// candidate. Every other PlaceOrder failure - auth, a 5xx outage, a
// malformed response, an unrecognized rejection - stops the search, since
// those indicate the venue itself is unreliable rather than the specific
// candidate being unfillable.
func skippableRejection(err error) bool {
	if err == nil {
		return false
	}
	var rejected *venue.RejectedError
	if !errors.As(err, &rejected) {
		return false
	}
	switch rejected.Reason {
	case "no_top_of_book", "insufficient_liquidity":
		return true
	default:
		return false
	}
}

// ExecuteLadder attempts up to n candidates in rank order, batching
// consecutive same-venue candidates into one venue.PlaceBatch call so a
// venue outage is discovered once per run instead of once per leg. It skips
// paper_rejected/{no_top_of_book,insufficient_liquidity} failures and stops
// entirely on any other error; falls back to the perpetual split router
// when the ladder is exhausted without a fill.
func ExecuteLadder(ctx context.Context, reg *venue.Registry, candidates []LadderCandidate, n int, side ptypes.OrderSide, perpInstrument string, perpBooks []pricing.VenueBook, perpSize money.Value, maxVenues int) ExecuteResult {
	if len(candidates) > n {
		candidates = candidates[:n]
	}

	var executed []LadderCandidate

	for i := 0; i < len(candidates); {
		venueName := ""
		if len(candidates[i].Plan) > 0 {
			venueName = candidates[i].Plan[0].Venue
		}
		if venueName == "" {
			i++
			continue
		}

		j := i
		var run []LadderCandidate
		var reqs []venue.OrderRequest
		for j < len(candidates) {
			vn := ""
			if len(candidates[j].Plan) > 0 {
				vn = candidates[j].Plan[0].Venue
			}
			if vn != venueName {
				break
			}
			run = append(run, candidates[j])
			reqs = append(reqs, venue.OrderRequest{
				Instrument: candidates[j].Instrument,
				Side:       side,
				Amount:     candidates[j].FillUnits,
				Type:       ptypes.OrderMarket,
			})
			j++
		}

		c, ok := reg.Get(venueName)
		if !ok {
			i = j
			continue
		}

		batch := venue.PlaceBatch(ctx, c, reqs, skippableRejection)
		stop := false
		for k, err := range batch.Errors {
			if err == nil {
				executed = append(executed, run[k])
				continue
			}
			if !skippableRejection(err) {
				stop = true
				break
			}
		}
		if stop {
			break
		}
		i = j
	}

	if len(executed) > 0 {
		return ExecuteResult{Executed: executed}
	}

	perp := pricing.SplitRouter(perpBooks, perpInstrument, side, perpSize, maxVenues)
	return ExecuteResult{PerpFallback: true, PerpPlan: perp}
}
