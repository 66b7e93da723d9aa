package quote

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/drawdownguard/collar-engine/pkg/fees"
	"github.com/drawdownguard/collar-engine/pkg/hedging"
	"github.com/drawdownguard/collar-engine/pkg/marketdata"
	"github.com/drawdownguard/collar-engine/pkg/money"
	"github.com/drawdownguard/collar-engine/pkg/pricing"
	"github.com/drawdownguard/collar-engine/pkg/ptypes"
	"github.com/drawdownguard/collar-engine/pkg/venue"
)

// Inputs is the full input set to the quote state machine, per spec
// section 4.4.
type Inputs struct {
	Tier                    ptypes.Tier
	Asset                   ptypes.Asset
	Spot                    money.Value
	DrawdownFloorPct        float64
	FixedPriceUsdc          money.Value
	PositionSize            money.Value
	ContractSize            money.Value
	Leverage                money.Value
	Side                    ptypes.Side
	IvSnapshot              *ptypes.IVSnapshot
	TargetDays              int
	AllowPremiumPassThrough bool
	CoverageID              string

	// Optional delta-based sizing override.
	PositionDelta *money.Value
	OptionDelta   *money.Value

	// Pinned expiry tag, if the caller supplied one.
	PinnedExpiryTag string
}

// Config bundles every risk-controls-derived parameter the engine needs.
type Config struct {
	MinOptionSize money.Value
	MaxVenues     int

	MaxPreferredDays int
	MaxFallbackDays  int

	Gate               pricing.GateTable
	LiquidityGate      pricing.GateTable
	LiquidityOverride  bool

	FeeInputsTemplate fees.Inputs

	PremiumFloorRatio        float64
	PassThroughCapByLeverage map[string]money.Value

	PartialDiscountPct money.Value

	CoverageOverrideTiers map[string]bool

	SurvivalTolerancePct float64

	CanApplySubsidy func(tier string, coverageID string, subsidy money.Value, iv float64) bool

	CTCEnabled          bool
	CTCBufferPct        float64
	CTCMarginPctByTier  map[string]money.Value
	CTCOpsBufferByTier  map[string]money.Value
}

// Engine ties the registry, config and market-data caches together and
// exposes Compute, the six-step quote pipeline's entry point (caching is
// layered on top by Cache in cache.go).
type Engine struct {
	Registry *venue.Registry
	ATMIV    *marketdata.ATMIVCache
	Ladder   *marketdata.LadderCache
	Config   Config
}

// optionTypeForSide returns the option type that protects this position
// side: a long position is floored by puts, a short position by calls.
func optionTypeForSide(side ptypes.Side) ptypes.OptionType {
	if side == ptypes.SideShort {
		return ptypes.OptionCall
	}
	return ptypes.OptionPut
}

// orderSideForHedge returns the order side the engine must take to open the
// protective hedge leg: protecting a long means buying puts (selling would
// not hedge a long's downside), matching the order side used to consume the
// ask side of the book in EvaluateStrike.
func orderSideForHedge(_ ptypes.Side) ptypes.OrderSide {
	return ptypes.OrderBuy
}

// Compute runs the full quote state machine (steps 1-6, minus the cache
// layer) and returns the resulting Quote.
func (e *Engine) Compute(ctx context.Context, in Inputs) ptypes.Quote {
	optType := optionTypeForSide(in.Side)
	orderSide := orderSideForHedge(in.Side)

	// Step 1: hedge sizing.
	requiredSize := hedging.RequiredSize(in.PositionSize, in.ContractSize, e.Config.MinOptionSize, in.PositionDelta, in.OptionDelta)
	if requiredSize.Sign() <= 0 {
		return noQuote(in, "invalid_required_size")
	}

	// Step 2: expiry search order.
	instruments, err := e.listAllInstruments(ctx, in.Asset)
	if err != nil || len(instruments) == 0 {
		return noQuote(in, "no_instruments")
	}

	var tags []ExpiryTag
	if in.PinnedExpiryTag != "" {
		for _, inst := range instruments {
			if inst.ExpiryTag == in.PinnedExpiryTag {
				tags = []ExpiryTag{{Tag: in.PinnedExpiryTag, Days: daysFromNow(inst.ExpiryTime)}}
				break
			}
		}
		if len(tags) == 0 {
			return noQuote(in, "pinned_expiry_not_found")
		}
	} else {
		days := BuildDayLadder(in.TargetDays, e.Config.MaxPreferredDays, e.Config.MaxFallbackDays)
		now := time.Now().UnixMilli()
		seen := map[string]bool{}
		for _, d := range days {
			tag, ok := ClosestExpiry(instruments, d, now)
			if !ok || seen[tag.Tag] {
				continue
			}
			seen[tag.Tag] = true
			tags = append(tags, tag)
		}

		if len(tags) == 0 {
			return noQuote(in, "no_expiry_candidates")
		}

		scores := make(map[string]float64, len(tags))
		for _, t := range tags {
			floor := floorPrice(in.Spot, in.DrawdownFloorPct, optType)
			probe := NearestStrikes(instruments, t.Tag, optType, floor, 4)
			var names []string
			for _, p := range probe {
				names = append(names, p.Name)
			}
			scores[t.Tag] = LiquidityAnchorScore(ctx, e.Registry, names, orderSide, in.Spot)
		}
		tags = OrderExpiryTagsByAnchor(tags, scores)
	}

	// Step 3: strike selection across tags in order, tracking the lowest
	// all-in premium candidate. First pass with normal gates.
	best, found := e.searchStrikes(ctx, instruments, tags, in, optType, orderSide, requiredSize, e.Config.Gate)

	// Second pass with relaxed spread/slippage if liquidity override enabled.
	if !found && e.Config.LiquidityOverride {
		best, found = e.searchStrikes(ctx, instruments, tags, in, optType, orderSide, requiredSize, e.Config.LiquidityGate)
	}

	if !found {
		return noQuote(in, "no_liquidity")
	}

	// Step 4: fee calculation.
	iv := 0.5
	if in.IvSnapshot != nil {
		iv = in.IvSnapshot.Scaled
	}
	feeIn := e.Config.FeeInputsTemplate
	feeIn.Tier = in.Tier.Name
	feeIn.Days = best.Days
	feeIn.Leverage = in.Leverage
	feeIn.Iv = iv
	feeIn.BaseFee = in.FixedPriceUsdc

	if e.Config.CTCEnabled {
		notional := in.PositionSize.Mul(in.Spot)
		isBronze := in.Tier.Name == ptypes.ProBronze
		feeIn.CTC = fees.ComputeCTC(fees.CTCInputs{
			Tier:            in.Tier.Name,
			Spot:            in.Spot,
			Notional:        notional,
			Dd:              in.DrawdownFloorPct,
			BufferPct:       e.Config.CTCBufferPct,
			Ladder:          e.Ladder,
			MarginPctByTier: e.Config.CTCMarginPctByTier,
			OpsBufferByTier: e.Config.CTCOpsBufferByTier,
			Leverage:        in.Leverage,
			IsBronze:        isBronze,
		})
	}

	feeResult := fees.Compute(feeIn)

	// Step 5: status resolution.
	q := e.resolveStatus(in, best, feeResult, requiredSize, optType, iv)

	// Final survival check.
	survival := hedging.Survival(hedging.SurvivalInputs{
		Spot:         in.Spot,
		Dd:           in.DrawdownFloorPct,
		OptionType:   optType,
		Strike:       best.Strike,
		HedgeSize:    best.FilledSize,
		RequiredSize: requiredSize,
		TolerancePct: e.Config.SurvivalTolerancePct,
	})
	q.SurvivalCheck = survival

	if !q.Status.IsTerminal() && !survival.Pass {
		q.Status = ptypes.StatusNoQuote
		q.Reason = "survival_check_failed"
	}

	q.QuoteID = uuid.NewString()
	q.ExpiresAt = time.Now().Add(4 * time.Second).Format(time.RFC3339)
	q.Instrument = best.Instrument
	q.Strike = best.Strike
	q.OptionType = optType
	q.PremiumPerUnitUsdc = best.AvgPrice
	q.PremiumTotalUsdc = best.PremiumTotal
	q.HedgeSize = money.NewSize(best.FilledSize)
	q.RollMultiplier = best.RollMultiplier
	q.AllInPremiumUsdc = best.AllInPremium
	q.FeeRegime = string(feeResult.Regime)
	q.ExecutionPlan = best.Plan
	q.SelectionSnapshot = SelectionSnapshot(tags, best)

	return q
}

func (e *Engine) searchStrikes(ctx context.Context, instruments []venue.Instrument, tags []ExpiryTag, in Inputs, optType ptypes.OptionType, orderSide ptypes.OrderSide, requiredSize money.Value, gates pricing.GateTable) (StrikeCandidate, bool) {
	var best StrikeCandidate
	found := false

	floor := floorPrice(in.Spot, in.DrawdownFloorPct, optType)

	for _, tag := range tags {
		gate := gates.ForDays(tag.Days)
		strikes := NearestStrikes(instruments, tag.Tag, optType, floor, 35)
		for _, inst := range strikes {
			cand, ok := EvaluateStrike(ctx, e.Registry, inst, in.Spot, orderSide, requiredSize, e.Config.MaxVenues, gate, in.TargetDays, tag.Days)
			if !ok {
				continue
			}
			if !found || cand.AllInPremium.LessThan(best.AllInPremium) {
				best = cand
				found = true
			}
		}
	}

	return best, found
}

func floorPrice(spot money.Value, dd float64, optType ptypes.OptionType) money.Value {
	if optType == ptypes.OptionCall {
		return spot.Mul(money.NewFromFloat(1 + dd))
	}
	return spot.Mul(money.NewFromFloat(1 - dd))
}

func daysFromNow(expiryMillis int64) int {
	return daysBetweenMillis(expiryMillis, time.Now().UnixMilli())
}

func (e *Engine) listAllInstruments(ctx context.Context, asset ptypes.Asset) ([]venue.Instrument, error) {
	var all []venue.Instrument
	var lastErr error
	for _, name := range e.Registry.Names() {
		c, ok := e.Registry.Get(name)
		if !ok {
			continue
		}
		instruments, err := c.ListInstruments(ctx, asset)
		if err != nil {
			lastErr = err
			continue
		}
		all = append(all, instruments...)
	}
	if len(all) == 0 {
		return nil, lastErr
	}
	return all, nil
}

func noQuote(in Inputs, reason string) ptypes.Quote {
	return ptypes.Quote{
		QuoteID: uuid.NewString(),
		Status:  ptypes.StatusNoQuote,
		Reason:  reason,
	}
}

func SelectionSnapshot(tags []ExpiryTag, best StrikeCandidate) ptypes.SelectionSnapshot {
	snap := ptypes.SelectionSnapshot{PickedExpiry: best.ExpiryTag, PickedDays: best.Days}
	for _, t := range tags {
		snap.ExpiryTagsTried = append(snap.ExpiryTagsTried, t.Tag)
	}
	return snap
}
