package fees

import (
	"math"

	"github.com/drawdownguard/collar-engine/pkg/money"
	"github.com/drawdownguard/collar-engine/pkg/marketdata"
)

// CTCWeight is one replication leg's tenor and notional weight, per spec
// section 4.5 ({1d:0.2, 3d:0.3, 7d:0.5}).
type CTCWeight struct {
	TenorDays int
	Weight    float64
}

var defaultCTCWeights = []CTCWeight{
	{TenorDays: 1, Weight: 0.2},
	{TenorDays: 3, Weight: 0.3},
	{TenorDays: 7, Weight: 0.5},
}

// CTCResult is the computed three-leg replication cost.
type CTCResult struct {
	Cost money.Value
	Legs int
}

// CTCInputs collects the inputs to the safety-replication calculation.
type CTCInputs struct {
	Tier        string
	Spot        money.Value
	Notional    money.Value
	Dd          float64 // drawdown limit pct
	BufferPct   float64
	Ladder      *marketdata.LadderCache
	MarginPctByTier map[string]money.Value
	OpsBufferByTier map[string]money.Value
	Leverage    money.Value
	IsBronze    bool
}

// ComputeCTC sums the cost of replicating the user's floor with three put
// legs using ladder quotes. Returns nil when not
// applicable: Bronze <= 2x, or when the ladder is unavailable.
func ComputeCTC(in CTCInputs) *CTCResult {
	if in.IsBronze && in.Leverage.LessOrEqual(money.NewFromInt(2)) {
		return nil
	}
	if in.Ladder == nil {
		return nil
	}

	if _, ok := in.Ladder.Get(); !ok {
		return nil
	}

	targetUsd := in.Notional.Mul(money.NewFromFloat(in.Dd)).Mul(money.NewFromFloat(1 + in.BufferPct))

	floorPrice := in.Spot.Mul(money.NewFromFloat(1 - in.Dd)).Float64()

	totalCost := money.Zero
	legsUsed := 0

	for _, w := range defaultCTCWeights {
		leg, ok := bestLadderLeg(in.Ladder, w.TenorDays, in.Dd)
		if !ok {
			continue
		}

		strikePrice := in.Spot.Mul(money.NewFromFloat(1 - leg.bucket)).Float64()
		intrinsic := strikePrice - floorPrice
		if intrinsic <= 0 {
			continue
		}

		legTargetUsd := targetUsd.Mul(money.NewFromFloat(w.Weight))
		legSize := legTargetUsd.Div(money.NewFromFloat(intrinsic))

		legCost := legSize.Mul(leg.markPrice)
		totalCost = totalCost.Add(legCost)
		legsUsed++
	}

	if legsUsed == 0 {
		return nil
	}

	marginPct := in.MarginPctByTier[in.Tier]
	opsBuffer := in.OpsBufferByTier[in.Tier]

	cost := totalCost.Mul(money.One.Add(marginPct)).Add(opsBuffer)

	return &CTCResult{Cost: cost, Legs: legsUsed}
}

type ladderLegPick struct {
	tenor     int
	bucket    float64
	strike    float64
	markPrice money.Value
}

// bestLadderLeg picks the ladder leg minimizing 10*|tenor-w|+|floor-bucket|
// for weight tenor w and drawdown floor dd.
func bestLadderLeg(ladder *marketdata.LadderCache, tenorDays int, dd float64) (ladderLegPick, bool) {
	buckets := []float64{0.12, 0.16, 0.2}
	tenors := []int{1, 2, 3, 5, 7}

	bestScore := math.MaxFloat64
	var best ladderLegPick
	found := false

	for _, t := range tenors {
		for _, b := range buckets {
			score := 10*math.Abs(float64(t-tenorDays)) + math.Abs(dd-b)
			if score >= bestScore {
				continue
			}
			leg := marketdata.LadderLeg{TenorDays: t, FloorPct: b}
			price, ok := ladder.LegMarkPrice(leg)
			if !ok {
				continue
			}
			bestScore = score
			best = ladderLegPick{tenor: t, bucket: b, strike: b, markPrice: price}
			found = true
		}
	}

	return best, found
}
