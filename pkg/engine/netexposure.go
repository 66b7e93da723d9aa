package engine

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/drawdownguard/collar-engine/pkg/config"
	"github.com/drawdownguard/collar-engine/pkg/money"
	"github.com/drawdownguard/collar-engine/pkg/netexposure"
	"github.com/drawdownguard/collar-engine/pkg/pricing"
	"github.com/drawdownguard/collar-engine/pkg/ptypes"
	"github.com/drawdownguard/collar-engine/pkg/quote"
	"github.com/drawdownguard/collar-engine/pkg/venue"
)

// execFailureLimiters rate-limits option_exec_failed audit writes per asset
// to one per minute so a venue outage across every tick doesn't flood the
// audit log, mirroring the teacher's circuitBreakerAlertLimiter pattern.
var (
	execFailureLimitersMu sync.Mutex
	execFailureLimiters   = map[ptypes.Asset]*rate.Limiter{}
)

func execFailureAllowed(asset ptypes.Asset) bool {
	execFailureLimitersMu.Lock()
	defer execFailureLimitersMu.Unlock()
	l, ok := execFailureLimiters[asset]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Minute), 1)
		execFailureLimiters[asset] = l
	}
	return l.Allow()
}

func (e *Engine) auditExecFailed(asset ptypes.Asset, reason string) {
	if !execFailureAllowed(asset) {
		return
	}
	e.Audit(ptypes.EventOptionExecFailed, map[string]any{"asset": string(asset), "reason": reason})
}

// NetExposurePlan is one asset's net-exposure hedging outcome for a single
// tick, returned by PlanNetExposure for the /loop/tick response body.
type NetExposurePlan struct {
	Asset        ptypes.Asset    `json:"asset"`
	TargetUnits  money.Value     `json:"targetUnits"`
	HedgeFactor  float64         `json:"hedgeFactor"`
	BudgetUsdc   money.Value     `json:"budgetUsdc"`
	Executed     int             `json:"executed"`
	PerpFallback bool            `json:"perpFallback"`
}

// PlanNetExposure nets exposure across every live coverage for each asset,
// attenuates the hedge factor, and executes a budget-bounded option ladder
// (falling back to a perpetual) per asset. It emits hedge_action/hedge_order
// audit events with coverageIds == ["platform-risk"].
func (e *Engine) PlanNetExposure(ctx context.Context) []NetExposurePlan {
	rc, err := e.RiskControls.Get()
	if err != nil {
		return nil
	}

	coverages := e.ActiveCoverages(time.Now())
	nets := netexposure.NetByAsset(coverages, coverageAsset, coverageSide)
	liquidity := e.Ledger.Liquidity()

	var plans []NetExposurePlan
	for _, net := range nets {
		plan := e.planOneAsset(ctx, rc, net, liquidity)
		plans = append(plans, plan)
	}
	return plans
}

func coverageAsset(c ptypes.Coverage) ptypes.Asset {
	if len(c.Positions) > 0 {
		return c.Positions[0].Asset
	}
	return ptypes.AssetBTC
}

func coverageSide(c ptypes.Coverage) ptypes.Side {
	if len(c.Positions) > 0 {
		return c.Positions[0].Side
	}
	return ptypes.SideLong
}

func (e *Engine) planOneAsset(ctx context.Context, rc *config.RiskControls, net netexposure.AssetNet, liquidity ptypes.LiquidityLedger) NetExposurePlan {
	out := NetExposurePlan{Asset: net.Asset}

	spot, err := e.SpotPrice(ctx, net.Asset)
	if err != nil || spot.IsZero() {
		e.auditExecFailed(net.Asset, "no_spot")
		return out
	}

	highIv := false
	if snap, ok := e.Ladder.Get(); ok && rc.VolatilityThrottleIv.Value.Sign() > 0 {
		highIv = snap.HedgeIv > rc.VolatilityThrottleIv.Value.Float64()
	}

	capBreached := false
	if cap, ok := rc.NetExposureCapUsdc["platform"]; ok && cap.Value.Sign() > 0 {
		capBreached = net.Net.Abs().GreaterThan(cap.Value)
	}

	riskBudgetUsagePct := 0.0
	if liquidity.RevenueUsdc.Sign() > 0 {
		riskBudgetUsagePct = liquidity.HedgeSpendUsdc.Div(liquidity.RevenueUsdc).Float64()
	}

	// The unfavourable-funding-with-ample-buffer attenuator never fires:
	// venue.Connector exposes no funding-rate read, so there is no data
	// source for it at this abstraction layer (see DESIGN.md).
	attenuators := netexposure.Attenuators{
		RiskBudgetUsagePct:   riskBudgetUsagePct,
		CapBreached:          capBreached,
		HighIv:               highIv,
		HedgeReductionFactor: rc.HedgeReductionFactor.Value.Float64(),
	}
	hedgeFactor := netexposure.HedgeFactor(attenuators, rc.RiskBudgetPctMin.Value.Float64(), rc.RiskBudgetPctMax.Value.Float64())

	plan := netexposure.BuildPlan(net.Asset, net, spot, hedgeFactor,
		liquidity.LiquidityBalanceUsdc, rc.ReservePct.Value, liquidity.RevenueUsdc, rc.RiskBudgetPctMax.Value, liquidity.HedgeSpendUsdc)

	out.TargetUnits = plan.TargetUnits
	out.HedgeFactor = plan.HedgeFactor
	out.BudgetUsdc = plan.BudgetUsdc

	if plan.TargetUnits.Sign() <= 0 {
		e.auditExecFailed(net.Asset, "target_units_zero")
		return out
	}

	optType := ptypes.OptionPut
	side := ptypes.OrderSell
	if net.Net.Sign() < 0 {
		optType = ptypes.OptionCall
		side = ptypes.OrderBuy
	}

	instruments, err := e.listInstrumentsAnyVenue(ctx, net.Asset)
	if err != nil || len(instruments) == 0 {
		e.auditExecFailed(net.Asset, "no_instruments")
		return out
	}

	budgetMs := rc.OptionSearchBudgetMs
	if budgetMs <= 0 {
		budgetMs = 1200
	}
	gates := pricing.GateTable{
		Default: pricing.Gate{
			MaxSpreadPct:   rc.MaxSpreadPct.Value.Float64(),
			MaxSlippagePct: rc.MaxSlippagePct.Value.Float64(),
		},
		SpreadByDays:   dayMap(rc.MaxSpreadPctByDays),
		SlippageByDays: dayMap(rc.MaxSlippagePctByDays),
	}

	targetDays := rc.DefaultTargetDays
	maxDays := rc.MaxTargetDays
	if maxDays <= 0 {
		maxDays = targetDays
	}
	days := quote.BuildDayLadder(targetDays, targetDays, maxDays)

	candidates, diag := netexposure.SearchOptionLadder(ctx, e.Registry, instruments, optType, side, days,
		spot, spot, plan.TargetUnits, plan.BudgetUsdc, gates, time.Duration(budgetMs)*time.Millisecond)
	if len(candidates) == 0 && !diag.Empty() && execFailureAllowed(net.Asset) {
		e.Audit(ptypes.EventOptionExecFailed, map[string]any{
			"asset":            string(net.Asset),
			"reason":           "option_ladder_exhausted",
			"optionLadderDiag": diag,
		})
	}

	perpInstrument := string(net.Asset) + "-PERPETUAL"
	perpBooks := pricing.FetchBooks(ctx, e.Registry, perpInstrument, false, spot)
	result := netexposure.ExecuteLadder(ctx, e.Registry, candidates, 3, side, perpInstrument, perpBooks, plan.TargetUnits, rc.MaxVenues)

	for _, leg := range result.Executed {
		e.Ledger.HedgeAction("platform-risk", "net_exposure", "option_ladder")
		e.Ledger.RecordHedgeOrder(leg.Instrument, signedFillSize(side, leg.FillUnits), leg.AvgPrice, true, money.Zero, []string{"platform-risk"})
	}
	if result.PerpFallback && result.PerpPlan.FilledSize.Sign() > 0 {
		e.Ledger.HedgeAction("platform-risk", "net_exposure", "perp_fallback")
		e.Ledger.RecordHedgeOrder(perpInstrument, signedFillSize(side, result.PerpPlan.FilledSize), result.PerpPlan.AvgPrice, false, money.One, []string{"platform-risk"})
	}

	out.Executed = len(result.Executed)
	out.PerpFallback = result.PerpFallback
	return out
}

func signedFillSize(side ptypes.OrderSide, size money.Value) money.Value {
	if side == ptypes.OrderSell {
		return size.Neg()
	}
	return size
}

func (e *Engine) listInstrumentsAnyVenue(ctx context.Context, asset ptypes.Asset) ([]venue.Instrument, error) {
	var lastErr error
	for _, name := range e.Registry.Names() {
		c, ok := e.Registry.Get(name)
		if !ok {
			continue
		}
		insts, err := c.ListInstruments(ctx, asset)
		if err != nil {
			lastErr = err
			continue
		}
		return insts, nil
	}
	return nil, lastErr
}
