package ledger

import (
	"sync"
	"time"

	"github.com/drawdownguard/collar-engine/pkg/errs"
	"github.com/drawdownguard/collar-engine/pkg/money"
	"github.com/drawdownguard/collar-engine/pkg/ptypes"
)

// Ledger owns the active-coverage map (keyed by coverageId), the hedge-lot
// map (keyed by instrument), and the liquidity ledger, kept as two
// independently-keyed maps joined only at query time to avoid the
// coverage<->hedge-lot cyclic reference (spec section 9 "cyclic graph
// avoidance").
type Ledger struct {
	mu sync.Mutex

	coverages     map[string]ptypes.Coverage
	hedgeLots     map[string]ptypes.HedgeLot
	liquidity     ptypes.LiquidityLedger
	unrealizedMtm map[string]money.Value

	writer *AuditWriter
}

func New(writer *AuditWriter, seedLiquidity ptypes.LiquidityLedger) *Ledger {
	return &Ledger{
		coverages:     make(map[string]ptypes.Coverage),
		hedgeLots:     make(map[string]ptypes.HedgeLot),
		liquidity:     seedLiquidity,
		unrealizedMtm: make(map[string]money.Value),
		writer:        writer,
	}
}

// Seed credits an initial liquidity balance into the ledger and emits
// audit_seed, used at startup when AUDIT_SEED is configured.
func (l *Ledger) Seed(amount money.Value) {
	if amount.Sign() <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.liquidity.LiquidityBalanceUsdc = l.liquidity.LiquidityBalanceUsdc.Add(amount)
	l.audit(ptypes.EventAuditSeed, map[string]any{"seedUsdc": amount.USDCString()})
}

func (l *Ledger) audit(event ptypes.AuditEvent, payload map[string]any) {
	if l.writer == nil {
		return
	}
	l.writer.Write(ptypes.AuditEntry{Ts: time.Now(), Event: event, Payload: payload})
}

// ActivateCoverage implements the idempotent activation rule: a duplicate
// coverageId with a still-live existing coverage emits coverage_duplicate
// and returns without mutating state or recognizing revenue twice (I5).
func (l *Ledger) ActivateCoverage(cov ptypes.Coverage, now time.Time) ptypes.AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.coverages[cov.CoverageID]; ok && existing.IsLive(now) {
		l.audit(ptypes.EventCoverageDuplicate, map[string]any{"coverageId": cov.CoverageID})
		return ptypes.EventCoverageDuplicate
	}

	l.coverages[cov.CoverageID] = cov

	l.liquidity.RevenueUsdc = l.liquidity.RevenueUsdc.Add(cov.FeeUsd)
	l.liquidity.SubsidyBudgetUsdc = l.liquidity.SubsidyBudgetUsdc.Add(cov.SubsidyUsd)
	l.liquidity.LiquidityBalanceUsdc = l.liquidity.LiquidityBalanceUsdc.Add(cov.FeeUsd).Sub(cov.SubsidyUsd)
	l.liquidity.RecomputeProfit()

	l.audit(ptypes.EventCoverageActivated, map[string]any{
		"coverageId":    cov.CoverageID,
		"tierName":      cov.TierName,
		"feeUsd":        cov.FeeUsd.USDCString(),
		"subsidyUsd":    cov.SubsidyUsd.USDCString(),
		"feeRecognized": true,
	})
	return ptypes.EventCoverageActivated
}

// RenewCoverage replaces a live coverage's hedge/expiry in place and emits
// coverage_renewed.
func (l *Ledger) RenewCoverage(coverageID string, newExpiryIso string, newHedge ptypes.Hedge) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cov, ok := l.coverages[coverageID]
	if !ok {
		return
	}
	cov.ExpiryIso = newExpiryIso
	cov.Hedge = newHedge
	l.coverages[coverageID] = cov

	l.audit(ptypes.EventCoverageRenewed, map[string]any{
		"coverageId": coverageID,
		"expiryIso":  newExpiryIso,
	})
}

// ExpireCoverage removes a coverage from the live map and emits
// coverage_expired.
func (l *Ledger) ExpireCoverage(coverageID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.coverages, coverageID)
	l.audit(ptypes.EventCoverageExpired, map[string]any{"coverageId": coverageID})
}

// LiveCoverages returns a snapshot slice of every coverage currently held,
// live or not (callers filter with Coverage.IsLive as needed).
func (l *Ledger) LiveCoverages() []ptypes.Coverage {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]ptypes.Coverage, 0, len(l.coverages))
	for _, c := range l.coverages {
		out = append(out, c)
	}
	return out
}

// RecordHedgeOrder updates the hedge lot for instrument with a signed fill
// (positive = bought, negative = sold), books the hedge spend/margin on the
// liquidity ledger, and emits hedge_order, per spec section 4.9. isOption
// distinguishes a premium spend (hedgeSpendUsdc) from a perp margin booking
// (hedgeMarginUsdc := notional/leverage).
func (l *Ledger) RecordHedgeOrder(instrument string, signedSize, price money.Value, isOption bool, leverage money.Value, coverageIDs []string) money.Value {
	l.mu.Lock()
	defer l.mu.Unlock()

	lot := l.hedgeLots[instrument]
	lot.Instrument = instrument
	updated, realized := lot.Fill(signedSize, price)
	l.hedgeLots[instrument] = updated

	notional := signedSize.Abs().Mul(price)
	if isOption {
		l.liquidity.HedgeSpendUsdc = l.liquidity.HedgeSpendUsdc.Add(notional)
		l.liquidity.LiquidityBalanceUsdc = l.liquidity.LiquidityBalanceUsdc.Sub(notional)
	} else if leverage.Sign() > 0 {
		margin := notional.Div(leverage)
		l.liquidity.HedgeMarginUsdc = l.liquidity.HedgeMarginUsdc.Add(margin)
		l.liquidity.LiquidityBalanceUsdc = l.liquidity.LiquidityBalanceUsdc.Sub(margin)
	}
	l.liquidity.RecomputeProfit()

	// feeRecognized marks that the fee revenue for this order's coverage was
	// already booked at activation time: revenue is recognized only in
	// ActivateCoverage, and this method never touches RevenueUsdc, so the
	// flag tells any ledger replay to reject a second booking.
	l.audit(ptypes.EventHedgeOrder, map[string]any{
		"instrument":    instrument,
		"signedSize":    signedSize.SizeString(),
		"price":         price.USDCString(),
		"realizedPnl":   realized.USDCString(),
		"coverageIds":   coverageIDs,
		"feeRecognized": true,
	})
	l.audit(ptypes.EventLiquidityUpdate, map[string]any{
		"liquidityBalanceUsdc": l.liquidity.LiquidityBalanceUsdc.USDCString(),
		"profitUsdc":           l.liquidity.ProfitUsdc.USDCString(),
	})

	return realized
}

// HedgeAction records a rolling-hedge decision (increase/decrease/hold)
// ahead of the order it produces, per the ordering guarantee
// hedge_action -> hedge_order -> liquidity_update -> coverage_activated.
func (l *Ledger) HedgeAction(coverageID, action, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.audit(ptypes.EventHedgeAction, map[string]any{
		"coverageId": coverageID,
		"action":     action,
		"reason":     reason,
	})
}

// Liquidity returns a copy of the current liquidity ledger state.
func (l *Ledger) Liquidity() ptypes.LiquidityLedger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.liquidity
}

// HedgeLots returns a snapshot slice of every tracked hedge lot.
func (l *Ledger) HedgeLots() []ptypes.HedgeLot {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ptypes.HedgeLot, 0, len(l.hedgeLots))
	for _, lot := range l.hedgeLots {
		out = append(out, lot)
	}
	return out
}

// MarkToMarket revalues one instrument's lot against a USDC mark price,
// records the unrealized P&L, and emits mtm_credit. Lots with zero size are
// skipped (their P&L is fully realized already).
func (l *Ledger) MarkToMarket(instrument string, markUsdc money.Value) money.Value {
	l.mu.Lock()
	defer l.mu.Unlock()

	lot, ok := l.hedgeLots[instrument]
	if !ok || lot.Size.IsZero() {
		delete(l.unrealizedMtm, instrument)
		return money.Zero
	}

	unrealized := markUsdc.Sub(lot.AvgCostUsdc).Mul(lot.Size.Value)
	l.unrealizedMtm[instrument] = unrealized

	l.audit(ptypes.EventMtmCredit, map[string]any{
		"instrument":     instrument,
		"markUsdc":       markUsdc.USDCString(),
		"avgCostUsdc":    lot.AvgCostUsdc.USDCString(),
		"size":           lot.Size.SizeString(),
		"unrealizedUsdc": unrealized.USDCString(),
	})
	return unrealized
}

// UnrealizedMtmUsdc sums the last recorded unrealized P&L across every lot.
func (l *Ledger) UnrealizedMtmUsdc() money.Value {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := money.Zero
	for _, v := range l.unrealizedMtm {
		total = total.Add(v)
	}
	return total
}

// CloseGuard implements close_blocked: a close intent requires
// drawdownBufferUsdc <= 0, else it is rejected with
// drawdown_buffer_positive and a close_blocked audit entry (I9).
func (l *Ledger) CloseGuard(coverageID string, drawdownBufferUsdc money.Value) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if drawdownBufferUsdc.Sign() > 0 {
		l.audit(ptypes.EventCloseBlocked, map[string]any{
			"coverageId":         coverageID,
			"drawdownBufferUsdc": drawdownBufferUsdc.USDCString(),
		})
		return errs.WithReason(errs.DrawdownBufferPositive, "drawdown_buffer_positive")
	}
	return nil
}

// Export builds a full-state Snapshot for AuditExport.
func (l *Ledger) Export(now time.Time) Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	covs := make([]ptypes.Coverage, 0, len(l.coverages))
	for _, c := range l.coverages {
		covs = append(covs, c)
	}
	lots := make([]ptypes.HedgeLot, 0, len(l.hedgeLots))
	for _, lot := range l.hedgeLots {
		lots = append(lots, lot)
	}

	unrealized := money.Zero
	for _, v := range l.unrealizedMtm {
		unrealized = unrealized.Add(v)
	}

	return Snapshot{
		GeneratedAt:       now,
		Coverages:         covs,
		HedgeLots:         lots,
		Liquidity:         l.liquidity,
		UnrealizedMtmUsdc: unrealized,
	}
}
