package ptypes

import "github.com/drawdownguard/collar-engine/pkg/money"

// LiquidityLedger is the platform's liquidity/revenue/subsidy accounting
// state. Invariant: revenue - hedgeSpend - subsidy = grossProfit.
type LiquidityLedger struct {
	LiquidityBalanceUsdc money.Value `json:"liquidityBalanceUsdc"`
	RevenueUsdc          money.Value `json:"revenueUsdc"`
	HedgeSpendUsdc       money.Value `json:"hedgeSpendUsdc"`
	HedgeMarginUsdc      money.Value `json:"hedgeMarginUsdc"`
	ProfitUsdc           money.Value `json:"profitUsdc"`
	ReinvestUsdc         money.Value `json:"reinvestUsdc"`
	ReserveUsdc          money.Value `json:"reserveUsdc"`
	SubsidyBudgetUsdc    money.Value `json:"subsidyBudgetUsdc"`
}

// RecomputeProfit recomputes ProfitUsdc from revenue, hedge spend and
// subsidy booked so far, per spec section 4.9.
func (l *LiquidityLedger) RecomputeProfit() {
	l.ProfitUsdc = l.RevenueUsdc.Sub(l.HedgeSpendUsdc).Sub(l.SubsidyBudgetUsdc)
}

// IVSnapshot normalizes raw venue IV (which may arrive as a percent-ish
// Deribit feed or a fractional feed) into a single scaled value.
type IVSnapshot struct {
	Raw    float64 `json:"raw"`
	Scaled float64 `json:"scaled"`
}

// NewIVSnapshot applies scaled := raw/100 if raw>1.5 else raw.
func NewIVSnapshot(raw float64) IVSnapshot {
	scaled := raw
	if raw > 1.5 {
		scaled = raw / 100
	}
	return IVSnapshot{Raw: raw, Scaled: scaled}
}
