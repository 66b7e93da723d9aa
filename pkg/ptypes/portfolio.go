package ptypes

import (
	"time"

	"github.com/drawdownguard/collar-engine/pkg/money"
)

// PortfolioSnapshot is the last ingested view of one account's equity
// components, per spec section 6.2's /portfolio/ingest and /risk/summary
// query parameters (cashUsdc, positionPnlUsdc, hedgeMtmUsdc).
type PortfolioSnapshot struct {
	AccountID       string      `json:"accountId"`
	CashUsdc        money.Value `json:"cashUsdc"`
	PositionPnlUsdc money.Value `json:"positionPnlUsdc"`
	HedgeMtmUsdc    money.Value `json:"hedgeMtmUsdc"`
	Positions       []Position  `json:"positions"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// Equity sums the three booked components: cash + mark-to-market position
// P&L + hedge mark-to-market.
func (p PortfolioSnapshot) Equity() money.Value {
	return p.CashUsdc.Add(p.PositionPnlUsdc).Add(p.HedgeMtmUsdc)
}

// RiskSummary is the computed drawdown-buffer view of one account, per the
// glossary definitions of "drawdown floor" and "buffer".
type RiskSummary struct {
	EquityUsdc         money.Value `json:"equityUsdc"`
	DrawdownFloorUsdc  money.Value `json:"drawdownFloorUsdc"`
	BufferUsdc         money.Value `json:"bufferUsdc"`
	BufferPct          float64     `json:"bufferPct"`
	MtmStale           bool        `json:"mtmStale"`
}

// ComputeRiskSummary implements the glossary's "drawdown floor" and "buffer"
// definitions: floor := initialBalance - drawdownLimitUsdc (drawdownLimitUsdc
// is the account's configured dollar drawdown distance, not a percent);
// buffer := equity - floor, expressed both in USDC and as a percent of
// initialBalance.
func ComputeRiskSummary(equity, initialBalanceUsdc, drawdownLimitUsdc money.Value, mtmAge time.Duration, maxMtmAge time.Duration) RiskSummary {
	floor := initialBalanceUsdc.Sub(drawdownLimitUsdc)
	buffer := equity.Sub(floor)

	bufferPct := 0.0
	if initialBalanceUsdc.Sign() > 0 {
		bufferPct = buffer.Div(initialBalanceUsdc).Float64()
	}

	return RiskSummary{
		EquityUsdc:        equity,
		DrawdownFloorUsdc: floor,
		BufferUsdc:        buffer,
		BufferPct:         bufferPct,
		MtmStale:          maxMtmAge > 0 && mtmAge > maxMtmAge,
	}
}
