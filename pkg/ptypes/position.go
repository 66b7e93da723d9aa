package ptypes

import (
	"github.com/drawdownguard/collar-engine/pkg/errs"
	"github.com/drawdownguard/collar-engine/pkg/money"
)

// Position is the user's perpetual position that a coverage protects.
//
// Invariant: notional = margin * leverage; size = notional / entryPrice.
type Position struct {
	ID         string      `json:"id"`
	Asset      Asset       `json:"asset"`
	Side       Side        `json:"side"`
	MarginUsd  money.Value `json:"marginUsd"`
	Leverage   money.Value `json:"leverage"`
	EntryPrice money.Value `json:"entryPrice"`
}

// Notional returns margin * leverage.
func (p Position) Notional() money.Value {
	return p.MarginUsd.Mul(p.Leverage)
}

// Size returns notional / entryPrice, or zero if entryPrice is zero.
func (p Position) Size() money.Value {
	return p.Notional().Div(p.EntryPrice)
}

// Validate enforces the position invariants from spec section 3.
func (p Position) Validate(maxLeverage money.Value) error {
	if p.Leverage.Sign() <= 0 || p.Leverage.GreaterThan(maxLeverage) {
		return errs.ErrInvalidLeverage
	}
	if p.EntryPrice.Sign() <= 0 {
		return errs.ErrInvalidPayload
	}
	return nil
}
