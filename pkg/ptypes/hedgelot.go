package ptypes

import "github.com/drawdownguard/collar-engine/pkg/money"

// HedgeLot tracks the signed size and average cost of one instrument's
// accumulated hedge fills, independent of which coverage(s) drove the fills.
//
// Invariant: opening the opposite side realizes P&L against AvgCostUsdc;
// when Size reaches zero, AvgCostUsdc resets to zero.
type HedgeLot struct {
	Instrument  string      `json:"instrument"`
	Size        money.Size  `json:"size"`
	AvgCostUsdc money.Value `json:"avgCostUsdc"`
}

// Fill applies a signed fill (positive = bought, negative = sold) at price
// to the lot, returning the updated lot and the realized P&L recognized by
// this fill (zero if the fill only adds to the existing direction).
//
// Same-direction fills average cost; opposite-direction fills realize P&L
// against AvgCostUsdc and reduce size; when size reaches zero, avg cost
// resets to zero (I6 in spec section 8).
func (l HedgeLot) Fill(size, price money.Value) (HedgeLot, money.Value) {
	if size.IsZero() {
		return l, money.Zero
	}

	realized := money.Zero

	sameDirection := l.Size.IsZero() ||
		(l.Size.Sign() > 0 && size.Sign() > 0) ||
		(l.Size.Sign() < 0 && size.Sign() < 0)

	if sameDirection {
		totalCost := l.AvgCostUsdc.Mul(l.Size.Abs()).Add(price.Mul(size.Abs()))
		newSize := l.Size.Add(size)
		if newSize.IsZero() {
			l.AvgCostUsdc = money.Zero
		} else {
			l.AvgCostUsdc = totalCost.Div(newSize.Abs())
		}
		l.Size = money.NewSize(newSize)
		return l, realized
	}

	// Opposite direction: closes up to min(|size|, |l.Size|) against AvgCostUsdc.
	closingSize := money.Min(size.Abs(), l.Size.Abs())
	if l.Size.Sign() > 0 {
		// closing a long by selling: realized = (price - avgCost) * closingSize
		realized = price.Sub(l.AvgCostUsdc).Mul(closingSize)
	} else {
		// closing a short by buying: realized = (avgCost - price) * closingSize
		realized = l.AvgCostUsdc.Sub(price).Mul(closingSize)
	}

	newSize := l.Size.Add(size)
	l.Size = money.NewSize(newSize)

	if newSize.IsZero() {
		l.AvgCostUsdc = money.Zero
	} else if size.Abs().GreaterThan(closingSize) {
		// the fill flipped the lot's direction; the remainder opens a new
		// position at the fill price.
		l.AvgCostUsdc = price
	}
	// else: lot shrank but kept direction and avg cost is unchanged.

	return l, realized
}
