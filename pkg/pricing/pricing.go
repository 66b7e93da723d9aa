// Package pricing implements the multi-venue quote aggregation and the
// best-price split router from spec section 4.3. SplitRouter's fill loop is
// a direct generalization of aggregatePrice() in the teacher's xmaker
// strategy (depth-weighted average price over a price/volume slice) to
// multiple venues instead of one order book.
package pricing

import (
	"context"
	"sort"

	"github.com/drawdownguard/collar-engine/pkg/money"
	"github.com/drawdownguard/collar-engine/pkg/ptypes"
	"github.com/drawdownguard/collar-engine/pkg/venue"
)

// VenueBook is one venue's normalized (USDC-denominated) order book for an
// instrument, plus the venue name it came from.
type VenueBook struct {
	Venue string
	Book  venue.OrderBook
}

// AggregateResult is the per-strike aggregation output before gating.
type AggregateResult struct {
	BestBid     money.Value
	BestAsk     money.Value
	TopOfBookSz money.Value
	SpreadPct   float64
	Plan        []ptypes.ExecutionLeg
	AvgPrice    money.Value
	FilledSize  money.Value
}

// NormalizeOptionBook multiplies an option book's base-asset-unit prices by
// spot to produce USDC-denominated levels, per spec section 4.3 ("option
// books arrive in base-asset units and must be multiplied by spot").
func NormalizeOptionBook(book venue.OrderBook, spot money.Value) venue.OrderBook {
	out := venue.OrderBook{Instrument: book.Instrument, Timestamp: book.Timestamp}
	for _, b := range book.Bids {
		out.Bids = append(out.Bids, venue.BookLevel{Price: b.Price.Mul(spot), Size: b.Size})
	}
	for _, a := range book.Asks {
		out.Asks = append(out.Asks, venue.BookLevel{Price: a.Price.Mul(spot), Size: a.Size})
	}
	return out
}

// FetchBooks fetches a normalized order book for instrument from each
// connector in the registry, dropping (not failing) venues whose book call
// errors, per the propagation policy in spec section 7 ("missing order
// books drop the candidate").
func FetchBooks(ctx context.Context, reg *venue.Registry, instrument string, isOption bool, spot money.Value) []VenueBook {
	var books []VenueBook
	for _, name := range reg.Names() {
		c, ok := reg.Get(name)
		if !ok {
			continue
		}
		book, err := c.GetOrderBook(ctx, instrument)
		if err != nil {
			continue
		}
		if isOption {
			book = NormalizeOptionBook(book, spot)
		}
		books = append(books, VenueBook{Venue: name, Book: book})
	}
	return books
}

// Side selects which book side the taker consumes: buying the hedge
// consumes asks, selling consumes bids.
func sideLevels(book venue.OrderBook, side ptypes.OrderSide) []venue.BookLevel {
	if side == ptypes.OrderBuy {
		return book.Asks
	}
	return book.Bids
}

// sideFavoredPrice is the top-of-book price a taker would pay/receive,
// used to sort venues "favouring the taker side" per spec section 4.3.
func sideFavoredPrice(book venue.OrderBook, side ptypes.OrderSide) (money.Value, bool) {
	levels := sideLevels(book, side)
	if len(levels) == 0 {
		return money.Zero, false
	}
	return levels[0].Price, true
}

// SplitRouter fills requiredSize against the top maxVenues venues (sorted by
// best price favoring the taker side), consuming top-of-book size from each
// until requiredSize is satisfied or venues are exhausted.
func SplitRouter(books []VenueBook, instrument string, side ptypes.OrderSide, requiredSize money.Value, maxVenues int) AggregateResult {
	type candidate struct {
		venue string
		price money.Value
		book  venue.OrderBook
	}

	var candidates []candidate
	for _, vb := range books {
		price, ok := sideFavoredPrice(vb.Book, side)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{venue: vb.Venue, price: price, book: vb.Book})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if side == ptypes.OrderBuy {
			// buying: cheapest ask first
			return candidates[i].price.LessThan(candidates[j].price)
		}
		// selling: highest bid first
		return candidates[i].price.GreaterThan(candidates[j].price)
	})

	if maxVenues <= 0 {
		maxVenues = 3
	}
	if len(candidates) > maxVenues {
		candidates = candidates[:maxVenues]
	}

	remaining := requiredSize
	var plan []ptypes.ExecutionLeg
	totalAmount := money.Zero
	totalSize := money.Zero

	var bestBid, bestAsk money.Value
	var topOfBookSz money.Value
	haveBest := false

	for _, c := range candidates {
		bid, ask, ok := c.book.BestBidAsk()
		if ok && !haveBest {
			bestBid, bestAsk = bid.Price, ask.Price
			topOfBookSz = sideLevels(c.book, side)[0].Size
			haveBest = true
		}

		if remaining.Sign() <= 0 {
			break
		}

		levels := sideLevels(c.book, side)
		if len(levels) > 1 {
			levels = levels[:1]
		}
		for _, lvl := range levels {
			if remaining.Sign() <= 0 {
				break
			}
			fillSize := money.Min(remaining, lvl.Size)
			if fillSize.Sign() <= 0 {
				continue
			}
			plan = append(plan, ptypes.ExecutionLeg{
				Venue:      c.venue,
				Instrument: instrument,
				Side:       side,
				Size:       money.NewSize(fillSize),
				Price:      lvl.Price,
			})
			totalAmount = totalAmount.Add(fillSize.Mul(lvl.Price))
			totalSize = totalSize.Add(fillSize)
			remaining = remaining.Sub(fillSize)
		}
	}

	result := AggregateResult{
		BestBid:     bestBid,
		BestAsk:     bestAsk,
		TopOfBookSz: topOfBookSz,
		Plan:        plan,
		FilledSize:  totalSize,
	}

	if !bestAsk.IsZero() && !bestBid.IsZero() {
		result.SpreadPct = bestAsk.Sub(bestBid).Div(bestAsk).Float64()
	}

	if totalSize.Sign() > 0 {
		result.AvgPrice = totalAmount.Div(totalSize)
	}

	return result
}

// Gate applies the four candidate gates from spec section 4.3.
type Gate struct {
	MaxSpreadPct   float64
	MaxSlippagePct float64
}

// FailReason returns the first gate the result violates, or "" when all
// four pass: 1. both bid and ask present; 2. spread within bound;
// 3. filled > 0; 4. (avgPrice - bestAsk) / bestAsk <= maxSlippagePct.
// The reason strings feed the option_exec_failed diagnostic counters.
func (g Gate) FailReason(result AggregateResult) string {
	if result.BestBid.IsZero() || result.BestAsk.IsZero() {
		return "no_bid_ask"
	}
	if result.SpreadPct > g.MaxSpreadPct {
		return "spread_too_wide"
	}
	if result.FilledSize.Sign() <= 0 {
		return "size_too_small"
	}
	if result.BestAsk.Sign() > 0 {
		slippage := result.AvgPrice.Sub(result.BestAsk).Div(result.BestAsk).Float64()
		if slippage > g.MaxSlippagePct {
			return "slippage_too_high"
		}
	}
	return ""
}

// Passes reports whether result satisfies all four gates.
func (g Gate) Passes(result AggregateResult) bool {
	return g.FailReason(result) == ""
}

// GateTable resolves the day-indexed spread/slippage thresholds: the
// default Gate applies unless the candidate's days-to-expiry has an
// explicit per-day override configured.
type GateTable struct {
	Default        Gate
	SpreadByDays   map[int]float64
	SlippageByDays map[int]float64
}

// ForDays returns the effective Gate for a candidate days-to-expiry.
func (t GateTable) ForDays(days int) Gate {
	g := t.Default
	if v, ok := t.SpreadByDays[days]; ok {
		g.MaxSpreadPct = v
	}
	if v, ok := t.SlippageByDays[days]; ok {
		g.MaxSlippagePct = v
	}
	return g
}
