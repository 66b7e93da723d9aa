package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/drawdownguard/collar-engine/pkg/money"
	"github.com/drawdownguard/collar-engine/pkg/ptypes"
	"github.com/drawdownguard/collar-engine/pkg/venue"
)

func book(bidPrice, bidSize, askPrice, askSize float64) venue.OrderBook {
	return venue.OrderBook{
		Bids: []venue.BookLevel{{Price: money.NewFromFloat(bidPrice), Size: money.NewFromFloat(bidSize)}},
		Asks: []venue.BookLevel{{Price: money.NewFromFloat(askPrice), Size: money.NewFromFloat(askSize)}},
	}
}

func TestSplitRouterSortsAsksCheapestFirstAndFillsAcrossVenues(t *testing.T) {
	books := []VenueBook{
		{Venue: "venueA", Book: book(99, 1, 101, 1)},
		{Venue: "venueB", Book: book(99, 1, 100, 0.5)},
	}

	result := SplitRouter(books, "BTC-TEST", ptypes.OrderBuy, money.NewFromFloat(1.0), 3)

	assert.Len(t, result.Plan, 2)
	assert.Equal(t, "venueB", result.Plan[0].Venue) // cheaper ask fills first
	assert.Equal(t, "0.500000", result.Plan[1].Size.SizeString())
	assert.Equal(t, "1.000000", result.FilledSize.SizeString())
}

func TestSplitRouterCapsAtMaxVenues(t *testing.T) {
	books := []VenueBook{
		{Venue: "v1", Book: book(99, 10, 100, 10)},
		{Venue: "v2", Book: book(99, 10, 101, 10)},
		{Venue: "v3", Book: book(99, 10, 102, 10)},
	}
	result := SplitRouter(books, "BTC-TEST", ptypes.OrderBuy, money.NewFromFloat(5), 1)
	// only the single best venue (v1) should have been used
	for _, leg := range result.Plan {
		assert.Equal(t, "v1", leg.Venue)
	}
}

func TestSplitRouterSellSideFavoursHighestBid(t *testing.T) {
	books := []VenueBook{
		{Venue: "low", Book: book(98, 1, 105, 1)},
		{Venue: "high", Book: book(99, 1, 105, 1)},
	}
	result := SplitRouter(books, "BTC-TEST", ptypes.OrderSell, money.NewFromFloat(1), 3)
	assert.Equal(t, "high", result.Plan[0].Venue)
}

func TestGatePassesWithinBounds(t *testing.T) {
	result := AggregateResult{
		BestBid:    money.NewFromInt(99),
		BestAsk:    money.NewFromInt(100),
		FilledSize: money.NewFromFloat(1),
		AvgPrice:   money.NewFromInt(100),
	}
	g := Gate{MaxSpreadPct: 0.05, MaxSlippagePct: 0.02}
	assert.True(t, g.Passes(result))
}

func TestGateFailsOnMissingBidOrAsk(t *testing.T) {
	g := Gate{MaxSpreadPct: 0.05, MaxSlippagePct: 0.02}
	assert.False(t, g.Passes(AggregateResult{BestBid: money.Zero, BestAsk: money.NewFromInt(100), FilledSize: money.NewFromFloat(1)}))
}

func TestGateFailsOnWideSpread(t *testing.T) {
	result := AggregateResult{
		BestBid:    money.NewFromInt(80),
		BestAsk:    money.NewFromInt(100),
		SpreadPct:  0.2,
		FilledSize: money.NewFromFloat(1),
		AvgPrice:   money.NewFromInt(100),
	}
	g := Gate{MaxSpreadPct: 0.05, MaxSlippagePct: 0.5}
	assert.False(t, g.Passes(result))
}

func TestGateFailsOnZeroFill(t *testing.T) {
	result := AggregateResult{
		BestBid:    money.NewFromInt(99),
		BestAsk:    money.NewFromInt(100),
		FilledSize: money.Zero,
	}
	g := Gate{MaxSpreadPct: 0.05, MaxSlippagePct: 0.02}
	assert.False(t, g.Passes(result))
}

func TestGateFailsOnHighSlippage(t *testing.T) {
	result := AggregateResult{
		BestBid:    money.NewFromInt(99),
		BestAsk:    money.NewFromInt(100),
		FilledSize: money.NewFromFloat(1),
		AvgPrice:   money.NewFromInt(110),
	}
	g := Gate{MaxSpreadPct: 0.5, MaxSlippagePct: 0.02}
	assert.False(t, g.Passes(result))
}

func TestNormalizeOptionBookMultipliesBySpot(t *testing.T) {
	b := book(0.01, 1, 0.012, 1)
	out := NormalizeOptionBook(b, money.NewFromInt(50000))
	assert.Equal(t, "500.00", out.Bids[0].Price.USDCString())
	assert.Equal(t, "600.00", out.Asks[0].Price.USDCString())
}

func TestGateTableForDays(t *testing.T) {
	table := GateTable{
		Default:        Gate{MaxSpreadPct: 0.05, MaxSlippagePct: 0.02},
		SpreadByDays:   map[int]float64{1: 0.12},
		SlippageByDays: map[int]float64{7: 0.04},
	}

	assert.Equal(t, Gate{MaxSpreadPct: 0.05, MaxSlippagePct: 0.02}, table.ForDays(3))
	assert.Equal(t, Gate{MaxSpreadPct: 0.12, MaxSlippagePct: 0.02}, table.ForDays(1))
	assert.Equal(t, Gate{MaxSpreadPct: 0.05, MaxSlippagePct: 0.04}, table.ForDays(7))
}

func TestGateFailReason(t *testing.T) {
	g := Gate{MaxSpreadPct: 0.05, MaxSlippagePct: 0.02}

	assert.Equal(t, "no_bid_ask", g.FailReason(AggregateResult{}))

	withBook := AggregateResult{
		BestBid:    money.NewFromInt(95),
		BestAsk:    money.NewFromInt(100),
		SpreadPct:  0.05,
		AvgPrice:   money.NewFromInt(100),
		FilledSize: money.NewFromFloat(0.5),
	}
	assert.Equal(t, "", g.FailReason(withBook))

	wide := withBook
	wide.SpreadPct = 0.2
	assert.Equal(t, "spread_too_wide", g.FailReason(wide))

	empty := withBook
	empty.FilledSize = money.Zero
	assert.Equal(t, "size_too_small", g.FailReason(empty))

	slipped := withBook
	slipped.AvgPrice = money.NewFromInt(110)
	assert.Equal(t, "slippage_too_high", g.FailReason(slipped))
}
