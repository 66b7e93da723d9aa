package netexposure

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drawdownguard/collar-engine/pkg/money"
	"github.com/drawdownguard/collar-engine/pkg/pricing"
	"github.com/drawdownguard/collar-engine/pkg/ptypes"
	"github.com/drawdownguard/collar-engine/pkg/venue"
)

type stubConnector struct {
	reject map[string]error
	calls  *int
}

func (s stubConnector) ListInstruments(ctx context.Context, asset ptypes.Asset) ([]venue.Instrument, error) {
	return nil, nil
}
func (s stubConnector) GetTicker(ctx context.Context, instrument string) (venue.Ticker, error) {
	return venue.Ticker{}, nil
}
func (s stubConnector) GetOrderBook(ctx context.Context, instrument string) (venue.OrderBook, error) {
	return venue.OrderBook{}, nil
}
func (s stubConnector) GetIndexPrice(ctx context.Context, asset ptypes.Asset) (money.Value, error) {
	return money.Zero, nil
}
func (s stubConnector) GetPositions(ctx context.Context, asset ptypes.Asset) ([]ptypes.Position, error) {
	return nil, nil
}
func (s stubConnector) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderResult, error) {
	if s.calls != nil {
		*s.calls++
	}
	if err, ok := s.reject[req.Instrument]; ok {
		return venue.OrderResult{}, err
	}
	return venue.OrderResult{OrderID: "ok-" + req.Instrument, Instrument: req.Instrument, FilledSize: req.Amount}, nil
}

func candidate(instrument, venueName string) LadderCandidate {
	return LadderCandidate{
		Instrument: instrument,
		FillUnits:  money.NewFromFloat(0.1),
		Plan:       []ptypes.ExecutionLeg{{Venue: venueName}},
	}
}

func TestExecuteLadderFillsAcrossSameVenueBatch(t *testing.T) {
	reg := venue.NewRegistry()
	reg.Register("deribit", stubConnector{})

	candidates := []LadderCandidate{
		candidate("BTC-1JAN26-60000-P", "deribit"),
		candidate("BTC-1JAN26-58000-P", "deribit"),
	}

	result := ExecuteLadder(context.Background(), reg, candidates, 3, ptypes.OrderSell, "BTC-PERPETUAL", nil, money.NewFromFloat(0.2), 1)

	require.False(t, result.PerpFallback)
	assert.Len(t, result.Executed, 2)
}

func TestExecuteLadderSkipsPaperRejectedThenFallsBackToPerp(t *testing.T) {
	reg := venue.NewRegistry()
	reg.Register("deribit", stubConnector{reject: map[string]error{
		"BTC-1JAN26-60000-P": &venue.RejectedError{Venue: "deribit", Reason: "no_top_of_book"},
	}})

	candidates := []LadderCandidate{candidate("BTC-1JAN26-60000-P", "deribit")}

	books := []pricing.VenueBook{{
		Venue: "deribit",
		Book: venue.OrderBook{
			Bids: []venue.BookLevel{{Price: money.NewFromInt(60000), Size: money.NewFromFloat(1)}},
			Asks: []venue.BookLevel{{Price: money.NewFromInt(60100), Size: money.NewFromFloat(1)}},
		},
	}}

	result := ExecuteLadder(context.Background(), reg, candidates, 3, ptypes.OrderSell, "BTC-PERPETUAL", books, money.NewFromFloat(0.2), 1)

	assert.True(t, result.PerpFallback)
	assert.Empty(t, result.Executed)
	assert.True(t, result.PerpPlan.FilledSize.Sign() > 0)
}

// TestExecuteLadderStopsOnNonSkippableFailure covers spec section 4.8 step
// 5's "on any other failure stop": a generic infra failure (not a
// venue.RejectedError with an allowlisted reason) must abort the search
// outright rather than advancing to the next candidate, even though the
// net observable result (no legs executed, perp fallback) looks the same
// as the skip path - the distinguishing behavior is that the second
// venue is never even attempted.
func TestExecuteLadderStopsOnNonSkippableFailure(t *testing.T) {
	var secondCalls int
	reg := venue.NewRegistry()
	reg.Register("deribit", stubConnector{reject: map[string]error{
		"BTC-1JAN26-60000-P": assertErr("deribit: place order BTC-1JAN26-60000-P status 500"),
	}})
	reg.Register("bybit", stubConnector{calls: &secondCalls})

	candidates := []LadderCandidate{
		candidate("BTC-1JAN26-60000-P", "deribit"),
		candidate("BTC-1JAN26-58000-P", "bybit"),
	}

	books := []pricing.VenueBook{{
		Venue: "deribit",
		Book: venue.OrderBook{
			Bids: []venue.BookLevel{{Price: money.NewFromInt(60000), Size: money.NewFromFloat(1)}},
			Asks: []venue.BookLevel{{Price: money.NewFromInt(60100), Size: money.NewFromFloat(1)}},
		},
	}}

	result := ExecuteLadder(context.Background(), reg, candidates, 3, ptypes.OrderSell, "BTC-PERPETUAL", books, money.NewFromFloat(0.2), 1)

	assert.True(t, result.PerpFallback)
	assert.Empty(t, result.Executed)
	assert.Equal(t, 0, secondCalls, "the second venue's candidate must never be attempted after a non-skippable failure")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
