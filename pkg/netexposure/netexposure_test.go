package netexposure

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drawdownguard/collar-engine/pkg/money"
	"github.com/drawdownguard/collar-engine/pkg/pricing"
	"github.com/drawdownguard/collar-engine/pkg/ptypes"
	"github.com/drawdownguard/collar-engine/pkg/venue"
)

func TestNetByAsset(t *testing.T) {
	coverages := []ptypes.Coverage{
		{CoverageID: "a", NotionalUsdc: money.NewFromInt(1000)},
		{CoverageID: "b", NotionalUsdc: money.NewFromInt(500)},
		{CoverageID: "c", NotionalUsdc: money.NewFromInt(300)},
	}
	sides := map[string]ptypes.Side{"a": ptypes.SideLong, "b": ptypes.SideLong, "c": ptypes.SideShort}

	out := NetByAsset(coverages,
		func(ptypes.Coverage) ptypes.Asset { return ptypes.AssetBTC },
		func(c ptypes.Coverage) ptypes.Side { return sides[c.CoverageID] },
	)

	assert.Len(t, out, 1)
	assert.Equal(t, ptypes.AssetBTC, out[0].Asset)
	// 1000 + 500 - 300 = 1200
	assert.Equal(t, "1200.00", out[0].Net.USDCString())
}

func TestHedgeFactorMinimumWins(t *testing.T) {
	a := Attenuators{
		RiskBudgetUsagePct:   0.95,
		CapBreached:          true,
		HedgeReductionFactor: 0.6,
	}
	f := HedgeFactor(a, 0.7, 0.9)
	assert.Equal(t, 0.5, f) // risk budget max attenuation wins over 0.6
}

func TestHedgeFactorNoAttenuation(t *testing.T) {
	a := Attenuators{RiskBudgetUsagePct: 0.1, HedgeReductionFactor: 0.6}
	f := HedgeFactor(a, 0.7, 0.9)
	assert.Equal(t, 1.0, f)
}

func TestBuildPlan(t *testing.T) {
	net := AssetNet{Asset: ptypes.AssetBTC, Net: money.NewFromInt(60000)}
	spot := money.NewFromInt(60000)

	plan := BuildPlan(ptypes.AssetBTC, net, spot, 0.8, money.NewFromInt(100000), money.NewFromFloat(0.1), money.NewFromInt(50000), money.NewFromFloat(0.5), money.NewFromInt(1000))

	// targetUnits = (60000/60000) * 0.8 * 0.7 = 0.56
	assert.Equal(t, "0.56", plan.TargetUnits.Round2().String())
	assert.True(t, plan.BudgetUsdc.Sign() > 0)
}

type bookConnector struct {
	book venue.OrderBook
}

func (b bookConnector) ListInstruments(ctx context.Context, asset ptypes.Asset) ([]venue.Instrument, error) {
	return nil, nil
}
func (b bookConnector) GetTicker(ctx context.Context, instrument string) (venue.Ticker, error) {
	return venue.Ticker{}, nil
}
func (b bookConnector) GetOrderBook(ctx context.Context, instrument string) (venue.OrderBook, error) {
	return b.book, nil
}
func (b bookConnector) GetIndexPrice(ctx context.Context, asset ptypes.Asset) (money.Value, error) {
	return money.NewFromInt(60000), nil
}
func (b bookConnector) GetPositions(ctx context.Context, asset ptypes.Asset) ([]ptypes.Position, error) {
	return nil, nil
}
func (b bookConnector) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderResult, error) {
	return venue.OrderResult{}, nil
}

// A healthy book but a zero spend budget: every strike must fall out of the
// search as budget_too_small rather than silently producing no candidates.
func TestSearchOptionLadderZeroBudgetDiag(t *testing.T) {
	reg := venue.NewRegistry()
	reg.Register("deribit", bookConnector{book: venue.OrderBook{
		// option book prices are base-asset units, normalized by spot.
		Bids: []venue.BookLevel{{Price: money.NewFromFloat(0.0099), Size: money.NewFromFloat(2)}},
		Asks: []venue.BookLevel{{Price: money.NewFromFloat(0.01), Size: money.NewFromFloat(2)}},
	}})

	spot := money.NewFromInt(60000)
	instruments := []venue.Instrument{{
		Name:       "BTC-1JAN27-58000-P",
		Asset:      ptypes.AssetBTC,
		Kind:       "option",
		Strike:     money.NewFromInt(58000),
		OptionType: ptypes.OptionPut,
		ExpiryTag:  "1JAN27",
		ExpiryTime: time.Now().Add(7 * 24 * time.Hour).UnixMilli(),
	}}

	gates := pricing.GateTable{Default: pricing.Gate{MaxSpreadPct: 0.2, MaxSlippagePct: 0.2}}
	candidates, diag := SearchOptionLadder(context.Background(), reg, instruments,
		ptypes.OptionPut, ptypes.OrderBuy, []int{7}, spot, spot,
		money.NewFromFloat(0.5), money.Zero, gates, time.Second)

	assert.Empty(t, candidates)
	assert.Greater(t, diag.BudgetTooSmall, 0)
	assert.False(t, diag.Empty())
}

func TestSearchOptionLadderFindsAffordableCandidate(t *testing.T) {
	reg := venue.NewRegistry()
	reg.Register("deribit", bookConnector{book: venue.OrderBook{
		Bids: []venue.BookLevel{{Price: money.NewFromFloat(0.0099), Size: money.NewFromFloat(2)}},
		Asks: []venue.BookLevel{{Price: money.NewFromFloat(0.01), Size: money.NewFromFloat(2)}},
	}})

	spot := money.NewFromInt(60000)
	instruments := []venue.Instrument{{
		Name:       "BTC-1JAN27-58000-P",
		Asset:      ptypes.AssetBTC,
		Kind:       "option",
		Strike:     money.NewFromInt(58000),
		OptionType: ptypes.OptionPut,
		ExpiryTag:  "1JAN27",
		ExpiryTime: time.Now().Add(7 * 24 * time.Hour).UnixMilli(),
	}}

	gates := pricing.GateTable{Default: pricing.Gate{MaxSpreadPct: 0.2, MaxSlippagePct: 0.2}}
	candidates, diag := SearchOptionLadder(context.Background(), reg, instruments,
		ptypes.OptionPut, ptypes.OrderBuy, []int{7}, spot, spot,
		money.NewFromFloat(0.5), money.NewFromInt(10000), gates, time.Second)

	require.Len(t, candidates, 1)
	assert.Equal(t, 0, diag.BudgetTooSmall)
	// ask 0.01 BTC * 60000 = 600 USDC per unit; budget 10000 covers the full
	// 0.5 target.
	assert.Equal(t, "0.500000", candidates[0].FillUnits.SizeString())
}
