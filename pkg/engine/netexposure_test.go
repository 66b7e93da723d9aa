package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drawdownguard/collar-engine/pkg/money"
	"github.com/drawdownguard/collar-engine/pkg/ptypes"
	"github.com/drawdownguard/collar-engine/pkg/venue"
)

func TestPlanNetExposureNoLiveCoverages(t *testing.T) {
	e := buildTestEngine(t)

	plans := e.PlanNetExposure(context.Background())
	assert.Empty(t, plans)
}

func TestPlanNetExposurePlansAgainstLiveCoverage(t *testing.T) {
	e := buildTestEngine(t)
	now := time.Now()

	cov := ptypes.Coverage{
		CoverageID:   "Pro (Gold):2026-08-07:pos-1",
		TierName:     "Pro (Gold)",
		ExpiryIso:    now.Add(7 * 24 * time.Hour).Format(time.RFC3339),
		NotionalUsdc: money.NewFromInt(10000),
		Positions:    []ptypes.Position{{Asset: ptypes.AssetBTC, Side: ptypes.SideLong}},
		FeeUsd:       money.NewFromInt(20),
	}
	ev := e.Activate(cov)
	require.Equal(t, ptypes.EventCoverageActivated, ev)

	plans := e.PlanNetExposure(context.Background())
	require.Len(t, plans, 1)
	assert.Equal(t, ptypes.AssetBTC, plans[0].Asset)
	// no option instruments are listed by fakeConnector, so the planner
	// degrades straight to "no_instruments" and never places an order.
	assert.Equal(t, 0, plans[0].Executed)
	assert.False(t, plans[0].PerpFallback)
}

func TestSpotPriceFallsBackToCachedValue(t *testing.T) {
	e := buildTestEngine(t)

	spot, err := e.SpotPrice(context.Background(), ptypes.AssetBTC)
	require.NoError(t, err)
	assert.Equal(t, "60000.00", spot.USDCString())

	// Swapping in an empty registry forces the fallback path to serve the
	// cached spot instead of failing the caller.
	e.Registry = venue.NewRegistry()
	spot2, err := e.SpotPrice(context.Background(), ptypes.AssetBTC)
	require.NoError(t, err)
	assert.Equal(t, "60000.00", spot2.USDCString())
}
