package ledger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drawdownguard/collar-engine/pkg/money"
	"github.com/drawdownguard/collar-engine/pkg/ptypes"
)

func testCoverage(id string, expiry time.Time) ptypes.Coverage {
	return ptypes.Coverage{
		CoverageID: id,
		TierName:   "Pro (Gold)",
		ExpiryIso:  expiry.Format(time.RFC3339),
		FeeUsd:     money.NewFromInt(100),
		SubsidyUsd: money.NewFromInt(10),
	}
}

func TestActivateCoverageIdempotent(t *testing.T) {
	l := New(nil, ptypes.LiquidityLedger{})
	now := time.Now()
	cov := testCoverage("cov-1", now.Add(7*24*time.Hour))

	ev := l.ActivateCoverage(cov, now)
	assert.Equal(t, ptypes.EventCoverageActivated, ev)

	// A second activation with the same still-live coverageId must not
	// double-book revenue/subsidy (I5).
	ev2 := l.ActivateCoverage(cov, now)
	assert.Equal(t, ptypes.EventCoverageDuplicate, ev2)

	liq := l.Liquidity()
	assert.Equal(t, "100.00", liq.RevenueUsdc.USDCString())
	assert.Equal(t, "10.00", liq.SubsidyBudgetUsdc.USDCString())
	assert.Equal(t, "90.00", liq.ProfitUsdc.USDCString())
}

func TestActivateCoverageReactivatesAfterExpiry(t *testing.T) {
	l := New(nil, ptypes.LiquidityLedger{})
	now := time.Now()
	cov := testCoverage("cov-2", now.Add(-1*time.Hour)) // already expired

	ev := l.ActivateCoverage(cov, now)
	assert.Equal(t, ptypes.EventCoverageActivated, ev)

	// Same id, no longer live: a fresh activation should be accepted and
	// revenue recognized again.
	cov2 := testCoverage("cov-2", now.Add(7*24*time.Hour))
	ev2 := l.ActivateCoverage(cov2, now)
	assert.Equal(t, ptypes.EventCoverageActivated, ev2)

	liq := l.Liquidity()
	assert.Equal(t, "200.00", liq.RevenueUsdc.USDCString())
}

func TestRecordHedgeOrderSameDirectionThenClose(t *testing.T) {
	l := New(nil, ptypes.LiquidityLedger{})

	realized := l.RecordHedgeOrder("BTC-PERP", money.NewFromFloat(1.0), money.NewFromInt(60000), false, money.NewFromInt(2), nil)
	assert.True(t, realized.IsZero())

	lots := l.HedgeLots()
	require.Len(t, lots, 1)
	assert.Equal(t, "1.000000", lots[0].Size.SizeString())
	assert.Equal(t, "60000.00", lots[0].AvgCostUsdc.USDCString())

	liq := l.Liquidity()
	// notional/leverage = 60000/2 = 30000 margin booked
	assert.Equal(t, "30000.00", liq.HedgeMarginUsdc.USDCString())

	// Closing the full long at a higher price realizes P&L (I6).
	realized2 := l.RecordHedgeOrder("BTC-PERP", money.NewFromFloat(-1.0), money.NewFromInt(61000), false, money.NewFromInt(2), nil)
	assert.Equal(t, "1000.00", realized2.USDCString())

	lots2 := l.HedgeLots()
	require.Len(t, lots2, 1)
	assert.True(t, lots2[0].Size.IsZero())
	assert.True(t, lots2[0].AvgCostUsdc.IsZero())
}

func TestRecordHedgeOrderOptionBooksPremiumSpend(t *testing.T) {
	l := New(nil, ptypes.LiquidityLedger{})

	l.RecordHedgeOrder("BTC-25DEC26-60000-P", money.NewFromFloat(1.0), money.NewFromInt(500), true, money.Zero, nil)

	liq := l.Liquidity()
	assert.Equal(t, "500.00", liq.HedgeSpendUsdc.USDCString())
	assert.Equal(t, "-500.00", liq.LiquidityBalanceUsdc.USDCString())
}

func TestCloseGuardBlocksOnPositiveDrawdownBuffer(t *testing.T) {
	l := New(nil, ptypes.LiquidityLedger{})

	err := l.CloseGuard("cov-3", money.NewFromInt(50))
	require.Error(t, err)

	err2 := l.CloseGuard("cov-3", money.NewFromInt(0))
	assert.NoError(t, err2)

	err3 := l.CloseGuard("cov-3", money.NewFromInt(-10))
	assert.NoError(t, err3)
}

func TestExportSnapshotIncludesCoveragesAndLots(t *testing.T) {
	l := New(nil, ptypes.LiquidityLedger{})
	now := time.Now()
	l.ActivateCoverage(testCoverage("cov-4", now.Add(time.Hour)), now)
	l.RecordHedgeOrder("BTC-PERP", money.NewFromFloat(0.5), money.NewFromInt(60000), false, money.NewFromInt(1), nil)

	snap := l.Export(now)
	assert.Len(t, snap.Coverages, 1)
	assert.Len(t, snap.HedgeLots, 1)
}

func TestMarkToMarketRecordsUnrealized(t *testing.T) {
	l := New(nil, ptypes.LiquidityLedger{})

	l.RecordHedgeOrder("BTC-25DEC26-60000-P", money.NewFromFloat(2.0), money.NewFromInt(500), true, money.Zero, nil)

	unrealized := l.MarkToMarket("BTC-25DEC26-60000-P", money.NewFromInt(650))
	assert.Equal(t, "300.00", unrealized.USDCString()) // (650-500)*2
	assert.Equal(t, "300.00", l.UnrealizedMtmUsdc().USDCString())

	// A later mark replaces, not accumulates.
	l.MarkToMarket("BTC-25DEC26-60000-P", money.NewFromInt(400))
	assert.Equal(t, "-200.00", l.UnrealizedMtmUsdc().USDCString())
}

func TestMarkToMarketSkipsClosedLot(t *testing.T) {
	l := New(nil, ptypes.LiquidityLedger{})

	l.RecordHedgeOrder("BTC-PERP", money.NewFromFloat(1.0), money.NewFromInt(60000), false, money.NewFromInt(2), nil)
	l.MarkToMarket("BTC-PERP", money.NewFromInt(61000))
	l.RecordHedgeOrder("BTC-PERP", money.NewFromFloat(-1.0), money.NewFromInt(61000), false, money.NewFromInt(2), nil)

	unrealized := l.MarkToMarket("BTC-PERP", money.NewFromInt(62000))
	assert.True(t, unrealized.IsZero())
	assert.True(t, l.UnrealizedMtmUsdc().IsZero())
}

func TestSeedCreditsLiquidityBalance(t *testing.T) {
	l := New(nil, ptypes.LiquidityLedger{})

	l.Seed(money.NewFromInt(50000))
	assert.Equal(t, "50000.00", l.Liquidity().LiquidityBalanceUsdc.USDCString())

	l.Seed(money.Zero)
	assert.Equal(t, "50000.00", l.Liquidity().LiquidityBalanceUsdc.USDCString())
}

// hedge_order payloads must carry feeRecognized=true: revenue is booked at
// activation only, and the flag tells a ledger replay the fee was already
// recognized.
func TestHedgeOrderPayloadMarksFeeRecognized(t *testing.T) {
	dir := t.TempDir()
	w, err := NewAuditWriter(filepath.Join(dir, "audit.log"))
	require.NoError(t, err)
	defer w.Close()

	l := New(w, ptypes.LiquidityLedger{})
	l.RecordHedgeOrder("BTC-PERP", money.NewFromFloat(0.5), money.NewFromInt(60000), false, money.NewFromInt(2), []string{"platform-risk"})
	require.NoError(t, w.Close())

	raw, err := os.ReadFile(filepath.Join(dir, "audit.log"))
	require.NoError(t, err)

	var found bool
	for _, line := range bytes.Split(bytes.TrimSpace(raw), []byte("\n")) {
		var entry ptypes.AuditEntry
		require.NoError(t, json.Unmarshal(line, &entry))
		if entry.Event == ptypes.EventHedgeOrder {
			found = true
			assert.Equal(t, true, entry.Payload["feeRecognized"])
		}
	}
	assert.True(t, found, "expected a hedge_order entry in the audit log")
}
