package engine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drawdownguard/collar-engine/pkg/autorenew"
	"github.com/drawdownguard/collar-engine/pkg/config"
	"github.com/drawdownguard/collar-engine/pkg/marketdata"
	"github.com/drawdownguard/collar-engine/pkg/money"
	"github.com/drawdownguard/collar-engine/pkg/ptypes"
	"github.com/drawdownguard/collar-engine/pkg/venue"
)

type fakeConnector struct{}

func (fakeConnector) ListInstruments(ctx context.Context, asset ptypes.Asset) ([]venue.Instrument, error) {
	return nil, nil
}
func (fakeConnector) GetTicker(ctx context.Context, instrument string) (venue.Ticker, error) {
	return venue.Ticker{}, nil
}
func (fakeConnector) GetOrderBook(ctx context.Context, instrument string) (venue.OrderBook, error) {
	return venue.OrderBook{}, nil
}
func (fakeConnector) GetIndexPrice(ctx context.Context, asset ptypes.Asset) (money.Value, error) {
	return money.NewFromInt(60000), nil
}
func (fakeConnector) GetPositions(ctx context.Context, asset ptypes.Asset) ([]ptypes.Position, error) {
	return nil, nil
}
func (fakeConnector) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderResult, error) {
	return venue.OrderResult{OrderID: "o-1", Instrument: req.Instrument, FilledSize: req.Amount, AvgPrice: req.Price}, nil
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o644))
}

func buildTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()

	riskPath := filepath.Join(dir, "risk_controls.json")
	writeJSON(t, riskPath, map[string]any{
		"min_fee_usdc_by_tier":      map[string]any{"Pro (Gold)": "5"},
		"duration_fee_per_day_pct":  "0.01",
		"duration_fee_max_pct":      "0.2",
		"fee_base_days":             "7",
		"fee_iv_regime_thresholds":  map[string]any{"low": "0.3", "high": "0.8"},
		"premium_floor_ratio":       "1.25",
		"survival_tolerance_pct":    "0.98",
		"min_option_size":           "0.001",
		"max_spread_pct":            "0.05",
		"max_slippage_pct":          "0.03",
		"default_target_days":       7,
		"fallback_target_days":      14,
		"max_venues":                3,
		"coverage_override_tiers":   []string{"Pro (Gold)"},
	})

	fundedPath := filepath.Join(dir, "funded_levels.json")
	writeJSON(t, fundedPath, map[string]any{
		"levels": []map[string]any{
			{"name": "Pro (Gold)", "deposit_usdc": "5000", "funding_usdc": "5000", "points_target": "0", "profit_target_usdc": "500", "drawdown_limit_pct": "0.2", "fixed_price_usdc": "10"},
		},
	})

	accountsPath := filepath.Join(dir, "live_accounts.json")
	writeJSON(t, accountsPath, map[string]any{
		"accounts": []map[string]any{
			{"accountId": "acct-1", "drawdownLimitUsdc": "1000", "initialBalanceUsdc": "5000", "hedgeInstrument": "BTC-PERP", "hedgeSize": "0.1", "bufferTargetPct": "0.05", "hysteresisPct": "0.02", "expiryIso": time.Now().Add(10 * time.Minute).Format(time.RFC3339), "renewWindowMinutes": 15},
		},
	})

	reg := venue.NewRegistry()
	reg.Register("deribit", fakeConnector{})

	atmiv := marketdata.NewATMIVCache(fakeConnector{}, time.Second, 0.5)
	ladder := marketdata.NewLadderCache("wss://example.invalid", time.Second, time.Minute, 0)

	e, err := New(reg, atmiv, ladder,
		config.NewLoader[config.FundedLevelsFile](fundedPath),
		config.NewLoader[config.RiskControls](riskPath),
		config.NewLoader[config.LiveAccountsFile](accountsPath),
		filepath.Join(dir, "logs"))
	require.NoError(t, err)
	return e
}

func TestActivateAndDuplicate(t *testing.T) {
	e := buildTestEngine(t)
	now := time.Now()

	cov := ptypes.Coverage{
		CoverageID: "Pro (Gold):2026-08-07:pos-1",
		TierName:   "Pro (Gold)",
		ExpiryIso:  now.Add(7 * 24 * time.Hour).Format(time.RFC3339),
		FeeUsd:     money.NewFromInt(20),
	}

	ev := e.Activate(cov)
	assert.Equal(t, ptypes.EventCoverageActivated, ev)

	ev2 := e.Activate(cov)
	assert.Equal(t, ptypes.EventCoverageDuplicate, ev2)
}

func TestTickRenewDecisionInsideWindow(t *testing.T) {
	e := buildTestEngine(t)
	accounts, err := e.LiveAccounts.Get()
	require.NoError(t, err)
	require.Len(t, accounts.Accounts, 1)

	account := accounts.Accounts[0]
	e.IngestPortfolio(ptypes.PortfolioSnapshot{
		AccountID:       account.AccountID,
		CashUsdc:        money.NewFromInt(4800),
		PositionPnlUsdc: money.Zero,
		HedgeMtmUsdc:    money.Zero,
	})

	result := e.Tick(context.Background(), account, time.Now(), time.Minute)
	assert.NotEmpty(t, result.HedgeDecision.Action)
	assert.Equal(t, autorenew.DecisionRenew, result.RenewDecision)
}

func TestCloseGuardBlocksPlaceOrder(t *testing.T) {
	e := buildTestEngine(t)

	_, err := e.PlaceOrder(context.Background(), "deribit", venue.OrderRequest{Instrument: "BTC-PERP"}, "close", money.NewFromInt(50))
	require.Error(t, err)

	_, err = e.PlaceOrder(context.Background(), "deribit", venue.OrderRequest{Instrument: "BTC-PERP"}, "close", money.Zero)
	require.NoError(t, err)
}

func TestResetClearsState(t *testing.T) {
	e := buildTestEngine(t)
	now := time.Now()
	e.Activate(ptypes.Coverage{CoverageID: "c-1", ExpiryIso: now.Add(time.Hour).Format(time.RFC3339), FeeUsd: money.NewFromInt(10)})

	require.NoError(t, e.Reset())
	assert.Empty(t, e.ActiveCoverages(now))
}
