package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

// The operator files use snake_case keys and allow numerics as either
// strings or numbers; both must bind through the loader.
func TestLoaderBindsSnakeCaseAndFlexNumbers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "risk_controls.json")
	writeFile(t, path, `{
		"min_fee_usdc_by_tier": {"Pro (Gold)": "5", "Pro (Bronze)": 20},
		"premium_floor_ratio": 1.25,
		"max_spread_pct": "0.05",
		"max_spread_pct_by_days": {"1": "0.12"},
		"default_target_days": 7,
		"coverage_override_tiers": ["Pro (Gold)"]
	}`)

	loader := NewLoader[RiskControls](path)
	rc, err := loader.Get()
	require.NoError(t, err)

	assert.Equal(t, "5.00", rc.MinFeeUsdcByTier["Pro (Gold)"].Value.USDCString())
	assert.Equal(t, "20.00", rc.MinFeeUsdcByTier["Pro (Bronze)"].Value.USDCString())
	assert.InDelta(t, 1.25, rc.PremiumFloorRatio.Value.Float64(), 1e-9)
	assert.InDelta(t, 0.05, rc.MaxSpreadPct.Value.Float64(), 1e-9)
	assert.InDelta(t, 0.12, rc.MaxSpreadPctByDays["1"].Value.Float64(), 1e-9)
	assert.Equal(t, 7, rc.DefaultTargetDays)
	assert.Equal(t, []string{"Pro (Gold)"}, rc.CoverageOverrideTiers)
}

func TestLoaderReloadsOnMtimeAdvance(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "funded_levels.json")
	writeFile(t, path, `{"levels": [{"name": "A", "drawdown_limit_pct": "0.2", "fixed_price_usdc": "10"}]}`)

	loader := NewLoader[FundedLevelsFile](path)
	first, err := loader.Get()
	require.NoError(t, err)
	require.Len(t, first.Levels, 1)

	// Rewrite with a new level and push the mtime forward so the reload is
	// observable regardless of filesystem timestamp granularity.
	writeFile(t, path, `{"levels": [{"name": "A", "drawdown_limit_pct": "0.2", "fixed_price_usdc": "10"}, {"name": "B", "drawdown_limit_pct": "0.1", "fixed_price_usdc": "5"}]}`)
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	second, err := loader.Get()
	require.NoError(t, err)
	assert.Len(t, second.Levels, 2)
}

func TestLoaderCachesByMtime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "live_accounts.json")
	writeFile(t, path, `{"accounts": [{"accountId": "acct-1", "initialBalanceUsdc": 5000}]}`)

	loader := NewLoader[LiveAccountsFile](path)
	first, err := loader.Get()
	require.NoError(t, err)

	second, err := loader.Get()
	require.NoError(t, err)
	assert.Same(t, first, second, "unchanged mtime must serve the cached parse")
}
