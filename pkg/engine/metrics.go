package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var liquidityBalanceMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "collar_liquidity_balance_usdc",
		Help: "",
	})

var revenueMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "collar_revenue_usdc",
		Help: "",
	})

var hedgeSpendMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "collar_hedge_spend_usdc",
		Help: "",
	})

var profitMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "collar_profit_usdc",
		Help: "",
	})

var activeCoverageCountMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "collar_active_coverage_count",
		Help: "",
	})

var quoteCacheHitRatioMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "collar_quote_cache_hit_ratio",
		Help: "",
	})

func init() {
	prometheus.MustRegister(
		liquidityBalanceMetric,
		revenueMetric,
		hedgeSpendMetric,
		profitMetric,
		activeCoverageCountMetric,
		quoteCacheHitRatioMetric,
	)
}

// RecordMetrics snapshots liquidity, coverage and quote-cache state into the
// registered gauges. Called after each loop tick and after admin/reset so
// /metrics always reflects the last settled state rather than point-in-time
// request data.
func (e *Engine) RecordMetrics() {
	liq := e.Ledger.Liquidity()
	liquidityBalanceMetric.Set(liq.LiquidityBalanceUsdc.Float64())
	revenueMetric.Set(liq.RevenueUsdc.Float64())
	hedgeSpendMetric.Set(liq.HedgeSpendUsdc.Float64())
	profitMetric.Set(liq.ProfitUsdc.Float64())

	activeCoverageCountMetric.Set(float64(len(e.ActiveCoverages(time.Now()))))

	hits, misses := e.QuoteCache.Stats()
	if total := hits + misses; total > 0 {
		quoteCacheHitRatioMetric.Set(float64(hits) / float64(total))
	} else {
		quoteCacheHitRatioMetric.Set(0)
	}
}
