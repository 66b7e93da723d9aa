// Command server runs the drawdown-protection control plane: it loads the
// three account-config files, wires a venue registry against Deribit, starts
// the ATM-IV and put-ladder market-data caches, and serves the HTTP API from
// spec section 6.2 while running the LOOP_INTERVAL_MS/MTM_INTERVAL_MS
// background loops.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/drawdownguard/collar-engine/pkg/config"
	"github.com/drawdownguard/collar-engine/pkg/engine"
	"github.com/drawdownguard/collar-engine/pkg/httpapi"
	"github.com/drawdownguard/collar-engine/pkg/marketdata"
	"github.com/drawdownguard/collar-engine/pkg/money"
	"github.com/drawdownguard/collar-engine/pkg/venue"
)

var log = logrus.WithField("component", "server")

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load environment")
	}

	settings, err := config.LoadSettings("settings.yaml")
	if err != nil {
		logrus.WithError(err).Fatal("failed to load settings")
	}
	if level, err := logrus.ParseLevel(settings.Logging.Level); err == nil {
		logrus.SetLevel(level)
	}

	fundedLevels := config.NewLoader[config.FundedLevelsFile]("funded_levels.json")
	riskControls := config.NewLoader[config.RiskControls]("risk_controls.json")
	liveAccounts := config.NewLoader[config.LiveAccountsFile](env.AccountsConfigPath)

	if _, err := fundedLevels.Get(); err != nil {
		log.WithError(err).Fatal("failed to load funded_levels.json")
	}
	if _, err := riskControls.Get(); err != nil {
		log.WithError(err).Fatal("failed to load risk_controls.json")
	}
	if _, err := liveAccounts.Get(); err != nil {
		log.WithError(err).Fatal("failed to load live accounts config")
	}

	venueName := settings.Venue.Name
	reg := venue.NewRegistry()
	reg.Register(venueName, buildDeribitConnector(env, settings))

	conn, _ := reg.Get(venueName)
	atmiv := marketdata.NewATMIVCache(conn,
		time.Duration(settings.MarketData.AtmIvTTLSeconds)*time.Second,
		settings.MarketData.AtmIvFallback)

	ladder := marketdata.NewLadderCache(deribitWsURL(env, settings),
		time.Duration(settings.MarketData.LadderMaxAgeSeconds)*time.Second,
		time.Duration(settings.MarketData.LadderSnapshotAgeSeconds)*time.Second,
		settings.MarketData.LadderPriceBufferPct)
	ctx, cancel := context.WithCancel(context.Background())
	go ladder.Start(ctx)

	e, err := engine.New(reg, atmiv, ladder, fundedLevels, riskControls, liveAccounts, settings.LogsDir)
	if err != nil {
		log.WithError(err).Fatal("failed to build engine")
	}
	e.SetCacheTTLs(
		time.Duration(env.QuoteCacheTtlMs)*time.Millisecond,
		time.Duration(env.QuoteCacheStaleMs)*time.Millisecond,
		time.Duration(env.QuoteCacheHardMs)*time.Millisecond,
	)

	if env.AuditSeed != "" {
		seed, err := money.NewFromString(env.AuditSeed)
		if err != nil {
			log.WithError(err).Fatal("invalid AUDIT_SEED")
		}
		e.SeedLiquidity(seed)
	}

	router := httpapi.NewRouter(e)
	srv := &http.Server{Addr: settings.BindAddr, Handler: router}

	go runLoopTicker(ctx, e, liveAccounts, time.Duration(env.LoopIntervalMs)*time.Millisecond)
	go runMtmTicker(ctx, e, time.Duration(env.MtmIntervalMs)*time.Millisecond)

	go func() {
		log.WithField("addr", settings.BindAddr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.WithField("signal", sig.String()).Info("shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
}

// runLoopTicker re-evaluates every live account and the platform net-exposure
// plan on LOOP_INTERVAL_MS, mirroring what POST /loop/tick does on demand.
func runLoopTicker(ctx context.Context, e *engine.Engine, liveAccounts *config.Loader[config.LiveAccountsFile], interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			accounts, err := liveAccounts.Get()
			if err != nil {
				log.WithError(err).Warn("loop tick: live accounts unavailable")
				continue
			}
			tickCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
			for _, account := range accounts.Accounts {
				e.Tick(tickCtx, account, now, time.Minute)
			}
			e.PlanNetExposure(tickCtx)
			e.RecordMetrics()
			cancel()
		}
	}
}

// runMtmTicker revalues every open hedge lot on MTM_INTERVAL_MS and keeps
// the metrics gauges current between loop ticks.
func runMtmTicker(ctx context.Context, e *engine.Engine, interval time.Duration) {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mtmCtx, cancel := context.WithTimeout(ctx, 8*time.Second)
			e.RefreshMtm(mtmCtx)
			cancel()
			e.RecordMetrics()
		}
	}
}

func buildDeribitConnector(env *config.Env, settings *config.Settings) venue.Connector {
	base := settings.Venue.RestBaseURL
	if base == "" {
		base = "https://www.deribit.com/api/v2"
		if env.DeribitEnv == "testnet" {
			base = "https://test.deribit.com/api/v2"
		}
	}
	return venue.NewRESTConnector(settings.Venue.Name, base, venue.Endpoints{
		ListInstruments: "/public/get_instruments?currency={asset}&kind=option",
		Ticker:          "/public/ticker?instrument_name={instrument}",
		OrderBook:       "/public/get_order_book?instrument_name={instrument}",
		IndexPrice:      "/public/get_index_price?index_name={asset}_usd",
		Positions:       "/private/get_positions?currency={asset}",
		PlaceOrder:      "/private/{side}",
	})
}

func deribitWsURL(env *config.Env, settings *config.Settings) string {
	if settings.Venue.WsURL != "" {
		return settings.Venue.WsURL
	}
	if env.DeribitEnv == "testnet" {
		return "wss://test.deribit.com/ws/api/v2"
	}
	return "wss://www.deribit.com/ws/api/v2"
}
