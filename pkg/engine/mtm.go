package engine

import (
	"context"

	"github.com/drawdownguard/collar-engine/pkg/money"
	"github.com/drawdownguard/collar-engine/pkg/venue"
)

// RefreshMtm revalues every open hedge lot against the venues' current mark
// prices, the periodic MTM_INTERVAL_MS job. Option marks arrive in
// base-asset units and are converted to USDC at the current index price;
// perpetual marks are already USDC. Venue failures skip the lot and leave
// its last recorded mark standing.
func (e *Engine) RefreshMtm(ctx context.Context) {
	for _, lot := range e.Ledger.HedgeLots() {
		if lot.Size.IsZero() {
			continue
		}

		inst, err := venue.ParseInstrument(lot.Instrument)
		if err != nil {
			continue
		}

		ticker, err := e.tickerAnyVenue(ctx, lot.Instrument)
		if err != nil {
			log.WithError(err).WithField("instrument", lot.Instrument).Warn("mtm refresh: no ticker, keeping last mark")
			continue
		}

		markUsdc := ticker.Mark
		if inst.Kind == "option" {
			spot, err := e.SpotPrice(ctx, inst.Asset)
			if err != nil || spot.IsZero() {
				continue
			}
			markUsdc = ticker.Mark.Mul(spot)
		}

		e.Ledger.MarkToMarket(lot.Instrument, markUsdc)
	}
}

func (e *Engine) tickerAnyVenue(ctx context.Context, instrument string) (venue.Ticker, error) {
	var lastErr error
	for _, name := range e.Registry.Names() {
		c, ok := e.Registry.Get(name)
		if !ok {
			continue
		}
		t, err := c.GetTicker(ctx, instrument)
		if err != nil {
			lastErr = err
			continue
		}
		return t, nil
	}
	if lastErr == nil {
		lastErr = errNoVenues
	}
	return venue.Ticker{}, lastErr
}

// SeedLiquidity credits the AUDIT_SEED starting balance into the ledger.
func (e *Engine) SeedLiquidity(amount money.Value) {
	e.Ledger.Seed(amount)
}
