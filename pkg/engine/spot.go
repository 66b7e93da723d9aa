package engine

import (
	"context"

	"github.com/drawdownguard/collar-engine/pkg/money"
	"github.com/drawdownguard/collar-engine/pkg/ptypes"
)

// SpotPrice reads the index price for asset from the first venue in the
// registry that answers, caching the last known value so a later venue
// outage degrades to the stale spot instead of failing the caller.
func (e *Engine) SpotPrice(ctx context.Context, asset ptypes.Asset) (money.Value, error) {
	var lastErr error
	for _, name := range e.Registry.Names() {
		c, ok := e.Registry.Get(name)
		if !ok {
			continue
		}
		spot, err := c.GetIndexPrice(ctx, asset)
		if err != nil {
			lastErr = err
			continue
		}
		e.spotMu.Lock()
		e.lastSpot[asset] = spot
		e.spotMu.Unlock()
		return spot, nil
	}

	e.spotMu.Lock()
	cached, ok := e.lastSpot[asset]
	e.spotMu.Unlock()
	if ok {
		return cached, nil
	}
	if lastErr == nil {
		lastErr = errNoVenues
	}
	return money.Zero, lastErr
}

var errNoVenues = &noVenuesError{}

type noVenuesError struct{}

func (*noVenuesError) Error() string { return "no venue answered index price request" }
