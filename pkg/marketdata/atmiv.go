// Package marketdata implements the ATM-IV cache and the put-ladder
// WebSocket aggregator.
package marketdata

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/drawdownguard/collar-engine/pkg/ptypes"
	"github.com/drawdownguard/collar-engine/pkg/venue"
)

var log = logrus.WithField("component", "marketdata")

// ATMIVCache caches the closest-to-spot, closest-to-now implied vol per
// asset with a configurable TTL (default 15s). On any miss-path failure it
// serves a configured fallback value instead of failing the caller.
type ATMIVCache struct {
	ttl      time.Duration
	fallback float64
	conn     venue.Connector

	mu      sync.Mutex
	entries map[ptypes.Asset]atmivEntry
}

type atmivEntry struct {
	iv        float64
	expiresAt time.Time
}

// NewATMIVCache builds a cache reading ATM IV through conn.
func NewATMIVCache(conn venue.Connector, ttl time.Duration, fallback float64) *ATMIVCache {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &ATMIVCache{
		ttl:      ttl,
		fallback: fallback,
		conn:     conn,
		entries:  make(map[ptypes.Asset]atmivEntry),
	}
}

// Get returns the cached ATM IV for asset, refreshing on miss. Any failure
// along the miss path (listing instruments, finding the ATM strike,
// reading markIv) degrades to the configured fallback rather than an error.
func (c *ATMIVCache) Get(ctx context.Context, asset ptypes.Asset) float64 {
	c.mu.Lock()
	entry, ok := c.entries[asset]
	c.mu.Unlock()

	if ok && time.Now().Before(entry.expiresAt) {
		return entry.iv
	}

	iv := c.refresh(ctx, asset)

	c.mu.Lock()
	c.entries[asset] = atmivEntry{iv: iv, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()

	return iv
}

func (c *ATMIVCache) refresh(ctx context.Context, asset ptypes.Asset) float64 {
	instruments, err := c.conn.ListInstruments(ctx, asset)
	if err != nil || len(instruments) == 0 {
		log.WithError(err).Warnf("atm iv: list instruments failed for %s, serving fallback", asset)
		return c.fallback
	}

	spot, err := c.conn.GetIndexPrice(ctx, asset)
	if err != nil {
		log.WithError(err).Warnf("atm iv: index price failed for %s, serving fallback", asset)
		return c.fallback
	}
	spotF := spot.Float64()

	now := time.Now().UnixMilli()

	// Take the expiration closest to now.
	var closestExpiry int64 = math.MaxInt64
	bestExpiryDiff := int64(math.MaxInt64)
	for _, inst := range instruments {
		if inst.Kind != "option" {
			continue
		}
		diff := inst.ExpiryTime - now
		if diff < 0 {
			continue
		}
		if diff < bestExpiryDiff {
			bestExpiryDiff = diff
			closestExpiry = inst.ExpiryTime
		}
	}
	if closestExpiry == math.MaxInt64 {
		return c.fallback
	}

	// Among that expiry, pick the strike closest to spot.
	var best venue.Instrument
	bestDiff := math.MaxFloat64
	found := false
	for _, inst := range instruments {
		if inst.Kind != "option" || inst.ExpiryTime != closestExpiry {
			continue
		}
		diff := math.Abs(inst.Strike.Float64() - spotF)
		if diff < bestDiff {
			bestDiff = diff
			best = inst
			found = true
		}
	}
	if !found {
		return c.fallback
	}

	ticker, err := c.conn.GetTicker(ctx, best.Name)
	if err != nil {
		log.WithError(err).Warnf("atm iv: ticker failed for %s, serving fallback", best.Name)
		return c.fallback
	}

	return ticker.MarkIv
}
