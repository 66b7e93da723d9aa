package quote

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drawdownguard/collar-engine/pkg/ptypes"
)

// Tier is the stale-while-revalidate freshness classification from spec
// section 4.4 step 6.
type Tier string

const (
	TierFresh Tier = "fresh"
	TierStale Tier = "stale"
	TierHard  Tier = "hard"
	TierCold  Tier = "cold"
)

// entry is one cached quote plus the time it was computed.
type entry struct {
	quote     ptypes.Quote
	computedAt time.Time
}

// inflight is the single-flight future for one in-progress compute: every
// concurrent caller on the same key waits on done and reads result/err once
// it closes, mirroring the teacher's stopC-style "close signals completion"
// idiom rather than pulling in golang.org/x/sync/singleflight (see DESIGN.md).
type inflight struct {
	done   chan struct{}
	result ptypes.Quote
	err    error
}

// Cache is the quote cache from spec section 4.4 step 6: a 3-tier TTL
// (fresh/stale/hard) keyed on a hash of the normalized inputs' JSON, with
// single-flight compute so concurrent callers on one key share one future.
type Cache struct {
	engine *Engine

	ttlFresh time.Duration
	ttlStale time.Duration
	ttlHard  time.Duration

	mu      sync.Mutex
	entries map[string]entry
	flights map[string]*inflight

	hits   atomic.Int64
	misses atomic.Int64
}

// Stats returns the cumulative fresh-hit and miss (stale/hard/cold) counts
// since the cache was constructed, for the /metrics quote cache hit gauge.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// NewCache builds a Cache bound to engine, with the three TTLs from
// QUOTE_CACHE_{TTL,STALE,HARD}_MS.
func NewCache(engine *Engine, ttlFresh, ttlStale, ttlHard time.Duration) *Cache {
	return &Cache{
		engine:   engine,
		ttlFresh: ttlFresh,
		ttlStale: ttlStale,
		ttlHard:  ttlHard,
		entries:  make(map[string]entry),
		flights:  make(map[string]*inflight),
	}
}

// Key normalizes Inputs into the cache key: the hex SHA-256 of the JSON of
// the normalized inputs, per spec section 4.4 step 6 ("2-dp spot, 4-dp drawdown, etc.").
func Key(in Inputs) string {
	norm := struct {
		Tier       string `json:"tier"`
		Asset      string `json:"asset"`
		Spot       string `json:"spot"`
		Dd         string `json:"dd"`
		Size       string `json:"size"`
		Contract   string `json:"contract"`
		Leverage   string `json:"leverage"`
		Side       string `json:"side"`
		Days       int    `json:"days"`
		PassThru   bool   `json:"passThru"`
		Coverage   string `json:"coverage"`
		PinnedTag  string `json:"pinnedTag"`
	}{
		Tier:      in.Tier.Name,
		Asset:     string(in.Asset),
		Spot:      in.Spot.Round2().String(),
		Dd:        roundPct(in.DrawdownFloorPct),
		Size:      in.PositionSize.Round6().String(),
		Contract:  in.ContractSize.Round6().String(),
		Leverage:  in.Leverage.Round2().String(),
		Side:      string(in.Side),
		Days:      in.TargetDays,
		PassThru:  in.AllowPremiumPassThrough,
		Coverage:  in.CoverageID,
		PinnedTag: in.PinnedExpiryTag,
	}

	b, _ := json.Marshal(norm)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// roundPct renders a fraction to 4 decimal places for the cache key, per
// spec section 4.4 step 6 ("2-dp spot, 4-dp drawdown, etc.").
func roundPct(f float64) string {
	return strconv.FormatFloat(f, 'f', 4, 64)
}

// classify reports the freshness tier of a cache entry observed at now.
func (c *Cache) classify(e entry, now time.Time) Tier {
	age := now.Sub(e.computedAt)
	switch {
	case age <= c.ttlFresh:
		return TierFresh
	case age <= c.ttlStale:
		return TierStale
	case age <= c.ttlHard:
		return TierHard
	default:
		return TierCold
	}
}

// Preview implements /put/preview: serve fresh immediately, serve stale and
// trigger an async single-flight refresh, or report cold (pending).
func (c *Cache) Preview(ctx context.Context, in Inputs) (ptypes.Quote, Tier, bool) {
	key := Key(in)
	now := time.Now()

	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		c.triggerRefresh(key, in)
		return ptypes.Quote{}, TierCold, false
	}

	tier := c.classify(e, now)
	switch tier {
	case TierFresh:
		c.hits.Add(1)
		return e.quote, tier, true
	case TierStale, TierHard:
		c.misses.Add(1)
		c.triggerRefresh(key, in)
		return e.quote, tier, true
	default:
		c.misses.Add(1)
		c.evict(key)
		c.triggerRefresh(key, in)
		return ptypes.Quote{}, TierCold, false
	}
}

// Quote implements /put/quote: serve fresh immediately, else compute
// synchronously (single-flight shared with any concurrent caller).
func (c *Cache) Quote(ctx context.Context, in Inputs) (ptypes.Quote, error) {
	key := Key(in)
	now := time.Now()

	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()

	if ok && c.classify(e, now) == TierFresh {
		c.hits.Add(1)
		return e.quote, nil
	}

	c.misses.Add(1)
	return c.computeShared(key, in)
}

// triggerRefresh starts a single-flight compute for key if one is not
// already in progress, discarding its result (callers already got stale
// data from Preview).
func (c *Cache) triggerRefresh(key string, in Inputs) {
	c.mu.Lock()
	if _, inProgress := c.flights[key]; inProgress {
		c.mu.Unlock()
		return
	}
	fl := &inflight{done: make(chan struct{})}
	c.flights[key] = fl
	c.mu.Unlock()

	go c.runCompute(context.Background(), key, in, fl)
}

// computeShared runs (or joins) the single-flight compute for key and
// blocks until it resolves, propagating the same error to every awaiter.
func (c *Cache) computeShared(key string, in Inputs) (ptypes.Quote, error) {
	c.mu.Lock()
	fl, inProgress := c.flights[key]
	if !inProgress {
		fl = &inflight{done: make(chan struct{})}
		c.flights[key] = fl
	}
	c.mu.Unlock()

	if !inProgress {
		c.runCompute(context.Background(), key, in, fl)
	}

	<-fl.done
	return fl.result, fl.err
}

// computeTimeout bounds one quote compute end to end, covering every venue
// round trip the strike search performs.
const computeTimeout = 6 * time.Second

func (c *Cache) runCompute(ctx context.Context, key string, in Inputs, fl *inflight) {
	ctx, cancel := context.WithTimeout(ctx, computeTimeout)
	defer cancel()

	q := c.engine.Compute(ctx, in)

	fl.result = q
	if q.Status == ptypes.StatusNoQuote {
		fl.err = nil // no_quote is a valid, cacheable terminal response, not a transport error
	}

	c.mu.Lock()
	c.entries[key] = entry{quote: q, computedAt: time.Now()}
	delete(c.flights, key)
	c.mu.Unlock()

	close(fl.done)
}

// evict removes a hard-expired entry.
func (c *Cache) evict(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}
