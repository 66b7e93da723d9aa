package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/drawdownguard/collar-engine/pkg/money"
)

// LadderLeg identifies one (tenor, floor) cell of the put-ladder grid.
type LadderLeg struct {
	TenorDays int
	FloorPct  float64
}

func (l LadderLeg) key() string {
	return fmt.Sprintf("%d:%.4f", l.TenorDays, l.FloorPct)
}

// defaultGrid is the small grid of tenor_days x floor_pct subscribed to.
var defaultGrid = buildGrid([]int{1, 2, 3, 5, 7}, []float64{0.12, 0.16, 0.2})

func buildGrid(tenors []int, floors []float64) []LadderLeg {
	legs := make([]LadderLeg, 0, len(tenors)*len(floors))
	for _, t := range tenors {
		for _, f := range floors {
			legs = append(legs, LadderLeg{TenorDays: t, FloorPct: f})
		}
	}
	return legs
}

type legTick struct {
	markPrice float64
	iv        float64
	observed  time.Time
}

// Snapshot is one requested read of the ladder: baseIv is the median across
// fresh legs, hedgeIv is the max.
type Snapshot struct {
	BaseIv   float64
	HedgeIv  float64
	AsOf     time.Time
	FromLast bool
}

// LadderCache subscribes to a put-ticker grid over a WebSocket connection
// and serves median/max-IV reductions over the freshest ticks, reconnecting
// on close/error after a constant 2s delay.
type LadderCache struct {
	dialURL          string
	maxAgeMs         time.Duration
	maxSnapshotAgeMs time.Duration
	priceBufferPct   float64

	mu         sync.Mutex
	ticks      map[string]legTick
	grid       []LadderLeg
	lastGood   *Snapshot
	conn       *websocket.Conn
	stopC      chan struct{}
}

// NewLadderCache builds a cache that will dial dialURL once Start is called.
func NewLadderCache(dialURL string, maxAgeMs, maxSnapshotAgeMs time.Duration, priceBufferPct float64) *LadderCache {
	return &LadderCache{
		dialURL:          dialURL,
		maxAgeMs:         maxAgeMs,
		maxSnapshotAgeMs: maxSnapshotAgeMs,
		priceBufferPct:   priceBufferPct,
		ticks:            make(map[string]legTick),
		grid:             defaultGrid,
		stopC:            make(chan struct{}),
	}
}

// Start runs the read loop until ctx is cancelled, reconnecting on error.
func (c *LadderCache) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopC:
			return
		default:
		}

		if err := c.runOnce(ctx); err != nil {
			log.WithError(err).Warn("put ladder: connection error, reconnecting in 2s")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

// Stop terminates the read loop.
func (c *LadderCache) Stop() {
	select {
	case <-c.stopC:
	default:
		close(c.stopC)
	}
}

func (c *LadderCache) runOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.dialURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	c.mu.Lock()
	c.conn = conn
	grid := append([]LadderLeg(nil), c.grid...)
	c.mu.Unlock()

	if err := c.subscribe(conn, grid); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.stopC:
			return nil
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.handleMessage(raw)
	}
}

type putTickerMessage struct {
	Leg    string  `json:"leg"`
	Ask    float64 `json:"ask"`
	Mark   float64 `json:"mark"`
	MarkIv float64 `json:"mark_iv"`
}

func (c *LadderCache) subscribe(conn *websocket.Conn, grid []LadderLeg) error {
	legs := make([]string, 0, len(grid))
	for _, l := range grid {
		legs = append(legs, l.key())
	}
	msg := map[string]any{
		"type": "subscribe",
		"legs": legs,
	}
	return conn.WriteJSON(msg)
}

func (c *LadderCache) handleMessage(raw []byte) {
	var msg putTickerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.WithError(err).Debug("put ladder: unparsable message, ignoring")
		return
	}

	markPrice := msg.Ask
	if markPrice <= 0 {
		markPrice = msg.Mark
	}
	markPrice *= 1 + c.priceBufferPct

	c.mu.Lock()
	c.ticks[msg.Leg] = legTick{markPrice: markPrice, iv: msg.MarkIv, observed: time.Now()}
	c.mu.Unlock()
}

// ResubscribeIfDrifted updates the tracked grid and, if it connects, this
// causes the next reconnect cycle to subscribe to the new grid.
func (c *LadderCache) ResubscribeIfDrifted(grid []LadderLeg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sameGrid(c.grid, grid) {
		return
	}
	c.grid = grid
	if c.conn != nil {
		_ = c.subscribe(c.conn, grid)
	}
}

func sameGrid(a, b []LadderLeg) bool {
	if len(a) != len(b) {
		return false
	}
	am := map[string]bool{}
	for _, l := range a {
		am[l.key()] = true
	}
	for _, l := range b {
		if !am[l.key()] {
			return false
		}
	}
	return true
}

// Get reduces fresh ticks into a Snapshot. Requires at least 3 fresh values;
// otherwise serves the last good snapshot if within maxSnapshotAgeMs, else
// returns ok=false (cold).
func (c *LadderCache) Get() (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var fresh []float64
	var freshMark []float64
	for _, t := range c.ticks {
		if now.Sub(t.observed) <= c.maxAgeMs {
			fresh = append(fresh, t.iv)
			freshMark = append(freshMark, t.markPrice)
		}
	}

	if len(fresh) >= 3 {
		snap := Snapshot{
			BaseIv:  median(fresh),
			HedgeIv: maxOf(fresh),
			AsOf:    now,
		}
		c.lastGood = &snap
		return snap, true
	}

	if c.lastGood != nil && now.Sub(c.lastGood.AsOf) <= c.maxSnapshotAgeMs {
		stale := *c.lastGood
		stale.FromLast = true
		return stale, true
	}

	return Snapshot{}, false
}

// LegMarkPrice returns the buffered mark price for a specific leg if fresh.
func (c *LadderCache) LegMarkPrice(leg LadderLeg) (money.Value, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.ticks[leg.key()]
	if !ok || time.Since(t.observed) > c.maxAgeMs {
		return money.Zero, false
	}
	return money.NewFromFloat(t.markPrice), true
}

func median(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}
